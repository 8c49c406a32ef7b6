package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env        string `env:"ENVIRONMENT"`
	ServerPort int    `env:"PORT" envDefault:"8080"`
	DBPath     string `env:"DB_PATH" envDefault:"florabot.sqlite"`
	AdminCreds string `env:"ADMIN_CREDS"`

	Line struct {
		ChannelSecret string `env:"LINE_CHANNEL_SECRET"`
		ChannelToken  string `env:"LINE_CHANNEL_TOKEN"`
		TimeoutSecs   int    `env:"LINE_TIMEOUT_SECS" envDefault:"10"`
	}

	LLM struct {
		APIKey         string `env:"DEEPSEEK_API_KEY"`
		Endpoint       string `env:"DEEPSEEK_API_URL" envDefault:"https://api.deepseek.com/v1/chat/completions"`
		Model          string `env:"DEEPSEEK_MODEL" envDefault:"deepseek-chat"`
		VisionAPIKey   string `env:"VISION_API_KEY"`
		VisionEndpoint string `env:"VISION_API_URL" envDefault:"https://api.deepseek.com/v1/chat/completions"`
		VisionModel    string `env:"VISION_MODEL" envDefault:"deepseek-vl"`
		TimeoutSecs    int    `env:"LLM_TIMEOUT_SECS" envDefault:"10"`
	}

	Broadcast struct {
		Enabled  bool   `env:"BROADCAST_ENABLED" envDefault:"true"`
		At       string `env:"BROADCAST_AT" envDefault:"08:00"`
		Timezone string `env:"BROADCAST_TZ" envDefault:"Asia/Taipei"`
	}

	ImageTTLSecs int `env:"IMAGE_TTL_SECS" envDefault:"300"`

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	// The messaging credential is the one thing we refuse to run without;
	// every other integration degrades to its fallback behaviour instead.
	if cfg.Line.ChannelSecret == "" || cfg.Line.ChannelToken == "" {
		cfg.log.Sugar().Panic("LINE_CHANNEL_SECRET and LINE_CHANNEL_TOKEN envvars must be populated")
	}
	if cfg.LLM.APIKey == "" {
		cfg.log.Sugar().Info("DEEPSEEK_API_KEY is not set; chat replies will use fallback text only")
	}
	if cfg.LLM.VisionAPIKey == "" {
		cfg.LLM.VisionAPIKey = cfg.LLM.APIKey
	}

	if _, _, err := cfg.BroadcastTime(); err != nil {
		cfg.log.Sugar().Panic(err)
	}
	if _, err := cfg.BroadcastLocation(); err != nil {
		cfg.log.Sugar().Panic(err)
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		cfg.log.Sugar().Infof("%s (admin endpoints will be left unauthenticated)", err)
	}
	cfg.creds = creds

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

// BroadcastTime parses the configured HH:MM wall-clock send time.
func (cfg *Config) BroadcastTime() (hour, minute int, err error) {
	parts := strings.Split(cfg.Broadcast.At, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("failed to parse BROADCAST_AT '%s', expected HH:MM", cfg.Broadcast.At)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("failed to parse BROADCAST_AT hour '%s'", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("failed to parse BROADCAST_AT minute '%s'", parts[1])
	}
	return hour, minute, nil
}

// BroadcastLocation resolves the timezone that anchors both the send time
// and the "already pushed today" calendar date.
func (cfg *Config) BroadcastLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Broadcast.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load BROADCAST_TZ '%s': %w", cfg.Broadcast.Timezone, err)
	}
	return loc, nil
}

func (cfg *Config) LineTimeout() time.Duration {
	return time.Duration(cfg.Line.TimeoutSecs) * time.Second
}

func (cfg *Config) LLMTimeout() time.Duration {
	return time.Duration(cfg.LLM.TimeoutSecs) * time.Second
}

func (cfg *Config) ImageTTL() time.Duration {
	return time.Duration(cfg.ImageTTLSecs) * time.Second
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.AdminCreds == "" {
		return nil, errors.New("ADMIN_CREDS envvar is not populated")
	}

	creds := strings.Split(cfg.AdminCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("ADMIN_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
