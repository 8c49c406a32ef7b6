package app

import (
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/wenqt/florabot/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewLineClient builds the Messaging API client. Config has already refused
// to start without the channel credentials, so a constructor error here
// means the credentials are malformed rather than absent.
func NewLineClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper) *linebot.Client {
	bot, err := linebot.New(
		cfg.Line.ChannelSecret,
		cfg.Line.ChannelToken,
		linebot.WithHTTPClient(&http.Client{
			Transport: transport,
			Timeout:   cfg.LineTimeout(),
		}),
	)
	if err != nil {
		log.Sugar().Panicw("failed to create LINE client", "err", err)
	}
	return bot
}
