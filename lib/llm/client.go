// Package llm wraps the chat-completion and image-understanding endpoints.
// Every call resolves to a displayable Reply; remote failures surface as the
// Fallback tag, never as a Go error, so callers stay free of error plumbing.
package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/wenqt/florabot/config"
	"go.uber.org/zap"
)

// Reply is the outcome of one upstream call. When Fallback is true, Text
// holds the fixed substitute copy instead of generated content.
type Reply struct {
	Text     string
	Fallback bool
}

const (
	// FallbackAnswer substitutes a failed chat completion.
	FallbackAnswer = "暫時無法取得植物知識，請稍後再試。"
	// FallbackVision substitutes a failed image-understanding call.
	FallbackVision = "抱歉，這張照片我暫時看不清楚，請稍後再試一次。"

	// SystemPersona is the fixed system prompt for both endpoints.
	SystemPersona = "你是一位專業且熱情的植物學家助手。"

	// ExpertPreamble frames every user question for the chat endpoint.
	ExpertPreamble = `你是一位專業的植物學家助手。請根據使用者關於植物的問題，提供準確、科學且易懂的回答。
回答可包括：植物名稱鑑別、養護方法（澆水、光照、土壤）、常見病害、繁殖方式、生態習性等。
如果問題涉及植物辨識，請描述關鍵特徵或建議提供更多資訊（如葉形、花色）。
如果使用者的問題與植物無關，請禮貌地提醒並引導至植物相關話題。
請用繁體中文回答，保持友好和專業。
使用者問題：`

	// VisionPreamble frames the question that accompanies a photo.
	VisionPreamble = `請以植物學家的角度觀察這張照片，回答使用者的問題。
若照片中沒有植物，請禮貌說明並引導至植物相關話題。請用繁體中文回答。
使用者問題：`
)

type Client struct {
	log       *zap.Logger
	transport http.RoundTripper

	endpoint string
	apiKey   string
	model    string

	visionEndpoint string
	visionAPIKey   string
	visionModel    string

	timeout time.Duration
}

func NewClient(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) *Client {
	return &Client{
		log:            log,
		transport:      transport,
		endpoint:       cfg.LLM.Endpoint,
		apiKey:         cfg.LLM.APIKey,
		model:          cfg.LLM.Model,
		visionEndpoint: cfg.LLM.VisionEndpoint,
		visionAPIKey:   cfg.LLM.VisionAPIKey,
		visionModel:    cfg.LLM.VisionModel,
		timeout:        cfg.LLMTimeout(),
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role string `json:"role"`
	// Content is a plain string for text chat, or a list of content parts
	// when an image rides along.
	Content any `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete asks the chat endpoint one question framed by the expert persona.
func (c *Client) Complete(ctx context.Context, question string) Reply {
	if c.apiKey == "" {
		return Reply{Text: FallbackAnswer, Fallback: true}
	}

	body := completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: SystemPersona},
			{Role: "user", Content: ExpertPreamble + question},
		},
		MaxTokens:   1024,
		Temperature: 0.7,
	}

	text, err := c.post(ctx, c.endpoint, c.apiKey, body)
	if err != nil {
		c.log.Sugar().Warnw("chat completion failed, answering with fallback", "err", err)
		return Reply{Text: FallbackAnswer, Fallback: true}
	}
	return Reply{Text: text}
}

func (c *Client) post(ctx context.Context, endpoint, apiKey string, body completionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp completionResponse
	err := requests.URL(endpoint).
		Transport(c.transport).
		Bearer(apiKey).
		BodyJSON(&body).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}
