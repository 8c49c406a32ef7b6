package llm

import (
	"context"
	"encoding/base64"
	"errors"
)

var errEmptyCompletion = errors.New("completion response carried no usable text")

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imagePayload `json:"image_url,omitempty"`
}

type imagePayload struct {
	URL string `json:"url"`
}

// Understand asks the vision endpoint one question about a photo. The image
// bytes travel inline as a base64 data URL; same fail-soft contract as Complete.
func (c *Client) Understand(ctx context.Context, image []byte, question string) Reply {
	if c.visionAPIKey == "" || len(image) == 0 {
		return Reply{Text: FallbackVision, Fallback: true}
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	body := completionRequest{
		Model: c.visionModel,
		Messages: []message{
			{Role: "system", Content: SystemPersona},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: VisionPreamble + question},
				{Type: "image_url", ImageURL: &imagePayload{URL: dataURL}},
			}},
		},
		MaxTokens:   1024,
		Temperature: 0.7,
	}

	text, err := c.post(ctx, c.visionEndpoint, c.visionAPIKey, body)
	if err != nil {
		c.log.Sugar().Warnw("image understanding failed, answering with fallback", "err", err)
		return Reply{Text: FallbackVision, Fallback: true}
	}
	return Reply{Text: text}
}
