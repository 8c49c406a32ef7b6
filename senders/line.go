package senders

import (
	"context"
	"fmt"
	"io"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"go.uber.org/zap"
)

// LineSender wraps the LINE Messaging API client. Besides the Sender
// contract it downloads inbound image content, since that rides on the
// same credentials.
type LineSender struct {
	log *zap.Logger
	bot *linebot.Client
}

func NewLineSender(log *zap.Logger, bot *linebot.Client) *LineSender {
	return &LineSender{log, bot}
}

func (s *LineSender) Push(ctx context.Context, to, text string) error {
	_, err := s.bot.PushMessage(to, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", to, err)
	}
	return nil
}

func (s *LineSender) Reply(ctx context.Context, replyToken, text string) error {
	_, err := s.bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}
	return nil
}

// FetchImage downloads the raw bytes of an inbound image message.
func (s *LineSender) FetchImage(ctx context.Context, messageID string) ([]byte, error) {
	resp, err := s.bot.GetMessageContent(messageID).WithContext(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content of message %s: %w", messageID, err)
	}
	defer resp.Content.Close()

	data, err := io.ReadAll(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to read content of message %s: %w", messageID, err)
	}
	return data, nil
}
