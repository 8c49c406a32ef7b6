package senders

import (
	"context"

	"github.com/wenqt/florabot/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sender delivers text to one recipient on a messaging platform. Push is a
// platform-initiated delivery; Reply answers a specific inbound event.
type Sender interface {
	Push(ctx context.Context, to, text string) error
	Reply(ctx context.Context, replyToken, text string) error
}

// Registry maps a subscriber's platform key to its Sender.
type Registry map[string]Sender

func NewRegistry(lc fx.Lifecycle, log *zap.Logger, line *LineSender) Registry {
	return Registry{
		models.PlatformLINE: line,
	}
}
