// Package broadcast delivers one shared daily message to every eligible
// subscriber, at most once per subscriber per calendar day, best effort.
package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wenqt/florabot/config"
	"github.com/wenqt/florabot/lib/llm"
	"github.com/wenqt/florabot/lib/models"
	"github.com/wenqt/florabot/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FactPrompt asks for the one shared message of the day.
const FactPrompt = "請分享一則簡短、有趣、適合轉發給朋友的植物冷知識，100字以內。"

// FallbackFact is pushed when content generation fails; the broadcast never
// aborts for a generation failure.
const FallbackFact = "今日植物小知識：多數室內植物澆水前，先摸摸土壤，表土乾了再澆，比固定天數澆水更健康喔！"

// SubscriberStore is the slice of the repository the broadcaster needs.
type SubscriberStore interface {
	ListDue(ctx context.Context, today string) (models.Subscribers, error)
	MarkPushed(ctx context.Context, userID, today string) error
}

// ContentSource generates the shared message.
type ContentSource interface {
	Complete(ctx context.Context, question string) llm.Reply
}

// Report is the observable outcome of one run. It is logged and echoed by
// the manual trigger endpoint; nothing else consumes it.
type Report struct {
	RunID     string `json:"run_id"`
	Today     string `json:"today"`
	Attempted int    `json:"attempted"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Fallback  bool   `json:"fallback_content"`
	Err       error  `json:"-"`
}

type Broadcaster struct {
	log     *zap.Logger
	store   SubscriberStore
	content ContentSource
	senders senders.Registry
	loc     *time.Location
}

func NewBroadcaster(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, store SubscriberStore, content ContentSource, senders senders.Registry) *Broadcaster {
	loc, err := cfg.BroadcastLocation()
	if err != nil {
		// NewConfig already validated the timezone; this is unreachable
		// outside of tests constructing a Broadcaster by hand.
		log.Sugar().Panic(err)
	}
	return New(log, store, content, senders, loc)
}

func New(log *zap.Logger, store SubscriberStore, content ContentSource, senders senders.Registry, loc *time.Location) *Broadcaster {
	return &Broadcaster{log, store, content, senders, loc}
}

// Today renders the current calendar date in the broadcast timezone. The
// de-dup date deliberately shares a location with the send-time anchor so
// the two can never disagree across a timezone boundary.
func (b *Broadcaster) Today() string {
	return time.Now().In(b.loc).Format(models.DateLayout)
}

// Run executes one broadcast. An unreachable store aborts the run with
// nothing sent; every failure past selection is isolated per subscriber.
func (b *Broadcaster) Run(ctx context.Context) Report {
	report := Report{RunID: uuid.NewString(), Today: b.Today()}
	log := b.log.Sugar().With("run_id", report.RunID, "today", report.Today)

	due, err := b.store.ListDue(ctx, report.Today)
	if err != nil {
		log.Errorw("broadcast aborted, subscriber store unreachable", "err", err)
		report.Err = err
		return report
	}
	if len(due) == 0 {
		log.Info("no subscribers due, nothing to send")
		return report
	}

	text := b.generate(ctx, &report, log)

	for _, sub := range due {
		report.Attempted++

		sender, ok := b.senders[sub.Platform]
		if !ok {
			report.Failed++
			log.Warnw("skipping subscriber on unsupported platform", "user_id", sub.UserID, "platform", sub.Platform)
			continue
		}

		// A blocked account or rate limit on one recipient must not deny
		// the message to the rest, so failures only skip this iteration.
		if err := sender.Push(ctx, sub.UserID, text); err != nil {
			report.Failed++
			log.Warnw("failed to push to subscriber", "user_id", sub.UserID, "err", err)
			continue
		}
		report.Sent++

		if err := b.store.MarkPushed(ctx, sub.UserID, report.Today); err != nil {
			// The push went out; a re-run before the next write succeeds
			// may duplicate it. Accepted gap.
			log.Warnw("pushed but failed to record last_push_date", "user_id", sub.UserID, "err", err)
		}
	}

	log.Infow("broadcast completed", "attempted", report.Attempted, "sent", report.Sent, "failed", report.Failed)
	return report
}

func (b *Broadcaster) generate(ctx context.Context, report *Report, log *zap.SugaredLogger) string {
	reply := b.content.Complete(ctx, FactPrompt)
	if reply.Fallback {
		report.Fallback = true
		log.Warn("content generation failed, broadcasting fallback fact")
		return FallbackFact
	}
	return reply.Text
}
