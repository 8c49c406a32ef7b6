package lib

import (
	"context"

	"github.com/wenqt/florabot/config"
	"github.com/wenqt/florabot/lib/imagecache"
	"github.com/wenqt/florabot/lib/llm"
	"github.com/wenqt/florabot/lib/models"
	"github.com/wenqt/florabot/lib/store"
	"github.com/wenqt/florabot/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Fixed user-facing copy. The user never sees a raw error; every failure
// path resolves to one of these or to a client fallback text.
const (
	textWelcome = "嗨，我是植米！歡迎問我任何植物問題，或傳植物照片給我看看。\n輸入「訂閱」可收到每日植物冷知識，輸入「取消訂閱」隨時停止。"

	textSubscribed    = "訂閱成功！每天早上會送上一則植物冷知識。"
	textUnsubscribed  = "已取消訂閱，隨時輸入「訂閱」再回來喔。"
	textImageReceived = "收到照片了！想知道這株植物的什麼呢？直接輸入你的問題吧。"
	textStoreApology  = "系統有點忙，剛剛的操作沒有完成，請稍後再試一次。"
	textFetchApology  = "照片下載失敗了，請再傳一次試試。"

	cmdSubscribe   = "訂閱"
	cmdUnsubscribe = "取消訂閱"

	postbackSubscribe   = "subscribe"
	postbackUnsubscribe = "unsubscribe"
)

// Completer is the fail-soft AI boundary; both methods always return a
// displayable Reply.
type Completer interface {
	Complete(ctx context.Context, question string) llm.Reply
	Understand(ctx context.Context, image []byte, question string) llm.Reply
}

// ImageFetcher downloads the content of an inbound image message.
type ImageFetcher interface {
	FetchImage(ctx context.Context, messageID string) ([]byte, error)
}

// Service handles webhook events. Handlers run synchronously on the request
// goroutine; concurrent events for the same user race on the subscriber row
// with last-writer-wins, accepted for a rare idempotent toggle.
type Service struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *store.Store
	ai      Completer
	images  *imagecache.Cache
	fetcher ImageFetcher
	senders senders.Registry
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, store *store.Store, ai Completer, images *imagecache.Cache, fetcher ImageFetcher, senders senders.Registry) *Service {
	return &Service{cfg, log, store, ai, images, fetcher, senders}
}

// Handle dispatches one inbound event. It never returns an error: store and
// upstream failures resolve to apology or fallback replies, logged here.
func (svc *Service) Handle(ctx context.Context, ev InboundEvent) {
	switch ev.Kind {
	case EventFollow:
		svc.handleFollow(ctx, ev)
	case EventUnfollow:
		svc.handleUnfollow(ctx, ev)
	case EventText:
		svc.handleText(ctx, ev)
	case EventImage:
		svc.handleImage(ctx, ev)
	case EventPostback:
		svc.handlePostback(ctx, ev)
	case EventIgnored:
		// Platform event kinds outside the closed set are dropped silently.
	}
}

func (svc *Service) handleFollow(ctx context.Context, ev InboundEvent) {
	created, err := svc.store.SetActive(ctx, ev.UserID, true)
	if err != nil {
		svc.log.Sugar().Errorw("failed to activate subscriber on follow", "user_id", ev.UserID, "err", err)
		svc.reply(ctx, ev.ReplyToken, textStoreApology)
		return
	}
	if created {
		svc.log.Sugar().Infow("new subscriber", "user_id", ev.UserID)
	}
	svc.reply(ctx, ev.ReplyToken, textWelcome)
}

func (svc *Service) handleUnfollow(ctx context.Context, ev InboundEvent) {
	// No reply token exists for unfollow; the row just goes inactive.
	if _, err := svc.store.SetActive(ctx, ev.UserID, false); err != nil {
		svc.log.Sugar().Errorw("failed to deactivate subscriber on unfollow", "user_id", ev.UserID, "err", err)
	}
}

func (svc *Service) handleText(ctx context.Context, ev InboundEvent) {
	switch ev.Text {
	case cmdSubscribe:
		svc.toggle(ctx, ev.UserID, ev.ReplyToken, true)
		return
	case cmdUnsubscribe:
		svc.toggle(ctx, ev.UserID, ev.ReplyToken, false)
		return
	}

	// A text that follows a recent photo is the question about that photo.
	if image, ok := svc.images.Take(ev.UserID); ok {
		reply := svc.ai.Understand(ctx, image, ev.Text)
		svc.reply(ctx, ev.ReplyToken, reply.Text)
		return
	}

	reply := svc.ai.Complete(ctx, ev.Text)
	svc.reply(ctx, ev.ReplyToken, reply.Text)
}

func (svc *Service) handleImage(ctx context.Context, ev InboundEvent) {
	image, err := svc.fetcher.FetchImage(ctx, ev.MessageID)
	if err != nil {
		svc.log.Sugar().Warnw("failed to fetch image content", "message_id", ev.MessageID, "err", err)
		svc.reply(ctx, ev.ReplyToken, textFetchApology)
		return
	}

	svc.images.Put(ev.UserID, image)
	svc.reply(ctx, ev.ReplyToken, textImageReceived)
}

func (svc *Service) handlePostback(ctx context.Context, ev InboundEvent) {
	switch ev.PostbackData {
	case postbackSubscribe:
		svc.toggle(ctx, ev.UserID, ev.ReplyToken, true)
	case postbackUnsubscribe:
		svc.toggle(ctx, ev.UserID, ev.ReplyToken, false)
	}
}

func (svc *Service) toggle(ctx context.Context, userID, replyToken string, active bool) {
	if _, err := svc.store.SetActive(ctx, userID, active); err != nil {
		svc.log.Sugar().Errorw("failed to toggle subscription", "user_id", userID, "active", active, "err", err)
		svc.reply(ctx, replyToken, textStoreApology)
		return
	}
	if active {
		svc.reply(ctx, replyToken, textSubscribed)
	} else {
		svc.reply(ctx, replyToken, textUnsubscribed)
	}
}

func (svc *Service) reply(ctx context.Context, replyToken, text string) {
	sender, ok := svc.senders[models.PlatformLINE]
	if !ok {
		svc.log.Sugar().Warnw("no sender registered, dropping reply", "platform", models.PlatformLINE)
		return
	}
	if err := sender.Reply(ctx, replyToken, text); err != nil {
		svc.log.Sugar().Warnw("failed to reply", "err", err)
	}
}
