package lib

import (
	"strings"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// EventKind is the closed set of inbound event shapes we care about.
// Anything else the platform sends maps to EventIgnored.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventFollow
	EventUnfollow
	EventText
	EventImage
	EventPostback
)

// InboundEvent is the tagged view of one webhook event, decoupled from the
// SDK's open-ended message interface so handlers can match exhaustively.
type InboundEvent struct {
	Kind       EventKind
	UserID     string
	ReplyToken string

	Text         string // EventText
	MessageID    string // EventImage
	PostbackData string // EventPostback
}

// MapEvent collapses an SDK event into the closed variant.
func MapEvent(ev *linebot.Event) InboundEvent {
	out := InboundEvent{ReplyToken: ev.ReplyToken}
	if ev.Source != nil {
		out.UserID = ev.Source.UserID
	}

	switch ev.Type {
	case linebot.EventTypeFollow:
		out.Kind = EventFollow

	case linebot.EventTypeUnfollow:
		out.Kind = EventUnfollow

	case linebot.EventTypePostback:
		out.Kind = EventPostback
		if ev.Postback != nil {
			out.PostbackData = ev.Postback.Data
		}

	case linebot.EventTypeMessage:
		switch msg := ev.Message.(type) {
		case *linebot.TextMessage:
			out.Kind = EventText
			out.Text = strings.TrimSpace(msg.Text)
		case *linebot.ImageMessage:
			out.Kind = EventImage
			out.MessageID = msg.ID
		}
	}

	return out
}
