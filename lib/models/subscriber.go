package models

import (
	"time"
)

const (
	PlatformLINE = "line"

	// DateLayout is the calendar-date form of LastPushDate,
	// rendered in the broadcast timezone.
	DateLayout = "2006-01-02"
)

// Subscriber is one end-user opted into the daily broadcast. Rows are
// created on first contact and never deleted; opting out only flips Active.
type Subscriber struct {
	UserID       string    `gorm:"primaryKey"`
	Platform     string    `gorm:"default:line"`
	Active       bool      `gorm:"index"`
	SubscribedAt time.Time // set once at creation, never mutated
	LastPushDate string    // empty until the first successful push
}

type Subscribers []Subscriber

// PushedToday reports whether this row already received the broadcast
// for the given calendar date.
func (s Subscriber) PushedToday(today string) bool {
	return s.LastPushDate == today
}
