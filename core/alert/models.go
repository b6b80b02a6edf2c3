package alert

import (
	"context"
	"time"
)

// Events
const (
	EventAttendanceBelow = "attendance_below"
	EventTargetsOverdue  = "targets_overdue"
	EventTutorialAdded   = "tutorial_added"
)

// Queue statuses
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Subscription asks for Event alerts to be sent to Recipient. Zero StudentID/CourseID match any.
type Subscription struct {
	ID            int64     `json:"id"`
	RecipientID   int64     `json:"recipient_id"`
	Event         string    `json:"event"`
	StudentID     int64     `json:"student_id"`
	CourseID      int64     `json:"course_id"`
	Threshold     float64   `json:"threshold"`
	Enabled       bool      `json:"enabled"`
	LastTriggered time.Time `json:"last_triggered"` // UTC
	CreatedAt     time.Time `json:"created_at"`     // UTC
}

// Since returns the time events must be newer than to trigger the subscription again.
func (sub Subscription) Since() time.Time {
	if sub.LastTriggered.IsZero() {
		return sub.CreatedAt
	}
	return sub.LastTriggered
}

type NewSubscription struct {
	Event     string  `json:"event" validate:"required"`
	StudentID int64   `json:"student_id" validate:"gte=0"`
	CourseID  int64   `json:"course_id" validate:"gte=0"`
	Threshold float64 `json:"threshold" validate:"gte=0"`
	Enabled   *bool   `json:"enabled"`
}

// Match is one alert an evaluator wants sent.
type Match struct {
	StudentID int64
	Subject   string
	Content   string
}

// Evaluator checks a subscription against current data.
type Evaluator func(ctx context.Context, sub Subscription) ([]Match, error)

type QueueItem struct {
	ID             int64     `json:"id"`
	SubscriptionID int64     `json:"subscription_id"`
	RecipientID    int64     `json:"recipient_id"`
	Event          string    `json:"event"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	SentAt         time.Time `json:"sent_at"`    // UTC
}
