// Package notifier contains the core domain types for the notification service.
package notifier

import (
	"fmt"
	"strings"
	"time"
)

// Notification is a stored contact notification.
type Notification struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Phone   string     `json:"phone"`
	Body    string     `json:"body"`
	Subject string     `json:"subject"`
	SentAt  time.Time  `json:"sent_at"`
	ReadAt  *time.Time `json:"read_at"` // nil while unread
}

// IsRead reports whether the notification has been read.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// CreateRequest holds the fields a client supplies for a new notification.
type CreateRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Body    string `json:"body"`
	Subject string `json:"subject"`
}

// Period selects the window and budgets of a digest.
type Period string

// Supported digest periods.
const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// Periods lists every period in ascending width.
var Periods = []Period{Daily, Weekly, Monthly}

// ParsePeriod converts a user-supplied string into a Period.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Daily, Weekly, Monthly:
		return p, nil
	}
	return "", &ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", s)}
}

// DateRange is a half-open [Start, End) window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Insights are derived statistics attached to a digest.
type Insights struct {
	MostActiveDay string         `json:"most_active_day,omitempty"`
	Categories    map[string]int `json:"categories,omitempty"`
	Trends        string         `json:"trends,omitempty"`
}

// Empty reports whether no insight was computed.
func (i Insights) Empty() bool {
	return i.MostActiveDay == "" && len(i.Categories) == 0 && i.Trends == ""
}

// DigestResult is produced once per digest generation and never persisted in the store.
type DigestResult struct {
	Digest                 string          `json:"digest"`
	Period                 Period          `json:"period"`
	StartDate              string          `json:"start_date"`
	EndDate                string          `json:"end_date"`
	TotalNotifications     int             `json:"total_notifications"`
	UnreadCount            int             `json:"unread_count"`
	TopSenders             []string        `json:"top_senders"`
	UrgentNotifications    []*Notification `json:"urgent_notifications"`
	ProcessedNotifications []*Notification `json:"processed_notifications"`
	Insights               Insights        `json:"insights"`
	GeneratedAt            time.Time       `json:"generated_at"`
}

// Chat roles understood by text-completion backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a completion prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is sent to a text-completion backend.
type CompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the validated response of a text-completion backend.
type Completion struct {
	Text  string `json:"response"`
	Usage *Usage `json:"usage,omitempty"`
}
