package digest

import (
	"context"
	"fmt"

	"github.com/bytesforge-consulting/negra-midia-notification/datastore"
	"github.com/bytesforge-consulting/negra-midia-notification/insight"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

// Unread processing limits.
const (
	DefaultMaxNotifications = 10
	MaxNotificationsLimit   = 50
	processSenders          = 5
	processMaxTokens        = 800
)

// Processing actions.
const (
	ActionProcess = "process"
	ActionAnalyze = "analyze"
	ActionDigest  = "digest"
)

// ProcessOptions controls ProcessUnread.
type ProcessOptions struct {
	Action           string `json:"action"`
	MarkAsRead       bool   `json:"mark_as_read"`
	IncludeSummary   bool   `json:"include_summary"`
	MaxNotifications int    `json:"max_notifications"`
}

// ProcessInsights summarizes a processed batch.
type ProcessInsights struct {
	MostCommonSenders []string       `json:"most_common_senders"`
	UrgentCount       int            `json:"urgent_count"`
	Categories        map[string]int `json:"categories"`
}

// ProcessResult is returned by ProcessUnread.
type ProcessResult struct {
	Summary                string                   `json:"summary"`
	NotificationsProcessed []*notifier.Notification `json:"notifications_processed"`
	TotalUnread            int64                    `json:"total_unread"`
	MarkedAsRead           int64                    `json:"marked_as_read"`
	Insights               ProcessInsights          `json:"insights"`
}

// ProcessUnread fetches the newest unread notifications, optionally asks the
// AI for a summary and optionally marks exactly the fetched ids read.
// The analyze action never marks anything.
func (e *Engine) ProcessUnread(ctx context.Context, opts ProcessOptions) (*ProcessResult, error) {
	switch opts.Action {
	case "":
		opts.Action = ActionProcess
	case ActionProcess, ActionDigest:
	case ActionAnalyze:
		opts.MarkAsRead = false
	default:
		return nil, &notifier.ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", opts.Action)}
	}

	limit := opts.MaxNotifications
	if limit <= 0 {
		limit = DefaultMaxNotifications
	}
	limit = min(limit, MaxNotificationsLimit)

	total, err := e.store.Count(ctx, datastore.Filter{UnreadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}
	list, err := e.store.FindMany(ctx, datastore.Filter{UnreadOnly: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("load unread notifications: %w", err)
	}

	result := &ProcessResult{
		NotificationsProcessed: list,
		TotalUnread:            total,
		Insights: ProcessInsights{
			MostCommonSenders: insight.RankSenders(list, processSenders, insight.ByName),
			UrgentCount:       len(insight.ClassifyUrgent(list)),
			Categories:        map[string]int{},
		},
	}
	for key, count := range insight.Categorize(list) {
		result.Insights.Categories[e.catalog.Category(key)] = count
	}

	if len(list) == 0 {
		result.Summary = e.catalog.NothingToDigest
		return result, nil
	}

	if opts.IncludeSummary {
		system, user := buildProcessPrompt(e.catalog, list, total)
		resp, err := e.completer.Complete(ctx, notifier.CompletionRequest{
			Model: e.model,
			Messages: []notifier.ChatMessage{
				{Role: notifier.RoleSystem, Content: system},
				{Role: notifier.RoleUser, Content: user},
			},
			MaxTokens:   processMaxTokens,
			Temperature: temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("summarize unread notifications: %w", err)
		}
		result.Summary = resp.Text
		if result.Summary == "" {
			result.Summary = e.catalog.DigestUnavailable
		}
	}

	if opts.MarkAsRead {
		updated, err := e.markRead(ctx, list, e.now())
		if err != nil {
			return nil, fmt.Errorf("mark notifications read: %w", err)
		}
		result.MarkedAsRead = updated
	}

	e.logger.Info("Unread notifications processed",
		"action", opts.Action,
		"fetched", len(list),
		"total_unread", total,
		"marked_as_read", result.MarkedAsRead)
	return result, nil
}
