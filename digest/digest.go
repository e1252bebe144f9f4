// Package digest generates AI-written digests of notifications.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/datastore"
	"github.com/bytesforge-consulting/negra-midia-notification/insight"
	"github.com/bytesforge-consulting/negra-midia-notification/locale"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"golang.org/x/sync/errgroup"
)

const temperature = 0.6

// budget holds the per-period limits of a digest run.
type budget struct {
	unreadCap     int
	topSenders    int
	maxTokens     int
	promptSenders int
	promptUrgent  int
	promptRecent  int
}

var budgets = map[notifier.Period]budget{
	notifier.Daily:   {unreadCap: 20, topSenders: 5, maxTokens: 600, promptSenders: 3, promptUrgent: 3, promptRecent: 5},
	notifier.Weekly:  {unreadCap: 30, topSenders: 7, maxTokens: 800, promptSenders: 3, promptUrgent: 3, promptRecent: 5},
	notifier.Monthly: {unreadCap: 50, topSenders: 10, maxTokens: 1000, promptSenders: 5, promptUrgent: 5, promptRecent: 8},
}

// Store is the subset of the notification store the engine needs.
type Store interface {
	FindMany(ctx context.Context, f datastore.Filter) ([]*notifier.Notification, error)
	Count(ctx context.Context, f datastore.Filter) (int64, error)
	UpdateMany(ctx context.Context, ids []int64, readAt time.Time) (int64, error)
}

// Completer produces text completions.
type Completer interface {
	Complete(ctx context.Context, req notifier.CompletionRequest) (*notifier.Completion, error)
}

// Recorder observes digest generations.
type Recorder interface {
	ObserveDigest(period notifier.Period, outcome string, d time.Duration)
}

// Engine generates digests.
type Engine struct {
	store     Store
	completer Completer
	catalog   *locale.Catalog
	extractor *insight.Extractor
	loc       *time.Location
	model     string
	logger    *slog.Logger
	recorder  Recorder
	now       func() time.Time
}

// Config holds engine dependencies.
type Config struct {
	Store     Store
	Completer Completer
	Catalog   *locale.Catalog
	Location  *time.Location
	Model     string
	Logger    *slog.Logger
	Recorder  Recorder         // optional
	Now       func() time.Time // optional, defaults to time.Now
}

// New creates an Engine.
func New(cfg *Config) *Engine {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:     cfg.Store,
		completer: cfg.Completer,
		catalog:   cfg.Catalog,
		extractor: insight.NewExtractor(cfg.Catalog, loc, cfg.Logger),
		loc:       loc,
		model:     cfg.Model,
		logger:    cfg.Logger,
		recorder:  cfg.Recorder,
		now:       now,
	}
}

// DateRange returns the window of period relative to now: it ends at the
// start of tomorrow in loc and starts one day, seven days or one month earlier.
func DateRange(now time.Time, period notifier.Period, loc *time.Location) notifier.DateRange {
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)

	var start time.Time
	switch period {
	case notifier.Weekly:
		start = end.AddDate(0, 0, -7)
	case notifier.Monthly:
		// Same day of the previous month, clamped to that month's last day.
		y, m, d := end.Date()
		last := time.Date(y, m, 0, 0, 0, 0, 0, loc).Day()
		start = time.Date(y, m-1, min(d, last), 0, 0, 0, 0, loc)
	default:
		start = end.AddDate(0, 0, -1)
	}
	return notifier.DateRange{Start: start, End: end}
}

// Generate builds the digest of period. When markUrgentAsRead is set, the
// urgent unread notifications are marked read in a single batch after the
// AI call succeeds.
func (e *Engine) Generate(ctx context.Context, period notifier.Period, markUrgentAsRead bool) (result *notifier.DigestResult, err error) {
	b, ok := budgets[period]
	if !ok {
		return nil, &notifier.ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", period)}
	}

	started := time.Now()
	defer func() {
		if e.recorder == nil {
			return
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		e.recorder.ObserveDigest(period, outcome, time.Since(started))
	}()

	now := e.now()
	rng := DateRange(now, period, e.loc)
	e.logger.Info("Generating digest",
		"period", period,
		"start", rng.Start.Format(time.RFC3339),
		"end", rng.End.Format(time.RFC3339),
		"mark_urgent_as_read", markUrgentAsRead)

	var periodSet, unread []*notifier.Notification
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		periodSet, err = e.store.FindMany(gctx, datastore.Filter{SentFrom: &rng.Start, SentBefore: &rng.End})
		if err != nil {
			return fmt.Errorf("load period notifications: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		unread, err = e.store.FindMany(gctx, datastore.Filter{UnreadOnly: true, Limit: b.unreadCap})
		if err != nil {
			return fmt.Errorf("load unread notifications: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result = &notifier.DigestResult{
		Period:                 period,
		StartDate:              rng.Start.Format(time.DateOnly),
		EndDate:                rng.End.Format(time.DateOnly),
		TotalNotifications:     len(periodSet),
		UnreadCount:            len(unread),
		TopSenders:             []string{},
		UrgentNotifications:    []*notifier.Notification{},
		ProcessedNotifications: []*notifier.Notification{},
		Insights:               e.extractor.Insights(period, periodSet, rng),
		GeneratedAt:            now,
	}

	if len(unread) == 0 {
		e.logger.Info("No unread notifications, skipping AI call", "period", period)
		result.Digest = e.catalog.NothingToDigest
		return result, nil
	}

	result.UrgentNotifications = insight.ClassifyUrgent(unread)
	result.TopSenders = insight.RankSenders(unread, b.topSenders, insight.ByEmail)

	system, user := buildPrompt(e.catalog, promptInput{
		period:     period,
		rng:        rng,
		periodSize: len(periodSet),
		unread:     unread,
		urgent:     result.UrgentNotifications,
		topSenders: result.TopSenders,
		insights:   result.Insights,
		budget:     b,
	})

	resp, err := e.completer.Complete(ctx, notifier.CompletionRequest{
		Model: e.model,
		Messages: []notifier.ChatMessage{
			{Role: notifier.RoleSystem, Content: system},
			{Role: notifier.RoleUser, Content: user},
		},
		MaxTokens:   b.maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s digest: %w", period, err)
	}
	result.Digest = resp.Text
	if result.Digest == "" {
		result.Digest = e.catalog.DigestUnavailable
	}

	if markUrgentAsRead && len(result.UrgentNotifications) > 0 {
		if _, err := e.markRead(ctx, result.UrgentNotifications, e.now()); err != nil {
			return nil, fmt.Errorf("mark urgent notifications read: %w", err)
		}
		result.ProcessedNotifications = result.UrgentNotifications
	}

	e.logger.Info("Digest generated",
		"period", period,
		"total_notifications", result.TotalNotifications,
		"unread_count", result.UnreadCount,
		"urgent_count", len(result.UrgentNotifications),
		"processed_count", len(result.ProcessedNotifications))
	return result, nil
}

// markRead issues one batched update for exactly the given notifications and
// reflects the stored read_at on them. When some rows were already read, the
// batch is re-read so each keeps the read_at the store holds.
func (e *Engine) markRead(ctx context.Context, list []*notifier.Notification, readAt time.Time) (int64, error) {
	ids := make([]int64, len(list))
	for i, n := range list {
		ids[i] = n.ID
	}
	updated, err := e.store.UpdateMany(ctx, ids, readAt)
	if err != nil {
		return 0, err
	}
	if int(updated) == len(ids) {
		for _, n := range list {
			at := readAt
			if at.Before(n.SentAt) {
				at = n.SentAt
			}
			n.ReadAt = &at
		}
		return updated, nil
	}

	e.logger.Warn("Some notifications were already read", "requested", len(ids), "updated", updated)
	stored, err := e.store.FindMany(ctx, datastore.Filter{IDs: ids})
	if err != nil {
		return updated, fmt.Errorf("reload marked notifications: %w", err)
	}
	byID := make(map[int64]*notifier.Notification, len(stored))
	for _, n := range stored {
		byID[n.ID] = n
	}
	for _, n := range list {
		if s, ok := byID[n.ID]; ok {
			n.ReadAt = s.ReadAt
		}
	}
	return updated, nil
}
