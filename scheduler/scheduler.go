// Package scheduler runs the periodic digest jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

const previewLen = 200

// Job outcomes recorded per run.
const (
	OutcomeSuccess        = "success"
	OutcomeDigestFailed   = "digest_failed"
	OutcomeDeliveryFailed = "delivery_failed"
	OutcomePanic          = "panic"
)

// Generator produces digests.
type Generator interface {
	Generate(ctx context.Context, period notifier.Period, markUrgentAsRead bool) (*notifier.DigestResult, error)
}

// Deliverer sends a digest and returns the message id.
type Deliverer interface {
	SendDigest(ctx context.Context, d *notifier.DigestResult) (string, error)
}

// Archiver stores generated digests.
type Archiver interface {
	Save(ctx context.Context, d *notifier.DigestResult) (string, error)
}

// Alerter reports failed jobs.
type Alerter interface {
	Alert(ctx context.Context, job string, err error) error
}

// Recorder observes job runs.
type Recorder interface {
	ObserveJob(job, outcome string, d time.Duration)
}

// Config holds scheduler dependencies. Archiver, Alerter and Recorder are optional.
type Config struct {
	Generator Generator
	Deliverer Deliverer
	Archiver  Archiver
	Alerter   Alerter
	Recorder  Recorder
	Logger    *slog.Logger
}

// Scheduler runs one digest pipeline per job invocation.
type Scheduler struct {
	generator Generator
	deliverer Deliverer
	archiver  Archiver
	alerter   Alerter
	recorder  Recorder
	logger    *slog.Logger
}

// New creates a Scheduler.
func New(cfg *Config) *Scheduler {
	return &Scheduler{
		generator: cfg.Generator,
		deliverer: cfg.Deliverer,
		archiver:  cfg.Archiver,
		alerter:   cfg.Alerter,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
	}
}

// ExecuteDailyJob generates and sends the daily digest without marking anything read.
func (s *Scheduler) ExecuteDailyJob(ctx context.Context, triggerTime time.Time) error {
	return s.run(ctx, notifier.Daily, false, triggerTime)
}

// ExecuteWeeklyJob generates and sends the weekly digest, marking urgent notifications read.
func (s *Scheduler) ExecuteWeeklyJob(ctx context.Context, triggerTime time.Time) error {
	return s.run(ctx, notifier.Weekly, true, triggerTime)
}

// ExecuteMonthlyJob generates and sends the monthly digest, marking urgent notifications read.
func (s *Scheduler) ExecuteMonthlyJob(ctx context.Context, triggerTime time.Time) error {
	return s.run(ctx, notifier.Monthly, true, triggerTime)
}

// run executes one job. Digest and delivery failures are logged, alerted
// and recorded but do not fail the job; only a panic is returned.
func (s *Scheduler) run(ctx context.Context, period notifier.Period, mark bool, triggerTime time.Time) (err error) {
	job := string(period)
	started := time.Now()
	outcome := OutcomeSuccess

	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomePanic
			err = fmt.Errorf("job %s panicked: %v", job, r)
			s.logger.Error("Job panicked", "job", job, "panic", r, "stack", string(debug.Stack()))
			s.alert(ctx, job, err)
		}
		if s.recorder != nil {
			s.recorder.ObserveJob(job, outcome, time.Since(started))
		}
		s.logger.Info("Job finished",
			"job", job,
			"outcome", outcome,
			"duration_ms", time.Since(started).Milliseconds())
	}()

	s.logger.Info("Job started",
		"job", job,
		"trigger_time", triggerTime.Format(time.RFC3339),
		"mark_urgent_as_read", mark)

	d, genErr := s.generator.Generate(ctx, period, mark)
	if genErr != nil {
		outcome = OutcomeDigestFailed
		s.logger.Error("Digest generation failed, skipping delivery", "job", job, "error", genErr)
		s.alert(ctx, job, fmt.Errorf("generate digest: %w", genErr))
		return nil
	}

	s.logger.Info("Digest generated",
		"job", job,
		"total_notifications", d.TotalNotifications,
		"urgent_count", len(d.UrgentNotifications),
		"processed_count", len(d.ProcessedNotifications),
		"preview", preview(d.Digest))

	if s.archiver != nil {
		if key, archErr := s.archiver.Save(ctx, d); archErr != nil {
			s.logger.Warn("Failed to archive digest", "job", job, "error", archErr)
		} else {
			s.logger.Info("Digest archived", "job", job, "key", key)
		}
	}

	id, sendErr := s.deliverer.SendDigest(ctx, d)
	if sendErr != nil {
		outcome = OutcomeDeliveryFailed
		s.logger.Error("Digest delivery failed", "job", job, "error", sendErr)
		s.alert(ctx, job, fmt.Errorf("deliver digest: %w", sendErr))
		return nil
	}
	s.logger.Info("Digest delivered", "job", job, "id", id)
	return nil
}

func (s *Scheduler) alert(ctx context.Context, job string, err error) {
	if s.alerter == nil {
		return
	}
	if aerr := s.alerter.Alert(ctx, job, err); aerr != nil {
		s.logger.Warn("Failed to send alert", "job", job, "error", aerr)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}
