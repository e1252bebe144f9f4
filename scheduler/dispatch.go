package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/robfig/cron/v3"
)

// JobFunc is a scheduled entry point.
type JobFunc func(ctx context.Context, triggerTime time.Time) error

// Dispatcher maps trigger expressions to jobs.
type Dispatcher struct {
	jobs   map[string]JobFunc
	logger *slog.Logger
}

// NewDispatcher maps the configured cron expressions to the scheduler's jobs.
// Expressions must parse and be distinct.
func NewDispatcher(s *Scheduler, cfg config.SchedulerConfig, logger *slog.Logger) (*Dispatcher, error) {
	d := &Dispatcher{jobs: map[string]JobFunc{}, logger: logger}
	for _, e := range []struct {
		name string
		expr string
		job  JobFunc
	}{
		{"daily", cfg.Daily, s.ExecuteDailyJob},
		{"weekly", cfg.Weekly, s.ExecuteWeeklyJob},
		{"monthly", cfg.Monthly, s.ExecuteMonthlyJob},
	} {
		if e.expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(e.expr); err != nil {
			return nil, fmt.Errorf("parse %s schedule %q: %w", e.name, e.expr, err)
		}
		if _, dup := d.jobs[e.expr]; dup {
			return nil, fmt.Errorf("schedule %q is used by more than one job", e.expr)
		}
		d.jobs[e.expr] = e.job
	}
	return d, nil
}

// Triggers returns the registered expressions in stable order.
func (d *Dispatcher) Triggers() []string {
	out := make([]string, 0, len(d.jobs))
	for expr := range d.jobs {
		out = append(out, expr)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the job registered for trigger. An unknown trigger yields
// *notifier.UnrecognizedScheduleError, which callers log and ignore.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger string, scheduledTime time.Time) error {
	job, ok := d.jobs[trigger]
	if !ok {
		d.logger.Warn("Unrecognized schedule", "trigger", trigger)
		return &notifier.UnrecognizedScheduleError{Trigger: trigger}
	}
	d.logger.Info("Dispatching scheduled job", "trigger", trigger, "scheduled_time", scheduledTime.Format(time.RFC3339))
	return job(ctx, scheduledTime)
}
