package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("Cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("Cron: "+msg, append(keysAndValues, "error", err)...)
}

// Runner fires the dispatcher's triggers on their cron schedules.
type Runner struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewRunner registers every dispatcher trigger in loc.
func NewRunner(d *Dispatcher, loc *time.Location, logger *slog.Logger) (*Runner, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{cron: c, ctx: ctx, cancel: cancel, logger: logger}

	for _, expr := range d.Triggers() {
		if _, err := c.AddFunc(expr, func() {
			if err := d.Dispatch(r.ctx, expr, time.Now().In(loc)); err != nil {
				logger.Error("Scheduled job failed", "trigger", expr, "error", err)
			}
		}); err != nil {
			cancel()
			return nil, err
		}
		logger.Info("Scheduled job registered", "trigger", expr, "timezone", loc.String())
	}
	return r, nil
}

// Start begins firing triggers in the background.
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info("Scheduler started", "entries", len(r.cron.Entries()))
}

// Stop stops new runs and waits for running jobs until ctx is done, then
// cancels their context.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	defer r.cancel()
	select {
	case <-done.Done():
		r.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("Scheduler stop timed out, cancelling running jobs")
		return ctx.Err()
	}
}
