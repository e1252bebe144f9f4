// Package alert reports scheduled job failures to chat services and Sentry.
package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/getsentry/sentry-go"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// Alerter reports a failed job.
type Alerter interface {
	Alert(ctx context.Context, job string, err error) error
}

// sender is the part of the shoutrrr router used here.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Shoutrrr sends alerts to every configured shoutrrr URL.
type Shoutrrr struct {
	sender sender
	title  string
	logger *slog.Logger
}

// NewShoutrrr builds an alerter for urls.
func NewShoutrrr(urls []string, title string, timeout time.Duration, logger *slog.Logger) (*Shoutrrr, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one URL is required")
	}
	s, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("create shoutrrr sender: %w", err)
	}
	return newShoutrrr(s, title, timeout, logger), nil
}

func newShoutrrr(s *router.ServiceRouter, title string, timeout time.Duration, logger *slog.Logger) *Shoutrrr {
	if timeout > 0 {
		s.Timeout = timeout
	}
	s.SetLogger(log.New(io.Discard, "", 0))
	return &Shoutrrr{sender: s, title: title, logger: logger}
}

// Alert sends a one-line message naming job and err.
func (s *Shoutrrr) Alert(_ context.Context, job string, jobErr error) error {
	params := stypes.Params{}
	params.SetTitle(s.title)
	msg := fmt.Sprintf("Job %s failed: %v", job, jobErr)

	for _, e := range s.sender.Send(msg, &params) {
		if e != nil {
			s.logger.Warn("Shoutrrr alert failed", "job", job, "error", e)
			return fmt.Errorf("send shoutrrr alert: %w", e)
		}
	}
	s.logger.Info("Alert sent", "job", job, "channel", "shoutrrr")
	return nil
}

// Sentry captures job failures as Sentry events.
type Sentry struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// NewSentry creates a Sentry alerter. A nil transport uses the default HTTP transport.
func NewSentry(dsn, environment, release string, transport sentry.Transport, logger *slog.Logger) (*Sentry, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          "negra-midia-notification@" + release,
		SampleRate:       1.0,
		AttachStacktrace: true,
		ServerName:       "",
		Transport:        transport,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope()), logger: logger}, nil
}

// Alert captures err tagged with job.
func (s *Sentry) Alert(_ context.Context, job string, jobErr error) error {
	var id *sentry.EventID
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job", job)
		scope.SetLevel(sentry.LevelError)
		id = s.hub.CaptureException(jobErr)
	})
	if id == nil {
		return errors.New("sentry dropped event")
	}
	s.logger.Info("Alert sent", "job", job, "channel", "sentry", "event_id", string(*id))
	return nil
}

// Flush waits for queued events.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

// Multi fans an alert out to several alerters and joins their errors.
type Multi []Alerter

// Alert calls every alerter.
func (m Multi) Alert(ctx context.Context, job string, err error) error {
	var errs []error
	for _, a := range m {
		if aerr := a.Alert(ctx, job, err); aerr != nil {
			errs = append(errs, aerr)
		}
	}
	return errors.Join(errs...)
}

// Flush waits for queued events of every member that buffers them.
func (m Multi) Flush(timeout time.Duration) bool {
	ok := true
	for _, a := range m {
		if f, isFlusher := a.(interface{ Flush(time.Duration) bool }); isFlusher {
			ok = f.Flush(timeout) && ok
		}
	}
	return ok
}

// New builds the alerters enabled by cfg. It returns nil when none is configured.
func New(cfg *config.Config, logger *slog.Logger) (Alerter, error) {
	var m Multi
	if len(cfg.Alerts.ShoutrrrURLs) > 0 {
		s, err := NewShoutrrr(cfg.Alerts.ShoutrrrURLs, "Negra Mídia notification service", 10*time.Second, logger)
		if err != nil {
			return nil, err
		}
		m = append(m, s)
	}
	if cfg.Alerts.SentryDSN != "" {
		s, err := NewSentry(cfg.Alerts.SentryDSN, cfg.Environment, cfg.Version, nil, logger)
		if err != nil {
			return nil, err
		}
		m = append(m, s)
	}
	switch len(m) {
	case 0:
		return nil, nil
	case 1:
		return m[0], nil
	}
	return m, nil
}
