package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/bytesforge-consulting/negra-midia-notification/ai"
	"github.com/bytesforge-consulting/negra-midia-notification/alert"
	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/bytesforge-consulting/negra-midia-notification/datastore"
	"github.com/bytesforge-consulting/negra-midia-notification/digest"
	"github.com/bytesforge-consulting/negra-midia-notification/email"
	"github.com/bytesforge-consulting/negra-midia-notification/locale"
	"github.com/bytesforge-consulting/negra-midia-notification/metrics"
	"github.com/bytesforge-consulting/negra-midia-notification/scheduler"
	"github.com/bytesforge-consulting/negra-midia-notification/server"
	archive "github.com/bytesforge-consulting/negra-midia-notification/storage"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *datastore.Store
	completer  ai.Completer
	assistant  *ai.Assistant
	engine     *digest.Engine
	mailer     *email.DigestMailer
	archive    *archive.Archive // nil when archiving is disabled
	alerter    alert.Alerter    // nil when no alert channel is configured
	metrics    *metrics.Metrics
	scheduler  *scheduler.Scheduler
	dispatcher *scheduler.Dispatcher

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.metrics, err = metrics.New()
	if err != nil {
		return nil, err
	}

	a.store, err = datastore.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open notification store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	catalog := locale.For(cfg.Locale)
	loc := cfg.Location()

	switch cfg.AI.Provider {
	case "mock":
		logger.Info("Mock AI mode enabled")
		a.completer = ai.NewMockCompleter(logger)
	default:
		a.completer = ai.NewClient(cfg.AI, logger)
	}
	a.assistant = ai.NewAssistant(a.completer, catalog, logger)

	a.engine = digest.New(&digest.Config{
		Store:     a.store,
		Completer: a.completer,
		Catalog:   catalog,
		Location:  loc,
		Model:     cfg.AI.Model,
		Logger:    logger,
		Recorder:  a.metrics,
	})

	provider, err := email.NewProvider(ctx, cfg.Email, logger)
	if err != nil {
		return nil, err
	}
	var renderer email.Renderer
	tmpl, tmplErr := email.LoadTemplates(cfg.Email.TemplateDir)
	if tmplErr != nil {
		logger.Error("Failed to load email templates, using inline fallback", "dir", cfg.Email.TemplateDir, "error", tmplErr)
		renderer = email.FailingRenderer(tmplErr)
	} else {
		renderer = tmpl
	}
	a.mailer = email.NewDigestMailer(&email.MailerConfig{
		Provider:   provider,
		Renderer:   renderer,
		Catalog:    catalog,
		Location:   loc,
		Recipients: cfg.Email.DigestTo,
		Logger:     logger,
		Recorder:   a.metrics,
	})
	logger.Info("Email provider ready", "provider", provider.Name(), "recipients", len(cfg.Email.DigestTo))

	switch {
	case cfg.Archive.LocalPath != "":
		a.archive = archive.New(nil, "", cfg.Archive.LocalPath, logger)
		logger.Info("Archiving digests locally", "path", cfg.Archive.LocalPath)
	case cfg.Archive.Bucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.archive = archive.New(client, cfg.Archive.Bucket, "", logger)
		logger.Info("Archiving digests to bucket", "bucket", cfg.Archive.Bucket)
	}

	a.alerter, err = alert.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("configure alerts: %w", err)
	}

	schedCfg := &scheduler.Config{
		Generator: a.engine,
		Deliverer: a.mailer,
		Recorder:  a.metrics,
		Logger:    logger,
	}
	// Typed nils must not leak into the optional interfaces.
	if a.archive != nil {
		schedCfg.Archiver = a.archive
	}
	if a.alerter != nil {
		schedCfg.Alerter = a.alerter
	}
	a.scheduler = scheduler.New(schedCfg)

	a.dispatcher, err = scheduler.NewDispatcher(a.scheduler, cfg.Scheduler, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) server() *server.Server {
	cfg := &server.Config{
		Store:      a.store,
		Assistant:  a.assistant,
		Digester:   a.engine,
		Dispatcher: a.dispatcher,
		Recorder:   a.metrics,
		Metrics:    a.metrics.Handler(),
		HTTP:       a.cfg.Server,
		Version:    a.cfg.Version,
		Model:      a.cfg.AI.Model,
		Logger:     a.logger,
	}
	if a.archive != nil {
		cfg.Archive = a.archive
	}
	return server.New(cfg)
}

func (a *app) close() {
	if f, ok := a.alerter.(interface{ Flush(time.Duration) bool }); ok {
		f.Flush(2 * time.Second)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
