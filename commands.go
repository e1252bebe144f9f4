package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/datastore"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/bytesforge-consulting/negra-midia-notification/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the digest scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			var runner *scheduler.Runner
			if cfg.Scheduler.Enabled {
				runner, err = scheduler.NewRunner(a.dispatcher, cfg.Location(), logger)
				if err != nil {
					return fmt.Errorf("start scheduler: %w", err)
				}
				runner.Start()
			} else {
				logger.Info("In-process scheduler disabled, relying on POST /scheduled")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.server().ListenAndServe(gctx, cfg.Server.Port)
			})
			if runner != nil {
				g.Go(func() error {
					<-gctx.Done()
					stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
					defer cancel()
					return runner.Stop(stopCtx)
				})
			}

			err = g.Wait()
			logger.Info("Service stopped")
			return err
		},
	}
}

func newDigestCmd(opts *rootOptions) *cobra.Command {
	var (
		period     string
		markUrgent bool
		send       bool
	)
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Generate one digest and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := notifier.ParsePeriod(period)
			if err != nil {
				return err
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.engine.Generate(cmd.Context(), p, markUrgent)
			if err != nil {
				return fmt.Errorf("generate digest: %w", err)
			}
			if send {
				id, err := a.mailer.SendDigest(cmd.Context(), d)
				if err != nil {
					return fmt.Errorf("send digest: %w", err)
				}
				logger.Info("Digest sent", "id", id)
			}

			enc := json.NewEncoder(opts.out)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	cmd.Flags().StringVar(&period, "period", string(notifier.Daily), "daily, weekly or monthly")
	cmd.Flags().BoolVar(&markUrgent, "mark-urgent", false, "mark urgent notifications as read")
	cmd.Flags().BoolVar(&send, "send", false, "email the digest to the configured recipients")
	return cmd
}

func newTriggerCmd(opts *rootOptions) *cobra.Command {
	var (
		expr string
		at   string
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run the job bound to a cron expression, as the scheduler would",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			when := time.Now().In(cfg.Location())
			if at != "" {
				if when, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			err = a.dispatcher.Dispatch(cmd.Context(), expr, when)
			var unknown *notifier.UnrecognizedScheduleError
			if errors.As(err, &unknown) {
				fmt.Fprintf(opts.out, "no job is scheduled for %q\n", expr)
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&expr, "cron", "", "cron expression of the job to run")
	cmd.Flags().StringVar(&at, "at", "", "scheduled time (RFC3339), defaults to now")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the notifications table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			store, err := datastore.Open(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("Failed to close store", "error", err)
				}
			}()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(opts.out, "notifications table is up to date")
			return nil
		},
	}
}
