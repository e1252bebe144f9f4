// Package main runs the Negra Mídia notification service: the notification
// API, AI digests and the scheduled digest emails.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}
	cmd := &cobra.Command{
		Use:           "negra-midia-notify",
		Short:         "Notification API with AI digests and scheduled email delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional YAML config file")
	cmd.SetOut(out)

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newDigestCmd(opts))
	cmd.AddCommand(newTriggerCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

// load resolves the configuration and installs the default logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Version == "" || version != "dev" {
		cfg.Version = version
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newLogger logs JSON in production and text in development.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
