// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/locale"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Supported locales.
const (
	LocalePTBR = locale.PTBR
	LocaleENUS = locale.ENUS
)

// Config is resolved once at startup and passed to every component.
type Config struct {
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Locale      string `mapstructure:"locale"`
	Timezone    string `mapstructure:"timezone"`

	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	AI        AIConfig        `mapstructure:"ai"`
	Email     EmailConfig     `mapstructure:"email"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`

	location *time.Location
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port              string        `mapstructure:"port"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	BasicAuthUser     string        `mapstructure:"basic_auth_user"`
	BasicAuthPassword string        `mapstructure:"basic_auth_password"`
	APIRatePerMinute  int           `mapstructure:"api_rate_per_minute"`
	AIRatePerMinute   int           `mapstructure:"ai_rate_per_minute"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the notification store backend.
type DatabaseConfig struct {
	Driver        string        `mapstructure:"driver"` // sqlite or mysql
	DSN           string        `mapstructure:"dsn"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// AIConfig configures the text-completion backend.
type AIConfig struct {
	Provider string        `mapstructure:"provider"` // openai or mock
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EmailConfig configures digest delivery.
type EmailConfig struct {
	Provider              string   `mapstructure:"provider"` // resend, brevo, gmail or mock
	APIKey                string   `mapstructure:"api_key"`
	From                  string   `mapstructure:"from"`
	FromName              string   `mapstructure:"from_name"`
	DigestTo              []string `mapstructure:"digest_to"`
	GoogleCredentialsJSON string   `mapstructure:"google_credentials_json"`
	TemplateDir           string   `mapstructure:"template_dir"`
}

// ArchiveConfig selects where generated digests are archived.
// Bucket wins over LocalPath; neither disables archiving.
type ArchiveConfig struct {
	Bucket    string `mapstructure:"bucket"`
	LocalPath string `mapstructure:"local_path"`
}

// SchedulerConfig holds the cron expressions of the digest jobs.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Daily   string `mapstructure:"daily"`
	Weekly  string `mapstructure:"weekly"`
	Monthly string `mapstructure:"monthly"`
}

// AlertsConfig configures job failure alerts.
type AlertsConfig struct {
	ShoutrrrURLs []string `mapstructure:"shoutrrr_urls"`
	SentryDSN    string   `mapstructure:"sentry_dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("locale", LocalePTBR)
	v.SetDefault("timezone", "America/Sao_Paulo")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.basic_auth_user", "")
	v.SetDefault("server.basic_auth_password", "")
	v.SetDefault("server.api_rate_per_minute", 100)
	v.SetDefault("server.ai_rate_per_minute", 10)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "notifications.db")
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "@cf/meta/llama-3.1-8b-instruct")
	v.SetDefault("ai.timeout", 60*time.Second)

	v.SetDefault("email.provider", "mock")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.from", "noreply@negramidia.com.br")
	v.SetDefault("email.from_name", "Negra Mídia")
	v.SetDefault("email.digest_to", []string{})
	v.SetDefault("email.google_credentials_json", "")
	v.SetDefault("email.template_dir", "")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.local_path", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.daily", "0 3 * * *")
	v.SetDefault("scheduler.weekly", "0 3 * * 1")
	v.SetDefault("scheduler.monthly", "0 3 1 * *")

	v.SetDefault("alerts.shoutrrr_urls", []string{})
	v.SetDefault("alerts.sentry_dsn", "")
}

// Load resolves the configuration. configFile may be empty.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and resolves the timezone.
func (c *Config) Validate() error {
	var errs []error

	if c.Locale != LocalePTBR && c.Locale != LocaleENUS {
		errs = append(errs, fmt.Errorf("locale %q not supported", c.Locale))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	} else {
		c.location = loc
	}

	if !slices.Contains([]string{"sqlite", "mysql"}, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("database driver %q not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}

	switch c.AI.Provider {
	case "openai":
		if c.AI.APIKey == "" {
			errs = append(errs, errors.New("ai api_key is required for the openai provider"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("ai provider %q not supported", c.AI.Provider))
	}

	switch c.Email.Provider {
	case "resend", "brevo":
		if c.Email.APIKey == "" {
			errs = append(errs, fmt.Errorf("email api_key is required for the %s provider", c.Email.Provider))
		}
	case "gmail":
		if c.Email.GoogleCredentialsJSON == "" {
			errs = append(errs, errors.New("email google_credentials_json is required for the gmail provider"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("email provider %q not supported", c.Email.Provider))
	}

	for name, expr := range map[string]string{
		"daily":   c.Scheduler.Daily,
		"weekly":  c.Scheduler.Weekly,
		"monthly": c.Scheduler.Monthly,
	} {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			errs = append(errs, fmt.Errorf("scheduler %s %q: %w", name, expr, err))
		}
	}

	if c.Server.APIRatePerMinute <= 0 || c.Server.AIRatePerMinute <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the timezone used for date ranges and cron schedules.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
