// Package email delivers digests through pluggable email providers.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Message is a single outgoing email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string // plain-text alternative, optional
}

// Provider sends an email and returns the provider's message id.
type Provider interface {
	Send(ctx context.Context, msg *Message) (string, error)
	Name() string
}

// NewProvider builds the provider selected by cfg.
func NewProvider(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case "resend":
		return NewResendProvider(cfg.APIKey, cfg.From, cfg.FromName, logger), nil
	case "brevo":
		return NewBrevoProvider(cfg.APIKey, cfg.From, cfg.FromName, logger), nil
	case "gmail":
		svc, err := gmail.NewService(ctx,
			option.WithCredentialsJSON([]byte(cfg.GoogleCredentialsJSON)),
			option.WithScopes(gmail.GmailSendScope))
		if err != nil {
			return nil, fmt.Errorf("create gmail service: %w", err)
		}
		return NewGmailProvider(svc, logger), nil
	case "mock", "":
		return NewMockProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// sanitizeEmailHeader removes newlines and control characters to prevent header injection.
func sanitizeEmailHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func sanitizeRecipients(to []string) []string {
	out := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(sanitizeEmailHeader(addr)); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// formatFrom renders "Name <addr>" or just addr.
func formatFrom(addr, name string) string {
	addr = sanitizeEmailHeader(addr)
	name = sanitizeEmailHeader(name)
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

// statusError is a non-2xx provider response.
type statusError struct {
	provider string
	code     int
	body     string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.provider, e.code)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.provider, e.code, e.body)
}

// retryable reports whether a response status is worth another attempt.
func retryable(code int) bool {
	return code == 429 || code >= 500
}
