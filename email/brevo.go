package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoProvider sends emails via Brevo (formerly Sendinblue) API.
type BrevoProvider struct {
	apiKey     string
	fromAddr   string
	fromName   string
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewBrevoProvider creates a new Brevo email provider.
func NewBrevoProvider(apiKey, fromAddr, fromName string, logger *slog.Logger) *BrevoProvider {
	return &BrevoProvider{
		apiKey:     apiKey,
		fromAddr:   fromAddr,
		fromName:   fromName,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		retryDelay: time.Second,
	}
}

type brevoSendRequest struct {
	Sender  brevoContact   `json:"sender"`
	To      []brevoContact `json:"to"`
	ReplyTo *brevoContact  `json:"replyTo,omitempty"`
	Subject string         `json:"subject"`
	HTML    string         `json:"htmlContent"`
	Text    string         `json:"textContent,omitempty"`
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoSendResponse struct {
	MessageID string `json:"messageId"`
}

// Name returns the provider name.
func (*BrevoProvider) Name() string { return "brevo" }

// Send sends an email via Brevo API.
func (b *BrevoProvider) Send(ctx context.Context, msg *Message) (string, error) {
	to := sanitizeRecipients(msg.To)
	if len(to) == 0 {
		return "", fmt.Errorf("brevo: no recipients")
	}
	subject := sanitizeEmailHeader(msg.Subject)

	reqBody := brevoSendRequest{
		Sender:  brevoContact{Email: sanitizeEmailHeader(b.fromAddr), Name: sanitizeEmailHeader(b.fromName)},
		ReplyTo: &brevoContact{Email: sanitizeEmailHeader(b.fromAddr)},
		Subject: subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	for _, addr := range to {
		reqBody.To = append(reqBody.To, brevoContact{Email: addr})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var id string
	err = retry.Do(
		func() error {
			b.logger.Info("Brevo API request starting",
				"method", "POST",
				"endpoint", "smtp/email",
				"to", to,
				"subject", subject)

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoEndpoint, bytes.NewReader(jsonData))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
			req.Header.Set("api-key", b.apiKey)

			resp, err := b.client.Do(req)
			duration := time.Since(startTime)
			if err != nil {
				b.logger.Warn("Brevo API request failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					b.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				serr := &statusError{provider: "brevo", code: resp.StatusCode, body: string(body)}
				if !retryable(resp.StatusCode) {
					b.logger.Error("Brevo API rejected email", "status_code", resp.StatusCode, "to", to)
					return retry.Unrecoverable(serr)
				}
				b.logger.Warn("Brevo API returned non-2xx status, will retry",
					"status_code", resp.StatusCode,
					"to", to)
				return serr
			}

			var out brevoSendResponse
			if len(body) > 0 {
				if err := json.Unmarshal(body, &out); err != nil {
					b.logger.Warn("Brevo API response not decodable", "error", err)
				}
			}
			id = out.MessageID

			b.logger.Info("Brevo API request completed",
				"endpoint", "smtp/email",
				"to", to,
				"id", id,
				"duration_ms", duration.Milliseconds(),
				"status", "success")
			return nil
		},
		retry.Attempts(3),
		retry.Delay(b.retryDelay),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(b.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("Retrying Brevo email send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}
