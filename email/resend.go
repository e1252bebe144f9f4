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

const resendEndpoint = "https://api.resend.com/emails"

// ResendProvider sends emails via the Resend API.
type ResendProvider struct {
	apiKey     string
	fromAddr   string
	fromName   string
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewResendProvider creates a new Resend email provider.
func NewResendProvider(apiKey, fromAddr, fromName string, logger *slog.Logger) *ResendProvider {
	return &ResendProvider{
		apiKey:     apiKey,
		fromAddr:   fromAddr,
		fromName:   fromName,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		retryDelay: time.Second,
	}
}

type resendSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendSendResponse struct {
	ID string `json:"id"`
}

// Name returns the provider name.
func (*ResendProvider) Name() string { return "resend" }

// Send sends an email via the Resend API.
func (r *ResendProvider) Send(ctx context.Context, msg *Message) (string, error) {
	to := sanitizeRecipients(msg.To)
	if len(to) == 0 {
		return "", fmt.Errorf("resend: no recipients")
	}
	subject := sanitizeEmailHeader(msg.Subject)

	jsonData, err := json.Marshal(resendSendRequest{
		From:    formatFrom(r.fromAddr, r.fromName),
		To:      to,
		Subject: subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: sanitizeEmailHeader(r.fromAddr),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var id string
	err = retry.Do(
		func() error {
			r.logger.Info("Resend API request starting",
				"method", "POST",
				"endpoint", "emails",
				"to", to,
				"subject", subject)

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(jsonData))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+r.apiKey)

			resp, err := r.client.Do(req)
			duration := time.Since(startTime)
			if err != nil {
				r.logger.Warn("Resend API request failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					r.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				serr := &statusError{provider: "resend", code: resp.StatusCode, body: string(body)}
				if !retryable(resp.StatusCode) {
					r.logger.Error("Resend API rejected email",
						"status_code", resp.StatusCode,
						"to", to,
						"body", string(body))
					return retry.Unrecoverable(serr)
				}
				r.logger.Warn("Resend API returned non-2xx status, will retry",
					"status_code", resp.StatusCode,
					"to", to)
				return serr
			}

			var out resendSendResponse
			if len(body) > 0 {
				if err := json.Unmarshal(body, &out); err != nil {
					r.logger.Warn("Resend API response not decodable", "error", err)
				}
			}
			id = out.ID

			r.logger.Info("Resend API request completed",
				"endpoint", "emails",
				"to", to,
				"id", id,
				"duration_ms", duration.Milliseconds(),
				"status", "success")
			return nil
		},
		retry.Attempts(3),
		retry.Delay(r.retryDelay),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(r.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Info("Retrying Resend email send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}
