package email

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// MockProvider logs emails instead of sending them and keeps them for inspection.
type MockProvider struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []*Message
	err  error
}

// NewMockProvider creates a new mock email provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Name returns the provider name.
func (*MockProvider) Name() string { return "mock" }

// FailWith makes subsequent sends return err.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Send logs the email instead of sending it.
func (m *MockProvider) Send(_ context.Context, msg *Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	id := "mock-" + uuid.NewString()
	m.logger.Info("MOCK EMAIL",
		"id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"body_length", len(msg.HTML))
	return id, nil
}

// Sent returns the messages accepted so far.
func (m *MockProvider) Sent() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Message(nil), m.sent...)
}
