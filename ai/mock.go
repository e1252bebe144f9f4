package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

// MockCompleter answers every prompt locally. Used for development.
type MockCompleter struct {
	logger *slog.Logger

	mu    sync.Mutex
	calls []notifier.CompletionRequest
}

// NewMockCompleter creates a MockCompleter.
func NewMockCompleter(logger *slog.Logger) *MockCompleter {
	return &MockCompleter{logger: logger}
}

// Complete records the request and returns a short canned answer.
func (m *MockCompleter) Complete(_ context.Context, req notifier.CompletionRequest) (*notifier.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	var chars int
	for _, msg := range req.Messages {
		chars += len(msg.Content)
	}
	m.logger.Info("MOCK AI COMPLETION", "messages", len(req.Messages), "prompt_chars", chars)

	return &notifier.Completion{
		Text: fmt.Sprintf("[mock] resumo gerado a partir de %d mensagens (%d caracteres)", len(req.Messages), chars),
	}, nil
}

// Calls returns the requests received so far.
func (m *MockCompleter) Calls() []notifier.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifier.CompletionRequest(nil), m.calls...)
}
