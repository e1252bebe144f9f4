package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/locale"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

// Defaults for free-form generation.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

const summaryBodyLimit = 200

// Model describes a model exposed by GET /ai/models.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

var catalog = []Model{
	{ID: "@cf/meta/llama-3.1-8b-instruct", Name: "Llama 3.1 8B Instruct", Description: "Modelo de conversação geral", Type: "chat"},
	{ID: "@cf/microsoft/phi-2", Name: "Phi-2", Description: "Modelo compacto e eficiente", Type: "chat"},
	{ID: "@cf/mistral/mistral-7b-instruct-v0.1", Name: "Mistral 7B Instruct", Description: "Modelo multilíngue", Type: "chat"},
}

// Models returns the default model first, followed by the rest of the catalog.
func Models(defaultModel string) []Model {
	out := make([]Model, 0, len(catalog)+1)
	for _, m := range catalog {
		if m.ID == defaultModel {
			out = append(out, m)
		}
	}
	if len(out) == 0 && defaultModel != "" {
		out = append(out, Model{ID: defaultModel, Name: defaultModel, Description: "Modelo configurado", Type: "chat"})
	}
	for _, m := range catalog {
		if m.ID != defaultModel {
			out = append(out, m)
		}
	}
	return out
}

// Assistant builds notification prompts on top of a Completer.
type Assistant struct {
	completer Completer
	catalog   *locale.Catalog
	logger    *slog.Logger
}

// NewAssistant creates an Assistant.
func NewAssistant(completer Completer, catalog *locale.Catalog, logger *slog.Logger) *Assistant {
	return &Assistant{completer: completer, catalog: catalog, logger: logger}
}

// Generate runs a free-form prompt, filling in the default budget.
func (a *Assistant) Generate(ctx context.Context, req notifier.CompletionRequest) (*notifier.Completion, error) {
	if len(req.Messages) == 0 {
		return nil, &notifier.ValidationError{Field: "messages", Message: "É necessário fornecer pelo menos uma mensagem"}
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if req.Temperature <= 0 {
		req.Temperature = DefaultTemperature
	}
	return a.completer.Complete(ctx, req)
}

// NotificationDraft is a generated notification.
type NotificationDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// GenerateRequest asks for a notification draft.
type GenerateRequest struct {
	Context  string `json:"context"`
	Type     string `json:"type"` // email, sms or push
	Tone     string `json:"tone"`
	Language string `json:"language"`
}

// Generated is the outcome of notification generation: Parsed or Unparsable.
type Generated interface {
	Draft() NotificationDraft
}

// Parsed holds a draft decoded from the model's JSON answer.
type Parsed struct {
	Value NotificationDraft
}

// Draft returns the decoded draft.
func (p Parsed) Draft() NotificationDraft { return p.Value }

// Unparsable holds a model answer that was not the requested JSON.
type Unparsable struct {
	Raw      string
	Fallback NotificationDraft
}

// Draft returns the fallback draft built from the raw answer.
func (u Unparsable) Draft() NotificationDraft { return u.Fallback }

// GenerateNotification asks the model for a notification and decodes its JSON answer.
func (a *Assistant) GenerateNotification(ctx context.Context, req GenerateRequest) (Generated, error) {
	if strings.TrimSpace(req.Context) == "" {
		return nil, &notifier.ValidationError{Field: "context", Message: "Contexto é obrigatório para gerar notificação"}
	}
	if req.Tone == "" {
		req.Tone = "friendly"
	}
	if req.Language == "" {
		req.Language = a.catalog.Tag
	}
	switch req.Type {
	case "":
		req.Type = "email"
	case "email", "sms", "push":
	default:
		return nil, &notifier.ValidationError{Field: "type", Message: fmt.Sprintf("unknown notification type %q", req.Type)}
	}

	system := fmt.Sprintf(`Você é um assistente especializado em criar notificações %s profissionais.

Diretrizes:
- Tom: %s
- Idioma: %s
- Tipo: %s
- Seja conciso e claro
- Use formatação adequada
- Para email: inclua assunto e corpo
- Para SMS: máximo 160 caracteres
- Para push: máximo 50 caracteres no título e 100 no corpo

Retorne apenas o conteúdo da notificação no seguinte formato JSON:
{
  "subject": "assunto aqui (para email)",
  "body": "corpo da mensagem aqui"
}`, req.Type, req.Tone, req.Language, req.Type)

	resp, err := a.completer.Complete(ctx, notifier.CompletionRequest{
		Messages: []notifier.ChatMessage{
			{Role: notifier.RoleSystem, Content: system},
			{Role: notifier.RoleUser, Content: "Contexto: " + req.Context},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("generate notification: %w", err)
	}

	return a.parseDraft(resp.Text, req.Type), nil
}

func (a *Assistant) parseDraft(raw, kind string) Generated {
	var draft NotificationDraft
	if body := extractJSON(raw); body != "" {
		if err := json.Unmarshal([]byte(body), &draft); err == nil && draft.Body != "" {
			return Parsed{Value: draft}
		}
	}

	a.logger.Warn("AI answer is not a notification JSON, using raw text", "length", len(raw))
	fallback := NotificationDraft{Subject: a.catalog.DefaultSubject, Body: raw}
	if kind == "sms" {
		fallback.Subject = ""
	}
	if strings.TrimSpace(raw) == "" {
		fallback.Body = a.catalog.DigestUnavailable
	}
	return Unparsable{Raw: raw, Fallback: fallback}
}

// extractJSON returns the outermost {...} block of s, tolerating code fences
// and prose around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// Summary is the result of Summarize.
type Summary struct {
	Summary            string `json:"summary"`
	Timeframe          string `json:"timeframe"`
	TotalNotifications int    `json:"total_notifications"`
}

type summaryItem struct {
	Subject string  `json:"assunto"`
	Sender  string  `json:"remetente"`
	Email   string  `json:"email"`
	SentAt  string  `json:"enviado_em"`
	ReadAt  *string `json:"lido_em"`
	Body    string  `json:"corpo"`
}

// Summarize writes an executive summary of caller-supplied notifications.
func (a *Assistant) Summarize(ctx context.Context, list []*notifier.Notification, timeframe string) (*Summary, error) {
	if len(list) == 0 {
		return nil, &notifier.ValidationError{Field: "notifications", Message: "É necessário fornecer pelo menos uma notificação para resumir"}
	}
	switch timeframe {
	case "":
		timeframe = "today"
	case "today", "week", "month":
	default:
		return nil, &notifier.ValidationError{Field: "timeframe", Message: fmt.Sprintf("unknown timeframe %q", timeframe)}
	}

	items := make([]summaryItem, len(list))
	for i, n := range list {
		items[i] = summaryItem{
			Subject: n.Subject,
			Sender:  n.Name,
			Email:   n.Email,
			SentAt:  n.SentAt.Format(time.RFC3339),
			Body:    truncateRunes(n.Body, summaryBodyLimit),
		}
		if n.ReadAt != nil {
			s := n.ReadAt.Format(time.RFC3339)
			items[i].ReadAt = &s
		}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal notifications: %w", err)
	}

	system := `Você é um assistente que cria resumos executivos de notificações.

Analise as notificações fornecidas e crie um resumo executivo incluindo:
1. Número total de notificações
2. Principais remetentes
3. Assuntos mais comuns
4. Taxa de abertura
5. Tendências importantes
6. Ações recomendadas

Seja conciso e focado em insights úteis para gestão.`

	resp, err := a.completer.Complete(ctx, notifier.CompletionRequest{
		Messages: []notifier.ChatMessage{
			{Role: notifier.RoleSystem, Content: system},
			{Role: notifier.RoleUser, Content: fmt.Sprintf("Resumir notificações do período: %s\n\nDados das notificações:\n%s", timeframe, data)},
		},
		MaxTokens:   800,
		Temperature: 0.5,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize notifications: %w", err)
	}

	text := resp.Text
	if text == "" {
		text = a.catalog.DigestUnavailable
	}
	return &Summary{Summary: text, Timeframe: timeframe, TotalNotifications: len(list)}, nil
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
