package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/ai"
	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/bytesforge-consulting/negra-midia-notification/datastore"
	"github.com/bytesforge-consulting/negra-midia-notification/digest"
	"github.com/bytesforge-consulting/negra-midia-notification/locale"
	"github.com/bytesforge-consulting/negra-midia-notification/metrics"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/bytesforge-consulting/negra-midia-notification/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDispatcher struct {
	triggers []string
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, trigger string, _ time.Time) error {
	f.triggers = append(f.triggers, trigger)
	if trigger != "0 3 * * 1" {
		return &notifier.UnrecognizedScheduleError{Trigger: trigger}
	}
	return f.err
}

type testServer struct {
	srv        *Server
	handler    http.Handler
	store      *datastore.Store
	archive    *storage.Archive
	dispatcher *fakeDispatcher
	metrics    *metrics.Metrics
}

func newTestServer(t *testing.T, mutate func(*config.ServerConfig)) *testServer {
	t.Helper()
	store, err := datastore.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	}, discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m, err := metrics.New()
	require.NoError(t, err)

	catalog := locale.For(locale.PTBR)
	completer := ai.NewMockCompleter(discard)
	archive := storage.New(nil, "", t.TempDir(), discard)
	dispatcher := &fakeDispatcher{}

	httpCfg := config.ServerConfig{
		AllowedOrigins:   []string{"*"},
		APIRatePerMinute: 1000,
		AIRatePerMinute:  1000,
	}
	if mutate != nil {
		mutate(&httpCfg)
	}

	srv := New(&Config{
		Store:     store,
		Assistant: ai.NewAssistant(completer, catalog, discard),
		Digester: digest.New(&digest.Config{
			Store:     store,
			Completer: completer,
			Catalog:   catalog,
			Location:  time.UTC,
			Logger:    discard,
		}),
		Archive:    archive,
		Dispatcher: dispatcher,
		Recorder:   m,
		Metrics:    m.Handler(),
		HTTP:       httpCfg,
		Version:    "1.2.3",
		Model:      "@cf/meta/llama-3.1-8b-instruct",
		Logger:     discard,
	})
	return &testServer{srv: srv, handler: srv.Handler(), store: store, archive: archive, dispatcher: dispatcher, metrics: m}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, target string, body any) (int, response) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = "203.0.113.7:41000"
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func (ts *testServer) create(t *testing.T, name, subject string) *notifier.Notification {
	t.Helper()
	code, resp := ts.do(t, http.MethodPost, "/notifications", notifier.CreateRequest{
		Name:    name,
		Email:   strings.ToLower(name) + "@example.com",
		Phone:   "+55 11 99999-0000",
		Body:    "Mensagem de " + name,
		Subject: subject,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var n notifier.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &n))
	return &n
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	var h health
	require.NoError(t, json.Unmarshal(resp.Data, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Equal(t, []string{"notifications", "ai", "database"}, h.Services)
}

func TestRootAndNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), "Negra Mídia Notify API")

	code, resp = ts.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Endpoint não encontrado", resp.Error)
}

func TestNotificationLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	created := ts.create(t, "Ana", "Orçamento")
	assert.Nil(t, created.ReadAt)

	code, resp := ts.do(t, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, code)
	var list []*notifier.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)

	// Viewing marks it read.
	code, resp = ts.do(t, http.MethodGet, fmt.Sprintf("/notifications/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, code)
	var viewed notifier.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &viewed))
	require.NotNil(t, viewed.ReadAt)

	// Viewing again keeps the first read time.
	_, resp = ts.do(t, http.MethodGet, fmt.Sprintf("/notifications/%d", created.ID), nil)
	var again notifier.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	assert.True(t, viewed.ReadAt.Equal(*again.ReadAt))

	code, resp = ts.do(t, http.MethodPut, fmt.Sprintf("/notifications/%d/read", created.ID), nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Notificação já foi lida", resp.Error)
}

func TestMarkRead(t *testing.T) {
	ts := newTestServer(t, nil)
	created := ts.create(t, "Bruno", "Suporte")

	code, resp := ts.do(t, http.MethodPut, fmt.Sprintf("/notifications/%d/read", created.ID), nil)
	require.Equal(t, http.StatusOK, code)
	var out MarkReadResponse
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, "Notificação marcada como lida", out.Message)
	assert.NotNil(t, out.Notification.ReadAt)

	code, resp = ts.do(t, http.MethodPut, "/notifications/999/read", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Notificação não encontrada", resp.Error)

	code, resp = ts.do(t, http.MethodGet, "/notifications/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ID inválido", resp.Error)
}

func TestCreateValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, http.MethodPost, "/notifications", notifier.CreateRequest{Name: "Ana", Email: "ana@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "Todos os campos são obrigatórios")

	code, resp = ts.do(t, http.MethodPost, "/notifications", notifier.CreateRequest{
		Name: "Ana", Email: "not-an-email", Phone: "1", Body: "b", Subject: "s",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email inválido", resp.Error)

	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaginate(t *testing.T) {
	ts := newTestServer(t, nil)
	for i := range 12 {
		ts.create(t, fmt.Sprintf("Cliente%02d", i), "Pedido")
	}
	ts.create(t, "Zelia", "Outro")

	code, resp := ts.do(t, http.MethodGet, "/notifications/paginate?page=2&limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	var page Page
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Len(t, page.Notifications, 5)
	assert.Equal(t, Pagination{Page: 2, Limit: 5, Total: 13, TotalPages: 3, HasNext: true, HasPrev: true}, page.Pagination)
	assert.Empty(t, page.SearchTerm)

	_, resp = ts.do(t, http.MethodGet, "/notifications/paginate?search=zelia&limit=500&page=0", nil)
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 100, page.Pagination.Limit)
	assert.Equal(t, "zelia", page.SearchTerm)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, "Zelia", page.Notifications[0].Name)
	assert.False(t, page.Pagination.HasNext)
}

func TestAIGenerate(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, http.MethodPost, "/ai/generate", map[string]any{"messages": []any{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "É necessário fornecer pelo menos uma mensagem", resp.Error)

	code, resp = ts.do(t, http.MethodPost, "/ai/generate", notifier.CompletionRequest{
		Messages: []notifier.ChatMessage{{Role: notifier.RoleUser, Content: "Olá"}},
	})
	require.Equal(t, http.StatusOK, code)
	var c notifier.Completion
	require.NoError(t, json.Unmarshal(resp.Data, &c))
	assert.Contains(t, c.Text, "[mock]")
}

func TestAIGenerateNotificationFallsBackToRawText(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, http.MethodPost, "/ai/generate-notification", ai.GenerateRequest{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Contexto é obrigatório para gerar notificação", resp.Error)

	code, resp = ts.do(t, http.MethodPost, "/ai/generate-notification", ai.GenerateRequest{Context: "Promoção de verão"})
	require.Equal(t, http.StatusOK, code)
	var g GeneratedNotification
	require.NoError(t, json.Unmarshal(resp.Data, &g))
	assert.False(t, g.Parsed)
	assert.Equal(t, "Notificação Importante", g.Subject)
	assert.Contains(t, g.Body, "[mock]")
}

func TestAISummarize(t *testing.T) {
	ts := newTestServer(t, nil)

	code, _ := ts.do(t, http.MethodPost, "/ai/summarize-notifications", map[string]any{"notifications": []any{}})
	assert.Equal(t, http.StatusBadRequest, code)

	n := ts.create(t, "Carla", "Parceria")
	code, resp := ts.do(t, http.MethodPost, "/ai/summarize-notifications", map[string]any{
		"notifications": []*notifier.Notification{n},
		"timeframe":     "week",
	})
	require.Equal(t, http.StatusOK, code)
	var sum ai.Summary
	require.NoError(t, json.Unmarshal(resp.Data, &sum))
	assert.Equal(t, "week", sum.Timeframe)
	assert.Equal(t, 1, sum.TotalNotifications)
}

func TestProcessAndAnalyzeUnread(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, name := range []string{"Ana", "Bia", "Caio"} {
		ts.create(t, name, "Urgente: retorno")
	}

	code, resp := ts.do(t, http.MethodPost, "/ai/analyze-unread", map[string]any{"mark_as_read": true})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var res digest.ProcessResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.Equal(t, int64(3), res.TotalUnread)
	assert.Zero(t, res.MarkedAsRead, "analyze never marks")
	assert.Equal(t, 3, res.Insights.UrgentCount)

	code, resp = ts.do(t, http.MethodPost, "/ai/process-unread", map[string]any{"mark_as_read": true, "max_notifications": 2})
	require.Equal(t, http.StatusOK, code, resp.Error)
	res = digest.ProcessResult{}
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.Len(t, res.NotificationsProcessed, 2)
	assert.Equal(t, int64(2), res.MarkedAsRead)

	unread, err := ts.store.Count(context.Background(), datastore.Filter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	code, resp = ts.do(t, http.MethodPost, "/ai/process-unread", map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "explode")
}

func TestDailyDigest(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, http.MethodGet, "/ai/daily-digest", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var d notifier.DigestResult
	require.NoError(t, json.Unmarshal(resp.Data, &d))
	assert.Equal(t, notifier.Daily, d.Period)
	assert.NotEmpty(t, d.Digest)

	code, _ = ts.do(t, http.MethodGet, "/ai/daily-digest?period=yearly", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodGet, "/ai/daily-digest?period=weekly&mark_as_read=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestModels(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, http.MethodGet, "/ai/models", nil)
	require.Equal(t, http.StatusOK, code)
	var models []ai.Model
	require.NoError(t, json.Unmarshal(resp.Data, &models))
	require.NotEmpty(t, models)
	assert.Equal(t, "@cf/meta/llama-3.1-8b-instruct", models[0].ID)
}

func TestArchivedDigests(t *testing.T) {
	ts := newTestServer(t, nil)
	d := &notifier.DigestResult{Period: notifier.Weekly, Digest: "semana calma", StartDate: "2025-03-03", EndDate: "2025-03-10"}
	_, err := ts.archive.Save(context.Background(), d)
	require.NoError(t, err)

	code, resp := ts.do(t, http.MethodGet, "/ai/digests?period=weekly", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var entries []storage.Entry
	require.NoError(t, json.Unmarshal(resp.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-03-03_2025-03-10.json", entries[0].Name)

	code, resp = ts.do(t, http.MethodGet, "/ai/digests/weekly/2025-03-03_2025-03-10.json", nil)
	require.Equal(t, http.StatusOK, code)
	var loaded notifier.DigestResult
	require.NoError(t, json.Unmarshal(resp.Data, &loaded))
	assert.Equal(t, "semana calma", loaded.Digest)

	code, _ = ts.do(t, http.MethodGet, "/ai/digests/weekly/2024-01-01_2024-01-08.json", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodGet, "/ai/digests/weekly/..%2Fsecret.json", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestScheduled(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, http.MethodPost, "/scheduled", map[string]any{"cron": "0 3 * * 1", "scheduled_time": "2025-03-10T03:00:00Z"})
	require.Equal(t, http.StatusOK, code)
	var out ScheduledResponse
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.True(t, out.Handled)

	code, resp = ts.do(t, http.MethodPost, "/scheduled", map[string]any{"cron": "*/5 * * * *"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.True(t, resp.Success)
	assert.False(t, out.Handled)

	ts.dispatcher.err = errors.New("job panicked")
	code, _ = ts.do(t, http.MethodPost, "/scheduled", map[string]any{"cron": "0 3 * * 1"})
	assert.Equal(t, http.StatusInternalServerError, code)

	code, _ = ts.do(t, http.MethodPost, "/scheduled", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []string{"0 3 * * 1", "*/5 * * * *", "0 3 * * 1"}, ts.dispatcher.triggers)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.ServerConfig) {
		c.APIRatePerMinute = 2
		c.AIRatePerMinute = 1
	})

	for range 2 {
		code, _ := ts.do(t, http.MethodGet, "/notifications", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, resp := ts.do(t, http.MethodGet, "/notifications", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.False(t, resp.Success)

	// AI budget is separate.
	code, _ = ts.do(t, http.MethodGet, "/ai/models", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodGet, "/ai/models", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Health is never limited.
	code, _ = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.ServerConfig) {
		c.BasicAuthUser = "admin"
		c.BasicAuthPassword = "s3cret"
	})

	code, _ := ts.do(t, http.MethodGet, "/notifications", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	code, _ = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsRecordRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(t, "Ana", "Oi")
	ts.do(t, http.MethodGet, "/notifications/1", nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `notification_http_requests_total{method="GET",route="/notifications/{id}",status="200"} 1`)
	assert.Contains(t, body, `notification_http_requests_total{method="POST",route="/notifications`)
}

type panickingStore struct{ Store }

func (panickingStore) FindMany(context.Context, datastore.Filter) ([]*notifier.Notification, error) {
	panic("boom")
}

func TestPanicRecovery(t *testing.T) {
	srv := New(&Config{
		Store:  panickingStore{},
		HTTP:   config.ServerConfig{APIRatePerMinute: 10, AIRatePerMinute: 10},
		Logger: discard,
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Erro interno do servidor", resp.Error)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, func(c *config.ServerConfig) {
		c.AllowedOrigins = []string{"https://app.negramidia.com.br", "*.bytesforge.dev"}
	})

	for origin, allowed := range map[string]bool{
		"https://app.negramidia.com.br": true,
		"https://painel.bytesforge.dev": true,
		"https://evil.example.com":      false,
	} {
		req := httptest.NewRequest(http.MethodOptions, "/notifications", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		if allowed {
			assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{name: "valid email", email: "user@example.com", want: true},
		{name: "valid email with subdomain", email: "user@mail.example.com", want: true},
		{name: "valid email with plus", email: "user+tag@example.com", want: true},
		{name: "invalid - no @", email: "userexample.com", want: false},
		{name: "invalid - no domain", email: "user@", want: false},
		{name: "invalid - too short", email: "a@b", want: false},
		{name: "invalid - spaces", email: "user @example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidEmail(tt.email))
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.4:5555"
	assert.Equal(t, "198.51.100.4", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
