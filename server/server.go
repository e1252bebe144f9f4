// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/ai"
	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/bytesforge-consulting/negra-midia-notification/datastore"
	"github.com/bytesforge-consulting/negra-midia-notification/digest"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/bytesforge-consulting/negra-midia-notification/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is the notification persistence the API reads and writes.
type Store interface {
	Create(ctx context.Context, req *notifier.CreateRequest) (*notifier.Notification, error)
	Get(ctx context.Context, id int64) (*notifier.Notification, error)
	FindMany(ctx context.Context, f datastore.Filter) ([]*notifier.Notification, error)
	Count(ctx context.Context, f datastore.Filter) (int64, error)
	MarkRead(ctx context.Context, id int64, readAt time.Time) (*notifier.Notification, error)
}

// Assistant runs the free-form AI endpoints.
type Assistant interface {
	Generate(ctx context.Context, req notifier.CompletionRequest) (*notifier.Completion, error)
	GenerateNotification(ctx context.Context, req ai.GenerateRequest) (ai.Generated, error)
	Summarize(ctx context.Context, list []*notifier.Notification, timeframe string) (*ai.Summary, error)
}

// Digester generates digests and processes unread notifications.
type Digester interface {
	Generate(ctx context.Context, period notifier.Period, markUrgentAsRead bool) (*notifier.DigestResult, error)
	ProcessUnread(ctx context.Context, opts digest.ProcessOptions) (*digest.ProcessResult, error)
}

// Archive lists and loads archived digests.
type Archive interface {
	List(ctx context.Context, period notifier.Period) ([]storage.Entry, error)
	Load(ctx context.Context, period notifier.Period, name string) (*notifier.DigestResult, error)
}

// Dispatcher runs the job registered for a cron trigger.
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger string, scheduledTime time.Time) error
}

// Recorder observes served requests.
type Recorder interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// Server handles HTTP requests.
type Server struct {
	store      Store
	assistant  Assistant
	digester   Digester
	archive    Archive
	dispatcher Dispatcher
	recorder   Recorder
	metrics    http.Handler
	limiter    *rateLimiter
	cfg        config.ServerConfig
	version    string
	model      string
	logger     *slog.Logger
	now        func() time.Time
}

// Config holds server configuration. Archive, Dispatcher, Recorder and
// Metrics are optional.
type Config struct {
	Store      Store
	Assistant  Assistant
	Digester   Digester
	Archive    Archive
	Dispatcher Dispatcher
	Recorder   Recorder
	Metrics    http.Handler
	HTTP       config.ServerConfig
	Version    string
	Model      string
	Logger     *slog.Logger
	Now        func() time.Time
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		store:      cfg.Store,
		assistant:  cfg.Assistant,
		digester:   cfg.Digester,
		archive:    cfg.Archive,
		dispatcher: cfg.Dispatcher,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		limiter:    newRateLimiter(cfg.HTTP.APIRatePerMinute, cfg.HTTP.AIRatePerMinute),
		cfg:        cfg.HTTP,
		version:    cfg.Version,
		model:      cfg.Model,
		logger:     cfg.Logger,
		now:        now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(s.cors())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.fail(w, http.StatusNotFound, "Endpoint não encontrado")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.fail(w, http.StatusMethodNotAllowed, "Método não permitido")
	})

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		if s.cfg.BasicAuthUser != "" {
			r.Use(middleware.BasicAuth("negra-midia-notify", map[string]string{
				s.cfg.BasicAuthUser: s.cfg.BasicAuthPassword,
			}))
		}

		r.Get("/", s.handleRoot)

		r.Route("/notifications", func(r chi.Router) {
			r.Use(s.rateLimit(scopeAPI))
			r.Get("/", s.handleListNotifications)
			r.Post("/", s.handleCreateNotification)
			r.Get("/paginate", s.handlePaginate)
			r.Get("/{id}", s.handleGetNotification)
			r.Put("/{id}/read", s.handleMarkRead)
		})

		r.Route("/ai", func(r chi.Router) {
			r.Use(s.rateLimit(scopeAI))
			r.Post("/generate", s.handleGenerate)
			r.Post("/generate-notification", s.handleGenerateNotification)
			r.Post("/summarize-notifications", s.handleSummarize)
			r.Post("/process-unread", s.handleProcessUnread)
			r.Post("/analyze-unread", s.handleAnalyzeUnread)
			r.Get("/daily-digest", s.handleDailyDigest)
			r.Get("/models", s.handleModels)
			r.Get("/digests", s.handleListDigests)
			r.Get("/digests/{period}/{name}", s.handleGetDigest)
		})

		r.With(s.rateLimit(scopeAPI)).Post("/scheduled", s.handleScheduled)
	})

	return r
}

// ListenAndServe serves the API on port until ctx is cancelled, then shuts
// down gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      90 * time.Second, // AI digests can take a while
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server", "timeout", timeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type apiInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Version     string              `json:"version"`
	Endpoints   map[string][]string `json:"endpoints"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, http.StatusOK, apiInfo{
		Name:        "Negra Mídia Notify API",
		Description: "API para gerenciamento de notificações com IA integrada",
		Version:     s.version,
		Endpoints: map[string][]string{
			"notifications": {
				"GET /notifications - Listar notificações",
				"GET /notifications/paginate - Listar com paginação e busca",
				"GET /notifications/:id - Buscar por ID",
				"POST /notifications - Criar notificação",
				"PUT /notifications/:id/read - Marcar como lida",
			},
			"ai": {
				"POST /ai/generate - Geração livre de texto",
				"POST /ai/generate-notification - Gerar notificação",
				"POST /ai/summarize-notifications - Resumir notificações",
				"POST /ai/process-unread - Processar não lidas",
				"POST /ai/analyze-unread - Analisar não lidas",
				"GET /ai/daily-digest - Gerar digest",
				"GET /ai/digests - Listar digests arquivados",
				"GET /ai/models - Listar modelos disponíveis",
			},
			"system": {
				"GET /health - Status da API",
				"GET /metrics - Métricas Prometheus",
				"POST /scheduled - Disparar job agendado",
				"GET / - Informações da API",
			},
		},
	})
}

type health struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Version   string   `json:"version"`
	Services  []string `json:"services"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, http.StatusOK, health{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Version:   s.version,
		Services:  []string{"notifications", "ai", "database"},
	})
}
