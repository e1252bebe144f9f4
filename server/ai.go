package server

import (
	"net/http"
	"strconv"

	"github.com/bytesforge-consulting/negra-midia-notification/ai"
	"github.com/bytesforge-consulting/negra-midia-notification/digest"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/bytesforge-consulting/negra-midia-notification/storage"
	"github.com/go-chi/chi/v5"
)

const noResponse = "Resposta não disponível"

// GeneratedNotification is the response of the notification generator.
// Parsed is false when the model did not answer with the requested JSON.
type GeneratedNotification struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Parsed  bool   `json:"parsed"`
}

type summarizeRequest struct {
	Notifications []*notifier.Notification `json:"notifications"`
	Timeframe     string                   `json:"timeframe"`
}

// processRequest mirrors digest.ProcessOptions with include_summary defaulting to true.
type processRequest struct {
	Action           string `json:"action"`
	MarkAsRead       bool   `json:"mark_as_read"`
	IncludeSummary   *bool  `json:"include_summary"`
	MaxNotifications int    `json:"max_notifications"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req notifier.CompletionRequest
	if err := decode(w, r, &req); err != nil {
		s.failErr(w, r, "Erro ao gerar resposta", err)
		return
	}
	resp, err := s.assistant.Generate(r.Context(), req)
	if err != nil {
		s.failErr(w, r, "Erro ao gerar resposta", err)
		return
	}
	if resp.Text == "" {
		resp.Text = noResponse
	}
	s.ok(w, http.StatusOK, resp)
}

func (s *Server) handleGenerateNotification(w http.ResponseWriter, r *http.Request) {
	var req ai.GenerateRequest
	if err := decode(w, r, &req); err != nil {
		s.failErr(w, r, "Erro ao gerar notificação", err)
		return
	}
	gen, err := s.assistant.GenerateNotification(r.Context(), req)
	if err != nil {
		s.failErr(w, r, "Erro ao gerar notificação", err)
		return
	}
	draft := gen.Draft()
	_, parsed := gen.(ai.Parsed)
	s.ok(w, http.StatusOK, GeneratedNotification{Subject: draft.Subject, Body: draft.Body, Parsed: parsed})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decode(w, r, &req); err != nil {
		s.failErr(w, r, "Erro ao resumir notificações", err)
		return
	}
	sum, err := s.assistant.Summarize(r.Context(), req.Notifications, req.Timeframe)
	if err != nil {
		s.failErr(w, r, "Erro ao resumir notificações", err)
		return
	}
	s.ok(w, http.StatusOK, sum)
}

func (s *Server) handleProcessUnread(w http.ResponseWriter, r *http.Request) {
	s.processUnread(w, r, false)
}

func (s *Server) handleAnalyzeUnread(w http.ResponseWriter, r *http.Request) {
	s.processUnread(w, r, true)
}

func (s *Server) processUnread(w http.ResponseWriter, r *http.Request, analyze bool) {
	var req processRequest
	if err := decode(w, r, &req); err != nil {
		s.failErr(w, r, "Erro ao processar notificações", err)
		return
	}
	opts := digest.ProcessOptions{
		Action:           req.Action,
		MarkAsRead:       req.MarkAsRead,
		IncludeSummary:   req.IncludeSummary == nil || *req.IncludeSummary,
		MaxNotifications: req.MaxNotifications,
	}
	if analyze {
		opts.Action = digest.ActionAnalyze
		opts.MarkAsRead = false
	}

	res, err := s.digester.ProcessUnread(r.Context(), opts)
	if err != nil {
		s.failErr(w, r, "Erro ao processar notificações", err)
		return
	}
	s.ok(w, http.StatusOK, res)
}

// handleDailyDigest generates a digest on demand. Defaults: daily, mark_as_read=true.
func (s *Server) handleDailyDigest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := notifier.Daily
	if v := q.Get("period"); v != "" {
		p, err := notifier.ParsePeriod(v)
		if err != nil {
			s.failErr(w, r, "Erro ao gerar digest", err)
			return
		}
		period = p
	}
	mark := true
	if v := q.Get("mark_as_read"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(w, http.StatusBadRequest, "mark_as_read deve ser true ou false")
			return
		}
		mark = b
	}

	d, err := s.digester.Generate(r.Context(), period, mark)
	if err != nil {
		s.failErr(w, r, "Erro ao gerar digest", err)
		return
	}
	s.ok(w, http.StatusOK, d)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, http.StatusOK, ai.Models(s.model))
}

func (s *Server) handleListDigests(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.fail(w, http.StatusNotFound, "Arquivo de digests não configurado")
		return
	}
	var period notifier.Period
	if v := r.URL.Query().Get("period"); v != "" {
		p, err := notifier.ParsePeriod(v)
		if err != nil {
			s.failErr(w, r, "Erro ao listar digests", err)
			return
		}
		period = p
	}

	entries, err := s.archive.List(r.Context(), period)
	if err != nil {
		s.failErr(w, r, "Erro ao listar digests", err)
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	s.ok(w, http.StatusOK, entries)
}

func (s *Server) handleGetDigest(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.fail(w, http.StatusNotFound, "Arquivo de digests não configurado")
		return
	}
	period, err := notifier.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		s.failErr(w, r, "Erro ao buscar digest", err)
		return
	}
	d, err := s.archive.Load(r.Context(), period, chi.URLParam(r, "name"))
	if err != nil {
		s.failErr(w, r, "Erro ao buscar digest", err)
		return
	}
	s.ok(w, http.StatusOK, d)
}
