package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

type scheduledRequest struct {
	Cron          string    `json:"cron"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// ScheduledResponse reports whether a trigger mapped to a job.
type ScheduledResponse struct {
	Cron    string `json:"cron"`
	Handled bool   `json:"handled"`
}

// handleScheduled lets an external scheduler fire the same jobs the in-process
// cron runner does. Unknown expressions are logged and acknowledged.
func (s *Server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		s.fail(w, http.StatusNotFound, "Agendador não configurado")
		return
	}
	var req scheduledRequest
	if err := decode(w, r, &req); err != nil {
		s.failErr(w, r, "Erro ao executar job agendado", err)
		return
	}
	req.Cron = strings.TrimSpace(req.Cron)
	if req.Cron == "" {
		s.fail(w, http.StatusBadRequest, "cron é obrigatório")
		return
	}
	if req.ScheduledTime.IsZero() {
		req.ScheduledTime = s.now()
	}

	s.logger.Info("Scheduled trigger received", "cron", req.Cron, "scheduled_time", req.ScheduledTime.Format(time.RFC3339))
	err := s.dispatcher.Dispatch(r.Context(), req.Cron, req.ScheduledTime)
	switch {
	case notifier.IsUnrecognizedSchedule(err):
		s.ok(w, http.StatusOK, ScheduledResponse{Cron: req.Cron, Handled: false})
	case err != nil:
		s.failErr(w, r, "Erro ao executar job agendado", err)
	default:
		s.ok(w, http.StatusOK, ScheduledResponse{Cron: req.Cron, Handled: true})
	}
}
