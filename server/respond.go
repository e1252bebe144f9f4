package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/bytesforge-consulting/negra-midia-notification/storage"
)

const maxBodyBytes = 1 << 20

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// envelope is the shape of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) ok(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, envelope{Success: true, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{Success: false, Error: msg})
}

// failErr maps err onto a status code. prefix describes the failed
// operation for 5xx answers.
func (s *Server) failErr(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	var (
		validation *notifier.ValidationError
		notFound   *notifier.NotFoundError
		conflict   *notifier.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		s.fail(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &notFound):
		s.fail(w, http.StatusNotFound, "Notificação não encontrada")
	case storage.IsNotFound(err):
		s.fail(w, http.StatusNotFound, "Digest não encontrado")
	case errors.As(err, &conflict):
		s.fail(w, http.StatusConflict, "Notificação já foi lida")
	default:
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.fail(w, http.StatusInternalServerError, prefix+": "+err.Error())
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &notifier.ValidationError{Field: "body", Message: "JSON inválido"}
	}
	return nil
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	// Use mail.ParseAddress for robust validation
	_, err := mail.ParseAddress(email)
	return err == nil && emailRegex.MatchString(email)
}

func clientIP(r *http.Request) string {
	// Check X-Forwarded-For header (Cloud Run)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Fallback to RemoteAddr
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
