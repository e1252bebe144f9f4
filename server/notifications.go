package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bytesforge-consulting/negra-midia-notification/datastore"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// Page is the response of the paginated listing.
type Page struct {
	Notifications []*notifier.Notification `json:"notifications"`
	Pagination    Pagination               `json:"pagination"`
	SearchTerm    string                   `json:"search_term,omitempty"`
}

// MarkReadResponse is the response of the mark-read endpoint.
type MarkReadResponse struct {
	Message      string                 `json:"message"`
	Notification *notifier.Notification `json:"notification"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.FindMany(r.Context(), datastore.Filter{})
	if err != nil {
		s.failErr(w, r, "Erro ao buscar notificações", err)
		return
	}
	s.ok(w, http.StatusOK, list)
}

// handlePaginate serves one page, optionally filtered by a name or email substring.
func (s *Server) handlePaginate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := max(1, queryInt(q.Get("page"), 1))
	limit := min(maxPageLimit, max(1, queryInt(q.Get("limit"), defaultPageLimit)))
	search := strings.TrimSpace(q.Get("search"))

	f := datastore.Filter{Search: search}
	total, err := s.store.Count(r.Context(), f)
	if err != nil {
		s.failErr(w, r, "Erro ao buscar notificações", err)
		return
	}
	f.Limit = limit
	f.Offset = (page - 1) * limit
	list, err := s.store.FindMany(r.Context(), f)
	if err != nil {
		s.failErr(w, r, "Erro ao buscar notificações", err)
		return
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	s.ok(w, http.StatusOK, Page{
		Notifications: list,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    int64(page) < totalPages,
			HasPrev:    page > 1,
		},
		SearchTerm: search,
	})
}

// handleGetNotification returns one notification, marking it read on first view.
func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	n, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.failErr(w, r, "Erro ao buscar notificação", err)
		return
	}
	if !n.IsRead() {
		read, err := s.store.MarkRead(r.Context(), id, s.now())
		switch {
		case err == nil:
			n = read
		case notifier.IsConflict(err):
			// Read concurrently; serve the stored state.
			if n, err = s.store.Get(r.Context(), id); err != nil {
				s.failErr(w, r, "Erro ao buscar notificação", err)
				return
			}
		default:
			s.failErr(w, r, "Erro ao buscar notificação", err)
			return
		}
	}
	s.ok(w, http.StatusOK, n)
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notifier.CreateRequest
	if err := decode(w, r, &req); err != nil {
		s.failErr(w, r, "Erro ao criar notificação", err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Subject = strings.TrimSpace(req.Subject)

	if req.Name == "" || req.Email == "" || req.Phone == "" || strings.TrimSpace(req.Body) == "" || req.Subject == "" {
		s.fail(w, http.StatusBadRequest, "Todos os campos são obrigatórios: name, email, phone, body, subject")
		return
	}
	if !isValidEmail(req.Email) {
		s.fail(w, http.StatusBadRequest, "Email inválido")
		return
	}

	n, err := s.store.Create(r.Context(), &req)
	if err != nil {
		s.failErr(w, r, "Erro ao criar notificação", err)
		return
	}
	s.ok(w, http.StatusCreated, n)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	n, err := s.store.MarkRead(r.Context(), id, s.now())
	if err != nil {
		s.failErr(w, r, "Erro ao marcar notificação como lida", err)
		return
	}
	s.ok(w, http.StatusOK, MarkReadResponse{Message: "Notificação marcada como lida", Notification: n})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, http.StatusBadRequest, "ID inválido")
		return 0, false
	}
	return id, true
}

func queryInt(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}
