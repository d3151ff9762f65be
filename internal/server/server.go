package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noteforge/noteforge/internal/models"
	"github.com/noteforge/noteforge/internal/repository"
	"github.com/noteforge/noteforge/internal/service"
	"github.com/noteforge/noteforge/internal/storage"
)

// guestLimiter is the slice of the guest allowance the handlers consume.
type guestLimiter interface {
	Consume(ctx context.Context, clientIP string) (bool, int, error)
	Return(ctx context.Context, clientIP string) error
	Limit() int
}

type Server struct {
	addr        string
	adminUser   string
	adminPass   string
	log         *slog.Logger
	auth        *Authenticator
	generations *service.GenerationService
	accounts    *service.AccountService
	notes       *repository.NoteRepository
	guests      guestLimiter
	uploader    *storage.Uploader // nil when share uploads are not configured
	router      *chi.Mux
}

func NewServer(addr string, deadline time.Duration, adminUser, adminPass string, log *slog.Logger, auth *Authenticator, generations *service.GenerationService, accounts *service.AccountService, notes *repository.NoteRepository, guests guestLimiter, uploader *storage.Uploader) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if deadline > 0 {
		// The end-to-end budget lives here; the generation client only bounds
		// individual attempts.
		r.Use(middleware.Timeout(deadline))
	}

	s := &Server{
		addr:        addr,
		adminUser:   adminUser,
		adminPass:   adminPass,
		log:         log,
		auth:        auth,
		generations: generations,
		accounts:    accounts,
		notes:       notes,
		guests:      guests,
		uploader:    uploader,
		router:      r,
	}

	r.Get("/healthz", s.handleHealth)
	r.Group(func(api chi.Router) {
		api.Use(s.auth.Middleware)
		api.Post("/api/generate", s.handleGenerate)
		api.Get("/api/notes", s.handleListNotes)
		api.Get("/api/notes/{id}", s.handleGetNote)
		api.Post("/api/notes/{id}/share", s.handleShareNote)
		api.Get("/api/account", s.handleAccount)
	})
	r.Route("/api/admin", func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware())
		admin.Post("/credits", s.handleAdminCredit)
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Write timeout must cover a full generation pass.
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type generateRequest struct {
	Topic      string `json:"topic"`
	TemplateID string `json:"template_id"`
	PageCount  int    `json:"page_count"`
}

type generateResponse struct {
	ID             string `json:"id"`
	HTML           string `json:"html"`
	CoinsSpent     int    `json:"coins_spent,omitempty"`
	CoinsRemaining *int   `json:"coins_remaining,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx := r.Context()
	userID, authenticated := UserIDFromContext(ctx)

	var guestIP string
	if !authenticated {
		guestIP = clientIP(r)
		ok, used, err := s.guests.Consume(ctx, guestIP)
		if err != nil {
			s.internalError(w, err)
			return
		}
		if !ok {
			s.writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":   "guest allowance exhausted",
				"limit":   s.guests.Limit(),
				"current": used,
			})
			return
		}
	}

	var userRef *int64
	if authenticated {
		userRef = &userID
	}

	result, err := s.generations.Generate(ctx, service.GenerateRequest{
		Topic:      req.Topic,
		TemplateID: models.TemplateID(req.TemplateID),
		PageCount:  req.PageCount,
		UserID:     userRef,
	})
	if err != nil {
		if !authenticated {
			// No artifact was produced; the guest keeps the unit.
			if rerr := s.guests.Return(ctx, guestIP); rerr != nil {
				s.log.Warn("return guest allowance", "ip", guestIP, "err", rerr)
			}
		}
		s.writeGenerateError(w, err)
		return
	}

	resp := generateResponse{
		ID:         result.Note.ID,
		HTML:       result.Note.HTMLContent,
		CoinsSpent: result.Note.CoinsSpent,
		Warning:    result.Warning,
	}
	if result.CoinsRemaining >= 0 {
		remaining := result.CoinsRemaining
		resp.CoinsRemaining = &remaining
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeGenerateError(w http.ResponseWriter, err error) {
	var insufficient *service.InsufficientFundsError
	var quota *service.QuotaExceededError
	var failed *service.GenerationFailedError

	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficient):
		s.writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     "insufficient balance",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.As(err, &quota):
		s.writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":   "monthly quota exceeded",
			"limit":   quota.Limit,
			"current": quota.Current,
		})
	case errors.As(err, &failed):
		s.log.Error("generation failed", "status", failed.Status, "err", failed.Err)
		s.writeError(w, http.StatusInternalServerError, "generation failed")
	default:
		s.internalError(w, err)
	}
}

type noteItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	TemplateID string    `json:"template_id"`
	PageCount  int       `json:"page_count"`
	CoinsSpent int       `json:"coins_spent"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	items, total, err := s.notes.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		s.internalError(w, err)
		return
	}

	out := make([]noteItem, 0, len(items))
	for _, n := range items {
		out = append(out, noteItem{
			ID:         n.ID,
			Title:      n.Title,
			TemplateID: string(n.TemplateID),
			PageCount:  n.PageCount,
			CoinsSpent: n.CoinsSpent,
			CreatedAt:  n.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"items":    out,
		"total":    total,
		"has_more": offset+len(out) < total,
	})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, status := s.loadNote(r)
	if note == nil {
		s.writeError(w, status, "note not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":          note.ID,
		"title":       note.Title,
		"template_id": string(note.TemplateID),
		"page_count":  note.PageCount,
		"coins_spent": note.CoinsSpent,
		"html":        note.HTMLContent,
		"warning":     note.Warning,
		"created_at":  note.CreatedAt,
	})
}

func (s *Server) handleShareNote(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		s.writeError(w, http.StatusServiceUnavailable, "share uploads are not configured")
		return
	}
	note, status := s.loadNote(r)
	if note == nil {
		s.writeError(w, status, "note not found")
		return
	}

	url, err := s.uploader.Upload(r.Context(), []byte(note.HTMLContent), "text/html")
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// loadNote fetches the note in the path and enforces ownership: notes owned
// by a user are visible only to that user, guest notes are fetchable by id.
func (s *Server) loadNote(r *http.Request) (*models.Note, int) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		return nil, http.StatusBadRequest
	}
	note, err := s.notes.GetByID(r.Context(), id)
	if err != nil {
		s.log.Error("load note", "note_id", id, "err", err)
		return nil, http.StatusInternalServerError
	}
	if note == nil {
		return nil, http.StatusNotFound
	}
	if note.UserID != nil {
		callerID, ok := UserIDFromContext(r.Context())
		if !ok || callerID != *note.UserID {
			return nil, http.StatusNotFound
		}
	}
	return note, http.StatusOK
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	account, err := s.accounts.Get(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if account == nil {
		s.writeError(w, http.StatusNotFound, "account not found")
		return
	}

	transactions, err := s.accounts.Transactions(r.Context(), userID, 10)
	if err != nil {
		s.internalError(w, err)
		return
	}

	txOut := make([]map[string]any, 0, len(transactions))
	for _, t := range transactions {
		txOut = append(txOut, map[string]any{
			"amount":           t.Amount,
			"kind":             string(t.Kind),
			"previous_balance": t.PreviousBalance,
			"new_balance":      t.NewBalance,
			"description":      t.Description,
			"created_at":       t.CreatedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"balance":         account.Balance,
		"total_spent":     account.TotalSpent,
		"total_generated": account.TotalGenerated,
		"monthly_count":   account.MonthlyCount,
		"monthly_limit":   account.MonthlyLimit,
		"transactions":    txOut,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("handler error", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

// clientIP is the host part of RemoteAddr. middleware.RealIP has already
// substituted forwarded headers when present; for direct connections the
// ephemeral port must not leak into per-IP keys.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
