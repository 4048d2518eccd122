package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"companion-chat/internal/domain"
	"companion-chat/internal/domain/ports/adapter"
	"companion-chat/internal/domain/ports/repository"
	"companion-chat/internal/infra/logging"
	"companion-chat/internal/infra/metrics"
	"companion-chat/internal/infra/redis"
	"companion-chat/internal/usecase"
)

const surface = "http"

// SessionCounter reports how many conversations are held.
type SessionCounter interface {
	Stats() int
}

// ModelCatalog lists the models a completion backend can serve.
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]string, error)
	GetModelInfo(model string) (adapter.ModelInfo, error)
}

// Options configure the HTTP surface. A nil Limiter or zero RateLimit
// disables rate limiting. Dev logs failed chat messages unredacted.
type Options struct {
	RequestTimeout time.Duration
	Limiter        repository.RateLimiter
	RateLimit      int
	RateWindow     time.Duration
	Models         ModelCatalog
	Dev            bool
}

// Server exposes the chat use case over JSON.
type Server struct {
	chat     usecase.ChatUseCase
	sessions SessionCounter
	opts     Options
	log      *zerolog.Logger
}

func NewServer(chat usecase.ChatUseCase, sessions SessionCounter, opts Options, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{chat: chat, sessions: sessions, opts: opts, log: &l}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type historyRequest struct {
	ConversationID string `json:"conversationId"`
}

type modelResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Supports    []string `json:"supports,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes builds the chi router with the guard chain mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(s.log), RequestLog(s.log), Recover(s.log))
	if s.opts.RequestTimeout > 0 {
		r.Use(Timeout(s.opts.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/history", s.handleHistoryPost)
		r.Get("/history/{id}", s.handleHistoryGet)
		r.Get("/models", s.handleModels)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n := 0
	if s.sessions != nil {
		n = s.sessions.Stats()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": n})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	key := strings.TrimSpace(req.ConversationID)
	if key == "" {
		key = "ip:" + clientIP(r)
	}
	if err := s.allow(r, key); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.chat.SendMessage(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Info().
			Str("conversation_id", req.ConversationID).
			Str("message", logging.Redact(req.Message, s.opts.Dev)).
			Msg("chat turn rejected")
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	out := []modelResponse{}
	if s.opts.Models == nil {
		writeJSON(w, http.StatusOK, map[string]any{"models": out})
		return
	}
	names, err := s.opts.Models.ListModels(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, name := range names {
		info, err := s.opts.Models.GetModelInfo(name)
		if err != nil || info.Name == "" {
			info = adapter.ModelInfo{Name: name}
		}
		out = append(out, modelResponse{
			Name:        info.Name,
			Description: info.Description,
			MaxTokens:   info.MaxTokens,
			Supports:    info.Supports,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

func (s *Server) handleHistoryPost(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	s.history(w, r, req.ConversationID)
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	s.history(w, r, chi.URLParam(r, "id"))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, id string) {
	msgs, err := s.chat.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": strings.TrimSpace(id),
		"messages":       msgs,
	})
}

// allow applies the per-conversation rate limit. Limiter failures let the
// request through.
func (s *Server) allow(r *http.Request, key string) error {
	if s.opts.Limiter == nil || s.opts.RateLimit <= 0 {
		return nil
	}
	ok, err := s.opts.Limiter.Allow(r.Context(), redis.ConversationKey(surface, key), s.opts.RateLimit, s.opts.RateWindow)
	if err != nil {
		metrics.IncRateLimit(surface, "error")
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		metrics.IncRateLimit(surface, "limited")
		return domain.ErrRateLimited
	}
	metrics.IncRateLimit(surface, "allowed")
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, domain.ErrGeneration):
		status, msg = http.StatusBadGateway, "failed to generate a reply"
	}
	if status >= 500 {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
