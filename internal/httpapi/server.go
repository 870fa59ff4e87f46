package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/leeseongmin/maum/internal/config"
	"github.com/leeseongmin/maum/internal/memory"
	"github.com/leeseongmin/maum/internal/observability"
)

type Server struct {
	cfg      config.Config
	manager  *memory.Manager
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, manager *memory.Manager, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		manager: manager,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser clients unless explicitly opened up;
				// other sites must not be able to feed turns into a user's memory.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/memory/turns", s.handleProcessTurn)
	r.Post("/v1/memory/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/memory/sessions/{id}", s.handleGetSession)
	r.Get("/v1/memory/users/{id}/context", s.handleGetUserContext)
	r.Get("/v1/memory/users/{id}/preferences/{key}", s.handleGetPreference)
	r.Get("/v1/memory/stream", s.handleStream)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.manager.ActiveSessionCount(),
	})
}

type turnRequest struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	UserText  string         `json:"user_text"`
	AgentText string         `json:"agent_text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type turnResponse struct {
	SessionID  string         `json:"session_id"`
	Status     memory.Status  `json:"status"`
	TotalTurns int            `json:"total_turns"`
	Context    map[string]any `json:"context"`
}

func (s *Server) handleProcessTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess := s.manager.ProcessTurn(r.Context(), req.SessionID, req.UserID, req.UserText, req.AgentText, req.Metadata)
	s.metrics.SetActiveSessions(s.manager.ActiveSessionCount())

	respondJSON(w, http.StatusOK, turnResponse{
		SessionID:  sess.ID(),
		Status:     sess.Status(),
		TotalTurns: sess.TurnCount(),
		Context:    sess.AllContext(),
	})
}

type endSessionRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	var req endSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess, ok := s.manager.LookupSession(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_found", "unknown session "+id)
		return
	}

	s.manager.EndSession(r.Context(), id, req.UserID)
	s.metrics.SetActiveSessions(s.manager.ActiveSessionCount())

	respondJSON(w, http.StatusOK, turnResponse{
		SessionID:  sess.ID(),
		Status:     sess.Status(),
		TotalTurns: sess.TurnCount(),
		Context:    sess.AllContext(),
	})
}

type sessionResponse struct {
	SessionID  string         `json:"session_id"`
	Status     memory.Status  `json:"status"`
	TotalTurns int            `json:"total_turns"`
	Context    map[string]any `json:"context"`
	Recent     []memory.Turn  `json:"recent_turns"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.manager.LookupSession(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_found", "unknown session "+id)
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse{
		SessionID:  sess.ID(),
		Status:     sess.Status(),
		TotalTurns: sess.TurnCount(),
		Context:    sess.AllContext(),
		Recent:     sess.RecentContext(10),
	})
}

func (s *Server) handleGetUserContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	uc, err := s.manager.GetUserContext(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", id).Msg("user context read failed")
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, uc)
}

func (s *Server) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := chi.URLParam(r, "key")

	value, ok, err := s.manager.Profiles().GetUserPreference(r.Context(), id, key)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", id).Str("key", key).Msg("preference read failed")
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "preference_not_found", "no value for key "+key)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": id, "key": key, "value": value})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
