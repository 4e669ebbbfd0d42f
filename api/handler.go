// Package api exposes the messaging service over HTTP and carries the
// change feed over a per-session WebSocket.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"care-link/auth"
	"care-link/errors"
	"care-link/observability"
	"care-link/profiles"
	"care-link/repositories"
	"care-link/runtime"
	"care-link/services"

	"github.com/gorilla/mux"
)

type contextKey string

const identityKey contextKey = "care-link/user"

type Handler struct {
	log          *slog.Logger
	service      services.IMessagingService
	orchestrator *runtime.Orchestrator
	repository   repositories.IMessageRepository
	tokens       *auth.TokenService
	credentials  *auth.CredentialStore
	directory    *profiles.InMemoryDirectory
	monitor      *observability.Monitor
	allowedWS    []string
}

func NewHandler(log *slog.Logger, service services.IMessagingService,
	orchestrator *runtime.Orchestrator, repository repositories.IMessageRepository,
	tokens *auth.TokenService, credentials *auth.CredentialStore,
	directory *profiles.InMemoryDirectory, monitor *observability.Monitor,
	allowedOrigins []string) *Handler {
	return &Handler{
		log:          log,
		service:      service,
		orchestrator: orchestrator,
		repository:   repository,
		tokens:       tokens,
		credentials:  credentials,
		directory:    directory,
		monitor:      monitor,
		allowedWS:    allowedOrigins,
	}
}

func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/register", h.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)

	authenticated := router.PathPrefix("/api").Subrouter()
	authenticated.Use(h.requireSession)
	authenticated.HandleFunc("/messages", h.handleSend).Methods(http.MethodPost)
	authenticated.HandleFunc("/conversations", h.handleConversations).Methods(http.MethodGet)
	authenticated.HandleFunc("/threads/{counterpart}", h.handleThread).Methods(http.MethodGet)
	authenticated.HandleFunc("/threads/{counterpart}/read", h.handleOpen).Methods(http.MethodPost)
	authenticated.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)
	authenticated.HandleFunc("/feed", h.HandleFeed).Methods(http.MethodGet)
	return router
}

// requireSession resolves the bearer token to a user id and threads it
// through the request context. There is no other source of identity.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			h.writeError(w, errors.ErrNoSession)
			return
		}
		userID, err := h.tokens.Validate(token)
		if err != nil {
			h.writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identity(ctx context.Context) string {
	userID, _ := ctx.Value(identityKey).(string)
	return userID
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.monitor.Snapshot())
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := auth.ValidateRegister(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.credentials.Register(req.UserID, req.Password); err != nil {
		h.writeError(w, err)
		return
	}
	h.directory.Put(req.UserID, req.DisplayName)
	h.writeJSON(w, http.StatusCreated, map[string]string{"user_id": req.UserID})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := auth.ValidateLogin(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.credentials.Authenticate(req.UserID, req.Password); err != nil {
		h.writeError(w, errors.ErrNoSession)
		return
	}
	token, err := h.tokens.Generate(req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req auth.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := auth.ValidateSend(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	message, err := h.service.Send(r.Context(), identity(r.Context()), req.RecipientID, req.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, message)
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.service.Conversations(r.Context(), identity(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) handleThread(w http.ResponseWriter, r *http.Request) {
	owner := identity(r.Context())
	counterpart := mux.Vars(r)["counterpart"]
	messages, err := h.service.Thread(r.Context(), owner, owner, counterpart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	owner := identity(r.Context())
	counterpart := mux.Vars(r)["counterpart"]
	updated, err := h.service.OpenConversation(r.Context(), owner, counterpart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"marked_read": updated})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	terms := r.URL.Query().Get("q")
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	messages, err := h.service.Search(r.Context(), identity(r.Context()), terms, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Debug("Response encoding failed", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrEmptyBody), errors.Is(err, errors.ErrSelfAddressed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrNotRecipient), errors.Is(err, errors.ErrNotParticipant):
		status = http.StatusForbidden
	case errors.Is(err, errors.ErrNoSession), errors.Is(err, errors.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, errors.ErrUnknownMessage):
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
