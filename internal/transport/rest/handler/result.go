package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"aireadiness/internal/repository"
	"aireadiness/internal/service"
)

// ResultHandler serves the durable session record behind the results page
type ResultHandler struct {
	sessions repository.SessionRepo
	tokens   *service.TokenService
}

// NewResultHandler creates a new result handler
func NewResultHandler(sessions repository.SessionRepo, tokens *service.TokenService) *ResultHandler {
	return &ResultHandler{
		sessions: sessions,
		tokens:   tokens,
	}
}

// Get handles GET /v1/results/{sessionId}?token=...
func (h *ResultHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing result token")
		return
	}
	claims, err := h.tokens.ValidateResultToken(token)
	if err != nil || claims.SessionID != sessionID {
		writeError(w, http.StatusUnauthorized, "invalid result token")
		return
	}

	record, err := h.sessions.GetBySessionID(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, record)
}
