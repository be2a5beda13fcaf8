package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"aireadiness/internal/config"
	"aireadiness/internal/model"
	"aireadiness/internal/quiz"
	"aireadiness/internal/service"
	"aireadiness/internal/transport/rest/middleware"
)

// SessionHandler handles the session controller endpoints
type SessionHandler struct {
	sessionSvc *service.SessionService
	deck       *config.CopyDeck
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionSvc *service.SessionService, deck *config.CopyDeck) *SessionHandler {
	return &SessionHandler{
		sessionSvc: sessionSvc,
		deck:       deck,
	}
}

// Mount handles GET /v1/session
func (h *SessionHandler) Mount(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	view, err := h.sessionSvc.Mount(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, h.deck.StartError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Start handles POST /v1/session/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	view, err := h.sessionSvc.Start(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, h.deck.StartError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ResumeRequest is the request body for the resume choice
type ResumeRequest struct {
	Continue bool `json:"continue"`
}

// Resume handles POST /v1/session/resume
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.sessionSvc.Resume(r.Context(), sessionID, req.Continue)
	if err != nil {
		h.writeServiceError(w, err, h.deck.StartError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SubmitAnswer handles POST /v1/session/answers
func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	var sub service.AnswerSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if sub.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "question_id is required")
		return
	}

	view, err := h.sessionSvc.SubmitAnswer(r.Context(), sessionID, &sub)
	if err != nil {
		h.writeServiceError(w, err, h.deck.AnswerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Skip handles POST /v1/session/skip
func (h *SessionHandler) Skip(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	view, err := h.sessionSvc.Skip(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, h.deck.AnswerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Speak handles POST /v1/session/speak (manual re-speak of the current question)
func (h *SessionHandler) Speak(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	if err := h.sessionSvc.ReSpeak(sessionID); err != nil {
		h.writeServiceError(w, err, h.deck.AnswerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "speaking"})
}

// SpeechEndedRequest reports a finished audio playback
type SpeechEndedRequest struct {
	Token uint64 `json:"token"`
}

// SpeechEnded handles POST /v1/session/speech/ended
func (h *SessionHandler) SpeechEnded(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	var req SpeechEndedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.sessionSvc.PlaybackEnded(sessionID, req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps controller errors onto the wire: 4xx from the
// engine keep their status and server message, concurrency and phase
// conflicts are 409, everything else is a gateway-side failure with the
// generic copy.
func (h *SessionHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var clientErr *quiz.ClientError
	switch {
	case errors.As(err, &clientErr):
		message := clientErr.Message
		if message == "" {
			message = fallback
		}
		writeError(w, clientErr.Status, message)
	case errors.Is(err, service.ErrSubmissionInFlight), errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrNothingToSpeak):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadGateway, fallback)
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
