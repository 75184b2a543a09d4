package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"evsehub/internal/detector"
	"evsehub/internal/models"
	"evsehub/internal/store"
)

// SessionsHandler serves the session history endpoints.
type SessionsHandler struct {
	store  *store.SessionStore
	det    *detector.Detector
	logger *zap.Logger
}

// NewSessionsHandler builds the handler set.
func NewSessionsHandler(sessions *store.SessionStore, det *detector.Detector, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{store: sessions, det: det, logger: logger}
}

// HandleList handles GET /api/sessions?user=... and returns sessions newest
// first, with the in-progress session, if any, ahead of the closed history.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))

	sessions := h.store.List(user)
	if open, ok := h.det.OpenSession(); ok && (user == "" || open.User == user) {
		sessions = append([]models.Session{open}, sessions...)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// HandleGet handles GET /api/sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if open, ok := h.det.OpenSession(); ok && open.ID == id {
		writeJSON(w, http.StatusOK, open)
		return
	}

	session, err := h.store.GetByID(id)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("get session", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type noteRequest struct {
	Note string `json:"note"`
}

// HandleNote handles POST /api/sessions/{id}/note.
func (h *SessionsHandler) HandleNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	err := h.store.UpdateNote(r.Context(), id, strings.TrimSpace(req.Note))
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("update session note", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
