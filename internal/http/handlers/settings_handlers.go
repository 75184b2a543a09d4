package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"evsehub/internal/store"
)

// maxSettingsBody bounds the settings document a client may post.
const maxSettingsBody = 64 << 10

// SettingsHandler serves the settings record.
type SettingsHandler struct {
	store  *store.SettingsStore
	logger *zap.Logger
}

// NewSettingsHandler builds the handler set.
func NewSettingsHandler(settings *store.SettingsStore, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{store: settings, logger: logger}
}

// HandleGet handles GET /api/settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Get(r.Context()))
}

// HandlePut handles POST /api/settings. The whole record is replaced; keys
// the client leaves out fall back to defaults, while explicit values, zeros
// included, are kept as sent.
func (h *SettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	settings, err := h.store.PutDocument(r.Context(), body)
	if err != nil {
		if errors.Is(err, store.ErrBadSettings) {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		h.logger.Error("save settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "settings": settings})
}
