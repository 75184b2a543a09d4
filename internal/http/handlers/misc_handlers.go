package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"evsehub/internal/bridge"
	"evsehub/internal/notify"
)

// NewNotifyTestHandler returns POST /api/notify/test.
func NewNotifyTestHandler(tg *notify.Telegram, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tg.Enabled() {
			writeError(w, http.StatusBadRequest, "notifications are not configured")
			return
		}
		if err := tg.Test(); err != nil {
			logger.Warn("test notification failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "failed to deliver test notification")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// NewPauseBridgeHandler returns POST /api/pause-bridge/{seconds}.
func NewPauseBridgeHandler(pauser *bridge.Pauser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seconds, err := strconv.Atoi(r.PathValue("seconds"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid seconds value")
			return
		}
		applied := pauser.PauseFor(seconds)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "paused_for": applied})
	}
}

// NewHealthHandler returns GET /health.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
