package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"evsehub/internal/commands"
	"evsehub/internal/ingest"
)

// CommandsHandler serves the charger control endpoints.
type CommandsHandler struct {
	disp   *commands.Dispatcher
	ing    *ingest.Ingest
	logger *zap.Logger
}

// NewCommandsHandler builds the handler set.
func NewCommandsHandler(disp *commands.Dispatcher, ing *ingest.Ingest, logger *zap.Logger) *CommandsHandler {
	return &CommandsHandler{disp: disp, ing: ing, logger: logger}
}

// HandleStart handles POST /api/start/{user}. Amps default to the charger's
// last reported configuration.
func (h *CommandsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.PathValue("user"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	amps := h.ing.ReportedAmps()
	if err := h.disp.StartFor(r.Context(), user, amps); err != nil {
		h.logger.Error("dispatch start", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to dispatch command")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "user": user, "amps": amps})
}

// HandleStop handles POST /api/stop.
func (h *CommandsHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.disp.Stop(r.Context()); err != nil {
		h.logger.Error("dispatch stop", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to dispatch command")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleSetAmps handles POST /api/amps/{amps}.
func (h *CommandsHandler) HandleSetAmps(w http.ResponseWriter, r *http.Request) {
	amps, err := strconv.Atoi(r.PathValue("amps"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amps value")
		return
	}

	err = h.disp.SetAmps(r.Context(), amps)
	if errors.Is(err, commands.ErrInvalidAmps) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("dispatch set-amps", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to dispatch command")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "amps": amps})
}
