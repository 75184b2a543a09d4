package handlers

import (
	"net/http"

	"evsehub/internal/commands"
	"evsehub/internal/detector"
	"evsehub/internal/ingest"
	"evsehub/internal/models"
)

type stateResponse struct {
	ingest.StateDocument
	ChargeState string          `json:"charge_state"`
	OpenSession *models.Session `json:"open_session,omitempty"`
	LastUser    string          `json:"last_user,omitempty"`
	LastAmps    int             `json:"last_amps,omitempty"`
}

// NewStateHandler returns GET /api/state: bridge availability, the latest
// telemetry, the detector's view, and the last commanded user/amps.
func NewStateHandler(ing *ingest.Ingest, det *detector.Detector, disp *commands.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := stateResponse{
			StateDocument: ing.State(),
			ChargeState:   det.State().String(),
			LastUser:      disp.LastUser(),
			LastAmps:      disp.LastAmps(),
		}
		if open, ok := det.OpenSession(); ok {
			resp.OpenSession = &open
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
