package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"evsehub/internal/auth"
)

type loginRequest struct {
	PIN string `json:"pin"`
}

// NewLoginHandler returns the POST /api/login handler. A correct PIN yields
// a signed HttpOnly cookie valid for the token TTL.
func NewLoginHandler(pins *auth.PinVerifier, tokens *auth.TokenService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}

		if err := pins.Verify(req.PIN); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid pin")
			return
		}

		token, err := tokens.GenerateToken()
		if err != nil {
			logger.Error("generate auth token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(tokens.TTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
