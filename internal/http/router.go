package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Login       http.HandlerFunc
	State       http.HandlerFunc
	Sessions    http.HandlerFunc
	SessionByID http.HandlerFunc
	SessionNote http.HandlerFunc
	SettingsGet http.HandlerFunc
	SettingsPut http.HandlerFunc
	Start       http.HandlerFunc
	Stop        http.HandlerFunc
	SetAmps     http.HandlerFunc
	NotifyTest  http.HandlerFunc
	PauseBridge http.HandlerFunc
	LiveFeed    http.HandlerFunc
	Health      http.HandlerFunc
}

// NewRouter registers endpoints. Everything except login and health sits
// behind the auth middleware.
func NewRouter(routes Routes, authMW func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	register := func(pattern string, handler http.HandlerFunc) {
		if handler == nil {
			return
		}
		mux.Handle(pattern, authMW(handler))
	}

	if routes.Login != nil {
		mux.Handle("POST /api/login", routes.Login)
	}
	if routes.Health != nil {
		mux.Handle("GET /health", routes.Health)
	}

	register("GET /api/state", routes.State)
	register("GET /api/sessions", routes.Sessions)
	register("GET /api/sessions/{id}", routes.SessionByID)
	register("POST /api/sessions/{id}/note", routes.SessionNote)
	register("GET /api/settings", routes.SettingsGet)
	register("POST /api/settings", routes.SettingsPut)
	register("POST /api/start/{user}", routes.Start)
	register("POST /api/stop", routes.Stop)
	register("POST /api/amps/{amps}", routes.SetAmps)
	register("POST /api/notify/test", routes.NotifyTest)
	register("POST /api/pause-bridge/{seconds}", routes.PauseBridge)
	register("GET /ws", routes.LiveFeed)

	return mux
}
