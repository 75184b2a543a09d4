package models

import "time"

// CommandIntent enumerates the user-facing charger commands.
type CommandIntent string

const (
	CommandStart   CommandIntent = "start"
	CommandStop    CommandIntent = "stop"
	CommandSetAmps CommandIntent = "set_amps"
)

// CommandRequest is a transient record of a dispatched intent. It is never
// persisted; confirmation arrives only through subsequent telemetry.
type CommandRequest struct {
	Intent   CommandIntent `json:"intent"`
	User     string        `json:"user,omitempty"`
	Amps     int           `json:"amps,omitempty"`
	IssuedAt time.Time     `json:"issued_at"`
}
