package detector

import "evsehub/internal/models"

// State is the detector's position in the charging lifecycle. Charger error
// codes are orthogonal: they surface through telemetry regardless of state
// and never open or close a session on their own.
type State int

const (
	StateIdle State = iota
	StatePluggedNotCharging
	StateCharging
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePluggedNotCharging:
		return "plugged_not_charging"
	case StateCharging:
		return "charging"
	default:
		return "unknown"
	}
}

// Effects are the side actions a transition demands of the detector.
type Effects struct {
	OpenSession  bool
	CloseSession bool
}

// Transition is the pure state function: given the current state and a
// snapshot it returns the next state and the effects to apply. All session
// bookkeeping lives in the caller, which keeps every transition unit-testable
// without a bus connection.
func Transition(state State, snap models.TelemetrySnapshot) (State, Effects) {
	switch state {
	case StateCharging:
		switch {
		case !snap.PlugConnected:
			// Abrupt disconnect, treated as an implicit stop.
			return StateIdle, Effects{CloseSession: true}
		case !snap.Charging:
			return StatePluggedNotCharging, Effects{CloseSession: true}
		default:
			return StateCharging, Effects{}
		}
	default: // StateIdle, StatePluggedNotCharging
		switch {
		case snap.Charging:
			return StateCharging, Effects{OpenSession: true}
		case snap.PlugConnected:
			return StatePluggedNotCharging, Effects{}
		default:
			return StateIdle, Effects{}
		}
	}
}
