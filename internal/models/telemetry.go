package models

import "time"

// TelemetrySnapshot is the normalized view of one state/charge message from
// the bridge. It is ephemeral: the ingest layer overwrites the shared copy on
// every message and snapshots are never persisted on their own.
type TelemetrySnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Serial        string    `json:"serial,omitempty"`
	PlugConnected bool      `json:"plug_connected"`
	Charging      bool      `json:"charging"`
	Amps          float64   `json:"amps"`
	Volts         float64   `json:"volts"`
	TemperatureC  float64   `json:"temperature_c"`
	SignalDBM     int       `json:"signal_dbm"`
	ErrorCode     string    `json:"error_code,omitempty"`

	// MeterKWh is the charger's monotonic lifetime energy counter, when the
	// bridge reports one. Used to recover sessions missed while offline.
	MeterKWh *float64 `json:"meter_kwh,omitempty"`
}
