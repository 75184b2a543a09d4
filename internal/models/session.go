package models

import "time"

// Session represents one continuous charging episode. While open it is owned
// by the detector; once closed it belongs to the session store.
type Session struct {
	ID        string     `json:"id"`
	User      string     `json:"user"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Closed    bool       `json:"closed"`

	EnergyKWh            float64 `json:"energy_kwh"`
	CostEstimate         float64 `json:"cost_estimate"`
	BatteryPercentGained float64 `json:"battery_percent_gained"`

	// Display aggregates sampled while charging.
	AvgAmps  float64 `json:"avg_amps,omitempty"`
	PeakAmps float64 `json:"peak_amps,omitempty"`
	AvgVolts float64 `json:"avg_volts,omitempty"`

	// Lifetime meter readings bracketing the session, when reported.
	StartMeterKWh *float64 `json:"start_meter_kwh,omitempty"`
	EndMeterKWh   *float64 `json:"end_meter_kwh,omitempty"`

	// Ghost marks a session synthesized from a meter gap observed after the
	// backend was offline.
	Ghost bool `json:"ghost,omitempty"`

	Note string `json:"note,omitempty"`
}
