package models

import (
	"encoding/json"
	"time"
)

// Settings is the singleton dashboard configuration record. It is replaced
// whole on every write and read fresh for every computation that needs it.
type Settings struct {
	ClockStart         string   `json:"clock_start"`
	ClockEnd           string   `json:"clock_end"`
	DiscountPercent    float64  `json:"clock_discount_percent"`
	PricePerKWh        float64  `json:"price_per_kwh"`
	BatteryCapacityKWh float64  `json:"battery_capacity_kwh"`
	Users              []string `json:"users"`
	Timezone           string   `json:"timezone,omitempty"`
}

// DefaultSettings returns the record used before anything was ever saved.
func DefaultSettings() Settings {
	return Settings{
		ClockStart:         "07:00",
		ClockEnd:           "23:00",
		DiscountPercent:    20,
		PricePerKWh:        0.64,
		BatteryCapacityKWh: 64.0,
		Users:              []string{"User"},
	}
}

// settingsDoc mirrors Settings with pointer fields so a key that is absent
// from a document can be told apart from an explicit zero value.
type settingsDoc struct {
	ClockStart         *string   `json:"clock_start"`
	ClockEnd           *string   `json:"clock_end"`
	DiscountPercent    *float64  `json:"clock_discount_percent"`
	PricePerKWh        *float64  `json:"price_per_kwh"`
	BatteryCapacityKWh *float64  `json:"battery_capacity_kwh"`
	Users              *[]string `json:"users"`
	Timezone           *string   `json:"timezone"`
}

// DecodeSettings parses a settings document, filling only the keys the
// document leaves out from defaults. Explicit values survive untouched, so a
// saved 0% discount stays 0%. Empty clock and timezone strings count as
// absent since they cannot be parsed.
func DecodeSettings(data []byte, defaults Settings) (Settings, error) {
	var doc settingsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Settings{}, err
	}

	out := defaults
	if doc.ClockStart != nil && *doc.ClockStart != "" {
		out.ClockStart = *doc.ClockStart
	}
	if doc.ClockEnd != nil && *doc.ClockEnd != "" {
		out.ClockEnd = *doc.ClockEnd
	}
	if doc.DiscountPercent != nil {
		out.DiscountPercent = *doc.DiscountPercent
	}
	if doc.PricePerKWh != nil {
		out.PricePerKWh = *doc.PricePerKWh
	}
	if doc.BatteryCapacityKWh != nil {
		out.BatteryCapacityKWh = *doc.BatteryCapacityKWh
	}
	if doc.Users != nil {
		out.Users = *doc.Users
	}
	if doc.Timezone != nil && *doc.Timezone != "" {
		out.Timezone = *doc.Timezone
	}
	return out, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
