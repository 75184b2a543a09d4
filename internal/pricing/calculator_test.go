package pricing

import (
	"math"
	"testing"
	"time"

	"evsehub/internal/models"
)

func settingsWith(start, end string, discount, price float64) models.Settings {
	return models.Settings{
		ClockStart:         start,
		ClockEnd:           end,
		DiscountPercent:    discount,
		PricePerKWh:        price,
		BatteryCapacityKWh: 64.0,
	}
}

func TestSessionCostHalfInsideWindow(t *testing.T) {
	// 12-hour session, exactly half inside a 00:00-12:00 window:
	// 2 kWh at 1.0/kWh with 25% discount on half the duration.
	settings := settingsWith("00:00", "12:00", 25, 1.0)
	start := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	cost := SessionCost(2.0, start, end, settings)
	want := 2.0 * 1.0 * (0.5 + 0.5*0.75)
	if math.Abs(cost-want) > 1e-9 {
		t.Fatalf("expected cost %.4f, got %.4f", want, cost)
	}
}

func TestSessionCostEntirelyOutsideWindow(t *testing.T) {
	settings := settingsWith("23:00", "07:00", 20, 0.5)
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cost := SessionCost(4.0, start, end, settings)
	if math.Abs(cost-4.0*0.5) > 1e-9 {
		t.Fatalf("expected undiscounted cost %.4f, got %.4f", 4.0*0.5, cost)
	}
}

func TestDiscountedFractionOvernightWindow(t *testing.T) {
	// Window 23:00-07:00, session 22:00-02:00: three of four hours inside.
	settings := settingsWith("23:00", "07:00", 20, 1.0)
	start := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)

	frac := DiscountedFraction(start, end, settings)
	if math.Abs(frac-0.75) > 1e-9 {
		t.Fatalf("expected fraction 0.75, got %.4f", frac)
	}
}

func TestDiscountedFractionMultiDay(t *testing.T) {
	// Window 00:00-12:00 over exactly two days: half the time inside.
	settings := settingsWith("00:00", "12:00", 20, 1.0)
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)

	frac := DiscountedFraction(start, end, settings)
	if math.Abs(frac-0.5) > 1e-9 {
		t.Fatalf("expected fraction 0.5, got %.4f", frac)
	}
}

func TestDiscountedFractionDegenerateInputs(t *testing.T) {
	settings := settingsWith("07:00", "23:00", 20, 1.0)
	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	if frac := DiscountedFraction(at, at, settings); frac != 0 {
		t.Fatalf("expected 0 for empty interval, got %.4f", frac)
	}

	settings.ClockStart = "not-a-clock"
	if frac := DiscountedFraction(at, at.Add(time.Hour), settings); frac != 0 {
		t.Fatalf("expected 0 for invalid window, got %.4f", frac)
	}
}

func TestSessionCostZeroEnergy(t *testing.T) {
	settings := settingsWith("07:00", "23:00", 20, 1.0)
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	if cost := SessionCost(0, start, start.Add(time.Hour), settings); cost != 0 {
		t.Fatalf("expected zero cost for zero energy, got %.4f", cost)
	}
}

func TestBatteryPercentGained(t *testing.T) {
	cases := []struct {
		name     string
		energy   float64
		capacity float64
		want     float64
	}{
		{"typical", 16, 64, 25},
		{"full clamp", 80, 64, 100},
		{"zero energy", 0, 64, 0},
		{"zero capacity", 10, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BatteryPercentGained(tc.energy, tc.capacity)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("expected %.2f%%, got %.2f%%", tc.want, got)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	if _, err := parseClock("23:00"); err != nil {
		t.Fatalf("expected 23:00 to parse: %v", err)
	}
	for _, bad := range []string{"", "25:00", "12:75", "noon"} {
		if _, err := parseClock(bad); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}
