package pricing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"evsehub/internal/models"
)

// SessionCost computes the cost of a session given its total energy and the
// settings snapshot taken at close time. The discount multiplier applies to
// the fraction of the session's duration that falls inside the recurring
// daily clock window, with energy split proportionally to time.
func SessionCost(energyKWh float64, start, end time.Time, settings models.Settings) float64 {
	if energyKWh <= 0 {
		return 0
	}

	price := settings.PricePerKWh
	frac := DiscountedFraction(start, end, settings)
	multiplier := 1 - settings.DiscountPercent/100
	if multiplier < 0 {
		multiplier = 0
	}

	return energyKWh*price*(1-frac) + energyKWh*price*frac*multiplier
}

// DiscountedFraction returns the fraction of [start, end) that overlaps the
// clock window, evaluated in the settings timezone. Sessions crossing
// midnight sum the overlap of every day they touch. Returns 0 for degenerate
// intervals or unparsable window bounds.
func DiscountedFraction(start, end time.Time, settings models.Settings) float64 {
	if !end.After(start) {
		return 0
	}

	startMin, err := parseClock(settings.ClockStart)
	if err != nil {
		return 0
	}
	endMin, err := parseClock(settings.ClockEnd)
	if err != nil {
		return 0
	}

	overlap := windowOverlap(start, end, startMin, endMin, settings.Location())
	return float64(overlap) / float64(end.Sub(start))
}

// BatteryPercentGained estimates how much of the battery the session filled,
// clamped to [0, 100].
func BatteryPercentGained(energyKWh, capacityKWh float64) float64 {
	if energyKWh <= 0 || capacityKWh <= 0 {
		return 0
	}
	pct := energyKWh / capacityKWh * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// windowOverlap walks the interval day by day and sums the intersection with
// the clock window. An overnight window (start > end, e.g. 23:00-07:00)
// contributes two segments per day.
func windowOverlap(start, end time.Time, startMin, endMin int, loc *time.Location) time.Duration {
	var total time.Duration

	s := start.In(loc)
	day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
	for day.Before(end) {
		next := day.AddDate(0, 0, 1)
		switch {
		case startMin == endMin:
			// Empty window.
		case startMin < endMin:
			total += intersect(start, end, day.Add(time.Duration(startMin)*time.Minute), day.Add(time.Duration(endMin)*time.Minute))
		default:
			total += intersect(start, end, day.Add(time.Duration(startMin)*time.Minute), next)
			total += intersect(start, end, day, day.Add(time.Duration(endMin)*time.Minute))
		}
		day = next
	}

	return total
}

func intersect(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	if bStart.Before(aStart) {
		bStart = aStart
	}
	if bEnd.After(aEnd) {
		bEnd = aEnd
	}
	if !bEnd.After(bStart) {
		return 0
	}
	return bEnd.Sub(bStart)
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("pricing: invalid clock value %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("pricing: invalid clock value %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("pricing: invalid clock value %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("pricing: clock value %q out of range", value)
	}
	return hour*60 + minute, nil
}
