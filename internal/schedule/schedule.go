// Package schedule computes next_run_at values from a deliverable's
// frequency/day/time/timezone tuple. All math happens in the deliverable's own
// timezone and results are returned in UTC.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Validate rejects malformed schedule tuples before they are persisted.
func Validate(frequency, byDay, atTime, timezone string) error {
	switch frequency {
	case models.FrequencyDaily:
	case models.FrequencyWeekly:
		if _, ok := weekdays[strings.ToLower(strings.TrimSpace(byDay))]; !ok {
			return fmt.Errorf("weekly schedule requires a weekday, got %q", byDay)
		}
	case models.FrequencyMonthly:
		day, err := strconv.Atoi(strings.TrimSpace(byDay))
		if err != nil || day < 1 || day > 28 {
			return fmt.Errorf("monthly schedule requires a day of month 1-28, got %q", byDay)
		}
	default:
		return fmt.Errorf("unknown frequency %q", frequency)
	}
	if _, _, err := parseAtTime(atTime); err != nil {
		return err
	}
	if _, err := loadLocation(timezone); err != nil {
		return err
	}
	return nil
}

// Next returns the first schedule occurrence strictly after the given instant.
func Next(d models.Deliverable, after time.Time) (time.Time, error) {
	loc, err := loadLocation(d.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := parseAtTime(d.AtTime)
	if err != nil {
		return time.Time{}, err
	}

	local := after.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	switch d.Frequency {
	case models.FrequencyDaily:
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
		}
	case models.FrequencyWeekly:
		target := weekdays[strings.ToLower(strings.TrimSpace(d.ByDay))]
		for candidate.Weekday() != target || !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
			// Rebuild at the wall-clock time so a DST transition cannot
			// drift the run time.
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(), hour, minute, 0, 0, loc)
		}
	case models.FrequencyMonthly:
		day, _ := strconv.Atoi(strings.TrimSpace(d.ByDay))
		candidate = time.Date(local.Year(), local.Month(), day, hour, minute, 0, 0, loc)
		if !candidate.After(after) {
			candidate = time.Date(local.Year(), local.Month()+1, day, hour, minute, 0, 0, loc)
		}
	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", d.Frequency)
	}

	return candidate.UTC(), nil
}

func parseAtTime(atTime string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(atTime), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("at_time must be HH:MM, got %q", atTime)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("at_time must be HH:MM, got %q", atTime)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("at_time must be HH:MM, got %q", atTime)
	}
	return hour, minute, nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}
