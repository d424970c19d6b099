// Package timegrid turns weekly working-hour ranges into concrete
// HH:mm slot boundaries for a calendar day.
package timegrid

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	ErrBadTimeFormat = errors.New("time must be in HH:mm format")
	ErrBadDate       = errors.New("invalid date")
)

var timeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Range is a contiguous working-hours window within one day.
type Range struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Slot is a single bookable interval. Slots are keyed by StartTime
// everywhere else in the system.
type Slot struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// MinutesOf parses an HH:mm string into minutes since midnight.
func MinutesOf(s string) (int, error) {
	if !timeRe.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrBadTimeFormat, s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTimeFormat, s)
	}
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadTimeFormat, s)
	}
	return h*60 + m, nil
}

// TimeStringOf formats minutes since midnight as zero-padded HH:mm.
func TimeStringOf(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// GenerateSlots walks each range in slotDuration increments and emits a
// slot only when the full slot fits at or before the range end. Ranges
// are processed in input order and are not merged or re-sorted; the
// caller supplies them pre-ordered.
func GenerateSlots(ranges []Range, slotDuration int) ([]Slot, error) {
	if slotDuration <= 0 {
		slotDuration = 30
	}

	var slots []Slot
	for _, r := range ranges {
		cursor, err := MinutesOf(r.StartTime)
		if err != nil {
			return nil, fmt.Errorf("range start: %w", err)
		}
		end, err := MinutesOf(r.EndTime)
		if err != nil {
			return nil, fmt.Errorf("range end: %w", err)
		}
		for cursor+slotDuration <= end {
			slots = append(slots, Slot{
				StartTime: TimeStringOf(cursor),
				EndTime:   TimeStringOf(cursor + slotDuration),
			})
			cursor += slotDuration
		}
	}
	return slots, nil
}

// NormalizeDate parses an ISO-8601 date or datetime and truncates it to
// UTC midnight. All (doctor, date) grouping in the engine relies on this
// single truncation point.
func NormalizeDate(input string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, input); err == nil {
			return Truncate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, input)
}

// Truncate strips the time-of-day from t at UTC midnight.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
