package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DayHours is one weekday's opening window. Open and Close are local
// wall-clock times in "15:04" form; a disabled day ignores both.
type DayHours struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Open    string `json:"open" yaml:"open"`
	Close   string `json:"close" yaml:"close"`
}

// WeeklyHours is the operating-hours schedule, keyed by lowercase English
// weekday name.
type WeeklyHours map[string]DayHours

// DefaultWeeklyHours returns the schedule used until one is configured:
// weekdays and Saturday 09:00-18:00, Sunday closed.
func DefaultWeeklyHours() WeeklyHours {
	hours := make(WeeklyHours, 7)
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		hours[day] = DayHours{Enabled: true, Open: "09:00", Close: "18:00"}
	}
	hours["sunday"] = DayHours{Enabled: false, Open: "09:00", Close: "18:00"}
	return hours
}

// Validate checks every enabled day parses and opens before it closes.
func (h WeeklyHours) Validate() error {
	for day, window := range h {
		if !validWeekday(day) {
			return fmt.Errorf("operating hours: unknown weekday %q", day)
		}
		if !window.Enabled {
			continue
		}
		open, err := parseWallClock(window.Open)
		if err != nil {
			return fmt.Errorf("operating hours: %s open: %w", day, err)
		}
		closeAt, err := parseWallClock(window.Close)
		if err != nil {
			return fmt.Errorf("operating hours: %s close: %w", day, err)
		}
		if open >= closeAt {
			return fmt.Errorf("operating hours: %s open must be before close", day)
		}
	}
	return nil
}

// OpenAt reports whether the schedule admits customers at the given instant,
// evaluated in that instant's location.
func (h WeeklyHours) OpenAt(now time.Time) bool {
	window, ok := h[strings.ToLower(now.Weekday().String())]
	if !ok || !window.Enabled {
		return false
	}
	open, err := parseWallClock(window.Open)
	if err != nil {
		return false
	}
	closeAt, err := parseWallClock(window.Close)
	if err != nil {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= open && minute < closeAt
}

func validWeekday(day string) bool {
	switch day {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}

// parseWallClock converts "15:04" into minutes since midnight.
func parseWallClock(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// encodeWeeklyHours serializes the schedule for the status record. An empty
// schedule encodes as the empty string.
func encodeWeeklyHours(hours WeeklyHours) (string, error) {
	if len(hours) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(hours)
	if err != nil {
		return "", fmt.Errorf("encode operating hours: %w", err)
	}
	return string(encoded), nil
}

// decodeWeeklyHours restores the schedule from the status record, falling back
// to the default schedule when none was stored.
func decodeWeeklyHours(value string) (WeeklyHours, error) {
	if strings.TrimSpace(value) == "" {
		return DefaultWeeklyHours(), nil
	}
	var hours WeeklyHours
	if err := json.Unmarshal([]byte(value), &hours); err != nil {
		return nil, fmt.Errorf("decode operating hours: %w", err)
	}
	return hours, nil
}
