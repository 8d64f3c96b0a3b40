package scheduling

import (
	"fmt"
	"time"
)

// Appointment start/end times are clinic-local "HH:MM" strings.

func parseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// clockSpan returns the duration between two HH:MM times on the same day.
func clockSpan(start, end string) (time.Duration, error) {
	s, err := parseClock(start)
	if err != nil {
		return 0, err
	}
	e, err := parseClock(end)
	if err != nil {
		return 0, err
	}
	if e < s {
		return 0, fmt.Errorf("end time %q precedes start time %q", end, start)
	}
	return e - s, nil
}

// addClock returns start shifted by d, formatted as HH:MM. A shift that
// crosses midnight has no valid same-day end time and is rejected.
func addClock(start string, d time.Duration) (string, error) {
	s, err := parseClock(start)
	if err != nil {
		return "", err
	}
	total := s + d
	if total >= 24*time.Hour {
		return "", fmt.Errorf("time slot starting at %q crosses midnight", start)
	}
	h := int(total / time.Hour)
	m := int(total % time.Hour / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m), nil
}
