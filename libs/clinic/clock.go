package clinic

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseClock converts a 24-hour "HH:MM" label to minutes after midnight.
func ParseClock(label string) (int, error) {
	label = strings.TrimSpace(label)
	h, m, ok := strings.Cut(label, ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", label)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", label)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", label)
	}
	return hour*60 + minute, nil
}

// ClockLabel formats minutes after midnight as "HH:MM". 24:00 is rendered as "24:00".
func ClockLabel(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
