// Package estimate maps service categories to expected work durations.
package estimate

import (
	"strings"
	"time"
)

// DefaultDuration is used for categories not present in the table. Duration
// is advisory (calendar-slot sizing), so unknown categories degrade to the
// default rather than failing.
const DefaultDuration = 60 * time.Minute

var byCategory = map[string]time.Duration{
	"cleaning":     120 * time.Minute,
	"deep_clean":   240 * time.Minute,
	"maintenance":  180 * time.Minute,
	"gardening":    90 * time.Minute,
	"plumbing":     60 * time.Minute,
	"electrical":   60 * time.Minute,
	"painting":     240 * time.Minute,
	"pest_control": 75 * time.Minute,
	"inspection":   45 * time.Minute,
	"laundry":      45 * time.Minute,
}

// Duration returns the expected duration for a service category. The lookup
// is case-insensitive and tolerant of surrounding whitespace.
func Duration(category string) time.Duration {
	if d, ok := byCategory[strings.ToLower(strings.TrimSpace(category))]; ok {
		return d
	}
	return DefaultDuration
}
