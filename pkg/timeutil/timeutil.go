// Package timeutil provides time helpers shared by the bot and the API:
// a UTC clock and countdown formatting for bonus cooldowns.
// All timestamps are stored and compared in UTC.
package timeutil

import (
	"fmt"
	"time"
)

// Clock returns the current time. Handlers take a Clock so tests can pin time.
type Clock func() time.Time

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// splitDuration breaks a non-negative duration into whole hours, minutes and seconds.
// Partial seconds are dropped.
func splitDuration(d time.Duration) (hours, minutes, seconds int) {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return total / 3600, (total % 3600) / 60, total % 60
}

// FormatHMS formats a duration as HH:MM:SS.
func FormatHMS(d time.Duration) string {
	h, m, s := splitDuration(d)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatMS formats a duration as MM:SS, folding hours into minutes.
func FormatMS(d time.Duration) string {
	h, m, s := splitDuration(d)
	return fmt.Sprintf("%02d:%02d", h*60+m, s)
}

// FormatHoursMinutes formats a duration as "N год M хв".
func FormatHoursMinutes(d time.Duration) string {
	h, m, _ := splitDuration(d)
	return fmt.Sprintf("%d год %d хв", h, m)
}

// FormatCountdown picks HH:MM:SS for waits of an hour or more and MM:SS otherwise.
func FormatCountdown(d time.Duration) string {
	if d >= time.Hour {
		return FormatHMS(d)
	}
	return FormatMS(d)
}

// Ptr returns a pointer to a copy of t.
func Ptr(t time.Time) *time.Time {
	return &t
}
