package utils

import (
	"time"
)

// Week is the length of a draw week
const Week = 7 * 24 * time.Hour

// MostRecentMonday returns 00:00 UTC of the Monday on or before now
func MostRecentMonday(now time.Time) time.Time {
	now = now.UTC()
	offset := (int(now.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	day := now.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// LookbackStart returns the earliest purchase time that can still hold an entry
// valid for the current draw, given how many draws an entry may span.
func LookbackStart(now time.Time, daysPerDraw int64, repeats int64) time.Time {
	monday := MostRecentMonday(now)
	if repeats <= 1 {
		return monday
	}
	return monday.AddDate(0, 0, -int(daysPerDraw*(repeats-1)))
}

// WeeksSince counts the weeks, partial weeks rounded up, between ts and ref.
// Timestamps at or after ref count as zero.
func WeeksSince(ref, ts time.Time) int {
	if !ts.Before(ref) {
		return 0
	}
	diff := ref.Sub(ts)
	weeks := int(diff / Week)
	if diff%Week != 0 {
		weeks++
	}
	return weeks
}

// MaskAddress masks a ledger address for logging (first 4 and last 4 characters)
func MaskAddress(address string) string {
	if len(address) > 8 {
		return address[:4] + "****" + address[len(address)-4:]
	}
	return "****"
}
