package model

import "time"

// Day is a day bucket: milliseconds at 00:00:00 UTC of a calendar date.
type Day int64

const millisPerDay = 24 * 60 * 60 * 1000

// DayStart normalizes a wall-clock millisecond timestamp to its day bucket.
// Idempotent: DayStart(int64(DayStart(t))) == DayStart(t).
func DayStart(tsMillis int64) Day {
	if tsMillis <= 0 {
		return Day(0)
	}
	t := time.UnixMilli(tsMillis).UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Day(midnight.UnixMilli())
}

// Valid reports whether the bucket maps to a real epoch day. Timestamp 0
// (the chain's first block, before the wall clock is meaningful) is invalid.
func (d Day) Valid() bool {
	return d > 0
}

func (d Day) Next() Day {
	return d + millisPerDay
}

func (d Day) Prev() Day {
	return d - millisPerDay
}

func (d Day) Time() time.Time {
	return time.UnixMilli(int64(d)).UTC()
}

func SameDay(a, b int64) bool {
	return DayStart(a) == DayStart(b)
}
