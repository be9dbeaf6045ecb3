package model

import (
	"testing"
	"time"
)

func TestDayStartIdempotent(t *testing.T) {
	stamps := []int64{
		time.Date(2021, time.September, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		time.Date(2021, time.September, 1, 23, 59, 59, 999000000, time.UTC).UnixMilli(),
		time.Date(2024, time.February, 29, 12, 30, 0, 0, time.UTC).UnixMilli(),
		1, // 1ms after epoch
	}
	for _, ts := range stamps {
		d := DayStart(ts)
		if DayStart(int64(d)) != d {
			t.Fatalf("dayStart not idempotent for %d: %d != %d", ts, DayStart(int64(d)), d)
		}
	}
}

func TestDayStartSameDate(t *testing.T) {
	morning := time.Date(2021, time.September, 1, 0, 0, 1, 0, time.UTC).UnixMilli()
	night := time.Date(2021, time.September, 1, 23, 59, 59, 0, time.UTC).UnixMilli()
	if DayStart(morning) != DayStart(night) {
		t.Fatalf("timestamps on the same date mapped to different buckets: %d vs %d",
			DayStart(morning), DayStart(night))
	}
	nextDay := time.Date(2021, time.September, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	if DayStart(night) == DayStart(nextDay) {
		t.Fatal("different dates mapped to the same bucket")
	}
	if DayStart(night).Next() != DayStart(nextDay) {
		t.Fatal("Next() did not advance to the following day bucket")
	}
	if DayStart(nextDay).Prev() != DayStart(night) {
		t.Fatal("Prev() did not step back to the preceding day bucket")
	}
	if !SameDay(morning, night) {
		t.Fatal("SameDay must hold for timestamps on the same date")
	}
	if SameDay(night, nextDay) {
		t.Fatal("SameDay must not hold across midnight")
	}
}

func TestDayStartInvalidEpoch(t *testing.T) {
	if DayStart(0).Valid() {
		t.Fatal("timestamp 0 must map to an invalid day")
	}
	if DayStart(-1000).Valid() {
		t.Fatal("negative timestamps must map to an invalid day")
	}
	if !DayStart(time.Now().UnixMilli()).Valid() {
		t.Fatal("current time must map to a valid day")
	}
}
