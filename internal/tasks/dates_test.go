package tasks

import (
	"testing"
	"time"
)

func TestParseDue(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, loc) // a Sunday
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, loc) }

	tests := []struct {
		in      string
		want    time.Time
		allDay  bool
		wantErr bool
	}{
		{"today", day(2025, 6, 15), true, false},
		{"Tomorrow", day(2025, 6, 16), true, false},
		{"next week", day(2025, 6, 22), true, false},
		{"in 3 days", day(2025, 6, 18), true, false},
		{"in 1 week", day(2025, 6, 22), true, false},
		{"in 2 weeks", day(2025, 6, 29), true, false},
		{"2025-01-01", day(2025, 1, 1), true, false},
		{"07/04/2025", day(2025, 7, 4), true, false},
		{"7/4/2026", day(2026, 7, 4), true, false},
		{"12/25", day(2025, 12, 25), true, false},
		{"3/1", day(2026, 3, 1), true, false},
		{"January 2", day(2026, 1, 2), true, false},
		{"jun 20", day(2025, 6, 20), true, false},
		{"June 15", day(2025, 6, 15), true, false},
		{"2025-06-20 09:15", time.Date(2025, 6, 20, 9, 15, 0, 0, loc), false, false},
		{"2025-06-20T09:15:00-07:00", time.Date(2025, 6, 20, 16, 15, 0, 0, loc), false, false},
		{"someday", time.Time{}, false, true},
		{"in three days", time.Time{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, allDay, err := ParseDue(tt.in, now, loc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDue: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if allDay != tt.allDay {
				t.Errorf("allDay = %v, want %v", allDay, tt.allDay)
			}
		})
	}
}

func TestParseDueUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	// 03:00 UTC on the 2nd is still the 1st at UTC-8.
	now := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)

	got, _, err := ParseDue("today", now, loc)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDueRoundTrip(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	allDay := time.Date(2025, 3, 9, 0, 0, 0, 0, loc)
	got, isAllDay, err := readDue(formatDue(allDay, true), loc)
	if err != nil || !isAllDay || !got.Equal(allDay) {
		t.Errorf("all-day round trip: %v %v %v", got, isAllDay, err)
	}

	timed := time.Date(2025, 3, 9, 17, 45, 0, 0, loc)
	got, isAllDay, err = readDue(formatDue(timed, false), loc)
	if err != nil || isAllDay || !got.Equal(timed) {
		t.Errorf("timed round trip: %v %v %v", got, isAllDay, err)
	}
}
