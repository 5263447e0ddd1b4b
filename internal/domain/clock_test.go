package domain

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:05", 545, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"nope", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.value)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error", tc.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.value, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.value, got, tc.want)
		}
	}
}

func TestFormatClockWraps(t *testing.T) {
	cases := []struct {
		minutes int
		want    string
	}{
		{0, "00:00"},
		{545, "09:05"},
		{1439, "23:59"},
		{1440, "00:00"},
		{1500, "01:00"},
		{-60, "23:00"},
	}
	for _, tc := range cases {
		if got := FormatClock(tc.minutes); got != tc.want {
			t.Errorf("FormatClock(%d) = %q, want %q", tc.minutes, got, tc.want)
		}
	}
}

func TestResolveClockOn(t *testing.T) {
	day := time.Date(2026, 3, 10, 17, 45, 12, 0, time.UTC)
	got, err := ResolveClockOn(day, "09:30")
	if err != nil {
		t.Fatalf("ResolveClockOn: %v", err)
	}
	want := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ResolveClockOn(day, "bad"); err == nil {
		t.Error("expected error for unparseable clock value")
	}
}
