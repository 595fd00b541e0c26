package clock_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"inkframe/internal/clock"
)

func mustService(t *testing.T, tz string, at time.Time) (*clock.Service, *clockwork.FakeClock) {
	t.Helper()
	fake := clockwork.NewFakeClockAt(at)
	svc, err := clock.NewWithClock(tz, fake)
	if err != nil {
		t.Fatalf("NewWithClock failed: %v", err)
	}
	return svc, fake
}

func TestUnknownTimezone(t *testing.T) {
	if _, err := clock.New("Neverland/Nowhere"); err == nil {
		t.Fatal("expected error for unknown timezone, got nil")
	}
}

func TestNowNonDecreasing(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)
	svc, fake := mustService(t, "UTC", start)

	first := svc.Now()
	// Step the underlying clock backwards; Now must not go back.
	fake.Advance(-time.Hour)
	second := svc.Now()

	if second.Before(first) {
		t.Errorf("Now went backwards: %v then %v", first, second)
	}
}

func TestSecondsUntilNextHourBounds(t *testing.T) {
	cases := []struct {
		at   time.Time
		want int
	}{
		{time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), 3600},
		{time.Date(2025, 6, 2, 9, 59, 59, 0, time.UTC), 1},
		{time.Date(2025, 6, 2, 9, 59, 59, 500_000_000, time.UTC), 1},
		{time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC), 1800},
	}
	for _, tc := range cases {
		svc, _ := mustService(t, "UTC", tc.at)
		got := svc.SecondsUntilNextHour()
		if got != tc.want {
			t.Errorf("at %v: got %d, want %d", tc.at, got, tc.want)
		}
		if got < 1 || got > 3600 {
			t.Errorf("at %v: %d out of [1, 3600]", tc.at, got)
		}
	}
}

func TestDayHourMondayZero(t *testing.T) {
	svc, _ := mustService(t, "UTC", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))

	// 2025-06-02 is a Monday.
	day, hour := svc.DayHour(time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC))
	if day != 0 || hour != 9 {
		t.Errorf("Monday 09:15: got (%d, %d), want (0, 9)", day, hour)
	}

	// 2025-06-08 is a Sunday.
	day, hour = svc.DayHour(time.Date(2025, 6, 8, 23, 59, 0, 0, time.UTC))
	if day != 6 || hour != 23 {
		t.Errorf("Sunday 23:59: got (%d, %d), want (6, 23)", day, hour)
	}
}

func TestDayHourRespectsTimezone(t *testing.T) {
	svc, _ := mustService(t, "Europe/Oslo", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))

	// 2025-06-02 23:30 UTC is 2025-06-03 01:30 in Oslo (CEST, +2).
	day, hour := svc.DayHour(time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC))
	if day != 1 || hour != 1 {
		t.Errorf("got (%d, %d), want (1, 1)", day, hour)
	}
}
