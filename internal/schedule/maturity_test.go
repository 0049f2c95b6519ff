package schedule

import (
	"sort"
	"testing"
	"time"
)

// assertResolved checks the resolved dates for a fixed instant against
// the expected calendar days (listed per bucket, duplicates collapse).
func assertResolved(t *testing.T, epochMillis int64, expected []string) {
	t.Helper()

	got := ResolveMaturityDates(time.UnixMilli(epochMillis))

	want := make(map[string]struct{}, len(expected))
	for _, d := range expected {
		want[d] = struct{}{}
	}
	wantSorted := make([]string, 0, len(want))
	for d := range want {
		wantSorted = append(wantSorted, d)
	}
	sort.Strings(wantSorted)

	gotKeys := make([]string, len(got))
	for i, d := range got {
		gotKeys[i] = MaturityKey(d)
	}

	if len(gotKeys) != len(wantSorted) {
		t.Fatalf("expected %d dates, got %d: %v", len(wantSorted), len(gotKeys), gotKeys)
	}
	for i := range gotKeys {
		if gotKeys[i] != wantSorted[i] {
			t.Fatalf("date %d: expected %s, got %s (all: %v)", i, wantSorted[i], gotKeys[i], gotKeys)
		}
	}
}

func TestResolveSundayBeforeCutoff(t *testing.T) {
	// December 1, 2024, 07:50:34 UTC, Sunday
	assertResolved(t, 1733039434000, []string{
		// daily
		"2024-12-01", "2024-12-02", "2024-12-03",
		// weekly
		"2024-12-06", "2024-12-13", "2024-12-20", "2024-12-27",
		// monthly
		"2024-12-27", "2025-01-31", "2025-02-28", "2025-03-28",
		// quarterly
		"2024-12-27", "2025-03-28", "2025-06-27", "2025-09-26",
	})
}

func TestResolveSundayAfterCutoff(t *testing.T) {
	// December 1, 2024, 07:59:02 UTC — today's daily contract has rolled
	assertResolved(t, 1733039942000, []string{
		"2024-12-02", "2024-12-03", "2024-12-04",
		"2024-12-06", "2024-12-13", "2024-12-20", "2024-12-27",
		"2024-12-27", "2025-01-31", "2025-02-28", "2025-03-28",
		"2024-12-27", "2025-03-28", "2025-06-27", "2025-09-26",
	})
}

func TestResolveFridayBeforeCutoff(t *testing.T) {
	// Friday, January 31, 2025, 07:58:59 UTC. Today is both a weekly
	// Friday and the last Friday of its month, yet only the daily bucket
	// keeps it: weekly and monthly exclude the same day.
	assertResolved(t, 1738310339000, []string{
		"2025-01-31", "2025-02-01", "2025-02-02",
		"2025-02-07", "2025-02-14", "2025-02-21", "2025-02-28",
		"2025-02-28", "2025-03-28", "2025-04-25", "2025-05-30",
		"2025-03-28", "2025-06-27", "2025-09-26", "2025-12-26",
	})
}

func TestResolveFridayAfterCutoff(t *testing.T) {
	// Friday, January 31, 2025, 09:58:59 UTC
	assertResolved(t, 1738317539000, []string{
		"2025-02-01", "2025-02-02", "2025-02-03",
		"2025-02-07", "2025-02-14", "2025-02-21", "2025-02-28",
		"2025-02-28", "2025-03-28", "2025-04-25", "2025-05-30",
		"2025-03-28", "2025-06-27", "2025-09-26", "2025-12-26",
	})
}

func TestResolveQuarterEndFriday(t *testing.T) {
	// Friday, December 27, 2024, 07:58:59 UTC — the quarterly Friday of
	// the current quarter is today and therefore excluded.
	assertResolved(t, 1735286339000, []string{
		"2024-12-27", "2024-12-28", "2024-12-29",
		"2025-01-03", "2025-01-10", "2025-01-17", "2025-01-24",
		"2025-01-31", "2025-02-28", "2025-03-28", "2025-04-25",
		"2025-03-28", "2025-06-27", "2025-09-26", "2025-12-26",
	})
}

func TestResolvedDatesAscendingAndUnique(t *testing.T) {
	instants := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 7, 58, 59, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 27, 8, 0, 0, 0, time.UTC),
	}
	for _, now := range instants {
		dates := ResolveMaturityDates(now)
		if len(dates) == 0 {
			t.Fatalf("%v: empty result", now)
		}
		for i := 1; i < len(dates); i++ {
			if !dates[i-1].Before(dates[i]) {
				t.Fatalf("%v: dates not strictly ascending: %v then %v", now, dates[i-1], dates[i])
			}
			if MaturityKey(dates[i-1]) == MaturityKey(dates[i]) {
				t.Fatalf("%v: duplicate calendar day %s", now, MaturityKey(dates[i]))
			}
		}
	}
}

func TestDailyBucketCutoffBoundary(t *testing.T) {
	// 07:58:59 is the last second that still includes today.
	before := time.Date(2024, 12, 1, 7, 58, 59, 0, time.UTC)
	after := time.Date(2024, 12, 1, 7, 59, 0, 0, time.UTC)

	if got := ResolveMaturityDates(before); MaturityKey(got[0]) != "2024-12-01" {
		t.Errorf("before cutoff: expected today first, got %s", MaturityKey(got[0]))
	}
	if got := ResolveMaturityDates(after); MaturityKey(got[0]) != "2024-12-02" {
		t.Errorf("at cutoff: expected tomorrow first, got %s", MaturityKey(got[0]))
	}
}
