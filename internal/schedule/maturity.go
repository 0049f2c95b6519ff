// Package schedule derives the option maturity dates a snapshot run
// must subscribe to.
package schedule

import (
	"sort"
	"time"

	"optionflow/models"
)

const (
	dailyCount     = 3
	weeklyCount    = 4
	monthlyCount   = 4
	quarterlyCount = 4

	// Daily contracts roll at 08:00 UTC; the one-minute guard avoids
	// subscribing to a contract that expires at the boundary.
	rolloverCutoffSeconds = 8*60*60 - 60
)

// ResolveMaturityDates computes the calendar expiry dates to subscribe
// to at the given instant: three consecutive daily expiries, the next
// four Fridays, the next four month-end Fridays and the next four
// quarter-end Fridays, merged, deduplicated by calendar day and sorted
// ascending. All arithmetic is in UTC.
func ResolveMaturityDates(now time.Time) []time.Time {
	now = now.UTC()
	today := midnight(now)

	var dates []time.Time
	dates = append(dates, dailyDates(now, today)...)
	dates = append(dates, weeklyFridays(today)...)
	dates = append(dates, monthlyLastFridays(today)...)
	dates = append(dates, quarterlyLastFridays(today)...)

	return dedupSorted(dates)
}

// MaturityKey renders a maturity date as its yyyy-MM-dd string key.
func MaturityKey(date time.Time) string {
	return date.Format(models.MaturityKeyLayout)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dailyDates returns the next three consecutive days, starting today
// when the current UTC time is before the rollover cutoff and tomorrow
// otherwise.
func dailyDates(now, today time.Time) []time.Time {
	secondsIntoDay := now.Hour()*3600 + now.Minute()*60 + now.Second()
	start := today
	if secondsIntoDay >= rolloverCutoffSeconds {
		start = start.AddDate(0, 0, 1)
	}
	dates := make([]time.Time, 0, dailyCount)
	for i := 0; i < dailyCount; i++ {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	return dates
}

// weeklyFridays returns the next four Fridays strictly after today.
// A Friday falling on today is never included, regardless of the time
// of day.
func weeklyFridays(today time.Time) []time.Time {
	friday := nextFriday(today)
	dates := make([]time.Time, 0, weeklyCount)
	for i := 0; i < weeklyCount; i++ {
		dates = append(dates, friday.AddDate(0, 0, 7*i))
	}
	return dates
}

// monthlyLastFridays returns the next four "last Friday of the month"
// dates strictly after today.
func monthlyLastFridays(today time.Time) []time.Time {
	dates := make([]time.Time, 0, monthlyCount)
	for friday := nextFriday(today); len(dates) < monthlyCount; friday = friday.AddDate(0, 0, 7) {
		if isLastFridayOfMonth(friday) {
			dates = append(dates, friday)
		}
	}
	return dates
}

// quarterlyLastFridays returns the next four last Fridays of quarter-end
// months (March, June, September, December) strictly after today,
// scanning forward in three-month steps from the current quarter.
func quarterlyLastFridays(today time.Time) []time.Time {
	year := today.Year()
	month := quarterEndMonth(today.Month())

	dates := make([]time.Time, 0, quarterlyCount)
	for len(dates) < quarterlyCount {
		friday := lastFridayOfMonth(year, month)
		if friday.After(today) {
			dates = append(dates, friday)
		}
		month += 3
		if month > time.December {
			month -= 12
			year++
		}
	}
	return dates
}

// nextFriday returns the first Friday strictly after the given day.
func nextFriday(today time.Time) time.Time {
	d := today.AddDate(0, 0, 1)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// isLastFridayOfMonth reports whether the Friday one week later falls in
// a different month.
func isLastFridayOfMonth(friday time.Time) bool {
	return friday.AddDate(0, 0, 7).Month() != friday.Month()
}

func lastFridayOfMonth(year int, month time.Month) time.Time {
	// Day zero of the following month is the last day of this one.
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func quarterEndMonth(m time.Month) time.Month {
	switch {
	case m <= time.March:
		return time.March
	case m <= time.June:
		return time.June
	case m <= time.September:
		return time.September
	default:
		return time.December
	}
}

// dedupSorted collapses dates sharing a calendar day and sorts the
// result ascending.
func dedupSorted(dates []time.Time) []time.Time {
	seen := make(map[string]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		key := MaturityKey(d)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
