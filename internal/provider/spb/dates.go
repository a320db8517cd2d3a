package spb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Provider pages publish wall-clock times for the city without an offset.
var mskLoc = time.FixedZone("MSK", 3*60*60)

// ruMonths maps genitive Russian month names, as printed by the cold-water
// announcements ("11 июля 2025").
var ruMonths = map[string]time.Month{
	"января":   time.January,
	"февраля":  time.February,
	"марта":    time.March,
	"апреля":   time.April,
	"мая":      time.May,
	"июня":     time.June,
	"июля":     time.July,
	"августа":  time.August,
	"сентября": time.September,
	"октября":  time.October,
	"ноября":   time.November,
	"декабря":  time.December,
}

// parseDayDotDate parses "02.01.2006".
func parseDayDotDate(s string) (time.Time, error) {
	return time.ParseInLocation("02.01.2006", cleanString(s), mskLoc)
}

// parseDateTimePair parses the electricity table's split cells:
// date "02-01-2006" plus time "15:04".
func parseDateTimePair(date, clock string) (time.Time, error) {
	date = cleanString(date)
	clock = cleanString(clock)
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("missing date or time: date=%q time=%q", date, clock)
	}
	return time.ParseInLocation("02-01-2006 15:04", date+" "+clock, mskLoc)
}

// parseRuDate parses "11 июля 2025", optionally followed by "15:04".
// hasClock reports whether a time-of-day was present.
func parseRuDate(s string) (t time.Time, hasClock bool, err error) {
	fields := strings.Fields(cleanString(strings.ToLower(s)))
	if len(fields) < 3 {
		return time.Time{}, false, fmt.Errorf("unrecognized date %q", s)
	}

	day, err := strconv.Atoi(strings.TrimSuffix(fields[0], "."))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unrecognized day in %q", s)
	}
	month, ok := ruMonths[fields[1]]
	if !ok {
		return time.Time{}, false, fmt.Errorf("unrecognized month in %q", s)
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unrecognized year in %q", s)
	}

	hour, minute := 0, 0
	if len(fields) >= 4 {
		hh, mm, ok := strings.Cut(fields[3], ":")
		if !ok {
			return time.Time{}, false, fmt.Errorf("unrecognized time in %q", s)
		}
		hour, err = strconv.Atoi(hh)
		if err != nil || hour > 23 {
			return time.Time{}, false, fmt.Errorf("unrecognized hour in %q", s)
		}
		minute, err = strconv.Atoi(mm)
		if err != nil || minute > 59 {
			return time.Time{}, false, fmt.Errorf("unrecognized minute in %q", s)
		}
		hasClock = true
	}

	if day < 1 || day > 31 {
		return time.Time{}, false, fmt.Errorf("unrecognized day in %q", s)
	}
	return time.Date(year, month, day, hour, minute, 0, 0, mskLoc), hasClock, nil
}

// endOfDay pins a date-only boundary to the last minute of that day.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
