// Package normalize turns the loosely formatted schedule text published on
// session pages into absolute timestamps.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/schedule-crawler/internal/schedule"
)

var dateLayouts = []string{
	"Monday 2 Jan 2006",
	"Monday 2 January 2006",
	"Mon 2 Jan 2006",
	"Mon 2 January 2006",
	"2 Jan 2006",
	"2 January 2006",
}

var clockLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15:04",
}

// Normalize parses a date such as "Friday 4 Oct 2024 (1 hour)" and a time range
// such as "2:00 PM - 3:00 PM | 1 hour" into a Schedule.
//
// Timestamps are naive: they carry time.UTC only as a marker and are never
// converted. Errors wrap schedule.ErrNormalize.
func Normalize(dateText, timeRangeText string) (schedule.Schedule, error) {
	day, err := parseDate(dateText)
	if err != nil {
		return schedule.Schedule{}, err
	}
	startText, endText, err := splitRange(timeRangeText)
	if err != nil {
		return schedule.Schedule{}, err
	}
	start, err := parseClock(startText)
	if err != nil {
		return schedule.Schedule{}, err
	}
	end, err := parseClock(endText)
	if err != nil {
		return schedule.Schedule{}, err
	}

	startTime := atClock(day, start)
	endTime := atClock(day, end)
	if endTime.Before(startTime) {
		// range crosses midnight
		endTime = endTime.AddDate(0, 0, 1)
	}
	return schedule.Schedule{
		Date:      day,
		StartTime: startTime,
		EndTime:   endTime,
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	text, _, _ := strings.Cut(raw, "(")
	text = collapse(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: empty date text", schedule.ErrNormalize)
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", schedule.ErrNormalize, raw)
}

func splitRange(raw string) (string, string, error) {
	text, _, _ := strings.Cut(raw, "|")
	text = strings.NewReplacer("–", "-", "—", "-").Replace(text)
	start, end, ok := strings.Cut(text, "-")
	if !ok {
		return "", "", fmt.Errorf("%w: time range %q has no separator", schedule.ErrNormalize, raw)
	}
	return collapse(start), collapse(end), nil
}

func parseClock(raw string) (time.Time, error) {
	text := strings.ToUpper(raw)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized clock time %q", schedule.ErrNormalize, raw)
}

func atClock(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
