package timesheet

import (
	"time"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
)

// DateLayout is how days are written on the command line and in messages.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned when a range starts after it ends.
var ErrInvalidRange = apperr.NewBusiness("start date must not be after end date")

// Day truncates t to midnight in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WorkDays returns every day from start to end, both inclusive, in
// ascending order. With excludeWeekends, Saturdays and Sundays are left
// out; a range of only weekend days then yields an empty, non-nil slice.
// Only the calendar day of start and end matters, in start's location.
func WorkDays(start, end time.Time, excludeWeekends bool) ([]time.Time, error) {
	first := Day(start)
	last := Day(end.In(start.Location()))
	if first.After(last) {
		return nil, ErrInvalidRange
	}

	days := []time.Time{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if excludeWeekends && IsWeekend(d) {
			continue
		}
		days = append(days, d)
	}
	return days, nil
}
