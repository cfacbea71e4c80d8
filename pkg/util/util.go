// Package util parses and formats the values the command line deals in.
package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/model"
)

// DateLayout is how dates are written on the command line.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date, or one of "today" and "yesterday",
// as midnight in loc.
func ParseDate(s string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(strings.ToLower(s))
	today := now.In(loc)
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	switch s {
	case "":
		return time.Time{}, fmt.Errorf("date must not be empty")
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// WeekBounds returns Monday and Sunday of the week containing t.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// ParseAllocation parses "taskID" or "taskID=ratio". A bare task ID has
// ratio 1.
func ParseAllocation(s string) (model.TaskAllocation, error) {
	id, ratio, found := strings.Cut(strings.TrimSpace(s), "=")
	id = strings.TrimSpace(id)
	if id == "" {
		return model.TaskAllocation{}, fmt.Errorf("invalid allocation %q: task ID is empty", s)
	}
	if !found {
		return model.TaskAllocation{TaskID: id, Ratio: 1}, nil
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(ratio), 64)
	if err != nil {
		return model.TaskAllocation{}, fmt.Errorf("invalid allocation %q: ratio is not a number", s)
	}
	return model.TaskAllocation{TaskID: id, Ratio: r}, nil
}

// ParseAllocations parses every value of a repeated --task flag.
func ParseAllocations(values []string) ([]model.TaskAllocation, error) {
	out := make([]model.TaskAllocation, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			a, err := ParseAllocation(part)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// FormatHours prints hours without trailing zeros, e.g. "4", "2.5".
func FormatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

// ParseStatus accepts a task status as the API spells it, or with
// dashes or spaces in place of underscores.
func ParseStatus(s string) (model.TaskStatus, error) {
	norm := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	st := model.TaskStatus(norm)
	if !st.Valid() {
		names := make([]string, len(model.TaskStatuses))
		for i, v := range model.TaskStatuses {
			names[i] = string(v)
		}
		return "", fmt.Errorf("unknown status %q, expected one of %s", s, strings.Join(names, ", "))
	}
	return st, nil
}
