package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/index"
	"google.golang.org/api/calendar/v3"
)

// UnitProperty is the private extended property carrying the unit key.
const UnitProperty = "onesheet_unit"

// dayStartHour is when a mirrored unit begins on its day.
const dayStartHour = 9

// Entry is one submitted manhour unit to mirror.
type Entry struct {
	TaskID      string
	TaskName    string
	ProjectID   string
	Date        time.Time
	Hours       float64
	Description string
}

// Key is the index key of the entry.
func (e Entry) Key() string {
	return index.Key(e.TaskID, e.Date)
}

// UnitEvent builds the calendar event for e. It starts at 09:00 in loc on
// the unit's day and lasts the unit's hours.
func UnitEvent(e Entry, colorID string, loc *time.Location) (*calendar.Event, error) {
	if e.TaskID == "" {
		return nil, fmt.Errorf("could not convert entry without a task ID")
	}
	if e.Hours <= 0 {
		return nil, fmt.Errorf("entry %s has no hours", e.Key())
	}
	if loc == nil {
		loc = time.Local
	}

	y, m, d := e.Date.Date()
	start := time.Date(y, m, d, dayStartHour, 0, 0, 0, loc)
	end := start.Add(time.Duration(e.Hours * float64(time.Hour)))

	name := e.TaskName
	if name == "" {
		name = e.TaskID
	}

	var desc strings.Builder
	if e.Description != "" {
		desc.WriteString(e.Description)
		desc.WriteString("\n\n")
	}
	fmt.Fprintf(&desc, "Task: %s\n", e.TaskID)
	if e.ProjectID != "" {
		fmt.Fprintf(&desc, "Project: %s\n", e.ProjectID)
	}
	fmt.Fprintf(&desc, "Logged: %sh\n", formatHours(e.Hours))

	return &calendar.Event{
		Summary:     fmt.Sprintf("%s (%sh)", name, formatHours(e.Hours)),
		Description: desc.String(),
		ColorId:     colorID,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{UnitProperty: e.Key()},
		},
	}, nil
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

// eventPatch returns the fields of target that differ from existing, or nil
// when the event is already up to date.
func eventPatch(existing, target *calendar.Event) (*calendar.Event, error) {
	patch := &calendar.Event{}
	changed := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		changed = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		changed = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		changed = true
	}

	sameStart, err := sameTime(existing.Start, target.Start)
	if err != nil {
		return nil, err
	}
	sameEnd, err := sameTime(existing.End, target.End)
	if err != nil {
		return nil, err
	}
	if !sameStart || !sameEnd {
		patch.Start = target.Start
		patch.End = target.End
		changed = true
	}

	if !changed {
		return nil, nil
	}
	return patch, nil
}

// sameTime compares two event times. An all-day or missing time on the
// existing event never matches a timed target.
func sameTime(a, b *calendar.EventDateTime) (bool, error) {
	if a == nil || a.DateTime == "" {
		return false, nil
	}
	at, err := time.Parse(time.RFC3339, a.DateTime)
	if err != nil {
		return false, err
	}
	bt, err := time.Parse(time.RFC3339, b.DateTime)
	if err != nil {
		return false, err
	}
	return at.Equal(bt), nil
}
