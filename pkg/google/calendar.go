package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/colors"
	"github.com/harrisonrobin/onesheet/pkg/index"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Mirror writes submitted manhour units to a Google Calendar as events.
type Mirror struct {
	srv        *calendar.Service
	calendarID string
	index      *index.EventIndex
	colors     *colors.ColorCache
	loc        *time.Location
	logger     *zap.Logger
}

// NewMirror creates a mirror over an existing calendar service. idx and
// palette may be nil.
func NewMirror(srv *calendar.Service, calendarID string, idx *index.EventIndex, palette *colors.ColorCache, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		srv:        srv,
		calendarID: calendarID,
		index:      idx,
		colors:     palette,
		loc:        time.Local,
		logger:     logger.With(zap.String("calendar_id", calendarID)),
	}
}

// Connect authorizes with the token saved in dir and opens the calendar
// named calendarName.
func Connect(ctx context.Context, dir, calendarName string, idx *index.EventIndex, palette *colors.ColorCache, logger *zap.Logger) (*Mirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc, err := HTTPClient(ctx, dir, logger)
	if err != nil {
		return nil, err
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}
	id, err := FindCalendar(ctx, srv, calendarName)
	if err != nil {
		return nil, err
	}
	return NewMirror(srv, id, idx, palette, logger), nil
}

// FindCalendar returns the id of the calendar whose summary is name.
func FindCalendar(ctx context.Context, srv *calendar.Service, name string) (string, error) {
	var id string
	err := srv.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			if item.Summary == name {
				id = item.Id
				return errStop
			}
		}
		return nil
	})
	if err != nil && err != errStop {
		return "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("calendar %q not found", name)
	}
	return id, nil
}

var errStop = errors.New("stop")

// Record creates the event for e, or patches the one already mirroring it.
func (m *Mirror) Record(ctx context.Context, e Entry) (*calendar.Event, error) {
	colorID := colors.NoProject
	if m.colors != nil {
		colorID = m.colors.ColorFor(e.ProjectID)
	}
	target, err := UnitEvent(e, colorID, m.loc)
	if err != nil {
		return nil, err
	}
	key := e.Key()
	log := m.logger.With(zap.String("unit", key))

	existing, err := m.find(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("error searching for event: %w", err)
	}

	if existing == nil {
		created, err := m.srv.Events.Insert(m.calendarID, target).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("unable to create event for %s: %w", key, err)
		}
		m.remember(key, created.Id)
		log.Debug("created calendar event", zap.String("event_id", created.Id))
		return created, nil
	}

	patch, err := eventPatch(existing, target)
	if err != nil {
		log.Warn("could not compare unit with its calendar event", zap.Error(err))
		return nil, err
	}
	if patch == nil {
		m.remember(key, existing.Id)
		return existing, nil
	}
	updated, err := m.srv.Events.Patch(m.calendarID, existing.Id, patch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to update event for %s: %w", key, err)
	}
	m.remember(key, updated.Id)
	log.Debug("patched calendar event", zap.String("event_id", updated.Id))
	return updated, nil
}

// find looks the key up in the index first, then by extended property.
func (m *Mirror) find(ctx context.Context, key string) (*calendar.Event, error) {
	if m.index != nil {
		if id := m.index.Get(key); id != "" {
			ev, err := m.srv.Events.Get(m.calendarID, id).Context(ctx).Do()
			if err == nil && ev.Status != "cancelled" {
				return ev, nil
			}
			m.index.Remove(key)
		}
	}

	events, err := m.srv.Events.List(m.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", UnitProperty, key)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}

func (m *Mirror) remember(key, eventID string) {
	if m.index != nil {
		m.index.Set(key, eventID)
	}
}

// Flush persists the event index and the color cache.
func (m *Mirror) Flush() error {
	if m.index != nil {
		if err := m.index.Save(); err != nil {
			return fmt.Errorf("could not save event index: %w", err)
		}
	}
	if m.colors != nil {
		if err := m.colors.Save(); err != nil {
			return fmt.Errorf("could not save color cache: %w", err)
		}
	}
	return nil
}
