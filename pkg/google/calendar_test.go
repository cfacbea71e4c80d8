package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/colors"
	"github.com/harrisonrobin/onesheet/pkg/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// fakeCalendar is an in-memory stand-in for the parts of the Calendar API
// the mirror uses.
type fakeCalendar struct {
	mu      sync.Mutex
	events  map[string]*calendar.Event
	nextID  int
	inserts int
	patches int
	lists   int
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case path == "users/me/calendarList" && r.Method == http.MethodGet:
		writeJSON(w, calendar.CalendarList{Items: []*calendar.CalendarListEntry{
			{Id: "other", Summary: "Personal"},
			{Id: "cal1", Summary: "Timesheet"},
		}})
	case path == "calendars/cal1/events" && r.Method == http.MethodGet:
		f.lists++
		prop := r.URL.Query().Get("privateExtendedProperty")
		var items []*calendar.Event
		for _, ev := range f.events {
			if ev.ExtendedProperties != nil && UnitProperty+"="+ev.ExtendedProperties.Private[UnitProperty] == prop {
				items = append(items, ev)
			}
		}
		writeJSON(w, calendar.Events{Items: items})
	case path == "calendars/cal1/events" && r.Method == http.MethodPost:
		var ev calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nextID++
		f.inserts++
		ev.Id = fmt.Sprintf("ev%d", f.nextID)
		f.events[ev.Id] = &ev
		writeJSON(w, ev)
	case strings.HasPrefix(path, "calendars/cal1/events/"):
		id := strings.TrimPrefix(path, "calendars/cal1/events/")
		ev, ok := f.events[id]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"Not Found"}}`, http.StatusNotFound)
			return
		}
		if r.Method == http.MethodPatch {
			var patch calendar.Event
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.patches++
			if patch.Summary != "" {
				ev.Summary = patch.Summary
			}
			if patch.Description != "" {
				ev.Description = patch.Description
			}
			if patch.ColorId != "" {
				ev.ColorId = patch.ColorId
			}
			if patch.Start != nil {
				ev.Start, ev.End = patch.Start, patch.End
			}
		}
		writeJSON(w, ev)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeService(t *testing.T) (*calendar.Service, *fakeCalendar) {
	t.Helper()
	fake := &fakeCalendar{events: make(map[string]*calendar.Event)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return svc, fake
}

func newTestMirror(t *testing.T) (*Mirror, *fakeCalendar, *index.EventIndex) {
	t.Helper()
	svc, fake := newFakeService(t)
	dir := t.TempDir()
	idx, err := index.Open(filepath.Join(dir, index.FileName))
	require.NoError(t, err)
	palette, err := colors.Open(filepath.Join(dir, colors.FileName))
	require.NoError(t, err)

	m := NewMirror(svc, "cal1", idx, palette, zaptest.NewLogger(t))
	m.loc = time.UTC
	return m, fake, idx
}

func entry() Entry {
	return Entry{
		TaskID:    "T1",
		TaskName:  "Write report",
		ProjectID: "P1",
		Date:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Hours:     4,
	}
}

func TestFindCalendar(t *testing.T) {
	svc, _ := newFakeService(t)
	id, err := FindCalendar(context.Background(), svc, "Timesheet")
	require.NoError(t, err)
	assert.Equal(t, "cal1", id)

	_, err = FindCalendar(context.Background(), svc, "Missing")
	assert.ErrorContains(t, err, `calendar "Missing" not found`)
}

func TestRecordCreatesThenReuses(t *testing.T) {
	m, fake, idx := newTestMirror(t)
	ctx := context.Background()

	created, err := m.Record(ctx, entry())
	require.NoError(t, err)
	assert.Equal(t, "Write report (4h)", created.Summary)
	assert.Equal(t, "1", created.ColorId)
	assert.Equal(t, created.Id, idx.Get("T1@2024-01-02"))

	again, err := m.Record(ctx, entry())
	require.NoError(t, err)
	assert.Equal(t, created.Id, again.Id)
	assert.Equal(t, 1, fake.inserts)
	assert.Zero(t, fake.patches)
}

func TestRecordPatchesChangedHours(t *testing.T) {
	m, fake, _ := newTestMirror(t)
	ctx := context.Background()

	_, err := m.Record(ctx, entry())
	require.NoError(t, err)

	e := entry()
	e.Hours = 2.5
	updated, err := m.Record(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, "Write report (2.5h)", updated.Summary)
	assert.Equal(t, "2024-01-02T11:30:00Z", updated.End.DateTime)
	assert.Equal(t, 1, fake.inserts)
	assert.Equal(t, 1, fake.patches)
}

func TestRecordFallsBackToPropertySearch(t *testing.T) {
	m, fake, idx := newTestMirror(t)
	ctx := context.Background()

	created, err := m.Record(ctx, entry())
	require.NoError(t, err)

	// A stale index entry is dropped and the event is found by property.
	idx.Set("T1@2024-01-02", "gone")
	found, err := m.Record(ctx, entry())
	require.NoError(t, err)
	assert.Equal(t, created.Id, found.Id)
	assert.Equal(t, created.Id, idx.Get("T1@2024-01-02"))
	assert.Equal(t, 1, fake.inserts)
	assert.Equal(t, 2, fake.lists)
}

func TestFlushPersistsState(t *testing.T) {
	m, _, idx := newTestMirror(t)
	_, err := m.Record(context.Background(), entry())
	require.NoError(t, err)
	require.NoError(t, m.Flush())

	again, err := index.Open(idx.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len())
}
