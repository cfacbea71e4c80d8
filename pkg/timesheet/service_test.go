package timesheet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutation struct {
	vars map[string]interface{}
}

// fakeRemote answers manhour queries with records and fails the
// failAt-th mutation (1-based) when failAt > 0.
type fakeRemote struct {
	records  string
	queryErr error
	failAt   int
	failWith error

	queries   []map[string]interface{}
	mutations []mutation
}

func (f *fakeRemote) Query(_ context.Context, doc string, vars map[string]interface{}, out interface{}) error {
	f.queries = append(f.queries, vars)
	if f.queryErr != nil {
		return f.queryErr
	}
	records := f.records
	if records == "" {
		records = "[]"
	}
	return json.Unmarshal([]byte(`{"manhours":`+records+`}`), out)
}

func (f *fakeRemote) Mutate(_ context.Context, doc string, vars map[string]interface{}, out interface{}) error {
	f.mutations = append(f.mutations, mutation{vars})
	if f.failAt > 0 && len(f.mutations) == f.failAt {
		return f.failWith
	}
	return json.Unmarshal([]byte(fmt.Sprintf(`{"addManhour":{"uuid":"M%d"}}`, len(f.mutations))), out)
}

type staticUser string

func (s staticUser) UserID() string { return string(s) }

func newService(remote *fakeRemote) *Service {
	return NewService(remote, staticUser("U1"))
}

func weekRequest(t *testing.T, total float64, tasks ...string) BatchRequest {
	return BatchRequest{
		TotalHours:      total,
		Start:           date(t, "2024-01-01"),
		End:             date(t, "2024-01-07"),
		Allocations:     EvenAllocations(tasks),
		ExcludeWeekends: true,
	}
}

func TestSubmitManhourValidation(t *testing.T) {
	tests := []struct {
		name string
		sub  Submission
		msg  string
	}{
		{"empty task", Submission{Date: time.Now(), Hours: 1}, "task ID must not be empty"},
		{"no date", Submission{TaskID: "T1", Hours: 1}, "date must not be empty"},
		{"zero hours", Submission{TaskID: "T1", Date: time.Now()}, "hours must be positive"},
		{"negative hours", Submission{TaskID: "T1", Date: time.Now(), Hours: -2}, "hours must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{}
			_, err := newService(remote).SubmitManhour(context.Background(), tt.sub)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindBusiness, e.Kind)
			assert.Equal(t, tt.msg, e.Message())
			assert.Empty(t, remote.mutations)
		})
	}
}

func TestSubmitManhourSendsDayStart(t *testing.T) {
	remote := &fakeRemote{}
	id, err := newService(remote).SubmitManhour(context.Background(), Submission{
		TaskID:      "T1",
		Date:        time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
		Hours:       2.5,
		Description: "review",
	})
	require.NoError(t, err)
	require.Equal(t, "M1", id)
	require.Len(t, remote.mutations, 1)

	vars := remote.mutations[0].vars
	assert.Equal(t, "T1", vars["taskId"])
	assert.Equal(t, 2.5, vars["hours"])
	assert.Equal(t, date(t, "2024-01-02").Unix(), vars["startTime"])
	assert.Equal(t, "review", vars["description"])
}

func TestGetManhoursRange(t *testing.T) {
	remote := &fakeRemote{records: `[{"uuid":"M1","hours":3,"startTime":1704067200,"type":"recorded",
		"task":{"uuid":"T1","name":"Fix build","status":"to_do","project":{"uuid":"P1","name":"Ops","status":"in_progress"}},
		"owner":{"uuid":"U1","name":"Li Lei","email":"l@x"}}]`}

	got, err := newService(remote).GetManhours(context.Background(), Filter{
		Start: date(t, "2024-01-01"),
		End:   date(t, "2024-01-07"),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "T1", got[0].Task.UUID)
	assert.Equal(t, "Li Lei", got[0].User.Name)
	assert.Equal(t, "2024-01-01", got[0].Day(time.UTC).Format(DateLayout))

	vars := remote.queries[0]
	assert.Equal(t, "U1", vars["userId"])
	assert.Equal(t, date(t, "2024-01-01").Unix(), vars["startTime"])
	assert.Equal(t, date(t, "2024-01-08").Unix()-1, vars["endTime"])
}

func TestGetManhoursRequiresUser(t *testing.T) {
	remote := &fakeRemote{}
	_, err := NewService(remote, staticUser("")).GetManhours(context.Background(), Filter{
		Start: date(t, "2024-01-01"),
		End:   date(t, "2024-01-07"),
	})
	require.True(t, apperr.Is(err, apperr.KindBusiness))
	require.Empty(t, remote.queries)
}

func TestLoggedHoursCountsSelectedTasksOnly(t *testing.T) {
	remote := &fakeRemote{records: `[
		{"uuid":"M1","hours":3,"startTime":1704067200,"task":{"uuid":"T1"},"owner":{"uuid":"U1"}},
		{"uuid":"M2","hours":5,"startTime":1704153600,"task":{"uuid":"T2"},"owner":{"uuid":"U1"}},
		{"uuid":"M3","hours":7,"startTime":1704153600,"task":{"uuid":"T9"},"owner":{"uuid":"U1"}}
	]`}
	got, err := newService(remote).LoggedHours(context.Background(), date(t, "2024-01-01"), date(t, "2024-01-07"), []string{"T1", "T2"})
	require.NoError(t, err)
	require.Equal(t, 8.0, got)
}

func TestBatchSubmitTwoTasksFiveDays(t *testing.T) {
	remote := &fakeRemote{}
	var seen []Unit
	req := weekRequest(t, 40, "T1", "T2")
	req.AfterSubmit = func(u Unit, _ string) { seen = append(seen, u) }

	result, err := newService(remote).BatchSubmit(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 10, result.SubmittedCount)
	require.Equal(t, 0, result.FailedCount)
	require.Empty(t, result.Errors)
	require.Len(t, remote.mutations, 10)
	require.Len(t, seen, 10)

	// Tasks outer, days inner.
	for i, m := range remote.mutations {
		wantTask := "T1"
		if i >= 5 {
			wantTask = "T2"
		}
		assert.Equal(t, wantTask, m.vars["taskId"])
		assert.Equal(t, 4.0, m.vars["hours"])
		assert.Equal(t, date(t, "2024-01-01").AddDate(0, 0, i%5).Unix(), m.vars["startTime"])
	}
	require.Empty(t, remote.queries, "no logged-hours lookup without DeductLogged")
}

func TestBatchSubmitStopsAtFirstFailure(t *testing.T) {
	for _, n := range []int{1, 3, 6, 10} {
		t.Run(fmt.Sprintf("fail at %d", n), func(t *testing.T) {
			remote := &fakeRemote{failAt: n, failWith: apperr.FromStatus(500, "")}

			result, err := newService(remote).BatchSubmit(context.Background(), weekRequest(t, 40, "T1", "T2"))
			require.True(t, apperr.Is(err, apperr.KindSystem))
			assert.False(t, result.Success)
			assert.Equal(t, n-1, result.SubmittedCount)
			assert.Equal(t, 1, result.FailedCount)
			assert.Len(t, remote.mutations, n, "no submissions after the failing one")
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, result.Errors[0], "failed: "+apperr.MsgServer)
			for _, msg := range result.Errors {
				assert.NotContains(t, strings.ToLower(msg), "roll")
			}
		})
	}
}

func TestBatchSubmitRejectsBeforeWriting(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*BatchRequest)
	}{
		{"zero total", func(r *BatchRequest) { r.TotalHours = 0 }},
		{"no tasks", func(r *BatchRequest) { r.Allocations = nil }},
		{"inverted range", func(r *BatchRequest) { r.Start, r.End = r.End, r.Start }},
		{"weekend only", func(r *BatchRequest) {
			r.Start = time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
			r.End = time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
		}},
		{"zero ratio sum", func(r *BatchRequest) {
			r.Allocations = []model.TaskAllocation{{TaskID: "T1"}, {TaskID: "T2"}}
		}},
		{"rounds to zero per day", func(r *BatchRequest) { r.TotalHours = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{}
			req := weekRequest(t, 40, "T1", "T2")
			tt.modify(&req)

			result, err := newService(remote).BatchSubmit(context.Background(), req)
			require.True(t, apperr.Is(err, apperr.KindBusiness))
			assert.False(t, result.Success)
			assert.Zero(t, result.SubmittedCount)
			assert.Len(t, result.Errors, 1)
			assert.Empty(t, remote.mutations)
		})
	}
}

func TestBatchSubmitDeductsLoggedHours(t *testing.T) {
	remote := &fakeRemote{records: `[
		{"uuid":"M1","hours":10,"startTime":1704067200,"task":{"uuid":"T1"},"owner":{"uuid":"U1"}},
		{"uuid":"M2","hours":4,"startTime":1704067200,"task":{"uuid":"OTHER"},"owner":{"uuid":"U1"}}
	]`}
	req := weekRequest(t, 40, "T1", "T2")
	req.DeductLogged = true

	plan, err := newService(remote).Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 10.0, plan.Logged)
	assert.Equal(t, 30.0, plan.Remaining)
	assert.Equal(t, 15.0, plan.Shares[0].Hours)
	// 15 hours over 5 days.
	assert.Equal(t, 3.0, plan.Units[0].Hours)
	assert.Equal(t, 30.0, plan.Hours())
	assert.Empty(t, remote.mutations)
}

func TestBatchSubmitNothingRemaining(t *testing.T) {
	remote := &fakeRemote{records: `[{"uuid":"M1","hours":40,"startTime":1704067200,"task":{"uuid":"T1"},"owner":{"uuid":"U1"}}]`}
	req := weekRequest(t, 40, "T1")
	req.DeductLogged = true

	result, err := newService(remote).BatchSubmit(context.Background(), req)
	require.True(t, apperr.Is(err, apperr.KindBusiness))
	require.Contains(t, result.Errors[0], "no remaining hours")
	require.Empty(t, remote.mutations)
}

func TestBatchSubmitLookupFailureWritesNothing(t *testing.T) {
	remote := &fakeRemote{queryErr: apperr.NewNetwork("", nil)}
	req := weekRequest(t, 40, "T1")
	req.DeductLogged = true

	result, err := newService(remote).BatchSubmit(context.Background(), req)
	require.True(t, apperr.Is(err, apperr.KindNetwork))
	require.False(t, result.Success)
	require.Empty(t, remote.mutations)
}

func TestBatchSubmitCancelled(t *testing.T) {
	remote := &fakeRemote{}
	ctx, cancel := context.WithCancel(context.Background())
	req := weekRequest(t, 40, "T1")
	req.AfterSubmit = func(u Unit, _ string) {
		if u.Date.Weekday() == time.Tuesday {
			cancel()
		}
	}

	result, err := newService(remote).BatchSubmit(ctx, req)
	require.Error(t, err)
	require.False(t, result.Success)
	require.Equal(t, 2, result.SubmittedCount)
	require.Len(t, remote.mutations, 2)
}

func TestBatchSubmitWithRateLimit(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, staticUser("U1"), WithRateLimit(1000))
	result, err := svc.BatchSubmit(context.Background(), weekRequest(t, 10, "T1"))
	require.NoError(t, err)
	require.Equal(t, 5, result.SubmittedCount)
}
