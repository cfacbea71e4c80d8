package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/retry"
	"github.com/harrisonrobin/onesheet/pkg/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct {
	userID, token string
}

func (s staticCreds) Credentials() (string, string, bool) {
	return s.userID, s.token, s.userID != ""
}

func noSleep(delays *[]time.Duration) retry.SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestQuerySendsAuthHeadersAndDecodesData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "U1", r.Header.Get(HeaderUserID))
		assert.Equal(t, "tok", r.Header.Get(HeaderAuthToken))

		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "tasks")
		assert.Equal(t, "U1", req.Variables["userId"])

		w.Write([]byte(`{"data":{"tasks":[{"uuid":"T1"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticCreds{"U1", "tok"})
	var out struct {
		Tasks []struct {
			UUID string `json:"uuid"`
		} `json:"tasks"`
	}
	require.NoError(t, c.Query(context.Background(), "query { tasks { uuid } }", map[string]interface{}{"userId": "U1"}, &out))
	require.Len(t, out.Tasks, 1)
	require.Equal(t, "T1", out.Tasks[0].UUID)
}

func TestNoCredentialsSendsNoAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(HeaderUserID))
		assert.Empty(t, r.Header.Get(HeaderAuthToken))
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, staticCreds{}).Mutate(context.Background(), "mutation { x }", nil, nil))
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   apperr.Kind
		wantMsg    string
		wantSignal int
	}{
		{"unauthorized", 401, `{"errors":[{"message":"token expired"}]}`, apperr.KindAuth, "token expired", 1},
		{"forbidden", 403, `{"errors":[{"message":"no"}]}`, apperr.KindAuth, apperr.MsgForbidden, 0},
		{"bad request", 400, `{"errors":[{"message":"bad startTime"}]}`, apperr.KindBusiness, "bad startTime", 0},
		{"not found without body", 404, ``, apperr.KindBusiness, apperr.MsgBadRequest, 0},
		{"server error", 503, `oops`, apperr.KindSystem, apperr.MsgServer, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			bus := signal.NewBus()
			expired := 0
			bus.Subscribe(signal.SessionExpired, func() { expired++ })

			var delays []time.Duration
			c := New(srv.URL, staticCreds{"U1", "tok"},
				WithSignals(bus),
				WithRetry(retry.New(retry.DefaultConfig(), noSleep(&delays))),
			)
			err := c.Query(context.Background(), "query { x }", nil, &struct{}{})

			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.wantMsg, e.Message())
			assert.Equal(t, tt.wantSignal, expired)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "only network failures are retried")
			assert.Empty(t, delays)
		})
	}
}

func TestTransportFailureIsNetworkAndRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	var delays []time.Duration
	c := New(url, nil, WithRetry(retry.New(retry.DefaultConfig(), noSleep(&delays))))
	err := c.Query(context.Background(), "query { x }", nil, nil)

	require.True(t, apperr.Is(err, apperr.KindNetwork))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestTruncatedResponseIsSystemAndNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Length", "100")
		w.Write([]byte(`{"data":{"addManhour":{"uu`))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := New(srv.URL, nil, WithRetry(retry.New(retry.DefaultConfig(), noSleep(&delays))))
	err := c.Mutate(context.Background(), "mutation { addManhour }", nil, &struct{}{})

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindSystem, e.Kind)
	assert.Equal(t, http.StatusOK, e.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, delays)
}

func TestTruncatedErrorResponseKeepsStatus(t *testing.T) {
	var calls int32
	bus := signal.NewBus()
	expired := 0
	bus.Subscribe(signal.SessionExpired, func() { expired++ })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[`))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := New(srv.URL, nil, WithSignals(bus), WithRetry(retry.New(retry.DefaultConfig(), noSleep(&delays))))
	err := c.Mutate(context.Background(), "mutation { addManhour }", nil, nil)

	require.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, expired)
}

func TestGraphQLErrorsWithOKStatusAreSystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null,"errors":[{"message":"task not assignable"},{"message":"second"}]}`))
	}))
	defer srv.Close()

	err := New(srv.URL, nil, WithRetry(nil)).Mutate(context.Background(), "mutation { x }", nil, nil)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindSystem, e.Kind)
	require.Equal(t, "task not assignable", e.Message())
	require.Len(t, e.Details["graphql_errors"], 2)
}

func TestUndecodableResponseIsSystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	err := New(srv.URL, nil).Query(context.Background(), "query { x }", nil, &struct{}{})
	require.True(t, apperr.Is(err, apperr.KindSystem))
}

func TestBadEndpointIsSystem(t *testing.T) {
	err := New("://bad", nil, WithRetry(nil)).Query(context.Background(), "query { x }", nil, nil)
	require.True(t, apperr.Is(err, apperr.KindSystem))
}
