package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"eventsync/internal/config"
	"eventsync/internal/domain/apilog"
	"eventsync/internal/domain/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type captureRecorder struct {
	entries []apilog.Entry
}

func (c *captureRecorder) Record(_ context.Context, e apilog.Entry) {
	c.entries = append(c.entries, e)
}

func newTestPeer(t *testing.T, url string, rec Recorder) *HTTPPeer {
	t.Helper()
	p, err := NewHTTPPeer(PeerConfig{
		BaseURL:    url,
		APIKey:     "secret",
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, rec, slog.Default())
	require.NoError(t, err)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestNewHTTPPeer_NoURL(t *testing.T) {
	_, err := NewHTTPPeer(PeerConfig{}, nil, slog.Default())
	assert.ErrorIs(t, err, sync.ErrNoPeer)
}

func TestHTTPPeer_Exchange_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, config.DefaultFullSyncPath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		var req sync.FullSyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Users, 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"users":[],"events":[{"id":3,"title":"Workshop"}],"event_registrations":[],"certificates":[],"server_time":"2024-05-02T00:00:00Z"}`))
	}))
	defer srv.Close()

	rec := &captureRecorder{}
	peer := newTestPeer(t, srv.URL, rec)

	resp, err := peer.Exchange(context.Background(), sync.FullSyncRequest{Users: []sync.UserDTO{{CPF: "1"}}})

	require.NoError(t, err)
	assert.Equal(t, "2024-05-02T00:00:00Z", resp.ServerTime)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, int64(3), resp.Events[0].ID)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, apilog.DirectionOut, rec.entries[0].Direction)
	assert.Equal(t, http.StatusOK, rec.entries[0].StatusCode)
	assert.Empty(t, rec.entries[0].Error)
}

func TestHTTPPeer_Exchange_CustomPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sync/full" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"users":[],"events":[],"event_registrations":[],"certificates":[],"server_time":"2024-05-02T00:00:00Z"}`))
	}))
	defer srv.Close()

	rec := &captureRecorder{}
	peer, err := NewHTTPPeer(PeerConfig{
		BaseURL:      srv.URL,
		APIKey:       "secret",
		Timeout:      time.Second,
		FullSyncPath: "/api/sync/full",
	}, rec, slog.Default())
	require.NoError(t, err)

	_, err = peer.Exchange(context.Background(), sync.FullSyncRequest{})

	require.NoError(t, err)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "/api/sync/full", rec.entries[0].Path)
}

func TestHTTPPeer_Exchange_Errors(t *testing.T) {
	tests := []struct {
		name         string
		responses    []int
		body         string
		wantCalls    int32
		wantStatus   int
		wantErr      bool
		wantContains string
	}{
		{
			name:      "retries unavailable then succeeds",
			responses: []int{http.StatusServiceUnavailable, http.StatusOK},
			body:      `{"server_time":"2024-05-02T00:00:00Z"}`,
			wantCalls: 2,
		},
		{
			name:         "conflict exhausts retries",
			responses:    []int{http.StatusConflict, http.StatusConflict, http.StatusConflict},
			body:         `{"message":"Sync already in progress"}`,
			wantCalls:    3,
			wantStatus:   http.StatusConflict,
			wantErr:      true,
			wantContains: "Sync already in progress",
		},
		{
			name:         "unauthorized is not retried",
			responses:    []int{http.StatusUnauthorized},
			body:         `{"message":"Unauthorized"}`,
			wantCalls:    1,
			wantStatus:   http.StatusUnauthorized,
			wantErr:      true,
			wantContains: "Unauthorized",
		},
		{
			name:         "merge failure on peer is not retried",
			responses:    []int{http.StatusInternalServerError},
			body:         `{"message":"Sync failed","error":"insert event 3: disk full"}`,
			wantCalls:    1,
			wantStatus:   http.StatusInternalServerError,
			wantErr:      true,
			wantContains: "Sync failed: insert event 3: disk full",
		},
		{
			name:         "malformed response",
			responses:    []int{http.StatusOK},
			body:         `{"users": "oops"`,
			wantCalls:    1,
			wantStatus:   http.StatusOK,
			wantErr:      true,
			wantContains: "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.responses[len(tt.responses)-1]
				if int(n) <= len(tt.responses) {
					status = tt.responses[n-1]
				}
				w.WriteHeader(status)
				if status == http.StatusOK || n == int32(len(tt.responses)) {
					_, _ = w.Write([]byte(tt.body))
				}
			}))
			defer srv.Close()

			rec := &captureRecorder{}
			peer := newTestPeer(t, srv.URL, rec)

			_, err := peer.Exchange(context.Background(), sync.FullSyncRequest{})

			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Len(t, rec.entries, int(tt.wantCalls))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, sync.ErrTransport)
			var te *sync.TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.wantStatus, te.StatusCode)
			assert.Contains(t, err.Error(), tt.wantContains)
		})
	}
}

func TestHTTPPeer_Exchange_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	peer := newTestPeer(t, url, nil)

	_, err := peer.Exchange(context.Background(), sync.FullSyncRequest{})

	require.Error(t, err)
	assert.ErrorIs(t, err, sync.ErrTransport)
	var te *sync.TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
	assert.True(t, te.Retryable())
}

func TestHTTPPeer_Exchange_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	peer := newTestPeer(t, srv.URL, nil)
	peer.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	_, err := peer.Exchange(context.Background(), sync.FullSyncRequest{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, sync.ErrTransport)
}

func TestHTTPPeer_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != healthPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer srv.Close()

	assert.NoError(t, newTestPeer(t, srv.URL, nil).HealthCheck(context.Background()))
	assert.Error(t, newTestPeer(t, srv.URL+"/nope", nil).HealthCheck(context.Background()))
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "boom", n: 10, want: "boom"},
		{name: "ascii", in: "abcdef", n: 3, want: "abc"},
		{name: "does not split a rune", in: "aç", n: 2, want: "a"},
		{name: "rune boundary", in: "çç", n: 2, want: "ç"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate([]byte(tt.in), tt.n))
		})
	}
}
