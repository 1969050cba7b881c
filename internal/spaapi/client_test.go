package spaapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	retries  []string
}

func (o *recordingObserver) ObserveRequest(endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, endpoint+":"+outcome)
}

func (o *recordingObserver) ObserveRetry(endpoint, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, endpoint+":"+reason)
}

type testClient struct {
	*Client
	sleeps   []time.Duration
	observer *recordingObserver
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Options)) *testClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	obs := &recordingObserver{}
	opts := Options{BaseURL: ts.URL, Logger: logging.Default(), Observer: obs}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)

	tc := &testClient{Client: c, observer: obs}
	c.sleep = func(_ context.Context, d time.Duration) error {
		tc.sleeps = append(tc.sleeps, d)
		return nil
	}
	return tc
}

const coldStartPage = `<!DOCTYPE html><html><head><title>Service waking up</title></head><body>Please wait</body></html>`

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestListServicesDecodesCatalog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/services", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"_id":"svc-1","nombre":"Masaje relajante","precio":100,"tipo":"masajes"}]`))
	}, nil)

	services, err := c.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "svc-1", services[0].ID)
	assert.Equal(t, 100.0, services[0].Price)
	assert.Equal(t, []string{"list_services:ok"}, c.observer.outcomes)
}

func TestAppointmentRoutesUseQueryToken(t *testing.T) {
	var got struct {
		path, token, auth string
		body              map[string]string
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.token = r.URL.Query().Get("token")
		got.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		_, _ = w.Write([]byte(`{"_id":"appt-9","servicio":"svc-1","fecha":"2024-01-04T00:00:00.000Z","hora":"10:00","estado":"pendiente"}`))
	}, nil)

	date, _ := booking.ParseDate("2024-01-04")
	created, err := c.CreateAppointment(context.Background(), "tok-1", booking.CreateRequest{
		Client: "u1", Service: "svc-1", Date: date, Time: booking.MustClock("10:00"),
	})
	require.NoError(t, err)

	assert.Equal(t, "appt-9", created.ID)
	assert.Equal(t, "2024-01-04", created.Date.String())
	assert.Equal(t, "/appointments/create", got.path)
	assert.Equal(t, "tok-1", got.token)
	assert.Empty(t, got.auth)
	assert.Equal(t, map[string]string{"cliente": "u1", "servicio": "svc-1", "fecha": "2024-01-04", "hora": "10:00"}, got.body)
}

func TestCreateAppointmentAcceptsWrappedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok","turno":{"_id":"appt-3","hora":"11:00","fecha":"2024-01-04"}}`))
	}, nil)

	created, err := c.CreateAppointment(context.Background(), "tok", booking.CreateRequest{Client: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "appt-3", created.ID)
}

func TestAdminRoutesUseBearerHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "Bearer tok-admin", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`[{"_id":"u1","nombre":"Ana","email":"ana@example.com","rol":"admin"}]`))
	}, nil)

	users, err := c.ListUsers(context.Background(), "tok-admin")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsAdmin())
}

func TestUpdateAppointmentStatusSendsEstado(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/appointments/edit/appt-1", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cancelado", body["estado"])
		w.WriteHeader(http.StatusOK)
	}, nil)

	require.NoError(t, c.UpdateAppointmentStatus(context.Background(), "tok", "appt-1", booking.StatusCancelled))
}

func TestRejectedErrorCarriesServerMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"El horario ya está ocupado"}`))
	}, nil)

	_, err := c.CreateAppointment(context.Background(), "tok", booking.CreateRequest{Client: "u1"})

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusConflict, rejected.Status)
	assert.Equal(t, "El horario ya está ocupado", rejected.UserMessage())
	assert.Empty(t, c.sleeps, "rejections are final")
}

func TestUnauthorizedInvokesHook(t *testing.T) {
	var tokens []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expirado"}`))
	}, func(o *Options) {
		o.OnUnauthorized = func(_ context.Context, token string) { tokens = append(tokens, token) }
	})

	_, err := c.ListAppointments(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, []string{"stale"}, tokens)
	assert.Equal(t, []string{"list_appointments:unauthorized"}, c.observer.outcomes)
}

func TestColdStartIsRetriedWithLinearBackoff(t *testing.T) {
	var calls int32
	var events []RetryEvent
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(coldStartPage))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}, func(o *Options) {
		o.OnRetry = func(_ context.Context, ev RetryEvent) { events = append(events, ev) }
	})

	services, err := c.ListServices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, services)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second}, c.sleeps)
	require.Len(t, events, 2)
	assert.Equal(t, reasonColdStart, events[0].Reason)
	assert.Contains(t, events[1].Message(), "8 segundos")
	assert.Equal(t, []string{"list_services:cold_start", "list_services:cold_start"}, c.observer.retries)
}

func TestRetriesExhaustedReturnsTransientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(coldStartPage))
	}, nil)

	_, err := c.ListServices(context.Background())

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 4, transient.Attempts)
	assert.True(t, IsTransient(err))
	var cold *ColdStartError
	require.ErrorAs(t, err, &cold)
	assert.Equal(t, "Service waking up", cold.Title)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "one attempt plus three retries")
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second, 12 * time.Second}, c.sleeps)
}

func TestNetworkFailureIsRetried(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := ts.URL
	ts.Close()

	c, err := New(Options{BaseURL: base, MaxRetries: 2, RetryStep: time.Second})
	require.NoError(t, err)
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	_, err = c.ListServices(context.Background())

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.True(t, IsTransient(err))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestTimeoutIsNotRetried(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(o *Options) {
		o.Timeout = 50 * time.Millisecond
	})
	defer close(release)

	_, err := c.ListServices(context.Background())

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.True(t, IsTransient(err))
	assert.Empty(t, c.sleeps)
}

func TestCallerCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		_, _ = w.Write([]byte(coldStartPage))
	}, nil)

	_, err := c.ListServices(ctx)
	require.Error(t, err)
	assert.False(t, errors.As(err, new(*TransientError)))
	assert.Empty(t, c.sleeps)
}

func TestLoginRequiresToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		_, _ = w.Write([]byte(`{"user":{"_id":"u1"}}`))
	}, nil)

	_, err := c.Login(context.Background(), "ana@example.com", "secret")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
}

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "Service waking up", pageTitle([]byte(coldStartPage)))
	assert.Equal(t, "", pageTitle([]byte(`<html><body>no title</body></html>`)))
	assert.True(t, looksLikeHTML("", []byte("  <!doctype html><p>x</p>")))
	assert.False(t, looksLikeHTML("application/json", []byte(`{"a":1}`)))
}
