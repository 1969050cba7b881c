package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/chat"
	"github.com/wolfman30/spa-turnos/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/internal/observability/metrics"
	"github.com/wolfman30/spa-turnos/internal/payments"
	"github.com/wolfman30/spa-turnos/internal/session"
	"github.com/wolfman30/spa-turnos/internal/spaapi"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// fakeSpaBackend answers the handful of backend routes the router tests hit.
type fakeSpaBackend struct {
	rejectToken atomic.Bool
	apptCalls   atomic.Int32
}

func (f *fakeSpaBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/services":
		_, _ = w.Write([]byte(`[{"_id":"s1","nombre":"Masaje","precio":100}]`))
	case "/auth/login":
		var creds spaapi.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		role := booking.RoleClient
		if strings.HasPrefix(creds.Email, "admin") {
			role = booking.RoleAdmin
		}
		_ = json.NewEncoder(w).Encode(spaapi.AuthResult{Token: "tok-" + role, User: booking.User{ID: "u-" + role, Email: creds.Email, Role: role}})
	case "/appointments":
		f.apptCalls.Add(1)
		if f.rejectToken.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token expirado"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"_id":"a1","cliente":"u-cliente","servicio":"s1","fecha":"2024-01-05T00:00:00.000Z","hora":"10:00","estado":"pendiente"}]`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}
}

type testEnv struct {
	router  http.Handler
	backend *fakeSpaBackend
}

func newTestRouter(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.Default()
	fake := &fakeSpaBackend{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	reg := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(reg)
	manager := session.NewManager(session.NewMemoryStore(time.Hour), nil, logger).WithObserver(bookingMetrics)

	client, err := spaapi.New(spaapi.Options{
		BaseURL:        server.URL,
		MaxRetries:     -1,
		Logger:         logger,
		Observer:       metrics.NewUpstreamMetrics(reg),
		OnUnauthorized: manager.HandleUnauthorized,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	now := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	rules := booking.DefaultRules()
	cookie := httpmiddleware.SessionCookie{Name: "spa_session", TTL: time.Hour}
	submitter := booking.NewSubmitter(client, session.NewMemoryLocker(), rules, logger).WithClock(now).WithMetrics(bookingMetrics)
	checkout := payments.NewCheckout(client, rules, nil, logger).WithMetrics(bookingMetrics)

	cfg := &Config{
		Logger:         logger,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		Sessions:       manager,
		Cookie:         cookie,
		Auth:           handlers.NewAuthHandler(client, manager, cookie, logger),
		Catalog:        handlers.NewCatalogHandler(client, rules, cookie, logger).WithClock(now),
		Flow:           handlers.NewFlowHandler(client, manager.Store(), submitter, cookie, logger).WithClock(now),
		Account:        handlers.NewAccountHandler(client, checkout, rules, cookie, logger).WithClock(now),
		Admin:          handlers.NewAdminHandler(client, cookie, logger),
		Chat:           chat.NewHandler(chat.NewBot(nil), logger).WithObserver(bookingMetrics),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	return &testEnv{router: New(cfg), backend: fake}
}

func (e *testEnv) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"`+email+`","password":"secreto"}`))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == "spa_session" {
			return c
		}
	}
	t.Fatalf("login did not set the session cookie")
	return nil
}

func (e *testEnv) do(method, path string, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodGet, "/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterServicesArePublic(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodGet, "/api/services", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"nombre":"Masaje"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestRouterCustomerRoutesRequireSession(t *testing.T) {
	env := newTestRouter(t)

	for _, path := range []string{"/api/me/appointments", "/api/flow", "/api/auth/me"} {
		rr := env.do(http.MethodGet, path, nil, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusUnauthorized, rr.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["redirect"] != "/login" {
			t.Fatalf("%s: expected redirect to /login, got %q", path, body["redirect"])
		}
	}
}

func TestRouterMyAppointments(t *testing.T) {
	env := newTestRouter(t)
	cookie := env.login(t, "ana@example.com")

	rr := env.do(http.MethodGet, "/api/me/appointments", cookie, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var body handlers.AppointmentsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Days) != 1 || body.Days[0].Total != 100 || body.Days[0].CardTotal != 85 {
		t.Fatalf("unexpected days %+v", body.Days)
	}
}

func TestRouterAdminRequiresRole(t *testing.T) {
	env := newTestRouter(t)

	client := env.login(t, "ana@example.com")
	if rr := env.do(http.MethodGet, "/api/admin/payments", client, ""); rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}

	admin := env.login(t, "admin@example.com")
	rr := env.do(http.MethodGet, "/api/admin/appointments", admin, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestRouterBackend401InvalidatesSession(t *testing.T) {
	env := newTestRouter(t)
	cookie := env.login(t, "ana@example.com")

	env.backend.rejectToken.Store(true)
	rr := env.do(http.MethodGet, "/api/availability?service=s1&date=2024-01-05", cookie, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	calls := env.backend.apptCalls.Load()
	rr = env.do(http.MethodGet, "/api/me/appointments", cookie, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected dropped session to be rejected, got %d", rr.Code)
	}
	if env.backend.apptCalls.Load() != calls {
		t.Fatalf("expected the backend not to be called without a session")
	}
}

func TestRouterFlowRoutes(t *testing.T) {
	env := newTestRouter(t)
	cookie := env.login(t, "ana@example.com")

	if rr := env.do(http.MethodPost, "/api/flow", cookie, ""); rr.Code != http.StatusCreated {
		t.Fatalf("open: expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	if rr := env.do(http.MethodPost, "/api/flow/service", cookie, `{"service_id":"s1"}`); rr.Code != http.StatusOK {
		t.Fatalf("service: expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr := env.do(http.MethodPost, "/api/flow/next", cookie, ""); rr.Code != http.StatusOK {
		t.Fatalf("next: expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr := env.do(http.MethodDelete, "/api/flow", cookie, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("close: expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
}

func TestRouterChatAndMetrics(t *testing.T) {
	env := newTestRouter(t)

	rr := env.do(http.MethodPost, "/chat/message", nil, `{"text":"¿Cómo cancelo un turno?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	rr = env.do(http.MethodGet, "/metrics", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "spa_chat_answers_total") {
		t.Fatalf("expected chat metric in exposition")
	}
}
