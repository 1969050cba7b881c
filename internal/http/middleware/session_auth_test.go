package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/session"
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	return session.NewManager(session.NewMemoryStore(time.Hour), nil, nil)
}

func testCookie() SessionCookie {
	return SessionCookie{Name: "spa_session", TTL: time.Hour}
}

func TestRequireSessionRejectsMissingCookie(t *testing.T) {
	called := false
	h := RequireSession(newManager(t), testCookie(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/appointments", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, LoginPath, body["redirect"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestRequireSessionStoresSessionInContext(t *testing.T) {
	m := newManager(t)
	s, err := m.Create(context.Background(), "opaque-token", booking.User{ID: "u1", Role: booking.RoleClient})
	require.NoError(t, err)

	var got *session.Session
	h := RequireSession(m, testCookie(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = session.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me/appointments", nil)
	req.AddCookie(&http.Cookie{Name: "spa_session", Value: s.ID})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, got)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "opaque-token", got.Token)
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireAdmin(ok)

	cases := []struct {
		name string
		sess *session.Session
		want int
	}{
		{"no session", nil, http.StatusUnauthorized},
		{"client", &session.Session{ID: "s1", User: booking.User{Role: booking.RoleClient}}, http.StatusForbidden},
		{"admin", &session.Session{ID: "s2", User: booking.User{Role: "Admin"}}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			if tc.sess != nil {
				req = req.WithContext(session.WithSession(req.Context(), tc.sess))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestSessionCookieSetAndRead(t *testing.T) {
	c := SessionCookie{Name: "spa_session", Secure: true, TTL: time.Hour}
	rec := httptest.NewRecorder()
	c.Set(rec, "abc")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, "abc", c.Read(req))
}
