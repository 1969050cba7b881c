package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// InvalidationObserver counts session invalidations. Implementations must be
// nil-safe.
type InvalidationObserver interface {
	ObserveInvalidation(reason string, deduplicated bool)
}

// Manager creates, loads and invalidates sessions.
type Manager struct {
	store    Store
	guard    *UnauthorizedGuard
	logger   *logging.Logger
	observer InvalidationObserver
	now      func() time.Time
}

// NewManager constructs a Manager.
func NewManager(store Store, guard *UnauthorizedGuard, logger *logging.Logger) *Manager {
	if store == nil {
		panic("session: store required")
	}
	if guard == nil {
		guard = NewUnauthorizedGuard(DefaultDedupeWindow)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{store: store, guard: guard, logger: logger, now: time.Now}
}

// WithObserver attaches an invalidation observer.
func (m *Manager) WithObserver(o InvalidationObserver) *Manager {
	m.observer = o
	return m
}

// Store exposes the underlying store for flow persistence.
func (m *Manager) Store() Store { return m.store }

// Create persists a new session for a successful login.
func (m *Manager) Create(ctx context.Context, token string, user booking.User) (*Session, error) {
	s := New(token, user, m.now())
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	m.logger.Info("session created", "session_id", s.ID, "user_id", user.ID, "role", user.Role)
	return s, nil
}

// Load returns a live session. Sessions whose token has expired are removed
// and reported as ErrNotFound.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn("failed to drop expired session", "session_id", id, "error", err)
		}
		m.observe("expired", false)
		return nil, ErrNotFound
	}
	return s, nil
}

// Destroy removes a session on logout.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// HandleUnauthorized is the hook the backend client calls on every 401. The
// session in ctx is dropped once per dedupe window; later 401s in the same
// burst only return.
func (m *Manager) HandleUnauthorized(ctx context.Context, token string) {
	s, ok := FromContext(ctx)
	key := token
	if ok {
		key = s.ID
	}
	if key == "" {
		return
	}
	if !m.guard.First(key) {
		m.observe("unauthorized", true)
		return
	}
	m.observe("unauthorized", false)
	if !ok {
		m.logger.Warn("backend rejected token outside a session")
		return
	}
	if err := m.store.Delete(context.WithoutCancel(ctx), s.ID); err != nil && !errors.Is(err, ErrNotFound) {
		m.logger.Warn("failed to drop rejected session", "session_id", s.ID, "error", err)
		return
	}
	m.logger.Info("session invalidated after backend 401", "session_id", s.ID, "user_id", s.User.ID)
}

func (m *Manager) observe(reason string, deduplicated bool) {
	if m.observer != nil {
		m.observer.ObserveInvalidation(reason, deduplicated)
	}
}
