package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveInvalidation(reason string, deduplicated bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	key := reason
	if deduplicated {
		key += ":dup"
	}
	o.counts[key]++
}

func TestUnauthorizedGuardWindow(t *testing.T) {
	g := NewUnauthorizedGuard(5 * time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	assert.True(t, g.First("s1"))
	assert.False(t, g.First("s1"))
	assert.True(t, g.First("s2"))

	now = now.Add(4 * time.Second)
	assert.False(t, g.First("s1"))

	now = now.Add(time.Second)
	assert.True(t, g.First("s1"))
}

func TestManagerLoadDropsExpiredToken(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, nil, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	store.now = m.now
	obs := &countingObserver{}
	m.WithObserver(obs)
	ctx := context.Background()

	s, err := m.Create(ctx, signedToken(t, now.Add(time.Minute)), testUser)
	require.NoError(t, err)

	got, err := m.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.User.ID)

	now = now.Add(2 * time.Minute)
	_, err = m.Load(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, obs.counts["expired"])
}

func TestManagerHandleUnauthorizedDeduplicates(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour)
	m := NewManager(store, NewUnauthorizedGuard(5*time.Second), nil)
	obs := &countingObserver{}
	m.WithObserver(obs)

	s, err := m.Create(context.Background(), "opaque", testUser)
	require.NoError(t, err)
	ctx := WithSession(context.Background(), s)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.HandleUnauthorized(ctx, "opaque")
		}()
	}
	wg.Wait()

	_, err = store.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, obs.counts["unauthorized"])
	assert.Equal(t, 4, obs.counts["unauthorized:dup"])
}

func TestContextHelpers(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := New("tok", testUser, time.Now())
	got, ok := FromContext(WithSession(context.Background(), s))
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "u1", got.Principal().ClientID)
}
