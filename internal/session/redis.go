package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/spa-turnos/internal/booking"
)

const (
	fieldToken   = "token"
	fieldUser    = "user"
	fieldCreated = "created_at"
)

// RedisStore keeps each session in a hash with the fields "token" and "user"
// and the booking flow under a sibling key. Both expire after ttl and are
// refreshed on every save.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl, prefix: "spa:"}
}

func (r *RedisStore) sessionKey(id string) string { return r.prefix + "session:" + id }
func (r *RedisStore) flowKey(id string) string    { return r.prefix + "flow:" + id }

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := r.redis.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	if len(fields) == 0 || fields[fieldToken] == "" {
		return nil, ErrNotFound
	}
	s := &Session{ID: id, Token: fields[fieldToken]}
	if raw := fields[fieldUser]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.User); err != nil {
			return nil, fmt.Errorf("session: decode user: %w", err)
		}
	}
	if raw := fields[fieldCreated]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			s.CreatedAt = t
		}
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	user, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	key := r.sessionKey(s.ID)
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldToken, s.Token,
			fieldUser, string(user),
			fieldCreated, s.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: save %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, r.sessionKey(id), r.flowKey(id)).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) LoadFlow(ctx context.Context, sessionID string) (*booking.Flow, error) {
	raw, err := r.redis.Get(ctx, r.flowKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load flow: %w", err)
	}
	var f booking.Flow
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("session: decode flow: %w", err)
	}
	return &f, nil
}

func (r *RedisStore) SaveFlow(ctx context.Context, sessionID string, f *booking.Flow) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("session: encode flow: %w", err)
	}
	if err := r.redis.Set(ctx, r.flowKey(sessionID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: save flow: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteFlow(ctx context.Context, sessionID string) error {
	if err := r.redis.Del(ctx, r.flowKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: delete flow: %w", err)
	}
	return nil
}
