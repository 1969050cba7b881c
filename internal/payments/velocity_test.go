package payments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestVelocityChecker_CheckPaymentVelocity(t *testing.T) {
	redisClient, _ := setupTestRedis(t)

	config := DefaultVelocityConfig()
	config.MaxAttemptsPerClient = 3

	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		clientID    string
		attempts    int
		wantAllowed bool
	}{
		{name: "first attempt allowed", clientID: "u1", attempts: 1, wantAllowed: true},
		{name: "at limit allowed", clientID: "u2", attempts: 3, wantAllowed: true},
		{name: "over limit blocked", clientID: "u3", attempts: 4, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result *VelocityResult
			var err error
			for i := 0; i < tt.attempts; i++ {
				result, err = checker.CheckPaymentVelocity(ctx, tt.clientID)
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantAllowed, result.Allowed)
			assert.Equal(t, tt.attempts, result.CurrentCount)
			if !tt.wantAllowed {
				assert.NotEmpty(t, result.Message)
			}
		})
	}
}

func TestVelocityChecker_WindowExpires(t *testing.T) {
	redisClient, mr := setupTestRedis(t)

	config := DefaultVelocityConfig()
	config.MaxAttemptsPerClient = 1
	config.Window = time.Minute
	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	res, err := checker.CheckPaymentVelocity(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = checker.CheckPaymentVelocity(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	mr.FastForward(2 * time.Minute)
	res, err = checker.CheckPaymentVelocity(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestVelocityChecker_FailsOpen(t *testing.T) {
	redisClient, mr := setupTestRedis(t)
	checker := NewVelocityChecker(redisClient, DefaultVelocityConfig(), nil)
	mr.Close()

	res, err := checker.CheckPaymentVelocity(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "velocity check unavailable", res.Message)
}

func TestVelocityChecker_ResetAndDisabled(t *testing.T) {
	redisClient, _ := setupTestRedis(t)
	config := DefaultVelocityConfig()
	config.MaxAttemptsPerClient = 1
	checker := NewVelocityChecker(redisClient, config, nil)
	ctx := context.Background()

	_, _ = checker.CheckPaymentVelocity(ctx, "u1")
	require.NoError(t, checker.Reset(ctx, "u1"))
	res, err := checker.CheckPaymentVelocity(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	config.Enabled = false
	disabled := NewVelocityChecker(redisClient, config, nil)
	for i := 0; i < 3; i++ {
		res, err = disabled.CheckPaymentVelocity(ctx, "u9")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	var nilChecker *VelocityChecker
	res, err = nilChecker.CheckPaymentVelocity(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
