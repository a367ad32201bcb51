package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jorat/landing/internal/clock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func defaultLimits() RateLimitConfig {
	return RateLimitConfig{MaxRequests: 3, Window: 5 * time.Minute, SweepInterval: 5 * time.Minute}
}

func allowN(t *testing.T, l RateLimiter, key string, n int) []bool {
	t.Helper()
	out := make([]bool, 0, n)
	for i := 0; i < n; i++ {
		ok, err := l.Allow(context.Background(), key)
		require.NoError(t, err)
		out = append(out, ok)
	}
	return out
}

func TestMemoryRateLimiter_Allow(t *testing.T) {
	clk := clock.NewFake(testStart)
	l := NewMemoryRateLimiter(defaultLimits(), clk, quietLogger())

	assert.Equal(t, []bool{true, true, true, false, false}, allowN(t, l, "09123456789", 5))

	// other keys have their own window
	assert.Equal(t, []bool{true}, allowN(t, l, "09000000000", 1))

	clk.Advance(5*time.Minute - time.Second)
	assert.Equal(t, []bool{false}, allowN(t, l, "09123456789", 1))

	clk.Advance(time.Second)
	assert.Equal(t, []bool{true, true, true, false}, allowN(t, l, "09123456789", 4))
}

func TestMemoryRateLimiter_WindowIsFixed(t *testing.T) {
	clk := clock.NewFake(testStart)
	l := NewMemoryRateLimiter(defaultLimits(), clk, quietLogger())

	allowN(t, l, "k", 1)
	clk.Advance(4 * time.Minute)
	allowN(t, l, "k", 2)

	// the window opened at testStart, not at the last request
	clk.Advance(time.Minute)
	assert.Equal(t, []bool{true}, allowN(t, l, "k", 1))
}

func TestMemoryRateLimiter_DenyDoesNotMutate(t *testing.T) {
	clk := clock.NewFake(testStart)
	l := NewMemoryRateLimiter(defaultLimits(), clk, quietLogger())

	allowN(t, l, "k", 10)

	l.mu.Lock()
	w := *l.windows["k"]
	l.mu.Unlock()
	assert.Equal(t, 3, w.Count)
	assert.Equal(t, testStart.Add(5*time.Minute), w.ResetAt)
}

func TestMemoryRateLimiter_Sweep(t *testing.T) {
	clk := clock.NewFake(testStart)
	l := NewMemoryRateLimiter(defaultLimits(), clk, quietLogger())

	allowN(t, l, "a", 1)
	clk.Advance(3 * time.Minute)
	allowN(t, l, "b", 1)

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestMemoryRateLimiter_StartStop(t *testing.T) {
	clk := clock.NewFake(testStart)
	l := NewMemoryRateLimiter(RateLimitConfig{MaxRequests: 3, Window: time.Minute, SweepInterval: 5 * time.Millisecond}, clk, quietLogger())

	allowN(t, l, "a", 1)
	clk.Advance(time.Hour)

	l.Start(context.Background())
	defer l.Stop()
	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, time.Millisecond)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	mr, client := newMiniredis(t)
	l := NewRedisRateLimiter(client, defaultLimits(), quietLogger())

	assert.Equal(t, []bool{true, true, true, false, false}, allowN(t, l, "09123456789", 5))
	assert.Equal(t, "3", mustGet(t, mr, "otp_rate:09123456789"))

	ttl, err := l.ResetIn(context.Background(), "09123456789")
	require.NoError(t, err)
	assert.InDelta(t, (5 * time.Minute).Seconds(), ttl.Seconds(), 1)

	mr.FastForward(5 * time.Minute)
	assert.Equal(t, []bool{true}, allowN(t, l, "09123456789", 1))
	assert.Equal(t, "1", mustGet(t, mr, "otp_rate:09123456789"))

	ttl, err = l.ResetIn(context.Background(), "09000000000")
	require.NoError(t, err)
	assert.Zero(t, ttl)
}

func TestRedisRateLimiter_AllowError(t *testing.T) {
	mr, client := newMiniredis(t)
	l := NewRedisRateLimiter(client, defaultLimits(), quietLogger())
	mr.Close()

	ok, err := l.Allow(context.Background(), "09123456789")
	require.Error(t, err)
	assert.False(t, ok)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
