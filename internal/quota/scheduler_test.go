package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWithinWindowDoesNotPause(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := NewScheduler(3, time.Minute, WithClock(clock))

	for range 3 {
		require.NoError(t, s.Acquire(context.Background()))
	}
	assert.Empty(t, clock.Sleeps())

	calls, cooldowns := s.Stats()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, cooldowns)
}

func TestAcquirePausesWhenWindowExhausted(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var hooked []time.Duration
	s := NewScheduler(2, 30*time.Second, WithClock(clock), WithPauseHook(func(d time.Duration) {
		hooked = append(hooked, d)
	}))

	for range 5 {
		require.NoError(t, s.Acquire(context.Background()))
	}

	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, clock.Sleeps())
	assert.Equal(t, clock.Sleeps(), hooked)
	assert.Equal(t, time.Unix(60, 0), clock.Now())

	calls, cooldowns := s.Stats()
	assert.Equal(t, 5, calls)
	assert.Equal(t, 2, cooldowns)
}

func TestCooldownResetsWindow(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := NewScheduler(2, time.Minute, WithClock(clock))
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Cooldown(ctx))
	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Acquire(ctx))

	assert.Equal(t, []time.Duration{time.Minute}, clock.Sleeps())
}

func TestCooldownHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(1, time.Hour)
	err := s.Cooldown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaults(t *testing.T) {
	s := NewScheduler(0, 0)
	assert.Equal(t, DefaultWindow, s.window)
	assert.Equal(t, DefaultCooldown, s.cooldown)
}
