package matrixcache

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) *redis.StringCmd {
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memKV) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func testKey() Key {
	return Key{
		Profile:   "driving-car",
		Locations: [][2]float64{{-103.3, 20.6}, {-103.4, 20.7}},
		Sources:   []int{0, 1},
	}
}

func TestKeyString(t *testing.T) {
	k := testKey()
	s := k.String()
	assert.True(t, strings.HasPrefix(s, "odflow:matrix:driving-car:"))
	assert.True(t, strings.HasSuffix(s, ":0,1"))

	other := testKey()
	other.Locations[1][0] = -103.5
	assert.NotEqual(t, s, other.String())

	walking := testKey()
	walking.Profile = "foot-walking"
	assert.NotEqual(t, s, walking.String())
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newMemKV()
	c := NewRedis(store, time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, testKey())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, testKey(), [][]float64{{0, 12.5}, {math.NaN(), 0}}))
	assert.Equal(t, time.Hour, store.ttls[testKey().String()])

	rows, ok, err := c.Get(ctx, testKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.5, rows[0][1])
	assert.True(t, math.IsNaN(rows[1][0]))
}

func TestGetDiscardsCorruptEntry(t *testing.T) {
	store := newMemKV()
	store.data[testKey().String()] = "not json"

	_, ok, err := NewRedis(store, 0).Get(context.Background(), testKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackendErrors(t *testing.T) {
	store := newMemKV()
	store.err = errors.New("connection refused")
	c := NewRedis(store, 0)

	_, _, err := c.Get(context.Background(), testKey())
	assert.Error(t, err)
	assert.Error(t, c.Put(context.Background(), testKey(), [][]float64{{1}}))
}
