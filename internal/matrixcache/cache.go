// Package matrixcache stores travel-time matrix batches in redis so a
// restarted run can skip calls that already succeeded.
package matrixcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const keyPrefix = "odflow:matrix"

// Key identifies one batch response.
type Key struct {
	Profile   string
	Locations [][2]float64
	Sources   []int
}

// String returns the redis key: profile, a SHA-256 of the locations and the
// source indexes.
func (k Key) String() string {
	h := sha256.New()
	var buf [8]byte
	for _, loc := range k.Locations {
		for _, v := range loc {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:]) //nolint:errcheck
		}
	}
	src := make([]string, len(k.Sources))
	for i, s := range k.Sources {
		src[i] = strconv.Itoa(s)
	}
	return fmt.Sprintf("%s:%s:%x:%s", keyPrefix, k.Profile, h.Sum(nil), strings.Join(src, ","))
}

// Cache stores batch rows. NaN marks an unreachable pair.
type Cache interface {
	Get(ctx context.Context, key Key) ([][]float64, bool, error)
	Put(ctx context.Context, key Key, rows [][]float64) error
}

// kv is the subset of redis commands the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis is a Cache backed by redis string keys holding JSON rows.
type Redis struct {
	client kv
	ttl    time.Duration
}

// NewRedis wraps a redis client. A zero ttl keeps entries forever.
func NewRedis(client kv, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Options configures Dial.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Dial connects to redis and checks the connection once.
func Dial(ctx context.Context, opts Options) (*Redis, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, eris.Wrapf(err, "matrixcache: ping %s", opts.Addr)
	}
	return NewRedis(client, opts.TTL), client, nil
}

// Get returns the cached rows for key. A miss is (nil, false, nil).
func (r *Redis) Get(ctx context.Context, key Key) ([][]float64, bool, error) {
	val, err := r.client.Get(ctx, key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "matrixcache: get")
	}

	var stored [][]*float64
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		zap.L().Warn("matrixcache: discarding unreadable entry", zap.String("key", key.String()), zap.Error(err))
		return nil, false, nil
	}
	rows := make([][]float64, len(stored))
	for i, src := range stored {
		rows[i] = make([]float64, len(src))
		for j, v := range src {
			if v == nil {
				rows[i][j] = math.NaN()
				continue
			}
			rows[i][j] = *v
		}
	}
	return rows, true, nil
}

// Put stores rows under key.
func (r *Redis) Put(ctx context.Context, key Key, rows [][]float64) error {
	stored := make([][]*float64, len(rows))
	for i, src := range rows {
		stored[i] = make([]*float64, len(src))
		for j := range src {
			if math.IsNaN(src[j]) || math.IsInf(src[j], 0) {
				continue
			}
			v := src[j]
			stored[i][j] = &v
		}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return eris.Wrap(err, "matrixcache: marshal")
	}
	if err := r.client.Set(ctx, key.String(), data, r.ttl).Err(); err != nil {
		return eris.Wrap(err, "matrixcache: set")
	}
	return nil
}
