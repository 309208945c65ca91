package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNil is returned by Get when the key does not exist.
var ErrNil = errors.New("redis: key not found")

// ErrTxConflict is returned by Update when the watched key kept changing
// for every attempt.
var ErrTxConflict = errors.New("redis: concurrent modification")

const (
	scanCount       = 200
	maxUpdateRounds = 5
)

// Store is the string-keyed record store shared by the repositories and
// the job queue. It only relies on single-key atomic commands plus
// WATCH/MULTI for read-modify-write of one key.
type Store struct {
	client *redis.Client
}

// NewStore wraps an initialized client
func NewStore(c *redis.Client) *Store {
	return &Store{client: c}
}

// Client exposes the underlying connection for components that need
// commands outside the generic surface (the job queue).
func (s *Store) Client() *redis.Client {
	return s.client
}

// Get retrieves a value by key, ErrNil when absent
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	return val, err
}

// Set stores a value without expiration
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// SetNX sets a key only if it does not exist
func (s *Store) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, expiration).Result()
}

// Del removes keys
func (s *Store) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// LPush prepends values to a list
func (s *Store) LPush(ctx context.Context, key string, values ...interface{}) error {
	return s.client.LPush(ctx, key, values...).Err()
}

// LRange returns a slice of a list, stop -1 meaning the end
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

// LLen returns the length of a list, 0 when absent
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

// LContains reports whether value is an element of the list at key
func (s *Store) LContains(ctx context.Context, key, value string) (bool, error) {
	_, err := s.client.LPos(ctx, key, value, redis.LPosArgs{}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Keys lists every key matching pattern. It walks the keyspace with SCAN
// so a large store never blocks the server the way KEYS would.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Update performs an optimistic read-modify-write of a single key. fn gets
// the current value (exists=false when the key is absent) and returns the
// value to write; returning write=false leaves the key untouched. The key
// is WATCHed, so a concurrent writer makes the round restart with a fresh
// read.
func (s *Store) Update(ctx context.Context, key string, fn func(current string, exists bool) (next string, write bool, err error)) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}

		next, write, err := fn(current, exists)
		if err != nil || !write {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRounds; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTxConflict
}
