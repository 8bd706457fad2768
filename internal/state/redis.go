package state

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/agentstation/sheetsync/pkg/errors"
)

// NewRedisClient parses a redis:// URL. A bare host:port is accepted too.
func NewRedisClient(dsn string) (*redis.Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.NewValidationError("redis_url", nil, "is required")
	}
	if !strings.Contains(dsn, "://") {
		return redis.NewClient(&redis.Options{Addr: dsn}), nil
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, errors.WrapParse("url", "redis dsn", err)
	}
	return redis.NewClient(opts), nil
}

// RedisStore keeps the fingerprint under a single redis key.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore returns a store using key on client.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = FingerprintKey
	}
	return &RedisStore{client: client, key: key}
}

// Load implements detector.Store.
func (s *RedisStore) Load(ctx context.Context) (uint64, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.WrapResource("get", "fingerprint", s.key, err)
	}
	fp, err := strconv.ParseUint(val, 16, 64)
	if err != nil {
		return 0, false, errors.WrapParse("hex", s.key, err)
	}
	return fp, true, nil
}

// Save implements detector.Store.
func (s *RedisStore) Save(ctx context.Context, fp uint64) error {
	if err := s.client.Set(ctx, s.key, strconv.FormatUint(fp, 16), 0).Err(); err != nil {
		return errors.WrapResource("set", "fingerprint", s.key, err)
	}
	return nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
