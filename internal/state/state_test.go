package state

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/detector"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		dsn     string
		want    any
		wantErr bool
	}{
		{name: "empty", dsn: "", want: &detector.MemoryStore{}},
		{name: "memory", dsn: "memory://", want: &detector.MemoryStore{}},
		{name: "file", dsn: "file://" + filepath.Join(dir, "fp.json"), want: &FileStore{}},
		{name: "redis", dsn: "redis://localhost:6379/0", want: &RedisStore{}},
		{name: "unsupported", dsn: "etcd://host", wantErr: true},
		{name: "file without path", dsn: "file://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenStore(tt.dsn)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "fingerprint.json")
	store := NewFileStore(path)

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "missing file means no fingerprint")

	require.NoError(t, store.Save(ctx, 0xdeadbeefcafe))
	fp, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0xdeadbeefcafe), fp)

	require.NoError(t, store.Save(ctx, 7))
	fp, _, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), fp)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fp.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, _, err := NewFileStore(path).Load(context.Background())
	var parseErr *errors.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestFileStoreWorksWithDetector(t *testing.T) {
	ctx := context.Background()
	det := detector.New(NewFileStore(filepath.Join(t.TempDir(), "fp.json")))

	changed, fp, err := det.Changed(ctx, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, det.Commit(ctx, fp))

	changed, _, err = det.Changed(ctx, nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, errors.ErrLocked)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "double release is harmless")

	release, err = l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestKeepAliveRefreshesUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(context.Background(), 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, logging.NewNopLogger())

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	stop()
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no refresh after stop")
	stop()
}

func TestKeepAliveEndsWhenLockLost(t *testing.T) {
	tl := logging.NewTestLogger(t)
	var calls atomic.Int32
	stop := keepAlive(context.Background(), 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return redislock.ErrNotObtained
	}, tl.Logger)
	defer stop()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	tl.AssertContains(t, "Sync lock lost")
}

func TestNewRedisLockerRefreshInterval(t *testing.T) {
	l := NewRedisLocker(nil, 0)
	assert.Equal(t, LockKey, l.key)
	assert.Equal(t, constants.LockTTL, l.ttl)
	assert.Equal(t, constants.LockTTL/3, l.refreshEvery)
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", c.Options().Addr)

	c, err = NewRedisClient("redis://:pw@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
	assert.Equal(t, "pw", c.Options().Password)

	_, err = NewRedisClient("")
	assert.Error(t, err)
}

func TestRedisIntegration(t *testing.T) {
	addr := os.Getenv("SHEETSYNC_TEST_REDIS_URL")
	if addr == "" {
		t.Skip("SHEETSYNC_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(addr)
	require.NoError(t, err)
	defer client.Close()

	key := "sheetsync:test:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	store := NewRedisStore(client, key)
	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, 12345))
	fp, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(12345), fp)

	locker := NewRedisLocker(client, 0)
	release, err := locker.Acquire(ctx)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx)
	assert.ErrorIs(t, err, errors.ErrLocked)
	require.NoError(t, release(ctx))

	short := NewRedisLocker(client, 300*time.Millisecond)
	release, err = short.Acquire(ctx)
	require.NoError(t, err)
	time.Sleep(time.Second)
	_, err = short.Acquire(ctx)
	assert.ErrorIs(t, err, errors.ErrLocked, "a refreshed lock outlives its ttl")
	require.NoError(t, release(ctx))
}
