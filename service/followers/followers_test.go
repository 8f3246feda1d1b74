package followers

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"PPRealtime/tools/errs"
)

func TestMemoryFollowers(t *testing.T) {
	m := NewMemory(map[string][]string{"a": {"f1", "f2"}, "lonely": nil})
	ctx := context.Background()

	got, err := m.Followers(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, got)

	got, err = m.Followers(ctx, "lonely")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = m.Followers(ctx, "ghost")
	assert.ErrorIs(t, err, errs.ErrLookup)

	m.Set("ghost", "f9")
	got, err = m.Followers(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"f9"}, got)
}

func TestMemoryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("author: [f1, f2]\nsolo: []\n"), 0o600))

	m, err := NewMemoryFromFile(path)
	require.NoError(t, err)
	got, err := m.Followers(context.Background(), "author")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, got)

	_, err = NewMemoryFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), Config{DSN: "memory://"}, zap.NewNop())
	require.NoError(t, err)
	_, ok := st.(*Memory)
	assert.True(t, ok)
	require.NoError(t, st.Close())

	st, err = Open(context.Background(), Config{DSN: "memory://", CacheTTL: time.Minute}, nil)
	require.NoError(t, err)
	_, ok = st.(*Cached)
	assert.True(t, ok)
	require.NoError(t, st.Close())

	_, err = Open(context.Background(), Config{DSN: "mysql://h/db"}, nil)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

type countingStore struct {
	calls atomic.Int32
	ids   []string
	err   error
	delay time.Duration
}

func (s *countingStore) Followers(context.Context, string) ([]string, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return s.ids, s.err
}

func (s *countingStore) Close() error { return nil }

func TestCachedHitsAndExpiry(t *testing.T) {
	inner := &countingStore{ids: []string{"f1"}}
	c := NewCached(inner, 50*time.Millisecond, 10, 0)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Followers(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"f1"}, got)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	c.Invalidate("a")
	_, _ = c.Followers(ctx, "a")
	assert.Equal(t, int32(2), inner.calls.Load())

	time.Sleep(80 * time.Millisecond)
	_, _ = c.Followers(ctx, "a")
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	inner := &countingStore{err: errs.ErrLookup.WrapMsg("db down")}
	c := NewCached(inner, time.Minute, 0, 0)
	defer c.Close()

	_, err := c.Followers(context.Background(), "a")
	assert.ErrorIs(t, err, errs.ErrLookup)

	inner.err = nil
	inner.ids = []string{"f2"}
	got, err := c.Followers(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, got)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedCollapsesConcurrentMisses(t *testing.T) {
	inner := &countingStore{ids: []string{"f1"}, delay: 30 * time.Millisecond}
	c := NewCached(inner, time.Minute, 0, 0)
	defer c.Close()

	errc := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := c.Followers(context.Background(), "a")
			errc <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errc)
	}
	assert.LessOrEqual(t, inner.calls.Load(), int32(2))
}


// waitStore 按 ctx 等待 delay 后返回
type waitStore struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *waitStore) Followers(ctx context.Context, _ string) ([]string, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
		return []string{"f1"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *waitStore) Close() error { return nil }

func TestCachedCallerTimeoutDoesNotFailOthers(t *testing.T) {
	inner := &waitStore{delay: 60 * time.Millisecond}
	c := NewCached(inner, time.Minute, 0, time.Second)
	defer c.Close()

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	shortErr := make(chan error, 1)
	go func() {
		_, err := c.Followers(short, "a")
		shortErr <- err
	}()
	time.Sleep(2 * time.Millisecond)

	got, err := c.Followers(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, got)
	assert.ErrorIs(t, <-shortErr, errs.ErrLookup)
	assert.Equal(t, int32(1), inner.calls.Load())
}
