package redis

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leettogether/leetstreak/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewStoreFromClient(client, "test", slog.Default())
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Put(ctx, "users", "42", []byte(`{"leetcode_username":"alice"}`)))

	got, err := s.Get(ctx, "users", "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"leetcode_username":"alice"}`, string(got))
	assert.True(t, mr.Exists("test:users"))

	_, err = s.UpdatedAt(ctx, "users", "42")
	assert.NoError(t, err)
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "users", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListDeleteReplace(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Put(ctx, "streaks", "a", []byte(`{"streak":1}`)))
	require.NoError(t, s.Put(ctx, "streaks", "b", []byte(`{"streak":2}`)))
	require.NoError(t, s.Delete(ctx, "streaks", "a"))

	all, err := s.List(ctx, "streaks")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "b")

	require.NoError(t, s.Replace(ctx, "streaks", map[string][]byte{"c": []byte(`{}`)}))
	all, err = s.List(ctx, "streaks")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"c": []byte(`{}`)}, all)

	require.NoError(t, s.Replace(ctx, "streaks", map[string][]byte{}))
	all, err = s.List(ctx, "streaks")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPing(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
