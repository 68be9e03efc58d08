package cache

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))
	return db
}

func TestSqliteTripCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewSqliteTripCache(openTestDB(t))

	_, ok, err := c.Get(ctx, "plan|a|b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "plan|a|b", []byte(`{"legs":[]}`)))

	payload, ok, err := c.Get(ctx, "plan|a|b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"legs":[]}`, string(payload))

	// A second put replaces the payload.
	require.NoError(t, c.Put(ctx, "plan|a|b", []byte(`{"legs":[{"option":1}]}`)))
	payload, ok, err = c.Get(ctx, "plan|a|b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"legs":[{"option":1}]}`, string(payload))
}

func TestSqliteTripCacheRejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	c := NewSqliteTripCache(openTestDB(t))

	_, _, err := c.Get(ctx, "")
	require.Error(t, err)
	require.Error(t, c.Put(ctx, "", []byte("x")))
}

func TestSqliteTripCacheNilDB(t *testing.T) {
	c := NewSqliteTripCache(nil)
	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestRedisTripCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewRedisTripCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, ok, err := c.Get(ctx, "matrix|a|b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "matrix|a|b", []byte(`{"rows":[{"travel_time_s":900}]}`)))

	payload, ok, err := c.Get(ctx, "matrix|a|b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"rows":[{"travel_time_s":900}]}`, string(payload))
}

func TestRedisTripCacheRejectsEmptyKey(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisTripCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	require.Error(t, c.Put(context.Background(), "", []byte("x")))
}
