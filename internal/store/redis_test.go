package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), mr
}

func TestPut_And_Get(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	err := s.Put(ctx, "payment:session:b1:s1", []byte(`{"id":"s1"}`), time.Minute)
	require.NoError(t, err)

	data, err := s.Get(ctx, "payment:session:b1:s1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"s1"}`), data)
}

func TestGet_Missing(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestGet_AfterTTL(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestPutIfAbsent_WinnerAndLoser(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	won, err := s.PutIfAbsent(ctx, "claim", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.PutIfAbsent(ctx, "claim", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	// The loser's value must not overwrite the winner's.
	data, err := s.Get(ctx, "claim")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestDelete(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))

	assert.False(t, mr.Exists("k"))
}

func TestDelete_MissingKeyIsNoop(t *testing.T) {
	s, _ := setupTestStore(t)

	assert.NoError(t, s.Delete(context.Background(), "missing"))
}

func TestScanPrefix(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "payment:session:b1:s1", []byte("a"), time.Minute))
	require.NoError(t, s.Put(ctx, "payment:session:b1:s2", []byte("b"), time.Minute))
	require.NoError(t, s.Put(ctx, "payment:session:b2:s3", []byte("c"), time.Minute))

	values, err := s.ScanPrefix(ctx, "payment:session:b1:")
	require.NoError(t, err)
	assert.Len(t, values, 2)

	found := map[string]bool{}
	for _, v := range values {
		found[string(v)] = true
	}
	assert.True(t, found["a"])
	assert.True(t, found["b"])
	assert.False(t, found["c"])
}

func TestScanPrefix_Empty(t *testing.T) {
	s, _ := setupTestStore(t)

	values, err := s.ScanPrefix(context.Background(), "payment:session:nobody:")
	require.NoError(t, err)
	assert.Empty(t, values)
}
