package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "https://a.example", "n-1"))

	valid, err := r.Valid(ctx, "https://a.example", "n-1")
	require.NoError(t, err)
	assert.True(t, valid)

	// Reusable: the faithful registry never consumes a nonce.
	valid, err = r.Valid(ctx, "https://a.example", "n-1")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = r.Valid(ctx, "https://b.example", "n-1")
	require.NoError(t, err)
	assert.False(t, valid, "nonce must be bound to its registering origin")

	valid, err = r.Valid(ctx, "https://a.example", "n-2")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestExpiringRegistry(t *testing.T) {
	r := NewExpiringRegistry(16, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "https://a.example", "n-1"))
	valid, err := r.Valid(ctx, "https://a.example", "n-1")
	require.NoError(t, err)
	assert.True(t, valid)

	time.Sleep(80 * time.Millisecond)
	valid, err = r.Valid(ctx, "https://a.example", "n-1")
	require.NoError(t, err)
	assert.False(t, valid, "nonce must expire after its TTL")
}

func TestRedisRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	r := NewRedisRegistry(client, "", time.Minute)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "https://a.example", "n-1"))

	valid, err := r.Valid(ctx, "https://a.example", "n-1")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = r.Valid(ctx, "https://b.example", "n-1")
	require.NoError(t, err)
	assert.False(t, valid)

	// TTL expiry via miniredis fast-forward.
	mr.FastForward(2 * time.Minute)
	valid, err = r.Valid(ctx, "https://a.example", "n-1")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestRedisRegistryDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	r := NewRedisRegistry(client, "", time.Minute)
	ctx := context.Background()

	assert.Error(t, r.Register(ctx, "https://a.example", "n-1"))
	_, err := r.Valid(ctx, "https://a.example", "n-1")
	assert.Error(t, err)
}
