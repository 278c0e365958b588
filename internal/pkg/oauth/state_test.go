package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client, mr
}

func TestStateStore_GenerateAndConsume(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := NewStateStore(rdb)
	ctx := context.Background()

	state, err := store.GenerateState(ctx, "http://localhost:3000/chat")
	require.NoError(t, err)
	assert.Len(t, state, 64) // 32 bytes = 64 hex chars

	redirect, err := store.ConsumeState(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/chat", redirect)

	// 第二次使用失败
	_, err = store.ConsumeState(ctx, state)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateStore_Expired(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	store := NewStateStore(rdb)
	ctx := context.Background()

	state, err := store.GenerateState(ctx, "http://localhost:3000")
	require.NoError(t, err)

	mr.FastForward(stateTTL + time.Second)

	_, err = store.ConsumeState(ctx, state)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateStore_Empty(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := NewStateStore(rdb)

	_, err := store.ConsumeState(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = store.ConsumeState(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidState)
}
