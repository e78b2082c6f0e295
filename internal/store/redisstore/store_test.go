package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/lexchat/internal/anon"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb, 24*time.Hour), mr
}

func TestIncrementIfBelow_StopsAtCeiling(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		n, allowed, err := s.IncrementIfBelow(ctx, "S1", 5)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should be allowed", i)
		require.Equal(t, i, n)
	}

	n, allowed, err := s.IncrementIfBelow(ctx, "S1", 5)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 5, n)

	count, err := s.Count(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, 24*time.Hour, mr.TTL(anon.CountKey("S1")))
}

func TestIncrementIfBelow_ConcurrentAtLastSlot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.Increment(ctx, "S2")
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.IncrementIfBelow(ctx, "S2", 5)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, allowed)
	count, err := s.Count(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestMessages_SaveLoadAndClear(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	got, err := s.Messages(ctx, "S3", "chat-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	msgs := []anon.Message{
		{ID: "m1", ChatID: "chat-1", Role: "human", Content: "Hello"},
		{ID: "m2", ChatID: "chat-1", Role: "assistant", Content: "Hi", Sources: []anon.Source{{URL: "a.pdf"}}},
	}
	require.NoError(t, s.SaveMessages(ctx, "S3", "chat-1", msgs))
	require.NoError(t, s.SaveMessages(ctx, "S3", "chat-2", msgs[:1]))
	_, err = s.Increment(ctx, "S3")
	require.NoError(t, err)

	got, err = s.Messages(ctx, "S3", "chat-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "assistant", got[1].Role)
	assert.Equal(t, "a.pdf", got[1].Sources[0].URL)
	assert.Equal(t, 24*time.Hour, mr.TTL(anon.ChatKey("S3", "chat-1")))

	require.NoError(t, s.ClearChats(ctx, "S3"))
	assert.False(t, mr.Exists(anon.ChatKey("S3", "chat-1")))
	assert.False(t, mr.Exists(anon.ChatKey("S3", "chat-2")))
	assert.True(t, mr.Exists(anon.CountKey("S3")))

	// nothing left to clear
	require.NoError(t, s.ClearChats(ctx, "S3"))
}
