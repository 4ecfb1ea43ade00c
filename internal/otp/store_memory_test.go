package otp

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(now *time.Time) *InMemory {
	s := NewInMemory(WithHashCost(bcrypt.MinCost))
	s.now = func() time.Time { return *now }
	return s
}

func TestInMemoryVerify(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s := newTestStore(&now)

	require.NoError(t, s.Save(ctx, "9100000001", "123456", 5*time.Minute))

	t.Run("code is stored hashed", func(t *testing.T) {
		s.mu.Lock()
		defer s.mu.Unlock()
		assert.NotEqual(t, "123456", s.entries["9100000001"].hash)
	})

	ok, err := s.Verify(ctx, "9100000001", "654321")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Verify(ctx, "9100000001", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Verify(ctx, "9100000001", "123456")
	require.NoError(t, err)
	assert.False(t, ok, "codes are single use")
}

func TestInMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s := newTestStore(&now)
	require.NoError(t, s.Save(ctx, "k", "111111", time.Minute))

	now = now.Add(time.Minute)
	ok, err := s.Verify(ctx, "k", "111111")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemorySaveReplaces(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := newTestStore(&now)
	require.NoError(t, s.Save(ctx, "k", "111111", time.Minute))
	require.NoError(t, s.Save(ctx, "k", "222222", time.Minute))

	ok, _ := s.Verify(ctx, "k", "111111")
	assert.False(t, ok)
	ok, _ = s.Verify(ctx, "k", "222222")
	assert.True(t, ok)
}

func TestInMemoryBurnsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := newTestStore(&now)
	require.NoError(t, s.Save(ctx, "k", "111111", time.Minute))

	for i := 0; i < MaxAttempts; i++ {
		ok, err := s.Verify(ctx, "k", "000000")
		require.NoError(t, err)
		require.False(t, ok)
	}
	ok, err := s.Verify(ctx, "k", "111111")
	require.NoError(t, err)
	assert.False(t, ok, "correct code after too many guesses")
}

func TestInMemoryConcurrentVerifyHasOneWinner(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := newTestStore(&now)
	require.NoError(t, s.Save(ctx, "k", "111111", time.Minute))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Verify(ctx, "k", "111111"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestGenerate(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.NotEqual(t, byte('0'), code[0])
	}
}
