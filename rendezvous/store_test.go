package rendezvous

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreWaitSucceedsAfterSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		s.Set(ctx, "a", []byte("1"))
		s.Set(ctx, "b", []byte("2"))
	}()

	err := s.Wait(ctx, []string{"a", "b"}, time.Second)
	require.NoError(t, err)
	wg.Wait()
}

func TestMemoryStoreWaitTimesOut(t *testing.T) {
	s := NewMemoryStore()
	err := s.Wait(context.Background(), []string{"never"}, 20*time.Millisecond)
	assert.Error(t, err)
}
