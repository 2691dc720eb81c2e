// Package rendezvous provides the key/value store that peers use for
// out-of-band address exchange before any collective runs, the
// fullmesh rendezvous step transport.Connect performs. The Store
// interface is deliberately the same shape the transport layer's
// store adapter consumes: set/get/wait, so the group core never has
// to know whether rendezvous happens in-process or over the network.
package rendezvous

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tao-jia/collgroup/internal/xmetrics"
)

// ErrNotFound is returned by Get for a key that was never Set.
var ErrNotFound = errors.New("rendezvous: key not found")

// DefaultWaitTimeout is used by Wait when the caller does not specify
// one.
const DefaultWaitTimeout = 10 * time.Second

// Store is the rendezvous key/value interface the group core's store
// adapter consumes.
type Store interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Wait blocks until every key in keys has been Set, or until
	// timeout elapses. A zero timeout means DefaultWaitTimeout.
	Wait(ctx context.Context, keys []string, timeout time.Duration) error
}

// MemoryStore is an in-process Store backed by a guarded map with
// condition-variable-style polling on Wait, useful for tests and for
// single-process multi-rank simulations.
type MemoryStore struct {
	mu   sync.Mutex
	cond *sync.Cond
	data map[string][]byte
}

// NewMemoryStore builds an empty in-memory rendezvous store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{data: make(map[string][]byte)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte{}, value...)
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, errors.WithMessagef(ErrNotFound, "key %q", key)
	}
	return append([]byte{}, v...), nil
}

func (s *MemoryStore) Wait(ctx context.Context, keys []string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	start := time.Now()
	defer func() {
		xmetrics.RendezvousLatency.WithLabelValues("memory").Observe(time.Since(start).Seconds())
	}()

	deadline := time.Now().Add(timeout)
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		for !s.hasAllLocked(keys) {
			if time.Now().After(deadline) {
				break
			}
			waitUntil(s.cond, deadline)
		}
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	ok := s.hasAllLocked(keys)
	s.mu.Unlock()
	if !ok {
		return errors.Errorf("rendezvous: wait timed out after %s for keys %v", timeout, keys)
	}
	return nil
}

func (s *MemoryStore) hasAllLocked(keys []string) bool {
	for _, k := range keys {
		if _, ok := s.data[k]; !ok {
			return false
		}
	}
	return true
}

// waitUntil wakes cond.Wait() up again once deadline passes even if
// nobody calls Broadcast, so Wait's deadline loop terminates promptly.
func waitUntil(cond *sync.Cond, deadline time.Time) {
	timer := time.AfterFunc(time.Until(deadline), cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}
