package group

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tao-jia/collgroup/rendezvous"
	"github.com/tao-jia/collgroup/transport"
)

func TestNewContextSetRejectsEmptyDevices(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	_, err := newContextSet(context.Background(), store, nil, 0, 1, time.Second)
	assert.Error(t, err)
}

func TestNewContextSetConnectsOneDevicePerRank(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	devices := []transport.Device{{ListenHost: "127.0.0.1"}}

	const size = 3
	sets := make([]*contextSet, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	wg.Add(size)
	for r := 0; r < size; r++ {
		r := r
		go func() {
			defer wg.Done()
			sets[r], errs[r] = newContextSet(context.Background(), store, devices, r, size, 5*time.Second)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, s := range sets {
		assert.NotNil(t, s.primary())
		s.closeAll()
	}
}
