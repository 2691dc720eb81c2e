package devsim

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreamRunsInOrder(t *testing.T) {
	s := newStream(0)
	defer s.close()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		s.Enqueue(func() { order = append(order, i) })
	}
	s.Enqueue(func() { close(done) })
	<-done
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestStreamSynchronizeBlocksUntilDrained(t *testing.T) {
	s := newStream(0)
	defer s.close()

	var ran int32
	s.Enqueue(func() {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&ran, 1)
	})
	s.Synchronize()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestEventBlocksDependentStream(t *testing.T) {
	producer := newStream(0)
	consumer := newStream(0)
	defer producer.close()
	defer consumer.close()

	evt := NewEvent()
	var producedBeforeConsumed int32
	producer.Enqueue(func() {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&producedBeforeConsumed, 1)
	})
	evt.Record(producer)
	evt.Block(consumer)
	consumer.Enqueue(func() {})
	consumer.Synchronize()
	assert.Equal(t, int32(1), atomic.LoadInt32(&producedBeforeConsumed))
}

func TestDeviceDefaultStreamIsSingleton(t *testing.T) {
	d := NewDevice(0)
	defer d.Close()

	a := d.DefaultStream()
	b := d.DefaultStream()
	assert.Same(t, a, b)
}

func TestRegistryReusesDeviceByIndex(t *testing.T) {
	reg := NewRegistry()
	a := reg.Get(0)
	b := reg.Get(0)
	c := reg.Get(1)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestAllocPinnedSize(t *testing.T) {
	p := AllocPinned(16)
	assert.Len(t, p.Bytes, 16)
}
