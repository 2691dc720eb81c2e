package group

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkQueueRunsEnqueuedWork(t *testing.T) {
	q := newWorkQueue("q", 2)
	defer q.drainAndClose()

	fw := &fakeWork{}
	w := newWorkItem(testGroup("q"), "test", 1, fw)
	q.enqueue(w)

	assert.NoError(t, w.Wait())
	assert.Equal(t, 1, fw.runCount)
}

func TestWorkQueueFIFOWithOneWorker(t *testing.T) {
	q := newWorkQueue("q", 1)
	defer q.drainAndClose()

	var order int32
	items := make([]*workItem, 5)
	for i := range items {
		i := i
		fw := &orderedWork{idx: i, counter: &order}
		items[i] = newWorkItem(testGroup("q"), "test", uint32(i), fw)
		q.enqueue(items[i])
	}
	for _, item := range items {
		assert.NoError(t, item.Wait())
	}
}

type orderedWork struct {
	noSynchronize
	idx     int
	counter *int32
}

func (o *orderedWork) run() error {
	next := atomic.AddInt32(o.counter, 1) - 1
	if int(next) != o.idx {
		return assertOrderError(o.idx, int(next))
	}
	return nil
}

func assertOrderError(want, got int) error {
	return &orderErr{want: want, got: got}
}

type orderErr struct{ want, got int }

func (e *orderErr) Error() string {
	return "out of order"
}

func TestWorkQueueSnapshotInFlight(t *testing.T) {
	q := newWorkQueue("q", 1)
	defer q.drainAndClose()

	block := make(chan struct{})
	fw1 := &blockingWork{release: block}
	w1 := newWorkItem(testGroup("q"), "test", 1, fw1)
	q.enqueue(w1)

	fw2 := &fakeWork{}
	w2 := newWorkItem(testGroup("q"), "test", 2, fw2)
	q.enqueue(w2)

	// give the worker time to pick up w1 and start blocking
	time.Sleep(20 * time.Millisecond)
	snap := q.snapshotInFlight()
	assert.GreaterOrEqual(t, len(snap), 1)

	close(block)
	assert.NoError(t, w1.Wait())
	assert.NoError(t, w2.Wait())
}

type blockingWork struct {
	noSynchronize
	release chan struct{}
}

func (b *blockingWork) run() error {
	<-b.release
	return nil
}

func TestWorkQueueDrainAndClose(t *testing.T) {
	q := newWorkQueue("q", 2)
	fw := &fakeWork{}
	w := newWorkItem(testGroup("q"), "test", 1, fw)
	q.enqueue(w)
	q.drainAndClose()
	assert.NoError(t, w.Wait())
}
