package group

import (
	"sync"

	"github.com/tao-jia/collgroup/internal/xlog"
	"github.com/tao-jia/collgroup/internal/xmetrics"
)

// workQueue is a bounded-producer/multi-consumer engine in the style
// of gaio's watcher event loop: a guarded pending queue, a
// notify-on-enqueue signal, and a die-once shutdown, generalized from
// one loop to a fixed pool of worker goroutines, each holding one
// inProgress slot so a barrier can fence against exactly what was
// outstanding at submission time.
//
// Total size = len(pending) + len(inProgress minus nils); shutdown
// requires the pending deque to be empty before the stop flag is set.
type workQueue struct {
	name string
	log  xlog.Logger

	mu         sync.Mutex
	producerCV *sync.Cond // signaled on enqueue; workers wait on this while pending is empty
	consumerCV *sync.Cond // signaled whenever pending shrinks; Close waits on this for drain

	pending    []*workItem
	inProgress []*workItem // one slot per worker, nil when idle
	stop       bool

	wg sync.WaitGroup
}

func newWorkQueue(name string, threads int) *workQueue {
	q := &workQueue{
		name:       name,
		log:        xlog.New("component", "group/workqueue", "group", name),
		inProgress: make([]*workItem, threads),
	}
	q.producerCV = sync.NewCond(&q.mu)
	q.consumerCV = sync.NewCond(&q.mu)

	q.wg.Add(threads)
	for i := 0; i < threads; i++ {
		go q.runLoop(i)
	}
	return q
}

// enqueue pushes w to the back of the pending deque and wakes one
// waiting worker. It never blocks on I/O.
func (q *workQueue) enqueue(w *workItem) {
	q.mu.Lock()
	q.pending = append(q.pending, w)
	q.mu.Unlock()
	q.producerCV.Signal()
	xmetrics.QueueDepth.WithLabelValues(q.name).Inc()
}

// runLoop is the per-worker consumer loop: wait while pending is empty
// and not stopping, pop the front item, record it in this worker's
// inProgress slot, release the lock, execute it, then clear the slot.
func (q *workQueue) runLoop(slot int) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.stop {
			q.producerCV.Wait()
		}
		if len(q.pending) == 0 && q.stop {
			q.mu.Unlock()
			return
		}
		w := q.pending[0]
		q.pending = q.pending[1:]
		q.inProgress[slot] = w
		q.mu.Unlock()
		q.consumerCV.Broadcast() // wake anyone waiting for the deque to drain

		execute(w)
		xmetrics.QueueDepth.WithLabelValues(q.name).Dec()

		q.mu.Lock()
		q.inProgress[slot] = nil
		q.mu.Unlock()
		q.consumerCV.Broadcast()
	}
}

// snapshotInFlight captures every work item currently pending or
// in-progress under the lock, for barrier fencing. The returned slice
// holds plain pointers: Go's GC makes a weak-reference scheme
// unnecessary here, since holding the pointer does not keep the
// work's resources alive any longer than the work's own completion
// already does.
func (q *workQueue) snapshotInFlight() []*workItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*workItem, 0, len(q.pending)+len(q.inProgress))
	out = append(out, q.pending...)
	for _, w := range q.inProgress {
		if w != nil {
			out = append(out, w)
		}
	}
	return out
}

// drainAndClose waits for the pending deque to empty, sets stop, wakes
// every worker, and joins them, guaranteeing every item already
// enqueued runs to completion before the queue stops.
func (q *workQueue) drainAndClose() {
	q.mu.Lock()
	for len(q.pending) > 0 {
		q.consumerCV.Wait()
	}
	q.stop = true
	q.mu.Unlock()
	q.producerCV.Broadcast()
	q.wg.Wait()
}
