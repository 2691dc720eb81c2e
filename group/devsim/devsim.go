// Package devsim is a software simulation of the accelerator
// primitives the broadcast/allreduce device-staging path depends on:
// streams, events, a pinned-memory allocator and a per-device stream
// pool with priority. It exists so that path is exercisable and
// testable without a real GPU toolchain: a runtime-dispatched device
// backend behind a capability query, with the accelerator backend
// optional at build time. A real build would swap this package for
// CUDA/ROCm bindings behind the same Stream and Event interfaces.
package devsim

import "sync"

// Stream is an ordered, asynchronous execution queue. Work submitted
// with Enqueue runs strictly in submission order on a dedicated
// goroutine, mirroring a non-default CUDA stream closely enough to
// exercise the staging/fencing logic above it.
type Stream struct {
	priority int
	work     chan func()
	done     chan struct{}
}

func newStream(priority int) *Stream {
	s := &Stream{priority: priority, work: make(chan func(), 64), done: make(chan struct{})}
	go s.loop()
	return s
}

func (s *Stream) loop() {
	for fn := range s.work {
		fn()
	}
	close(s.done)
}

// Enqueue schedules fn to run on the stream, non-blocking from the
// caller's perspective (mirrors cudaMemcpyAsync/launch semantics).
func (s *Stream) Enqueue(fn func()) {
	s.work <- fn
}

// Synchronize blocks the calling goroutine until every previously
// enqueued function has returned, matching cudaStreamSynchronize.
func (s *Stream) Synchronize() {
	wait := make(chan struct{})
	s.Enqueue(func() { close(wait) })
	<-wait
}

func (s *Stream) close() {
	close(s.work)
	<-s.done
}

// Event is a one-shot synchronization point that can be recorded on
// one stream and blocked on from another, the way a CUDA event fences
// two otherwise-independent streams.
type Event struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewEvent allocates an unset event.
func NewEvent() *Event { return &Event{ch: make(chan struct{})} }

// Record schedules the event to fire once everything previously
// enqueued on stream has completed.
func (e *Event) Record(stream *Stream) {
	stream.Enqueue(func() {
		e.mu.Lock()
		if !e.set {
			e.set = true
			close(e.ch)
		}
		e.mu.Unlock()
	})
}

// Block makes stream wait for this event before running anything
// enqueued on it afterwards, i.e. cudaStreamWaitEvent.
func (e *Event) Block(stream *Stream) {
	stream.Enqueue(func() {
		<-e.ch
	})
}

// Wait blocks the calling goroutine directly on the event, for
// callers not routing the wait through another stream.
func (e *Event) Wait() { <-e.ch }

// Pinned is a page-locked host staging buffer stand-in: ordinary heap
// memory tagged so staging code can tell it apart from device-backed
// allocations. Real pinned memory would come from the numeric
// runtime's allocator, out of scope here; this keeps the shape of
// that API without requiring it.
type Pinned struct {
	Bytes []byte
}

// AllocPinned allocates an n-byte pinned staging buffer.
func AllocPinned(n int) *Pinned { return &Pinned{Bytes: make([]byte, n)} }

// Device is one simulated accelerator: an index plus a pool of
// priority-ordered streams, mirroring the "per-device stream pool
// with priority" the numeric runtime interface names.
type Device struct {
	Index int

	mu           sync.Mutex
	streams      []*Stream
	defaultOnce  sync.Once
	defaultStream *Stream
}

// NewDevice constructs a simulated device with no streams yet.
func NewDevice(index int) *Device { return &Device{Index: index} }

// DefaultStream returns the stream standing in for the caller's
// current compute stream on this device — the one staging work fences
// against at construction time and hands results back to via
// Synchronize.
func (d *Device) DefaultStream() *Stream {
	d.defaultOnce.Do(func() {
		d.defaultStream = newStream(0)
		d.mu.Lock()
		d.streams = append(d.streams, d.defaultStream)
		d.mu.Unlock()
	})
	return d.defaultStream
}

// NewStream acquires a stream of the given priority from the device's
// pool. Higher priority values run no differently in software (there
// is no real hardware scheduler to honor it) but the parameter is
// kept so callers mirror the production stream-pool call shape.
func (d *Device) NewStream(priority int) *Stream {
	s := newStream(priority)
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s
}

// Close tears down every stream this device ever handed out. Devices
// are process-lifetime objects in production; Close exists for tests.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.streams {
		s.close()
	}
	d.streams = nil
}

// Registry hands out simulated devices by index, standing in for the
// numeric runtime's device guard / device count query.
type Registry struct {
	mu      sync.Mutex
	devices map[int]*Device
}

// NewRegistry builds an empty device registry.
func NewRegistry() *Registry { return &Registry{devices: make(map[int]*Device)} }

// Get returns the device for index, creating it on first use.
func (r *Registry) Get(index int) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[index]
	if !ok {
		d = NewDevice(index)
		r.devices[index] = d
	}
	return d
}
