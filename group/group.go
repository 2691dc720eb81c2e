// Package group is the core of a distributed collective-communication
// process group: an asynchronous work engine that binds a set of peer
// processes together over a transport, dispatches broadcast, allreduce,
// reduce, allgather, gather, scatter, barrier, send and recv onto a
// bounded worker pool, and interleaves that dispatch with simulated
// accelerator-device streams for device-resident buffers. Everything
// below context connection, wire algorithms, and real device execution
// lives in the transport, rendezvous and devsim packages; this package
// is the serialization, validation and fencing layer on top of them.
package group

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tao-jia/collgroup/group/devsim"
	"github.com/tao-jia/collgroup/internal/xerrors"
	"github.com/tao-jia/collgroup/internal/xlog"
	"github.com/tao-jia/collgroup/rendezvous"
)

// Group is one peer's handle onto a connected process group. It is
// immutable after New returns except for the internal tag counter and
// worker queue state.
type Group struct {
	id   uuid.UUID
	name string
	log  xlog.Logger

	rank int
	size int
	opts Options

	ctxSet *contextSet
	devsim *devsim.Registry
	queue  *workQueue

	tagCounter uint32
}

// New constructs a group bound to (rank, size), blocking until every
// configured device has completed fullmesh rendezvous against store.
// Fails fast and leaves no partially constructed group on any error,
// per the constructor contract.
func New(ctx context.Context, store rendezvous.Store, rank, size int, opts Options) (*Group, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := validateRank("group.new", rank, size); err != nil {
		return nil, err
	}

	id := uuid.New()
	name := id.String()[:8]
	log := xlog.New("component", "group", "group", name, "rank", rank)

	ctxSet, err := newContextSet(ctx, store, opts.Devices, rank, size, opts.timeout())
	if err != nil {
		return nil, err
	}

	g := &Group{
		id:     id,
		name:   name,
		log:    log,
		rank:   rank,
		size:   size,
		opts:   opts,
		ctxSet: ctxSet,
		devsim: devsim.NewRegistry(),
		queue:  newWorkQueue(name, opts.Threads),
	}
	log.Info("group constructed", "size", size, "threads", opts.Threads)
	return g, nil
}

// nextTag allocates the next monotonic per-group tag, wrapping modulo
// 2^32. Wrap-around is accepted rather than guarded against, per the
// open question this package inherited: a group issuing more than 2^32
// collectives across its lifetime must rely on execution having long
// since drained earlier tags before they recur.
func (g *Group) nextTag() uint32 {
	return atomic.AddUint32(&g.tagCounter, 1)
}

// submit wraps inner in a workItem, enqueues it, and returns the
// caller-facing handle, the single choke point every collective method
// funnels through so queue-depth accounting and logging stay in one
// place.
func (g *Group) submit(kind string, tag uint32, inner asyncWork) *workItem {
	w := newWorkItem(g, kind, tag, inner)
	g.queue.enqueue(w)
	return w
}

// Rank returns this process's rank within the group.
func (g *Group) Rank() int { return g.rank }

// Size returns the group's total peer count.
func (g *Group) Size() int { return g.size }

// GetGroupRank is not supported by this package and always fails, per the
// external-interface contract's explicit carve-out.
func (g *Group) GetGroupRank() (int, error) {
	return 0, xerrors.Unsupported("getGroupRank", "not supported by this package")
}

// Close drains the pending work queue, stops the worker pool, and
// tears down every connected context. It blocks until every
// already-enqueued work item has run to completion; work items
// created after Close begins is a programmer error to submit.
func (g *Group) Close() error {
	g.queue.drainAndClose()
	g.ctxSet.closeAll()
	g.log.Info("group closed")
	return nil
}
