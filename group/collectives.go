package group

import (
	"github.com/tao-jia/collgroup/group/tensor"
	"github.com/tao-jia/collgroup/internal/xerrors"
	"github.com/tao-jia/collgroup/transport"
)

func isDevice(bufs []*tensor.Buffer) bool {
	return len(bufs) > 0 && bufs[0].Device.Accelerator
}

// broadcastWork implements broadcast: transport broadcast on
// inputs[rootTensor], then a local fan-out copy to every other input
// on this rank.
type broadcastWork struct {
	noSynchronize
	ctx        *transport.Context
	tag        uint32
	rootRank   int
	inputs     []*tensor.Buffer
	rootTensor int
	stage      *deviceStaging
}

func (w *broadcastWork) run() error {
	root := w.inputs[w.rootTensor]
	source := root.Data
	if w.stage != nil {
		w.stage.blockUntilStaged()
		if err := transport.Broadcast(w.ctx, w.tag, w.rootRank, w.stage.pinned.Bytes); err != nil {
			return err
		}
		// stageToDevice only enqueues the pinned->device copy-back for
		// root; fan out from the pinned bytes rather than root.Data so
		// the other inputs don't race that still-in-flight copy.
		source = w.stage.pinned.Bytes
		w.stage.stageToDevice()
	} else {
		if err := transport.Broadcast(w.ctx, w.tag, w.rootRank, root.Data); err != nil {
			return err
		}
	}
	for i, in := range w.inputs {
		if i == w.rootTensor {
			continue
		}
		copy(in.Data, source)
	}
	return nil
}

func (w *broadcastWork) synchronize() {
	if w.stage != nil {
		w.stage.fenceCallerStream()
	}
}

// Broadcast sends inputs[rootTensor] from rootRank to every rank, then
// locally fans it out to every other input on this rank.
func (g *Group) Broadcast(inputs []*tensor.Buffer, rootRank, rootTensor int) (Handle, error) {
	if err := validateRank("broadcast", rootRank, g.size); err != nil {
		return nil, err
	}
	if rootTensor < 0 || rootTensor >= len(inputs) {
		return nil, xerrors.Argument("broadcast", "rootTensor %d out of range [0,%d)", rootTensor, len(inputs))
	}
	if err := validateDenseAll("broadcast", inputs); err != nil {
		return nil, err
	}
	if err := validateSameTypeShape("broadcast", inputs); err != nil {
		return nil, err
	}

	tag := g.nextTag()
	w := &broadcastWork{ctx: g.ctxSet.primary(), tag: tag, rootRank: rootRank, inputs: inputs, rootTensor: rootTensor}
	if isDevice(inputs) {
		w.stage = newDeviceStaging(g.devsim, inputs[rootTensor])
		if g.rank == rootRank {
			w.stage.stageToHost()
		}
	}
	return g.submit("broadcast", tag, w), nil
}

// allreduceWork implements allreduce: a single transport
// allreduce with outputs = inputs (in-place).
type allreduceWork struct {
	noSynchronize
	ctx      *transport.Context
	tag      uint32
	data     *tensor.Buffer
	reduceFn tensor.ReduceFn
	stage    *deviceStaging
}

func (w *allreduceWork) run() error {
	if w.stage != nil {
		w.stage.blockUntilStaged()
		if err := transport.AllReduce(w.ctx, w.tag, w.stage.pinned.Bytes, w.reduceFn); err != nil {
			return err
		}
		w.stage.stageToDevice()
		return nil
	}
	return transport.AllReduce(w.ctx, w.tag, w.data.Data, w.reduceFn)
}

func (w *allreduceWork) synchronize() {
	if w.stage != nil {
		w.stage.fenceCallerStream()
	}
}

// AllReduce combines every input in inputs across all ranks with op,
// leaving the combined result in place. This package dispatches
// one transport allreduce per input buffer, matching the "outputs =
// inputs" in-place contract for each element of the list.
func (g *Group) AllReduce(inputs []*tensor.Buffer, op tensor.ReduceOp) (Handle, error) {
	if err := validateDenseAll("allreduce", inputs); err != nil {
		return nil, err
	}
	if err := validateSameTypeShape("allreduce", inputs); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, xerrors.Argument("allreduce", "empty input list")
	}
	reduceFn, ok := tensor.LookupReduceFn(inputs[0].Type, op)
	if !ok {
		return nil, xerrors.Fatalf("allreduce", "invalid reduce op %s for type %s", op, inputs[0].Type)
	}

	tag := g.nextTag()
	works := make([]asyncWork, len(inputs))
	device := isDevice(inputs)
	for i, in := range inputs {
		w := &allreduceWork{ctx: g.ctxSet.primary(), tag: tag, data: in, reduceFn: reduceFn}
		if device {
			w.stage = newDeviceStaging(g.devsim, in)
			w.stage.stageToHost()
		}
		works[i] = w
	}
	return g.submit("allreduce", tag, &multiWork{works: works}), nil
}

// reduceWork implements reduce: a transport reduce on inputs[0]
// only, restricted to host buffers.
type reduceWork struct {
	noSynchronize
	ctx      *transport.Context
	tag      uint32
	rootRank int
	data     *tensor.Buffer
	reduceFn tensor.ReduceFn
}

func (w *reduceWork) run() error {
	return transport.Reduce(w.ctx, w.tag, w.rootRank, w.data.Data, w.reduceFn)
}

// Reduce combines a single input across all ranks with op, leaving the
// result on rootRank only. Host buffers only.
func (g *Group) Reduce(inputs []*tensor.Buffer, rootRank, rootTensor int, op tensor.ReduceOp) (Handle, error) {
	if len(inputs) != 1 {
		return nil, xerrors.Argument("reduce", "reduce takes exactly one input, got %d", len(inputs))
	}
	if err := validateRank("reduce", rootRank, g.size); err != nil {
		return nil, err
	}
	if err := validateDenseAll("reduce", inputs); err != nil {
		return nil, err
	}
	if err := validateHostOnly("reduce", inputs); err != nil {
		return nil, err
	}
	reduceFn, ok := tensor.LookupReduceFn(inputs[0].Type, op)
	if !ok {
		return nil, xerrors.Fatalf("reduce", "invalid reduce op %s for type %s", op, inputs[0].Type)
	}
	_ = rootTensor

	tag := g.nextTag()
	w := &reduceWork{ctx: g.ctxSet.primary(), tag: tag, rootRank: rootRank, data: inputs[0], reduceFn: reduceFn}
	return g.submit("reduce", tag, w), nil
}

// allgatherWork implements allgather: call transport allgather into a
// flat [size, *shape] buffer, then copy it into the caller's output.
type allgatherWork struct {
	noSynchronize
	ctx     *transport.Context
	tag     uint32
	input   *tensor.Buffer
	outputs []*tensor.Buffer
	size    int
}

func (w *allgatherWork) run() error {
	flatOut := tensor.NewLikeFlat(w.input, w.size)
	if err := transport.AllGather(w.ctx, w.tag, w.input.Data, flatOut.Data); err != nil {
		return err
	}
	for _, out := range w.outputs {
		if err := out.CopyFrom(flatOut, false); err != nil {
			return err
		}
	}
	return nil
}

// AllGather concatenates every rank's input into every rank's outputs,
// Host buffers only; outputs must be sized [size, *shape(inputs[0])].
func (g *Group) AllGather(outputs, inputs []*tensor.Buffer) (Handle, error) {
	if len(outputs) != len(inputs) {
		return nil, xerrors.Argument("allgather", "outputs/inputs length mismatch: %d vs %d", len(outputs), len(inputs))
	}
	if len(inputs) == 0 {
		return nil, xerrors.Argument("allgather", "empty input list")
	}
	if err := validateDenseAll("allgather", inputs); err != nil {
		return nil, err
	}
	if err := validateHostOnly("allgather", inputs); err != nil {
		return nil, err
	}
	if err := validateSameTypeShape("allgather", inputs); err != nil {
		return nil, err
	}
	for i, out := range outputs {
		want := tensor.NewLikeFlat(inputs[i], g.size)
		if !out.SameShape(want) {
			return nil, xerrors.Argument("allgather", "outputs[%d] must be shaped [%d, ...]", i, g.size)
		}
	}

	tag := g.nextTag()
	works := make([]asyncWork, len(inputs))
	for i := range inputs {
		works[i] = &allgatherWork{ctx: g.ctxSet.primary(), tag: tag, input: inputs[i], outputs: []*tensor.Buffer{outputs[i]}, size: g.size}
	}
	return g.submit("allgather", tag, &multiWork{works: works}), nil
}

// gatherWork implements gather: collect every rank's single input
// into a root-only output.
type gatherWork struct {
	noSynchronize
	ctx      *transport.Context
	tag      uint32
	rootRank int
	input    *tensor.Buffer
	output   *tensor.Buffer // nil on non-root
	size     int
}

func (w *gatherWork) run() error {
	var flatOut *tensor.Buffer
	if w.output != nil {
		flatOut = tensor.NewLikeFlat(w.input, w.size)
	}
	var flatBytes []byte
	if flatOut != nil {
		flatBytes = flatOut.Data
	}
	if err := transport.Gather(w.ctx, w.tag, w.rootRank, w.input.Data, flatBytes); err != nil {
		return err
	}
	if w.output == nil {
		return nil
	}
	return w.output.CopyFrom(flatOut, false)
}

// Gather collects every rank's single input into rootRank's single
// output.
func (g *Group) Gather(outputs, inputs []*tensor.Buffer, rootRank int) (Handle, error) {
	if len(inputs) != 1 {
		return nil, xerrors.Argument("gather", "gather takes exactly one input, got %d", len(inputs))
	}
	if err := validateRank("gather", rootRank, g.size); err != nil {
		return nil, err
	}
	if err := validateDenseAll("gather", inputs); err != nil {
		return nil, err
	}
	if err := validateHostOnly("gather", inputs); err != nil {
		return nil, err
	}

	var out *tensor.Buffer
	if g.rank == rootRank {
		if len(outputs) != 1 {
			return nil, xerrors.Argument("gather", "root must provide exactly one output list entry, got %d", len(outputs))
		}
		want := tensor.NewLikeFlat(inputs[0], g.size)
		if !outputs[0].SameShape(want) {
			return nil, xerrors.Argument("gather", "output must be shaped [%d, ...]", g.size)
		}
		out = outputs[0]
	} else if len(outputs) != 0 {
		return nil, xerrors.Argument("gather", "non-root must provide no outputs, got %d", len(outputs))
	}

	tag := g.nextTag()
	w := &gatherWork{ctx: g.ctxSet.primary(), tag: tag, rootRank: rootRank, input: inputs[0], output: out, size: g.size}
	return g.submit("gather", tag, w), nil
}

// scatterWork implements scatter: distribute a root-only input
// list into every rank's single output.
type scatterWork struct {
	noSynchronize
	ctx      *transport.Context
	tag      uint32
	rootRank int
	input    *tensor.Buffer // nil on non-root
	output   *tensor.Buffer
	size     int
}

func (w *scatterWork) run() error {
	var flatIn *tensor.Buffer
	var err error
	if w.input != nil {
		chunks := make([]*tensor.Buffer, w.size)
		for i := range chunks {
			chunks[i] = w.input
		}
		flatIn, err = tensor.Flatten(chunks)
		if err != nil {
			return err
		}
	}
	var flatBytes []byte
	if flatIn != nil {
		flatBytes = flatIn.Data
	}
	return transport.Scatter(w.ctx, w.tag, w.rootRank, flatBytes, w.output.Data)
}

// Scatter distributes rootRank's single input list into every rank's
// single output.
func (g *Group) Scatter(outputs, inputs []*tensor.Buffer, rootRank int) (Handle, error) {
	if len(outputs) != 1 {
		return nil, xerrors.Argument("scatter", "scatter takes exactly one output, got %d", len(outputs))
	}
	if err := validateRank("scatter", rootRank, g.size); err != nil {
		return nil, err
	}
	if err := validateDenseAll("scatter", outputs); err != nil {
		return nil, err
	}
	if err := validateHostOnly("scatter", outputs); err != nil {
		return nil, err
	}

	var in *tensor.Buffer
	if g.rank == rootRank {
		if len(inputs) != 1 {
			return nil, xerrors.Argument("scatter", "root must provide exactly one input list entry, got %d", len(inputs))
		}
		in = inputs[0]
	} else if len(inputs) != 0 {
		return nil, xerrors.Argument("scatter", "non-root must provide no inputs, got %d", len(inputs))
	}

	tag := g.nextTag()
	w := &scatterWork{ctx: g.ctxSet.primary(), tag: tag, rootRank: rootRank, input: in, output: outputs[0], size: g.size}
	return g.submit("scatter", tag, w), nil
}

// barrierWork implements barrier: wait on a snapshot of every
// item in flight at submission time, then invoke a transport barrier.
type barrierWork struct {
	noSynchronize
	ctx     *transport.Context
	tag     uint32
	waitFor []*workItem
}

func (w *barrierWork) run() error {
	for _, prior := range w.waitFor {
		prior.Wait()
	}
	return transport.Barrier(w.ctx, w.tag)
}

// Barrier fences every rank against every collective already submitted
// on this rank at call time.
func (g *Group) Barrier() (Handle, error) {
	tag := g.nextTag()
	waitFor := g.queue.snapshotInFlight()
	w := &barrierWork{ctx: g.ctxSet.primary(), tag: tag, waitFor: waitFor}
	return g.submit("barrier", tag, w), nil
}

// sendWork implements send: an unbound buffer send over the
// tensor's data, surfacing any transport failure on Wait.
type sendWork struct {
	noSynchronize
	buf     *transport.UnboundBuffer
	dstRank int
	tag     uint32
}

func (w *sendWork) run() error {
	if err := w.buf.Send(w.dstRank, w.tag); err != nil {
		return err
	}
	return w.buf.WaitSend()
}

// Send transmits tensor to dstRank tagged tag.
func (g *Group) Send(t *tensor.Buffer, dstRank int, tag int64) (Handle, error) {
	if err := validateDenseContiguous("send", t); err != nil {
		return nil, err
	}
	if err := validateRank("send", dstRank, g.size); err != nil {
		return nil, err
	}
	if tag < 0 {
		return nil, xerrors.Argument("send", "tag must be >= 0, got %d", tag)
	}
	ub := g.ctxSet.primary().NewUnboundBuffer(t.Data)
	w := &sendWork{buf: ub, dstRank: dstRank, tag: uint32(tag)}
	return g.submit("send", uint32(tag), w), nil
}

// recvWork implements recv and recvAnysource: an unbound buffer
// receive, capturing the completed source rank for RecvHandle.
type recvWork struct {
	noSynchronize
	buf      *transport.UnboundBuffer
	srcRanks []int
	tag      uint32

	resolvedRank int
	resolved     bool
}

func (w *recvWork) run() error {
	if err := w.buf.Recv(w.srcRanks, w.tag); err != nil {
		return err
	}
	src, err := w.buf.WaitRecv()
	if err != nil {
		return err
	}
	w.resolvedRank = src
	w.resolved = true
	return nil
}

// sourceRank implements sourceRanked, surfacing the rank resolved
// during run() so execute can record it on the workItem before
// signaling completion.
func (w *recvWork) sourceRank() (int, bool) {
	return w.resolvedRank, w.resolved
}

// Recv receives into tensor from srcRank tagged tag.
func (g *Group) Recv(t *tensor.Buffer, srcRank int, tag int64) (RecvHandle, error) {
	if err := validateDenseContiguous("recv", t); err != nil {
		return nil, err
	}
	if err := validateRank("recv", srcRank, g.size); err != nil {
		return nil, err
	}
	if tag < 0 {
		return nil, xerrors.Argument("recv", "tag must be >= 0, got %d", tag)
	}
	return g.recv(t, []int{srcRank}, tag)
}

// RecvAnysource receives into tensor from any rank tagged tag, per
// builds the full rank list [0,size) and calls recv.
func (g *Group) RecvAnysource(t *tensor.Buffer, tag int64) (RecvHandle, error) {
	if err := validateDenseContiguous("recvAnysource", t); err != nil {
		return nil, err
	}
	if tag < 0 {
		return nil, xerrors.Argument("recvAnysource", "tag must be >= 0, got %d", tag)
	}
	ranks := make([]int, g.size)
	for i := range ranks {
		ranks[i] = i
	}
	return g.recv(t, ranks, tag)
}

func (g *Group) recv(t *tensor.Buffer, srcRanks []int, tag int64) (RecvHandle, error) {
	ub := g.ctxSet.primary().NewUnboundBuffer(t.Data)
	w := &recvWork{buf: ub, srcRanks: srcRanks, tag: uint32(tag)}
	return g.submit("recv", uint32(tag), w), nil
}

// multiWork runs a fixed list of independent asyncWork values
// sequentially on one worker, stopping at the first failure, so a
// multi-buffer collective (one transport call per input) still
// produces a single Handle.
type multiWork struct {
	noSynchronize
	works []asyncWork
}

func (m *multiWork) run() error {
	for _, w := range m.works {
		if err := w.run(); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiWork) synchronize() {
	for _, w := range m.works {
		w.synchronize()
	}
}
