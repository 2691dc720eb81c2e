package transport

// UnboundBuffer is a point-to-point staging region bound to caller
// memory, used for direct send/recv. Send and Recv both initiate
// asynchronously and return immediately; WaitSend/WaitRecv block for
// completion, mirroring the send(rank,tag)/waitSend() split this
// module's AsyncWork.Wait builds on.
type UnboundBuffer struct {
	ctx  *Context
	data []byte

	sendDone chan struct{}
	sendErr  error

	recvDone chan struct{}
	recvErr  error
	recvSrc  int
}

// NewUnboundBuffer wraps data (not copied) for point-to-point
// transfer over ctx.
func (c *Context) NewUnboundBuffer(data []byte) *UnboundBuffer {
	return &UnboundBuffer{ctx: c, data: data}
}

// Send initiates an asynchronous send of the buffer's bytes to
// dstRank tagged with tag.
func (b *UnboundBuffer) Send(dstRank int, tag uint32) error {
	b.sendDone = make(chan struct{})
	go func() {
		defer close(b.sendDone)
		b.sendErr = b.ctx.writeFrame(dstRank, tag, b.data)
	}()
	return nil
}

// WaitSend blocks until the send initiated by Send completes,
// returning any captured transport failure. Calling WaitSend without
// a preceding Send is a programmer error.
func (b *UnboundBuffer) WaitSend() error {
	<-b.sendDone
	return b.sendErr
}

// Recv initiates an asynchronous receive, accepting a message tagged
// tag from any rank in srcRanks (nil meaning any source).
func (b *UnboundBuffer) Recv(srcRanks []int, tag uint32) error {
	b.recvDone = make(chan struct{})
	timeout := b.ctx.Timeout
	go func() {
		defer close(b.recvDone)
		srcRank, payload, err := b.ctx.readFrame(srcRanks, tag, timeout)
		if err != nil {
			b.recvErr = err
			return
		}
		if len(payload) != len(b.data) {
			b.recvErr = errShapeMismatch(len(b.data), len(payload))
			return
		}
		copy(b.data, payload)
		b.recvSrc = srcRank
	}()
	return nil
}

// WaitRecv blocks until the receive initiated by Recv completes,
// exposing the sender's rank alongside any captured failure.
func (b *UnboundBuffer) WaitRecv() (srcRank int, err error) {
	<-b.recvDone
	return b.recvSrc, b.recvErr
}
