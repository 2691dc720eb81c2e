package group

import (
	"github.com/tao-jia/collgroup/group/devsim"
	"github.com/tao-jia/collgroup/group/tensor"
)

// deviceStaging drives one buffer through the pinned-host round trip a
// device-resident collective needs: copy off the accelerator onto a
// pinned staging buffer, run the wire algorithm against that host
// memory, then copy the result back and hand the caller an event they
// can fence their own stream against. Construction serializes the
// staging stream with whatever was already queued on the device's
// default stream, so the copy-out never races the kernel that produced
// buf's contents.
type deviceStaging struct {
	device *devsim.Device
	stream *devsim.Stream
	pinned *devsim.Pinned
	event  *devsim.Event
	buf    *tensor.Buffer
}

func newDeviceStaging(reg *devsim.Registry, buf *tensor.Buffer) *deviceStaging {
	dev := reg.Get(buf.Device.Index)
	stream := dev.NewStream(1)

	fence := devsim.NewEvent()
	fence.Record(dev.DefaultStream())
	fence.Block(stream)

	return &deviceStaging{
		device: dev,
		stream: stream,
		pinned: devsim.AllocPinned(len(buf.Data)),
		buf:    buf,
	}
}

// stageToHost enqueues the device-to-pinned copy. Non-blocking; the
// caller synchronizes with blockUntilStaged once it actually needs the
// bytes.
func (s *deviceStaging) stageToHost() {
	s.stream.Enqueue(func() {
		copy(s.pinned.Bytes, s.buf.Data)
	})
}

// blockUntilStaged waits for the copy-out to land in pinned memory,
// run from the worker goroutine before it touches s.pinned.Bytes.
func (s *deviceStaging) blockUntilStaged() {
	s.stream.Synchronize()
}

// stageToDevice enqueues the pinned-to-device copy-back and records
// the completion event fenceCallerStream blocks on.
func (s *deviceStaging) stageToDevice() {
	s.stream.Enqueue(func() {
		copy(s.buf.Data, s.pinned.Bytes)
	})
	s.event = devsim.NewEvent()
	s.event.Record(s.stream)
}

// fenceCallerStream makes the device's default stream wait for the
// copy-back to finish, the step a Handle.Synchronize call triggers so
// the caller's own kernels never read stale data out of buf.
func (s *deviceStaging) fenceCallerStream() {
	if s.event != nil {
		s.event.Block(s.device.DefaultStream())
	}
}
