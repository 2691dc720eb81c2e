package transport

import (
	"github.com/tao-jia/collgroup/internal/xerrors"
	"github.com/tao-jia/collgroup/group/tensor"
)

func errShapeMismatch(want, got int) error {
	return xerrors.Transportf("recv", "buffer size mismatch: want %dB got %dB", want, got)
}

// Broadcast sends data (owned by rootRank) to every other rank in the
// context: transport broadcast on inputs[rootTensor]. The
// root rank's own copy of data is left untouched; callers are
// responsible for the local fan-out copy across that rank's own input
// list as a separate local-copy step.
func Broadcast(c *Context, tag uint32, rootRank int, data []byte) error {
	if c.Rank == rootRank {
		for peer := 0; peer < c.Size; peer++ {
			if peer == rootRank {
				continue
			}
			if err := c.writeFrame(peer, tag, data); err != nil {
				return err
			}
		}
		return nil
	}
	_, payload, err := c.readFrame([]int{rootRank}, tag, c.Timeout)
	if err != nil {
		return err
	}
	if len(payload) != len(data) {
		return errShapeMismatch(len(data), len(payload))
	}
	copy(data, payload)
	return nil
}

// AllReduce combines data across every rank with reduceFn and leaves
// the combined result in data on every rank, via a single
// transport allreduce with outputs = inputs (in-place)". The
// reference algorithm here centralizes the reduction at rank 0 (every
// rank sends to 0, 0 reduces and broadcasts back) rather than a
// production ring/tree schedule, consistent with this module's scope
// as a reference transport rather than a performance-optimized one.
func AllReduce(c *Context, tag uint32, data []byte, reduceFn tensor.ReduceFn) error {
	if err := Reduce(c, tag, 0, data, reduceFn); err != nil {
		return err
	}
	return Broadcast(c, tag, 0, data)
}

// Reduce combines data across every rank with reduceFn, leaving the
// result in data only on rootRank.
func Reduce(c *Context, tag uint32, rootRank int, data []byte, reduceFn tensor.ReduceFn) error {
	if c.Rank == rootRank {
		acc := append([]byte{}, data...)
		for peer := 0; peer < c.Size; peer++ {
			if peer == rootRank {
				continue
			}
			_, payload, err := c.readFrame([]int{peer}, tag, c.Timeout)
			if err != nil {
				return err
			}
			if len(payload) != len(acc) {
				return errShapeMismatch(len(acc), len(payload))
			}
			reduceFn(acc, payload)
		}
		copy(data, acc)
		return nil
	}
	return c.writeFrame(rootRank, tag, data)
}

// AllGather concatenates every rank's contribution into flatOut
// (sized size*len(data)), visible identically on every rank, per
// the flatten / call transport allgather / unflatten shape.
// The reference algorithm gathers at rank 0 and broadcasts the full
// flat buffer back out.
func AllGather(c *Context, tag uint32, data []byte, flatOut []byte) error {
	if err := Gather(c, tag, 0, data, flatOut); err != nil {
		return err
	}
	return Broadcast(c, tag, 0, flatOut)
}

// Gather collects every rank's data into flatOut (sized
// size*len(data)) on rootRank only.
func Gather(c *Context, tag uint32, rootRank int, data []byte, flatOut []byte) error {
	chunk := len(data)
	if c.Rank == rootRank {
		for peer := 0; peer < c.Size; peer++ {
			dst := flatOut[peer*chunk : (peer+1)*chunk]
			if peer == rootRank {
				copy(dst, data)
				continue
			}
			_, payload, err := c.readFrame([]int{peer}, tag, c.Timeout)
			if err != nil {
				return err
			}
			if len(payload) != chunk {
				return errShapeMismatch(chunk, len(payload))
			}
			copy(dst, payload)
		}
		return nil
	}
	return c.writeFrame(rootRank, tag, data)
}

// Scatter distributes flatIn (sized size*len(dataOut), valid only on
// rootRank) so each rank ends up with its chunk in dataOut.
func Scatter(c *Context, tag uint32, rootRank int, flatIn []byte, dataOut []byte) error {
	chunk := len(dataOut)
	if c.Rank == rootRank {
		for peer := 0; peer < c.Size; peer++ {
			src := flatIn[peer*chunk : (peer+1)*chunk]
			if peer == rootRank {
				copy(dataOut, src)
				continue
			}
			if err := c.writeFrame(peer, tag, src); err != nil {
				return err
			}
		}
		return nil
	}
	_, payload, err := c.readFrame([]int{rootRank}, tag, c.Timeout)
	if err != nil {
		return err
	}
	if len(payload) != chunk {
		return errShapeMismatch(chunk, len(payload))
	}
	copy(dataOut, payload)
	return nil
}

// Barrier fences every rank: all ranks report arrival to rank 0, rank
// 0 waits for everyone then releases them, matching the description of
// a transport barrier invoked after the caller has already fenced
// prior in-flight work locally.
func Barrier(c *Context, tag uint32) error {
	const rootRank = 0
	if c.Rank == rootRank {
		for peer := 0; peer < c.Size; peer++ {
			if peer == rootRank {
				continue
			}
			if _, _, err := c.readFrame([]int{peer}, tag, c.Timeout); err != nil {
				return err
			}
		}
		for peer := 0; peer < c.Size; peer++ {
			if peer == rootRank {
				continue
			}
			if err := c.writeFrame(peer, tag, nil); err != nil {
				return err
			}
		}
		return nil
	}
	if err := c.writeFrame(rootRank, tag, nil); err != nil {
		return err
	}
	_, _, err := c.readFrame([]int{rootRank}, tag, c.Timeout)
	return err
}
