package group

import (
	"github.com/tao-jia/collgroup/group/tensor"
	"github.com/tao-jia/collgroup/internal/xerrors"
)

// validateDenseContiguous rejects sparse or non-contiguous buffers.
func validateDenseContiguous(op string, t *tensor.Buffer) error {
	if !t.Dense {
		return xerrors.Argument(op, "buffer is not dense")
	}
	if !t.Contig {
		return xerrors.Argument(op, "buffer is not contiguous")
	}
	return nil
}

// validateSameTypeShape checks that every buffer in a collective
// shares one scalar type and shape and resides on a single device
// kind: all buffers in one collective share a single scalar type and
// shape, and all reside on the same device kind.
func validateSameTypeShape(op string, bufs []*tensor.Buffer) error {
	if len(bufs) == 0 {
		return xerrors.Argument(op, "empty buffer list")
	}
	first := bufs[0]
	for _, b := range bufs[1:] {
		if !b.SameShape(first) {
			return xerrors.Argument(op, "type/shape mismatch across buffers")
		}
		if b.Device.Accelerator != first.Device.Accelerator {
			return xerrors.Argument(op, "mixed device kinds in one collective are unsupported")
		}
	}
	return nil
}

func validateDenseAll(op string, bufs []*tensor.Buffer) error {
	for _, b := range bufs {
		if err := validateDenseContiguous(op, b); err != nil {
			return err
		}
	}
	return nil
}

func validateRank(op string, rank, size int) error {
	if rank < 0 || rank >= size {
		return xerrors.Argument(op, "rank %d out of range [0,%d)", rank, size)
	}
	return nil
}

func validateHostOnly(op string, bufs []*tensor.Buffer) error {
	for _, b := range bufs {
		if b.Device.Accelerator {
			return xerrors.Argument(op, "%s is host-only", op)
		}
	}
	return nil
}
