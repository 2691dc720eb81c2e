// Package tensor is a minimal implementation of the "array buffer"
// and "numeric runtime interface" described by the group core's
// external-interfaces section: a dense, typed, N-dimensional buffer
// with the handful of operations collectives need (scalar type,
// shape, contiguity, copy, flatten). It deliberately does not attempt
// to be a general tensor library — the production numeric runtime
// (allocator, device guards, stream pool) that interface stands in
// for is out of this module's scope.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ScalarType enumerates the scalar element types collectives may
// operate on.
type ScalarType int

const (
	F32 ScalarType = iota
	F64
	F16
	I8
	U8
	I32
	I64
)

func (t ScalarType) String() string {
	switch t {
	case F32:
		return "f32"
	case F64:
		return "f64"
	case F16:
		return "f16"
	case I8:
		return "i8"
	case U8:
		return "u8"
	case I32:
		return "i32"
	case I64:
		return "i64"
	default:
		return "unknown"
	}
}

// ElemSize returns the byte width of one scalar of this type. f16 is
// stored as 2 raw bytes; no arithmetic is performed on it directly by
// this package (reduce ops over f16 are unsupported, per the reduce
// function table).
func (t ScalarType) ElemSize() int {
	switch t {
	case F32, I32, U8:
		switch t {
		case U8:
			return 1
		default:
			return 4
		}
	case F64, I64:
		return 8
	case F16:
		return 2
	case I8:
		return 1
	default:
		return 0
	}
}

// Device discriminates where a Buffer's bytes live.
type Device struct {
	// Accelerator is false for host memory. When true, Index selects
	// the accelerator device.
	Accelerator bool
	Index       int
}

// Host is the zero-value host placement.
var Host = Device{}

// Accel builds an accelerator placement for the given device index.
func Accel(index int) Device { return Device{Accelerator: true, Index: index} }

func (d Device) String() string {
	if !d.Accelerator {
		return "host"
	}
	return fmt.Sprintf("accel:%d", d.Index)
}

// Buffer is a dense N-dimensional array with a single scalar type.
// Buffer values produced by this package are always dense and
// contiguous; Dense and Contig exist as explicit fields so validation
// can reject foreign buffers that aren't.
type Buffer struct {
	Type     ScalarType
	Sizes    []int64
	Device   Device
	Data     []byte
	Dense    bool
	Contig   bool
}

// New allocates a zeroed, dense, contiguous host (or accelerator,
// sizing only) buffer with the given shape and scalar type.
func New(t ScalarType, device Device, sizes ...int64) *Buffer {
	n := numel(sizes)
	return &Buffer{
		Type:   t,
		Sizes:  append([]int64{}, sizes...),
		Device: device,
		Data:   make([]byte, n*int64(t.ElemSize())),
		Dense:  true,
		Contig: true,
	}
}

// NewFromFloat32 is a test/demo convenience: builds a dense 1-D f32
// host buffer from literal values.
func NewFromFloat32(vals ...float32) *Buffer {
	b := New(F32, Host, int64(len(vals)))
	for i, v := range vals {
		b.SetFloat32(i, v)
	}
	return b
}

func numel(sizes []int64) int64 {
	var n int64 = 1
	for _, s := range sizes {
		n *= s
	}
	if len(sizes) == 0 {
		return 0
	}
	return n
}

// Numel returns the element count implied by Sizes.
func (b *Buffer) Numel() int64 { return numel(b.Sizes) }

// ByteSize returns len(Data).
func (b *Buffer) ByteSize() int64 { return int64(len(b.Data)) }

// SameShape reports whether two buffers share scalar type and sizes.
func (b *Buffer) SameShape(o *Buffer) bool {
	if b.Type != o.Type || len(b.Sizes) != len(o.Sizes) {
		return false
	}
	for i := range b.Sizes {
		if b.Sizes[i] != o.Sizes[i] {
			return false
		}
	}
	return true
}

// CopyFrom copies o's bytes into b. nonblocking is accepted for
// interface parity with a device-aware copy_from; the host-only
// implementation here always copies synchronously.
func (b *Buffer) CopyFrom(o *Buffer, nonblocking bool) error {
	_ = nonblocking
	if b.Type != o.Type {
		return errors.Errorf("tensor: copy_from type mismatch: dst=%s src=%s", b.Type, o.Type)
	}
	if len(b.Data) != len(o.Data) {
		return errors.Errorf("tensor: copy_from size mismatch: dst=%dB src=%dB", len(b.Data), len(o.Data))
	}
	copy(b.Data, o.Data)
	return nil
}

// SetFloat32/GetFloat32 give tests and demos a typed view onto an f32
// buffer's raw little-endian bytes.
func (b *Buffer) SetFloat32(i int, v float32) {
	binary.LittleEndian.PutUint32(b.Data[i*4:], math.Float32bits(v))
}

func (b *Buffer) GetFloat32(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b.Data[i*4:]))
}

func (b *Buffer) SetInt64(i int, v int64) {
	binary.LittleEndian.PutUint64(b.Data[i*8:], uint64(v))
}

func (b *Buffer) GetInt64(i int) int64 {
	return int64(binary.LittleEndian.Uint64(b.Data[i*8:]))
}

// Flatten concatenates a list of dense, same-typed buffers with
// identical shape into one new contiguous buffer whose leading
// dimension is len(bufs), per the external numeric-runtime interface
// ("a flattener that concatenates dense same-typed tensors").
func Flatten(bufs []*Buffer) (*Buffer, error) {
	if len(bufs) == 0 {
		return nil, errors.New("tensor: flatten of empty list")
	}
	first := bufs[0]
	total := 0
	for _, b := range bufs {
		if !b.Dense || !b.Contig {
			return nil, errors.New("tensor: flatten requires dense contiguous buffers")
		}
		if !b.SameShape(first) {
			return nil, errors.New("tensor: flatten requires identical type/shape")
		}
		total += len(b.Data)
	}
	out := &Buffer{Type: first.Type, Device: first.Device, Dense: true, Contig: true}
	out.Sizes = append([]int64{int64(len(bufs))}, first.Sizes...)
	out.Data = make([]byte, 0, total)
	for _, b := range bufs {
		out.Data = append(out.Data, b.Data...)
	}
	return out, nil
}

// NewLikeFlat builds a contiguous buffer shaped [n, *sizes] matching
// the scalar type/device of `like`, the "newLikeFlat" helper the
// numeric runtime interface names for allgather/gather output
// allocation.
func NewLikeFlat(like *Buffer, n int) *Buffer {
	return New(like.Type, like.Device, append([]int64{int64(n)}, like.Sizes...)...)
}

// Unflatten slices a buffer produced by Flatten/NewLikeFlat back into
// `n` buffers, each shaped like `like`, copying bytes out so the
// pieces outlive the flat buffer.
func Unflatten(flat *Buffer, like *Buffer, n int) ([]*Buffer, error) {
	stride := len(like.Data)
	if stride == 0 {
		return nil, errors.New("tensor: unflatten of zero-size element")
	}
	if len(flat.Data) != stride*n {
		return nil, errors.Errorf("tensor: unflatten size mismatch: flat=%dB want=%dB", len(flat.Data), stride*n)
	}
	out := make([]*Buffer, n)
	for i := 0; i < n; i++ {
		piece := &Buffer{Type: like.Type, Sizes: append([]int64{}, like.Sizes...), Device: like.Device, Dense: true, Contig: true}
		piece.Data = append([]byte{}, flat.Data[i*stride:(i+1)*stride]...)
		out[i] = piece
	}
	return out, nil
}
