package tensor

import (
	"encoding/binary"
	"math"
)

// ReduceOp enumerates the reduction operators collectives may apply.
// UNUSED exists only so callers constructing options without a
// reducer (e.g. broadcast) have an explicit zero value that the
// reduce function table rejects rather than silently defaulting.
type ReduceOp int

const (
	UNUSED ReduceOp = iota
	SUM
	PRODUCT
	MIN
	MAX
)

func (op ReduceOp) String() string {
	switch op {
	case SUM:
		return "SUM"
	case PRODUCT:
		return "PRODUCT"
	case MIN:
		return "MIN"
	case MAX:
		return "MAX"
	default:
		return "UNUSED"
	}
}

// ReduceFn combines src into dst element-wise, both dense byte slices
// of the same scalar type and length.
type ReduceFn func(dst, src []byte)

// reduceFnTable is the compile-time (here: init-time) dispatch from
// (ScalarType, ReduceOp) to a typed reducer, built once. f16 has no
// entry: only f32/f64/i8/u8/i32/i64 arithmetic is required, and f16
// arithmetic without a real half-float type would be lossy enough to
// misrepresent what this reference transport does.
var reduceFnTable = map[ScalarType]map[ReduceOp]ReduceFn{
	F32: {SUM: reduceF32(func(a, b float32) float32 { return a + b }),
		PRODUCT: reduceF32(func(a, b float32) float32 { return a * b }),
		MIN:     reduceF32(minF32), MAX: reduceF32(maxF32)},
	F64: {SUM: reduceF64(func(a, b float64) float64 { return a + b }),
		PRODUCT: reduceF64(func(a, b float64) float64 { return a * b }),
		MIN:     reduceF64(minF64), MAX: reduceF64(maxF64)},
	I32: {SUM: reduceI32(func(a, b int32) int32 { return a + b }),
		PRODUCT: reduceI32(func(a, b int32) int32 { return a * b }),
		MIN:     reduceI32(minI32), MAX: reduceI32(maxI32)},
	I64: {SUM: reduceI64(func(a, b int64) int64 { return a + b }),
		PRODUCT: reduceI64(func(a, b int64) int64 { return a * b }),
		MIN:     reduceI64(minI64), MAX: reduceI64(maxI64)},
	I8: {SUM: reduceI8(func(a, b int8) int8 { return a + b }),
		PRODUCT: reduceI8(func(a, b int8) int8 { return a * b }),
		MIN:     reduceI8(minI8), MAX: reduceI8(maxI8)},
	U8: {SUM: reduceU8(func(a, b uint8) uint8 { return a + b }),
		PRODUCT: reduceU8(func(a, b uint8) uint8 { return a * b }),
		MIN:     reduceU8(minU8), MAX: reduceU8(maxU8)},
}

// LookupReduceFn resolves the typed reducer for (t, op). It returns
// (nil, false) for UNUSED or an unrecognized (type, op) pair; callers
// treat that as the group core's Fatal "invalid reduce op" condition.
func LookupReduceFn(t ScalarType, op ReduceOp) (ReduceFn, bool) {
	if op == UNUSED {
		return nil, false
	}
	byOp, ok := reduceFnTable[t]
	if !ok {
		return nil, false
	}
	fn, ok := byOp[op]
	return fn, ok
}

func reduceF32(f func(a, b float32) float32) ReduceFn {
	return func(dst, src []byte) {
		for i := 0; i+4 <= len(dst); i += 4 {
			a := math.Float32frombits(binary.LittleEndian.Uint32(dst[i:]))
			b := math.Float32frombits(binary.LittleEndian.Uint32(src[i:]))
			binary.LittleEndian.PutUint32(dst[i:], math.Float32bits(f(a, b)))
		}
	}
}

func reduceF64(f func(a, b float64) float64) ReduceFn {
	return func(dst, src []byte) {
		for i := 0; i+8 <= len(dst); i += 8 {
			a := math.Float64frombits(binary.LittleEndian.Uint64(dst[i:]))
			b := math.Float64frombits(binary.LittleEndian.Uint64(src[i:]))
			binary.LittleEndian.PutUint64(dst[i:], math.Float64bits(f(a, b)))
		}
	}
}

func reduceI32(f func(a, b int32) int32) ReduceFn {
	return func(dst, src []byte) {
		for i := 0; i+4 <= len(dst); i += 4 {
			a := int32(binary.LittleEndian.Uint32(dst[i:]))
			b := int32(binary.LittleEndian.Uint32(src[i:]))
			binary.LittleEndian.PutUint32(dst[i:], uint32(f(a, b)))
		}
	}
}

func reduceI64(f func(a, b int64) int64) ReduceFn {
	return func(dst, src []byte) {
		for i := 0; i+8 <= len(dst); i += 8 {
			a := int64(binary.LittleEndian.Uint64(dst[i:]))
			b := int64(binary.LittleEndian.Uint64(src[i:]))
			binary.LittleEndian.PutUint64(dst[i:], uint64(f(a, b)))
		}
	}
}

func reduceI8(f func(a, b int8) int8) ReduceFn {
	return func(dst, src []byte) {
		for i := 0; i < len(dst); i++ {
			dst[i] = byte(f(int8(dst[i]), int8(src[i])))
		}
	}
}

func reduceU8(f func(a, b uint8) uint8) ReduceFn {
	return func(dst, src []byte) {
		for i := 0; i < len(dst); i++ {
			dst[i] = f(dst[i], src[i])
		}
	}
}

func minF32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
func maxF32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
func minF64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
func maxF64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
func minI32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
func minI8(a, b int8) int8 {
	if a < b {
		return a
	}
	return b
}
func maxI8(a, b int8) int8 {
	if a > b {
		return a
	}
	return b
}
func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}
func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}
