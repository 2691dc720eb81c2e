package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupReduceFnUnused(t *testing.T) {
	_, ok := LookupReduceFn(F32, UNUSED)
	assert.False(t, ok)
}

func TestLookupReduceFnUnsupportedType(t *testing.T) {
	_, ok := LookupReduceFn(F16, SUM)
	assert.False(t, ok)
}

func TestReduceFnSum(t *testing.T) {
	fn, ok := LookupReduceFn(F32, SUM)
	require.True(t, ok)

	dst := NewFromFloat32(1, 2, 3)
	src := NewFromFloat32(10, 20, 30)
	fn(dst.Data, src.Data)
	assert.Equal(t, float32(11), dst.GetFloat32(0))
	assert.Equal(t, float32(22), dst.GetFloat32(1))
	assert.Equal(t, float32(33), dst.GetFloat32(2))
}

func TestReduceFnMaxI64(t *testing.T) {
	fn, ok := LookupReduceFn(I64, MAX)
	require.True(t, ok)

	dst := New(I64, Host, 2)
	dst.SetInt64(0, 5)
	dst.SetInt64(1, -1)
	src := New(I64, Host, 2)
	src.SetInt64(0, 3)
	src.SetInt64(1, 9)

	fn(dst.Data, src.Data)
	assert.Equal(t, int64(5), dst.GetInt64(0))
	assert.Equal(t, int64(9), dst.GetInt64(1))
}
