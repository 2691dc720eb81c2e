package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromFloat32RoundTrip(t *testing.T) {
	b := NewFromFloat32(1, 2, 3)
	assert.Equal(t, int64(3), b.Numel())
	assert.Equal(t, float32(1), b.GetFloat32(0))
	assert.Equal(t, float32(2), b.GetFloat32(1))
	assert.Equal(t, float32(3), b.GetFloat32(2))
}

func TestSetGetInt64(t *testing.T) {
	b := New(I64, Host, 2)
	b.SetInt64(0, 42)
	b.SetInt64(1, -7)
	assert.Equal(t, int64(42), b.GetInt64(0))
	assert.Equal(t, int64(-7), b.GetInt64(1))
}

func TestSameShape(t *testing.T) {
	a := New(F32, Host, 2, 3)
	b := New(F32, Host, 2, 3)
	c := New(F32, Host, 3, 2)
	d := New(F64, Host, 2, 3)
	assert.True(t, a.SameShape(b))
	assert.False(t, a.SameShape(c))
	assert.False(t, a.SameShape(d))
}

func TestCopyFromMismatch(t *testing.T) {
	a := New(F32, Host, 2)
	b := New(F32, Host, 3)
	err := a.CopyFrom(b, false)
	assert.Error(t, err)

	c := New(I32, Host, 2)
	err = a.CopyFrom(c, false)
	assert.Error(t, err)
}

func TestFlattenAndUnflatten(t *testing.T) {
	bufs := []*Buffer{
		NewFromFloat32(1, 2),
		NewFromFloat32(3, 4),
		NewFromFloat32(5, 6),
	}
	flat, err := Flatten(bufs)
	require.NoError(t, err)
	assert.Equal(t, int64(6), flat.Numel())

	pieces, err := Unflatten(flat, bufs[0], 3)
	require.NoError(t, err)
	require.Len(t, pieces, 3)
	assert.Equal(t, float32(1), pieces[0].GetFloat32(0))
	assert.Equal(t, float32(4), pieces[1].GetFloat32(1))
	assert.Equal(t, float32(5), pieces[2].GetFloat32(0))
}

func TestFlattenRejectsMismatchedShape(t *testing.T) {
	bufs := []*Buffer{
		NewFromFloat32(1, 2),
		NewFromFloat32(3, 4, 5),
	}
	_, err := Flatten(bufs)
	assert.Error(t, err)
}

func TestNewLikeFlat(t *testing.T) {
	like := NewFromFloat32(1, 2)
	flat := NewLikeFlat(like, 4)
	assert.Equal(t, []int64{4, 2}, flat.Sizes)
	assert.Equal(t, int64(8), flat.Numel())
}
