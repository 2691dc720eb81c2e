package group

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tao-jia/collgroup/group/tensor"
)

func TestValidateDenseContiguousRejectsSparse(t *testing.T) {
	b := tensor.NewFromFloat32(1)
	b.Dense = false
	assert.Error(t, validateDenseContiguous("op", b))
}

func TestValidateDenseContiguousRejectsNonContig(t *testing.T) {
	b := tensor.NewFromFloat32(1)
	b.Contig = false
	assert.Error(t, validateDenseContiguous("op", b))
}

func TestValidateSameTypeShapeMismatch(t *testing.T) {
	a := tensor.New(tensor.F32, tensor.Host, 2)
	b := tensor.New(tensor.F32, tensor.Host, 3)
	assert.Error(t, validateSameTypeShape("op", []*tensor.Buffer{a, b}))
}

func TestValidateSameTypeShapeMixedDeviceKinds(t *testing.T) {
	a := tensor.New(tensor.F32, tensor.Host, 2)
	b := tensor.New(tensor.F32, tensor.Accel(0), 2)
	assert.Error(t, validateSameTypeShape("op", []*tensor.Buffer{a, b}))
}

func TestValidateSameTypeShapeEmpty(t *testing.T) {
	assert.Error(t, validateSameTypeShape("op", nil))
}

func TestValidateRankOutOfRange(t *testing.T) {
	assert.Error(t, validateRank("op", -1, 4))
	assert.Error(t, validateRank("op", 4, 4))
	assert.NoError(t, validateRank("op", 0, 4))
}

func TestValidateHostOnlyRejectsAccelerator(t *testing.T) {
	b := tensor.New(tensor.F32, tensor.Accel(0), 2)
	assert.Error(t, validateHostOnly("op", []*tensor.Buffer{b}))
}
