package group

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tao-jia/collgroup/group/devsim"
	"github.com/tao-jia/collgroup/group/tensor"
)

func TestDeviceStagingRoundTrip(t *testing.T) {
	reg := devsim.NewRegistry()
	buf := tensor.New(tensor.F32, tensor.Accel(0), 1)
	buf.SetFloat32(0, 3.5)

	s := newDeviceStaging(reg, buf)
	s.stageToHost()
	s.blockUntilStaged()
	assert.Equal(t, buf.Data, s.pinned.Bytes)

	s.pinned.Bytes[0] = 0xFF // simulate the wire algorithm mutating staged bytes
	s.stageToDevice()
	s.fenceCallerStream()

	reg.Get(0).DefaultStream().Synchronize()
	assert.Equal(t, byte(0xFF), buf.Data[0])
}

func TestIsDeviceDetectsAcceleratorBuffers(t *testing.T) {
	host := tensor.New(tensor.F32, tensor.Host, 1)
	accel := tensor.New(tensor.F32, tensor.Accel(0), 1)

	assert.False(t, isDevice([]*tensor.Buffer{host}))
	assert.True(t, isDevice([]*tensor.Buffer{accel}))
	assert.False(t, isDevice(nil))
}
