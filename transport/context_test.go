package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tao-jia/collgroup/rendezvous"
)

func connectAll(t *testing.T, size int) []*Context {
	t.Helper()
	store := rendezvous.NewMemoryStore()
	ctxs := make([]*Context, size)
	errs := make([]error, size)
	done := make(chan struct{})
	for r := 0; r < size; r++ {
		r := r
		go func() {
			ctxs[r], errs[r] = Connect(context.Background(), store, Device{ListenHost: "127.0.0.1"}, r, size, 5*time.Second)
			done <- struct{}{}
		}()
	}
	for i := 0; i < size; i++ {
		<-done
	}
	for _, err := range errs {
		require.NoError(t, err)
	}
	return ctxs
}

func closeAll(ctxs []*Context) {
	for _, c := range ctxs {
		c.Close()
	}
}

func TestConnectFullmesh(t *testing.T) {
	ctxs := connectAll(t, 4)
	defer closeAll(ctxs)

	for _, c := range ctxs {
		assert.Equal(t, 4, c.Size)
		assert.Len(t, c.conns, 3)
	}
}

func TestWriteReadFrame(t *testing.T) {
	ctxs := connectAll(t, 2)
	defer closeAll(ctxs)

	done := make(chan error, 1)
	go func() {
		done <- ctxs[0].writeFrame(1, 7, []byte("hello"))
	}()
	src, payload, err := ctxs[1].readFrame([]int{0}, 7, time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, 0, src)
	assert.Equal(t, "hello", string(payload))
}

func TestReadFrameTimesOut(t *testing.T) {
	ctxs := connectAll(t, 2)
	defer closeAll(ctxs)

	_, _, err := ctxs[1].readFrame([]int{0}, 99, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestUnboundBufferSendRecv(t *testing.T) {
	ctxs := connectAll(t, 2)
	defer closeAll(ctxs)

	recvBuf := make([]byte, 4)
	rb := ctxs[1].NewUnboundBuffer(recvBuf)
	require.NoError(t, rb.Recv([]int{0}, 3))

	sb := ctxs[0].NewUnboundBuffer([]byte("abcd"))
	require.NoError(t, sb.Send(1, 3))
	require.NoError(t, sb.WaitSend())

	src, err := rb.WaitRecv()
	require.NoError(t, err)
	assert.Equal(t, 0, src)
	assert.Equal(t, "abcd", string(recvBuf))
}
