package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tao-jia/collgroup/group/tensor"
)

func reduceFnSum(t *testing.T) tensor.ReduceFn {
	fn, ok := tensor.LookupReduceFn(tensor.F32, tensor.SUM)
	require.True(t, ok)
	return fn
}

func runOnAll(ctxs []*Context, fn func(c *Context) error) []error {
	errs := make([]error, len(ctxs))
	var wg sync.WaitGroup
	wg.Add(len(ctxs))
	for i, c := range ctxs {
		i, c := i, c
		go func() {
			defer wg.Done()
			errs[i] = fn(c)
		}()
	}
	wg.Wait()
	return errs
}

func requireAllNoError(t *testing.T, errs []error) {
	t.Helper()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestBroadcastAcrossRanks(t *testing.T) {
	ctxs := connectAll(t, 3)
	defer closeAll(ctxs)

	datas := make([][]byte, 3)
	for i := range datas {
		if i == 1 {
			datas[i] = []byte("payload!")
		} else {
			datas[i] = make([]byte, len("payload!"))
		}
	}

	errs := runOnAll(ctxs, func(c *Context) error {
		return Broadcast(c, 1, 1, datas[c.Rank])
	})
	requireAllNoError(t, errs)

	for _, d := range datas {
		assert.Equal(t, "payload!", string(d))
	}
}

func TestAllReduceSum(t *testing.T) {
	ctxs := connectAll(t, 4)
	defer closeAll(ctxs)
	fn := reduceFnSum(t)

	bufs := make([]*tensor.Buffer, 4)
	for r := 0; r < 4; r++ {
		bufs[r] = tensor.NewFromFloat32(float32(r))
	}

	errs := runOnAll(ctxs, func(c *Context) error {
		return AllReduce(c, 2, bufs[c.Rank].Data, fn)
	})
	requireAllNoError(t, errs)

	for _, b := range bufs {
		assert.Equal(t, float32(6), b.GetFloat32(0))
	}
}

func TestReduceOnRoot(t *testing.T) {
	ctxs := connectAll(t, 3)
	defer closeAll(ctxs)
	fn := reduceFnSum(t)

	bufs := make([]*tensor.Buffer, 3)
	for r := 0; r < 3; r++ {
		bufs[r] = tensor.NewFromFloat32(float32(r + 1))
	}

	errs := runOnAll(ctxs, func(c *Context) error {
		return Reduce(c, 5, 0, bufs[c.Rank].Data, fn)
	})
	requireAllNoError(t, errs)

	assert.Equal(t, float32(6), bufs[0].GetFloat32(0))
}

func TestAllGatherConcatenates(t *testing.T) {
	ctxs := connectAll(t, 3)
	defer closeAll(ctxs)

	chunks := make([][]byte, 3)
	flats := make([][]byte, 3)
	for r := 0; r < 3; r++ {
		chunks[r] = []byte{byte('a' + r)}
		flats[r] = make([]byte, 3)
	}

	errs := runOnAll(ctxs, func(c *Context) error {
		return AllGather(c, 6, chunks[c.Rank], flats[c.Rank])
	})
	requireAllNoError(t, errs)

	for _, f := range flats {
		assert.Equal(t, "abc", string(f))
	}
}

func TestGatherOnRoot(t *testing.T) {
	ctxs := connectAll(t, 3)
	defer closeAll(ctxs)

	chunks := make([][]byte, 3)
	for r := 0; r < 3; r++ {
		chunks[r] = []byte{byte('x' + r)}
	}
	flatOut := make([]byte, 3)

	errs := runOnAll(ctxs, func(c *Context) error {
		if c.Rank == 0 {
			return Gather(c, 8, 0, chunks[c.Rank], flatOut)
		}
		return Gather(c, 8, 0, chunks[c.Rank], nil)
	})
	requireAllNoError(t, errs)
	assert.Equal(t, "xyz", string(flatOut))
}

func TestScatterFromRoot(t *testing.T) {
	ctxs := connectAll(t, 3)
	defer closeAll(ctxs)

	flatIn := []byte("abc")
	outs := make([][]byte, 3)
	for i := range outs {
		outs[i] = make([]byte, 1)
	}

	errs := runOnAll(ctxs, func(c *Context) error {
		if c.Rank == 0 {
			return Scatter(c, 9, 0, flatIn, outs[c.Rank])
		}
		return Scatter(c, 9, 0, nil, outs[c.Rank])
	})
	requireAllNoError(t, errs)

	assert.Equal(t, "a", string(outs[0]))
	assert.Equal(t, "b", string(outs[1]))
	assert.Equal(t, "c", string(outs[2]))
}

func TestBarrierReleasesAllRanks(t *testing.T) {
	ctxs := connectAll(t, 4)
	defer closeAll(ctxs)

	errs := runOnAll(ctxs, func(c *Context) error {
		return Barrier(c, 11)
	})
	requireAllNoError(t, errs)
}
