package group

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWork struct {
	err      error
	synced   int
	runCount int
}

func (f *fakeWork) run() error {
	f.runCount++
	return f.err
}

func (f *fakeWork) synchronize() {
	f.synced++
}

func testGroup(name string) *Group {
	return &Group{name: name}
}

func TestWorkItemWaitReturnsError(t *testing.T) {
	fw := &fakeWork{err: errors.New("boom")}
	w := newWorkItem(testGroup("g"), "test", 1, fw)
	execute(w)

	err := w.Wait()
	assert.EqualError(t, err, "boom")
	assert.True(t, w.IsCompleted())
	// idempotent
	assert.EqualError(t, w.Wait(), "boom")
}

func TestWorkItemSynchronizeIsIdempotent(t *testing.T) {
	fw := &fakeWork{}
	w := newWorkItem(testGroup("g"), "test", 1, fw)
	execute(w)
	require.NoError(t, w.Wait())

	w.Synchronize()
	w.Synchronize()
	assert.Equal(t, 1, fw.synced)
}

func TestWorkItemSourceRankUnsupportedByDefault(t *testing.T) {
	fw := &fakeWork{}
	w := newWorkItem(testGroup("g"), "test", 1, fw)
	execute(w)
	require.NoError(t, w.Wait())

	_, err := w.SourceRank()
	assert.Error(t, err)
}

func TestWorkItemSourceRankAfterSet(t *testing.T) {
	fw := &fakeWork{}
	w := newWorkItem(testGroup("g"), "recv", 1, fw)
	execute(w)
	require.NoError(t, w.Wait())

	w.setSourceRank(3)
	rank, err := w.SourceRank()
	require.NoError(t, err)
	assert.Equal(t, 3, rank)
}

func TestSafeRunCapturesPanic(t *testing.T) {
	err := safeRun(panicWork{})
	assert.Error(t, err)
}

type panicWork struct{ noSynchronize }

func (panicWork) run() error {
	panic("kaboom")
}
