package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreshStartAwaitsUser(t *testing.T) {
	tm := New()
	assert.Equal(t, Uninitialized, tm.State())
	assert.Equal(t, AwaitingUserStart, tm.Start(180*time.Second, true, nil))
	assert.False(t, tm.Tick(), "ticks are ignored before Begin")
	assert.EqualValues(t, 180000, tm.Remaining())

	require.True(t, tm.Begin())
	assert.False(t, tm.Begin())
	assert.Equal(t, Running, tm.State())
}

func TestSixtyTicksAndReset(t *testing.T) {
	tm := New()
	tm.Start(180*time.Second, true, nil)
	tm.Begin()
	for i := 0; i < 60; i++ {
		require.False(t, tm.Tick())
	}
	assert.EqualValues(t, 120000, tm.Remaining())
	assert.Equal(t, 60, tm.Progress())

	require.True(t, tm.Reset())
	assert.EqualValues(t, 180000, tm.Remaining())
	assert.Equal(t, 0, tm.Progress())
	assert.Equal(t, Running, tm.State())
}

func TestResumeSkipsPrompt(t *testing.T) {
	tm := New()
	ms := int64(42500)
	assert.Equal(t, Running, tm.Start(180*time.Second, true, &ms))
	assert.EqualValues(t, 42500, tm.Remaining())

	big := int64(999999)
	tm.Start(180*time.Second, true, &big)
	assert.EqualValues(t, 180000, tm.Remaining(), "clamped to the timeout")

	zero := int64(0)
	assert.Equal(t, AwaitingUserStart, tm.Start(180*time.Second, true, &zero))
}

func TestExpiry(t *testing.T) {
	tm := New()
	ms := int64(1500)
	tm.Start(10*time.Second, true, &ms)
	assert.False(t, tm.Tick())
	assert.EqualValues(t, 500, tm.Remaining())
	assert.True(t, tm.Tick())
	assert.Equal(t, Expired, tm.State())
	assert.EqualValues(t, 0, tm.Remaining())
	assert.False(t, tm.Tick(), "expiry fires once")
	assert.False(t, tm.Reset())
	assert.False(t, tm.Persistable())

	tm.Rewind()
	assert.Equal(t, AwaitingUserStart, tm.State())
	assert.EqualValues(t, 10000, tm.Remaining())
	tm.Rewind()
	assert.Equal(t, AwaitingUserStart, tm.State())
}

func TestPauseResume(t *testing.T) {
	tm := New()
	tm.Start(5*time.Second, true, nil)
	tm.Begin()
	tm.Tick()
	require.True(t, tm.Pause())
	assert.True(t, tm.Persistable())
	assert.False(t, tm.Tick())
	assert.EqualValues(t, 4000, tm.Remaining())
	require.True(t, tm.Resume())
	tm.Tick()
	assert.EqualValues(t, 3000, tm.Remaining())
}

func TestCancelAndDisabled(t *testing.T) {
	tm := New()
	tm.Start(5*time.Second, true, nil)
	tm.Begin()
	tm.Cancel()
	assert.Equal(t, Cancelled, tm.State())
	assert.False(t, tm.Tick())
	assert.False(t, tm.Reset())
	tm.Rewind()
	assert.Equal(t, Cancelled, tm.State())
	assert.EqualValues(t, 5000, tm.Remaining())

	off := New()
	assert.Equal(t, Disabled, off.Start(300*time.Second, false, nil))
	assert.False(t, off.Begin())
	off.Cancel()
	assert.Equal(t, Disabled, off.State())
	assert.Equal(t, "disabled", off.State().String())
}
