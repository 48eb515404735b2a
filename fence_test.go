package gpucmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitWithFence(t *testing.T, d *Device) *Fence {
	t.Helper()
	f, err := newCommandBuffer(t, d).SubmitAndAcquireFence()
	require.NoError(t, err)
	return f
}

func TestFence_QueryAndWait(t *testing.T) {
	d, sd := newTestDevice(t)

	sd.Pause()
	f := submitWithFence(t, d)
	assert.Equal(t, 1, d.OutstandingFences())

	done, err := d.QueryFence(f)
	require.NoError(t, err)
	assert.False(t, done)

	sd.Resume()
	require.NoError(t, d.WaitForFences(testContext(t), true, f))
	done, err = d.QueryFence(f)
	require.NoError(t, err)
	assert.True(t, done)

	// Waiting on a signaled fence returns at once.
	require.NoError(t, d.WaitForFences(testContext(t), true, f))

	require.NoError(t, d.ReleaseFence(f))
	assert.Equal(t, 0, d.OutstandingFences())
	assert.ErrorIs(t, d.ReleaseFence(f), ErrFenceReleased)
	_, err = d.QueryFence(f)
	assert.ErrorIs(t, err, ErrFenceReleased)
	assert.ErrorIs(t, d.WaitForFences(testContext(t), true, f), ErrFenceReleased)
}

func TestWaitForFences_AnyOrAll(t *testing.T) {
	d, sd := newTestDevice(t)

	first := submitWithFence(t, d)
	require.NoError(t, d.WaitForFences(testContext(t), true, first))
	sd.Pause()
	second := submitWithFence(t, d)
	assert.Greater(t, second.Epoch(), first.Epoch())

	require.NoError(t, d.WaitForFences(testContext(t), false, second, first), "first has signaled")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.WaitForFences(ctx, true, first, second), context.DeadlineExceeded)

	sd.Resume()
	require.NoError(t, d.WaitForFences(testContext(t), true, first, second))
	require.NoError(t, d.ReleaseFence(first))
	require.NoError(t, d.ReleaseFence(second))
}

func TestWaitForFences_Cancelled(t *testing.T) {
	d, sd := newTestDevice(t)

	sd.Pause()
	f := submitWithFence(t, d)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.WaitForFences(ctx, true, f), context.Canceled)
	assert.False(t, d.Lost())

	sd.Resume()
	require.NoError(t, d.ReleaseFence(f), "a fence can be released before it signals")
}

func TestFence_InvalidHandles(t *testing.T) {
	d, _ := newTestDevice(t)
	other, _ := newTestDevice(t)
	foreign := submitWithFence(t, other)

	require.NoError(t, d.WaitForFences(testContext(t), true), "no fences")
	_, err := d.QueryFence(nil)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = d.QueryFence(foreign)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, d.ReleaseFence(foreign), ErrInvalidHandle)
	assert.ErrorIs(t, d.WaitForFences(testContext(t), false, foreign), ErrInvalidHandle)

	require.NoError(t, other.ReleaseFence(foreign))
}

func TestFence_DeviceLost(t *testing.T) {
	d, sd := newTestDevice(t)
	f := submitWithFence(t, d)
	require.NoError(t, d.WaitForFences(testContext(t), true, f))

	sd.Lose()
	_ = newCommandBuffer(t, d).Submit()
	require.True(t, d.Lost())
	_, err := d.QueryFence(f)
	assert.ErrorIs(t, err, ErrDeviceLost)
	assert.ErrorIs(t, d.WaitForFences(testContext(t), true, f), ErrDeviceLost)
	assert.NoError(t, d.ReleaseFence(f))
}
