package gpucmd

import (
	"context"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpucmd/driver"
	"github.com/gogpu/gpucmd/driver/soft"
)

func newWindow(t *testing.T, d *Device) *gpucontext.NullWindowProvider {
	t.Helper()
	w := &gpucontext.NullWindowProvider{W: 64, H: 48}
	require.NoError(t, d.ClaimWindow(w))
	return w
}

func softSurface(t *testing.T, d *Device, w gpucontext.WindowProvider) *soft.Surface {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.state.windows[w]
	require.True(t, ok)
	s, ok := sc.surface.(*soft.Surface)
	require.True(t, ok)
	return s
}

// present acquires a frame of w, clears it and submits. It reports whether
// a frame was available.
func present(t *testing.T, d *Device, w gpucontext.WindowProvider, c gputypes.Color) bool {
	t.Helper()
	cb := newCommandBuffer(t, d)
	st, err := cb.AcquireSwapchainTexture(w)
	require.NoError(t, err)
	if st.IsNull() {
		require.NoError(t, cb.Cancel())
		return false
	}
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: st.Texture, LoadOp: LoadOpClear, ClearColor: c}}, nil)
	require.NoError(t, err)
	require.NoError(t, rp.End())
	require.NoError(t, cb.Submit())
	return true
}

func TestClaimWindow(t *testing.T) {
	d, _ := newTestDevice(t)
	w := newWindow(t, d)

	assert.ErrorIs(t, d.ClaimWindow(w), ErrWindowAlreadyClaimed)
	format, err := d.SwapchainTextureFormat(w)
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, format)

	require.NoError(t, d.ReleaseWindow(w))
	assert.ErrorIs(t, d.ReleaseWindow(w), ErrWindowNotClaimed)
	_, err = d.SwapchainTextureFormat(w)
	assert.ErrorIs(t, err, ErrWindowNotClaimed)

	cb := newCommandBuffer(t, d)
	_, err = cb.AcquireSwapchainTexture(w)
	assert.ErrorIs(t, err, ErrWindowNotClaimed)
	require.NoError(t, cb.Cancel())

	require.NoError(t, d.ClaimWindow(w), "a released window can be claimed again")
}

func TestSwapchain_AcquireAndPresent(t *testing.T) {
	d, _ := newTestDevice(t)
	w := &gpucontext.NullWindowProvider{W: 64, H: 48, SF: 2}
	require.NoError(t, d.ClaimWindow(w))

	cb := newCommandBuffer(t, d)
	st, err := cb.AcquireSwapchainTexture(w)
	require.NoError(t, err)
	require.False(t, st.IsNull())
	assert.Equal(t, uint32(128), st.Width)
	assert.Equal(t, uint32(96), st.Height)

	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{
		Texture: st.Texture, LoadOp: LoadOpClear, ClearColor: gputypes.Color{R: 1, A: 1},
	}}, nil)
	require.NoError(t, err)
	require.NoError(t, rp.End())
	submitAndWait(t, d, cb)

	s := softSurface(t, d, w)
	assert.Equal(t, uint64(1), s.Presented())
	// BGRA8 order.
	assert.Equal(t, []byte{0, 0, 255, 255}, s.LastPresented().Slice(0, 0)[:4])

	// The handle dies with the submission.
	cb = newCommandBuffer(t, d)
	_, err = cb.BeginRenderPass([]ColorTargetInfo{{Texture: st.Texture, LoadOp: LoadOpClear}}, nil)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	require.NoError(t, cb.Cancel())
}

func TestSwapchain_FramesInFlightLimit(t *testing.T) {
	d, sd := newTestDevice(t, WithFramesInFlight(2))
	w := newWindow(t, d)

	sd.Pause()
	assert.True(t, present(t, d, w, gputypes.Color{}))
	assert.True(t, present(t, d, w, gputypes.Color{}))
	assert.False(t, present(t, d, w, gputypes.Color{}), "both slots are in flight")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.WaitForSwapchain(ctx, w), context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		sd.Resume()
	}()
	cb := newCommandBuffer(t, d)
	st, err := cb.WaitAndAcquireSwapchainTexture(testContext(t), w)
	require.NoError(t, err)
	require.False(t, st.IsNull())
	submitAndWait(t, d, cb)

	require.NoError(t, d.WaitForSwapchain(testContext(t), w))
	assert.Equal(t, uint64(3), softSurface(t, d, w).Presented())
}

func TestSwapchain_HeldByRecording(t *testing.T) {
	d, _ := newTestDevice(t)
	w := newWindow(t, d)

	holder := newCommandBuffer(t, d)
	st, err := holder.AcquireSwapchainTexture(w)
	require.NoError(t, err)
	require.False(t, st.IsNull())

	_, err = holder.AcquireSwapchainTexture(w)
	assert.ErrorIs(t, err, ErrSwapchainBusy)

	other := newCommandBuffer(t, d)
	_, err = other.AcquireSwapchainTexture(w)
	assert.ErrorIs(t, err, ErrSwapchainBusy)
	_, err = other.WaitAndAcquireSwapchainTexture(testContext(t), w)
	assert.ErrorIs(t, err, ErrFramesHeldByRecording)
	require.NoError(t, other.Cancel())

	// Another command buffer cannot use the texture.
	other = newCommandBuffer(t, d)
	_, err = other.BeginRenderPass([]ColorTargetInfo{{Texture: st.Texture, LoadOp: LoadOpClear}}, nil)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	require.NoError(t, other.Cancel())

	assert.ErrorIs(t, holder.Cancel(), ErrSwapchainAcquired)
	assert.ErrorIs(t, d.ReleaseWindow(w), ErrSwapchainAcquired)
	assert.ErrorIs(t, d.SetSwapchainParameters(w, CompositionSDR, PresentModeImmediate), ErrSwapchainAcquired)

	// An acquired texture that is never drawn to is still presented.
	submitAndWait(t, d, holder)
	assert.Equal(t, uint64(1), softSurface(t, d, w).Presented())
	require.NoError(t, d.ReleaseWindow(w))
}

func TestSwapchain_MinimizedWindow(t *testing.T) {
	d, _ := newTestDevice(t)
	w := newWindow(t, d)
	w.W = 0

	cb := newCommandBuffer(t, d)
	st, err := cb.AcquireSwapchainTexture(w)
	require.NoError(t, err)
	assert.True(t, st.IsNull())
	st, err = cb.WaitAndAcquireSwapchainTexture(testContext(t), w)
	require.NoError(t, err)
	assert.True(t, st.IsNull())
	require.NoError(t, cb.Cancel(), "nothing was acquired")

	w.W = 64
	assert.True(t, present(t, d, w, gputypes.Color{}))
}

func TestSwapchain_Resize(t *testing.T) {
	d, _ := newTestDevice(t)
	w := newWindow(t, d)
	require.True(t, present(t, d, w, gputypes.Color{}))

	w.W, w.H = 32, 16
	cb := newCommandBuffer(t, d)
	st, err := cb.AcquireSwapchainTexture(w)
	require.NoError(t, err)
	assert.Equal(t, uint32(32), st.Width)
	assert.Equal(t, uint32(16), st.Height)
	submitAndWait(t, d, cb)

	assert.Len(t, softSurface(t, d, w).LastPresented().Slice(0, 0), 32*16*4)
}

func TestSwapchain_Parameters(t *testing.T) {
	d, _ := newTestDevice(t)
	w := newWindow(t, d)
	unclaimed := &gpucontext.NullWindowProvider{W: 8, H: 8}

	assert.True(t, d.WindowSupportsSwapchainComposition(w, CompositionSDRLinear))
	assert.False(t, d.WindowSupportsSwapchainComposition(w, CompositionHDR10ST2084))
	assert.False(t, d.WindowSupportsSwapchainComposition(unclaimed, CompositionSDR))
	assert.True(t, d.WindowSupportsPresentMode(w, PresentModeImmediate))
	assert.False(t, d.WindowSupportsPresentMode(w, PresentModeMailbox))
	assert.False(t, d.WindowSupportsPresentMode(unclaimed, PresentModeVSync))

	assert.ErrorIs(t, d.SetSwapchainParameters(w, CompositionHDR10ST2084, PresentModeVSync), ErrUnsupportedSwapchainParameters)
	assert.ErrorIs(t, d.SetSwapchainParameters(w, CompositionSDR, PresentModeMailbox), ErrUnsupportedSwapchainParameters)
	assert.ErrorIs(t, d.SetSwapchainParameters(unclaimed, CompositionSDR, PresentModeVSync), ErrWindowNotClaimed)

	require.NoError(t, d.SetSwapchainParameters(w, CompositionSDRLinear, PresentModeImmediate))
	format, err := d.SwapchainTextureFormat(w)
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatBGRA8UnormSrgb, format)

	require.True(t, present(t, d, w, gputypes.Color{}))
	require.NoError(t, d.WaitForIdle(testContext(t)))
	assert.Equal(t, gputypes.TextureFormatBGRA8UnormSrgb, softSurface(t, d, w).Format())
}

func TestSwapchain_OneLiveTexturePerWindow(t *testing.T) {
	d, _ := newTestDevice(t)
	require.NoError(t, d.SetAllowedFramesInFlight(testContext(t), 3))
	w := newWindow(t, d)

	first := newCommandBuffer(t, d)
	st, err := first.AcquireSwapchainTexture(w)
	require.NoError(t, err)
	require.False(t, st.IsNull())

	// Free frame slots do not allow a second live texture.
	second := newCommandBuffer(t, d)
	_, err = second.AcquireSwapchainTexture(w)
	assert.ErrorIs(t, err, ErrSwapchainBusy)

	submitAndWait(t, d, first)
	st, err = second.AcquireSwapchainTexture(w)
	require.NoError(t, err)
	assert.False(t, st.IsNull())
	submitAndWait(t, d, second)
}

// rgbaSurface is a surface that configures RGBA8Unorm for SDR.
type rgbaSurface struct {
	driver.Surface
}

func (rgbaSurface) CompositionFormat(c driver.SwapchainComposition) gputypes.TextureFormat {
	if c == driver.CompositionSDR {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return c.Format()
}

func TestSwapchainTextureFormat_FollowsSurface(t *testing.T) {
	d, _ := newTestDevice(t)
	w := newWindow(t, d)
	d.mu.Lock()
	sc := d.state.windows[w]
	sc.surface = rgbaSurface{sc.surface}
	d.mu.Unlock()

	format, err := d.SwapchainTextureFormat(w)
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatRGBA8Unorm, format)

	require.NoError(t, d.SetSwapchainParameters(w, CompositionSDRLinear, PresentModeVSync))
	format, err = d.SwapchainTextureFormat(w)
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatBGRA8UnormSrgb, format, "reported before the swapchain is reconfigured")
}

func TestSwapchain_LowerFramesInFlight(t *testing.T) {
	d, sd := newTestDevice(t)
	w := newWindow(t, d)

	require.NoError(t, d.SetAllowedFramesInFlight(testContext(t), 1))
	sd.Pause()
	assert.True(t, present(t, d, w, gputypes.Color{}))
	assert.False(t, present(t, d, w, gputypes.Color{}))
	sd.Resume()
	require.NoError(t, d.WaitForIdle(testContext(t)))
	assert.True(t, present(t, d, w, gputypes.Color{}))
}

func TestReleaseWindow_InFlight(t *testing.T) {
	d, sd := newTestDevice(t)
	w := newWindow(t, d)

	sd.Pause()
	require.True(t, present(t, d, w, gputypes.Color{}))
	require.NoError(t, d.ReleaseWindow(w), "release does not wait for the GPU")
	assert.NotEmpty(t, d.state.retire)

	sd.Resume()
	require.NoError(t, d.WaitForIdle(testContext(t)))
	assert.Empty(t, d.state.retire)
}
