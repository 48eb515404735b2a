package gpucmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"golang.org/x/sync/semaphore"

	"github.com/gogpu/gpucmd/driver"
)

// swapchain is the presentation state of one claimed window. Guarded by
// Device.mu.
type swapchain struct {
	window  gpucontext.WindowProvider
	surface driver.Surface

	composition   SwapchainComposition
	presentMode   PresentMode
	width, height uint32
	dirty         bool

	// sem holds one unit per frame slot: acquired by an unsubmitted command
	// buffer or presented by a submission that has not completed.
	sem *semaphore.Weighted
	// inflight lists the epochs of submitted presents, oldest first.
	inflight []uint64
	// excess counts held slots beyond the limit after it was lowered.
	excess int

	// acquired is the command buffer holding the current texture.
	acquired *CommandBuffer
}

func newSwapchain(window gpucontext.WindowProvider, surface driver.Surface, frames int) *swapchain {
	return &swapchain{
		window:      window,
		surface:     surface,
		composition: CompositionSDR,
		presentMode: PresentModeVSync,
		dirty:       true,
		sem:         semaphore.NewWeighted(int64(frames)),
	}
}

// held returns the number of occupied frame slots.
func (sc *swapchain) held() int {
	n := len(sc.inflight)
	if sc.acquired != nil {
		n++
	}
	return n
}

// resetLimiter replaces the limiter with one of n slots, carrying over the
// slots currently held.
func (sc *swapchain) resetLimiter(n int) {
	held := sc.held()
	sc.sem = semaphore.NewWeighted(int64(n))
	take := min(held, n)
	sc.sem.TryAcquire(int64(take))
	sc.excess = held - take
}

// releaseSlot frees one frame slot.
func (sc *swapchain) releaseSlot() {
	if sc.excess > 0 {
		sc.excess--
		return
	}
	sc.sem.Release(1)
}

// reapLocked frees the slots of presents that completed.
func (sc *swapchain) reapLocked(completed uint64) {
	for len(sc.inflight) > 0 && sc.inflight[0] <= completed {
		sc.inflight = sc.inflight[1:]
		sc.releaseSlot()
	}
}

// lastEpoch returns the epoch of the newest present, or 0.
func (sc *swapchain) lastEpoch() uint64 {
	if len(sc.inflight) == 0 {
		return 0
	}
	return sc.inflight[len(sc.inflight)-1]
}

func (sc *swapchain) configure(width, height uint32) error {
	err := sc.surface.Configure(driver.SurfaceConfig{
		Width:       width,
		Height:      height,
		Composition: sc.composition,
		PresentMode: sc.presentMode,
	})
	if err != nil {
		return err
	}
	sc.width, sc.height = width, height
	sc.dirty = false
	return nil
}

// acquire returns the next surface texture, reconfiguring on resize and
// once more when the surface reports itself outdated.
func (sc *swapchain) acquire(width, height uint32) (driver.Texture, error) {
	if sc.dirty || width != sc.width || height != sc.height {
		if err := sc.configure(width, height); err != nil {
			return nil, err
		}
	}
	tex, err := sc.surface.Acquire()
	if errors.Is(err, driver.ErrSurfaceOutdated) {
		if err := sc.configure(width, height); err != nil {
			return nil, err
		}
		tex, err = sc.surface.Acquire()
	}
	return tex, err
}

// =============================================================================
// Windows
// =============================================================================

// ClaimWindow creates a swapchain for window with SDR composition and VSync
// presentation.
func (d *Device) ClaimWindow(window gpucontext.WindowProvider) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.liveLocked(); err != nil {
		return fmt.Errorf("claim window: %w", err)
	}
	if _, ok := d.state.windows[window]; ok {
		return fmt.Errorf("claim window: %w", ErrWindowAlreadyClaimed)
	}
	surface, err := d.drv.CreateSurface(window)
	if err != nil {
		return d.driverErr("claim window", err)
	}
	d.state.windows[window] = newSwapchain(window, surface, d.state.framesInFlight)

	w, h := driver.PixelSize(window)
	d.log.Info("gpucmd: window claimed", "width", w, "height", h, "frames", d.state.framesInFlight)
	return nil
}

// ReleaseWindow destroys the swapchain of window once its presented frames
// complete. A window whose texture is held by a recording command buffer
// cannot be released.
func (d *Device) ReleaseWindow(window gpucontext.WindowProvider) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	sc, ok := d.state.windows[window]
	if !ok {
		return fmt.Errorf("release window: %w", ErrWindowNotClaimed)
	}
	if sc.acquired != nil {
		return fmt.Errorf("release window: %w", ErrSwapchainAcquired)
	}
	delete(d.state.windows, window)
	d.retireLocked(retiredSurface{surface: sc.surface, epoch: sc.lastEpoch()})
	d.reapLocked()
	return nil
}

// WindowSupportsSwapchainComposition reports whether window supports c.
// Unclaimed windows support nothing.
func (d *Device) WindowSupportsSwapchainComposition(window gpucontext.WindowProvider, c SwapchainComposition) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.state.windows[window]
	return ok && sc.surface.SupportsComposition(c)
}

// WindowSupportsPresentMode reports whether window supports m.
func (d *Device) WindowSupportsPresentMode(window gpucontext.WindowProvider, m PresentMode) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.state.windows[window]
	return ok && sc.surface.SupportsPresentMode(m)
}

// SetSwapchainParameters changes the composition and present mode of
// window. They take effect at the next acquisition.
func (d *Device) SetSwapchainParameters(window gpucontext.WindowProvider, c SwapchainComposition, m PresentMode) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.liveLocked(); err != nil {
		return fmt.Errorf("set swapchain parameters: %w", err)
	}
	sc, ok := d.state.windows[window]
	if !ok {
		return fmt.Errorf("set swapchain parameters: %w", ErrWindowNotClaimed)
	}
	if !sc.surface.SupportsComposition(c) || !sc.surface.SupportsPresentMode(m) {
		return fmt.Errorf("set swapchain parameters: %w: %v, %v", ErrUnsupportedSwapchainParameters, c, m)
	}
	if sc.acquired != nil {
		return fmt.Errorf("set swapchain parameters: %w", ErrSwapchainAcquired)
	}
	sc.composition, sc.presentMode = c, m
	sc.dirty = true
	return nil
}

// SwapchainTextureFormat returns the format of textures acquired for
// window.
func (d *Device) SwapchainTextureFormat(window gpucontext.WindowProvider) (gputypes.TextureFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.state.windows[window]
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("swapchain texture format: %w", ErrWindowNotClaimed)
	}
	return sc.surface.CompositionFormat(sc.composition), nil
}

// =============================================================================
// Acquisition
// =============================================================================

// AcquireSwapchainTexture acquires the next texture of window for this
// command buffer without blocking. A null result with a nil error means no
// frame is available: the window is minimized or every frame slot is in
// use. A window has one live texture at a time: while any command buffer
// holds it, ErrSwapchainBusy is returned. The texture is presented when the
// command buffer is submitted.
func (cb *CommandBuffer) AcquireSwapchainTexture(window gpucontext.WindowProvider) (SwapchainTexture, error) {
	var out SwapchainTexture
	err := cb.do("acquire swapchain texture", func() error {
		sc, err := cb.swapchainLocked(window)
		if err != nil {
			return err
		}
		if sc.acquired != nil {
			return ErrSwapchainBusy
		}
		cb.d.reapLocked()
		w, h := driver.PixelSize(window)
		if w == 0 || h == 0 || !sc.sem.TryAcquire(1) {
			return nil
		}
		out, err = cb.takeFrameLocked(sc, w, h)
		return err
	})
	return out, err
}

// WaitAndAcquireSwapchainTexture acquires like AcquireSwapchainTexture but
// waits for the oldest in-flight frame when every slot is in use. It
// returns ErrFramesHeldByRecording when waiting on the GPU cannot free a
// slot, and a null texture for minimized windows.
func (cb *CommandBuffer) WaitAndAcquireSwapchainTexture(ctx context.Context, window gpucontext.WindowProvider) (SwapchainTexture, error) {
	for {
		var out SwapchainTexture
		var wait uint64
		err := cb.do("wait and acquire swapchain texture", func() error {
			sc, err := cb.swapchainLocked(window)
			if err != nil {
				return err
			}
			if sc.acquired != nil {
				return ErrFramesHeldByRecording
			}
			cb.d.reapLocked()
			w, h := driver.PixelSize(window)
			if w == 0 || h == 0 {
				return nil
			}
			if !sc.sem.TryAcquire(1) {
				if len(sc.inflight) == 0 {
					return ErrFramesHeldByRecording
				}
				wait = sc.inflight[0]
				return nil
			}
			out, err = cb.takeFrameLocked(sc, w, h)
			return err
		})
		if err != nil || wait == 0 {
			return out, err
		}
		if err := cb.d.waitEpoch(ctx, "wait and acquire swapchain texture", wait); err != nil {
			return SwapchainTexture{}, err
		}
	}
}

func (cb *CommandBuffer) swapchainLocked(window gpucontext.WindowProvider) (*swapchain, error) {
	sc, ok := cb.d.state.windows[window]
	if !ok {
		return nil, ErrWindowNotClaimed
	}
	return sc, nil
}

// takeFrameLocked acquires a surface texture into a slot already taken from
// sc.sem and hands it to cb.
func (cb *CommandBuffer) takeFrameLocked(sc *swapchain, w, h uint32) (SwapchainTexture, error) {
	d := cb.d
	tex, err := sc.acquire(w, h)
	if err != nil {
		sc.releaseSlot()
		return SwapchainTexture{}, d.driverErr("surface", err)
	}

	t := &texture{
		info: TextureCreateInfo{
			Type:              TextureType2D,
			Format:            sc.surface.Format(),
			Usage:             TextureUsageColorTarget,
			Width:             w,
			Height:            h,
			LayerCountOrDepth: 1,
			NumLevels:         1,
			SampleCount:       1,
			Name:              "swapchain",
		},
		ring:      newRing(&allocation[driver.Texture]{res: tex, external: true}),
		swapchain: sc,
		owner:     cb,
	}
	id := d.textures.Insert(t)
	sc.acquired = cb
	cb.frames = append(cb.frames, frame{sc: sc, id: id, tex: tex})
	return SwapchainTexture{Texture: Texture{id}, Width: w, Height: h}, nil
}

// WaitForSwapchain blocks until window has a free frame slot. It does not
// acquire the slot.
func (d *Device) WaitForSwapchain(ctx context.Context, window gpucontext.WindowProvider) (err error) {
	defer d.record(&err)

	for {
		d.mu.Lock()
		if err := d.liveLocked(); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("wait for swapchain: %w", err)
		}
		sc, ok := d.state.windows[window]
		if !ok {
			d.mu.Unlock()
			return fmt.Errorf("wait for swapchain: %w", ErrWindowNotClaimed)
		}
		d.reapLocked()
		if sc.sem.TryAcquire(1) {
			sc.sem.Release(1)
			d.mu.Unlock()
			return nil
		}
		if len(sc.inflight) == 0 {
			d.mu.Unlock()
			return fmt.Errorf("wait for swapchain: %w", ErrFramesHeldByRecording)
		}
		wait := sc.inflight[0]
		d.mu.Unlock()

		if err := d.waitEpoch(ctx, "wait for swapchain", wait); err != nil {
			return err
		}
	}
}

// waitEpoch blocks until epoch completes. Context errors are returned as
// is; driver errors may mark the device lost.
func (d *Device) waitEpoch(ctx context.Context, op string, epoch uint64) error {
	if err := d.drv.Wait(ctx, epoch); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return d.driverErr(op, err)
	}
	return nil
}
