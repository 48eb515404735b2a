package gpucmd

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
	"github.com/gogpu/gpucmd/internal/handle"
)

// cbState is the lifecycle state of a CommandBuffer.
type cbState uint8

const (
	cbRecording cbState = iota
	cbSubmitted
	cbCancelled
)

// String returns the state name.
func (s cbState) String() string {
	switch s {
	case cbRecording:
		return "Recording"
	case cbSubmitted:
		return "Submitted"
	case cbCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// frame is a swapchain texture acquired by a command buffer.
type frame struct {
	sc  *swapchain
	id  handle.ID[*texture]
	tex driver.Texture
}

// CommandBuffer records commands for one submission. It is Recording until
// Submit or Cancel, after which every call fails with
// ErrCommandBufferNotRecording.
//
// A CommandBuffer is not safe for concurrent use. Different command buffers
// may be recorded concurrently.
type CommandBuffer struct {
	d     *Device
	label string
	state cbState

	cmds []driver.Command
	used map[tracker]struct{}

	// pass is the open *RenderPass, *ComputePass or *CopyPass.
	pass any

	// debugDepth counts open debug groups; passDepth is the depth at which
	// the open pass began.
	debugDepth int
	passDepth  int

	frames []frame
}

// AcquireCommandBuffer returns a new command buffer in the Recording state.
func (d *Device) AcquireCommandBuffer() (_ *CommandBuffer, err error) {
	defer d.record(&err)

	if err := d.checkLive("acquire command buffer"); err != nil {
		return nil, err
	}
	n := d.cbSeq.Add(1)
	return &CommandBuffer{
		d:     d,
		label: fmt.Sprintf("cmd-%d", n),
		used:  make(map[tracker]struct{}),
	}, nil
}

// Label returns the debug label of the command buffer.
func (cb *CommandBuffer) Label() string { return cb.label }

// do runs fn under the device lock once cb is known to be recording.
// Failures are wrapped with op and recorded for LastError.
func (cb *CommandBuffer) do(op string, fn func() error) (err error) {
	d := cb.d
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := cb.checkLocked(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (cb *CommandBuffer) checkLocked() error {
	if cb.state != cbRecording {
		return fmt.Errorf("%w: %v", ErrCommandBufferNotRecording, cb.state)
	}
	return cb.d.liveLocked()
}

// use records that the buffer references a.
func (cb *CommandBuffer) use(a tracker) {
	if _, ok := cb.used[a]; ok {
		return
	}
	a.retain()
	cb.used[a] = struct{}{}
}

func (cb *CommandBuffer) emit(c driver.Command) { cb.cmds = append(cb.cmds, c) }

func (cb *CommandBuffer) noPassLocked() error {
	if cb.pass != nil {
		return ErrPassOpen
	}
	return nil
}

// =============================================================================
// Uniforms
// =============================================================================

// PushVertexUniformData stages data for uniform slot of the vertex stage.
// It applies to subsequent draws, inside or outside a render pass.
func (cb *CommandBuffer) PushVertexUniformData(slot uint32, data []byte) error {
	return cb.pushUniform("push vertex uniform data", gputypes.ShaderStageVertex, slot, data)
}

// PushFragmentUniformData stages data for uniform slot of the fragment
// stage.
func (cb *CommandBuffer) PushFragmentUniformData(slot uint32, data []byte) error {
	return cb.pushUniform("push fragment uniform data", gputypes.ShaderStageFragment, slot, data)
}

// PushComputeUniformData stages data for uniform slot of compute
// dispatches.
func (cb *CommandBuffer) PushComputeUniformData(slot uint32, data []byte) error {
	return cb.pushUniform("push compute uniform data", gputypes.ShaderStageCompute, slot, data)
}

func (cb *CommandBuffer) pushUniform(op string, stage gputypes.ShaderStage, slot uint32, data []byte) error {
	return cb.do(op, func() error {
		if slot >= MaxUniformSlots {
			return fmt.Errorf("%w: uniform slot %d", ErrSlotOutOfRange, slot)
		}
		if len(data) == 0 || len(data)%16 != 0 {
			return fmt.Errorf("%w: %d bytes", ErrUniformAlignment, len(data))
		}
		cb.emit(driver.PushUniform{Stage: stage, Slot: slot, Data: slices.Clone(data)})
		return nil
	})
}

// =============================================================================
// Debug labels
// =============================================================================

// InsertDebugLabel inserts a named marker.
func (cb *CommandBuffer) InsertDebugLabel(name string) error {
	return cb.do("insert debug label", func() error {
		cb.emit(driver.InsertDebugLabel{Name: name})
		return nil
	})
}

// PushDebugGroup opens a named debug group. A group opened inside a pass
// must be closed before the pass ends.
func (cb *CommandBuffer) PushDebugGroup(name string) error {
	return cb.do("push debug group", func() error {
		cb.debugDepth++
		cb.emit(driver.PushDebugGroup{Name: name})
		return nil
	})
}

// PopDebugGroup closes the innermost debug group.
func (cb *CommandBuffer) PopDebugGroup() error {
	return cb.do("pop debug group", func() error {
		switch {
		case cb.debugDepth == 0:
			return ErrDebugGroupUnderflow
		case cb.pass != nil && cb.debugDepth == cb.passDepth:
			return fmt.Errorf("%w: group was opened outside the pass", ErrDebugGroupScope)
		}
		cb.debugDepth--
		cb.emit(driver.PopDebugGroup{})
		return nil
	})
}

// beginPassLocked opens p.
func (cb *CommandBuffer) beginPassLocked(p any) {
	cb.pass = p
	cb.passDepth = cb.debugDepth
}

// endPassLocked closes the open pass and emits end. Groups left open inside
// the pass are closed first and reported as ErrDebugGroupScope.
func (cb *CommandBuffer) endPassLocked(end driver.Command) error {
	var err error
	if open := cb.debugDepth - cb.passDepth; open > 0 {
		for range open {
			cb.emit(driver.PopDebugGroup{})
		}
		cb.debugDepth = cb.passDepth
		err = fmt.Errorf("%w: %d groups left open", ErrDebugGroupScope, open)
	}
	cb.emit(end)
	cb.pass = nil
	return err
}

// =============================================================================
// Submission
// =============================================================================

// Submit hands the recorded commands to the GPU and presents any acquired
// swapchain textures after them. Submissions on one device begin in
// submission order.
func (cb *CommandBuffer) Submit() error {
	_, err := cb.submit("submit", false)
	return err
}

// SubmitAndAcquireFence submits like Submit and returns a fence that
// signals when the submission completes. The fence must be released with
// ReleaseFence.
func (cb *CommandBuffer) SubmitAndAcquireFence() (*Fence, error) {
	return cb.submit("submit and acquire fence", true)
}

func (cb *CommandBuffer) submit(op string, withFence bool) (_ *Fence, err error) {
	d := cb.d
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := cb.checkLocked(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cb.pass != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrPassOpen)
	}
	if d.state.suspended {
		return nil, fmt.Errorf("%s: %w", op, ErrSuspended)
	}
	if cb.debugDepth > 0 {
		d.log.Debug("gpucmd: closing unbalanced debug groups", "cmd", cb.label, "open", cb.debugDepth)
		for range cb.debugDepth {
			cb.emit(driver.PopDebugGroup{})
		}
		cb.debugDepth = 0
	}

	list := &driver.CommandList{Label: cb.label, Commands: cb.cmds}
	for _, f := range cb.frames {
		list.Presents = append(list.Presents, driver.Present{Surface: f.sc.surface, Texture: f.tex})
	}

	epoch, err := d.drv.Submit(list)
	if err != nil {
		for _, f := range cb.frames {
			f.sc.surface.Discard(f.tex)
		}
		cb.finishLocked(cbSubmitted, 0)
		return nil, d.driverErr(op, err)
	}
	d.state.submitted = max(d.state.submitted, epoch)
	d.log.Debug("gpucmd: submitted",
		"cmd", cb.label,
		"epoch", epoch,
		"commands", len(list.Commands),
		"presents", len(list.Presents))
	cb.finishLocked(cbSubmitted, epoch)

	var f *Fence
	if withFence {
		f = &Fence{d: d, epoch: epoch}
		d.state.fences[f] = struct{}{}
	}
	d.reapLocked()
	return f, nil
}

// Cancel discards the recorded commands. A command buffer that acquired a
// swapchain texture cannot be cancelled and stays Recording.
func (cb *CommandBuffer) Cancel() (err error) {
	d := cb.d
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	if cb.state != cbRecording {
		return fmt.Errorf("cancel: %w: %v", ErrCommandBufferNotRecording, cb.state)
	}
	if len(cb.frames) > 0 {
		return fmt.Errorf("cancel: %w", ErrSwapchainAcquired)
	}
	cb.finishLocked(cbCancelled, 0)
	d.reapLocked()
	return nil
}

// finishLocked ends recording. A zero epoch means nothing reached the GPU.
func (cb *CommandBuffer) finishLocked(state cbState, epoch uint64) {
	for a := range cb.used {
		a.settle(epoch)
	}
	for _, f := range cb.frames {
		cb.d.textures.Remove(f.id)
		f.sc.acquired = nil
		if epoch > 0 {
			f.sc.inflight = append(f.sc.inflight, epoch)
		} else {
			f.sc.releaseSlot()
		}
	}
	cb.state = state
	cb.cmds = nil
	cb.used = nil
	cb.frames = nil
	cb.pass = nil
}

// =============================================================================
// Command-buffer scoped operations
// =============================================================================

// GenerateMipmaps fills levels 1..n-1 of texture from level 0. The texture
// needs Sampler and ColorTarget usage and at least two levels. No pass may
// be open.
func (cb *CommandBuffer) GenerateMipmaps(texture Texture) error {
	return cb.do("generate mipmaps", func() error {
		if err := cb.noPassLocked(); err != nil {
			return err
		}
		t, err := cb.d.texture(texture, cb)
		if err != nil {
			return err
		}
		if t.swapchain != nil {
			return fmt.Errorf("%w: swapchain texture", ErrInvalidHandle)
		}
		if t.info.NumLevels < 2 {
			return fmt.Errorf("%w: texture has one level", ErrInvalidDescriptor)
		}
		if !t.info.Usage.Contains(TextureUsageSampler | TextureUsageColorTarget) {
			return fmt.Errorf("%w: need Sampler|ColorTarget, have %v", ErrMissingUsage, t.info.Usage)
		}
		a := t.ring.current()
		cb.use(a)
		cb.emit(driver.GenerateMipmaps{Texture: a.res})
		return nil
	})
}

// BlitTexture copies a region of one texture into a region of another,
// scaling with info.Filter. The source needs Sampler usage and the
// destination ColorTarget usage. No pass may be open.
func (cb *CommandBuffer) BlitTexture(info BlitInfo) error {
	return cb.do("blit texture", func() error {
		if err := cb.noPassLocked(); err != nil {
			return err
		}
		if info.LoadOp == LoadOpLoad && info.Cycle {
			return fmt.Errorf("%w: cycle with LoadOpLoad", ErrInvalidDescriptor)
		}
		src, err := cb.d.texture(info.Source.Texture, cb)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		dst, err := cb.d.texture(info.Destination.Texture, cb)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if !src.info.Usage.Contains(TextureUsageSampler) {
			return fmt.Errorf("%w: source needs Sampler, has %v", ErrMissingUsage, src.info.Usage)
		}
		if !dst.info.Usage.Contains(TextureUsageColorTarget) {
			return fmt.Errorf("%w: destination needs ColorTarget, has %v", ErrMissingUsage, dst.info.Usage)
		}
		if err := checkBlitRegion(src, info.Source); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkBlitRegion(dst, info.Destination); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if info.Cycle {
			if err := cb.d.cycleTextureLocked(dst); err != nil {
				return err
			}
		}

		sa, da := src.ring.current(), dst.ring.current()
		cb.use(sa)
		cb.use(da)
		cb.emit(driver.Blit{
			Src:    lowerBlitRegion(sa.res, info.Source),
			Dst:    lowerBlitRegion(da.res, info.Destination),
			Load:   info.LoadOp,
			Clear:  info.ClearColor,
			Flip:   info.FlipMode,
			Filter: info.Filter,
		})
		return nil
	})
}

func lowerBlitRegion(res driver.Texture, r BlitRegion) driver.BlitRegion {
	return driver.BlitRegion{
		Texture:           res,
		MipLevel:          r.MipLevel,
		LayerOrDepthPlane: r.LayerOrDepthPlane,
		X:                 r.X,
		Y:                 r.Y,
		W:                 r.W,
		H:                 r.H,
	}
}
