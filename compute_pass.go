package gpucmd

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

// ComputePass records dispatches. Dispatches inside one pass are unordered
// relative to each other and no barriers are inserted between them; split
// dependent work across passes.
type ComputePass struct {
	cb     *CommandBuffer
	closed bool

	writes   *computeWrites
	pipeline *computePipeline
}

// computeWrites is the set of resources a compute pass writes.
type computeWrites struct {
	// textures maps written textures to whether they allow simultaneous
	// reads.
	textures map[*texture]bool
	buffers  map[*buffer]struct{}
}

// BeginComputePass opens a compute pass that writes textures and buffers.
// Written textures need ComputeStorageWrite or
// ComputeStorageSimultaneousReadWrite usage; written buffers need
// ComputeStorageWrite. No other pass may be open.
func (cb *CommandBuffer) BeginComputePass(textures []StorageTextureReadWriteBinding, buffers []StorageBufferReadWriteBinding) (*ComputePass, error) {
	var p *ComputePass
	err := cb.do("begin compute pass", func() error {
		d := cb.d
		if err := cb.noPassLocked(); err != nil {
			return err
		}
		if len(textures) > MaxStorageTexturesPerStage || len(buffers) > MaxStorageBuffersPerStage {
			return fmt.Errorf("%w: %d textures, %d buffers", ErrSlotOutOfRange, len(textures), len(buffers))
		}

		w := &computeWrites{
			textures: make(map[*texture]bool, len(textures)),
			buffers:  make(map[*buffer]struct{}, len(buffers)),
		}
		texs := make([]*texture, len(textures))
		for i, b := range textures {
			t, err := d.texture(b.Texture, cb)
			if err != nil {
				return fmt.Errorf("storage texture %d: %w", i, err)
			}
			simultaneous := t.info.Usage.Contains(TextureUsageComputeStorageSimultaneousReadWrite)
			if !simultaneous && !t.info.Usage.Contains(TextureUsageComputeStorageWrite) {
				return fmt.Errorf("storage texture %d: %w: has %v", i, ErrMissingUsage, t.info.Usage)
			}
			if err := checkSubresource(t, b.MipLevel, b.Layer); err != nil {
				return fmt.Errorf("storage texture %d: %w", i, err)
			}
			texs[i] = t
			w.textures[t] = simultaneous
		}
		bufs := make([]*buffer, len(buffers))
		for i, b := range buffers {
			buf, err := d.buffer(b.Buffer)
			if err != nil {
				return fmt.Errorf("storage buffer %d: %w", i, err)
			}
			if !buf.info.Usage.Contains(BufferUsageComputeStorageWrite) {
				return fmt.Errorf("storage buffer %d: %w: has %v", i, ErrMissingUsage, buf.info.Usage)
			}
			bufs[i] = buf
			w.buffers[buf] = struct{}{}
		}

		d.reapLocked()
		for i, t := range texs {
			if textures[i].Cycle {
				if err := d.cycleTextureLocked(t); err != nil {
					return err
				}
			}
		}
		for i, b := range bufs {
			if buffers[i].Cycle {
				if err := d.cycleBufferLocked(b); err != nil {
					return err
				}
			}
		}

		begin := driver.BeginComputePass{
			StorageTextures: make([]driver.StorageTextureWrite, len(texs)),
			StorageBuffers:  make([]driver.Buffer, len(bufs)),
		}
		for i, t := range texs {
			a := t.ring.current()
			cb.use(a)
			begin.StorageTextures[i] = driver.StorageTextureWrite{
				Texture:  a.res,
				MipLevel: textures[i].MipLevel,
				Layer:    textures[i].Layer,
			}
		}
		for i, b := range bufs {
			a := b.ring.current()
			cb.use(a)
			begin.StorageBuffers[i] = a.res
		}
		cb.emit(begin)

		p = &ComputePass{cb: cb, writes: w}
		cb.beginPassLocked(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ComputePass) do(op string, fn func() error) error {
	return p.cb.do(op, func() error {
		if p.closed {
			return ErrPassClosed
		}
		return fn()
	})
}

// End closes the pass. Ending a closed pass does nothing.
func (p *ComputePass) End() error {
	if p.closed {
		return nil
	}
	return p.do("end compute pass", func() error {
		p.closed = true
		p.pipeline = nil
		return p.cb.endPassLocked(driver.EndComputePass{})
	})
}

// BindComputePipeline binds pipeline for subsequent dispatches.
func (p *ComputePass) BindComputePipeline(pipeline ComputePipeline) error {
	return p.do("bind compute pipeline", func() error {
		cp, ok := p.cb.d.computePipelines.Get(pipeline.id)
		if !ok {
			return fmt.Errorf("%w: compute pipeline", ErrInvalidHandle)
		}
		p.cb.use(cp.alloc)
		p.pipeline = cp
		p.cb.emit(driver.BindComputePipeline{Pipeline: cp.alloc.res})
		return nil
	})
}

// BindComputeSamplers binds texture-sampler pairs for compute. A texture
// the pass writes cannot be sampled.
func (p *ComputePass) BindComputeSamplers(first uint32, bindings []TextureSamplerBinding) error {
	return p.do("bind compute samplers", func() error {
		return p.cb.bindSamplers(gputypes.ShaderStageCompute, first, bindings, p.writes)
	})
}

// BindComputeStorageTextures binds read-only storage textures. Each needs
// ComputeStorageRead usage. Binding a texture the pass writes requires
// ComputeStorageSimultaneousReadWrite.
func (p *ComputePass) BindComputeStorageTextures(first uint32, textures []Texture) error {
	return p.do("bind compute storage textures", func() error {
		return p.cb.bindStorageTextures(gputypes.ShaderStageCompute, first, textures, TextureUsageComputeStorageRead, p.writes)
	})
}

// BindComputeStorageBuffers binds read-only storage buffers. Each needs
// ComputeStorageRead usage and must not be written by the pass.
func (p *ComputePass) BindComputeStorageBuffers(first uint32, buffers []Buffer) error {
	return p.do("bind compute storage buffers", func() error {
		return p.cb.bindStorageBuffers(gputypes.ShaderStageCompute, first, buffers, BufferUsageComputeStorageRead, p.writes)
	})
}

// DispatchCompute launches x * y * z workgroups.
func (p *ComputePass) DispatchCompute(x, y, z uint32) error {
	return p.do("dispatch compute", func() error {
		if p.pipeline == nil {
			return ErrNoPipeline
		}
		p.cb.emit(driver.Dispatch{Args: driver.DispatchArgs{GroupsX: x, GroupsY: y, GroupsZ: z}})
		return nil
	})
}

// DispatchComputeIndirect launches the workgroups counted by the
// IndirectDispatchCommand record at offset in buffer.
func (p *ComputePass) DispatchComputeIndirect(buffer Buffer, offset uint64) error {
	return p.do("dispatch compute indirect", func() error {
		if p.pipeline == nil {
			return ErrNoPipeline
		}
		a, err := p.cb.indirectBuffer(buffer, offset, IndirectDispatchCommandSize)
		if err != nil {
			return err
		}
		p.cb.emit(driver.DispatchIndirect{Buffer: a, Offset: offset})
		return nil
	})
}

// =============================================================================
// Stage bindings shared by render and compute passes
// =============================================================================

func (cb *CommandBuffer) bindSamplers(stage gputypes.ShaderStage, first uint32, bindings []TextureSamplerBinding, writes *computeWrites) error {
	if err := checkSlots(first, len(bindings), MaxSamplersPerStage); err != nil {
		return err
	}
	out := make([]driver.SamplerBinding, len(bindings))
	for i, b := range bindings {
		t, err := cb.d.texture(b.Texture, cb)
		if err != nil {
			return fmt.Errorf("slot %d: %w", int(first)+i, err)
		}
		if !t.info.Usage.Contains(TextureUsageSampler) {
			return fmt.Errorf("slot %d: %w: need Sampler, have %v", int(first)+i, ErrMissingUsage, t.info.Usage)
		}
		if writes != nil {
			if _, ok := writes.textures[t]; ok {
				return fmt.Errorf("slot %d: %w: sampled texture is written", int(first)+i, ErrReadWriteHazard)
			}
		}
		s, err := cb.d.sampler(b.Sampler)
		if err != nil {
			return fmt.Errorf("slot %d: %w", int(first)+i, err)
		}
		ta := t.ring.current()
		cb.use(ta)
		cb.use(s.alloc)
		out[i] = driver.SamplerBinding{Texture: ta.res, Sampler: s.alloc.res}
	}
	cb.emit(driver.BindSamplers{Stage: stage, First: first, Bindings: out})
	return nil
}

func (cb *CommandBuffer) bindStorageTextures(stage gputypes.ShaderStage, first uint32, textures []Texture, usage TextureUsage, writes *computeWrites) error {
	if err := checkSlots(first, len(textures), MaxStorageTexturesPerStage); err != nil {
		return err
	}
	out := make([]driver.Texture, len(textures))
	for i, h := range textures {
		t, err := cb.d.texture(h, cb)
		if err != nil {
			return fmt.Errorf("slot %d: %w", int(first)+i, err)
		}
		if writes != nil {
			if simultaneous, ok := writes.textures[t]; ok && !simultaneous {
				return fmt.Errorf("slot %d: %w", int(first)+i, ErrReadWriteHazard)
			}
		}
		if !t.info.Usage.Contains(usage) && !(writes != nil && writes.textures[t]) {
			return fmt.Errorf("slot %d: %w: need %v, have %v", int(first)+i, ErrMissingUsage, usage, t.info.Usage)
		}
		a := t.ring.current()
		cb.use(a)
		out[i] = a.res
	}
	cb.emit(driver.BindStorageTextures{Stage: stage, First: first, Textures: out})
	return nil
}

func (cb *CommandBuffer) bindStorageBuffers(stage gputypes.ShaderStage, first uint32, buffers []Buffer, usage BufferUsage, writes *computeWrites) error {
	if err := checkSlots(first, len(buffers), MaxStorageBuffersPerStage); err != nil {
		return err
	}
	out := make([]driver.Buffer, len(buffers))
	for i, h := range buffers {
		b, err := cb.d.buffer(h)
		if err != nil {
			return fmt.Errorf("slot %d: %w", int(first)+i, err)
		}
		if !b.info.Usage.Contains(usage) {
			return fmt.Errorf("slot %d: %w: need %v, have %v", int(first)+i, ErrMissingUsage, usage, b.info.Usage)
		}
		if writes != nil {
			if _, ok := writes.buffers[b]; ok {
				return fmt.Errorf("slot %d: %w", int(first)+i, ErrReadWriteHazard)
			}
		}
		a := b.ring.current()
		cb.use(a)
		out[i] = a.res
	}
	cb.emit(driver.BindStorageBuffers{Stage: stage, First: first, Buffers: out})
	return nil
}
