package wgpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

const (
	// zeroBlockSize is the zero-filled uniform range bound to slots that
	// received no data. It sits at offset 0 of the uniform arena.
	zeroBlockSize = 4096

	// copyPitchAlign is the bytes-per-row alignment of buffer-texture copies.
	copyPitchAlign = 256
)

var errNotBound = errors.New("binding slot not set")

// uniformSlot is a pushed range of the uniform arena.
type uniformSlot struct {
	offset uint64
	size   uint64
}

// stageState is what the list bound for one shader stage.
type stageState struct {
	samplers        []driver.SamplerBinding
	storageTextures []driver.Texture
	storageBuffers  []driver.Buffer
	uniforms        [4]*uniformSlot

	resourcesDirty bool
	uniformsDirty  bool
}

// encoder translates one command list into a HAL command buffer.
type encoder struct {
	d    *Device
	list *driver.CommandList
	enc  hal.CommandEncoder

	// garbage is freed once the list's epoch completes.
	garbage []func()

	arena     hal.Buffer
	arenaData []byte
	arenaNext uint64
	align     uint64

	render   hal.RenderPassEncoder
	compute  hal.ComputePassEncoder
	pipeline *Pipeline
	stages   [numStages]stageState
	rwTex    []driver.StorageTextureWrite
	rwBuf    []driver.Buffer
	labels   []string

	texBarriers []hal.TextureBarrier
	bufBarriers []hal.BufferBarrier
}

func newEncoder(d *Device, list *driver.CommandList) (*encoder, error) {
	e := &encoder{
		d:     d,
		list:  list,
		align: uint64(max(d.cfg.limits.MinUniformBufferOffsetAlignment, 16)),
	}
	if size := e.arenaSize(); size > 0 {
		raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
			Label: "uniform arena",
			Size:  size,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("create uniform arena: %w", err)
		}
		e.arena = raw
		e.arenaData = make([]byte, size)
		e.arenaNext = alignUp(zeroBlockSize, e.align)
		e.garbage = append(e.garbage, func() { d.dev.DestroyBuffer(raw) })
	}

	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: list.Label})
	if err != nil {
		e.abort()
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(list.Label); err != nil {
		e.abort()
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	e.enc = enc
	return e, nil
}

// arenaSize returns the uniform bytes the list needs, including the zero
// block, or 0 when nothing binds uniforms.
func (e *encoder) arenaSize() uint64 {
	var size uint64
	used := false
	for _, c := range e.list.Commands {
		switch c := c.(type) {
		case driver.PushUniform:
			size += alignUp(uint64(len(c.Data)), e.align)
		case driver.Blit:
			size += e.align
			used = true
		case driver.GenerateMipmaps:
			desc := c.Texture.Desc()
			size += e.align * uint64(max(desc.MipLevels, 1)) * uint64(desc.Layers(0))
			used = true
		case driver.Draw, driver.DrawIndexed, driver.DrawIndirect, driver.Dispatch, driver.DispatchIndirect:
			used = true
		}
	}
	if !used && size == 0 {
		return 0
	}
	return alignUp(zeroBlockSize, e.align) + size
}

// allocUniform copies data into the arena and returns its range.
func (e *encoder) allocUniform(data []byte) *uniformSlot {
	off := e.arenaNext
	copy(e.arenaData[off:], data)
	e.arenaNext += alignUp(uint64(len(data)), e.align)
	return &uniformSlot{offset: off, size: uint64(len(data))}
}

// uploadUniforms writes the arena through the queue ahead of the list.
func (e *encoder) uploadUniforms() error {
	if e.arena == nil {
		return nil
	}
	return e.d.queue.WriteBuffer(e.arena, 0, e.arenaData)
}

// abort releases everything the encoder created. Nothing was submitted.
func (e *encoder) abort() {
	if e.enc != nil {
		e.enc.DiscardEncoding()
		e.enc = nil
	}
	for _, fn := range e.garbage {
		fn()
	}
	e.garbage = nil
}

// encode records every command and returns the finished command buffer.
func (e *encoder) encode() (hal.CommandBuffer, error) {
	cmds := e.list.Commands
	for i, c := range cmds {
		if err := e.command(cmds, i, c); err != nil {
			return nil, fmt.Errorf("command %d (%T): %w", i, c, err)
		}
	}
	for _, p := range e.list.Presents {
		e.useTexture(asTexture(p.Texture), gputypes.TextureUsageRenderAttachment)
	}
	e.flushBarriers()

	cmd, err := e.enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	e.enc = nil
	return cmd, nil
}

func (e *encoder) command(cmds []driver.Command, i int, c driver.Command) error {
	switch c := c.(type) {
	case driver.BeginRenderPass:
		return e.beginRenderPass(cmds[i+1:], c)
	case driver.EndRenderPass:
		e.render.End()
		e.render = nil
		e.pipeline = nil
	case driver.BindGraphicsPipeline:
		e.bindPipeline(asPipeline(c.Pipeline))
		e.render.SetPipeline(e.pipeline.render)
	case driver.SetViewport:
		v := c.Viewport
		e.render.SetViewport(v.X, v.Y, v.W, v.H, v.MinDepth, v.MaxDepth)
	case driver.SetScissor:
		e.render.SetScissorRect(c.Rect.X, c.Rect.Y, c.Rect.W, c.Rect.H)
	case driver.SetBlendConstants:
		color := c.Color
		e.render.SetBlendConstant(&color)
	case driver.SetStencilReference:
		e.render.SetStencilReference(uint32(c.Reference))
	case driver.BindVertexBuffers:
		for j, b := range c.Bindings {
			e.render.SetVertexBuffer(c.First+uint32(j), asBuffer(b.Buffer).raw, b.Offset)
		}
	case driver.BindIndexBuffer:
		e.render.SetIndexBuffer(asBuffer(c.Binding.Buffer).raw, c.Format, c.Binding.Offset)
	case driver.Draw:
		if err := e.flushBindings(); err != nil {
			return err
		}
		a := c.Args
		e.render.Draw(a.NumVertices, a.NumInstances, a.FirstVertex, a.FirstInstance)
	case driver.DrawIndexed:
		if err := e.flushBindings(); err != nil {
			return err
		}
		a := c.Args
		e.render.DrawIndexed(a.NumIndices, a.NumInstances, a.FirstIndex, a.VertexOffset, a.FirstInstance)
	case driver.DrawIndirect:
		if err := e.flushBindings(); err != nil {
			return err
		}
		e.drawIndirect(c)

	case driver.BindSamplers:
		s := &e.stages[stageIndex(c.Stage)]
		s.samplers = setRange(s.samplers, c.First, c.Bindings)
		s.resourcesDirty = true
	case driver.BindStorageTextures:
		s := &e.stages[stageIndex(c.Stage)]
		s.storageTextures = setRange(s.storageTextures, c.First, c.Textures)
		s.resourcesDirty = true
	case driver.BindStorageBuffers:
		s := &e.stages[stageIndex(c.Stage)]
		s.storageBuffers = setRange(s.storageBuffers, c.First, c.Buffers)
		s.resourcesDirty = true
	case driver.PushUniform:
		s := &e.stages[stageIndex(c.Stage)]
		if int(c.Slot) >= len(s.uniforms) {
			return fmt.Errorf("uniform slot %d out of range", c.Slot)
		}
		s.uniforms[c.Slot] = e.allocUniform(c.Data)
		s.uniformsDirty = true

	case driver.BeginComputePass:
		return e.beginComputePass(cmds[i+1:], c)
	case driver.EndComputePass:
		e.compute.End()
		e.compute = nil
		e.pipeline = nil
		e.rwTex, e.rwBuf = nil, nil
	case driver.BindComputePipeline:
		e.bindPipeline(asPipeline(c.Pipeline))
		e.compute.SetPipeline(e.pipeline.compute)
	case driver.Dispatch:
		if err := e.flushBindings(); err != nil {
			return err
		}
		e.compute.Dispatch(c.Args.GroupsX, c.Args.GroupsY, c.Args.GroupsZ)
	case driver.DispatchIndirect:
		if err := e.flushBindings(); err != nil {
			return err
		}
		e.compute.DispatchIndirect(asBuffer(c.Buffer).raw, c.Offset)

	case driver.BeginCopyPass, driver.EndCopyPass:
	case driver.UploadToBuffer:
		return e.copyBuffer(asBuffer(c.Src), c.SrcOffset, asBuffer(c.Dst), c.DstOffset, c.Size)
	case driver.DownloadFromBuffer:
		return e.copyBuffer(asBuffer(c.Src), c.SrcOffset, asBuffer(c.Dst), c.DstOffset, c.Size)
	case driver.CopyBufferToBuffer:
		return e.copyBuffer(asBuffer(c.Src), c.SrcOffset, asBuffer(c.Dst), c.DstOffset, c.Size)
	case driver.UploadToTexture:
		e.bufferTextureCopy(asBuffer(c.Src), c.Layout, c.Dst, true)
	case driver.DownloadFromTexture:
		e.bufferTextureCopy(asBuffer(c.Dst), c.Layout, c.Src, false)
	case driver.CopyTextureToTexture:
		e.copyTexture(c)

	case driver.GenerateMipmaps:
		return e.d.blitter.generateMipmaps(e, asTexture(c.Texture))
	case driver.Blit:
		return e.d.blitter.blit(e, c)

	case driver.InsertDebugLabel:
		driver.Logger().Debug("wgpu: debug label", "name", c.Name, "group", e.label())
	case driver.PushDebugGroup:
		e.labels = append(e.labels, c.Name)
	case driver.PopDebugGroup:
		if len(e.labels) > 0 {
			e.labels = e.labels[:len(e.labels)-1]
		}

	default:
		return fmt.Errorf("%w: command %T", driver.ErrUnsupported, c)
	}
	return nil
}

// label is the open debug group path, used to name passes.
func (e *encoder) label() string {
	if len(e.labels) == 0 {
		return e.list.Label
	}
	return strings.Join(e.labels, "/")
}

// setRange stores vals at first, growing s as needed.
func setRange[T any](s []T, first uint32, vals []T) []T {
	if need := int(first) + len(vals); need > len(s) {
		s = append(s, make([]T, need-len(s))...)
	}
	copy(s[first:], vals)
	return s
}

// =============================================================================
// Passes
// =============================================================================

// passEnd returns the commands of the pass opened just before rest.
func passEnd(rest []driver.Command) []driver.Command {
	for i, c := range rest {
		switch c.(type) {
		case driver.EndRenderPass, driver.EndComputePass:
			return rest[:i]
		}
	}
	return rest
}

// resetPassBindings clears resource bindings. Uniform data outlives passes
// but must be rebound.
func (e *encoder) resetPassBindings() {
	for i := range e.stages {
		s := &e.stages[i]
		s.samplers, s.storageTextures, s.storageBuffers = nil, nil, nil
		s.resourcesDirty, s.uniformsDirty = true, true
	}
	e.pipeline = nil
}

// useInPass transitions every resource bound by a pass before it begins.
// Barriers cannot be recorded inside a pass.
func (e *encoder) useInPass(cmds []driver.Command) {
	tex := map[*Texture]gputypes.TextureUsage{}
	buf := map[*Buffer]gputypes.BufferUsage{}
	for _, c := range cmds {
		switch c := c.(type) {
		case driver.BindSamplers:
			for _, b := range c.Bindings {
				if b.Texture != nil {
					tex[asTexture(b.Texture)] |= gputypes.TextureUsageTextureBinding
				}
			}
		case driver.BindStorageTextures:
			for _, t := range c.Textures {
				if t != nil {
					tex[asTexture(t)] |= gputypes.TextureUsageStorageBinding
				}
			}
		case driver.BindStorageBuffers:
			for _, b := range c.Buffers {
				if b != nil {
					buf[asBuffer(b)] |= gputypes.BufferUsageStorage
				}
			}
		case driver.BindVertexBuffers:
			for _, b := range c.Bindings {
				buf[asBuffer(b.Buffer)] |= gputypes.BufferUsageVertex
			}
		case driver.BindIndexBuffer:
			buf[asBuffer(c.Binding.Buffer)] |= gputypes.BufferUsageIndex
		case driver.DrawIndirect:
			buf[asBuffer(c.Buffer)] |= gputypes.BufferUsageIndirect
		case driver.DispatchIndirect:
			buf[asBuffer(c.Buffer)] |= gputypes.BufferUsageIndirect
		}
	}
	for t, u := range tex {
		e.useTexture(t, u)
	}
	for b, u := range buf {
		e.useBuffer(b, u)
	}
}

func (e *encoder) beginRenderPass(rest []driver.Command, c driver.BeginRenderPass) error {
	e.resetPassBindings()
	desc := &hal.RenderPassDescriptor{Label: e.label()}
	for _, a := range c.Colors {
		t := asTexture(a.Texture)
		if t.desc.Type == driver.TextureType3D {
			return fmt.Errorf("%w: rendering into a 3D texture", driver.ErrUnsupported)
		}
		view, err := e.d.caches.view(t, a.MipLevel, a.Layer, gputypes.TextureViewDimension2D, false)
		if err != nil {
			return err
		}
		e.useTexture(t, gputypes.TextureUsageRenderAttachment)
		att := hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     loadOp(a.Load),
			StoreOp:    storeOp(a.Store),
			ClearValue: a.Clear,
		}
		if a.Store.Resolves() && a.Resolve != nil {
			r := asTexture(a.Resolve)
			rv, err := e.d.caches.view(r, a.ResolveMip, a.ResolveLayer, gputypes.TextureViewDimension2D, false)
			if err != nil {
				return err
			}
			e.useTexture(r, gputypes.TextureUsageRenderAttachment)
			att.ResolveTarget = rv
		}
		desc.ColorAttachments = append(desc.ColorAttachments, att)
	}
	if ds := c.DepthStencil; ds != nil {
		t := asTexture(ds.Texture)
		view, err := e.d.caches.view(t, ds.MipLevel, ds.Layer, gputypes.TextureViewDimension2D, false)
		if err != nil {
			return err
		}
		e.useTexture(t, gputypes.TextureUsageRenderAttachment)
		att := &hal.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     loadOp(ds.DepthLoad),
			DepthStoreOp:    storeOp(ds.DepthStore),
			DepthClearValue: ds.ClearDepth,
		}
		if t.desc.Format.HasStencil() {
			att.StencilLoadOp = loadOp(ds.StencilLoad)
			att.StencilStoreOp = storeOp(ds.StencilStore)
			att.StencilClearValue = uint32(ds.ClearStencil)
		}
		desc.DepthStencilAttachment = att
	}
	e.useInPass(passEnd(rest))
	e.flushBarriers()
	e.render = e.enc.BeginRenderPass(desc)
	return nil
}

func (e *encoder) beginComputePass(rest []driver.Command, c driver.BeginComputePass) error {
	e.resetPassBindings()
	e.rwTex = c.StorageTextures
	e.rwBuf = c.StorageBuffers
	for _, w := range c.StorageTextures {
		e.useTexture(asTexture(w.Texture), gputypes.TextureUsageStorageBinding)
	}
	for _, b := range c.StorageBuffers {
		e.useBuffer(asBuffer(b), gputypes.BufferUsageStorage)
	}
	e.useInPass(passEnd(rest))
	e.flushBarriers()
	e.compute = e.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: e.label()})
	return nil
}

func (e *encoder) bindPipeline(p *Pipeline) {
	if e.pipeline == p {
		return
	}
	e.pipeline = p
	for i := range e.stages {
		e.stages[i].resourcesDirty = true
		e.stages[i].uniformsDirty = true
	}
}

func (e *encoder) drawIndirect(c driver.DrawIndirect) {
	raw := asBuffer(c.Buffer).raw
	stride := uint64(driver.DrawArgsSize)
	if c.Indexed {
		stride = driver.DrawIndexedArgsSize
	}
	for i := range uint64(c.Count) {
		off := c.Offset + i*stride
		if c.Indexed {
			e.render.DrawIndexedIndirect(raw, off)
		} else {
			e.render.DrawIndirect(raw, off)
		}
	}
}

// =============================================================================
// Bind groups
// =============================================================================

// flushBindings sets every dirty group of the bound pipeline.
func (e *encoder) flushBindings() error {
	p := e.pipeline
	if p == nil {
		return errors.New("no pipeline bound")
	}
	for gi := range p.groups {
		g := &p.groups[gi]
		s := &e.stages[g.stage]
		dirty := s.resourcesDirty
		if g.kind == groupUniforms {
			dirty = s.uniformsDirty
		}
		if !dirty {
			continue
		}
		bg, err := e.bindGroup(p, gi)
		if err != nil {
			return fmt.Errorf("group %d: %w", gi, err)
		}
		if e.render != nil {
			e.render.SetBindGroup(uint32(gi), bg, nil)
		} else {
			e.compute.SetBindGroup(uint32(gi), bg, nil)
		}
	}
	for i := range e.stages {
		e.stages[i].resourcesDirty = false
		e.stages[i].uniformsDirty = false
	}
	return nil
}

// groupBuilder accumulates bind group entries and the cache key.
type groupBuilder struct {
	entries []gputypes.BindGroupEntry
	key     []uint64
	ids     []uint64
}

func (b *groupBuilder) add(res gputypes.BindingResource) {
	b.entries = append(b.entries, gputypes.BindGroupEntry{Binding: uint32(len(b.entries)), Resource: res})
}

func (e *encoder) bindGroup(p *Pipeline, gi int) (hal.BindGroup, error) {
	g := &p.groups[gi]
	if g.n == 0 {
		return g.empty, nil
	}
	if g.kind == groupUniforms {
		return e.uniformGroup(p, g)
	}

	c := p.counts[g.stage]
	s := &e.stages[g.stage]
	b := &groupBuilder{ids: []uint64{p.id}}
	switch g.kind {
	case groupResources:
		for i := range int(c.samplers) {
			if i >= len(s.samplers) || s.samplers[i].Texture == nil || s.samplers[i].Sampler == nil {
				return nil, fmt.Errorf("sampler %d: %w", i, errNotBound)
			}
			t, smp := asTexture(s.samplers[i].Texture), asSampler(s.samplers[i].Sampler)
			dim := entryDim(g.entries[len(b.entries)], t)
			view, err := e.d.caches.view(t, 0, 0, dim, true)
			if err != nil {
				return nil, err
			}
			b.add(gputypes.TextureViewBinding{TextureView: view.NativeHandle()})
			b.add(gputypes.SamplerBinding{Sampler: smp.raw.NativeHandle()})
			b.key = append(b.key, t.id, smp.id)
			b.ids = append(b.ids, t.id, smp.id)
		}
		for i := range int(c.storageTextures) {
			if i >= len(s.storageTextures) || s.storageTextures[i] == nil {
				return nil, fmt.Errorf("storage texture %d: %w", i, errNotBound)
			}
			t := asTexture(s.storageTextures[i])
			view, err := e.d.caches.view(t, 0, 0, entryDim(g.entries[len(b.entries)], t), false)
			if err != nil {
				return nil, err
			}
			b.add(gputypes.TextureViewBinding{TextureView: view.NativeHandle()})
			b.key = append(b.key, t.id)
			b.ids = append(b.ids, t.id)
		}
		for i := range int(c.storageBuffers) {
			if i >= len(s.storageBuffers) || s.storageBuffers[i] == nil {
				return nil, fmt.Errorf("storage buffer %d: %w", i, errNotBound)
			}
			buf := asBuffer(s.storageBuffers[i])
			b.add(gputypes.BufferBinding{Buffer: buf.raw.NativeHandle()})
			b.key = append(b.key, buf.id)
			b.ids = append(b.ids, buf.id)
		}
	case groupStorage:
		for i := range int(c.rwTextures) {
			if i >= len(e.rwTex) || e.rwTex[i].Texture == nil {
				return nil, fmt.Errorf("read-write storage texture %d: %w", i, errNotBound)
			}
			w := e.rwTex[i]
			t := asTexture(w.Texture)
			view, err := e.d.caches.view(t, w.MipLevel, w.Layer, entryDim(g.entries[len(b.entries)], t), false)
			if err != nil {
				return nil, err
			}
			b.add(gputypes.TextureViewBinding{TextureView: view.NativeHandle()})
			b.key = append(b.key, t.id, uint64(w.MipLevel), uint64(w.Layer))
			b.ids = append(b.ids, t.id)
		}
		for i := range int(c.rwBuffers) {
			if i >= len(e.rwBuf) || e.rwBuf[i] == nil {
				return nil, fmt.Errorf("read-write storage buffer %d: %w", i, errNotBound)
			}
			buf := asBuffer(e.rwBuf[i])
			b.add(gputypes.BufferBinding{Buffer: buf.raw.NativeHandle()})
			b.key = append(b.key, buf.id)
			b.ids = append(b.ids, buf.id)
		}
	}

	return e.d.caches.group(groupKey(p.id, gi, b.key), b.ids, &hal.BindGroupDescriptor{
		Label:   p.label,
		Layout:  g.raw,
		Entries: b.entries,
	})
}

// uniformGroup binds the stage's pushed ranges of this list's arena. It is
// never cached and dies with the list.
func (e *encoder) uniformGroup(p *Pipeline, g *group) (hal.BindGroup, error) {
	s := &e.stages[g.stage]
	b := &groupBuilder{}
	for i := range g.n {
		r := uniformSlot{offset: 0, size: zeroBlockSize}
		if i < len(s.uniforms) && s.uniforms[i] != nil {
			r = *s.uniforms[i]
		}
		b.add(gputypes.BufferBinding{Buffer: e.arena.NativeHandle(), Offset: r.offset, Size: r.size})
	}
	raw, err := e.d.dev.CreateBindGroup(&hal.BindGroupDescriptor{Label: p.label, Layout: g.raw, Entries: b.entries})
	if err != nil {
		return nil, fmt.Errorf("create uniform group: %w", err)
	}
	e.garbage = append(e.garbage, func() { e.d.dev.DestroyBindGroup(raw) })
	return raw, nil
}

// entryDim returns the view dimension a layout entry expects, falling back
// to the texture's own shape.
func entryDim(entry gputypes.BindGroupLayoutEntry, t *Texture) gputypes.TextureViewDimension {
	switch {
	case entry.Texture != nil && entry.Texture.ViewDimension != gputypes.TextureViewDimensionUndefined:
		return entry.Texture.ViewDimension
	case entry.StorageTexture != nil && entry.StorageTexture.ViewDimension != gputypes.TextureViewDimensionUndefined:
		return entry.StorageTexture.ViewDimension
	}
	return t.desc.Type.ViewDimension()
}

// =============================================================================
// Barriers
// =============================================================================

func (e *encoder) useTexture(t *Texture, usage gputypes.TextureUsage) {
	if t.state == usage {
		return
	}
	e.texBarriers = append(e.texBarriers, hal.TextureBarrier{
		Texture: t.raw,
		Usage:   hal.TextureUsageTransition{OldUsage: t.state, NewUsage: usage},
	})
	t.state = usage
}

func (e *encoder) useBuffer(b *Buffer, usage gputypes.BufferUsage) {
	if b.state == usage {
		return
	}
	e.bufBarriers = append(e.bufBarriers, hal.BufferBarrier{
		Buffer: b.raw,
		Usage:  hal.BufferUsageTransition{OldUsage: b.state, NewUsage: usage},
	})
	b.state = usage
}

// transitionMip records a barrier for one mip level and layer. The
// texture's tracked state is left to the caller.
func (e *encoder) transitionMip(t *Texture, mip, layer uint32, from, to gputypes.TextureUsage) {
	e.texBarriers = append(e.texBarriers, hal.TextureBarrier{
		Texture: t.raw,
		Range: hal.TextureRange{
			Aspect:          gputypes.TextureAspectAll,
			BaseMipLevel:    mip,
			MipLevelCount:   1,
			BaseArrayLayer:  layer,
			ArrayLayerCount: 1,
		},
		Usage: hal.TextureUsageTransition{OldUsage: from, NewUsage: to},
	})
}

func (e *encoder) flushBarriers() {
	if len(e.bufBarriers) > 0 {
		e.enc.TransitionBuffers(e.bufBarriers)
		e.bufBarriers = e.bufBarriers[:0]
	}
	if len(e.texBarriers) > 0 {
		e.enc.TransitionTextures(e.texBarriers)
		e.texBarriers = e.texBarriers[:0]
	}
}

// =============================================================================
// Copies
// =============================================================================

func (e *encoder) copyBuffer(src *Buffer, srcOff uint64, dst *Buffer, dstOff, size uint64) error {
	if srcOff%copyAlign != 0 || dstOff%copyAlign != 0 || size%copyAlign != 0 {
		return fmt.Errorf("%w: buffer copy of %d bytes at %d -> %d is not 4-byte aligned",
			driver.ErrUnsupported, size, srcOff, dstOff)
	}
	e.useBuffer(src, gputypes.BufferUsageCopySrc)
	e.useBuffer(dst, gputypes.BufferUsageCopyDst)
	e.flushBarriers()
	e.enc.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{{SrcOffset: srcOff, DstOffset: dstOff, Size: size}})
	return nil
}

// imageCopy returns the texture side of a buffer-texture copy. Origin Z is
// the depth slice of 3D textures and the array layer otherwise.
func imageCopy(t *Texture, mip, layer, x, y, z uint32) hal.ImageCopyTexture {
	if t.desc.Type != driver.TextureType3D {
		z = layer
	}
	aspect := gputypes.TextureAspectAll
	if t.desc.Format.IsDepthStencil() {
		aspect = gputypes.TextureAspectDepthOnly
	}
	return hal.ImageCopyTexture{
		Texture:  t.raw,
		MipLevel: mip,
		Origin:   hal.Origin3D{X: x, Y: y, Z: z},
		Aspect:   aspect,
	}
}

// bufferTextureCopy copies between a buffer and a texture region. Rows
// whose pitch is not 256-byte aligned are copied one block row at a time.
func (e *encoder) bufferTextureCopy(buf *Buffer, layout driver.ImageLayout, r driver.TextureRegion, upload bool) {
	t := asTexture(r.Texture)
	blk, _ := driver.Block(t.desc.Format)
	ppr := layout.PixelsPerRow
	if ppr == 0 {
		ppr = r.W
	}
	rpl := layout.RowsPerLayer
	if rpl == 0 {
		rpl = r.H
	}
	pitch := uint32(blk.RowPitch(ppr))
	rows := blk.Rows(rpl)
	depth := max(r.D, 1)
	if t.desc.Type != driver.TextureType3D {
		depth = 1
	}

	if upload {
		e.useBuffer(buf, gputypes.BufferUsageCopySrc)
		e.useTexture(t, gputypes.TextureUsageCopyDst)
	} else {
		e.useTexture(t, gputypes.TextureUsageCopySrc)
		e.useBuffer(buf, gputypes.BufferUsageCopyDst)
	}
	e.flushBarriers()

	var regions []hal.BufferTextureCopy
	if pitch%copyPitchAlign == 0 || (blk.Rows(r.H) <= 1 && depth == 1) {
		regions = append(regions, hal.BufferTextureCopy{
			BufferLayout: hal.ImageDataLayout{Offset: layout.Offset, BytesPerRow: pitch, RowsPerImage: rows * blk.Height},
			TextureBase:  imageCopy(t, r.MipLevel, r.Layer, r.X, r.Y, r.Z),
			Size:         hal.Extent3D{Width: r.W, Height: r.H, DepthOrArrayLayers: depth},
		})
	} else {
		slice := uint64(pitch) * uint64(rows)
		for z := range depth {
			for row := range blk.Rows(r.H) {
				h := min(blk.Height, r.H-row*blk.Height)
				regions = append(regions, hal.BufferTextureCopy{
					BufferLayout: hal.ImageDataLayout{
						Offset:      layout.Offset + uint64(z)*slice + uint64(row)*uint64(pitch),
						BytesPerRow: pitch,
					},
					TextureBase: imageCopy(t, r.MipLevel, r.Layer, r.X, r.Y+row*blk.Height, r.Z+z),
					Size:        hal.Extent3D{Width: r.W, Height: h, DepthOrArrayLayers: 1},
				})
			}
		}
	}
	if upload {
		e.enc.CopyBufferToTexture(buf.raw, t.raw, regions)
	} else {
		e.enc.CopyTextureToBuffer(t.raw, buf.raw, regions)
	}
}

func (e *encoder) copyTexture(c driver.CopyTextureToTexture) {
	src, dst := asTexture(c.Src.Texture), asTexture(c.Dst.Texture)
	e.useTexture(src, gputypes.TextureUsageCopySrc)
	e.useTexture(dst, gputypes.TextureUsageCopyDst)
	e.flushBarriers()
	e.enc.CopyTextureToTexture(src.raw, dst.raw, []hal.TextureCopy{{
		SrcBase: imageCopy(src, c.Src.MipLevel, c.Src.Layer, c.Src.X, c.Src.Y, c.Src.Z),
		DstBase: imageCopy(dst, c.Dst.MipLevel, c.Dst.Layer, c.Dst.X, c.Dst.Y, c.Dst.Z),
		Size:    hal.Extent3D{Width: c.W, Height: c.H, DepthOrArrayLayers: max(c.D, 1)},
	}})
}
