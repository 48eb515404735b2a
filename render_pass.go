package gpucmd

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

// RenderPass records draws into a set of color and depth-stencil targets.
// It is closed by End; calls after End fail with ErrPassClosed.
type RenderPass struct {
	cb     *CommandBuffer
	closed bool

	width, height uint32
	colorFormats  []gputypes.TextureFormat
	depthFormat   gputypes.TextureFormat // Undefined without a depth target
	samples       uint32

	pipeline   *graphicsPipeline
	indexBound bool
}

type resolvedColor struct {
	tex, resolve *texture
	info         ColorTargetInfo
}

// BeginRenderPass opens a render pass. The viewport and scissor start out
// covering the first target. No other pass may be open.
//
//nolint:gocyclo,cyclop,funlen // one rule per target property
func (cb *CommandBuffer) BeginRenderPass(colors []ColorTargetInfo, depth *DepthStencilTargetInfo) (*RenderPass, error) {
	var p *RenderPass
	err := cb.do("begin render pass", func() error {
		d := cb.d
		if err := cb.noPassLocked(); err != nil {
			return err
		}
		if len(colors) > MaxColorTargets {
			return fmt.Errorf("%w: %d color targets", ErrInvalidDescriptor, len(colors))
		}
		if len(colors) == 0 && depth == nil {
			return fmt.Errorf("%w: no targets", ErrInvalidDescriptor)
		}

		var width, height, samples uint32
		extent := func(t *texture, level uint32) error {
			w, h := driver.MipExtent(t.info.Width, level), driver.MipExtent(t.info.Height, level)
			if width == 0 {
				width, height, samples = w, h, t.info.SampleCount
				return nil
			}
			if t.info.SampleCount != samples {
				return fmt.Errorf("%w: %d samples, first target has %d", ErrInvalidDescriptor, t.info.SampleCount, samples)
			}
			if w != width || h != height {
				return fmt.Errorf("%w: target %dx%d differs from %dx%d", ErrInvalidDescriptor, w, h, width, height)
			}
			return nil
		}

		resolved := make([]resolvedColor, len(colors))
		for i, c := range colors {
			t, err := d.texture(c.Texture, cb)
			if err != nil {
				return fmt.Errorf("color target %d: %w", i, err)
			}
			if !t.info.Usage.Contains(TextureUsageColorTarget) {
				return fmt.Errorf("color target %d: %w: has %v", i, ErrMissingUsage, t.info.Usage)
			}
			if err := checkSubresource(t, c.MipLevel, c.LayerOrDepthPlane); err != nil {
				return fmt.Errorf("color target %d: %w", i, err)
			}
			if c.LoadOp == LoadOpLoad && c.Cycle {
				return fmt.Errorf("color target %d: %w: cycle with LoadOpLoad", i, ErrInvalidDescriptor)
			}
			if err := extent(t, c.MipLevel); err != nil {
				return fmt.Errorf("color target %d: %w", i, err)
			}
			resolved[i] = resolvedColor{tex: t, info: c}

			if !c.StoreOp.Resolves() {
				continue
			}
			if c.ResolveTexture.IsNull() {
				return fmt.Errorf("color target %d: %w: %v without resolve texture", i, ErrInvalidDescriptor, c.StoreOp)
			}
			if t.info.SampleCount == 1 {
				return fmt.Errorf("color target %d: %w: resolving a single-sampled texture", i, ErrInvalidDescriptor)
			}
			r, err := d.texture(c.ResolveTexture, cb)
			if err != nil {
				return fmt.Errorf("color target %d resolve: %w", i, err)
			}
			switch {
			case r.info.SampleCount != 1:
				return fmt.Errorf("color target %d resolve: %w: multisampled", i, ErrInvalidDescriptor)
			case r.info.Format != t.info.Format:
				return fmt.Errorf("color target %d resolve: %w: format %v, target %v", i, ErrInvalidDescriptor, r.info.Format, t.info.Format)
			case !r.info.Usage.Contains(TextureUsageColorTarget):
				return fmt.Errorf("color target %d resolve: %w: has %v", i, ErrMissingUsage, r.info.Usage)
			}
			if err := checkSubresource(r, c.ResolveMipLevel, c.ResolveLayer); err != nil {
				return fmt.Errorf("color target %d resolve: %w", i, err)
			}
			if driver.MipExtent(r.info.Width, c.ResolveMipLevel) != width ||
				driver.MipExtent(r.info.Height, c.ResolveMipLevel) != height {
				return fmt.Errorf("color target %d resolve: %w: extent differs", i, ErrInvalidDescriptor)
			}
			resolved[i].resolve = r
		}

		var dt *texture
		if depth != nil {
			t, err := d.texture(depth.Texture, cb)
			if err != nil {
				return fmt.Errorf("depth-stencil target: %w", err)
			}
			if !t.info.Usage.Contains(TextureUsageDepthStencilTarget) {
				return fmt.Errorf("depth-stencil target: %w: has %v", ErrMissingUsage, t.info.Usage)
			}
			if err := checkSubresource(t, depth.MipLevel, depth.Layer); err != nil {
				return fmt.Errorf("depth-stencil target: %w", err)
			}
			if depth.Cycle && (depth.LoadOp == LoadOpLoad || depth.StencilLoadOp == LoadOpLoad) {
				return fmt.Errorf("depth-stencil target: %w: cycle with LoadOpLoad", ErrInvalidDescriptor)
			}
			if depth.StoreOp.Resolves() || depth.StencilStoreOp.Resolves() {
				return fmt.Errorf("depth-stencil target: %w: depth resolve", ErrInvalidDescriptor)
			}
			if err := extent(t, depth.MipLevel); err != nil {
				return fmt.Errorf("depth-stencil target: %w", err)
			}
			dt = t
		}

		d.reapLocked()
		for _, rc := range resolved {
			if rc.info.Cycle {
				if err := d.cycleTextureLocked(rc.tex); err != nil {
					return err
				}
			}
			if rc.resolve != nil && rc.info.CycleResolveTexture {
				if err := d.cycleTextureLocked(rc.resolve); err != nil {
					return err
				}
			}
		}
		if dt != nil && depth.Cycle {
			if err := d.cycleTextureLocked(dt); err != nil {
				return err
			}
		}

		begin := driver.BeginRenderPass{Colors: make([]driver.ColorAttachment, len(resolved))}
		for i, rc := range resolved {
			a := rc.tex.ring.current()
			cb.use(a)
			att := driver.ColorAttachment{
				Texture:  a.res,
				MipLevel: rc.info.MipLevel,
				Layer:    rc.info.LayerOrDepthPlane,
				Load:     rc.info.LoadOp,
				Store:    rc.info.StoreOp,
				Clear:    rc.info.ClearColor,
			}
			if rc.resolve != nil {
				ra := rc.resolve.ring.current()
				cb.use(ra)
				att.Resolve = ra.res
				att.ResolveMip = rc.info.ResolveMipLevel
				att.ResolveLayer = rc.info.ResolveLayer
			}
			begin.Colors[i] = att
		}
		if dt != nil {
			a := dt.ring.current()
			cb.use(a)
			begin.DepthStencil = &driver.DepthStencilAttachment{
				Texture:      a.res,
				MipLevel:     depth.MipLevel,
				Layer:        depth.Layer,
				DepthLoad:    depth.LoadOp,
				DepthStore:   depth.StoreOp,
				ClearDepth:   depth.ClearDepth,
				StencilLoad:  depth.StencilLoadOp,
				StencilStore: depth.StencilStoreOp,
				ClearStencil: depth.ClearStencil,
			}
		}

		cb.emit(begin)
		cb.emit(driver.SetViewport{Viewport: Viewport{W: float32(width), H: float32(height), MaxDepth: 1}})
		cb.emit(driver.SetScissor{Rect: Rect{W: width, H: height}})

		p = &RenderPass{cb: cb, width: width, height: height, samples: samples,
			colorFormats: make([]gputypes.TextureFormat, len(resolved))}
		for i, rc := range resolved {
			p.colorFormats[i] = rc.tex.info.Format
		}
		if dt != nil {
			p.depthFormat = dt.info.Format
		}
		cb.beginPassLocked(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RenderPass) do(op string, fn func() error) error {
	return p.cb.do(op, func() error {
		if p.closed {
			return ErrPassClosed
		}
		return fn()
	})
}

// Width returns the width of the pass targets in texels.
func (p *RenderPass) Width() uint32 { return p.width }

// Height returns the height of the pass targets in texels.
func (p *RenderPass) Height() uint32 { return p.height }

// End closes the pass and clears its bound state. Ending a closed pass does
// nothing.
func (p *RenderPass) End() error {
	if p.closed {
		return nil
	}
	return p.do("end render pass", func() error {
		p.closed = true
		p.pipeline = nil
		p.indexBound = false
		return p.cb.endPassLocked(driver.EndRenderPass{})
	})
}

// =============================================================================
// State
// =============================================================================

// BindGraphicsPipeline binds pipeline for subsequent draws. Its targets must
// match the pass.
func (p *RenderPass) BindGraphicsPipeline(pipeline GraphicsPipeline) error {
	return p.do("bind graphics pipeline", func() error {
		gp, ok := p.cb.d.graphicsPipelines.Get(pipeline.id)
		if !ok {
			return fmt.Errorf("%w: graphics pipeline", ErrInvalidHandle)
		}
		if err := p.compatible(&gp.info); err != nil {
			return fmt.Errorf("pipeline %q: %w", gp.info.Name, err)
		}
		p.cb.use(gp.alloc)
		p.pipeline = gp
		p.cb.emit(driver.BindGraphicsPipeline{Pipeline: gp.alloc.res})
		return nil
	})
}

// compatible reports whether a pipeline's target formats and sample count
// match the pass targets.
func (p *RenderPass) compatible(info *GraphicsPipelineCreateInfo) error {
	if len(info.ColorTargets) != len(p.colorFormats) {
		return fmt.Errorf("%w: %d color targets, pass has %d", ErrInvalidDescriptor, len(info.ColorTargets), len(p.colorFormats))
	}
	for i, c := range info.ColorTargets {
		if c.Format != p.colorFormats[i] {
			return fmt.Errorf("%w: color target %d is %v, pass has %v", ErrInvalidDescriptor, i, c.Format, p.colorFormats[i])
		}
	}
	depth := gputypes.TextureFormatUndefined
	if info.DepthStencil != nil {
		depth = info.DepthStencil.Format
	}
	if depth != p.depthFormat {
		return fmt.Errorf("%w: depth-stencil format %v, pass has %v", ErrInvalidDescriptor, depth, p.depthFormat)
	}
	if samples := max(info.Multisample.Count, 1); samples != p.samples {
		return fmt.Errorf("%w: %d samples, pass has %d", ErrInvalidDescriptor, samples, p.samples)
	}
	return nil
}

// SetViewport sets the viewport.
func (p *RenderPass) SetViewport(v Viewport) error {
	return p.do("set viewport", func() error {
		if v.W <= 0 || v.H <= 0 || v.MinDepth < 0 || v.MaxDepth > 1 || v.MinDepth > v.MaxDepth {
			return fmt.Errorf("%w: viewport %+v", ErrInvalidDescriptor, v)
		}
		p.cb.emit(driver.SetViewport{Viewport: v})
		return nil
	})
}

// SetScissor sets the scissor rectangle. It must lie inside the targets.
func (p *RenderPass) SetScissor(r Rect) error {
	return p.do("set scissor", func() error {
		if uint64(r.X)+uint64(r.W) > uint64(p.width) || uint64(r.Y)+uint64(r.H) > uint64(p.height) {
			return fmt.Errorf("%w: scissor %+v in %dx%d", ErrOutOfBounds, r, p.width, p.height)
		}
		p.cb.emit(driver.SetScissor{Rect: r})
		return nil
	})
}

// SetBlendConstants sets the constant color used by constant blend factors.
func (p *RenderPass) SetBlendConstants(c gputypes.Color) error {
	return p.do("set blend constants", func() error {
		p.cb.emit(driver.SetBlendConstants{Color: c})
		return nil
	})
}

// SetStencilReference sets the stencil reference value.
func (p *RenderPass) SetStencilReference(ref uint8) error {
	return p.do("set stencil reference", func() error {
		p.cb.emit(driver.SetStencilReference{Reference: ref})
		return nil
	})
}

// =============================================================================
// Bindings
// =============================================================================

func checkSlots(first uint32, n int, limit uint32) error {
	//nolint:gosec // G115: n is a slice length
	if n > int(limit) || first > limit-uint32(n) {
		return fmt.Errorf("%w: slots %d..%d, limit %d", ErrSlotOutOfRange, first, int(first)+n-1, limit)
	}
	return nil
}

// BindVertexBuffers binds buffers to vertex buffer slots starting at first.
// Each buffer needs Vertex usage.
func (p *RenderPass) BindVertexBuffers(first uint32, bindings []BufferBinding) error {
	return p.do("bind vertex buffers", func() error {
		if err := checkSlots(first, len(bindings), MaxVertexBuffers); err != nil {
			return err
		}
		out := make([]driver.BufferBinding, len(bindings))
		for i, b := range bindings {
			bb, err := p.cb.bindBuffer(b, BufferUsageVertex)
			if err != nil {
				return fmt.Errorf("slot %d: %w", int(first)+i, err)
			}
			out[i] = bb
		}
		p.cb.emit(driver.BindVertexBuffers{First: first, Bindings: out})
		return nil
	})
}

// BindIndexBuffer binds the index buffer. It needs Index usage and an
// offset aligned to the element size.
func (p *RenderPass) BindIndexBuffer(binding BufferBinding, size IndexElementSize) error {
	return p.do("bind index buffer", func() error {
		if err := checkAligned(binding.Offset, size.Bytes(), "index buffer offset"); err != nil {
			return err
		}
		bb, err := p.cb.bindBuffer(binding, BufferUsageIndex)
		if err != nil {
			return err
		}
		p.indexBound = true
		p.cb.emit(driver.BindIndexBuffer{Binding: bb, Format: size.lower()})
		return nil
	})
}

// bindBuffer resolves a buffer binding that needs usage.
func (cb *CommandBuffer) bindBuffer(b BufferBinding, usage BufferUsage) (driver.BufferBinding, error) {
	buf, err := cb.d.buffer(b.Buffer)
	if err != nil {
		return driver.BufferBinding{}, err
	}
	if !buf.info.Usage.Contains(usage) {
		return driver.BufferBinding{}, fmt.Errorf("%w: need %v, have %v", ErrMissingUsage, usage, buf.info.Usage)
	}
	if b.Offset >= buf.info.Size {
		return driver.BufferBinding{}, fmt.Errorf("%w: offset %d of %d", ErrOutOfBounds, b.Offset, buf.info.Size)
	}
	a := buf.ring.current()
	cb.use(a)
	return driver.BufferBinding{Buffer: a.res, Offset: b.Offset}, nil
}

// BindVertexSamplers binds texture-sampler pairs for the vertex stage.
func (p *RenderPass) BindVertexSamplers(first uint32, bindings []TextureSamplerBinding) error {
	return p.do("bind vertex samplers", func() error {
		return p.cb.bindSamplers(gputypes.ShaderStageVertex, first, bindings, nil)
	})
}

// BindFragmentSamplers binds texture-sampler pairs for the fragment stage.
func (p *RenderPass) BindFragmentSamplers(first uint32, bindings []TextureSamplerBinding) error {
	return p.do("bind fragment samplers", func() error {
		return p.cb.bindSamplers(gputypes.ShaderStageFragment, first, bindings, nil)
	})
}

// BindVertexStorageTextures binds read-only storage textures for the vertex
// stage. Each needs GraphicsStorageRead usage.
func (p *RenderPass) BindVertexStorageTextures(first uint32, textures []Texture) error {
	return p.do("bind vertex storage textures", func() error {
		return p.cb.bindStorageTextures(gputypes.ShaderStageVertex, first, textures, TextureUsageGraphicsStorageRead, nil)
	})
}

// BindFragmentStorageTextures binds read-only storage textures for the
// fragment stage.
func (p *RenderPass) BindFragmentStorageTextures(first uint32, textures []Texture) error {
	return p.do("bind fragment storage textures", func() error {
		return p.cb.bindStorageTextures(gputypes.ShaderStageFragment, first, textures, TextureUsageGraphicsStorageRead, nil)
	})
}

// BindVertexStorageBuffers binds read-only storage buffers for the vertex
// stage. Each needs GraphicsStorageRead usage.
func (p *RenderPass) BindVertexStorageBuffers(first uint32, buffers []Buffer) error {
	return p.do("bind vertex storage buffers", func() error {
		return p.cb.bindStorageBuffers(gputypes.ShaderStageVertex, first, buffers, BufferUsageGraphicsStorageRead, nil)
	})
}

// BindFragmentStorageBuffers binds read-only storage buffers for the
// fragment stage.
func (p *RenderPass) BindFragmentStorageBuffers(first uint32, buffers []Buffer) error {
	return p.do("bind fragment storage buffers", func() error {
		return p.cb.bindStorageBuffers(gputypes.ShaderStageFragment, first, buffers, BufferUsageGraphicsStorageRead, nil)
	})
}

// =============================================================================
// Draws
// =============================================================================

// DrawPrimitives draws numVertices vertices of numInstances instances.
func (p *RenderPass) DrawPrimitives(numVertices, numInstances, firstVertex, firstInstance uint32) error {
	return p.do("draw primitives", func() error {
		if p.pipeline == nil {
			return ErrNoPipeline
		}
		p.cb.emit(driver.Draw{Args: driver.DrawArgs{
			NumVertices:   numVertices,
			NumInstances:  numInstances,
			FirstVertex:   firstVertex,
			FirstInstance: firstInstance,
		}})
		return nil
	})
}

// DrawIndexedPrimitives draws numIndices indices from the bound index
// buffer. vertexOffset is added to each index.
func (p *RenderPass) DrawIndexedPrimitives(numIndices, numInstances, firstIndex uint32, vertexOffset int32, firstInstance uint32) error {
	return p.do("draw indexed primitives", func() error {
		if p.pipeline == nil {
			return ErrNoPipeline
		}
		if !p.indexBound {
			return ErrNoIndexBuffer
		}
		p.cb.emit(driver.DrawIndexed{Args: driver.DrawIndexedArgs{
			NumIndices:    numIndices,
			NumInstances:  numInstances,
			FirstIndex:    firstIndex,
			VertexOffset:  vertexOffset,
			FirstInstance: firstInstance,
		}})
		return nil
	})
}

// DrawPrimitivesIndirect issues drawCount draws whose arguments are
// IndirectDrawCommand records packed in buffer from offset. A zero
// drawCount records nothing.
func (p *RenderPass) DrawPrimitivesIndirect(buffer Buffer, offset uint64, drawCount uint32) error {
	return p.do("draw primitives indirect", func() error {
		return p.drawIndirect(buffer, offset, drawCount, false)
	})
}

// DrawIndexedPrimitivesIndirect issues drawCount indexed draws whose
// arguments are IndirectIndexedDrawCommand records packed in buffer from
// offset.
func (p *RenderPass) DrawIndexedPrimitivesIndirect(buffer Buffer, offset uint64, drawCount uint32) error {
	return p.do("draw indexed primitives indirect", func() error {
		return p.drawIndirect(buffer, offset, drawCount, true)
	})
}

func (p *RenderPass) drawIndirect(buffer Buffer, offset uint64, count uint32, indexed bool) error {
	if p.pipeline == nil {
		return ErrNoPipeline
	}
	stride := uint64(IndirectDrawCommandSize)
	if indexed {
		if !p.indexBound {
			return ErrNoIndexBuffer
		}
		stride = IndirectIndexedDrawCommandSize
	}
	if count == 0 {
		_, err := p.cb.d.buffer(buffer)
		return err
	}
	a, err := p.cb.indirectBuffer(buffer, offset, stride*uint64(count))
	if err != nil {
		return err
	}
	p.cb.emit(driver.DrawIndirect{Buffer: a, Offset: offset, Count: count, Indexed: indexed})
	return nil
}

// indirectBuffer resolves an indirect argument buffer holding size bytes
// at offset.
func (cb *CommandBuffer) indirectBuffer(buffer Buffer, offset, size uint64) (driver.Buffer, error) {
	b, err := cb.d.buffer(buffer)
	if err != nil {
		return nil, err
	}
	if !b.info.Usage.Contains(BufferUsageIndirect) {
		return nil, fmt.Errorf("%w: need Indirect, have %v", ErrMissingUsage, b.info.Usage)
	}
	if err := checkAligned(offset, 4, "indirect offset"); err != nil {
		return nil, err
	}
	if err := checkRange(offset, size, b.info.Size); err != nil {
		return nil, err
	}
	a := b.ring.current()
	cb.use(a)
	return a.res, nil
}
