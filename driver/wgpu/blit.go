package wgpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

//go:embed shaders/blit.wgsl
var blitShaderSource string

// blitter draws scaled texture copies. It serves Blit and GenerateMipmaps
// and is only used while Device.submitMu is held.
type blitter struct {
	d  *Device
	id uint64

	ready     bool
	module    hal.ShaderModule
	resources hal.BindGroupLayout
	uniforms  hal.BindGroupLayout
	layout    hal.PipelineLayout
	pipelines map[gputypes.TextureFormat]hal.RenderPipeline

	// samplers are nearest and linear, clamped to edge.
	samplers [2]*Sampler
}

func newBlitter(d *Device) *blitter {
	return &blitter{d: d, id: nextID(), pipelines: make(map[gputypes.TextureFormat]hal.RenderPipeline)}
}

// blitOp is one scaled copy between 2D subresources.
type blitOp struct {
	src, dst         *Texture
	srcMip, srcLayer uint32
	dstMip, dstLayer uint32
	srcRect, dstRect driver.Rect
	load             driver.LoadOp
	clear            gputypes.Color
	flip             driver.FlipMode
	filter           gputypes.FilterMode
}

func (b *blitter) init() error {
	if b.ready {
		return nil
	}
	defer func() {
		if !b.ready {
			b.destroy()
		}
	}()
	d := b.d
	c, err := compileShader(d.cfg.backend, driver.ShaderFormatWGSL, []byte(blitShaderSource), "vs_main", gputypes.ShaderStageVertex, d.cfg.debug)
	if err != nil {
		return fmt.Errorf("blit shader: %w", err)
	}
	if b.module, err = d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: "blit", Source: c.source}); err != nil {
		return fmt.Errorf("blit shader: %w", err)
	}
	b.resources, err = d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "blit resources",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageFragment, Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}},
			{Binding: 1, Visibility: gputypes.ShaderStageFragment, Sampler: &gputypes.SamplerBindingLayout{
				Type: gputypes.SamplerBindingTypeFiltering,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("blit layout: %w", err)
	}
	b.uniforms, err = d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "blit region",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageVertex, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeUniform,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("blit layout: %w", err)
	}
	b.layout, err = d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "blit",
		BindGroupLayouts: []hal.BindGroupLayout{b.resources, b.uniforms},
	})
	if err != nil {
		return fmt.Errorf("blit layout: %w", err)
	}
	for i, f := range []gputypes.FilterMode{gputypes.FilterModeNearest, gputypes.FilterModeLinear} {
		raw, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
			Label:        "blit",
			AddressModeU: gputypes.AddressModeClampToEdge,
			AddressModeV: gputypes.AddressModeClampToEdge,
			AddressModeW: gputypes.AddressModeClampToEdge,
			MagFilter:    f,
			MinFilter:    f,
			MipmapFilter: gputypes.FilterModeNearest,
			LodMaxClamp:  32,
			Anisotropy:   1,
		})
		if err != nil {
			return fmt.Errorf("blit sampler: %w", err)
		}
		b.samplers[i] = &Sampler{d: d, id: nextID(), raw: raw}
	}
	b.ready = true
	return nil
}

func (b *blitter) pipeline(format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	if p, ok := b.pipelines[format]; ok {
		return p, nil
	}
	p, err := b.d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:     "blit",
		Layout:    b.layout,
		Vertex:    hal.VertexState{Module: b.module, EntryPoint: "vs_main"},
		Primitive: gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  ^uint64(0),
		},
		Fragment: &hal.FragmentState{
			Module:     b.module,
			EntryPoint: "fs_main",
			Targets:    []gputypes.ColorTargetState{{Format: format, WriteMask: gputypes.ColorWriteMaskAll}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("blit pipeline %v: %w", format, err)
	}
	b.pipelines[format] = p
	return p, nil
}

func blittable(t *Texture) error {
	switch {
	case t.desc.Type == driver.TextureType3D:
		return fmt.Errorf("%w: blit of a 3D texture", driver.ErrUnsupported)
	case t.desc.Format.IsDepthStencil(), driver.IsCompressed(t.desc.Format):
		return fmt.Errorf("%w: blit of %v", driver.ErrUnsupported, t.desc.Format)
	case t.desc.SampleCount > 1:
		return fmt.Errorf("%w: blit of a multisampled texture", driver.ErrUnsupported)
	}
	return nil
}

// blit records a Blit command.
func (b *blitter) blit(e *encoder, c driver.Blit) error {
	src, dst := asTexture(c.Src.Texture), asTexture(c.Dst.Texture)
	if err := blittable(src); err != nil {
		return err
	}
	if err := blittable(dst); err != nil {
		return err
	}
	op := blitOp{
		src: src, srcMip: c.Src.MipLevel, srcLayer: c.Src.LayerOrDepthPlane,
		dst: dst, dstMip: c.Dst.MipLevel, dstLayer: c.Dst.LayerOrDepthPlane,
		srcRect: driver.Rect{X: c.Src.X, Y: c.Src.Y, W: c.Src.W, H: c.Src.H},
		dstRect: driver.Rect{X: c.Dst.X, Y: c.Dst.Y, W: c.Dst.W, H: c.Dst.H},
		load:    c.Load, clear: c.Clear, flip: c.Flip, filter: c.Filter,
	}

	if src != dst {
		e.useTexture(src, gputypes.TextureUsageTextureBinding)
		e.useTexture(dst, gputypes.TextureUsageRenderAttachment)
		e.flushBarriers()
		return b.draw(e, op)
	}

	// One texture, two subresources: only the source level leaves the
	// attachment state.
	e.useTexture(src, gputypes.TextureUsageRenderAttachment)
	e.transitionMip(src, op.srcMip, op.srcLayer, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageTextureBinding)
	e.flushBarriers()
	if err := b.draw(e, op); err != nil {
		return err
	}
	e.transitionMip(src, op.srcMip, op.srcLayer, gputypes.TextureUsageTextureBinding, gputypes.TextureUsageRenderAttachment)
	e.flushBarriers()
	return nil
}

// generateMipmaps fills every level of every layer from the level above.
func (b *blitter) generateMipmaps(e *encoder, t *Texture) error {
	levels := t.desc.MipLevels
	if levels <= 1 {
		return nil
	}
	if err := blittable(t); err != nil {
		return err
	}
	need := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	if !t.usage.Contains(need) {
		return fmt.Errorf("%w: mipmap generation for %v", driver.ErrUnsupported, t.desc.Format)
	}

	e.useTexture(t, gputypes.TextureUsageRenderAttachment)
	e.flushBarriers()
	for layer := range t.desc.Layers(0) {
		for level := uint32(1); level < levels; level++ {
			e.transitionMip(t, level-1, layer, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageTextureBinding)
			e.flushBarriers()
			sw, sh := driver.MipExtent(t.desc.Width, level-1), driver.MipExtent(t.desc.Height, level-1)
			dw, dh := driver.MipExtent(t.desc.Width, level), driver.MipExtent(t.desc.Height, level)
			err := b.draw(e, blitOp{
				src: t, srcMip: level - 1, srcLayer: layer,
				dst: t, dstMip: level, dstLayer: layer,
				srcRect: driver.Rect{W: sw, H: sh},
				dstRect: driver.Rect{W: dw, H: dh},
				load:    driver.LoadOpDontCare,
				filter:  gputypes.FilterModeLinear,
			})
			if err != nil {
				return err
			}
		}
		e.transitionMip(t, levels-1, layer, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageTextureBinding)
	}
	e.flushBarriers()
	t.state = gputypes.TextureUsageTextureBinding
	return nil
}

// draw renders one blit pass. Barriers must already be recorded.
func (b *blitter) draw(e *encoder, op blitOp) error {
	if err := b.init(); err != nil {
		return err
	}
	pipeline, err := b.pipeline(op.dst.desc.Format)
	if err != nil {
		return err
	}
	srcView, err := e.d.caches.view(op.src, op.srcMip, op.srcLayer, gputypes.TextureViewDimension2D, false)
	if err != nil {
		return err
	}
	dstView, err := e.d.caches.view(op.dst, op.dstMip, op.dstLayer, gputypes.TextureViewDimension2D, false)
	if err != nil {
		return err
	}

	smp := b.samplers[0]
	if op.filter == gputypes.FilterModeLinear {
		smp = b.samplers[1]
	}
	resources, err := e.d.caches.group(
		groupKey(b.id, 0, []uint64{op.src.id, uint64(op.srcMip), uint64(op.srcLayer), smp.id}),
		[]uint64{op.src.id, smp.id},
		&hal.BindGroupDescriptor{
			Label:  "blit",
			Layout: b.resources,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: srcView.NativeHandle()}},
				{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: smp.raw.NativeHandle()}},
			},
		})
	if err != nil {
		return err
	}

	r := e.allocUniform(regionUniform(op))
	region, err := e.d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "blit region",
		Layout: b.uniforms,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: e.arena.NativeHandle(), Offset: r.offset, Size: r.size}},
		},
	})
	if err != nil {
		return fmt.Errorf("create blit region group: %w", err)
	}
	e.garbage = append(e.garbage, func() { e.d.dev.DestroyBindGroup(region) })

	rp := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: e.label(),
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       dstView,
			LoadOp:     loadOp(op.load),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: op.clear,
		}},
	})
	rp.SetPipeline(pipeline)
	rp.SetViewport(float32(op.dstRect.X), float32(op.dstRect.Y), float32(op.dstRect.W), float32(op.dstRect.H), 0, 1)
	rp.SetBindGroup(0, resources, nil)
	rp.SetBindGroup(1, region, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	return nil
}

// regionUniform maps the destination onto the source rectangle in UV
// space. Flips negate the scale.
func regionUniform(op blitOp) []byte {
	sw := float32(driver.MipExtent(op.src.desc.Width, op.srcMip))
	sh := float32(driver.MipExtent(op.src.desc.Height, op.srcMip))
	ox, oy := float32(op.srcRect.X)/sw, float32(op.srcRect.Y)/sh
	kx, ky := float32(op.srcRect.W)/sw, float32(op.srcRect.H)/sh
	if op.flip&driver.FlipHorizontal != 0 {
		ox, kx = ox+kx, -kx
	}
	if op.flip&driver.FlipVertical != 0 {
		oy, ky = oy+ky, -ky
	}
	buf := make([]byte, 0, 16)
	for _, v := range []float32{ox, oy, kx, ky} {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func (b *blitter) destroy() {
	d := b.d
	for _, p := range b.pipelines {
		d.dev.DestroyRenderPipeline(p)
	}
	clear(b.pipelines)
	for _, s := range b.samplers {
		if s != nil {
			d.dev.DestroySampler(s.raw)
		}
	}
	if b.layout != nil {
		d.dev.DestroyPipelineLayout(b.layout)
	}
	if b.uniforms != nil {
		d.dev.DestroyBindGroupLayout(b.uniforms)
	}
	if b.resources != nil {
		d.dev.DestroyBindGroupLayout(b.resources)
	}
	if b.module != nil {
		d.dev.DestroyShaderModule(b.module)
	}
	b.ready = false
}
