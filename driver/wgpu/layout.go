package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

// groupKind is what a bind group carries.
type groupKind uint8

const (
	groupResources groupKind = iota
	groupStorage
	groupUniforms
)

// counts are the resources a stage declares.
type counts struct {
	samplers        uint32
	storageTextures uint32
	storageBuffers  uint32
	uniforms        uint32

	// Compute only: writable bindings of group 1.
	rwTextures uint32
	rwBuffers  uint32
}

// group is one bind group of a pipeline layout.
type group struct {
	kind  groupKind
	stage int
	raw   hal.BindGroupLayout

	entries []gputypes.BindGroupLayoutEntry

	// empty is bound when the group has no entries.
	empty hal.BindGroup
	n     int
}

// Pipeline is a render or compute pipeline with its bind group layouts.
type Pipeline struct {
	d       *Device
	id      uint64
	label   string
	render  hal.RenderPipeline
	compute hal.ComputePipeline
	layout  hal.PipelineLayout
	groups  []group
	counts  [numStages]counts
}

// SetLabel renames the pipeline for debug output.
func (p *Pipeline) SetLabel(label string) { p.label = label }

// Destroy releases the pipeline, its layout and its group layouts.
func (p *Pipeline) Destroy() {
	p.d.caches.dropGroups(p.id)
	render, compute, layout, groups := p.render, p.compute, p.layout, p.groups
	p.d.deferDestroy(func() { p.d.destroyPipeline(render, compute, layout, groups) })
}

func (d *Device) destroyPipeline(render hal.RenderPipeline, compute hal.ComputePipeline, layout hal.PipelineLayout, groups []group) {
	if render != nil {
		d.dev.DestroyRenderPipeline(render)
	}
	if compute != nil {
		d.dev.DestroyComputePipeline(compute)
	}
	if layout != nil {
		d.dev.DestroyPipelineLayout(layout)
	}
	for _, g := range groups {
		if g.empty != nil {
			d.dev.DestroyBindGroup(g.empty)
		}
		if g.raw != nil {
			d.dev.DestroyBindGroupLayout(g.raw)
		}
	}
}

// CreateGraphicsPipeline creates a render pipeline laid out as vertex
// resources, vertex uniforms, fragment resources and fragment uniforms.
func (d *Device) CreateGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	vs, fs := asShader(desc.Vertex), asShader(desc.Fragment)
	p := &Pipeline{d: d, id: nextID(), label: desc.Label}
	p.counts[stageVertex] = shaderCounts(&desc.VertexDesc)
	p.counts[stageFragment] = shaderCounts(&desc.FragmentDesc)

	specs := []struct {
		kind    groupKind
		stage   int
		vis     gputypes.ShaderStage
		reflect reflection
	}{
		{groupResources, stageVertex, gputypes.ShaderStageVertex, vs.reflect},
		{groupUniforms, stageVertex, gputypes.ShaderStageVertex, vs.reflect},
		{groupResources, stageFragment, gputypes.ShaderStageFragment, fs.reflect},
		{groupUniforms, stageFragment, gputypes.ShaderStageFragment, fs.reflect},
	}
	for i, s := range specs {
		entries := groupEntries(s.kind, s.vis, p.counts[s.stage])
		mergeReflection(entries, s.reflect, uint32(i))
		if err := p.addGroup(s.kind, s.stage, entries); err != nil {
			d.destroyPipeline(nil, nil, nil, p.groups)
			return nil, err
		}
	}
	if err := p.createLayout(); err != nil {
		return nil, err
	}

	multisample := desc.Multisample
	if multisample.Count == 0 {
		multisample.Count = 1
	}
	if multisample.Mask == 0 {
		multisample.Mask = ^uint64(0)
	}
	raw, err := d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     vs.module,
			EntryPoint: vs.desc.Entrypoint,
			Buffers:    desc.VertexBuffers,
		},
		Primitive:    desc.Primitive,
		DepthStencil: depthStencilState(desc.DepthStencil),
		Multisample:  multisample,
		Fragment: &hal.FragmentState{
			Module:     fs.module,
			EntryPoint: fs.desc.Entrypoint,
			Targets:    desc.ColorTargets,
		},
	})
	if err != nil {
		d.destroyPipeline(nil, nil, p.layout, p.groups)
		return nil, d.fail("create graphics pipeline", err)
	}
	p.render = raw
	driver.Logger().Debug("wgpu: graphics pipeline created", "label", desc.Label, "groups", len(p.groups))
	return p, nil
}

// CreateComputePipeline compiles the compute shader and creates a pipeline
// laid out as read-only resources, read-write storage and uniforms.
func (d *Device) CreateComputePipeline(desc *driver.ComputePipelineDesc) (driver.Pipeline, error) {
	c, err := compileShader(d.cfg.backend, desc.Format, desc.Code, desc.Entrypoint, gputypes.ShaderStageCompute, d.cfg.debug)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create compute pipeline: %w", err)
	}
	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Label, Source: c.source})
	if err != nil {
		return nil, d.fail("create compute pipeline", err)
	}
	defer d.dev.DestroyShaderModule(module)

	p := &Pipeline{d: d, id: nextID(), label: desc.Label}
	p.counts[stageCompute] = counts{
		samplers:        desc.NumSamplers,
		storageTextures: desc.NumReadonlyStorageTextures,
		storageBuffers:  desc.NumReadonlyStorageBuffers,
		uniforms:        desc.NumUniformBuffers,
		rwTextures:      desc.NumReadWriteStorageTextures,
		rwBuffers:       desc.NumReadWriteStorageBuffers,
	}
	for i, kind := range []groupKind{groupResources, groupStorage, groupUniforms} {
		entries := groupEntries(kind, gputypes.ShaderStageCompute, p.counts[stageCompute])
		mergeReflection(entries, c.reflect, uint32(i))
		if err := p.addGroup(kind, stageCompute, entries); err != nil {
			d.destroyPipeline(nil, nil, nil, p.groups)
			return nil, err
		}
	}
	if err := p.createLayout(); err != nil {
		return nil, err
	}

	raw, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  p.layout,
		Compute: hal.ComputeState{Module: module, EntryPoint: desc.Entrypoint},
	})
	if err != nil {
		d.destroyPipeline(nil, nil, p.layout, p.groups)
		return nil, d.fail("create compute pipeline", err)
	}
	p.compute = raw
	driver.Logger().Debug("wgpu: compute pipeline created", "label", desc.Label,
		"threads", [3]uint32{desc.ThreadCountX, desc.ThreadCountY, desc.ThreadCountZ})
	return p, nil
}

func shaderCounts(desc *driver.ShaderDesc) counts {
	return counts{
		samplers:        desc.NumSamplers,
		storageTextures: desc.NumStorageTextures,
		storageBuffers:  desc.NumStorageBuffers,
		uniforms:        desc.NumUniformBuffers,
	}
}

func (p *Pipeline) addGroup(kind groupKind, stage int, entries []gputypes.BindGroupLayoutEntry) error {
	raw, err := p.d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: p.label, Entries: entries})
	if err != nil {
		return p.d.fail("create bind group layout", err)
	}
	g := group{kind: kind, stage: stage, raw: raw, entries: entries, n: len(entries)}
	if len(entries) == 0 {
		g.empty, err = p.d.dev.CreateBindGroup(&hal.BindGroupDescriptor{Label: p.label, Layout: raw})
		if err != nil {
			p.d.dev.DestroyBindGroupLayout(raw)
			return p.d.fail("create bind group", err)
		}
	}
	p.groups = append(p.groups, g)
	return nil
}

func (p *Pipeline) createLayout() error {
	layouts := make([]hal.BindGroupLayout, len(p.groups))
	for i, g := range p.groups {
		layouts[i] = g.raw
	}
	raw, err := p.d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: p.label, BindGroupLayouts: layouts})
	if err != nil {
		p.d.destroyPipeline(nil, nil, nil, p.groups)
		return p.d.fail("create pipeline layout", err)
	}
	p.layout = raw
	return nil
}

// groupEntries builds the default layout of one group. Sampler slot i takes
// bindings 2i and 2i+1; storage textures and then storage buffers follow.
func groupEntries(kind groupKind, vis gputypes.ShaderStage, c counts) []gputypes.BindGroupLayoutEntry {
	var out []gputypes.BindGroupLayoutEntry
	add := func(e gputypes.BindGroupLayoutEntry) {
		e.Binding = uint32(len(out))
		e.Visibility = vis
		out = append(out, e)
	}
	switch kind {
	case groupResources:
		for range c.samplers {
			add(gputypes.BindGroupLayoutEntry{Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}})
			add(gputypes.BindGroupLayoutEntry{Sampler: &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}})
		}
		for range c.storageTextures {
			add(gputypes.BindGroupLayoutEntry{StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadOnly,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			}})
		}
		for range c.storageBuffers {
			add(gputypes.BindGroupLayoutEntry{Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}})
		}
	case groupStorage:
		for range c.rwTextures {
			add(gputypes.BindGroupLayoutEntry{StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			}})
		}
		for range c.rwBuffers {
			add(gputypes.BindGroupLayoutEntry{Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}})
		}
	case groupUniforms:
		for range c.uniforms {
			add(gputypes.BindGroupLayoutEntry{Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}})
		}
	}
	return out
}

// mergeReflection replaces default entries with the reflected ones when the
// shader declares a binding of the same kind at the same slot.
func mergeReflection(entries []gputypes.BindGroupLayoutEntry, r reflection, group uint32) {
	for i := range entries {
		got, ok := r[slot{group, entries[i].Binding}]
		if !ok {
			continue
		}
		e := &entries[i]
		switch {
		case e.Texture != nil && got.Texture != nil:
			e.Texture = got.Texture
		case e.Sampler != nil && got.Sampler != nil:
			e.Sampler = got.Sampler
		case e.StorageTexture != nil && got.StorageTexture != nil:
			e.StorageTexture = got.StorageTexture
		case e.Buffer != nil && got.Buffer != nil:
			e.Buffer = got.Buffer
		}
	}
}
