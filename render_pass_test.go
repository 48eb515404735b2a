package gpucmd

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpucmd/driver/soft"
)

func TestRenderPass_ClearAndDraw(t *testing.T) {
	d, sd := newTestDevice(t)
	tex := colorTarget(t, d)
	p := newGraphicsPipeline(t, d, "triangle")

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{
		Texture:    tex,
		LoadOp:     LoadOpClear,
		StoreOp:    StoreOpStore,
		ClearColor: gputypes.Color{R: 1, A: 1},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), rp.Width())
	assert.Equal(t, uint32(16), rp.Height())

	require.NoError(t, rp.BindGraphicsPipeline(p))
	require.NoError(t, rp.DrawPrimitives(3, 1, 0, 0))
	require.NoError(t, rp.End())

	f, err := cb.SubmitAndAcquireFence()
	require.NoError(t, err)
	require.NoError(t, d.WaitForFences(testContext(t), true, f))
	signaled, err := d.QueryFence(f)
	require.NoError(t, err)
	assert.True(t, signaled)
	require.NoError(t, d.ReleaseFence(f))

	trace := sd.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, soft.TraceDraw, trace[0].Kind)
	assert.Equal(t, "triangle", trace[0].Pipeline)
	assert.Equal(t, IndirectDrawCommand{NumVertices: 3, NumInstances: 1}, trace[0].Draw)

	assert.Equal(t, solid(16*16, 255, 0, 0, 255), readTexture(t, d, tex, 0, 16, 16))
}

func TestRenderPass_DrawRequiresState(t *testing.T) {
	d, _ := newTestDevice(t)
	tex := colorTarget(t, d)
	p := newGraphicsPipeline(t, d, "tri")
	ib := newBuffer(t, d, BufferUsageIndex, 64)
	args := newBuffer(t, d, BufferUsageIndirect, 64)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, rp.DrawPrimitives(3, 1, 0, 0), ErrNoPipeline)
	assert.ErrorIs(t, rp.DrawIndexedPrimitives(3, 1, 0, 0, 0), ErrNoPipeline)
	assert.ErrorIs(t, rp.DrawPrimitivesIndirect(args, 0, 1), ErrNoPipeline)
	assert.ErrorIs(t, rp.DrawIndexedPrimitivesIndirect(args, 0, 1), ErrNoPipeline)

	require.NoError(t, rp.BindGraphicsPipeline(p))
	assert.ErrorIs(t, rp.DrawIndexedPrimitives(3, 1, 0, 0, 0), ErrNoIndexBuffer)
	assert.ErrorIs(t, rp.DrawIndexedPrimitivesIndirect(args, 0, 1), ErrNoIndexBuffer)

	require.NoError(t, rp.BindIndexBuffer(BufferBinding{Buffer: ib}, IndexElementSize16Bit))
	require.NoError(t, rp.DrawIndexedPrimitives(3, 1, 0, -1, 0))
	require.NoError(t, rp.End())

	// Bound state does not outlive the pass.
	rp, err = cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpLoad}}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, rp.DrawPrimitives(3, 1, 0, 0), ErrNoPipeline)
	require.NoError(t, rp.End())
	submitAndWait(t, d, cb)
}

func TestRenderPass_IndirectDraws(t *testing.T) {
	d, sd := newTestDevice(t)
	tex := colorTarget(t, d)
	p := newGraphicsPipeline(t, d, "indirect")

	draws := []IndirectDrawCommand{
		{NumVertices: 3, NumInstances: 1},
		{NumVertices: 6, NumInstances: 2, FirstVertex: 3},
		{NumVertices: 9, NumInstances: 1, FirstVertex: 9, FirstInstance: 4},
	}
	indexed := []IndirectIndexedDrawCommand{
		{NumIndices: 6, NumInstances: 1, FirstIndex: 0, VertexOffset: -2, FirstInstance: 0},
		{NumIndices: 3, NumInstances: 5, FirstIndex: 6, VertexOffset: 7, FirstInstance: 1},
	}

	// A 4-byte pad in front checks that the offset is honored.
	raw := make([]byte, 4)
	for _, c := range draws {
		raw, _ = c.AppendBinary(raw)
	}
	indexedAt := uint64(len(raw))
	for _, c := range indexed {
		raw, _ = c.AppendBinary(raw)
	}
	require.Len(t, raw, 4+3*IndirectDrawCommandSize+2*IndirectIndexedDrawCommandSize)

	args := newBuffer(t, d, BufferUsageIndirect, uint64(len(raw)))
	writeBuffer(t, d, args, 0, raw)
	ib := newBuffer(t, d, BufferUsageIndex, 64)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)
	require.NoError(t, rp.BindGraphicsPipeline(p))
	require.NoError(t, rp.DrawPrimitivesIndirect(args, 4, uint32(len(draws))))
	require.NoError(t, rp.BindIndexBuffer(BufferBinding{Buffer: ib}, IndexElementSize32Bit))
	require.NoError(t, rp.DrawIndexedPrimitivesIndirect(args, indexedAt, uint32(len(indexed))))
	require.NoError(t, rp.End())
	submitAndWait(t, d, cb)

	trace := sd.Trace()
	require.Len(t, trace, len(draws)+len(indexed))
	for i, want := range draws {
		assert.Equal(t, soft.TraceDraw, trace[i].Kind)
		assert.True(t, trace[i].Indirect)
		assert.Equal(t, want, trace[i].Draw)
	}
	for i, want := range indexed {
		e := trace[len(draws)+i]
		assert.Equal(t, soft.TraceDrawIndexed, e.Kind)
		assert.Equal(t, want, e.DrawIndexed)
	}
}

func TestRenderPass_IndirectBufferValidation(t *testing.T) {
	d, _ := newTestDevice(t)
	tex := colorTarget(t, d)
	p := newGraphicsPipeline(t, d, "tri")
	args := newBuffer(t, d, BufferUsageIndirect, 64)
	vb := newBuffer(t, d, BufferUsageVertex, 64)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)
	require.NoError(t, rp.BindGraphicsPipeline(p))

	assert.ErrorIs(t, rp.DrawPrimitivesIndirect(vb, 0, 1), ErrMissingUsage)
	assert.ErrorIs(t, rp.DrawPrimitivesIndirect(args, 2, 1), ErrAlignment)
	assert.ErrorIs(t, rp.DrawPrimitivesIndirect(args, 0, 5), ErrOutOfBounds)
	assert.ErrorIs(t, rp.DrawPrimitivesIndirect(args, 52, 1), ErrOutOfBounds)
	require.NoError(t, rp.DrawPrimitivesIndirect(args, 48, 1))
	require.NoError(t, rp.End())
	require.NoError(t, cb.Cancel())
}

func TestRenderPass_ZeroIndirectCountRecordsNothing(t *testing.T) {
	d, sd := newTestDevice(t)
	tex := colorTarget(t, d)
	p := newGraphicsPipeline(t, d, "tri")
	args := newBuffer(t, d, BufferUsageIndirect, 64)
	ib := newBuffer(t, d, BufferUsageIndex, 64)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)
	require.NoError(t, rp.BindGraphicsPipeline(p))
	require.NoError(t, rp.BindIndexBuffer(BufferBinding{Buffer: ib}, IndexElementSize16Bit))

	require.NoError(t, rp.DrawPrimitivesIndirect(args, 0, 0))
	require.NoError(t, rp.DrawPrimitivesIndirect(args, 64, 0))
	require.NoError(t, rp.DrawIndexedPrimitivesIndirect(args, 0, 0))
	assert.ErrorIs(t, rp.DrawPrimitivesIndirect(Buffer{}, 0, 0), ErrInvalidHandle)
	require.NoError(t, rp.End())
	submitAndWait(t, d, cb)

	assert.Empty(t, sd.Trace())
}

func TestBeginRenderPass_Validation(t *testing.T) {
	d, _ := newTestDevice(t)

	color := colorTarget(t, d)
	small := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageColorTarget, Width: 8, Height: 8})
	sampled := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 16, Height: 16})
	depth := newTexture(t, d, TextureCreateInfo{
		Format: gputypes.TextureFormatDepth32Float, Usage: TextureUsageDepthStencilTarget, Width: 16, Height: 16,
	})
	msaa := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageColorTarget, Width: 16, Height: 16, SampleCount: 4})
	resolveSmall := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageColorTarget, Width: 8, Height: 8})
	resolveBGRA := newTexture(t, d, TextureCreateInfo{
		Format: gputypes.TextureFormatBGRA8Unorm, Usage: TextureUsageColorTarget, Width: 16, Height: 16,
	})

	tests := []struct {
		name   string
		colors []ColorTargetInfo
		depth  *DepthStencilTargetInfo
		want   error
	}{
		{"no targets", nil, nil, ErrInvalidDescriptor},
		{"nine targets", make([]ColorTargetInfo, 9), nil, ErrInvalidDescriptor},
		{"null texture", []ColorTargetInfo{{}}, nil, ErrInvalidHandle},
		{"missing usage", []ColorTargetInfo{{Texture: sampled}}, nil, ErrMissingUsage},
		{"bad level", []ColorTargetInfo{{Texture: color, MipLevel: 1}}, nil, ErrOutOfBounds},
		{"cycle with load", []ColorTargetInfo{{Texture: color, LoadOp: LoadOpLoad, Cycle: true}}, nil, ErrInvalidDescriptor},
		{"extent mismatch", []ColorTargetInfo{{Texture: color}, {Texture: small}}, nil, ErrInvalidDescriptor},
		{"depth extent mismatch", []ColorTargetInfo{{Texture: small}}, &DepthStencilTargetInfo{Texture: depth}, ErrInvalidDescriptor},
		{"depth missing usage", nil, &DepthStencilTargetInfo{Texture: color}, ErrMissingUsage},
		{"depth cycle with load", nil, &DepthStencilTargetInfo{Texture: depth, Cycle: true, LoadOp: LoadOpClear, StencilLoadOp: LoadOpLoad}, ErrInvalidDescriptor},
		{"depth resolve", nil, &DepthStencilTargetInfo{Texture: depth, LoadOp: LoadOpClear, StoreOp: StoreOpResolve}, ErrInvalidDescriptor},
		{"resolve without texture", []ColorTargetInfo{{Texture: msaa, StoreOp: StoreOpResolve}}, nil, ErrInvalidDescriptor},
		{"resolve single-sampled", []ColorTargetInfo{{Texture: color, StoreOp: StoreOpResolve, ResolveTexture: small}}, nil, ErrInvalidDescriptor},
		{"resolve into multisampled", []ColorTargetInfo{{Texture: msaa, StoreOp: StoreOpResolve, ResolveTexture: msaa}}, nil, ErrInvalidDescriptor},
		{"resolve format mismatch", []ColorTargetInfo{{Texture: msaa, StoreOp: StoreOpResolve, ResolveTexture: resolveBGRA}}, nil, ErrInvalidDescriptor},
		{"resolve extent mismatch", []ColorTargetInfo{{Texture: msaa, StoreOp: StoreOpResolve, ResolveTexture: resolveSmall}}, nil, ErrInvalidDescriptor},
		{"resolve", []ColorTargetInfo{{Texture: msaa, LoadOp: LoadOpClear, StoreOp: StoreOpResolve, ResolveTexture: color}}, nil, nil},
		{"color and depth", []ColorTargetInfo{{Texture: color, LoadOp: LoadOpClear}}, &DepthStencilTargetInfo{Texture: depth, LoadOp: LoadOpClear}, nil},
		{"depth only", nil, &DepthStencilTargetInfo{Texture: depth, LoadOp: LoadOpClear, StencilLoadOp: LoadOpDontCare, Cycle: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := newCommandBuffer(t, d)
			defer func() { require.NoError(t, cb.Cancel()) }()

			rp, err := cb.BeginRenderPass(tt.colors, tt.depth)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				assert.Nil(t, rp)
				return
			}
			require.NoError(t, err)
			require.NoError(t, rp.End())
		})
	}
}

func TestRenderPass_ResolveMultisample(t *testing.T) {
	d, _ := newTestDevice(t)
	msaa := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageColorTarget, Width: 4, Height: 4, SampleCount: 4})
	resolve := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageColorTarget | TextureUsageSampler, Width: 4, Height: 4})

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{
		Texture:        msaa,
		LoadOp:         LoadOpClear,
		StoreOp:        StoreOpResolve,
		ClearColor:     gputypes.Color{G: 1, A: 1},
		ResolveTexture: resolve,
	}}, nil)
	require.NoError(t, err)
	require.NoError(t, rp.End())
	submitAndWait(t, d, cb)

	assert.Equal(t, solid(16, 0, 255, 0, 255), readTexture(t, d, resolve, 0, 4, 4))
}

func TestRenderPass_PipelineMustMatchTargets(t *testing.T) {
	d, _ := newTestDevice(t)
	color := colorTarget(t, d)
	depth := newTexture(t, d, TextureCreateInfo{
		Format: gputypes.TextureFormatDepth32Float, Usage: TextureUsageDepthStencilTarget, Width: 16, Height: 16,
	})
	colorOnly := newGraphicsPipeline(t, d, "color")
	withDepth, err := d.CreateGraphicsPipeline(GraphicsPipelineCreateInfo{
		VertexShader:   newShader(t, d, ShaderStageVertex),
		FragmentShader: newShader(t, d, ShaderStageFragment),
		ColorTargets:   []gputypes.ColorTargetState{{Format: gputypes.TextureFormatRGBA8Unorm}},
		DepthStencil: &gputypes.DepthStencilState{
			Format:            gputypes.TextureFormatDepth32Float,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
		},
	})
	require.NoError(t, err)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass(
		[]ColorTargetInfo{{Texture: color, LoadOp: LoadOpClear}},
		&DepthStencilTargetInfo{Texture: depth, LoadOp: LoadOpClear, ClearDepth: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, rp.BindGraphicsPipeline(colorOnly), ErrInvalidDescriptor)
	assert.ErrorIs(t, rp.BindGraphicsPipeline(GraphicsPipeline{}), ErrInvalidHandle)
	require.NoError(t, rp.BindGraphicsPipeline(withDepth))
	require.NoError(t, rp.DrawPrimitives(3, 1, 0, 0))
	require.NoError(t, rp.End())
	submitAndWait(t, d, cb)
}

func TestRenderPass_PipelineFormatsMustMatch(t *testing.T) {
	d, _ := newTestDevice(t)
	color := colorTarget(t, d)
	msaa := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageColorTarget, Width: 16, Height: 16, SampleCount: 4})
	pipeline := func(format gputypes.TextureFormat, samples uint32) GraphicsPipeline {
		p, err := d.CreateGraphicsPipeline(GraphicsPipelineCreateInfo{
			VertexShader:   newShader(t, d, ShaderStageVertex),
			FragmentShader: newShader(t, d, ShaderStageFragment),
			Multisample:    gputypes.MultisampleState{Count: samples},
			ColorTargets:   []gputypes.ColorTargetState{{Format: format}},
		})
		require.NoError(t, err)
		return p
	}
	rgba8 := pipeline(gputypes.TextureFormatRGBA8Unorm, 0)
	rgba16f := pipeline(gputypes.TextureFormatRGBA16Float, 1)
	fourSamples := pipeline(gputypes.TextureFormatRGBA8Unorm, 4)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: color, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, rp.BindGraphicsPipeline(rgba16f), ErrInvalidDescriptor)
	assert.ErrorIs(t, rp.BindGraphicsPipeline(fourSamples), ErrInvalidDescriptor)
	require.NoError(t, rp.BindGraphicsPipeline(rgba8))
	require.NoError(t, rp.End())

	rp, err = cb.BeginRenderPass([]ColorTargetInfo{{Texture: msaa, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, rp.BindGraphicsPipeline(rgba8), ErrInvalidDescriptor)
	require.NoError(t, rp.BindGraphicsPipeline(fourSamples))
	require.NoError(t, rp.End())

	_, err = cb.BeginRenderPass([]ColorTargetInfo{
		{Texture: color, LoadOp: LoadOpClear},
		{Texture: msaa, LoadOp: LoadOpClear},
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidDescriptor, "targets must share a sample count")
	submitAndWait(t, d, cb)
}

func TestRenderPass_FixedFunctionState(t *testing.T) {
	d, _ := newTestDevice(t)
	tex := colorTarget(t, d)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)

	require.NoError(t, rp.SetViewport(Viewport{X: 2, Y: 2, W: 8, H: 8, MaxDepth: 1}))
	assert.ErrorIs(t, rp.SetViewport(Viewport{W: 0, H: 8, MaxDepth: 1}), ErrInvalidDescriptor)
	assert.ErrorIs(t, rp.SetViewport(Viewport{W: 8, H: 8, MinDepth: 0.8, MaxDepth: 0.2}), ErrInvalidDescriptor)

	require.NoError(t, rp.SetScissor(Rect{X: 8, Y: 8, W: 8, H: 8}))
	assert.ErrorIs(t, rp.SetScissor(Rect{X: 9, W: 8, H: 8}), ErrOutOfBounds)

	require.NoError(t, rp.SetBlendConstants(gputypes.Color{R: 0.5, G: 0.5, B: 0.5, A: 1}))
	require.NoError(t, rp.SetStencilReference(0x80))
	require.NoError(t, rp.End())
	submitAndWait(t, d, cb)
}

func TestRenderPass_Bindings(t *testing.T) {
	d, _ := newTestDevice(t)
	tex := colorTarget(t, d)
	vb := newBuffer(t, d, BufferUsageVertex, 64)
	ib := newBuffer(t, d, BufferUsageIndex, 64)
	sb := newBuffer(t, d, BufferUsageGraphicsStorageRead, 64)
	storageTex := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageGraphicsStorageRead, Width: 4, Height: 4})
	sampled := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 4, Height: 4})
	smp, err := d.CreateSampler(SamplerCreateInfo{MaxLOD: 1})
	require.NoError(t, err)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)

	require.NoError(t, rp.BindVertexBuffers(0, []BufferBinding{{Buffer: vb}, {Buffer: vb, Offset: 32}}))
	assert.ErrorIs(t, rp.BindVertexBuffers(0, []BufferBinding{{Buffer: ib}}), ErrMissingUsage)
	assert.ErrorIs(t, rp.BindVertexBuffers(15, []BufferBinding{{Buffer: vb}, {Buffer: vb}}), ErrSlotOutOfRange)
	assert.ErrorIs(t, rp.BindVertexBuffers(0, []BufferBinding{{Buffer: vb, Offset: 64}}), ErrOutOfBounds)

	assert.ErrorIs(t, rp.BindIndexBuffer(BufferBinding{Buffer: ib, Offset: 2}, IndexElementSize32Bit), ErrAlignment)
	require.NoError(t, rp.BindIndexBuffer(BufferBinding{Buffer: ib, Offset: 2}, IndexElementSize16Bit))
	assert.ErrorIs(t, rp.BindIndexBuffer(BufferBinding{Buffer: vb}, IndexElementSize16Bit), ErrMissingUsage)

	require.NoError(t, rp.BindFragmentSamplers(0, []TextureSamplerBinding{{Texture: sampled, Sampler: smp}}))
	assert.ErrorIs(t, rp.BindVertexSamplers(0, []TextureSamplerBinding{{Texture: storageTex, Sampler: smp}}), ErrMissingUsage)
	assert.ErrorIs(t, rp.BindVertexSamplers(0, []TextureSamplerBinding{{Texture: sampled}}), ErrInvalidHandle)

	require.NoError(t, rp.BindVertexStorageTextures(0, []Texture{storageTex}))
	assert.ErrorIs(t, rp.BindFragmentStorageTextures(0, []Texture{sampled}), ErrMissingUsage)
	assert.ErrorIs(t, rp.BindFragmentStorageTextures(8, []Texture{storageTex}), ErrSlotOutOfRange)

	require.NoError(t, rp.BindFragmentStorageBuffers(0, []Buffer{sb}))
	assert.ErrorIs(t, rp.BindVertexStorageBuffers(0, []Buffer{vb}), ErrMissingUsage)

	require.NoError(t, rp.End())
	submitAndWait(t, d, cb)
}
