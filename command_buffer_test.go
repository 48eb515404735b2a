package gpucmd

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuffer_Label(t *testing.T) {
	d, _ := newTestDevice(t)
	a := newCommandBuffer(t, d)
	b := newCommandBuffer(t, d)
	assert.NotEqual(t, a.Label(), b.Label())
	assert.Contains(t, a.Label(), "cmd-")
}

func TestCommandBuffer_NotRecordingAfterFinish(t *testing.T) {
	d, _ := newTestDevice(t)
	tex := colorTarget(t, d)

	finish := map[string]func(*CommandBuffer) error{
		"submit": (*CommandBuffer).Submit,
		"cancel": (*CommandBuffer).Cancel,
		"submit with fence": func(cb *CommandBuffer) error {
			f, err := cb.SubmitAndAcquireFence()
			if err == nil {
				err = d.ReleaseFence(f)
			}
			return err
		},
	}
	for name, end := range finish {
		t.Run(name, func(t *testing.T) {
			cb := newCommandBuffer(t, d)
			require.NoError(t, end(cb))

			calls := map[string]error{
				"submit":       cb.Submit(),
				"cancel":       cb.Cancel(),
				"debug label":  cb.InsertDebugLabel("x"),
				"push group":   cb.PushDebugGroup("x"),
				"push uniform": cb.PushVertexUniformData(0, make([]byte, 16)),
				"mipmaps":      cb.GenerateMipmaps(tex),
			}
			_, err := cb.BeginCopyPass()
			calls["copy pass"] = err
			_, err = cb.BeginComputePass(nil, nil)
			calls["compute pass"] = err
			_, err = cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex}}, nil)
			calls["render pass"] = err
			_, err = cb.SubmitAndAcquireFence()
			calls["submit with fence"] = err

			for call, err := range calls {
				assert.ErrorIs(t, err, ErrCommandBufferNotRecording, call)
			}
		})
	}
}

func TestCommandBuffer_PassesAreExclusive(t *testing.T) {
	d, _ := newTestDevice(t)
	tex := colorTarget(t, d)

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)

	_, err = cb.BeginCopyPass()
	assert.ErrorIs(t, err, ErrPassOpen)
	_, err = cb.BeginComputePass(nil, nil)
	assert.ErrorIs(t, err, ErrPassOpen)
	_, err = cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex}}, nil)
	assert.ErrorIs(t, err, ErrPassOpen)
	assert.ErrorIs(t, cb.GenerateMipmaps(tex), ErrPassOpen)
	assert.ErrorIs(t, cb.Submit(), ErrPassOpen)

	require.NoError(t, rp.End())
	require.NoError(t, rp.End(), "End is idempotent")
	assert.ErrorIs(t, rp.SetBlendConstants(gputypes.Color{}), ErrPassClosed)

	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)
	require.NoError(t, cp.End())
	cp2, err := cb.BeginComputePass(nil, nil)
	require.NoError(t, err)
	require.NoError(t, cp2.End())
	submitAndWait(t, d, cb)
}

func TestCommandBuffer_UniformData(t *testing.T) {
	d, _ := newTestDevice(t)
	cb := newCommandBuffer(t, d)

	assert.ErrorIs(t, cb.PushVertexUniformData(4, make([]byte, 16)), ErrSlotOutOfRange)
	assert.ErrorIs(t, cb.PushFragmentUniformData(0, nil), ErrUniformAlignment)
	assert.ErrorIs(t, cb.PushComputeUniformData(0, make([]byte, 12)), ErrUniformAlignment)

	data := make([]byte, 32)
	require.NoError(t, cb.PushVertexUniformData(3, data))
	require.NoError(t, cb.PushFragmentUniformData(0, data))
	require.NoError(t, cb.PushComputeUniformData(1, data))

	// Uniform data is copied at push time.
	data[0] = 0xff
	require.NoError(t, cb.Cancel())
}

func TestCommandBuffer_DebugGroups(t *testing.T) {
	d, sd := newTestDevice(t)
	tex := colorTarget(t, d)
	cb := newCommandBuffer(t, d)

	assert.ErrorIs(t, cb.PopDebugGroup(), ErrDebugGroupUnderflow)

	require.NoError(t, cb.PushDebugGroup("frame"))
	require.NoError(t, cb.InsertDebugLabel("marker"))

	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, cb.PopDebugGroup(), ErrDebugGroupScope, "group opened outside the pass")
	require.NoError(t, cb.PushDebugGroup("shadows"))
	require.NoError(t, cb.PopDebugGroup())
	require.NoError(t, cb.PushDebugGroup("leaked"))
	require.ErrorIs(t, rp.End(), ErrDebugGroupScope)

	require.NoError(t, cb.PopDebugGroup())
	submitAndWait(t, d, cb)

	assert.Equal(t, []string{
		"push:frame", "marker",
		"push:shadows", "pop",
		"push:leaked", "pop",
		"pop",
	}, sd.Labels())
}

func TestCommandBuffer_SubmitClosesOpenGroups(t *testing.T) {
	d, sd := newTestDevice(t)
	cb := newCommandBuffer(t, d)

	require.NoError(t, cb.PushDebugGroup("a"))
	require.NoError(t, cb.PushDebugGroup("b"))
	submitAndWait(t, d, cb)

	assert.Equal(t, []string{"push:a", "push:b", "pop", "pop"}, sd.Labels())
}

func TestCommandBuffer_CancelReleasesReferences(t *testing.T) {
	d, sd := newTestDevice(t)
	tex := colorTarget(t, d)
	p := newGraphicsPipeline(t, d, "tri")

	cb := newCommandBuffer(t, d)
	rp, err := cb.BeginRenderPass([]ColorTargetInfo{{Texture: tex, LoadOp: LoadOpClear}}, nil)
	require.NoError(t, err)
	require.NoError(t, rp.BindGraphicsPipeline(p))
	require.NoError(t, rp.DrawPrimitives(3, 1, 0, 0))
	require.NoError(t, rp.End())
	require.NoError(t, cb.Cancel())

	require.NoError(t, d.WaitForIdle(testContext(t)))
	assert.Empty(t, sd.Trace(), "cancelled work never runs")
	require.NoError(t, d.ReleaseTexture(tex))
	require.NoError(t, d.ReleaseGraphicsPipeline(p))
	assert.Empty(t, d.state.retire)
}

func TestCommandBuffer_GenerateMipmaps(t *testing.T) {
	d, _ := newTestDevice(t)

	flat := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler | TextureUsageColorTarget, Width: 4, Height: 4})
	sampled := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 4, Height: 4, NumLevels: 3})
	tex := newTexture(t, d, TextureCreateInfo{
		Usage: TextureUsageSampler | TextureUsageColorTarget, Width: 4, Height: 4, NumLevels: 3,
	})

	cb := newCommandBuffer(t, d)
	assert.ErrorIs(t, cb.GenerateMipmaps(flat), ErrInvalidDescriptor)
	assert.ErrorIs(t, cb.GenerateMipmaps(sampled), ErrMissingUsage)
	assert.ErrorIs(t, cb.GenerateMipmaps(Texture{}), ErrInvalidHandle)
	require.NoError(t, cb.Cancel())

	writeTexture(t, d, tex, 0, 4, 4, solid(16, 200, 100, 50, 255))
	cb = newCommandBuffer(t, d)
	require.NoError(t, cb.GenerateMipmaps(tex))
	submitAndWait(t, d, cb)

	assert.Equal(t, solid(4, 200, 100, 50, 255), readTexture(t, d, tex, 1, 2, 2))
	assert.Equal(t, solid(1, 200, 100, 50, 255), readTexture(t, d, tex, 2, 1, 1))
}

func TestCommandBuffer_BlitTexture(t *testing.T) {
	d, _ := newTestDevice(t)

	src := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 2, Height: 2})
	dst := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageColorTarget | TextureUsageSampler, Width: 4, Height: 4})
	writeTexture(t, d, src, 0, 2, 2, []byte{
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
	})

	whole := func(tex Texture, n uint32) BlitRegion { return BlitRegion{Texture: tex, W: n, H: n} }

	cb := newCommandBuffer(t, d)
	assert.ErrorIs(t, cb.BlitTexture(BlitInfo{Source: whole(dst, 4), Destination: whole(src, 2)}), ErrMissingUsage)
	assert.ErrorIs(t, cb.BlitTexture(BlitInfo{Source: whole(src, 4), Destination: whole(dst, 4)}), ErrOutOfBounds)
	assert.ErrorIs(t, cb.BlitTexture(BlitInfo{
		Source: whole(src, 2), Destination: whole(dst, 4), LoadOp: LoadOpLoad, Cycle: true,
	}), ErrInvalidDescriptor)

	require.NoError(t, cb.BlitTexture(BlitInfo{
		Source:      whole(src, 2),
		Destination: whole(dst, 4),
		LoadOp:      LoadOpDontCare,
		FlipMode:    FlipVertical,
		Filter:      gputypes.FilterModeNearest,
	}))
	submitAndWait(t, d, cb)

	got := readTexture(t, d, dst, 0, 4, 4)
	// Row 0 comes from the bottom source row after the vertical flip.
	assert.Equal(t, []byte{3, 3, 3, 3, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4}, got[:16])
	assert.Equal(t, []byte{1, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 2, 2, 2}, got[48:])
}
