package gpucmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpucmd/driver/soft"
)

func TestComputePass_VertexBufferAsStorage(t *testing.T) {
	d, _ := newTestDevice(t)
	vb := newBuffer(t, d, BufferUsageVertex, 64)

	cb := newCommandBuffer(t, d)
	_, err := cb.BeginComputePass(nil, []StorageBufferReadWriteBinding{{Buffer: vb}})
	require.ErrorIs(t, err, ErrMissingUsage)

	cp, err := cb.BeginComputePass(nil, nil)
	require.NoError(t, err, "a failed begin leaves no pass open")
	assert.ErrorIs(t, cp.BindComputeStorageBuffers(0, []Buffer{vb}), ErrMissingUsage)
	require.NoError(t, cp.End())
	require.NoError(t, cb.Cancel())
}

func TestComputePass_Dispatches(t *testing.T) {
	d, sd := newTestDevice(t)
	out := newBuffer(t, d, BufferUsageComputeStorageWrite, 256)
	in := newBuffer(t, d, BufferUsageComputeStorageRead, 256)
	p := newComputePipeline(t, d, "reduce")

	cb := newCommandBuffer(t, d)
	require.NoError(t, cb.PushComputeUniformData(0, make([]byte, 16)))
	cp, err := cb.BeginComputePass(nil, []StorageBufferReadWriteBinding{{Buffer: out, Cycle: true}})
	require.NoError(t, err)
	assert.ErrorIs(t, cp.DispatchCompute(1, 1, 1), ErrNoPipeline)

	require.NoError(t, cp.BindComputePipeline(p))
	require.NoError(t, cp.BindComputeStorageBuffers(0, []Buffer{in}))
	// Two dispatches in one pass carry no ordering between them.
	require.NoError(t, cp.DispatchCompute(4, 1, 1))
	require.NoError(t, cp.DispatchCompute(2, 2, 1))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)

	trace := sd.Trace()
	require.Len(t, trace, 2)
	assert.ElementsMatch(t,
		[]IndirectDispatchCommand{{GroupsX: 4, GroupsY: 1, GroupsZ: 1}, {GroupsX: 2, GroupsY: 2, GroupsZ: 1}},
		[]IndirectDispatchCommand{trace[0].Dispatch, trace[1].Dispatch})
	for _, e := range trace {
		assert.Equal(t, soft.TraceDispatch, e.Kind)
		assert.Equal(t, "reduce", e.Pipeline)
	}
}

func TestComputePass_DispatchIndirect(t *testing.T) {
	d, sd := newTestDevice(t)
	p := newComputePipeline(t, d, "indirect")
	want := IndirectDispatchCommand{GroupsX: 8, GroupsY: 4, GroupsZ: 2}
	raw, err := want.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, IndirectDispatchCommandSize)

	args := newBuffer(t, d, BufferUsageIndirect, 16)
	writeBuffer(t, d, args, 4, raw)

	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginComputePass(nil, nil)
	require.NoError(t, err)
	require.NoError(t, cp.BindComputePipeline(p))
	assert.ErrorIs(t, cp.DispatchComputeIndirect(args, 8), ErrOutOfBounds)
	assert.ErrorIs(t, cp.DispatchComputeIndirect(args, 1), ErrAlignment)
	require.NoError(t, cp.DispatchComputeIndirect(args, 4))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)

	trace := sd.Trace()
	require.Len(t, trace, 1)
	assert.True(t, trace[0].Indirect)
	assert.Equal(t, want, trace[0].Dispatch)
}

func TestComputePass_ReadWriteHazards(t *testing.T) {
	d, _ := newTestDevice(t)
	rw := newBuffer(t, d, BufferUsageComputeStorageRead|BufferUsageComputeStorageWrite, 64)
	written := newTexture(t, d, TextureCreateInfo{
		Usage: TextureUsageComputeStorageRead | TextureUsageComputeStorageWrite, Width: 4, Height: 4,
	})
	sampledWritten := newTexture(t, d, TextureCreateInfo{
		Usage: TextureUsageSampler | TextureUsageComputeStorageWrite, Width: 4, Height: 4,
	})
	simultaneous := newTexture(t, d, TextureCreateInfo{
		Usage: TextureUsageComputeStorageSimultaneousReadWrite, Width: 4, Height: 4,
	})
	smp, err := d.CreateSampler(SamplerCreateInfo{MaxLOD: 1})
	require.NoError(t, err)

	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginComputePass(
		[]StorageTextureReadWriteBinding{{Texture: written}, {Texture: sampledWritten}, {Texture: simultaneous}},
		[]StorageBufferReadWriteBinding{{Buffer: rw}})
	require.NoError(t, err)

	assert.ErrorIs(t, cp.BindComputeStorageBuffers(0, []Buffer{rw}), ErrReadWriteHazard)
	assert.ErrorIs(t, cp.BindComputeStorageTextures(0, []Texture{written}), ErrReadWriteHazard)
	assert.ErrorIs(t, cp.BindComputeSamplers(0, []TextureSamplerBinding{{Texture: sampledWritten, Sampler: smp}}), ErrReadWriteHazard)
	require.NoError(t, cp.BindComputeStorageTextures(0, []Texture{simultaneous}))
	require.NoError(t, cp.End())
	require.NoError(t, cb.Cancel())
}

func TestBeginComputePass_Validation(t *testing.T) {
	d, _ := newTestDevice(t)
	sampled := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 4, Height: 4})
	storage := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageComputeStorageWrite, Width: 4, Height: 4})
	rw := newBuffer(t, d, BufferUsageComputeStorageWrite, 64)

	tests := []struct {
		name     string
		textures []StorageTextureReadWriteBinding
		buffers  []StorageBufferReadWriteBinding
		want     error
	}{
		{"texture without write usage", []StorageTextureReadWriteBinding{{Texture: sampled}}, nil, ErrMissingUsage},
		{"bad level", []StorageTextureReadWriteBinding{{Texture: storage, MipLevel: 1}}, nil, ErrOutOfBounds},
		{"null buffer", nil, []StorageBufferReadWriteBinding{{}}, ErrInvalidHandle},
		{"too many textures", make([]StorageTextureReadWriteBinding, 9), nil, ErrSlotOutOfRange},
		{"valid", []StorageTextureReadWriteBinding{{Texture: storage, Cycle: true}}, []StorageBufferReadWriteBinding{{Buffer: rw}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := newCommandBuffer(t, d)
			defer func() { require.NoError(t, cb.Cancel()) }()

			cp, err := cb.BeginComputePass(tt.textures, tt.buffers)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			require.NoError(t, cp.End())
		})
	}
}
