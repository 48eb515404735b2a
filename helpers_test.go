package gpucmd

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpucmd/driver"
	"github.com/gogpu/gpucmd/driver/soft"
)

// newTestDevice opens a device on the soft driver. The soft device is
// returned for pausing the timeline and reading its trace.
func newTestDevice(t *testing.T, opts ...Option) (*Device, *soft.Device) {
	t.Helper()
	d, err := CreateDevice(ShaderFormatSPIRV, true, driver.NameSoft, opts...)
	require.NoError(t, err)
	sd, ok := d.DriverDevice().(*soft.Device)
	require.True(t, ok)
	t.Cleanup(func() {
		sd.Resume()
		d.Destroy()
	})
	return d, sd
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newCommandBuffer(t *testing.T, d *Device) *CommandBuffer {
	t.Helper()
	cb, err := d.AcquireCommandBuffer()
	require.NoError(t, err)
	return cb
}

// submitAndWait submits cb and waits for it to complete.
func submitAndWait(t *testing.T, d *Device, cb *CommandBuffer) {
	t.Helper()
	f, err := cb.SubmitAndAcquireFence()
	require.NoError(t, err)
	require.NoError(t, d.WaitForFences(testContext(t), true, f))
	require.NoError(t, d.ReleaseFence(f))
}

func newBuffer(t *testing.T, d *Device, usage BufferUsage, size uint64) Buffer {
	t.Helper()
	b, err := d.CreateBuffer(BufferCreateInfo{Usage: usage, Size: size})
	require.NoError(t, err)
	return b
}

func newTexture(t *testing.T, d *Device, info TextureCreateInfo) Texture {
	t.Helper()
	if info.Format == gputypes.TextureFormatUndefined {
		info.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if info.LayerCountOrDepth == 0 {
		info.LayerCountOrDepth = 1
	}
	if info.NumLevels == 0 {
		info.NumLevels = 1
	}
	tex, err := d.CreateTexture(info)
	require.NoError(t, err)
	return tex
}

func newTransferBuffer(t *testing.T, d *Device, usage TransferBufferUsage, size uint64) TransferBuffer {
	t.Helper()
	tb, err := d.CreateTransferBuffer(TransferBufferCreateInfo{Usage: usage, Size: size})
	require.NoError(t, err)
	return tb
}

// stage returns an upload transfer buffer holding data.
func stage(t *testing.T, d *Device, data []byte) TransferBuffer {
	t.Helper()
	tb := newTransferBuffer(t, d, TransferBufferUsageUpload, uint64(len(data)))
	mem, err := d.MapTransferBuffer(tb, false)
	require.NoError(t, err)
	copy(mem, data)
	require.NoError(t, d.UnmapTransferBuffer(tb))
	return tb
}

// writeBuffer uploads data to the start of b and waits for it.
func writeBuffer(t *testing.T, d *Device, b Buffer, offset uint64, data []byte) {
	t.Helper()
	tb := stage(t, d, data)
	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)
	require.NoError(t, cp.UploadToBuffer(
		TransferBufferLocation{TransferBuffer: tb},
		BufferRegion{Buffer: b, Offset: offset, Size: uint64(len(data))}, false))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)
	require.NoError(t, d.ReleaseTransferBuffer(tb))
}

// readBuffer downloads size bytes of b at offset.
func readBuffer(t *testing.T, d *Device, b Buffer, offset, size uint64) []byte {
	t.Helper()
	tb := newTransferBuffer(t, d, TransferBufferUsageDownload, size)
	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)
	require.NoError(t, cp.DownloadFromBuffer(
		BufferRegion{Buffer: b, Offset: offset, Size: size},
		TransferBufferLocation{TransferBuffer: tb}))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)
	return mapAndRelease(t, d, tb)
}

// readTexture downloads a whole 2D level of tex.
func readTexture(t *testing.T, d *Device, tex Texture, level, w, h uint32) []byte {
	t.Helper()
	size := CalculateTextureFormatSize(gputypes.TextureFormatRGBA8Unorm, w, h, 1)
	tb := newTransferBuffer(t, d, TransferBufferUsageDownload, size)
	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)
	require.NoError(t, cp.DownloadFromTexture(
		TextureRegion{Texture: tex, MipLevel: level, W: w, H: h, D: 1},
		TextureTransferInfo{TransferBuffer: tb}))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)
	return mapAndRelease(t, d, tb)
}

func mapAndRelease(t *testing.T, d *Device, tb TransferBuffer) []byte {
	t.Helper()
	mem, err := d.MapTransferBuffer(tb, false)
	require.NoError(t, err)
	out := slices.Clone(mem)
	require.NoError(t, d.UnmapTransferBuffer(tb))
	require.NoError(t, d.ReleaseTransferBuffer(tb))
	return out
}

func newShader(t *testing.T, d *Device, st ShaderStage) Shader {
	t.Helper()
	s, err := d.CreateShader(ShaderCreateInfo{
		Code:   []byte("shader"),
		Format: ShaderFormatSPIRV,
		Stage:  st,
	})
	require.NoError(t, err)
	return s
}

// newGraphicsPipeline creates a pipeline with one RGBA8 color target.
func newGraphicsPipeline(t *testing.T, d *Device, name string) GraphicsPipeline {
	t.Helper()
	p, err := d.CreateGraphicsPipeline(GraphicsPipelineCreateInfo{
		VertexShader:   newShader(t, d, ShaderStageVertex),
		FragmentShader: newShader(t, d, ShaderStageFragment),
		ColorTargets:   []gputypes.ColorTargetState{{Format: gputypes.TextureFormatRGBA8Unorm}},
		Name:           name,
	})
	require.NoError(t, err)
	return p
}

func newComputePipeline(t *testing.T, d *Device, name string) ComputePipeline {
	t.Helper()
	p, err := d.CreateComputePipeline(ComputePipelineCreateInfo{
		Code:                       []byte("compute"),
		Format:                     ShaderFormatSPIRV,
		NumReadWriteStorageBuffers: 1,
		ThreadCountX:               64,
		ThreadCountY:               1,
		ThreadCountZ:               1,
		Name:                       name,
	})
	require.NoError(t, err)
	return p
}

// colorTarget returns a 16x16 RGBA8 render target.
func colorTarget(t *testing.T, d *Device) Texture {
	t.Helper()
	return newTexture(t, d, TextureCreateInfo{
		Usage:  TextureUsageColorTarget | TextureUsageSampler,
		Width:  16,
		Height: 16,
	})
}

// writeTexture uploads a whole 2D level of tex and waits for it.
func writeTexture(t *testing.T, d *Device, tex Texture, level, w, h uint32, data []byte) {
	t.Helper()
	tb := stage(t, d, data)
	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)
	require.NoError(t, cp.UploadToTexture(
		TextureTransferInfo{TransferBuffer: tb},
		TextureRegion{Texture: tex, MipLevel: level, W: w, H: h, D: 1}, false))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)
	require.NoError(t, d.ReleaseTransferBuffer(tb))
}

// solid returns n RGBA8 texels of one color.
func solid(n int, r, g, b, a byte) []byte {
	out := make([]byte, 0, 4*n)
	for range n {
		out = append(out, r, g, b, a)
	}
	return out
}
