package gpucmd

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyPass_BufferRoundTrip(t *testing.T) {
	d, _ := newTestDevice(t)
	b := newBuffer(t, d, BufferUsageVertex, 64)

	writeBuffer(t, d, b, 8, []byte("hello, gpu"))
	assert.Equal(t, []byte("hello, gpu"), readBuffer(t, d, b, 8, 10))
	assert.Equal(t, make([]byte, 8), readBuffer(t, d, b, 0, 8))
}

func TestCopyPass_TransferDirection(t *testing.T) {
	d, _ := newTestDevice(t)
	b := newBuffer(t, d, BufferUsageVertex, 64)
	up := newTransferBuffer(t, d, TransferBufferUsageUpload, 64)
	down := newTransferBuffer(t, d, TransferBufferUsageDownload, 64)

	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)

	assert.ErrorIs(t, cp.UploadToBuffer(
		TransferBufferLocation{TransferBuffer: down},
		BufferRegion{Buffer: b, Size: 16}, false), ErrWrongTransferDirection)
	assert.ErrorIs(t, cp.DownloadFromBuffer(
		BufferRegion{Buffer: b, Size: 16},
		TransferBufferLocation{TransferBuffer: up}), ErrWrongTransferDirection)

	_, err = d.MapTransferBuffer(up, false)
	require.NoError(t, err)
	assert.ErrorIs(t, cp.UploadToBuffer(
		TransferBufferLocation{TransferBuffer: up},
		BufferRegion{Buffer: b, Size: 16}, false), ErrTransferBufferMapped)
	require.NoError(t, d.UnmapTransferBuffer(up))

	require.NoError(t, cp.UploadToBuffer(
		TransferBufferLocation{TransferBuffer: up, Offset: 48},
		BufferRegion{Buffer: b, Offset: 48, Size: 16}, false))
	require.NoError(t, cp.End())
	require.NoError(t, cb.Cancel())
}

func TestCopyPass_UploadBounds(t *testing.T) {
	d, _ := newTestDevice(t)
	b := newBuffer(t, d, BufferUsageVertex, 32)
	up := newTransferBuffer(t, d, TransferBufferUsageUpload, 16)

	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)

	tests := []struct {
		name string
		src  TransferBufferLocation
		dst  BufferRegion
		want error
	}{
		{"source overrun", TransferBufferLocation{TransferBuffer: up, Offset: 8}, BufferRegion{Buffer: b, Size: 16}, ErrOutOfBounds},
		{"destination overrun", TransferBufferLocation{TransferBuffer: up}, BufferRegion{Buffer: b, Offset: 24, Size: 16}, ErrOutOfBounds},
		{"zero size", TransferBufferLocation{TransferBuffer: up}, BufferRegion{Buffer: b}, ErrInvalidDescriptor},
		{"null buffer", TransferBufferLocation{TransferBuffer: up}, BufferRegion{Size: 4}, ErrInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, cp.UploadToBuffer(tt.src, tt.dst, false), tt.want)
		})
	}
	require.NoError(t, cp.End())
	require.NoError(t, cb.Cancel())
}

func TestCopyPass_CopyBufferToBuffer(t *testing.T) {
	d, _ := newTestDevice(t)
	src := newBuffer(t, d, BufferUsageVertex, 16)
	dst := newBuffer(t, d, BufferUsageIndex, 16)
	writeBuffer(t, d, src, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})

	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)
	assert.ErrorIs(t, cp.CopyBufferToBuffer(BufferLocation{Buffer: src}, BufferLocation{Buffer: dst}, 6, false), ErrAlignment)
	assert.ErrorIs(t, cp.CopyBufferToBuffer(BufferLocation{Buffer: src, Offset: 2}, BufferLocation{Buffer: dst}, 4, false), ErrAlignment)
	assert.ErrorIs(t, cp.CopyBufferToBuffer(BufferLocation{Buffer: src}, BufferLocation{Buffer: dst, Offset: 4}, 16, false), ErrOutOfBounds)
	require.NoError(t, cp.CopyBufferToBuffer(BufferLocation{Buffer: src, Offset: 8}, BufferLocation{Buffer: dst, Offset: 4}, 8, false))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)

	assert.Equal(t, []byte{0, 0, 0, 0, 9, 10, 11, 12, 13, 14, 15, 16, 0, 0, 0, 0}, readBuffer(t, d, dst, 0, 16))
}

func TestCopyPass_TexturePaddedLayout(t *testing.T) {
	d, _ := newTestDevice(t)
	tex := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 2, Height: 2})

	// Rows are 4 texels apart in the transfer buffer; only the first two
	// of each row belong to the texture.
	data := []byte{
		1, 1, 1, 1, 2, 2, 2, 2, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee, 0xee,
		3, 3, 3, 3, 4, 4, 4, 4,
	}
	tb := stage(t, d, data)

	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)
	region := TextureRegion{Texture: tex, W: 2, H: 2, D: 1}
	assert.ErrorIs(t, cp.UploadToTexture(
		TextureTransferInfo{TransferBuffer: tb, PixelsPerRow: 1}, region, false), ErrInvalidDescriptor)
	assert.ErrorIs(t, cp.UploadToTexture(
		TextureTransferInfo{TransferBuffer: tb, PixelsPerRow: 4, Offset: 4}, region, false), ErrOutOfBounds)
	require.NoError(t, cp.UploadToTexture(
		TextureTransferInfo{TransferBuffer: tb, PixelsPerRow: 4}, region, false))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)

	assert.Equal(t, []byte{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}, readTexture(t, d, tex, 0, 2, 2))
}

func TestCopyPass_TextureRegionValidation(t *testing.T) {
	d, _ := newTestDevice(t)
	tex := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 8, Height: 8, NumLevels: 2})
	bc := newTexture(t, d, TextureCreateInfo{
		Usage: TextureUsageSampler, Format: gputypes.TextureFormatBC1RGBAUnorm, Width: 8, Height: 8,
	})
	ms := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageColorTarget, Width: 8, Height: 8, SampleCount: 4})
	down := newTransferBuffer(t, d, TransferBufferUsageDownload, 1024)

	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)

	tests := []struct {
		name   string
		region TextureRegion
		want   error
	}{
		{"level out of range", TextureRegion{Texture: tex, MipLevel: 2, W: 1, H: 1}, ErrOutOfBounds},
		{"larger than level", TextureRegion{Texture: tex, MipLevel: 1, W: 8, H: 8}, ErrOutOfBounds},
		{"empty", TextureRegion{Texture: tex}, ErrInvalidDescriptor},
		{"second layer", TextureRegion{Texture: tex, Layer: 1, W: 1, H: 1}, ErrOutOfBounds},
		{"off block origin", TextureRegion{Texture: bc, X: 2, W: 4, H: 4}, ErrAlignment},
		{"multisampled", TextureRegion{Texture: ms, W: 8, H: 8}, ErrInvalidDescriptor},
		{"valid level", TextureRegion{Texture: tex, MipLevel: 1, W: 4, H: 4}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cp.DownloadFromTexture(tt.region, TextureTransferInfo{TransferBuffer: down})
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
	require.NoError(t, cp.End())
	require.NoError(t, cb.Cancel())
}

func TestCopyPass_CopyTextureToTexture(t *testing.T) {
	d, _ := newTestDevice(t)
	src := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 4, Height: 4})
	dst := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 4, Height: 4})
	r8 := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Format: gputypes.TextureFormatR8Unorm, Width: 4, Height: 4})
	writeTexture(t, d, src, 0, 4, 4, solid(16, 255, 0, 0, 255))

	cb := newCommandBuffer(t, d)
	cp, err := cb.BeginCopyPass()
	require.NoError(t, err)
	assert.ErrorIs(t, cp.CopyTextureToTexture(
		TextureLocation{Texture: src}, TextureLocation{Texture: r8}, 2, 2, 1, false), ErrInvalidDescriptor)
	assert.ErrorIs(t, cp.CopyTextureToTexture(
		TextureLocation{Texture: src}, TextureLocation{Texture: dst, X: 3, Y: 3}, 2, 2, 1, false), ErrOutOfBounds)
	require.NoError(t, cp.CopyTextureToTexture(
		TextureLocation{Texture: src}, TextureLocation{Texture: dst, X: 2, Y: 2}, 2, 2, 0, false))
	require.NoError(t, cp.End())
	submitAndWait(t, d, cb)

	got := readTexture(t, d, dst, 0, 4, 4)
	red := solid(1, 255, 0, 0, 255)
	blank := make([]byte, 4)
	for y := range 4 {
		for x := range 4 {
			texel := got[(y*4+x)*4:][:4]
			if x >= 2 && y >= 2 {
				assert.Equal(t, red, texel, "texel %d,%d", x, y)
			} else {
				assert.Equal(t, blank, texel, "texel %d,%d", x, y)
			}
		}
	}
}

func TestCopyPass_UploadCyclesTexture(t *testing.T) {
	d, sd := newTestDevice(t)
	tex := newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 1, Height: 1})
	writeTexture(t, d, tex, 0, 1, 1, solid(1, 1, 2, 3, 4))

	sd.Pause()
	first := newCommandBuffer(t, d)
	cp, err := first.BeginCopyPass()
	require.NoError(t, err)
	down := newTransferBuffer(t, d, TransferBufferUsageDownload, 4)
	require.NoError(t, cp.DownloadFromTexture(
		TextureRegion{Texture: tex, W: 1, H: 1}, TextureTransferInfo{TransferBuffer: down}))
	require.NoError(t, cp.End())
	f, err := first.SubmitAndAcquireFence()
	require.NoError(t, err)

	up := stage(t, d, solid(1, 9, 9, 9, 9))
	second := newCommandBuffer(t, d)
	cp, err = second.BeginCopyPass()
	require.NoError(t, err)
	require.NoError(t, cp.UploadToTexture(
		TextureTransferInfo{TransferBuffer: up},
		TextureRegion{Texture: tex, W: 1, H: 1}, true))
	require.NoError(t, cp.End())
	require.NoError(t, second.Submit())

	sd.Resume()
	require.NoError(t, d.WaitForFences(testContext(t), true, f))
	require.NoError(t, d.ReleaseFence(f))
	require.NoError(t, d.WaitForIdle(testContext(t)))

	assert.Equal(t, solid(1, 1, 2, 3, 4), mapAndRelease(t, d, down), "in-flight read sees the old contents")
	assert.Equal(t, solid(1, 9, 9, 9, 9), readTexture(t, d, tex, 0, 1, 1))
	require.NoError(t, d.ReleaseTransferBuffer(up))
}
