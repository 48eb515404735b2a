package gpucmd

import (
	"context"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpucmd/driver"
)

func TestCreateDevice_Soft(t *testing.T) {
	d, _ := newTestDevice(t)

	assert.Equal(t, driver.NameSoft, d.DriverName())
	assert.Equal(t, ShaderFormatSPIRV, d.ShaderFormats())
	assert.Equal(t, DefaultFramesInFlight, d.FramesInFlight())
	assert.False(t, d.Lost())
	assert.Equal(t, "gpucmd soft", d.Info().Adapter.Name)
}

func TestCreateDevice_Errors(t *testing.T) {
	tests := []struct {
		name    string
		formats ShaderFormat
		driver  string
		opts    []Option
		want    error
	}{
		{"format not accepted", ShaderFormatDXIL, driver.NameSoft, nil, ErrNoSupportedBackend},
		{"unknown driver", ShaderFormatSPIRV, "no-such-driver", nil, ErrNoSupportedBackend},
		{"zero frames", ShaderFormatSPIRV, driver.NameSoft, []Option{WithFramesInFlight(0)}, ErrInvalidFramesInFlight},
		{"four frames", ShaderFormatSPIRV, driver.NameSoft, []Option{WithFramesInFlight(4)}, ErrInvalidFramesInFlight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := CreateDevice(tt.formats, false, tt.driver, tt.opts...)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSupportsShaderFormats(t *testing.T) {
	assert.True(t, SupportsShaderFormats(ShaderFormatSPIRV, driver.NameSoft))
	assert.True(t, SupportsShaderFormats(ShaderFormatWGSL|ShaderFormatDXIL, ""))
	assert.False(t, SupportsShaderFormats(ShaderFormatDXIL, driver.NameSoft))
	assert.Contains(t, Drivers(), driver.NameSoft)
}

func TestTextureFormatSizes(t *testing.T) {
	assert.Equal(t, uint32(4), TextureFormatTexelBlockSize(gputypes.TextureFormatRGBA8Unorm))
	assert.Equal(t, uint32(8), TextureFormatTexelBlockSize(gputypes.TextureFormatBC1RGBAUnorm))
	assert.Equal(t, uint32(0), TextureFormatTexelBlockSize(gputypes.TextureFormatUndefined))

	assert.Equal(t, uint64(16*16*4*6), CalculateTextureFormatSize(gputypes.TextureFormatRGBA8Unorm, 16, 16, 6))
	// 10x10 BC1 covers 3x3 blocks of 8 bytes.
	assert.Equal(t, uint64(72), CalculateTextureFormatSize(gputypes.TextureFormatBC1RGBAUnorm, 10, 10, 1))
}

func TestDevice_CapabilityQueries(t *testing.T) {
	d, _ := newTestDevice(t)

	assert.True(t, d.TextureSupportsFormat(gputypes.TextureFormatRGBA8Unorm, TextureType2D, TextureUsageColorTarget))
	assert.False(t, d.TextureSupportsFormat(gputypes.TextureFormatBC1RGBAUnorm, TextureType2D, TextureUsageColorTarget))
	assert.True(t, d.TextureSupportsSampleCount(gputypes.TextureFormatRGBA8Unorm, 4))
	assert.False(t, d.TextureSupportsSampleCount(gputypes.TextureFormatRGBA8Unorm, 3))
}

func TestDevice_LastError(t *testing.T) {
	d, _ := newTestDevice(t)
	assert.Empty(t, d.LastError())

	_, err := d.CreateBuffer(BufferCreateInfo{Size: 64})
	require.ErrorIs(t, err, ErrUnsupportedUsageCombination)
	assert.Equal(t, err.Error(), d.LastError())

	// Successful calls leave the last error in place.
	newBuffer(t, d, BufferUsageVertex, 64)
	assert.Contains(t, d.LastError(), "unsupported usage combination")
}

func TestDevice_MemoryBudget(t *testing.T) {
	d, _ := newTestDevice(t, WithMemoryBudget(1024))

	b := newBuffer(t, d, BufferUsageVertex, 1024)
	_, err := d.CreateBuffer(BufferCreateInfo{Usage: BufferUsageVertex, Size: 4})
	require.ErrorIs(t, err, ErrOutOfMemory)

	stats := d.MemoryStats()
	assert.Equal(t, uint64(1024), stats.UsedBytes)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, 1, stats.Allocations)
	assert.InDelta(t, 1.0, stats.Utilization(), 1e-9)

	require.NoError(t, d.ReleaseBuffer(b))
	assert.Equal(t, uint64(0), d.MemoryStats().UsedBytes)
	assert.Equal(t, uint64(1024), d.MemoryStats().PeakBytes)

	newBuffer(t, d, BufferUsageVertex, 4)
}

func TestDevice_WaitForIdle(t *testing.T) {
	d, sd := newTestDevice(t)

	sd.Pause()
	for range 3 {
		require.NoError(t, newCommandBuffer(t, d).Submit())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.WaitForIdle(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, d.Lost(), "a timed out wait is not device loss")

	sd.Resume()
	require.NoError(t, d.WaitForIdle(testContext(t)))
	assert.Equal(t, uint64(3), sd.Completed())
}

func TestDevice_SuspendResume(t *testing.T) {
	d, _ := newTestDevice(t)

	require.NoError(t, d.Suspend(testContext(t)))
	cb := newCommandBuffer(t, d)
	require.ErrorIs(t, cb.Submit(), ErrSuspended)

	d.Resume()
	require.NoError(t, cb.Submit(), "a rejected submit leaves the buffer recording")
}

func TestDevice_Lost(t *testing.T) {
	d, sd := newTestDevice(t)
	b := newBuffer(t, d, BufferUsageVertex, 64)

	sd.Lose()
	err := newCommandBuffer(t, d).Submit()
	require.ErrorIs(t, err, ErrDeviceLost)
	require.ErrorIs(t, err, driver.ErrDeviceLost)
	assert.True(t, d.Lost())

	_, err = d.CreateBuffer(BufferCreateInfo{Usage: BufferUsageVertex, Size: 64})
	assert.ErrorIs(t, err, ErrDeviceLost)
	_, err = d.AcquireCommandBuffer()
	assert.ErrorIs(t, err, ErrDeviceLost)
	assert.ErrorIs(t, d.WaitForIdle(testContext(t)), ErrDeviceLost)
	assert.NotEmpty(t, d.LastError())

	// Releasing still works so callers can clean up.
	assert.NoError(t, d.ReleaseBuffer(b))
}

func TestDevice_Destroy(t *testing.T) {
	d, _ := newTestDevice(t)
	newBuffer(t, d, BufferUsageVertex, 64)
	newTexture(t, d, TextureCreateInfo{Usage: TextureUsageSampler, Width: 4, Height: 4})

	d.Destroy()
	d.Destroy()

	_, err := d.CreateBuffer(BufferCreateInfo{Usage: BufferUsageVertex, Size: 64})
	assert.ErrorIs(t, err, ErrDeviceDestroyed)
	assert.Equal(t, uint64(0), d.MemoryStats().UsedBytes)
}

func TestDevice_SetAllowedFramesInFlight(t *testing.T) {
	d, _ := newTestDevice(t)

	assert.ErrorIs(t, d.SetAllowedFramesInFlight(testContext(t), 0), ErrInvalidFramesInFlight)
	assert.ErrorIs(t, d.SetAllowedFramesInFlight(testContext(t), 4), ErrInvalidFramesInFlight)

	require.NoError(t, d.SetAllowedFramesInFlight(testContext(t), 3))
	assert.Equal(t, 3, d.FramesInFlight())
}
