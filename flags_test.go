package gpucmd

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShaderFormat(t *testing.T) {
	tests := []struct {
		in   string
		want ShaderFormat
		err  bool
	}{
		{"", ShaderFormatInvalid, false},
		{"SPIRV", ShaderFormatSPIRV, false},
		{"spirv|msl", ShaderFormatSPIRV | ShaderFormatMSL, false},
		{"DXIL, DXBC", ShaderFormatDXIL | ShaderFormatDXBC, false},
		{"MetalLib|WGSL|Private", ShaderFormatMetalLib | ShaderFormatWGSL | ShaderFormatPrivate, false},
		{"GLSL", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShaderFormat(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnsupportedShaderFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	// String and ParseShaderFormat agree.
	all := ShaderFormatSPIRV | ShaderFormatDXIL | ShaderFormatWGSL
	got, err := ParseShaderFormat(all.String())
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestUsageStrings(t *testing.T) {
	assert.Equal(t, "None", BufferUsage(0).String())
	assert.Equal(t, "Vertex|Indirect", (BufferUsageVertex | BufferUsageIndirect).String())
	assert.Equal(t, "ComputeStorageWrite|0x80", (BufferUsageComputeStorageWrite | 0x80).String())
	assert.Equal(t, "Sampler|ColorTarget", (TextureUsageSampler | TextureUsageColorTarget).String())
	assert.Equal(t, "Download", TransferBufferUsageDownload.String())
	assert.Equal(t, "Unknown(3)", TransferBufferUsage(3).String())
	assert.Equal(t, "Fragment", ShaderStageFragment.String())
}

func TestUsageValidation(t *testing.T) {
	assert.NoError(t, (BufferUsageVertex | BufferUsageComputeStorageWrite).validate())
	assert.ErrorIs(t, BufferUsage(1<<10).validate(), ErrUnsupportedUsageCombination)

	bad := []TextureUsage{
		0,
		1 << 12,
		TextureUsageSampler | TextureUsageGraphicsStorageRead,
		TextureUsageColorTarget | TextureUsageDepthStencilTarget,
		TextureUsageComputeStorageSimultaneousReadWrite | TextureUsageSampler,
	}
	for _, u := range bad {
		assert.ErrorIs(t, u.validate(), ErrUnsupportedUsageCombination, u.String())
	}
	assert.NoError(t, (TextureUsageSampler | TextureUsageColorTarget | TextureUsageComputeStorageWrite).validate())
}

func TestUsageLowering(t *testing.T) {
	bu := (BufferUsageIndex | BufferUsageComputeStorageRead).lower()
	assert.NotZero(t, bu&gputypes.BufferUsageStorage)
	assert.NotZero(t, bu&gputypes.BufferUsageIndex)
	assert.Zero(t, bu&gputypes.BufferUsageVertex)
}
