package gpucmd

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

// =============================================================================
// Shared enums
// =============================================================================

// ShaderFormat is a set of shader code formats.
type ShaderFormat = driver.ShaderFormat

// Shader formats.
const (
	ShaderFormatInvalid  = driver.ShaderFormatInvalid
	ShaderFormatPrivate  = driver.ShaderFormatPrivate
	ShaderFormatSPIRV    = driver.ShaderFormatSPIRV
	ShaderFormatDXBC     = driver.ShaderFormatDXBC
	ShaderFormatDXIL     = driver.ShaderFormatDXIL
	ShaderFormatMSL      = driver.ShaderFormatMSL
	ShaderFormatMetalLib = driver.ShaderFormatMetalLib
	ShaderFormatWGSL     = driver.ShaderFormatWGSL
)

// TextureType is the dimensionality of a texture.
type TextureType = driver.TextureType

// Texture types.
const (
	TextureType2D        = driver.TextureType2D
	TextureType2DArray   = driver.TextureType2DArray
	TextureType3D        = driver.TextureType3D
	TextureTypeCube      = driver.TextureTypeCube
	TextureTypeCubeArray = driver.TextureTypeCubeArray
)

// LoadOp selects what happens to a target when a pass begins.
type LoadOp = driver.LoadOp

// Load ops.
const (
	LoadOpLoad     = driver.LoadOpLoad
	LoadOpClear    = driver.LoadOpClear
	LoadOpDontCare = driver.LoadOpDontCare
)

// StoreOp selects what happens to a target when a pass ends.
type StoreOp = driver.StoreOp

// Store ops.
const (
	StoreOpStore           = driver.StoreOpStore
	StoreOpDontCare        = driver.StoreOpDontCare
	StoreOpResolve         = driver.StoreOpResolve
	StoreOpResolveAndStore = driver.StoreOpResolveAndStore
)

// FlipMode mirrors a blit.
type FlipMode = driver.FlipMode

// Flip modes.
const (
	FlipNone       = driver.FlipNone
	FlipHorizontal = driver.FlipHorizontal
	FlipVertical   = driver.FlipVertical
)

// PresentMode controls how presented frames reach the display.
type PresentMode = driver.PresentMode

// Present modes.
const (
	PresentModeVSync     = driver.PresentModeVSync
	PresentModeImmediate = driver.PresentModeImmediate
	PresentModeMailbox   = driver.PresentModeMailbox
)

// SwapchainComposition selects the color space of swapchain textures.
type SwapchainComposition = driver.SwapchainComposition

// Swapchain compositions.
const (
	CompositionSDR               = driver.CompositionSDR
	CompositionSDRLinear         = driver.CompositionSDRLinear
	CompositionHDRExtendedLinear = driver.CompositionHDRExtendedLinear
	CompositionHDR10ST2084       = driver.CompositionHDR10ST2084
)

// ParseShaderFormat parses a "|" or "," separated list of shader format
// names such as "SPIRV|MSL". Names are case-insensitive.
func ParseShaderFormat(s string) (ShaderFormat, error) {
	all := []ShaderFormat{
		ShaderFormatPrivate, ShaderFormatSPIRV, ShaderFormatDXBC, ShaderFormatDXIL,
		ShaderFormatMSL, ShaderFormatMetalLib, ShaderFormatWGSL,
	}
	var out ShaderFormat
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		found := false
		for _, f := range all {
			if strings.EqualFold(name, f.String()) {
				out |= f
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("parse shader format %q: %w", name, ErrUnsupportedShaderFormat)
		}
	}
	return out, nil
}

// ShaderStage is a graphics shader stage.
type ShaderStage uint8

// Shader stages.
const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "Vertex"
	case ShaderStageFragment:
		return "Fragment"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

func (s ShaderStage) lower() gputypes.ShaderStage {
	if s == ShaderStageFragment {
		return gputypes.ShaderStageFragment
	}
	return gputypes.ShaderStageVertex
}

// IndexElementSize is the width of index buffer elements.
type IndexElementSize uint8

// Index element sizes.
const (
	IndexElementSize16Bit IndexElementSize = iota
	IndexElementSize32Bit
)

// Bytes returns the element width in bytes.
func (s IndexElementSize) Bytes() uint64 {
	if s == IndexElementSize32Bit {
		return 4
	}
	return 2
}

func (s IndexElementSize) lower() gputypes.IndexFormat {
	if s == IndexElementSize32Bit {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

// =============================================================================
// Usage flags
// =============================================================================

// BufferUsage is the set of ways a buffer may be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageIndirect
	BufferUsageGraphicsStorageRead
	BufferUsageComputeStorageRead
	BufferUsageComputeStorageWrite

	bufferUsageAll = BufferUsageVertex | BufferUsageIndex | BufferUsageIndirect |
		BufferUsageGraphicsStorageRead | BufferUsageComputeStorageRead | BufferUsageComputeStorageWrite
)

// Contains reports whether u has every flag in other.
func (u BufferUsage) Contains(other BufferUsage) bool { return u&other == other }

// String returns the flag names joined by "|".
func (u BufferUsage) String() string {
	return flagString(uint32(u), []string{
		"Vertex", "Index", "Indirect", "GraphicsStorageRead", "ComputeStorageRead", "ComputeStorageWrite",
	})
}

// validate checks the flag set.
func (u BufferUsage) validate() error {
	if u == 0 {
		return fmt.Errorf("%w: empty buffer usage", ErrUnsupportedUsageCombination)
	}
	if u&^bufferUsageAll != 0 {
		return fmt.Errorf("%w: unknown buffer usage bits %#x", ErrUnsupportedUsageCombination, uint32(u&^bufferUsageAll))
	}
	return nil
}

// lower maps u onto WebGPU usage. Every buffer is a copy source and
// destination so copy passes need no extra flags.
func (u BufferUsage) lower() gputypes.BufferUsage {
	out := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if u.Contains(BufferUsageVertex) {
		out |= gputypes.BufferUsageVertex
	}
	if u.Contains(BufferUsageIndex) {
		out |= gputypes.BufferUsageIndex
	}
	if u.Contains(BufferUsageIndirect) {
		out |= gputypes.BufferUsageIndirect
	}
	if u&(BufferUsageGraphicsStorageRead|BufferUsageComputeStorageRead|BufferUsageComputeStorageWrite) != 0 {
		out |= gputypes.BufferUsageStorage
	}
	return out
}

// TextureUsage is the set of ways a texture may be used.
type TextureUsage uint32

// Texture usage flags.
const (
	TextureUsageSampler TextureUsage = 1 << iota
	TextureUsageColorTarget
	TextureUsageDepthStencilTarget
	TextureUsageGraphicsStorageRead
	TextureUsageComputeStorageRead
	TextureUsageComputeStorageWrite
	TextureUsageComputeStorageSimultaneousReadWrite

	textureUsageAll = TextureUsageSampler | TextureUsageColorTarget | TextureUsageDepthStencilTarget |
		TextureUsageGraphicsStorageRead | TextureUsageComputeStorageRead | TextureUsageComputeStorageWrite |
		TextureUsageComputeStorageSimultaneousReadWrite
)

// Contains reports whether u has every flag in other.
func (u TextureUsage) Contains(other TextureUsage) bool { return u&other == other }

// String returns the flag names joined by "|".
func (u TextureUsage) String() string {
	return flagString(uint32(u), []string{
		"Sampler", "ColorTarget", "DepthStencilTarget", "GraphicsStorageRead",
		"ComputeStorageRead", "ComputeStorageWrite", "ComputeStorageSimultaneousReadWrite",
	})
}

// validate checks the flag set on its own. Format-dependent rules live in
// CreateTexture.
func (u TextureUsage) validate() error {
	switch {
	case u == 0:
		return fmt.Errorf("%w: empty texture usage", ErrUnsupportedUsageCombination)
	case u&^textureUsageAll != 0:
		return fmt.Errorf("%w: unknown texture usage bits %#x", ErrUnsupportedUsageCombination, uint32(u&^textureUsageAll))
	case u.Contains(TextureUsageSampler | TextureUsageGraphicsStorageRead):
		return fmt.Errorf("%w: %v", ErrUnsupportedUsageCombination, u)
	case u.Contains(TextureUsageColorTarget | TextureUsageDepthStencilTarget):
		return fmt.Errorf("%w: %v", ErrUnsupportedUsageCombination, u)
	case u.Contains(TextureUsageComputeStorageSimultaneousReadWrite) &&
		u&(TextureUsageSampler|TextureUsageGraphicsStorageRead) != 0:
		return fmt.Errorf("%w: %v", ErrUnsupportedUsageCombination, u)
	}
	return nil
}

func (u TextureUsage) lower() gputypes.TextureUsage {
	out := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if u.Contains(TextureUsageSampler) {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&(TextureUsageColorTarget|TextureUsageDepthStencilTarget) != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	if u&(TextureUsageGraphicsStorageRead|TextureUsageComputeStorageRead|
		TextureUsageComputeStorageWrite|TextureUsageComputeStorageSimultaneousReadWrite) != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	return out
}

// TransferBufferUsage is the direction of a transfer buffer.
type TransferBufferUsage uint8

// Transfer buffer usages. Exactly one must be set.
const (
	TransferBufferUsageUpload TransferBufferUsage = 1 << iota
	TransferBufferUsageDownload
)

// String returns the usage name.
func (u TransferBufferUsage) String() string {
	switch u {
	case TransferBufferUsageUpload:
		return "Upload"
	case TransferBufferUsageDownload:
		return "Download"
	default:
		return fmt.Sprintf("Unknown(%d)", int(u))
	}
}

func flagString(bits uint32, names []string) string {
	if bits == 0 {
		return "None"
	}
	var parts []string
	for i, name := range names {
		if bits&(1<<i) != 0 {
			parts = append(parts, name)
			bits &^= 1 << i
		}
	}
	if bits != 0 {
		parts = append(parts, fmt.Sprintf("%#x", bits))
	}
	return strings.Join(parts, "|")
}
