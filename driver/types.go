package driver

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// =============================================================================
// Shader formats
// =============================================================================

// ShaderFormat is a bit set of shader bytecode formats.
type ShaderFormat uint32

// Shader formats.
const (
	// ShaderFormatPrivate is a backend-private precompiled format.
	ShaderFormatPrivate ShaderFormat = 1 << iota
	// ShaderFormatSPIRV is SPIR-V bytecode.
	ShaderFormatSPIRV
	// ShaderFormatDXBC is DXBC (shader model 5.1) bytecode.
	ShaderFormatDXBC
	// ShaderFormatDXIL is DXIL (shader model 6.0) bytecode.
	ShaderFormatDXIL
	// ShaderFormatMSL is Metal Shading Language source.
	ShaderFormatMSL
	// ShaderFormatMetalLib is a compiled Metal library.
	ShaderFormatMetalLib
	// ShaderFormatWGSL is WGSL source.
	ShaderFormatWGSL

	// ShaderFormatInvalid is the empty set.
	ShaderFormatInvalid ShaderFormat = 0
)

var shaderFormatNames = []struct {
	f    ShaderFormat
	name string
}{
	{ShaderFormatPrivate, "Private"},
	{ShaderFormatSPIRV, "SPIRV"},
	{ShaderFormatDXBC, "DXBC"},
	{ShaderFormatDXIL, "DXIL"},
	{ShaderFormatMSL, "MSL"},
	{ShaderFormatMetalLib, "MetalLib"},
	{ShaderFormatWGSL, "WGSL"},
}

// Contains reports whether f includes every format in other.
func (f ShaderFormat) Contains(other ShaderFormat) bool { return f&other == other }

// Intersects reports whether f and other share at least one format.
func (f ShaderFormat) Intersects(other ShaderFormat) bool { return f&other != 0 }

// String returns the formats joined with "|".
func (f ShaderFormat) String() string {
	if f == ShaderFormatInvalid {
		return "None"
	}
	var parts []string
	for _, n := range shaderFormatNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := f &^ (ShaderFormatWGSL<<1 - 1); rest != 0 {
		parts = append(parts, fmt.Sprintf("Unknown(%#x)", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// =============================================================================
// Texture types
// =============================================================================

// TextureType is the shape of a texture.
type TextureType uint8

// Texture types.
const (
	TextureType2D TextureType = iota
	TextureType2DArray
	TextureType3D
	TextureTypeCube
	TextureTypeCubeArray
)

// String returns the texture type name.
func (t TextureType) String() string {
	switch t {
	case TextureType2D:
		return "2D"
	case TextureType2DArray:
		return "2DArray"
	case TextureType3D:
		return "3D"
	case TextureTypeCube:
		return "Cube"
	case TextureTypeCubeArray:
		return "CubeArray"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// Dimension returns the gputypes texture dimension backing t.
func (t TextureType) Dimension() gputypes.TextureDimension {
	if t == TextureType3D {
		return gputypes.TextureDimension3D
	}
	return gputypes.TextureDimension2D
}

// ViewDimension returns the gputypes view dimension for a full view of t.
func (t TextureType) ViewDimension() gputypes.TextureViewDimension {
	switch t {
	case TextureType2DArray:
		return gputypes.TextureViewDimension2DArray
	case TextureType3D:
		return gputypes.TextureViewDimension3D
	case TextureTypeCube:
		return gputypes.TextureViewDimensionCube
	case TextureTypeCubeArray:
		return gputypes.TextureViewDimensionCubeArray
	default:
		return gputypes.TextureViewDimension2D
	}
}

// =============================================================================
// Load / store operations
// =============================================================================

// LoadOp selects what happens to a target's contents when a pass begins.
type LoadOp uint8

// Load operations.
const (
	// LoadOpLoad preserves the previous contents.
	LoadOpLoad LoadOp = iota
	// LoadOpClear clears the target to the clear value.
	LoadOpClear
	// LoadOpDontCare leaves the contents undefined.
	LoadOpDontCare
)

// String returns the load op name.
func (op LoadOp) String() string {
	switch op {
	case LoadOpLoad:
		return "Load"
	case LoadOpClear:
		return "Clear"
	case LoadOpDontCare:
		return "DontCare"
	default:
		return fmt.Sprintf("Unknown(%d)", int(op))
	}
}

// StoreOp selects what happens to a target's contents when a pass ends.
type StoreOp uint8

// Store operations.
const (
	// StoreOpStore writes the rendered contents to memory.
	StoreOpStore StoreOp = iota
	// StoreOpDontCare leaves the contents undefined.
	StoreOpDontCare
	// StoreOpResolve resolves the multisample target into the resolve
	// texture and discards the multisample contents.
	StoreOpResolve
	// StoreOpResolveAndStore resolves and also keeps the multisample contents.
	StoreOpResolveAndStore
)

// String returns the store op name.
func (op StoreOp) String() string {
	switch op {
	case StoreOpStore:
		return "Store"
	case StoreOpDontCare:
		return "DontCare"
	case StoreOpResolve:
		return "Resolve"
	case StoreOpResolveAndStore:
		return "ResolveAndStore"
	default:
		return fmt.Sprintf("Unknown(%d)", int(op))
	}
}

// Resolves reports whether op writes to a resolve texture.
func (op StoreOp) Resolves() bool {
	return op == StoreOpResolve || op == StoreOpResolveAndStore
}

// Stores reports whether op keeps the target contents.
func (op StoreOp) Stores() bool {
	return op == StoreOpStore || op == StoreOpResolveAndStore
}

// FlipMode mirrors a blit.
type FlipMode uint8

// Flip modes. Horizontal and vertical may be combined.
const (
	FlipNone       FlipMode = 0
	FlipHorizontal FlipMode = 1 << 0
	FlipVertical   FlipMode = 1 << 1
)

// =============================================================================
// Presentation
// =============================================================================

// PresentMode controls how presented frames reach the display.
type PresentMode uint8

// Present modes.
const (
	// PresentModeVSync waits for vertical blank. Always supported.
	PresentModeVSync PresentMode = iota
	// PresentModeImmediate presents without waiting and may tear.
	PresentModeImmediate
	// PresentModeMailbox replaces the pending frame without tearing.
	PresentModeMailbox
)

// String returns the present mode name.
func (m PresentMode) String() string {
	switch m {
	case PresentModeVSync:
		return "VSync"
	case PresentModeImmediate:
		return "Immediate"
	case PresentModeMailbox:
		return "Mailbox"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// SwapchainComposition selects the color space and format of swapchain
// textures.
type SwapchainComposition uint8

// Swapchain compositions.
const (
	// CompositionSDR is 8-bit sRGB-encoded output stored as UNORM. Always supported.
	CompositionSDR SwapchainComposition = iota
	// CompositionSDRLinear is 8-bit output through an sRGB format.
	CompositionSDRLinear
	// CompositionHDRExtendedLinear is half-float extended linear output.
	CompositionHDRExtendedLinear
	// CompositionHDR10ST2084 is 10-bit PQ output.
	CompositionHDR10ST2084
)

// String returns the composition name.
func (c SwapchainComposition) String() string {
	switch c {
	case CompositionSDR:
		return "SDR"
	case CompositionSDRLinear:
		return "SDRLinear"
	case CompositionHDRExtendedLinear:
		return "HDRExtendedLinear"
	case CompositionHDR10ST2084:
		return "HDR10ST2084"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Format returns the swapchain texture format used for c.
func (c SwapchainComposition) Format() gputypes.TextureFormat {
	switch c {
	case CompositionSDRLinear:
		return gputypes.TextureFormatBGRA8UnormSrgb
	case CompositionHDRExtendedLinear:
		return gputypes.TextureFormatRGBA16Float
	case CompositionHDR10ST2084:
		return gputypes.TextureFormatRGB10A2Unorm
	default:
		return gputypes.TextureFormatBGRA8Unorm
	}
}
