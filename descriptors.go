package gpucmd

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

// =============================================================================
// Create infos
// =============================================================================

// BufferCreateInfo describes a buffer.
type BufferCreateInfo struct {
	Usage BufferUsage
	Size  uint64
	Name  string
}

// TextureCreateInfo describes a texture.
type TextureCreateInfo struct {
	Type   TextureType
	Format gputypes.TextureFormat
	Usage  TextureUsage
	Width  uint32
	Height uint32

	// LayerCountOrDepth is the array layer count, or the depth of 3D
	// textures. Must be 6 for cubes and a multiple of 6 for cube arrays.
	LayerCountOrDepth uint32
	NumLevels         uint32

	// SampleCount is 1, 2, 4 or 8. Zero means 1.
	SampleCount uint32
	Name        string
}

// SamplerCreateInfo describes a sampler.
type SamplerCreateInfo = driver.SamplerDesc

// ShaderCreateInfo describes a graphics shader. The resource counts tell
// the driver how many bindings of each kind the shader declares.
type ShaderCreateInfo struct {
	Code       []byte
	Entrypoint string
	// Format must be exactly one format the device was created with.
	Format ShaderFormat
	Stage  ShaderStage

	NumSamplers        uint32
	NumStorageTextures uint32
	NumStorageBuffers  uint32
	NumUniformBuffers  uint32
	Name               string
}

// GraphicsPipelineCreateInfo describes a graphics pipeline.
type GraphicsPipelineCreateInfo struct {
	VertexShader   Shader
	FragmentShader Shader

	VertexBuffers []gputypes.VertexBufferLayout
	Primitive     gputypes.PrimitiveState
	Multisample   gputypes.MultisampleState

	// DepthStencil is nil for pipelines without a depth-stencil target.
	DepthStencil *gputypes.DepthStencilState
	ColorTargets []gputypes.ColorTargetState
	Name         string
}

// ComputePipelineCreateInfo describes a compute pipeline. Compute pipelines
// carry their own code.
type ComputePipelineCreateInfo struct {
	Code       []byte
	Entrypoint string
	Format     ShaderFormat

	NumSamplers                 uint32
	NumReadonlyStorageTextures  uint32
	NumReadonlyStorageBuffers   uint32
	NumReadWriteStorageTextures uint32
	NumReadWriteStorageBuffers  uint32
	NumUniformBuffers           uint32

	ThreadCountX, ThreadCountY, ThreadCountZ uint32
	Name                                     string
}

// TransferBufferCreateInfo describes a transfer buffer.
type TransferBufferCreateInfo struct {
	Usage TransferBufferUsage
	Size  uint64
	Name  string
}

// =============================================================================
// Render pass targets
// =============================================================================

// ColorTargetInfo describes a color target of a render pass.
type ColorTargetInfo struct {
	Texture           Texture
	MipLevel          uint32
	LayerOrDepthPlane uint32
	ClearColor        gputypes.Color
	LoadOp            LoadOp
	StoreOp           StoreOp

	// ResolveTexture receives the resolved samples when StoreOp resolves.
	ResolveTexture  Texture
	ResolveMipLevel uint32
	ResolveLayer    uint32

	// Cycle cycles Texture before the pass. Invalid with LoadOpLoad.
	Cycle bool
	// CycleResolveTexture cycles ResolveTexture before the pass.
	CycleResolveTexture bool
}

// DepthStencilTargetInfo describes the depth-stencil target of a render
// pass. Depth and stencil have independent load and store ops.
type DepthStencilTargetInfo struct {
	Texture        Texture
	ClearDepth     float32
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	Cycle          bool
	ClearStencil   uint8
	MipLevel       uint32
	Layer          uint32
}

// =============================================================================
// Bindings
// =============================================================================

// Viewport is a render pass viewport.
type Viewport = driver.Viewport

// Rect is a scissor rectangle.
type Rect = driver.Rect

// BufferBinding binds a buffer at a byte offset.
type BufferBinding struct {
	Buffer Buffer
	Offset uint64
}

// TextureSamplerBinding pairs a texture with the sampler that reads it.
type TextureSamplerBinding struct {
	Texture Texture
	Sampler Sampler
}

// StorageTextureReadWriteBinding is a texture subresource written by a
// compute pass.
type StorageTextureReadWriteBinding struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
	Cycle    bool
}

// StorageBufferReadWriteBinding is a buffer written by a compute pass.
type StorageBufferReadWriteBinding struct {
	Buffer Buffer
	Cycle  bool
}

// =============================================================================
// Copy locations
// =============================================================================

// TransferBufferLocation is a byte offset in a transfer buffer.
type TransferBufferLocation struct {
	TransferBuffer TransferBuffer
	Offset         uint64
}

// TextureTransferInfo describes texel data in a transfer buffer. Zero
// PixelsPerRow or RowsPerLayer mean tightly packed.
type TextureTransferInfo struct {
	TransferBuffer TransferBuffer
	Offset         uint64
	PixelsPerRow   uint32
	RowsPerLayer   uint32
}

// BufferLocation is a byte offset in a buffer.
type BufferLocation struct {
	Buffer Buffer
	Offset uint64
}

// BufferRegion is a byte range of a buffer.
type BufferRegion struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// TextureLocation is a texel position in one subresource.
type TextureLocation struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
	X, Y, Z  uint32
}

// TextureRegion is a box in one mip level. Z and D address depth slices
// of 3D textures; Layer addresses array layers otherwise.
type TextureRegion struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
	X, Y, Z  uint32
	W, H, D  uint32
}

// BlitRegion is a rectangle of one mip level and layer or depth plane.
type BlitRegion struct {
	Texture           Texture
	MipLevel          uint32
	LayerOrDepthPlane uint32
	X, Y, W, H        uint32
}

// BlitInfo describes a scaled texture copy.
type BlitInfo struct {
	Source      BlitRegion
	Destination BlitRegion
	LoadOp      LoadOp
	ClearColor  gputypes.Color
	FlipMode    FlipMode
	Filter      gputypes.FilterMode
	// Cycle cycles the destination. Invalid with LoadOpLoad.
	Cycle bool
}

// SwapchainTexture is the result of a swapchain acquisition. A null Texture
// means no frame is available right now.
type SwapchainTexture struct {
	Texture Texture
	Width   uint32
	Height  uint32
}

// IsNull reports whether no texture was acquired.
func (s SwapchainTexture) IsNull() bool { return s.Texture.IsNull() }

// =============================================================================
// Indirect records
// =============================================================================

// IndirectDrawCommand is the 16-byte record read by DrawPrimitivesIndirect.
type IndirectDrawCommand = driver.DrawArgs

// IndirectIndexedDrawCommand is the 20-byte record read by
// DrawIndexedPrimitivesIndirect.
type IndirectIndexedDrawCommand = driver.DrawIndexedArgs

// IndirectDispatchCommand is the 12-byte record read by
// DispatchComputeIndirect.
type IndirectDispatchCommand = driver.DispatchArgs

// Indirect record sizes in bytes.
const (
	IndirectDrawCommandSize        = driver.DrawArgsSize
	IndirectIndexedDrawCommandSize = driver.DrawIndexedArgsSize
	IndirectDispatchCommandSize    = driver.DispatchArgsSize
)

// DecodeIndirectDrawCommands decodes tightly packed draw records.
func DecodeIndirectDrawCommands(b []byte) ([]IndirectDrawCommand, error) {
	return decodeRecords[IndirectDrawCommand](b, IndirectDrawCommandSize)
}

// DecodeIndirectIndexedDrawCommands decodes tightly packed indexed draw
// records.
func DecodeIndirectIndexedDrawCommands(b []byte) ([]IndirectIndexedDrawCommand, error) {
	return decodeRecords[IndirectIndexedDrawCommand](b, IndirectIndexedDrawCommandSize)
}

// DecodeIndirectDispatchCommands decodes tightly packed dispatch records.
func DecodeIndirectDispatchCommands(b []byte) ([]IndirectDispatchCommand, error) {
	return decodeRecords[IndirectDispatchCommand](b, IndirectDispatchCommandSize)
}

func decodeRecords[T any, P interface {
	*T
	UnmarshalBinary([]byte) error
}](b []byte, size int) ([]T, error) {
	if len(b)%size != 0 {
		return nil, driver.ErrShortRecord
	}
	out := make([]T, len(b)/size)
	for i := range out {
		if err := P(&out[i]).UnmarshalBinary(b[i*size:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
