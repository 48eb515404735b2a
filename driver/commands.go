package driver

import "github.com/gogpu/gputypes"

// CommandList is one submission worth of recorded work.
type CommandList struct {
	Label    string
	Commands []Command

	// Presents are performed after all commands complete.
	Presents []Present
}

// Present queues an acquired surface texture for display.
type Present struct {
	Surface Surface
	Texture Texture
}

// Command is one recorded operation. The concrete types below are the only
// implementations.
type Command interface {
	command()
}

// =============================================================================
// Shared argument types
// =============================================================================

// Viewport is a render pass viewport.
type Viewport struct {
	X, Y, W, H         float32
	MinDepth, MaxDepth float32
}

// Rect is a scissor rectangle in texels.
type Rect struct {
	X, Y, W, H uint32
}

// BufferBinding binds a buffer at a byte offset.
type BufferBinding struct {
	Buffer Buffer
	Offset uint64
}

// SamplerBinding pairs a texture with the sampler that reads it.
type SamplerBinding struct {
	Texture Texture
	Sampler Sampler
}

// StorageTextureWrite is a writable texture subresource of a compute pass.
type StorageTextureWrite struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
}

// ColorAttachment is a render pass color target.
type ColorAttachment struct {
	Texture      Texture
	MipLevel     uint32
	Layer        uint32
	Load         LoadOp
	Store        StoreOp
	Clear        gputypes.Color
	Resolve      Texture
	ResolveMip   uint32
	ResolveLayer uint32
}

// DepthStencilAttachment is a render pass depth-stencil target.
type DepthStencilAttachment struct {
	Texture      Texture
	MipLevel     uint32
	Layer        uint32
	DepthLoad    LoadOp
	DepthStore   StoreOp
	ClearDepth   float32
	StencilLoad  LoadOp
	StencilStore StoreOp
	ClearStencil uint8
}

// TextureRegion is a box inside one mip level of a texture. Z and D address
// depth slices of 3D textures; Layer addresses array layers otherwise.
type TextureRegion struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
	X, Y, Z  uint32
	W, H, D  uint32
}

// TextureLocation is a texel position inside one mip level of a texture.
type TextureLocation struct {
	Texture  Texture
	MipLevel uint32
	Layer    uint32
	X, Y, Z  uint32
}

// ImageLayout describes texel data in a transfer buffer. Zero PixelsPerRow
// or RowsPerLayer mean tightly packed for the copied region.
type ImageLayout struct {
	Offset       uint64
	PixelsPerRow uint32
	RowsPerLayer uint32
}

// BlitRegion is a 2D rectangle of one mip level and layer.
type BlitRegion struct {
	Texture           Texture
	MipLevel          uint32
	LayerOrDepthPlane uint32
	X, Y, W, H        uint32
}

// =============================================================================
// Render pass commands
// =============================================================================

// BeginRenderPass opens a render pass.
type BeginRenderPass struct {
	Colors       []ColorAttachment
	DepthStencil *DepthStencilAttachment
}

// EndRenderPass closes the open render pass.
type EndRenderPass struct{}

// BindGraphicsPipeline binds a graphics pipeline.
type BindGraphicsPipeline struct{ Pipeline Pipeline }

// SetViewport sets the viewport.
type SetViewport struct{ Viewport Viewport }

// SetScissor sets the scissor rectangle.
type SetScissor struct{ Rect Rect }

// SetBlendConstants sets the blend constant color.
type SetBlendConstants struct{ Color gputypes.Color }

// SetStencilReference sets the stencil reference value.
type SetStencilReference struct{ Reference uint8 }

// BindVertexBuffers binds vertex buffers starting at slot First.
type BindVertexBuffers struct {
	First    uint32
	Bindings []BufferBinding
}

// BindIndexBuffer binds the index buffer.
type BindIndexBuffer struct {
	Binding BufferBinding
	Format  gputypes.IndexFormat
}

// Draw issues a non-indexed draw.
type Draw struct{ Args DrawArgs }

// DrawIndexed issues an indexed draw.
type DrawIndexed struct{ Args DrawIndexedArgs }

// DrawIndirect issues Count draws read from Buffer at Offset. Records are
// DrawArgsSize or DrawIndexedArgsSize bytes apart.
type DrawIndirect struct {
	Buffer  Buffer
	Offset  uint64
	Count   uint32
	Indexed bool
}

// =============================================================================
// Stage bindings (render and compute)
// =============================================================================

// BindSamplers binds sampled textures for a stage.
type BindSamplers struct {
	Stage    gputypes.ShaderStage
	First    uint32
	Bindings []SamplerBinding
}

// BindStorageTextures binds read-only storage textures for a stage.
type BindStorageTextures struct {
	Stage    gputypes.ShaderStage
	First    uint32
	Textures []Texture
}

// BindStorageBuffers binds read-only storage buffers for a stage.
type BindStorageBuffers struct {
	Stage   gputypes.ShaderStage
	First   uint32
	Buffers []Buffer
}

// PushUniform stages uniform data for subsequent draws or dispatches.
type PushUniform struct {
	Stage gputypes.ShaderStage
	Slot  uint32
	Data  []byte
}

// =============================================================================
// Compute pass commands
// =============================================================================

// BeginComputePass opens a compute pass with its writable bindings.
type BeginComputePass struct {
	StorageTextures []StorageTextureWrite
	StorageBuffers  []Buffer
}

// EndComputePass closes the open compute pass.
type EndComputePass struct{}

// BindComputePipeline binds a compute pipeline.
type BindComputePipeline struct{ Pipeline Pipeline }

// Dispatch launches workgroups.
type Dispatch struct{ Args DispatchArgs }

// DispatchIndirect launches workgroups counted by a DispatchArgs record.
type DispatchIndirect struct {
	Buffer Buffer
	Offset uint64
}

// =============================================================================
// Copy pass commands
// =============================================================================

// BeginCopyPass opens a copy pass.
type BeginCopyPass struct{}

// EndCopyPass closes the open copy pass.
type EndCopyPass struct{}

// UploadToBuffer copies from a transfer buffer into a buffer.
type UploadToBuffer struct {
	Src       TransferBuffer
	SrcOffset uint64
	Dst       Buffer
	DstOffset uint64
	Size      uint64
}

// UploadToTexture copies from a transfer buffer into a texture region.
type UploadToTexture struct {
	Src    TransferBuffer
	Layout ImageLayout
	Dst    TextureRegion
}

// DownloadFromBuffer copies from a buffer into a transfer buffer.
type DownloadFromBuffer struct {
	Src       Buffer
	SrcOffset uint64
	Dst       TransferBuffer
	DstOffset uint64
	Size      uint64
}

// DownloadFromTexture copies a texture region into a transfer buffer.
type DownloadFromTexture struct {
	Src    TextureRegion
	Dst    TransferBuffer
	Layout ImageLayout
}

// CopyBufferToBuffer copies between buffers.
type CopyBufferToBuffer struct {
	Src       Buffer
	SrcOffset uint64
	Dst       Buffer
	DstOffset uint64
	Size      uint64
}

// CopyTextureToTexture copies a W x H x D box between textures.
type CopyTextureToTexture struct {
	Src     TextureLocation
	Dst     TextureLocation
	W, H, D uint32
}

// =============================================================================
// Command-buffer scope commands
// =============================================================================

// GenerateMipmaps fills mip levels 1..n-1 from level 0.
type GenerateMipmaps struct{ Texture Texture }

// Blit scales a region of one texture into another.
type Blit struct {
	Src    BlitRegion
	Dst    BlitRegion
	Load   LoadOp
	Clear  gputypes.Color
	Flip   FlipMode
	Filter gputypes.FilterMode
}

// InsertDebugLabel inserts a marker.
type InsertDebugLabel struct{ Name string }

// PushDebugGroup opens a debug group.
type PushDebugGroup struct{ Name string }

// PopDebugGroup closes the innermost debug group.
type PopDebugGroup struct{}

func (BeginRenderPass) command()      {}
func (EndRenderPass) command()        {}
func (BindGraphicsPipeline) command() {}
func (SetViewport) command()          {}
func (SetScissor) command()           {}
func (SetBlendConstants) command()    {}
func (SetStencilReference) command()  {}
func (BindVertexBuffers) command()    {}
func (BindIndexBuffer) command()      {}
func (Draw) command()                 {}
func (DrawIndexed) command()          {}
func (DrawIndirect) command()         {}
func (BindSamplers) command()         {}
func (BindStorageTextures) command()  {}
func (BindStorageBuffers) command()   {}
func (PushUniform) command()          {}
func (BeginComputePass) command()     {}
func (EndComputePass) command()       {}
func (BindComputePipeline) command()  {}
func (Dispatch) command()             {}
func (DispatchIndirect) command()     {}
func (BeginCopyPass) command()        {}
func (EndCopyPass) command()          {}
func (UploadToBuffer) command()       {}
func (UploadToTexture) command()      {}
func (DownloadFromBuffer) command()   {}
func (DownloadFromTexture) command()  {}
func (CopyBufferToBuffer) command()   {}
func (CopyTextureToTexture) command() {}
func (GenerateMipmaps) command()      {}
func (Blit) command()                 {}
func (InsertDebugLabel) command()     {}
func (PushDebugGroup) command()       {}
func (PopDebugGroup) command()        {}
