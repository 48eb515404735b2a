package driver

import (
	"context"
	"math"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Driver is a graphics backend that can open devices.
type Driver interface {
	// Name returns the registry name (e.g. "vulkan", "soft").
	Name() string

	// ShaderFormats returns the shader formats devices of this driver accept.
	ShaderFormats() ShaderFormat

	// Available reports whether Open can succeed on this system.
	Available() bool

	// Open creates a device.
	Open(cfg OpenConfig) (Device, error)
}

// OpenConfig holds the parameters for Driver.Open.
type OpenConfig struct {
	// Debug enables backend validation where available.
	Debug bool

	// ShaderFormats are the formats the caller intends to supply.
	ShaderFormats ShaderFormat
}

// Info describes an opened device.
type Info struct {
	// Driver is the registry name of the driver.
	Driver string

	// Adapter describes the physical adapter.
	Adapter gpucontext.AdapterInfo

	// Backend is the native API the device runs on.
	Backend gputypes.Backend

	// ShaderFormats are the formats the device accepts.
	ShaderFormats ShaderFormat
}

// Device executes work for one opened driver.
//
// Create* and Submit may be called concurrently. Epochs returned by Submit
// increase monotonically and complete in submission order.
type Device interface {
	// Info describes the device.
	Info() Info

	// Limits returns the device limits.
	Limits() gputypes.Limits

	// SupportsTextureFormat reports whether textures of format, type and
	// usage can be created.
	SupportsTextureFormat(format gputypes.TextureFormat, typ TextureType, usage gputypes.TextureUsage) bool

	// SupportsSampleCount reports whether format supports count samples.
	SupportsSampleCount(format gputypes.TextureFormat, count uint32) bool

	CreateBuffer(desc *BufferDesc) (Buffer, error)
	CreateTexture(desc *TextureDesc) (Texture, error)
	CreateSampler(desc *SamplerDesc) (Sampler, error)
	CreateShader(desc *ShaderDesc) (Shader, error)
	CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (Pipeline, error)
	CreateComputePipeline(desc *ComputePipelineDesc) (Pipeline, error)
	CreateTransferBuffer(desc *TransferBufferDesc) (TransferBuffer, error)

	// CreateSurface creates a presentation surface for window.
	CreateSurface(window gpucontext.WindowProvider) (Surface, error)

	// Submit queues list for execution and returns its epoch.
	// Presents in the list happen after the list's commands.
	Submit(list *CommandList) (uint64, error)

	// Completed returns the highest completed epoch. Non-blocking.
	Completed() uint64

	// Wait blocks until epoch completes, the device is lost, or ctx ends.
	Wait(ctx context.Context, epoch uint64) error

	// WaitIdle blocks until every submitted epoch completes.
	WaitIdle(ctx context.Context) error

	// Destroy releases the device. All allocations must be destroyed first.
	Destroy()
}

// =============================================================================
// Physical allocations
// =============================================================================

// Resource is any physical allocation.
type Resource interface {
	// Destroy frees the allocation. The GPU must no longer use it.
	Destroy()
}

// Labeled is implemented by allocations that accept debug names.
type Labeled interface {
	SetLabel(label string)
}

// Buffer is a GPU buffer allocation.
type Buffer interface {
	Resource
	Size() uint64
}

// Texture is a GPU texture allocation.
type Texture interface {
	Resource
	Desc() TextureDesc
}

// Sampler is a sampler object.
type Sampler interface{ Resource }

// Shader is a shader module.
type Shader interface{ Resource }

// Pipeline is a graphics or compute pipeline.
type Pipeline interface{ Resource }

// TransferBuffer is a CPU-visible staging allocation.
type TransferBuffer interface {
	Buffer

	// Map returns the CPU view of the buffer. The slice is valid until Unmap.
	Map() ([]byte, error)

	// Unmap ends CPU access.
	Unmap()
}

// Surface presents textures to a window.
type Surface interface {
	SupportsComposition(c SwapchainComposition) bool
	SupportsPresentMode(m PresentMode) bool

	// Configure (re)creates the swapchain images.
	Configure(cfg SurfaceConfig) error

	// Format returns the texture format of acquired textures.
	Format() gputypes.TextureFormat

	// CompositionFormat returns the format Configure selects for c.
	CompositionFormat(c SwapchainComposition) gputypes.TextureFormat

	// Acquire returns the next texture to render into.
	Acquire() (Texture, error)

	// Discard returns an acquired texture without presenting it.
	Discard(tex Texture)

	Destroy()
}

// NativeWindow is implemented by windows that expose platform handles.
// Drivers that present through native APIs require it; windows without it
// are treated as headless.
type NativeWindow interface {
	NativeHandles() (display, window uintptr)
}

// PixelSize returns the drawable size of window in physical pixels.
// Negative sizes are reported as zero.
func PixelSize(window gpucontext.WindowProvider) (width, height uint32) {
	w, h := window.Size()
	sf := window.ScaleFactor()
	if sf <= 0 {
		sf = 1
	}
	return toPixels(float64(w) * sf), toPixels(float64(h) * sf)
}

func toPixels(v float64) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(math.Round(v))
}

// =============================================================================
// Descriptors
// =============================================================================

// SurfaceConfig configures a Surface.
type SurfaceConfig struct {
	Width       uint32
	Height      uint32
	Composition SwapchainComposition
	PresentMode PresentMode
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDesc describes a texture allocation.
type TextureDesc struct {
	Label         string
	Type          TextureType
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
	Width         uint32
	Height        uint32
	DepthOrLayers uint32
	MipLevels     uint32
	SampleCount   uint32
}

// Layers returns the number of array layers at mip level. 3D textures
// report their depth at that level.
func (d TextureDesc) Layers(level uint32) uint32 {
	if d.Type == TextureType3D {
		return MipExtent(d.DepthOrLayers, level)
	}
	return d.DepthOrLayers
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	MinFilter        gputypes.FilterMode
	MagFilter        gputypes.FilterMode
	MipmapMode       gputypes.MipmapFilterMode
	AddressModeU     gputypes.AddressMode
	AddressModeV     gputypes.AddressMode
	AddressModeW     gputypes.AddressMode
	MipLODBias       float32
	MaxAnisotropy    float32
	CompareOp        gputypes.CompareFunction
	MinLOD           float32
	MaxLOD           float32
	EnableAnisotropy bool
	EnableCompare    bool
}

// ShaderDesc describes a vertex or fragment shader. The resource counts
// describe the bindings the shader declares.
type ShaderDesc struct {
	Code               []byte
	Entrypoint         string
	Format             ShaderFormat
	Stage              gputypes.ShaderStage
	NumSamplers        uint32
	NumStorageTextures uint32
	NumStorageBuffers  uint32
	NumUniformBuffers  uint32
}

// GraphicsPipelineDesc describes a graphics pipeline.
type GraphicsPipelineDesc struct {
	Label          string
	Vertex         Shader
	VertexDesc     ShaderDesc
	Fragment       Shader
	FragmentDesc   ShaderDesc
	VertexBuffers  []gputypes.VertexBufferLayout
	Primitive      gputypes.PrimitiveState
	Multisample    gputypes.MultisampleState
	DepthStencil   *gputypes.DepthStencilState
	ColorTargets   []gputypes.ColorTargetState
	HasDepthTarget bool
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label                       string
	Code                        []byte
	Entrypoint                  string
	Format                      ShaderFormat
	NumSamplers                 uint32
	NumReadonlyStorageTextures  uint32
	NumReadonlyStorageBuffers   uint32
	NumReadWriteStorageTextures uint32
	NumReadWriteStorageBuffers  uint32
	NumUniformBuffers           uint32
	ThreadCountX                uint32
	ThreadCountY                uint32
	ThreadCountZ                uint32
}

// TransferBufferDesc describes a staging allocation.
type TransferBufferDesc struct {
	Size     uint64
	Download bool
}
