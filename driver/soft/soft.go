// Package soft is a pure-Go reference driver.
//
// Buffers and textures are byte slices. Submissions execute in order on a
// dedicated timeline goroutine, so the CPU and GPU timelines are genuinely
// asynchronous. Copies, uploads, downloads, clears, resolves, mip generation
// and blits move real bytes; draws and dispatches have no shader execution
// and are recorded in a trace instead. Indirect draws and dispatches decode
// their records from buffer memory at execution time.
//
// The driver registers itself as "soft":
//
//	import _ "github.com/gogpu/gpucmd/driver/soft"
package soft

import (
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

func init() {
	driver.Register(driver.NameSoft, func() driver.Driver { return New() })
}

// shaderFormats are the formats soft devices accept. Code is kept opaque.
const shaderFormats = driver.ShaderFormatPrivate | driver.ShaderFormatSPIRV | driver.ShaderFormatWGSL

// Option configures the driver.
type Option func(*Driver)

// WithLatency delays the execution of every submission by d, which keeps
// work observably in flight.
func WithLatency(d time.Duration) Option {
	return func(drv *Driver) {
		drv.latency = d
	}
}

// Driver is the soft driver.
type Driver struct {
	latency time.Duration
}

// New creates a soft driver.
func New(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns "soft".
func (*Driver) Name() string { return driver.NameSoft }

// ShaderFormats returns the accepted shader formats.
func (*Driver) ShaderFormats() driver.ShaderFormat { return shaderFormats }

// Available always returns true.
func (*Driver) Available() bool { return true }

// Open creates a device and starts its timeline.
func (drv *Driver) Open(cfg driver.OpenConfig) (driver.Device, error) {
	if cfg.ShaderFormats != 0 && !shaderFormats.Intersects(cfg.ShaderFormats) {
		return nil, fmt.Errorf("soft: open: %w: %v", driver.ErrUnsupportedShaderFormat, cfg.ShaderFormats)
	}
	d := newDevice(cfg, drv.latency)
	driver.Logger().Info("soft: device opened", "debug", cfg.Debug)
	return d, nil
}

// =============================================================================
// Device
// =============================================================================

// Info describes the device.
func (d *Device) Info() driver.Info {
	return driver.Info{
		Driver: driver.NameSoft,
		Adapter: gpucontext.AdapterInfo{
			Name: "gpucmd soft",
			Type: gpucontext.AdapterTypeSoftware,
		},
		Backend:       gputypes.BackendEmpty,
		ShaderFormats: shaderFormats,
	}
}

// Limits returns the default WebGPU limits.
func (d *Device) Limits() gputypes.Limits { return gputypes.DefaultLimits() }

// SupportsTextureFormat reports whether a texture can be created.
func (d *Device) SupportsTextureFormat(format gputypes.TextureFormat, typ driver.TextureType, usage gputypes.TextureUsage) bool {
	if _, ok := driver.Block(format); !ok {
		return false
	}
	if format.IsDepthStencil() {
		if usage.Contains(gputypes.TextureUsageStorageBinding) || typ == driver.TextureType3D {
			return false
		}
	}
	if driver.IsCompressed(format) {
		if usage.Contains(gputypes.TextureUsageRenderAttachment) || usage.Contains(gputypes.TextureUsageStorageBinding) {
			return false
		}
	}
	return true
}

// SupportsSampleCount reports whether format supports count samples.
func (d *Device) SupportsSampleCount(format gputypes.TextureFormat, count uint32) bool {
	switch count {
	case 1:
		return true
	case 2, 4, 8:
		return !driver.IsCompressed(format)
	default:
		return false
	}
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *driver.BufferDesc) (driver.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("soft: create buffer: zero size")
	}
	return &Buffer{data: make([]byte, desc.Size), label: desc.Label, usage: desc.Usage}, nil
}

// CreateTexture allocates a zeroed texture with every mip level.
func (d *Device) CreateTexture(desc *driver.TextureDesc) (driver.Texture, error) {
	block, ok := driver.Block(desc.Format)
	if !ok {
		return nil, fmt.Errorf("soft: create texture: %w: format %v", driver.ErrUnsupported, desc.Format)
	}
	t := &Texture{desc: *desc, block: block, label: desc.Label}
	t.levels = make([][]byte, desc.MipLevels)
	for level := range t.levels {
		//nolint:gosec // G115: mip count is validated by the caller
		l := uint32(level)
		w, h := driver.MipExtent(desc.Width, l), driver.MipExtent(desc.Height, l)
		t.levels[level] = make([]byte, block.SliceSize(w, h)*uint64(desc.Layers(l)))
	}
	return t, nil
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *driver.SamplerDesc) (driver.Sampler, error) {
	return &Sampler{desc: *desc}, nil
}

// CreateShader stores shader code without compiling it.
func (d *Device) CreateShader(desc *driver.ShaderDesc) (driver.Shader, error) {
	if !shaderFormats.Contains(desc.Format) || desc.Format == driver.ShaderFormatInvalid {
		return nil, fmt.Errorf("soft: create shader: %w: %v", driver.ErrUnsupportedShaderFormat, desc.Format)
	}
	return &Shader{desc: *desc}, nil
}

// CreateGraphicsPipeline creates a graphics pipeline.
func (d *Device) CreateGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	return &Pipeline{label: desc.Label, compute: false}, nil
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *driver.ComputePipelineDesc) (driver.Pipeline, error) {
	if !shaderFormats.Contains(desc.Format) || desc.Format == driver.ShaderFormatInvalid {
		return nil, fmt.Errorf("soft: create compute pipeline: %w: %v", driver.ErrUnsupportedShaderFormat, desc.Format)
	}
	return &Pipeline{label: desc.Label, compute: true}, nil
}

// CreateTransferBuffer allocates a staging buffer.
func (d *Device) CreateTransferBuffer(desc *driver.TransferBufferDesc) (driver.TransferBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("soft: create transfer buffer: zero size")
	}
	return &TransferBuffer{Buffer: Buffer{data: make([]byte, desc.Size)}, download: desc.Download}, nil
}

// CreateSurface creates an offscreen surface for window.
func (d *Device) CreateSurface(window gpucontext.WindowProvider) (driver.Surface, error) {
	return newSurface(d, window), nil
}
