package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

// ids are unique per process so cache keys never alias a dead object.
var ids atomic.Uint64

func nextID() uint64 { return ids.Add(1) }

// copyAlign is the WebGPU copy size granularity. Allocations are rounded
// up to it.
const copyAlign = 4

func alignUp(v, a uint64) uint64 { return (v + a - 1) / a * a }

// Buffer is a HAL buffer.
type Buffer struct {
	d     *Device
	id    uint64
	raw   hal.Buffer
	size  uint64
	label string

	// state is the usage the last encoded command left the buffer in.
	state gputypes.BufferUsage
}

// Size returns the requested size.
func (b *Buffer) Size() uint64 { return b.size }

// SetLabel renames the buffer for debug output.
func (b *Buffer) SetLabel(label string) { b.label = label }

// Destroy releases the buffer after in-flight work.
func (b *Buffer) Destroy() {
	b.d.caches.dropGroups(b.id)
	raw := b.raw
	b.d.deferDestroy(func() { b.d.dev.DestroyBuffer(raw) })
}

// Texture is a HAL texture or an acquired surface texture.
type Texture struct {
	d     *Device
	id    uint64
	raw   hal.Texture
	desc  driver.TextureDesc
	label string

	// usage is what the HAL texture was created with.
	usage gputypes.TextureUsage

	// surface is set for swapchain textures, which the surface owns.
	surface hal.SurfaceTexture

	state gputypes.TextureUsage
}

// Desc returns the texture description.
func (t *Texture) Desc() driver.TextureDesc { return t.desc }

// SetLabel renames the texture for debug output.
func (t *Texture) SetLabel(label string) { t.label = label }

// Destroy releases the texture and its cached views after in-flight work.
func (t *Texture) Destroy() {
	t.release()
	if t.surface != nil {
		return
	}
	raw := t.raw
	t.d.deferDestroy(func() { t.d.dev.DestroyTexture(raw) })
}

// release drops the texture's cached views.
func (t *Texture) release() {
	t.d.caches.dropTexture(t.id)
}

// Sampler is a HAL sampler.
type Sampler struct {
	d   *Device
	id  uint64
	raw hal.Sampler
}

// Destroy releases the sampler after in-flight work.
func (s *Sampler) Destroy() {
	s.d.caches.dropGroups(s.id)
	raw := s.raw
	s.d.deferDestroy(func() { s.d.dev.DestroySampler(raw) })
}

// Shader is a compiled shader module with its reflected bindings.
type Shader struct {
	d       *Device
	module  hal.ShaderModule
	desc    driver.ShaderDesc
	reflect reflection
}

// Destroy releases the module. Pipelines created from it stay valid.
func (s *Shader) Destroy() {
	module := s.module
	s.d.deferDestroy(func() { s.d.dev.DestroyShaderModule(module) })
}

// TransferBuffer is a mappable staging buffer.
type TransferBuffer struct {
	Buffer
	download bool

	mu     sync.Mutex
	mapped bool
}

// Map maps the whole buffer.
func (tb *TransferBuffer) Map() ([]byte, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.mapped {
		return nil, driver.ErrAlreadyMapped
	}
	m, err := tb.d.dev.MapBuffer(tb.raw, 0, alignUp(tb.size, copyAlign))
	if err != nil {
		return nil, fmt.Errorf("wgpu: map transfer buffer: %w", mapError(err))
	}
	tb.mapped = true
	return unsafe.Slice((*byte)(m.Ptr), tb.size), nil
}

// Unmap ends CPU access.
func (tb *TransferBuffer) Unmap() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if !tb.mapped {
		return
	}
	if err := tb.d.dev.UnmapBuffer(tb.raw); err != nil {
		driver.Logger().Warn("wgpu: unmap transfer buffer", "err", err)
	}
	tb.mapped = false
}

func asBuffer(b driver.Buffer) *Buffer {
	switch v := b.(type) {
	case *Buffer:
		return v
	case *TransferBuffer:
		return &v.Buffer
	default:
		panic(fmt.Sprintf("wgpu: foreign buffer %T", b))
	}
}

func asTexture(t driver.Texture) *Texture {
	v, ok := t.(*Texture)
	if !ok {
		panic(fmt.Sprintf("wgpu: foreign texture %T", t))
	}
	return v
}

func asSampler(s driver.Sampler) *Sampler {
	v, ok := s.(*Sampler)
	if !ok {
		panic(fmt.Sprintf("wgpu: foreign sampler %T", s))
	}
	return v
}

func asShader(s driver.Shader) *Shader {
	v, ok := s.(*Shader)
	if !ok {
		panic(fmt.Sprintf("wgpu: foreign shader %T", s))
	}
	return v
}

func asPipeline(p driver.Pipeline) *Pipeline {
	v, ok := p.(*Pipeline)
	if !ok {
		panic(fmt.Sprintf("wgpu: foreign pipeline %T", p))
	}
	return v
}

// =============================================================================
// Creation
// =============================================================================

// CreateBuffer allocates a buffer. Copy usages are always added because
// uploads, downloads and copies go through the queue.
func (d *Device) CreateBuffer(desc *driver.BufferDesc) (driver.Buffer, error) {
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignUp(desc.Size, copyAlign),
		Usage: desc.Usage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, d.fail("create buffer", err)
	}
	return &Buffer{d: d, id: nextID(), raw: raw, size: desc.Size, label: desc.Label}, nil
}

// CreateTexture allocates a texture. Copy usages are always added; mipmapped
// color textures also get the usages mip generation renders with.
func (d *Device) CreateTexture(desc *driver.TextureDesc) (driver.Texture, error) {
	usage := desc.Usage | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if desc.MipLevels > 1 && desc.SampleCount <= 1 && !desc.Format.IsDepthStencil() && !driver.IsCompressed(desc.Format) {
		flags := d.cfg.adapter.Adapter.TextureFormatCapabilities(desc.Format).Flags
		if flags&hal.TextureFormatCapabilityRenderAttachment != 0 && flags&hal.TextureFormatCapabilitySampled != 0 {
			usage |= gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
		}
	}
	raw, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.DepthOrLayers},
		MipLevelCount: desc.MipLevels,
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     desc.Type.Dimension(),
		Format:        desc.Format,
		Usage:         usage,
	})
	if err != nil {
		return nil, d.fail("create texture", err)
	}
	return &Texture{d: d, id: nextID(), raw: raw, desc: *desc, label: desc.Label, usage: usage}, nil
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *driver.SamplerDesc) (driver.Sampler, error) {
	hd := &hal.SamplerDescriptor{
		AddressModeU: desc.AddressModeU,
		AddressModeV: desc.AddressModeV,
		AddressModeW: desc.AddressModeW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: mipmapFilter(desc.MipmapMode),
		LodMinClamp:  desc.MinLOD,
		LodMaxClamp:  desc.MaxLOD,
		Anisotropy:   1,
	}
	if desc.EnableCompare {
		hd.Compare = desc.CompareOp
	}
	if desc.EnableAnisotropy && desc.MaxAnisotropy > 1 {
		hd.Anisotropy = uint16(min(desc.MaxAnisotropy, 16))
	}
	raw, err := d.dev.CreateSampler(hd)
	if err != nil {
		return nil, d.fail("create sampler", err)
	}
	return &Sampler{d: d, id: nextID(), raw: raw}, nil
}

// CreateShader validates and compiles a vertex or fragment shader.
func (d *Device) CreateShader(desc *driver.ShaderDesc) (driver.Shader, error) {
	c, err := compileShader(d.cfg.backend, desc.Format, desc.Code, desc.Entrypoint, desc.Stage, d.cfg.debug)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader: %w", err)
	}
	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Entrypoint,
		Source: c.source,
	})
	if err != nil {
		return nil, d.fail("create shader", err)
	}
	return &Shader{d: d, module: module, desc: *desc, reflect: c.reflect}, nil
}

// CreateTransferBuffer allocates a mappable staging buffer.
func (d *Device) CreateTransferBuffer(desc *driver.TransferBufferDesc) (driver.TransferBuffer, error) {
	usage := gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	label := "upload"
	if desc.Download {
		usage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
		label = "download"
	}
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  alignUp(desc.Size, copyAlign),
		Usage: usage,
	})
	if err != nil {
		return nil, d.fail("create transfer buffer", err)
	}
	return &TransferBuffer{
		Buffer:   Buffer{d: d, id: nextID(), raw: raw, size: desc.Size, label: label},
		download: desc.Download,
	}, nil
}
