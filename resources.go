package gpucmd

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gpucmd/driver"
)

// =============================================================================
// Buffers
// =============================================================================

// CreateBuffer creates a buffer. Its contents are undefined until written.
func (d *Device) CreateBuffer(info BufferCreateInfo) (_ Buffer, err error) {
	defer d.record(&err)

	if err := info.Usage.validate(); err != nil {
		return Buffer{}, fmt.Errorf("create buffer: %w", err)
	}
	if info.Size == 0 {
		return Buffer{}, fmt.Errorf("create buffer: %w: zero size", ErrInvalidDescriptor)
	}
	if err := d.checkLive("create buffer"); err != nil {
		return Buffer{}, err
	}

	a, err := d.allocBuffer(&info)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{d.buffers.Insert(&buffer{info: info, ring: newRing(a)})}, nil
}

func (d *Device) allocBuffer(info *BufferCreateInfo) (*allocation[driver.Buffer], error) {
	if err := d.mem.reserve(info.Size); err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	res, err := d.drv.CreateBuffer(&driver.BufferDesc{Label: info.Name, Size: info.Size, Usage: info.Usage.lower()})
	if err != nil {
		d.mem.release(info.Size)
		return nil, d.driverErr("create buffer", err)
	}
	return &allocation[driver.Buffer]{res: res, size: info.Size}, nil
}

// ReleaseBuffer invalidates b. Its memory is freed once the GPU is done
// with it.
func (d *Device) ReleaseBuffer(b Buffer) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers.Remove(b.id)
	if !ok {
		return fmt.Errorf("release buffer: %w: %v", ErrInvalidHandle, b)
	}
	retireRing(d, &buf.ring)
	d.reapLocked()
	return nil
}

// SetBufferName sets the debug name of b.
func (d *Device) SetBufferName(b Buffer, name string) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.buffer(b)
	if err != nil {
		return fmt.Errorf("set buffer name: %w", err)
	}
	buf.info.Name = name
	for _, a := range buf.ring.slots {
		setLabel(a.res, name)
	}
	return nil
}

// =============================================================================
// Textures
// =============================================================================

// CreateTexture creates a texture. Its contents are undefined until written.
func (d *Device) CreateTexture(info TextureCreateInfo) (_ Texture, err error) {
	defer d.record(&err)

	if info.SampleCount == 0 {
		info.SampleCount = 1
	}
	if err := d.validateTexture(&info); err != nil {
		return Texture{}, fmt.Errorf("create texture: %w", err)
	}
	if err := d.checkLive("create texture"); err != nil {
		return Texture{}, err
	}

	t := &texture{info: info}
	a, err := d.allocTexture(t)
	if err != nil {
		return Texture{}, err
	}
	t.ring = newRing(a)
	return Texture{d.textures.Insert(t)}, nil
}

//nolint:gocyclo,cyclop // flat rule list
func (d *Device) validateTexture(info *TextureCreateInfo) error {
	if err := info.Usage.validate(); err != nil {
		return err
	}
	if info.Type > TextureTypeCubeArray {
		return fmt.Errorf("%w: texture type %v", ErrInvalidDescriptor, info.Type)
	}
	if info.Width == 0 || info.Height == 0 || info.LayerCountOrDepth == 0 || info.NumLevels == 0 {
		return fmt.Errorf("%w: zero extent, layer count or level count", ErrInvalidDescriptor)
	}
	if _, ok := driver.Block(info.Format); !ok {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, info.Format)
	}

	depth := info.Format.IsDepthStencil()
	if info.Usage.Contains(TextureUsageDepthStencilTarget) && !depth {
		return fmt.Errorf("%w: depth-stencil target with color format %v", ErrUnsupportedUsageCombination, info.Format)
	}
	if info.Usage.Contains(TextureUsageColorTarget) && depth {
		return fmt.Errorf("%w: color target with depth format %v", ErrUnsupportedUsageCombination, info.Format)
	}

	switch info.Type {
	case TextureType2D:
		if info.LayerCountOrDepth != 1 {
			return fmt.Errorf("%w: 2D texture with %d layers", ErrInvalidDescriptor, info.LayerCountOrDepth)
		}
	case TextureTypeCube, TextureTypeCubeArray:
		if info.Width != info.Height {
			return fmt.Errorf("%w: cube faces must be square", ErrInvalidDescriptor)
		}
		if info.Type == TextureTypeCube && info.LayerCountOrDepth != 6 ||
			info.Type == TextureTypeCubeArray && info.LayerCountOrDepth%6 != 0 {
			return fmt.Errorf("%w: cube layer count %d", ErrInvalidDescriptor, info.LayerCountOrDepth)
		}
	}

	switch info.SampleCount {
	case 1:
	case 2, 4, 8:
		if info.Type != TextureType2D && info.Type != TextureType2DArray {
			return fmt.Errorf("%w: %d samples on %v texture", ErrUnsupportedSampleCount, info.SampleCount, info.Type)
		}
		if info.NumLevels != 1 {
			return fmt.Errorf("%w: multisampled textures have one level", ErrInvalidDescriptor)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedSampleCount, info.SampleCount)
	}

	largest := max(info.Width, info.Height)
	if info.Type == TextureType3D {
		largest = max(largest, info.LayerCountOrDepth)
	}
	//nolint:gosec // G115: bits.Len32 is at most 32
	if maxLevels := uint32(bits.Len32(largest)); info.NumLevels > maxLevels {
		return fmt.Errorf("%w: %d levels for %dx%d", ErrInvalidDescriptor, info.NumLevels, info.Width, info.Height)
	}

	if !d.drv.SupportsTextureFormat(info.Format, info.Type, info.Usage.lower()) {
		return fmt.Errorf("%w: %v as %v with %v", ErrUnsupportedFormat, info.Format, info.Type, info.Usage)
	}
	if !d.drv.SupportsSampleCount(info.Format, info.SampleCount) {
		return fmt.Errorf("%w: %d for %v", ErrUnsupportedSampleCount, info.SampleCount, info.Format)
	}
	return nil
}

// textureSize returns the bytes of every level and layer of t.
func textureSize(t *texture) uint64 {
	var total uint64
	for level := uint32(0); level < t.info.NumLevels; level++ {
		w := driver.MipExtent(t.info.Width, level)
		h := driver.MipExtent(t.info.Height, level)
		total += driver.FormatSize(t.info.Format, w, h, t.layers(level))
	}
	return total * uint64(t.info.SampleCount)
}

func (d *Device) allocTexture(t *texture) (*allocation[driver.Texture], error) {
	size := textureSize(t)
	if err := d.mem.reserve(size); err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}
	desc := t.desc()
	res, err := d.drv.CreateTexture(&desc)
	if err != nil {
		d.mem.release(size)
		return nil, d.driverErr("create texture", err)
	}
	return &allocation[driver.Texture]{res: res, size: size}, nil
}

// ReleaseTexture invalidates t. Swapchain textures cannot be released;
// they are consumed when their command buffer is submitted.
func (d *Device) ReleaseTexture(t Texture) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	tex, ok := d.textures.Get(t.id)
	if !ok {
		return fmt.Errorf("release texture: %w: %v", ErrInvalidHandle, t)
	}
	if tex.swapchain != nil {
		return fmt.Errorf("release texture: %w: swapchain texture", ErrInvalidHandle)
	}
	d.textures.Remove(t.id)
	retireRing(d, &tex.ring)
	d.reapLocked()
	return nil
}

// SetTextureName sets the debug name of t.
func (d *Device) SetTextureName(t Texture, name string) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	tex, err := d.texture(t, nil)
	if err != nil {
		return fmt.Errorf("set texture name: %w", err)
	}
	tex.info.Name = name
	for _, a := range tex.ring.slots {
		setLabel(a.res, name)
	}
	return nil
}

// =============================================================================
// Samplers, shaders and pipelines
// =============================================================================

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(info SamplerCreateInfo) (_ Sampler, err error) {
	defer d.record(&err)

	if info.EnableAnisotropy && info.MaxAnisotropy < 1 {
		return Sampler{}, fmt.Errorf("create sampler: %w: max anisotropy %g", ErrInvalidDescriptor, info.MaxAnisotropy)
	}
	if info.MinLOD > info.MaxLOD {
		return Sampler{}, fmt.Errorf("create sampler: %w: min LOD above max LOD", ErrInvalidDescriptor)
	}
	if err := d.checkLive("create sampler"); err != nil {
		return Sampler{}, err
	}
	res, err := d.drv.CreateSampler(&info)
	if err != nil {
		return Sampler{}, d.driverErr("create sampler", err)
	}
	return Sampler{d.samplers.Insert(&sampler{alloc: &allocation[driver.Sampler]{res: res}})}, nil
}

// ReleaseSampler invalidates s.
func (d *Device) ReleaseSampler(s Sampler) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()
	smp, ok := d.samplers.Remove(s.id)
	if !ok {
		return fmt.Errorf("release sampler: %w", ErrInvalidHandle)
	}
	d.retireLocked(smp.alloc)
	d.reapLocked()
	return nil
}

func (d *Device) checkShaderFormat(f ShaderFormat) error {
	if bits.OnesCount32(uint32(f)) != 1 {
		return fmt.Errorf("%w: need exactly one format, got %v", ErrUnsupportedShaderFormat, f)
	}
	if !d.formats.Contains(f) {
		return fmt.Errorf("%w: %v not in %v", ErrUnsupportedShaderFormat, f, d.formats)
	}
	return nil
}

func shaderDesc(info *ShaderCreateInfo) driver.ShaderDesc {
	entry := info.Entrypoint
	if entry == "" {
		entry = "main"
	}
	return driver.ShaderDesc{
		Code:               info.Code,
		Entrypoint:         entry,
		Format:             info.Format,
		Stage:              info.Stage.lower(),
		NumSamplers:        info.NumSamplers,
		NumStorageTextures: info.NumStorageTextures,
		NumStorageBuffers:  info.NumStorageBuffers,
		NumUniformBuffers:  info.NumUniformBuffers,
	}
}

// CreateShader creates a graphics shader.
func (d *Device) CreateShader(info ShaderCreateInfo) (_ Shader, err error) {
	defer d.record(&err)

	if err := d.checkShaderFormat(info.Format); err != nil {
		return Shader{}, fmt.Errorf("create shader: %w", err)
	}
	switch {
	case len(info.Code) == 0:
		return Shader{}, fmt.Errorf("create shader: %w: empty code", ErrInvalidDescriptor)
	case info.Stage > ShaderStageFragment:
		return Shader{}, fmt.Errorf("create shader: %w: stage %v", ErrInvalidDescriptor, info.Stage)
	case info.NumSamplers > MaxSamplersPerStage,
		info.NumStorageTextures > MaxStorageTexturesPerStage,
		info.NumStorageBuffers > MaxStorageBuffersPerStage,
		info.NumUniformBuffers > MaxUniformSlots:
		return Shader{}, fmt.Errorf("create shader: %w", ErrSlotOutOfRange)
	}
	if err := d.checkLive("create shader"); err != nil {
		return Shader{}, err
	}

	desc := shaderDesc(&info)
	res, err := d.drv.CreateShader(&desc)
	if err != nil {
		return Shader{}, d.driverErr("create shader", err)
	}
	setLabel(res, info.Name)
	return Shader{d.shaders.Insert(&shader{info: info, alloc: &allocation[driver.Shader]{res: res}})}, nil
}

// ReleaseShader invalidates s. Pipelines created from it stay valid.
func (d *Device) ReleaseShader(s Shader) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()
	sh, ok := d.shaders.Remove(s.id)
	if !ok {
		return fmt.Errorf("release shader: %w", ErrInvalidHandle)
	}
	d.retireLocked(sh.alloc)
	d.reapLocked()
	return nil
}

// CreateGraphicsPipeline creates a graphics pipeline.
func (d *Device) CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (_ GraphicsPipeline, err error) {
	defer d.record(&err)

	if len(info.ColorTargets) > MaxColorTargets {
		return GraphicsPipeline{}, fmt.Errorf("create graphics pipeline: %w: %d color targets", ErrInvalidDescriptor, len(info.ColorTargets))
	}
	if len(info.ColorTargets) == 0 && info.DepthStencil == nil {
		return GraphicsPipeline{}, fmt.Errorf("create graphics pipeline: %w: no targets", ErrInvalidDescriptor)
	}
	if len(info.VertexBuffers) > MaxVertexBuffers {
		return GraphicsPipeline{}, fmt.Errorf("create graphics pipeline: %w: %d vertex buffers", ErrSlotOutOfRange, len(info.VertexBuffers))
	}

	d.mu.Lock()
	if err := d.liveLocked(); err != nil {
		d.mu.Unlock()
		return GraphicsPipeline{}, fmt.Errorf("create graphics pipeline: %w", err)
	}
	vs, vErr := d.shader(info.VertexShader)
	fs, fErr := d.shader(info.FragmentShader)
	d.mu.Unlock()
	switch {
	case vErr != nil:
		return GraphicsPipeline{}, fmt.Errorf("create graphics pipeline: vertex shader: %w", vErr)
	case fErr != nil:
		return GraphicsPipeline{}, fmt.Errorf("create graphics pipeline: fragment shader: %w", fErr)
	case vs.info.Stage != ShaderStageVertex || fs.info.Stage != ShaderStageFragment:
		return GraphicsPipeline{}, fmt.Errorf("create graphics pipeline: %w: shader stages swapped", ErrInvalidDescriptor)
	}

	res, err := d.drv.CreateGraphicsPipeline(&driver.GraphicsPipelineDesc{
		Label:          info.Name,
		Vertex:         vs.alloc.res,
		VertexDesc:     shaderDesc(&vs.info),
		Fragment:       fs.alloc.res,
		FragmentDesc:   shaderDesc(&fs.info),
		VertexBuffers:  info.VertexBuffers,
		Primitive:      info.Primitive,
		Multisample:    info.Multisample,
		DepthStencil:   info.DepthStencil,
		ColorTargets:   info.ColorTargets,
		HasDepthTarget: info.DepthStencil != nil,
	})
	if err != nil {
		return GraphicsPipeline{}, d.driverErr("create graphics pipeline", err)
	}
	p := &graphicsPipeline{info: info, alloc: &allocation[driver.Pipeline]{res: res}}
	return GraphicsPipeline{d.graphicsPipelines.Insert(p)}, nil
}

// ReleaseGraphicsPipeline invalidates p.
func (d *Device) ReleaseGraphicsPipeline(p GraphicsPipeline) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()
	gp, ok := d.graphicsPipelines.Remove(p.id)
	if !ok {
		return fmt.Errorf("release graphics pipeline: %w", ErrInvalidHandle)
	}
	d.retireLocked(gp.alloc)
	d.reapLocked()
	return nil
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(info ComputePipelineCreateInfo) (_ ComputePipeline, err error) {
	defer d.record(&err)

	if err := d.checkShaderFormat(info.Format); err != nil {
		return ComputePipeline{}, fmt.Errorf("create compute pipeline: %w", err)
	}
	switch {
	case len(info.Code) == 0:
		return ComputePipeline{}, fmt.Errorf("create compute pipeline: %w: empty code", ErrInvalidDescriptor)
	case info.ThreadCountX == 0 || info.ThreadCountY == 0 || info.ThreadCountZ == 0:
		return ComputePipeline{}, fmt.Errorf("create compute pipeline: %w: zero thread count", ErrInvalidDescriptor)
	case info.NumSamplers > MaxSamplersPerStage,
		info.NumReadonlyStorageTextures > MaxStorageTexturesPerStage,
		info.NumReadonlyStorageBuffers > MaxStorageBuffersPerStage,
		info.NumReadWriteStorageTextures > MaxStorageTexturesPerStage,
		info.NumReadWriteStorageBuffers > MaxStorageBuffersPerStage,
		info.NumUniformBuffers > MaxUniformSlots:
		return ComputePipeline{}, fmt.Errorf("create compute pipeline: %w", ErrSlotOutOfRange)
	}
	if err := d.checkLive("create compute pipeline"); err != nil {
		return ComputePipeline{}, err
	}

	entry := info.Entrypoint
	if entry == "" {
		entry = "main"
	}
	res, err := d.drv.CreateComputePipeline(&driver.ComputePipelineDesc{
		Label:                       info.Name,
		Code:                        info.Code,
		Entrypoint:                  entry,
		Format:                      info.Format,
		NumSamplers:                 info.NumSamplers,
		NumReadonlyStorageTextures:  info.NumReadonlyStorageTextures,
		NumReadonlyStorageBuffers:   info.NumReadonlyStorageBuffers,
		NumReadWriteStorageTextures: info.NumReadWriteStorageTextures,
		NumReadWriteStorageBuffers:  info.NumReadWriteStorageBuffers,
		NumUniformBuffers:           info.NumUniformBuffers,
		ThreadCountX:                info.ThreadCountX,
		ThreadCountY:                info.ThreadCountY,
		ThreadCountZ:                info.ThreadCountZ,
	})
	if err != nil {
		return ComputePipeline{}, d.driverErr("create compute pipeline", err)
	}
	p := &computePipeline{info: info, alloc: &allocation[driver.Pipeline]{res: res}}
	return ComputePipeline{d.computePipelines.Insert(p)}, nil
}

// ReleaseComputePipeline invalidates p.
func (d *Device) ReleaseComputePipeline(p ComputePipeline) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()
	cp, ok := d.computePipelines.Remove(p.id)
	if !ok {
		return fmt.Errorf("release compute pipeline: %w", ErrInvalidHandle)
	}
	d.retireLocked(cp.alloc)
	d.reapLocked()
	return nil
}

// =============================================================================
// Transfer buffers
// =============================================================================

// CreateTransferBuffer creates a CPU-mappable staging buffer.
func (d *Device) CreateTransferBuffer(info TransferBufferCreateInfo) (_ TransferBuffer, err error) {
	defer d.record(&err)

	if info.Usage != TransferBufferUsageUpload && info.Usage != TransferBufferUsageDownload {
		return TransferBuffer{}, fmt.Errorf("create transfer buffer: %w: usage %v", ErrUnsupportedUsageCombination, info.Usage)
	}
	if info.Size == 0 {
		return TransferBuffer{}, fmt.Errorf("create transfer buffer: %w: zero size", ErrInvalidDescriptor)
	}
	if err := d.checkLive("create transfer buffer"); err != nil {
		return TransferBuffer{}, err
	}
	a, err := d.allocTransferBuffer(&info)
	if err != nil {
		return TransferBuffer{}, err
	}
	return TransferBuffer{d.transferBuffers.Insert(&transferBuffer{info: info, ring: newRing(a)})}, nil
}

func (d *Device) allocTransferBuffer(info *TransferBufferCreateInfo) (*allocation[driver.TransferBuffer], error) {
	if err := d.mem.reserve(info.Size); err != nil {
		return nil, fmt.Errorf("create transfer buffer: %w", err)
	}
	res, err := d.drv.CreateTransferBuffer(&driver.TransferBufferDesc{
		Size:     info.Size,
		Download: info.Usage == TransferBufferUsageDownload,
	})
	if err != nil {
		d.mem.release(info.Size)
		return nil, d.driverErr("create transfer buffer", err)
	}
	setLabel(res, info.Name)
	return &allocation[driver.TransferBuffer]{res: res, size: info.Size}, nil
}

// MapTransferBuffer maps tb for CPU access until UnmapTransferBuffer. With
// cycle set, a transfer buffer still in use by recorded or in-flight work
// moves to an idle allocation first. Without it, writing memory the GPU is
// reading is a data race.
func (d *Device) MapTransferBuffer(tb TransferBuffer, cycle bool) (_ []byte, err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.liveLocked(); err != nil {
		return nil, fmt.Errorf("map transfer buffer: %w", err)
	}
	t, err := d.transferBuffer(tb)
	if err != nil {
		return nil, fmt.Errorf("map transfer buffer: %w", err)
	}
	if t.mapped != nil {
		return nil, fmt.Errorf("map transfer buffer: %w", ErrTransferBufferMapped)
	}
	if cycle {
		d.reapLocked()
		if err := d.cycleTransferBufferLocked(t); err != nil {
			return nil, fmt.Errorf("map transfer buffer: %w", err)
		}
	}

	a := t.ring.current()
	mem, err := a.res.Map()
	if err != nil {
		return nil, d.driverErr("map transfer buffer", err)
	}
	t.mapped = a
	return mem, nil
}

// UnmapTransferBuffer ends CPU access to tb. Unmapping an unmapped buffer
// does nothing.
func (d *Device) UnmapTransferBuffer(tb TransferBuffer) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.transferBuffer(tb)
	if err != nil {
		return fmt.Errorf("unmap transfer buffer: %w", err)
	}
	if t.mapped != nil {
		t.mapped.res.Unmap()
		t.mapped = nil
	}
	return nil
}

// ReleaseTransferBuffer invalidates tb, unmapping it if needed.
func (d *Device) ReleaseTransferBuffer(tb TransferBuffer) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.transferBuffers.Remove(tb.id)
	if !ok {
		return fmt.Errorf("release transfer buffer: %w: %v", ErrInvalidHandle, tb)
	}
	if t.mapped != nil {
		t.mapped.res.Unmap()
		t.mapped = nil
	}
	retireRing(d, &t.ring)
	d.reapLocked()
	return nil
}

// =============================================================================
// Cycling
// =============================================================================

func (d *Device) cycleBufferLocked(b *buffer) error {
	cycled, err := b.ring.cycle(d.state.completed, func() (*allocation[driver.Buffer], error) {
		return d.allocBuffer(&b.info)
	})
	if cycled {
		d.log.Debug("gpucmd: buffer cycled", "name", b.info.Name, "slot", b.ring.cur, "slots", len(b.ring.slots))
	}
	return err
}

func (d *Device) cycleTextureLocked(t *texture) error {
	if t.swapchain != nil {
		return nil
	}
	cycled, err := t.ring.cycle(d.state.completed, func() (*allocation[driver.Texture], error) {
		return d.allocTexture(t)
	})
	if cycled {
		d.log.Debug("gpucmd: texture cycled", "name", t.info.Name, "slot", t.ring.cur, "slots", len(t.ring.slots))
	}
	return err
}

func (d *Device) cycleTransferBufferLocked(t *transferBuffer) error {
	cycled, err := t.ring.cycle(d.state.completed, func() (*allocation[driver.TransferBuffer], error) {
		return d.allocTransferBuffer(&t.info)
	})
	if cycled {
		d.log.Debug("gpucmd: transfer buffer cycled", "name", t.info.Name, "slot", t.ring.cur, "slots", len(t.ring.slots))
	}
	return err
}

// =============================================================================
// Handle resolution (Device.mu held)
// =============================================================================

func (d *Device) checkLive(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.liveLocked(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (d *Device) buffer(h Buffer) (*buffer, error) {
	b, ok := d.buffers.Get(h.id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	return b, nil
}

// texture resolves h. Swapchain textures resolve only for the command
// buffer that acquired them; a nil cb skips that check.
func (d *Device) texture(h Texture, cb *CommandBuffer) (*texture, error) {
	t, ok := d.textures.Get(h.id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	if cb != nil && t.swapchain != nil && t.owner != cb {
		return nil, fmt.Errorf("%w: swapchain texture belongs to another command buffer", ErrInvalidHandle)
	}
	return t, nil
}

func (d *Device) sampler(h Sampler) (*sampler, error) {
	s, ok := d.samplers.Get(h.id)
	if !ok {
		return nil, fmt.Errorf("%w: sampler", ErrInvalidHandle)
	}
	return s, nil
}

func (d *Device) shader(h Shader) (*shader, error) {
	s, ok := d.shaders.Get(h.id)
	if !ok {
		return nil, fmt.Errorf("%w: shader", ErrInvalidHandle)
	}
	return s, nil
}

func (d *Device) transferBuffer(h TransferBuffer) (*transferBuffer, error) {
	t, ok := d.transferBuffers.Get(h.id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	return t, nil
}

func setLabel(res any, name string) {
	if l, ok := res.(driver.Labeled); ok && name != "" {
		l.SetLabel(name)
	}
}
