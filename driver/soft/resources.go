package soft

import (
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

// Buffer is a byte-slice buffer.
type Buffer struct {
	data      []byte
	label     string
	usage     gputypes.BufferUsage
	destroyed atomic.Bool
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// Destroy marks the buffer destroyed.
func (b *Buffer) Destroy() { b.destroyed.Store(true) }

// Destroyed reports whether Destroy was called.
func (b *Buffer) Destroyed() bool { return b.destroyed.Load() }

// SetLabel sets the debug name.
func (b *Buffer) SetLabel(label string) { b.label = label }

// Label returns the debug name.
func (b *Buffer) Label() string { return b.label }

// Bytes returns the backing memory. Reading it while the timeline writes
// the buffer is a data race; wait for the submission first.
func (b *Buffer) Bytes() []byte { return b.data }

// Texture stores every mip level as one contiguous slice holding all of
// that level's layers (or depth slices).
type Texture struct {
	desc      driver.TextureDesc
	block     driver.BlockInfo
	levels    [][]byte
	label     string
	destroyed atomic.Bool
}

// Desc returns the creation descriptor.
func (t *Texture) Desc() driver.TextureDesc { return t.desc }

// Destroy marks the texture destroyed.
func (t *Texture) Destroy() { t.destroyed.Store(true) }

// Destroyed reports whether Destroy was called.
func (t *Texture) Destroyed() bool { return t.destroyed.Load() }

// SetLabel sets the debug name.
func (t *Texture) SetLabel(label string) { t.label = label }

// Label returns the debug name.
func (t *Texture) Label() string { return t.label }

// Slice returns the bytes of one layer (or depth slice) of a mip level.
func (t *Texture) Slice(level, layer uint32) []byte {
	size := t.sliceSize(level)
	start := uint64(layer) * size
	return t.levels[level][start : start+size]
}

func (t *Texture) sliceSize(level uint32) uint64 {
	return t.block.SliceSize(driver.MipExtent(t.desc.Width, level), driver.MipExtent(t.desc.Height, level))
}

func (t *Texture) rowPitch(level uint32) uint64 {
	return t.block.RowPitch(driver.MipExtent(t.desc.Width, level))
}

// Sampler holds a sampler description.
type Sampler struct {
	desc      driver.SamplerDesc
	destroyed atomic.Bool
}

// Destroy marks the sampler destroyed.
func (s *Sampler) Destroy() { s.destroyed.Store(true) }

// Shader holds shader code.
type Shader struct {
	desc      driver.ShaderDesc
	destroyed atomic.Bool
}

// Destroy marks the shader destroyed.
func (s *Shader) Destroy() { s.destroyed.Store(true) }

// Pipeline is a graphics or compute pipeline.
type Pipeline struct {
	label     string
	compute   bool
	destroyed atomic.Bool
}

// Destroy marks the pipeline destroyed.
func (p *Pipeline) Destroy() { p.destroyed.Store(true) }

// Destroyed reports whether Destroy was called.
func (p *Pipeline) Destroyed() bool { return p.destroyed.Load() }

// Label returns the pipeline label.
func (p *Pipeline) Label() string { return p.label }

// TransferBuffer is a mappable staging buffer.
type TransferBuffer struct {
	Buffer
	download bool
	mapped   atomic.Bool
}

// Map returns the backing memory.
func (tb *TransferBuffer) Map() ([]byte, error) {
	if !tb.mapped.CompareAndSwap(false, true) {
		return nil, driver.ErrAlreadyMapped
	}
	return tb.data, nil
}

// Unmap ends CPU access.
func (tb *TransferBuffer) Unmap() { tb.mapped.Store(false) }

// Mapped reports whether the buffer is mapped.
func (tb *TransferBuffer) Mapped() bool { return tb.mapped.Load() }
