package gpucmd

import (
	"github.com/gogpu/gpucmd/driver"
	"github.com/gogpu/gpucmd/internal/handle"
)

// Buffer is a handle to a GPU buffer. The zero value is the null handle.
type Buffer struct{ id handle.ID[*buffer] }

// IsNull reports whether b is the null handle.
func (b Buffer) IsNull() bool { return b.id.IsZero() }

// String returns the handle in "index@generation" form.
func (b Buffer) String() string { return "Buffer(" + b.id.String() + ")" }

// Texture is a handle to a texture. The zero value is the null handle.
type Texture struct{ id handle.ID[*texture] }

// IsNull reports whether t is the null handle.
func (t Texture) IsNull() bool { return t.id.IsZero() }

// String returns the handle in "index@generation" form.
func (t Texture) String() string { return "Texture(" + t.id.String() + ")" }

// Sampler is a handle to a sampler.
type Sampler struct{ id handle.ID[*sampler] }

// IsNull reports whether s is the null handle.
func (s Sampler) IsNull() bool { return s.id.IsZero() }

// Shader is a handle to a graphics shader.
type Shader struct{ id handle.ID[*shader] }

// IsNull reports whether s is the null handle.
func (s Shader) IsNull() bool { return s.id.IsZero() }

// GraphicsPipeline is a handle to a graphics pipeline.
type GraphicsPipeline struct{ id handle.ID[*graphicsPipeline] }

// IsNull reports whether p is the null handle.
func (p GraphicsPipeline) IsNull() bool { return p.id.IsZero() }

// ComputePipeline is a handle to a compute pipeline.
type ComputePipeline struct{ id handle.ID[*computePipeline] }

// IsNull reports whether p is the null handle.
func (p ComputePipeline) IsNull() bool { return p.id.IsZero() }

// TransferBuffer is a handle to a CPU-mappable staging buffer.
type TransferBuffer struct{ id handle.ID[*transferBuffer] }

// IsNull reports whether tb is the null handle.
func (tb TransferBuffer) IsNull() bool { return tb.id.IsZero() }

// String returns the handle in "index@generation" form.
func (tb TransferBuffer) String() string { return "TransferBuffer(" + tb.id.String() + ")" }

// =============================================================================
// Physical allocations
// =============================================================================

// tracker is a physical allocation a command buffer references. All
// methods are called with Device.mu held.
type tracker interface {
	// retain marks the allocation as referenced by a recording buffer.
	retain()
	// settle drops the reference. A non-zero epoch records the submission
	// that will use the allocation.
	settle(epoch uint64)
}

// allocation is one physical driver resource. A logical resource owns one
// or more of them.
type allocation[T driver.Resource] struct {
	res  T
	size uint64

	// refs counts recording command buffers that reference res.
	refs int
	// lastUse is the newest submission epoch that references res.
	lastUse uint64
	// external allocations are owned by the driver (swapchain images).
	external bool
}

func (a *allocation[T]) retain() { a.refs++ }

func (a *allocation[T]) settle(epoch uint64) {
	a.refs--
	a.lastUse = max(a.lastUse, epoch)
}

// busy reports whether recorded or in-flight work references a.
func (a *allocation[T]) busy(completed uint64) bool {
	return a.refs > 0 || a.lastUse > completed
}

func (a *allocation[T]) idle(completed uint64) bool { return !a.busy(completed) }

func (a *allocation[T]) destroy(mem *memoryBudget) {
	if a.external {
		return
	}
	a.res.Destroy()
	if a.size > 0 {
		mem.release(a.size)
	}
}

// ring is the set of physical allocations behind a cyclable resource.
type ring[T driver.Resource] struct {
	slots []*allocation[T]
	cur   int
}

func newRing[T driver.Resource](a *allocation[T]) ring[T] {
	return ring[T]{slots: []*allocation[T]{a}}
}

func (r *ring[T]) current() *allocation[T] { return r.slots[r.cur] }

// cycle makes an idle allocation current. The current allocation is kept
// when idle; otherwise the first idle slot is reused, and only when every
// slot is busy is alloc called to grow the ring.
func (r *ring[T]) cycle(completed uint64, alloc func() (*allocation[T], error)) (bool, error) {
	if r.current().idle(completed) {
		return false, nil
	}
	for i, s := range r.slots {
		if s.idle(completed) {
			r.cur = i
			return true, nil
		}
	}
	a, err := alloc()
	if err != nil {
		return false, err
	}
	r.slots = append(r.slots, a)
	r.cur = len(r.slots) - 1
	return true, nil
}

// =============================================================================
// Logical resources
// =============================================================================

type buffer struct {
	info BufferCreateInfo
	ring ring[driver.Buffer]
}

type texture struct {
	info TextureCreateInfo
	ring ring[driver.Texture]

	// swapchain is set for swapchain textures, which belong to owner until
	// it is submitted.
	swapchain *swapchain
	owner     *CommandBuffer
}

// layers returns the number of array layers (or depth slices) at level.
func (t *texture) layers(level uint32) uint32 {
	if t.info.Type == TextureType3D {
		return driver.MipExtent(t.info.LayerCountOrDepth, level)
	}
	return t.info.LayerCountOrDepth
}

func (t *texture) desc() driver.TextureDesc {
	return driver.TextureDesc{
		Label:         t.info.Name,
		Type:          t.info.Type,
		Format:        t.info.Format,
		Usage:         t.info.Usage.lower(),
		Width:         t.info.Width,
		Height:        t.info.Height,
		DepthOrLayers: t.info.LayerCountOrDepth,
		MipLevels:     t.info.NumLevels,
		SampleCount:   t.info.SampleCount,
	}
}

type transferBuffer struct {
	info   TransferBufferCreateInfo
	ring   ring[driver.TransferBuffer]
	mapped *allocation[driver.TransferBuffer]
}

type sampler struct {
	alloc *allocation[driver.Sampler]
}

type shader struct {
	info  ShaderCreateInfo
	alloc *allocation[driver.Shader]
}

type graphicsPipeline struct {
	info  GraphicsPipelineCreateInfo
	alloc *allocation[driver.Pipeline]
}

type computePipeline struct {
	info  ComputePipelineCreateInfo
	alloc *allocation[driver.Pipeline]
}
