package soft

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

// execState is the GPU-side state while one submission executes.
type execState struct {
	d        *Device
	epoch    uint64
	pipeline *Pipeline
	colors   []driver.ColorAttachment
	depth    *driver.DepthStencilAttachment
	uniforms map[uniformKey][]byte
}

type uniformKey struct {
	stage gputypes.ShaderStage
	slot  uint32
}

// execute runs one submission on the timeline goroutine.
//
// Dispatches inside a compute pass carry no ordering guarantee relative to
// each other. This driver happens to run them in issue order, which is one
// valid order; callers must not rely on it.
func (d *Device) execute(sub submission) {
	s := &execState{d: d, epoch: sub.epoch, uniforms: make(map[uniformKey][]byte)}
	log := driver.Logger()

	for _, cmd := range sub.list.Commands {
		if err := s.run(cmd); err != nil {
			log.Warn("soft: command failed", "epoch", sub.epoch, "command", commandName(cmd), "err", err)
		}
	}

	for _, p := range sub.list.Presents {
		if surf, ok := p.Surface.(*Surface); ok {
			surf.present(p.Texture)
		}
	}
	log.Debug("soft: submission executed", "epoch", sub.epoch, "label", sub.list.Label,
		"commands", len(sub.list.Commands), "presents", len(sub.list.Presents))
}

//nolint:gocyclo,cyclop,funlen // command dispatch switch
func (s *execState) run(cmd driver.Command) error {
	switch c := cmd.(type) {
	case driver.BeginRenderPass:
		return s.beginRenderPass(c)
	case driver.EndRenderPass:
		return s.endRenderPass()
	case driver.BindGraphicsPipeline:
		s.pipeline = asPipeline(c.Pipeline)
	case driver.BindComputePipeline:
		s.pipeline = asPipeline(c.Pipeline)
	case driver.SetViewport, driver.SetScissor, driver.SetBlendConstants, driver.SetStencilReference,
		driver.BindVertexBuffers, driver.BindIndexBuffer,
		driver.BindSamplers, driver.BindStorageTextures, driver.BindStorageBuffers:
		// Fixed-function and binding state only affects shader execution.
	case driver.PushUniform:
		s.uniforms[uniformKey{c.Stage, c.Slot}] = c.Data

	case driver.Draw:
		s.d.record(TraceEntry{Epoch: s.epoch, Kind: TraceDraw, Pipeline: s.pipelineLabel(), Draw: c.Args})
	case driver.DrawIndexed:
		s.d.record(TraceEntry{Epoch: s.epoch, Kind: TraceDrawIndexed, Pipeline: s.pipelineLabel(), DrawIndexed: c.Args})
	case driver.DrawIndirect:
		return s.drawIndirect(c)

	case driver.BeginComputePass, driver.EndComputePass:
		s.pipeline = nil
	case driver.Dispatch:
		s.d.record(TraceEntry{Epoch: s.epoch, Kind: TraceDispatch, Pipeline: s.pipelineLabel(), Dispatch: c.Args})
	case driver.DispatchIndirect:
		return s.dispatchIndirect(c)

	case driver.BeginCopyPass, driver.EndCopyPass:
	case driver.UploadToBuffer:
		return copyBytes(asBuffer(c.Dst).data, c.DstOffset, asTransfer(c.Src).data, c.SrcOffset, c.Size)
	case driver.DownloadFromBuffer:
		return copyBytes(asTransfer(c.Dst).data, c.DstOffset, asBuffer(c.Src).data, c.SrcOffset, c.Size)
	case driver.CopyBufferToBuffer:
		return copyBytes(asBuffer(c.Dst).data, c.DstOffset, asBuffer(c.Src).data, c.SrcOffset, c.Size)
	case driver.UploadToTexture:
		return transferRegion(asTexture(c.Dst.Texture), c.Dst, asTransfer(c.Src).data, c.Layout, true)
	case driver.DownloadFromTexture:
		return transferRegion(asTexture(c.Src.Texture), c.Src, asTransfer(c.Dst).data, c.Layout, false)
	case driver.CopyTextureToTexture:
		return copyTexture(c)

	case driver.GenerateMipmaps:
		generateMipmaps(asTexture(c.Texture))
	case driver.Blit:
		return blit(c)

	case driver.InsertDebugLabel:
		s.d.label(c.Name)
	case driver.PushDebugGroup:
		s.d.label("push:" + c.Name)
	case driver.PopDebugGroup:
		s.d.label("pop")

	default:
		return driver.ErrUnsupported
	}
	return nil
}

func (s *execState) pipelineLabel() string {
	if s.pipeline == nil {
		return ""
	}
	return s.pipeline.label
}

func (s *execState) beginRenderPass(c driver.BeginRenderPass) error {
	s.colors = c.Colors
	s.depth = c.DepthStencil
	s.pipeline = nil

	for _, ca := range c.Colors {
		if ca.Load != driver.LoadOpClear {
			continue
		}
		tex := asTexture(ca.Texture)
		if texel, ok := encodeColor(tex.desc.Format, ca.Clear); ok {
			fill(tex.Slice(ca.MipLevel, ca.Layer), texel)
		}
	}

	if ds := c.DepthStencil; ds != nil && (ds.DepthLoad == driver.LoadOpClear || ds.StencilLoad == driver.LoadOpClear) {
		tex := asTexture(ds.Texture)
		if texel, ok := encodeDepthStencil(tex.desc.Format, ds.ClearDepth, ds.ClearStencil); ok {
			fill(tex.Slice(ds.MipLevel, ds.Layer), texel)
		}
	}
	return nil
}

func (s *execState) endRenderPass() error {
	for _, ca := range s.colors {
		if !ca.Store.Resolves() || ca.Resolve == nil {
			continue
		}
		src := asTexture(ca.Texture).Slice(ca.MipLevel, ca.Layer)
		dst := asTexture(ca.Resolve).Slice(ca.ResolveMip, ca.ResolveLayer)
		copy(dst, src)
	}
	s.colors = nil
	s.depth = nil
	s.pipeline = nil
	return nil
}

func (s *execState) drawIndirect(c driver.DrawIndirect) error {
	data := asBuffer(c.Buffer).data
	stride := uint64(driver.DrawArgsSize)
	if c.Indexed {
		stride = driver.DrawIndexedArgsSize
	}

	for i := uint64(0); i < uint64(c.Count); i++ {
		off := c.Offset + i*stride
		if off+stride > uint64(len(data)) {
			return driver.ErrShortRecord
		}
		e := TraceEntry{Epoch: s.epoch, Indirect: true, Pipeline: s.pipelineLabel()}
		if c.Indexed {
			e.Kind = TraceDrawIndexed
			if err := e.DrawIndexed.UnmarshalBinary(data[off:]); err != nil {
				return err
			}
		} else {
			e.Kind = TraceDraw
			if err := e.Draw.UnmarshalBinary(data[off:]); err != nil {
				return err
			}
		}
		s.d.record(e)
	}
	return nil
}

func (s *execState) dispatchIndirect(c driver.DispatchIndirect) error {
	data := asBuffer(c.Buffer).data
	if c.Offset+driver.DispatchArgsSize > uint64(len(data)) {
		return driver.ErrShortRecord
	}
	e := TraceEntry{Epoch: s.epoch, Kind: TraceDispatch, Indirect: true, Pipeline: s.pipelineLabel()}
	if err := e.Dispatch.UnmarshalBinary(data[c.Offset:]); err != nil {
		return err
	}
	s.d.record(e)
	return nil
}

func copyBytes(dst []byte, dstOff uint64, src []byte, srcOff, size uint64) error {
	if srcOff+size > uint64(len(src)) || dstOff+size > uint64(len(dst)) {
		return errOutOfBounds
	}
	copy(dst[dstOff:dstOff+size], src[srcOff:srcOff+size])
	return nil
}

// =============================================================================
// Downcasts
// =============================================================================

func asBuffer(b driver.Buffer) *Buffer {
	switch v := b.(type) {
	case *Buffer:
		return v
	case *TransferBuffer:
		return &v.Buffer
	}
	panic("soft: foreign buffer")
}

func asTransfer(b driver.TransferBuffer) *TransferBuffer {
	if v, ok := b.(*TransferBuffer); ok {
		return v
	}
	panic("soft: foreign transfer buffer")
}

func asTexture(t driver.Texture) *Texture {
	if v, ok := t.(*Texture); ok {
		return v
	}
	panic("soft: foreign texture")
}

func asPipeline(p driver.Pipeline) *Pipeline {
	if v, ok := p.(*Pipeline); ok {
		return v
	}
	panic("soft: foreign pipeline")
}

func commandName(cmd driver.Command) string {
	switch cmd.(type) {
	case driver.UploadToBuffer:
		return "UploadToBuffer"
	case driver.UploadToTexture:
		return "UploadToTexture"
	case driver.DownloadFromBuffer:
		return "DownloadFromBuffer"
	case driver.DownloadFromTexture:
		return "DownloadFromTexture"
	case driver.CopyBufferToBuffer:
		return "CopyBufferToBuffer"
	case driver.CopyTextureToTexture:
		return "CopyTextureToTexture"
	case driver.DrawIndirect:
		return "DrawIndirect"
	case driver.DispatchIndirect:
		return "DispatchIndirect"
	case driver.Blit:
		return "Blit"
	default:
		return "command"
	}
}
