package gpucmd

import (
	"fmt"

	"github.com/gogpu/gpucmd/driver"
)

// CopyPass records transfers between transfer buffers, buffers and
// textures.
type CopyPass struct {
	cb     *CommandBuffer
	closed bool
}

// BeginCopyPass opens a copy pass. No other pass may be open.
func (cb *CommandBuffer) BeginCopyPass() (*CopyPass, error) {
	var p *CopyPass
	err := cb.do("begin copy pass", func() error {
		if err := cb.noPassLocked(); err != nil {
			return err
		}
		cb.emit(driver.BeginCopyPass{})
		p = &CopyPass{cb: cb}
		cb.beginPassLocked(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *CopyPass) do(op string, fn func() error) error {
	return p.cb.do(op, func() error {
		if p.closed {
			return ErrPassClosed
		}
		return fn()
	})
}

// End closes the pass. Ending a closed pass does nothing.
func (p *CopyPass) End() error {
	if p.closed {
		return nil
	}
	return p.do("end copy pass", func() error {
		p.closed = true
		return p.cb.endPassLocked(driver.EndCopyPass{})
	})
}

// transferSource resolves a transfer buffer used in direction usage. It
// must not be mapped.
func (cb *CommandBuffer) transferSource(h TransferBuffer, usage TransferBufferUsage) (*transferBuffer, error) {
	t, err := cb.d.transferBuffer(h)
	if err != nil {
		return nil, err
	}
	if t.info.Usage != usage {
		return nil, fmt.Errorf("%w: %v buffer used for %v", ErrWrongTransferDirection, t.info.Usage, usage)
	}
	if t.mapped != nil {
		return nil, ErrTransferBufferMapped
	}
	return t, nil
}

func (cb *CommandBuffer) copyTexture(h Texture) (*texture, error) {
	t, err := cb.d.texture(h, cb)
	if err != nil {
		return nil, err
	}
	if t.info.SampleCount > 1 {
		return nil, fmt.Errorf("%w: multisampled texture", ErrInvalidDescriptor)
	}
	return t, nil
}

// =============================================================================
// Uploads
// =============================================================================

// UploadToTexture copies texel data from an upload transfer buffer into a
// texture region. With cycle set, a texture still in use is cycled first.
func (p *CopyPass) UploadToTexture(src TextureTransferInfo, dst TextureRegion, cycle bool) error {
	return p.do("upload to texture", func() error {
		cb := p.cb
		tb, err := cb.transferSource(src.TransferBuffer, TransferBufferUsageUpload)
		if err != nil {
			return err
		}
		t, err := cb.copyTexture(dst.Texture)
		if err != nil {
			return err
		}
		if err := checkTextureRegion(t, dst); err != nil {
			return err
		}
		size, err := transferSize(t, dst, src.PixelsPerRow, src.RowsPerLayer)
		if err != nil {
			return err
		}
		if err := checkRange(src.Offset, size, tb.info.Size); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if cycle {
			cb.d.reapLocked()
			if err := cb.d.cycleTextureLocked(t); err != nil {
				return err
			}
		}

		sa, da := tb.ring.current(), t.ring.current()
		cb.use(sa)
		cb.use(da)
		cb.emit(driver.UploadToTexture{
			Src:    sa.res,
			Layout: driver.ImageLayout{Offset: src.Offset, PixelsPerRow: src.PixelsPerRow, RowsPerLayer: src.RowsPerLayer},
			Dst:    lowerRegion(da.res, dst),
		})
		return nil
	})
}

// UploadToBuffer copies dst.Size bytes from an upload transfer buffer into
// a buffer. With cycle set, a buffer still in use is cycled first.
func (p *CopyPass) UploadToBuffer(src TransferBufferLocation, dst BufferRegion, cycle bool) error {
	return p.do("upload to buffer", func() error {
		cb := p.cb
		tb, err := cb.transferSource(src.TransferBuffer, TransferBufferUsageUpload)
		if err != nil {
			return err
		}
		b, err := cb.d.buffer(dst.Buffer)
		if err != nil {
			return err
		}
		if err := checkRange(src.Offset, dst.Size, tb.info.Size); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkRange(dst.Offset, dst.Size, b.info.Size); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if cycle {
			cb.d.reapLocked()
			if err := cb.d.cycleBufferLocked(b); err != nil {
				return err
			}
		}

		sa, da := tb.ring.current(), b.ring.current()
		cb.use(sa)
		cb.use(da)
		cb.emit(driver.UploadToBuffer{Src: sa.res, SrcOffset: src.Offset, Dst: da.res, DstOffset: dst.Offset, Size: dst.Size})
		return nil
	})
}

// =============================================================================
// GPU-side copies
// =============================================================================

// CopyTextureToTexture copies a w x h x d box between textures of the same
// texel block size. With cycle set, the destination is cycled first.
func (p *CopyPass) CopyTextureToTexture(src, dst TextureLocation, w, h, d uint32, cycle bool) error {
	return p.do("copy texture to texture", func() error {
		cb := p.cb
		st, err := cb.copyTexture(src.Texture)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		dt, err := cb.copyTexture(dst.Texture)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		sb, _ := driver.Block(st.info.Format)
		db, _ := driver.Block(dt.info.Format)
		if sb != db {
			return fmt.Errorf("%w: %v and %v are not copy-compatible", ErrInvalidDescriptor, st.info.Format, dt.info.Format)
		}
		d = max(d, 1)
		if err := checkBox(st, src.MipLevel, src.Layer, src.X, src.Y, src.Z, w, h, d); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkBox(dt, dst.MipLevel, dst.Layer, dst.X, dst.Y, dst.Z, w, h, d); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if cycle {
			cb.d.reapLocked()
			if err := cb.d.cycleTextureLocked(dt); err != nil {
				return err
			}
		}

		sa, da := st.ring.current(), dt.ring.current()
		cb.use(sa)
		cb.use(da)
		cb.emit(driver.CopyTextureToTexture{
			Src: lowerLocation(sa.res, src),
			Dst: lowerLocation(da.res, dst),
			W:   w,
			H:   h,
			D:   d,
		})
		return nil
	})
}

// CopyBufferToBuffer copies size bytes between buffers. Offsets and size
// must be multiples of 4. With cycle set, the destination is cycled first.
func (p *CopyPass) CopyBufferToBuffer(src, dst BufferLocation, size uint64, cycle bool) error {
	return p.do("copy buffer to buffer", func() error {
		cb := p.cb
		for _, v := range []struct {
			v    uint64
			what string
		}{{src.Offset, "source offset"}, {dst.Offset, "destination offset"}, {size, "size"}} {
			if err := checkAligned(v.v, 4, v.what); err != nil {
				return err
			}
		}
		sb, err := cb.d.buffer(src.Buffer)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		db, err := cb.d.buffer(dst.Buffer)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if err := checkRange(src.Offset, size, sb.info.Size); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkRange(dst.Offset, size, db.info.Size); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if cycle {
			cb.d.reapLocked()
			if err := cb.d.cycleBufferLocked(db); err != nil {
				return err
			}
		}

		sa, da := sb.ring.current(), db.ring.current()
		cb.use(sa)
		cb.use(da)
		cb.emit(driver.CopyBufferToBuffer{Src: sa.res, SrcOffset: src.Offset, Dst: da.res, DstOffset: dst.Offset, Size: size})
		return nil
	})
}

// =============================================================================
// Downloads
// =============================================================================

// DownloadFromTexture copies a texture region into a download transfer
// buffer. The data is readable once the submission completes.
func (p *CopyPass) DownloadFromTexture(src TextureRegion, dst TextureTransferInfo) error {
	return p.do("download from texture", func() error {
		cb := p.cb
		t, err := cb.copyTexture(src.Texture)
		if err != nil {
			return err
		}
		tb, err := cb.transferSource(dst.TransferBuffer, TransferBufferUsageDownload)
		if err != nil {
			return err
		}
		if err := checkTextureRegion(t, src); err != nil {
			return err
		}
		size, err := transferSize(t, src, dst.PixelsPerRow, dst.RowsPerLayer)
		if err != nil {
			return err
		}
		if err := checkRange(dst.Offset, size, tb.info.Size); err != nil {
			return fmt.Errorf("destination: %w", err)
		}

		sa, da := t.ring.current(), tb.ring.current()
		cb.use(sa)
		cb.use(da)
		cb.emit(driver.DownloadFromTexture{
			Src:    lowerRegion(sa.res, src),
			Dst:    da.res,
			Layout: driver.ImageLayout{Offset: dst.Offset, PixelsPerRow: dst.PixelsPerRow, RowsPerLayer: dst.RowsPerLayer},
		})
		return nil
	})
}

// DownloadFromBuffer copies src.Size bytes of a buffer into a download
// transfer buffer.
func (p *CopyPass) DownloadFromBuffer(src BufferRegion, dst TransferBufferLocation) error {
	return p.do("download from buffer", func() error {
		cb := p.cb
		b, err := cb.d.buffer(src.Buffer)
		if err != nil {
			return err
		}
		tb, err := cb.transferSource(dst.TransferBuffer, TransferBufferUsageDownload)
		if err != nil {
			return err
		}
		if err := checkRange(src.Offset, src.Size, b.info.Size); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := checkRange(dst.Offset, src.Size, tb.info.Size); err != nil {
			return fmt.Errorf("destination: %w", err)
		}

		sa, da := b.ring.current(), tb.ring.current()
		cb.use(sa)
		cb.use(da)
		cb.emit(driver.DownloadFromBuffer{Src: sa.res, SrcOffset: src.Offset, Dst: da.res, DstOffset: dst.Offset, Size: src.Size})
		return nil
	})
}

func lowerRegion(res driver.Texture, r TextureRegion) driver.TextureRegion {
	return driver.TextureRegion{
		Texture:  res,
		MipLevel: r.MipLevel,
		Layer:    r.Layer,
		X:        r.X,
		Y:        r.Y,
		Z:        r.Z,
		W:        r.W,
		H:        r.H,
		D:        max(r.D, 1),
	}
}

func lowerLocation(res driver.Texture, l TextureLocation) driver.TextureLocation {
	return driver.TextureLocation{
		Texture:  res,
		MipLevel: l.MipLevel,
		Layer:    l.Layer,
		X:        l.X,
		Y:        l.Y,
		Z:        l.Z,
	}
}
