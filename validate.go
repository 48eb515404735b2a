package gpucmd

import (
	"fmt"

	"github.com/gogpu/gpucmd/driver"
)

// checkSubresource validates a mip level and layer (or depth plane for 3D
// textures).
func checkSubresource(t *texture, level, layer uint32) error {
	if level >= t.info.NumLevels {
		return fmt.Errorf("%w: mip level %d of %d", ErrOutOfBounds, level, t.info.NumLevels)
	}
	if layer >= t.layers(level) {
		return fmt.Errorf("%w: layer %d of %d", ErrOutOfBounds, layer, t.layers(level))
	}
	return nil
}

// checkBox validates a w x h x d box at x, y, z in one mip level. For
// non-3D textures layer selects the array layer and the box is one slice
// deep. Offsets must sit on block boundaries; extents must cover whole
// blocks unless they reach the level edge.
func checkBox(t *texture, level, layer, x, y, z, w, h, d uint32) error {
	if level >= t.info.NumLevels {
		return fmt.Errorf("%w: mip level %d of %d", ErrOutOfBounds, level, t.info.NumLevels)
	}
	if w == 0 || h == 0 || d == 0 {
		return fmt.Errorf("%w: empty region", ErrInvalidDescriptor)
	}
	mw := driver.MipExtent(t.info.Width, level)
	mh := driver.MipExtent(t.info.Height, level)
	if uint64(x)+uint64(w) > uint64(mw) || uint64(y)+uint64(h) > uint64(mh) {
		return fmt.Errorf("%w: %dx%d at (%d,%d) in %dx%d level", ErrOutOfBounds, w, h, x, y, mw, mh)
	}
	if t.info.Type == TextureType3D {
		if layer != 0 {
			return fmt.Errorf("%w: layer %d on 3D texture", ErrOutOfBounds, layer)
		}
		if uint64(z)+uint64(d) > uint64(t.layers(level)) {
			return fmt.Errorf("%w: depth %d at %d of %d", ErrOutOfBounds, d, z, t.layers(level))
		}
	} else {
		if z != 0 || d != 1 {
			return fmt.Errorf("%w: depth range on %v texture", ErrOutOfBounds, t.info.Type)
		}
		if layer >= t.info.LayerCountOrDepth {
			return fmt.Errorf("%w: layer %d of %d", ErrOutOfBounds, layer, t.info.LayerCountOrDepth)
		}
	}

	b, _ := driver.Block(t.info.Format)
	if x%b.Width != 0 || y%b.Height != 0 {
		return fmt.Errorf("%w: origin (%d,%d) not on %dx%d block", ErrAlignment, x, y, b.Width, b.Height)
	}
	if (w%b.Width != 0 && x+w != mw) || (h%b.Height != 0 && y+h != mh) {
		return fmt.Errorf("%w: extent %dx%d not whole %dx%d blocks", ErrAlignment, w, h, b.Width, b.Height)
	}
	return nil
}

func checkTextureRegion(t *texture, r TextureRegion) error {
	return checkBox(t, r.MipLevel, r.Layer, r.X, r.Y, r.Z, r.W, r.H, max(r.D, 1))
}

func checkBlitRegion(t *texture, r BlitRegion) error {
	if t.info.Type == TextureType3D {
		return checkBox(t, r.MipLevel, 0, r.X, r.Y, r.LayerOrDepthPlane, r.W, r.H, 1)
	}
	return checkBox(t, r.MipLevel, r.LayerOrDepthPlane, r.X, r.Y, 0, r.W, r.H, 1)
}

// transferSize returns the bytes a region occupies in a transfer buffer
// laid out with pixelsPerRow and rowsPerLayer (zero meaning tight).
func transferSize(t *texture, r TextureRegion, pixelsPerRow, rowsPerLayer uint32) (uint64, error) {
	if pixelsPerRow == 0 {
		pixelsPerRow = r.W
	}
	if rowsPerLayer == 0 {
		rowsPerLayer = r.H
	}
	if pixelsPerRow < r.W || rowsPerLayer < r.H {
		return 0, fmt.Errorf("%w: layout %dx%d smaller than region %dx%d",
			ErrInvalidDescriptor, pixelsPerRow, rowsPerLayer, r.W, r.H)
	}
	b, _ := driver.Block(t.info.Format)
	pitch := b.RowPitch(pixelsPerRow)
	layer := pitch * uint64(b.Rows(rowsPerLayer))
	last := pitch*uint64(b.Rows(r.H)-1) + b.RowPitch(r.W)
	return layer*uint64(max(r.D, 1)-1) + last, nil
}

// checkRange validates [offset, offset+size) inside a resource of total
// bytes.
func checkRange(offset, size, total uint64) error {
	if size == 0 {
		return fmt.Errorf("%w: zero size", ErrInvalidDescriptor)
	}
	if offset > total || size > total-offset {
		return fmt.Errorf("%w: %d bytes at %d of %d", ErrOutOfBounds, size, offset, total)
	}
	return nil
}

func checkAligned(v, align uint64, what string) error {
	if v%align != 0 {
		return fmt.Errorf("%w: %s %d not a multiple of %d", ErrAlignment, what, v, align)
	}
	return nil
}
