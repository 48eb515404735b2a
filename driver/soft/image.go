package soft

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

var errOutOfBounds = errors.New("soft: copy out of bounds")

// =============================================================================
// Region copies
// =============================================================================

// firstSlice returns the slice index a region starts at: the depth plane for
// 3D textures, the array layer otherwise.
func firstSlice(t *Texture, layer, z uint32) uint32 {
	if t.desc.Type == driver.TextureType3D {
		return z
	}
	return layer
}

// transferRegion moves a texture region between tex and linear memory laid
// out as layout. upload copies linear memory into the texture.
func transferRegion(tex *Texture, r driver.TextureRegion, mem []byte, layout driver.ImageLayout, upload bool) error {
	b := tex.block
	ppr := layout.PixelsPerRow
	if ppr == 0 {
		ppr = r.W
	}
	rpl := layout.RowsPerLayer
	if rpl == 0 {
		rpl = r.H
	}
	memPitch := b.RowPitch(ppr)
	memLayer := memPitch * uint64(b.Rows(rpl))
	texPitch := tex.rowPitch(r.MipLevel)
	rowBytes := b.RowPitch(r.W)
	x0 := uint64(r.X/b.Width) * uint64(b.Size)
	y0 := uint64(r.Y / b.Height)
	depth := max(r.D, 1)
	base := firstSlice(tex, r.Layer, r.Z)

	for d := uint32(0); d < depth; d++ {
		slice := tex.Slice(r.MipLevel, base+d)
		for row := uint64(0); row < uint64(b.Rows(r.H)); row++ {
			texOff := (y0+row)*texPitch + x0
			memOff := layout.Offset + uint64(d)*memLayer + row*memPitch
			if texOff+rowBytes > uint64(len(slice)) || memOff+rowBytes > uint64(len(mem)) {
				return errOutOfBounds
			}
			if upload {
				copy(slice[texOff:texOff+rowBytes], mem[memOff:memOff+rowBytes])
			} else {
				copy(mem[memOff:memOff+rowBytes], slice[texOff:texOff+rowBytes])
			}
		}
	}
	return nil
}

func copyTexture(c driver.CopyTextureToTexture) error {
	src, dst := asTexture(c.Src.Texture), asTexture(c.Dst.Texture)
	b := src.block
	rowBytes := b.RowPitch(c.W)
	srcPitch, dstPitch := src.rowPitch(c.Src.MipLevel), dst.rowPitch(c.Dst.MipLevel)
	srcBase := firstSlice(src, c.Src.Layer, c.Src.Z)
	dstBase := firstSlice(dst, c.Dst.Layer, c.Dst.Z)

	for d := uint32(0); d < max(c.D, 1); d++ {
		s := src.Slice(c.Src.MipLevel, srcBase+d)
		t := dst.Slice(c.Dst.MipLevel, dstBase+d)
		for row := uint64(0); row < uint64(b.Rows(c.H)); row++ {
			so := (uint64(c.Src.Y/b.Height)+row)*srcPitch + uint64(c.Src.X/b.Width)*uint64(b.Size)
			do := (uint64(c.Dst.Y/b.Height)+row)*dstPitch + uint64(c.Dst.X/b.Width)*uint64(b.Size)
			if so+rowBytes > uint64(len(s)) || do+rowBytes > uint64(len(t)) {
				return errOutOfBounds
			}
			copy(t[do:do+rowBytes], s[so:so+rowBytes])
		}
	}
	return nil
}

func fill(dst, texel []byte) {
	if len(texel) == 0 {
		return
	}
	for i := 0; i+len(texel) <= len(dst); i += len(texel) {
		copy(dst[i:], texel)
	}
}

// =============================================================================
// Texel encoding
// =============================================================================

func unorm8(v float64) byte {
	return byte(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// encodeColor encodes c as one texel of format. Formats without a known
// encoding report false and are left untouched.
func encodeColor(format gputypes.TextureFormat, c gputypes.Color) ([]byte, bool) {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return []byte{unorm8(c.R), unorm8(c.G), unorm8(c.B), unorm8(c.A)}, true
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return []byte{unorm8(c.B), unorm8(c.G), unorm8(c.R), unorm8(c.A)}, true
	case gputypes.TextureFormatR8Unorm:
		return []byte{unorm8(c.R)}, true
	case gputypes.TextureFormatRG8Unorm:
		return []byte{unorm8(c.R), unorm8(c.G)}, true
	case gputypes.TextureFormatR32Float:
		return floats(c.R), true
	case gputypes.TextureFormatRG32Float:
		return floats(c.R, c.G), true
	case gputypes.TextureFormatRGBA32Float:
		return floats(c.R, c.G, c.B, c.A), true
	}
	return nil, false
}

func floats(vs ...float64) []byte {
	out := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(v)))
	}
	return out
}

// encodeDepthStencil encodes one depth-stencil texel.
func encodeDepthStencil(format gputypes.TextureFormat, depth float32, stencil uint8) ([]byte, bool) {
	switch format {
	case gputypes.TextureFormatDepth32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(depth)), true
	case gputypes.TextureFormatDepth16Unorm:
		return binary.LittleEndian.AppendUint16(nil, uint16(math.Round(clamp01(float64(depth))*0xffff))), true
	case gputypes.TextureFormatDepth24Plus:
		return binary.LittleEndian.AppendUint32(nil, uint32(math.Round(clamp01(float64(depth))*0xffffff))), true
	case gputypes.TextureFormatDepth24PlusStencil8:
		d := uint32(math.Round(clamp01(float64(depth)) * 0xffffff))
		return binary.LittleEndian.AppendUint32(nil, d|uint32(stencil)<<24), true
	case gputypes.TextureFormatStencil8:
		return []byte{stencil}, true
	case gputypes.TextureFormatDepth32FloatStencil8:
		out := binary.LittleEndian.AppendUint32(nil, math.Float32bits(depth))
		return append(out, stencil, 0, 0, 0), true
	}
	return nil, false
}

// averages reports whether format can be box filtered bytewise.
func averages(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR8Unorm, gputypes.TextureFormatRG8Unorm:
		return true
	}
	return false
}

// =============================================================================
// Mipmaps and blits
// =============================================================================

// generateMipmaps fills every level from the one above it. 8-bit unorm
// formats use a 2x2 box filter, other formats take the top-left texel.
func generateMipmaps(t *Texture) {
	if t.block.Width != 1 || t.block.Height != 1 {
		return
	}
	texel := uint64(t.block.Size)
	box := averages(t.desc.Format)

	for level := uint32(1); level < t.desc.MipLevels; level++ {
		sw, sh := driver.MipExtent(t.desc.Width, level-1), driver.MipExtent(t.desc.Height, level-1)
		dw, dh := driver.MipExtent(t.desc.Width, level), driver.MipExtent(t.desc.Height, level)
		layers := min(t.desc.Layers(level), t.desc.Layers(level-1))

		for layer := uint32(0); layer < layers; layer++ {
			src, dst := t.Slice(level-1, layer), t.Slice(level, layer)
			for y := uint32(0); y < dh; y++ {
				for x := uint32(0); x < dw; x++ {
					sx, sy := min(2*x, sw-1), min(2*y, sh-1)
					do := (uint64(y)*uint64(dw) + uint64(x)) * texel
					if !box {
						so := (uint64(sy)*uint64(sw) + uint64(sx)) * texel
						copy(dst[do:do+texel], src[so:so+texel])
						continue
					}
					sx1, sy1 := min(sx+1, sw-1), min(sy+1, sh-1)
					for c := uint64(0); c < texel; c++ {
						at := func(px, py uint32) uint32 {
							return uint32(src[(uint64(py)*uint64(sw)+uint64(px))*texel+c])
						}
						sum := at(sx, sy) + at(sx1, sy) + at(sx, sy1) + at(sx1, sy1)
						dst[do+c] = byte((sum + 2) / 4)
					}
				}
			}
		}
	}
}

// blit scales with nearest sampling. Linear filtering is treated as nearest.
func blit(c driver.Blit) error {
	src, dst := asTexture(c.Src.Texture), asTexture(c.Dst.Texture)
	if src.block.Width != 1 || dst.block.Width != 1 || src.block.Size != dst.block.Size {
		return driver.ErrUnsupported
	}
	texel := uint64(src.block.Size)
	s := src.Slice(c.Src.MipLevel, c.Src.LayerOrDepthPlane)
	d := dst.Slice(c.Dst.MipLevel, c.Dst.LayerOrDepthPlane)
	sw := uint64(driver.MipExtent(src.desc.Width, c.Src.MipLevel))
	dw := uint64(driver.MipExtent(dst.desc.Width, c.Dst.MipLevel))

	if c.Load == driver.LoadOpClear {
		if v, ok := encodeColor(dst.desc.Format, c.Clear); ok {
			fill(d, v)
		}
	}
	if c.Dst.W == 0 || c.Dst.H == 0 {
		return nil
	}

	for y := uint32(0); y < c.Dst.H; y++ {
		for x := uint32(0); x < c.Dst.W; x++ {
			fx, fy := x, y
			if c.Flip&driver.FlipHorizontal != 0 {
				fx = c.Dst.W - 1 - x
			}
			if c.Flip&driver.FlipVertical != 0 {
				fy = c.Dst.H - 1 - y
			}
			sx := uint64(c.Src.X) + uint64(fx)*uint64(c.Src.W)/uint64(c.Dst.W)
			sy := uint64(c.Src.Y) + uint64(fy)*uint64(c.Src.H)/uint64(c.Dst.H)
			so := (sy*sw + sx) * texel
			do := (uint64(c.Dst.Y+y)*dw + uint64(c.Dst.X+x)) * texel
			if so+texel > uint64(len(s)) || do+texel > uint64(len(d)) {
				return errOutOfBounds
			}
			copy(d[do:do+texel], s[so:so+texel])
		}
	}
	return nil
}
