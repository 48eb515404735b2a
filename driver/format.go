package driver

import "github.com/gogpu/gputypes"

// BlockInfo describes the storage block of a texture format. Uncompressed
// formats have 1x1 blocks; compressed formats store Width x Height texels
// in Size bytes.
type BlockInfo struct {
	Size   uint32
	Width  uint32
	Height uint32
}

// Block returns the block layout of format. The boolean is false for
// TextureFormatUndefined and unknown formats.
//
//nolint:gocyclo,cyclop,funlen // flat lookup table
func Block(format gputypes.TextureFormat) (BlockInfo, bool) {
	one := func(size uint32) (BlockInfo, bool) { return BlockInfo{Size: size, Width: 1, Height: 1}, true }
	blk := func(size, w, h uint32) (BlockInfo, bool) { return BlockInfo{Size: size, Width: w, Height: h}, true }

	switch format {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatStencil8:
		return one(1)

	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float,
		gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Snorm,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint,
		gputypes.TextureFormatDepth16Unorm:
		return one(2)

	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint, gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRG16Unorm, gputypes.TextureFormatRG16Snorm,
		gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint, gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGB10A2Uint, gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatRG11B10Ufloat, gputypes.TextureFormatRGB9E5Ufloat,
		gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float:
		return one(4)

	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint, gputypes.TextureFormatRG32Sint,
		gputypes.TextureFormatRGBA16Unorm, gputypes.TextureFormatRGBA16Snorm,
		gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return one(8)

	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint, gputypes.TextureFormatRGBA32Sint:
		return one(16)

	case gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureFormatBC1RGBAUnormSrgb,
		gputypes.TextureFormatBC4RUnorm, gputypes.TextureFormatBC4RSnorm,
		gputypes.TextureFormatETC2RGB8Unorm, gputypes.TextureFormatETC2RGB8UnormSrgb,
		gputypes.TextureFormatETC2RGB8A1Unorm, gputypes.TextureFormatETC2RGB8A1UnormSrgb,
		gputypes.TextureFormatEACR11Unorm, gputypes.TextureFormatEACR11Snorm:
		return blk(8, 4, 4)

	case gputypes.TextureFormatBC2RGBAUnorm, gputypes.TextureFormatBC2RGBAUnormSrgb,
		gputypes.TextureFormatBC3RGBAUnorm, gputypes.TextureFormatBC3RGBAUnormSrgb,
		gputypes.TextureFormatBC5RGUnorm, gputypes.TextureFormatBC5RGSnorm,
		gputypes.TextureFormatBC6HRGBUfloat, gputypes.TextureFormatBC6HRGBFloat,
		gputypes.TextureFormatBC7RGBAUnorm, gputypes.TextureFormatBC7RGBAUnormSrgb,
		gputypes.TextureFormatETC2RGBA8Unorm, gputypes.TextureFormatETC2RGBA8UnormSrgb,
		gputypes.TextureFormatEACRG11Unorm, gputypes.TextureFormatEACRG11Snorm:
		return blk(16, 4, 4)

	case gputypes.TextureFormatASTC4x4Unorm, gputypes.TextureFormatASTC4x4UnormSrgb:
		return blk(16, 4, 4)
	case gputypes.TextureFormatASTC5x4Unorm, gputypes.TextureFormatASTC5x4UnormSrgb:
		return blk(16, 5, 4)
	case gputypes.TextureFormatASTC5x5Unorm, gputypes.TextureFormatASTC5x5UnormSrgb:
		return blk(16, 5, 5)
	case gputypes.TextureFormatASTC6x5Unorm, gputypes.TextureFormatASTC6x5UnormSrgb:
		return blk(16, 6, 5)
	case gputypes.TextureFormatASTC6x6Unorm, gputypes.TextureFormatASTC6x6UnormSrgb:
		return blk(16, 6, 6)
	case gputypes.TextureFormatASTC8x5Unorm, gputypes.TextureFormatASTC8x5UnormSrgb:
		return blk(16, 8, 5)
	case gputypes.TextureFormatASTC8x6Unorm, gputypes.TextureFormatASTC8x6UnormSrgb:
		return blk(16, 8, 6)
	case gputypes.TextureFormatASTC8x8Unorm, gputypes.TextureFormatASTC8x8UnormSrgb:
		return blk(16, 8, 8)
	case gputypes.TextureFormatASTC10x5Unorm, gputypes.TextureFormatASTC10x5UnormSrgb:
		return blk(16, 10, 5)
	case gputypes.TextureFormatASTC10x6Unorm, gputypes.TextureFormatASTC10x6UnormSrgb:
		return blk(16, 10, 6)
	case gputypes.TextureFormatASTC10x8Unorm, gputypes.TextureFormatASTC10x8UnormSrgb:
		return blk(16, 10, 8)
	case gputypes.TextureFormatASTC10x10Unorm, gputypes.TextureFormatASTC10x10UnormSrgb:
		return blk(16, 10, 10)
	case gputypes.TextureFormatASTC12x10Unorm, gputypes.TextureFormatASTC12x10UnormSrgb:
		return blk(16, 12, 10)
	case gputypes.TextureFormatASTC12x12Unorm, gputypes.TextureFormatASTC12x12UnormSrgb:
		return blk(16, 12, 12)
	}
	return BlockInfo{}, false
}

// IsCompressed reports whether format stores texels in blocks larger than 1x1.
func IsCompressed(format gputypes.TextureFormat) bool {
	b, ok := Block(format)
	return ok && (b.Width > 1 || b.Height > 1)
}

// RowPitch returns the tightly packed byte size of one row of blocks
// covering width texels.
func (b BlockInfo) RowPitch(width uint32) uint64 {
	return uint64((width+b.Width-1)/b.Width) * uint64(b.Size)
}

// Rows returns the number of block rows covering height texels.
func (b BlockInfo) Rows(height uint32) uint32 {
	return (height + b.Height - 1) / b.Height
}

// SliceSize returns the byte size of one width x height slice.
func (b BlockInfo) SliceSize(width, height uint32) uint64 {
	return b.RowPitch(width) * uint64(b.Rows(height))
}

// FormatSize returns the tightly packed byte size of a width x height x
// depthOrLayers region of format, or 0 if the format is unknown.
func FormatSize(format gputypes.TextureFormat, width, height, depthOrLayers uint32) uint64 {
	b, ok := Block(format)
	if !ok {
		return 0
	}
	return b.SliceSize(width, height) * uint64(depthOrLayers)
}

// MipExtent returns the size of a mip level along one axis.
func MipExtent(size, level uint32) uint32 {
	v := size >> level
	if v == 0 {
		return 1
	}
	return v
}
