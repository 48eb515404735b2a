package wgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

// slot addresses one binding of a shader.
type slot struct {
	group   uint32
	binding uint32
}

// reflection describes the bindings a WGSL shader declares. SPIR-V shaders
// are not reflected and get default layout entries.
type reflection map[slot]gputypes.BindGroupLayoutEntry

// compiled is a validated shader ready for module creation.
type compiled struct {
	source  hal.ShaderSource
	reflect reflection
}

// compileShader validates code and converts it to the source form the
// backend consumes. WGSL is parsed, lowered and validated with naga; the
// entry point must exist for stage. Vulkan receives WGSL compiled to
// SPIR-V, other backends receive the WGSL source.
func compileShader(backend gputypes.Backend, format driver.ShaderFormat, code []byte, entry string, stage gputypes.ShaderStage, debug bool) (*compiled, error) {
	if !shaderFormats(backend).Contains(format) || format == driver.ShaderFormatInvalid {
		return nil, fmt.Errorf("%w: %v", driver.ErrUnsupportedShaderFormat, format)
	}

	if format == driver.ShaderFormatSPIRV {
		words, err := spirvWords(code)
		if err != nil {
			return nil, err
		}
		return &compiled{source: hal.ShaderSource{SPIRV: words}}, nil
	}

	src := string(code)
	ast, err := naga.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse wgsl: %w", err)
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, fmt.Errorf("lower wgsl: %w", err)
	}
	issues, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("validate wgsl: %w", err)
	}
	if len(issues) > 0 {
		return nil, fmt.Errorf("validate wgsl: %w", &issues[0])
	}
	if err := findEntryPoint(module, entry, stage); err != nil {
		return nil, err
	}

	c := &compiled{reflect: reflectBindings(module, stage)}
	if backend != gputypes.BackendVulkan {
		c.source = hal.ShaderSource{WGSL: src}
		return c, nil
	}
	raw, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3, Debug: debug})
	if err != nil {
		return nil, fmt.Errorf("generate spir-v: %w", err)
	}
	if c.source.SPIRV, err = spirvWords(raw); err != nil {
		return nil, err
	}
	return c, nil
}

// spirvWords reinterprets little-endian SPIR-V bytes as words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("spir-v: length %d is not a positive multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

func findEntryPoint(m *ir.Module, name string, stage gputypes.ShaderStage) error {
	want := irStage(stage)
	for _, ep := range m.EntryPoints {
		if ep.Name != name {
			continue
		}
		if ep.Stage != want {
			return fmt.Errorf("entry point %q is not a %v shader", name, stage)
		}
		return nil
	}
	return fmt.Errorf("entry point %q not found", name)
}

func irStage(s gputypes.ShaderStage) ir.ShaderStage {
	switch s {
	case gputypes.ShaderStageFragment:
		return ir.StageFragment
	case gputypes.ShaderStageCompute:
		return ir.StageCompute
	default:
		return ir.StageVertex
	}
}

// reflectBindings collects layout entries for every resource variable of m.
func reflectBindings(m *ir.Module, stage gputypes.ShaderStage) reflection {
	out := make(reflection)
	for _, gv := range m.GlobalVariables {
		if gv.Binding == nil || int(gv.Type) >= len(m.Types) {
			continue
		}
		e := gputypes.BindGroupLayoutEntry{Binding: gv.Binding.Binding, Visibility: stage}
		switch t := m.Types[gv.Type].Inner.(type) {
		case ir.ImageType:
			if t.Class == ir.ImageClassStorage {
				e.StorageTexture = &gputypes.StorageTextureBindingLayout{
					Access:        storageAccess(t.StorageAccess),
					Format:        storageFormat(t.StorageFormat),
					ViewDimension: viewDimension(t.Dim, t.Arrayed),
				}
			} else {
				e.Texture = &gputypes.TextureBindingLayout{
					SampleType:    sampleType(t),
					ViewDimension: viewDimension(t.Dim, t.Arrayed),
					Multisampled:  t.Multisampled,
				}
			}
		case ir.SamplerType:
			typ := gputypes.SamplerBindingTypeFiltering
			if t.Comparison {
				typ = gputypes.SamplerBindingTypeComparison
			}
			e.Sampler = &gputypes.SamplerBindingLayout{Type: typ}
		default:
			switch gv.Space {
			case ir.SpaceUniform:
				e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
			case ir.SpaceStorage:
				typ := gputypes.BufferBindingTypeStorage
				if gv.Access == ir.StorageRead {
					typ = gputypes.BufferBindingTypeReadOnlyStorage
				}
				e.Buffer = &gputypes.BufferBindingLayout{Type: typ}
			default:
				continue
			}
		}
		out[slot{gv.Binding.Group, gv.Binding.Binding}] = e
	}
	return out
}

func viewDimension(dim ir.ImageDimension, arrayed bool) gputypes.TextureViewDimension {
	switch {
	case dim == ir.Dim1D:
		return gputypes.TextureViewDimension1D
	case dim == ir.Dim3D:
		return gputypes.TextureViewDimension3D
	case dim == ir.DimCube && arrayed:
		return gputypes.TextureViewDimensionCubeArray
	case dim == ir.DimCube:
		return gputypes.TextureViewDimensionCube
	case arrayed:
		return gputypes.TextureViewDimension2DArray
	default:
		return gputypes.TextureViewDimension2D
	}
}

func sampleType(t ir.ImageType) gputypes.TextureSampleType {
	if t.Class == ir.ImageClassDepth {
		return gputypes.TextureSampleTypeDepth
	}
	switch t.SampledKind {
	case ir.ScalarSint:
		return gputypes.TextureSampleTypeSint
	case ir.ScalarUint:
		return gputypes.TextureSampleTypeUint
	default:
		return gputypes.TextureSampleTypeFloat
	}
}

func storageAccess(a ir.StorageAccess) gputypes.StorageTextureAccess {
	switch a {
	case ir.StorageAccessRead:
		return gputypes.StorageTextureAccessReadOnly
	case ir.StorageAccessWrite:
		return gputypes.StorageTextureAccessWriteOnly
	default:
		return gputypes.StorageTextureAccessReadWrite
	}
}

var storageFormats = map[ir.StorageFormat]gputypes.TextureFormat{
	ir.StorageFormatR8Unorm:     gputypes.TextureFormatR8Unorm,
	ir.StorageFormatR32Uint:     gputypes.TextureFormatR32Uint,
	ir.StorageFormatR32Sint:     gputypes.TextureFormatR32Sint,
	ir.StorageFormatR32Float:    gputypes.TextureFormatR32Float,
	ir.StorageFormatRg32Float:   gputypes.TextureFormatRG32Float,
	ir.StorageFormatRgba8Unorm:  gputypes.TextureFormatRGBA8Unorm,
	ir.StorageFormatRgba8Snorm:  gputypes.TextureFormatRGBA8Snorm,
	ir.StorageFormatRgba8Uint:   gputypes.TextureFormatRGBA8Uint,
	ir.StorageFormatRgba8Sint:   gputypes.TextureFormatRGBA8Sint,
	ir.StorageFormatBgra8Unorm:  gputypes.TextureFormatBGRA8Unorm,
	ir.StorageFormatRgba16Uint:  gputypes.TextureFormatRGBA16Uint,
	ir.StorageFormatRgba16Sint:  gputypes.TextureFormatRGBA16Sint,
	ir.StorageFormatRgba16Float: gputypes.TextureFormatRGBA16Float,
	ir.StorageFormatRgba32Uint:  gputypes.TextureFormatRGBA32Uint,
	ir.StorageFormatRgba32Sint:  gputypes.TextureFormatRGBA32Sint,
	ir.StorageFormatRgba32Float: gputypes.TextureFormatRGBA32Float,
}

func storageFormat(f ir.StorageFormat) gputypes.TextureFormat {
	if tf, ok := storageFormats[f]; ok {
		return tf
	}
	return gputypes.TextureFormatRGBA8Unorm
}
