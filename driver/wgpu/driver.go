// Package wgpu runs gpucmd devices on the gogpu/wgpu hardware abstraction
// layer.
//
// One driver is registered per HAL backend variant: "vulkan", "dx12",
// "metal", "gl" and "noop". A driver is available when its HAL backend is
// compiled in for the current platform and exposes at least one adapter.
// The noop variant is only available when a test imports
// github.com/gogpu/wgpu/hal/noop.
//
//	import _ "github.com/gogpu/gpucmd/driver/wgpu"
//
// Resources bound to shaders follow a fixed group layout:
//
//	graphics: group 0 vertex resources, group 1 vertex uniforms,
//	          group 2 fragment resources, group 3 fragment uniforms
//	compute:  group 0 read-only resources, group 1 read-write storage,
//	          group 2 uniforms
//
// Within a resource group, sampler slot i occupies bindings 2i (texture)
// and 2i+1 (sampler); storage textures follow, then storage buffers.
package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

// variants maps driver names to HAL backends.
var variants = []struct {
	name    string
	backend gputypes.Backend
}{
	{driver.NameVulkan, gputypes.BackendVulkan},
	{driver.NameDX12, gputypes.BackendDX12},
	{driver.NameMetal, gputypes.BackendMetal},
	{driver.NameGL, gputypes.BackendGL},
	{driver.NameNoop, gputypes.BackendEmpty},
}

func init() {
	for _, v := range variants {
		driver.Register(v.name, func() driver.Driver { return New(v.name, v.backend) })
	}
}

// probes caches availability per backend. Probing creates an instance and
// enumerates adapters, which is too slow to repeat on every lookup.
var (
	probesMu sync.Mutex
	probes   = make(map[gputypes.Backend]bool)
)

// Driver opens devices on one HAL backend.
type Driver struct {
	name    string
	backend gputypes.Backend
}

// New returns a driver named name for a HAL backend variant.
func New(name string, backend gputypes.Backend) *Driver {
	return &Driver{name: name, backend: backend}
}

// Name returns the registry name.
func (drv *Driver) Name() string { return drv.name }

// ShaderFormats returns WGSL for every variant, plus SPIR-V where the
// backend consumes it natively.
func (drv *Driver) ShaderFormats() driver.ShaderFormat {
	return shaderFormats(drv.backend)
}

func shaderFormats(b gputypes.Backend) driver.ShaderFormat {
	switch b {
	case gputypes.BackendVulkan, gputypes.BackendEmpty:
		return driver.ShaderFormatWGSL | driver.ShaderFormatSPIRV
	default:
		return driver.ShaderFormatWGSL
	}
}

// Available reports whether the HAL backend is compiled in and exposes an
// adapter. The result is cached after the first probe.
func (drv *Driver) Available() bool {
	probesMu.Lock()
	defer probesMu.Unlock()
	if ok, seen := probes[drv.backend]; seen {
		return ok
	}
	ok := probe(drv.backend)
	probes[drv.backend] = ok
	return ok
}

func probe(b gputypes.Backend) bool {
	backend, ok := hal.GetBackend(b)
	if !ok {
		return false
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: gputypes.InstanceFlagsNone})
	if err != nil {
		driver.Logger().Debug("wgpu: probe failed", "backend", b, "err", err)
		return false
	}
	defer instance.Destroy()
	return len(instance.EnumerateAdapters(nil)) > 0
}

// Open creates an instance, selects an adapter and opens a device on it.
// Discrete GPUs are preferred over integrated ones, then anything else.
func (drv *Driver) Open(cfg driver.OpenConfig) (driver.Device, error) {
	formats := drv.ShaderFormats()
	if cfg.ShaderFormats != 0 && !formats.Intersects(cfg.ShaderFormats) {
		return nil, fmt.Errorf("wgpu: open %s: %w: %v", drv.name, driver.ErrUnsupportedShaderFormat, cfg.ShaderFormats)
	}

	backend, ok := hal.GetBackend(drv.backend)
	if !ok {
		return nil, fmt.Errorf("wgpu: open %s: %w: backend not compiled in", drv.name, driver.ErrUnavailable)
	}
	flags := gputypes.InstanceFlagsNone
	if cfg.Debug {
		flags = gputypes.InstanceFlagsDebug
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("wgpu: open %s: create instance: %w", drv.name, mapError(err))
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open %s: %w: no adapters", drv.name, driver.ErrUnavailable)
	}
	selected := selectAdapter(adapters)

	limits := gputypes.DefaultLimits()
	opened, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open %s: open adapter: %w", drv.name, mapError(err))
	}

	d, err := newDevice(deviceConfig{
		name:     drv.name,
		backend:  drv.backend,
		instance: instance,
		adapter:  selected,
		device:   opened.Device,
		queue:    opened.Queue,
		limits:   limits,
		formats:  formats,
		debug:    cfg.Debug,
	})
	if err != nil {
		opened.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	driver.Logger().Info("wgpu: device opened",
		"driver", drv.name, "adapter", selected.Info.Name, "type", selected.Info.DeviceType)
	return d, nil
}

func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}
