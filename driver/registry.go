package driver

import (
	"slices"

	"github.com/gogpu/gpucontext"
)

// Driver names used by the bundled drivers.
const (
	NameVulkan = "vulkan"
	NameDX12   = "dx12"
	NameMetal  = "metal"
	NameGL     = "gl"
	NameSoft   = "soft"
	NameNoop   = "noop"
)

// Priority order for driver selection (first available wins).
// Native APIs first, then GL, then the pure-Go drivers.
var driverPriority = []string{NameVulkan, NameDX12, NameMetal, NameGL, NameSoft, NameNoop}

var registry = gpucontext.NewRegistry[Driver](gpucontext.WithPriority(driverPriority...))

// Register registers a driver factory with the given name.
// This is typically called from init() functions in driver packages.
// If a driver with the same name is already registered, it is replaced.
func Register(name string, factory func() Driver) {
	registry.Register(name, factory)
	Logger().Debug("driver registered", "name", name)
}

// Unregister removes a driver from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// IsRegistered reports whether a driver with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Get returns a driver by name, or nil if it is not registered.
func Get(name string) Driver {
	if !registry.Has(name) {
		return nil
	}
	return registry.Get(name)
}

// Drivers returns the registered driver names in selection order: names
// from the fixed priority list first, then any other drivers sorted by name.
func Drivers() []string {
	available := registry.Available()

	names := make([]string, 0, len(available))
	for _, name := range driverPriority {
		if slices.Contains(available, name) {
			names = append(names, name)
		}
	}

	var rest []string
	for _, name := range available {
		if !slices.Contains(driverPriority, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// Best returns the highest-priority registered driver, or nil.
func Best() Driver {
	return registry.Best()
}
