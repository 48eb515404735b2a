package gpucmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
	"github.com/gogpu/gpucmd/internal/handle"
)

// Limits enforced on bindings.
const (
	MaxColorTargets            = 8
	MaxVertexBuffers           = 16
	MaxSamplersPerStage        = 16
	MaxStorageTexturesPerStage = 8
	MaxStorageBuffersPerStage  = 8
	MaxUniformSlots            = 4
	MaxFramesInFlight          = 3
)

// deviceState is the mutable device-wide state. Guarded by Device.mu.
type deviceState struct {
	framesInFlight int
	windows        map[gpucontext.WindowProvider]*swapchain
	retire         []retiree
	fences         map[*Fence]struct{}

	// submitted is the newest epoch handed to the driver; completed is the
	// newest epoch observed as finished.
	submitted uint64
	completed uint64

	suspended bool
	destroyed bool
}

// Device owns resources, command buffers and swapchains on one driver
// device.
//
// Device is safe for concurrent use. Command buffers, passes and fences are
// not; each must be used by one goroutine at a time.
type Device struct {
	drv     driver.Device
	info    driver.Info
	formats ShaderFormat
	debug   bool
	log     *slog.Logger
	mem     *memoryBudget

	buffers           handle.Arena[*buffer]
	textures          handle.Arena[*texture]
	samplers          handle.Arena[*sampler]
	shaders           handle.Arena[*shader]
	graphicsPipelines handle.Arena[*graphicsPipeline]
	computePipelines  handle.Arena[*computePipeline]
	transferBuffers   handle.Arena[*transferBuffer]

	mu    sync.Mutex
	state deviceState

	lost    atomic.Bool
	lastErr atomic.Pointer[string]
	cbSeq   atomic.Uint64
}

// CreateDevice opens a device on the first registered driver, in priority
// order, that is available and accepts one of formats. A non-empty
// preferred names the only driver to try.
func CreateDevice(formats ShaderFormat, debug bool, preferred string, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.framesInFlight < 1 || o.framesInFlight > MaxFramesInFlight {
		return nil, fmt.Errorf("create device: %w: %d", ErrInvalidFramesInFlight, o.framesInFlight)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	names := driver.Drivers()
	if preferred != "" {
		names = []string{preferred}
	}

	var errs []error
	for _, name := range names {
		drv := driver.Get(name)
		if drv == nil {
			errs = append(errs, fmt.Errorf("%s: not registered", name))
			continue
		}
		if !drv.Available() {
			errs = append(errs, fmt.Errorf("%s: %w", name, driver.ErrUnavailable))
			continue
		}
		if !drv.ShaderFormats().Intersects(formats) {
			errs = append(errs, fmt.Errorf("%s: accepts %v", name, drv.ShaderFormats()))
			continue
		}
		dev, err := drv.Open(driver.OpenConfig{Debug: debug, ShaderFormats: formats})
		if err != nil {
			log.Warn("gpucmd: driver open failed", "driver", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		d := newDevice(dev, formats&drv.ShaderFormats(), debug, log, o)
		log.Info("gpucmd: device created",
			"driver", name,
			"adapter", d.info.Adapter.Name,
			"backend", d.info.Backend,
			"formats", d.formats)
		return d, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("create device: %w: no drivers registered", ErrNoSupportedBackend)
	}
	return nil, fmt.Errorf("create device: %w: requested %v: %w", ErrNoSupportedBackend, formats, errors.Join(errs...))
}

func newDevice(dev driver.Device, formats ShaderFormat, debug bool, log *slog.Logger, o options) *Device {
	return &Device{
		drv:     dev,
		info:    dev.Info(),
		formats: formats,
		debug:   debug,
		log:     log,
		mem:     newMemoryBudget(o.memoryBudget),
		state: deviceState{
			framesInFlight: o.framesInFlight,
			windows:        make(map[gpucontext.WindowProvider]*swapchain),
			fences:         make(map[*Fence]struct{}),
		},
	}
}

// SupportsShaderFormats reports whether a device could be created with
// formats, on the named driver or on any driver when name is empty.
func SupportsShaderFormats(formats ShaderFormat, name string) bool {
	names := driver.Drivers()
	if name != "" {
		names = []string{name}
	}
	for _, n := range names {
		if drv := driver.Get(n); drv != nil && drv.Available() && drv.ShaderFormats().Intersects(formats) {
			return true
		}
	}
	return false
}

// Drivers returns the names of registered drivers that are available on
// this system, in priority order.
func Drivers() []string {
	var out []string
	for _, name := range driver.Drivers() {
		if drv := driver.Get(name); drv != nil && drv.Available() {
			out = append(out, name)
		}
	}
	return out
}

// TextureFormatTexelBlockSize returns the byte size of one texel block of
// format, or 0 for unknown formats.
func TextureFormatTexelBlockSize(format gputypes.TextureFormat) uint32 {
	b, _ := driver.Block(format)
	return b.Size
}

// CalculateTextureFormatSize returns the tightly packed byte size of a
// width x height x depthOrLayers region of format.
func CalculateTextureFormatSize(format gputypes.TextureFormat, width, height, depthOrLayers uint32) uint64 {
	return driver.FormatSize(format, width, height, depthOrLayers)
}

// =============================================================================
// State
// =============================================================================

// DriverName returns the name of the driver the device runs on.
func (d *Device) DriverName() string { return d.info.Driver }

// Info returns the driver's description of the device.
func (d *Device) Info() driver.Info { return d.info }

// ShaderFormats returns the shader formats the device accepts.
func (d *Device) ShaderFormats() ShaderFormat { return d.formats }

// DriverDevice returns the underlying driver device.
func (d *Device) DriverDevice() driver.Device { return d.drv }

// Lost reports whether the device has been lost.
func (d *Device) Lost() bool { return d.lost.Load() }

// LastError returns the message of the most recent failed call, or "".
func (d *Device) LastError() string {
	if p := d.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

// MemoryStats returns the allocation totals.
func (d *Device) MemoryStats() MemoryStats { return d.mem.stats() }

// record stores a failure for LastError. Use as defer d.record(&err).
func (d *Device) record(err *error) {
	if *err != nil {
		msg := (*err).Error()
		d.lastErr.Store(&msg)
	}
}

// liveLocked returns the terminal-state error, if any.
func (d *Device) liveLocked() error {
	switch {
	case d.lost.Load():
		return ErrDeviceLost
	case d.state.destroyed:
		return ErrDeviceDestroyed
	}
	return nil
}

// driverErr wraps an error from the driver. Device loss is terminal.
func (d *Device) driverErr(op string, err error) error {
	switch {
	case errors.Is(err, driver.ErrDeviceLost):
		if !d.lost.Swap(true) {
			d.log.Warn("gpucmd: device lost", "op", op, "err", err)
		}
		return fmt.Errorf("%s: %w: %w", op, ErrDeviceLost, err)
	case errors.Is(err, driver.ErrOutOfMemory):
		return fmt.Errorf("%s: %w: %w", op, ErrOutOfMemory, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WaitForIdle blocks until all submitted work completes, then releases
// every retired resource.
func (d *Device) WaitForIdle(ctx context.Context) (err error) {
	defer d.record(&err)

	d.mu.Lock()
	if err := d.liveLocked(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("wait for idle: %w", err)
	}
	d.mu.Unlock()

	if err := d.drv.WaitIdle(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wait for idle: %w", err)
		}
		return d.driverErr("wait for idle", err)
	}

	d.mu.Lock()
	d.reapLocked()
	d.mu.Unlock()
	return nil
}

// SetAllowedFramesInFlight changes how many submitted-but-unconsumed
// swapchain frames each window may have. It waits for idle first.
func (d *Device) SetAllowedFramesInFlight(ctx context.Context, n int) (err error) {
	defer d.record(&err)

	if n < 1 || n > MaxFramesInFlight {
		return fmt.Errorf("set frames in flight: %w: %d", ErrInvalidFramesInFlight, n)
	}
	if err := d.WaitForIdle(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.liveLocked(); err != nil {
		return fmt.Errorf("set frames in flight: %w", err)
	}
	d.state.framesInFlight = n
	for _, sc := range d.state.windows {
		sc.resetLimiter(n)
	}
	d.log.Debug("gpucmd: frames in flight changed", "frames", n)
	return nil
}

// FramesInFlight returns the current frames-in-flight limit.
func (d *Device) FramesInFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.framesInFlight
}

// Suspend waits for idle and then rejects submissions with ErrSuspended
// until Resume. Recording stays allowed.
func (d *Device) Suspend(ctx context.Context) (err error) {
	defer d.record(&err)

	if err := d.WaitForIdle(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.state.suspended = true
	d.mu.Unlock()
	d.log.Debug("gpucmd: device suspended")
	return nil
}

// Resume re-enables submission after Suspend.
func (d *Device) Resume() {
	d.mu.Lock()
	d.state.suspended = false
	d.mu.Unlock()
	d.log.Debug("gpucmd: device resumed")
}

// Destroy waits for outstanding work, releases every resource and window,
// and closes the driver device. Handles and fences become invalid.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.state.destroyed {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	if !d.lost.Load() {
		if err := d.drv.WaitIdle(context.Background()); err != nil {
			d.log.Warn("gpucmd: wait idle on destroy failed", "err", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.destroyed = true
	d.state.completed = max(d.state.completed, d.state.submitted)
	if d.lost.Load() {
		// Lost work never completes; everything is idle from here on.
		d.state.completed = ^uint64(0)
	}

	if n := len(d.state.fences); n > 0 {
		d.log.Warn("gpucmd: fences not released before destroy", "count", n)
	}
	for window, sc := range d.state.windows {
		sc.surface.Destroy()
		delete(d.state.windows, window)
	}

	d.buffers.Each(func(id handle.ID[*buffer], b *buffer) {
		retireRing(d, &b.ring)
		d.buffers.Remove(id)
	})
	d.textures.Each(func(id handle.ID[*texture], t *texture) {
		retireRing(d, &t.ring)
		d.textures.Remove(id)
	})
	d.transferBuffers.Each(func(id handle.ID[*transferBuffer], tb *transferBuffer) {
		retireRing(d, &tb.ring)
		d.transferBuffers.Remove(id)
	})
	d.samplers.Each(func(id handle.ID[*sampler], s *sampler) {
		d.retireLocked(s.alloc)
		d.samplers.Remove(id)
	})
	d.shaders.Each(func(id handle.ID[*shader], s *shader) {
		d.retireLocked(s.alloc)
		d.shaders.Remove(id)
	})
	d.graphicsPipelines.Each(func(id handle.ID[*graphicsPipeline], p *graphicsPipeline) {
		d.retireLocked(p.alloc)
		d.graphicsPipelines.Remove(id)
	})
	d.computePipelines.Each(func(id handle.ID[*computePipeline], p *computePipeline) {
		d.retireLocked(p.alloc)
		d.computePipelines.Remove(id)
	})

	// Allocations still referenced by recording buffers are dropped with
	// the driver device.
	for _, r := range d.state.retire {
		r.destroy(d.mem)
	}
	d.state.retire = nil

	d.drv.Destroy()
	d.log.Info("gpucmd: device destroyed", "driver", d.info.Driver)
}

// =============================================================================
// Capabilities
// =============================================================================

// TextureSupportsFormat reports whether a texture of format, type and usage
// can be created.
func (d *Device) TextureSupportsFormat(format gputypes.TextureFormat, typ TextureType, usage TextureUsage) bool {
	return d.drv.SupportsTextureFormat(format, typ, usage.lower())
}

// TextureSupportsSampleCount reports whether format supports count samples.
func (d *Device) TextureSupportsSampleCount(format gputypes.TextureFormat, count uint32) bool {
	return d.drv.SupportsSampleCount(format, count)
}
