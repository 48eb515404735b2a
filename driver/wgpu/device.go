package wgpu

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

// pollInterval is how often Wait polls the queue for completed work.
const pollInterval = 250 * time.Microsecond

type deviceConfig struct {
	name     string
	backend  gputypes.Backend
	instance hal.Instance
	adapter  *hal.ExposedAdapter
	device   hal.Device
	queue    hal.Queue
	limits   gputypes.Limits
	formats  driver.ShaderFormat
	debug    bool
}

// inflight maps a driver epoch to the HAL submission index carrying it.
type inflight struct {
	epoch uint64
	index uint64
}

// garbage is a HAL object whose destruction waits for an epoch.
type garbage struct {
	epoch uint64
	free  func()
}

// Device is a HAL-backed device.
type Device struct {
	cfg     deviceConfig
	dev     hal.Device
	queue   hal.Queue
	caches  *caches
	blitter *blitter

	// submitMu serializes encoding and queue submission. Texture and
	// buffer usage states are only touched while it is held.
	submitMu sync.Mutex

	mu        sync.Mutex
	encoding  bool
	submitted uint64
	completed uint64
	pending   []inflight
	garbage   []garbage
	lost      bool
}

func newDevice(cfg deviceConfig) (*Device, error) {
	d := &Device{cfg: cfg, dev: cfg.device, queue: cfg.queue}
	c, err := newCaches(d, defaultViewCacheSize, defaultGroupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("wgpu: caches: %w", err)
	}
	d.caches = c
	d.blitter = newBlitter(d)
	return d, nil
}

// Info describes the device.
func (d *Device) Info() driver.Info {
	info := d.cfg.adapter.Info
	return driver.Info{
		Driver:        d.cfg.name,
		Adapter:       gpucontext.AdapterInfo{Name: info.Name, Type: adapterType(info.DeviceType)},
		Backend:       d.cfg.backend,
		ShaderFormats: d.cfg.formats,
	}
}

// Limits returns the limits the device was opened with.
func (d *Device) Limits() gputypes.Limits { return d.cfg.limits }

// SupportsTextureFormat checks the adapter's format capabilities against
// every requested usage.
func (d *Device) SupportsTextureFormat(format gputypes.TextureFormat, typ driver.TextureType, usage gputypes.TextureUsage) bool {
	if _, ok := driver.Block(format); !ok {
		return false
	}
	if format.IsDepthStencil() && typ == driver.TextureType3D {
		return false
	}
	flags := d.cfg.adapter.Adapter.TextureFormatCapabilities(format).Flags
	need := []struct {
		usage gputypes.TextureUsage
		cap   hal.TextureFormatCapabilityFlags
	}{
		{gputypes.TextureUsageTextureBinding, hal.TextureFormatCapabilitySampled},
		{gputypes.TextureUsageStorageBinding, hal.TextureFormatCapabilityStorage},
		{gputypes.TextureUsageRenderAttachment, hal.TextureFormatCapabilityRenderAttachment},
	}
	for _, n := range need {
		if usage.Contains(n.usage) && flags&n.cap == 0 {
			return false
		}
	}
	return true
}

// SupportsSampleCount reports 1 for every format and 4 where the adapter
// can multisample format.
func (d *Device) SupportsSampleCount(format gputypes.TextureFormat, count uint32) bool {
	switch count {
	case 1:
		return true
	case 4:
		flags := d.cfg.adapter.Adapter.TextureFormatCapabilities(format).Flags
		return flags&hal.TextureFormatCapabilityMultisample != 0
	default:
		return false
	}
}

// =============================================================================
// Submission and completion
// =============================================================================

// Submit encodes list into one HAL command buffer, submits it and presents
// the list's surface textures.
func (d *Device) Submit(list *driver.CommandList) (uint64, error) {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	d.mu.Lock()
	if d.lost {
		d.mu.Unlock()
		return 0, fmt.Errorf("wgpu: submit: %w", driver.ErrDeviceLost)
	}
	d.encoding = true
	epoch := d.submitted + 1
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.encoding = false
		d.mu.Unlock()
	}()

	e, err := newEncoder(d, list)
	if err != nil {
		return 0, d.fail("submit", err)
	}
	cmd, err := e.encode()
	if err != nil {
		e.abort()
		return 0, d.fail("submit", err)
	}
	if err := e.uploadUniforms(); err != nil {
		d.dev.FreeCommandBuffer(cmd)
		e.abort()
		return 0, d.fail("submit", err)
	}

	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.dev.FreeCommandBuffer(cmd)
		e.abort()
		return 0, d.fail("submit", err)
	}

	for _, p := range list.Presents {
		s, t := asSurface(p.Surface), asTexture(p.Texture)
		if err := d.queue.Present(s.raw, t.surface, nil); err != nil {
			driver.Logger().Warn("wgpu: present failed", "epoch", epoch, "err", err)
		}
		t.release()
	}

	d.mu.Lock()
	d.submitted = epoch
	d.pending = append(d.pending, inflight{epoch: epoch, index: index})
	d.deferLocked(epoch, func() { d.dev.FreeCommandBuffer(cmd) })
	for _, fn := range e.garbage {
		d.deferLocked(epoch, fn)
	}
	d.mu.Unlock()

	driver.Logger().Debug("wgpu: submitted", "epoch", epoch, "index", index,
		"commands", len(list.Commands), "presents", len(list.Presents))
	return epoch, nil
}

// fail records device loss and wraps err for op.
func (d *Device) fail(op string, err error) error {
	err = mapError(err)
	if isLost(err) {
		d.mu.Lock()
		if !d.lost {
			d.lost = true
			driver.Logger().Error("wgpu: device lost", "op", op, "err", err)
		}
		d.mu.Unlock()
	}
	return fmt.Errorf("wgpu: %s: %w", op, err)
}

// Completed polls the queue and returns the highest completed epoch.
func (d *Device) Completed() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pollLocked()
	return d.completed
}

func (d *Device) pollLocked() {
	if len(d.pending) == 0 {
		return
	}
	index := d.queue.PollCompleted()
	n := 0
	for n < len(d.pending) && d.pending[n].index <= index {
		d.completed = d.pending[n].epoch
		n++
	}
	if n == 0 {
		return
	}
	d.pending = slices.Delete(d.pending, 0, n)
	d.reapLocked(d.completed)
}

// Wait polls until epoch completes, the device is lost or ctx ends.
func (d *Device) Wait(ctx context.Context, epoch uint64) error {
	var ticker *time.Ticker
	for {
		d.mu.Lock()
		d.pollLocked()
		done, lost := d.completed >= epoch, d.lost
		d.mu.Unlock()
		switch {
		case done:
			return nil
		case lost:
			return fmt.Errorf("wgpu: wait: %w", driver.ErrDeviceLost)
		}

		if ticker == nil {
			ticker = time.NewTicker(pollInterval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitIdle waits for the HAL device to drain, then for every epoch.
func (d *Device) WaitIdle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.dev.WaitIdle(); err != nil {
		return d.fail("wait idle", err)
	}
	d.mu.Lock()
	last := d.submitted
	d.mu.Unlock()
	return d.Wait(ctx, last)
}

// deferDestroy frees a HAL object once the GPU can no longer use it. An
// object released while a list is being encoded may be referenced by that
// list and waits for it as well.
func (d *Device) deferDestroy(free func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pollLocked()
	if !d.encoding && d.submitted <= d.completed {
		free()
		return
	}
	epoch := d.submitted
	if d.encoding {
		epoch++
	}
	d.deferLocked(epoch, free)
}

func (d *Device) deferLocked(epoch uint64, free func()) {
	d.garbage = append(d.garbage, garbage{epoch: epoch, free: free})
}

// reapLocked frees garbage up to epoch in release order.
func (d *Device) reapLocked(epoch uint64) {
	n := 0
	for _, g := range d.garbage {
		if g.epoch <= epoch {
			g.free()
			continue
		}
		d.garbage[n] = g
		n++
	}
	clear(d.garbage[n:])
	d.garbage = d.garbage[:n]
}

// Destroy drains the queue and releases every HAL object.
func (d *Device) Destroy() {
	if err := d.dev.WaitIdle(); err != nil {
		driver.Logger().Warn("wgpu: destroy: wait idle", "err", err)
	}
	d.caches.purge()
	d.blitter.destroy()

	d.mu.Lock()
	d.pending = nil
	d.completed = d.submitted
	d.reapLocked(^uint64(0))
	d.mu.Unlock()

	d.dev.Destroy()
	d.cfg.instance.Destroy()
	driver.Logger().Info("wgpu: device destroyed", "driver", d.cfg.name)
}
