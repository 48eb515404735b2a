package gpucmd

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Fence signals when the submission it was acquired with completes. It
// signals exactly once and must be released with ReleaseFence.
type Fence struct {
	d        *Device
	epoch    uint64
	released atomic.Bool
}

// Epoch returns the submission epoch the fence waits for.
func (f *Fence) Epoch() uint64 { return f.epoch }

func (d *Device) checkFence(f *Fence) error {
	switch {
	case f == nil || f.d != d:
		return fmt.Errorf("%w: fence", ErrInvalidHandle)
	case f.released.Load():
		return ErrFenceReleased
	}
	return nil
}

// QueryFence reports whether f has signaled. It does not block.
func (d *Device) QueryFence(f *Fence) (_ bool, err error) {
	defer d.record(&err)

	if err := d.checkFence(f); err != nil {
		return false, fmt.Errorf("query fence: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost.Load() {
		return false, fmt.Errorf("query fence: %w", ErrDeviceLost)
	}
	d.reapLocked()
	return f.epoch <= d.state.completed, nil
}

// WaitForFences blocks until every fence signals when waitAll is set, or
// until any of them does otherwise.
func (d *Device) WaitForFences(ctx context.Context, waitAll bool, fences ...*Fence) (err error) {
	defer d.record(&err)

	if len(fences) == 0 {
		return nil
	}
	var target uint64
	for i, f := range fences {
		if err := d.checkFence(f); err != nil {
			return fmt.Errorf("wait for fences: fence %d: %w", i, err)
		}
		switch {
		case i == 0:
			target = f.epoch
		case waitAll:
			target = max(target, f.epoch)
		default:
			target = min(target, f.epoch)
		}
	}

	d.mu.Lock()
	if err := d.liveLocked(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("wait for fences: %w", err)
	}
	d.mu.Unlock()

	// Epochs complete in order, so waiting for the newest (or oldest)
	// epoch covers every (or any) fence.
	if err := d.waitEpoch(ctx, "wait for fences", target); err != nil {
		return err
	}

	d.mu.Lock()
	d.reapLocked()
	d.mu.Unlock()
	return nil
}

// ReleaseFence releases f. Releasing a fence twice returns
// ErrFenceReleased.
func (d *Device) ReleaseFence(f *Fence) (err error) {
	defer d.record(&err)

	if f == nil || f.d != d {
		return fmt.Errorf("release fence: %w: fence", ErrInvalidHandle)
	}
	if f.released.Swap(true) {
		return fmt.Errorf("release fence: %w", ErrFenceReleased)
	}
	d.mu.Lock()
	delete(d.state.fences, f)
	d.mu.Unlock()
	return nil
}

// OutstandingFences returns the number of acquired fences not yet
// released.
func (d *Device) OutstandingFences() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.state.fences)
}
