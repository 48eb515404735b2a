package gpucmd

import "github.com/gogpu/gpucmd/driver"

// retiree is a physical resource waiting for the GPU to finish with it.
type retiree interface {
	idle(completed uint64) bool
	destroy(mem *memoryBudget)
}

// retiredSurface is a released window's surface. It stays alive until the
// last frame presented to it completes.
type retiredSurface struct {
	surface driver.Surface
	epoch   uint64
}

func (r retiredSurface) idle(completed uint64) bool { return r.epoch <= completed }
func (r retiredSurface) destroy(*memoryBudget)      { r.surface.Destroy() }

// retireLocked queues r for destruction.
func (d *Device) retireLocked(r retiree) {
	d.state.retire = append(d.state.retire, r)
}

// retireRing queues every allocation of a released resource.
func retireRing[T driver.Resource](d *Device, r *ring[T]) {
	for _, a := range r.slots {
		d.retireLocked(a)
	}
}

// drainRetireLocked destroys every queued resource the GPU no longer uses
// and returns how many were destroyed.
func (d *Device) drainRetireLocked() int {
	completed := d.state.completed
	kept := d.state.retire[:0]
	n := 0
	for _, r := range d.state.retire {
		if r.idle(completed) {
			r.destroy(d.mem)
			n++
			continue
		}
		kept = append(kept, r)
	}
	clear(d.state.retire[len(kept):])
	d.state.retire = kept
	if n > 0 {
		d.log.Debug("gpucmd: retired resources", "count", n, "pending", len(kept), "completed", completed)
	}
	return n
}

// reapLocked observes GPU progress: it frees frame slots of completed
// presents and drains the retire queue.
func (d *Device) reapLocked() {
	if c := d.drv.Completed(); c > d.state.completed {
		d.state.completed = c
	}
	for _, sc := range d.state.windows {
		sc.reapLocked(d.state.completed)
	}
	d.drainRetireLocked()
}
