package soft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucmd/driver"
)

type submission struct {
	epoch uint64
	list  *driver.CommandList
}

// Device is a soft device. Submissions run on a timeline goroutine owned by
// the device.
type Device struct {
	debug   bool
	latency time.Duration

	mu        sync.Mutex
	cond      *sync.Cond // wakes the timeline: new work, resume, loss, close
	queue     []submission
	submitted uint64
	completed uint64
	notify    chan struct{} // closed and replaced whenever completed advances
	paused    bool
	lost      bool
	closed    bool
	done      chan struct{}

	traceMu sync.Mutex
	trace   []TraceEntry
	labels  []string
}

func newDevice(cfg driver.OpenConfig, latency time.Duration) *Device {
	d := &Device{
		debug:   cfg.Debug,
		latency: latency,
		notify:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// run is the GPU timeline.
func (d *Device) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for !d.closed && (d.lost || d.paused || len(d.queue) == 0) {
			d.cond.Wait()
		}
		if d.lost || len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		sub := d.queue[0]
		d.queue = d.queue[1:]
		latency := d.latency
		d.mu.Unlock()

		if latency > 0 {
			time.Sleep(latency)
		}
		d.execute(sub)

		d.mu.Lock()
		if !d.lost {
			d.completed = sub.epoch
			d.broadcastLocked()
		}
		d.mu.Unlock()
	}
}

func (d *Device) broadcastLocked() {
	close(d.notify)
	d.notify = make(chan struct{})
}

// Submit queues list and returns its epoch.
func (d *Device) Submit(list *driver.CommandList) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return 0, driver.ErrDeviceLost
	}
	if d.closed {
		return 0, fmt.Errorf("soft: submit: device destroyed")
	}
	d.submitted++
	d.queue = append(d.queue, submission{epoch: d.submitted, list: list})
	d.cond.Signal()
	return d.submitted, nil
}

// Completed returns the highest completed epoch.
func (d *Device) Completed() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed
}

// Wait blocks until epoch completes.
func (d *Device) Wait(ctx context.Context, epoch uint64) error {
	d.mu.Lock()
	for d.completed < epoch {
		if d.lost {
			d.mu.Unlock()
			return driver.ErrDeviceLost
		}
		ch := d.notify
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		d.mu.Lock()
	}
	d.mu.Unlock()
	return nil
}

// WaitIdle blocks until every submission completes.
func (d *Device) WaitIdle(ctx context.Context) error {
	d.mu.Lock()
	target := d.submitted
	d.mu.Unlock()
	return d.Wait(ctx, target)
}

// Destroy drains queued work and stops the timeline.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.paused = false
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

// Pause stops the timeline before its next submission. Submitted work stays
// in flight until Resume.
func (d *Device) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume restarts a paused timeline.
func (d *Device) Resume() {
	d.mu.Lock()
	d.paused = false
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Lose simulates device loss. Queued work never completes and every later
// Submit or Wait fails with driver.ErrDeviceLost.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return
	}
	d.lost = true
	d.queue = nil
	d.broadcastLocked()
	d.cond.Broadcast()
	driver.Logger().Warn("soft: device lost", "completed", d.completed, "submitted", d.submitted)
}

// =============================================================================
// Trace
// =============================================================================

// TraceKind classifies trace entries.
type TraceKind uint8

// Trace kinds.
const (
	TraceDraw TraceKind = iota
	TraceDrawIndexed
	TraceDispatch
)

// String returns the kind name.
func (k TraceKind) String() string {
	switch k {
	case TraceDraw:
		return "Draw"
	case TraceDrawIndexed:
		return "DrawIndexed"
	case TraceDispatch:
		return "Dispatch"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// TraceEntry records one executed draw or dispatch. Indirect commands
// produce one entry per decoded record.
type TraceEntry struct {
	Epoch    uint64
	Kind     TraceKind
	Indirect bool
	Pipeline string

	Draw        driver.DrawArgs
	DrawIndexed driver.DrawIndexedArgs
	Dispatch    driver.DispatchArgs
}

// Trace returns a copy of the executed draws and dispatches.
func (d *Device) Trace() []TraceEntry {
	d.traceMu.Lock()
	defer d.traceMu.Unlock()
	out := make([]TraceEntry, len(d.trace))
	copy(out, d.trace)
	return out
}

// Labels returns the debug labels and group names seen so far, in order.
// Groups appear as "push:<name>" and "pop".
func (d *Device) Labels() []string {
	d.traceMu.Lock()
	defer d.traceMu.Unlock()
	out := make([]string, len(d.labels))
	copy(out, d.labels)
	return out
}

// ResetTrace clears the trace and labels.
func (d *Device) ResetTrace() {
	d.traceMu.Lock()
	d.trace = nil
	d.labels = nil
	d.traceMu.Unlock()
}

func (d *Device) record(e TraceEntry) {
	d.traceMu.Lock()
	d.trace = append(d.trace, e)
	d.traceMu.Unlock()
}

func (d *Device) label(s string) {
	d.traceMu.Lock()
	d.labels = append(d.labels, s)
	d.traceMu.Unlock()
}
