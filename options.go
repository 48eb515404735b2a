package gpucmd

import "log/slog"

// DefaultMemoryBudget is the default budget for buffer, texture and transfer
// buffer allocations (1 GiB).
const DefaultMemoryBudget = 1 << 30

// DefaultFramesInFlight is the frames-in-flight limit of new devices.
const DefaultFramesInFlight = 2

// Option configures a Device during creation.
//
// Example:
//
//	dev, err := gpucmd.CreateDevice(gpucmd.ShaderFormatSPIRV, false, "",
//		gpucmd.WithMemoryBudget(256<<20),
//		gpucmd.WithFramesInFlight(3))
type Option func(*options)

type options struct {
	memoryBudget   uint64
	framesInFlight int
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		memoryBudget:   DefaultMemoryBudget,
		framesInFlight: DefaultFramesInFlight,
	}
}

// WithMemoryBudget caps the bytes of live physical allocations. Creation
// and cycling past the budget fail with ErrOutOfMemory. Zero disables the
// budget.
func WithMemoryBudget(bytes uint64) Option {
	return func(o *options) {
		o.memoryBudget = bytes
	}
}

// WithFramesInFlight sets the initial frames-in-flight limit. Values outside
// [1, 3] make CreateDevice fail with ErrInvalidFramesInFlight.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		o.framesInFlight = n
	}
}

// WithLogger sets a logger for this device only. Without it the device uses
// the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
