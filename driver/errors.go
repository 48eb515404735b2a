package driver

import "errors"

// Driver errors. Implementations wrap these so callers can match them with
// errors.Is regardless of backend.
var (
	// ErrDeviceLost is returned once the device can no longer execute work.
	// It is terminal: a lost device never recovers.
	ErrDeviceLost = errors.New("driver: device lost")

	// ErrOutOfMemory is returned when the backend cannot satisfy an allocation.
	ErrOutOfMemory = errors.New("driver: out of memory")

	// ErrUnavailable is returned by Open when the backend is not usable on
	// this system (library missing, no adapter).
	ErrUnavailable = errors.New("driver: backend unavailable")

	// ErrUnsupportedShaderFormat is returned when shader code is in a format
	// the driver cannot consume.
	ErrUnsupportedShaderFormat = errors.New("driver: unsupported shader format")

	// ErrUnsupported is returned for operations a driver does not implement
	// for the given arguments.
	ErrUnsupported = errors.New("driver: unsupported operation")

	// ErrAlreadyMapped is returned when mapping a transfer buffer twice.
	ErrAlreadyMapped = errors.New("driver: transfer buffer already mapped")

	// ErrSurfaceOutdated is returned by Surface.Acquire when the surface must
	// be reconfigured before the next acquisition.
	ErrSurfaceOutdated = errors.New("driver: surface outdated")
)
