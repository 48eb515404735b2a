package gpucmd

import "errors"

// Device and resource errors.
var (
	// ErrNoSupportedBackend is returned when no registered driver can open
	// a device with the requested shader formats.
	ErrNoSupportedBackend = errors.New("gpucmd: no supported backend")

	// ErrUnsupportedUsageCombination is returned for an empty or invalid
	// usage flag set.
	ErrUnsupportedUsageCombination = errors.New("gpucmd: unsupported usage combination")

	// ErrOutOfMemory is returned when an allocation exceeds the memory budget
	// or the driver runs out of memory.
	ErrOutOfMemory = errors.New("gpucmd: out of memory")

	// ErrUnsupportedFormat is returned for texture formats the device cannot
	// create with the requested type and usage.
	ErrUnsupportedFormat = errors.New("gpucmd: unsupported texture format")

	// ErrUnsupportedSampleCount is returned for unsupported sample counts.
	ErrUnsupportedSampleCount = errors.New("gpucmd: unsupported sample count")

	// ErrUnsupportedShaderFormat is returned for shader code in a format the
	// device was not created with.
	ErrUnsupportedShaderFormat = errors.New("gpucmd: unsupported shader format")

	// ErrInvalidDescriptor is returned for malformed create infos and pass
	// descriptions.
	ErrInvalidDescriptor = errors.New("gpucmd: invalid descriptor")

	// ErrInvalidHandle is returned for null, released or foreign handles.
	ErrInvalidHandle = errors.New("gpucmd: invalid handle")

	// ErrDeviceLost is returned by every entry point once the driver has
	// reported device loss. The state is terminal.
	ErrDeviceLost = errors.New("gpucmd: device lost")

	// ErrDeviceDestroyed is returned after Destroy.
	ErrDeviceDestroyed = errors.New("gpucmd: device destroyed")

	// ErrSuspended is returned by Submit while the device is suspended.
	ErrSuspended = errors.New("gpucmd: device suspended")

	// ErrInvalidFramesInFlight is returned for a frames-in-flight limit
	// outside [1, 3].
	ErrInvalidFramesInFlight = errors.New("gpucmd: frames in flight must be between 1 and 3")

	// ErrTransferBufferMapped is returned when a mapped transfer buffer is
	// used in a copy, or mapped twice.
	ErrTransferBufferMapped = errors.New("gpucmd: transfer buffer is mapped")
)

// Recording errors.
var (
	// ErrCommandBufferNotRecording is returned for any recording call on a
	// submitted or cancelled command buffer.
	ErrCommandBufferNotRecording = errors.New("gpucmd: command buffer is not recording")

	// ErrPassOpen is returned when a pass is already open, or still open at
	// submit time.
	ErrPassOpen = errors.New("gpucmd: a pass is already open")

	// ErrPassClosed is returned for pass calls after End.
	ErrPassClosed = errors.New("gpucmd: pass is closed")

	// ErrNoPipeline is returned for draws and dispatches without a bound
	// pipeline.
	ErrNoPipeline = errors.New("gpucmd: no pipeline bound")

	// ErrNoIndexBuffer is returned for indexed draws without an index buffer.
	ErrNoIndexBuffer = errors.New("gpucmd: no index buffer bound")

	// ErrMissingUsage is returned when a resource lacks the usage flag an
	// operation requires.
	ErrMissingUsage = errors.New("gpucmd: resource lacks required usage")

	// ErrSlotOutOfRange is returned for binding ranges past the per-stage
	// limits.
	ErrSlotOutOfRange = errors.New("gpucmd: binding slot out of range")

	// ErrUniformAlignment is returned for uniform data that is empty or not
	// a multiple of 16 bytes.
	ErrUniformAlignment = errors.New("gpucmd: uniform data must be a non-zero multiple of 16 bytes")

	// ErrAlignment is returned for misaligned offsets and sizes.
	ErrAlignment = errors.New("gpucmd: misaligned offset or size")

	// ErrOutOfBounds is returned for ranges and regions outside a resource.
	ErrOutOfBounds = errors.New("gpucmd: region out of bounds")

	// ErrReadWriteHazard is returned when a compute pass binds a resource
	// for reading that the same pass writes without simultaneous access.
	ErrReadWriteHazard = errors.New("gpucmd: resource read and written in the same compute pass")

	// ErrWrongTransferDirection is returned for uploads from download
	// buffers and downloads into upload buffers.
	ErrWrongTransferDirection = errors.New("gpucmd: wrong transfer buffer direction")

	// ErrDebugGroupScope is returned when a debug group crosses a pass
	// boundary.
	ErrDebugGroupScope = errors.New("gpucmd: debug group crosses pass boundary")

	// ErrDebugGroupUnderflow is returned for a pop without a matching push.
	ErrDebugGroupUnderflow = errors.New("gpucmd: debug group stack underflow")
)

// Swapchain and fence errors.
var (
	// ErrWindowNotClaimed is returned for windows without a swapchain.
	ErrWindowNotClaimed = errors.New("gpucmd: window not claimed")

	// ErrWindowAlreadyClaimed is returned when claiming a window twice.
	ErrWindowAlreadyClaimed = errors.New("gpucmd: window already claimed")

	// ErrSwapchainAcquired is returned when cancelling a command buffer that
	// acquired a swapchain texture, and when reconfiguring or releasing a
	// window whose texture is still held.
	ErrSwapchainAcquired = errors.New("gpucmd: swapchain texture acquired")

	// ErrSwapchainBusy is returned when a window's texture is already held
	// by an unsubmitted command buffer.
	ErrSwapchainBusy = errors.New("gpucmd: swapchain texture already held by a command buffer")

	// ErrFramesHeldByRecording is returned by blocking acquires when every
	// frame slot is held by unsubmitted command buffers, so waiting on the
	// GPU cannot free one.
	ErrFramesHeldByRecording = errors.New("gpucmd: all frames held by recording command buffers")

	// ErrUnsupportedSwapchainParameters is returned for compositions or
	// present modes the window does not support.
	ErrUnsupportedSwapchainParameters = errors.New("gpucmd: unsupported swapchain parameters")

	// ErrFenceReleased is returned for released fences.
	ErrFenceReleased = errors.New("gpucmd: fence released")
)
