package wgpu

import (
	"errors"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

// mapError wraps HAL errors with the matching driver error so callers can
// test them with errors.Is. The HAL error stays in the chain.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrDeviceLost):
		return errors.Join(driver.ErrDeviceLost, err)
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return errors.Join(driver.ErrOutOfMemory, err)
	case errors.Is(err, hal.ErrSurfaceOutdated), errors.Is(err, hal.ErrSurfaceLost), errors.Is(err, hal.ErrZeroArea):
		return errors.Join(driver.ErrSurfaceOutdated, err)
	case errors.Is(err, hal.ErrBackendNotFound):
		return errors.Join(driver.ErrUnavailable, err)
	default:
		return err
	}
}

func loadOp(op driver.LoadOp) gputypes.LoadOp {
	if op == driver.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	// DontCare clears: contents are undefined either way and a clear avoids
	// a read of the previous image.
	return gputypes.LoadOpClear
}

func storeOp(op driver.StoreOp) gputypes.StoreOp {
	if op.Stores() {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

func mipmapFilter(m gputypes.MipmapFilterMode) gputypes.FilterMode {
	if m == gputypes.MipmapFilterModeLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func stencilOp(op gputypes.StencilOperation) hal.StencilOperation {
	switch op {
	case gputypes.StencilOperationZero:
		return hal.StencilOperationZero
	case gputypes.StencilOperationReplace:
		return hal.StencilOperationReplace
	case gputypes.StencilOperationInvert:
		return hal.StencilOperationInvert
	case gputypes.StencilOperationIncrementClamp:
		return hal.StencilOperationIncrementClamp
	case gputypes.StencilOperationDecrementClamp:
		return hal.StencilOperationDecrementClamp
	case gputypes.StencilOperationIncrementWrap:
		return hal.StencilOperationIncrementWrap
	case gputypes.StencilOperationDecrementWrap:
		return hal.StencilOperationDecrementWrap
	default:
		return hal.StencilOperationKeep
	}
}

func stencilFace(f gputypes.StencilFaceState) hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     f.Compare,
		FailOp:      stencilOp(f.FailOp),
		DepthFailOp: stencilOp(f.DepthFailOp),
		PassOp:      stencilOp(f.PassOp),
	}
}

func depthStencilState(ds *gputypes.DepthStencilState) *hal.DepthStencilState {
	if ds == nil {
		return nil
	}
	return &hal.DepthStencilState{
		Format:              ds.Format,
		DepthWriteEnabled:   ds.DepthWriteEnabled,
		DepthCompare:        ds.DepthCompare,
		StencilFront:        stencilFace(ds.StencilFront),
		StencilBack:         stencilFace(ds.StencilBack),
		StencilReadMask:     ds.StencilReadMask,
		StencilWriteMask:    ds.StencilWriteMask,
		DepthBias:           ds.DepthBias,
		DepthBiasSlopeScale: ds.DepthBiasSlopeScale,
		DepthBiasClamp:      ds.DepthBiasClamp,
	}
}

func presentMode(m driver.PresentMode) hal.PresentMode {
	switch m {
	case driver.PresentModeImmediate:
		return hal.PresentModeImmediate
	case driver.PresentModeMailbox:
		return hal.PresentModeMailbox
	default:
		return hal.PresentModeFifo
	}
}

// stageIndex maps a shader stage to its binding state slot.
func stageIndex(s gputypes.ShaderStage) int {
	switch s {
	case gputypes.ShaderStageFragment:
		return stageFragment
	case gputypes.ShaderStageCompute:
		return stageCompute
	default:
		return stageVertex
	}
}

const (
	stageVertex = iota
	stageFragment
	stageCompute
	numStages
)

func isLost(err error) bool {
	return errors.Is(err, driver.ErrDeviceLost)
}
