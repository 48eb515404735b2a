// Package gpucmd provides a GPU command-submission and resource
// synchronization model.
//
// # Overview
//
// A Device issues command buffers. A command buffer opens render, compute
// and copy passes one at a time, binds pipelines and resources inside them,
// and records draws, dispatches and copies. Submitting the buffer hands the
// recorded work to a driver, which executes it asynchronously on its own GPU
// timeline. The CPU paces itself against that timeline with fences and a
// per-window frames-in-flight limit.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/gpucmd"
//		_ "github.com/gogpu/gpucmd/driver/soft"
//	)
//
//	dev, err := gpucmd.CreateDevice(gpucmd.ShaderFormatSPIRV, false, "")
//	if err != nil {
//		return err
//	}
//	defer dev.Destroy()
//
//	cb, _ := dev.AcquireCommandBuffer()
//	cp, _ := cb.BeginCopyPass()
//	_ = cp.UploadToBuffer(src, dst, false)
//	_ = cp.End()
//	fence, _ := cb.SubmitAndAcquireFence()
//	_ = dev.WaitForFences(ctx, true, fence)
//	_ = dev.ReleaseFence(fence)
//
// # Handles
//
// Resources are returned as small typed handles (Buffer, Texture, ...).
// A released handle stops resolving immediately, even though the physical
// allocation behind it lives on until the GPU has finished with it. The zero
// value of every handle type is the null handle.
//
// # Cycling
//
// Buffers, textures and transfer buffers each own a ring of physical
// allocations. Operations that write a resource take a cycle flag: when set
// and the current allocation is still referenced by recorded or in-flight
// work, the handle moves to an idle allocation (or a new one) instead of
// racing the GPU. Earlier commands keep using the old allocation.
//
// # Compute ordering
//
// Dispatches inside one compute pass are not ordered with respect to each
// other and no barriers are inserted between them. A dispatch that must see
// the writes of an earlier one has to run in a later compute pass.
//
// # Drivers
//
// Drivers register themselves in package driver. Import driver/soft for the
// pure-Go reference driver or driver/wgpu for the gogpu/wgpu HAL backends.
package gpucmd
