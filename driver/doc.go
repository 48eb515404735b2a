// Package driver defines the boundary between gpucmd and the graphics
// backends that execute recorded work.
//
// A Driver opens a Device. The Device creates physical allocations (buffers,
// textures, samplers, shaders, pipelines, transfer buffers) and executes
// CommandLists on its own GPU timeline. Every submission gets a monotonically
// increasing epoch, and epochs complete in submission order. gpucmd layers
// validation, handles, cycling, deferred destruction and frame pacing on
// top of that contract.
//
// # Registration
//
// Drivers register a factory from an init function:
//
//	func init() {
//	    driver.Register("soft", func() driver.Driver { return &Driver{} })
//	}
//
// Drivers() lists the registered names in priority order. A program links a
// driver by importing its package, usually for side effects:
//
//	import _ "github.com/gogpu/gpucmd/driver/soft"
//
// # Command lists
//
// A CommandList is a flat slice of Command values. Pass brackets are explicit
// (BeginRenderPass ... EndRenderPass), and gpucmd guarantees that lists it
// submits are well formed: passes never nest, draws only appear inside render
// passes with a bound pipeline, and every referenced allocation stays alive
// until the submission's epoch completes.
package driver
