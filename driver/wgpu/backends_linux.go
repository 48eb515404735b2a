//go:build linux && !android

package wgpu

import (
	_ "github.com/gogpu/wgpu/hal/gles"
	_ "github.com/gogpu/wgpu/hal/vulkan"
)
