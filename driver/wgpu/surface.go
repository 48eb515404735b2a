package wgpu

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucmd/driver"
)

const swapchainUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst

// Surface is a HAL surface and its swapchain.
type Surface struct {
	d      *Device
	window gpucontext.WindowProvider
	raw    hal.Surface
	caps   hal.SurfaceCapabilities

	mu         sync.Mutex
	config     driver.SurfaceConfig
	format     gputypes.TextureFormat
	configured bool
}

// CreateSurface creates a surface for window. Windows must expose native
// handles, except on the noop variant, which presents nowhere.
func (d *Device) CreateSurface(window gpucontext.WindowProvider) (driver.Surface, error) {
	var display, handle uintptr
	if nw, ok := window.(driver.NativeWindow); ok {
		display, handle = nw.NativeHandles()
	} else if d.cfg.backend != gputypes.BackendEmpty {
		return nil, fmt.Errorf("wgpu: create surface: %w: window exposes no native handles", driver.ErrUnsupported)
	}
	raw, err := d.cfg.instance.CreateSurface(display, handle)
	if err != nil {
		return nil, d.fail("create surface", err)
	}
	s := &Surface{d: d, window: window, raw: raw}
	if caps := d.cfg.adapter.Adapter.SurfaceCapabilities(raw); caps != nil {
		s.caps = *caps
	}
	s.format = surfaceFormat(s.caps.Formats, driver.CompositionSDR)
	return s, nil
}

// surfaceFormat returns the format a composition configures. SDR falls back
// to RGBA8Unorm when the surface lists it but not the BGRA format.
func surfaceFormat(formats []gputypes.TextureFormat, c driver.SwapchainComposition) gputypes.TextureFormat {
	format := c.Format()
	if c == driver.CompositionSDR && !slices.Contains(formats, format) &&
		slices.Contains(formats, gputypes.TextureFormatRGBA8Unorm) {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return format
}

// SupportsComposition reports SDR always and the others where the surface
// lists their format.
func (s *Surface) SupportsComposition(c driver.SwapchainComposition) bool {
	if c == driver.CompositionSDR {
		return true
	}
	return slices.Contains(s.caps.Formats, c.Format())
}

// SupportsPresentMode reports VSync always and the others where the
// surface lists them.
func (s *Surface) SupportsPresentMode(m driver.PresentMode) bool {
	if m == driver.PresentModeVSync {
		return true
	}
	return slices.Contains(s.caps.PresentModes, presentMode(m))
}

// Configure (re)creates the swapchain.
func (s *Surface) Configure(cfg driver.SurfaceConfig) error {
	if !s.SupportsComposition(cfg.Composition) || !s.SupportsPresentMode(cfg.PresentMode) {
		return fmt.Errorf("wgpu: configure surface: %w: %v/%v", driver.ErrUnsupported, cfg.Composition, cfg.PresentMode)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("wgpu: configure surface: %w: zero extent", driver.ErrSurfaceOutdated)
	}
	format := s.CompositionFormat(cfg.Composition)

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.raw.Configure(s.d.dev, &hal.SurfaceConfiguration{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      format,
		Usage:       swapchainUsage,
		PresentMode: presentMode(cfg.PresentMode),
		AlphaMode:   hal.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return s.d.fail("configure surface", err)
	}
	s.config, s.format, s.configured = cfg, format, true
	driver.Logger().Debug("wgpu: surface configured",
		"width", cfg.Width, "height", cfg.Height, "format", format, "present", cfg.PresentMode)
	return nil
}

// CompositionFormat returns the format Configure selects for c.
func (s *Surface) CompositionFormat(c driver.SwapchainComposition) gputypes.TextureFormat {
	return surfaceFormat(s.caps.Formats, c)
}

// Format returns the texture format of acquired textures.
func (s *Surface) Format() gputypes.TextureFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Acquire returns the next swapchain texture. A window whose size no
// longer matches the configuration reports ErrSurfaceOutdated.
func (s *Surface) Acquire() (driver.Texture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return nil, fmt.Errorf("wgpu: acquire: %w: surface not configured", driver.ErrSurfaceOutdated)
	}
	if w, h := driver.PixelSize(s.window); w != s.config.Width || h != s.config.Height {
		return nil, driver.ErrSurfaceOutdated
	}
	acquired, err := s.raw.AcquireTexture(nil)
	if err != nil {
		return nil, fmt.Errorf("wgpu: acquire: %w", mapError(err))
	}
	if acquired.Suboptimal {
		driver.Logger().Debug("wgpu: suboptimal swapchain texture")
	}
	return &Texture{
		d:       s.d,
		id:      nextID(),
		raw:     acquired.Texture,
		surface: acquired.Texture,
		label:   "swapchain",
		usage:   swapchainUsage,
		desc: driver.TextureDesc{
			Label:         "swapchain",
			Type:          driver.TextureType2D,
			Format:        s.format,
			Usage:         swapchainUsage,
			Width:         s.config.Width,
			Height:        s.config.Height,
			DepthOrLayers: 1,
			MipLevels:     1,
			SampleCount:   1,
		},
	}, nil
}

// Discard returns an acquired texture without presenting it.
func (s *Surface) Discard(tex driver.Texture) {
	t := asTexture(tex)
	t.release()
	s.raw.DiscardTexture(t.surface)
}

// Destroy unconfigures and releases the surface.
func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		s.raw.Unconfigure(s.d.dev)
		s.configured = false
	}
	s.raw.Destroy()
}

func asSurface(s driver.Surface) *Surface {
	v, ok := s.(*Surface)
	if !ok {
		panic(fmt.Sprintf("wgpu: foreign surface %T", s))
	}
	return v
}
