package soft

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucmd/driver"
)

// surfaceImages is the number of rotating swapchain images.
const surfaceImages = 3

// Surface is an offscreen swapchain. Presented images are counted and the
// most recent one can be read back with LastPresented.
type Surface struct {
	device *Device
	window gpucontext.WindowProvider

	mu     sync.Mutex
	config driver.SurfaceConfig
	format gputypes.TextureFormat
	images []*Texture
	next   int
	last   *Texture

	presented atomic.Uint64
}

func newSurface(d *Device, window gpucontext.WindowProvider) *Surface {
	return &Surface{device: d, window: window, format: driver.CompositionSDR.Format()}
}

// SupportsComposition reports every composition except HDR10.
func (s *Surface) SupportsComposition(c driver.SwapchainComposition) bool {
	return c <= driver.CompositionHDRExtendedLinear
}

// SupportsPresentMode reports VSync and Immediate.
func (s *Surface) SupportsPresentMode(m driver.PresentMode) bool {
	return m == driver.PresentModeVSync || m == driver.PresentModeImmediate
}

// Configure (re)creates the swapchain images.
func (s *Surface) Configure(cfg driver.SurfaceConfig) error {
	if !s.SupportsComposition(cfg.Composition) || !s.SupportsPresentMode(cfg.PresentMode) {
		return fmt.Errorf("soft: configure surface: %w: %v/%v", driver.ErrUnsupported, cfg.Composition, cfg.PresentMode)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("soft: configure surface: %w: zero extent", driver.ErrSurfaceOutdated)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = cfg
	s.format = s.CompositionFormat(cfg.Composition)
	s.images = s.images[:0]
	for i := 0; i < surfaceImages; i++ {
		tex, err := s.device.CreateTexture(&driver.TextureDesc{
			Label:         fmt.Sprintf("swapchain[%d]", i),
			Type:          driver.TextureType2D,
			Format:        s.format,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
			Width:         cfg.Width,
			Height:        cfg.Height,
			DepthOrLayers: 1,
			MipLevels:     1,
			SampleCount:   1,
		})
		if err != nil {
			return err
		}
		s.images = append(s.images, asTexture(tex))
	}
	s.next = 0
	driver.Logger().Debug("soft: surface configured",
		"width", cfg.Width, "height", cfg.Height, "format", s.format, "present", cfg.PresentMode)
	return nil
}

// CompositionFormat returns c's own format.
func (s *Surface) CompositionFormat(c driver.SwapchainComposition) gputypes.TextureFormat {
	return c.Format()
}

// Format returns the texture format of swapchain images.
func (s *Surface) Format() gputypes.TextureFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Acquire returns the next swapchain image.
func (s *Surface) Acquire() (driver.Texture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.images) == 0 {
		return nil, fmt.Errorf("soft: acquire: %w: surface not configured", driver.ErrSurfaceOutdated)
	}
	if w, h := driver.PixelSize(s.window); w != s.config.Width || h != s.config.Height {
		return nil, driver.ErrSurfaceOutdated
	}
	tex := s.images[s.next]
	s.next = (s.next + 1) % len(s.images)
	return tex, nil
}

// Discard returns an acquired image without presenting it.
func (s *Surface) Discard(driver.Texture) {}

// Destroy releases the swapchain images.
func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
}

// Presented returns the number of frames presented.
func (s *Surface) Presented() uint64 { return s.presented.Load() }

// LastPresented returns the most recently presented image, or nil.
func (s *Surface) LastPresented() *Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Surface) present(tex driver.Texture) {
	s.mu.Lock()
	if t, ok := tex.(*Texture); ok {
		s.last = t
	}
	s.mu.Unlock()
	s.presented.Add(1)
}
