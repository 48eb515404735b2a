package gpucmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the file form of device creation parameters.
//
// Example:
//
//	driver = "soft"
//	shader_formats = ["SPIRV", "WGSL"]
//	debug = true
//	frames_in_flight = 3
//	memory_budget_mb = 512
type Config struct {
	// Driver names the only driver to try. Empty tries all in priority
	// order.
	Driver string `toml:"driver"`

	// ShaderFormats lists the shader formats the application supplies.
	ShaderFormats []string `toml:"shader_formats"`

	Debug bool `toml:"debug"`

	// FramesInFlight is the initial frames-in-flight limit, 1 to 3.
	FramesInFlight int `toml:"frames_in_flight"`

	// MemoryBudgetMB caps allocations in MiB. Zero disables the budget.
	MemoryBudgetMB uint64 `toml:"memory_budget_mb"`
}

// DefaultConfig returns the configuration used for keys a file omits.
func DefaultConfig() Config {
	return Config{
		ShaderFormats:  []string{"SPIRV"},
		FramesInFlight: DefaultFramesInFlight,
		MemoryBudgetMB: DefaultMemoryBudget >> 20,
	}
}

// ParseConfig decodes TOML over DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.FramesInFlight < 1 || c.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("frames_in_flight: %w: %d", ErrInvalidFramesInFlight, c.FramesInFlight)
	}
	if _, err := c.Formats(); err != nil {
		return err
	}
	return nil
}

// Formats returns ShaderFormats as a format set.
func (c Config) Formats() (ShaderFormat, error) {
	f, err := ParseShaderFormat(strings.Join(c.ShaderFormats, "|"))
	if err != nil {
		return 0, fmt.Errorf("shader_formats: %w", err)
	}
	if f == ShaderFormatInvalid {
		return 0, fmt.Errorf("shader_formats: %w: empty", ErrUnsupportedShaderFormat)
	}
	return f, nil
}

// Options returns the creation options c describes.
func (c Config) Options() []Option {
	return []Option{
		WithFramesInFlight(c.FramesInFlight),
		WithMemoryBudget(c.MemoryBudgetMB << 20),
	}
}

// CreateDeviceWithConfig creates a device from cfg. opts apply after the
// options cfg describes.
func CreateDeviceWithConfig(cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	formats, _ := cfg.Formats()
	return CreateDevice(formats, cfg.Debug, cfg.Driver, append(cfg.Options(), opts...)...)
}
