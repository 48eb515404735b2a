// Command gpucmd-demo records command buffers from several goroutines,
// presents a few frames to an offscreen window and reports fence latency.
//
// Usage:
//
//	gpucmd-demo -config demo.toml -workers 4 -frames 8
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/profile"

	"github.com/gogpu/gpucmd"
	"github.com/gogpu/gpucmd/driver/soft"
	_ "github.com/gogpu/gpucmd/driver/wgpu"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file")
		driverName = flag.String("driver", "", "driver to use (overrides the config)")
		workers    = flag.Int("workers", 4, "command buffers recorded concurrently")
		frames     = flag.Int("frames", 8, "frames to present")
		width      = flag.Int("width", 256, "window width")
		height     = flag.Int("height", 256, "window height")
		cpuprofile = flag.Bool("cpuprofile", false, "write a CPU profile to the working directory")
		verbose    = flag.Bool("v", false, "debug logging")
		timeout    = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()

	if *cpuprofile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	gpucmd.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := demoConfig()
	if *configPath != "" {
		var err error
		if cfg, err = gpucmd.LoadConfig(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *driverName != "" {
		cfg.Driver = *driverName
	}

	dev, err := gpucmd.CreateDeviceWithConfig(cfg)
	if err != nil {
		log.Fatalf("create device: %v (drivers: %v)", err, gpucmd.Drivers())
	}
	defer dev.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s, err := newScene(dev, uint32(*width), uint32(*height))
	if err != nil {
		log.Fatalf("scene: %v", err)
	}
	defer s.release()

	latency, err := s.recordConcurrently(ctx, *workers)
	if err != nil {
		log.Fatalf("record: %v", err)
	}
	log.Printf("%d command buffers on %s completed in %v", *workers, dev.DriverName(), latency)

	presented, err := s.present(ctx, *frames)
	if err != nil {
		log.Fatalf("present: %v", err)
	}
	log.Printf("presented %d/%d frames", presented, *frames)

	counters, err := s.readCounters(ctx)
	if err != nil {
		log.Fatalf("read counters: %v", err)
	}
	log.Printf("compute counters: %v", counters[:min(len(counters), 8)])

	if sd, ok := dev.DriverDevice().(*soft.Device); ok {
		for _, e := range sd.Trace() {
			log.Printf("trace: epoch=%d kind=%v indirect=%v pipeline=%q", e.Epoch, e.Kind, e.Indirect, e.Pipeline)
		}
	}
	log.Printf("memory: %v", dev.MemoryStats())
}

// demoConfig is the configuration used without -config. The demo ships
// WGSL, which every driver accepts.
func demoConfig() gpucmd.Config {
	cfg := gpucmd.DefaultConfig()
	cfg.ShaderFormats = []string{"WGSL"}
	cfg.Driver = "soft"
	return cfg
}
