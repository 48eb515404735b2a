package main

import (
	"context"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gpucmd"
)

//go:embed shaders/demo.wgsl
var demoShader []byte

const numCounters = 256

// scene holds the resources every recorded command buffer uses.
type scene struct {
	dev    *gpucmd.Device
	window *gpucontext.NullWindowProvider

	target   gpucmd.Texture
	counters gpucmd.Buffer
	indirect gpucmd.Buffer
	draw     gpucmd.GraphicsPipeline
	compute  gpucmd.ComputePipeline
	shaders  []gpucmd.Shader
}

func newScene(dev *gpucmd.Device, width, height uint32) (_ *scene, err error) {
	s := &scene{dev: dev, window: &gpucontext.NullWindowProvider{W: int(width), H: int(height), SF: 1}}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	if s.target, err = dev.CreateTexture(gpucmd.TextureCreateInfo{
		Type:              gpucmd.TextureType2D,
		Format:            gputypes.TextureFormatRGBA8Unorm,
		Usage:             gpucmd.TextureUsageColorTarget | gpucmd.TextureUsageSampler,
		Width:             width,
		Height:            height,
		LayerCountOrDepth: 1,
		NumLevels:         1,
		Name:              "offscreen",
	}); err != nil {
		return nil, err
	}
	if s.counters, err = dev.CreateBuffer(gpucmd.BufferCreateInfo{
		Usage: gpucmd.BufferUsageComputeStorageWrite | gpucmd.BufferUsageComputeStorageRead,
		Size:  numCounters * 4,
		Name:  "counters",
	}); err != nil {
		return nil, err
	}
	if s.indirect, err = dev.CreateBuffer(gpucmd.BufferCreateInfo{
		Usage: gpucmd.BufferUsageIndirect,
		Size:  2 * gpucmd.IndirectDrawCommandSize,
		Name:  "indirect draws",
	}); err != nil {
		return nil, err
	}

	vs, err := s.shader("vs_main", gpucmd.ShaderStageVertex, 0)
	if err != nil {
		return nil, err
	}
	fs, err := s.shader("fs_main", gpucmd.ShaderStageFragment, 1)
	if err != nil {
		return nil, err
	}
	if s.draw, err = dev.CreateGraphicsPipeline(gpucmd.GraphicsPipelineCreateInfo{
		VertexShader:   vs,
		FragmentShader: fs,
		ColorTargets: []gputypes.ColorTargetState{{
			Format:    gputypes.TextureFormatRGBA8Unorm,
			WriteMask: gputypes.ColorWriteMaskAll,
		}},
		Name: "tint",
	}); err != nil {
		return nil, err
	}
	if s.compute, err = dev.CreateComputePipeline(gpucmd.ComputePipelineCreateInfo{
		Code:                       demoShader,
		Entrypoint:                 "cs_main",
		Format:                     gpucmd.ShaderFormatWGSL,
		NumReadWriteStorageBuffers: 1,
		ThreadCountX:               64,
		ThreadCountY:               1,
		ThreadCountZ:               1,
		Name:                       "count",
	}); err != nil {
		return nil, err
	}

	if err := s.uploadIndirect(); err != nil {
		return nil, err
	}
	if err := dev.ClaimWindow(s.window); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *scene) shader(entry string, stage gpucmd.ShaderStage, uniforms uint32) (gpucmd.Shader, error) {
	sh, err := s.dev.CreateShader(gpucmd.ShaderCreateInfo{
		Code:              demoShader,
		Entrypoint:        entry,
		Format:            gpucmd.ShaderFormatWGSL,
		Stage:             stage,
		NumUniformBuffers: uniforms,
		Name:              entry,
	})
	if err != nil {
		return gpucmd.Shader{}, err
	}
	s.shaders = append(s.shaders, sh)
	return sh, nil
}

// uploadIndirect writes two draw records into the indirect buffer.
func (s *scene) uploadIndirect() error {
	var records []byte
	for i := range uint32(2) {
		var err error
		records, err = gpucmd.IndirectDrawCommand{NumVertices: 3, NumInstances: 1, FirstInstance: i}.AppendBinary(records)
		if err != nil {
			return err
		}
	}
	tb, err := s.dev.CreateTransferBuffer(gpucmd.TransferBufferCreateInfo{
		Usage: gpucmd.TransferBufferUsageUpload,
		Size:  uint64(len(records)),
	})
	if err != nil {
		return err
	}
	defer func() { _ = s.dev.ReleaseTransferBuffer(tb) }()
	mem, err := s.dev.MapTransferBuffer(tb, false)
	if err != nil {
		return err
	}
	copy(mem, records)
	if err := s.dev.UnmapTransferBuffer(tb); err != nil {
		return err
	}

	cb, err := s.dev.AcquireCommandBuffer()
	if err != nil {
		return err
	}
	cp, err := cb.BeginCopyPass()
	if err != nil {
		return errors.Join(err, cb.Cancel())
	}
	if err := cp.UploadToBuffer(
		gpucmd.TransferBufferLocation{TransferBuffer: tb},
		gpucmd.BufferRegion{Buffer: s.indirect, Size: uint64(len(records))}, false); err != nil {
		return errors.Join(err, cb.Cancel())
	}
	if err := cp.End(); err != nil {
		return err
	}
	return cb.Submit()
}

// recordConcurrently records one command buffer per worker, each with a
// compute pass and a render pass, and waits for all of their fences.
func (s *scene) recordConcurrently(ctx context.Context, workers int) (time.Duration, error) {
	fences := make([]*gpucmd.Fence, workers)
	start := time.Now()
	g, _ := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error {
			f, err := s.record(i)
			fences[i] = f
			return err
		})
	}
	err := g.Wait()
	defer func() {
		for _, f := range fences {
			if f != nil {
				_ = s.dev.ReleaseFence(f)
			}
		}
	}()
	if err != nil {
		return 0, err
	}
	if err := s.dev.WaitForFences(ctx, true, fences...); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (s *scene) record(worker int) (*gpucmd.Fence, error) {
	cb, err := s.dev.AcquireCommandBuffer()
	if err != nil {
		return nil, err
	}
	if err := s.encode(cb, worker); err != nil {
		return nil, errors.Join(fmt.Errorf("worker %d: %w", worker, err), cb.Cancel())
	}
	return cb.SubmitAndAcquireFence()
}

func (s *scene) encode(cb *gpucmd.CommandBuffer, worker int) error {
	if err := cb.PushDebugGroup(fmt.Sprintf("worker %d", worker)); err != nil {
		return err
	}

	cp, err := cb.BeginComputePass(nil, []gpucmd.StorageBufferReadWriteBinding{{Buffer: s.counters}})
	if err != nil {
		return err
	}
	if err := cp.BindComputePipeline(s.compute); err != nil {
		return err
	}
	if err := cp.DispatchCompute(numCounters/64, 1, 1); err != nil {
		return err
	}
	if err := cp.End(); err != nil {
		return err
	}

	hue := float32(worker) / 8
	if err := cb.PushFragmentUniformData(0, tint(hue, 1-hue, 0.5, 1)); err != nil {
		return err
	}
	rp, err := cb.BeginRenderPass([]gpucmd.ColorTargetInfo{{
		Texture:    s.target,
		LoadOp:     gpucmd.LoadOpClear,
		StoreOp:    gpucmd.StoreOpStore,
		ClearColor: gputypes.Color{A: 1},
	}}, nil)
	if err != nil {
		return err
	}
	if err := rp.BindGraphicsPipeline(s.draw); err != nil {
		return err
	}
	if err := rp.DrawPrimitives(3, 1, 0, 0); err != nil {
		return err
	}
	if err := rp.DrawPrimitivesIndirect(s.indirect, 0, 2); err != nil {
		return err
	}
	if err := rp.End(); err != nil {
		return err
	}
	return cb.PopDebugGroup()
}

// present blits the offscreen target to the window n times. Frames the
// swapchain skips are not counted.
func (s *scene) present(ctx context.Context, n int) (int, error) {
	presented := 0
	for range n {
		cb, err := s.dev.AcquireCommandBuffer()
		if err != nil {
			return presented, err
		}
		st, err := cb.WaitAndAcquireSwapchainTexture(ctx, s.window)
		if err != nil {
			return presented, errors.Join(err, cb.Cancel())
		}
		if st.IsNull() {
			if err := cb.Submit(); err != nil {
				return presented, err
			}
			continue
		}
		err = cb.BlitTexture(gpucmd.BlitInfo{
			Source:      gpucmd.BlitRegion{Texture: s.target, W: uint32(s.window.W), H: uint32(s.window.H)},
			Destination: gpucmd.BlitRegion{Texture: st.Texture, W: st.Width, H: st.Height},
			LoadOp:      gpucmd.LoadOpDontCare,
			FlipMode:    gpucmd.FlipVertical,
			Filter:      gputypes.FilterModeLinear,
		})
		if err != nil {
			// A buffer holding a swapchain texture cannot be cancelled.
			return presented, errors.Join(err, cb.Submit())
		}
		if err := cb.Submit(); err != nil {
			return presented, err
		}
		presented++
	}
	return presented, s.dev.WaitForSwapchain(ctx, s.window)
}

// readCounters downloads the compute counters.
func (s *scene) readCounters(ctx context.Context) ([]uint32, error) {
	size := uint64(numCounters * 4)
	tb, err := s.dev.CreateTransferBuffer(gpucmd.TransferBufferCreateInfo{Usage: gpucmd.TransferBufferUsageDownload, Size: size})
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.dev.ReleaseTransferBuffer(tb) }()

	cb, err := s.dev.AcquireCommandBuffer()
	if err != nil {
		return nil, err
	}
	cp, err := cb.BeginCopyPass()
	if err != nil {
		return nil, errors.Join(err, cb.Cancel())
	}
	if err := cp.DownloadFromBuffer(
		gpucmd.BufferRegion{Buffer: s.counters, Size: size},
		gpucmd.TransferBufferLocation{TransferBuffer: tb}); err != nil {
		return nil, errors.Join(err, cb.Cancel())
	}
	if err := cp.End(); err != nil {
		return nil, err
	}
	f, err := cb.SubmitAndAcquireFence()
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.dev.ReleaseFence(f) }()
	if err := s.dev.WaitForFences(ctx, true, f); err != nil {
		return nil, err
	}

	mem, err := s.dev.MapTransferBuffer(tb, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.dev.UnmapTransferBuffer(tb) }()
	out := make([]uint32, numCounters)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(mem[4*i:])
	}
	return out, nil
}

func (s *scene) release() {
	if err := s.dev.WaitForIdle(context.Background()); err != nil {
		return
	}
	_ = s.dev.ReleaseWindow(s.window)
	_ = s.dev.ReleaseGraphicsPipeline(s.draw)
	_ = s.dev.ReleaseComputePipeline(s.compute)
	for _, sh := range s.shaders {
		_ = s.dev.ReleaseShader(sh)
	}
	_ = s.dev.ReleaseBuffer(s.indirect)
	_ = s.dev.ReleaseBuffer(s.counters)
	_ = s.dev.ReleaseTexture(s.target)
}

// tint packs an RGBA color as a 16-byte uniform block.
func tint(r, g, b, a float32) []byte {
	out := make([]byte, 0, 16)
	for _, v := range []float32{r, g, b, a} {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}
