// Package screen composites the offscreen scene color onto the swapchain
// with a full-screen triangle and lets an overlay draw on top.
package screen

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/descriptor"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/pipeline"
	"github.com/thinfilm/renderer/resource"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

const (
	VertexShader   = "swapchain.vert.spv"
	FragmentShader = "swapchain.frag.spv"
)

var clearColor = core1_0.ClearValueFloat{0.1, 0.1, 0.1, 1.0}

// Overlay records extra draws inside the composite render pass.
type Overlay interface {
	Draw(cb core1_0.CommandBuffer) error
}

type Stage struct {
	ctx     *gpu.Context
	cleaner gpu.Cleaner
	setup   bool

	descriptors *descriptor.Group
	renderpass  *pipeline.Renderpass
	pipeline    *pipeline.Pipeline

	frames []*resource.Frame
	input  *resource.Frame
}

func New(ctx *gpu.Context) *Stage {
	return &Stage{ctx: ctx}
}

func (s *Stage) Setup() error {
	if s.setup {
		return errors.Wrap(gpu.ErrAlreadyConfigured, "setup screen")
	}

	s.descriptors = descriptor.NewGroup(s.ctx, "screen")
	s.cleaner.Push(s.descriptors.Cleanup)
	err := s.descriptors.BeginLayout(descriptor.S0)
	if err != nil {
		return err
	}
	err = s.descriptors.AddBinding(descriptor.S0, 0, core1_0.DescriptorTypeCombinedImageSampler, core1_0.StageFragment)
	if err != nil {
		return err
	}
	err = s.descriptors.FinalizeLayout(descriptor.S0)
	if err != nil {
		return err
	}
	err = s.descriptors.CreatePool()
	if err != nil {
		return err
	}
	err = s.descriptors.Allocate(descriptor.S0)
	if err != nil {
		return err
	}

	s.renderpass = pipeline.NewRenderpass(s.ctx, "screen").
		WithColor(s.ctx.SurfaceFormat, khr_swapchain.ImageLayoutPresentSrc)
	s.cleaner.Push(s.renderpass.Cleanup)
	err = s.renderpass.Create()
	if err != nil {
		return err
	}

	s.pipeline = pipeline.New(s.ctx, "screen")
	s.cleaner.Push(s.pipeline.Cleanup)
	err = s.pipeline.SetLayout(s.descriptors.Layouts())
	if err != nil {
		return err
	}
	err = s.pipeline.SetShaderStages(
		pipeline.ShaderStage{Name: VertexShader, Stage: core1_0.StageVertex},
		pipeline.ShaderStage{Name: FragmentShader, Stage: core1_0.StageFragment},
	)
	if err != nil {
		return err
	}
	err = s.pipeline.SetupColorBlend(1, false)
	if err != nil {
		return err
	}
	err = s.pipeline.BuildGraphics(s.renderpass.Handle())
	if err != nil {
		return err
	}

	s.setup = true
	return nil
}

// CreateFrames wraps each swapchain image in a frame of the composite render
// pass. Frame i renders into images[i].
func (s *Stage) CreateFrames(images []core1_0.Image, extent core1_0.Extent2D) error {
	if !s.setup {
		return errors.Wrap(gpu.ErrNotReady, "create screen frames: stage is not set up")
	}
	if len(s.frames) > 0 {
		return errors.Wrap(gpu.ErrAlreadyConfigured, "create screen frames")
	}

	for i, image := range images {
		frame := resource.NewSwapchainFrame(s.ctx, fmt.Sprintf("swapchain %d", i), image, extent)
		s.frames = append(s.frames, frame)
		err := frame.Create(s.renderpass.Handle())
		if err != nil {
			return err
		}
	}
	return nil
}

// RecreateFrames rebuilds the frames over a new set of swapchain images.
func (s *Stage) RecreateFrames(images []core1_0.Image, extent core1_0.Extent2D) error {
	s.cleanupFrames()
	return s.CreateFrames(images, extent)
}

func (s *Stage) cleanupFrames() {
	for i := len(s.frames) - 1; i >= 0; i-- {
		s.frames[i].Cleanup()
	}
	s.frames = nil
}

// SetupInput samples the color image of frame. It must be called again
// whenever that frame is recreated.
func (s *Stage) SetupInput(frame *resource.Frame) error {
	if !s.setup {
		return errors.Wrap(gpu.ErrNotReady, "setup screen input: stage is not set up")
	}
	color := frame.Color()

	err := color.TransitionNow(resource.ToShaderRead)
	if err != nil {
		return err
	}
	err = s.descriptors.BindImage(descriptor.S0, 0, color.DescriptorInfo(0))
	if err != nil {
		return err
	}
	err = s.descriptors.Flush(descriptor.S0)
	if err != nil {
		return err
	}
	err = color.TransitionNow(resource.ToPresent)
	if err != nil {
		return err
	}

	s.input = frame
	return nil
}

// Render records the composite into frame index. overlay may be nil.
func (s *Stage) Render(cb core1_0.CommandBuffer, index int, overlay Overlay) error {
	if s.input == nil {
		return errors.Wrap(gpu.ErrNotReady, "render screen: no input frame")
	}
	if index < 0 || index >= len(s.frames) {
		return errors.Wrapf(gpu.ErrNotReady, "render screen: no frame %d of %d", index, len(s.frames))
	}
	frame := s.frames[index]
	input := s.input.Color()
	driver := s.ctx.Driver

	err := input.Transition(cb, resource.ToShaderRead)
	if err != nil {
		return err
	}

	driver.CmdSetViewport(cb, frame.Viewport())
	driver.CmdSetScissor(cb, frame.Scissor())

	err = s.renderpass.Begin(cb, frame, clearColor)
	if err != nil {
		return err
	}
	s.pipeline.BindSets(cb, int(descriptor.S0), s.descriptors.Set(descriptor.S0))
	err = s.pipeline.Bind(cb)
	if err != nil {
		return err
	}
	driver.CmdDraw(cb, 3, 1, 0, 0)

	if overlay != nil {
		err = overlay.Draw(cb)
		if err != nil {
			return errors.Wrap(err, "draw overlay")
		}
	}

	s.renderpass.End(cb)
	frame.EndRenderPass(s.renderpass.FinalColorLayout())

	return input.Transition(cb, resource.ToPresent)
}

func (s *Stage) Frame(index int) *resource.Frame  { return s.frames[index] }
func (s *Stage) FrameCount() int                  { return len(s.frames) }
func (s *Stage) Renderpass() *pipeline.Renderpass { return s.renderpass }

func (s *Stage) Cleanup() {
	s.cleanupFrames()
	s.cleaner.Flush("screen")
	s.input = nil
	s.setup = false
}
