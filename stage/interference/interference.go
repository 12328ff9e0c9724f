// Package interference runs the thin-film interference compute shader into a
// storage image of OPD samples by reflectance samples.
package interference

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/descriptor"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/pipeline"
	"github.com/thinfilm/renderer/resource"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	ShaderName    = "interference1d.comp.spv"
	WorkgroupSize = 128
)

// WorkgroupCount is the x dispatch size for opdSamples. It always adds one
// workgroup, even when opdSamples is a multiple of WorkgroupSize.
func WorkgroupCount(opdSamples int) int {
	return opdSamples/WorkgroupSize + 1
}

// PCMisc is the compute push constant block.
type PCMisc struct {
	OPDSamples uint32
	RSamples   uint32
}

type Phase int

const (
	Uninitialized Phase = iota
	ShaderLoaded
	DescriptorBound
	PipelineBuilt
	Ready
	Dispatched
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case ShaderLoaded:
		return "shader loaded"
	case DescriptorBound:
		return "descriptor bound"
	case PipelineBuilt:
		return "pipeline built"
	case Ready:
		return "ready"
	case Dispatched:
		return "dispatched"
	}
	return "unknown"
}

type Stage struct {
	ctx     *gpu.Context
	cleaner gpu.Cleaner
	phase   Phase

	misc        PCMisc
	pipeline    *pipeline.Pipeline
	descriptors *descriptor.Group
	output      *resource.Image
}

func New(ctx *gpu.Context) *Stage {
	return &Stage{ctx: ctx}
}

// Setup reads the sample counts from the settings snapshot and builds the
// output image, descriptor set and compute pipeline.
func (s *Stage) Setup() error {
	if s.phase != Uninitialized {
		return errors.Wrap(gpu.ErrAlreadyConfigured, "setup interference")
	}
	gpu.Logger().Debug("setup interference", "opd_samples", s.ctx.Settings.OPDSamples, "r_samples", s.ctx.Settings.RSamples)

	s.setupInput()

	err := s.setupShader()
	if err != nil {
		return err
	}
	err = s.createDescriptor()
	if err != nil {
		return err
	}
	err = s.setupOutput()
	if err != nil {
		return err
	}
	err = s.createPipeline()
	if err != nil {
		return err
	}

	s.phase = Ready
	return nil
}

func (s *Stage) setupInput() {
	s.misc = PCMisc{
		OPDSamples: s.ctx.Settings.OPDSamples,
		RSamples:   s.ctx.Settings.RSamples,
	}
}

func (s *Stage) setupShader() error {
	s.pipeline = pipeline.New(s.ctx, "interference")
	s.cleaner.Push(s.pipeline.Cleanup)

	err := s.pipeline.SetShaderStages(pipeline.ShaderStage{Name: ShaderName, Stage: core1_0.StageCompute})
	if err != nil {
		return err
	}
	s.phase = ShaderLoaded
	return nil
}

func (s *Stage) createDescriptor() error {
	s.descriptors = descriptor.NewGroup(s.ctx, "interference")
	s.cleaner.Push(s.descriptors.Cleanup)

	err := s.descriptors.BeginLayout(descriptor.S0)
	if err != nil {
		return err
	}
	err = s.descriptors.AddBinding(descriptor.S0, 0, core1_0.DescriptorTypeStorageImage, core1_0.StageCompute)
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
	return s.descriptors.Allocate(descriptor.S0)
}

func (s *Stage) setupOutput() error {
	s.output = resource.NewImage(s.ctx, "interference output")
	s.cleaner.Push(s.output.Cleanup)

	err := s.output.ConfigureStorage(core1_0.Extent2D{Width: int(s.misc.OPDSamples), Height: int(s.misc.RSamples)})
	if err != nil {
		return err
	}
	err = s.output.CreateWithSampler()
	if err != nil {
		return err
	}
	err = s.output.TransitionNow(resource.ToStorageWrite)
	if err != nil {
		return err
	}

	err = s.descriptors.BindImage(descriptor.S0, 0, s.output.DescriptorInfo(0))
	if err != nil {
		return err
	}
	err = s.descriptors.Flush(descriptor.S0)
	if err != nil {
		return err
	}
	s.phase = DescriptorBound
	return nil
}

func (s *Stage) createPipeline() error {
	err := s.pipeline.SetLayout(s.descriptors.Layouts(),
		pipeline.PushRange(core1_0.StageCompute, int(unsafe.Sizeof(s.misc))))
	if err != nil {
		return err
	}
	err = s.pipeline.BuildCompute()
	if err != nil {
		return err
	}
	s.phase = PipelineBuilt
	return nil
}

// Dispatch records the simulation into cb and leaves the output image in
// transfer src layout. A repeated dispatch first moves the output back to
// general layout.
func (s *Stage) Dispatch(cb core1_0.CommandBuffer) error {
	if s.phase != Ready && s.phase != Dispatched {
		return errors.Wrapf(gpu.ErrNotReady, "dispatch interference: stage is %s", s.phase)
	}

	if s.output.Layout() != core1_0.ImageLayoutGeneral {
		err := s.output.Transition(cb, resource.ToStorageWrite)
		if err != nil {
			return err
		}
	}

	misc := s.misc
	err := s.pipeline.Push(cb, core1_0.StageCompute, 0, misc)
	if err != nil {
		return err
	}
	err = s.pipeline.Bind(cb)
	if err != nil {
		return err
	}
	s.pipeline.BindSets(cb, 0, s.descriptors.Set(descriptor.S0))

	s.ctx.Driver.CmdDispatch(cb, WorkgroupCount(int(misc.OPDSamples)), int(misc.RSamples), 1)

	err = s.output.Transition(cb, resource.ToTransferSrc)
	if err != nil {
		return err
	}
	s.phase = Dispatched
	return nil
}

// DispatchOnce submits Dispatch on its own command buffer and waits.
func (s *Stage) DispatchOnce() error {
	return s.ctx.Commander.Run(s.Dispatch)
}

// CopyOutputImage copies the last dispatch result into a new sampled storage
// image. The caller owns the copy and must clean it up.
func (s *Stage) CopyOutputImage() (*resource.Image, error) {
	if s.phase != Dispatched {
		return nil, errors.Wrapf(gpu.ErrNotReady, "copy interference output: stage is %s", s.phase)
	}

	imageCopy := resource.NewImage(s.ctx, "interference copy")
	err := imageCopy.ConfigureStorage(s.output.Extent())
	if err != nil {
		return nil, err
	}
	err = imageCopy.CreateWithSampler()
	if err != nil {
		imageCopy.Cleanup()
		return nil, err
	}

	err = s.ctx.Commander.Run(func(cb core1_0.CommandBuffer) error {
		err := imageCopy.Transition(cb, resource.ToTransferDst)
		if err != nil {
			return err
		}
		return imageCopy.CopyFrom(cb, s.output)
	})
	if err != nil {
		imageCopy.Cleanup()
		return nil, err
	}
	return imageCopy, nil
}

func (s *Stage) Output() *resource.Image { return s.output }
func (s *Stage) Phase() Phase            { return s.phase }
func (s *Stage) Misc() PCMisc            { return s.misc }

// Cleanup releases the output image, descriptors and pipeline in reverse
// creation order. It is safe to call more than once.
func (s *Stage) Cleanup() {
	s.cleaner.Flush("interference")
	s.phase = Uninitialized
}
