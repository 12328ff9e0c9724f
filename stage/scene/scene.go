// Package scene renders the lit sphere and its point lights into an
// offscreen color and depth frame.
package scene

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/thinfilm/renderer/assets"
	"github.com/thinfilm/renderer/descriptor"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/mesh"
	"github.com/thinfilm/renderer/pipeline"
	"github.com/thinfilm/renderer/resource"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	VertexShader   = "main1d.vert.spv"
	FragmentShader = "main1d.frag.spv"
)

const pushStages = core1_0.StageVertex | core1_0.StageFragment

type Stage struct {
	ctx     *gpu.Context
	cleaner gpu.Cleaner
	setup   bool

	camera UBCamera
	lights UBLights
	misc   PCMisc

	cameraBuffer *resource.Buffer
	lightBuffer  *resource.Buffer
	textures     []*resource.Image
	sphere       *mesh.Mesh

	heightmap    *resource.Image
	interference *resource.Image

	descriptors *descriptor.Group
	renderpass  *pipeline.Renderpass
	pipeline    *pipeline.Pipeline
	frame       *resource.Frame
}

func New(ctx *gpu.Context) *Stage {
	return &Stage{ctx: ctx}
}

// Setup builds everything except the frame: descriptors, render pass,
// uniform buffers, material textures, the mesh and the pipeline.
func (s *Stage) Setup() error {
	if s.setup {
		return errors.Wrap(gpu.ErrAlreadyConfigured, "setup scene")
	}

	err := s.createDescriptor()
	if err != nil {
		return err
	}
	err = s.createRenderpass()
	if err != nil {
		return err
	}
	err = s.setupInput()
	if err != nil {
		return err
	}
	err = s.createPipeline()
	if err != nil {
		return err
	}

	s.setup = true
	return nil
}

func (s *Stage) createDescriptor() error {
	s.descriptors = descriptor.NewGroup(s.ctx, "scene")
	s.cleaner.Push(s.descriptors.Cleanup)

	layouts := []struct {
		slot   descriptor.Slot
		typ    core1_0.DescriptorType
		count  int
		stages core1_0.ShaderStageFlags
	}{
		{descriptor.S0, core1_0.DescriptorTypeUniformBuffer, 1, core1_0.StageVertex},
		{descriptor.S1, core1_0.DescriptorTypeUniformBuffer, 1, core1_0.StageFragment},
		{descriptor.S2, core1_0.DescriptorTypeCombinedImageSampler, len(assets.MaterialMaps), core1_0.StageFragment},
		{descriptor.S3, core1_0.DescriptorTypeCombinedImageSampler, 1, core1_0.StageFragment},
		{descriptor.S4, core1_0.DescriptorTypeCombinedImageSampler, 1, core1_0.StageFragment},
	}
	for _, l := range layouts {
		err := s.descriptors.BeginLayout(l.slot)
		if err != nil {
			return err
		}
		for i := 0; i < l.count; i++ {
			err = s.descriptors.AddBinding(l.slot, i, l.typ, l.stages)
			if err != nil {
				return err
			}
		}
		err = s.descriptors.FinalizeLayout(l.slot)
		if err != nil {
			return err
		}
	}

	err := s.descriptors.CreatePool()
	if err != nil {
		return err
	}
	return s.descriptors.AllocateAll()
}

func (s *Stage) createRenderpass() error {
	s.renderpass = pipeline.NewRenderpass(s.ctx, "scene").
		WithColor(resource.ColorFormat, core1_0.ImageLayoutColorAttachmentOptimal).
		WithDepth()
	s.cleaner.Push(s.renderpass.Cleanup)
	return s.renderpass.Create()
}

func (s *Stage) setupInput() error {
	s.misc.Reflectance = s.ctx.Settings.Reflectance

	s.cameraBuffer = resource.NewBuffer(s.ctx)
	s.cleaner.Push(s.cameraBuffer.Cleanup)
	err := s.cameraBuffer.Configure(int(unsafe.Sizeof(s.camera)), core1_0.BufferUsageUniformBuffer)
	if err != nil {
		return err
	}
	err = s.cameraBuffer.Allocate()
	if err != nil {
		return err
	}

	s.lightBuffer = resource.NewBuffer(s.ctx)
	s.cleaner.Push(s.lightBuffer.Cleanup)
	err = s.lightBuffer.Configure(int(unsafe.Sizeof(s.lights)), core1_0.BufferUsageUniformBuffer)
	if err != nil {
		return err
	}
	err = s.lightBuffer.Allocate()
	if err != nil {
		return err
	}

	maps, err := assets.LoadMaterial(s.ctx.Settings.PBRDir, s.ctx.Settings.Material)
	if err != nil {
		return err
	}
	for i, pixels := range maps {
		texture, err := assets.Upload(s.ctx, s.ctx.Settings.Material+" "+assets.MaterialMaps[i], pixels)
		if err != nil {
			return err
		}
		s.textures = append(s.textures, texture)
		s.cleaner.Push(texture.Cleanup)
	}

	err = s.descriptors.BindBuffer(descriptor.S0, 0, s.cameraBuffer.DescriptorInfo())
	if err != nil {
		return err
	}
	err = s.descriptors.BindBuffer(descriptor.S1, 0, s.lightBuffer.DescriptorInfo())
	if err != nil {
		return err
	}
	for i, texture := range s.textures {
		err = s.descriptors.BindImage(descriptor.S2, i, texture.DescriptorInfo(0))
		if err != nil {
			return err
		}
	}
	for _, slot := range []descriptor.Slot{descriptor.S0, descriptor.S1, descriptor.S2} {
		err = s.descriptors.Flush(slot)
		if err != nil {
			return err
		}
	}

	data := mesh.Sphere(1, mesh.DefaultSectors, mesh.DefaultStacks)
	if s.ctx.Settings.Mesh != "" {
		data, err = mesh.LoadOBJ(s.ctx.Settings.Mesh)
		if err != nil {
			return err
		}
	}
	s.sphere, err = mesh.Upload(s.ctx, "sphere", data)
	if err != nil {
		return err
	}
	s.cleaner.Push(s.sphere.Cleanup)
	return nil
}

func (s *Stage) createPipeline() error {
	s.pipeline = pipeline.New(s.ctx, "scene")
	s.cleaner.Push(s.pipeline.Cleanup)

	err := s.pipeline.SetLayout(s.descriptors.Layouts(), pipeline.PushRange(pushStages, int(unsafe.Sizeof(s.misc))))
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
	err = s.pipeline.SetVertexInput(mesh.BindingDescriptions(), mesh.AttributeDescriptions())
	if err != nil {
		return err
	}
	err = s.pipeline.SetupDepthStencil(true, true)
	if err != nil {
		return err
	}
	return s.pipeline.BuildGraphics(s.renderpass.Handle())
}

// SetupEnvironment hands the environment cubemap and its source image to the
// scene, which cleans them up with everything else.
func (s *Stage) SetupEnvironment(cubemap, env *resource.Image) {
	s.cleaner.Push(cubemap.Cleanup)
	s.cleaner.Push(env.Cleanup)
}

// CreateFrame creates the offscreen frame the scene renders into.
func (s *Stage) CreateFrame(extent core1_0.Extent2D) error {
	if !s.setup {
		return errors.Wrap(gpu.ErrNotReady, "create scene frame: stage is not set up")
	}
	if s.frame != nil {
		return errors.Wrap(gpu.ErrAlreadyConfigured, "create scene frame")
	}

	frame := resource.NewFrame(s.ctx, "scene", extent)
	s.cleaner.Push(frame.Cleanup)
	err := frame.Create(s.renderpass.Handle())
	if err != nil {
		return err
	}
	s.frame = frame
	return nil
}

// RecreateFrame rebuilds the frame attachments at extent.
func (s *Stage) RecreateFrame(extent core1_0.Extent2D) error {
	if s.frame == nil {
		return errors.Wrap(gpu.ErrNotReady, "recreate scene frame: no frame")
	}
	return s.frame.Recreate(extent)
}

func (s *Stage) ready(op string) error {
	if !s.setup || s.frame == nil {
		return errors.Wrapf(gpu.ErrNotReady, "%s: scene needs setup and a frame", op)
	}
	return nil
}

// Render records the scene pass into cb. The sphere is drawn first, then one
// scaled copy per light. The frame color is left in color attachment layout.
func (s *Stage) Render(cb core1_0.CommandBuffer) error {
	if err := s.ready("render scene"); err != nil {
		return err
	}
	if s.heightmap == nil || s.interference == nil {
		return errors.Wrap(gpu.ErrNotReady, "render scene: heightmap and interference inputs are not bound")
	}
	driver := s.ctx.Driver
	cfg := s.ctx.Settings

	driver.CmdSetViewport(cb, s.frame.Viewport())
	driver.CmdSetScissor(cb, s.frame.Scissor())

	err := s.renderpass.Begin(cb, s.frame,
		core1_0.ClearValueFloat(cfg.ClearColor),
		core1_0.ClearValueDepthStencil{Depth: cfg.ClearDepth, Stencil: cfg.ClearStencil},
	)
	if err != nil {
		return err
	}
	err = s.pipeline.Bind(cb)
	if err != nil {
		return err
	}
	s.pipeline.BindSets(cb, int(descriptor.S0), s.descriptors.Sets(descriptor.S0, descriptor.S4)...)
	s.sphere.Bind(driver, cb)

	s.misc.Model = mgl32.Ident4()
	s.misc.IsLight = 0
	err = s.pipeline.Push(cb, pushStages, 0, s.misc)
	if err != nil {
		return err
	}
	s.sphere.Draw(driver, cb)

	s.misc.IsLight = 1
	for i := 0; i < int(s.lights.Total); i++ {
		s.misc.Model = LightModel(s.lights.Position[i].Vec3())
		err = s.pipeline.Push(cb, pushStages, 0, s.misc)
		if err != nil {
			return err
		}
		s.sphere.Draw(driver, cb)
	}

	s.renderpass.End(cb)
	s.frame.EndRenderPass(s.renderpass.FinalColorLayout())
	return nil
}

func (s *Stage) Frame() *resource.Frame           { return s.frame }
func (s *Stage) Renderpass() *pipeline.Renderpass { return s.renderpass }
func (s *Stage) Lights() UBLights                 { return s.lights }
func (s *Stage) Camera() UBCamera                 { return s.camera }

// Cleanup releases everything the stage owns, newest first. The heightmap and
// interference inputs belong to their producers.
func (s *Stage) Cleanup() {
	s.cleaner.Flush("scene")
	s.frame = nil
	s.textures = nil
	s.heightmap = nil
	s.interference = nil
	s.setup = false
}
