// Package pipeline builds graphics and compute pipelines, their layouts and
// the render passes they draw into.
package pipeline

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/gpu"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Pipeline accumulates pipeline state until BuildGraphics or BuildCompute.
// After a successful build every setter returns gpu.ErrPipelineBuilt.
type Pipeline struct {
	ctx     *gpu.Context
	name    string
	cleaner gpu.Cleaner

	built     bool
	bindPoint core1_0.PipelineBindPoint
	layout    core1_0.PipelineLayout
	pipeline  core1_0.Pipeline

	stages  []core1_0.PipelineShaderStageCreateInfo
	modules []core1_0.ShaderModule

	vertexInput   core1_0.PipelineVertexInputStateCreateInfo
	inputAssembly core1_0.PipelineInputAssemblyStateCreateInfo
	viewport      core1_0.PipelineViewportStateCreateInfo
	rasterization core1_0.PipelineRasterizationStateCreateInfo
	multisample   core1_0.PipelineMultisampleStateCreateInfo
	depthStencil  core1_0.PipelineDepthStencilStateCreateInfo
	colorBlend    core1_0.PipelineColorBlendStateCreateInfo
	dynamic       core1_0.PipelineDynamicStateCreateInfo
}

const colorWriteAll = core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha

// New returns a builder holding the defaults: triangle lists, back-face
// culling, one sample, one opaque color attachment, no depth test, and
// dynamic viewport and scissor.
func New(ctx *gpu.Context, name string) *Pipeline {
	p := &Pipeline{ctx: ctx, name: name}

	p.inputAssembly = core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}
	p.setupViewport()
	p.rasterization = core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeBack,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}
	p.multisample = core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}
	p.colorBlend = colorBlendState(1, false)
	p.dynamic = core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
	}
	return p
}

// setupViewport declares one viewport and one scissor. Their values are
// placeholders since both are always dynamic.
func (p *Pipeline) setupViewport() {
	p.viewport = core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{{Width: 1, Height: 1, MinDepth: 0, MaxDepth: 1}},
		Scissors:  []core1_0.Rect2D{{Extent: core1_0.Extent2D{Width: 1, Height: 1}}},
	}
}

func colorBlendState(attachments int, blend bool) core1_0.PipelineColorBlendStateCreateInfo {
	state := core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
	}
	for i := 0; i < attachments; i++ {
		attachment := core1_0.PipelineColorBlendAttachmentState{
			BlendEnabled:   blend,
			ColorWriteMask: colorWriteAll,
		}
		if blend {
			attachment.SrcColorBlendFactor = core1_0.BlendFactorSrcAlpha
			attachment.DstColorBlendFactor = core1_0.BlendFactorOneMinusSrcAlpha
			attachment.ColorBlendOp = core1_0.BlendOpAdd
			attachment.SrcAlphaBlendFactor = core1_0.BlendFactorOne
			attachment.DstAlphaBlendFactor = core1_0.BlendFactorZero
			attachment.AlphaBlendOp = core1_0.BlendOpAdd
		}
		state.Attachments = append(state.Attachments, attachment)
	}
	return state
}

func (p *Pipeline) mutable(op string) error {
	if p.built {
		return errors.Wrapf(gpu.ErrPipelineBuilt, "%s on pipeline %s", op, p.name)
	}
	return nil
}

// SetShaderStages loads one module per stage. Modules live until the build.
func (p *Pipeline) SetShaderStages(stages ...ShaderStage) error {
	if err := p.mutable("set shader stages"); err != nil {
		return err
	}
	p.destroyModules()

	for _, stage := range stages {
		module, err := LoadShader(p.ctx, stage.Name)
		if err != nil {
			return err
		}
		p.modules = append(p.modules, module)
		p.stages = append(p.stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  stage.Stage,
			Module: module,
			Name:   "main",
		})
	}
	return nil
}

func (p *Pipeline) SetVertexInput(bindings []core1_0.VertexInputBindingDescription, attributes []core1_0.VertexInputAttributeDescription) error {
	if err := p.mutable("set vertex input"); err != nil {
		return err
	}
	p.vertexInput = core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   bindings,
		VertexAttributeDescriptions: attributes,
	}
	return nil
}

func (p *Pipeline) SetupViewport() error {
	if err := p.mutable("setup viewport"); err != nil {
		return err
	}
	p.setupViewport()
	return nil
}

func (p *Pipeline) SetupInputAssembly(topology core1_0.PrimitiveTopology) error {
	if err := p.mutable("setup input assembly"); err != nil {
		return err
	}
	p.inputAssembly.Topology = topology
	return nil
}

func (p *Pipeline) SetupRasterization(cullMode core1_0.CullModeFlags, frontFace core1_0.FrontFace) error {
	if err := p.mutable("setup rasterization"); err != nil {
		return err
	}
	p.rasterization.CullMode = cullMode
	p.rasterization.FrontFace = frontFace
	return nil
}

func (p *Pipeline) SetupMultisample(samples core1_0.SampleCountFlags) error {
	if err := p.mutable("setup multisample"); err != nil {
		return err
	}
	p.multisample.RasterizationSamples = samples
	return nil
}

// SetupColorBlend declares attachments color attachments, alpha blended when
// blend is set.
func (p *Pipeline) SetupColorBlend(attachments int, blend bool) error {
	if err := p.mutable("setup color blend"); err != nil {
		return err
	}
	p.colorBlend = colorBlendState(attachments, blend)
	return nil
}

func (p *Pipeline) SetupDepthStencil(test, write bool) error {
	if err := p.mutable("setup depth stencil"); err != nil {
		return err
	}
	p.depthStencil = core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  test,
		DepthWriteEnable: write,
		DepthCompareOp:   core1_0.CompareOpLess,
	}
	return nil
}

// SetupDynamic adds dynamic states on top of viewport and scissor.
func (p *Pipeline) SetupDynamic(states ...core1_0.DynamicState) error {
	if err := p.mutable("setup dynamic state"); err != nil {
		return err
	}
	dynamic := []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor}
	for _, state := range states {
		if state == core1_0.DynamicStateViewport || state == core1_0.DynamicStateScissor {
			continue
		}
		dynamic = append(dynamic, state)
	}
	p.dynamic.DynamicStates = dynamic
	return nil
}

func (p *Pipeline) buildable(op string) error {
	if err := p.mutable(op); err != nil {
		return err
	}
	if !p.layout.Initialized() {
		return errors.Newf("%s %s: no layout", op, p.name)
	}
	if len(p.stages) == 0 {
		return errors.Newf("%s %s: no shader stages", op, p.name)
	}
	return nil
}

// BuildGraphics compiles the graphics pipeline for subpass 0 of renderpass.
func (p *Pipeline) BuildGraphics(renderpass core1_0.RenderPass) error {
	if err := p.buildable("build graphics pipeline"); err != nil {
		return err
	}
	defer p.destroyModules()

	vertexInput := p.vertexInput
	inputAssembly := p.inputAssembly
	viewport := p.viewport
	rasterization := p.rasterization
	multisample := p.multisample
	depthStencil := p.depthStencil
	colorBlend := p.colorBlend
	dynamic := p.dynamic

	pipelines, _, err := p.ctx.Driver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages:             p.stages,
			VertexInputState:   &vertexInput,
			InputAssemblyState: &inputAssembly,
			ViewportState:      &viewport,
			RasterizationState: &rasterization,
			MultisampleState:   &multisample,
			DepthStencilState:  &depthStencil,
			ColorBlendState:    &colorBlend,
			DynamicState:       &dynamic,
			Layout:             p.layout,
			RenderPass:         renderpass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "create graphics pipeline %s", p.name)
	}
	p.finish(pipelines[0], core1_0.PipelineBindPointGraphics)
	return nil
}

// BuildCompute compiles a compute pipeline from the single compute stage.
func (p *Pipeline) BuildCompute() error {
	if err := p.buildable("build compute pipeline"); err != nil {
		return err
	}
	if len(p.stages) != 1 || p.stages[0].Stage != core1_0.StageCompute {
		return errors.Newf("build compute pipeline %s: need exactly one compute stage", p.name)
	}
	defer p.destroyModules()

	pipelines, _, err := p.ctx.Driver.CreateComputePipelines(nil, nil,
		core1_0.ComputePipelineCreateInfo{
			Stage:             p.stages[0],
			Layout:            p.layout,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "create compute pipeline %s", p.name)
	}
	p.finish(pipelines[0], core1_0.PipelineBindPointCompute)
	return nil
}

func (p *Pipeline) finish(pipeline core1_0.Pipeline, bindPoint core1_0.PipelineBindPoint) {
	driver := p.ctx.Driver
	p.pipeline = pipeline
	p.bindPoint = bindPoint
	p.built = true
	p.cleaner.Push(func() { driver.DestroyPipeline(pipeline, nil) })

	gpu.Logger().Debug("build pipeline", "name", p.name, "bind_point", bindPoint.String())
}

func (p *Pipeline) destroyModules() {
	for _, module := range p.modules {
		p.ctx.Driver.DestroyShaderModule(module, nil)
	}
	p.modules = nil
	p.stages = nil
}

// Bind records binding the pipeline at its bind point.
func (p *Pipeline) Bind(cb core1_0.CommandBuffer) error {
	if !p.built {
		return errors.Wrapf(gpu.ErrNotReady, "bind pipeline %s: not built", p.name)
	}
	p.ctx.Driver.CmdBindPipeline(cb, p.bindPoint, p.pipeline)
	return nil
}

// BindSets records binding sets starting at firstSet.
func (p *Pipeline) BindSets(cb core1_0.CommandBuffer, firstSet int, sets ...core1_0.DescriptorSet) {
	p.ctx.Driver.CmdBindDescriptorSets(cb, p.bindPoint, p.layout, firstSet, sets, nil)
}

// Push encodes value in device byte order and records it as push constants.
func (p *Pipeline) Push(cb core1_0.CommandBuffer, stages core1_0.ShaderStageFlags, offset int, value any) error {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, value)
	if err != nil {
		return errors.Wrapf(err, "encode push constants for %s", p.name)
	}

	p.ctx.Driver.CmdPushConstants(cb, p.layout, stages, offset, buf.Bytes())
	return nil
}

func (p *Pipeline) Handle() core1_0.Pipeline             { return p.pipeline }
func (p *Pipeline) Layout() core1_0.PipelineLayout       { return p.layout }
func (p *Pipeline) BindPoint() core1_0.PipelineBindPoint { return p.bindPoint }
func (p *Pipeline) Built() bool                          { return p.built }
func (p *Pipeline) Name() string                         { return p.name }

// Cleanup destroys the pipeline, then its layout, and any modules left from
// an unbuilt configuration.
func (p *Pipeline) Cleanup() {
	p.destroyModules()
	p.cleaner.Flush("pipeline " + p.name)
	p.pipeline = core1_0.Pipeline{}
	p.layout = core1_0.PipelineLayout{}
	p.built = false
}
