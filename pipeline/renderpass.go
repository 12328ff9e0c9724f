package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/resource"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Renderpass describes a single-subpass render pass with an optional color
// attachment at index 0 and an optional depth attachment after it.
type Renderpass struct {
	ctx     *gpu.Context
	name    string
	cleaner gpu.Cleaner

	color      bool
	format     core1_0.Format
	finalColor core1_0.ImageLayout
	depth      bool

	renderpass core1_0.RenderPass
}

func NewRenderpass(ctx *gpu.Context, name string) *Renderpass {
	return &Renderpass{ctx: ctx, name: name}
}

// WithColor adds a cleared color attachment left in finalLayout.
func (r *Renderpass) WithColor(format core1_0.Format, finalLayout core1_0.ImageLayout) *Renderpass {
	r.color = true
	r.format = format
	r.finalColor = finalLayout
	return r
}

// WithDepth adds a cleared depth attachment in the depth image format.
func (r *Renderpass) WithDepth() *Renderpass {
	r.depth = true
	return r
}

func (r *Renderpass) Create() error {
	if r.renderpass.Initialized() {
		return errors.Newf("create render pass %s: already created", r.name)
	}
	if !r.color && !r.depth {
		return errors.Newf("create render pass %s: no attachments", r.name)
	}

	var attachments []core1_0.AttachmentDescription
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
	}
	dependency := core1_0.SubpassDependency{
		SrcSubpass: core1_0.SubpassExternal,
		DstSubpass: 0,

		SrcAccessMask: 0,
	}

	if r.color {
		subpass.ColorAttachments = []core1_0.AttachmentReference{
			{
				Attachment: len(attachments),
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		}
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         r.format,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    r.finalColor,
		})
		dependency.SrcStageMask |= core1_0.PipelineStageColorAttachmentOutput
		dependency.DstStageMask |= core1_0.PipelineStageColorAttachmentOutput
		dependency.DstAccessMask |= core1_0.AccessColorAttachmentWrite
	}

	if r.depth {
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: len(attachments),
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         resource.DepthFormat,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpDontCare,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		dependency.SrcStageMask |= core1_0.PipelineStageEarlyFragmentTests
		dependency.DstStageMask |= core1_0.PipelineStageEarlyFragmentTests
		dependency.DstAccessMask |= core1_0.AccessDepthStencilAttachmentWrite
	}

	driver := r.ctx.Driver
	renderpass, _, err := driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments:         attachments,
		Subpasses:           []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{dependency},
	})
	if err != nil {
		return errors.Wrapf(err, "create render pass %s", r.name)
	}
	r.renderpass = renderpass
	r.cleaner.Push(func() { driver.DestroyRenderPass(renderpass, nil) })
	return nil
}

// Begin records the start of the render pass over the whole of frame.
// clears holds one value per attachment in attachment order.
func (r *Renderpass) Begin(cb core1_0.CommandBuffer, frame *resource.Frame, clears ...core1_0.ClearValue) error {
	if !r.renderpass.Initialized() {
		return errors.Wrapf(gpu.ErrNotReady, "begin render pass %s: not created", r.name)
	}

	err := r.ctx.Driver.CmdBeginRenderPass(cb, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  r.renderpass,
			Framebuffer: frame.Framebuffer(),
			RenderArea:  frame.Scissor(),
			ClearValues: clears,
		})
	if err != nil {
		return errors.Wrapf(err, "begin render pass %s", r.name)
	}
	return nil
}

func (r *Renderpass) End(cb core1_0.CommandBuffer) {
	r.ctx.Driver.CmdEndRenderPass(cb)
}

// FinalColorLayout is the layout the color attachment is left in.
func (r *Renderpass) FinalColorLayout() core1_0.ImageLayout {
	return r.finalColor
}

func (r *Renderpass) Handle() core1_0.RenderPass {
	return r.renderpass
}

func (r *Renderpass) Cleanup() {
	r.cleaner.Flush("render pass " + r.name)
	r.renderpass = core1_0.RenderPass{}
}
