package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/gpu"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Frame is a render target: a color image, an optional depth image and the
// framebuffer binding them to a render pass. It is resized only by Recreate.
type Frame struct {
	ctx       *gpu.Context
	name      string
	extent    core1_0.Extent2D
	swapImage core1_0.Image

	color       *Image
	depth       *Image
	renderpass  core1_0.RenderPass
	framebuffer core1_0.Framebuffer
}

// NewFrame returns an offscreen frame with a sampled color image and a depth
// image.
func NewFrame(ctx *gpu.Context, name string, extent core1_0.Extent2D) *Frame {
	return &Frame{ctx: ctx, name: name, extent: extent}
}

// NewSwapchainFrame returns a color-only frame over a swapchain image in the
// context's surface format.
func NewSwapchainFrame(ctx *gpu.Context, name string, image core1_0.Image, extent core1_0.Extent2D) *Frame {
	return &Frame{ctx: ctx, name: name, extent: extent, swapImage: image}
}

func (f *Frame) swapchain() bool {
	return f.swapImage.Initialized()
}

// Create builds the attachments and a framebuffer for renderpass.
func (f *Frame) Create(renderpass core1_0.RenderPass) error {
	f.renderpass = renderpass
	f.color = NewImage(f.ctx, f.name+" color")

	var attachments []core1_0.ImageView
	if f.swapchain() {
		err := f.color.ConfigureSwapchain(f.swapImage, f.ctx.SurfaceFormat, f.extent)
		if err != nil {
			return err
		}
		err = f.color.Create()
		if err != nil {
			return err
		}
		attachments = append(attachments, f.color.View(0))
	} else {
		err := f.color.ConfigureColor(f.extent)
		if err != nil {
			return err
		}
		err = f.color.CreateWithSampler()
		if err != nil {
			return err
		}

		f.depth = NewImage(f.ctx, f.name+" depth")
		err = f.depth.ConfigureDepth(f.extent)
		if err != nil {
			return err
		}
		err = f.depth.Create()
		if err != nil {
			return err
		}
		attachments = append(attachments, f.color.View(0), f.depth.View(0))
	}

	framebuffer, _, err := f.ctx.Driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderpass,
		Layers:      1,
		Attachments: attachments,
		Width:       f.extent.Width,
		Height:      f.extent.Height,
	})
	if err != nil {
		return errors.Wrapf(err, "create framebuffer %s", f.name)
	}
	f.framebuffer = framebuffer

	gpu.Logger().Debug("create frame", "name", f.name, "width", f.extent.Width, "height", f.extent.Height)
	return nil
}

// Recreate destroys the attachments and rebuilds them at extent.
func (f *Frame) Recreate(extent core1_0.Extent2D) error {
	if !f.renderpass.Initialized() {
		return errors.Wrapf(gpu.ErrNotReady, "recreate frame %s: never created", f.name)
	}

	f.Cleanup()
	f.extent = extent
	return f.Create(f.renderpass)
}

// RecreateSwapchain is Recreate for a frame whose swapchain image changed.
func (f *Frame) RecreateSwapchain(image core1_0.Image, extent core1_0.Extent2D) error {
	f.swapImage = image
	return f.Recreate(extent)
}

// EndRenderPass tracks the layouts the render pass left the attachments in.
func (f *Frame) EndRenderPass(colorLayout core1_0.ImageLayout) {
	f.color.SetLayout(colorLayout)
	if f.depth != nil {
		f.depth.SetLayout(core1_0.ImageLayoutDepthStencilAttachmentOptimal)
	}
}

func (f *Frame) Color() *Image                    { return f.color }
func (f *Frame) Depth() *Image                    { return f.depth }
func (f *Frame) Framebuffer() core1_0.Framebuffer { return f.framebuffer }
func (f *Frame) Extent() core1_0.Extent2D         { return f.extent }
func (f *Frame) Viewport() core1_0.Viewport       { return ViewportFor(f.extent) }
func (f *Frame) Scissor() core1_0.Rect2D          { return ScissorFor(f.extent) }

func (f *Frame) Cleanup() {
	if f.framebuffer.Initialized() {
		f.ctx.Driver.DestroyFramebuffer(f.framebuffer, nil)
		f.framebuffer = core1_0.Framebuffer{}
	}
	if f.depth != nil {
		f.depth.Cleanup()
		f.depth = nil
	}
	if f.color != nil {
		f.color.Cleanup()
		f.color = nil
	}
}

func ViewportFor(extent core1_0.Extent2D) core1_0.Viewport {
	return core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func ScissorFor(extent core1_0.Extent2D) core1_0.Rect2D {
	return core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}
}
