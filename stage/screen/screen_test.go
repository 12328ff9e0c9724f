package screen_test

import (
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/gpu/gputest"
	"github.com/thinfilm/renderer/resource"
	"github.com/thinfilm/renderer/settings"
	"github.com/thinfilm/renderer/stage/screen"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"go.uber.org/mock/gomock"
)

var extent = core1_0.Extent2D{Width: 8, Height: 6}

func newHarness(t *testing.T) *gputest.Harness {
	h := gputest.New(t, settings.Default())
	h.Ctx.Shaders = fstest.MapFS{
		screen.VertexShader:   {Data: []byte{0x03, 0x02, 0x23, 0x07}},
		screen.FragmentShader: {Data: []byte{0x03, 0x02, 0x23, 0x07}},
	}
	h.ExpectAll()
	h.ExpectDescriptors()
	h.ExpectPipelines()
	return h
}

func swapchainImages(h *gputest.Harness, count int) []core1_0.Image {
	images := make([]core1_0.Image, count)
	for i := range images {
		images[i] = mocks.NewDummyImage(h.Device)
	}
	return images
}

// sceneFrame stands in for the scene stage output, left in color attachment
// layout as a finished scene pass leaves it.
func sceneFrame(t *testing.T, h *gputest.Harness) *resource.Frame {
	frame := resource.NewFrame(h.Ctx, "scene", extent)
	require.NoError(t, frame.Create(mocks.NewDummyRenderPass(h.Device)))
	frame.EndRenderPass(core1_0.ImageLayoutColorAttachmentOptimal)
	return frame
}

type overlay struct {
	draws int
	err   error
}

func (o *overlay) Draw(core1_0.CommandBuffer) error {
	o.draws++
	return o.err
}

func TestStage_Setup(t *testing.T) {
	h := newHarness(t)
	stage := screen.New(h.Ctx)

	require.True(t, errors.Is(stage.CreateFrames(swapchainImages(h, 1), extent), gpu.ErrNotReady))
	require.NoError(t, stage.Setup())
	require.True(t, errors.Is(stage.Setup(), gpu.ErrAlreadyConfigured))

	require.Len(t, h.RenderPasses, 1)
	require.Len(t, h.RenderPasses[0].Attachments, 1)
	require.Equal(t, core1_0.FormatB8G8R8A8SRGB, h.RenderPasses[0].Attachments[0].Format)
	require.Equal(t, khr_swapchain.ImageLayoutPresentSrc, h.RenderPasses[0].Attachments[0].FinalLayout)
	require.Nil(t, h.RenderPasses[0].Subpasses[0].DepthStencilAttachment)

	require.Len(t, h.SetLayouts, 1)
	require.Equal(t, core1_0.DescriptorTypeCombinedImageSampler, h.SetLayouts[0].Bindings[0].DescriptorType)
	require.Empty(t, h.PipelineLayouts[0].PushConstantRanges)
	require.Empty(t, h.Graphics[0].VertexInputState.VertexBindingDescriptions)
	require.False(t, h.Graphics[0].ColorBlendState.Attachments[0].BlendEnabled)

	stage.Cleanup()
	stage.Cleanup()
}

func TestStage_Frames(t *testing.T) {
	h := newHarness(t)
	stage := screen.New(h.Ctx)
	require.NoError(t, stage.Setup())
	defer stage.Cleanup()

	require.NoError(t, stage.CreateFrames(swapchainImages(h, 3), extent))
	require.Equal(t, 3, stage.FrameCount())
	require.Len(t, h.Framebuffers, 3)
	require.Len(t, h.Framebuffers[0].Attachments, 1)
	require.Empty(t, h.Images)
	require.True(t, errors.Is(stage.CreateFrames(swapchainImages(h, 3), extent), gpu.ErrAlreadyConfigured))

	resized := core1_0.Extent2D{Width: 800, Height: 600}
	images := swapchainImages(h, 2)
	require.NoError(t, stage.RecreateFrames(images, resized))
	require.Equal(t, 2, stage.FrameCount())
	require.Len(t, h.Framebuffers, 5)
	require.Equal(t, float32(800), stage.Frame(1).Viewport().Width)
	require.Equal(t, resized, stage.Frame(1).Scissor().Extent)
	require.Equal(t, images[1], stage.Frame(1).Color().Handle())
}

func TestStage_SetupInput(t *testing.T) {
	h := newHarness(t)
	stage := screen.New(h.Ctx)
	require.NoError(t, stage.Setup())
	defer stage.Cleanup()

	input := sceneFrame(t, h)
	defer input.Cleanup()

	require.NoError(t, stage.SetupInput(input))
	require.Len(t, h.Writes, 1)
	require.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, h.Writes[0].ImageInfo[0].ImageLayout)
	require.Equal(t, input.Color().View(0), h.Writes[0].ImageInfo[0].ImageView)
	require.Equal(t, khr_swapchain.ImageLayoutPresentSrc, input.Color().Layout())
}

func TestStage_Render(t *testing.T) {
	h := newHarness(t)
	stage := screen.New(h.Ctx)
	require.NoError(t, stage.Setup())
	defer stage.Cleanup()
	require.NoError(t, stage.CreateFrames(swapchainImages(h, 2), extent))

	cb := h.CommandBuffer()
	require.True(t, errors.Is(stage.Render(cb, 0, nil), gpu.ErrNotReady))

	input := sceneFrame(t, h)
	defer input.Cleanup()
	require.NoError(t, stage.SetupInput(input))
	input.EndRenderPass(core1_0.ImageLayoutColorAttachmentOptimal)

	require.True(t, errors.Is(stage.Render(cb, 2, nil), gpu.ErrNotReady))

	frame := stage.Frame(1)
	gomock.InOrder(
		h.Driver.EXPECT().CmdSetViewport(cb, frame.Viewport()),
		h.Driver.EXPECT().CmdSetScissor(cb, frame.Scissor()),
		h.Driver.EXPECT().CmdBeginRenderPass(cb, core1_0.SubpassContentsInline, gomock.Any()).DoAndReturn(
			func(_ core1_0.CommandBuffer, _ core1_0.SubpassContents, o core1_0.RenderPassBeginInfo) error {
				require.Equal(t, frame.Framebuffer(), o.Framebuffer)
				require.Equal(t, []core1_0.ClearValue{core1_0.ClearValueFloat{0.1, 0.1, 0.1, 1}}, o.ClearValues)
				return nil
			}),
		h.Driver.EXPECT().CmdBindDescriptorSets(cb, core1_0.PipelineBindPointGraphics, gomock.Any(), 0, gomock.Len(1), gomock.Nil()),
		h.Driver.EXPECT().CmdBindPipeline(cb, core1_0.PipelineBindPointGraphics, gomock.Any()),
		h.Driver.EXPECT().CmdDraw(cb, 3, 1, uint32(0), uint32(0)),
		h.Driver.EXPECT().CmdEndRenderPass(cb),
	)

	barriers := len(h.Barriers)
	ui := &overlay{}
	require.NoError(t, stage.Render(cb, 1, ui))
	require.Equal(t, 1, ui.draws)

	require.Len(t, h.Barriers, barriers+2)
	require.Equal(t, core1_0.ImageLayoutColorAttachmentOptimal, h.Barriers[barriers].OldLayout)
	require.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, h.Barriers[barriers].NewLayout)
	require.Equal(t, khr_swapchain.ImageLayoutPresentSrc, h.Barriers[barriers+1].NewLayout)

	require.Equal(t, khr_swapchain.ImageLayoutPresentSrc, frame.Color().Layout())
	require.Equal(t, khr_swapchain.ImageLayoutPresentSrc, input.Color().Layout())
}

func TestStage_RenderOverlayError(t *testing.T) {
	h := newHarness(t)
	stage := screen.New(h.Ctx)
	require.NoError(t, stage.Setup())
	defer stage.Cleanup()
	require.NoError(t, stage.CreateFrames(swapchainImages(h, 1), extent))

	input := sceneFrame(t, h)
	defer input.Cleanup()
	require.NoError(t, stage.SetupInput(input))

	cb := h.CommandBuffer()
	h.Driver.EXPECT().CmdSetViewport(cb, gomock.Any())
	h.Driver.EXPECT().CmdSetScissor(cb, gomock.Any())
	h.Driver.EXPECT().CmdBeginRenderPass(cb, gomock.Any(), gomock.Any()).Return(nil)
	h.Driver.EXPECT().CmdBindDescriptorSets(cb, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
	h.Driver.EXPECT().CmdBindPipeline(cb, gomock.Any(), gomock.Any())
	h.Driver.EXPECT().CmdDraw(cb, 3, 1, uint32(0), uint32(0))

	err := stage.Render(cb, 0, &overlay{err: errors.New("font atlas missing")})
	require.ErrorContains(t, err, "font atlas missing")
}
