package pipeline_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/pipeline"
	"github.com/thinfilm/renderer/resource"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"go.uber.org/mock/gomock"
)

func TestRenderpass_ColorAndDepth(t *testing.T) {
	h := newHarness(t)
	handle := mocks.NewDummyRenderPass(h.Device)

	var info core1_0.RenderPassCreateInfo
	h.Driver.EXPECT().CreateRenderPass(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.RenderPassCreateInfo) (core1_0.RenderPass, common.VkResult, error) {
			info = o
			return handle, core1_0.VKSuccess, nil
		})
	h.Driver.EXPECT().DestroyRenderPass(handle, gomock.Nil())

	r := pipeline.NewRenderpass(h.Ctx, "scene").
		WithColor(resource.ColorFormat, core1_0.ImageLayoutColorAttachmentOptimal).
		WithDepth()
	require.NoError(t, r.Create())
	require.Error(t, r.Create())
	require.Equal(t, handle, r.Handle())

	require.Len(t, info.Attachments, 2)
	require.Equal(t, resource.ColorFormat, info.Attachments[0].Format)
	require.Equal(t, core1_0.ImageLayoutColorAttachmentOptimal, info.Attachments[0].FinalLayout)
	require.Equal(t, resource.DepthFormat, info.Attachments[1].Format)
	require.Equal(t, 1, info.Subpasses[0].DepthStencilAttachment.Attachment)
	require.Equal(t, 0, info.Subpasses[0].ColorAttachments[0].Attachment)
	require.Equal(t, core1_0.SubpassExternal, info.SubpassDependencies[0].SrcSubpass)
	require.Equal(t, core1_0.AccessColorAttachmentWrite|core1_0.AccessDepthStencilAttachmentWrite, info.SubpassDependencies[0].DstAccessMask)

	r.Cleanup()
	r.Cleanup()
}

func TestRenderpass_SwapchainBegin(t *testing.T) {
	h := newHarness(t)
	h.ExpectAll()
	handle := mocks.NewDummyRenderPass(h.Device)
	framebuffer := mocks.NewDummyFramebuffer(h.Device)

	h.Driver.EXPECT().CreateRenderPass(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.RenderPassCreateInfo) (core1_0.RenderPass, common.VkResult, error) {
			require.Len(t, o.Attachments, 1)
			require.Nil(t, o.Subpasses[0].DepthStencilAttachment)
			require.Equal(t, khr_swapchain.ImageLayoutPresentSrc, o.Attachments[0].FinalLayout)
			return handle, core1_0.VKSuccess, nil
		})
	h.Driver.EXPECT().CreateFramebuffer(gomock.Nil(), gomock.Any()).Return(framebuffer, core1_0.VKSuccess, nil)

	r := pipeline.NewRenderpass(h.Ctx, "screen").WithColor(h.Ctx.SurfaceFormat, khr_swapchain.ImageLayoutPresentSrc)
	cb := h.CommandBuffer()
	frame := resource.NewSwapchainFrame(h.Ctx, "swap", mocks.NewDummyImage(h.Device), core1_0.Extent2D{Width: 800, Height: 600})

	require.True(t, errors.Is(r.Begin(cb, frame), gpu.ErrNotReady))
	require.NoError(t, r.Create())
	require.NoError(t, frame.Create(r.Handle()))

	clear := core1_0.ClearValueFloat{0.1, 0.1, 0.1, 1}
	h.Driver.EXPECT().CmdBeginRenderPass(cb, core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  handle,
		Framebuffer: framebuffer,
		RenderArea: core1_0.Rect2D{
			Extent: core1_0.Extent2D{Width: 800, Height: 600},
		},
		ClearValues: []core1_0.ClearValue{clear},
	}).Return(nil)
	h.Driver.EXPECT().CmdEndRenderPass(cb)

	require.NoError(t, r.Begin(cb, frame, clear))
	r.End(cb)
}

func TestRenderpass_NeedsAttachment(t *testing.T) {
	h := newHarness(t)
	require.Error(t, pipeline.NewRenderpass(h.Ctx, "empty").Create())
}
