// Package gputest builds a gpu.Context over generated driver mocks and
// records what the code under test asked the device to do.
package gputest

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/settings"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_0"
	"go.uber.org/mock/gomock"
)

const (
	DeviceLocalType = 0
	HostVisibleType = 1
)

type Barrier struct {
	SrcStage core1_0.PipelineStageFlags
	DstStage core1_0.PipelineStageFlags
	core1_0.ImageMemoryBarrier
}

type Harness struct {
	Ctx      *gpu.Context
	Ctrl     *gomock.Controller
	Driver   *mocks1_0.MockDeviceDriver
	Instance *mocks1_0.MockCoreInstanceDriver
	Device   core1_0.Device
	Physical core1_0.PhysicalDevice
	Queue    core1_0.Queue
	Pool     core1_0.CommandPool

	Buffers     []core1_0.BufferCreateInfo
	Allocations []core1_0.MemoryAllocateInfo
	Images      []core1_0.ImageCreateInfo
	Views       []core1_0.ImageViewCreateInfo
	Samplers    []core1_0.SamplerCreateInfo
	Barriers    []Barrier
	OneShots    int

	SetLayouts      []core1_0.DescriptorSetLayoutCreateInfo
	DescriptorPools []core1_0.DescriptorPoolCreateInfo
	Writes          []core1_0.WriteDescriptorSet
	PipelineLayouts []core1_0.PipelineLayoutCreateInfo
	Graphics        []core1_0.GraphicsPipelineCreateInfo
	Computes        []core1_0.ComputePipelineCreateInfo
	RenderPasses    []core1_0.RenderPassCreateInfo
	Framebuffers    []core1_0.FramebufferCreateInfo

	memory map[loader.VkDeviceMemory][]byte
}

// New returns a harness whose context was built through gpu.NewContext.
func New(t *testing.T, s *settings.Settings) *Harness {
	ctrl := gomock.NewController(t)

	instance := mocks.NewDummyInstance(common.Vulkan1_0, []string{})
	device := mocks.NewDummyDevice(common.Vulkan1_0, []string{})
	h := &Harness{
		Ctrl:     ctrl,
		Driver:   mocks1_0.NewMockDeviceDriver(ctrl),
		Instance: mocks1_0.NewMockCoreInstanceDriver(ctrl),
		Device:   device,
		Physical: mocks.NewDummyPhysicalDevice(instance, common.Vulkan1_0),
		Queue:    mocks.NewDummyQueue(device),
		Pool:     mocks.NewDummyCommandPool(device),
		memory:   make(map[loader.VkDeviceMemory][]byte),
	}

	h.Driver.EXPECT().CreateCommandPool(gomock.Nil(), gomock.Any()).Return(h.Pool, core1_0.VKSuccess, nil)
	h.Driver.EXPECT().GetQueue(0, 0).Return(h.Queue)

	ctx, err := gpu.NewContext(gpu.Options{
		Driver:         h.Driver,
		Instance:       h.Instance,
		PhysicalDevice: h.Physical,
		SurfaceFormat:  core1_0.FormatB8G8R8A8SRGB,
		Settings:       s,
	})
	require.NoError(t, err)
	h.Ctx = ctx
	return h
}

// CommandBuffer returns a fresh dummy command buffer for batched recording.
func (h *Harness) CommandBuffer() core1_0.CommandBuffer {
	return mocks.NewDummyCommandBuffer(h.Pool, h.Device)
}

// ExpectOneShots accepts any number of one-shot submissions and counts them
// in OneShots.
func (h *Harness) ExpectOneShots() {
	h.Driver.EXPECT().AllocateCommandBuffers(gomock.Any()).DoAndReturn(
		func(o core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, common.VkResult, error) {
			buffers := make([]core1_0.CommandBuffer, o.CommandBufferCount)
			for i := range buffers {
				buffers[i] = h.CommandBuffer()
			}
			return buffers, core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().BeginCommandBuffer(gomock.Any(), gomock.Any()).Return(core1_0.VKSuccess, nil).AnyTimes()
	h.Driver.EXPECT().EndCommandBuffer(gomock.Any()).Return(core1_0.VKSuccess, nil).AnyTimes()
	h.Driver.EXPECT().QueueSubmit(h.Queue, gomock.Nil(), gomock.Any()).Return(core1_0.VKSuccess, nil).AnyTimes()
	h.Driver.EXPECT().QueueWaitIdle(h.Queue).DoAndReturn(func(core1_0.Queue) (common.VkResult, error) {
		h.OneShots++
		return core1_0.VKSuccess, nil
	}).AnyTimes()
	h.Driver.EXPECT().FreeCommandBuffers(gomock.Any()).AnyTimes()
}

// ExpectMemory exposes one device-local and one host-visible coherent type.
func (h *Harness) ExpectMemory() {
	h.Instance.EXPECT().GetPhysicalDeviceMemoryProperties(h.Physical).Return(&core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
	}).AnyTimes()
	h.Driver.EXPECT().AllocateMemory(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error) {
			h.Allocations = append(h.Allocations, o)
			memory := mocks.NewDummyDeviceMemory(h.Device, o.AllocationSize)
			h.memory[memory.Handle()] = make([]byte, o.AllocationSize)
			return memory, core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().MapMemory(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(memory core1_0.DeviceMemory, offset, size int, _ core1_0.MemoryMapFlags) (unsafe.Pointer, common.VkResult, error) {
			backing := h.memory[memory.Handle()]
			return unsafe.Pointer(&backing[offset]), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().UnmapMemory(gomock.Any()).AnyTimes()
	h.Driver.EXPECT().FreeMemory(gomock.Any(), gomock.Nil()).AnyTimes()
}

// ExpectBuffers accepts buffer creation, binding and destruction.
func (h *Harness) ExpectBuffers() {
	h.Driver.EXPECT().CreateBuffer(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.BufferCreateInfo) (core1_0.Buffer, common.VkResult, error) {
			h.Buffers = append(h.Buffers, o)
			return mocks.NewDummyBuffer(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().GetBufferMemoryRequirements(gomock.Any()).DoAndReturn(
		func(core1_0.Buffer) *core1_0.MemoryRequirements {
			size := h.Buffers[len(h.Buffers)-1].Size
			return &core1_0.MemoryRequirements{Size: size, Alignment: 4, MemoryTypeBits: 0b11}
		}).AnyTimes()
	h.Driver.EXPECT().BindBufferMemory(gomock.Any(), gomock.Any(), 0).Return(core1_0.VKSuccess, nil).AnyTimes()
	h.Driver.EXPECT().DestroyBuffer(gomock.Any(), gomock.Nil()).AnyTimes()
}

// ExpectImages accepts image, view and sampler creation and destruction.
func (h *Harness) ExpectImages() {
	h.Driver.EXPECT().CreateImage(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.ImageCreateInfo) (core1_0.Image, common.VkResult, error) {
			h.Images = append(h.Images, o)
			return mocks.NewDummyImage(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().GetImageMemoryRequirements(gomock.Any()).DoAndReturn(
		func(core1_0.Image) *core1_0.MemoryRequirements {
			info := h.Images[len(h.Images)-1]
			size := info.Extent.Width * info.Extent.Height * 16 * info.ArrayLayers
			return &core1_0.MemoryRequirements{Size: size, Alignment: 256, MemoryTypeBits: 0b11}
		}).AnyTimes()
	h.Driver.EXPECT().BindImageMemory(gomock.Any(), gomock.Any(), 0).Return(core1_0.VKSuccess, nil).AnyTimes()
	h.Driver.EXPECT().CreateImageView(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.ImageViewCreateInfo) (core1_0.ImageView, common.VkResult, error) {
			h.Views = append(h.Views, o)
			return mocks.NewDummyImageView(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().CreateSampler(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.SamplerCreateInfo) (core1_0.Sampler, common.VkResult, error) {
			h.Samplers = append(h.Samplers, o)
			return mocks.NewDummySampler(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().DestroyImage(gomock.Any(), gomock.Nil()).AnyTimes()
	h.Driver.EXPECT().DestroyImageView(gomock.Any(), gomock.Nil()).AnyTimes()
	h.Driver.EXPECT().DestroySampler(gomock.Any(), gomock.Nil()).AnyTimes()
}

// ExpectBarriers records every image barrier into Barriers.
func (h *Harness) ExpectBarriers() {
	h.Driver.EXPECT().CmdPipelineBarrier(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Nil(), gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ core1_0.CommandBuffer, src, dst core1_0.PipelineStageFlags, _ core1_0.DependencyFlags, _ []core1_0.MemoryBarrier, _ []core1_0.BufferMemoryBarrier, images []core1_0.ImageMemoryBarrier) error {
			for _, image := range images {
				h.Barriers = append(h.Barriers, Barrier{SrcStage: src, DstStage: dst, ImageMemoryBarrier: image})
			}
			return nil
		}).AnyTimes()
}

// ExpectFormat reports features as the optimal tiling features of format.
func (h *Harness) ExpectFormat(format core1_0.Format, features core1_0.FormatFeatureFlags) {
	h.Instance.EXPECT().GetPhysicalDeviceFormatProperties(h.Physical, format).Return(&core1_0.FormatProperties{
		OptimalTilingFeatures: features,
	}).AnyTimes()
}

// ExpectDescriptors accepts set layout, pool and set creation, records every
// flushed write and accepts destruction.
func (h *Harness) ExpectDescriptors() {
	h.Driver.EXPECT().CreateDescriptorSetLayout(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.DescriptorSetLayoutCreateInfo) (core1_0.DescriptorSetLayout, common.VkResult, error) {
			h.SetLayouts = append(h.SetLayouts, o)
			return mocks.NewDummyDescriptorSetLayout(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().CreateDescriptorPool(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.DescriptorPoolCreateInfo) (core1_0.DescriptorPool, common.VkResult, error) {
			h.DescriptorPools = append(h.DescriptorPools, o)
			return mocks.NewDummyDescriptorPool(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().AllocateDescriptorSets(gomock.Any()).DoAndReturn(
		func(o core1_0.DescriptorSetAllocateInfo) ([]core1_0.DescriptorSet, common.VkResult, error) {
			sets := make([]core1_0.DescriptorSet, len(o.SetLayouts))
			for i := range sets {
				sets[i] = mocks.NewDummyDescriptorSet(o.DescriptorPool, h.Device)
			}
			return sets, core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().UpdateDescriptorSets(gomock.Any(), gomock.Nil()).DoAndReturn(
		func(writes []core1_0.WriteDescriptorSet, _ []core1_0.CopyDescriptorSet) error {
			h.Writes = append(h.Writes, writes...)
			return nil
		}).AnyTimes()
	h.Driver.EXPECT().DestroyDescriptorPool(gomock.Any(), gomock.Nil()).AnyTimes()
	h.Driver.EXPECT().DestroyDescriptorSetLayout(gomock.Any(), gomock.Nil()).AnyTimes()
}

// ExpectPipelines accepts shader modules, pipeline layouts, pipelines,
// render passes and framebuffers, recording their create infos.
func (h *Harness) ExpectPipelines() {
	h.Driver.EXPECT().CreateShaderModule(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, _ core1_0.ShaderModuleCreateInfo) (core1_0.ShaderModule, common.VkResult, error) {
			return mocks.NewDummyShaderModule(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().DestroyShaderModule(gomock.Any(), gomock.Nil()).AnyTimes()
	h.Driver.EXPECT().CreatePipelineLayout(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.PipelineLayoutCreateInfo) (core1_0.PipelineLayout, common.VkResult, error) {
			h.PipelineLayouts = append(h.PipelineLayouts, o)
			return mocks.NewDummyPipelineLayout(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().CreateGraphicsPipelines(gomock.Nil(), gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *core1_0.PipelineCache, _ *loader.AllocationCallbacks, o ...core1_0.GraphicsPipelineCreateInfo) ([]core1_0.Pipeline, common.VkResult, error) {
			h.Graphics = append(h.Graphics, o...)
			return []core1_0.Pipeline{mocks.NewDummyPipeline(h.Device)}, core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().CreateComputePipelines(gomock.Nil(), gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *core1_0.PipelineCache, _ *loader.AllocationCallbacks, o ...core1_0.ComputePipelineCreateInfo) ([]core1_0.Pipeline, common.VkResult, error) {
			h.Computes = append(h.Computes, o...)
			return []core1_0.Pipeline{mocks.NewDummyPipeline(h.Device)}, core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().DestroyPipeline(gomock.Any(), gomock.Nil()).AnyTimes()
	h.Driver.EXPECT().DestroyPipelineLayout(gomock.Any(), gomock.Nil()).AnyTimes()
	h.Driver.EXPECT().CreateRenderPass(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.RenderPassCreateInfo) (core1_0.RenderPass, common.VkResult, error) {
			h.RenderPasses = append(h.RenderPasses, o)
			return mocks.NewDummyRenderPass(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().DestroyRenderPass(gomock.Any(), gomock.Nil()).AnyTimes()
	h.Driver.EXPECT().CreateFramebuffer(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.FramebufferCreateInfo) (core1_0.Framebuffer, common.VkResult, error) {
			h.Framebuffers = append(h.Framebuffers, o)
			return mocks.NewDummyFramebuffer(h.Device), core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().DestroyFramebuffer(gomock.Any(), gomock.Nil()).AnyTimes()
}

// ExpectAll is the common setup for code that creates resources.
func (h *Harness) ExpectAll() {
	h.ExpectOneShots()
	h.ExpectMemory()
	h.ExpectBuffers()
	h.ExpectImages()
	h.ExpectBarriers()
}

// Memory returns the host backing store of an allocation.
func (h *Harness) Memory(memory core1_0.DeviceMemory) []byte {
	return h.memory[memory.Handle()]
}
