package resource_test

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/gpu/gputest"
	"github.com/thinfilm/renderer/resource"
	"github.com/thinfilm/renderer/settings"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/core/v3/mocks"
	"go.uber.org/mock/gomock"
)

func newBuffer(t *testing.T, h *gputest.Harness, size int, usage core1_0.BufferUsageFlags) *resource.Buffer {
	b := resource.NewBuffer(h.Ctx)
	require.NoError(t, b.Configure(size, usage))
	require.NoError(t, b.Allocate())
	return b
}

func TestBuffer_AllocateHostVisible(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectAll()

	b := newBuffer(t, h, 64, core1_0.BufferUsageUniformBuffer)
	require.Equal(t, resource.Ready, b.State())

	require.Len(t, h.Buffers, 1)
	require.Equal(t, 64, h.Buffers[0].Size)
	require.Equal(t, core1_0.BufferUsageUniformBuffer, h.Buffers[0].Usage)
	require.Len(t, h.Allocations, 1)
	require.Equal(t, gputest.HostVisibleType, h.Allocations[0].MemoryTypeIndex)

	require.Equal(t, core1_0.DescriptorBufferInfo{Buffer: b.Handle(), Offset: 0, Range: 64}, b.DescriptorInfo())
}

func TestBuffer_WriteRoundTrip(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectAll()

	b := newBuffer(t, h, 32, core1_0.BufferUsageUniformBuffer)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	end, err := b.Write(data, 8)
	require.NoError(t, err)
	require.NotZero(t, end)

	read, err := b.Read(8, len(data))
	require.NoError(t, err)
	require.Equal(t, data, read)

	_, err = b.Write(data, 8)
	require.NoError(t, err)
	read, err = b.Read(0, 24)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), read[:8])
	require.Equal(t, data, read[8:16])
}

func TestBuffer_WriteValue(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectAll()

	b := newBuffer(t, h, 8, core1_0.BufferUsageUniformBuffer)
	require.NoError(t, b.WriteValue([2]float32{1, 2}))

	read, err := b.Read(0, 8)
	require.NoError(t, err)
	require.Equal(t, math.Float32bits(2), common.ByteOrder.Uint32(read[4:]))
}

func TestBuffer_WriteOverflow(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectAll()

	b := newBuffer(t, h, 8, core1_0.BufferUsageUniformBuffer)
	_, err := b.Write(make([]byte, 4), 6)
	require.Error(t, err)
}

func TestBuffer_TypeState(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectAll()

	b := resource.NewBuffer(h.Ctx)
	_, err := b.Write([]byte{1}, 0)
	require.True(t, errors.Is(err, gpu.ErrNotReady))

	require.True(t, errors.Is(b.Allocate(), gpu.ErrNotReady))

	require.NoError(t, b.Configure(16, core1_0.BufferUsageUniformBuffer))
	require.True(t, errors.Is(b.Configure(16, core1_0.BufferUsageUniformBuffer), gpu.ErrAlreadyConfigured))

	_, err = b.Write([]byte{1}, 0)
	require.True(t, errors.Is(err, gpu.ErrNotReady))

	require.NoError(t, b.Allocate())
	_, err = b.Write([]byte{1}, 0)
	require.NoError(t, err)

	b.Cleanup()
	require.Equal(t, resource.Unconfigured, b.State())
	_, err = b.Write([]byte{1}, 0)
	require.True(t, errors.Is(err, gpu.ErrNotReady))
}

func TestBuffer_CopyFrom(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectAll()

	src := newBuffer(t, h, 32, core1_0.BufferUsageTransferSrc)
	dst := newBuffer(t, h, 32, core1_0.BufferUsageTransferDst|core1_0.BufferUsageVertexBuffer)

	h.Driver.EXPECT().CmdCopyBuffer(gomock.Any(), src.Handle(), dst.Handle(), core1_0.BufferCopy{Size: 32}).Return(nil)

	require.NoError(t, dst.CopyFrom(src, 32))
	require.Equal(t, 1, h.OneShots)
}

func TestBuffer_ClearFill(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectAll()

	b := newBuffer(t, h, 16, core1_0.BufferUsageStorageBuffer|core1_0.BufferUsageTransferDst)
	cb := h.CommandBuffer()
	h.Driver.EXPECT().CmdFillBuffer(cb, b.Handle(), 0, 16, math.Float32bits(0.5))

	require.NoError(t, b.ClearFill(cb, 0.5))
}

func TestBuffer_CleanupFreesMemoryFirst(t *testing.T) {
	h := gputest.New(t, settings.Default())

	buffer := mocks.NewDummyBuffer(h.Device)
	memory := mocks.NewDummyDeviceMemory(h.Device, 16)

	h.Instance.EXPECT().GetPhysicalDeviceMemoryProperties(h.Physical).Return(&core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
	})
	h.Driver.EXPECT().CreateBuffer(gomock.Nil(), gomock.Any()).Return(buffer, core1_0.VKSuccess, nil)
	h.Driver.EXPECT().GetBufferMemoryRequirements(buffer).Return(&core1_0.MemoryRequirements{Size: 16, MemoryTypeBits: 1})
	h.Driver.EXPECT().AllocateMemory(gomock.Nil(), core1_0.MemoryAllocateInfo{AllocationSize: 16, MemoryTypeIndex: 0}).
		DoAndReturn(func(*loader.AllocationCallbacks, core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error) {
			return memory, core1_0.VKSuccess, nil
		})
	h.Driver.EXPECT().BindBufferMemory(buffer, memory, 0).Return(core1_0.VKSuccess, nil)

	b := newBuffer(t, h, 16, core1_0.BufferUsageUniformBuffer)

	gomock.InOrder(
		h.Driver.EXPECT().FreeMemory(memory, gomock.Nil()),
		h.Driver.EXPECT().DestroyBuffer(buffer, gomock.Nil()),
	)
	b.Cleanup()
	b.Cleanup()
}

func TestBuffer_NoMemoryType(t *testing.T) {
	h := gputest.New(t, settings.Default())

	buffer := mocks.NewDummyBuffer(h.Device)
	h.Instance.EXPECT().GetPhysicalDeviceMemoryProperties(h.Physical).Return(&core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
		},
	})
	h.Driver.EXPECT().CreateBuffer(gomock.Nil(), gomock.Any()).Return(buffer, core1_0.VKSuccess, nil)
	h.Driver.EXPECT().GetBufferMemoryRequirements(buffer).Return(&core1_0.MemoryRequirements{Size: 16, MemoryTypeBits: 1})
	h.Driver.EXPECT().DestroyBuffer(buffer, gomock.Nil())

	b := resource.NewBuffer(h.Ctx)
	require.NoError(t, b.Configure(16, core1_0.BufferUsageUniformBuffer))
	require.True(t, errors.Is(b.Allocate(), gpu.ErrNoMemoryType))
	b.Cleanup()
}
