package descriptor_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/descriptor"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/gpu/gputest"
	"github.com/thinfilm/renderer/settings"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
	"github.com/vkngwrapper/core/v3/mocks"
	"go.uber.org/mock/gomock"
)

const vertexFragment = core1_0.StageVertex | core1_0.StageFragment

func TestPoolSizes(t *testing.T) {
	sizes := descriptor.PoolSizes(
		[]descriptor.Binding{{Index: 0, Type: core1_0.DescriptorTypeUniformBuffer, Count: 1}},
		[]descriptor.Binding{{Index: 0, Type: core1_0.DescriptorTypeUniformBuffer, Count: 1}},
		[]descriptor.Binding{
			{Index: 0, Type: core1_0.DescriptorTypeCombinedImageSampler, Count: 1},
			{Index: 1, Type: core1_0.DescriptorTypeCombinedImageSampler, Count: 4},
		},
		[]descriptor.Binding{{Index: 0, Type: core1_0.DescriptorTypeStorageImage, Count: 1}},
	)

	require.Equal(t, []core1_0.DescriptorPoolSize{
		{Type: core1_0.DescriptorTypeUniformBuffer, DescriptorCount: 2},
		{Type: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: 5},
		{Type: core1_0.DescriptorTypeStorageImage, DescriptorCount: 1},
	}, sizes)

	require.Empty(t, descriptor.PoolSizes())
}

type fixture struct {
	h       *gputest.Harness
	layouts []core1_0.DescriptorSetLayout
	pool    core1_0.DescriptorPool
}

func newFixture(t *testing.T) *fixture {
	h := gputest.New(t, settings.Default())
	f := &fixture{h: h, pool: mocks.NewDummyDescriptorPool(h.Device)}

	h.Driver.EXPECT().CreateDescriptorSetLayout(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ *loader.AllocationCallbacks, o core1_0.DescriptorSetLayoutCreateInfo) (core1_0.DescriptorSetLayout, common.VkResult, error) {
			layout := mocks.NewDummyDescriptorSetLayout(h.Device)
			f.layouts = append(f.layouts, layout)
			return layout, core1_0.VKSuccess, nil
		}).AnyTimes()
	h.Driver.EXPECT().AllocateDescriptorSets(gomock.Any()).DoAndReturn(
		func(o core1_0.DescriptorSetAllocateInfo) ([]core1_0.DescriptorSet, common.VkResult, error) {
			require.Equal(t, f.pool, o.DescriptorPool)
			require.Len(t, o.SetLayouts, 1)
			return []core1_0.DescriptorSet{mocks.NewDummyDescriptorSet(f.pool, h.Device)}, core1_0.VKSuccess, nil
		}).AnyTimes()
	return f
}

func sceneLayouts(t *testing.T, g *descriptor.Group) {
	for _, slot := range []descriptor.Slot{descriptor.S0, descriptor.S1} {
		require.NoError(t, g.BeginLayout(slot))
		require.NoError(t, g.AddBinding(slot, 0, core1_0.DescriptorTypeUniformBuffer, vertexFragment))
		require.NoError(t, g.FinalizeLayout(slot))
	}

	require.NoError(t, g.BeginLayout(descriptor.S2))
	for i := 0; i < 5; i++ {
		require.NoError(t, g.AddBinding(descriptor.S2, i, core1_0.DescriptorTypeCombinedImageSampler, core1_0.StageFragment))
	}
	require.NoError(t, g.FinalizeLayout(descriptor.S2))

	for _, slot := range []descriptor.Slot{descriptor.S3, descriptor.S4} {
		require.NoError(t, g.BeginLayout(slot))
		require.NoError(t, g.AddBinding(slot, 0, core1_0.DescriptorTypeCombinedImageSampler, vertexFragment))
		require.NoError(t, g.FinalizeLayout(slot))
	}
}

func TestGroup_PoolCoversEveryLayout(t *testing.T) {
	f := newFixture(t)
	g := descriptor.NewGroup(f.h.Ctx, "scene")
	sceneLayouts(t, g)

	f.h.Driver.EXPECT().CreateDescriptorPool(gomock.Nil(), core1_0.DescriptorPoolCreateInfo{
		MaxSets: 5,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{Type: core1_0.DescriptorTypeUniformBuffer, DescriptorCount: 2},
			{Type: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: 7},
		},
	}).Return(f.pool, core1_0.VKSuccess, nil)

	require.NoError(t, g.CreatePool())
	require.NoError(t, g.AllocateAll())
	require.Equal(t, f.layouts, g.Layouts())
	require.Len(t, g.Sets(descriptor.S0, descriptor.S4), 5)
	for _, s := range g.Sets(descriptor.S0, descriptor.S4) {
		require.True(t, s.Initialized())
	}

	err := g.BeginLayout(descriptor.S4)
	require.True(t, errors.Is(err, gpu.ErrPoolCreated))
	require.True(t, errors.Is(g.CreatePool(), gpu.ErrPoolCreated))

	gomock.InOrder(
		f.h.Driver.EXPECT().DestroyDescriptorPool(f.pool, gomock.Nil()),
		f.h.Driver.EXPECT().DestroyDescriptorSetLayout(f.layouts[4], gomock.Nil()),
		f.h.Driver.EXPECT().DestroyDescriptorSetLayout(f.layouts[3], gomock.Nil()),
		f.h.Driver.EXPECT().DestroyDescriptorSetLayout(f.layouts[2], gomock.Nil()),
		f.h.Driver.EXPECT().DestroyDescriptorSetLayout(f.layouts[1], gomock.Nil()),
		f.h.Driver.EXPECT().DestroyDescriptorSetLayout(f.layouts[0], gomock.Nil()),
	)
	g.Cleanup()
	g.Cleanup()
	require.Empty(t, g.Layouts())
}

func TestGroup_Misuse(t *testing.T) {
	f := newFixture(t)
	f.h.Driver.EXPECT().DestroyDescriptorSetLayout(gomock.Any(), gomock.Nil()).AnyTimes()
	g := descriptor.NewGroup(f.h.Ctx, "misuse")

	require.Error(t, g.AddBinding(descriptor.S0, 0, core1_0.DescriptorTypeStorageImage, core1_0.StageCompute))
	require.Error(t, g.FinalizeLayout(descriptor.S0))
	require.Error(t, g.BeginLayout(descriptor.Slot(7)))
	require.Error(t, g.CreatePool())

	require.NoError(t, g.BeginLayout(descriptor.S0))
	require.Error(t, g.BeginLayout(descriptor.S0))
	require.NoError(t, g.AddBinding(descriptor.S0, 0, core1_0.DescriptorTypeStorageImage, core1_0.StageCompute))
	require.Error(t, g.AddBinding(descriptor.S0, 0, core1_0.DescriptorTypeStorageImage, core1_0.StageCompute))
	require.Error(t, g.CreatePool())

	err := g.Allocate(descriptor.S0)
	require.True(t, errors.Is(err, gpu.ErrNotReady))

	require.NoError(t, g.FinalizeLayout(descriptor.S0))
	err = g.BindImage(descriptor.S0, 0, core1_0.DescriptorImageInfo{})
	require.True(t, errors.Is(err, gpu.ErrNotReady))

	g.Cleanup()
}

func TestGroup_BindAndFlush(t *testing.T) {
	f := newFixture(t)
	f.h.Driver.EXPECT().CreateDescriptorPool(gomock.Nil(), gomock.Any()).Return(f.pool, core1_0.VKSuccess, nil)
	f.h.Driver.EXPECT().DestroyDescriptorPool(gomock.Any(), gomock.Nil())
	f.h.Driver.EXPECT().DestroyDescriptorSetLayout(gomock.Any(), gomock.Nil()).Times(2)

	g := descriptor.NewGroup(f.h.Ctx, "bind")
	require.NoError(t, g.BeginLayout(descriptor.S0))
	require.NoError(t, g.AddBinding(descriptor.S0, 0, core1_0.DescriptorTypeUniformBuffer, vertexFragment))
	require.NoError(t, g.FinalizeLayout(descriptor.S0))
	require.NoError(t, g.BeginLayout(descriptor.S1))
	require.NoError(t, g.AddBinding(descriptor.S1, 0, core1_0.DescriptorTypeCombinedImageSampler, core1_0.StageFragment))
	require.NoError(t, g.FinalizeLayout(descriptor.S1))
	require.NoError(t, g.CreatePool())
	require.NoError(t, g.Allocate(descriptor.S0))
	require.NoError(t, g.Allocate(descriptor.S1))
	require.Error(t, g.Allocate(descriptor.S1))

	bufferInfo := core1_0.DescriptorBufferInfo{Buffer: mocks.NewDummyBuffer(f.h.Device), Range: 64}
	imageInfo := core1_0.DescriptorImageInfo{
		ImageView:   mocks.NewDummyImageView(f.h.Device),
		Sampler:     mocks.NewDummySampler(f.h.Device),
		ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
	}

	require.NoError(t, g.BindBuffer(descriptor.S0, 0, bufferInfo))
	require.Error(t, g.BindBuffer(descriptor.S0, 3, bufferInfo))
	require.NoError(t, g.BindImage(descriptor.S1, 0, imageInfo))
	require.Equal(t, 1, g.Pending(descriptor.S0))

	f.h.Driver.EXPECT().UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:         g.Set(descriptor.S0),
			DstBinding:     0,
			DescriptorType: core1_0.DescriptorTypeUniformBuffer,
			BufferInfo:     []core1_0.DescriptorBufferInfo{bufferInfo},
		},
	}, gomock.Nil()).Return(nil)
	require.NoError(t, g.Flush(descriptor.S0))
	require.Zero(t, g.Pending(descriptor.S0))
	require.NoError(t, g.Flush(descriptor.S0))

	f.h.Driver.EXPECT().UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:         g.Set(descriptor.S1),
			DstBinding:     0,
			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,
			ImageInfo:      []core1_0.DescriptorImageInfo{imageInfo},
		},
	}, gomock.Nil()).Return(nil)
	require.NoError(t, g.Flush(descriptor.S1))

	g.Cleanup()
}
