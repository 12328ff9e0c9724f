package interference_test

import (
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/gpu/gputest"
	"github.com/thinfilm/renderer/settings"
	"github.com/thinfilm/renderer/stage/interference"
	"github.com/vkngwrapper/core/v3/core1_0"
	"go.uber.org/mock/gomock"
)

func TestWorkgroupCount(t *testing.T) {
	cases := map[int]int{
		0:   1,
		1:   1,
		127: 1,
		128: 2,
		256: 3,
		512: 5,
	}
	for opd, want := range cases {
		require.Equal(t, want, interference.WorkgroupCount(opd), "opd samples %d", opd)
	}
}

func newStage(t *testing.T) (*gputest.Harness, *interference.Stage) {
	s := settings.Default()
	s.OPDSamples = 256
	s.RSamples = 64

	h := gputest.New(t, s)
	h.Ctx.Shaders = fstest.MapFS{
		interference.ShaderName: {Data: []byte{0x03, 0x02, 0x23, 0x07}},
	}
	h.ExpectAll()
	h.ExpectDescriptors()
	h.ExpectPipelines()
	return h, interference.New(h.Ctx)
}

func TestStage_Setup(t *testing.T) {
	h, stage := newStage(t)
	require.Equal(t, interference.Uninitialized, stage.Phase())

	require.NoError(t, stage.Setup())
	require.Equal(t, interference.Ready, stage.Phase())
	require.Equal(t, interference.PCMisc{OPDSamples: 256, RSamples: 64}, stage.Misc())

	require.Len(t, h.Images, 1)
	require.Equal(t, 256, h.Images[0].Extent.Width)
	require.Equal(t, 64, h.Images[0].Extent.Height)
	require.Equal(t, core1_0.ImageLayoutGeneral, stage.Output().Layout())

	require.Len(t, h.SetLayouts, 1)
	require.Equal(t, core1_0.DescriptorTypeStorageImage, h.SetLayouts[0].Bindings[0].DescriptorType)
	require.Equal(t, core1_0.StageCompute, h.SetLayouts[0].Bindings[0].StageFlags)

	require.Len(t, h.Writes, 1)
	require.Equal(t, core1_0.ImageLayoutGeneral, h.Writes[0].ImageInfo[0].ImageLayout)

	require.Len(t, h.PipelineLayouts, 1)
	require.Equal(t, []core1_0.PushConstantRange{{StageFlags: core1_0.StageCompute, Offset: 0, Size: 8}}, h.PipelineLayouts[0].PushConstantRanges)
	require.Len(t, h.Computes, 1)
	require.Equal(t, core1_0.StageCompute, h.Computes[0].Stage.Stage)

	err := stage.Setup()
	require.True(t, errors.Is(err, gpu.ErrAlreadyConfigured))

	stage.Cleanup()
	stage.Cleanup()
	require.Equal(t, interference.Uninitialized, stage.Phase())
}

func TestStage_Dispatch(t *testing.T) {
	h, stage := newStage(t)
	cb := h.CommandBuffer()

	err := stage.Dispatch(cb)
	require.True(t, errors.Is(err, gpu.ErrNotReady))
	_, err = stage.CopyOutputImage()
	require.True(t, errors.Is(err, gpu.ErrNotReady))

	require.NoError(t, stage.Setup())
	barriers := len(h.Barriers)

	gomock.InOrder(
		h.Driver.EXPECT().CmdPushConstants(cb, gomock.Any(), core1_0.StageCompute, 0, []byte{0, 1, 0, 0, 64, 0, 0, 0}),
		h.Driver.EXPECT().CmdBindPipeline(cb, core1_0.PipelineBindPointCompute, gomock.Any()),
		h.Driver.EXPECT().CmdBindDescriptorSets(cb, core1_0.PipelineBindPointCompute, gomock.Any(), 0, gomock.Len(1), gomock.Nil()),
		h.Driver.EXPECT().CmdDispatch(cb, 3, 64, 1),
	)

	require.NoError(t, stage.Dispatch(cb))
	require.Equal(t, interference.Dispatched, stage.Phase())
	require.Equal(t, core1_0.ImageLayoutTransferSrcOptimal, stage.Output().Layout())
	require.Len(t, h.Barriers, barriers+1)
	require.Equal(t, core1_0.ImageLayoutGeneral, h.Barriers[barriers].OldLayout)
	require.Equal(t, core1_0.ImageLayoutTransferSrcOptimal, h.Barriers[barriers].NewLayout)
}

func TestStage_DispatchAgainReturnsToGeneral(t *testing.T) {
	h, stage := newStage(t)
	require.NoError(t, stage.Setup())

	h.Driver.EXPECT().CmdPushConstants(gomock.Any(), gomock.Any(), core1_0.StageCompute, 0, gomock.Any()).Times(2)
	h.Driver.EXPECT().CmdBindPipeline(gomock.Any(), core1_0.PipelineBindPointCompute, gomock.Any()).Times(2)
	h.Driver.EXPECT().CmdBindDescriptorSets(gomock.Any(), core1_0.PipelineBindPointCompute, gomock.Any(), 0, gomock.Any(), gomock.Nil()).Times(2)
	h.Driver.EXPECT().CmdDispatch(gomock.Any(), 3, 64, 1).Times(2)

	oneShots := h.OneShots
	require.NoError(t, stage.DispatchOnce())
	require.Equal(t, oneShots+1, h.OneShots)

	barriers := len(h.Barriers)
	require.NoError(t, stage.DispatchOnce())
	require.Len(t, h.Barriers, barriers+2)
	require.Equal(t, core1_0.ImageLayoutTransferSrcOptimal, h.Barriers[barriers].OldLayout)
	require.Equal(t, core1_0.ImageLayoutGeneral, h.Barriers[barriers].NewLayout)
	require.Equal(t, core1_0.ImageLayoutTransferSrcOptimal, stage.Output().Layout())
}

func TestStage_CopyOutputImage(t *testing.T) {
	h, stage := newStage(t)
	require.NoError(t, stage.Setup())

	h.Driver.EXPECT().CmdPushConstants(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
	h.Driver.EXPECT().CmdBindPipeline(gomock.Any(), gomock.Any(), gomock.Any())
	h.Driver.EXPECT().CmdBindDescriptorSets(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
	h.Driver.EXPECT().CmdDispatch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any())
	require.NoError(t, stage.DispatchOnce())

	h.Driver.EXPECT().CmdCopyImage(gomock.Any(),
		stage.Output().Handle(), core1_0.ImageLayoutTransferSrcOptimal,
		gomock.Any(), core1_0.ImageLayoutTransferDstOptimal,
		gomock.Any(),
	).Return(nil)

	imageCopy, err := stage.CopyOutputImage()
	require.NoError(t, err)
	require.Len(t, h.Images, 2)
	require.Equal(t, stage.Output().Extent(), imageCopy.Extent())
	require.Equal(t, core1_0.ImageLayoutTransferDstOptimal, imageCopy.Layout())
	require.NotEqual(t, stage.Output().Handle(), imageCopy.Handle())

	imageCopy.Cleanup()
	stage.Cleanup()
}
