package resource

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// Transition names one of the fixed layout changes an Image supports.
type Transition int

const (
	ToShaderRead Transition = iota
	ToPresent
	ToStorageWrite
	ToStorageReadWrite
	ToTransferSrc
	ToTransferDst
)

func (t Transition) String() string {
	switch t {
	case ToShaderRead:
		return "shader read"
	case ToPresent:
		return "present"
	case ToStorageWrite:
		return "storage write"
	case ToStorageReadWrite:
		return "storage read/write"
	case ToTransferSrc:
		return "transfer src"
	case ToTransferDst:
		return "transfer dst"
	}
	return "unknown"
}

// BarrierTarget is the destination half of a layout transition barrier.
// The source access mask is always empty.
type BarrierTarget struct {
	Layout    core1_0.ImageLayout
	DstAccess core1_0.AccessFlags
	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
}

func (t Transition) Target() BarrierTarget {
	switch t {
	case ToShaderRead:
		return BarrierTarget{
			Layout:    core1_0.ImageLayoutShaderReadOnlyOptimal,
			DstAccess: core1_0.AccessShaderRead,
			SrcStage:  core1_0.PipelineStageColorAttachmentOutput,
			DstStage:  core1_0.PipelineStageFragmentShader,
		}
	case ToPresent:
		return BarrierTarget{
			Layout:    khr_swapchain.ImageLayoutPresentSrc,
			DstAccess: core1_0.AccessColorAttachmentWrite,
			SrcStage:  core1_0.PipelineStageFragmentShader,
			DstStage:  core1_0.PipelineStageColorAttachmentOutput,
		}
	case ToStorageWrite:
		return BarrierTarget{
			Layout:    core1_0.ImageLayoutGeneral,
			DstAccess: core1_0.AccessShaderWrite,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageComputeShader,
		}
	case ToStorageReadWrite:
		return BarrierTarget{
			Layout:    core1_0.ImageLayoutGeneral,
			DstAccess: core1_0.AccessShaderWrite | core1_0.AccessShaderRead,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageComputeShader,
		}
	case ToTransferSrc:
		return BarrierTarget{
			Layout:    core1_0.ImageLayoutTransferSrcOptimal,
			DstAccess: core1_0.AccessTransferRead,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageTransfer,
		}
	case ToTransferDst:
		return BarrierTarget{
			Layout:    core1_0.ImageLayoutTransferDstOptimal,
			DstAccess: core1_0.AccessTransferWrite,
			SrcStage:  core1_0.PipelineStageTopOfPipe,
			DstStage:  core1_0.PipelineStageTransfer,
		}
	}
	panic("resource: unknown transition")
}
