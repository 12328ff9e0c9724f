package resource

import (
	"math/bits"

	"github.com/vkngwrapper/core/v3/core1_0"
)

const MaxMipLevels = 7

// MaxMipLevel returns floor(log2(max(width, height)))+1 capped at MaxMipLevels.
func MaxMipLevel(width, height int) int {
	largest := max(width, height, 1)
	return min(bits.Len(uint(largest)), MaxMipLevels)
}

// ChannelSize is the byte size of one texel of format, or 0 for formats the
// renderer never uploads from the host.
func ChannelSize(format core1_0.Format) int {
	switch format {
	case core1_0.FormatR8G8B8SRGB:
		return 3
	case core1_0.FormatR8G8B8A8SRGB, core1_0.FormatR8G8B8A8UnsignedNormalized:
		return 4
	case core1_0.FormatR32G32B32SignedFloat:
		return 12
	case core1_0.FormatR32G32B32A32SignedFloat:
		return 16
	}
	return 0
}
