package resource_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/resource"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestMaxMipLevel(t *testing.T) {
	cases := []struct {
		width, height int
		levels        int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{3, 3, 2},
		{16, 4, 5},
		{64, 64, 7},
		{512, 512, 7},
		{300, 150, 7},
		{0, 0, 1},
	}

	for _, c := range cases {
		require.Equal(t, c.levels, resource.MaxMipLevel(c.width, c.height), "%dx%d", c.width, c.height)
	}
}

func TestChannelSize(t *testing.T) {
	require.Equal(t, 3, resource.ChannelSize(core1_0.FormatR8G8B8SRGB))
	require.Equal(t, 4, resource.ChannelSize(core1_0.FormatR8G8B8A8SRGB))
	require.Equal(t, 4, resource.ChannelSize(core1_0.FormatR8G8B8A8UnsignedNormalized))
	require.Equal(t, 12, resource.ChannelSize(core1_0.FormatR32G32B32SignedFloat))
	require.Equal(t, 16, resource.ChannelSize(core1_0.FormatR32G32B32A32SignedFloat))
	require.Zero(t, resource.ChannelSize(core1_0.FormatD24UnsignedNormalizedS8UnsignedInt))
}
