package gpu_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/gpu/gputest"
	"github.com/thinfilm/renderer/settings"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestContext_FindMemoryType(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectMemory()

	index, err := h.Ctx.FindMemoryType(0b11, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	require.NoError(t, err)
	require.Equal(t, gputest.HostVisibleType, index)

	index, err = h.Ctx.FindMemoryType(0b11, core1_0.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	require.Equal(t, gputest.DeviceLocalType, index)
}

func TestContext_FindMemoryType_FilteredOut(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectMemory()

	_, err := h.Ctx.FindMemoryType(0b01, core1_0.MemoryPropertyHostVisible)
	require.True(t, errors.Is(err, gpu.ErrNoMemoryType))
}

func TestContext_ValidatorFollowsSettings(t *testing.T) {
	h := gputest.New(t, settings.Default())
	require.Nil(t, h.Ctx.Layouts)

	s := settings.Default()
	s.Validation = true
	h = gputest.New(t, s)
	require.NotNil(t, h.Ctx.Layouts)
}
