package settings_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/settings"
)

func TestDecode_OverlaysDefaults(t *testing.T) {
	s, err := settings.Decode(strings.NewReader(`
opd_samples = 256
r_samples = 64
total_lights = 6

[distance]
radius = 3.5
`))
	require.NoError(t, err)

	require.Equal(t, uint32(256), s.OPDSamples)
	require.Equal(t, uint32(64), s.RSamples)
	require.Equal(t, 6, s.TotalLights)
	require.Equal(t, float32(3.5), s.Distance.Radius)
	require.Equal(t, float32(5), s.Distance.Height)
	require.Equal(t, "rustediron", s.Material)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := settings.Decode(strings.NewReader(`bogus = 1`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := settings.Default()
	require.NoError(t, s.Validate())

	s.TotalLights = settings.MaxLights + 1
	require.Error(t, s.Validate())

	s = settings.Default()
	s.OPDSamples = 0
	require.Error(t, s.Validate())

	s = settings.Default()
	s.Material = ""
	require.Error(t, s.Validate())
}

func TestLoad_EmptyPath(t *testing.T) {
	s, err := settings.Load("")
	require.NoError(t, err)
	require.Equal(t, settings.Default(), s)
}

func TestClone(t *testing.T) {
	s := settings.Default()
	c := s.Clone()
	c.Iteration = 42
	require.Zero(t, s.Iteration)
}
