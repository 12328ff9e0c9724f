package assets_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/stretchr/testify/require"
	"github.com/thinfilm/renderer/assets"
	"github.com/thinfilm/renderer/gpu/gputest"
	"github.com/thinfilm/renderer/resource"
	"github.com/thinfilm/renderer/settings"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"go.uber.org/mock/gomock"
)

func encodePNG(t *testing.T, width, height int, fill color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestDecodeLDR(t *testing.T) {
	data := encodePNG(t, 3, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	pixels, err := assets.DecodeLDR(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 3, pixels.Width)
	require.Equal(t, 2, pixels.Height)
	require.False(t, pixels.HDR)
	require.Len(t, pixels.Data, 3*2*4)
	require.Equal(t, []byte{1, 2, 3, 255}, pixels.Data[:4])
	require.Equal(t, []byte{200, 100, 50, 255}, pixels.Data[4:8])

	_, err = assets.DecodeLDR(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}

func TestDecodeHDR(t *testing.T) {
	src := hdr.NewRGB(image.Rect(0, 0, 2, 1))
	src.SetRGB(0, 0, hdrcolor.RGB{R: 1, G: 0.5, B: 0.25})
	src.SetRGB(1, 0, hdrcolor.RGB{R: 4, G: 2, B: 1})

	buf := &bytes.Buffer{}
	require.NoError(t, rgbe.Encode(buf, src))

	pixels, err := assets.DecodeHDR(buf)
	require.NoError(t, err)
	require.True(t, pixels.HDR)
	require.Len(t, pixels.Data, 2*16)

	texel := func(i int) float32 {
		return math.Float32frombits(common.ByteOrder.Uint32(pixels.Data[i*4:]))
	}
	require.InDelta(t, 1, texel(0), 0.01)
	require.InDelta(t, 0.5, texel(1), 0.01)
	require.InDelta(t, 0.25, texel(2), 0.01)
	require.Equal(t, float32(1), texel(3))
	require.InDelta(t, 4, texel(4), 0.05)
}

func TestMaterialPaths(t *testing.T) {
	paths := assets.MaterialPaths("assets/pbr", "rustediron", ".png")
	require.Equal(t, []string{
		filepath.Join("assets/pbr", "rustediron", "rustediron_albedo.png"),
		filepath.Join("assets/pbr", "rustediron", "rustediron_ao.png"),
		filepath.Join("assets/pbr", "rustediron", "rustediron_metallic.png"),
		filepath.Join("assets/pbr", "rustediron", "rustediron_normal.png"),
		filepath.Join("assets/pbr", "rustediron", "rustediron_roughness.png"),
	}, paths)
}

func TestLoadMaterial(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gold"), 0o755))
	for i, path := range assets.MaterialPaths(dir, "gold", assets.DefaultExt) {
		data := encodePNG(t, i+1, 1, color.NRGBA{A: 255})
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}

	maps, err := assets.LoadMaterial(dir, "gold")
	require.NoError(t, err)
	require.Len(t, maps, len(assets.MaterialMaps))
	for i, m := range maps {
		require.Equal(t, i+1, m.Width)
	}

	require.NoError(t, os.Remove(assets.MaterialPaths(dir, "gold", assets.DefaultExt)[3]))
	_, err = assets.LoadMaterial(dir, "gold")
	require.ErrorContains(t, err, "gold_normal.png")

	_, err = assets.LoadMaterial(dir, "")
	require.Error(t, err)
}

func TestIsHDR(t *testing.T) {
	require.True(t, assets.IsHDR("env/sky.HDR"))
	require.False(t, assets.IsHDR("env/sky.png"))
}

func TestUpload(t *testing.T) {
	h := gputest.New(t, settings.Default())
	h.ExpectAll()
	h.ExpectFormat(resource.TextureFormat, core1_0.FormatFeatureSampledImageFilterLinear)
	h.Driver.EXPECT().CmdCopyBufferToImage(gomock.Any(), gomock.Any(), gomock.Any(), core1_0.ImageLayoutTransferDstOptimal, gomock.Any()).Return(nil)
	h.Driver.EXPECT().CmdBlitImage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	pixels := &assets.Pixels{Width: 4, Height: 4, Data: make([]byte, 4*4*4)}
	img, err := assets.Upload(h.Ctx, "albedo", pixels)
	require.NoError(t, err)

	require.Equal(t, resource.PurposeTexture, img.Purpose())
	require.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, img.Layout())
	require.Len(t, h.Samplers, 1)
	require.Equal(t, 2, h.OneShots)
}

func TestUploadRejectsShortPixels(t *testing.T) {
	h := gputest.New(t, settings.Default())

	_, err := assets.Upload(h.Ctx, "short", &assets.Pixels{Width: 4, Height: 4, Data: make([]byte, 8)})
	require.Error(t, err)
}
