// Package assets decodes texture files into tightly packed RGBA texels
// ready for upload.
package assets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/thinfilm/renderer/gpu"
	"github.com/vkngwrapper/core/v3/common"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// Pixels holds four channels per texel, 8-bit unsigned for LDR images and
// 32-bit floats in device byte order for HDR images.
type Pixels struct {
	Width  int
	Height int
	HDR    bool
	Data   []byte
}

// DecodeLDR decodes any registered 8-bit image format into RGBA8 texels.
func DecodeLDR(r io.Reader) (*Pixels, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	bounds := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	}

	return &Pixels{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   rgba.Pix,
	}, nil
}

// DecodeHDR decodes a Radiance RGBE image into RGBA32F texels with alpha 1.
func DecodeHDR(r io.Reader) (*Pixels, error) {
	src, err := rgbe.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode hdr image")
	}
	m, ok := src.(hdr.Image)
	if !ok {
		return nil, errors.Newf("decode hdr image: unexpected image type %T", src)
	}

	bounds := m.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	data := make([]byte, width*height*16)

	offset := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := m.HDRAt(x, y).HDRRGBA()
			for _, channel := range [4]float64{r, g, b, 1} {
				common.ByteOrder.PutUint32(data[offset:], math.Float32bits(float32(channel)))
				offset += 4
			}
		}
	}

	return &Pixels{
		Width:  width,
		Height: height,
		HDR:    true,
		Data:   data,
	}, nil
}

// IsHDR reports whether path names a Radiance file.
func IsHDR(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".hdr")
}

// Load decodes the file at path, choosing the decoder from its extension.
func Load(path string) (*Pixels, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	start := hrtime.Now()
	var pixels *Pixels
	if IsHDR(path) {
		pixels, err = DecodeHDR(file)
	} else {
		pixels, err = DecodeLDR(file)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}

	gpu.Logger().Debug("decode texture", "path", path, "width", pixels.Width, "height", pixels.Height, "elapsed", hrtime.Since(start))
	return pixels, nil
}
