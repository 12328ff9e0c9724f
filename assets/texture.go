package assets

import (
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/resource"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Upload creates a sampled, mipmapped texture from pixels and leaves it in
// shader read layout. The caller owns the returned image.
func Upload(ctx *gpu.Context, name string, pixels *Pixels) (*resource.Image, error) {
	img := resource.NewImage(ctx, name)
	extent := core1_0.Extent2D{Width: pixels.Width, Height: pixels.Height}

	var err error
	if pixels.HDR {
		err = img.ConfigureHDRTexture(extent)
	} else {
		err = img.ConfigureTexture(extent)
	}
	if err != nil {
		return nil, err
	}

	err = img.SetPixels(pixels.Data)
	if err != nil {
		return nil, err
	}
	err = img.CreateWithSampler()
	if err != nil {
		img.Cleanup()
		return nil, err
	}
	err = img.UploadPixels()
	if err != nil {
		img.Cleanup()
		return nil, err
	}
	err = img.TransitionNow(resource.ToShaderRead)
	if err != nil {
		img.Cleanup()
		return nil, err
	}
	return img, nil
}

// LoadTexture is Load followed by Upload.
func LoadTexture(ctx *gpu.Context, path string) (*resource.Image, error) {
	pixels, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Upload(ctx, path, pixels)
}
