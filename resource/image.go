package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/thinfilm/renderer/gpu"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Purpose is what an Image was configured for.
type Purpose int

const (
	PurposeNone Purpose = iota
	PurposeDepth
	PurposeColor
	PurposeStorage
	PurposeSwapchain
	PurposeTexture
	PurposeHDRTexture
	PurposeCubemap
)

func (p Purpose) String() string {
	switch p {
	case PurposeDepth:
		return "depth"
	case PurposeColor:
		return "color"
	case PurposeStorage:
		return "storage"
	case PurposeSwapchain:
		return "swapchain"
	case PurposeTexture:
		return "texture"
	case PurposeHDRTexture:
		return "hdr texture"
	case PurposeCubemap:
		return "cubemap"
	}
	return "none"
}

const (
	DepthFormat   = core1_0.FormatD24UnsignedNormalizedS8UnsignedInt
	ColorFormat   = core1_0.FormatR8G8B8A8UnsignedNormalized
	TextureFormat = core1_0.FormatR8G8B8A8SRGB
	HDRFormat     = core1_0.FormatR32G32B32A32SignedFloat

	CubemapLayers = 6
	maxAnisotropy = 16
)

// Image is a 2D or cube image with one view per mip level and a tracked
// layout. Exactly one Configure call is accepted per lifetime.
type Image struct {
	ctx     *gpu.Context
	id      uuid.UUID
	name    string
	state   State
	cleaner gpu.Cleaner

	purpose  Purpose
	info     core1_0.ImageCreateInfo
	viewType core1_0.ImageViewType
	aspect   core1_0.ImageAspectFlags

	image   core1_0.Image
	memory  core1_0.DeviceMemory
	views   []core1_0.ImageView
	sampler core1_0.Sampler
	layout  core1_0.ImageLayout

	pixels []byte
}

func NewImage(ctx *gpu.Context, name string) *Image {
	return &Image{ctx: ctx, id: uuid.New(), name: name}
}

func defaultImageInfo(extent core1_0.Extent2D) core1_0.ImageCreateInfo {
	return core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingOptimal,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	}
}

func (i *Image) configure(purpose Purpose, info core1_0.ImageCreateInfo, aspect core1_0.ImageAspectFlags) error {
	if err := i.state.require(Unconfigured, "configure "+purpose.String()+" image"); err != nil {
		return err
	}
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		return errors.Newf("configure %s image: empty extent %dx%d", purpose, info.Extent.Width, info.Extent.Height)
	}

	i.purpose = purpose
	i.info = info
	i.aspect = aspect
	i.viewType = core1_0.ImageViewType2D
	i.layout = info.InitialLayout
	i.state = Configured
	return nil
}

func (i *Image) ConfigureDepth(extent core1_0.Extent2D) error {
	info := defaultImageInfo(extent)
	info.Format = DepthFormat
	info.Usage = core1_0.ImageUsageDepthStencilAttachment | core1_0.ImageUsageTransferSrc | core1_0.ImageUsageSampled
	return i.configure(PurposeDepth, info, core1_0.ImageAspectDepth)
}

func (i *Image) ConfigureColor(extent core1_0.Extent2D) error {
	info := defaultImageInfo(extent)
	info.Format = ColorFormat
	info.Usage = core1_0.ImageUsageColorAttachment | core1_0.ImageUsageTransferSrc | core1_0.ImageUsageSampled
	return i.configure(PurposeColor, info, core1_0.ImageAspectColor)
}

func (i *Image) ConfigureStorage(extent core1_0.Extent2D) error {
	info := defaultImageInfo(extent)
	info.Format = ColorFormat
	info.Usage = core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageStorage | core1_0.ImageUsageSampled
	return i.configure(PurposeStorage, info, core1_0.ImageAspectColor)
}

// ConfigureSwapchain wraps an image owned by a swapchain. Only views are
// created for it and Cleanup never destroys the image itself.
func (i *Image) ConfigureSwapchain(image core1_0.Image, format core1_0.Format, extent core1_0.Extent2D) error {
	if !image.Initialized() {
		return errors.New("configure swapchain image: null image handle")
	}

	info := defaultImageInfo(extent)
	info.Format = format
	info.Usage = core1_0.ImageUsageColorAttachment
	err := i.configure(PurposeSwapchain, info, core1_0.ImageAspectColor)
	if err != nil {
		return err
	}
	i.image = image
	return nil
}

func (i *Image) ConfigureTexture(extent core1_0.Extent2D) error {
	info := defaultImageInfo(extent)
	info.Format = TextureFormat
	info.MipLevels = MaxMipLevel(extent.Width, extent.Height)
	info.Usage = core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled
	return i.configure(PurposeTexture, info, core1_0.ImageAspectColor)
}

func (i *Image) ConfigureHDRTexture(extent core1_0.Extent2D) error {
	info := defaultImageInfo(extent)
	info.Format = HDRFormat
	info.MipLevels = MaxMipLevel(extent.Width, extent.Height)
	info.Usage = core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageStorage | core1_0.ImageUsageSampled
	return i.configure(PurposeHDRTexture, info, core1_0.ImageAspectColor)
}

func (i *Image) ConfigureCubemap(extent core1_0.Extent2D) error {
	info := defaultImageInfo(extent)
	info.Format = HDRFormat
	info.Flags = core1_0.ImageCreateCubeCompatible
	info.ArrayLayers = CubemapLayers
	info.Usage = core1_0.ImageUsageColorAttachment | core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst | core1_0.ImageUsageStorage | core1_0.ImageUsageSampled
	err := i.configure(PurposeCubemap, info, core1_0.ImageAspectColor)
	if err != nil {
		return err
	}
	i.viewType = core1_0.ImageViewTypeCube
	return nil
}

// SetPixels attaches host texel data for UploadPixels. Its length must match
// DeviceSize.
func (i *Image) SetPixels(data []byte) error {
	if i.state == Unconfigured {
		return errors.Wrap(gpu.ErrNotReady, "set pixels: image is unconfigured")
	}
	if len(data) != i.DeviceSize() {
		return errors.Newf("set pixels on %s: got %d bytes, need %d", i.name, len(data), i.DeviceSize())
	}
	i.pixels = data
	return nil
}

// Create allocates the image, its memory and its views.
func (i *Image) Create() error {
	if err := i.state.require(Configured, "create image "+i.name); err != nil {
		return err
	}

	if i.purpose != PurposeSwapchain {
		if err := i.allocate(); err != nil {
			return err
		}
	}
	i.state = Allocated

	if err := i.createViews(); err != nil {
		return err
	}
	i.state = Ready
	i.ctx.Layouts.Observe(i.image, i.name, i.layout)

	gpu.Logger().Debug("create image",
		"name", i.name, "id", i.id, "purpose", i.purpose.String(),
		"width", i.info.Extent.Width, "height", i.info.Extent.Height,
		"mips", i.info.MipLevels, "layers", i.info.ArrayLayers)
	return nil
}

// CreateWithSampler is Create plus a linear, repeating, anisotropic sampler.
func (i *Image) CreateWithSampler() error {
	if err := i.Create(); err != nil {
		return err
	}
	return i.createSampler()
}

func (i *Image) allocate() error {
	driver := i.ctx.Driver

	image, _, err := driver.CreateImage(nil, i.info)
	if err != nil {
		return errors.Wrapf(err, "create image %s", i.name)
	}
	i.image = image
	i.cleaner.Push(func() {
		i.ctx.Layouts.Forget(image)
		driver.DestroyImage(image, nil)
	})

	memReqs := driver.GetImageMemoryRequirements(image)
	memoryIndex, err := i.ctx.FindMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return errors.Wrapf(err, "allocate image memory %s", i.name)
	}

	memory, _, err := driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		return errors.Wrapf(err, "allocate image memory %s", i.name)
	}
	i.memory = memory
	i.cleaner.Push(func() { driver.FreeMemory(memory, nil) })

	_, err = driver.BindImageMemory(image, memory, 0)
	if err != nil {
		return errors.Wrapf(err, "bind image memory %s", i.name)
	}
	return nil
}

func (i *Image) createViews() error {
	driver := i.ctx.Driver
	mips := i.info.MipLevels

	for level := 0; level < mips; level++ {
		view, _, err := driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    i.image,
			ViewType: i.viewType,
			Format:   i.info.Format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     i.aspect,
				BaseMipLevel:   level,
				LevelCount:     mips - level,
				BaseArrayLayer: 0,
				LayerCount:     i.info.ArrayLayers,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "create image view %s level %d", i.name, level)
		}
		i.views = append(i.views, view)
		i.cleaner.Push(func() { driver.DestroyImageView(view, nil) })
	}
	return nil
}

func (i *Image) createSampler() error {
	driver := i.ctx.Driver

	sampler, _, err := driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: true,
		MaxAnisotropy:    maxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		CompareEnable: false,
		CompareOp:     core1_0.CompareOpAlways,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     float32(i.info.MipLevels),
	})
	if err != nil {
		return errors.Wrapf(err, "create sampler %s", i.name)
	}
	i.sampler = sampler
	i.cleaner.Push(func() { driver.DestroySampler(sampler, nil) })
	return nil
}

func (i *Image) fullRange() core1_0.ImageSubresourceRange {
	return core1_0.ImageSubresourceRange{
		AspectMask:     i.aspect,
		BaseMipLevel:   0,
		LevelCount:     i.info.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     i.info.ArrayLayers,
	}
}

func (i *Image) baseLayers() core1_0.ImageSubresourceLayers {
	return core1_0.ImageSubresourceLayers{
		AspectMask:     i.aspect,
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     i.info.ArrayLayers,
	}
}

// Transition records a barrier moving the image from its tracked layout to
// the layout of t, then tracks the new layout. It does not check that the
// move is legal.
func (i *Image) Transition(cb core1_0.CommandBuffer, t Transition) error {
	if err := i.state.require(Ready, "transition "+i.name); err != nil {
		return err
	}

	target := t.Target()
	err := i.ctx.Layouts.Transition(i.image, i.name, i.layout, target.Layout)
	if err != nil {
		return err
	}

	err = i.ctx.Driver.CmdPipelineBarrier(cb, target.SrcStage, target.DstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			SrcAccessMask:       0,
			DstAccessMask:       target.DstAccess,
			OldLayout:           i.layout,
			NewLayout:           target.Layout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               i.image,
			SubresourceRange:    i.fullRange(),
		},
	})
	if err != nil {
		return errors.Wrapf(err, "transition %s to %s", i.name, t)
	}

	i.layout = target.Layout
	return nil
}

// TransitionNow submits Transition on its own and waits for it.
func (i *Image) TransitionNow(t Transition) error {
	return i.ctx.Commander.Run(func(cb core1_0.CommandBuffer) error {
		return i.Transition(cb, t)
	})
}

// SetLayout tracks a layout change made outside a barrier, such as the final
// layout of a render pass attachment.
func (i *Image) SetLayout(layout core1_0.ImageLayout) {
	i.layout = layout
	if i.state == Ready {
		i.ctx.Layouts.Observe(i.image, i.name, layout)
	}
}

// UploadPixels copies the attached pixels into mip 0 through a staging buffer,
// generates the remaining mips and leaves every level in transfer dst layout.
func (i *Image) UploadPixels() error {
	if err := i.state.require(Ready, "upload pixels "+i.name); err != nil {
		return err
	}
	if i.pixels == nil {
		return errors.Newf("upload pixels %s: no pixels attached", i.name)
	}

	staging := NewBuffer(i.ctx)
	defer staging.Cleanup()

	err := staging.Configure(len(i.pixels), core1_0.BufferUsageTransferSrc)
	if err != nil {
		return err
	}
	err = staging.Allocate()
	if err != nil {
		return err
	}
	_, err = staging.Write(i.pixels, 0)
	if err != nil {
		return err
	}

	return i.ctx.Commander.Run(func(cb core1_0.CommandBuffer) error {
		err := i.Transition(cb, ToTransferDst)
		if err != nil {
			return err
		}

		err = i.ctx.Driver.CmdCopyBufferToImage(cb, staging.Handle(), i.image, core1_0.ImageLayoutTransferDstOptimal,
			core1_0.BufferImageCopy{
				BufferOffset:      0,
				BufferRowLength:   0,
				BufferImageHeight: 0,

				ImageSubresource: i.baseLayers(),
				ImageOffset:      core1_0.Offset3D{X: 0, Y: 0, Z: 0},
				ImageExtent:      i.info.Extent,
			},
		)
		if err != nil {
			return errors.Wrapf(err, "copy pixels into %s", i.name)
		}

		if i.info.MipLevels > 1 {
			return i.GenerateMipmaps(cb)
		}
		return nil
	})
}

// GenerateMipmaps records successive half-size blits from level n-1 to n.
// The image must be in transfer dst layout and stays there.
func (i *Image) GenerateMipmaps(cb core1_0.CommandBuffer) error {
	if err := i.state.require(Ready, "generate mipmaps "+i.name); err != nil {
		return err
	}

	properties := i.ctx.FormatProperties(i.info.Format)
	if (properties.OptimalTilingFeatures & core1_0.FormatFeatureSampledImageFilterLinear) == 0 {
		return errors.Wrapf(gpu.ErrLinearBlit, "generate mipmaps %s: format %s", i.name, i.info.Format)
	}
	if i.layout != core1_0.ImageLayoutTransferDstOptimal {
		return errors.Newf("generate mipmaps %s: image is in %s", i.name, i.layout)
	}

	barrier := core1_0.ImageMemoryBarrier{
		Image:               i.image,
		SrcQueueFamilyIndex: -1,
		DstQueueFamilyIndex: -1,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     i.aspect,
			BaseArrayLayer: 0,
			LayerCount:     i.info.ArrayLayers,
			LevelCount:     1,
		},
	}

	mipWidth := i.info.Extent.Width
	mipHeight := i.info.Extent.Height
	for level := 1; level < i.info.MipLevels; level++ {
		barrier.SubresourceRange.BaseMipLevel = level - 1
		barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
		barrier.NewLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferWrite
		barrier.DstAccessMask = core1_0.AccessTransferRead

		err := i.ctx.Driver.CmdPipelineBarrier(cb, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return errors.Wrapf(err, "mip barrier %s level %d", i.name, level-1)
		}

		nextMipWidth := max(mipWidth/2, 1)
		nextMipHeight := max(mipHeight/2, 1)

		src := i.baseLayers()
		src.MipLevel = level - 1
		dst := i.baseLayers()
		dst.MipLevel = level

		err = i.ctx.Driver.CmdBlitImage(cb, i.image, core1_0.ImageLayoutTransferSrcOptimal, i.image, core1_0.ImageLayoutTransferDstOptimal, []core1_0.ImageBlit{
			{
				SrcSubresource: src,
				SrcOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: mipWidth, Y: mipHeight, Z: 1},
				},
				DstSubresource: dst,
				DstOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: nextMipWidth, Y: nextMipHeight, Z: 1},
				},
			},
		}, core1_0.FilterLinear)
		if err != nil {
			return errors.Wrapf(err, "blit %s level %d", i.name, level)
		}

		barrier.OldLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.NewLayout = core1_0.ImageLayoutTransferDstOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferRead
		barrier.DstAccessMask = core1_0.AccessTransferWrite

		err = i.ctx.Driver.CmdPipelineBarrier(cb, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return errors.Wrapf(err, "mip barrier %s level %d", i.name, level-1)
		}

		mipWidth = nextMipWidth
		mipHeight = nextMipHeight
	}
	return nil
}

// ClearColor fills every level with color and waits for it.
func (i *Image) ClearColor(color [4]float32) error {
	return i.ctx.Commander.Run(func(cb core1_0.CommandBuffer) error {
		err := i.Transition(cb, ToTransferDst)
		if err != nil {
			return err
		}

		i.ctx.Driver.CmdClearColorImage(cb, i.image, core1_0.ImageLayoutTransferDstOptimal, core1_0.ClearValueFloat(color), i.fullRange())
		return nil
	})
}

// CopyFrom records a copy of mip 0 of src into i using both tracked layouts.
func (i *Image) CopyFrom(cb core1_0.CommandBuffer, src *Image) error {
	if err := i.state.require(Ready, "copy into "+i.name); err != nil {
		return err
	}
	if err := src.state.require(Ready, "copy from "+src.name); err != nil {
		return err
	}

	err := i.ctx.Layouts.Expect(src.image, core1_0.ImageLayoutTransferSrcOptimal, "copy from "+src.name)
	if err != nil {
		return err
	}
	err = i.ctx.Layouts.Expect(i.image, core1_0.ImageLayoutTransferDstOptimal, "copy into "+i.name)
	if err != nil {
		return err
	}

	err = i.ctx.Driver.CmdCopyImage(cb, src.image, src.layout, i.image, i.layout,
		core1_0.ImageCopy{
			SrcSubresource: src.baseLayers(),
			SrcOffset:      core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			DstSubresource: i.baseLayers(),
			DstOffset:      core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			Extent:         src.info.Extent,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "copy %s into %s", src.name, i.name)
	}
	return nil
}

// DescriptorInfo describes view level with the sampler and current layout.
func (i *Image) DescriptorInfo(level int) core1_0.DescriptorImageInfo {
	return core1_0.DescriptorImageInfo{
		Sampler:     i.sampler,
		ImageView:   i.views[level],
		ImageLayout: i.layout,
	}
}

func (i *Image) DescriptorInfos() []core1_0.DescriptorImageInfo {
	infos := make([]core1_0.DescriptorImageInfo, len(i.views))
	for level := range i.views {
		infos[level] = i.DescriptorInfo(level)
	}
	return infos
}

func (i *Image) Handle() core1_0.Image            { return i.image }
func (i *Image) View(level int) core1_0.ImageView { return i.views[level] }
func (i *Image) Views() []core1_0.ImageView       { return i.views }
func (i *Image) Sampler() core1_0.Sampler         { return i.sampler }
func (i *Image) Layout() core1_0.ImageLayout      { return i.layout }
func (i *Image) Format() core1_0.Format           { return i.info.Format }
func (i *Image) MipLevels() int                   { return i.info.MipLevels }
func (i *Image) Layers() int                      { return i.info.ArrayLayers }
func (i *Image) Purpose() Purpose                 { return i.purpose }
func (i *Image) State() State                     { return i.state }
func (i *Image) Name() string                     { return i.name }

func (i *Image) Extent() core1_0.Extent2D {
	return core1_0.Extent2D{Width: i.info.Extent.Width, Height: i.info.Extent.Height}
}

// DeviceSize is the byte size of mip 0 across all layers.
func (i *Image) DeviceSize() int {
	return i.info.Extent.Width * i.info.Extent.Height * ChannelSize(i.info.Format) * i.info.ArrayLayers
}

// Cleanup releases everything Create made, newest first, and returns the
// Image to Unconfigured.
func (i *Image) Cleanup() {
	i.cleaner.Flush("image " + i.name)
	if i.purpose == PurposeSwapchain {
		i.ctx.Layouts.Forget(i.image)
	}

	i.image = core1_0.Image{}
	i.memory = core1_0.DeviceMemory{}
	i.views = nil
	i.sampler = core1_0.Sampler{}
	i.pixels = nil
	i.purpose = PurposeNone
	i.state = Unconfigured
}
