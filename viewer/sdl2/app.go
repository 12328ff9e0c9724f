package main

import (
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/assets"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/resource"
	"github.com/thinfilm/renderer/settings"
	"github.com/thinfilm/renderer/stage/interference"
	"github.com/thinfilm/renderer/stage/scene"
	"github.com/thinfilm/renderer/stage/screen"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

const (
	MaxFramesInFlight = 2
	cubemapSize       = 512
)

type App struct {
	settingsPath string
	settings     *settings.Settings
	logger       *slog.Logger

	window *sdl.Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	graphicsFamily int
	presentQueue   core1_0.Queue

	swapchainExtension   khr_swapchain.ExtensionDriver
	swapchain            khr_swapchain.Swapchain
	swapchainImages      []core1_0.Image
	swapchainImageFormat core1_0.Format
	swapchainExtent      core1_0.Extent2D

	ctx          *gpu.Context
	cleaner      gpu.Cleaner
	interference *interference.Stage
	scene        *scene.Stage
	screen       *screen.Stage
	camera       *orbitCamera
	overlay      *titleOverlay

	heightmap         *resource.Image
	interferenceImage *resource.Image

	commandBuffers          []core1_0.CommandBuffer
	imageAvailableSemaphore []core1_0.Semaphore
	renderFinishedSemaphore []core1_0.Semaphore
	inFlightFence           []core1_0.Fence
	imagesInFlight          []core1_0.Fence
	currentFrame            int
}

func (app *App) Run() error {
	err := app.initWindow()
	if err != nil {
		return err
	}
	defer app.cleanup()

	err = app.initVulkan()
	if err != nil {
		return err
	}

	return app.mainLoop()
}

func (app *App) initVulkan() error {
	err := app.createInstance()
	if err != nil {
		return err
	}

	err = app.setupDebugMessenger()
	if err != nil {
		return err
	}

	err = app.createSurface()
	if err != nil {
		return err
	}

	err = app.pickPhysicalDevice()
	if err != nil {
		return err
	}

	err = app.createLogicalDevice()
	if err != nil {
		return err
	}

	err = app.createSwapchain()
	if err != nil {
		return err
	}

	app.ctx, err = gpu.NewContext(gpu.Options{
		Driver:         app.deviceDriver,
		Instance:       app.instanceDriver,
		PhysicalDevice: app.physicalDevice,
		QueueFamily:    app.graphicsFamily,
		SurfaceFormat:  app.swapchainImageFormat,
		Settings:       app.settings,
		Shaders:        os.DirFS(app.settings.ShaderDir),
	})
	if err != nil {
		return err
	}

	err = app.createStages()
	if err != nil {
		return err
	}

	err = app.createCommandBuffers()
	if err != nil {
		return err
	}

	return app.createSyncObjects()
}

func (app *App) createStages() error {
	app.camera = newOrbitCamera()
	app.overlay = newTitleOverlay(app.settings.Window.Title, app.window.SetTitle)

	app.scene = scene.New(app.ctx)
	app.cleaner.Push(app.scene.Cleanup)
	err := app.scene.Setup()
	if err != nil {
		return err
	}
	err = app.scene.CreateFrame(app.swapchainExtent)
	if err != nil {
		return err
	}

	err = app.setupEnvironment()
	if err != nil {
		return err
	}
	err = app.setupHeightmap()
	if err != nil {
		return err
	}
	err = app.dispatchInterference()
	if err != nil {
		return err
	}

	app.screen = screen.New(app.ctx)
	app.cleaner.Push(app.screen.Cleanup)
	err = app.screen.Setup()
	if err != nil {
		return err
	}
	err = app.screen.CreateFrames(app.swapchainImages, app.swapchainExtent)
	if err != nil {
		return err
	}
	return app.screen.SetupInput(app.scene.Frame())
}

// setupEnvironment loads the HDR environment map when one is configured
// and hands it to the scene with an empty cubemap.
func (app *App) setupEnvironment() error {
	if app.settings.Environment == "" {
		return nil
	}

	env, err := assets.LoadTexture(app.ctx, app.settings.Environment)
	if err != nil {
		return err
	}

	cubemap := resource.NewImage(app.ctx, "cubemap")
	err = cubemap.ConfigureCubemap(core1_0.Extent2D{Width: cubemapSize, Height: cubemapSize})
	if err == nil {
		err = cubemap.CreateWithSampler()
	}
	if err == nil {
		err = cubemap.ClearColor([4]float32{0, 0, 0, 1})
	}
	app.scene.SetupEnvironment(cubemap, env)
	return err
}

// setupHeightmap loads the configured heightmap or falls back to a flat one.
func (app *App) setupHeightmap() error {
	var err error
	if app.settings.Heightmap != "" {
		app.heightmap, err = assets.LoadTexture(app.ctx, app.settings.Heightmap)
		if err != nil {
			return err
		}
		app.cleaner.Push(app.heightmap.Cleanup)
		return app.scene.UpdateHeightmapInput(app.heightmap)
	}

	app.heightmap = resource.NewImage(app.ctx, "heightmap")
	app.cleaner.Push(app.heightmap.Cleanup)
	err = app.heightmap.ConfigureStorage(core1_0.Extent2D{Width: 1, Height: 1})
	if err != nil {
		return err
	}
	err = app.heightmap.CreateWithSampler()
	if err != nil {
		return err
	}
	err = app.heightmap.ClearColor([4]float32{0, 0, 0, 0})
	if err != nil {
		return err
	}
	return app.scene.UpdateHeightmapInput(app.heightmap)
}

// dispatchInterference runs the compute stage once with the current
// settings and feeds a copy of its output to the scene. Any earlier stage
// and copy are released first.
func (app *App) dispatchInterference() error {
	if app.interference != nil {
		app.interference.Cleanup()
	}
	app.interference = interference.New(app.ctx)

	err := app.interference.Setup()
	if err != nil {
		return err
	}
	err = app.interference.DispatchOnce()
	if err != nil {
		return err
	}

	output, err := app.interference.CopyOutputImage()
	if err != nil {
		return err
	}
	err = app.scene.UpdateInterferenceInput(output)
	if err != nil {
		output.Cleanup()
		return err
	}

	if app.interferenceImage != nil {
		app.interferenceImage.Cleanup()
	}
	app.interferenceImage = output
	return nil
}

// reload rereads the settings file and recomputes the interference image.
// The light animation keeps its place.
func (app *App) reload() error {
	loaded, err := settings.Load(app.settingsPath)
	if err != nil {
		return err
	}
	err = loaded.Validate()
	if err != nil {
		return err
	}

	_, err = app.deviceDriver.DeviceWaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device")
	}

	loaded.Iteration = app.settings.Iteration
	*app.settings = *loaded
	app.logger.Info("reloaded settings", "opd_samples", loaded.OPDSamples, "r_samples", loaded.RSamples)
	return app.dispatchInterference()
}

func (app *App) mainLoop() error {
	rendering := true
	dragging := false

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.KeyboardEvent:
				if e.Type != sdl.KEYDOWN {
					continue
				}
				switch e.Keysym.Sym {
				case sdl.K_ESCAPE:
					break appLoop
				case sdl.K_r:
					err := app.reload()
					if err != nil {
						return err
					}
				}
			case *sdl.MouseButtonEvent:
				if e.Button == sdl.BUTTON_LEFT {
					dragging = e.State == sdl.PRESSED
				}
			case *sdl.MouseMotionEvent:
				if dragging {
					app.camera.rotate(e.XRel, e.YRel)
				}
			case *sdl.MouseWheelEvent:
				app.camera.zoom(e.Y)
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					w, h := app.window.GetSize()
					if w > 0 && h > 0 {
						rendering = true
						err := app.recreateSwapChain()
						if err != nil {
							return err
						}
					} else {
						rendering = false
					}
				}
			}
		}
		if rendering {
			err := app.drawFrame()
			if err != nil {
				return err
			}
		}
	}

	_, err := app.deviceDriver.DeviceWaitIdle()
	return errors.Wrap(err, "wait for device")
}

func (app *App) recreateSwapChain() error {
	w, h := app.window.VulkanGetDrawableSize()
	if w == 0 || h == 0 {
		return nil
	}
	if (app.window.GetFlags() & sdl.WINDOW_MINIMIZED) != 0 {
		return nil
	}

	_, err := app.deviceDriver.DeviceWaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device")
	}

	app.swapchainExtension.DestroySwapchain(app.swapchain, nil)
	err = app.createSwapchain()
	if err != nil {
		return err
	}

	err = app.screen.RecreateFrames(app.swapchainImages, app.swapchainExtent)
	if err != nil {
		return err
	}
	err = app.scene.RecreateFrame(app.swapchainExtent)
	if err != nil {
		return err
	}
	err = app.screen.SetupInput(app.scene.Frame())
	if err != nil {
		return err
	}

	app.imagesInFlight = make([]core1_0.Fence, len(app.swapchainImages))
	return app.recreateRenderFinishedSemaphores()
}

func (app *App) cleanup() {
	if app.deviceDriver != nil {
		app.deviceDriver.DeviceWaitIdle()
	}

	if app.interference != nil {
		app.interference.Cleanup()
	}
	if app.interferenceImage != nil {
		app.interferenceImage.Cleanup()
	}
	app.cleaner.Flush("viewer")
	app.destroySyncObjects()

	if app.ctx != nil {
		app.ctx.Commander.Free(app.commandBuffers...)
		app.ctx.Destroy()
	}

	if app.swapchain.Initialized() {
		app.swapchainExtension.DestroySwapchain(app.swapchain, nil)
	}

	if app.deviceDriver != nil {
		app.deviceDriver.DestroyDevice(nil)
	}

	if app.debugMessenger.Initialized() {
		app.debugDriver.DestroyDebugUtilsMessenger(app.debugMessenger, nil)
	}

	if app.surface.Initialized() {
		app.surfaceExtension.DestroySurface(app.surface, nil)
	}

	if app.instanceDriver != nil {
		app.instanceDriver.DestroyInstance(nil)
	}

	if app.window != nil {
		app.window.Destroy()
	}
	sdl.Quit()
}
