package main

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

func (app *App) createCommandBuffers() error {
	var err error
	app.commandBuffers, err = app.ctx.Commander.Allocate(MaxFramesInFlight)
	return err
}

func (app *App) createSyncObjects() error {
	for i := 0; i < MaxFramesInFlight; i++ {
		semaphore, _, err := app.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create semaphore")
		}

		app.imageAvailableSemaphore = append(app.imageAvailableSemaphore, semaphore)

		fence, _, err := app.deviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			return errors.Wrap(err, "create fence")
		}

		app.inFlightFence = append(app.inFlightFence, fence)
	}

	app.imagesInFlight = make([]core1_0.Fence, len(app.swapchainImages))
	return app.recreateRenderFinishedSemaphores()
}

// recreateRenderFinishedSemaphores keeps one semaphore per swapchain image.
func (app *App) recreateRenderFinishedSemaphores() error {
	for _, semaphore := range app.renderFinishedSemaphore {
		app.deviceDriver.DestroySemaphore(semaphore, nil)
	}
	app.renderFinishedSemaphore = app.renderFinishedSemaphore[:0]

	for range app.swapchainImages {
		semaphore, _, err := app.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create semaphore")
		}

		app.renderFinishedSemaphore = append(app.renderFinishedSemaphore, semaphore)
	}
	return nil
}

func (app *App) destroySyncObjects() {
	if app.deviceDriver == nil {
		return
	}

	for _, fence := range app.inFlightFence {
		app.deviceDriver.DestroyFence(fence, nil)
	}

	for _, semaphore := range app.renderFinishedSemaphore {
		app.deviceDriver.DestroySemaphore(semaphore, nil)
	}

	for _, semaphore := range app.imageAvailableSemaphore {
		app.deviceDriver.DestroySemaphore(semaphore, nil)
	}
}

func (app *App) drawFrame() error {
	fences := []core1_0.Fence{app.inFlightFence[app.currentFrame]}

	_, err := app.deviceDriver.WaitForFences(true, common.NoTimeout, fences...)
	if err != nil {
		return errors.Wrap(err, "wait for frame fence")
	}

	imageIndex, res, err := app.swapchainExtension.AcquireNextImage(app.swapchain, common.NoTimeout, &app.imageAvailableSemaphore[app.currentFrame], nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return app.recreateSwapChain()
	} else if err != nil {
		return errors.Wrap(err, "acquire swapchain image")
	}

	if app.imagesInFlight[imageIndex].Initialized() {
		_, err := app.deviceDriver.WaitForFences(true, common.NoTimeout, app.imagesInFlight[imageIndex])
		if err != nil {
			return errors.Wrap(err, "wait for image fence")
		}
	}
	app.imagesInFlight[imageIndex] = app.inFlightFence[app.currentFrame]

	_, err = app.deviceDriver.ResetFences(fences...)
	if err != nil {
		return errors.Wrap(err, "reset frame fence")
	}

	app.settings.Iteration++
	err = app.scene.UpdateCameraInput(app.camera)
	if err != nil {
		return err
	}
	err = app.scene.UpdateLightInput()
	if err != nil {
		return err
	}

	cb := app.commandBuffers[app.currentFrame]
	err = app.recordFrame(cb, imageIndex)
	if err != nil {
		return err
	}

	_, err = app.deviceDriver.QueueSubmit(app.ctx.Commander.Queue(), &app.inFlightFence[app.currentFrame],
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{app.imageAvailableSemaphore[app.currentFrame]},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{cb},
			SignalSemaphores: []core1_0.Semaphore{app.renderFinishedSemaphore[imageIndex]},
		},
	)
	if err != nil {
		return errors.Wrap(err, "submit frame")
	}

	res, err = app.swapchainExtension.QueuePresent(app.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{app.renderFinishedSemaphore[imageIndex]},
		Swapchains:     []khr_swapchain.Swapchain{app.swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		err = app.recreateSwapChain()
		if err != nil {
			return err
		}
	} else if err != nil {
		return errors.Wrap(err, "present frame")
	}

	app.currentFrame = (app.currentFrame + 1) % MaxFramesInFlight

	return nil
}

// recordFrame records the scene pass followed by the composite into the
// swapchain image at imageIndex.
func (app *App) recordFrame(cb core1_0.CommandBuffer, imageIndex int) error {
	_, err := app.deviceDriver.ResetCommandBuffer(cb, 0)
	if err != nil {
		return errors.Wrap(err, "reset frame command buffer")
	}

	_, err = app.deviceDriver.BeginCommandBuffer(cb, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin frame command buffer")
	}

	err = app.scene.Render(cb)
	if err != nil {
		return err
	}
	err = app.screen.Render(cb, imageIndex, app.overlay)
	if err != nil {
		return err
	}

	_, err = app.deviceDriver.EndCommandBuffer(cb)
	return errors.Wrap(err, "end frame command buffer")
}
