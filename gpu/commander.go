package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Commander owns the command pool and the queue every command buffer is
// submitted to.
type Commander struct {
	driver core1_0.DeviceDriver
	queue  core1_0.Queue
	pool   core1_0.CommandPool
}

func NewCommander(driver core1_0.DeviceDriver, queueFamily int) (*Commander, error) {
	pool, _, err := driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: queueFamily,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	return &Commander{
		driver: driver,
		queue:  driver.GetQueue(queueFamily, 0),
		pool:   pool,
	}, nil
}

func (c *Commander) Queue() core1_0.Queue {
	return c.queue
}

// Allocate returns count primary command buffers for per-frame recording.
func (c *Commander) Allocate(count int) ([]core1_0.CommandBuffer, error) {
	buffers, _, err := c.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d command buffers", count)
	}
	return buffers, nil
}

func (c *Commander) Free(buffers ...core1_0.CommandBuffer) {
	if len(buffers) > 0 {
		c.driver.FreeCommandBuffers(buffers...)
	}
}

// Begin allocates a command buffer and opens it for a single submission.
func (c *Commander) Begin() (core1_0.CommandBuffer, error) {
	buffers, err := c.Allocate(1)
	if err != nil {
		return core1_0.CommandBuffer{}, err
	}

	buffer := buffers[0]
	_, err = c.driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		c.driver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, errors.Wrap(err, "begin one-shot command buffer")
	}
	return buffer, nil
}

// End closes buffer, submits it and blocks until the queue is idle. There is
// no timeout: a hung device blocks the caller.
func (c *Commander) End(buffer core1_0.CommandBuffer) error {
	defer c.driver.FreeCommandBuffers(buffer)

	_, err := c.driver.EndCommandBuffer(buffer)
	if err != nil {
		return errors.Wrap(err, "end one-shot command buffer")
	}

	_, err = c.driver.QueueSubmit(c.queue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return errors.Wrap(err, "submit one-shot command buffer")
	}

	_, err = c.driver.QueueWaitIdle(c.queue)
	if err != nil {
		return errors.Wrap(err, "wait for one-shot command buffer")
	}
	return nil
}

// Run records through record into a one-shot buffer and waits for it.
func (c *Commander) Run(record func(core1_0.CommandBuffer) error) error {
	buffer, err := c.Begin()
	if err != nil {
		return err
	}

	err = record(buffer)
	if err != nil {
		c.driver.FreeCommandBuffers(buffer)
		return err
	}

	return c.End(buffer)
}

func (c *Commander) Destroy() {
	if c.pool.Initialized() {
		c.driver.DestroyCommandPool(c.pool, nil)
		c.pool = core1_0.CommandPool{}
	}
}
