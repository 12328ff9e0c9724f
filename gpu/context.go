package gpu

import (
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/settings"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Context carries the device, the command service and the settings snapshot
// into every component that creates or records GPU work.
type Context struct {
	Driver         core1_0.DeviceDriver
	Instance       core1_0.CoreInstanceDriver
	PhysicalDevice core1_0.PhysicalDevice
	Commander      *Commander
	SurfaceFormat  core1_0.Format
	Settings       *settings.Settings
	Shaders        fs.FS
	// Layouts is nil unless validation is enabled in Settings.
	Layouts *Validator
}

type Options struct {
	Driver         core1_0.DeviceDriver
	Instance       core1_0.CoreInstanceDriver
	PhysicalDevice core1_0.PhysicalDevice
	QueueFamily    int
	SurfaceFormat  core1_0.Format
	Settings       *settings.Settings
	Shaders        fs.FS
}

func NewContext(o Options) (*Context, error) {
	if o.Driver == nil || o.Instance == nil {
		return nil, errors.New("context requires a device and instance driver")
	}
	if o.Settings == nil {
		o.Settings = settings.Default()
	}

	commander, err := NewCommander(o.Driver, o.QueueFamily)
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		Driver:         o.Driver,
		Instance:       o.Instance,
		PhysicalDevice: o.PhysicalDevice,
		Commander:      commander,
		SurfaceFormat:  o.SurfaceFormat,
		Settings:       o.Settings,
		Shaders:        o.Shaders,
	}
	if o.Settings.Validation {
		ctx.Layouts = NewValidator(o.Settings.StrictLayouts)
	}
	return ctx, nil
}

// FindMemoryType returns the first memory type allowed by typeBits that has
// every flag in properties.
func (c *Context) FindMemoryType(typeBits uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := c.Instance.GetPhysicalDeviceMemoryProperties(c.PhysicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeBits&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Wrapf(ErrNoMemoryType, "type bits %b, properties %s", typeBits, properties)
}

func (c *Context) FormatProperties(format core1_0.Format) *core1_0.FormatProperties {
	return c.Instance.GetPhysicalDeviceFormatProperties(c.PhysicalDevice, format)
}

func (c *Context) Destroy() {
	c.Commander.Destroy()
}
