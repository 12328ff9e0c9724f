package resource

import (
	"bytes"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/thinfilm/renderer/gpu"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Buffer is a linear allocation in host-visible, host-coherent memory.
type Buffer struct {
	ctx     *gpu.Context
	id      uuid.UUID
	state   State
	cleaner gpu.Cleaner

	size   int
	usage  core1_0.BufferUsageFlags
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
}

func NewBuffer(ctx *gpu.Context) *Buffer {
	return &Buffer{ctx: ctx, id: uuid.New()}
}

func (b *Buffer) Configure(size int, usage core1_0.BufferUsageFlags) error {
	if err := b.state.require(Unconfigured, "configure buffer"); err != nil {
		return err
	}
	if size <= 0 {
		return errors.Newf("configure buffer: size must be positive, got %d", size)
	}

	b.size = size
	b.usage = usage
	b.state = Configured
	return nil
}

// Allocate creates the buffer object and binds fresh host-visible memory to it.
func (b *Buffer) Allocate() error {
	if err := b.state.require(Configured, "allocate buffer"); err != nil {
		return err
	}
	driver := b.ctx.Driver

	buffer, _, err := driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        b.size,
		Usage:       b.usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return errors.Wrap(err, "create buffer")
	}
	b.buffer = buffer
	b.cleaner.Push(func() { driver.DestroyBuffer(buffer, nil) })

	memRequirements := driver.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := b.ctx.FindMemoryType(memRequirements.MemoryTypeBits, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return errors.Wrap(err, "allocate buffer memory")
	}

	memory, _, err := driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return errors.Wrap(err, "allocate buffer memory")
	}
	b.memory = memory
	b.cleaner.Push(func() { driver.FreeMemory(memory, nil) })
	b.state = Allocated

	_, err = driver.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		return errors.Wrap(err, "bind buffer memory")
	}
	b.state = Ready

	gpu.Logger().Debug("create buffer", "id", b.id, "size", b.size, "usage", b.usage.String())
	return nil
}

// Write copies data into the buffer at offset and returns the mapped address
// just past the written bytes. The address is only meaningful for diagnostics.
func (b *Buffer) Write(data []byte, offset int) (uintptr, error) {
	if err := b.state.require(Ready, "write buffer"); err != nil {
		return 0, err
	}
	if offset < 0 || offset+len(data) > b.size {
		return 0, errors.Newf("write buffer: %d bytes at offset %d overflow size %d", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return 0, nil
	}

	memoryPtr, _, err := b.ctx.Driver.MapMemory(b.memory, offset, len(data), 0)
	if err != nil {
		return 0, errors.Wrap(err, "map buffer memory")
	}
	defer b.ctx.Driver.UnmapMemory(b.memory)

	copy(unsafe.Slice((*byte)(memoryPtr), len(data)), data)
	return uintptr(memoryPtr) + uintptr(len(data)), nil
}

// WriteAll writes data over the whole buffer. len(data) must equal Size.
func (b *Buffer) WriteAll(data []byte) error {
	if len(data) != b.size {
		return errors.Newf("write buffer: got %d bytes for size %d", len(data), b.size)
	}
	_, err := b.Write(data, 0)
	return err
}

// WriteValue encodes value in device byte order at offset 0.
func (b *Buffer) WriteValue(value any) error {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, value)
	if err != nil {
		return errors.Wrap(err, "encode buffer value")
	}

	_, err = b.Write(buf.Bytes(), 0)
	return err
}

// Read maps size bytes at offset and returns a copy of them.
func (b *Buffer) Read(offset, size int) ([]byte, error) {
	if err := b.state.require(Ready, "read buffer"); err != nil {
		return nil, err
	}
	if offset < 0 || size < 0 || offset+size > b.size {
		return nil, errors.Newf("read buffer: %d bytes at offset %d overflow size %d", size, offset, b.size)
	}

	memoryPtr, _, err := b.ctx.Driver.MapMemory(b.memory, offset, size, 0)
	if err != nil {
		return nil, errors.Wrap(err, "map buffer memory")
	}
	defer b.ctx.Driver.UnmapMemory(b.memory)

	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(memoryPtr), size))
	return out, nil
}

// CopyFrom copies the first size bytes of src into b and waits for the copy.
func (b *Buffer) CopyFrom(src *Buffer, size int) error {
	if err := b.state.require(Ready, "copy buffer"); err != nil {
		return err
	}
	if err := src.state.require(Ready, "copy buffer source"); err != nil {
		return err
	}
	if size > b.size || size > src.size {
		return errors.Newf("copy buffer: %d bytes overflow source %d or destination %d", size, src.size, b.size)
	}

	return b.ctx.Commander.Run(func(cb core1_0.CommandBuffer) error {
		return b.ctx.Driver.CmdCopyBuffer(cb, src.buffer, b.buffer,
			core1_0.BufferCopy{
				SrcOffset: 0,
				DstOffset: 0,
				Size:      size,
			},
		)
	})
}

// ClearFill records a fill of the whole buffer with the bit pattern of value.
func (b *Buffer) ClearFill(cb core1_0.CommandBuffer, value float32) error {
	if err := b.state.require(Ready, "fill buffer"); err != nil {
		return err
	}

	b.ctx.Driver.CmdFillBuffer(cb, b.buffer, 0, b.size, math.Float32bits(value))
	return nil
}

func (b *Buffer) DescriptorInfo() core1_0.DescriptorBufferInfo {
	return core1_0.DescriptorBufferInfo{
		Buffer: b.buffer,
		Offset: 0,
		Range:  b.size,
	}
}

func (b *Buffer) Handle() core1_0.Buffer { return b.buffer }
func (b *Buffer) Size() int              { return b.size }
func (b *Buffer) State() State           { return b.state }

// Cleanup frees the memory and then the buffer. The Buffer can be configured
// again afterwards.
func (b *Buffer) Cleanup() {
	b.cleaner.Flush("buffer " + b.id.String())
	b.buffer = core1_0.Buffer{}
	b.memory = core1_0.DeviceMemory{}
	b.state = Unconfigured
}
