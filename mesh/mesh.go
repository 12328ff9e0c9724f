package mesh

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/gpu"
	"github.com/thinfilm/renderer/resource"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Mesh holds vertex and index buffers filled through a staging copy.
type Mesh struct {
	name       string
	vertices   *resource.Buffer
	indices    *resource.Buffer
	indexCount int
}

func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func upload(ctx *gpu.Context, payload []byte, usage core1_0.BufferUsageFlags) (*resource.Buffer, error) {
	staging := resource.NewBuffer(ctx)
	defer staging.Cleanup()

	err := staging.Configure(len(payload), core1_0.BufferUsageTransferSrc)
	if err != nil {
		return nil, err
	}
	err = staging.Allocate()
	if err != nil {
		return nil, err
	}
	err = staging.WriteAll(payload)
	if err != nil {
		return nil, err
	}

	dst := resource.NewBuffer(ctx)
	err = dst.Configure(len(payload), core1_0.BufferUsageTransferDst|usage)
	if err != nil {
		return nil, err
	}
	err = dst.Allocate()
	if err != nil {
		dst.Cleanup()
		return nil, err
	}
	err = dst.CopyFrom(staging, len(payload))
	if err != nil {
		dst.Cleanup()
		return nil, err
	}
	return dst, nil
}

// Upload creates the GPU buffers for data.
func Upload(ctx *gpu.Context, name string, data *Data) (*Mesh, error) {
	if len(data.Vertices) == 0 || len(data.Indices) == 0 {
		return nil, errors.Newf("upload mesh %s: empty vertex or index list", name)
	}

	vertexBytes, err := encode(data.Vertices)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s vertices", name)
	}
	indexBytes, err := encode(data.Indices)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s indices", name)
	}

	m := &Mesh{name: name, indexCount: len(data.Indices)}
	m.vertices, err = upload(ctx, vertexBytes, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return nil, errors.Wrapf(err, "upload %s vertices", name)
	}
	m.indices, err = upload(ctx, indexBytes, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		m.Cleanup()
		return nil, errors.Wrapf(err, "upload %s indices", name)
	}

	gpu.Logger().Debug("upload mesh", "name", name, "vertices", len(data.Vertices), "indices", m.indexCount)
	return m, nil
}

// Bind binds the vertex buffer at binding 0 and the 32-bit index buffer.
func (m *Mesh) Bind(driver core1_0.DeviceDriver, cb core1_0.CommandBuffer) {
	driver.CmdBindVertexBuffers(cb, 0, []core1_0.Buffer{m.vertices.Handle()}, []int{0})
	driver.CmdBindIndexBuffer(cb, m.indices.Handle(), 0, core1_0.IndexTypeUInt32)
}

func (m *Mesh) Draw(driver core1_0.DeviceDriver, cb core1_0.CommandBuffer) {
	driver.CmdDrawIndexed(cb, m.indexCount, 1, 0, 0, 0)
}

func (m *Mesh) IndexCount() int { return m.indexCount }
func (m *Mesh) Name() string    { return m.name }

func (m *Mesh) Cleanup() {
	if m.indices != nil {
		m.indices.Cleanup()
	}
	if m.vertices != nil {
		m.vertices.Cleanup()
	}
}
