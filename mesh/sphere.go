package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	DefaultSectors = 64
	DefaultStacks  = 32
)

// Sphere tessellates a UV sphere of the given radius centered on the origin.
// Sectors run around the y axis, stacks from the north pole (v = 0) to the
// south pole (v = 1). The seam column is duplicated so UVs wrap cleanly.
func Sphere(radius float32, sectors, stacks int) *Data {
	if sectors < 3 {
		sectors = 3
	}
	if stacks < 2 {
		stacks = 2
	}

	data := &Data{
		Vertices: make([]Vertex, 0, (sectors+1)*(stacks+1)),
		Indices:  make([]uint32, 0, sectors*stacks*6),
	}

	for y := 0; y <= stacks; y++ {
		v := float32(y) / float32(stacks)
		elevation := float64(v) * math.Pi
		for x := 0; x <= sectors; x++ {
			u := float32(x) / float32(sectors)
			angle := float64(u) * 2 * math.Pi

			normal := mgl32.Vec3{
				float32(-math.Cos(angle) * math.Sin(elevation)),
				float32(math.Cos(elevation)),
				float32(math.Sin(angle) * math.Sin(elevation)),
			}
			data.Vertices = append(data.Vertices, Vertex{
				Position: normal.Mul(radius),
				Normal:   normal,
				UV:       mgl32.Vec2{u, v},
			})
		}
	}

	row := uint32(sectors + 1)
	for y := 0; y < stacks; y++ {
		for x := 0; x < sectors; x++ {
			v1 := uint32(y)*row + uint32(x) + 1
			v2 := uint32(y)*row + uint32(x)
			v3 := uint32(y+1)*row + uint32(x)
			v4 := uint32(y+1)*row + uint32(x) + 1

			// the pole rows collapse to a point and only need one triangle
			if y != 0 {
				data.Indices = append(data.Indices, v1, v2, v4)
			}
			if y != stacks-1 {
				data.Indices = append(data.Indices, v2, v3, v4)
			}
		}
	}

	return data
}
