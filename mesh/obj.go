package mesh

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

type vertexKey struct {
	position, uv, normal int
}

type objBuilder struct {
	decoder *obj.Decoder
	data    *Data
	unique  map[vertexKey]uint32
}

func (b *objBuilder) addVertex(face obj.Face, faceIndex int) {
	key := vertexKey{
		position: face.Vertices[faceIndex],
		uv:       face.Uvs[faceIndex],
		normal:   face.Normals[faceIndex],
	}
	index, vertexExists := b.unique[key]

	if !vertexExists {
		vert := Vertex{Position: mgl32.Vec3{
			b.decoder.Vertices[key.position*3],
			b.decoder.Vertices[key.position*3+1],
			b.decoder.Vertices[key.position*3+2],
		}}

		if key.uv >= 0 && key.uv*2+1 < len(b.decoder.Uvs) {
			vert.UV = mgl32.Vec2{
				b.decoder.Uvs[key.uv*2],
				1.0 - b.decoder.Uvs[key.uv*2+1],
			}
		}
		if key.normal >= 0 && key.normal*3+2 < len(b.decoder.Normals) {
			vert.Normal = mgl32.Vec3{
				b.decoder.Normals[key.normal*3],
				b.decoder.Normals[key.normal*3+1],
				b.decoder.Normals[key.normal*3+2],
			}
		} else {
			vert.Normal = vert.Position.Normalize()
		}

		index = uint32(len(b.data.Vertices))
		b.data.Vertices = append(b.data.Vertices, vert)
		b.unique[key] = index
	}

	b.data.Indices = append(b.data.Indices, index)
}

// DecodeOBJ reads a Wavefront mesh. Polygons are fanned into triangles and
// identical position/uv/normal triples share one vertex. Materials are
// ignored.
func DecodeOBJ(r io.Reader) (*Data, error) {
	decoder, err := obj.DecodeReader(r, strings.NewReader(""))
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	b := &objBuilder{
		decoder: decoder,
		data:    &Data{},
		unique:  make(map[vertexKey]uint32),
	}
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				b.addVertex(face, 0)
				b.addVertex(face, i-1)
				b.addVertex(face, i)
			}
		}
	}

	if len(b.data.Indices) == 0 {
		return nil, errors.New("decode obj: no faces")
	}
	return b.data, nil
}

func LoadOBJ(path string) (*Data, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open mesh")
	}
	defer meshFile.Close()

	data, err := DecodeOBJ(meshFile)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return data, nil
}
