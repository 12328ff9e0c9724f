package assets

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// MaterialMaps are the PBR maps of a material in descriptor binding order.
var MaterialMaps = []string{"albedo", "ao", "metallic", "normal", "roughness"}

// DefaultExt is the file extension of material maps.
const DefaultExt = ".png"

// MaterialPaths returns dir/name/name_<map><ext> for every map in
// MaterialMaps.
func MaterialPaths(dir, name, ext string) []string {
	paths := make([]string, len(MaterialMaps))
	for i, m := range MaterialMaps {
		paths[i] = filepath.Join(dir, name, name+"_"+m+ext)
	}
	return paths
}

// LoadMaterial decodes every map of a material concurrently. The result is
// ordered as MaterialMaps.
func LoadMaterial(dir, name string) ([]*Pixels, error) {
	if name == "" {
		return nil, errors.New("load material: empty name")
	}

	paths := MaterialPaths(dir, name, DefaultExt)
	maps := make([]*Pixels, len(paths))

	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			pixels, err := Load(path)
			if err != nil {
				return err
			}
			maps[i] = pixels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "load material %s", name)
	}
	return maps, nil
}
