package loaders

import (
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/reverie/engine/resources"
)

const cubeFaces = 6

// CubeTexture holds the six faces of a cube map in +x, -x, +y, -y, +z, -z
// order.
type CubeTexture struct {
	resources.BaseResource

	Size  int
	faces [cubeFaces]image.Image
	Faces [cubeFaces]*image.RGBA
}

func (ct *CubeTexture) Type() resources.ResourceType {
	return resources.ResourceTypeCubeTexture
}

func (ct *CubeTexture) PostConstruction(resources.PostConstructionData) {
	for i, f := range ct.faces {
		if f != nil {
			ct.Faces[i] = toRGBA(f)
			ct.faces[i] = nil
		}
	}
}

func (ct *CubeTexture) OnRemoval() {
	ct.faces = [cubeFaces]image.Image{}
	ct.Faces = [cubeFaces]*image.RGBA{}
}

// CubeTextureLoader decodes the six face files of a handle concurrently. The
// handle's main path is the first face, the additional paths the others.
type CubeTextureLoader struct{}

func (CubeTextureLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	paths := append([]string{req.Path}, req.AdditionalPaths...)
	if len(paths) != cubeFaces {
		return nil, fmt.Errorf("cube texture %s needs %d faces, got %d", req.Handle.Name(), cubeFaces, len(paths))
	}

	ct := &CubeTexture{}
	g, ctx := errgroup.WithContext(req.Context)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, _, err := decodeImage(p)
			if err != nil {
				return err
			}
			ct.faces[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := ct.faces[0].Bounds().Dx()
	for i, f := range ct.faces {
		b := f.Bounds()
		if b.Dx() != size || b.Dy() != size {
			return nil, fmt.Errorf("cube face %s is %dx%d, want %dx%d", paths[i], b.Dx(), b.Dy(), size, size)
		}
	}
	ct.Size = size
	ct.SetCost(int64(cubeFaces) * int64(size) * int64(size) * 4)
	return ct, nil
}
