package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/reverie/engine/core"
	"github.com/spaghettifunk/reverie/engine/resources"
)

// Texture is a decoded image. PostConstruction converts it to tightly packed
// RGBA rows, ready for upload.
type Texture struct {
	resources.BaseResource
	t resources.ResourceType

	Width  int
	Height int
	Format string

	source image.Image
	Pixels *image.RGBA
}

func (tx *Texture) Type() resources.ResourceType {
	return tx.t
}

// PostConstruction stages the pixels. Recognised data keys are "flip_y"
// (bool) and "max_size" (int, longest side after downscaling).
func (tx *Texture) PostConstruction(data resources.PostConstructionData) {
	if tx.source == nil {
		return
	}
	src := tx.source
	if maxSize, ok := data["max_size"].(int); ok && maxSize > 0 {
		src = downscale(src, maxSize)
	}
	tx.Pixels = toRGBA(src)
	if flip, ok := data["flip_y"].(bool); ok && flip {
		flipRows(tx.Pixels)
	}
	tx.Width = tx.Pixels.Rect.Dx()
	tx.Height = tx.Pixels.Rect.Dy()
	tx.source = nil
}

func (tx *Texture) OnRemoval() {
	tx.source = nil
	tx.Pixels = nil
}

// TextureLoader decodes png, jpeg, bmp, tiff and webp files.
type TextureLoader struct {
	// Type is ResourceTypeTexture or ResourceTypeImage.
	Type resources.ResourceType
}

func (tl *TextureLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	img, format, err := decodeImage(req.Path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	tx := &Texture{
		t:      tl.Type,
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
		source: img,
	}
	tx.SetCost(int64(b.Dx()) * int64(b.Dy()) * 4)
	core.LogDebug("decoded %s texture %s (%dx%d)", format, req.Path, tx.Width, tx.Height)
	return tx, nil
}

func decodeImage(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return img, format, nil
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func downscale(src image.Image, maxSize int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSize && h <= maxSize {
		return src
	}
	if w >= h {
		h = max(1, h*maxSize/w)
		w = maxSize
	} else {
		w = max(1, w*maxSize/h)
		h = maxSize
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func flipRows(img *image.RGBA) {
	h := img.Rect.Dy()
	row := make([]byte, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}
