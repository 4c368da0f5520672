package loaders

import (
	"path/filepath"
	"sort"

	"github.com/fzipp/bmfont"

	"github.com/spaghettifunk/reverie/engine/resources"
)

type FontGlyph struct {
	Codepoint rune
	X         uint16
	Y         uint16
	Width     uint16
	Height    uint16
	XOffset   int16
	YOffset   int16
	XAdvance  int16
	PageID    uint8
}

type FontKerning struct {
	Codepoint0 rune
	Codepoint1 rune
	Amount     int16
}

type BitmapFontPage struct {
	ID   int8
	File string
}

// BitmapFont is a BMFont descriptor. Its page images are texture children.
type BitmapFont struct {
	resources.BaseResource

	Face       string
	Size       uint32
	LineHeight int32
	Baseline   int32
	AtlasSizeX int32
	AtlasSizeY int32
	Glyphs     []FontGlyph
	Kernings   []FontKerning
	Pages      []BitmapFontPage
}

func (bf *BitmapFont) Type() resources.ResourceType {
	return resources.ResourceTypeBitmapFont
}

// Glyph finds the glyph of a code point.
func (bf *BitmapFont) Glyph(r rune) (FontGlyph, bool) {
	i := sort.Search(len(bf.Glyphs), func(i int) bool { return bf.Glyphs[i].Codepoint >= r })
	if i < len(bf.Glyphs) && bf.Glyphs[i].Codepoint == r {
		return bf.Glyphs[i], true
	}
	return FontGlyph{}, false
}

// BitmapFontLoader reads .fnt files. Page images are loaded as texture
// children, relative to the font file.
type BitmapFontLoader struct{}

func (BitmapFontLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	font, err := bmfont.Load(req.Path)
	if err != nil {
		return nil, err
	}
	d := font.Descriptor

	out := &BitmapFont{
		Face:       d.Info.Face,
		Size:       uint32(d.Info.Size),
		LineHeight: int32(d.Common.LineHeight),
		Baseline:   int32(d.Common.Base),
		AtlasSizeX: int32(d.Common.ScaleW),
		AtlasSizeY: int32(d.Common.ScaleH),
		Glyphs:     make([]FontGlyph, 0, len(d.Chars)),
		Kernings:   make([]FontKerning, 0, len(d.Kerning)),
		Pages:      make([]BitmapFontPage, 0, len(d.Pages)),
	}
	for _, g := range d.Chars {
		out.Glyphs = append(out.Glyphs, FontGlyph{
			Codepoint: g.ID,
			X:         uint16(g.X),
			Y:         uint16(g.Y),
			Width:     uint16(g.Width),
			Height:    uint16(g.Height),
			XOffset:   int16(g.XOffset),
			YOffset:   int16(g.YOffset),
			XAdvance:  int16(g.XAdvance),
			PageID:    uint8(g.Page),
		})
	}
	sort.Slice(out.Glyphs, func(i, j int) bool { return out.Glyphs[i].Codepoint < out.Glyphs[j].Codepoint })
	for pair, k := range d.Kerning {
		out.Kernings = append(out.Kernings, FontKerning{
			Codepoint0: pair.First,
			Codepoint1: pair.Second,
			Amount:     int16(k.Amount),
		})
	}
	for _, p := range d.Pages {
		out.Pages = append(out.Pages, BitmapFontPage{ID: int8(p.ID), File: p.File})
	}
	sort.Slice(out.Pages, func(i, j int) bool { return out.Pages[i].ID < out.Pages[j].ID })

	dir := filepath.Dir(req.Path)
	for _, p := range out.Pages {
		req.Handle.GuaranteeChildWithPath(resources.ResourceTypeTexture, filepath.Join(dir, p.File), 0).LoadResource(true)
	}

	out.SetCost(int64(len(out.Glyphs))*20 + int64(len(out.Kernings))*10)
	return out, nil
}
