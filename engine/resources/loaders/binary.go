package loaders

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/spaghettifunk/reverie/engine/resources"
)

// Blob is the raw content of a file. Files ending in .lz4 or .xz are
// decompressed while loading.
type Blob struct {
	resources.BaseResource
	t resources.ResourceType

	Data       []byte
	Compressed bool
}

func (b *Blob) Type() resources.ResourceType {
	return b.t
}

func (b *Blob) OnRemoval() {
	b.Data = nil
}

// Words reinterprets the data as little endian 32 bit words, the layout of
// SPIR-V byte code. Trailing bytes are dropped.
func (b *Blob) Words() []uint32 {
	words := make([]uint32, len(b.Data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b.Data[i*4:])
	}
	return words
}

// BinaryLoader loads binary blobs and audio clips.
type BinaryLoader struct {
	// Type is ResourceTypeBinary or ResourceTypeAudio.
	Type resources.ResourceType
}

func (bl *BinaryLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, compressed, err := decompressor(req.Path, f)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", req.Path, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.Path, err)
	}

	b := &Blob{t: bl.Type, Data: data, Compressed: compressed}
	b.SetCost(int64(len(data)))
	return b, nil
}

func decompressor(path string, r io.Reader) (io.Reader, bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lz4":
		return lz4.NewReader(r), true, nil
	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, false, err
		}
		return xr, true, nil
	default:
		return r, false, nil
	}
}
