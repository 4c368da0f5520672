package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/spaghettifunk/reverie/engine/math"
	"github.com/spaghettifunk/reverie/engine/resources"
)

// Mesh is indexed triangle geometry.
type Mesh struct {
	resources.BaseResource

	Vertices []math.Vertex3D
	Indices  []uint32
	Extents  math.Extents3D
	Center   math.Vec3

	// Staged is set once the mesh is ready for upload.
	Staged bool
}

func (m *Mesh) Type() resources.ResourceType {
	return resources.ResourceTypeMesh
}

func (m *Mesh) PostConstruction(resources.PostConstructionData) {
	m.Staged = true
}

func (m *Mesh) OnRemoval() {
	m.Vertices = nil
	m.Indices = nil
	m.Staged = false
}

// MeshLoader reads Wavefront OBJ files: positions, texture coordinates,
// normals and polygonal faces, which are triangulated as fans.
type MeshLoader struct{}

func (MeshLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := parseOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("mesh %s: %w", req.Path, err)
	}
	return m, nil
}

type objIndex struct {
	v, vt, vn int
}

func parseOBJ(r io.Reader) (*Mesh, error) {
	var (
		positions []math.Vec3
		texcoords []math.Vec2
		normals   []math.Vec3
		m         = &Mesh{}
		seen      = make(map[objIndex]uint32)
		hasNormal = true
		hasUV     = true
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			v, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			positions = append(positions, math.Vec3{X: v[0], Y: v[1], Z: v[2]})
		case "vt":
			v, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			texcoords = append(texcoords, math.Vec2{X: v[0], Y: v[1]})
		case "vn":
			v, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			normals = append(normals, math.Vec3{X: v[0], Y: v[1], Z: v[2]})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNo)
			}
			face := make([]uint32, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				idx, err := parseFaceRef(ref, len(positions), len(texcoords), len(normals))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				if idx.vn < 0 {
					hasNormal = false
				}
				if idx.vt < 0 {
					hasUV = false
				}
				i, ok := seen[idx]
				if !ok {
					vert := math.Vertex3D{
						Position: positions[idx.v],
						Colour:   math.Vec4{X: 1, Y: 1, Z: 1, W: 1},
					}
					if idx.vt >= 0 {
						vert.Texcoord = texcoords[idx.vt]
					}
					if idx.vn >= 0 {
						vert.Normal = normals[idx.vn]
					}
					i = uint32(len(m.Vertices))
					m.Vertices = append(m.Vertices, vert)
					seen[idx] = i
				}
				face = append(face, i)
			}
			for k := 1; k+1 < len(face); k++ {
				m.Indices = append(m.Indices, face[0], face[k], face[k+1])
			}
		default:
			// groups, objects, materials and smoothing are ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(m.Indices) == 0 {
		return nil, fmt.Errorf("no faces")
	}

	if !hasNormal {
		math.GenerateNormals(m.Vertices, m.Indices)
	}
	if hasUV {
		math.GenerateTangents(m.Vertices, m.Indices)
	}
	m.Extents = math.ComputeExtents(m.Vertices)
	m.Center = m.Extents.Min.Add(m.Extents.Max).MulScalar(0.5)
	m.SetCost(int64(len(m.Vertices))*int64(unsafe.Sizeof(math.Vertex3D{})) + int64(len(m.Indices))*4)
	return m, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseFaceRef parses v, v/vt, v//vn or v/vt/vn. OBJ indices are one based,
// negative ones count from the end. Missing parts are -1.
func parseFaceRef(ref string, nv, nvt, nvn int) (objIndex, error) {
	parts := strings.Split(ref, "/")
	idx := objIndex{v: -1, vt: -1, vn: -1}
	counts := [3]int{nv, nvt, nvn}
	targets := [3]*int{&idx.v, &idx.vt, &idx.vn}
	for i, p := range parts {
		if i > 2 {
			return idx, fmt.Errorf("invalid face reference %q", ref)
		}
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return idx, fmt.Errorf("invalid face reference %q", ref)
		}
		if n < 0 {
			n = counts[i] + n
		} else {
			n--
		}
		if n < 0 || n >= counts[i] {
			return idx, fmt.Errorf("face reference %q out of range", ref)
		}
		*targets[i] = n
	}
	if idx.v < 0 {
		return idx, fmt.Errorf("face reference %q has no position", ref)
	}
	return idx, nil
}
