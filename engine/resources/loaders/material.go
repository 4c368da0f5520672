package loaders

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/reverie/engine/core"
	"github.com/spaghettifunk/reverie/engine/math"
	"github.com/spaghettifunk/reverie/engine/resources"
)

type MaterialConfig struct {
	Name            string    `json:"name"`
	ShaderName      string    `json:"shader"`
	DiffuseColour   math.Vec4 `json:"diffuseColour"`
	Shininess       float32   `json:"shininess"`
	DiffuseMapName  string    `json:"diffuseMap,omitempty"`
	SpecularMapName string    `json:"specularMap,omitempty"`
	NormalMapName   string    `json:"normalMap,omitempty"`
}

// Material references its texture maps as child handles.
type Material struct {
	resources.BaseResource
	Config MaterialConfig
}

func (m *Material) Type() resources.ResourceType {
	return resources.ResourceTypeMaterial
}

func (m *Material) MarshalResourceJSON() ([]byte, error) {
	return json.Marshal(m.Config)
}

// Map returns the texture handle loaded for a map name, nil if the material
// has no such map.
func (m *Material) Map(name string) *resources.ResourceHandle {
	if name == "" || m.Handle() == nil {
		return nil
	}
	for _, child := range m.Handle().ChildrenOfType(resources.ResourceTypeTexture) {
		if child.Path() == name {
			return child
		}
	}
	return nil
}

// MaterialLoader reads `.amt` key=value files, or the cached JSON of runtime
// generated materials.
type MaterialLoader struct{}

func (MaterialLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	var cfg *MaterialConfig
	var err error
	if req.Path == "" {
		cfg = &MaterialConfig{}
		err = json.Unmarshal(req.CachedJSON, cfg)
	} else {
		cfg, err = parseAMTFile(req.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("material %s: %w", req.Handle.Name(), err)
	}
	if err := validateMaterial(cfg); err != nil {
		return nil, fmt.Errorf("material %s: %w", req.Handle.Name(), err)
	}

	for _, name := range []string{cfg.DiffuseMapName, cfg.SpecularMapName, cfg.NormalMapName} {
		if name == "" {
			continue
		}
		// children load serially on this goroutine and are post-constructed with the material
		req.Handle.GuaranteeChildWithPath(resources.ResourceTypeTexture, name, 0).LoadResource(true)
	}

	m := &Material{Config: *cfg}
	m.SetCost(int64(len(cfg.Name) + len(cfg.ShaderName) + 64))
	return m, nil
}

func parseAMTFile(filename string) (*MaterialConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseAMT(file)
}

func parseAMT(r io.Reader) (*MaterialConfig, error) {
	scanner := bufio.NewScanner(r)
	cfg := &MaterialConfig{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			core.LogWarn("skipping invalid material line: %s", line)
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			cfg.Name = value
		case "shader":
			cfg.ShaderName = value
		case "diffuse_colour":
			fields := strings.Fields(value)
			if len(fields) != 4 {
				return nil, fmt.Errorf("invalid diffuse_colour, expected 4 values: %s", line)
			}
			var c [4]float32
			for i, v := range fields {
				f, err := strconv.ParseFloat(v, 32)
				if err != nil {
					return nil, fmt.Errorf("invalid diffuse_colour value: %s", v)
				}
				c[i] = float32(f)
			}
			cfg.DiffuseColour = math.Vec4{X: c[0], Y: c[1], Z: c[2], W: c[3]}
		case "shininess":
			f, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid shininess value: %s", value)
			}
			cfg.Shininess = float32(f)
		case "diffuse_map_name":
			cfg.DiffuseMapName = value
		case "specular_map_name":
			cfg.SpecularMapName = value
		case "normal_map_name":
			cfg.NormalMapName = value
		default:
			core.LogWarn("unknown material key '%s', skipping", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateMaterial(cfg *MaterialConfig) error {
	if cfg.Name == "" {
		return errors.New("material name is required")
	}
	if cfg.ShaderName == "" {
		return errors.New("shader name is required")
	}
	c := cfg.DiffuseColour
	for _, v := range []float32{c.X, c.Y, c.Z, c.W} {
		if math.Clamp(v, 0, 1) != v {
			return errors.New("diffuse_colour values must be between 0.0 and 1.0")
		}
	}
	if cfg.Shininess < 0 {
		return errors.New("shininess must be a non-negative value")
	}
	return nil
}
