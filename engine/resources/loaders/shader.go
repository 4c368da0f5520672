package loaders

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spaghettifunk/reverie/engine/resources"
)

var ErrEmptyShader = errors.New("shader source is empty")

// ShaderProgram keeps the vertex and fragment sources of a program and the
// uniforms they declare.
type ShaderProgram struct {
	resources.BaseResource

	VertexSource   string
	FragmentSource string
	Uniforms       []string

	// Linked is set on the main thread, where a renderer would build the program.
	Linked bool
}

func (sp *ShaderProgram) Type() resources.ResourceType {
	return resources.ResourceTypeShaderProgram
}

func (sp *ShaderProgram) PostConstruction(resources.PostConstructionData) {
	sp.Linked = true
}

func (sp *ShaderProgram) OnRemoval() {
	sp.Linked = false
}

// ShaderLoader reads a program from two files: the handle's path is the
// vertex shader and its first additional path the fragment shader. It is
// registered as a main thread loader.
type ShaderLoader struct{}

func (ShaderLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	if len(req.AdditionalPaths) < 1 {
		return nil, fmt.Errorf("shader program %s has no fragment shader", req.Handle.Name())
	}
	vert, err := readSource(req.Path)
	if err != nil {
		return nil, err
	}
	frag, err := readSource(req.AdditionalPaths[0])
	if err != nil {
		return nil, err
	}

	sp := &ShaderProgram{
		VertexSource:   vert,
		FragmentSource: frag,
		Uniforms:       collectUniforms(vert, frag),
	}
	sp.SetCost(int64(len(vert) + len(frag)))
	return sp, nil
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyShader, path)
	}
	return string(data), nil
}

// collectUniforms finds `uniform <type> <name>;` declarations.
func collectUniforms(sources ...string) []string {
	var out []string
	seen := map[string]bool{}
	for _, src := range sources {
		scanner := bufio.NewScanner(strings.NewReader(src))
		for scanner.Scan() {
			fields := strings.Fields(strings.TrimSpace(scanner.Text()))
			if len(fields) < 3 || fields[0] != "uniform" {
				continue
			}
			name := strings.TrimSuffix(fields[len(fields)-1], ";")
			if i := strings.IndexByte(name, '['); i >= 0 {
				name = name[:i]
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
