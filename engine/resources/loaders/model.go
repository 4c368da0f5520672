package loaders

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spaghettifunk/reverie/engine/resources"
)

type ModelPart struct {
	Mesh     string `json:"mesh"`
	Material string `json:"material,omitempty"`
}

// ModelDescriptor is the content of a model file, and the resource JSON of
// runtime generated models.
type ModelDescriptor struct {
	Name  string      `json:"name,omitempty"`
	Parts []ModelPart `json:"parts"`
}

// Model groups mesh and material children.
type Model struct {
	resources.BaseResource
	Descriptor ModelDescriptor
}

func (m *Model) Type() resources.ResourceType {
	return resources.ResourceTypeModel
}

func (m *Model) MarshalResourceJSON() ([]byte, error) {
	return json.Marshal(m.Descriptor)
}

// Meshes returns the mesh children in descriptor order.
func (m *Model) Meshes() []*resources.ResourceHandle {
	return m.partHandles(resources.ResourceTypeMesh, func(p ModelPart) string { return p.Mesh })
}

// Materials returns the material child of every part, nil for parts
// without one.
func (m *Model) Materials() []*resources.ResourceHandle {
	return m.partHandles(resources.ResourceTypeMaterial, func(p ModelPart) string { return p.Material })
}

func (m *Model) partHandles(t resources.ResourceType, path func(ModelPart) string) []*resources.ResourceHandle {
	h := m.Handle()
	if h == nil {
		return nil
	}
	children := h.ChildrenOfType(t)
	out := make([]*resources.ResourceHandle, len(m.Descriptor.Parts))
	for i, p := range m.Descriptor.Parts {
		for _, c := range children {
			if c.Path() == path(p) {
				out[i] = c
				break
			}
		}
	}
	return out
}

// ModelLoader reads a JSON model descriptor and loads its parts as
// children.
type ModelLoader struct{}

func (ModelLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	data := []byte(req.CachedJSON)
	if req.Path != "" {
		var err error
		if data, err = os.ReadFile(req.Path); err != nil {
			return nil, err
		}
	}

	var desc ModelDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("model %s: %w", req.Handle.Name(), err)
	}
	if len(desc.Parts) == 0 {
		return nil, fmt.Errorf("model %s: %w", req.Handle.Name(), errors.New("no parts"))
	}

	for _, p := range desc.Parts {
		if err := req.Context.Err(); err != nil {
			return nil, err
		}
		if p.Mesh == "" {
			return nil, fmt.Errorf("model %s: part without mesh", req.Handle.Name())
		}
		req.Handle.GuaranteeChildWithPath(resources.ResourceTypeMesh, p.Mesh, 0).LoadResource(true)
		if p.Material != "" {
			req.Handle.GuaranteeChildWithPath(resources.ResourceTypeMaterial, p.Material, 0).LoadResource(true)
		}
	}

	m := &Model{Descriptor: desc}
	m.SetCost(int64(len(data)))
	return m, nil
}
