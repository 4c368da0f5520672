package resources

import (
	"encoding/json"
	"fmt"

	"github.com/spaghettifunk/reverie/engine/core"
)

// handleJSON is the blueprint a handle is saved as. The resource body is not
// part of it; handles that use JSON carry their resource JSON instead.
type handleJSON struct {
	Uuid            core.Uuid       `json:"uuid"`
	Name            string          `json:"name"`
	Path            string          `json:"path"`
	AdditionalPaths []string        `json:"additionalPaths,omitempty"`
	Type            ResourceType    `json:"type"`
	BehaviorFlags   BehaviorFlag    `json:"behaviorFlags"`
	ResourceJSON    json.RawMessage `json:"resourceJson,omitempty"`
}

func (h *ResourceHandle) MarshalJSON() ([]byte, error) {
	h.infoMu.RLock()
	out := handleJSON{
		Uuid:            h.uuid,
		Name:            h.name,
		Path:            h.path,
		AdditionalPaths: h.additionalPaths,
		Type:            h.resourceType,
		BehaviorFlags:   h.behavior.Load(),
	}
	cached := h.resourceJSON
	h.infoMu.RUnlock()

	if h.UsesJson() {
		if len(cached) == 0 {
			data, err := h.resourceJSONFromBody()
			if err != nil {
				return nil, err
			}
			cached = data
		}
		out.ResourceJSON = cached
	}
	return json.Marshal(out)
}

func (h *ResourceHandle) resourceJSONFromBody() (json.RawMessage, error) {
	h.mu.Lock()
	r := h.resource
	h.mu.Unlock()
	jr, ok := r.(JSONResource)
	if !ok {
		return nil, nil
	}
	data, err := jr.MarshalResourceJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal resource %s: %w", h.Name(), err)
	}
	return data, nil
}

func parseHandleJSON(data []byte) (handleJSON, error) {
	var in handleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidBlueprint, err)
	}
	if in.Uuid.IsNil() {
		return in, fmt.Errorf("%w: missing uuid", ErrInvalidBlueprint)
	}
	if !in.Type.IsValid() {
		return in, fmt.Errorf("%w: invalid type %d", ErrInvalidBlueprint, in.Type)
	}
	return in, nil
}

// NewResourceHandleFromJSON rebuilds a handle from its blueprint, keeping the
// saved UUID. The resource is not loaded and the handle is not inserted.
func NewResourceHandleFromJSON(cache *ResourceCache, data []byte) (*ResourceHandle, error) {
	in, err := parseHandleJSON(data)
	if err != nil {
		return nil, err
	}
	h := newResourceHandle(cache, in.Uuid, in.Type, in.Path, in.BehaviorFlags)
	if in.Name != "" {
		h.name = in.Name
	}
	if len(in.AdditionalPaths) > 0 {
		h.additionalPaths = in.AdditionalPaths
	}
	if len(in.ResourceJSON) > 0 {
		h.resourceJSON = in.ResourceJSON
	}
	return h, nil
}

// GetHandleFromJSON returns the handle with the blueprint's UUID, creating,
// inserting and loading it from the blueprint if it is not cached.
func (c *ResourceCache) GetHandleFromJSON(data []byte) (*ResourceHandle, error) {
	in, err := parseHandleJSON(data)
	if err != nil {
		return nil, err
	}
	if h := c.GetHandle(in.Uuid); h != nil {
		return h, nil
	}
	h, err := NewResourceHandleFromJSON(c, data)
	if err != nil {
		return nil, err
	}
	if _, err := c.InsertHandle(h); err != nil {
		return nil, err
	}
	h.LoadResource(false)
	return h, nil
}
