package resources

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spaghettifunk/reverie/engine/core"
)

type cacheJSON struct {
	Resources []json.RawMessage `json:"resources"`
	MaxCost   int64             `json:"maxCost"`
}

// MarshalJSON saves every top-level handle that is not core, unsaved or
// still loading, sorted by name.
func (c *ResourceCache) MarshalJSON() ([]byte, error) {
	if c.IsLoadingResources() {
		core.LogWarn("saving resource cache while resources are still loading")
	}

	var saved []*ResourceHandle
	for _, h := range c.TopLevelHandles() {
		if h.IsUnsaved() || h.IsCore() {
			continue
		}
		if h.IsLoading() {
			core.LogWarn("resource %s is not loaded, skipping it", h.Name())
			continue
		}
		saved = append(saved, h)
	}
	sort.SliceStable(saved, func(i, j int) bool {
		return strings.ToLower(saved[i].Name()) < strings.ToLower(saved[j].Name())
	})

	out := cacheJSON{
		Resources: make([]json.RawMessage, 0, len(saved)),
		MaxCost:   c.MaxCost(),
	}
	for _, h := range saved {
		data, err := h.MarshalJSON()
		if err != nil {
			return nil, err
		}
		out.Resources = append(out.Resources, data)
	}
	return json.Marshal(out)
}

// LoadJSON recreates the handles of a saved cache, by type so that
// dependencies are requested first, and starts loading them.
func (c *ResourceCache) LoadJSON(data []byte) error {
	var in cacheJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("load resource cache: %w", err)
	}

	type entry struct {
		t    ResourceType
		data json.RawMessage
	}
	entries := make([]entry, 0, len(in.Resources))
	for _, raw := range in.Resources {
		var head struct {
			Type ResourceType `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidBlueprint, err)
		}
		entries = append(entries, entry{t: head.Type, data: raw})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].t < entries[j].t })

	c.SetMaxCost(in.MaxCost)
	for _, e := range entries {
		if _, err := c.GetHandleFromJSON(e.data); err != nil {
			return err
		}
	}
	return nil
}
