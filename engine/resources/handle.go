package resources

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spaghettifunk/reverie/engine/core"
)

// ResourceHandle is the cache-facing wrapper around a Resource. Handles are
// owned by their ResourceCache; parent and children are UUIDs resolved
// through the cache.
//
// Locking: mu guards the resource pointer and may be held while taking the
// cache lock, never the other way around. infoMu guards the descriptive
// fields and is never held while acquiring another lock.
type ResourceHandle struct {
	uuid         core.Uuid
	resourceType ResourceType
	cache        *ResourceCache

	behavior core.Flags[BehaviorFlag]
	status   core.Flags[StatusFlag]

	mu       sync.Mutex
	resource Resource

	infoMu          sync.RWMutex
	name            string
	path            string
	additionalPaths []string
	resourceJSON    json.RawMessage

	// guarded by cache.mu
	parent   core.Uuid
	children []core.Uuid
	cost     int64
}

// NewResourceHandle creates a handle with a fresh UUID and no resource. The
// handle is not part of the cache until it is inserted.
func NewResourceHandle(cache *ResourceCache, t ResourceType, path string, flags BehaviorFlag) *ResourceHandle {
	return newResourceHandle(cache, core.NewUuid(), t, path, flags)
}

// NewResourceHandleWithPaths creates a handle for a resource spread over
// several files. The first path is the main one.
func NewResourceHandleWithPaths(cache *ResourceCache, t ResourceType, paths []string, flags BehaviorFlag) *ResourceHandle {
	var path string
	if len(paths) > 0 {
		path = paths[0]
	}
	h := NewResourceHandle(cache, t, path, flags)
	if len(paths) > 1 {
		h.additionalPaths = slices.Clone(paths[1:])
	}
	return h
}

func newResourceHandle(cache *ResourceCache, id core.Uuid, t ResourceType, path string, flags BehaviorFlag) *ResourceHandle {
	h := &ResourceHandle{
		uuid:         id,
		resourceType: t,
		cache:        cache,
		path:         path,
	}
	if path != "" {
		h.name = filepath.Base(path)
	}
	h.behavior.Store(flags)
	return h
}

func (h *ResourceHandle) Uuid() core.Uuid {
	return h.uuid
}

func (h *ResourceHandle) Type() ResourceType {
	return h.resourceType
}

func (h *ResourceHandle) Cache() *ResourceCache {
	return h.cache
}

func (h *ResourceHandle) Name() string {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	return h.name
}

func (h *ResourceHandle) SetName(name string) {
	h.infoMu.Lock()
	h.name = name
	h.infoMu.Unlock()
}

func (h *ResourceHandle) Path() string {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	return h.path
}

func (h *ResourceHandle) AdditionalPaths() []string {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	return slices.Clone(h.additionalPaths)
}

func (h *ResourceHandle) AddAdditionalPath(path string) {
	h.infoMu.Lock()
	h.additionalPaths = append(h.additionalPaths, path)
	h.infoMu.Unlock()
}

// Paths returns the main path followed by the additional paths.
func (h *ResourceHandle) Paths() []string {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	if h.path == "" && len(h.additionalPaths) == 0 {
		return nil
	}
	return append([]string{h.path}, h.additionalPaths...)
}

// SetChildPaths sets path on the handle and, recursively, on its children.
func (h *ResourceHandle) SetChildPaths(path string) {
	h.infoMu.Lock()
	h.path = path
	h.infoMu.Unlock()
	for _, child := range h.Children() {
		child.SetChildPaths(path)
	}
}

func (h *ResourceHandle) CachedResourceJSON() json.RawMessage {
	h.infoMu.RLock()
	defer h.infoMu.RUnlock()
	return h.resourceJSON
}

func (h *ResourceHandle) SetCachedResourceJSON(data json.RawMessage) {
	h.infoMu.Lock()
	h.resourceJSON = slices.Clone(data)
	h.infoMu.Unlock()
}

// Lock and Unlock expose the resource mutex for callers that need to use
// SetResource or UnloadResource without locking.
func (h *ResourceHandle) Lock() {
	h.mu.Lock()
}

func (h *ResourceHandle) Unlock() {
	h.mu.Unlock()
}

func (h *ResourceHandle) BehaviorFlags() BehaviorFlag {
	return h.behavior.Load()
}

// SetBehaviorFlags replaces the configurable flags. The Child and Parent bits
// describe the tree and are left untouched.
func (h *ResourceHandle) SetBehaviorFlags(flags BehaviorFlag) {
	const structural = BehaviorChild | BehaviorParent
	for {
		cr := h.behavior.Load()
		nw := (flags &^ structural) | (cr & structural)
		if cr == nw {
			return
		}
		set, clear := nw&^cr, cr&^nw
		if h.behavior.Update(set, clear) == nw {
			return
		}
	}
}

func (h *ResourceHandle) IsRemovable() bool        { return h.behavior.Has(BehaviorRemovable) }
func (h *ResourceHandle) SetRemovable(on bool)     { h.behavior.Set(BehaviorRemovable, on) }
func (h *ResourceHandle) IsChild() bool            { return h.behavior.Has(BehaviorChild) }
func (h *ResourceHandle) IsParent() bool           { return h.behavior.Has(BehaviorParent) }
func (h *ResourceHandle) IsRuntimeGenerated() bool { return h.behavior.Has(BehaviorRuntimeGenerated) }
func (h *ResourceHandle) SetRuntimeGenerated(on bool) {
	h.behavior.Set(BehaviorRuntimeGenerated, on)
}
func (h *ResourceHandle) IsCore() bool          { return h.behavior.Has(BehaviorCore) }
func (h *ResourceHandle) SetCore(on bool)       { h.behavior.Set(BehaviorCore, on) }
func (h *ResourceHandle) IsUnsaved() bool       { return h.behavior.Has(BehaviorUnsaved) }
func (h *ResourceHandle) SetUnsaved(on bool)    { h.behavior.Set(BehaviorUnsaved, on) }
func (h *ResourceHandle) IsHidden() bool        { return h.behavior.Has(BehaviorHidden) }
func (h *ResourceHandle) SetHidden(on bool)     { h.behavior.Set(BehaviorHidden, on) }
func (h *ResourceHandle) SetUsesJson(on bool)   { h.behavior.Set(BehaviorUsesJson, on) }
func (h *ResourceHandle) IsLoading() bool       { return h.status.Has(StatusIsLoading) }
func (h *ResourceHandle) IsConstructed() bool   { return h.status.Has(StatusConstructed) }
func (h *ResourceHandle) StatusFlags() StatusFlag { return h.status.Load() }

// UsesJson reports whether the handle keeps its resource JSON around.
// Runtime generated resources always do, they have no file to reload from.
func (h *ResourceHandle) UsesJson() bool {
	return h.behavior.Has(BehaviorUsesJson) || h.IsRuntimeGenerated()
}

// Cost is the cost of the attached resource as accounted by the cache.
func (h *ResourceHandle) Cost() int64 {
	h.cache.mu.RLock()
	defer h.cache.mu.RUnlock()
	return h.cost
}

// IsPermanent is true for handles the cache will not remove on its own.
func (h *ResourceHandle) IsPermanent() bool {
	return h.IsCore() || !h.IsRemovable()
}

func (h *ResourceHandle) hasResource() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resource != nil
}

// NeedsReload is true when there is no resource and none is being loaded.
func (h *ResourceHandle) NeedsReload() bool {
	return !h.hasResource() && !h.IsLoading()
}

// IsFullyConstructed reports whether the handle and every dependent child
// finished post-construction.
func (h *ResourceHandle) IsFullyConstructed() bool {
	if !h.IsConstructed() {
		return false
	}
	for _, child := range h.dependentChildren() {
		if !child.IsFullyConstructed() {
			return false
		}
	}
	return true
}

// Resource returns the attached resource. A handle that needs a reload
// requests one and returns nil unless the reload completed synchronously.
// Must not be called while holding the handle lock.
func (h *ResourceHandle) Resource() Resource {
	h.mu.Lock()
	r := h.resource
	h.mu.Unlock()
	if r != nil {
		h.Touch()
		return r
	}
	if h.NeedsReload() {
		h.cache.requestReload(h)
		h.mu.Lock()
		r = h.resource
		h.mu.Unlock()
	}
	return r
}

// ResourceAs returns the resource of h as T.
func ResourceAs[T Resource](h *ResourceHandle) (T, bool) {
	var zero T
	r := h.Resource()
	if r == nil {
		return zero, false
	}
	t, ok := r.(T)
	return t, ok
}

// LoadResource constructs the resource body, synchronously when serial is
// set or the type loads on the main thread, on the dispatcher otherwise.
// Loading a handle that already has a resource or is loading is a no-op.
func (h *ResourceHandle) LoadResource(serial bool) {
	if h.hasResource() {
		core.LogDebug("resource %s already loaded, skipping load", h.Name())
		return
	}
	if !h.status.TryUpdate(StatusIsLoading, StatusConstructed, StatusIsLoading) {
		core.LogDebug("resource %s is already loading", h.Name())
		return
	}
	h.cache.load(h, serial)
}

// SetResource installs r as the handle's resource. The handle is marked as
// loading until the resource is post-constructed on the main thread. When
// lockMutex is false the caller must hold the handle lock.
func (h *ResourceHandle) SetResource(r Resource, lockMutex bool) error {
	if r == nil {
		return ErrNilResource
	}
	if r.Type() != h.resourceType {
		core.Assert(false, "resource of type %s added to handle %s of type %s", r.Type(), h.Name(), h.resourceType)
		return ErrTypeMismatch
	}

	if lockMutex {
		h.mu.Lock()
	}
	if h.resource != nil && h.resource != r {
		h.resource.OnRemoval()
	}
	r.setHandle(h)
	h.resource = r
	h.status.Update(StatusIsLoading, StatusConstructed)
	h.cache.resourceAttached(h, r.Cost())
	if lockMutex {
		h.mu.Unlock()
	}
	// trim only takes the cache lock and never evicts the tree holding h
	h.cache.trim(h)
	return nil
}

// UnloadResource tears down the dependent children, then calls OnRemoval on
// the handle's resource and drops it. The handle stays in the cache and can
// be reloaded.
func (h *ResourceHandle) UnloadResource(lockMutex bool) {
	for _, child := range h.dependentChildren() {
		child.UnloadResource(true)
		h.cache.fireResourceEvent(core.EVENT_CODE_RESOURCE_DELETED, child)
	}
	h.unloadSelf(lockMutex)
}

func (h *ResourceHandle) unloadSelf(lockMutex bool) {
	if lockMutex {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	if h.resource != nil {
		h.resource.OnRemoval()
		h.resource = nil
		// a body waiting for post-construction is gone as well
		h.status.Update(0, StatusConstructed|StatusIsLoading)
	} else {
		h.status.Set(StatusConstructed, false)
	}
	h.cache.resourceDetached(h)
}

// RemoveFromCache detaches the handle (and its dependent children) from the
// cache. A child is pulled out of its parent's children.
func (h *ResourceHandle) RemoveFromCache(removeFromTopLevel bool) {
	h.cache.mu.Lock()
	h.cache.removeFromCacheLocked(h, removeFromTopLevel)
	h.cache.mu.Unlock()
}

// Touch marks the handle as most recently used. Children are not tracked.
func (h *ResourceHandle) Touch() {
	if h.IsChild() {
		return
	}
	h.cache.mu.Lock()
	h.cache.touchLocked(h)
	h.cache.mu.Unlock()
}

func (h *ResourceHandle) Parent() *ResourceHandle {
	h.cache.mu.RLock()
	defer h.cache.mu.RUnlock()
	if h.parent.IsNil() {
		return nil
	}
	return h.cache.handles[h.parent]
}

func (h *ResourceHandle) Children() []*ResourceHandle {
	h.cache.mu.RLock()
	defer h.cache.mu.RUnlock()
	return h.cache.childrenLocked(h)
}

// dependentChildren are the children whose lifetime follows this handle.
// Runtime generated parents link children by hand and do not own them.
func (h *ResourceHandle) dependentChildren() []*ResourceHandle {
	if h.IsRuntimeGenerated() {
		return nil
	}
	out := h.Children()
	return slices.DeleteFunc(out, func(c *ResourceHandle) bool { return !c.IsChild() })
}

// AddChild links child under h. The child is inserted into the cache if
// needed and stops being tracked as a top-level handle.
func (h *ResourceHandle) AddChild(child *ResourceHandle) {
	h.cache.mu.Lock()
	h.cache.addChildLocked(h, child)
	h.cache.mu.Unlock()
}

// NewChild creates a child handle under h.
func (h *ResourceHandle) NewChild(t ResourceType, path string, flags BehaviorFlag) *ResourceHandle {
	child := NewResourceHandle(h.cache, t, path, flags|BehaviorChild)
	h.AddChild(child)
	return child
}

// GuaranteeChildWithPath returns the child of type t with the given path,
// creating it if there is none.
func (h *ResourceHandle) GuaranteeChildWithPath(t ResourceType, path string, flags BehaviorFlag) *ResourceHandle {
	for _, child := range h.Children() {
		if child.resourceType == t && child.Path() == path {
			return child
		}
	}
	return h.NewChild(t, path, flags)
}

func (h *ResourceHandle) Child(id core.Uuid) *ResourceHandle {
	h.cache.mu.RLock()
	defer h.cache.mu.RUnlock()
	if !slices.Contains(h.children, id) {
		return nil
	}
	return h.cache.handles[id]
}

// ChildWithName finds a child by type and case-insensitive name.
func (h *ResourceHandle) ChildWithName(name string, t ResourceType) *ResourceHandle {
	for _, child := range h.Children() {
		if child.resourceType == t && strings.EqualFold(child.Name(), name) {
			return child
		}
	}
	return nil
}

func (h *ResourceHandle) ChildrenOfType(t ResourceType) []*ResourceHandle {
	out := h.Children()
	return slices.DeleteFunc(out, func(c *ResourceHandle) bool { return c.resourceType != t })
}

// postConstruct finalizes dependent children first, then the handle itself.
// Runs on the main thread only.
func (h *ResourceHandle) postConstruct(data PostConstructionData, level int) {
	if h.IsConstructed() {
		core.LogDebug("skipping post-construction of already constructed resource %s", h.Name())
		return
	}

	for _, child := range h.dependentChildren() {
		child.postConstruct(nil, level+1)
	}

	h.mu.Lock()
	r := h.resource
	if r == nil {
		h.mu.Unlock()
		core.LogWarn("resource %s has no body to post-construct", h.Name())
		return
	}
	r.PostConstruction(data)
	h.setConstructed()
	h.mu.Unlock()

	core.MetricsResources().Constructed.Add(1)
	h.cache.fireResourceEvent(core.EVENT_CODE_RESOURCE_ADDED, h)
}

// setConstructed sets Constructed and clears IsLoading in one step.
func (h *ResourceHandle) setConstructed() {
	core.Assert(h.IsLoading(), "resource %s marked constructed while not loading", h.Name())
	h.status.Update(StatusConstructed, StatusIsLoading)
}
