package resources

import (
	"container/list"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/docker/go-units"

	"github.com/spaghettifunk/reverie/engine/containers"
	"github.com/spaghettifunk/reverie/engine/core"
)

const defaultPostConstructionQueueSize = 64

var ErrNegativeMaxCost = errors.New("resource cache max cost cannot be negative")

// ResourceCache owns every ResourceHandle. It keeps top-level handles in MRU
// order, evicts the least recently used removable ones when the cost budget
// is exceeded and hands loaded resources over to the main thread.
//
// The cost invariant is that currentCost equals the summed cost of the
// handles in the map.
type ResourceCache struct {
	// guards handles, topLevel, elements, costs and the handle trees
	mu          sync.RWMutex
	handles     map[core.Uuid]*ResourceHandle
	topLevel    *list.List
	elements    map[core.Uuid]*list.Element
	maxCost     int64
	currentCost int64
	coreSpecs   []CoreResource

	// guards the post-construction queue and deferred reloads
	postMu          sync.Mutex
	postQueue       *containers.RingQueue[core.Uuid]
	postData        map[core.Uuid]PostConstructionData
	deferredReloads []core.Uuid

	loadCount atomic.Int64

	loadersMu sync.RWMutex
	loaders   map[ResourceType]loaderEntry

	dispatcher Dispatcher
	resolver   PathResolver
}

func NewResourceCache(config CacheConfig) (*ResourceCache, error) {
	if config.MaxCost < 0 {
		return nil, ErrNegativeMaxCost
	}
	queueSize := config.PostConstructionQueueSize
	if queueSize <= 0 {
		queueSize = defaultPostConstructionQueueSize
	}
	resolver := config.Resolver
	if resolver == nil {
		resolver = statResolver{}
	}
	return &ResourceCache{
		handles:    make(map[core.Uuid]*ResourceHandle),
		topLevel:   list.New(),
		elements:   make(map[core.Uuid]*list.Element),
		maxCost:    config.MaxCost,
		postQueue:  containers.NewGrowableRingQueue[core.Uuid](queueSize),
		postData:   make(map[core.Uuid]PostConstructionData),
		loaders:    make(map[ResourceType]loaderEntry),
		dispatcher: config.Dispatcher,
		resolver:   resolver,
	}, nil
}

// RegisterLoader sets the loader used for handles of type t.
func (c *ResourceCache) RegisterLoader(t ResourceType, loader Loader, options LoaderOptions) {
	c.loadersMu.Lock()
	defer c.loadersMu.Unlock()
	c.loaders[t] = loaderEntry{loader: loader, options: options}
}

func (c *ResourceCache) loaderFor(t ResourceType) (loaderEntry, bool) {
	c.loadersMu.RLock()
	defer c.loadersMu.RUnlock()
	e, ok := c.loaders[t]
	return e, ok
}

func (c *ResourceCache) MaxCost() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxCost
}

// SetMaxCost changes the budget and evicts down to it.
func (c *ResourceCache) SetMaxCost(maxCost int64) {
	c.mu.Lock()
	c.maxCost = maxCost
	c.mu.Unlock()
	c.trim(nil)
}

func (c *ResourceCache) CurrentCost() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentCost
}

// Len is the number of handles in the cache, children included.
func (c *ResourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// TopLevelHandles returns the top-level handles, most recently used first.
func (c *ResourceCache) TopLevelHandles() []*ResourceHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ResourceHandle, 0, c.topLevel.Len())
	for e := c.topLevel.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*ResourceHandle))
	}
	return out
}

// ClearedRemovable is true when every top-level handle is permanent.
func (c *ResourceCache) ClearedRemovable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clearedRemovableLocked()
}

func (c *ResourceCache) clearedRemovableLocked() bool {
	for e := c.topLevel.Front(); e != nil; e = e.Next() {
		if !e.Value.(*ResourceHandle).IsPermanent() {
			return false
		}
	}
	return true
}

func (c *ResourceCache) GetHandle(id core.Uuid) *ResourceHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handles[id]
}

// GetHandleWithName finds a handle by type and case-insensitive name.
func (c *ResourceCache) GetHandleWithName(name string, t ResourceType) *ResourceHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, h := range c.handles {
		if h.resourceType == t && strings.EqualFold(h.Name(), name) {
			return h
		}
	}
	return nil
}

func (c *ResourceCache) TopLevelHandleWithPath(path string) *ResourceHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topLevelWithPathLocked(path)
}

func (c *ResourceCache) topLevelWithPathLocked(path string) *ResourceHandle {
	for e := c.topLevel.Front(); e != nil; e = e.Next() {
		h := e.Value.(*ResourceHandle)
		if h.Path() == path {
			return h
		}
	}
	return nil
}

// GuaranteeHandleWithPath returns the top-level handle for path, creating,
// inserting and starting to load it if there is none.
func (c *ResourceCache) GuaranteeHandleWithPath(path string, t ResourceType, flags BehaviorFlag) *ResourceHandle {
	return c.GuaranteeHandleWithPaths([]string{path}, t, flags)
}

// GuaranteeHandleWithPaths is GuaranteeHandleWithPath for resources made of
// several files sharing one handle. An existing handle matching any of the
// paths is returned.
func (c *ResourceCache) GuaranteeHandleWithPaths(paths []string, t ResourceType, flags BehaviorFlag) *ResourceHandle {
	c.mu.Lock()
	for _, p := range paths {
		if p == "" {
			continue
		}
		if h := c.topLevelWithPathLocked(p); h != nil {
			core.Assert(h.resourceType == t, "handle type mismatch for %s: %s != %s", p, h.resourceType, t)
			c.touchLocked(h)
			c.mu.Unlock()
			h.SetBehaviorFlags(flags)
			return h
		}
	}

	h := NewResourceHandleWithPaths(c, t, paths, flags)
	ok, victims := c.insertLocked(h)
	cost, current, limit := h.cost, c.currentCost, c.maxCost
	c.mu.Unlock()
	c.unloadTrees(victims)
	if !ok {
		warnOverBudget(h, cost, current, limit)
	}

	h.LoadResource(false)
	return h
}

// InsertHandle adds h to the cache, evicting least recently used handles
// first if its cost does not fit the budget. cleared reports whether any
// handle was evicted. Inserting a UUID twice only touches the handle.
func (c *ResourceCache) InsertHandle(h *ResourceHandle) (cleared bool, err error) {
	c.mu.Lock()
	if _, ok := c.handles[h.uuid]; ok {
		core.Assert(false, "handle %s inserted twice", h.uuid)
		c.touchLocked(h)
		c.mu.Unlock()
		return false, ErrDuplicateHandle
	}
	ok, victims := c.insertLocked(h)
	cost, current, limit := h.cost, c.currentCost, c.maxCost
	c.mu.Unlock()
	c.unloadTrees(victims)

	if !ok {
		warnOverBudget(h, cost, current, limit)
	}
	return len(victims) > 0, nil
}

func warnOverBudget(h *ResourceHandle, cost, current, limit int64) {
	core.LogWarn("could not free enough budget for %s (cost %s, current %s, max %s)",
		h.Name(), units.BytesSize(float64(cost)), units.BytesSize(float64(current)), units.BytesSize(float64(limit)))
}

// insertLocked reports false when the budget could not be met.
func (c *ResourceCache) insertLocked(h *ResourceHandle) (bool, []*ResourceHandle) {
	victims := c.evictLocked(h.cost, nil)
	c.handles[h.uuid] = h
	c.currentCost += h.cost
	if !h.IsChild() {
		c.elements[h.uuid] = c.topLevel.PushFront(h)
	}
	return c.currentCost <= c.maxCost, victims
}

// evictLocked detaches least recently used removable top-level trees until
// need more units fit the budget. keep, if set, is never evicted. The
// returned handles, children before their parents, are no longer in the
// cache and still hold their bodies.
func (c *ResourceCache) evictLocked(need int64, keep *ResourceHandle) []*ResourceHandle {
	var victims []*ResourceHandle
	for e := c.topLevel.Back(); e != nil && c.currentCost+need > c.maxCost; {
		prev := e.Prev()
		h := e.Value.(*ResourceHandle)
		if h != keep && !h.IsPermanent() {
			tree := c.subtreeLocked(h, nil)
			var cost int64
			for _, t := range tree {
				cost += t.cost
			}
			if cost > 0 {
				c.removeFromCacheLocked(h, true)
				victims = append(victims, tree...)
				core.MetricsResources().Evicted.Add(1)
			}
		}
		e = prev
	}
	return victims
}

// subtreeLocked appends h and its dependent descendants to out, children
// before parents.
func (c *ResourceCache) subtreeLocked(h *ResourceHandle, out []*ResourceHandle) []*ResourceHandle {
	if !h.IsRuntimeGenerated() {
		for _, child := range c.childrenLocked(h) {
			if child.IsChild() {
				out = c.subtreeLocked(child, out)
			}
		}
	}
	return append(out, h)
}

// trim evicts down to the budget, keeping the top-level ancestor of keep.
func (c *ResourceCache) trim(keep *ResourceHandle) {
	c.mu.Lock()
	if c.currentCost <= c.maxCost {
		c.mu.Unlock()
		return
	}
	var top *ResourceHandle
	if keep != nil {
		top = c.topAncestorLocked(keep)
	}
	victims := c.evictLocked(0, top)
	over := c.currentCost > c.maxCost
	current, limit := c.currentCost, c.maxCost
	c.mu.Unlock()
	c.unloadTrees(victims)
	if over {
		core.LogWarn("resource cache over budget with nothing left to evict (%s of %s)",
			units.BytesSize(float64(current)), units.BytesSize(float64(limit)))
	}
}

// unloadTrees unloads handles collected by subtreeLocked one by one, since
// detached handles cannot reach their children through the cache anymore.
func (c *ResourceCache) unloadTrees(handles []*ResourceHandle) {
	for _, h := range handles {
		core.LogDebug("unloading resource %s", h.Name())
		h.unloadSelf(true)
		c.fireResourceEvent(core.EVENT_CODE_RESOURCE_DELETED, h)
	}
}

func (c *ResourceCache) topAncestorLocked(h *ResourceHandle) *ResourceHandle {
	for !h.parent.IsNil() {
		p, ok := c.handles[h.parent]
		if !ok {
			break
		}
		h = p
	}
	return h
}

// resourceAttached accounts the cost of a freshly attached body.
func (c *ResourceCache) resourceAttached(h *ResourceHandle, cost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handles[h.uuid]; ok {
		c.currentCost += cost - h.cost
	}
	h.cost = cost
}

func (c *ResourceCache) resourceDetached(h *ResourceHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handles[h.uuid]; ok {
		c.currentCost -= h.cost
		core.Assert(c.currentCost >= 0, "resource cache cost went negative: %d", c.currentCost)
	}
	h.cost = 0
}

func (c *ResourceCache) touchLocked(h *ResourceHandle) {
	if e, ok := c.elements[h.uuid]; ok {
		c.topLevel.MoveToFront(e)
	}
}

func (c *ResourceCache) childrenLocked(h *ResourceHandle) []*ResourceHandle {
	out := make([]*ResourceHandle, 0, len(h.children))
	for _, id := range h.children {
		if child, ok := c.handles[id]; ok {
			out = append(out, child)
		}
	}
	return out
}

func (c *ResourceCache) addChildLocked(parent, child *ResourceHandle) {
	if slices.Contains(parent.children, child.uuid) {
		core.Assert(false, "child %s already added to %s", child.Name(), parent.Name())
		return
	}
	if !child.parent.IsNil() && child.parent != parent.uuid {
		core.Assert(false, "child %s already has a parent", child.Name())
		return
	}
	if _, ok := c.handles[child.uuid]; !ok {
		c.handles[child.uuid] = child
		c.currentCost += child.cost
	}
	if e, ok := c.elements[child.uuid]; ok {
		c.topLevel.Remove(e)
		delete(c.elements, child.uuid)
	}
	child.behavior.Set(BehaviorChild, true)
	child.parent = parent.uuid
	parent.children = append(parent.children, child.uuid)
	parent.behavior.Set(BehaviorParent, true)
}

// removeFromCacheLocked drops h and its dependent children from the map.
// Children of runtime generated parents become top-level handles.
func (c *ResourceCache) removeFromCacheLocked(h *ResourceHandle, removeFromTopLevel bool) {
	if _, ok := c.handles[h.uuid]; !ok {
		core.Assert(false, "failed to erase %s from the resource map", h.Name())
		return
	}
	if !h.parent.IsNil() {
		if p, ok := c.handles[h.parent]; ok {
			p.children = slices.DeleteFunc(p.children, func(id core.Uuid) bool { return id == h.uuid })
		}
	}
	c.detachLocked(h, removeFromTopLevel)
}

func (c *ResourceCache) detachLocked(h *ResourceHandle, removeFromTopLevel bool) {
	delete(c.handles, h.uuid)
	c.currentCost -= h.cost
	if e, ok := c.elements[h.uuid]; ok && removeFromTopLevel {
		c.topLevel.Remove(e)
		delete(c.elements, h.uuid)
	}

	for _, id := range h.children {
		child, ok := c.handles[id]
		if !ok {
			continue
		}
		if h.IsRuntimeGenerated() || !child.IsChild() {
			child.parent = core.Uuid{}
			child.behavior.Set(BehaviorChild, false)
			if _, tracked := c.elements[child.uuid]; !tracked {
				c.elements[child.uuid] = c.topLevel.PushFront(child)
			}
			continue
		}
		c.detachLocked(child, removeFromTopLevel)
	}
}

// Remove unloads a top-level handle's resource tree. Core and non-removable
// handles are refused unless DeleteForce is given. DeleteHandle also drops
// the handle from the cache instead of leaving a reloadable stub.
func (c *ResourceCache) Remove(h *ResourceHandle, flags DeleteFlag) bool {
	c.mu.Lock()
	if _, ok := c.handles[h.uuid]; !ok {
		c.mu.Unlock()
		return false
	}
	if h.IsChild() {
		c.mu.Unlock()
		core.Assert(false, "%s: %s", ErrNotTopLevel, h.Name())
		return false
	}
	c.touchLocked(h)
	if h.IsPermanent() && flags&DeleteForce == 0 {
		c.mu.Unlock()
		return false
	}
	tree := c.subtreeLocked(h, nil)
	if flags&DeleteHandle != 0 {
		c.removeFromCacheLocked(h, true)
	}
	c.mu.Unlock()

	c.unloadTrees(tree)
	core.LogDebug("removed resource %s, current cost %s", h.Name(), units.BytesSize(float64(c.CurrentCost())))
	return true
}

// RegisterCoreResource adds a built-in resource and creates its handle.
// Clear recreates core resources that went missing.
func (c *ResourceCache) RegisterCoreResource(spec CoreResource) *ResourceHandle {
	c.mu.Lock()
	c.coreSpecs = append(c.coreSpecs, spec)
	c.mu.Unlock()
	return c.seedCoreResource(spec)
}

func (c *ResourceCache) seedCoreResource(spec CoreResource) *ResourceHandle {
	if len(spec.Paths) > 0 {
		if h := c.TopLevelHandleWithPath(spec.Paths[0]); h != nil {
			return h
		}
	} else if h := c.GetHandleWithName(spec.Name, spec.Type); h != nil {
		return h
	}
	h := NewResourceHandleWithPaths(c, spec.Type, spec.Paths, spec.Flags|BehaviorCore)
	if spec.Name != "" {
		h.SetName(spec.Name)
	}
	if _, err := c.InsertHandle(h); err != nil {
		core.LogError("failed to insert core resource %s: %s", spec.Name, err)
		return nil
	}
	h.LoadResource(false)
	return h
}

// Clear removes every non-core resource, then seeds the core resources
// again.
func (c *ResourceCache) Clear() {
	if c.IsLoadingResources() {
		core.LogWarn("clearing resource cache while %d resources are loading", c.loadCount.Load())
	}

	c.mu.Lock()
	var tops, removed []*ResourceHandle
	for e := c.topLevel.Front(); e != nil; e = e.Next() {
		if h := e.Value.(*ResourceHandle); !h.IsCore() {
			tops = append(tops, h)
		}
	}
	for _, h := range tops {
		// promoted children of runtime generated handles go as well
		if _, ok := c.handles[h.uuid]; ok {
			removed = c.subtreeLocked(h, removed)
			c.removeFromCacheLocked(h, true)
		}
	}
	specs := slices.Clone(c.coreSpecs)
	c.mu.Unlock()

	c.unloadTrees(removed)
	for _, spec := range specs {
		c.seedCoreResource(spec)
	}
}

// ReloadHandle drops the handle's resource and loads it again.
func (c *ResourceCache) ReloadHandle(h *ResourceHandle) bool {
	if h.IsLoading() {
		return false
	}
	h.UnloadResource(true)
	h.LoadResource(false)
	return true
}

// ReloadPath reloads every top-level handle reading from the file at path.
func (c *ResourceCache) ReloadPath(path string) bool {
	target, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	reloaded := false
	for _, h := range c.TopLevelHandles() {
		for _, p := range h.Paths() {
			full, err := c.resolver.SearchFor(p, h.resourceType)
			if err != nil {
				continue
			}
			if abs, err := filepath.Abs(full); err == nil && abs == target {
				core.LogInfo("reloading %s after change to %s", h.Name(), path)
				reloaded = c.ReloadHandle(h) || reloaded
				break
			}
		}
	}
	return reloaded
}

func (c *ResourceCache) fireResourceEvent(code core.SystemEventCode, h *ResourceHandle) {
	if h.IsHidden() {
		return
	}
	core.EventFire(core.EventContext{
		Type:   code,
		Sender: c,
		Data:   ResourceEvent{Uuid: h.uuid, Name: h.Name(), Type: h.resourceType},
	})
}

func (c *ResourceCache) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("ResourceCache{handles: %d, top-level: %d, cost: %s/%s}",
		len(c.handles), c.topLevel.Len(), units.BytesSize(float64(c.currentCost)), units.BytesSize(float64(c.maxCost)))
}
