package resources

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/reverie/engine/core"
)

// load runs once LoadResource flagged h as loading.
func (c *ResourceCache) load(h *ResourceHandle, serial bool) {
	entry, ok := c.loaderFor(h.resourceType)
	if !ok {
		c.loadFailed(h, fmt.Errorf("%w: %s", ErrNoLoader, h.resourceType))
		return
	}
	req, err := c.newLoadRequest(h)
	if err != nil {
		c.loadFailed(h, err)
		return
	}

	if serial || entry.options.MainThread || c.dispatcher == nil {
		req.Context = context.Background()
		_ = c.runLoad(entry.loader, req)
		return
	}

	topLevel := !h.IsChild()
	if topLevel {
		c.incrementLoadCount()
	}
	err = c.dispatcher.Dispatch("load "+h.Name(), func(ctx context.Context) error {
		if topLevel {
			defer c.decrementLoadCount()
		}
		req.Context = ctx
		return c.runLoad(entry.loader, req)
	})
	if err != nil {
		if topLevel {
			c.decrementLoadCount()
		}
		c.loadFailed(h, err)
	}
}

func (c *ResourceCache) newLoadRequest(h *ResourceHandle) (*LoadRequest, error) {
	req := &LoadRequest{
		Handle:     h,
		CachedJSON: h.CachedResourceJSON(),
	}
	paths := h.Paths()
	if len(paths) == 0 || paths[0] == "" {
		if h.UsesJson() && len(req.CachedJSON) > 0 {
			return req, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoPath, h.Name())
	}
	for i, p := range paths {
		full, err := c.resolver.SearchFor(p, h.resourceType)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
		}
		if i == 0 {
			req.Path = full
		} else {
			req.AdditionalPaths = append(req.AdditionalPaths, full)
		}
	}
	return req, nil
}

// runLoad builds the resource and attaches it. No cache lock is held while
// the loader runs.
func (c *ResourceCache) runLoad(loader Loader, req *LoadRequest) error {
	h := req.Handle
	if err := req.Context.Err(); err != nil {
		c.loadFailed(h, err)
		return err
	}

	r, err := loader.Load(req)
	if err == nil && r == nil {
		err = ErrNilResource
	}
	if err == nil && r.Type() != h.resourceType {
		err = fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, r.Type(), h.resourceType)
	}
	if err == nil {
		err = h.SetResource(r, true)
	}
	if err != nil {
		c.loadFailed(h, err)
		return err
	}

	if h.UsesJson() {
		if jr, ok := r.(JSONResource); ok {
			if data, err := jr.MarshalResourceJSON(); err == nil {
				h.SetCachedResourceJSON(data)
			}
		}
	}
	core.MetricsResources().Loaded.Add(1)
	h.Touch()

	if c.ownsPostConstruction(h) {
		c.QueuePostConstruction(h.uuid)
	}
	return nil
}

// ownsPostConstruction is false for children loaded as part of their
// parent, which post-constructs them. Runtime generated parents do not.
func (c *ResourceCache) ownsPostConstruction(h *ResourceHandle) bool {
	if !h.IsChild() {
		return true
	}
	p := h.Parent()
	return p == nil || p.IsRuntimeGenerated() || !p.IsLoading()
}

func (c *ResourceCache) loadFailed(h *ResourceHandle, err error) {
	h.status.Set(StatusIsLoading, false)
	core.MetricsResources().Failed.Add(1)
	core.LogError("failed to load resource %s: %s", h.Name(), err)
	c.fireResourceEvent(core.EVENT_CODE_RESOURCE_LOAD_FAILED, h)
}

// requestReload is called when a handle without a resource is accessed.
// Main thread loaders are deferred to the next PostConstructResources.
func (c *ResourceCache) requestReload(h *ResourceHandle) {
	c.fireResourceEvent(core.EVENT_CODE_RESOURCE_NEEDS_RELOAD, h)

	entry, ok := c.loaderFor(h.resourceType)
	if ok && entry.options.MainThread {
		c.postMu.Lock()
		for _, id := range c.deferredReloads {
			if id == h.uuid {
				c.postMu.Unlock()
				return
			}
		}
		c.deferredReloads = append(c.deferredReloads, h.uuid)
		c.postMu.Unlock()
		return
	}
	h.LoadResource(false)
}

func (c *ResourceCache) incrementLoadCount() {
	if c.loadCount.Add(1) == 1 {
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESOURCES_LOADING_STARTED, Sender: c})
	}
}

func (c *ResourceCache) decrementLoadCount() {
	n := c.loadCount.Add(-1)
	core.Assert(n >= 0, "resource load count went negative")
	if n == 0 {
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESOURCES_LOADING_DONE, Sender: c})
	}
}

// IsLoadingResources is true while background loads are in flight.
func (c *ResourceCache) IsLoadingResources() bool {
	return c.loadCount.Load() > 0
}

func (c *ResourceCache) LoadCount() int64 {
	return c.loadCount.Load()
}
