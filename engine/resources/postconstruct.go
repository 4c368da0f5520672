package resources

import (
	"github.com/spaghettifunk/reverie/engine/core"
)

// AddPostConstructionData stores data handed to the resource's
// PostConstruction hook. Safe to call from loader goroutines.
func (c *ResourceCache) AddPostConstructionData(id core.Uuid, data PostConstructionData) {
	c.postMu.Lock()
	defer c.postMu.Unlock()
	c.postData[id] = data
}

// QueuePostConstruction schedules the handle for the next
// PostConstructResources. Safe to call from loader goroutines.
func (c *ResourceCache) QueuePostConstruction(id core.Uuid) {
	c.postMu.Lock()
	defer c.postMu.Unlock()
	// the queue grows, Enqueue cannot fail
	_ = c.postQueue.Enqueue(id)
}

// PostConstructResources runs deferred main thread reloads, then finishes
// every queued handle. Must be called from the main thread, once per frame.
// Handles that left the cache since they were queued are skipped.
func (c *ResourceCache) PostConstructResources() {
	c.postMu.Lock()
	reloads := c.deferredReloads
	c.deferredReloads = nil
	c.postMu.Unlock()

	for _, id := range reloads {
		if h := c.GetHandle(id); h != nil {
			h.LoadResource(true)
		}
	}

	c.postMu.Lock()
	ids := c.postQueue.Drain()
	data := make(map[core.Uuid]PostConstructionData, len(ids))
	for _, id := range ids {
		if d, ok := c.postData[id]; ok {
			data[id] = d
			delete(c.postData, id)
		}
	}
	c.postMu.Unlock()

	for _, id := range ids {
		h := c.GetHandle(id)
		if h == nil {
			core.LogDebug("resource %s left the cache before post-construction", id)
			continue
		}
		h.postConstruct(data[id], 0)
	}

	c.trim(nil)
}

// PendingPostConstruction is the number of handles waiting in the queue.
func (c *ResourceCache) PendingPostConstruction() int {
	c.postMu.Lock()
	defer c.postMu.Unlock()
	return c.postQueue.Len()
}
