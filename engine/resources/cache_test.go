package resources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/reverie/engine/core"
)

func TestNewResourceCacheRejectsNegativeBudget(t *testing.T) {
	_, err := NewResourceCache(CacheConfig{MaxCost: -1})
	assert.ErrorIs(t, err, ErrNegativeMaxCost)
}

func TestInsertEvictsLeastRecentlyUsed(t *testing.T) {
	c := newTestCache(t, 100, nil)

	var handles []*ResourceHandle
	var bodies []*fakeResource
	for i := 0; i < 10; i++ {
		h, r := insertLoaded(t, c, fmt.Sprintf("meshes/cube%d.obj", i), 10, BehaviorRemovable)
		handles = append(handles, h)
		bodies = append(bodies, r)
	}
	require.EqualValues(t, 100, c.CurrentCost())

	h := NewResourceHandle(c, ResourceTypeMesh, "meshes/cube10.obj", BehaviorRemovable)
	require.NoError(t, h.SetResource(newFake(ResourceTypeMesh, 10), true))
	cleared, err := c.InsertHandle(h)
	require.NoError(t, err)

	assert.True(t, cleared)
	assert.Nil(t, c.GetHandle(handles[0].Uuid()))
	assert.EqualValues(t, 1, bodies[0].removals.Load())
	assert.True(t, handles[0].NeedsReload())
	for _, kept := range handles[1:] {
		assert.NotNil(t, c.GetHandle(kept.Uuid()))
	}
	assert.EqualValues(t, 100, c.CurrentCost())
	assert.Equal(t, 10, c.Len())
}

func TestCoreHandlesAreNeverEvicted(t *testing.T) {
	c := newTestCache(t, 100, nil)
	coreHandle, coreBody := insertLoaded(t, c, "core/quad.obj", 10, BehaviorCore|BehaviorRemovable)

	for i := 0; i < 10; i++ {
		insertLoaded(t, c, fmt.Sprintf("meshes/cube%d.obj", i), 10, BehaviorRemovable)
	}

	assert.Same(t, coreHandle, c.GetHandle(coreHandle.Uuid()))
	assert.Zero(t, coreBody.removals.Load())
	assert.LessOrEqual(t, c.CurrentCost(), c.MaxCost())
}

func TestTouchChangesEvictionOrder(t *testing.T) {
	c := newTestCache(t, 100, nil)
	a, _ := insertLoaded(t, c, "a.obj", 50, BehaviorRemovable)
	b, _ := insertLoaded(t, c, "b.obj", 50, BehaviorRemovable)

	a.Touch()
	assert.Equal(t, []*ResourceHandle{a, b}, c.TopLevelHandles())

	insertLoaded(t, c, "c.obj", 10, BehaviorRemovable)
	assert.NotNil(t, c.GetHandle(a.Uuid()))
	assert.Nil(t, c.GetHandle(b.Uuid()))
}

func TestResourceAccessTouchesHandle(t *testing.T) {
	c := newTestCache(t, 100, nil)
	a, _ := insertLoaded(t, c, "a.obj", 10, BehaviorRemovable)
	b, _ := insertLoaded(t, c, "b.obj", 10, BehaviorRemovable)
	require.Same(t, b, c.TopLevelHandles()[0])

	assert.NotNil(t, a.Resource())
	assert.Same(t, a, c.TopLevelHandles()[0])
}

func TestInsertBeyondBudgetWhenNothingIsRemovable(t *testing.T) {
	c := newTestCache(t, 20, nil)
	insertLoaded(t, c, "a.obj", 15, 0)

	h := NewResourceHandle(c, ResourceTypeMesh, "b.obj", 0)
	require.NoError(t, h.SetResource(newFake(ResourceTypeMesh, 15), true))
	cleared, err := c.InsertHandle(h)
	require.NoError(t, err)

	assert.False(t, cleared)
	assert.Equal(t, 2, c.Len())
	assert.EqualValues(t, 30, c.CurrentCost())
	assert.True(t, c.ClearedRemovable())
}

func TestOverBudgetInsertsAreLogged(t *testing.T) {
	var out bytes.Buffer
	core.SetLogOutput(&out)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })

	c := newTestCache(t, 20, nil)
	insertLoaded(t, c, "a.obj", 15, 0)
	insertLoaded(t, c, "b.obj", 15, 0)
	out.Reset()

	h := c.GuaranteeHandleWithPath("c.obj", ResourceTypeMesh, BehaviorRemovable)
	require.NotNil(t, h)
	assert.Equal(t, 3, c.Len())
	assert.Contains(t, out.String(), "could not free enough budget for "+h.Name())
}

func TestInsertDuplicateHandle(t *testing.T) {
	skipInDebug(t)
	c := newTestCache(t, 100, nil)
	h, _ := insertLoaded(t, c, "a.obj", 10, BehaviorRemovable)

	_, err := c.InsertHandle(h)
	assert.ErrorIs(t, err, ErrDuplicateHandle)
	assert.EqualValues(t, 10, c.CurrentCost())
}

func TestSetResourceOnCachedHandleTrims(t *testing.T) {
	c := newTestCache(t, 100, nil)
	a, aBody := insertLoaded(t, c, "a.obj", 60, BehaviorRemovable)
	b := NewResourceHandle(c, ResourceTypeMesh, "b.obj", BehaviorRemovable)
	_, err := c.InsertHandle(b)
	require.NoError(t, err)

	require.NoError(t, b.SetResource(newFake(ResourceTypeMesh, 60), true))

	assert.Nil(t, c.GetHandle(a.Uuid()))
	assert.EqualValues(t, 1, aBody.removals.Load())
	assert.NotNil(t, c.GetHandle(b.Uuid()))
	assert.EqualValues(t, 60, c.CurrentCost())
}

func TestChildLoadDoesNotEvictItsParent(t *testing.T) {
	c := newTestCache(t, 100, nil)
	parent, parentBody := insertLoaded(t, c, "model.json", 50, BehaviorRemovable)
	child := parent.NewChild(ResourceTypeMesh, "mesh.obj", 0)

	require.NoError(t, child.SetResource(newFake(ResourceTypeMesh, 80), true))

	assert.NotNil(t, c.GetHandle(parent.Uuid()))
	assert.NotNil(t, c.GetHandle(child.Uuid()))
	assert.Zero(t, parentBody.removals.Load())
	assert.EqualValues(t, 130, c.CurrentCost())
}

func TestEvictionTakesTheWholeTree(t *testing.T) {
	c := newTestCache(t, 100, nil)
	parent, _ := insertLoaded(t, c, "model.json", 10, BehaviorRemovable)
	child := parent.NewChild(ResourceTypeMesh, "mesh.obj", 0)
	childBody := newFake(ResourceTypeMesh, 20)
	require.NoError(t, child.SetResource(childBody, true))
	require.EqualValues(t, 30, c.CurrentCost())

	insertLoaded(t, c, "big.obj", 80, BehaviorRemovable)

	assert.Nil(t, c.GetHandle(parent.Uuid()))
	assert.Nil(t, c.GetHandle(child.Uuid()))
	assert.EqualValues(t, 1, childBody.removals.Load())
	assert.Equal(t, 1, c.Len())
	assert.EqualValues(t, 80, c.CurrentCost())
}

func TestSetMaxCostEvicts(t *testing.T) {
	c := newTestCache(t, 100, nil)
	for i := 0; i < 5; i++ {
		insertLoaded(t, c, fmt.Sprintf("m%d.obj", i), 10, BehaviorRemovable)
	}

	c.SetMaxCost(20)
	assert.EqualValues(t, 20, c.MaxCost())
	assert.EqualValues(t, 20, c.CurrentCost())
	assert.Equal(t, 2, c.Len())
}

func TestCostStaysWithinBudget(t *testing.T) {
	c := newTestCache(t, 500, nil)
	rng := rand.New(rand.NewSource(1))

	var handles []*ResourceHandle
	for i := 0; i < 200; i++ {
		h, _ := insertLoaded(t, c, fmt.Sprintf("m%d.obj", i), int64(1+rng.Intn(100)), BehaviorRemovable)
		handles = append(handles, h)
		if rng.Intn(3) == 0 {
			handles[rng.Intn(len(handles))].Touch()
		}

		require.LessOrEqual(t, c.CurrentCost(), c.MaxCost())
		c.mu.RLock()
		var sum int64
		for _, cached := range c.handles {
			sum += cached.cost
		}
		require.Equal(t, sum, c.currentCost)
		require.Equal(t, len(c.handles), c.topLevel.Len())
		c.mu.RUnlock()
	}
}

func TestRemove(t *testing.T) {
	c := newTestCache(t, 100, nil)

	t.Run("non removable needs force", func(t *testing.T) {
		h, body := insertLoaded(t, c, "fixed.obj", 10, 0)
		assert.False(t, c.Remove(h, 0))
		assert.Zero(t, body.removals.Load())

		assert.True(t, c.Remove(h, DeleteForce))
		assert.EqualValues(t, 1, body.removals.Load())
		assert.Same(t, h, c.GetHandle(h.Uuid()))
		assert.True(t, h.NeedsReload())
	})

	t.Run("core needs force", func(t *testing.T) {
		h, _ := insertLoaded(t, c, "core.obj", 10, BehaviorCore|BehaviorRemovable)
		assert.False(t, c.Remove(h, DeleteHandle))
		assert.True(t, c.Remove(h, DeleteForce|DeleteHandle))
		assert.Nil(t, c.GetHandle(h.Uuid()))
	})

	t.Run("delete handle", func(t *testing.T) {
		h, body := insertLoaded(t, c, "gone.obj", 10, BehaviorRemovable)
		assert.True(t, c.Remove(h, DeleteHandle))
		assert.Nil(t, c.GetHandle(h.Uuid()))
		assert.EqualValues(t, 1, body.removals.Load())
		assert.False(t, c.Remove(h, DeleteHandle))
	})

	t.Run("children are not top level", func(t *testing.T) {
		skipInDebug(t)
		parent, _ := insertLoaded(t, c, "model.json", 0, BehaviorRemovable)
		child := parent.NewChild(ResourceTypeMesh, "child.obj", 0)
		assert.False(t, c.Remove(child, DeleteForce))
		assert.NotNil(t, c.GetHandle(child.Uuid()))
	})

	assert.Zero(t, c.CurrentCost())
}

func TestRemoveRuntimeGeneratedParentPromotesChildren(t *testing.T) {
	c := newTestCache(t, 100, nil)
	parent := NewResourceHandle(c, ResourceTypeModel, "", BehaviorRuntimeGenerated|BehaviorRemovable)
	_, err := c.InsertHandle(parent)
	require.NoError(t, err)
	child := parent.NewChild(ResourceTypeMesh, "a.obj", BehaviorRemovable)

	require.True(t, c.Remove(parent, DeleteHandle))

	assert.Nil(t, c.GetHandle(parent.Uuid()))
	assert.Same(t, child, c.GetHandle(child.Uuid()))
	assert.False(t, child.IsChild())
	assert.Nil(t, child.Parent())
	assert.Contains(t, c.TopLevelHandles(), child)
}

func TestClearKeepsAndReseedsCoreResources(t *testing.T) {
	c := newTestCache(t, 1000, nil)
	loader := &countingLoader{t: ResourceTypeMesh, cost: 5}
	c.RegisterLoader(ResourceTypeMesh, loader, LoaderOptions{})

	cube := c.RegisterCoreResource(CoreResource{Name: "cube", Type: ResourceTypeMesh, Paths: []string{"core/cube.obj"}})
	require.NotNil(t, cube)
	assert.True(t, cube.IsCore())
	assert.Equal(t, "cube", cube.Name())

	insertLoaded(t, c, "a.obj", 10, BehaviorRemovable)
	insertLoaded(t, c, "b.obj", 10, 0)
	require.Equal(t, 3, c.Len())

	c.Clear()
	assert.Equal(t, 1, c.Len())
	assert.Same(t, cube, c.TopLevelHandleWithPath("core/cube.obj"))

	require.True(t, c.Remove(cube, DeleteForce|DeleteHandle))
	require.Zero(t, c.Len())

	c.Clear()
	again := c.TopLevelHandleWithPath("core/cube.obj")
	require.NotNil(t, again)
	assert.NotEqual(t, cube.Uuid(), again.Uuid())
	assert.True(t, again.IsCore())
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestGuaranteeHandleWithPath(t *testing.T) {
	c := newTestCache(t, 100, nil)
	loader := &countingLoader{t: ResourceTypeMesh, cost: 5}
	c.RegisterLoader(ResourceTypeMesh, loader, LoaderOptions{})

	h := c.GuaranteeHandleWithPath("a.obj", ResourceTypeMesh, BehaviorRemovable)
	require.NotNil(t, h)
	assert.True(t, h.hasResource())
	assert.True(t, h.IsLoading())
	assert.False(t, h.IsConstructed())
	assert.Equal(t, 1, c.PendingPostConstruction())

	assert.Same(t, h, c.GuaranteeHandleWithPath("a.obj", ResourceTypeMesh, BehaviorRemovable))
	assert.EqualValues(t, 1, loader.calls.Load())
	assert.Equal(t, 1, c.Len())

	c.PostConstructResources()
	assert.True(t, h.IsConstructed())
	assert.True(t, h.IsFullyConstructed())
	assert.EqualValues(t, 5, c.CurrentCost())

	multi := c.GuaranteeHandleWithPaths([]string{"b.vert", "b.frag"}, ResourceTypeMesh, BehaviorRemovable)
	assert.Equal(t, []string{"b.vert", "b.frag"}, multi.Paths())
	assert.Same(t, multi, c.GuaranteeHandleWithPath("b.vert", ResourceTypeMesh, BehaviorRemovable))
}

func TestGetHandleWithName(t *testing.T) {
	c := newTestCache(t, 100, nil)
	h, _ := insertLoaded(t, c, "meshes/Cube.obj", 1, BehaviorRemovable)

	assert.Same(t, h, c.GetHandleWithName("cube.OBJ", ResourceTypeMesh))
	assert.Nil(t, c.GetHandleWithName("cube.obj", ResourceTypeTexture))
	assert.Same(t, h, c.TopLevelHandleWithPath("meshes/Cube.obj"))
	assert.Nil(t, c.TopLevelHandleWithPath("meshes/cube.obj"))
}

func TestFailedLoadLeavesHandleReloadable(t *testing.T) {
	withEvents(t)
	c := newTestCache(t, 100, nil)
	loader := &countingLoader{t: ResourceTypeMesh, cost: 5}
	loader.fail.Store(true)
	c.RegisterLoader(ResourceTypeMesh, loader, LoaderOptions{})

	var failed []ResourceEvent
	listener := new(int)
	core.EventRegister(core.EVENT_CODE_RESOURCE_LOAD_FAILED, listener, func(_ interface{}, ctx core.EventContext) bool {
		failed = append(failed, ctx.Data.(ResourceEvent))
		return false
	})

	h := c.GuaranteeHandleWithPath("a.obj", ResourceTypeMesh, BehaviorRemovable)
	assert.True(t, h.NeedsReload())
	assert.False(t, h.IsLoading())
	require.Len(t, failed, 1)
	assert.Equal(t, h.Uuid(), failed[0].Uuid)

	loader.fail.Store(false)
	assert.NotNil(t, h.Resource())
	assert.EqualValues(t, 2, loader.calls.Load())

	missing := c.GuaranteeHandleWithPath("song.ogg", ResourceTypeAudio, BehaviorRemovable)
	assert.True(t, missing.NeedsReload())
	assert.Len(t, failed, 2)
}

func TestHiddenHandlesFireNoEvents(t *testing.T) {
	withEvents(t)
	c := newTestCache(t, 100, nil)

	var deleted int
	listener := new(int)
	core.EventRegister(core.EVENT_CODE_RESOURCE_DELETED, listener, func(interface{}, core.EventContext) bool {
		deleted++
		return false
	})

	visible, _ := insertLoaded(t, c, "a.obj", 1, BehaviorRemovable)
	hidden, _ := insertLoaded(t, c, "b.obj", 1, BehaviorRemovable|BehaviorHidden)
	require.True(t, c.Remove(visible, DeleteHandle))
	require.True(t, c.Remove(hidden, DeleteHandle))

	assert.Equal(t, 1, deleted)
}

func TestReloadPath(t *testing.T) {
	c := newTestCache(t, 100, nil)
	loader := &countingLoader{t: ResourceTypeMesh, cost: 5}
	c.RegisterLoader(ResourceTypeMesh, loader, LoaderOptions{})

	path := filepath.Join(t.TempDir(), "a.obj")
	h := c.GuaranteeHandleWithPath(path, ResourceTypeMesh, BehaviorRemovable)
	c.PostConstructResources()
	require.True(t, h.IsConstructed())

	assert.True(t, c.ReloadPath(path))
	assert.EqualValues(t, 2, loader.calls.Load())
	assert.True(t, h.IsLoading())
	assert.False(t, c.ReloadPath(filepath.Join(t.TempDir(), "b.obj")))

	c.PostConstructResources()
	assert.True(t, h.IsConstructed())
	assert.EqualValues(t, 5, c.CurrentCost())
}

func TestCacheJSONRoundTrip(t *testing.T) {
	newCache := func() (*ResourceCache, *countingLoader) {
		c := newTestCache(t, 1000, nil)
		loader := &countingLoader{t: ResourceTypeMesh, cost: 1}
		c.RegisterLoader(ResourceTypeMesh, loader, LoaderOptions{})
		return c, loader
	}

	src, _ := newCache()
	beta := src.GuaranteeHandleWithPath("b.obj", ResourceTypeMesh, BehaviorRemovable)
	beta.SetName("Beta")
	alpha := src.GuaranteeHandleWithPath("a.obj", ResourceTypeMesh, BehaviorRemovable)
	alpha.SetName("alpha")
	src.GuaranteeHandleWithPath("u.obj", ResourceTypeMesh, BehaviorRemovable|BehaviorUnsaved)
	src.RegisterCoreResource(CoreResource{Name: "cube", Type: ResourceTypeMesh, Paths: []string{"core/cube.obj"}})
	src.SetMaxCost(512)
	src.PostConstructResources()

	data, err := json.Marshal(src)
	require.NoError(t, err)

	var saved cacheJSON
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.EqualValues(t, 512, saved.MaxCost)
	require.Len(t, saved.Resources, 2)
	assert.Contains(t, string(saved.Resources[0]), `"name":"alpha"`)
	assert.Contains(t, string(saved.Resources[1]), `"name":"Beta"`)

	dst, loader := newCache()
	require.NoError(t, dst.LoadJSON(data))
	assert.EqualValues(t, 512, dst.MaxCost())
	assert.Equal(t, 2, dst.Len())
	assert.EqualValues(t, 2, loader.calls.Load())

	restored := dst.GetHandle(beta.Uuid())
	require.NotNil(t, restored)
	assert.Equal(t, "Beta", restored.Name())
	assert.Equal(t, "b.obj", restored.Path())
	assert.True(t, restored.hasResource())

	same, err := dst.GetHandleFromJSON(saved.Resources[1])
	require.NoError(t, err)
	assert.Same(t, restored, same)
}

func TestCacheString(t *testing.T) {
	c := newTestCache(t, 2048, nil)
	insertLoaded(t, c, "a.obj", 1024, BehaviorRemovable)
	assert.Equal(t, "ResourceCache{handles: 1, top-level: 1, cost: 1KiB/2KiB}", c.String())
}
