package resources

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/reverie/engine/core"
)

func TestNewResourceHandle(t *testing.T) {
	c := newTestCache(t, 100, nil)
	h := NewResourceHandle(c, ResourceTypeTexture, "textures/brick.png", BehaviorRemovable)

	assert.False(t, h.Uuid().IsNil())
	assert.Equal(t, "brick.png", h.Name())
	assert.Equal(t, ResourceTypeTexture, h.Type())
	assert.False(t, h.IsLoading())
	assert.False(t, h.IsConstructed())
	assert.True(t, h.IsRemovable())
	assert.Nil(t, h.Parent())
	assert.Empty(t, h.Children())
}

func TestHandleUuidsAreUnique(t *testing.T) {
	c := newTestCache(t, 100, nil)
	seen := make(map[core.Uuid]struct{})
	for i := 0; i < 5000; i++ {
		h := NewResourceHandle(c, ResourceTypeMesh, "", 0)
		_, dup := seen[h.Uuid()]
		require.False(t, dup)
		seen[h.Uuid()] = struct{}{}
	}
}

func TestSetResourceMarksPendingConstruction(t *testing.T) {
	c := newTestCache(t, 100, nil)
	h := NewResourceHandle(c, ResourceTypeMesh, "a.obj", 0)
	r := newFake(ResourceTypeMesh, 5)

	require.NoError(t, h.SetResource(r, true))
	assert.Same(t, h, r.Handle())
	assert.True(t, h.IsLoading())
	assert.False(t, h.IsConstructed())
	assert.False(t, h.NeedsReload())
	assert.Zero(t, r.post.Load())
}

func TestSetResourceRejectsWrongType(t *testing.T) {
	skipInDebug(t)
	c := newTestCache(t, 100, nil)
	h := NewResourceHandle(c, ResourceTypeMesh, "a.obj", 0)

	err := h.SetResource(newFake(ResourceTypeTexture, 1), true)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorIs(t, h.SetResource(nil, true), ErrNilResource)
	assert.True(t, h.NeedsReload())
}

func TestSetResourceWithHeldLock(t *testing.T) {
	c := newTestCache(t, 100, nil)
	h := NewResourceHandle(c, ResourceTypeMesh, "a.obj", 0)
	_, err := c.InsertHandle(h)
	require.NoError(t, err)

	h.Lock()
	require.NoError(t, h.SetResource(newFake(ResourceTypeMesh, 7), false))
	h.Unlock()
	assert.EqualValues(t, 7, c.CurrentCost())
}

func TestSetResourceWithHeldLockStaysWithinBudget(t *testing.T) {
	c := newTestCache(t, 100, nil)
	var old []*ResourceHandle
	for i := 0; i < 10; i++ {
		h, _ := insertLoaded(t, c, fmt.Sprintf("mesh%d.obj", i), 10, BehaviorRemovable)
		old = append(old, h)
	}
	require.EqualValues(t, 100, c.CurrentCost())

	h := NewResourceHandle(c, ResourceTypeMesh, "big.obj", BehaviorRemovable)
	_, err := c.InsertHandle(h)
	require.NoError(t, err)
	h.Lock()
	require.NoError(t, h.SetResource(newFake(ResourceTypeMesh, 30), false))
	h.Unlock()

	assert.LessOrEqual(t, c.CurrentCost(), c.MaxCost())
	assert.NotNil(t, c.GetHandle(h.Uuid()))
	// the three least recently used went first
	for i, o := range old {
		assert.Equal(t, i >= 3, c.GetHandle(o.Uuid()) != nil, o.Path())
	}
}

func TestLoadResourceDoesNotReloadLoadedHandle(t *testing.T) {
	c := newTestCache(t, 100, nil)
	loader := &countingLoader{t: ResourceTypeMesh, cost: 1}
	c.RegisterLoader(ResourceTypeMesh, loader, LoaderOptions{})

	h := c.GuaranteeHandleWithPath("a.obj", ResourceTypeMesh, BehaviorRemovable)
	require.EqualValues(t, 1, loader.calls.Load())
	c.PostConstructResources()
	require.True(t, h.IsConstructed())

	h.LoadResource(false)
	h.LoadResource(true)
	assert.EqualValues(t, 1, loader.calls.Load())
	assert.False(t, h.NeedsReload())
	assert.True(t, h.IsConstructed())
}

func TestUnloadResourceTearsDownChildrenFirst(t *testing.T) {
	c := newTestCache(t, 1000, nil)
	parent, pr := insertLoaded(t, c, "model.json", 10, BehaviorRemovable)
	child := parent.NewChild(ResourceTypeMesh, "mesh.obj", 0)
	cr := newFake(ResourceTypeMesh, 20)
	require.NoError(t, child.SetResource(cr, true))
	require.EqualValues(t, 30, c.CurrentCost())

	parent.UnloadResource(true)

	assert.EqualValues(t, 1, pr.removals.Load())
	assert.EqualValues(t, 1, cr.removals.Load())
	assert.True(t, parent.NeedsReload())
	assert.True(t, child.NeedsReload())
	assert.Zero(t, c.CurrentCost())
	// handles stay in the cache as reloadable stubs
	assert.Equal(t, 2, c.Len())
}

func TestHandleTreeConsistency(t *testing.T) {
	c := newTestCache(t, 1000, nil)
	parent, _ := insertLoaded(t, c, "model.json", 1, BehaviorRemovable)
	a := parent.NewChild(ResourceTypeMesh, "a.obj", 0)
	b := parent.NewChild(ResourceTypeMaterial, "b.amt", 0)

	// a handle inserted on its own first stops being top-level once adopted
	loose := NewResourceHandle(c, ResourceTypeMesh, "c.obj", BehaviorRemovable)
	_, err := c.InsertHandle(loose)
	require.NoError(t, err)
	parent.AddChild(loose)

	assert.True(t, parent.IsParent())
	for _, child := range parent.Children() {
		assert.True(t, child.IsChild())
		assert.Same(t, parent, child.Parent())
	}
	for _, top := range c.TopLevelHandles() {
		assert.False(t, top.IsChild())
		assert.NotEqual(t, a.Uuid(), top.Uuid())
		assert.NotEqual(t, b.Uuid(), top.Uuid())
		assert.NotEqual(t, loose.Uuid(), top.Uuid())
	}
	assert.Len(t, c.TopLevelHandles(), 1)
	assert.Equal(t, 4, c.Len())
}

func TestChildLookups(t *testing.T) {
	c := newTestCache(t, 1000, nil)
	parent := NewResourceHandle(c, ResourceTypeModel, "model.json", 0)
	_, err := c.InsertHandle(parent)
	require.NoError(t, err)
	mesh := parent.NewChild(ResourceTypeMesh, "meshes/Body.obj", 0)
	mat := parent.NewChild(ResourceTypeMaterial, "materials/body.amt", 0)

	assert.Same(t, mesh, parent.Child(mesh.Uuid()))
	assert.Nil(t, parent.Child(core.NewUuid()))
	assert.Same(t, mesh, parent.ChildWithName("body.obj", ResourceTypeMesh))
	assert.Nil(t, parent.ChildWithName("body.obj", ResourceTypeMaterial))
	assert.Equal(t, []*ResourceHandle{mat}, parent.ChildrenOfType(ResourceTypeMaterial))
	assert.Same(t, mesh, parent.GuaranteeChildWithPath(ResourceTypeMesh, "meshes/Body.obj", 0))
	assert.Len(t, parent.Children(), 2)

	parent.SetChildPaths("other.json")
	assert.Equal(t, "other.json", mesh.Path())
}

func TestSetBehaviorFlagsKeepsTreeFlags(t *testing.T) {
	c := newTestCache(t, 1000, nil)
	parent := NewResourceHandle(c, ResourceTypeModel, "model.json", 0)
	_, err := c.InsertHandle(parent)
	require.NoError(t, err)
	child := parent.NewChild(ResourceTypeMesh, "a.obj", 0)

	parent.SetBehaviorFlags(BehaviorRemovable | BehaviorHidden)
	child.SetBehaviorFlags(BehaviorUnsaved)

	assert.Equal(t, BehaviorRemovable|BehaviorHidden|BehaviorParent, parent.BehaviorFlags())
	assert.Equal(t, BehaviorUnsaved|BehaviorChild, child.BehaviorFlags())
}

func TestHandleJSONRoundTrip(t *testing.T) {
	c := newTestCache(t, 1000, nil)
	h := NewResourceHandleWithPaths(c, ResourceTypeShaderProgram,
		[]string{"shaders/basic.vert", "shaders/basic.frag"}, BehaviorRemovable|BehaviorUnsaved)
	h.SetName("basic")

	data, err := json.Marshal(h)
	require.NoError(t, err)

	back, err := NewResourceHandleFromJSON(c, data)
	require.NoError(t, err)
	assert.Equal(t, h.Uuid(), back.Uuid())
	assert.Equal(t, h.Path(), back.Path())
	assert.Equal(t, h.AdditionalPaths(), back.AdditionalPaths())
	assert.Equal(t, h.Type(), back.Type())
	assert.Equal(t, h.BehaviorFlags(), back.BehaviorFlags())
	assert.Equal(t, "basic", back.Name())
	assert.False(t, back.hasResource())
}

func TestHandleJSONCarriesResourceJSON(t *testing.T) {
	c := newTestCache(t, 1000, nil)
	h := NewResourceHandle(c, ResourceTypeMaterial, "", BehaviorUsesJson)
	h.SetName("red")
	r := &jsonFake{Color: "red"}
	r.t = ResourceTypeMaterial
	require.NoError(t, h.SetResource(r, true))

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"resourceJson":{"color":"red"}`)

	back, err := NewResourceHandleFromJSON(c, data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"color":"red"}`, string(back.CachedResourceJSON()))
}

func TestHandleFromInvalidJSON(t *testing.T) {
	c := newTestCache(t, 1000, nil)
	_, err := NewResourceHandleFromJSON(c, []byte(`{"name":"x","type":1}`))
	assert.ErrorIs(t, err, ErrInvalidBlueprint)
	_, err = NewResourceHandleFromJSON(c, []byte(`{"uuid":"`+core.NewUuid().String()+`","type":99}`))
	assert.ErrorIs(t, err, ErrInvalidBlueprint)
	_, err = NewResourceHandleFromJSON(c, []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidBlueprint)
}

func TestLoadResourceSwapsStatusInOneStep(t *testing.T) {
	d := &gatedDispatcher{}
	c := newTestCache(t, 100, d)
	c.RegisterLoader(ResourceTypeMesh, &countingLoader{t: ResourceTypeMesh, cost: 1}, LoaderOptions{})
	h := NewResourceHandle(c, ResourceTypeMesh, "a.obj", BehaviorRemovable)
	_, err := c.InsertHandle(h)
	require.NoError(t, err)

	// a stub whose body was dropped after construction
	h.status.Store(StatusConstructed)
	h.LoadResource(false)
	assert.Equal(t, StatusIsLoading, h.StatusFlags())
	assert.Equal(t, 1, d.pending())

	h.LoadResource(false)
	assert.Equal(t, 1, d.pending())
	d.runAll()
	c.PostConstructResources()
	assert.Equal(t, StatusConstructed, h.StatusFlags())
}

func TestStatusFlagsNeverBothSet(t *testing.T) {
	c := newTestCache(t, 1<<30, goDispatcher{})
	loader := &countingLoader{t: ResourceTypeMesh, cost: 1}
	c.RegisterLoader(ResourceTypeMesh, loader, LoaderOptions{})

	const n = 50
	handles := make([]*ResourceHandle, 0, n)
	for i := 0; i < n; i++ {
		handles = append(handles, c.GuaranteeHandleWithPath(
			"mesh_"+string(rune('a'+i%26))+string(rune('a'+i/26))+".obj", ResourceTypeMesh, BehaviorRemovable))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var violated bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, h := range handles {
				if h.StatusFlags() == StatusConstructed|StatusIsLoading {
					violated = true
				}
			}
		}
	}()

	require.Eventually(t, func() bool {
		c.PostConstructResources()
		for _, h := range handles {
			if !h.IsConstructed() {
				return false
			}
		}
		return true
	}, 5*time.Second, time.Millisecond)
	close(stop)
	wg.Wait()

	assert.False(t, violated)
	assert.False(t, c.IsLoadingResources())
}
