package resources

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/reverie/engine/core"
)

type fakeResource struct {
	BaseResource
	t        ResourceType
	name     string
	post     atomic.Int32
	removals atomic.Int32
	lastData PostConstructionData
	order    *recorder
}

func newFake(t ResourceType, cost int64) *fakeResource {
	f := &fakeResource{t: t}
	f.SetCost(cost)
	return f
}

func (f *fakeResource) Type() ResourceType { return f.t }

func (f *fakeResource) PostConstruction(data PostConstructionData) {
	f.post.Add(1)
	f.lastData = data
	if f.order != nil {
		f.order.add(f.name)
	}
}

func (f *fakeResource) OnRemoval() { f.removals.Add(1) }

type jsonFake struct {
	fakeResource
	Color string `json:"color"`
}

func (j *jsonFake) MarshalResourceJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"color": j.Color})
}

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// countingLoader builds fake resources of a fixed cost.
type countingLoader struct {
	t     ResourceType
	cost  int64
	calls atomic.Int32
	fail  atomic.Bool
}

func (l *countingLoader) Load(req *LoadRequest) (Resource, error) {
	l.calls.Add(1)
	if l.fail.Load() {
		return nil, errors.New("broken file")
	}
	f := newFake(l.t, l.cost)
	f.name = req.Handle.Name()
	return f, nil
}

// passResolver accepts every path as it is.
type passResolver struct{}

func (passResolver) SearchFor(filename string, _ ResourceType) (string, error) {
	return filename, nil
}

// gatedDispatcher keeps tasks until runAll is called.
type gatedDispatcher struct {
	mu    sync.Mutex
	tasks []func(context.Context) error
}

func (d *gatedDispatcher) Dispatch(_ string, fn func(context.Context) error) error {
	d.mu.Lock()
	d.tasks = append(d.tasks, fn)
	d.mu.Unlock()
	return nil
}

func (d *gatedDispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

func (d *gatedDispatcher) runAll() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, fn := range tasks {
		_ = fn(context.Background())
	}
}

type goDispatcher struct{}

func (goDispatcher) Dispatch(_ string, fn func(context.Context) error) error {
	go func() { _ = fn(context.Background()) }()
	return nil
}

func newTestCache(t *testing.T, maxCost int64, d Dispatcher) *ResourceCache {
	t.Helper()
	c, err := NewResourceCache(CacheConfig{
		MaxCost:    maxCost,
		Dispatcher: d,
		Resolver:   passResolver{},
	})
	require.NoError(t, err)
	return c
}

// insertLoaded inserts a handle that already carries a resource of the given cost.
func insertLoaded(t *testing.T, c *ResourceCache, path string, cost int64, flags BehaviorFlag) (*ResourceHandle, *fakeResource) {
	t.Helper()
	h := NewResourceHandle(c, ResourceTypeMesh, path, flags)
	r := newFake(ResourceTypeMesh, cost)
	require.NoError(t, h.SetResource(r, true))
	_, err := c.InsertHandle(h)
	require.NoError(t, err)
	return h, r
}

func withEvents(t *testing.T) {
	t.Helper()
	core.EventSystemShutdown()
	require.True(t, core.EventSystemInitialize())
	t.Cleanup(func() { core.EventSystemShutdown() })
}

func skipInDebug(t *testing.T) {
	t.Helper()
	if core.DebugMode {
		t.Skip("asserts panic in debug builds")
	}
}
