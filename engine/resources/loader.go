package resources

import (
	"context"
	"encoding/json"
	"os"
)

// Loader builds the resource body for a handle. Load may run on a worker
// goroutine and must not touch main-thread state; that work belongs in the
// resource's PostConstruction hook.
type Loader interface {
	Load(req *LoadRequest) (Resource, error)
}

// LoaderFunc adapts a plain function to the Loader interface.
type LoaderFunc func(req *LoadRequest) (Resource, error)

func (f LoaderFunc) Load(req *LoadRequest) (Resource, error) {
	return f(req)
}

type LoaderOptions struct {
	// MainThread loaders always run synchronously on the caller. Reload
	// requests for them are deferred to the next PostConstructResources.
	MainThread bool
}

type loaderEntry struct {
	loader  Loader
	options LoaderOptions
}

// LoadRequest is what a Loader receives for a single load.
type LoadRequest struct {
	Context context.Context
	Handle  *ResourceHandle
	// Path is the resolved main file, empty for handles built from JSON only.
	Path string
	// AdditionalPaths are the resolved extra files of multi-file resources.
	AdditionalPaths []string
	// CachedJSON is the resource JSON stored on the handle, if any.
	CachedJSON json.RawMessage
}

// Cache is the cache owning the handle being loaded.
func (r *LoadRequest) Cache() *ResourceCache {
	return r.Handle.cache
}

// Dispatcher runs load tasks in the background. A nil error means fn will be
// called exactly once.
type Dispatcher interface {
	Dispatch(name string, fn func(ctx context.Context) error) error
}

// PathResolver turns a file name into a full path using the engine's search
// directories.
type PathResolver interface {
	SearchFor(filename string, t ResourceType) (string, error)
}

type statResolver struct{}

func (statResolver) SearchFor(filename string, _ ResourceType) (string, error) {
	if _, err := os.Stat(filename); err != nil {
		return "", ErrFileNotFound
	}
	return filename, nil
}

type CacheConfig struct {
	// MaxCost is a soft budget for the summed cost of cached resources.
	MaxCost int64
	// Dispatcher runs background loads. When nil every load is synchronous.
	Dispatcher Dispatcher
	// Resolver locates relative paths. When nil paths are used as given.
	Resolver PathResolver
	// PostConstructionQueueSize is the initial capacity of the queue.
	PostConstructionQueueSize int
}

// CoreResource describes a built-in handle that Clear seeds back into the cache.
type CoreResource struct {
	Name  string
	Type  ResourceType
	Paths []string
	Flags BehaviorFlag
}
