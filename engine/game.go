package engine

import (
	"github.com/spaghettifunk/reverie/engine/resources"
)

// Game is implemented by applications running on the engine. Every hook is
// optional.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnBoot            Boot
	FnInitialize      Initialize
	FnUpdate          Update
	FnShutdown        Shutdown
}

// Boot runs once the cache exists, before any saved state is restored. It is
// the place to register loaders and core resources.
type Boot func(cache *resources.ResourceCache) error
type Initialize func(cache *resources.ResourceCache) error
type Update func(deltaTime float64) error
type Shutdown func() error
