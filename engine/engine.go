package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"

	"github.com/spaghettifunk/reverie/engine/assets"
	"github.com/spaghettifunk/reverie/engine/core"
	"github.com/spaghettifunk/reverie/engine/debug"
	"github.com/spaghettifunk/reverie/engine/resources"
	"github.com/spaghettifunk/reverie/engine/resources/loaders"
	"github.com/spaghettifunk/reverie/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	isRunning    atomic.Bool
	clock        *core.Clock
	lastTime     float64

	jobs      *systems.JobSystem
	files     *assets.FileManager
	cache     *resources.ResourceCache
	inspector *debug.Server

	// set when the save file could not be restored, it is then left untouched
	keepSaveFile bool

	// work handed to the main thread by other goroutines
	mainMu    sync.Mutex
	mainQueue []func()
	changed   map[string]struct{}
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = DefaultApplicationConfig()
	}
	cfg := g.ApplicationConfig
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := cfg.Level()
	core.SetLogLevel(level)

	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       cfg,
		clock:        core.NewClock(),
		changed:      make(map[string]struct{}),
	}
	if err := e.boot(); err != nil {
		e.release()
		return nil, err
	}
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) boot() error {
	rc := e.config.Resources
	maxCost, _ := rc.MaxCostBytes()

	jobs, err := systems.NewJobSystem(context.Background(), rc.Workers, rc.JobQueueSize)
	if err != nil {
		return err
	}
	e.jobs = jobs

	fm, err := assets.NewFileManager(rc.SearchPaths...)
	if err != nil {
		return err
	}
	e.files = fm

	cache, err := resources.NewResourceCache(resources.CacheConfig{
		MaxCost:                   maxCost,
		Dispatcher:                jobs,
		Resolver:                  fm,
		PostConstructionQueueSize: rc.PostConstructionQueueSize,
	})
	if err != nil {
		return err
	}
	e.cache = cache
	loaders.RegisterDefaults(cache)

	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(cache); err != nil {
			return fmt.Errorf("game boot: %w", err)
		}
	}
	core.LogInfo("%s booted: %d loader workers, resource budget %s", e.config.Name, rc.Workers, units.BytesSize(float64(maxCost)))
	return nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := core.MetricsInitialize(); err != nil {
		return err
	}
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESOURCES_LOADING_STARTED, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESOURCES_LOADING_DONE, e, e.onEvent)

	if err := e.restoreCache(); err != nil {
		return err
	}

	if e.config.Resources.HotReload {
		if err := e.files.Watch(e.fileChanged); err != nil {
			core.LogWarn("hot reload disabled: %s", err)
		}
	}

	if e.config.DebugAddr != "" {
		e.inspector = debug.NewServer(e.config.DebugAddr, e.cache, e.RunOnMainThread)
		if err := e.inspector.Start(); err != nil {
			return fmt.Errorf("resource inspector: %w", err)
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.cache); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames until ctx is cancelled or the application quits.
func (e *Engine) Run(ctx context.Context) error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var targetFrameSeconds float64
	if e.config.TargetFPS > 0 {
		targetFrameSeconds = 1.0 / float64(e.config.TargetFPS)
	}

	for e.isRunning.Load() {
		if ctx.Err() != nil {
			break
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if err := e.Frame(delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err)
			e.isRunning.Store(false)
			return err
		}

		// Figure out how long the frame took and give the rest back to the OS.
		frameElapsed := time.Since(frameStart).Seconds()
		core.MetricsUpdate(frameElapsed)
		if remaining := targetFrameSeconds - frameElapsed; remaining > 0 {
			time.Sleep(time.Duration(remaining * float64(time.Second)))
		}
		e.lastTime = currentTime
	}
	return nil
}

// Frame runs one iteration of the main loop on the calling goroutine, which
// must be the main thread.
func (e *Engine) Frame(delta float64) error {
	e.mainMu.Lock()
	queue := e.mainQueue
	e.mainQueue = nil
	changed := e.changed
	e.changed = make(map[string]struct{})
	e.mainMu.Unlock()

	for _, fn := range queue {
		fn()
	}
	for path := range changed {
		e.cache.ReloadPath(path)
	}
	e.cache.PostConstructResources()

	if e.gameInstance.FnUpdate != nil {
		return e.gameInstance.FnUpdate(delta)
	}
	return nil
}

// RunOnMainThread queues fn for the start of the next frame.
func (e *Engine) RunOnMainThread(fn func()) {
	e.mainMu.Lock()
	e.mainQueue = append(e.mainQueue, fn)
	e.mainMu.Unlock()
}

// Quit stops the main loop after the current frame.
func (e *Engine) Quit() {
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT, Sender: e})
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.inspector != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, e.inspector.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, e.saveCache())
	errs = append(errs, e.release())
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	core.EventUnregister(core.EVENT_CODE_RESOURCES_LOADING_STARTED, e)
	core.EventUnregister(core.EVENT_CODE_RESOURCES_LOADING_DONE, e)
	errs = append(errs, core.EventSystemShutdown())
	return errors.Join(errs...)
}

// release stops the background goroutines and drops every resource.
func (e *Engine) release() error {
	var errs []error
	if e.files != nil {
		errs = append(errs, e.files.Close())
	}
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	if e.cache != nil {
		for _, h := range e.cache.TopLevelHandles() {
			e.cache.Remove(h, resources.DeleteForce|resources.DeleteHandle)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) Cache() *resources.ResourceCache {
	return e.cache
}

func (e *Engine) Files() *assets.FileManager {
	return e.files
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) restoreCache() error {
	path := e.config.Resources.SaveFile
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		e.keepSaveFile = true
		return err
	}
	if err := e.cache.LoadJSON(data); err != nil {
		e.keepSaveFile = true
		return fmt.Errorf("restore resources from %s: %w", path, err)
	}
	core.LogInfo("restored %d resources from %s", len(e.cache.TopLevelHandles()), path)
	return nil
}

func (e *Engine) saveCache() error {
	path := e.config.Resources.SaveFile
	if path == "" || e.cache == nil {
		return nil
	}
	if e.keepSaveFile {
		core.LogWarn("%s was not restored, not overwriting it", path)
		return nil
	}
	data, err := e.cache.MarshalJSON()
	if err != nil {
		return err
	}

	// write next to the target and rename, a crash never leaves half a file
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// fileChanged runs on the watcher goroutine.
func (e *Engine) fileChanged(path string) {
	e.mainMu.Lock()
	e.changed[path] = struct{}{}
	e.mainMu.Unlock()
}

func (e *Engine) onEvent(listener interface{}, context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	case core.EVENT_CODE_RESOURCES_LOADING_STARTED:
		core.LogDebug("background resource loading started")
	case core.EVENT_CODE_RESOURCES_LOADING_DONE:
		core.LogDebug("background resource loading done, %s", e.cache)
	}
	return false
}
