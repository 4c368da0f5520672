package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/reverie/engine/core"
	"github.com/spaghettifunk/reverie/engine/resources"
	"github.com/spaghettifunk/reverie/engine/resources/loaders"
)

func newTestEngine(t *testing.T, dir string, game *Game) *Engine {
	t.Helper()
	if game.ApplicationConfig == nil {
		cfg := DefaultApplicationConfig()
		cfg.LogLevel = "error"
		cfg.TargetFPS = 0
		cfg.Resources.SearchPaths = []string{dir}
		cfg.Resources.Workers = 2
		cfg.Resources.HotReload = false
		game.ApplicationConfig = cfg
	}
	e, err := New(game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	return e
}

func waitConstructed(t *testing.T, e *Engine, h *resources.ResourceHandle) {
	t.Helper()
	require.Eventually(t, func() bool {
		_ = e.Frame(0)
		return h.IsFullyConstructed()
	}, 5*time.Second, time.Millisecond)
}

func TestEngineLoadsThroughSearchPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "binary"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "binary", "data.bin"), []byte("abcd"), 0o644))

	booted := false
	e := newTestEngine(t, dir, &Game{FnBoot: func(*resources.ResourceCache) error {
		booted = true
		return nil
	}})
	defer e.Shutdown()
	assert.True(t, booted)
	assert.Equal(t, EngineStageInitialized, e.Stage())

	h := e.Cache().GuaranteeHandleWithPath("data.bin", resources.ResourceTypeBinary, resources.BehaviorRemovable)
	waitConstructed(t, e, h)
	b, ok := resources.ResourceAs[*loaders.Blob](h)
	require.True(t, ok)
	assert.Equal(t, []byte("abcd"), b.Data)
}

func TestChangedFilesAreReloadedOnTheNextFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	e := newTestEngine(t, dir, &Game{})
	defer e.Shutdown()
	h := e.Cache().GuaranteeHandleWithPath("data.bin", resources.ResourceTypeBinary, resources.BehaviorRemovable)
	waitConstructed(t, e, h)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	e.fileChanged(path)
	waitConstructed(t, e, h)

	b, ok := resources.ResourceAs[*loaders.Blob](h)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), b.Data)
}

func TestRunOnMainThreadRunsAtFrameStart(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), &Game{})
	defer e.Shutdown()

	ran := 0
	e.RunOnMainThread(func() { ran++ })
	assert.Zero(t, ran)
	require.NoError(t, e.Frame(0))
	require.NoError(t, e.Frame(0))
	assert.Equal(t, 1, ran)
}

func TestRunStops(t *testing.T) {
	t.Run("quit", func(t *testing.T) {
		frames := 0
		e := newTestEngine(t, t.TempDir(), &Game{FnUpdate: func(float64) error {
			frames++
			return nil
		}})
		defer e.Shutdown()
		e.RunOnMainThread(e.Quit)
		require.NoError(t, e.Run(context.Background()))
		assert.Equal(t, 1, frames)
	})

	t.Run("context", func(t *testing.T) {
		e := newTestEngine(t, t.TempDir(), &Game{})
		defer e.Shutdown()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, e.Run(ctx))
	})

	t.Run("update error", func(t *testing.T) {
		boom := errors.New("boom")
		e := newTestEngine(t, t.TempDir(), &Game{FnUpdate: func(float64) error { return boom }})
		defer e.Shutdown()
		assert.ErrorIs(t, e.Run(context.Background()), boom)
	})
}

func TestCacheIsSavedAndRestored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte("abcd"), 0o644))
	cfg := func() *ApplicationConfig {
		cfg := DefaultApplicationConfig()
		cfg.LogLevel = "error"
		cfg.Resources.SearchPaths = []string{dir}
		cfg.Resources.Workers = 1
		cfg.Resources.HotReload = false
		cfg.Resources.SaveFile = filepath.Join(dir, "cache.json")
		return cfg
	}

	first := newTestEngine(t, dir, &Game{ApplicationConfig: cfg()})
	h := first.Cache().GuaranteeHandleWithPath("data.bin", resources.ResourceTypeBinary, resources.BehaviorRemovable)
	waitConstructed(t, first, h)
	require.NoError(t, first.Shutdown())
	require.FileExists(t, filepath.Join(dir, "cache.json"))

	second := newTestEngine(t, dir, &Game{ApplicationConfig: cfg()})
	defer second.Shutdown()
	restored := second.Cache().TopLevelHandleWithPath("data.bin")
	require.NotNil(t, restored)
	assert.Equal(t, h.Uuid(), restored.Uuid())
	waitConstructed(t, second, restored)
}

func TestFailedRestoreKeepsTheSaveFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte("abcd"), 0o644))
	save := filepath.Join(dir, "cache.json")
	content := []byte(fmt.Sprintf(`{"resources":[`+
		`{"uuid":"%s","name":"data.bin","path":"data.bin","type":%d,"behaviorFlags":%d},`+
		`{"uuid":"not-a-uuid","type":%d}],"maxCost":1000000}`,
		core.NewUuid(), resources.ResourceTypeBinary, resources.BehaviorRemovable, resources.ResourceTypeBinary))
	require.NoError(t, os.WriteFile(save, content, 0o644))

	cfg := DefaultApplicationConfig()
	cfg.LogLevel = "error"
	cfg.Resources.SearchPaths = []string{dir}
	cfg.Resources.Workers = 1
	cfg.Resources.HotReload = false
	cfg.Resources.SaveFile = save

	e, err := New(&Game{ApplicationConfig: cfg})
	require.NoError(t, err)
	assert.Error(t, e.Initialize())
	require.NoError(t, e.Shutdown())

	after, err := os.ReadFile(save)
	require.NoError(t, err)
	assert.Equal(t, content, after)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultApplicationConfig()
	cfg.Resources.MaxCost = "plenty"
	_, err := New(&Game{ApplicationConfig: cfg})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
