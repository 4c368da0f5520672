package testbed

import (
	"encoding/json"

	"github.com/spaghettifunk/reverie/engine"
	"github.com/spaghettifunk/reverie/engine/core"
	"github.com/spaghettifunk/reverie/engine/resources"
	"github.com/spaghettifunk/reverie/engine/resources/loaders"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	cache *resources.ResourceCache

	crate     *resources.ResourceHandle
	generated *resources.ResourceHandle
	spin      *resources.ResourceHandle

	elapsed     float64
	lastReport  float64
	crateLogged bool
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Boot(cache *resources.ResourceCache) error {
	core.LogInfo("booting testbed...")
	cache.RegisterCoreResource(resources.CoreResource{
		Name:  "builtin.world",
		Type:  resources.ResourceTypeShaderProgram,
		Paths: []string{"builtin.world.vert", "builtin.world.frag"},
	})
	return nil
}

func (g *TestGame) Initialize(cache *resources.ResourceCache) error {
	s := g.state()
	s.cache = cache

	s.crate = cache.GuaranteeHandleWithPath("crate.json", resources.ResourceTypeModel, resources.BehaviorRemovable)
	s.spin = cache.GuaranteeHandleWithPath("spin.json", resources.ResourceTypeAnimation, resources.BehaviorRemovable)

	// a second crate assembled in code, sharing the files of the first one
	desc, err := json.Marshal(loaders.ModelDescriptor{
		Name:  "generated crate",
		Parts: []loaders.ModelPart{{Mesh: "cube.obj", Material: "crate.amt"}},
	})
	if err != nil {
		return err
	}
	s.generated = resources.NewResourceHandle(cache, resources.ResourceTypeModel, "", resources.BehaviorRuntimeGenerated|resources.BehaviorRemovable|resources.BehaviorUnsaved)
	s.generated.SetName("generated crate")
	s.generated.SetCachedResourceJSON(desc)
	if _, err := cache.InsertHandle(s.generated); err != nil {
		return err
	}
	s.generated.LoadResource(false)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	s.elapsed += deltaTime

	if !s.crateLogged && s.crate.IsFullyConstructed() {
		if m, ok := resources.ResourceAs[*loaders.Model](s.crate); ok {
			core.LogInfo("crate ready: %d meshes, %d children", len(m.Meshes()), len(s.crate.Children()))
		}
		s.crateLogged = true
	}

	if s.elapsed-s.lastReport >= 5 {
		s.lastReport = s.elapsed
		if a, ok := resources.ResourceAs[*loaders.Animation](s.spin); ok && s.spin.IsConstructed() {
			rot := a.Sample(float32(s.elapsed)).Rotation
			core.LogDebug("spin rotation at %.2fs: [%.3f, %.3f, %.3f, %.3f]", s.elapsed, rot.X, rot.Y, rot.Z, rot.W)
		}
		core.LogInfo("%s, fps %.1f", s.cache, core.MetricsFPS())
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed after %.1fs", g.state().elapsed)
	return nil
}
