package engine

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/reverie/engine/core"
)

type ApplicationConfig struct {
	// The application name, used in logs.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Frames per second the main loop aims for. 0 runs unthrottled.
	TargetFPS int `toml:"target_fps"`
	// Address of the resource inspector. Empty disables it.
	DebugAddr string         `toml:"debug_addr"`
	Resources ResourceConfig `toml:"resources"`
}

type ResourceConfig struct {
	// Soft budget of the resource cache, e.g. "512MiB".
	MaxCost     string   `toml:"max_cost"`
	SearchPaths []string `toml:"search_paths"`
	// Background loader goroutines.
	Workers      int `toml:"workers"`
	JobQueueSize int `toml:"job_queue_size"`
	// Initial capacity of the post-construction queue.
	PostConstructionQueueSize int  `toml:"post_construction_queue_size"`
	HotReload                 bool `toml:"hot_reload"`
	// Cache state is restored from and saved to this file when set.
	SaveFile string `toml:"save_file"`
}

var ErrInvalidConfig = errors.New("invalid application config")

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:      "Reverie",
		LogLevel:  "info",
		TargetFPS: 60,
		Resources: ResourceConfig{
			MaxCost:                   "512MiB",
			SearchPaths:               []string{"assets"},
			Workers:                   max(1, runtime.NumCPU()-1),
			JobQueueSize:              256,
			PostConstructionQueueSize: 64,
			HotReload:                 true,
		},
	}
}

// LoadApplicationConfig reads a TOML file on top of the defaults. Unknown
// keys are rejected.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := DefaultApplicationConfig()
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ApplicationConfig) Validate() error {
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
	}
	if c.TargetFPS < 0 {
		return fmt.Errorf("%w: target_fps must not be negative", ErrInvalidConfig)
	}
	rc := c.Resources
	if _, err := rc.MaxCostBytes(); err != nil {
		return err
	}
	if rc.Workers < 1 {
		return fmt.Errorf("%w: resources.workers must be at least 1", ErrInvalidConfig)
	}
	if rc.JobQueueSize < 0 || rc.PostConstructionQueueSize < 0 {
		return fmt.Errorf("%w: queue sizes must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *ApplicationConfig) Level() (core.LogLevel, error) {
	return core.ParseLogLevel(c.LogLevel)
}

// MaxCostBytes parses MaxCost. Both "512MiB" and "512MB" are read as binary
// sizes.
func (rc ResourceConfig) MaxCostBytes() (int64, error) {
	n, err := units.RAMInBytes(rc.MaxCost)
	if err != nil {
		return 0, fmt.Errorf("%w: resources.max_cost: %w", ErrInvalidConfig, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: resources.max_cost must not be negative", ErrInvalidConfig)
	}
	return n, nil
}
