// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Emitter    EmitterConfig    `yaml:"emitter"`
	Forces     ForcesConfig     `yaml:"forces"`
	Events     EventsConfig     `yaml:"events"`
	Actions    ActionsConfig    `yaml:"actions"`
	Scene      SceneConfig      `yaml:"scene"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds step executor parameters.
type SimulationConfig struct {
	FPS               float64 `yaml:"fps"`                // Steps per simulated second; step duration is 1/fps
	BlockCapacity     int     `yaml:"block_capacity"`     // Slots per particle block
	MaxBlocks         int     `yaml:"max_blocks"`         // Per-type block limit (0 = unlimited)
	Workers           int     `yaml:"workers"`            // Worker goroutines (0 = GOMAXPROCS)
	ParallelThreshold int     `yaml:"parallel_threshold"` // Active blocks below this run inline
}

// EmitterConfig holds mesh surface emission parameters.
type EmitterConfig struct {
	TypeID         uint32  `yaml:"type_id"`
	Rate           float64 `yaml:"rate"`            // Particles per unit area per second
	NormalVelocity float64 `yaml:"normal_velocity"` // Initial speed along the surface normal
}

// ForcesConfig holds force parameters applied to emitted particles.
type ForcesConfig struct {
	Gravity []float64 `yaml:"gravity"`
	Drag    float64   `yaml:"drag"` // 0 disables drag
}

// EventsConfig holds event parameters.
type EventsConfig struct {
	AgeThreshold float64 `yaml:"age_threshold"` // 0 disables the age event
}

// ActionsConfig holds the action paired with the age event.
type ActionsConfig struct {
	MoveOffset []float64 `yaml:"move_offset"`
	MoveTarget string    `yaml:"move_target"` // "velocity" or "position"
}

// SceneConfig describes the host scene objects.
type SceneConfig struct {
	Emitters  []ObjectConfig `yaml:"emitters"`
	Colliders []ObjectConfig `yaml:"colliders"`
}

// ObjectConfig describes one mesh object placed in the scene.
type ObjectConfig struct {
	Name         string    `yaml:"name"`
	Shape        string    `yaml:"shape"`                  // "plane" or "box"
	Size         []float64 `yaml:"size"`                   // Plane: [side]; box: [x, y, z]
	Subdivisions int       `yaml:"subdivisions,omitempty"` // Plane only
	Position     []float64 `yaml:"position,omitempty"`
	Rotation     []float64 `yaml:"rotation,omitempty"` // Euler XYZ in degrees
	Spin         []float64 `yaml:"spin,omitempty"`     // Degrees per second around X, Y, Z
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	LogEvery        int  `yaml:"log_every"`        // Log step stats every N steps
	PerfWindow      int  `yaml:"perf_window"`      // Steps averaged by the perf collector
	ExportPositions bool `yaml:"export_positions"` // Write positions.csv on every logged step
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	StepDuration32 float32    // 1/Simulation.FPS
	Gravity        mgl32.Vec3 // Forces.Gravity as a vector
	MoveOffset     mgl32.Vec3 // Actions.MoveOffset as a vector
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path and sets it as the global config.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Simulation.FPS <= 0 {
		return fmt.Errorf("simulation.fps must be positive, got %v", c.Simulation.FPS)
	}
	if c.Simulation.BlockCapacity < 0 || c.Simulation.MaxBlocks < 0 {
		return fmt.Errorf("simulation block limits must not be negative")
	}
	if c.Emitter.Rate < 0 {
		return fmt.Errorf("emitter.rate must not be negative, got %v", c.Emitter.Rate)
	}
	if c.Events.AgeThreshold < 0 {
		return fmt.Errorf("events.age_threshold must not be negative, got %v", c.Events.AgeThreshold)
	}
	if err := checkVec("forces.gravity", c.Forces.Gravity); err != nil {
		return err
	}
	if err := checkVec("actions.move_offset", c.Actions.MoveOffset); err != nil {
		return err
	}
	switch c.Actions.MoveTarget {
	case "", "velocity", "position":
	default:
		return fmt.Errorf("actions.move_target: unknown target %q", c.Actions.MoveTarget)
	}

	objects := append(append([]ObjectConfig{}, c.Scene.Emitters...), c.Scene.Colliders...)
	for _, o := range objects {
		if err := o.validate(); err != nil {
			return fmt.Errorf("scene object %q: %w", o.Name, err)
		}
	}
	return nil
}

func (o ObjectConfig) validate() error {
	switch o.Shape {
	case "plane":
		if len(o.Size) != 1 || o.Size[0] <= 0 {
			return fmt.Errorf("plane size must be one positive value, got %v", o.Size)
		}
	case "box":
		if len(o.Size) != 3 {
			return fmt.Errorf("box size must have 3 components, got %v", o.Size)
		}
	default:
		return fmt.Errorf("unknown shape %q", o.Shape)
	}
	for name, v := range map[string][]float64{"position": o.Position, "rotation": o.Rotation, "spin": o.Spin} {
		if len(v) != 0 && len(v) != 3 {
			return fmt.Errorf("%s must have 3 components, got %v", name, v)
		}
	}
	return nil
}

func checkVec(name string, v []float64) error {
	if len(v) != 0 && len(v) != 3 {
		return fmt.Errorf("%s must have 3 components, got %v", name, v)
	}
	return nil
}

// Vec3 converts an optional three-component list. Empty lists give the zero
// vector.
func Vec3(v []float64) mgl32.Vec3 {
	if len(v) != 3 {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.StepDuration32 = float32(1 / c.Simulation.FPS)
	c.Derived.Gravity = Vec3(c.Forces.Gravity)
	c.Derived.MoveOffset = Vec3(c.Actions.MoveOffset)

	if c.Actions.MoveTarget == "" {
		c.Actions.MoveTarget = "velocity"
	}
	if c.Telemetry.LogEvery < 1 {
		c.Telemetry.LogEvery = 1
	}
	for i := range c.Scene.Emitters {
		if c.Scene.Emitters[i].Name == "" {
			c.Scene.Emitters[i].Name = fmt.Sprintf("emitter%d", i)
		}
	}
	for i := range c.Scene.Colliders {
		if c.Scene.Colliders[i].Name == "" {
			c.Scene.Colliders[i].Name = fmt.Sprintf("collider%d", i)
		}
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
