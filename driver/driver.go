// Package driver runs the scene and particle engine step by step, headless,
// with telemetry.
package driver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/bparticles/config"
	"github.com/pthm-cable/bparticles/particles"
	"github.com/pthm-cable/bparticles/scene"
	"github.com/pthm-cable/bparticles/telemetry"
)

// Options configures a Driver.
type Options struct {
	Seed      int64
	OutputDir string // empty disables CSV output
	LogStats  bool

	// StatsCallback, if set, receives every flushed stats window.
	StatsCallback func(telemetry.StepStats)
}

// Driver owns one simulation run.
type Driver struct {
	cfg   *config.Config
	scene *scene.Scene
	sim   *particles.Simulator
	state *particles.State

	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	statsCallback func(telemetry.StepStats)
	logStats      bool

	step      int
	positions []mgl32.Vec3
}

// New builds the scene described by cfg and an empty particle state.
func New(cfg *config.Config, opts Options) (*Driver, error) {
	sc, err := scene.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building scene: %w", err)
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	d := &Driver{
		cfg:   cfg,
		scene: sc,
		sim: particles.NewSimulator(particles.SimulatorOptions{
			Workers:           cfg.Simulation.Workers,
			ParallelThreshold: cfg.Simulation.ParallelThreshold,
			Seed:              opts.Seed,
			Logger:            slog.Default(),
		}),
		state: particles.NewState(particles.StateOptions{
			BlockCapacity: cfg.Simulation.BlockCapacity,
			MaxBlocks:     cfg.Simulation.MaxBlocks,
		}),
		collector:     telemetry.NewCollector(cfg.Telemetry.LogEvery, cfg.Derived.StepDuration32),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		outputManager: om,
		statsCallback: opts.StatsCallback,
		logStats:      opts.LogStats,
	}
	return d, nil
}

// Step advances the scene animation and the particles by one step.
func (d *Driver) Step() error {
	d.perfCollector.StartStep()
	defer d.perfCollector.EndStep()

	d.perfCollector.StartPhase(telemetry.PhaseBuild)
	desc, err := d.scene.BuildStep(d.cfg)
	if err != nil {
		return fmt.Errorf("step %d: %w", d.step+1, err)
	}

	d.perfCollector.StartPhase(telemetry.PhaseSimulate)
	report, simErr := d.sim.SimulateStep(d.state, desc)

	d.perfCollector.StartPhase(telemetry.PhaseRelease)
	if err := errors.Join(simErr, desc.Close()); err != nil {
		return fmt.Errorf("step %d: %w", d.step+1, err)
	}

	d.perfCollector.StartPhase(telemetry.PhaseScene)
	d.scene.Advance(desc.Duration)
	d.step++
	d.collector.Record(report)

	d.perfCollector.StartPhase(telemetry.PhaseExport)
	return d.flushTelemetry(report)
}

// flushTelemetry writes a stats window when one is complete.
func (d *Driver) flushTelemetry(report particles.StepReport) error {
	if !d.collector.ShouldFlush(d.step) {
		return nil
	}
	stats := d.collector.Flush(d.step, d.state)
	perfStats := d.perfCollector.Stats()

	if d.statsCallback != nil {
		d.statsCallback(stats)
	}
	if d.logStats {
		for _, t := range report.Types {
			slog.Info("particle type", "type_id", t.TypeID, "particles", t.Active, "blocks", t.ActiveBlocks)
		}
		slog.Info("stats", "window", stats)
		slog.Info("perf", "window", perfStats)
	}

	if d.outputManager == nil {
		return nil
	}
	if err := d.outputManager.WriteSteps(stats); err != nil {
		return err
	}
	if err := d.outputManager.WritePerf(perfStats, d.step); err != nil {
		return err
	}
	if d.cfg.Telemetry.ExportPositions {
		d.positions = d.state.Positions(d.positions[:0])
		return d.outputManager.WritePositions(d.step, d.positions)
	}
	return nil
}

// Steps returns the number of completed steps.
func (d *Driver) Steps() int { return d.step }

// State returns the particle state.
func (d *Driver) State() *particles.State { return d.state }

// Scene returns the host scene.
func (d *Driver) Scene() *scene.Scene { return d.scene }

// Close stops the workers, releases the particles and closes output files.
func (d *Driver) Close() error {
	d.sim.Close()
	d.state.Release()
	return d.outputManager.Close()
}
