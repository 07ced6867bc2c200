package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/profile"

	"github.com/pthm-cable/bparticles/config"
	"github.com/pthm-cable/bparticles/driver"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the simulation and returns the process exit code. Deferred
// cleanup, including the profiler, runs before main exits.
func run(args []string) int {
	// CLI flags
	flags := flag.NewFlagSet("bparticles", flag.ContinueOnError)
	configPath := flags.String("config", "", "Path to config.yaml (empty = use defaults)")
	steps := flags.Int("steps", 240, "Number of steps to simulate")
	logStats := flags.Bool("log-stats", true, "Output stats via slog")
	outputDir := flags.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flags.Int64("seed", 0, "RNG seed (0 = time-based)")
	profileMode := flags.String("profile", "", "Write a profile to the output dir: cpu or mem")
	debug := flags.Bool("debug", false, "Enable debug logging")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	profileDir := *outputDir
	if profileDir == "" {
		profileDir = "."
	}
	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(profileDir), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(profileDir), profile.Quiet).Stop()
	default:
		slog.Error("unknown profile mode", "profile", *profileMode)
		return 1
	}

	d, err := driver.New(cfg, driver.Options{
		Seed:      rngSeed,
		OutputDir: *outputDir,
		LogStats:  *logStats,
	})
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		return 1
	}

	slog.Info("starting simulation",
		"seed", rngSeed,
		"steps", *steps,
		"step_duration", cfg.Derived.StepDuration32,
		"emitters", len(cfg.Scene.Emitters),
		"colliders", len(cfg.Scene.Colliders),
	)

	start := time.Now()
	for d.Steps() < *steps {
		if err := d.Step(); err != nil {
			slog.Error("step failed", "step", d.Steps()+1, "error", err)
			d.Close()
			return 1
		}
	}

	slog.Info("simulation finished",
		"steps", d.Steps(),
		"particles", d.State().CountActive(),
		"elapsed", time.Since(start).String(),
	)
	if err := d.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
		return 1
	}
	return 0
}
