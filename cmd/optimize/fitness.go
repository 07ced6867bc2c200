package main

import (
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/bparticles/config"
	"github.com/pthm-cable/bparticles/driver"
	"github.com/pthm-cable/bparticles/telemetry"
)

// Targets are the steady-state values a calibrated config should reach.
type Targets struct {
	Active  float64 // Mean live particle count
	AgeMean float64 // Mean particle age in seconds (0 = ignore)
}

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	steps      int
	seeds      []int64
	baseConfig *config.Config
	targets    Targets

	mu          sync.Mutex
	bestFitness float64
	lastActive  float64 // mean active count from the most recent Evaluate call
	lastAge     float64
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, steps int, seeds []int64, baseCfg *config.Config, targets Targets) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		steps:       steps,
		seeds:       seeds,
		baseConfig:  baseCfg,
		targets:     targets,
		bestFitness: math.Inf(1),
	}
}

// Last returns the mean active count and age from the most recent evaluation.
func (fe *FitnessEvaluator) Last() (active, age float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastActive, fe.lastAge
}

// Penalty for runs that fail or never produce a stats window.
const failedRunFitness = 1e3

// runResult holds the settled averages of one run.
type runResult struct {
	active float64
	age    float64
	ok     bool
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]runResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(x, s)
		}(i, seed)
	}
	wg.Wait()

	var total, active, age float64
	for _, r := range results {
		total += fe.computeFitness(r)
		active += r.active
		age += r.age
	}
	n := float64(len(fe.seeds))
	avg := total / n

	fe.mu.Lock()
	if avg < fe.bestFitness {
		fe.bestFitness = avg
	}
	fe.lastActive, fe.lastAge = active/n, age/n
	fe.mu.Unlock()

	return avg
}

// runSimulation executes a single headless run and averages the stats
// windows of its second half, once emission and removal have settled.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) runResult {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	var windows []telemetry.StepStats
	d, err := driver.New(cfg, driver.Options{
		Seed:          seed,
		StatsCallback: func(s telemetry.StepStats) { windows = append(windows, s) },
	})
	if err != nil {
		slog.Warn("run setup failed", "seed", seed, "error", err)
		return runResult{}
	}
	defer d.Close()

	for d.Steps() < fe.steps {
		if err := d.Step(); err != nil {
			slog.Warn("run failed", "seed", seed, "step", d.Steps()+1, "error", err)
			return runResult{}
		}
	}

	settled := windows[len(windows)/2:]
	if len(settled) == 0 {
		return runResult{}
	}
	var r runResult
	for _, w := range settled {
		r.active += float64(w.Active)
		r.age += w.AgeMean
	}
	r.active /= float64(len(settled))
	r.age /= float64(len(settled))
	r.ok = true
	return r
}

// copyConfig returns a copy of the base config. Only scalar fields are
// overwritten by ApplyToConfig, so slices are shared.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}

// computeFitness is the squared relative error against the targets.
func (fe *FitnessEvaluator) computeFitness(r runResult) float64 {
	if !r.ok {
		return failedRunFitness
	}
	f := relErr2(r.active, fe.targets.Active)
	if fe.targets.AgeMean > 0 {
		f += relErr2(r.age, fe.targets.AgeMean)
	}
	return f
}

func relErr2(got, want float64) float64 {
	if want == 0 {
		return got * got
	}
	e := (got - want) / want
	return e * e
}
