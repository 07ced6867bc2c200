// Package telemetry provides step statistics, performance timing and CSV
// output for simulation runs.
package telemetry

import (
	"github.com/pthm-cable/bparticles/particles"
)

// Collector accumulates step reports within windows and produces StepStats.
type Collector struct {
	windowSteps  int
	stepDuration float32

	windowStartStep int

	emitted   int
	triggered int
	killed    int

	ages, speeds []float64
}

// NewCollector creates a new stats collector.
// windowSteps: how many steps each stats window lasts
// stepDuration: simulated seconds per step
func NewCollector(windowSteps int, stepDuration float32) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{
		windowSteps:  windowSteps,
		stepDuration: stepDuration,
	}
}

// Record adds the counters of one step.
func (c *Collector) Record(r particles.StepReport) {
	for _, t := range r.Types {
		c.emitted += t.Emitted
		c.triggered += t.TotalTriggered()
		c.killed += t.Killed
	}
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(step int) bool {
	return step-c.windowStartStep >= c.windowSteps
}

// Flush samples state, produces a StepStats and resets counters for the next
// window.
func (c *Collector) Flush(step int, state *particles.State) StepStats {
	stats := StepStats{
		WindowStartStep: c.windowStartStep,
		WindowEndStep:   step,
		SimTimeSec:      float64(step) * float64(c.stepDuration),
		Emitted:         c.emitted,
		Triggered:       c.triggered,
		Killed:          c.killed,
	}

	c.ages = c.ages[:0]
	c.speeds = c.speeds[:0]
	slots := 0
	for _, id := range state.TypeIDs() {
		container, _ := state.Container(id)
		stats.Blocks += len(container.Blocks())
		slots += len(container.Blocks()) * container.BlockCapacity()
		for _, b := range container.ActiveBlocks() {
			stats.ActiveBlocks++
			stats.Active += b.ActiveAmount()
			for _, a := range b.Ages() {
				c.ages = append(c.ages, float64(a))
			}
			for _, v := range b.Velocities() {
				c.speeds = append(c.speeds, float64(v.Len()))
			}
		}
	}
	if slots > 0 {
		stats.Fill = float64(stats.Active) / float64(slots)
	}

	age := Summarize(c.ages)
	stats.AgeMean, stats.AgeP10, stats.AgeP50, stats.AgeP90 = age.Mean, age.P10, age.P50, age.P90
	speed := Summarize(c.speeds)
	stats.SpeedMean, stats.SpeedStd, stats.SpeedP90 = speed.Mean, speed.Std, speed.P90

	c.windowStartStep = step
	c.emitted = 0
	c.triggered = 0
	c.killed = 0

	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int {
	return c.windowSteps
}
