package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/bparticles/config"
	"github.com/pthm-cable/bparticles/telemetry"
)

func TestDriverRun(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Telemetry.LogEvery = 12
	cfg.Telemetry.ExportPositions = true

	dir := t.TempDir()
	var windows []telemetry.StepStats
	d, err := New(cfg, Options{
		Seed:          5,
		OutputDir:     dir,
		StatsCallback: func(s telemetry.StepStats) { windows = append(windows, s) },
	})
	require.NoError(t, err)

	for i := 0; i < 48; i++ {
		require.NoError(t, d.Step())
	}
	assert.Equal(t, 48, d.Steps())
	require.Len(t, windows, 4)
	assert.Equal(t, 48, windows[3].WindowEndStep)
	assert.InDelta(t, 2.0, windows[3].SimTimeSec, 1e-6)
	assert.Equal(t, d.State().CountActive(), windows[3].Active)
	assert.NotZero(t, windows[3].Active)

	emitted := 0
	for _, w := range windows {
		emitted += w.Emitted
	}
	killed := 0
	for _, w := range windows {
		killed += w.Killed
	}
	assert.Equal(t, emitted-killed, windows[3].Active)

	require.NoError(t, d.Close())

	for name, rows := range map[string]int{"steps.csv": 5, "perf.csv": 5} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), rows, name)
	}
	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	assert.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, "positions.csv"))
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestDriverHeadlessWithoutOutput(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Scene.Colliders = nil

	d, err := New(cfg, Options{Seed: 1, LogStats: true})
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Step())
	}
	assert.NotZero(t, d.State().CountActive())
	assert.InDelta(t, 5*float64(cfg.Derived.StepDuration32), d.Scene().Time(), 1e-6)
}

func TestDriverFailedStepEndsPerfSample(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Simulation.BlockCapacity = 1
	cfg.Simulation.MaxBlocks = 1

	d, err := New(cfg, Options{Seed: 2})
	require.NoError(t, err)
	defer d.Close()

	require.Error(t, d.Step(), "one slot cannot hold a step of emission")
	assert.Zero(t, d.Steps())

	stats := d.perfCollector.Stats()
	assert.Contains(t, stats.PhaseAvg, telemetry.PhaseSimulate)
}
