package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StepStats holds aggregated statistics for a window of steps.
type StepStats struct {
	WindowStartStep int     `csv:"-"`
	WindowEndStep   int     `csv:"step"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Active       int     `csv:"active"`
	Blocks       int     `csv:"blocks"`
	ActiveBlocks int     `csv:"active_blocks"`
	Fill         float64 `csv:"fill"` // Active / (Blocks * capacity)

	// Events during window
	Emitted   int `csv:"emitted"`
	Triggered int `csv:"triggered"`
	Killed    int `csv:"killed"`

	// Distributions sampled at window end
	AgeMean   float64 `csv:"age_mean"`
	AgeP10    float64 `csv:"age_p10"`
	AgeP50    float64 `csv:"age_p50"`
	AgeP90    float64 `csv:"age_p90"`
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP90  float64 `csv:"speed_p90"`
}

// Distribution summarizes a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// Summarize sorts values in place and computes mean, population standard
// deviation and empirical percentiles. Empty input gives the zero value.
func Summarize(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sort.Float64s(values)
	mean := stat.Mean(values, nil)
	return Distribution{
		Mean: mean,
		Std:  stat.PopStdDev(values, nil),
		P10:  stat.Quantile(0.10, stat.Empirical, values, nil),
		P50:  stat.Quantile(0.50, stat.Empirical, values, nil),
		P90:  stat.Quantile(0.90, stat.Empirical, values, nil),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s StepStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartStep),
		slog.Int("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("active", s.Active),
		slog.Int("blocks", s.Blocks),
		slog.Int("active_blocks", s.ActiveBlocks),
		slog.Float64("fill", s.Fill),
		slog.Int("emitted", s.Emitted),
		slog.Int("triggered", s.Triggered),
		slog.Int("killed", s.Killed),
		slog.Float64("age_mean", s.AgeMean),
		slog.Float64("age_p50", s.AgeP50),
		slog.Float64("age_p90", s.AgeP90),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_p90", s.SpeedP90),
	)
}
