package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/bparticles/config"
)

// PositionRecord is one exported particle position.
type PositionRecord struct {
	Step  int     `csv:"step"`
	Index int     `csv:"index"`
	X     float32 `csv:"x"`
	Y     float32 `csv:"y"`
	Z     float32 `csv:"z"`
}

// csvFile is an output file whose header is written with the first record.
type csvFile struct {
	name          string
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.f); err != nil {
			return fmt.Errorf("writing %s: %w", c.name, err)
		}
		c.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, c.f); err != nil {
		return fmt.Errorf("writing %s: %w", c.name, err)
	}
	return nil
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir       string
	steps     *csvFile
	perf      *csvFile
	positions *csvFile

	records []PositionRecord
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	for _, target := range []struct {
		name string
		dst  **csvFile
	}{
		{"steps.csv", &om.steps},
		{"perf.csv", &om.perf},
		{"positions.csv", &om.positions},
	} {
		f, err := os.Create(filepath.Join(dir, target.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", target.name, err)
		}
		*target.dst = &csvFile{name: target.name, f: f}
	}

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteSteps writes a window stats record to steps.csv.
func (om *OutputManager) WriteSteps(stats StepStats) error {
	if om == nil {
		return nil
	}
	return om.steps.write([]StepStats{stats})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, step int) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfStatsCSV{stats.ToCSV(step)})
}

// WritePositions appends the exported positions of one step to positions.csv.
func (om *OutputManager) WritePositions(step int, positions []mgl32.Vec3) error {
	if om == nil || len(positions) == 0 {
		return nil
	}
	om.records = om.records[:0]
	for i, p := range positions {
		om.records = append(om.records, PositionRecord{Step: step, Index: i, X: p[0], Y: p[1], Z: p[2]})
	}
	return om.positions.write(om.records)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var errs []error
	for _, c := range []*csvFile{om.steps, om.perf, om.positions} {
		if c == nil {
			continue
		}
		if err := c.f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
