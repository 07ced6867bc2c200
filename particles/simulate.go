package particles

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/blas/blas32"
)

// DefaultParallelThreshold is the minimum number of blocks of one type that
// are handed to the worker pool. Below it the pass runs on the caller.
const DefaultParallelThreshold = 2

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	Workers           int   // 0 = GOMAXPROCS
	ParallelThreshold int   // 0 = DefaultParallelThreshold
	Seed              int64 // emitter random source
	Logger            *slog.Logger
}

// Simulator executes steps. It is not safe for concurrent SimulateStep calls.
type Simulator struct {
	threshold int
	rng       *rand.Rand
	pool      *workerPool
	inline    workerScratch
	logger    *slog.Logger
}

// NewSimulator creates a simulator. Workers start lazily on the first step
// large enough to use them.
func NewSimulator(opts SimulatorOptions) *Simulator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.ParallelThreshold <= 0 {
		opts.ParallelThreshold = DefaultParallelThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		threshold: opts.ParallelThreshold,
		rng:       rand.New(rand.NewSource(opts.Seed)),
		pool:      newWorkerPool(opts.Workers, logger),
		logger:    logger,
	}
}

// Close stops the worker goroutines.
func (s *Simulator) Close() {
	s.pool.stop()
}

// SimulateStep advances state by one step as described by desc.
//
// Types are processed in ascending id order. For each type the emitters run
// first; particles they create are left exactly as written until the next
// step. Every particle that existed before emission is then integrated with
// explicit Euler (velocity first), checked against each event, committed with
// its age advanced by the step duration, and handed to the action paired with
// its earliest-firing event. Equal trigger times resolve to the lower event
// index. A zero duration runs the emitters only.
//
// Any error aborts the step; work already done is not rolled back.
func (s *Simulator) SimulateStep(state *State, desc *StepDescription) (StepReport, error) {
	if state == nil || desc == nil {
		return StepReport{}, fmt.Errorf("%w: nil state or description", ErrInvalidDescription)
	}
	if err := desc.Validate(); err != nil {
		return StepReport{}, err
	}

	ids := desc.TypeIDs()
	report := StepReport{Duration: desc.Duration, Types: make([]TypeReport, 0, len(ids))}

	// Resolve every container before mutating anything so schema conflicts
	// surface before the first emitter runs.
	containers := make([]*Container, len(ids))
	for i, id := range ids {
		c, created, err := state.ensureContainer(id, desc.Types[id].requiredAttributes())
		if err != nil {
			return StepReport{}, err
		}
		if created {
			s.logger.Debug("particle container created", "type", id, "schema", c.schema.String())
		}
		containers[i] = c
	}

	for i, id := range ids {
		tr, err := s.simulateType(id, desc.Types[id], containers[i], desc.Duration)
		report.Types = append(report.Types, tr)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *Simulator) simulateType(id uint32, t *ParticleType, c *Container, duration float32) (TypeReport, error) {
	tr := TypeReport{TypeID: id, Triggered: make([]int, len(t.Events))}

	// Only particles present before emission take part in the pass.
	blocks := c.ActiveBlocks()
	limits := make([]int, len(blocks))
	for i, b := range blocks {
		limits[i] = b.active
	}

	ctx := &EmitContext{container: c, duration: duration, rng: s.rng}
	for i, e := range t.Emitters {
		if err := e.Emit(ctx); err != nil {
			tr.Emitted = ctx.spawned
			tr.fill(c)
			return tr, fmt.Errorf("type %d emitter %d: %w", id, i, asProviderError(err))
		}
	}
	tr.Emitted = ctx.spawned

	if duration == 0 || len(blocks) == 0 {
		tr.fill(c)
		return tr, nil
	}

	pass := &typePass{typeID: id, typ: t, duration: duration}
	results := make([]blockResult, len(blocks))
	tasks := make([]blockTask, len(blocks))
	for i, b := range blocks {
		tasks[i] = blockTask{pass: pass, block: b, limit: limits[i], out: &results[i]}
	}

	if len(tasks) < s.threshold || s.pool.numWorkers == 1 {
		for i := range tasks {
			results[i] = pass.processBlock(tasks[i].block, tasks[i].limit, &s.inline)
		}
	} else {
		s.pool.run(tasks)
	}

	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		tr.Killed += r.killed
		for ei, n := range r.triggered {
			tr.Triggered[ei] += n
		}
	}
	tr.fill(c)
	return tr, errors.Join(errs...)
}

// typePass is the read-only context shared by all block tasks of one type.
type typePass struct {
	typeID   uint32
	typ      *ParticleType
	duration float32
}

// processBlock runs integration, event detection and action execution for the
// first limit particles of b.
func (p *typePass) processBlock(b *Block, limit int, scratch *workerScratch) blockResult {
	res := blockResult{triggered: make([]int, len(p.typ.Events))}
	n := min(limit, b.active)
	if n == 0 {
		return res
	}
	scratch.resize(n)
	d := p.duration
	particles := ParticleSlice{block: b, n: n}

	// Forces at step start.
	clear(scratch.accel)
	for i, f := range p.typ.Forces {
		if err := f.AddAcceleration(ForceInput{Particles: particles}, scratch.accel); err != nil {
			res.err = fmt.Errorf("type %d force %d: %w", p.typeID, i, asProviderError(err))
			return res
		}
	}

	// Tentative end-of-step state: v' = v + a*d, x' = x + v'*d.
	copy(scratch.velocities, particles.Velocities())
	axpy(d, scratch.accel, scratch.velocities)
	copy(scratch.positions, particles.Positions())
	axpy(d, scratch.velocities, scratch.positions)

	// Earliest trigger per particle.
	for i := range scratch.best {
		scratch.best[i] = NoTrigger
		scratch.eventIndex[i] = -1
	}
	in := EventInput{
		Particles:  particles,
		Positions:  scratch.positions,
		Velocities: scratch.velocities,
		Duration:   d,
	}
	for ei, ev := range p.typ.Events {
		for i := range scratch.triggers {
			scratch.triggers[i] = NoTrigger
		}
		if err := ev.FindTriggers(in, scratch.triggers); err != nil {
			res.err = fmt.Errorf("type %d event %d: %w", p.typeID, ei, asProviderError(err))
			return res
		}
		for i, t := range scratch.triggers {
			if t < 0 {
				continue
			}
			if math.IsNaN(float64(t)) || t > d {
				res.err = fmt.Errorf("%w: type %d event %d reported trigger time %v outside [0, %v]",
					ErrProviderFailure, p.typeID, ei, t, d)
				return res
			}
			if scratch.eventIndex[i] < 0 || t < scratch.best[i] {
				scratch.best[i] = t
				scratch.eventIndex[i] = ei
			}
		}
	}

	// Commit back to front: a kill pulls the last active particle into the
	// freed slot, and that particle is either already committed or was
	// emitted this step.
	pos := b.float3s[positionColumn]
	vel := b.float3s[velocityColumn]
	age := b.floats[ageColumn]
	for i := n - 1; i >= 0; i-- {
		pos[i] = scratch.positions[i]
		vel[i] = scratch.velocities[i]
		age[i] += d

		ei := scratch.eventIndex[i]
		if ei < 0 {
			continue
		}
		res.triggered[ei]++
		ap := ActionParticle{block: b, index: i, triggerTime: scratch.best[i], duration: d}
		if err := p.typ.Actions[ei].Execute(&ap); err != nil {
			res.err = fmt.Errorf("type %d action %d: %w", p.typeID, ei, asProviderError(err))
			return res
		}
		if ap.killed {
			res.killed++
		}
	}
	return res
}

// axpy computes y += alpha*x over vector columns.
func axpy(alpha float32, x, y []mgl32.Vec3) {
	if len(x) == 0 {
		return
	}
	n := 3 * len(x)
	blas32.Axpy(alpha,
		blas32.Vector{N: n, Inc: 1, Data: flatten(x)},
		blas32.Vector{N: n, Inc: 1, Data: flatten(y)},
	)
}

// flatten views a vector column as its float32 components.
func flatten(v []mgl32.Vec3) []float32 {
	return unsafe.Slice(&v[0][0], 3*len(v))
}

// asProviderError classifies errors coming out of providers: errors already
// carrying one of the package kinds pass through, everything else becomes a
// provider failure.
func asProviderError(err error) error {
	if errors.Is(err, ErrAllocationExhausted) ||
		errors.Is(err, ErrInvalidDescription) ||
		errors.Is(err, ErrProviderFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProviderFailure, err)
}
