package influences_test

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/bparticles/geometry"
	"github.com/pthm-cable/bparticles/influences"
	"github.com/pthm-cable/bparticles/particles"
)

type particle struct {
	pos, vel mgl32.Vec3
	age      float32
}

type seed []particle

func (s seed) Emit(ctx *particles.EmitContext) error {
	p, err := ctx.Spawn(len(s))
	if err != nil {
		return err
	}
	pos := make([]mgl32.Vec3, len(s))
	vel := make([]mgl32.Vec3, len(s))
	age := make([]float32, len(s))
	for i, q := range s {
		pos[i], vel[i], age[i] = q.pos, q.vel, q.age
	}
	if err := p.SetFloat3(particles.AttrPosition, pos); err != nil {
		return err
	}
	if err := p.SetFloat3(particles.AttrVelocity, vel); err != nil {
		return err
	}
	return p.SetFloat(particles.AttrAge, age)
}

// recorder keeps the trigger time of every action run, keyed by the x
// coordinate of the particle.
type recorder struct {
	times map[float32]float32
}

func (r *recorder) Execute(p *particles.ActionParticle) error {
	if r.times == nil {
		r.times = make(map[float32]float32)
	}
	r.times[p.Position()[0]] = p.TriggerTime()
	return nil
}

type world struct {
	sim   *particles.Simulator
	state *particles.State
}

func newWorld(t *testing.T, ps ...particle) *world {
	t.Helper()
	w := &world{
		sim:   particles.NewSimulator(particles.SimulatorOptions{Seed: 7}),
		state: particles.NewState(particles.StateOptions{}),
	}
	t.Cleanup(w.sim.Close)
	if len(ps) > 0 {
		desc := particles.NewStepDescription(0)
		desc.Type(0).AddEmitter(seed(ps))
		_, err := w.sim.SimulateStep(w.state, desc)
		require.NoError(t, err)
	}
	return w
}

func (w *world) step(t *testing.T, d float32, build func(*particles.ParticleType)) (particles.StepReport, error) {
	t.Helper()
	desc := particles.NewStepDescription(d)
	build(desc.Type(0))
	return w.sim.SimulateStep(w.state, desc)
}

func (w *world) block(t *testing.T) *particles.Block {
	t.Helper()
	c, ok := w.state.Container(0)
	require.True(t, ok)
	blocks := c.ActiveBlocks()
	require.NotEmpty(t, blocks)
	return blocks[0]
}

func TestDirectionalAndDrag(t *testing.T) {
	w := newWorld(t, particle{vel: mgl32.Vec3{4, 0, 0}})
	_, err := w.step(t, 0.5, func(pt *particles.ParticleType) {
		pt.AddForce(influences.NewDirectional(mgl32.Vec3{0, 0, -2}))
		pt.AddForce(&influences.Drag{Coefficient: 0.5})
	})
	require.NoError(t, err)

	// a = (0,0,-2) - 0.5*(4,0,0) = (-2,0,-2)
	b := w.block(t)
	assert.Equal(t, mgl32.Vec3{3, 0, -1}, b.Velocities()[0])
	assert.Equal(t, mgl32.Vec3{1.5, 0, -0.5}, b.Positions()[0])
}

func TestAgeReached(t *testing.T) {
	w := newWorld(t,
		particle{pos: mgl32.Vec3{1, 0, 0}, age: 0.1},
		particle{pos: mgl32.Vec3{2, 0, 0}, age: 0.6},
		particle{pos: mgl32.Vec3{3, 0, 0}, age: 1.0},
		particle{pos: mgl32.Vec3{4, 0, 0}, age: 1.2},
	)
	rec := &recorder{}
	_, err := w.step(t, 0.4, func(pt *particles.ParticleType) {
		pt.AddEvent(influences.NewAgeReached(1.0), rec)
	})
	require.NoError(t, err)

	require.Len(t, rec.times, 1, "only the particle crossing the threshold fires")
	assert.InDelta(t, 0.4, rec.times[2], 1e-6, "crossing at the step end counts")
}

func TestMeshCollision(t *testing.T) {
	bvh, err := geometry.NewBVH(geometry.NewPlane(10, 2), 0)
	require.NoError(t, err)

	tests := []struct {
		name      string
		transform mgl32.Mat4
		p         particle
		want      float32
		hit       bool
	}{
		{
			name:      "crossing at half step",
			transform: mgl32.Ident4(),
			p:         particle{pos: mgl32.Vec3{1, 2, 1}, vel: mgl32.Vec3{0, 0, -2}},
			want:      0.5,
			hit:       true,
		},
		{
			name:      "translated surface",
			transform: mgl32.Translate3D(0, 0, -0.5),
			p:         particle{pos: mgl32.Vec3{1, 2, 1}, vel: mgl32.Vec3{0, 0, -2}},
			want:      0.75,
			hit:       true,
		},
		{
			name:      "scaled surface is hit outside its local extent",
			transform: mgl32.Scale3D(4, 4, 1),
			p:         particle{pos: mgl32.Vec3{12, 6, 1}, vel: mgl32.Vec3{0, 0, -4}},
			want:      0.25,
			hit:       true,
		},
		{
			name:      "stops short",
			transform: mgl32.Ident4(),
			p:         particle{pos: mgl32.Vec3{1, 2, 3}, vel: mgl32.Vec3{0, 0, -2}},
		},
		{
			name:      "moves parallel",
			transform: mgl32.Ident4(),
			p:         particle{pos: mgl32.Vec3{1, 2, 1}, vel: mgl32.Vec3{2, 0, 0}},
		},
		{
			name:      "misses the edge",
			transform: mgl32.Ident4(),
			p:         particle{pos: mgl32.Vec3{6, 2, 1}, vel: mgl32.Vec3{0, 0, -2}},
		},
		{
			name:      "resting",
			transform: mgl32.Ident4(),
			p:         particle{pos: mgl32.Vec3{0, 0, 1}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := influences.NewMeshCollision(bvh, tc.transform)
			require.NoError(t, err)

			w := newWorld(t, tc.p)
			var got float32 = -1
			hit := false
			_, err = w.step(t, 1, func(pt *particles.ParticleType) {
				pt.AddEvent(ev, actionFunc(func(p *particles.ActionParticle) error {
					got, hit = p.TriggerTime(), true
					return nil
				}))
			})
			require.NoError(t, err)
			assert.Equal(t, tc.hit, hit)
			if tc.hit {
				assert.InDelta(t, tc.want, got, 1e-5)
			}
		})
	}
}

type actionFunc func(p *particles.ActionParticle) error

func (f actionFunc) Execute(p *particles.ActionParticle) error { return f(p) }

type brokenIndex struct{}

func (brokenIndex) RayCast(mgl32.Vec3, mgl32.Vec3, float32) (float32, bool, error) {
	return 0, false, errors.New("index not built")
}

func TestMeshCollisionErrors(t *testing.T) {
	_, err := influences.NewMeshCollision(brokenIndex{}, mgl32.Scale3D(1, 0, 1))
	assert.ErrorIs(t, err, particles.ErrInvalidDescription)

	_, err = influences.NewMeshCollision(nil, mgl32.Ident4())
	assert.ErrorIs(t, err, particles.ErrInvalidDescription)

	ev, err := influences.NewMeshCollision(brokenIndex{}, mgl32.Ident4())
	require.NoError(t, err)
	w := newWorld(t, particle{vel: mgl32.Vec3{1, 0, 0}})
	_, err = w.step(t, 1, func(pt *particles.ParticleType) {
		pt.AddEvent(ev, influences.NewKill())
	})
	assert.ErrorIs(t, err, particles.ErrProviderFailure)
}

func TestCollisionKillsBeforeAgeMove(t *testing.T) {
	bvh, err := geometry.NewBVH(geometry.NewPlane(10, 1), 0)
	require.NoError(t, err)
	collide, err := influences.NewMeshCollision(bvh, mgl32.Ident4())
	require.NoError(t, err)

	w := newWorld(t,
		particle{pos: mgl32.Vec3{1, 2, 0.5}, vel: mgl32.Vec3{0, 0, -1}, age: 0.9},
		particle{pos: mgl32.Vec3{3, 1, 5}, vel: mgl32.Vec3{0, 0, -1}, age: 0.9},
	)
	report, err := w.step(t, 1, func(pt *particles.ParticleType) {
		pt.AddEvent(collide, influences.NewKill())
		pt.AddEvent(influences.NewAgeReached(1), influences.NewMove(mgl32.Vec3{0, 1, 0}))
	})
	require.NoError(t, err)

	// First particle: age fires at 0.1, collision at 0.5, so it moves.
	// Second particle: only the age event fires.
	assert.Equal(t, []int{0, 2}, report.Types[0].Triggered)
	assert.Equal(t, 2, w.state.CountActive())
	b := w.block(t)
	assert.Equal(t, mgl32.Vec3{0, 1, -1}, b.Velocities()[0])
	assert.Equal(t, mgl32.Vec3{0, 1, -1}, b.Velocities()[1])
}

func TestMoveTargets(t *testing.T) {
	w := newWorld(t, particle{pos: mgl32.Vec3{1, 2, 3}, vel: mgl32.Vec3{0, 0, 0}})
	_, err := w.step(t, 1, func(pt *particles.ParticleType) {
		pt.AddEvent(influences.NewAgeReached(0.5), influences.Sequence{
			&influences.Move{Offset: mgl32.Vec3{10, 0, 0}, Target: influences.MovePosition},
			influences.NewMove(mgl32.Vec3{0, 0, 1}),
		})
	})
	require.NoError(t, err)

	b := w.block(t)
	assert.Equal(t, mgl32.Vec3{11, 2, 3}, b.Positions()[0])
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, b.Velocities()[0])
}

func TestSequenceStopsAfterKill(t *testing.T) {
	w := newWorld(t, particle{}, particle{pos: mgl32.Vec3{5, 0, 0}})
	after := 0
	report, err := w.step(t, 1, func(pt *particles.ParticleType) {
		pt.AddEvent(influences.NewAgeReached(0.5), influences.Sequence{
			influences.NewKill(),
			actionFunc(func(*particles.ActionParticle) error { after++; return nil }),
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 0, after)
	assert.Equal(t, 2, report.Types[0].Killed)
	assert.Equal(t, 0, w.state.CountActive())
}

func TestRecordAge(t *testing.T) {
	w := newWorld(t)
	_, err := w.step(t, 0, func(pt *particles.ParticleType) {
		pt.AddEmitter(seed{{age: 0.75}})
		pt.AddEvent(influences.NewAgeReached(1), influences.Sequence{&influences.RecordAge{Attribute: "BounceAge"}})
	})
	require.NoError(t, err)

	_, err = w.step(t, 0.5, func(pt *particles.ParticleType) {
		pt.AddEvent(influences.NewAgeReached(1), &influences.RecordAge{Attribute: "BounceAge"})
	})
	require.NoError(t, err)

	got, err := w.block(t).Float("BounceAge")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got[0], 1e-6)
}

func TestMeshSurfaceEmitter(t *testing.T) {
	plane := geometry.NewPlane(2, 4)
	transform := mgl32.Translate3D(0, 0, 5)

	emitter, err := influences.NewMeshSurface(plane, transform, 10)
	require.NoError(t, err)
	emitter.WithNormalVelocity(2)
	assert.InDelta(t, 4.0, emitter.Area(), 1e-5)

	w := newWorld(t)
	report, err := w.step(t, 0.5, func(pt *particles.ParticleType) {
		pt.AddEmitter(emitter)
	})
	require.NoError(t, err)
	assert.Equal(t, 20, report.Emitted())

	b := w.block(t)
	for i, p := range b.Positions() {
		assert.InDelta(t, 5.0, p[2], 1e-5)
		assert.LessOrEqual(t, math.Abs(float64(p[0])), 1.0)
		assert.LessOrEqual(t, math.Abs(float64(p[1])), 1.0)
		assert.Equal(t, mgl32.Vec3{0, 0, 2}, b.Velocities()[i])
		assert.Equal(t, float32(0), b.Ages()[i])
	}
}

func TestMeshSurfaceRotatedNormal(t *testing.T) {
	emitter, err := influences.NewMeshSurface(geometry.NewPlane(1, 1), mgl32.HomogRotate3DX(math.Pi/2), 4)
	require.NoError(t, err)
	emitter.WithNormalVelocity(1)

	w := newWorld(t)
	_, err = w.step(t, 1, func(pt *particles.ParticleType) { pt.AddEmitter(emitter) })
	require.NoError(t, err)

	b := w.block(t)
	require.NotZero(t, b.ActiveAmount())
	for _, v := range b.Velocities() {
		assert.InDelta(t, 0, v[0], 1e-5, "velocity %v", v)
		assert.InDelta(t, -1, v[1], 1e-5, "velocity %v", v)
		assert.InDelta(t, 0, v[2], 1e-5, "velocity %v", v)
	}
	for _, p := range b.Positions() {
		assert.InDelta(t, 0, p[1], 1e-5)
	}
}

func TestMeshSurfaceInvalid(t *testing.T) {
	_, err := influences.NewMeshSurface(nil, mgl32.Ident4(), 1)
	assert.ErrorIs(t, err, particles.ErrInvalidDescription)
	_, err = influences.NewMeshSurface(geometry.NewPlane(1, 1), mgl32.Ident4(), -1)
	assert.ErrorIs(t, err, particles.ErrInvalidDescription)
}

func TestPointEmitterRate(t *testing.T) {
	w := newWorld(t)
	total := 0
	for i := 0; i < 200; i++ {
		report, err := w.step(t, 0.1, func(pt *particles.ParticleType) {
			pt.AddEmitter(&influences.Point{Rate: 25, Burst: 1})
		})
		require.NoError(t, err)
		total += report.Emitted()
	}
	// 200 steps of 1 + 2.5 on average.
	assert.InDelta(t, 700, total, 60)
	assert.Equal(t, total, w.state.CountActive())
}
