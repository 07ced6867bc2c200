package influences

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/bparticles/particles"
)

// Surface is a triangulated surface in its local space.
type Surface interface {
	TriangleCount() int
	Triangle(i int) [3]mgl32.Vec3
}

// MeshSurface emits particles uniformly over the area of a placed surface.
// Each step it creates on average rate*area*duration particles, moving along
// the surface normal at NormalVelocity.
type MeshSurface struct {
	rate           float32
	normalVelocity float32

	triangles  [][3]mgl32.Vec3 // world space
	normals    []mgl32.Vec3
	cumulative []float32 // running area
	area       float32
}

// NewMeshSurface places surface with transform and precomputes its area
// distribution. rate is particles per unit area per second.
func NewMeshSurface(surface Surface, transform mgl32.Mat4, rate float32) (*MeshSurface, error) {
	if surface == nil {
		return nil, fmt.Errorf("%w: surface emitter without surface", particles.ErrInvalidDescription)
	}
	if rate < 0 || math.IsNaN(float64(rate)) || math.IsInf(float64(rate), 0) {
		return nil, fmt.Errorf("%w: surface emitter rate %v", particles.ErrInvalidDescription, rate)
	}

	n := surface.TriangleCount()
	e := &MeshSurface{
		rate:       rate,
		triangles:  make([][3]mgl32.Vec3, n),
		normals:    make([]mgl32.Vec3, n),
		cumulative: make([]float32, n),
	}
	for i := 0; i < n; i++ {
		tri := surface.Triangle(i)
		for k := range tri {
			tri[k] = mgl32.TransformCoordinate(tri[k], transform)
		}
		cross := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))
		area := cross.Len() / 2
		if area > 0 {
			e.normals[i] = cross.Mul(1 / cross.Len())
		}
		e.triangles[i] = tri
		e.area += area
		e.cumulative[i] = e.area
	}
	return e, nil
}

// WithNormalVelocity sets the initial speed along the surface normal.
func (e *MeshSurface) WithNormalVelocity(v float32) *MeshSurface {
	e.normalVelocity = v
	return e
}

// Area returns the world-space area of the surface.
func (e *MeshSurface) Area() float32 { return e.area }

// Emit spawns this step's particles on the surface.
func (e *MeshSurface) Emit(ctx *particles.EmitContext) error {
	rng := ctx.Rand()
	n := stochasticRound(e.rate*e.area*ctx.Duration(), rng)
	if n == 0 {
		return nil
	}

	positions := make([]mgl32.Vec3, n)
	velocities := make([]mgl32.Vec3, n)
	for i := range positions {
		tri := e.pickTriangle(rng.Float32() * e.area)
		positions[i] = sampleTriangle(e.triangles[tri], rng)
		velocities[i] = e.normals[tri].Mul(e.normalVelocity)
	}

	spawned, err := ctx.Spawn(n)
	if err != nil {
		return err
	}
	if err := spawned.SetFloat3(particles.AttrPosition, positions); err != nil {
		return err
	}
	return spawned.SetFloat3(particles.AttrVelocity, velocities)
}

// pickTriangle maps an area offset onto the triangle that covers it.
func (e *MeshSurface) pickTriangle(r float32) int {
	i := sort.Search(len(e.cumulative), func(i int) bool { return e.cumulative[i] > r })
	if i == len(e.cumulative) {
		i--
	}
	return i
}

// sampleTriangle returns a uniformly distributed point inside tri.
func sampleTriangle(tri [3]mgl32.Vec3, rng *rand.Rand) mgl32.Vec3 {
	u, v := rng.Float32(), rng.Float32()
	if u+v > 1 {
		u, v = 1-u, 1-v
	}
	return tri[0].
		Add(tri[1].Sub(tri[0]).Mul(u)).
		Add(tri[2].Sub(tri[0]).Mul(v))
}

// Point emits particles from a single location with a fixed velocity: Burst
// particles every step plus on average Rate per second.
type Point struct {
	Position mgl32.Vec3
	Velocity mgl32.Vec3
	Rate     float32
	Burst    int
}

// Emit spawns this step's particles at the point.
func (e *Point) Emit(ctx *particles.EmitContext) error {
	n := e.Burst + stochasticRound(e.Rate*ctx.Duration(), ctx.Rand())
	if n <= 0 {
		return nil
	}

	positions := make([]mgl32.Vec3, n)
	velocities := make([]mgl32.Vec3, n)
	for i := range positions {
		positions[i] = e.Position
		velocities[i] = e.Velocity
	}

	spawned, err := ctx.Spawn(n)
	if err != nil {
		return err
	}
	if err := spawned.SetFloat3(particles.AttrPosition, positions); err != nil {
		return err
	}
	return spawned.SetFloat3(particles.AttrVelocity, velocities)
}

// stochasticRound rounds x down or up with probability equal to its fraction,
// so the expected result is x.
func stochasticRound(x float32, rng *rand.Rand) int {
	if x <= 0 || math.IsNaN(float64(x)) {
		return 0
	}
	whole := float32(math.Floor(float64(x)))
	n := int(whole)
	if rng.Float32() < x-whole {
		n++
	}
	return n
}

var (
	_ particles.Emitter = (*MeshSurface)(nil)
	_ particles.Emitter = (*Point)(nil)
)
