// Package influences provides the concrete emitters, forces, events and
// actions used to describe particle types.
package influences

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/bparticles/particles"
)

// Directional is a constant acceleration, e.g. gravity.
type Directional struct {
	Acceleration mgl32.Vec3
}

// NewDirectional creates a constant force.
func NewDirectional(acceleration mgl32.Vec3) *Directional {
	return &Directional{Acceleration: acceleration}
}

// AddAcceleration adds the constant to every particle.
func (f *Directional) AddAcceleration(_ particles.ForceInput, dst []mgl32.Vec3) error {
	for i := range dst {
		dst[i] = dst[i].Add(f.Acceleration)
	}
	return nil
}

// Drag decelerates particles proportionally to their velocity.
type Drag struct {
	Coefficient float32 // per second
}

// AddAcceleration adds -Coefficient*velocity.
func (f *Drag) AddAcceleration(in particles.ForceInput, dst []mgl32.Vec3) error {
	vel := in.Particles.Velocities()
	for i := range dst {
		dst[i] = dst[i].Sub(vel[i].Mul(f.Coefficient))
	}
	return nil
}

var (
	_ particles.Force = (*Directional)(nil)
	_ particles.Force = (*Drag)(nil)
)
