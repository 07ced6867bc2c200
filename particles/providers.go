package particles

import (
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// NoTrigger marks a particle for which an event did not fire. Any negative
// trigger time means the same.
const NoTrigger float32 = -1

// Emitter creates new particles once per step.
type Emitter interface {
	Emit(ctx *EmitContext) error
}

// Force adds its acceleration for every particle of in to dst. Forces must
// not mutate particles or shared state.
type Force interface {
	AddAcceleration(in ForceInput, dst []mgl32.Vec3) error
}

// Event reports, per particle, the step-local time in [0, duration] at which
// its condition becomes true. Particles for which it does not fire keep
// NoTrigger in triggers.
type Event interface {
	FindTriggers(in EventInput, triggers []float32) error
}

// Action responds to a fired event for one particle.
type Action interface {
	Execute(p *ActionParticle) error
}

// AttributeRequirer is implemented by providers that read or write attributes
// beyond Position, Velocity and Age.
type AttributeRequirer interface {
	Attributes() []Attribute
}

// ParticleSlice is a read-only view of the first Len() particles of a block.
type ParticleSlice struct {
	block *Block
	n     int
}

// Len returns the number of particles in the view.
func (s ParticleSlice) Len() int { return s.n }

// Positions returns the particle positions.
func (s ParticleSlice) Positions() []mgl32.Vec3 { return s.block.float3s[positionColumn][:s.n] }

// Velocities returns the particle velocities.
func (s ParticleSlice) Velocities() []mgl32.Vec3 { return s.block.float3s[velocityColumn][:s.n] }

// Ages returns the particle ages.
func (s ParticleSlice) Ages() []float32 { return s.block.floats[ageColumn][:s.n] }

// Float returns a named scalar column.
func (s ParticleSlice) Float(name string) ([]float32, error) {
	col, err := s.block.schema.column(name, AttributeFloat)
	if err != nil {
		return nil, err
	}
	return s.block.floats[col][:s.n], nil
}

// Float3 returns a named vector column.
func (s ParticleSlice) Float3(name string) ([]mgl32.Vec3, error) {
	col, err := s.block.schema.column(name, AttributeFloat3)
	if err != nil {
		return nil, err
	}
	return s.block.float3s[col][:s.n], nil
}

// ForceInput is what a force sees: particle state at the step start.
type ForceInput struct {
	Particles    ParticleSlice
	TimeIntoStep float32
}

// EventInput carries the step-start state of a batch of particles together
// with their tentative step-end position and velocity.
type EventInput struct {
	Particles  ParticleSlice
	Positions  []mgl32.Vec3 // tentative, end of step
	Velocities []mgl32.Vec3 // tentative, end of step
	Duration   float32
}

// ActionParticle is the particle an action runs on. Position and velocity
// are already committed and age is already advanced when the action runs.
type ActionParticle struct {
	block       *Block
	index       int
	triggerTime float32
	duration    float32
	killed      bool
}

// Block returns the block holding the particle.
func (p *ActionParticle) Block() *Block { return p.block }

// Index returns the slot of the particle inside its block.
func (p *ActionParticle) Index() int { return p.index }

// TriggerTime returns the step-local time at which the event fired.
func (p *ActionParticle) TriggerTime() float32 { return p.triggerTime }

// Duration returns the step duration.
func (p *ActionParticle) Duration() float32 { return p.duration }

// Killed reports whether the particle has been removed.
func (p *ActionParticle) Killed() bool { return p.killed }

// Position returns a pointer to the particle position.
func (p *ActionParticle) Position() *mgl32.Vec3 {
	return &p.block.float3s[positionColumn][p.index]
}

// Velocity returns a pointer to the particle velocity.
func (p *ActionParticle) Velocity() *mgl32.Vec3 {
	return &p.block.float3s[velocityColumn][p.index]
}

// Age returns the particle age after this step.
func (p *ActionParticle) Age() float32 { return p.block.floats[ageColumn][p.index] }

// Float3 returns a pointer to a named vector attribute of the particle.
func (p *ActionParticle) Float3(name string) (*mgl32.Vec3, error) {
	col, err := p.block.schema.column(name, AttributeFloat3)
	if err != nil {
		return nil, err
	}
	return &p.block.float3s[col][p.index], nil
}

// Float returns a pointer to a named scalar attribute of the particle.
func (p *ActionParticle) Float(name string) (*float32, error) {
	col, err := p.block.schema.column(name, AttributeFloat)
	if err != nil {
		return nil, err
	}
	return &p.block.floats[col][p.index], nil
}

// Kill removes the particle. Further calls are no-ops.
func (p *ActionParticle) Kill() {
	if p.killed {
		return
	}
	p.block.Kill(p.index)
	p.killed = true
}

// EmitContext is handed to emitters. Spawned particles start zeroed.
type EmitContext struct {
	container *Container
	duration  float32
	rng       *rand.Rand
	spawned   int
}

// Duration returns the step duration.
func (c *EmitContext) Duration() float32 { return c.duration }

// Rand returns the random source of the step.
func (c *EmitContext) Rand() *rand.Rand { return c.rng }

// Spawn acquires n slots and returns a writer for their initial attributes.
func (c *EmitContext) Spawn(n int) (*NewParticles, error) {
	ranges, err := c.container.AcquireSlots(n)
	if err != nil {
		return nil, err
	}
	c.spawned += max(n, 0)
	return &NewParticles{ranges: ranges, n: max(n, 0)}, nil
}

// NewParticles writes the initial attributes of freshly spawned particles.
type NewParticles struct {
	ranges []SlotRange
	n      int
}

// Len returns the number of spawned particles.
func (p *NewParticles) Len() int { return p.n }

// Ranges returns the slots the particles occupy.
func (p *NewParticles) Ranges() []SlotRange { return p.ranges }

// SetFloat3 writes one value per spawned particle.
func (p *NewParticles) SetFloat3(name string, values []mgl32.Vec3) error {
	if len(values) != p.n {
		return fmt.Errorf("%w: %d values for %d particles", ErrProviderFailure, len(values), p.n)
	}
	offset := 0
	for _, r := range p.ranges {
		col, err := r.Block.schema.column(name, AttributeFloat3)
		if err != nil {
			return err
		}
		copy(r.Block.float3s[col][r.Start:r.Start+r.Len], values[offset:offset+r.Len])
		offset += r.Len
	}
	return nil
}

// SetFloat writes one value per spawned particle.
func (p *NewParticles) SetFloat(name string, values []float32) error {
	if len(values) != p.n {
		return fmt.Errorf("%w: %d values for %d particles", ErrProviderFailure, len(values), p.n)
	}
	offset := 0
	for _, r := range p.ranges {
		col, err := r.Block.schema.column(name, AttributeFloat)
		if err != nil {
			return err
		}
		copy(r.Block.floats[col][r.Start:r.Start+r.Len], values[offset:offset+r.Len])
		offset += r.Len
	}
	return nil
}
