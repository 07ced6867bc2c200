package influences

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/bparticles/particles"
)

// Kill removes the particle.
type Kill struct{}

// NewKill creates a kill action.
func NewKill() *Kill { return &Kill{} }

// Execute kills the particle.
func (Kill) Execute(p *particles.ActionParticle) error {
	p.Kill()
	return nil
}

// MoveTarget selects the attribute a Move offsets.
type MoveTarget uint8

const (
	MoveVelocity MoveTarget = iota
	MovePosition
)

// Move adds a fixed offset to the velocity or position of the particle.
type Move struct {
	Offset mgl32.Vec3
	Target MoveTarget
}

// NewMove creates a move action offsetting velocity.
func NewMove(offset mgl32.Vec3) *Move {
	return &Move{Offset: offset, Target: MoveVelocity}
}

// Execute applies the offset.
func (a *Move) Execute(p *particles.ActionParticle) error {
	switch a.Target {
	case MovePosition:
		pos := p.Position()
		*pos = pos.Add(a.Offset)
	default:
		vel := p.Velocity()
		*vel = vel.Add(a.Offset)
	}
	return nil
}

// RecordAge stores the age a particle had at the trigger instant in a float
// attribute.
type RecordAge struct {
	Attribute string
}

// Attributes declares the attribute written by the action.
func (a *RecordAge) Attributes() []particles.Attribute {
	return []particles.Attribute{particles.Float(a.Attribute)}
}

// Execute writes age - duration + trigger time.
func (a *RecordAge) Execute(p *particles.ActionParticle) error {
	dst, err := p.Float(a.Attribute)
	if err != nil {
		return err
	}
	*dst = p.Age() - p.Duration() + p.TriggerTime()
	return nil
}

// Sequence runs actions in order and stops once one has killed the particle.
type Sequence []particles.Action

// Attributes collects the attributes of the wrapped actions.
func (s Sequence) Attributes() []particles.Attribute {
	var out []particles.Attribute
	for _, a := range s {
		if r, ok := a.(particles.AttributeRequirer); ok {
			out = append(out, r.Attributes()...)
		}
	}
	return out
}

// Execute runs the actions.
func (s Sequence) Execute(p *particles.ActionParticle) error {
	for _, a := range s {
		if p.Killed() {
			return nil
		}
		if err := a.Execute(p); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ particles.Action            = Kill{}
	_ particles.Action            = (*Move)(nil)
	_ particles.Action            = (*RecordAge)(nil)
	_ particles.Action            = Sequence(nil)
	_ particles.AttributeRequirer = (*RecordAge)(nil)
	_ particles.AttributeRequirer = Sequence(nil)
)
