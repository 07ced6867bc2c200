package particles

import (
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"slices"
)

// ParticleType bundles the influences of one particle type for one step.
// Events[i] is paired with Actions[i].
type ParticleType struct {
	Emitters []Emitter
	Forces   []Force
	Events   []Event
	Actions  []Action

	// Attributes lists extra attributes the type carries even when no
	// provider asks for them.
	Attributes []Attribute
}

// AddEmitter appends an emitter.
func (t *ParticleType) AddEmitter(e Emitter) *ParticleType {
	t.Emitters = append(t.Emitters, e)
	return t
}

// AddForce appends a force.
func (t *ParticleType) AddForce(f Force) *ParticleType {
	t.Forces = append(t.Forces, f)
	return t
}

// AddEvent appends an event and the action that answers it.
func (t *ParticleType) AddEvent(e Event, a Action) *ParticleType {
	t.Events = append(t.Events, e)
	t.Actions = append(t.Actions, a)
	return t
}

func (t *ParticleType) validate() error {
	if len(t.Events) != len(t.Actions) {
		return fmt.Errorf("%w: %d events but %d actions", ErrInvalidDescription, len(t.Events), len(t.Actions))
	}
	for i, e := range t.Emitters {
		if e == nil {
			return fmt.Errorf("%w: emitter %d is nil", ErrInvalidDescription, i)
		}
	}
	for i, f := range t.Forces {
		if f == nil {
			return fmt.Errorf("%w: force %d is nil", ErrInvalidDescription, i)
		}
	}
	for i := range t.Events {
		if t.Events[i] == nil || t.Actions[i] == nil {
			return fmt.Errorf("%w: event/action pair %d has a nil member", ErrInvalidDescription, i)
		}
	}
	return nil
}

// requiredAttributes collects the declared attributes of the type and of every
// provider implementing AttributeRequirer.
func (t *ParticleType) requiredAttributes() []Attribute {
	required := slices.Clone(t.Attributes)
	for _, p := range t.providers() {
		if r, ok := p.(AttributeRequirer); ok {
			required = append(required, r.Attributes()...)
		}
	}
	return required
}

func (t *ParticleType) providers() []any {
	out := make([]any, 0, len(t.Emitters)+len(t.Forces)+len(t.Events)+len(t.Actions))
	for _, e := range t.Emitters {
		out = append(out, e)
	}
	for _, f := range t.Forces {
		out = append(out, f)
	}
	for _, e := range t.Events {
		out = append(out, e)
	}
	for _, a := range t.Actions {
		out = append(out, a)
	}
	return out
}

// StepDescription is everything one step needs. It is built fresh per step
// and owns its providers until Close.
type StepDescription struct {
	Duration float32
	Types    map[uint32]*ParticleType
}

// NewStepDescription creates an empty description.
func NewStepDescription(duration float32) *StepDescription {
	return &StepDescription{
		Duration: duration,
		Types:    make(map[uint32]*ParticleType),
	}
}

// Type returns the description of typeID, adding an empty one if needed.
func (d *StepDescription) Type(typeID uint32) *ParticleType {
	if d.Types == nil {
		d.Types = make(map[uint32]*ParticleType)
	}
	t, ok := d.Types[typeID]
	if !ok {
		t = &ParticleType{}
		d.Types[typeID] = t
	}
	return t
}

// TypeIDs returns the described type ids in ascending order.
func (d *StepDescription) TypeIDs() []uint32 {
	ids := make([]uint32, 0, len(d.Types))
	for id := range d.Types {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Validate checks the description on its own, without a state.
func (d *StepDescription) Validate() error {
	dur := float64(d.Duration)
	if math.IsNaN(dur) || math.IsInf(dur, 0) || dur < 0 {
		return fmt.Errorf("%w: step duration %v", ErrInvalidDescription, d.Duration)
	}
	for _, id := range d.TypeIDs() {
		t := d.Types[id]
		if t == nil {
			return fmt.Errorf("%w: type %d has no description", ErrInvalidDescription, id)
		}
		if err := t.validate(); err != nil {
			return fmt.Errorf("type %d: %w", id, err)
		}
	}
	return nil
}

// Close releases, in one pass, every provider that implements io.Closer.
// A provider shared by several slots is closed once.
func (d *StepDescription) Close() error {
	var errs []error
	seen := make(map[io.Closer]bool)
	for _, id := range d.TypeIDs() {
		t := d.Types[id]
		if t == nil {
			continue
		}
		for _, p := range t.providers() {
			c, ok := p.(io.Closer)
			if !ok {
				continue
			}
			if reflect.TypeOf(c).Comparable() {
				if seen[c] {
					continue
				}
				seen[c] = true
			}
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
