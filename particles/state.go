// Package particles implements block-based particle storage and the step
// executor that advances it under emitters, forces, events and actions.
package particles

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultBlockCapacity is the slot count of a block when none is configured.
const DefaultBlockCapacity = 1000

// StateOptions configures the containers a State creates.
type StateOptions struct {
	BlockCapacity int // slots per block
	MaxBlocks     int // per container, 0 = unlimited
}

// State is the persistent simulation state: one container per particle type.
type State struct {
	opts       StateOptions
	containers map[uint32]*Container
}

// NewState creates an empty state.
func NewState(opts StateOptions) *State {
	if opts.BlockCapacity < 1 {
		opts.BlockCapacity = DefaultBlockCapacity
	}
	return &State{
		opts:       opts,
		containers: make(map[uint32]*Container),
	}
}

// Release deactivates all particles and drops every container.
func (s *State) Release() {
	for _, c := range s.containers {
		c.reset()
	}
	clear(s.containers)
}

// Container returns the container of a type, if it exists.
func (s *State) Container(typeID uint32) (*Container, bool) {
	c, ok := s.containers[typeID]
	return c, ok
}

// TypeIDs returns the ids of all containers in ascending order.
func (s *State) TypeIDs() []uint32 {
	ids := make([]uint32, 0, len(s.containers))
	for id := range s.containers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CountActive returns the number of active particles across all types.
func (s *State) CountActive() int {
	n := 0
	for _, c := range s.containers {
		n += c.CountActive()
	}
	return n
}

// Positions appends the position of every active particle to dst in type id,
// block, slot order. The order is stable only until the next step.
func (s *State) Positions(dst []mgl32.Vec3) []mgl32.Vec3 {
	for _, id := range s.TypeIDs() {
		for _, b := range s.containers[id].blocks {
			dst = append(dst, b.Positions()...)
		}
	}
	return dst
}

// ensureContainer returns the container for typeID, creating it with a schema
// covering required when absent. An existing container must already hold every
// required attribute.
func (s *State) ensureContainer(typeID uint32, required []Attribute) (*Container, bool, error) {
	if c, ok := s.containers[typeID]; ok {
		for _, a := range required {
			if !c.schema.Has(a) {
				return nil, false, fmt.Errorf("%w: type %d has no %s attribute %q (schema %s)",
					ErrInvalidDescription, typeID, a.Kind, a.Name, c.schema)
			}
		}
		return c, false, nil
	}

	schema, err := NewSchema(required...)
	if err != nil {
		return nil, false, fmt.Errorf("type %d: %w", typeID, err)
	}
	c := NewContainer(schema, s.opts.BlockCapacity, s.opts.MaxBlocks)
	s.containers[typeID] = c
	return c, true, nil
}
