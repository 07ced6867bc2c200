package influences

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/bparticles/particles"
)

// AgeReached fires when a particle's age crosses Threshold during the step.
// A particle already at or past the threshold never fires.
type AgeReached struct {
	Threshold float32
}

// NewAgeReached creates an age event.
func NewAgeReached(threshold float32) *AgeReached {
	return &AgeReached{Threshold: threshold}
}

// FindTriggers reports threshold-age for every particle with
// age < threshold <= age+duration.
func (e *AgeReached) FindTriggers(in particles.EventInput, triggers []float32) error {
	for i, age := range in.Particles.Ages() {
		if age < e.Threshold && e.Threshold <= age+in.Duration {
			triggers[i] = mgl32.Clamp(e.Threshold-age, 0, in.Duration)
		}
	}
	return nil
}

// RayCaster is a prebuilt nearest-hit index over a surface in its local space.
// It must be safe for concurrent reads.
type RayCaster interface {
	// RayCast returns the distance along the normalized direction to the
	// nearest hit within maxDistance.
	RayCast(origin, direction mgl32.Vec3, maxDistance float32) (distance float32, hit bool, err error)
}

// MeshCollision fires at the earliest time the straight path of a particle
// over the step crosses a surface.
type MeshCollision struct {
	index   RayCaster
	inverse mgl32.Mat4
}

// NewMeshCollision creates a collision event for a surface indexed by index
// and placed in the world by transform. The transform must be invertible.
func NewMeshCollision(index RayCaster, transform mgl32.Mat4) (*MeshCollision, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: collision event without index", particles.ErrInvalidDescription)
	}
	if transform.Det() == 0 {
		return nil, fmt.Errorf("%w: collision transform is singular", particles.ErrInvalidDescription)
	}
	return &MeshCollision{
		index:   index,
		inverse: transform.Inv(),
	}, nil
}

// FindTriggers casts each particle's step segment into the surface's local
// space. The hit fraction along the segment maps linearly onto the step.
func (e *MeshCollision) FindTriggers(in particles.EventInput, triggers []float32) error {
	start := in.Particles.Positions()
	for i := range start {
		from := mgl32.TransformCoordinate(start[i], e.inverse)
		to := mgl32.TransformCoordinate(in.Positions[i], e.inverse)
		dir := to.Sub(from)
		length := dir.Len()
		if length == 0 {
			continue
		}

		dist, hit, err := e.index.RayCast(from, dir.Mul(1/length), length)
		if err != nil {
			return fmt.Errorf("%w: ray cast for particle %d: %w", particles.ErrProviderFailure, i, err)
		}
		if !hit || dist > length {
			continue
		}
		triggers[i] = mgl32.Clamp(in.Duration*dist/length, 0, in.Duration)
	}
	return nil
}

var (
	_ particles.Event = (*AgeReached)(nil)
	_ particles.Event = (*MeshCollision)(nil)
)
