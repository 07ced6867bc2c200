// Package scene is a small headless host for the particle engine: mesh
// objects stored in an ECS world that emit particles or collide with them,
// and the step description built from them each frame.
package scene

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/bparticles/config"
	"github.com/pthm-cable/bparticles/geometry"
	"github.com/pthm-cable/bparticles/influences"
	"github.com/pthm-cable/bparticles/particles"
)

// Scene holds emitter and collider objects.
type Scene struct {
	world *ecs.World

	emitterMapper  *ecs.Map4[Transform, MeshRef, Emission, Spin]
	colliderMapper *ecs.Map4[Transform, MeshRef, Collider, Spin]

	emitterFilter  *ecs.Filter3[Transform, MeshRef, Emission]
	colliderFilter *ecs.Filter3[Transform, MeshRef, Collider]
	spinFilter     *ecs.Filter2[Transform, Spin]

	transformMap *ecs.Map1[Transform]
	meshMap      *ecs.Map1[MeshRef]

	names map[ecs.Entity]string
	time  float64
}

// New creates an empty scene.
func New() *Scene {
	world := ecs.NewWorld()
	return &Scene{
		world:          world,
		emitterMapper:  ecs.NewMap4[Transform, MeshRef, Emission, Spin](world),
		colliderMapper: ecs.NewMap4[Transform, MeshRef, Collider, Spin](world),
		emitterFilter:  ecs.NewFilter3[Transform, MeshRef, Emission](world),
		colliderFilter: ecs.NewFilter3[Transform, MeshRef, Collider](world),
		spinFilter:     ecs.NewFilter2[Transform, Spin](world),
		transformMap:   ecs.NewMap1[Transform](world),
		meshMap:        ecs.NewMap1[MeshRef](world),
		names:          make(map[ecs.Entity]string),
	}
}

// FromConfig builds the scene described by cfg.Scene. Emitters use the
// cfg.Emitter settings and colliders act on the emitted type.
func FromConfig(cfg *config.Config) (*Scene, error) {
	s := New()
	emission := Emission{
		TypeID:         cfg.Emitter.TypeID,
		Rate:           float32(cfg.Emitter.Rate),
		NormalVelocity: float32(cfg.Emitter.NormalVelocity),
	}
	for _, o := range cfg.Scene.Emitters {
		mesh, err := meshFor(o)
		if err != nil {
			return nil, fmt.Errorf("emitter %q: %w", o.Name, err)
		}
		s.AddEmitter(o.Name, mesh, transformFor(o), emission, spinFor(o))
	}
	for _, o := range cfg.Scene.Colliders {
		mesh, err := meshFor(o)
		if err != nil {
			return nil, fmt.Errorf("collider %q: %w", o.Name, err)
		}
		s.AddCollider(o.Name, mesh, transformFor(o), cfg.Emitter.TypeID, spinFor(o))
	}
	return s, nil
}

func meshFor(o config.ObjectConfig) (*geometry.Mesh, error) {
	var mesh *geometry.Mesh
	switch o.Shape {
	case "plane":
		mesh = geometry.NewPlane(float32(o.Size[0]), o.Subdivisions)
	case "box":
		mesh = geometry.NewBox(config.Vec3(o.Size))
	default:
		return nil, fmt.Errorf("unknown shape %q", o.Shape)
	}
	return mesh, mesh.Validate()
}

func transformFor(o config.ObjectConfig) Transform {
	rot := config.Vec3(o.Rotation)
	return Transform{
		Position: config.Vec3(o.Position),
		Rotation: mgl32.Vec3{mgl32.DegToRad(rot[0]), mgl32.DegToRad(rot[1]), mgl32.DegToRad(rot[2])},
	}
}

func spinFor(o config.ObjectConfig) Spin {
	r := config.Vec3(o.Spin)
	return Spin{Rate: mgl32.Vec3{mgl32.DegToRad(r[0]), mgl32.DegToRad(r[1]), mgl32.DegToRad(r[2])}}
}

// AddEmitter adds an object whose surface emits particles.
func (s *Scene) AddEmitter(name string, mesh *geometry.Mesh, t Transform, e Emission, spin Spin) ecs.Entity {
	entity := s.emitterMapper.NewEntity(&t, &MeshRef{Mesh: mesh}, &e, &spin)
	s.names[entity] = name
	return entity
}

// AddCollider adds an object that kills particles of typeID on contact.
func (s *Scene) AddCollider(name string, mesh *geometry.Mesh, t Transform, typeID uint32, spin Spin) ecs.Entity {
	entity := s.colliderMapper.NewEntity(&t, &MeshRef{Mesh: mesh}, &Collider{TypeID: typeID}, &spin)
	s.names[entity] = name
	return entity
}

// Transform returns the placement of an object for modification.
func (s *Scene) Transform(e ecs.Entity) *Transform {
	return s.transformMap.Get(e)
}

// SetMesh replaces the geometry of an object. Collision indices are rebuilt
// on the next BuildStep.
func (s *Scene) SetMesh(e ecs.Entity, mesh *geometry.Mesh) {
	s.meshMap.Get(e).Mesh = mesh
}

// Name returns the name an object was added with.
func (s *Scene) Name(e ecs.Entity) string { return s.names[e] }

// Time returns the accumulated animation time in seconds.
func (s *Scene) Time() float64 { return s.time }

// Advance animates spinning objects by dt seconds.
func (s *Scene) Advance(dt float32) {
	query := s.spinFilter.Query()
	for query.Next() {
		t, spin := query.Get()
		t.Rotation = t.Rotation.Add(spin.Rate.Mul(dt))
	}
	s.time += float64(dt)
}

// BuildStep assembles the step description for the current scene state:
// one mesh-surface emitter per emitter object, then for every emitted type a
// collision event per collider paired with a kill, gravity and drag forces
// and an age event paired with a move. Collision events come before the age
// event, so a collision wins a tie.
func (s *Scene) BuildStep(cfg *config.Config) (*particles.StepDescription, error) {
	desc := particles.NewStepDescription(cfg.Derived.StepDuration32)

	query := s.emitterFilter.Query()
	for query.Next() {
		t, ref, em := query.Get()
		emitter, err := influences.NewMeshSurface(ref.Mesh, t.Matrix(), em.Rate)
		if err != nil {
			name := s.names[query.Entity()]
			query.Close()
			return nil, fmt.Errorf("emitter %q: %w", name, err)
		}
		desc.Type(em.TypeID).AddEmitter(emitter.WithNormalVelocity(em.NormalVelocity))
	}
	typeIDs := desc.TypeIDs()

	colliders := s.colliderFilter.Query()
	for colliders.Next() {
		t, ref, col := colliders.Get()
		name := s.names[colliders.Entity()]
		if !slices.Contains(typeIDs, col.TypeID) {
			continue
		}
		if col.index == nil || col.indexed != ref.Mesh {
			index, err := geometry.NewBVH(ref.Mesh, geometry.DefaultLeafSize)
			if err != nil {
				colliders.Close()
				return nil, fmt.Errorf("collider %q: %w", name, err)
			}
			col.index, col.indexed = index, ref.Mesh
			slog.Debug("collision index built", "collider", name, "triangles", index.TriangleCount())
		}
		event, err := influences.NewMeshCollision(col.index, t.Matrix())
		if err != nil {
			colliders.Close()
			return nil, fmt.Errorf("collider %q: %w", name, err)
		}
		desc.Type(col.TypeID).AddEvent(event, influences.NewKill())
	}

	for _, id := range typeIDs {
		pt := desc.Type(id)
		pt.AddForce(influences.NewDirectional(cfg.Derived.Gravity))
		if cfg.Forces.Drag > 0 {
			pt.AddForce(&influences.Drag{Coefficient: float32(cfg.Forces.Drag)})
		}
		if cfg.Events.AgeThreshold > 0 {
			move := influences.NewMove(cfg.Derived.MoveOffset)
			if cfg.Actions.MoveTarget == "position" {
				move.Target = influences.MovePosition
			}
			pt.AddEvent(influences.NewAgeReached(float32(cfg.Events.AgeThreshold)), move)
		}
	}
	return desc, nil
}
