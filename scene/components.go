package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/bparticles/geometry"
)

// Transform places an object in the world.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3 // Euler XYZ in radians
	Scale    mgl32.Vec3
}

// Matrix returns translation * rotation(Z, Y, X) * scale. A zero scale is
// treated as unit scale.
func (t *Transform) Matrix() mgl32.Mat4 {
	scale := t.Scale
	if scale == (mgl32.Vec3{}) {
		scale = mgl32.Vec3{1, 1, 1}
	}
	return mgl32.Translate3D(t.Position[0], t.Position[1], t.Position[2]).
		Mul4(mgl32.HomogRotate3DZ(t.Rotation[2])).
		Mul4(mgl32.HomogRotate3DY(t.Rotation[1])).
		Mul4(mgl32.HomogRotate3DX(t.Rotation[0])).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
}

// MeshRef points at the local-space geometry of an object. Meshes are shared
// and never mutated; assign a new mesh to change an object's geometry.
type MeshRef struct {
	Mesh *geometry.Mesh
}

// Emission makes an object's surface emit particles.
type Emission struct {
	TypeID         uint32
	Rate           float32 // per unit area per second
	NormalVelocity float32
}

// Collider makes an object's surface kill particles of one type on contact.
type Collider struct {
	TypeID uint32

	index   *geometry.BVH
	indexed *geometry.Mesh
}

// Spin rotates an object at a constant angular rate.
type Spin struct {
	Rate mgl32.Vec3 // radians per second around X, Y, Z
}
