// Package geometry provides triangle meshes and ray-cast acceleration
// structures for placing emitters and colliders.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrMalformedMesh is returned for meshes with out-of-range indices or
// non-finite vertices.
var ErrMalformedMesh = errors.New("geometry: malformed mesh")

// Mesh is an indexed triangle mesh in local space.
type Mesh struct {
	Vertices  []mgl32.Vec3
	Triangles [][3]uint32
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Triangles) }

// Triangle returns the corners of triangle i.
func (m *Mesh) Triangle(i int) [3]mgl32.Vec3 {
	t := m.Triangles[i]
	return [3]mgl32.Vec3{m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]}
}

// Validate checks indices and vertex values.
func (m *Mesh) Validate() error {
	for i, v := range m.Vertices {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return fmt.Errorf("%w: vertex %d is not finite", ErrMalformedMesh, i)
			}
		}
	}
	n := uint32(len(m.Vertices))
	for i, t := range m.Triangles {
		if t[0] >= n || t[1] >= n || t[2] >= n {
			return fmt.Errorf("%w: triangle %d references vertex beyond %d", ErrMalformedMesh, i, n)
		}
	}
	return nil
}

// Area returns the total surface area.
func (m *Mesh) Area() float32 {
	var area float32
	for i := range m.Triangles {
		t := m.Triangle(i)
		area += t[1].Sub(t[0]).Cross(t[2].Sub(t[0])).Len() / 2
	}
	return area
}

// NewPlane creates a square of side size in the XY plane, centered on the
// origin, facing +Z, split into subdivisions x subdivisions quads.
func NewPlane(size float32, subdivisions int) *Mesh {
	if subdivisions < 1 {
		subdivisions = 1
	}
	row := subdivisions + 1
	m := &Mesh{
		Vertices:  make([]mgl32.Vec3, 0, row*row),
		Triangles: make([][3]uint32, 0, 2*subdivisions*subdivisions),
	}
	step := size / float32(subdivisions)
	half := size / 2
	for y := 0; y < row; y++ {
		for x := 0; x < row; x++ {
			m.Vertices = append(m.Vertices, mgl32.Vec3{float32(x)*step - half, float32(y)*step - half, 0})
		}
	}
	for y := 0; y < subdivisions; y++ {
		for x := 0; x < subdivisions; x++ {
			i := uint32(y*row + x)
			r := uint32(row)
			m.Triangles = append(m.Triangles,
				[3]uint32{i, i + 1, i + r + 1},
				[3]uint32{i, i + r + 1, i + r},
			)
		}
	}
	return m
}

// NewBox creates an axis-aligned box with the given edge lengths, centered on
// the origin, with outward-facing triangles.
func NewBox(size mgl32.Vec3) *Mesh {
	h := size.Mul(0.5)
	m := &Mesh{Vertices: make([]mgl32.Vec3, 8)}
	for i := range m.Vertices {
		v := mgl32.Vec3{-h[0], -h[1], -h[2]}
		if i&1 != 0 {
			v[0] = h[0]
		}
		if i&2 != 0 {
			v[1] = h[1]
		}
		if i&4 != 0 {
			v[2] = h[2]
		}
		m.Vertices[i] = v
	}
	// Corner index bits: 1 = +x, 2 = +y, 4 = +z.
	m.Triangles = [][3]uint32{
		{0, 2, 3}, {0, 3, 1}, // -z
		{4, 5, 7}, {4, 7, 6}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{2, 6, 7}, {2, 7, 3}, // +y
		{0, 4, 6}, {0, 6, 2}, // -x
		{1, 3, 7}, {1, 7, 5}, // +x
	}
	return m
}
