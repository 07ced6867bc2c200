package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidRay is returned for rays with non-finite components or a zero
// direction.
var ErrInvalidRay = errors.New("geometry: invalid ray")

// DefaultLeafSize is the maximum number of triangles in a BVH leaf.
const DefaultLeafSize = 4

// rayEpsilon is the Möller-Trumbore determinant threshold relative to
// |e1|*|e2|*|dir|, below which a ray counts as parallel to the triangle.
// Being relative, it treats tiny triangles like large ones.
const rayEpsilon = 1e-6

// aabb is an axis-aligned bounding box.
type aabb struct {
	min, max mgl32.Vec3
}

func emptyAABB() aabb {
	inf := float32(math.Inf(1))
	return aabb{
		min: mgl32.Vec3{inf, inf, inf},
		max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (b *aabb) grow(p mgl32.Vec3) {
	for k := 0; k < 3; k++ {
		b.min[k] = min(b.min[k], p[k])
		b.max[k] = max(b.max[k], p[k])
	}
}

// longestAxis returns the axis with the largest extent.
func (b aabb) longestAxis() int {
	ext := b.max.Sub(b.min)
	axis := 0
	if ext[1] > ext[axis] {
		axis = 1
	}
	if ext[2] > ext[axis] {
		axis = 2
	}
	return axis
}

// hit reports whether the ray enters the box before far, using the slab test.
func (b aabb) hit(origin, invDir mgl32.Vec3, far float32) bool {
	tmin, tmax := float32(0), far
	for k := 0; k < 3; k++ {
		t0 := (b.min[k] - origin[k]) * invDir[k]
		t1 := (b.max[k] - origin[k]) * invDir[k]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = max(tmin, t0)
		tmax = min(tmax, t1)
		if tmin > tmax {
			return false
		}
	}
	return true
}

// bvhNode is either an inner node (count == 0, children at left and left+1)
// or a leaf covering order[start:start+count].
type bvhNode struct {
	bounds aabb
	left   int32
	start  int32
	count  int32
}

// BVH is a bounding-volume hierarchy over the triangles of a mesh, answering
// nearest-hit ray queries in the mesh's local space. It is immutable after
// construction and safe for concurrent queries.
type BVH struct {
	triangles [][3]mgl32.Vec3
	order     []int32
	nodes     []bvhNode
	leafSize  int
}

// NewBVH builds a hierarchy over mesh. leafSize < 1 uses DefaultLeafSize.
func NewBVH(mesh *Mesh, leafSize int) (*BVH, error) {
	if mesh == nil {
		return nil, fmt.Errorf("%w: nil mesh", ErrMalformedMesh)
	}
	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	if leafSize < 1 {
		leafSize = DefaultLeafSize
	}

	n := mesh.TriangleCount()
	b := &BVH{
		triangles: make([][3]mgl32.Vec3, n),
		order:     make([]int32, n),
		nodes:     make([]bvhNode, 0, 2*n/leafSize+1),
		leafSize:  leafSize,
	}
	centroids := make([]mgl32.Vec3, n)
	for i := 0; i < n; i++ {
		t := mesh.Triangle(i)
		b.triangles[i] = t
		b.order[i] = int32(i)
		centroids[i] = t[0].Add(t[1]).Add(t[2]).Mul(1.0 / 3)
	}
	if n > 0 {
		b.nodes = append(b.nodes, bvhNode{})
		b.build(0, 0, n, centroids)
	}
	return b, nil
}

// build fills node idx with order[start:end], splitting at the centroid
// median of the longest axis.
func (b *BVH) build(idx, start, end int, centroids []mgl32.Vec3) {
	bounds := emptyAABB()
	cbounds := emptyAABB()
	for _, ti := range b.order[start:end] {
		for _, p := range b.triangles[ti] {
			bounds.grow(p)
		}
		cbounds.grow(centroids[ti])
	}
	b.nodes[idx].bounds = bounds

	if end-start <= b.leafSize {
		b.nodes[idx].start = int32(start)
		b.nodes[idx].count = int32(end - start)
		return
	}

	axis := cbounds.longestAxis()
	sub := b.order[start:end]
	sort.Slice(sub, func(i, j int) bool {
		return centroids[sub[i]][axis] < centroids[sub[j]][axis]
	})
	mid := start + (end-start)/2

	left := len(b.nodes)
	b.nodes = append(b.nodes, bvhNode{}, bvhNode{})
	b.nodes[idx].left = int32(left)
	b.build(left, start, mid, centroids)
	b.build(left+1, mid, end, centroids)
}

// TriangleCount returns the number of indexed triangles.
func (b *BVH) TriangleCount() int { return len(b.triangles) }

// RayCast returns the distance along the normalized direction to the nearest
// triangle hit within maxDistance.
func (b *BVH) RayCast(origin, direction mgl32.Vec3, maxDistance float32) (float32, bool, error) {
	if !finite(origin) || !finite(direction) || direction.Len() == 0 {
		return 0, false, fmt.Errorf("%w: origin %v direction %v", ErrInvalidRay, origin, direction)
	}
	if len(b.nodes) == 0 || maxDistance < 0 {
		return 0, false, nil
	}

	invDir := mgl32.Vec3{1 / direction[0], 1 / direction[1], 1 / direction[2]}
	best := maxDistance
	found := false

	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		node := &b.nodes[stack[sp]]
		if !node.bounds.hit(origin, invDir, best) {
			continue
		}
		if node.count > 0 {
			for _, ti := range b.order[node.start : node.start+node.count] {
				if t, ok := intersectTriangle(origin, direction, b.triangles[ti]); ok && t <= best {
					best = t
					found = true
				}
			}
			continue
		}
		if sp+2 > len(stack) {
			return 0, false, fmt.Errorf("geometry: bvh deeper than %d levels", len(stack))
		}
		stack[sp] = node.left
		stack[sp+1] = node.left + 1
		sp += 2
	}
	return best, found, nil
}

// intersectTriangle is the Möller-Trumbore ray/triangle test. It reports the
// distance along dir for hits in front of the origin, from either side.
func intersectTriangle(origin, dir mgl32.Vec3, tri [3]mgl32.Vec3) (float32, bool) {
	e1 := tri[1].Sub(tri[0])
	e2 := tri[2].Sub(tri[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)
	limit := rayEpsilon * e1.Len() * e2.Len() * dir.Len()
	if det >= -limit && det <= limit {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(tri[0])
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < 0 {
		return 0, false
	}
	return t, true
}

func finite(v mgl32.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}
