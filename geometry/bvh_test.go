package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bruteForce(m *Mesh, origin, dir mgl32.Vec3, far float32) (float32, bool) {
	best, found := far, false
	for i := 0; i < m.TriangleCount(); i++ {
		if t, ok := intersectTriangle(origin, dir, m.Triangle(i)); ok && t <= best {
			best, found = t, true
		}
	}
	return best, found
}

func TestBVHRayCast(t *testing.T) {
	bvh, err := NewBVH(NewPlane(4, 4), 0)
	require.NoError(t, err)
	assert.Equal(t, 32, bvh.TriangleCount())

	down := mgl32.Vec3{0, 0, -1}
	tests := []struct {
		name   string
		origin mgl32.Vec3
		dir    mgl32.Vec3
		far    float32
		want   float32
		hit    bool
	}{
		{name: "from above", origin: mgl32.Vec3{0.3, 0.6, 2}, dir: down, far: 10, want: 2, hit: true},
		{name: "from below", origin: mgl32.Vec3{0.3, 0.6, -1}, dir: mgl32.Vec3{0, 0, 1}, far: 10, want: 1, hit: true},
		{name: "beyond max distance", origin: mgl32.Vec3{0.3, 0.6, 2}, dir: down, far: 1.5},
		{name: "pointing away", origin: mgl32.Vec3{0.3, 0.6, 2}, dir: mgl32.Vec3{0, 0, 1}, far: 10},
		{name: "outside extent", origin: mgl32.Vec3{2.5, 0.6, 2}, dir: down, far: 10},
		{name: "oblique", origin: mgl32.Vec3{-1.3, 0.6, 1}, dir: mgl32.Vec3{1, 0, -1}.Normalize(), far: 10, want: float32(math.Sqrt2), hit: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, hit, err := bvh.RayCast(tc.origin, tc.dir, tc.far)
			require.NoError(t, err)
			assert.Equal(t, tc.hit, hit)
			if tc.hit {
				assert.InDelta(t, tc.want, got, 1e-5)
			}
		})
	}
}

func TestBVHMatchesBruteForce(t *testing.T) {
	meshes := map[string]*Mesh{
		"box":   NewBox(mgl32.Vec3{2, 3, 1}),
		"plane": NewPlane(6, 8),
	}
	rng := rand.New(rand.NewSource(42))
	point := func(scale float32) mgl32.Vec3 {
		return mgl32.Vec3{
			(rng.Float32()*2 - 1) * scale,
			(rng.Float32()*2 - 1) * scale,
			(rng.Float32()*2 - 1) * scale,
		}
	}

	for name, m := range meshes {
		for _, leaf := range []int{1, DefaultLeafSize, 64} {
			bvh, err := NewBVH(m, leaf)
			require.NoError(t, err)
			hits := 0
			for i := 0; i < 500; i++ {
				origin := point(5)
				dir := point(1).Sub(origin).Normalize()
				far := rng.Float32() * 10

				wantT, wantHit := bruteForce(m, origin, dir, far)
				gotT, gotHit, err := bvh.RayCast(origin, dir, far)
				require.NoError(t, err)
				require.Equal(t, wantHit, gotHit, "%s leaf %d ray %d", name, leaf, i)
				if wantHit {
					hits++
					assert.InDelta(t, wantT, gotT, 1e-4, "%s leaf %d ray %d", name, leaf, i)
				}
			}
			assert.NotZero(t, hits, "%s leaf %d", name, leaf)
		}
	}
}

func TestBVHRayCastTinyTriangles(t *testing.T) {
	bvh, err := NewBVH(NewPlane(2e-4, 1), 0)
	require.NoError(t, err)

	got, hit, err := bvh.RayCast(mgl32.Vec3{3e-5, 6e-5, 1}, mgl32.Vec3{0, 0, -1}, 2)
	require.NoError(t, err)
	require.True(t, hit)
	assert.InDelta(t, 1, got, 1e-5)

	_, hit, err = bvh.RayCast(mgl32.Vec3{-1, 3e-5, 0}, mgl32.Vec3{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.False(t, hit, "rays in the triangle plane are parallel")
}

func TestBVHInvalidRay(t *testing.T) {
	bvh, err := NewBVH(NewPlane(1, 1), 0)
	require.NoError(t, err)

	nan := float32(math.NaN())
	for _, r := range []struct{ origin, dir mgl32.Vec3 }{
		{mgl32.Vec3{}, mgl32.Vec3{}},
		{mgl32.Vec3{nan, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{}, mgl32.Vec3{0, float32(math.Inf(1)), 0}},
	} {
		_, _, err := bvh.RayCast(r.origin, r.dir, 1)
		assert.ErrorIs(t, err, ErrInvalidRay)
	}
}

func TestNewBVHErrors(t *testing.T) {
	_, err := NewBVH(nil, 0)
	assert.ErrorIs(t, err, ErrMalformedMesh)

	_, err = NewBVH(&Mesh{Vertices: []mgl32.Vec3{{}}, Triangles: [][3]uint32{{0, 0, 1}}}, 0)
	assert.ErrorIs(t, err, ErrMalformedMesh)

	empty, err := NewBVH(&Mesh{}, 0)
	require.NoError(t, err)
	_, hit, err := empty.RayCast(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, 1)
	assert.NoError(t, err)
	assert.False(t, hit)
}
