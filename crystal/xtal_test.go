package crystal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPointGroupOrders(t *testing.T) {
	tests := []struct {
		name  string
		lat   *Lattice
		order int
	}{
		{"cubic", Cubic(1), 48},
		{"fcc", FCC(2), 48},
		{"bcc", BCC(1), 48},
		{"tetragonal", Orthorhombic(1, 1, math.Sqrt(0.5)), 16},
		{"orthorhombic", Orthorhombic(1, 2, 3), 8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.order, len(tc.lat.Group()))
		})
	}
}

func TestGroupOpsAreOrthogonal(t *testing.T) {
	for _, op := range FCC(2).Group() {
		var c mat.Dense
		c.Mul(op.Cart.T(), op.Cart)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				want := 0.0
				if i == j {
					want = 1
				}
				assert.InDelta(t, want, c.At(i, j), 1e-10)
			}
		}
	}
}

func TestTwoSiteBasis(t *testing.T) {
	//CsCl arrangement: the body center is a distinct site, every cubic
	//operation fixes both sites.
	lat, err := New(mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}), [][3]float64{{0, 0, 0}, {0.5, 0.5, 0.5}})
	require.NoError(t, err)
	assert.Equal(t, 2, lat.NSites())
	assert.Equal(t, 48, len(lat.Group()))
	for _, op := range lat.Group() {
		assert.Equal(t, []int{0, 1}, op.SiteMap)
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New(mat.NewDense(3, 3, nil), [][3]float64{{0, 0, 0}})
	assert.Error(t, err)
	_, err = New(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), nil)
	assert.Error(t, err)
}

func TestReciprocal(t *testing.T) {
	lat := FCC(2)
	//A^T B = 2 pi I
	var c mat.Dense
	c.Mul(lat.Cell().T(), lat.Reciprocal())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 2 * math.Pi
			}
			assert.InDelta(t, want, c.At(i, j), 1e-10)
		}
	}
	assert.InDelta(t, 2.0, lat.Volume(), 1e-12)
}

func TestBZGCounts(t *testing.T) {
	assert.Equal(t, 6, len(Cubic(1).BZG()))
	//FCC reciprocal is BCC: rhombic dodecahedron, 12 faces
	assert.Equal(t, 12, len(FCC(2).BZG()))
	//BCC reciprocal is FCC: truncated octahedron, 14 faces
	assert.Equal(t, 14, len(BCC(1).BZG()))
}

func TestKptGrid(t *testing.T) {
	assert.Equal(t, [3]int{16, 16, 16}, Cubic(1).KptGrid(4))
	g := Orthorhombic(1, 1, math.Sqrt(0.5)).KptGrid(4)
	//the short axis has the longest reciprocal vector
	assert.Greater(t, g[2], g[0])
	assert.Equal(t, g[0], g[1])
	for _, n := range g {
		assert.Zero(t, n%2)
	}
}

func TestKptMeshWeights(t *testing.T) {
	lat := Cubic(1)
	grid := lat.KptGrid(3)
	pts, wts := lat.KptMesh(grid)
	require.Equal(t, len(pts), len(wts))
	sum := 0.0
	ngamma := 0
	for i, w := range wts {
		sum += w
		if math.Sqrt(dot(pts[i], pts[i])) < 1e-10 {
			ngamma++
			n := grid[0] * grid[1] * grid[2]
			assert.InDelta(t, 1/float64(n), w, 1e-14)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Equal(t, 1, ngamma)
	//reduction is substantial under the cubic group
	assert.Less(t, len(pts), grid[0]*grid[1]*grid[2]/8)
}

func TestMeshClosedUnderGroup(t *testing.T) {
	lat := FCC(2)
	grid := lat.KptGrid(2)
	full := lat.FullKptMesh(grid)
	members := make(map[[3]int64]bool, len(full))
	for _, k := range full {
		members[meshKey(k)] = true
	}
	bzg := lat.BZG()
	pts, _ := lat.KptMesh(grid)
	for _, k := range pts {
		for _, op := range lat.Group() {
			var img [3]float64
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					img[a] += op.Cart.At(a, b) * k[b]
				}
			}
			assert.True(t, members[meshKey(foldBZ(img, bzg))])
		}
	}
}

func TestCoordinateRoundTrip(t *testing.T) {
	lat := FCC(2)
	u := [3]float64{0.3, -0.2, 0.7}
	x := lat.FracToCart(u)
	back := lat.CartToFrac(x)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, u[i], back[i], 1e-12)
	}
}
