/*
Package crystal holds the small amount of periodic-lattice geometry the
Green function calculator needs: lattice and reciprocal vectors, the crystal
point group with its action on the basis sites, and symmetry-reduced k-point
meshes over the Brillouin zone.

Only symmorphic operations (no fractional translation) are searched for,
which covers every lattice used here; a basis that breaks all of them simply
yields a smaller group.
*/
package crystal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const geomTol = 1e-8

//A GroupOp is one point-group operation: its Cartesian rotation matrix and
//the permutation it induces on the basis sites.
type GroupOp struct {
	Cart    *mat.Dense
	SiteMap []int
}

//A Lattice is a periodic crystal: three lattice vectors (the columns of the
//cell matrix) and basis-site positions in fractional coordinates.
type Lattice struct {
	cell   *mat.Dense //columns are lattice vectors
	inv    *mat.Dense
	recip  *mat.Dense //B = 2*pi*A^-T, columns are reciprocal vectors
	basis  [][3]float64
	volume float64
	group  []GroupOp
}

//New builds a Lattice from a cell matrix (lattice vectors as columns) and
//fractional basis positions, and finds its point group. An (effectively)
//singular cell or an empty basis is an error.
func New(cell *mat.Dense, basis [][3]float64) (*Lattice, error) {
	r, c := cell.Dims()
	if r != 3 || c != 3 {
		return nil, fmt.Errorf("crystal: cell must be 3x3, got %dx%d", r, c)
	}
	if len(basis) == 0 {
		return nil, fmt.Errorf("crystal: empty basis")
	}
	det := mat.Det(cell)
	if math.Abs(det) < geomTol {
		return nil, fmt.Errorf("crystal: singular cell matrix")
	}
	l := &Lattice{
		cell:   mat.DenseCopyOf(cell),
		inv:    mat.NewDense(3, 3, nil),
		recip:  mat.NewDense(3, 3, nil),
		volume: math.Abs(det),
	}
	if err := l.inv.Inverse(cell); err != nil {
		return nil, fmt.Errorf("crystal: %w", err)
	}
	//B = 2 pi A^-T
	l.recip.Scale(2*math.Pi, l.inv.T())
	l.basis = make([][3]float64, len(basis))
	for i, u := range basis {
		l.basis[i] = [3]float64{wrapFrac(u[0]), wrapFrac(u[1]), wrapFrac(u[2])}
	}
	l.findGroup()
	return l, nil
}

//wrapFrac maps a fractional coordinate into [0,1).
func wrapFrac(x float64) float64 {
	x -= math.Floor(x)
	if x >= 1-geomTol {
		x = 0
	}
	return x
}

//Cubic returns a simple cubic lattice with edge a and a single site.
func Cubic(a float64) *Lattice {
	l, _ := New(mat.NewDense(3, 3, []float64{
		a, 0, 0,
		0, a, 0,
		0, 0, a,
	}), [][3]float64{{0, 0, 0}})
	return l
}

//FCC returns the primitive face-centered cubic lattice with cube edge a.
func FCC(a float64) *Lattice {
	h := a / 2
	l, _ := New(mat.NewDense(3, 3, []float64{
		0, h, h,
		h, 0, h,
		h, h, 0,
	}), [][3]float64{{0, 0, 0}})
	return l
}

//BCC returns the primitive body-centered cubic lattice with cube edge a.
func BCC(a float64) *Lattice {
	h := a / 2
	l, _ := New(mat.NewDense(3, 3, []float64{
		-h, h, h,
		h, -h, h,
		h, h, -h,
	}), [][3]float64{{0, 0, 0}})
	return l
}

//Orthorhombic returns a single-site lattice with orthogonal edges a, b, c.
func Orthorhombic(a, b, c float64) *Lattice {
	l, _ := New(mat.NewDense(3, 3, []float64{
		a, 0, 0,
		0, b, 0,
		0, 0, c,
	}), [][3]float64{{0, 0, 0}})
	return l
}

//NSites returns the number of basis sites.
func (l *Lattice) NSites() int { return len(l.basis) }

//Volume returns the unit cell volume.
func (l *Lattice) Volume() float64 { return l.volume }

//Cell returns the cell matrix (lattice vectors as columns).
func (l *Lattice) Cell() *mat.Dense { return l.cell }

//Reciprocal returns the reciprocal cell matrix (2*pi*A^-T).
func (l *Lattice) Reciprocal() *mat.Dense { return l.recip }

//Group returns the point group operations.
func (l *Lattice) Group() []GroupOp { return l.group }

//FracToCart converts fractional to Cartesian coordinates.
func (l *Lattice) FracToCart(u [3]float64) [3]float64 {
	var x [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			x[i] += l.cell.At(i, j) * u[j]
		}
	}
	return x
}

//CartToFrac converts Cartesian to fractional coordinates.
func (l *Lattice) CartToFrac(x [3]float64) [3]float64 {
	var u [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			u[i] += l.inv.At(i, j) * x[j]
		}
	}
	return u
}

//SitePos returns the Cartesian position of basis site i.
func (l *Lattice) SitePos(i int) [3]float64 {
	return l.FracToCart(l.basis[i])
}

//findGroup enumerates the candidate integer matrices n with entries in
//{-1,0,1} and keeps those for which R = A n A^-1 is orthogonal and maps the
//basis onto itself (mod lattice translations). Larger integer entries only
//occur for cells much more skewed than any used with this calculator.
func (l *Lattice) findGroup() {
	n := mat.NewDense(3, 3, nil)
	var r mat.Dense
	var check mat.Dense
	ent := [9]float64{}
	var rec func(int)
	rec = func(pos int) {
		if pos == 9 {
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					n.Set(i, j, ent[3*i+j])
				}
			}
			r.Mul(l.cell, n)
			r.Mul(&r, l.inv)
			check.Mul(r.T(), &r)
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					want := 0.0
					if i == j {
						want = 1
					}
					if math.Abs(check.At(i, j)-want) > geomTol {
						return
					}
				}
			}
			smap, ok := l.siteMap(n)
			if !ok {
				return
			}
			l.group = append(l.group, GroupOp{Cart: mat.DenseCopyOf(&r), SiteMap: smap})
			return
		}
		for _, v := range []float64{-1, 0, 1} {
			ent[pos] = v
			rec(pos + 1)
		}
	}
	rec(0)
}

//siteMap returns the basis permutation induced by the fractional rotation n,
//or false when some site image is not a basis site.
func (l *Lattice) siteMap(n *mat.Dense) ([]int, bool) {
	smap := make([]int, len(l.basis))
	used := make([]bool, len(l.basis))
	for i, u := range l.basis {
		var img [3]float64
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				img[a] += n.At(a, b) * u[b]
			}
		}
		for a := 0; a < 3; a++ {
			img[a] = wrapFrac(img[a])
		}
		found := -1
		for j, w := range l.basis {
			if fracEqual(img, w) {
				found = j
				break
			}
		}
		if found < 0 || used[found] {
			return nil, false
		}
		smap[i] = found
		used[found] = true
	}
	return smap, true
}

func fracEqual(a, b [3]float64) bool {
	for i := 0; i < 3; i++ {
		d := math.Abs(a[i] - b[i])
		if d > 0.5 {
			d = 1 - d
		}
		if d > geomTol {
			return false
		}
	}
	return true
}
