//Package taylor implements a truncated multivariate Taylor (power) expansion
//of matrix-valued functions of a 3-vector q. A term of the expansion is tagged
//by its total order n and its angular momentum l, and carries a coefficient
//block for every monomial of the direction vector up to degree l. The value of
//an expansion is
//
//	f(q) = sum_(n,l) fnl(|q|) * sum_p c[p] * (q/|q|)^pow(p)
//
//where fnl(|q|) = |q|^n for a plain power series, but may be replaced by any
//radial function (a cutoff kernel, its real-space transform) at evaluation
//time. The expansion is closed under addition, matrix multiplication, block
//slicing, formal inversion and rotation of the argument, which is what the
//Green function construction needs: the inverse of an expansion whose leading
//order is n=2 starts at n=-2, the second-order pole.
//
//Angular momentum bookkeeping is exact: products and reductions project the
//monomial coefficients onto spherical-harmonic components using an
//orthonormal basis built once at package initialization, so a term labeled
//(n,l) really does transform as angular momentum <= l.
package taylor

import (
	"fmt"
	"math"
)

//Lmax is the truncation order of the engine: expansions carry total orders and
//angular momenta up to Lmax. Products are formed exactly up to monomial degree
//2*Lmax and then projected back onto l <= Lmax.
const Lmax = 4

const maxDeg = 2 * Lmax

//tolerance for dropping angular components in Reduce and friends, relative to
//the largest component of the term.
const reduceTol = 1e-10

var (
	ind2pow  [][3]int
	pow2ind  [maxDeg + 1][maxDeg + 1][maxDeg + 1]int
	powcount [maxDeg + 1]int //powcount[d]: number of monomials with degree <= d
	powcoeff [Lmax + 1][]float64

	gram    [][]float64 //sphere-averaged monomial inner products
	basisL  []int       //angular momentum label of each orthonormal basis vector
	basisV  [][]float64 //orthonormal basis vectors over the monomial set
	basisW  [][]float64 //gram * basisV, for fast amplitude extraction
)

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}

//sphere average of x^a y^b z^c; zero unless all powers are even.
func sphereAvg(a, b, c int) float64 {
	if a%2 != 0 || b%2 != 0 || c%2 != 0 {
		return 0
	}
	dfact := func(m int) float64 {
		f := 1.0
		for i := m; i > 1; i -= 2 {
			f *= float64(i)
		}
		return f
	}
	return dfact(a-1) * dfact(b-1) * dfact(c-1) / dfact(a+b+c+1)
}

func init() {
	//monomial enumeration, ordered by total degree
	for d := 0; d <= maxDeg; d++ {
		for a := d; a >= 0; a-- {
			for b := d - a; b >= 0; b-- {
				c := d - a - b
				pow2ind[a][b][c] = len(ind2pow)
				ind2pow = append(ind2pow, [3]int{a, b, c})
			}
		}
		powcount[d] = len(ind2pow)
	}
	//multinomial coefficients for the expansion of (q.dx)^n
	for n := 0; n <= Lmax; n++ {
		powcoeff[n] = make([]float64, powcount[n])
		for p := 0; p < powcount[n]; p++ {
			pw := ind2pow[p]
			if pw[0]+pw[1]+pw[2] != n {
				continue
			}
			powcoeff[n][p] = factorial(n) / (factorial(pw[0]) * factorial(pw[1]) * factorial(pw[2]))
		}
	}
	buildGram()
	buildBasis()
}

func buildGram() {
	np := powcount[maxDeg]
	gram = make([][]float64, np)
	for i := 0; i < np; i++ {
		gram[i] = make([]float64, np)
		pi := ind2pow[i]
		for j := 0; j < np; j++ {
			pj := ind2pow[j]
			gram[i][j] = sphereAvg(pi[0]+pj[0], pi[1]+pj[1], pi[2]+pj[2])
		}
	}
}

//gramDot is the sphere inner product of two monomial coefficient vectors.
func gramDot(a, b []float64) float64 {
	s := 0.0
	for i, ai := range a {
		if ai == 0 {
			continue
		}
		gi := gram[i]
		for j, bj := range b {
			if bj != 0 {
				s += ai * gi[j] * bj
			}
		}
	}
	return s
}

//buildBasis runs a Gram-Schmidt pass over the monomials in degree order. Every
//monomial of degree d that is independent (on the unit sphere) of the lower
//degrees contributes a new orthonormal function of pure angular momentum l=d,
//since degree <= d-1 polynomials already span all harmonics below d. Dependent
//monomials (one per even degree, the trace x^2+y^2+z^2) are skipped.
func buildBasis() {
	np := powcount[maxDeg]
	for p := 0; p < np; p++ {
		pw := ind2pow[p]
		d := pw[0] + pw[1] + pw[2]
		v := make([]float64, np)
		v[p] = 1
		//two passes of projection for numerical orthogonality
		for pass := 0; pass < 2; pass++ {
			for k := range basisV {
				c := gramDot(basisV[k], v)
				for i, bi := range basisV[k] {
					v[i] -= c * bi
				}
			}
		}
		n2 := gramDot(v, v)
		if n2 < 1e-8 {
			continue //linearly dependent on the sphere
		}
		inv := 1 / math.Sqrt(n2)
		for i := range v {
			v[i] *= inv
		}
		w := make([]float64, np)
		for i := 0; i < np; i++ {
			s := 0.0
			for j, vj := range v {
				if vj != 0 {
					s += gram[i][j] * vj
				}
			}
			w[i] = s
		}
		basisL = append(basisL, d)
		basisV = append(basisV, v)
		basisW = append(basisW, w)
	}
}

//NPow returns the number of monomials with total degree <= l, which is the
//length of the monomial axis of a coefficient block for an angular momentum l
//term. Panics for l outside the tabulated range.
func NPow(l int) int {
	if l < 0 || l > maxDeg {
		panic(fmt.Sprintf("taylor: angular momentum %d out of range", l))
	}
	return powcount[l]
}

//Pow2Ind maps the monomial exponents (a,b,c) to its flat index.
func Pow2Ind(a, b, c int) int {
	if a < 0 || b < 0 || c < 0 || a+b+c > maxDeg {
		panic(fmt.Sprintf("taylor: monomial (%d,%d,%d) out of range", a, b, c))
	}
	return pow2ind[a][b][c]
}

//Ind2Pow is the inverse of Pow2Ind.
func Ind2Pow(i int) [3]int {
	return ind2pow[i]
}

//PowerCoeff returns the multinomial coefficients of (q.dx)^n over the degree-n
//monomials (zero on lower degrees); used to Taylor expand plane waves.
func PowerCoeff(n int) []float64 {
	if n < 0 || n > Lmax {
		panic(fmt.Sprintf("taylor: power %d out of range", n))
	}
	return powcoeff[n]
}

//PowExp evaluates all monomials up to degree Lmax at x. With normalize, x is
//first scaled to a unit vector and the original magnitude returned; a zero
//vector stays zero.
func PowExp(x [3]float64, normalize bool) ([]float64, float64) {
	magn := math.Sqrt(x[0]*x[0] + x[1]*x[1] + x[2]*x[2])
	u := x
	if normalize && magn > 0 {
		u = [3]float64{x[0] / magn, x[1] / magn, x[2] / magn}
	}
	out := make([]float64, powcount[Lmax])
	for p := range out {
		pw := ind2pow[p]
		v := 1.0
		for i := 0; i < pw[0]; i++ {
			v *= u[0]
		}
		for i := 0; i < pw[1]; i++ {
			v *= u[1]
		}
		for i := 0; i < pw[2]; i++ {
			v *= u[2]
		}
		out[p] = v
	}
	return out, magn
}

//A term carries the coefficient blocks of one (order, angular momentum) pair.
//The coefficient slice has NPow(l)*rows*cols entries, monomial-major.
type term struct {
	n, l int
	c    []complex128
}

//Expansion is a truncated power expansion of a rows x cols matrix-valued
//function of a 3-vector. The zero value is not usable; construct with
//NewExpansion.
type Expansion struct {
	rows, cols int
	terms      []term
}

//Term is the read-only view of one expansion term used by callers that pick
//out specific coefficients (diffusivity and bias extraction). C is shared with
//the expansion and must not be modified.
type Term struct {
	N, L int
	C    []complex128
}

//NewExpansion returns an empty (identically zero) expansion of the given
//block dimensions.
func NewExpansion(rows, cols int) *Expansion {
	if rows < 1 || cols < 1 {
		panic("taylor: nonpositive expansion dimensions")
	}
	return &Expansion{rows: rows, cols: cols}
}

//Dims returns the block dimensions.
func (T *Expansion) Dims() (int, int) {
	return T.rows, T.cols
}

//IsZero reports whether the expansion has no terms at all.
func (T *Expansion) IsZero() bool {
	return len(T.terms) == 0
}

//Terms returns views of the terms, sorted by order then angular momentum.
func (T *Expansion) Terms() []Term {
	out := make([]Term, len(T.terms))
	for i, t := range T.terms {
		out[i] = Term{N: t.n, L: t.l, C: t.c}
	}
	return out
}

//NL returns the list of (n,l) pairs present.
func (T *Expansion) NL() [][2]int {
	out := make([][2]int, len(T.terms))
	for i, t := range T.terms {
		out[i] = [2]int{t.n, t.l}
	}
	return out
}

//MaxAbs returns the largest coefficient magnitude over all terms.
func (T *Expansion) MaxAbs() float64 {
	m := 0.0
	for _, t := range T.terms {
		if v := maxAbsC(t.c); v > m {
			m = v
		}
	}
	return m
}

//Copy returns a deep copy.
func (T *Expansion) Copy() *Expansion {
	out := &Expansion{rows: T.rows, cols: T.cols, terms: make([]term, len(T.terms))}
	for i, t := range T.terms {
		c := make([]complex128, len(t.c))
		copy(c, t.c)
		out.terms[i] = term{n: t.n, l: t.l, c: c}
	}
	return out
}

//AddTerm accumulates a coefficient block into the (n,l) term, creating it if
//absent. The slice must have NPow(l)*rows*cols entries and is copied.
func (T *Expansion) AddTerm(n, l int, c []complex128) error {
	if l < 0 || l > Lmax {
		return fmt.Errorf("taylor: AddTerm angular momentum %d out of range", l)
	}
	if len(c) != powcount[l]*T.rows*T.cols {
		return fmt.Errorf("taylor: AddTerm coefficient length %d, want %d", len(c), powcount[l]*T.rows*T.cols)
	}
	cc := make([]complex128, len(c))
	copy(cc, c)
	T.addTerm(term{n: n, l: l, c: cc})
	return nil
}

//addTerm merges t into the sorted term list, combining with an existing term
//of the same order by padding to the larger angular momentum. t.c is consumed.
func (T *Expansion) addTerm(t term) {
	bs := T.rows * T.cols
	for i := range T.terms {
		if T.terms[i].n != t.n {
			continue
		}
		a, b := T.terms[i], t
		if a.l < b.l {
			a, b = b, a
		}
		c := make([]complex128, powcount[a.l]*bs)
		copy(c, a.c)
		for k := range b.c {
			c[k] += b.c[k]
		}
		T.terms[i] = term{n: t.n, l: a.l, c: c}
		return
	}
	pos := len(T.terms)
	for i := range T.terms {
		if T.terms[i].n > t.n {
			pos = i
			break
		}
	}
	T.terms = append(T.terms, term{})
	copy(T.terms[pos+1:], T.terms[pos:])
	T.terms[pos] = t
}

//Add returns T + B. Dimensions must agree.
func (T *Expansion) Add(B *Expansion) *Expansion {
	if T.rows != B.rows || T.cols != B.cols {
		panic("taylor: Add dimension mismatch")
	}
	out := T.Copy()
	for _, t := range B.terms {
		c := make([]complex128, len(t.c))
		copy(c, t.c)
		out.addTerm(term{n: t.n, l: t.l, c: c})
	}
	return out
}

//Sub returns T - B.
func (T *Expansion) Sub(B *Expansion) *Expansion {
	return T.Add(B.Scale(-1))
}

//Scale returns s*T.
func (T *Expansion) Scale(s complex128) *Expansion {
	out := T.Copy()
	for _, t := range out.terms {
		for i := range t.c {
			t.c[i] *= s
		}
	}
	return out
}

//Truncate returns a copy with all terms of order > nmax dropped.
func (T *Expansion) Truncate(nmax int) *Expansion {
	out := &Expansion{rows: T.rows, cols: T.cols}
	for _, t := range T.terms {
		if t.n > nmax {
			continue
		}
		c := make([]complex128, len(t.c))
		copy(c, t.c)
		out.terms = append(out.terms, term{n: t.n, l: t.l, c: c})
	}
	return out
}

//Slice extracts the sub-blocks [i0:i1, j0:j1) of every term, the way the
//omega expansion is partitioned into diffusive and relaxive pieces.
func (T *Expansion) Slice(i0, i1, j0, j1 int) *Expansion {
	if i0 < 0 || i1 > T.rows || j0 < 0 || j1 > T.cols || i0 >= i1 || j0 >= j1 {
		panic("taylor: Slice out of range")
	}
	nr, nc := i1-i0, j1-j0
	out := &Expansion{rows: nr, cols: nc}
	for _, t := range T.terms {
		np := powcount[t.l]
		c := make([]complex128, np*nr*nc)
		for p := 0; p < np; p++ {
			for r := 0; r < nr; r++ {
				for cc := 0; cc < nc; cc++ {
					c[(p*nr+r)*nc+cc] = t.c[(p*T.rows+r+i0)*T.cols+cc+j0]
				}
			}
		}
		out.terms = append(out.terms, term{n: t.n, l: t.l, c: c})
	}
	return out
}

//InsertSlice accumulates the smaller expansion S into T with its (0,0) block
//entry landing at (i0,j0); the block-assembly counterpart of Slice.
func (T *Expansion) InsertSlice(i0, j0 int, S *Expansion) {
	sr, sc := S.rows, S.cols
	if i0 < 0 || i0+sr > T.rows || j0 < 0 || j0+sc > T.cols {
		panic("taylor: InsertSlice out of range")
	}
	for _, t := range S.terms {
		np := powcount[t.l]
		c := make([]complex128, np*T.rows*T.cols)
		for p := 0; p < np; p++ {
			for r := 0; r < sr; r++ {
				for cc := 0; cc < sc; cc++ {
					c[(p*T.rows+r+i0)*T.cols+cc+j0] = t.c[(p*sr+r)*sc+cc]
				}
			}
		}
		T.addTerm(term{n: t.n, l: t.l, c: c})
	}
}
