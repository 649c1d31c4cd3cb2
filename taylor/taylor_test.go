package taylor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

//plain |x|^n radial weight; with it Eval reproduces the polynomial value.
func rn(n, l int, r float64) complex128 {
	return complex(math.Pow(r, float64(n)), 0)
}

func evalScalar(t *Expansion, x [3]float64) complex128 {
	return t.Eval(x, rn)[0]
}

func scalarTerm(n, l int, c []complex128) *Expansion {
	e := NewExpansion(1, 1)
	if err := e.AddTerm(n, l, c); err != nil {
		panic(err)
	}
	return e
}

//monomial returns the scalar expansion for x^a y^b z^c.
func monomial(a, b, c int) *Expansion {
	d := a + b + c
	co := make([]complex128, NPow(d))
	co[Pow2Ind(a, b, c)] = 1
	return scalarTerm(d, d, co)
}

func TestMonomialTables(t *testing.T) {
	assert.Equal(t, 1, NPow(0))
	assert.Equal(t, 4, NPow(1))
	assert.Equal(t, 10, NPow(2))
	assert.Equal(t, 35, NPow(4))
	for i := 0; i < NPow(4); i++ {
		p := Ind2Pow(i)
		assert.Equal(t, i, Pow2Ind(p[0], p[1], p[2]))
	}
	//degree-major ordering
	last := -1
	for i := 0; i < NPow(4); i++ {
		p := Ind2Pow(i)
		d := p[0] + p[1] + p[2]
		require.GreaterOrEqual(t, d, last)
		last = d
	}
}

func TestPowExp(t *testing.T) {
	x := [3]float64{0.3, -0.7, 0.4}
	u, r := PowExp(x, true)
	assert.InDelta(t, math.Sqrt(0.09+0.49+0.16), r, 1e-14)
	//unit-vector monomials: x*y/r^2 at the (1,1,0) slot
	assert.InDelta(t, x[0]*x[1]/(r*r), u[Pow2Ind(1, 1, 0)], 1e-14)

	u0, r0 := PowExp([3]float64{0, 0, 0}, true)
	assert.Equal(t, 0.0, r0)
	assert.Equal(t, 1.0, u0[0])
	for i := 1; i < len(u0); i++ {
		assert.Equal(t, 0.0, u0[i])
	}
}

func TestBasisAngularMomentum(t *testing.T) {
	//degree d contributes exactly 2d+1 new harmonics, so the orthonormal
	//basis over degrees 0..2*Lmax has sum(2d+1) = (2*Lmax+1)^2 members.
	counts := map[int]int{}
	for _, l := range basisL {
		counts[l]++
	}
	total := 0
	for d := 0; d <= 2*Lmax; d++ {
		assert.Equalf(t, 2*d+1, counts[d], "harmonic count at l=%d", d)
		total += 2*d + 1
	}
	assert.Len(t, basisL, total)
	//orthonormality spot check
	for k := 0; k < len(basisV); k += 7 {
		assert.InDelta(t, 1.0, gramDot(basisV[k], basisV[k]), 1e-9)
		if k+1 < len(basisV) {
			assert.InDelta(t, 0.0, gramDot(basisV[k], basisV[k+1]), 1e-9)
		}
	}
}

func TestReduceIsotropic(t *testing.T) {
	//x^2+y^2+z^2 written over degree-2 monomials is pure l=0.
	c := make([]complex128, NPow(2))
	c[Pow2Ind(2, 0, 0)] = 1
	c[Pow2Ind(0, 2, 0)] = 1
	c[Pow2Ind(0, 0, 2)] = 1
	e := scalarTerm(2, 2, c)
	e.Reduce()
	require.Equal(t, [][2]int{{2, 0}}, e.NL())
	x := [3]float64{0.2, 0.5, -0.3}
	want := complex(0.04+0.25+0.09, 0)
	assert.InDelta(t, real(want), real(evalScalar(e, x)), 1e-12)
}

func TestReduceDropsZero(t *testing.T) {
	e := scalarTerm(0, 0, []complex128{0})
	e.Reduce()
	assert.True(t, e.IsZero())
}

func TestMulTracksAngularMomentum(t *testing.T) {
	x := monomial(1, 0, 0)
	y := monomial(0, 1, 0)
	xy := x.Mul(y)
	require.Equal(t, [][2]int{{2, 2}}, xy.NL())
	pt := [3]float64{0.3, -0.7, 0.4}
	assert.InDelta(t, pt[0]*pt[1], real(evalScalar(xy, pt)), 1e-12)

	//(x^2)*(x^2) stays within l=4, so the value is exact
	x2 := monomial(2, 0, 0)
	x4 := x2.Mul(x2)
	for _, nl := range x4.NL() {
		assert.LessOrEqual(t, nl[1], Lmax)
	}
	assert.InDelta(t, math.Pow(pt[0], 4), real(evalScalar(x4, pt)), 1e-12)

	//(x^2)*(x^4) carries l=6 content, which the projection discards; the
	//result stays within the engine's angular range
	x6 := x2.Mul(monomial(4, 0, 0))
	require.False(t, x6.IsZero())
	for _, nl := range x6.NL() {
		assert.LessOrEqual(t, nl[1], Lmax)
	}
}

func TestMulBlocks(t *testing.T) {
	a := NewExpansion(2, 2)
	require.NoError(t, a.AddTerm(0, 0, []complex128{1, 2, 3, 4}))
	b := NewExpansion(2, 1)
	require.NoError(t, b.AddTerm(1, 1, []complex128{
		0, 0, //constant monomial
		1, 0, //x
		0, 1, //y
		0, 0, //z
	}))
	ab := a.Mul(b)
	r, c := ab.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, c)
	v := ab.Eval([3]float64{0.5, 0.25, 0}, rn)
	//a*(x, y)^T = (x+2y, 3x+4y)^T
	assert.InDelta(t, 1.0, real(v[0]), 1e-12)
	assert.InDelta(t, 2.5, real(v[1]), 1e-12)
}

func TestInvScalar(t *testing.T) {
	//(2 + x)^-1, carried to relative order Lmax
	a := scalarTerm(0, 0, []complex128{2}).Add(monomial(1, 0, 0))
	inv, err := a.Inv()
	require.NoError(t, err)
	prod := a.Mul(inv)
	prod.Reduce()
	for _, nl := range prod.NL() {
		if nl[0] == 0 {
			continue
		}
		assert.Greater(t, nl[0], Lmax, "residual term below truncation order")
	}
	x := [3]float64{0.05, 0, 0}
	assert.InDelta(t, 1.0/2.05, real(evalScalar(inv, x)), 1e-6)
}

func TestInvPole(t *testing.T) {
	//leading order 2 inverts to a second-order pole
	a := NewExpansion(2, 2)
	c2 := make([]complex128, NPow(0)*4)
	c2[0], c2[3] = 2, 3
	require.NoError(t, a.AddTerm(2, 0, c2))
	c3 := make([]complex128, NPow(1)*4)
	c3[Pow2Ind(1, 0, 0)*4] = 0.5
	require.NoError(t, a.AddTerm(3, 1, c3))
	inv, err := a.Inv()
	require.NoError(t, err)
	nl := inv.NL()
	require.NotEmpty(t, nl)
	assert.Equal(t, -2, nl[0][0])
	prod := a.Mul(inv)
	prod.Reduce()
	v := prod.Eval([3]float64{0.01, 0.02, -0.01}, rn)
	assert.InDelta(t, 1, real(v[0]), 1e-8)
	assert.InDelta(t, 0, real(v[1]), 1e-8)
	assert.InDelta(t, 0, real(v[2]), 1e-8)
	assert.InDelta(t, 1, real(v[3]), 1e-8)
}

func TestInvErrors(t *testing.T) {
	_, err := monomial(2, 0, 0).Inv() //leading term not isotropic
	assert.Error(t, err)
	z := NewExpansion(1, 1)
	_, err = z.Inv()
	assert.Error(t, err)
	s := NewExpansion(1, 1)
	require.NoError(t, s.AddTerm(0, 0, []complex128{0}))
	_, err = s.Inv()
	assert.Error(t, err)
}

func TestIRotate(t *testing.T) {
	//T(u) after substitution q = M u must equal the original at M u, for a
	//non-orthogonal M like the principal-axis rescaling.
	m := mat.NewDense(3, 3, []float64{
		1, 1, 0,
		0, 1, 0,
		0, 0, 2,
	})
	e := monomial(2, 0, 0).Add(monomial(1, 1, 1)).Add(monomial(0, 0, 3))
	rot := e.Copy()
	require.NoError(t, rot.IRotate(m))
	rot.Reduce()
	u := [3]float64{0.3, -0.2, 0.5}
	var q [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			q[i] += m.At(i, j) * u[j]
		}
	}
	assert.InDelta(t, real(evalScalar(e, q)), real(evalScalar(rot, u)), 1e-10)
}

func TestIRotateRejectsPole(t *testing.T) {
	e := NewExpansion(1, 1)
	require.NoError(t, e.AddTerm(-2, 0, []complex128{1}))
	err := e.IRotate(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}))
	assert.Error(t, err)
}

func TestSeparate(t *testing.T) {
	//x^2 = r^2/3 + (x^2 - r^2/3) splits into l=0 and l=2 at n=2.
	e := monomial(2, 0, 0)
	e.Separate()
	nl := e.NL()
	require.Equal(t, [][2]int{{2, 0}, {2, 2}}, nl)
	x := [3]float64{0.4, 0.1, -0.2}
	assert.InDelta(t, x[0]*x[0], real(evalScalar(e, x)), 1e-12)
	//idempotent
	before := e.NL()
	e.Separate()
	assert.Equal(t, before, e.NL())
}

func TestTruncateSliceInsert(t *testing.T) {
	e := monomial(1, 0, 0).Add(monomial(3, 0, 0))
	tr := e.Truncate(2)
	assert.Equal(t, [][2]int{{1, 1}}, tr.NL())

	big := NewExpansion(3, 3)
	small := NewExpansion(2, 2)
	require.NoError(t, small.AddTerm(0, 0, []complex128{1, 2, 3, 4}))
	big.InsertSlice(1, 1, small)
	back := big.Slice(1, 3, 1, 3)
	v := back.Eval([3]float64{1, 0, 0}, rn)
	assert.Equal(t, complex128(1), v[0])
	assert.Equal(t, complex128(4), v[3])
}

func TestCInverse(t *testing.T) {
	a := []complex128{complex(1, 1), 2, 0, complex(0, -1)}
	inv, err := cInverse(a, 2)
	require.NoError(t, err)
	p := cMul(a, inv, 2, 2, 2)
	assert.InDelta(t, 1, real(p[0]), 1e-12)
	assert.InDelta(t, 0, imag(p[0]), 1e-12)
	assert.InDelta(t, 0, real(p[1]), 1e-12)
	assert.InDelta(t, 1, real(p[3]), 1e-12)

	_, err = cInverse([]complex128{1, 2, 2, 4}, 2)
	assert.Error(t, err)
}
