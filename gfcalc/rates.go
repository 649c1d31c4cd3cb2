package gfcalc

import (
	"fmt"
	"math"

	"github.com/lingtikong/Onsager/taylor"
	"gonum.org/v1/gonum/mat"
)

const imagTol = 1e-8

//SetRates assembles thermally activated rates and performs the semicontinuum
//split and inversion. pre and betaene are per Wyckoff class (prefactor and
//beta*energy of the site), preT and betaeneT per jump class (prefactor and
//beta*energy of the transition state). All later evaluation state is derived
//here; calling SetRates again fully replaces it.
func (c *GFCalc) SetRates(pre, betaene, preT, betaeneT []float64) error {
	if len(pre) != len(c.sitelist) || len(betaene) != len(c.sitelist) ||
		len(preT) != len(c.network) || len(betaeneT) != len(c.network) {
		return fmt.Errorf("%w: rate arrays must match site and jump class counts", ErrBadNetwork)
	}
	c.hasRates = false

	//symmetrized rates and escape rates, normalized by the largest
	//symmetrized rate
	symmrate := make([]float64, len(c.network))
	for jc := range c.network {
		w0, w1 := c.pairs[jc][0], c.pairs[jc][1]
		symmrate[jc] = preT[jc] * math.Exp(0.5*betaene[w0]+0.5*betaene[w1]-betaeneT[jc]) /
			math.Sqrt(pre[w0]*pre[w1])
	}
	escape := make([]float64, c.n)
	for i := 0; i < c.n; i++ {
		w := c.invmap[i]
		for jc := range c.network {
			escape[i] -= float64(c.sejumps[i][jc]) * preT[jc] / pre[w] *
				math.Exp(betaene[w]-betaeneT[jc])
		}
	}
	maxrate := 0.0
	for _, r := range symmrate {
		if r > maxrate {
			maxrate = r
		}
	}
	if maxrate <= 0 {
		return fmt.Errorf("%w: all jump rates vanish", ErrBadNetwork)
	}
	for jc := range symmrate {
		symmrate[jc] /= maxrate
	}
	for i := range escape {
		escape[i] /= maxrate
	}

	//hopping operator: Taylor expansion about the zone center
	omT := taylor.NewExpansion(c.n, c.n)
	for jc, tj := range c.tjumps {
		omT = omT.Add(tj.Scale(complex(symmrate[jc], 0)))
	}
	esc := make([]complex128, c.n*c.n)
	for i := 0; i < c.n; i++ {
		esc[i*c.n+i] = complex(escape[i], 0)
	}
	if err := omT.AddTerm(0, 0, esc); err != nil {
		return err
	}

	//zone-center diagonalization: one zero mode (equilibrium), the rest
	//relaxive
	vr, err := c.diagGamma(omT)
	if err != nil {
		return err
	}
	omrot := omT.LDot(matTranspose(vr)).RDot(vr)
	omrot.Reduce()

	dexp, eta, err := c.schurDiffusivity(omrot, vr)
	if err != nil {
		return err
	}

	//physical diffusivity and its principal axes
	dtilde, err := extractQuadratic(dexp)
	if err != nil {
		return err
	}
	dtilde.Scale(-1, dtilde) //omega ~ -q.D.q
	c.diff = mat.NewDense(3, 3, nil)
	c.diff.Scale(maxrate, dtilde)
	c.eta = eta

	var eig mat.EigenSym
	if !eig.Factorize(denseToSym(dtilde), true) {
		return fmt.Errorf("%w: diffusivity eigendecomposition failed", ErrNoEquilibrium)
	}
	d := eig.Values(nil)
	if d[0] <= 0 {
		return fmt.Errorf("%w: non-positive diffusivity eigenvalue %g", ErrNoEquilibrium, d[0])
	}
	var evec mat.Dense
	eig.VectorsTo(&evec)

	//Gaussian cutoff sized so the kernel decays to CutoffTarget at the
	//nearest zone boundary
	target := c.CutoffTarget
	if target <= 0 || target >= 1 {
		target = 1e-7
	}
	gmin := math.Inf(1)
	for _, g := range c.lat.BZG() {
		var dg [3]float64
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				dg[a] += dtilde.At(a, b) * g[b]
			}
		}
		if v := g[0]*dg[0] + g[1]*dg[1] + g[2]*dg[2]; v < gmin {
			gmin = v
		}
	}
	//the zone faces sit at G/2, so the quadratic form belongs on the half
	//vectors: anything larger leaves kernel tail outside the mesh that the
	//real-space transform adds back but the residual never subtracts
	c.pmax = math.Sqrt(gmin / 4 / -math.Log(target))
	c.detd = d[0] * d[1] * d[2]

	//principal-axis transforms: q = qptrans.p isotropizes the pole,
	//p = pqtrans.q, u = uxtrans.x is the real-space conjugate
	qptrans := mat.NewDense(3, 3, nil)
	pqtrans := mat.NewDense(3, 3, nil)
	c.uxtrans = mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		sq := math.Sqrt(d[i])
		for a := 0; a < 3; a++ {
			qptrans.Set(a, i, evec.At(a, i)/sq)
			pqtrans.Set(i, a, evec.At(a, i)*sq)
			c.uxtrans.Set(i, a, evec.At(a, i)/sq)
		}
	}

	//rotate the expansion into isotropized coordinates and invert
	omiso := omrot.Copy()
	if err := omiso.IRotate(qptrans); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	omiso.Reduce()
	gt, err := c.blockInvert(omiso)
	if err != nil {
		return err
	}

	//back to the site basis; the argument stays p
	gsite := gt.LDot(vr).RDot(matTranspose(vr))
	gsite.Reduce()
	gsep := gsite.Copy()
	gsep.Separate()
	c.gtay = make([]*taylor.Expansion, c.n*c.n)
	for i := 0; i < c.n; i++ {
		for j := 0; j < c.n; j++ {
			s := gsep.Slice(i, i+1, j, j+1)
			s.Separate()
			c.gtay[i*c.n+j] = s
		}
	}

	//semicontinuum residual on the mesh
	if err := c.buildResidual(symmrate, escape, gsite, pqtrans); err != nil {
		return err
	}
	c.maxrate = maxrate
	c.hasRates = true
	return nil
}

//diagGamma diagonalizes the negated zone-center hopping matrix. Eigenvalues
//come back ascending: the first must vanish (the equilibrium mode) and for a
//connected network must be the only one that does.
func (c *GFCalc) diagGamma(omT *taylor.Expansion) (*mat.Dense, error) {
	g0 := mat.NewSymDense(c.n, nil)
	for _, t := range omT.Terms() {
		if t.N != 0 {
			continue
		}
		//constant monomial block only
		for i := 0; i < c.n; i++ {
			for j := i; j < c.n; j++ {
				g0.SetSym(i, j, -real(t.C[i*c.n+j]))
			}
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(g0, true) {
		return nil, fmt.Errorf("%w: zone-center diagonalization failed", ErrNoEquilibrium)
	}
	ev := eig.Values(nil)
	scale := math.Max(1, ev[c.n-1])
	if math.Abs(ev[0]) > 1e-8*scale {
		return nil, fmt.Errorf("%w: smallest zone-center eigenvalue %g", ErrNoEquilibrium, ev[0])
	}
	if c.n > 1 && ev[1] < 1e-8*scale {
		return nil, fmt.Errorf("%w: degenerate zero mode", ErrNoEquilibrium)
	}
	var vr mat.Dense
	eig.VectorsTo(&vr)
	//fix the sign of the equilibrium mode: all components positive
	s := 0.0
	for i := 0; i < c.n; i++ {
		s += vr.At(i, 0)
	}
	if s < 0 {
		for i := 0; i < c.n; i++ {
			vr.Set(i, 0, -vr.At(i, 0))
		}
	}
	c.vzero = make([]float64, c.n)
	for i := 0; i < c.n; i++ {
		c.vzero[i] = vr.At(i, 0)
	}
	return &vr, nil
}

//schurDiffusivity folds the relaxive block into the diffusive one and pulls
//out the bias correction vectors from the first-order coupling.
func (c *GFCalc) schurDiffusivity(omrot *taylor.Expansion, vr *mat.Dense) (*taylor.Expansion, *mat.Dense, error) {
	eta := mat.NewDense(c.n, 3, nil)
	if c.n == 1 {
		return omrot.Copy(), eta, nil
	}
	dd := omrot.Slice(0, 1, 0, 1)
	dr := omrot.Slice(0, 1, 1, c.n)
	rd := omrot.Slice(1, c.n, 0, 1)
	rr := omrot.Slice(1, c.n, 1, c.n)
	rrinv, err := rr.Inv()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: relaxive block: %v", ErrSingular, err)
	}
	dexp := dd.Sub(dr.Mul(rrinv).Mul(rd)).Truncate(taylor.Lmax)
	dexp.Reduce()

	etav := rrinv.Mul(rd).Truncate(1)
	etav.Reduce()
	for _, t := range etav.Terms() {
		if t.N != 1 {
			continue
		}
		for a := 0; a < 3; a++ {
			var ea [3]int
			ea[a] = 1
			ind := taylor.Pow2Ind(ea[0], ea[1], ea[2])
			if ind >= taylor.NPow(t.L) {
				continue
			}
			for i := 0; i < c.n; i++ {
				var s complex128
				for m := 0; m < c.n-1; m++ {
					s += complex(vr.At(i, m+1), 0) * t.C[ind*(c.n-1)+m]
				}
				eta.Set(i, a, eta.At(i, a)+imag(s))
			}
		}
	}
	return dexp, eta, nil
}

//blockInvert inverts the isotropized expansion about its second-order pole,
//truncating every piece at order zero (the residual mesh sum carries the
//rest).
func (c *GFCalc) blockInvert(omiso *taylor.Expansion) (*taylor.Expansion, error) {
	var drot, dr, rd, rrinv *taylor.Expansion
	if c.n == 1 {
		drot = omiso.Copy()
	} else {
		dd := omiso.Slice(0, 1, 0, 1)
		dr = omiso.Slice(0, 1, 1, c.n)
		rd = omiso.Slice(1, c.n, 0, 1)
		rr := omiso.Slice(1, c.n, 1, c.n)
		var err error
		rrinv, err = rr.Inv()
		if err != nil {
			return nil, fmt.Errorf("%w: relaxive block: %v", ErrSingular, err)
		}
		drot = dd.Sub(dr.Mul(rrinv).Mul(rd)).Truncate(taylor.Lmax)
		drot.Reduce()
	}
	nl := drot.NL()
	if len(nl) == 0 || nl[0][0] != 2 || nl[0][1] != 0 {
		return nil, fmt.Errorf("%w: isotropized diffusive block does not lead with an isotropic second-order term", ErrSingular)
	}
	dinv, err := drot.Inv()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	gdd := dinv.Truncate(0)
	if c.n == 1 {
		return gdd, nil
	}
	gdr := dinv.Mul(dr).Mul(rrinv).Scale(-1).Truncate(0)
	grd := rrinv.Mul(rd).Mul(dinv).Scale(-1).Truncate(0)
	grr := rrinv.Add(rrinv.Mul(rd).Mul(dinv).Mul(dr).Mul(rrinv)).Truncate(0)
	gt := taylor.NewExpansion(c.n, c.n)
	gt.InsertSlice(0, 0, gdd)
	gt.InsertSlice(0, 1, gdr)
	gt.InsertSlice(1, 0, grd)
	gt.InsertSlice(1, 1, grr)
	return gt, nil
}

//buildResidual computes, at every mesh point, the exact inverse hopping
//operator minus the cutoff Taylor evaluation. The zone center gets the
//regularized limit of the difference instead.
func (c *GFCalc) buildResidual(symmrate, escape []float64, gsite *taylor.Expansion, pqtrans *mat.Dense) error {
	pm2 := c.pmax * c.pmax
	c.gsc = make([][]complex128, c.n*c.n)
	for p := range c.gsc {
		c.gsc[p] = make([]complex128, len(c.kpts))
	}
	fnlp := func(n, l int, p float64) complex128 {
		return complex(math.Pow(p, float64(n))*math.Exp(-p*p/pm2), 0)
	}
	om := make([]complex128, c.n*c.n)
	for ki, k := range c.kpts {
		if k[0]*k[0]+k[1]*k[1]+k[2]*k[2] < 1e-20 {
			for i := 0; i < c.n; i++ {
				for j := 0; j < c.n; j++ {
					c.gsc[i*c.n+j][ki] = complex(-c.vzero[i]*c.vzero[j]/pm2, 0)
				}
			}
			continue
		}
		for e := range om {
			om[e] = 0
		}
		for jc := range c.network {
			sr := complex(symmrate[jc], 0)
			for e, v := range c.ftjumps[ki][jc] {
				om[e] += sr * v
			}
		}
		for i := 0; i < c.n; i++ {
			om[i*c.n+i] += complex(escape[i], 0)
		}
		ominv, err := taylor.CInverse(om, c.n)
		if err != nil {
			return fmt.Errorf("%w: hopping operator at k-point %d: %v", ErrSingular, ki, err)
		}
		var p [3]float64
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				p[a] += pqtrans.At(a, b) * k[b]
			}
		}
		gtv := gsite.Eval(p, fnlp)
		for e := 0; e < c.n*c.n; e++ {
			c.gsc[e][ki] = ominv[e] - gtv[e]
		}
	}
	return nil
}

//Diffusivity returns the physical 3x3 diffusivity extracted from the
//second-order term of the folded hopping operator.
func (c *GFCalc) Diffusivity() (*mat.Dense, error) {
	if !c.hasRates {
		return nil, ErrNoRates
	}
	return mat.DenseCopyOf(c.diff), nil
}

//BiasCorrection returns the n x 3 bias correction vectors (zero on a Bravais
//lattice or any network without relaxive first-order coupling).
func (c *GFCalc) BiasCorrection() (*mat.Dense, error) {
	if !c.hasRates {
		return nil, ErrNoRates
	}
	return mat.DenseCopyOf(c.eta), nil
}

//extractQuadratic reads the quadratic form of the second-order term of a 1x1
//expansion by evaluating it along axis and diagonal directions.
func extractQuadratic(dexp *taylor.Expansion) (*mat.Dense, error) {
	q := func(x [3]float64) (float64, error) {
		v := dexp.Eval(x, func(n, l int, r float64) complex128 {
			if n != 2 {
				return 0
			}
			return complex(r*r, 0)
		})
		if math.Abs(imag(v[0])) > imagTol*math.Max(1, math.Abs(real(v[0]))) {
			return 0, fmt.Errorf("%w: complex second-order coefficient %g", ErrComplexValue, imag(v[0]))
		}
		return real(v[0]), nil
	}
	out := mat.NewDense(3, 3, nil)
	var diag [3]float64
	for a := 0; a < 3; a++ {
		var x [3]float64
		x[a] = 1
		v, err := q(x)
		if err != nil {
			return nil, err
		}
		diag[a] = v
		out.Set(a, a, v)
	}
	for a := 0; a < 3; a++ {
		for b := a + 1; b < 3; b++ {
			var x [3]float64
			x[a], x[b] = 1, 1
			v, err := q(x)
			if err != nil {
				return nil, err
			}
			off := (v - diag[a] - diag[b]) / 2
			out.Set(a, b, off)
			out.Set(b, a, off)
		}
	}
	return out, nil
}

func matTranspose(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(c, r, nil)
	out.Copy(m.T())
	return out
}

func denseToSym(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return s
}
