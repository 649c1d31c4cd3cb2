package gfcalc

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

//Evaluate returns the Green function between basis sites i and j separated by
//the Cartesian vector dx (which must include the basis offset). The value is
//the group average of the semicontinuum mesh sum plus the analytic pole
//correction, rescaled back to physical rates. Requires SetRates first.
func (c *GFCalc) Evaluate(i, j int, dx [3]float64) (float64, error) {
	if !c.hasRates {
		return 0, ErrNoRates
	}
	if i < 0 || i >= c.n || j < 0 || j >= c.n {
		return 0, fmt.Errorf("%w: site pair (%d,%d) out of range", ErrBadNetwork, i, j)
	}
	group := c.lat.Group()
	ng := complex(float64(len(group)), 0)

	var mesh complex128
	for _, op := range group {
		gi, gj := op.SiteMap[i], op.SiteMap[j]
		gdx := rotVec(op.Cart, dx)
		res := c.gsc[gi*c.n+gj]
		for ki, k := range c.kpts {
			ph := k[0]*gdx[0] + k[1]*gdx[1] + k[2]*gdx[2]
			mesh += complex(c.wts[ki], 0) * res[ki] * cmplx.Exp(complex(0, -ph))
		}
	}
	mesh /= ng
	if math.Abs(imag(mesh)) > imagTol*math.Max(1, math.Abs(real(mesh))) {
		return 0, fmt.Errorf("%w: mesh sum imaginary part %g", ErrComplexValue, imag(mesh))
	}

	var tay complex128
	for _, op := range group {
		gi, gj := op.SiteMap[i], op.SiteMap[j]
		gdx := rotVec(op.Cart, dx)
		var u [3]float64
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				u[a] += c.uxtrans.At(a, b) * gdx[b]
			}
		}
		tay += c.gtay[gi*c.n+gj].Eval(u, c.fnlU)[0]
	}
	tay /= ng
	if math.Abs(imag(tay)) > imagTol*math.Max(1, math.Abs(real(tay))) {
		return 0, fmt.Errorf("%w: pole correction imaginary part %g", ErrComplexValue, imag(tay))
	}

	return (real(mesh) + real(tay)) / c.maxrate, nil
}

func rotVec(m *mat.Dense, v [3]float64) [3]float64 {
	var out [3]float64
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			out[a] += m.At(a, b) * v[b]
		}
	}
	return out
}
