package gfcalc

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

//fnlU is the real-space transform of the Gaussian-cutoff kernel p^n
//exp(-(p/pmax)^2) for angular momentum l, evaluated at |u|. It carries the
//Jacobian of the principal-axis transform (volume over sqrt of the
//diffusivity eigenvalue product) and the (-i)^l phase of the inverse
//transform of an l-harmonic.
func (c *GFCalc) fnlU(n, l int, u float64) complex128 {
	a := 0.5 * float64(3+l+n)
	b := 1.5 + float64(l)
	pre := c.lat.Volume() / math.Sqrt(c.detd) *
		math.Pow(c.pmax, float64(3+n+l)) * math.Gamma(a) /
		(math.Pow(math.Pi, 1.5) * math.Pow(2, float64(3+l)) * math.Gamma(b))
	x := u * c.pmax / 2
	v := pre * math.Pow(u, float64(l)) * hyp1F1(a, b, -x*x)
	switch l % 4 {
	case 0:
		return complex(v, 0)
	case 1:
		return complex(0, -v)
	case 2:
		return complex(-v, 0)
	default:
		return complex(0, v)
	}
}

//hyp1F1 evaluates the confluent hypergeometric function M(a;b;x) for x <= 0
//and b > a > 0, the regime the cutoff transforms live in. The Kummer
//transform M(a;b;x) = e^x M(b-a;b;-x) turns the alternating series into an
//all-positive one, so there is no cancellation to lose digits to.
func hyp1F1(a, b, x float64) float64 {
	z := -x
	if z < 1e-14 {
		return 1
	}
	if a == b {
		return math.Exp(-z)
	}
	if math.Abs(b-a-1) < 1e-12 {
		//closed form through the regularized lower incomplete gamma:
		//M(a;a+1;-z) = a z^-a gamma(a,z)
		return a * math.Gamma(a) * mathext.GammaIncReg(a, z) / math.Pow(z, a)
	}
	cc := b - a
	if z > 650 {
		//leading asymptotic of e^-z M(c;b;z); the series term count and
		//e^z would overflow first
		return math.Gamma(b) / math.Gamma(cc) * math.Pow(z, cc-b)
	}
	term := 1.0
	sum := 1.0
	for k := 0; k < 1000; k++ {
		term *= (cc + float64(k)) * z / ((b + float64(k)) * float64(k+1))
		sum += term
		if term < 1e-16*sum {
			break
		}
	}
	return math.Exp(-z) * sum
}
