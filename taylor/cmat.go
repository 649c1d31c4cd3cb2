package taylor

import (
	"fmt"
	"math/cmplx"
)

//Dense complex blocks stored flat, row-major. gonum's mat package has no
//complex inversion, so the few kernels needed here are written out directly.

func maxAbsC(c []complex128) float64 {
	m := 0.0
	for _, v := range c {
		if a := cmplx.Abs(v); a > m {
			m = a
		}
	}
	return m
}

//cMul returns the ra x cb product of an ra x ca block with a ca x cb block.
func cMul(a, b []complex128, ra, ca, cb int) []complex128 {
	out := make([]complex128, ra*cb)
	for i := 0; i < ra; i++ {
		for k := 0; k < ca; k++ {
			aik := a[i*ca+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < cb; j++ {
				out[i*cb+j] += aik * b[k*cb+j]
			}
		}
	}
	return out
}

//CInverse inverts a flat row-major n x n complex block; the calculator uses
//it to invert the hopping operator at every mesh point.
func CInverse(a []complex128, n int) ([]complex128, error) {
	return cInverse(a, n)
}

//cInverse inverts an n x n block by Gauss-Jordan elimination with partial
//pivoting. Returns an error when the block is singular to working precision.
func cInverse(a []complex128, n int) ([]complex128, error) {
	w := make([]complex128, n*n)
	copy(w, a)
	out := make([]complex128, n*n)
	for i := 0; i < n; i++ {
		out[i*n+i] = 1
	}
	for col := 0; col < n; col++ {
		piv := col
		best := cmplx.Abs(w[col*n+col])
		for r := col + 1; r < n; r++ {
			if v := cmplx.Abs(w[r*n+col]); v > best {
				best, piv = v, r
			}
		}
		if best < 1e-14 {
			return nil, fmt.Errorf("taylor: singular block in inversion (pivot %d)", col)
		}
		if piv != col {
			for j := 0; j < n; j++ {
				w[col*n+j], w[piv*n+j] = w[piv*n+j], w[col*n+j]
				out[col*n+j], out[piv*n+j] = out[piv*n+j], out[col*n+j]
			}
		}
		d := w[col*n+col]
		for j := 0; j < n; j++ {
			w[col*n+j] /= d
			out[col*n+j] /= d
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := w[r*n+col]
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				w[r*n+j] -= f * w[col*n+j]
				out[r*n+j] -= f * out[col*n+j]
			}
		}
	}
	return out, nil
}
