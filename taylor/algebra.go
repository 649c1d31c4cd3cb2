package taylor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

//projectCoeff decomposes a monomial coefficient block (np monomial rows of
//rows x cols blocks, representing a function on the unit sphere) into its pure
//angular momentum components with l <= Lmax. Components smaller than reduceTol
//relative to the largest one are dropped, as are any l > Lmax (which only
//arise as the discarded tail of high-degree products).
func projectCoeff(c []complex128, np, rows, cols int) map[int][]complex128 {
	bs := rows * cols
	amps := make([][]complex128, len(basisV))
	scale := 0.0
	for k := range basisV {
		w := basisW[k]
		a := make([]complex128, bs)
		nonzero := false
		for p := 0; p < np; p++ {
			wp := w[p]
			if wp == 0 {
				continue
			}
			for e := 0; e < bs; e++ {
				if v := c[p*bs+e]; v != 0 {
					a[e] += complex(wp, 0) * v
					nonzero = true
				}
			}
		}
		if nonzero {
			amps[k] = a
			if m := maxAbsC(a); m > scale {
				scale = m
			}
		}
	}
	out := make(map[int][]complex128)
	if scale == 0 {
		return out
	}
	for k, a := range amps {
		if a == nil || maxAbsC(a) < reduceTol*scale {
			continue
		}
		l := basisL[k]
		if l > Lmax {
			continue
		}
		dst, ok := out[l]
		if !ok {
			dst = make([]complex128, powcount[l]*bs)
			out[l] = dst
		}
		v := basisV[k]
		for p := 0; p < powcount[l]; p++ {
			vp := v[p]
			if vp == 0 {
				continue
			}
			for e := 0; e < bs; e++ {
				dst[p*bs+e] += complex(vp, 0) * a[e]
			}
		}
	}
	return out
}

//addProjected projects a raw coefficient block of a given order and merges the
//surviving angular components into the expansion as a single term.
func (T *Expansion) addProjected(n, np int, c []complex128) {
	bs := T.rows * T.cols
	parts := projectCoeff(c, np, T.rows, T.cols)
	lmax := -1
	for l := range parts {
		if l > lmax {
			lmax = l
		}
	}
	if lmax < 0 {
		return
	}
	merged := make([]complex128, powcount[lmax]*bs)
	for l, part := range parts {
		for p := 0; p < powcount[l]; p++ {
			for e := 0; e < bs; e++ {
				merged[p*bs+e] += part[p*bs+e]
			}
		}
	}
	T.addTerm(term{n: n, l: lmax, c: merged})
}

//Reduce collapses the expansion in place: terms of equal order are combined
//and re-expressed through their exact angular momentum decomposition, dropping
//negligible components entirely. A term that reduces away (an exactly zero
//matrix, like the q=0 term of a Bravais hopping operator) is removed.
func (T *Expansion) Reduce() {
	bs := T.rows * T.cols
	floor := reduceTol * T.MaxAbs()
	old := T.terms
	T.terms = nil
	for i := 0; i < len(old); {
		n := old[i].n
		lmax := 0
		j := i
		for ; j < len(old) && old[j].n == n; j++ {
			if old[j].l > lmax {
				lmax = old[j].l
			}
		}
		c := make([]complex128, powcount[lmax]*bs)
		for k := i; k < j; k++ {
			copyAdd(c, old[k].c)
		}
		//roundoff residue of exact cancellations (the zone-center term of
		//a Bravais hopping operator) must not survive as a spurious order
		if maxAbsC(c) > floor {
			T.addProjected(n, powcount[lmax], c)
		}
		i = j
	}
}

//Separate is like Reduce but leaves every pure angular momentum contribution
//as its own (n,l) term, which is what evaluation against l-dependent radial
//kernels requires.
func (T *Expansion) Separate() {
	bs := T.rows * T.cols
	floor := reduceTol * T.MaxAbs()
	old := T.terms
	T.terms = nil
	for i := 0; i < len(old); {
		n := old[i].n
		lmax := 0
		j := i
		for ; j < len(old) && old[j].n == n; j++ {
			if old[j].l > lmax {
				lmax = old[j].l
			}
		}
		c := make([]complex128, powcount[lmax]*bs)
		for k := i; k < j; k++ {
			copyAdd(c, old[k].c)
		}
		if maxAbsC(c) > floor {
			for l, part := range projectCoeff(c, powcount[lmax], T.rows, T.cols) {
				T.addTermNoMerge(term{n: n, l: l, c: part})
			}
		}
		i = j
	}
}

func copyAdd(dst, src []complex128) {
	for i, v := range src {
		dst[i] += v
	}
}

//addTermNoMerge inserts keeping (n,l) sort order without combining terms of
//equal order; only Separate needs this.
func (T *Expansion) addTermNoMerge(t term) {
	pos := len(T.terms)
	for i := range T.terms {
		if T.terms[i].n > t.n || (T.terms[i].n == t.n && T.terms[i].l > t.l) {
			pos = i
			break
		}
	}
	T.terms = append(T.terms, term{})
	copy(T.terms[pos+1:], T.terms[pos:])
	T.terms[pos] = t
}

//Mul returns the product expansion T*B: orders add, coefficient blocks are
//matrix-multiplied, and the angular polynomials are multiplied exactly (up to
//monomial degree 2*Lmax) and projected back onto l <= Lmax.
func (T *Expansion) Mul(B *Expansion) *Expansion {
	if T.cols != B.rows {
		panic("taylor: Mul dimension mismatch")
	}
	out := NewExpansion(T.rows, B.cols)
	obs := T.rows * B.cols
	for _, ta := range T.terms {
		for _, tb := range B.terms {
			ltot := ta.l + tb.l
			np := powcount[ltot]
			buf := make([]complex128, np*obs)
			for pa := 0; pa < powcount[ta.l]; pa++ {
				ablock := ta.c[pa*T.rows*T.cols : (pa+1)*T.rows*T.cols]
				pwa := ind2pow[pa]
				for pb := 0; pb < powcount[tb.l]; pb++ {
					bblock := tb.c[pb*B.rows*B.cols : (pb+1)*B.rows*B.cols]
					pwb := ind2pow[pb]
					prod := cMul(ablock, bblock, T.rows, T.cols, B.cols)
					tgt := pow2ind[pwa[0]+pwb[0]][pwa[1]+pwb[1]][pwa[2]+pwb[2]]
					copyAdd(buf[tgt*obs:(tgt+1)*obs], prod)
				}
			}
			if ltot <= Lmax {
				out.addTerm(term{n: ta.n + tb.n, l: ltot, c: buf})
			} else {
				out.addProjected(ta.n+tb.n, np, buf)
			}
		}
	}
	return out
}

//LDot returns m*T for a constant real matrix m, applied to every coefficient
//block; used to rotate the site basis.
func (T *Expansion) LDot(m *mat.Dense) *Expansion {
	mr, mc := m.Dims()
	if mc != T.rows {
		panic("taylor: LDot dimension mismatch")
	}
	out := NewExpansion(mr, T.cols)
	for _, t := range T.terms {
		np := powcount[t.l]
		c := make([]complex128, np*mr*T.cols)
		for p := 0; p < np; p++ {
			for i := 0; i < mr; i++ {
				for j := 0; j < T.cols; j++ {
					var s complex128
					for k := 0; k < T.rows; k++ {
						s += complex(m.At(i, k), 0) * t.c[(p*T.rows+k)*T.cols+j]
					}
					c[(p*mr+i)*T.cols+j] = s
				}
			}
		}
		out.terms = append(out.terms, term{n: t.n, l: t.l, c: c})
	}
	return out
}

//RDot returns T*m for a constant real matrix m.
func (T *Expansion) RDot(m *mat.Dense) *Expansion {
	mr, mc := m.Dims()
	if mr != T.cols {
		panic("taylor: RDot dimension mismatch")
	}
	out := NewExpansion(T.rows, mc)
	for _, t := range T.terms {
		np := powcount[t.l]
		c := make([]complex128, np*T.rows*mc)
		for p := 0; p < np; p++ {
			for i := 0; i < T.rows; i++ {
				for j := 0; j < mc; j++ {
					var s complex128
					for k := 0; k < T.cols; k++ {
						s += t.c[(p*T.rows+i)*T.cols+k] * complex(m.At(k, j), 0)
					}
					c[(p*T.rows+i)*mc+j] = s
				}
			}
		}
		out.terms = append(out.terms, term{n: t.n, l: t.l, c: c})
	}
	return out
}

//Inv computes the formal inverse of a square expansion whose leading (lowest
//order) term is a constant (l=0) invertible block, carried to relative order
//Lmax. The inverse of a leading order n0 starts at order -n0; inverting the
//diffusivity expansion (n0=2) is what produces the second-order pole. A
//singular or angular-dependent leading block is an error: the supplied rates
//admit no equilibrium inversion.
func (T *Expansion) Inv() (*Expansion, error) {
	if T.rows != T.cols {
		return nil, fmt.Errorf("taylor: Inv of a %dx%d block expansion", T.rows, T.cols)
	}
	A := T.Copy()
	A.Reduce()
	if A.IsZero() {
		return nil, fmt.Errorf("taylor: Inv of a zero expansion")
	}
	lead := A.terms[0]
	if lead.l != 0 {
		return nil, fmt.Errorf("taylor: leading order n=%d of inversion has angular dependence l=%d", lead.n, lead.l)
	}
	a0inv, err := cInverse(lead.c, T.rows)
	if err != nil {
		return nil, err
	}
	linv := NewExpansion(T.rows, T.cols)
	linv.terms = []term{{n: -lead.n, l: 0, c: a0inv}}
	if len(A.terms) == 1 {
		return linv, nil
	}
	rest := NewExpansion(T.rows, T.cols)
	rest.terms = A.terms[1:]
	y := linv.Mul(rest) //orders >= 1
	ident := NewExpansion(T.rows, T.cols)
	ic := make([]complex128, T.rows*T.cols)
	for i := 0; i < T.rows; i++ {
		ic[i*T.cols+i] = 1
	}
	ident.terms = []term{{n: 0, l: 0, c: ic}}
	sum := ident.Copy()
	pow := ident
	sign := complex(-1, 0)
	for k := 1; k <= Lmax; k++ {
		pow = pow.Mul(y).Truncate(Lmax)
		pow.Reduce()
		if pow.IsZero() {
			break
		}
		sum = sum.Add(pow.Scale(sign))
		sign = -sign
	}
	out := sum.Mul(linv).Truncate(Lmax - lead.n)
	out.Reduce()
	return out, nil
}

//IRotate substitutes q -> m*q in place, re-expressing every term in the new
//coordinates. m need not be orthogonal (the principal-axis transform carries a
//1/sqrt(eigenvalue) scaling), so each term is first homogenized to a pure
//degree-n polynomial, which requires l <= n with matching parity; expansions
//carrying a pole cannot be rotated.
func (T *Expansion) IRotate(m *mat.Dense) error {
	bs := T.rows * T.cols
	for ti, t := range T.terms {
		if t.n < 0 || t.n > Lmax {
			return fmt.Errorf("taylor: cannot rotate term of order %d", t.n)
		}
		//homogenize to degree n
		hom := make([]complex128, powcount[t.n]*bs)
		for p := 0; p < powcount[t.l]; p++ {
			zero := true
			for e := 0; e < bs; e++ {
				if t.c[p*bs+e] != 0 {
					zero = false
					break
				}
			}
			if zero {
				continue
			}
			pw := ind2pow[p]
			d := pw[0] + pw[1] + pw[2]
			if (t.n-d)%2 != 0 || d > t.n {
				return fmt.Errorf("taylor: order %d term carries a degree %d monomial; cannot homogenize", t.n, d)
			}
			k := (t.n - d) / 2
			for i := 0; i <= k; i++ {
				for j := 0; j <= k-i; j++ {
					w := k - i - j
					mult := factorial(k) / (factorial(i) * factorial(j) * factorial(w))
					tgt := pow2ind[pw[0]+2*i][pw[1]+2*j][pw[2]+2*w]
					for e := 0; e < bs; e++ {
						hom[tgt*bs+e] += complex(mult, 0) * t.c[p*bs+e]
					}
				}
			}
		}
		//substitute the linear transform monomial by monomial
		res := make([]complex128, powcount[t.n]*bs)
		for s := 0; s < powcount[t.n]; s++ {
			zero := true
			for e := 0; e < bs; e++ {
				if hom[s*bs+e] != 0 {
					zero = false
					break
				}
			}
			if zero {
				continue
			}
			pw := ind2pow[s]
			if pw[0]+pw[1]+pw[2] != t.n {
				continue
			}
			poly := map[int]float64{0: 1}
			for axis := 0; axis < 3; axis++ {
				for rep := 0; rep < pw[axis]; rep++ {
					next := make(map[int]float64, 3*len(poly))
					for p, f := range poly {
						ppw := ind2pow[p]
						for j := 0; j < 3; j++ {
							mj := m.At(axis, j)
							if mj == 0 {
								continue
							}
							var npw [3]int = ppw
							npw[j]++
							next[pow2ind[npw[0]][npw[1]][npw[2]]] += f * mj
						}
					}
					poly = next
				}
			}
			for tgt, f := range poly {
				for e := 0; e < bs; e++ {
					res[tgt*bs+e] += complex(f, 0) * hom[s*bs+e]
				}
			}
		}
		T.terms[ti] = term{n: t.n, l: t.n, c: res}
	}
	return nil
}

//Eval computes the expansion value at x as a flat rows*cols block. The radial
//function fnl(n, l, |x|) stands in for |x|^n; passing a cutoff kernel or its
//real-space transform evaluates the regularized pieces of the Green function.
//Terms should be pure angular momentum (Separate) when fnl depends on l.
func (T *Expansion) Eval(x [3]float64, fnl func(n, l int, r float64) complex128) []complex128 {
	bs := T.rows * T.cols
	out := make([]complex128, bs)
	ux, magn := PowExp(x, true)
	for _, t := range T.terms {
		f := fnl(t.n, t.l, magn)
		if f == 0 {
			continue
		}
		for p := 0; p < powcount[t.l]; p++ {
			up := ux[p]
			if up == 0 {
				continue
			}
			for e := 0; e < bs; e++ {
				out[e] += f * complex(up, 0) * t.c[p*bs+e]
			}
		}
	}
	return out
}
