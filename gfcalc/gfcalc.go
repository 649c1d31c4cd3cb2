/*
Package gfcalc computes the lattice Green function of a vacancy (or any
single diffusing species) hopping on a periodic crystal.

The Green function is the pseudoinverse of the hopping operator. Its Fourier
transform carries a second-order pole at the zone center, so a plain mesh sum
never converges; the calculator splits the inverse into an analytically
transformable Taylor expansion around the pole (evaluated in real space
through confluent hypergeometric functions) and a short-ranged semicontinuum
remainder summed on a symmetry-reduced k-point mesh.

Construction (New) does all the rate-independent symmetry analysis; SetRates
assembles thermally activated rates and performs the expansion and inversion;
Evaluate returns G(i,j,dx) for site pair i,j separated by dx.
*/
package gfcalc

import (
	"fmt"
	"math"
	"strings"

	"github.com/lingtikong/Onsager/crystal"
	"github.com/lingtikong/Onsager/taylor"
	"gonum.org/v1/gonum/mat"
)

//A Jump is one transition of a jump class: from basis site I to basis site J
//displaced by the Cartesian vector Dx.
type Jump struct {
	I, J int
	Dx   [3]float64
}

//GFCalc computes lattice Green functions for one crystal plus jump network.
//Not safe for concurrent use.
type GFCalc struct {
	//CutoffTarget is the relative error target of the Gaussian cutoff at
	//the zone boundary; it sizes the split between the analytic pole part
	//and the mesh sum. Adjust before calling SetRates.
	CutoffTarget float64

	lat      *crystal.Lattice
	n        int
	sitelist [][]int
	invmap   []int
	network  [][]Jump
	pairs    [][2]int //Wyckoff pair per jump class

	grid    [3]int
	kpts    [][3]float64
	wts     []float64
	ftjumps [][][]complex128 //[kpt][class][i*n+j]
	sejumps [][]int          //[site][class] jump multiplicity
	tjumps  []*taylor.Expansion

	//everything below is rate-dependent state set by SetRates
	hasRates bool
	maxrate  float64
	diff     *mat.Dense //physical diffusivity, 3x3
	eta      *mat.Dense //bias correction, n x 3
	pmax     float64
	detd     float64
	uxtrans  *mat.Dense
	vzero    []float64            //equilibrium zero mode
	gsc      [][]complex128       //[i*n+j][kpt] semicontinuum residual
	gtay     []*taylor.Expansion  //[i*n+j] separated 1x1 pole expansions
}

//New runs the rate-independent setup: the k-point mesh, the Fourier transform
//and Taylor expansion of every jump class, and the jump multiplicity table.
//sitelist partitions the basis sites into Wyckoff classes; nmax sets the
//linear k-point density.
func New(lat *crystal.Lattice, sitelist [][]int, network [][]Jump, nmax int) (*GFCalc, error) {
	if lat == nil {
		return nil, fmt.Errorf("%w: nil lattice", ErrBadNetwork)
	}
	n := lat.NSites()
	invmap, err := checkSitelist(sitelist, n)
	if err != nil {
		return nil, err
	}
	if len(network) == 0 {
		return nil, fmt.Errorf("%w: empty jump network", ErrBadNetwork)
	}
	c := &GFCalc{
		CutoffTarget: 1e-7,
		lat:          lat,
		n:            n,
		sitelist:     sitelist,
		invmap:       invmap,
		network:      network,
	}
	c.pairs = make([][2]int, len(network))
	for jc, jumps := range network {
		if len(jumps) == 0 {
			return nil, fmt.Errorf("%w: empty jump class %d", ErrBadNetwork, jc)
		}
		for _, jmp := range jumps {
			if jmp.I < 0 || jmp.I >= n || jmp.J < 0 || jmp.J >= n {
				return nil, fmt.Errorf("%w: jump class %d references site out of range", ErrBadNetwork, jc)
			}
		}
		c.pairs[jc] = [2]int{invmap[jumps[0].I], invmap[jumps[0].J]}
	}
	if nmax < 1 {
		return nil, fmt.Errorf("%w: nmax must be positive", ErrBadNetwork)
	}
	c.grid = lat.KptGrid(nmax)
	c.kpts, c.wts = lat.KptMesh(c.grid)
	c.ftjumps, c.sejumps = c.fourierTransformJumps()
	c.tjumps = c.taylorExpandJumps()
	return c, nil
}

func checkSitelist(sitelist [][]int, n int) ([]int, error) {
	invmap := make([]int, n)
	for i := range invmap {
		invmap[i] = -1
	}
	for w, sites := range sitelist {
		for _, s := range sites {
			if s < 0 || s >= n {
				return nil, fmt.Errorf("%w: site %d out of range", ErrBadNetwork, s)
			}
			if invmap[s] != -1 {
				return nil, fmt.Errorf("%w: site %d listed twice", ErrBadNetwork, s)
			}
			invmap[s] = w
		}
	}
	for s, w := range invmap {
		if w == -1 {
			return nil, fmt.Errorf("%w: site %d missing from site list", ErrBadNetwork, s)
		}
	}
	return invmap, nil
}

//fourierTransformJumps builds, for every k-point and jump class, the plane
//wave sum over the jumps as an n x n block, and counts the jumps leaving each
//site (the escape multiplicities).
func (c *GFCalc) fourierTransformJumps() ([][][]complex128, [][]int) {
	ft := make([][][]complex128, len(c.kpts))
	for ki, k := range c.kpts {
		ft[ki] = make([][]complex128, len(c.network))
		for jc, jumps := range c.network {
			blk := make([]complex128, c.n*c.n)
			for _, jmp := range jumps {
				ph := k[0]*jmp.Dx[0] + k[1]*jmp.Dx[1] + k[2]*jmp.Dx[2]
				blk[jmp.I*c.n+jmp.J] += complex(math.Cos(ph), math.Sin(ph))
			}
			ft[ki][jc] = blk
		}
	}
	se := make([][]int, c.n)
	for i := range se {
		se[i] = make([]int, len(c.network))
	}
	for jc, jumps := range c.network {
		for _, jmp := range jumps {
			se[jmp.I][jc]++
		}
	}
	return ft, se
}

//taylorExpandJumps expands the same plane wave sums around the zone center:
//order n picks up (i k.dx)^n/n!, distributed over the degree-n monomials by
//the multinomial coefficients.
func (c *GFCalc) taylorExpandJumps() []*taylor.Expansion {
	ipow := [4]complex128{1, 1i, -1, -1i}
	fact := 1.0
	out := make([]*taylor.Expansion, len(c.network))
	for jc, jumps := range c.network {
		e := taylor.NewExpansion(c.n, c.n)
		fact = 1
		for nn := 0; nn <= taylor.Lmax; nn++ {
			if nn > 0 {
				fact *= float64(nn)
			}
			pre := ipow[nn%4] / complex(fact, 0)
			coeff := taylor.PowerCoeff(nn)
			blk := make([]complex128, taylor.NPow(nn)*c.n*c.n)
			for _, jmp := range jumps {
				pxp, _ := taylor.PowExp(jmp.Dx, false)
				for p := 0; p < taylor.NPow(nn); p++ {
					if coeff[p] == 0 {
						continue
					}
					blk[(p*c.n+jmp.I)*c.n+jmp.J] += pre * complex(coeff[p]*pxp[p], 0)
				}
			}
			if err := e.AddTerm(nn, nn, blk); err != nil {
				panic(err)
			}
		}
		out[jc] = e
	}
	return out
}

//NSites returns the number of basis sites.
func (c *GFCalc) NSites() int { return c.n }

//KptGrid returns the mesh divisions along the three reciprocal vectors.
func (c *GFCalc) KptGrid() [3]int { return c.grid }

//NKpt returns the number of irreducible k-points.
func (c *GFCalc) NKpt() int { return len(c.kpts) }

func (c *GFCalc) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GFCalc: %d sites in %d Wyckoff classes, %d jump classes\n",
		c.n, len(c.sitelist), len(c.network))
	fmt.Fprintf(&b, "kpt grid: %d x %d x %d (%d irreducible)",
		c.grid[0], c.grid[1], c.grid[2], len(c.kpts))
	if c.hasRates {
		fmt.Fprintf(&b, "\nmax rate: %g", c.maxrate)
	}
	return b.String()
}
