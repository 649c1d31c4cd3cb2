package crystal

import "math"

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func add(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

//BZG returns the Voronoi-relevant reciprocal lattice vectors: the set of G
//whose perpendicular bisector planes bound the Wigner-Seitz Brillouin zone.
//Candidates up to two cells out cover any reasonable cell shape.
func (l *Lattice) BZG() [][3]float64 {
	var cand [][3]float64
	for i := -2; i <= 2; i++ {
		for j := -2; j <= 2; j++ {
			for k := -2; k <= 2; k++ {
				if i == 0 && j == 0 && k == 0 {
					continue
				}
				var g [3]float64
				for a := 0; a < 3; a++ {
					g[a] = l.recip.At(a, 0)*float64(i) + l.recip.At(a, 1)*float64(j) + l.recip.At(a, 2)*float64(k)
				}
				cand = append(cand, g)
			}
		}
	}
	var out [][3]float64
	for gi, g := range cand {
		h := [3]float64{g[0] / 2, g[1] / 2, g[2] / 2}
		h2 := dot(h, h)
		keep := true
		for gj, g2 := range cand {
			if gj == gi {
				continue
			}
			d := sub(h, g2)
			if dot(d, d) < h2-geomTol {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, g)
		}
	}
	return out
}

//KptGrid sizes an even Monkhorst-Pack-style grid from a linear density Nmax:
//each direction gets divisions proportional to its reciprocal vector length
//(normalized by the geometric mean), rounded up to an even count so the grid
//contains the zone center and the zone boundary symmetrically.
func (l *Lattice) KptGrid(nmax int) [3]int {
	var bn [3]float64
	prod := 1.0
	for i := 0; i < 3; i++ {
		b := [3]float64{l.recip.At(0, i), l.recip.At(1, i), l.recip.At(2, i)}
		bn[i] = math.Sqrt(dot(b, b))
		prod *= bn[i]
	}
	gm := math.Cbrt(prod)
	var grid [3]int
	for i := 0; i < 3; i++ {
		grid[i] = 2 * int(math.Ceil(2*float64(nmax)*bn[i]/gm))
	}
	return grid
}

//FullKptMesh returns all grid[0]*grid[1]*grid[2] k-points in Cartesian
//coordinates, folded into the Wigner-Seitz Brillouin zone. The zone center is
//always a member.
func (l *Lattice) FullKptMesh(grid [3]int) [][3]float64 {
	bzg := l.BZG()
	pts := make([][3]float64, 0, grid[0]*grid[1]*grid[2])
	for m0 := 0; m0 < grid[0]; m0++ {
		for m1 := 0; m1 < grid[1]; m1++ {
			for m2 := 0; m2 < grid[2]; m2++ {
				f := [3]float64{
					meshFrac(m0, grid[0]),
					meshFrac(m1, grid[1]),
					meshFrac(m2, grid[2]),
				}
				var k [3]float64
				for a := 0; a < 3; a++ {
					for b := 0; b < 3; b++ {
						k[a] += l.recip.At(a, b) * f[b]
					}
				}
				pts = append(pts, foldBZ(k, bzg))
			}
		}
	}
	return pts
}

//meshFrac maps the grid index m to a fraction in (-1/2, 1/2].
func meshFrac(m, n int) float64 {
	f := float64(m) / float64(n)
	if f > 0.5+geomTol {
		f -= 1
	}
	return f
}

//foldBZ translates k by reciprocal vectors until it lies inside the
//Wigner-Seitz zone (k.G <= G.G/2 for every boundary G), then canonicalizes
//points sitting exactly on a zone face onto the positive side so symmetry
//images of boundary points land on the same representative.
func foldBZ(k [3]float64, bzg [][3]float64) [3]float64 {
	for iter := 0; iter < 64; iter++ {
		worst := -1
		wv := geomTol
		for gi, g := range bzg {
			if v := dot(k, g) - dot(g, g)/2; v > wv {
				wv, worst = v, gi
			}
		}
		if worst < 0 {
			break
		}
		k = sub(k, bzg[worst])
	}
	for iter := 0; iter < 16; iter++ {
		moved := false
		for _, g := range bzg {
			if math.Abs(dot(k, g)+dot(g, g)/2) < geomTol {
				k = add(k, g)
				moved = true
				break
			}
		}
		if !moved {
			break
		}
	}
	return k
}

func meshKey(k [3]float64) [3]int64 {
	const scale = 1e6
	return [3]int64{
		int64(math.Round(k[0] * scale)),
		int64(math.Round(k[1] * scale)),
		int64(math.Round(k[2] * scale)),
	}
}

func keyLess(a, b [3]int64) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

//KptMesh returns the point-group reduced mesh for the grid: one representative
//per orbit with weight count/N, so the weights sum to one.
func (l *Lattice) KptMesh(grid [3]int) (pts [][3]float64, wts []float64) {
	full := l.FullKptMesh(grid)
	n := len(full)
	seen := make(map[[3]int64]int, n)
	var cnt []int
	for _, k := range full {
		canon := meshKey(k)
		for _, op := range l.group {
			var img [3]float64
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					img[a] += op.Cart.At(a, b) * k[b]
				}
			}
			if key := meshKey(img); keyLess(canon, key) {
				canon = key
			}
		}
		if i, ok := seen[canon]; ok {
			cnt[i]++
		} else {
			seen[canon] = len(pts)
			pts = append(pts, k)
			cnt = append(cnt, 1)
		}
	}
	wts = make([]float64, len(cnt))
	for i, c := range cnt {
		wts[i] = float64(c) / float64(n)
	}
	return pts, wts
}
