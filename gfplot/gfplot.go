//Package gfplot renders Green function decay curves with gonum/plot.
package gfplot

import (
	"fmt"
	"math"

	"github.com/lingtikong/Onsager/gfcalc"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

//Decay plots -G(i,j,R) for site pair (i,j) against |R| along the direction
//dir, at npts evenly spaced separations up to rmax. The sign flip keeps the
//curve positive (the lattice Green function is negative definite).
func Decay(c *gfcalc.GFCalc, i, j int, dir [3]float64, rmax float64, npts int) (*plot.Plot, error) {
	if npts < 2 {
		return nil, fmt.Errorf("gfplot: need at least 2 points")
	}
	norm := math.Sqrt(dir[0]*dir[0] + dir[1]*dir[1] + dir[2]*dir[2])
	if norm == 0 {
		return nil, fmt.Errorf("gfplot: zero direction")
	}
	u := [3]float64{dir[0] / norm, dir[1] / norm, dir[2] / norm}
	pts := make(plotter.XYs, 0, npts)
	for k := 0; k < npts; k++ {
		r := rmax * float64(k) / float64(npts-1)
		g, err := c.Evaluate(i, j, [3]float64{r * u[0], r * u[1], r * u[2]})
		if err != nil {
			return nil, err
		}
		pts = append(pts, plotter.XY{X: r, Y: -g})
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Green function decay, sites (%d,%d)", i, j)
	p.X.Label.Text = "|R|"
	p.Y.Label.Text = "-G"
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("gfplot: %w", err)
	}
	p.Add(line, plotter.NewGrid())
	return p, nil
}

//Save writes the plot as a 15x10 cm image; the format follows the file
//extension (png, pdf, svg).
func Save(p *plot.Plot, path string) error {
	return p.Save(15*vg.Centimeter, 10*vg.Centimeter, path)
}
