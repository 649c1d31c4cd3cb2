package gfcalc

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/lingtikong/Onsager/crystal"
)

const dumpVersion = 1

//dumpData is the persisted form of a calculator: the construction inputs plus
//the symmetry-reduced mesh, which is the expensive part of New. Rates are
//deliberately not stored; they must be re-assigned after Load.
type dumpData struct {
	Version  int          `json:"version"`
	Grid     [3]int       `json:"grid"`
	Kpts     [][3]float64 `json:"kpts"`
	Wts      []float64    `json:"wts"`
	Sitelist [][]int      `json:"sitelist"`
	Network  [][]Jump     `json:"network"`
}

//Dump writes the calculator's rate-independent state as zstd-compressed JSON.
func (c *GFCalc) Dump(w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("gfcalc: %w", err)
	}
	data := dumpData{
		Version:  dumpVersion,
		Grid:     c.grid,
		Kpts:     c.kpts,
		Wts:      c.wts,
		Sitelist: c.sitelist,
		Network:  c.network,
	}
	if err := json.NewEncoder(zw).Encode(&data); err != nil {
		zw.Close()
		return fmt.Errorf("gfcalc: %w", err)
	}
	return zw.Close()
}

//Load rebuilds a calculator from a Dump against the same lattice. The stored
//mesh is reused; the Fourier and Taylor tensors are recomputed from the jump
//network. SetRates must be called before evaluation.
func Load(lat *crystal.Lattice, r io.Reader) (*GFCalc, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gfcalc: %w", err)
	}
	defer zr.Close()
	var data dumpData
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("gfcalc: %w", err)
	}
	if data.Version != dumpVersion {
		return nil, fmt.Errorf("gfcalc: unsupported dump version %d", data.Version)
	}
	if lat == nil {
		return nil, fmt.Errorf("%w: nil lattice", ErrBadNetwork)
	}
	n := lat.NSites()
	invmap, err := checkSitelist(data.Sitelist, n)
	if err != nil {
		return nil, err
	}
	if len(data.Network) == 0 {
		return nil, fmt.Errorf("%w: empty jump network", ErrBadNetwork)
	}
	if len(data.Kpts) == 0 || len(data.Kpts) != len(data.Wts) {
		return nil, fmt.Errorf("%w: inconsistent stored mesh", ErrBadNetwork)
	}
	c := &GFCalc{
		CutoffTarget: 1e-7,
		lat:          lat,
		n:            n,
		sitelist:     data.Sitelist,
		invmap:       invmap,
		network:      data.Network,
		grid:         data.Grid,
		kpts:         data.Kpts,
		wts:          data.Wts,
	}
	c.pairs = make([][2]int, len(data.Network))
	for jc, jumps := range data.Network {
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
	c.ftjumps, c.sejumps = c.fourierTransformJumps()
	c.tjumps = c.taylorExpandJumps()
	return c, nil
}
