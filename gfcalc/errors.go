package gfcalc

import "errors"

//Sentinel errors classifying every failure mode of the calculator; returned
//errors wrap one of these so callers can dispatch with errors.Is.
var (
	//ErrBadNetwork flags an inconsistent construction input: a site list
	//that is not a partition of the sites, a jump referencing a site out of
	//range, or rate arrays of the wrong length.
	ErrBadNetwork = errors.New("gfcalc: invalid site list or jump network")

	//ErrNoEquilibrium flags rates whose hopping operator has no unique
	//zero mode at the zone center, or a non-positive diffusivity.
	ErrNoEquilibrium = errors.New("gfcalc: rates admit no unique equilibrium")

	//ErrSingular flags a singular block inversion during the
	//semicontinuum expansion.
	ErrSingular = errors.New("gfcalc: singular expansion block")

	//ErrComplexValue flags a Green function value whose imaginary part
	//failed to cancel, indicating an inconsistent mesh or rates.
	ErrComplexValue = errors.New("gfcalc: nonvanishing imaginary part")

	//ErrNoRates flags evaluation before SetRates.
	ErrNoRates = errors.New("gfcalc: rates not set")
)
