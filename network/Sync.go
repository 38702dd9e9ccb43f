package network

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// HardUpdate copies every parameter of source into target.
func HardUpdate(target, source Module) error {
	pairs, err := pair("hardUpdate", target, source)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		copy(p[0], p[1])
	}
	return nil
}

// SoftUpdate moves every parameter of target towards source:
//
//	target ← (1 - tau) * target + tau * source
//
// tau must lie in [0, 1]. With tau = 1 SoftUpdate is a HardUpdate and
// with tau = 0 target is left unchanged.
func SoftUpdate(target, source Module, tau float64) error {
	if tau < 0 || tau > 1 {
		return fmt.Errorf("softUpdate: tau must be in [0, 1], got %v", tau)
	}
	pairs, err := pair("softUpdate", target, source)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if tau == 1 {
			copy(p[0], p[1])
			continue
		}
		floats.Scale(1-tau, p[0])
		floats.AddScaled(p[0], tau, p[1])
	}
	return nil
}

// pair validates that target and source can be synchronized and
// returns their parameter data pairwise. No data is written.
func pair(op string, target, source Module) ([][2][]float64, error) {
	if t, ok := target.(Placeable); ok {
		if s, ok := source.(Placeable); ok {
			err := SameDevice(op, []string{"target", "source"}, t, s)
			if err != nil {
				return nil, err
			}
		}
	}

	tParams, sParams := target.Params(), source.Params()
	if len(tParams) != len(sParams) {
		return nil, Errorf(op, ArchitectureMismatch,
			"target has %v parameters, source has %v", len(tParams),
			len(sParams))
	}

	pairs := make([][2][]float64, len(tParams))
	for i := range tParams {
		if !tParams[i].Shape().Eq(sParams[i].Shape()) {
			return nil, Errorf(op, ArchitectureMismatch,
				"parameter %v: target %v has shape %v, source %v has shape %v",
				i, tParams[i].Name(), tParams[i].Shape(), sParams[i].Name(),
				sParams[i].Shape())
		}
		pairs[i] = [2][]float64{tParams[i].Data(), sParams[i].Data()}
	}
	return pairs, nil
}
