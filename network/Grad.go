package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// clipEps guards the clipping coefficient against vanishing norms
const clipEps = 1e-6

// GradNorm returns the global L2 norm of the accumulated gradients of
// params.
func GradNorm(params []*Param) float64 {
	var sq float64
	for _, p := range params {
		g := p.GradData()
		sq += floats.Dot(g, g)
	}
	return math.Sqrt(sq)
}

// ClipGradNorm rescales the accumulated gradients of params so that
// their global L2 norm does not exceed maxNorm. The norm before
// clipping is returned.
func ClipGradNorm(params []*Param, maxNorm float64) (float64, error) {
	if maxNorm <= 0 {
		return 0, fmt.Errorf("clipGradNorm: maxNorm must be positive, "+
			"got %v", maxNorm)
	}
	norm := GradNorm(params)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return norm, fmt.Errorf("clipGradNorm: non-finite gradient norm %v",
			norm)
	}

	coef := maxNorm / (norm + clipEps)
	if coef < 1 {
		for _, p := range params {
			floats.Scale(coef, p.GradData())
		}
	}
	return norm, nil
}

// ScaleGrads multiplies the accumulated gradients of params by factor
func ScaleGrads(params []*Param, factor float64) {
	for _, p := range params {
		floats.Scale(factor, p.GradData())
	}
}

// ZeroGrad clears the accumulated gradients of params
func ZeroGrad(params []*Param) {
	for _, p := range params {
		g := p.GradData()
		for i := range g {
			g[i] = 0
		}
	}
}

// ZeroNodeGrads clears the graph node gradients of params
func ZeroNodeGrads(params []*Param) {
	for _, p := range params {
		p.ZeroNodeGrad()
	}
}

// SharedParams returns the parameters of params flagged as shared
func SharedParams(params []*Param) []*Param {
	var shared []*Param
	for _, p := range params {
		if p.Shared() {
			shared = append(shared, p)
		}
	}
	return shared
}
