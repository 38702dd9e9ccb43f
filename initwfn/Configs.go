package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotUConfig{Gain: gain})
}

// Type implements the Config interface
func (g GlorotUConfig) Type() Type { return GlorotU }

// Create implements the Config interface
func (g GlorotUConfig) Create() G.InitWFn { return G.GlorotU(g.Gain) }

// Validate implements the Config interface
func (g GlorotUConfig) Validate() error { return positiveGain(g.Gain) }

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm.
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot Normal weight initializer.
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotNConfig{Gain: gain})
}

// Type implements the Config interface
func (g GlorotNConfig) Type() Type { return GlorotN }

// Create implements the Config interface
func (g GlorotNConfig) Create() G.InitWFn { return G.GlorotN(g.Gain) }

// Validate implements the Config interface
func (g GlorotNConfig) Validate() error { return positiveGain(g.Gain) }

// HeUConfig implements a configuration of the He Uniform
// initialization algorithm.
type HeUConfig struct {
	Gain float64
}

// NewHeU returns a new He Uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	return newInitWFn(HeUConfig{Gain: gain})
}

// Type implements the Config interface
func (h HeUConfig) Type() Type { return HeU }

// Create implements the Config interface
func (h HeUConfig) Create() G.InitWFn { return G.HeU(h.Gain) }

// Validate implements the Config interface
func (h HeUConfig) Validate() error { return positiveGain(h.Gain) }

// HeNConfig implements a configuration of the He Normal
// initialization algorithm.
type HeNConfig struct {
	Gain float64
}

// NewHeN returns a new He Normal weight initializer
func NewHeN(gain float64) (*InitWFn, error) {
	return newInitWFn(HeNConfig{Gain: gain})
}

// Type implements the Config interface
func (h HeNConfig) Type() Type { return HeN }

// Create implements the Config interface
func (h HeNConfig) Create() G.InitWFn { return G.HeN(h.Gain) }

// Validate implements the Config interface
func (h HeNConfig) Validate() error { return positiveGain(h.Gain) }

// UniformConfig implements a configuration of a weight initializer that
// draws weights from a uniform distribution
type UniformConfig struct {
	Low, High float64
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64) (*InitWFn, error) {
	return newInitWFn(UniformConfig{Low: low, High: high})
}

// Type implements the Config interface
func (u UniformConfig) Type() Type { return Uniform }

// Create implements the Config interface
func (u UniformConfig) Create() G.InitWFn { return G.Uniform(u.Low, u.High) }

// Validate implements the Config interface
func (u UniformConfig) Validate() error {
	if u.Low > u.High {
		return fmt.Errorf("uniform: low %v exceeds high %v", u.Low, u.High)
	}
	return nil
}

// GaussianConfig implements a configuration of a weight initializer
// that draws weights from a normal distribution
type GaussianConfig struct {
	Mean, StdDev float64
}

// NewGaussian returns a new Gaussian weight initializer
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	return newInitWFn(GaussianConfig{Mean: mean, StdDev: stddev})
}

// Type implements the Config interface
func (g GaussianConfig) Type() Type { return Gaussian }

// Create implements the Config interface
func (g GaussianConfig) Create() G.InitWFn {
	return G.Gaussian(g.Mean, g.StdDev)
}

// Validate implements the Config interface
func (g GaussianConfig) Validate() error {
	if g.StdDev < 0 {
		return fmt.Errorf("gaussian: negative standard deviation %v",
			g.StdDev)
	}
	return nil
}

// ZeroesConfig implements a configuration of a zero weight initializer
type ZeroesConfig struct{}

// NewZeroes returns a new zeroes weight intializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

// Type implements the Config interface
func (z ZeroesConfig) Type() Type { return Zeroes }

// Create implements the Config interface
func (z ZeroesConfig) Create() G.InitWFn { return G.Zeroes() }

// Validate implements the Config interface
func (z ZeroesConfig) Validate() error { return nil }

func positiveGain(gain float64) error {
	if gain <= 0 {
		return fmt.Errorf("gain must be positive, got %v", gain)
	}
	return nil
}
