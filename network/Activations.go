package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

type activationType string

const (
	relu      activationType = "relu"
	leakyReLU activationType = "leakyrelu"
	identity  activationType = "identity"
	tanh      activationType = "tanh"
)

// leakySlope is the negative slope of LeakyReLU activations
const leakySlope = 0.01

// Activation represents an activation function type
type Activation struct {
	activationType
	f func(x *G.Node) (*G.Node, error)
}

func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// String implements the fmt.Stringer interface
func (a *Activation) String() string {
	return string(a.activationType)
}

// IsIdentity returns whether or not the Activation is the identity
// function.
func (a *Activation) IsIdentity() bool {
	return a.activationType == identity
}

// GobEncode implements the GobEncoder interface
func (a *Activation) GobEncode() ([]byte, error) {
	return []byte(a.activationType), nil
}

// GobDecode implements the GobDecoder interface
func (a *Activation) GobDecode(encoded []byte) error {
	act, err := ParseActivation(string(encoded))
	if err != nil {
		return fmt.Errorf("gobDecode: %w", err)
	}
	*a = *act
	return nil
}

// ParseActivation returns the Activation with the given name
func ParseActivation(name string) (*Activation, error) {
	switch activationType(name) {
	case relu:
		return ReLU(), nil
	case leakyReLU:
		return LeakyReLU(), nil
	case identity:
		return Identity(), nil
	case tanh:
		return TanH(), nil
	}
	return nil, fmt.Errorf("parseActivation: illegal activation %q", name)
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{activationType: relu, f: G.Rectify}
}

// LeakyReLU returns a leaky ReLU *Activation with negative slope 0.01
func LeakyReLU() *Activation {
	return &Activation{
		activationType: leakyReLU,
		f: func(x *G.Node) (*G.Node, error) {
			return G.LeakyRelu(x, leakySlope)
		},
	}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{activationType: tanh, f: G.Tanh}
}
