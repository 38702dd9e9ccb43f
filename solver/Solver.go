// Package solver implements gradient based optimizers over network
// parameters, together with typed configurations that can be JSON
// serialized into configuration files and gob encoded into
// checkpoints.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/samuelfneumann/relsac/network"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Optimizer updates a fixed list of parameters from their accumulated
// gradients.
type Optimizer interface {
	// Step applies one update using the currently accumulated
	// gradients
	Step() error

	// ZeroGrad clears the accumulated gradients of every parameter
	// the Optimizer updates
	ZeroGrad()

	// State returns a deep copy of the Optimizer's internal state
	State() State

	// LoadState restores a state previously returned by State
	LoadState(State) error
}

// State is the serializable internal state of an Optimizer
type State struct {
	Type   Type
	Steps  int
	First  [][]float64 // First moment estimates, one per parameter
	Second [][]float64 // Second moment estimates, one per parameter
}

// Solver describes an Optimizer so that it can be JSON marshalled and
// unmarshalled.
type Solver struct {
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newSolver: %w", err)
	}
	return &Solver{Type: t, Config: c}, nil
}

// Create returns a new Optimizer of params as described by the Solver
func (s *Solver) Create(params []*network.Param) (Optimizer, error) {
	if s == nil || s.Config == nil {
		return nil, fmt.Errorf("create: no solver configuration")
	}
	return s.Config.Create(params)
}

// String implements the fmt.Stringer interface
func (s *Solver) String() string {
	return fmt.Sprintf("{%v Solver: %+v}", s.Type, s.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Vanilla): reflect.TypeOf(VanillaConfig{}),
			string(Adam):    reflect.TypeOf(AdamConfig{}),
		})
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("unmarshalJSON: %w", err)
	}

	s.Type = typeName
	s.Config = config
	return nil
}

// GobEncode implements the gob.GobEncoder interface
func (s *Solver) GobEncode() ([]byte, error) {
	return json.Marshal(s)
}

// GobDecode implements the gob.GobDecoder interface
func (s *Solver) GobDecode(data []byte) error {
	return s.UnmarshalJSON(data)
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := m[typeJsonField].(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalConfig: missing %v field",
			typeJsonField)
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalConfig: unknown solver type %q",
			typeName)
	}
	value := reflect.New(ty).Interface()

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}
	if err = json.Unmarshal(valueBytes, value); err != nil {
		return nil, "", err
	}
	concrete := reflect.ValueOf(value).Elem().Interface().(Config)

	return concrete, Type(typeName), nil
}

// Config implements an Optimizer configuration and can be used to
// create the Optimizers it describes.
type Config interface {
	// Create returns an Optimizer over params
	Create(params []*network.Param) (Optimizer, error)

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool

	// Validate returns an error describing an illegal hyperparameter
	Validate() error
}
