// Package initwfn implements functionality to wrap Gorgonia InitWFn
// so that they can be JSON serialized into configuration files and gob
// encoded into checkpoints.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	HeU      Type = "HeU"
	HeN      Type = "HeN"
	Uniform  Type = "Uniform"
	Gaussian Type = "Gaussian"
	Zeroes   Type = "Zeroes"
)

var configTypes = map[string]reflect.Type{
	string(GlorotU):  reflect.TypeOf(GlorotUConfig{}),
	string(GlorotN):  reflect.TypeOf(GlorotNConfig{}),
	string(HeU):      reflect.TypeOf(HeUConfig{}),
	string(HeN):      reflect.TypeOf(HeNConfig{}),
	string(Uniform):  reflect.TypeOf(UniformConfig{}),
	string(Gaussian): reflect.TypeOf(GaussianConfig{}),
	string(Zeroes):   reflect.TypeOf(ZeroesConfig{}),
}

// InitWFn wraps Gorgonia InitWFn so that they can be JSON marshalled and
// unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn
func newInitWFn(c Config) (*InitWFn, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newInitWFn: %w", err)
	}
	init := InitWFn{Type: c.Type(), Config: c}
	init.initWFn = init.Config.Create()

	return &init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (i *InitWFn) InitWFn() G.InitWFn {
	return i.initWFn
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	typeName, ok := m["Type"].(string)
	if !ok {
		return fmt.Errorf("unmarshalJSON: missing Type field")
	}
	ty, found := configTypes[typeName]
	if !found {
		return fmt.Errorf("unmarshalJSON: unknown initializer %q", typeName)
	}

	value := reflect.New(ty).Interface()
	if raw, ok := m["Config"]; ok && raw != nil {
		valueBytes, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(valueBytes, value); err != nil {
			return err
		}
	}
	config := reflect.ValueOf(value).Elem().Interface().(Config)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("unmarshalJSON: %w", err)
	}

	i.Type = Type(typeName)
	i.Config = config
	i.initWFn = config.Create()

	return nil
}

// GobEncode implements the gob.GobEncoder interface
func (i *InitWFn) GobEncode() ([]byte, error) {
	return json.Marshal(i)
}

// GobDecode implements the gob.GobDecoder interface
func (i *InitWFn) GobDecode(data []byte) error {
	return i.UnmarshalJSON(data)
}

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type

	// Validate returns an error describing an illegal parameter
	Validate() error
}
