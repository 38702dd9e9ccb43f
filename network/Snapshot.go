package network

// ParamState is the serializable state of a single parameter
type ParamState struct {
	Name  string
	Shape []int
	Data  []float64
}

// Export returns a deep copy of the parameter values of m
func Export(m Module) []ParamState {
	params := m.Params()
	states := make([]ParamState, len(params))
	for i, p := range params {
		data := make([]float64, len(p.Data()))
		copy(data, p.Data())
		states[i] = ParamState{
			Name:  p.Name(),
			Shape: []int(p.Shape().Clone()),
			Data:  data,
		}
	}
	return states
}

// Import writes states into the parameters of m. If the number of
// states or any shape differs from m's parameters, an
// ArchitectureMismatch error is returned and m is left untouched.
func Import(m Module, states []ParamState) error {
	params := m.Params()
	if len(params) != len(states) {
		return Errorf("import", ArchitectureMismatch,
			"module has %v parameters, state has %v", len(params),
			len(states))
	}

	for i, p := range params {
		shape := p.Shape()
		if len(shape) != len(states[i].Shape) {
			return Errorf("import", ArchitectureMismatch,
				"parameter %v: shape %v, state %v has shape %v", p.Name(),
				shape, states[i].Name, states[i].Shape)
		}
		for j := range shape {
			if shape[j] != states[i].Shape[j] {
				return Errorf("import", ArchitectureMismatch,
					"parameter %v: shape %v, state %v has shape %v",
					p.Name(), shape, states[i].Name, states[i].Shape)
			}
		}
		if len(p.Data()) != len(states[i].Data) {
			return Errorf("import", ArchitectureMismatch,
				"parameter %v: %v values, state %v has %v", p.Name(),
				len(p.Data()), states[i].Name, len(states[i].Data))
		}
	}

	for i, p := range params {
		copy(p.Data(), states[i].Data)
	}
	return nil
}
