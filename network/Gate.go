package network

import "fmt"

// Disable stops gradient accumulation into every parameter of m.
// Parameter values are not affected. Disabling a module that is
// already fully or partially disabled is a GateMisuse error and leaves
// every flag unchanged.
func Disable(m Module) error {
	params := m.Params()
	for _, p := range params {
		if !p.RequiresGrad() {
			return Errorf("disable", GateMisuse,
				"parameter %v is already disabled", p.Name())
		}
	}
	for _, p := range params {
		p.SetRequiresGrad(false)
	}
	return nil
}

// Enable restores gradient accumulation into every parameter of m. It
// must pair a previous Disable: enabling a parameter that is not
// disabled is a GateMisuse error and leaves every flag unchanged.
func Enable(m Module) error {
	params := m.Params()
	for _, p := range params {
		if p.RequiresGrad() {
			return Errorf("enable", GateMisuse,
				"parameter %v is not disabled", p.Name())
		}
	}
	for _, p := range params {
		p.SetRequiresGrad(true)
	}
	return nil
}

// Isolate runs fn with gradient accumulation into m disabled and
// re-enables it on every exit path, including a panic in fn. An error
// returned by fn takes precedence over an error re-enabling m.
func Isolate(m Module, fn func() error) (err error) {
	if err = Disable(m); err != nil {
		return err
	}

	defer func() {
		enableErr := Enable(m)
		if err == nil && enableErr != nil {
			err = fmt.Errorf("isolate: %w", enableErr)
		}
	}()

	return fn()
}
