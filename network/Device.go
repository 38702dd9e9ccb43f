package network

import "fmt"

// Device is a logical compute device on which a network's parameters
// reside.
//
// Every network in this module is evaluated by Gorgonia's host tape
// machine; placement is tracked so that training code can enforce
// co-location of networks exactly as it would for accelerator backed
// tensors, and so that checkpoints are always produced from host
// resident parameters.
type Device int

const (
	Host Device = iota
	Accelerator
)

// String implements the fmt.Stringer interface
func (d Device) String() string {
	switch d {
	case Host:
		return "cpu"
	case Accelerator:
		return "gpu"
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}

// Valid returns whether d names a known device
func (d Device) Valid() bool {
	return d == Host || d == Accelerator
}

// ParseDevice returns the Device named by s, accepting the names
// returned by Device.String.
func ParseDevice(s string) (Device, error) {
	switch s {
	case "cpu", "host", "":
		return Host, nil
	case "gpu", "cuda", "accelerator":
		return Accelerator, nil
	}
	return Host, fmt.Errorf("parseDevice: unknown device %q", s)
}

// Placeable is a network whose parameters can be moved between devices
type Placeable interface {
	Device() Device
	To(Device) error
}

// Moder is a network with a training and an evaluation mode
type Moder interface {
	Train()
	Eval()
	IsEval() bool
}

// Network is a placeable module with training/evaluation modes
type Network interface {
	Module
	Placeable
	Moder
}

// Base implements the bookkeeping shared by all networks: the ordered
// parameter list, the current device and the current mode. Concrete
// networks embed a Base.
type Base struct {
	params []*Param
	device Device
	eval   bool
}

// NewBase returns a Base holding params, placed on the Host in
// training mode.
func NewBase(params []*Param) Base {
	return Base{params: params, device: Host}
}

// Params implements the Module interface
func (b *Base) Params() []*Param {
	return b.params
}

// Device returns the device the parameters currently reside on
func (b *Base) Device() Device {
	return b.device
}

// To moves the parameters to device d
func (b *Base) To(d Device) error {
	if !d.Valid() {
		return fmt.Errorf("to: invalid device %v", d)
	}
	b.device = d
	return nil
}

// Train switches to training mode
func (b *Base) Train() {
	b.eval = false
}

// Eval switches to evaluation mode
func (b *Base) Eval() {
	b.eval = true
}

// IsEval returns whether the network is in evaluation mode
func (b *Base) IsEval() bool {
	return b.eval
}

// SameDevice returns a DeviceMismatch error naming the first network
// in nets that does not reside on the same device as nets[0]. The
// names slice labels each network in error messages.
func SameDevice(op string, names []string, nets ...Placeable) error {
	if len(nets) == 0 {
		return nil
	}
	want := nets[0].Device()
	for i := 1; i < len(nets); i++ {
		if got := nets[i].Device(); got != want {
			return Errorf(op, DeviceMismatch, "%v on %v, %v on %v",
				names[0], want, names[i], got)
		}
	}
	return nil
}
