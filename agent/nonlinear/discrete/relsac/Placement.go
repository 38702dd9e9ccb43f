package relsac

import (
	"fmt"

	"github.com/samuelfneumann/relsac/network"
)

// Mode is the phase a RelationalSAC is prepared for
type Mode int

const (
	Training Mode = iota
	Rollout
)

func (m Mode) String() string {
	switch m {
	case Training:
		return "training"
	case Rollout:
		return "rollout"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Placement records the mode and the device of every network role. All
// live policies share one device, as do all target policies. A
// Placement is a value: transitions return a new one.
type Placement struct {
	Mode         Mode
	Policy       network.Device
	Critic       network.Device
	TargetPolicy network.Device
	TargetCritic network.Device
}

func (p Placement) String() string {
	return fmt.Sprintf("{mode: %v, policy: %v, critic: %v, target policy: %v, "+
		"target critic: %v}", p.Mode, p.Policy, p.Critic, p.TargetPolicy,
		p.TargetCritic)
}

// hostPlacement is the placement of freshly built networks
func hostPlacement() Placement {
	return Placement{
		Mode:         Training,
		Policy:       network.Host,
		Critic:       network.Host,
		TargetPolicy: network.Host,
		TargetCritic: network.Host,
	}
}

// move places every network of a role on dev unless the role already
// resides there. It reports whether a transfer happened.
func move[N network.Placeable](current, dev network.Device,
	nets []N) (bool, error) {
	if current == dev {
		return false, nil
	}
	for i, n := range nets {
		if err := n.To(dev); err != nil {
			// Return the networks already moved so the role stays on
			// a single device
			for _, done := range nets[:i] {
				if back := done.To(current); back != nil {
					return false, fmt.Errorf("%w (restoring %v: %v)", err,
						current, back)
				}
			}
			return false, err
		}
	}
	return true, nil
}
