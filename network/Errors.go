package network

import (
	"errors"
	"fmt"
)

// Kind classifies the errors raised while manipulating networks and
// their parameters.
type Kind int

const (
	// ShapeMismatch reports an input tensor whose shape does not match
	// what a network or batch expects.
	ShapeMismatch Kind = iota

	// DeviceMismatch reports networks that must be co-located but
	// reside on different devices.
	DeviceMismatch

	// ArchitectureMismatch reports two parameter sets which cannot be
	// paired, e.g. a target and source network of different structure.
	ArchitectureMismatch

	// GateMisuse reports unpaired gradient gate operations.
	GateMisuse

	// CorruptCheckpoint reports a checkpoint which is unreadable or
	// is missing required records.
	CorruptCheckpoint
)

func (k Kind) String() string {
	switch k {
	case ShapeMismatch:
		return "shape mismatch"
	case DeviceMismatch:
		return "device mismatch"
	case ArchitectureMismatch:
		return "architecture mismatch"
	case GateMisuse:
		return "gate misuse"
	case CorruptCheckpoint:
		return "corrupt checkpoint"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is an error raised by an operation on a network, its
// parameters or its serialized form.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// Errorf returns a new *Error of the given kind
func Errorf(op string, kind Kind, format string, args ...interface{}) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Error satisfies the error interface
func (e *Error) Error() string {
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

func isKind(err error, kind Kind) bool {
	var netErr *Error
	if errors.As(err, &netErr) {
		return netErr.Kind == kind
	}
	return false
}

// IsShapeMismatch returns whether err reports an input tensor of an
// unexpected shape.
func IsShapeMismatch(err error) bool {
	return isKind(err, ShapeMismatch)
}

// IsDeviceMismatch returns whether err reports networks placed on
// different devices.
func IsDeviceMismatch(err error) bool {
	return isKind(err, DeviceMismatch)
}

// IsArchitectureMismatch returns whether err reports structurally
// incompatible parameter sets.
func IsArchitectureMismatch(err error) bool {
	return isKind(err, ArchitectureMismatch)
}

// IsGateMisuse returns whether err reports an unpaired gradient gate
// operation.
func IsGateMisuse(err error) bool {
	return isKind(err, GateMisuse)
}

// IsCorruptCheckpoint returns whether err reports an unreadable or
// incomplete checkpoint.
func IsCorruptCheckpoint(err error) bool {
	return isKind(err, CorruptCheckpoint)
}
