package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// SelectorType determines how a Selector chooses data
type SelectorType string

const (
	Uniform SelectorType = "uniform"
	Fifo    SelectorType = "fifo"
)

// Selector implements functionality for choosing which stored
// transitions make up a sampled batch
type Selector interface {
	// choose selects n positions of b to sample from. b holds at
	// least one transition.
	choose(b *Buffer, n int) []int
}

// CreateSelector returns a new Selector of type t
func CreateSelector(t SelectorType, seed uint64) (Selector, error) {
	switch t {
	case Uniform, "":
		return NewUniformSelector(seed), nil
	case Fifo:
		return NewFifoSelector(), nil
	default:
		return nil, fmt.Errorf("createSelector: unknown selector %q", t)
	}
}

// uniformSelector is a Selector which selects data from an experience
// replay buffer uniformly randomly with replacement
type uniformSelector struct {
	rng *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly from an experience replay buffer
func NewUniformSelector(seed uint64) Selector {
	return &uniformSelector{rng: rand.New(rand.NewSource(seed))}
}

func (u *uniformSelector) choose(b *Buffer, n int) []int {
	selected := make([]int, n)
	for i := range selected {
		selected[i] = u.rng.Intn(b.Capacity())
	}
	return selected
}

// fifoSelector is a Selector which selects the oldest data in an
// experience replay buffer. If the buffer holds fewer than n
// transitions, the oldest ones are repeated.
type fifoSelector struct{}

// NewFifoSelector returns a new Selector which draws data from an
// experience replay buffer in insertion order
func NewFifoSelector() Selector {
	return fifoSelector{}
}

func (fifoSelector) choose(b *Buffer, n int) []int {
	order := b.insertOrder(n)
	selected := make([]int, n)
	for i := range selected {
		selected[i] = order[i%len(order)]
	}
	return selected
}
