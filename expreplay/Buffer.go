package expreplay

import (
	"fmt"
	"sync"

	"github.com/samuelfneumann/relsac/agent/nonlinear/discrete/relsac"
	"github.com/samuelfneumann/relsac/environment"
	"github.com/samuelfneumann/relsac/timestep"
	"gorgonia.org/tensor"
)

// Buffer is a fixed capacity replay buffer of joint transitions. Once
// full, each added transition overwrites the oldest one.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	agents []*agentCache

	currentInUsePos int
	isFull          bool

	// Outlines how data is sampled
	sampler Selector

	minCapacity int
	maxCapacity int
}

// agentCache holds the transitions of a single agent
type agentCache struct {
	obsSize, unarySize, binarySize, numActions int

	obsCache, nextObsCache       []float64
	unaryCache, nextUnaryCache   []float64
	binaryCache, nextBinaryCache []float64
	actionCache                  []int
	rewardCache                  []float64
	doneCache                    []float64
}

// New returns a new Buffer storing the transitions of the agents of an
// environment with the given Spec. The sampler determines how data is
// sampled from the buffer. The minCapacity parameter determines the
// number of transitions required before sampling is allowed.
func New(sampler Selector, minCapacity, maxCapacity int,
	spec environment.Spec) (*Buffer, error) {
	if minCapacity < 1 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("new: maxCapacity (%v) must be >= minCapacity "+
			"(%v)", maxCapacity, minCapacity)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if spec.UnaryDim < 1 || spec.BinaryDim < 1 {
		return nil, fmt.Errorf("new: relational feature sizes must be "+
			"positive, got %v and %v", spec.UnaryDim, spec.BinaryDim)
	}

	agents := make([]*agentCache, spec.NAgents)
	for i := range agents {
		agents[i] = newAgentCache(maxCapacity, spec.ObsDims[i], spec.UnaryDim,
			spec.BinaryDim, spec.NumActions[i])
	}

	return &Buffer{
		agents:      agents,
		sampler:     sampler,
		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
	}, nil
}

func newAgentCache(capacity, obsSize, unarySize, binarySize,
	numActions int) *agentCache {
	return &agentCache{
		obsSize:    obsSize,
		unarySize:  unarySize,
		binarySize: binarySize,
		numActions: numActions,

		obsCache:        make([]float64, capacity*obsSize),
		nextObsCache:    make([]float64, capacity*obsSize),
		unaryCache:      make([]float64, capacity*unarySize),
		nextUnaryCache:  make([]float64, capacity*unarySize),
		binaryCache:     make([]float64, capacity*binarySize),
		nextBinaryCache: make([]float64, capacity*binarySize),
		actionCache:     make([]int, capacity),
		rewardCache:     make([]float64, capacity),
		doneCache:       make([]float64, capacity),
	}
}

// Capacity returns the current number of transitions in the buffer
func (b *Buffer) Capacity() int {
	if b.isFull {
		return b.maxCapacity
	}
	return b.currentInUsePos
}

// MaxCapacity returns the maximum number of transitions in the buffer
func (b *Buffer) MaxCapacity() int {
	return b.maxCapacity
}

// MinCapacity returns the number of transitions required to be in the
// buffer before the buffer can be sampled
func (b *Buffer) MinCapacity() int {
	return b.minCapacity
}

// insertOrder returns the positions of the at most n oldest
// transitions, oldest first
func (b *Buffer) insertOrder(n int) []int {
	size := b.Capacity()
	start := 0
	if b.isFull {
		start = b.currentInUsePos
	}
	if n > size {
		n = size
	}

	order := make([]int, n)
	for i := range order {
		order[i] = (start + i) % b.maxCapacity
	}
	return order
}

// Add adds a transition to the buffer. Nothing is stored if the
// transition does not match the buffer's agents.
func (b *Buffer) Add(t timestep.Transition) error {
	if err := b.validate(t); err != nil {
		return fmt.Errorf("add: %w", err)
	}

	index := b.currentInUsePos
	for i, a := range b.agents {
		put(a.obsCache, index, t.Obs[i])
		put(a.nextObsCache, index, t.NextObs[i])
		put(a.unaryCache, index, t.Unary[i])
		put(a.nextUnaryCache, index, t.NextUnary[i])
		put(a.binaryCache, index, t.Binary[i])
		put(a.nextBinaryCache, index, t.NextBinary[i])

		a.actionCache[index] = t.Actions[i]
		a.rewardCache[index] = t.Rewards[i]
		a.doneCache[index] = t.Dones[i]
	}

	if index+1 == b.maxCapacity {
		b.isFull = true
	}
	b.currentInUsePos = (index + 1) % b.maxCapacity
	return nil
}

// validate returns an error if t cannot be stored in b
func (b *Buffer) validate(t timestep.Transition) error {
	n := len(b.agents)
	if len(t.Obs) != n || len(t.NextObs) != n || len(t.Unary) != n ||
		len(t.NextUnary) != n || len(t.Binary) != n || len(t.NextBinary) != n ||
		len(t.Actions) != n || len(t.Rewards) != n || len(t.Dones) != n {
		return fmt.Errorf("transition is not for %v agents", n)
	}

	for i, a := range b.agents {
		sizes := []struct {
			name       string
			have, want int
		}{
			{"observation", len(t.Obs[i]), a.obsSize},
			{"next observation", len(t.NextObs[i]), a.obsSize},
			{"unary features", len(t.Unary[i]), a.unarySize},
			{"next unary features", len(t.NextUnary[i]), a.unarySize},
			{"binary features", len(t.Binary[i]), a.binarySize},
			{"next binary features", len(t.NextBinary[i]), a.binarySize},
		}
		for _, s := range sizes {
			if s.have != s.want {
				return fmt.Errorf("agent %v: invalid %v size \n\twant(%v)"+
					"\n\thave(%v)", i, s.name, s.want, s.have)
			}
		}
		if t.Actions[i] < 0 || t.Actions[i] >= a.numActions {
			return fmt.Errorf("agent %v: action %v out of range [0, %v)", i,
				t.Actions[i], a.numActions)
		}
	}
	return nil
}

// Sample samples and returns a batch of n transitions from the buffer.
// Actions are one-hot encoded.
func (b *Buffer) Sample(n int) (relsac.Batch, error) {
	if b.Capacity() == 0 {
		return relsac.Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if b.Capacity() < b.MinCapacity() {
		return relsac.Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}
	if n < 1 {
		return relsac.Batch{}, fmt.Errorf("sample: batch size must be "+
			"positive, got %v", n)
	}

	indices := b.sampler.choose(b, n)
	agents := len(b.agents)
	batch := relsac.Batch{
		Obs:        make([]*tensor.Dense, agents),
		Unary:      make([]*tensor.Dense, agents),
		Binary:     make([]*tensor.Dense, agents),
		Actions:    make([]*tensor.Dense, agents),
		Rewards:    make([][]float64, agents),
		NextObs:    make([]*tensor.Dense, agents),
		NextUnary:  make([]*tensor.Dense, agents),
		NextBinary: make([]*tensor.Dense, agents),
		Dones:      make([][]float64, agents),
	}

	// Agents own disjoint caches and batch entries, so they are
	// gathered concurrently
	var wait sync.WaitGroup
	wait.Add(agents)
	for i, a := range b.agents {
		i, a := i, a
		go func() {
			defer wait.Done()
			batch.Obs[i] = gather(a.obsCache, a.obsSize, indices)
			batch.NextObs[i] = gather(a.nextObsCache, a.obsSize, indices)
			batch.Unary[i] = gather(a.unaryCache, a.unarySize, indices)
			batch.NextUnary[i] = gather(a.nextUnaryCache, a.unarySize, indices)
			batch.Binary[i] = gather(a.binaryCache, a.binarySize, indices)
			batch.NextBinary[i] = gather(a.nextBinaryCache, a.binarySize,
				indices)

			oneHot := make([]float64, n*a.numActions)
			rewards := make([]float64, n)
			dones := make([]float64, n)
			for row, index := range indices {
				oneHot[row*a.numActions+a.actionCache[index]] = 1
				rewards[row] = a.rewardCache[index]
				dones[row] = a.doneCache[index]
			}
			batch.Actions[i] = tensor.New(tensor.WithShape(n, a.numActions),
				tensor.WithBacking(oneHot))
			batch.Rewards[i] = rewards
			batch.Dones[i] = dones
		}()
	}
	wait.Wait()

	return batch, nil
}

// String returns the string representation of the buffer
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer | Agents: %v  |  Capacity: %v/%v  |  "+
		"Min Capacity: %v", len(b.agents), b.Capacity(), b.maxCapacity,
		b.minCapacity)
}

// put copies row into position index of a flat cache with rows of
// len(row) elements
func put(cache []float64, index int, row []float64) {
	start := index * len(row)
	copy(cache[start:start+len(row)], row)
}

// gather returns the rows at the given indices of a flat cache as an
// (len(indices), size) tensor
func gather(cache []float64, size int, indices []int) *tensor.Dense {
	out := make([]float64, len(indices)*size)
	for row, index := range indices {
		copy(out[row*size:(row+1)*size], cache[index*size:(index+1)*size])
	}
	return tensor.New(tensor.WithShape(len(indices), size),
		tensor.WithBacking(out))
}
