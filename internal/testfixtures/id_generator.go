package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator produces deterministic identifiers for tests.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

// NewIDGenerator constructs a generator that yields identifiers with the given
// prefix. When prefix is empty, "id" is used.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc exposes Next as a function suitable for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// CodeSequence yields predetermined verification codes, cycling the last one
// once the sequence is exhausted. It lets tests force code collisions.
type CodeSequence struct {
	mu    sync.Mutex
	codes []string
	index int
}

// NewCodeSequence constructs a sequence over the given codes. An empty
// sequence yields "0000".
func NewCodeSequence(codes ...string) *CodeSequence {
	if len(codes) == 0 {
		codes = []string{"0000"}
	}
	return &CodeSequence{codes: codes}
}

// Next returns the next code in the sequence.
func (s *CodeSequence) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.codes[s.index]
	if s.index < len(s.codes)-1 {
		s.index++
	}
	return code, nil
}

// NextFunc exposes Next as a generator suitable for dependency injection.
func (s *CodeSequence) NextFunc() func() (string, error) {
	return s.Next
}
