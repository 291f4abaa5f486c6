package execution

import (
	"errors"
	"sync"

	"github.com/alejandrodnm/sniperbot/internal/ports"
)

// EndpointSet is a fixed, ranked list of network endpoints with a round-robin
// cursor. The cursor is always a valid index.
type EndpointSet struct {
	mu        sync.Mutex
	endpoints []ports.ChainEndpoint
	cursor    int
	rotations int
}

// NewEndpointSet returns a set starting at the first (highest ranked) endpoint.
func NewEndpointSet(endpoints ...ports.ChainEndpoint) (*EndpointSet, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("execution.NewEndpointSet: no endpoints")
	}
	return &EndpointSet{endpoints: append([]ports.ChainEndpoint(nil), endpoints...)}, nil
}

// Current returns the active endpoint together with its index. The index is
// passed back to Rotate so a failure is only counted against the endpoint
// that actually served the request.
func (s *EndpointSet) Current() (int, ports.ChainEndpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.endpoints[s.cursor]
}

// Rotate advances the cursor past the endpoint at index from. If another
// caller already rotated away from it, the cursor is left alone.
func (s *EndpointSet) Rotate(from int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == from {
		s.cursor = (s.cursor + 1) % len(s.endpoints)
		s.rotations++
	}
	return s.cursor
}

// Cursor returns the index of the active endpoint.
func (s *EndpointSet) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Rotations returns how many times the set has failed over.
func (s *EndpointSet) Rotations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotations
}

// Len returns the number of endpoints.
func (s *EndpointSet) Len() int {
	return len(s.endpoints)
}
