// Package session owns backend selection and the logged-in state built
// on top of the repository contract.
package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/appointix/appointix/internal/clinic"
	"github.com/appointix/appointix/internal/event"
)

type State string

const (
	StateUnprobed State = "unprobed"
	StateProbing  State = "probing"
	StateBound    State = "bound"
)

// ErrProbeInFlight rejects a TryConnect while a previous probe is still
// running. The original silently allowed this; it is a race.
var ErrProbeInFlight = errors.New("connection attempt already in progress")

// RemoteBackend is a repository that can also report whether its server
// is reachable. Satisfied by *clinic.HTTPRepository.
type RemoteBackend interface {
	clinic.Repository
	Probe(ctx context.Context) error
}

// BoundBackend is the payload of the one-shot KindBackendBound event.
type BoundBackend struct {
	Backend clinic.Repository
	Remote  bool
}

// Selector probes the remote backend once and binds either it or the
// fallback for the rest of the session. Unprobed -> Probing ->
// Bound(remote | fallback); Bound is terminal, there is no re-probing.
type Selector struct {
	remote   RemoteBackend
	fallback clinic.Repository
	bus      *event.Bus

	mu          sync.Mutex
	state       State
	bound       clinic.Repository
	remoteBound bool
}

func NewSelector(remote RemoteBackend, fallback clinic.Repository, bus *event.Bus) *Selector {
	return &Selector{
		remote:   remote,
		fallback: fallback,
		bus:      bus,
		state:    StateUnprobed,
	}
}

// TryConnect starts the probe and returns immediately; the decision
// arrives as a KindBackendBound event, published exactly once per call.
// Calling again while probing fails with ErrProbeInFlight; calling after
// binding just re-announces the bound backend.
func (s *Selector) TryConnect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateProbing:
		s.mu.Unlock()
		return ErrProbeInFlight
	case StateBound:
		bound, remote := s.bound, s.remoteBound
		s.mu.Unlock()
		s.bus.Publish(event.KindBackendBound, BoundBackend{Backend: bound, Remote: remote})
		return nil
	}
	s.state = StateProbing
	s.mu.Unlock()

	go func() {
		err := s.remote.Probe(ctx)

		s.mu.Lock()
		s.state = StateBound
		if err != nil {
			log.Printf("session: remote probe failed, using in-memory backend: %v", err)
			s.bound = s.fallback
			s.remoteBound = false
		} else {
			s.bound = s.remote
			s.remoteBound = true
		}
		bound, remote := s.bound, s.remoteBound
		s.mu.Unlock()

		s.bus.Publish(event.KindBackendBound, BoundBackend{Backend: bound, Remote: remote})
	}()

	return nil
}

func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bound returns the chosen backend once the selector has settled.
func (s *Selector) Bound() (clinic.Repository, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound, s.state == StateBound
}
