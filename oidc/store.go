// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"sync"
	"time"
)

// StateStore is a process-wide, concurrency-safe store of pending
// authorization States keyed by their state token. A stored State can be
// consumed at most once: Consume removes the entry under the same lock that
// reads it, so a replayed callback racing the first one cannot double-spend a
// state.
type StateStore struct {
	mu     sync.Mutex
	states map[string]*State

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewStateStore creates a StateStore and starts its background cleanup of
// expired entries. Call Stop when the store is no longer needed.
func NewStateStore() *StateStore {
	s := &StateStore{
		states:      make(map[string]*State),
		stopCleanup: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Add stores a pending authorization state.
func (s *StateStore) Add(st *State) error {
	const op = "StateStore.Add"
	if st == nil {
		return NewError(ErrNilParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("state is nil"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.ID()] = st
	return nil
}

// Consume looks up a pending state by its token and deletes it, regardless of
// outcome, so a state is spendable at most once. It returns
// ErrInvalidAuthState when the token is unknown (it may have expired and been
// evicted, or never existed) and when the entry is present but older than its
// time limit.
func (s *StateStore) Consume(stateID string) (*State, error) {
	const op = "StateStore.Consume"
	if stateID == "" {
		return nil, NewError(ErrInvalidAuthState, WithOp(op), WithKind(ErrProtocolViolation), WithMsg("callback is missing the state parameter"))
	}
	s.mu.Lock()
	st, ok := s.states[stateID]
	delete(s.states, stateID)
	s.mu.Unlock()

	if !ok {
		return nil, NewError(ErrInvalidAuthState, WithOp(op), WithKind(ErrProtocolViolation), WithMsg("authorization state not found"))
	}
	if st.IsExpired() {
		return nil, NewError(ErrInvalidAuthState, WithOp(op), WithKind(ErrProtocolViolation), WithMsg("authorization state is expired"))
	}
	return st, nil
}

// Len reports the number of pending states.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Stop stops the background cleanup goroutine. It is safe to call more than
// once.
func (s *StateStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *StateStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup evicts expired states that were never consumed.
func (s *StateStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.states {
		if st.IsExpired() {
			delete(s.states, id)
		}
	}
}
