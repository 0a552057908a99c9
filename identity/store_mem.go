// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory UserStore, suitable for tests and small embedded
// deployments. It enforces username uniqueness, and uniqueness of any
// metadata keys given to NewMemStore.
type MemStore struct {
	mu         sync.Mutex
	nextID     int
	users      map[string]*User
	meta       map[string]map[string]string
	uniqueMeta map[string]bool
}

// NewMemStore creates an empty MemStore. uniqueMetaKeys lists metadata
// attribute keys for which SetUserMeta enforces a one-user-per-value
// constraint (typically MetaSubjectIdentity).
func NewMemStore(uniqueMetaKeys ...string) *MemStore {
	s := &MemStore{
		users:      map[string]*User{},
		meta:       map[string]map[string]string{},
		uniqueMeta: map[string]bool{},
	}
	for _, k := range uniqueMetaKeys {
		s.uniqueMeta[k] = true
	}
	return s
}

// FindUsersByMeta implements UserStore.
func (s *MemStore) FindUsersByMeta(ctx context.Context, key, value string) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []*User
	for id, m := range s.meta {
		if m[key] == value && value != "" {
			cp := *s.users[id]
			found = append(found, &cp)
		}
	}
	return found, nil
}

// CreateUser implements UserStore.
func (s *MemStore) CreateUser(ctx context.Context, username, password, email string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("missing username: %w", ErrDuplicate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return "", fmt.Errorf("username %q: %w", username, ErrDuplicate)
		}
	}
	s.nextID++
	id := fmt.Sprintf("%d", s.nextID)
	s.users[id] = &User{
		ID:       id,
		Username: username,
		Email:    email,
	}
	s.meta[id] = map[string]string{}
	return id, nil
}

// GetUser implements UserStore.
func (s *MemStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// UsernameExists implements UserStore.
func (s *MemStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// GetUserMeta implements MetadataStore.
func (s *MemStore) GetUserMeta(ctx context.Context, userID, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[userID]
	if !ok {
		return "", fmt.Errorf("%q: %w", userID, ErrNotFound)
	}
	return m[key], nil
}

// SetUserMeta implements MetadataStore.
func (s *MemStore) SetUserMeta(ctx context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[userID]
	if !ok {
		return fmt.Errorf("%q: %w", userID, ErrNotFound)
	}
	if s.uniqueMeta[key] && value != "" {
		for otherID, om := range s.meta {
			if otherID != userID && om[key] == value {
				return fmt.Errorf("%s=%q held by user %s: %w", key, value, otherID, ErrDuplicate)
			}
		}
	}
	m[key] = value
	return nil
}
