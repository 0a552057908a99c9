// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"github.com/oidcauth/rp/sdk/id"
)

// State represents one OIDC authentication flow for a user. It contains the
// data needed to uniquely represent that one-time flow across the multiple
// interactions needed to complete it. ID() is passed throughout the OIDC
// interactions to uniquely identify the flow's state, and together with
// Nonce() prevents CSRF and replay attacks (see the oidc spec for specifics).
type State struct {
	// id is a unique identifier and an opaque value used to maintain state
	// between the oidc request and the callback.
	id string

	// nonce is a unique nonce suitable for use as an oidc nonce.
	nonce string

	// expiration is the expiration time of the state.
	expiration time.Time
}

// NewState creates a new State that expires after expireIn.
func NewState(expireIn time.Duration) (*State, error) {
	const op = "oidc.NewState"
	if expireIn <= 0 {
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("expireIn not greater than zero"))
	}
	nonce, err := id.New("n")
	if err != nil {
		return nil, NewError(ErrCodeUnknown, WithOp(op), WithKind(ErrInternal), WithMsg("unable to generate a state's nonce"), WithWrap(err))
	}
	stateID, err := id.New("st")
	if err != nil {
		return nil, NewError(ErrCodeUnknown, WithOp(op), WithKind(ErrInternal), WithMsg("unable to generate a state's id"), WithWrap(err))
	}
	return &State{
		id:         stateID,
		nonce:      nonce,
		expiration: time.Now().Add(expireIn),
	}, nil
}

// ID is a unique identifier and an opaque value used to maintain state
// between the oidc request and the callback.
func (s *State) ID() string { return s.id }

// Nonce is a unique value used to associate a client session with an
// id_token and to mitigate replay attacks.
func (s *State) Nonce() string { return s.nonce }

// DefaultStateExpirySkew defines a default time skew when checking a State's
// expiration.
const DefaultStateExpirySkew = 1 * time.Second

// IsExpired returns true if the state has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultStateExpirySkew.
func (s *State) IsExpired(opt ...Option) bool {
	opts := getStateOpts(opt...)
	return s.expiration.Before(time.Now().Add(opts.withExpirySkew))
}

// stateOptions is the set of available options for State functions.
type stateOptions struct {
	withExpirySkew time.Duration
}

// stateDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func stateDefaults() stateOptions {
	return stateOptions{
		withExpirySkew: DefaultStateExpirySkew,
	}
}

// getStateOpts gets the state defaults and applies the opt overrides passed in.
func getStateOpts(opt ...Option) stateOptions {
	opts := stateDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
