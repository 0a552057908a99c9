// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/oidcauth/rp/oidc"
)

// UserEventFn is a callback fired by the Resolver on account lifecycle
// events.
type UserEventFn func(ctx context.Context, u *User, claims *oidc.UserClaims)

// Resolver maps a provider-asserted identity to a local account, creating
// one on first login when allowed.
type Resolver struct {
	store         UserStore
	logger        hclog.Logger
	creationVeto  CreationVeto
	onUserCreated []UserEventFn
	passwordLen   int
}

// NewResolver creates a Resolver backed by the given store.
//
// Supported options: WithLogger, WithCreationVeto, WithOnUserCreated,
// WithPasswordLength.
func NewResolver(store UserStore, opt ...Option) (*Resolver, error) {
	const op = "identity.NewResolver"
	if store == nil {
		return nil, fmt.Errorf("%s: nil store: %w", op, oidc.ErrNilParameter)
	}
	opts := getResolverOpts(opt...)
	return &Resolver{
		store:         store,
		logger:        opts.withLogger,
		creationVeto:  opts.withCreationVeto,
		onUserCreated: opts.withOnUserCreated,
		passwordLen:   opts.withPasswordLen,
	}, nil
}

// FindByIdentity returns the local account currently bound to the external
// identity, or nil when none is. When more than one account claims the same
// identity the first is used and a warning is logged.
func (r *Resolver) FindByIdentity(ctx context.Context, identity string) (*User, error) {
	const op = "identity.(Resolver).FindByIdentity"
	if identity == "" {
		return nil, fmt.Errorf("%s: empty identity: %w", op, oidc.ErrInvalidParameter)
	}
	found, err := r.store.FindUsersByMeta(ctx, MetaSubjectIdentity, identity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		r.logger.Warn("multiple users bound to one identity; using first",
			"identity", identity, "count", len(found), "user_id", found[0].ID)
		return found[0], nil
	}
}

// Resolve returns the local account for the asserted identity, provisioning
// one when no account is bound to it yet. The returned bool reports whether
// a new account was created by this call.
func (r *Resolver) Resolve(ctx context.Context, identity string, claims *oidc.UserClaims) (*User, bool, error) {
	const op = "identity.(Resolver).Resolve"
	if claims == nil {
		return nil, false, fmt.Errorf("%s: nil claims: %w", op, oidc.ErrNilParameter)
	}
	u, err := r.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if u != nil {
		return u, false, nil
	}
	u, err = r.createUser(ctx, identity, claims)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return u, true, nil
}

func (r *Resolver) createUser(ctx context.Context, identity string, claims *oidc.UserClaims) (*User, error) {
	const op = "identity.(Resolver).createUser"
	if r.creationVeto != nil && !r.creationVeto(ctx, claims) {
		return nil, fmt.Errorf("%s: account creation denied for identity %q: %w",
			op, identity, oidc.ErrCreationNotAuthorized)
	}
	username, err := r.deriveUsername(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	password, err := GeneratePassword(r.passwordLen)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	id, err := r.store.CreateUser(ctx, username, password, claims.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: create user %q: %w: %v", op, username, oidc.ErrUserCreationFailed, err)
	}
	if err := r.store.SetUserMeta(ctx, id, MetaSubjectIdentity, identity); err != nil {
		// Lost a first-login race: another request bound the identity while
		// this one was creating its account.
		return nil, fmt.Errorf("%s: bind identity to user %s: %w: %v", op, id, oidc.ErrUserCreationFailed, err)
	}
	if err := r.store.SetUserMeta(ctx, id, MetaManagedUser, "1"); err != nil {
		return nil, fmt.Errorf("%s: mark user %s managed: %w: %v", op, id, oidc.ErrUserCreationFailed, err)
	}
	u, err := r.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: read back user %s: %w: %v", op, id, oidc.ErrUserCreationFailed, err)
	}
	r.logger.Info("created user from provider claims", "user_id", u.ID, "username", u.Username)
	for _, f := range r.onUserCreated {
		f(ctx, u, claims)
	}
	return u, nil
}

// deriveUsername picks a login name from the claims: preferred_username,
// then name, then the local part of email. The candidate is normalized and,
// on collision, suffixed with a counter starting at 2.
func (r *Resolver) deriveUsername(ctx context.Context, claims *oidc.UserClaims) (string, error) {
	const op = "identity.(Resolver).deriveUsername"
	var candidate string
	switch {
	case claims.PreferredUsername != "":
		candidate = claims.PreferredUsername
	case claims.Name != "":
		candidate = claims.Name
	case claims.Email != "":
		candidate = claims.Email
		if at := strings.IndexByte(candidate, '@'); at >= 0 {
			candidate = candidate[:at]
		}
	default:
		return "", fmt.Errorf("%s: claims carry no username source: %w", op, oidc.ErrNoUsernameSource)
	}
	candidate = NormalizeUsername(candidate)
	if candidate == "" {
		return "", fmt.Errorf("%s: username empty after normalization: %w", op, oidc.ErrNoUsernameSource)
	}
	username := candidate
	for i := 2; ; i++ {
		taken, err := r.store.UsernameExists(ctx, username)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if !taken {
			return username, nil
		}
		username = fmt.Sprintf("%s%d", candidate, i)
	}
}

// NormalizeUsername lowercases the candidate and strips every rune outside
// [a-z0-9_].
func NormalizeUsername(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsManaged reports whether the user was provisioned through the login flow.
func (r *Resolver) IsManaged(ctx context.Context, userID string) (bool, error) {
	v, err := r.store.GetUserMeta(ctx, userID, MetaManagedUser)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return v != "", nil
}

// Store returns the resolver's backing store.
func (r *Resolver) Store() UserStore {
	return r.store
}
