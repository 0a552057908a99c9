// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"errors"
)

// Metadata attribute keys the resolver maintains on local users.
const (
	// MetaSubjectIdentity holds the durable external identity the provider
	// asserted for the user.
	MetaSubjectIdentity = "oidc-subject-identity"

	// MetaManagedUser marks an account as created/managed through the OIDC
	// login flow.
	MetaManagedUser = "oidc-managed-user"
)

// ErrDuplicate is returned by stores which enforce uniqueness constraints
// (usernames, emails, or metadata attributes declared unique) when a write
// would violate one.
var ErrDuplicate = errors.New("duplicate value")

// ErrNotFound is returned by stores when a user id is unknown.
var ErrNotFound = errors.New("user not found")

// User is a host-managed local account.
type User struct {
	// ID is the host's internal identifier for the account.
	ID string

	// Username is the account's unique login name.
	Username string

	// Email is the account's email address.
	Email string
}

// UserStore is the narrow interface to the host application's user storage.
// Implementations must be safe for concurrent use.
type UserStore interface {
	// FindUsersByMeta returns all users whose metadata attribute key equals
	// value, in the store's natural order.
	FindUsersByMeta(ctx context.Context, key, value string) ([]*User, error)

	// CreateUser creates a local account and returns its id. Stores should
	// return ErrDuplicate when the username or email collides.
	CreateUser(ctx context.Context, username, password, email string) (string, error)

	// GetUser returns the user with the given id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*User, error)

	// UsernameExists reports whether a username is already taken.
	UsernameExists(ctx context.Context, username string) (bool, error)

	MetadataStore
}

// MetadataStore provides per-user key/value metadata.
type MetadataStore interface {
	// GetUserMeta returns the value for key on the user, or "" when unset.
	GetUserMeta(ctx context.Context, userID, key string) (string, error)

	// SetUserMeta sets the value for key on the user. Stores which declare
	// key unique return ErrDuplicate when another user already holds value.
	SetUserMeta(ctx context.Context, userID, key, value string) error
}
