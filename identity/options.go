// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/oidcauth/rp/oidc"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// CreationVeto decides whether a new local account may be created for the
// asserted claims. Returning false denies creation.
type CreationVeto func(ctx context.Context, claims *oidc.UserClaims) bool

type resolverOptions struct {
	withLogger        hclog.Logger
	withCreationVeto  CreationVeto
	withOnUserCreated []UserEventFn
	withPasswordLen   int
}

func resolverDefaults() resolverOptions {
	return resolverOptions{
		withLogger:      hclog.NewNullLogger(),
		withPasswordLen: DefaultPasswordLength,
	}
}

func getResolverOpts(opt ...Option) resolverOptions {
	opts := resolverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides a logger for the resolver.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*resolverOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithCreationVeto installs a predicate consulted before any new account is
// created. When it returns false the login fails instead of provisioning.
func WithCreationVeto(f CreationVeto) Option {
	return func(o interface{}) {
		if o, ok := o.(*resolverOptions); ok {
			o.withCreationVeto = f
		}
	}
}

// WithOnUserCreated registers a callback fired after a new account has been
// provisioned. Callbacks run synchronously in registration order.
func WithOnUserCreated(f UserEventFn) Option {
	return func(o interface{}) {
		if o, ok := o.(*resolverOptions); ok && f != nil {
			o.withOnUserCreated = append(o.withOnUserCreated, f)
		}
	}
}

// WithPasswordLength overrides the length of generated account passwords.
func WithPasswordLength(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*resolverOptions); ok && n > 0 {
			o.withPasswordLen = n
		}
	}
}
