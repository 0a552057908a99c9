// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import "time"

// Option defines a common functional options type.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithExpirySkew provides an optional expiry skew duration for: Token, State
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *tokenOptions:
			v.withExpirySkew = d
		case *stateOptions:
			v.withExpirySkew = d
		}
	}
}

// WithNow provides an optional time source for tests which need to control
// the clock used during claim validation.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifyOptions); ok {
			o.withNow = now
		}
	}
}
