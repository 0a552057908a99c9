// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/oidcauth/rp/identity"
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

// LoginEventFn is a callback fired after a session has been established.
type LoginEventFn func(ctx context.Context, u *identity.User, token *oidc.Token)

// GateExemptionFn reports whether an unauthenticated request may pass the
// gate even with privacy enforcement on.
type GateExemptionFn func(r *http.Request) bool

type controllerOptions struct {
	withLogger          hclog.Logger
	withLoginURL        string
	withCallbackPath    string
	withDefaultRedirect string
	withCookieName      string
	withCookiePath      string
	withCookieSecure    bool
	withEnforcePrivacy  bool
	withGateExemptions  []GateExemptionFn
	withOnLogin         []LoginEventFn
	withNow             func() time.Time
}

func controllerDefaults() controllerOptions {
	return controllerOptions{
		withLogger:          hclog.NewNullLogger(),
		withLoginURL:        DefaultLoginURL,
		withCallbackPath:    DefaultCallbackPath,
		withDefaultRedirect: "/",
		withCookieName:      DefaultTrackingCookieName,
		withCookiePath:      "/",
		withCookieSecure:    true,
		withNow:             time.Now,
	}
}

func getControllerOpts(opt ...Option) controllerOptions {
	opts := controllerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides a logger for the controller.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithLoginURL sets the path of the host's login page. Error redirects and
// the authentication gate both point here.
func WithLoginURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && u != "" {
			o.withLoginURL = u
		}
	}
}

// WithCallbackPath sets the path on which the provider callback is mounted.
// The authentication gate lets unauthenticated requests through to it.
func WithCallbackPath(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && p != "" {
			o.withCallbackPath = p
		}
	}
}

// WithDefaultRedirect sets where users land after login or logout when no
// valid redirect target was requested.
func WithDefaultRedirect(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && u != "" {
			o.withDefaultRedirect = u
		}
	}
}

// WithTrackingCookieName overrides the name of the session tracking cookie.
func WithTrackingCookieName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && name != "" {
			o.withCookieName = name
		}
	}
}

// WithCookiePath overrides the path attribute of the tracking cookie.
func WithCookiePath(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && p != "" {
			o.withCookiePath = p
		}
	}
}

// WithEnforcePrivacy makes the gate redirect unauthenticated requests to the
// login page. Without it the gate only performs the torn-identity check on
// requests that already carry a session.
func WithEnforcePrivacy() Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok {
			o.withEnforcePrivacy = true
		}
	}
}

// WithGateExemption registers a predicate exempting matching unauthenticated
// requests from the privacy redirect, for things like health checks and
// background-task endpoints. Predicates run in registration order.
func WithGateExemption(f GateExemptionFn) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && f != nil {
			o.withGateExemptions = append(o.withGateExemptions, f)
		}
	}
}

// WithInsecureCookies drops the Secure attribute from the tracking cookie.
// Only for local development over plain http.
func WithInsecureCookies() Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok {
			o.withCookieSecure = false
		}
	}
}

// WithOnLogin registers a callback fired after every session establishment.
// Callbacks run synchronously in registration order.
func WithOnLogin(f LoginEventFn) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && f != nil {
			o.withOnLogin = append(o.withOnLogin, f)
		}
	}
}

// WithNow overrides the controller's time source for tests.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && now != nil {
			o.withNow = now
		}
	}
}

// SessionManager is the host application's session layer. The controller
// calls it to bind/unbind an authenticated user to the browser.
type SessionManager interface {
	// Establish starts an authenticated session for the user.
	Establish(w http.ResponseWriter, r *http.Request, u *identity.User) error

	// Clear tears down the current session, if any.
	Clear(w http.ResponseWriter, r *http.Request) error

	// CurrentUserID returns the user id bound to the request's session and
	// whether one is bound at all.
	CurrentUserID(r *http.Request) (string, bool)
}
