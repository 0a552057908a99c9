// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/oidcauth/rp/identity"
	"github.com/oidcauth/rp/oidc"
)

const (
	// DefaultLoginURL is the path of the host's login page.
	DefaultLoginURL = "/login"

	// DefaultCallbackPath is where the provider redirects back to.
	DefaultCallbackPath = "/callback"

	// DefaultTrackingCookieName names the cookie which tracks that the
	// browser's session was established through the OIDC flow.
	DefaultTrackingCookieName = "oidc_tracking"
)

// Metadata attribute keys the controller maintains on logged-in users.
const (
	// MetaLastTokenResponse holds the raw token response from the user's
	// most recent login, as JSON.
	MetaLastTokenResponse = "oidc-last-token-response"

	// MetaLastIDTokenClaims holds the id_token claims from the user's most
	// recent login, as JSON.
	MetaLastIDTokenClaims = "oidc-last-id-token-claims"

	// MetaLastUserClaims holds the userinfo claims from the user's most
	// recent login, as JSON.
	MetaLastUserClaims = "oidc-last-user-claims"
)

// Controller drives the relying-party login flow for a host application: it
// serves the login redirect, the provider callback and logout, persists
// per-login metadata, and gates requests on an established session.
type Controller struct {
	client   *oidc.Client
	states   *oidc.StateStore
	resolver *identity.Resolver
	sessions SessionManager
	logger   hclog.Logger

	loginURL        string
	callbackPath    string
	defaultRedirect string
	cookieName      string
	cookiePath      string
	cookieSecure    bool
	enforcePrivacy  bool
	gateExemptions  []GateExemptionFn
	onLogin         []LoginEventFn
	now             func() time.Time
}

// NewController assembles a Controller from the protocol client, the pending
// state store, the identity resolver and the host's session layer.
//
// Supported options: WithLogger, WithLoginURL, WithCallbackPath,
// WithDefaultRedirect, WithTrackingCookieName, WithCookiePath,
// WithInsecureCookies, WithEnforcePrivacy, WithGateExemption, WithOnLogin,
// WithNow.
func NewController(client *oidc.Client, states *oidc.StateStore, resolver *identity.Resolver, sessions SessionManager, opt ...Option) (*Controller, error) {
	const op = "session.NewController"
	if client == nil {
		return nil, fmt.Errorf("%s: nil client: %w", op, oidc.ErrNilParameter)
	}
	if states == nil {
		return nil, fmt.Errorf("%s: nil state store: %w", op, oidc.ErrNilParameter)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%s: nil resolver: %w", op, oidc.ErrNilParameter)
	}
	if sessions == nil {
		return nil, fmt.Errorf("%s: nil session manager: %w", op, oidc.ErrNilParameter)
	}
	opts := getControllerOpts(opt...)
	return &Controller{
		client:          client,
		states:          states,
		resolver:        resolver,
		sessions:        sessions,
		logger:          opts.withLogger,
		loginURL:        opts.withLoginURL,
		callbackPath:    opts.withCallbackPath,
		defaultRedirect: opts.withDefaultRedirect,
		cookieName:      opts.withCookieName,
		cookiePath:      opts.withCookiePath,
		cookieSecure:    opts.withCookieSecure,
		enforcePrivacy:  opts.withEnforcePrivacy,
		gateExemptions:  opts.withGateExemptions,
		onLogin:         opts.withOnLogin,
		now:             opts.withNow,
	}, nil
}

// establishSession records the login on the user and binds it to the
// browser: last token/claim metadata, the tracking cookie (carrying the
// asserted identity, living as long as the access token), and the host
// session itself.
func (c *Controller) establishSession(ctx context.Context, w http.ResponseWriter, r *http.Request, u *identity.User, identityVal string, t *oidc.Token, idClaims *oidc.IDTokenClaims, userClaims *oidc.UserClaims) error {
	const op = "session.(Controller).establishSession"
	store := c.resolver.Store()

	resp, err := json.Marshal(t.Response())
	if err != nil {
		return fmt.Errorf("%s: marshal token response: %w", op, err)
	}
	if err := store.SetUserMeta(ctx, u.ID, MetaLastTokenResponse, string(resp)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	idc, err := json.Marshal(idClaims.Claims())
	if err != nil {
		return fmt.Errorf("%s: marshal id_token claims: %w", op, err)
	}
	if err := store.SetUserMeta(ctx, u.ID, MetaLastIDTokenClaims, string(idc)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	uc, err := json.Marshal(userClaims.Claims())
	if err != nil {
		return fmt.Errorf("%s: marshal user claims: %w", op, err)
	}
	if err := store.SetUserMeta(ctx, u.ID, MetaLastUserClaims, string(uc)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	maxAge := int(t.ExpiresIn())
	if maxAge <= 0 {
		maxAge = int(oidc.DefaultStateTimeLimit / time.Second)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    identityVal,
		Path:     c.cookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if err := c.sessions.Establish(w, r, u); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Info("session established", "user_id", u.ID, "username", u.Username)
	for _, f := range c.onLogin {
		f(ctx, u, t)
	}
	return nil
}

// teardownSession clears both the host session and the tracking cookie.
func (c *Controller) teardownSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    "",
		Path:     c.cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	if err := c.sessions.Clear(w, r); err != nil {
		c.logger.Error("clearing session failed", "err", err)
	}
}
