// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"net/http"

	"github.com/oidcauth/rp/identity"
	"github.com/oidcauth/rp/oidc"
)

// Gate wraps next with the controller's authentication checks.
//
// Requests with an established session are always checked for a torn
// identity, whether or not privacy enforcement is on: an account managed
// through the login flow whose tracking cookie is gone was logged out at the
// provider or from another tab, so the session is torn down and the user is
// sent back to log in again.
//
// With privacy enforcement on (WithEnforcePrivacy), unauthenticated requests
// are redirected to the login page, except for the login page itself, the
// provider callback, requests already carrying a login-error or logged-out
// marker (so those pages can render instead of looping), and requests
// matching a WithGateExemption predicate. Without it, unauthenticated
// requests pass through.
func (c *Controller) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := c.sessions.CurrentUserID(r)
		if !ok {
			if !c.enforcePrivacy || c.gateExempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, c.loginURL, http.StatusFound)
			return
		}

		if c.identityTorn(r, userID) {
			c.logger.Warn("managed session lost its tracking cookie; tearing down", "user_id", userID)
			c.teardownSession(w, r)
			c.errorRedirect(w, r, oidc.ErrMismatchIdentity, "session no longer matches its identity")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gateExempt reports whether an unauthenticated request may pass the gate.
func (c *Controller) gateExempt(r *http.Request) bool {
	switch r.URL.Path {
	case c.loginURL, c.callbackPath:
		return true
	}
	q := r.URL.Query()
	if q.Has(LoginErrorParam) || q.Has(LoggedOutParam) {
		return true
	}
	for _, f := range c.gateExemptions {
		if f(r) {
			return true
		}
	}
	return false
}

// identityTorn reports whether the session's user is OIDC-managed while the
// browser no longer presents the tracking cookie.
func (c *Controller) identityTorn(r *http.Request, userID string) bool {
	managed, err := c.resolver.Store().GetUserMeta(r.Context(), userID, identity.MetaManagedUser)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			c.logger.Error("reading managed marker failed", "user_id", userID, "err", err)
		}
		return false
	}
	if managed == "" {
		return false
	}
	if _, err := r.Cookie(c.cookieName); err == nil {
		return false
	}
	return true
}
