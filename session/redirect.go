// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/oidcauth/rp/oidc"
)

// Query parameters carried on redirects back to the login page.
const (
	// LoginErrorParam carries the stable error code of a failed login.
	LoginErrorParam = "login-error"

	// LoginMessageParam carries a short human-readable description.
	LoginMessageParam = "message"

	// LogoutStatusParam carries the provider's end-session response status
	// on the post-logout redirect.
	LogoutStatusParam = "status"

	// LoggedOutParam marks a request arriving right after logout; the gate
	// lets it through so the host can confirm the logout to the user.
	LoggedOutParam = "logged-out"
)

// errorRedirect sends the browser back to the login page with the failure's
// stable code and a short message in the query string.
func (c *Controller) errorRedirect(w http.ResponseWriter, r *http.Request, code oidc.Code, msg string) {
	target := appendQuery(c.loginURL, url.Values{
		LoginErrorParam:   {string(code)},
		LoginMessageParam: {msg},
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// codeOf extracts the stable error code from err, falling back to
// ErrCodeUnknown.
func codeOf(err error) oidc.Code {
	var e *oidc.Err
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	var c oidc.Code
	if errors.As(err, &c) {
		return c
	}
	return oidc.ErrCodeUnknown
}

// appendQuery merges extra query values onto a target that may already carry
// some.
func appendQuery(target string, extra url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for k, vs := range extra {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// safeRedirect validates a requested redirect target, allowing only local
// paths. Anything else falls back to the controller's default.
func (c *Controller) safeRedirect(requested string) string {
	if requested == "" {
		return c.defaultRedirect
	}
	if !strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, "//") || strings.HasPrefix(requested, "/\\") {
		return c.defaultRedirect
	}
	if u, err := url.Parse(requested); err != nil || u.Host != "" || u.Scheme != "" {
		return c.defaultRedirect
	}
	return requested
}
