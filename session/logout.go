// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/oidcauth/rp/oidc"
)

// LogoutLocalValue in the "logout" query parameter skips the provider's
// end-session endpoint and only tears down the local session.
const LogoutLocalValue = "local"

// HandleLogout ends the current session. Unless ?logout=local is given it
// first makes a best-effort end-session request at the provider using the
// user's most recent id_token; the provider's response status is appended to
// the post-logout redirect as ?status=. Local teardown always happens. The
// redirect target comes from ?url= (or ?redirect_to=) and must be a local
// path.
func (c *Controller) HandleLogout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("url")
	if target == "" {
		target = q.Get("redirect_to")
	}
	returnTo := c.safeRedirect(target)

	userID, ok := c.sessions.CurrentUserID(r)
	if ok && q.Get("logout") != LogoutLocalValue {
		if status := c.endUpstreamSession(r, userID); status != 0 {
			returnTo = appendQuery(returnTo, url.Values{
				LogoutStatusParam: {strconv.Itoa(status)},
			})
		}
	}

	c.teardownSession(w, r)
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// endUpstreamSession tells the provider to end its session for the user,
// using the id_token persisted at login. Failures are logged and swallowed;
// logout must always complete locally.
func (c *Controller) endUpstreamSession(r *http.Request, userID string) int {
	raw, err := c.resolver.Store().GetUserMeta(r.Context(), userID, MetaLastTokenResponse)
	if err != nil || raw == "" {
		return 0
	}
	var resp oidc.Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		c.logger.Warn("stored token response is unreadable", "user_id", userID, "err", err)
		return 0
	}
	if resp.IDToken == "" {
		return 0
	}
	status, err := c.client.EndSession(r.Context(), oidc.IDToken(resp.IDToken))
	if err != nil {
		c.logger.Warn("end-session request failed", "user_id", userID, "err", err)
		return 0
	}
	return status
}
