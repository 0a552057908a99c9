// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"net/http"

	"github.com/oidcauth/rp/oidc"
)

// HandleLogin starts an authentication flow: it mints a one-time state,
// stores it as pending and redirects the browser to the provider's
// authorization endpoint.
func (c *Controller) HandleLogin(w http.ResponseWriter, r *http.Request) {
	st, err := oidc.NewState(c.client.Config().StateTimeLimit)
	if err != nil {
		c.logger.Error("unable to create authorization state", "err", err)
		c.errorRedirect(w, r, codeOf(err), "unable to start login")
		return
	}
	if err := c.states.Add(st); err != nil {
		c.logger.Error("unable to store authorization state", "err", err)
		c.errorRedirect(w, r, codeOf(err), "unable to start login")
		return
	}

	authURL, err := c.client.AuthURL(r.Context(), st)
	if err != nil {
		c.logger.Error("unable to build authorization URL", "err", err)
		c.errorRedirect(w, r, codeOf(err), "unable to start login")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}
