// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oidcauth/rp/oidc"
)

// HandleCallback finishes an authentication flow. The pending state is
// consumed first, so a callback URL can never be replayed; every later
// failure sends the browser back to the login page with a stable error code.
func (c *Controller) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	st, err := c.states.Consume(q.Get("state"))
	if err != nil {
		c.logger.Warn("callback with unusable state", "err", err)
		c.errorRedirect(w, r, oidc.ErrInvalidAuthState, "login session is unknown or expired")
		return
	}

	if e := q.Get("error"); e != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = e
		}
		c.logger.Warn("provider returned an error", "error", e, "description", msg)
		c.errorRedirect(w, r, oidc.ErrIdpError, msg)
		return
	}
	code := q.Get("code")
	if code == "" {
		c.errorRedirect(w, r, oidc.ErrMissingCode, "no authorization code in callback")
		return
	}

	t, err := c.client.Exchange(ctx, code)
	if err != nil {
		c.logger.Error("code exchange failed", "err", err)
		c.errorRedirect(w, r, codeOf(err), "unable to exchange authorization code")
		return
	}
	idClaims, err := c.client.VerifyIDToken(ctx, t.IDToken(), st)
	if err != nil {
		c.logger.Error("id_token rejected", "err", err)
		c.errorRedirect(w, r, codeOf(err), "identity token failed validation")
		return
	}
	identityVal, err := idClaims.Identity(c.client.Config().IdentityKey)
	if err != nil {
		c.logger.Error("no subject identity in id_token", "err", err, "identity_key", c.client.Config().IdentityKey)
		c.errorRedirect(w, r, codeOf(err), "identity token carries no usable identity")
		return
	}

	userClaims, err := c.fetchUserClaims(r, t, idClaims)
	if err != nil {
		c.logger.Error("resolving user claims failed", "err", err)
		c.errorRedirect(w, r, codeOf(err), "unable to resolve user claims")
		return
	}
	if err := userClaims.ValidateSubject(idClaims); err != nil {
		c.logger.Error("userinfo subject mismatch", "err", err)
		c.errorRedirect(w, r, codeOf(err), "userinfo response is for a different subject")
		return
	}

	u, created, err := c.resolver.Resolve(ctx, identityVal, userClaims)
	if err != nil {
		c.logger.Error("identity resolution failed", "err", err)
		c.errorRedirect(w, r, codeOf(err), "unable to resolve a local account")
		return
	}
	if u == nil || u.ID == "" {
		c.errorRedirect(w, r, oidc.ErrInvalidUser, "resolved account is not usable")
		return
	}
	if created {
		c.logger.Info("provisioned account on first login", "user_id", u.ID, "username", u.Username)
	}

	if err := c.establishSession(ctx, w, r, u, identityVal, t, idClaims, userClaims); err != nil {
		c.logger.Error("establishing session failed", "err", err)
		c.errorRedirect(w, r, codeOf(err), "unable to establish a session")
		return
	}
	http.Redirect(w, r, c.defaultRedirect, http.StatusFound)
}

// fetchUserClaims asks the userinfo endpoint about the authenticated
// subject. When the provider has no userinfo endpoint the id_token claims
// stand in.
func (c *Controller) fetchUserClaims(r *http.Request, t *oidc.Token, idClaims *oidc.IDTokenClaims) (*oidc.UserClaims, error) {
	const op = "session.(Controller).fetchUserClaims"
	cfg := c.client.Config()
	if cfg.HasEndpoints() && cfg.UserInfoEndpoint == "" {
		data, err := json.Marshal(idClaims.Claims())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		var uc oidc.UserClaims
		if err := json.Unmarshal(data, &uc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &uc, nil
	}
	uc, err := c.client.UserInfo(r.Context(), t.StaticTokenSource(), idClaims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return uc, nil
}
