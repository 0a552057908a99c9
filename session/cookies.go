// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/oidcauth/rp/identity"
	"github.com/oidcauth/rp/oidc"
)

// DefaultSessionCookieName names the cookie CookieSessions stores the
// authenticated user id in.
const DefaultSessionCookieName = "app_session"

// CookieSessions is a minimal SessionManager keeping the authenticated user
// id in an HMAC-signed session cookie. Hosts with their own session layer
// should implement SessionManager against it instead.
type CookieSessions struct {
	// Name of the session cookie. Defaults to DefaultSessionCookieName.
	Name string

	// Path attribute for the cookie. Defaults to "/".
	Path string

	// Insecure drops the cookie's Secure attribute, for local development
	// over plain http.
	Insecure bool

	secret []byte
}

// NewCookieSessions creates a CookieSessions signing with the given secret,
// which must be at least 32 bytes.
func NewCookieSessions(secret []byte) (*CookieSessions, error) {
	const op = "session.NewCookieSessions"
	if len(secret) < 32 {
		return nil, fmt.Errorf("%s: secret must be at least 32 bytes: %w", op, oidc.ErrInvalidParameter)
	}
	return &CookieSessions{
		Name:   DefaultSessionCookieName,
		Path:   "/",
		secret: secret,
	}, nil
}

func (s *CookieSessions) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Establish implements SessionManager.
func (s *CookieSessions) Establish(w http.ResponseWriter, r *http.Request, u *identity.User) error {
	const op = "session.(CookieSessions).Establish"
	if u == nil || u.ID == "" {
		return fmt.Errorf("%s: missing user: %w", op, oidc.ErrInvalidParameter)
	}
	payload := base64.RawURLEncoding.EncodeToString([]byte(u.ID))
	http.SetCookie(w, &http.Cookie{
		Name:     s.Name,
		Value:    payload + "." + s.sign(payload),
		Path:     s.Path,
		HttpOnly: true,
		Secure:   !s.Insecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear implements SessionManager.
func (s *CookieSessions) Clear(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     s.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !s.Insecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// CurrentUserID implements SessionManager.
func (s *CookieSessions) CurrentUserID(r *http.Request) (string, bool) {
	ck, err := r.Cookie(s.Name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	payload, sig, found := strings.Cut(ck.Value, ".")
	if !found || !hmac.Equal([]byte(sig), []byte(s.sign(payload))) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}
