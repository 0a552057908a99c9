// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// IDToken is an oidc id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims retrieves the IDToken claims without verifying them. Most callers
// want Client.VerifyIDToken instead.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return NewError(ErrInvalidParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("id_token is empty"))
	}
	if claims == nil {
		return NewError(ErrNilParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("claims interface is nil"))
	}
	return UnmarshalClaims(string(t), claims)
}

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token.
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token.
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// Token represents the response of a successful authorization code exchange:
// an oidc id_token, an oauth2 access_token and optionally a refresh_token,
// along with the access token's expiry.
type Token struct {
	idToken      IDToken
	accessToken  AccessToken
	refreshToken RefreshToken
	tokenType    string
	expiry       time.Time

	underlying *oauth2.Token
}

// NewToken creates a Token from an id_token and the oauth2 token returned by
// the exchange. It fails with ErrInvalidTokenResponse when either the
// id_token or the access_token are missing.
func NewToken(idToken IDToken, t *oauth2.Token) (*Token, error) {
	const op = "oidc.NewToken"
	if t == nil {
		return nil, NewError(ErrNilParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("token is nil"))
	}
	if idToken == "" {
		return nil, NewError(ErrInvalidTokenResponse, WithOp(op), WithKind(ErrTokenViolation), WithMsg("id_token is missing from the token response"))
	}
	if t.AccessToken == "" {
		return nil, NewError(ErrInvalidTokenResponse, WithOp(op), WithKind(ErrTokenViolation), WithMsg("access_token is missing from the token response"))
	}
	return &Token{
		idToken:      idToken,
		accessToken:  AccessToken(t.AccessToken),
		refreshToken: RefreshToken(t.RefreshToken),
		tokenType:    t.Type(),
		expiry:       t.Expiry,
		underlying:   t,
	}, nil
}

// IDToken returns the token's id_token.
func (t *Token) IDToken() IDToken { return t.idToken }

// AccessToken returns the token's access_token.
func (t *Token) AccessToken() AccessToken { return t.accessToken }

// RefreshToken returns the token's refresh_token, which may be empty.
func (t *Token) RefreshToken() RefreshToken { return t.refreshToken }

// TokenType returns the access token's type, typically "Bearer".
func (t *Token) TokenType() string { return t.tokenType }

// Expiry returns the access token's expiry time.
func (t *Token) Expiry() time.Time { return t.expiry }

// ExpiresIn returns the number of seconds until the access token expires, or
// zero when the provider reported no expiry.
func (t *Token) ExpiresIn() int64 {
	if t.expiry.IsZero() {
		return 0
	}
	d := time.Until(t.expiry)
	if d < 0 {
		return 0
	}
	return int64(d.Round(time.Second).Seconds())
}

const tokenExpirySkew = 10 * time.Second

// Expired returns true when the access token is expired or about to expire.
func (t *Token) Expired(opt ...Option) bool {
	if t.expiry.IsZero() {
		return false
	}
	opts := getTokenOpts(opt...)
	return t.expiry.Round(0).Before(time.Now().Add(opts.withExpirySkew))
}

// Valid returns true when the token has an access token which is not expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.accessToken == "" {
		return false
	}
	return !t.Expired()
}

// StaticTokenSource returns an oauth2.TokenSource which always returns this
// token, suitable for the userinfo request.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(t.underlying)
}

// Response is the serializable form of a Token, persisted as the user's last
// token response for later use (end-session logout for example). Unlike the
// redaction types above, its fields marshal to their real values, so treat a
// marshaled Response as a secret.
type Response struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Response converts the Token into its persistable form.
func (t *Token) Response() Response {
	return Response{
		AccessToken:  string(t.accessToken),
		TokenType:    t.tokenType,
		RefreshToken: string(t.refreshToken),
		IDToken:      string(t.idToken),
		ExpiresIn:    t.ExpiresIn(),
		Expiry:       t.expiry,
	}
}

// tokenOptions is the set of available options for Token functions.
type tokenOptions struct {
	withExpirySkew time.Duration
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: tokenExpirySkew,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed in.
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
