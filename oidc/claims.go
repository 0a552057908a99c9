// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// UnmarshalClaims extracts the claims from the payload segment of a raw
// id_token without verifying its signature.
func UnmarshalClaims(idToken string, claims interface{}) error {
	const op = "oidc.UnmarshalClaims"
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return NewError(ErrMalformedIDToken, WithOp(op), WithKind(ErrTokenViolation), WithMsg("id_token does not have three segments"))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return NewError(ErrMalformedIDToken, WithOp(op), WithKind(ErrTokenViolation), WithMsg("unable to decode id_token payload"), WithWrap(err))
	}
	if err := json.Unmarshal(payload, claims); err != nil {
		return NewError(ErrMalformedIDToken, WithOp(op), WithKind(ErrTokenViolation), WithMsg("unable to unmarshal id_token claims"), WithWrap(err))
	}
	return nil
}

// Audience is an id_token "aud" claim, which the oidc spec allows to be
// either a single string or an array of strings.
type Audience []string

// UnmarshalJSON supports both spellings of the aud claim.
func (a *Audience) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Audience{s}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*a = Audience(many)
	return nil
}

// Contains reports whether the audience includes the given value.
func (a Audience) Contains(v string) bool {
	for _, s := range a {
		if s == v {
			return true
		}
	}
	return false
}

// IDTokenClaims is the decoded payload of an id_token. All claims, including
// any configured identity-key claim, remain available via Claim.
type IDTokenClaims struct {
	Issuer   string   `json:"iss"`
	Subject  string   `json:"sub"`
	Audience Audience `json:"aud"`
	Expiry   int64    `json:"exp"`
	IssuedAt int64    `json:"iat"`
	Nonce    string   `json:"nonce"`

	claims map[string]interface{}
}

// UnmarshalJSON decodes the standard claims and keeps the full claim set for
// Claim lookups.
func (c *IDTokenClaims) UnmarshalJSON(b []byte) error {
	type alias IDTokenClaims
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*c = IDTokenClaims(a)
	return json.Unmarshal(b, &c.claims)
}

// Claim returns the named claim's raw value and whether it was present.
func (c *IDTokenClaims) Claim(name string) (interface{}, bool) {
	v, ok := c.claims[name]
	return v, ok
}

// Claims returns a copy of the full decoded claim set.
func (c *IDTokenClaims) Claims() map[string]interface{} {
	out := make(map[string]interface{}, len(c.claims))
	for k, v := range c.claims {
		out[k] = v
	}
	return out
}

// Identity returns the durable external identity of the authenticated user:
// the value of the configured identity-key claim. It fails with
// ErrNoSubjectIdentity when the claim is absent, empty or not a string.
func (c *IDTokenClaims) Identity(identityKey string) (string, error) {
	const op = "IDTokenClaims.Identity"
	v, ok := c.claims[identityKey]
	if !ok {
		return "", NewError(ErrNoSubjectIdentity, WithOp(op), WithKind(ErrClaimViolation), WithMsg("identity key claim "+identityKey+" is missing"))
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", NewError(ErrNoSubjectIdentity, WithOp(op), WithKind(ErrClaimViolation), WithMsg("identity key claim "+identityKey+" is empty"))
	}
	return s, nil
}

// UserClaims is the decoded response of the provider's userinfo endpoint: the
// subject identifier plus profile attributes.
type UserClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`

	claims map[string]interface{}
}

// UnmarshalJSON decodes the profile claims and keeps the full claim set for
// Claim lookups.
func (u *UserClaims) UnmarshalJSON(b []byte) error {
	type alias UserClaims
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*u = UserClaims(a)
	return json.Unmarshal(b, &u.claims)
}

// Claim returns the named claim's raw value and whether it was present.
func (u *UserClaims) Claim(name string) (interface{}, bool) {
	v, ok := u.claims[name]
	return v, ok
}

// Claims returns a copy of the full decoded claim set.
func (u *UserClaims) Claims() map[string]interface{} {
	out := make(map[string]interface{}, len(u.claims))
	for k, v := range u.claims {
		out[k] = v
	}
	return out
}

// ValidateSubject verifies that the userinfo subject matches the id_token
// subject, which prevents token-substitution attacks. It fails with
// ErrSubjectMismatch when they differ.
func (u *UserClaims) ValidateSubject(idTokenClaims *IDTokenClaims) error {
	const op = "UserClaims.ValidateSubject"
	if idTokenClaims == nil {
		return NewError(ErrNilParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("id_token claims are nil"))
	}
	if u.Subject != idTokenClaims.Subject {
		return NewError(ErrSubjectMismatch, WithOp(op), WithKind(ErrClaimViolation), WithMsg("userinfo subject and id_token subject are not equal"))
	}
	return nil
}
