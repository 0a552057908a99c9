// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	goidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	sdkhttp "github.com/oidcauth/rp/sdk/http"
)

// Client provides integration with a provider using the typical 3-legged OIDC
// authorization code flow: generating auth URLs, exchanging codes for tokens,
// verifying id_tokens (including their signature against the provider's
// published keys) and making userinfo requests.
type Client struct {
	config   *Config
	provider *goidc.Provider

	// backgroundCtx is the context used by the client for background
	// activities like refreshing JWKS key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewClient creates and initializes a Client for the OIDC authorization code
// flow. When the config carries explicit endpoints the provider is
// constructed without any outbound request; otherwise the issuer's discovery
// document is fetched.
//
// See Client.Done() which must be called to release client resources.
func NewClient(c *Config) (*Client, error) {
	const op = "oidc.NewClient"
	if c == nil {
		return nil, NewError(ErrNilParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("client config is nil"))
	}
	if err := c.Validate(); err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("client config is invalid"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Client with its background ctx/cancel allows us to use
	// Done() to release resources when returning errors from this function.
	client := &Client{
		config:              c,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	hc, err := c.HTTPClient()
	if err != nil {
		client.Done()
		return nil, WrapError(err, WithOp(op), WithMsg("unable to create http client"))
	}
	octx := sdkhttp.OidcClientContext(client.backgroundCtx, hc)

	switch {
	case c.HasEndpoints():
		algs := make([]string, 0, len(c.SupportedSigningAlgs))
		for _, a := range c.SupportedSigningAlgs {
			algs = append(algs, string(a))
		}
		pc := goidc.ProviderConfig{
			IssuerURL:   c.Issuer,
			AuthURL:     c.AuthEndpoint,
			TokenURL:    c.TokenEndpoint,
			UserInfoURL: c.UserInfoEndpoint,
			JWKSURL:     c.JWKSEndpoint,
			Algorithms:  algs,
		}
		client.provider = pc.NewProvider(octx)
	default:
		p, err := goidc.NewProvider(octx, c.Issuer) // makes an http request for discovery
		if err != nil {
			client.Done()
			// we don't know what's causing the problem, so we won't classify
			// the error with a Code
			return nil, NewError(ErrCodeUnknown, WithOp(op), WithKind(ErrInternal), WithMsg("unable to discover provider"), WithWrap(err))
		}
		client.provider = p
	}

	return client, nil
}

// Done with the client's background resources and must be called for every
// Client created.
func (c *Client) Done() {
	if c == nil {
		return
	}
	if c.backgroundCtxCancel != nil {
		c.backgroundCtxCancel()
		c.backgroundCtxCancel = nil
	}
}

// Config returns the client's (immutable) configuration.
func (c *Client) Config() *Config { return c.config }

func (c *Client) oauthConfig() oauth2.Config {
	// The "openid" scope is required for oidc flows.
	scopes := append([]string{goidc.ScopeOpenID}, c.config.Scopes...)
	return oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: string(c.config.ClientSecret),
		RedirectURL:  c.config.RedirectURL,
		Endpoint:     c.provider.Endpoint(),
		Scopes:       scopes,
	}
}

// AuthURL generates a URL the caller can use to kick off an OIDC
// authorization code flow with the IdP. The state must have been stored
// (see StateStore.Add) so the callback can validate it.
func (c *Client) AuthURL(ctx context.Context, s *State) (string, error) {
	const op = "Client.AuthURL"
	if s == nil {
		return "", NewError(ErrNilParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("state is nil"))
	}
	if s.ID() == s.Nonce() {
		return "", NewError(ErrInvalidParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("state id and nonce cannot be equal"))
	}
	oauthCfg := c.oauthConfig()
	return oauthCfg.AuthCodeURL(s.ID(), goidc.Nonce(s.Nonce())), nil
}

// Exchange requests a token from the oidc token endpoint using the
// authorization code received in a callback. On success the Token returned
// includes a verified-decodable id_token and an access_token. Transport
// failures and non-2xx token endpoint responses fail with
// ErrTokenRequestFailed; a well-formed response missing id_token or
// access_token fails with ErrInvalidTokenResponse.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	const op = "Client.Exchange"
	if code == "" {
		return nil, NewError(ErrMissingCode, WithOp(op), WithKind(ErrProtocolViolation), WithMsg("authorization code is empty"))
	}
	hc, err := c.config.HTTPClient()
	if err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("unable to create http client"))
	}
	octx := sdkhttp.OidcClientContext(ctx, hc)

	oauthCfg := c.oauthConfig()
	oauth2Token, err := oauthCfg.Exchange(octx, code)
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok && rErr.Response != nil {
			return nil, NewError(ErrTokenRequestFailed, WithOp(op), WithKind(ErrTokenViolation),
				WithMsg("token endpoint returned "+rErr.Response.Status), WithWrap(err))
		}
		return nil, NewError(ErrTokenRequestFailed, WithOp(op), WithKind(ErrTokenViolation),
			WithMsg("unable to exchange authorization code with provider"), WithWrap(err))
	}

	idToken, _ := oauth2Token.Extra("id_token").(string)
	t, err := NewToken(IDToken(idToken), oauth2Token)
	if err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	return t, nil
}

// VerifyIDToken verifies the inbound id_token and returns its decoded claims.
// Claim values are checked individually so each failure keeps its own code:
// expiry (ErrTokenExpired), issuer (ErrIssuerMismatch), audience
// (ErrAudienceMismatch), nonce (ErrInvalidNonce). Finally the token's
// signature is verified against the provider's published keys
// (ErrInvalidSignature).
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (c *Client) VerifyIDToken(ctx context.Context, t IDToken, s *State, opt ...Option) (*IDTokenClaims, error) {
	const op = "Client.VerifyIDToken"
	if t == "" {
		return nil, NewError(ErrInvalidParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("id_token is empty"))
	}
	opts := getVerifyOpts(opt...)
	now := opts.withNow

	var claims IDTokenClaims
	if err := UnmarshalClaims(string(t), &claims); err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("unable to decode id_token"))
	}

	if time.Unix(claims.Expiry, 0).Before(now()) {
		return nil, NewError(ErrTokenExpired, WithOp(op), WithKind(ErrClaimViolation), WithMsg("id_token is expired"))
	}
	if claims.Issuer != c.config.Issuer {
		return nil, NewError(ErrIssuerMismatch, WithOp(op), WithKind(ErrClaimViolation), WithMsg("id_token issuer does not match the configured provider"))
	}
	if err := c.verifyAudience(claims.Audience); err != nil {
		return nil, WrapError(err, WithOp(op))
	}
	if s != nil && claims.Nonce != s.Nonce() {
		return nil, NewError(ErrInvalidNonce, WithOp(op), WithKind(ErrClaimViolation), WithMsg("id_token nonce does not match the authentication request"))
	}

	// The individual checks above already produced a specific code for every
	// claim problem, so the verifier only has the signature left to fail on.
	algs := make([]string, 0, len(c.config.SupportedSigningAlgs))
	for _, a := range c.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	verifier := c.provider.Verifier(&goidc.Config{
		ClientID:             c.config.ClientID,
		SupportedSigningAlgs: algs,
		SkipClientIDCheck:    true,
		SkipExpiryCheck:      true,
		SkipIssuerCheck:      true,
		Now:                  now,
	})
	if _, err := verifier.Verify(ctx, string(t)); err != nil {
		return nil, NewError(ErrInvalidSignature, WithOp(op), WithKind(ErrTokenViolation), WithMsg("id_token signature verification failed"), WithWrap(err))
	}

	return &claims, nil
}

func (c *Client) verifyAudience(aud Audience) error {
	const op = "Client.verifyAudience"
	if aud.Contains(c.config.ClientID) {
		return nil
	}
	for _, a := range c.config.Audiences {
		if aud.Contains(a) {
			return nil
		}
	}
	return NewError(ErrAudienceMismatch, WithOp(op), WithKind(ErrClaimViolation), WithMsg("id_token audience does not include the configured client"))
}

// UserInfo gets the UserClaims from the provider's userinfo endpoint using
// the given token source, and verifies that the returned subject equals sub
// (the id_token's subject).
func (c *Client) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, sub string) (*UserClaims, error) {
	const op = "Client.UserInfo"
	if tokenSource == nil {
		return nil, NewError(ErrNilParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("token source is nil"))
	}
	hc, err := c.config.HTTPClient()
	if err != nil {
		return nil, WrapError(err, WithOp(op), WithMsg("unable to create http client"))
	}
	octx := sdkhttp.OidcClientContext(ctx, hc)

	info, err := c.provider.UserInfo(octx, tokenSource)
	if err != nil {
		return nil, NewError(ErrUserinfoRequestFailed, WithOp(op), WithKind(ErrTokenViolation), WithMsg("provider userinfo request failed"), WithWrap(err))
	}
	var claims UserClaims
	if err := info.Claims(&claims); err != nil {
		return nil, NewError(ErrUserinfoRequestFailed, WithOp(op), WithKind(ErrTokenViolation), WithMsg("unable to decode userinfo claims"), WithWrap(err))
	}
	if claims.Subject == "" {
		claims.Subject = info.Subject
	}
	if sub != "" && claims.Subject != sub {
		return nil, NewError(ErrSubjectMismatch, WithOp(op), WithKind(ErrClaimViolation), WithMsg("userinfo subject and id_token subject are not equal"))
	}
	return &claims, nil
}

// DefaultEndSessionTimeout bounds the best-effort end-session request made
// during logout.
const DefaultEndSessionTimeout = 10 * time.Second

// EndSession posts the id_token to the provider's end-session endpoint,
// requesting a provider-side logout. It is best effort: callers should treat
// a non-200 status or an error as advisory and still clear local session
// state. The returned status is zero when no request was made.
func (c *Client) EndSession(ctx context.Context, idToken IDToken) (int, error) {
	const op = "Client.EndSession"
	if c.config.EndSessionEndpoint == "" {
		return 0, nil
	}
	if idToken == "" {
		return 0, NewError(ErrInvalidParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("id_token is empty"))
	}
	hc, err := c.config.HTTPClient()
	if err != nil {
		return 0, WrapError(err, WithOp(op), WithMsg("unable to create http client"))
	}
	hc.Timeout = DefaultEndSessionTimeout

	form := url.Values{"token": {string(idToken)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.EndSessionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, NewError(ErrInvalidParameter, WithOp(op), WithKind(ErrParameterViolation), WithMsg("unable to create end session request"), WithWrap(err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return 0, NewError(ErrCodeUnknown, WithOp(op), WithKind(ErrInternal), WithMsg("end session request failed"), WithWrap(err))
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// verifyOptions is the set of available options for Client.VerifyIDToken.
type verifyOptions struct {
	withNow func() time.Time
}

func verifyDefaults() verifyOptions {
	return verifyOptions{
		withNow: time.Now,
	}
}

func getVerifyOpts(opt ...Option) verifyOptions {
	opts := verifyDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
