// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewConfig("https://idp.example.com", "test-rp", "fido", []Alg{RS256}, "https://rp.example.com/callback")
		require.NoError(err)
		assert.Equal(DefaultIdentityKey, c.IdentityKey)
		assert.Equal(DefaultStateTimeLimit, c.StateTimeLimit)
		assert.Equal(DefaultRequestTimeout, c.RequestTimeout)
		assert.False(c.HasEndpoints())
	})
	t.Run("explicit-endpoints", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewConfig("https://idp.example.com", "test-rp", "fido", []Alg{ES256}, "https://rp.example.com/callback",
			WithEndpoints(
				"https://idp.example.com/auth",
				"https://idp.example.com/token",
				"https://idp.example.com/userinfo",
				"https://idp.example.com/certs",
			),
			WithEndSessionEndpoint("https://idp.example.com/endsession"),
			WithScopes([]string{"email", "profile"}),
			WithAudiences([]string{"other-aud"}),
			WithIdentityKey("email"),
			WithStateTimeLimit(90*time.Second),
			WithRequestTimeout(2*time.Second),
		)
		require.NoError(err)
		assert.True(c.HasEndpoints())
		assert.Equal("https://idp.example.com/token", c.TokenEndpoint)
		assert.Equal("https://idp.example.com/endsession", c.EndSessionEndpoint)
		assert.Equal([]string{"email", "profile"}, c.Scopes)
		assert.Equal([]string{"other-aud"}, c.Audiences)
		assert.Equal("email", c.IdentityKey)
		assert.Equal(90*time.Second, c.StateTimeLimit)
	})
	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name        string
			issuer      string
			clientID    string
			secret      ClientSecret
			algs        []Alg
			redirectURL string
			opt         []Option
			wantIn      string
		}{
			{name: "missing-client-id", issuer: "https://idp.example.com", secret: "fido", algs: []Alg{RS256}, redirectURL: "https://rp/cb", wantIn: "client id is empty"},
			{name: "missing-client-secret", issuer: "https://idp.example.com", clientID: "rp", algs: []Alg{RS256}, redirectURL: "https://rp/cb", wantIn: "client secret is empty"},
			{name: "missing-redirect", issuer: "https://idp.example.com", clientID: "rp", secret: "fido", algs: []Alg{RS256}, wantIn: "redirect URL is empty"},
			{name: "missing-issuer", clientID: "rp", secret: "fido", algs: []Alg{RS256}, redirectURL: "https://rp/cb", wantIn: "issuer is empty"},
			{name: "bad-issuer-scheme", issuer: "ldap://idp", clientID: "rp", secret: "fido", algs: []Alg{RS256}, redirectURL: "https://rp/cb", wantIn: "scheme is not http or https"},
			{name: "no-algs", issuer: "https://idp.example.com", clientID: "rp", secret: "fido", redirectURL: "https://rp/cb", wantIn: "supported algorithms is empty"},
			{name: "unknown-alg", issuer: "https://idp.example.com", clientID: "rp", secret: "fido", algs: []Alg{"none"}, redirectURL: "https://rp/cb", wantIn: `unsupported algorithm "none"`},
			{
				name: "bad-endpoint", issuer: "https://idp.example.com", clientID: "rp", secret: "fido", algs: []Alg{RS256}, redirectURL: "https://rp/cb",
				opt:    []Option{WithEndSessionEndpoint("not a url scheme")},
				wantIn: "scheme is not http or https",
			},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				_, err := NewConfig(tt.issuer, tt.clientID, tt.secret, tt.algs, tt.redirectURL, tt.opt...)
				require.Error(err)
				assert.ErrorIs(err, ErrInvalidConfiguration)
				assert.Contains(err.Error(), tt.wantIn)
			})
		}
	})
	t.Run("aggregates-all-problems", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewConfig("", "", "", nil, "")
		require.Error(err)
		assert.Contains(err.Error(), "client id is empty")
		assert.Contains(err.Error(), "client secret is empty")
		assert.Contains(err.Error(), "redirect URL is empty")
		assert.Contains(err.Error(), "issuer is empty")
		assert.Contains(err.Error(), "supported algorithms is empty")
	})
	t.Run("nil-config-validate", func(t *testing.T) {
		var c *Config
		require.Error(t, c.Validate())
	})
}

func TestClientSecret_Redaction(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	secret := ClientSecret("fido")
	assert.Equal(RedactedClientSecret, secret.String())
	got, err := json.Marshal(map[string]interface{}{"secret": secret})
	require.NoError(err)
	assert.NotContains(string(got), "fido")
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		require := require.New(t)
		c, err := NewConfig("https://idp.example.com", "rp", "fido", []Alg{RS256}, "https://rp/cb",
			WithRequestTimeout(2*time.Second))
		require.NoError(err)
		hc, err := c.HTTPClient()
		require.NoError(err)
		require.Equal(2*time.Second, hc.Timeout)
	})
	t.Run("bad-ca-pem", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewConfig("https://idp.example.com", "rp", "fido", []Alg{RS256}, "https://rp/cb",
			WithProviderCA("not pem data"))
		require.NoError(err)
		_, err = c.HTTPClient()
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidCACert)
	})
}
