// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"

	sdkhttp "github.com/oidcauth/rp/sdk/http"
	"github.com/oidcauth/rp/sdk/strutils"
)

// ClientSecret is an oauth client secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Alg represents asymmetric signing algorithms.
type Alg string

const (
	RS256 Alg = "RS256"
	RS384 Alg = "RS384"
	RS512 Alg = "RS512"
	ES256 Alg = "ES256"
	ES384 Alg = "ES384"
	ES512 Alg = "ES512"
	PS256 Alg = "PS256"
	PS384 Alg = "PS384"
	PS512 Alg = "PS512"
)

var supportedAlgorithms = map[Alg]bool{
	RS256: true,
	RS384: true,
	RS512: true,
	ES256: true,
	ES384: true,
	ES512: true,
	PS256: true,
	PS384: true,
	PS512: true,
}

const (
	// DefaultStateTimeLimit is how long a generated authorization state stays
	// valid when no override is configured.
	DefaultStateTimeLimit = 180 * time.Second

	// DefaultRequestTimeout bounds token and userinfo requests to the provider.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultIdentityKey is the id_token claim used as the durable external
	// identity of the authenticated user.
	DefaultIdentityKey = "preferred_username"
)

// Config represents the configuration for a typical 3-legged OIDC
// authorization code flow. It is immutable after NewConfig returns it.
type Config struct {
	// ClientID is the relying party id.
	ClientID string

	// ClientSecret is the relying party secret.
	ClientSecret ClientSecret

	// Scopes is a list of additional oidc scopes to request of the provider.
	// The required "openid" scope is requested by default, and should not be
	// part of this optional list.
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components. When the endpoint URLs below are
	// empty, they are discovered from the issuer's well-known configuration.
	Issuer string

	// AuthEndpoint, TokenEndpoint, UserInfoEndpoint and JWKSEndpoint are the
	// provider's endpoint URLs. When all are set no discovery request is made.
	AuthEndpoint     string
	TokenEndpoint    string
	UserInfoEndpoint string
	JWKSEndpoint     string

	// EndSessionEndpoint is the provider's optional logout endpoint. When set,
	// logout makes a best-effort outbound end-session call.
	EndSessionEndpoint string

	// RedirectURL is the URL the provider redirects the authorization code
	// callback to.
	RedirectURL string

	// SupportedSigningAlgs is a list of supported signing algorithms. List of
	// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512,
	// PS256, PS384, PS512
	SupportedSigningAlgs []Alg

	// Audiences is an optional list of case-sensitive strings accepted when
	// verifying an id_token's "aud" claim, in addition to the ClientID.
	Audiences []string

	// IdentityKey is the id_token claim used as the durable external identity
	// of the authenticated user (default "preferred_username").
	IdentityKey string

	// StateTimeLimit is how long a generated authorization state stays valid.
	StateTimeLimit time.Duration

	// RequestTimeout bounds each outbound request to the provider.
	RequestTimeout time.Duration

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// SkipTLSVerify disables TLS certificate verification on requests to the
	// provider. Intended for development setups only.
	SkipTLSVerify bool

	// RoundTripper is an optional hook wrapping the transport of every
	// outbound request to the provider.
	RoundTripper sdkhttp.RoundTripperFunc
}

// NewConfig composes a new config for a provider, validating it before
// returning. All validation failures carry the ErrConfigViolation kind and are
// fatal to initialization only, never per-request.
//
// Supported options: WithEndpoints, WithEndSessionEndpoint, WithScopes,
// WithAudiences, WithIdentityKey, WithStateTimeLimit, WithRequestTimeout,
// WithProviderCA, WithSkipTLSVerify, WithRoundTripper
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, redirectURL string, opt ...Option) (*Config, error) {
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:               issuer,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		SupportedSigningAlgs: supported,
		RedirectURL:          redirectURL,
		AuthEndpoint:         opts.withAuthEndpoint,
		TokenEndpoint:        opts.withTokenEndpoint,
		UserInfoEndpoint:     opts.withUserInfoEndpoint,
		JWKSEndpoint:         opts.withJWKSEndpoint,
		EndSessionEndpoint:   opts.withEndSessionEndpoint,
		Scopes:               opts.withScopes,
		Audiences:            opts.withAudiences,
		IdentityKey:          opts.withIdentityKey,
		StateTimeLimit:       opts.withStateTimeLimit,
		RequestTimeout:       opts.withRequestTimeout,
		ProviderCA:           opts.withProviderCA,
		SkipTLSVerify:        opts.withSkipTLSVerify,
		RoundTripper:         opts.withRoundTripper,
	}
	if c.IdentityKey == "" {
		c.IdentityKey = DefaultIdentityKey
	}
	if c.StateTimeLimit == 0 {
		c.StateTimeLimit = DefaultStateTimeLimit
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate the provider configuration. Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the issuer is discoverable
// via an http request. All problems found are aggregated into the returned
// error.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return NewError(ErrNilParameter, WithOp(op), WithKind(ErrConfigViolation), WithMsg("config is nil"))
	}

	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty"))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("client secret is empty"))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("redirect URL is empty"))
	}
	if c.Issuer == "" {
		result = multierror.Append(result, fmt.Errorf("issuer is empty"))
	} else if err := validateURL("issuer", c.Issuer); err != nil {
		result = multierror.Append(result, err)
	}
	endpoints := map[string]string{
		"auth endpoint":        c.AuthEndpoint,
		"token endpoint":       c.TokenEndpoint,
		"userinfo endpoint":    c.UserInfoEndpoint,
		"jwks endpoint":        c.JWKSEndpoint,
		"end session endpoint": c.EndSessionEndpoint,
	}
	for name, u := range endpoints {
		if u == "" {
			continue
		}
		if err := validateURL(name, u); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if len(c.SupportedSigningAlgs) == 0 {
		result = multierror.Append(result, fmt.Errorf("supported algorithms is empty"))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("unsupported algorithm %q", a))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return NewError(ErrInvalidConfiguration, WithOp(op), WithKind(ErrConfigViolation), WithMsg("invalid provider config"), WithWrap(err))
	}
	return nil
}

func validateURL(name, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s %s is invalid: %w", name, rawURL, err)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("%s %s scheme is not http or https", name, rawURL)
	}
	return nil
}

// HasEndpoints is true when all endpoints required to run the flow without a
// discovery request are configured.
func (c *Config) HasEndpoints() bool {
	return c.AuthEndpoint != "" && c.TokenEndpoint != "" && c.JWKSEndpoint != ""
}

// HTTPClient creates a new http client for the configured provider.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkhttp.NewClient(sdkhttp.Options{
		CAPem:         c.ProviderCA,
		SkipTLSVerify: c.SkipTLSVerify,
		Timeout:       c.RequestTimeout,
		RoundTripper:  c.RoundTripper,
	})
	if err != nil {
		if err == sdkhttp.ErrInvalidCertificatePem {
			return nil, NewError(ErrInvalidCACert, WithOp(op), WithKind(ErrConfigViolation), WithMsg("could not parse CA PEM value"))
		}
		return nil, NewError(ErrInvalidConfiguration, WithOp(op), WithKind(ErrConfigViolation), WithMsg("could not get an http client"), WithWrap(err))
	}
	return client, nil
}

// configOptions is the set of available options for Config functions.
type configOptions struct {
	withAuthEndpoint       string
	withTokenEndpoint      string
	withUserInfoEndpoint   string
	withJWKSEndpoint       string
	withEndSessionEndpoint string
	withScopes             []string
	withAudiences          []string
	withIdentityKey        string
	withStateTimeLimit     time.Duration
	withRequestTimeout     time.Duration
	withProviderCA         string
	withSkipTLSVerify      bool
	withRoundTripper       sdkhttp.RoundTripperFunc
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the config defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithEndpoints provides the provider's authorization, token, userinfo and
// jwks endpoint URLs, bypassing discovery.
func WithEndpoints(auth, token, userinfo, jwks string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthEndpoint = auth
			o.withTokenEndpoint = token
			o.withUserInfoEndpoint = userinfo
			o.withJWKSEndpoint = jwks
		}
	}
}

// WithEndSessionEndpoint provides an optional end-session (logout) endpoint.
func WithEndSessionEndpoint(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withEndSessionEndpoint = u
		}
	}
}

// WithScopes provides an optional list of scopes for the provider's config.
func WithScopes(scopes []string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudiences provides an optional list of audiences for the provider's config.
func WithAudiences(auds []string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = auds
		}
	}
}

// WithIdentityKey provides an optional id_token claim name used as the durable
// external identity of the user.
func WithIdentityKey(key string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withIdentityKey = key
		}
	}
}

// WithStateTimeLimit provides an optional expiry limit for authorization states.
func WithStateTimeLimit(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withStateTimeLimit = d
		}
	}
}

// WithRequestTimeout provides an optional timeout for requests to the provider.
func WithRequestTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRequestTimeout = d
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithSkipTLSVerify disables TLS certificate verification for requests to the
// provider.
func WithSkipTLSVerify() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSkipTLSVerify = true
		}
	}
}

// WithRoundTripper provides an optional hook wrapping the transport of every
// outbound request to the provider.
func WithRoundTripper(f sdkhttp.RoundTripperFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRoundTripper = f
		}
	}
}
