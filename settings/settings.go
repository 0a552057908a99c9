// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

// settings holds the host-facing configuration for the login flow and turns
// it into the protocol client's Config.
package settings

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/oidcauth/rp/oidc"
)

// Settings is everything a host configures about the login integration.
// Field defaults match a plain code-flow setup against a discovery-capable
// provider.
type Settings struct {
	// Client credentials issued by the provider.
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`

	// Issuer is the provider's issuer URL. When the individual endpoints
	// below are empty it is also used for discovery.
	Issuer string `env:"ISSUER"`

	// Explicit provider endpoints. Either all of Auth/Token (and usually
	// JWKS) are set, or none and discovery is used.
	AuthEndpoint       string `env:"AUTH_ENDPOINT"`
	TokenEndpoint      string `env:"TOKEN_ENDPOINT"`
	UserinfoEndpoint   string `env:"USERINFO_ENDPOINT"`
	JWKSEndpoint       string `env:"JWKS_ENDPOINT"`
	EndSessionEndpoint string `env:"END_SESSION_ENDPOINT"`

	// RedirectURL is this application's callback URL as registered with the
	// provider.
	RedirectURL string `env:"REDIRECT_URL"`

	// Scopes requested beyond openid.
	Scopes []string `env:"SCOPES" envSeparator:" " envDefault:"email profile"`

	// SigningAlgs the provider may use on id_tokens.
	SigningAlgs []oidc.Alg `env:"SIGNING_ALGS" envSeparator:" " envDefault:"RS256"`

	// IdentityKey names the id_token claim used as the durable subject
	// identity.
	IdentityKey string `env:"IDENTITY_KEY" envDefault:"preferred_username"`

	// StateTimeLimit bounds how long a login may take between the redirect
	// to the provider and the callback.
	StateTimeLimit time.Duration `env:"STATE_TIME_LIMIT" envDefault:"180s"`

	// RequestTimeout bounds server-to-server calls to the provider.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`

	// CreateUsers allows provisioning local accounts on first login. When
	// false, only identities already bound to an account may log in.
	CreateUsers bool `env:"CREATE_USERS" envDefault:"true"`

	// EnforcePrivacy gates every request on an established session.
	EnforcePrivacy bool `env:"ENFORCE_PRIVACY"`

	// Paths and redirect targets in the host application.
	LoginURL        string `env:"LOGIN_URL" envDefault:"/login"`
	CallbackPath    string `env:"CALLBACK_PATH" envDefault:"/callback"`
	DefaultRedirect string `env:"DEFAULT_REDIRECT" envDefault:"/"`

	// ProviderCAFile points at a pem CA bundle to trust for provider TLS.
	ProviderCAFile string `env:"PROVIDER_CA_FILE"`

	// SkipTLSVerify disables provider TLS verification. Testing only.
	SkipTLSVerify bool `env:"SKIP_TLS_VERIFY"`

	// InsecureCookies drops the Secure attribute from cookies, for local
	// development over plain http.
	InsecureCookies bool `env:"INSECURE_COOKIES"`

	// SessionSecret signs the built-in session cookie. At least 32 bytes.
	SessionSecret string `env:"SESSION_SECRET"`

	// LogLimit caps the in-memory log history.
	LogLimit int `env:"LOG_LIMIT" envDefault:"1000"`

	// Version of the settings schema these values were written for. Empty
	// means pre-versioning; see Upgrade.
	Version string `env:"SETTINGS_VERSION"`
}

// Validate checks the settings are complete enough to build a client,
// reporting every problem found.
func (s *Settings) Validate() error {
	const op = "settings.(Settings).Validate"
	var result *multierror.Error
	if s.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("%s: missing client id: %w", op, oidc.ErrInvalidConfiguration))
	}
	if s.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("%s: missing client secret: %w", op, oidc.ErrInvalidConfiguration))
	}
	if s.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: missing redirect url: %w", op, oidc.ErrInvalidConfiguration))
	}
	if s.Issuer == "" {
		result = multierror.Append(result, fmt.Errorf("%s: missing issuer: %w", op, oidc.ErrInvalidConfiguration))
	}
	haveAuth, haveToken := s.AuthEndpoint != "", s.TokenEndpoint != ""
	if haveAuth != haveToken {
		result = multierror.Append(result, fmt.Errorf(
			"%s: auth and token endpoints must be configured together: %w", op, oidc.ErrInvalidConfiguration))
	}
	return result.ErrorOrNil()
}

// OIDCConfig builds the protocol client's Config from the settings.
func (s *Settings) OIDCConfig() (*oidc.Config, error) {
	const op = "settings.(Settings).OIDCConfig"
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := []oidc.Option{
		oidc.WithScopes(s.Scopes),
		oidc.WithIdentityKey(s.IdentityKey),
		oidc.WithStateTimeLimit(s.StateTimeLimit),
		oidc.WithRequestTimeout(s.RequestTimeout),
	}
	if s.AuthEndpoint != "" {
		opts = append(opts, oidc.WithEndpoints(s.AuthEndpoint, s.TokenEndpoint, s.UserinfoEndpoint, s.JWKSEndpoint))
	}
	if s.EndSessionEndpoint != "" {
		opts = append(opts, oidc.WithEndSessionEndpoint(s.EndSessionEndpoint))
	}
	if s.ProviderCAFile != "" {
		pem, err := os.ReadFile(s.ProviderCAFile)
		if err != nil {
			return nil, fmt.Errorf("%s: read provider CA %q: %w", op, s.ProviderCAFile, err)
		}
		opts = append(opts, oidc.WithProviderCA(string(pem)))
	}
	if s.SkipTLSVerify {
		opts = append(opts, oidc.WithSkipTLSVerify())
	}
	return oidc.NewConfig(s.Issuer, s.ClientID, oidc.ClientSecret(s.ClientSecret), s.SigningAlgs, s.RedirectURL, opts...)
}
