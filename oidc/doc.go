// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for the relying-party side of the OIDC authorization code
flow.

Primary types provided by the package:

* State: represents one OIDC authentication flow for a user. It contains the
data needed to uniquely represent that one-time flow across the multiple
interactions needed to complete it, and an expiration.

* StateStore: a process-wide, concurrency-safe store of pending States keyed
by their state token. A State is consumable exactly once.

* Config: the configuration for a typical 3-legged OIDC authorization code
flow (client id/secret, redirect URL, provider endpoints, supported signing
algorithms, additional scopes, etc).

* Client: integration with a provider using the authorization code flow:
generating an auth URL, exchanging codes for tokens, verifying id_tokens
(claims and signature), making userinfo requests and best-effort end-session
requests.

* Token: an OIDC id_token along with an oauth2 access_token (including its
expiry), and its persistable Response form.

* IDTokenClaims / UserClaims: decoded claims from the id_token payload and
the userinfo endpoint.

The package also provides a TestProvider which stands in for an identity
provider in tests, issuing real signed id_tokens.
*/
package oidc
