// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

/*
session ties the OIDC authorization code flow into a host application's
login lifecycle.

The Controller serves three HTTP handlers (HandleLogin, HandleCallback,
HandleLogout) and one middleware (Gate). Login mints a one-time state and
redirects to the provider; the callback consumes the state, exchanges the
code, verifies the id_token, resolves a local account through the identity
package and establishes the host session, persisting the login's token and
claims as user metadata. Logout makes a best-effort end-session request at
the provider before tearing down locally. The Gate redirects unauthenticated
requests to the login page and tears down sessions whose OIDC identity no
longer matches.

Every failed login redirects back to the login page carrying a stable error
code in the login-error query parameter.
*/
package session
