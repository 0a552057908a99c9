// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

// rp provides a collection of related packages which implement the relying
// party (client) side of the OIDC authorization code flow for embedding in a
// host application: protocol primitives (oidc), local identity resolution
// (identity), and a session controller with privacy enforcement (session).
//
// See README.md
package rp
