// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

// identity maps provider-asserted identities to local accounts.
//
// The Resolver finds the account bound to an external identity, or
// provisions one on first login: it derives a login name from the asserted
// claims, assigns a random throwaway password, and binds the identity and a
// managed-account marker as user metadata. Hosts plug in their own storage
// through the UserStore interface; MemStore is an in-memory implementation.
package identity
