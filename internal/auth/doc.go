// Package auth issues and resolves the bearer credentials presented by the
// voice-assistant platform.
//
// The exchange is a minimal OAuth-style flow: the authorization endpoint
// calls Issuer.IssueCode for an owner, the platform redeems the code once
// at the token endpoint, and the resulting access token is later mapped back
// to the owner by Resolver.Resolve. A static development credential that
// maps to a configured owner is also accepted.
//
// Codes and tokens live in a CodeStore / TokenStore. MemoryStore keeps them
// in process; SQLiteStore keeps them across restarts and stores only token
// hashes. Expiry is always checked at lookup, so an expired entry behaves
// exactly like a missing one.
package auth
