// Package keys implements the goSession keystore: per-session asymmetric key
// pairs whose private halves are generated on-device, persisted as opaque
// blobs in the durable object store, and never exported unless a pair was
// explicitly created extractable.
//
// Signing produces compact JWS assertions (header.claims.signature) with a
// fresh jti nonce per call so the authority can reject replays.
//
// # Architecture boundaries
//
// This package owns key lifecycle and signing only. It does not know about
// the session registry, tokens, or transport. Persistence goes through the
// [Store] interface.
package keys
