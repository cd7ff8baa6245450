// Package goSession provides a client-resident session and token management engine:
// locally-held cryptographic session identities, access-token refresh through
// self-signed assertions, and session state kept consistent across multiple
// running instances of the same client on one device.
//
// The package is designed for concurrent workloads: Client methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Client], [Builder], [Config], and value
// types (Session, SessionData, MetricsSnapshot, etc.). Key generation and signing live
// in the keys package, persistence in the session package, and everything else —
// token coalescing, change fan-out, audit dispatch — stays unexported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, private key material, or encoding details in its public API.
//   - Perform I/O outside of Client methods (construction via Builder touches the
//     store only once, to hydrate the session mirror).
//   - Import any sub-package that re-imports goSession (no import cycles).
//
// # Performance contract
//
// GetToken is the hot path. With a warm cache it must not touch the network or Redis,
// and concurrent callers during a refresh share exactly one network round trip.
package goSession
