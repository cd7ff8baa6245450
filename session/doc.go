// Package session implements the durable persistence layer of goSession: a
// Redis-backed session registry, the single active-session pointer, the
// opaque key-blob object store, and cross-instance change notifications.
//
// # Design
//
// The registry is a JSON-serialized list stored under one well-known key and
// the active pointer is a single string under another. All registry writes
// are last-write-wins: there is no locking or merging across instances. This
// is deliberate — session creation and removal are rare, user-triggered
// events, not high-frequency writes.
//
// Every write publishes a [Change] on a pub/sub channel tagged with the
// writer's instance id. Subscribers filter out their own writes, so a change
// is only ever observed by the *other* running instances.
//
// # What this package must NOT do
//
//   - Interpret session semantics (dedup, activation policy) — that is the
//     session service's job.
//   - Hold key material in a parsed form; key blobs are opaque bytes here.
package session
