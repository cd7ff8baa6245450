// Package internal holds unexported helpers shared across goSession
// packages: session id generation and encoding.
package internal
