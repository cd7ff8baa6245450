// Package audit defines the audit event model and the built-in sinks used
// by the goSession audit dispatcher.
package audit
