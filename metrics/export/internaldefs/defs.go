package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef defines a public type used by goSession APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goSession APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the session engine.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricSignInSuccess, Name: "gosession_sign_in_success_total", Help: "Successful sign-in attempts."},
	{ID: goSession.MetricSignInFailure, Name: "gosession_sign_in_failure_total", Help: "Failed sign-in attempts."},
	{ID: goSession.MetricSignUpSuccess, Name: "gosession_sign_up_success_total", Help: "Successful sign-up attempts."},
	{ID: goSession.MetricSignUpFailure, Name: "gosession_sign_up_failure_total", Help: "Failed sign-up attempts."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goSession.MetricRefreshCoalesced, Name: "gosession_refresh_coalesced_total", Help: "Token requests coalesced onto an in-flight refresh."},
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Created session identities."},
	{ID: goSession.MetricSessionRemoved, Name: "gosession_session_removed_total", Help: "Removed session identities."},
	{ID: goSession.MetricSessionActivated, Name: "gosession_session_activated_total", Help: "Active-session pointer changes."},
	{ID: goSession.MetricDedupRemoved, Name: "gosession_dedup_removed_total", Help: "Sessions garbage-collected by the authentication dedup rule."},
	{ID: goSession.MetricSignOut, Name: "gosession_sign_out_total", Help: "Single-session sign-out operations."},
	{ID: goSession.MetricSignOutAll, Name: "gosession_sign_out_all_total", Help: "Sign-out-all operations."},
	{ID: goSession.MetricPasswordlessRequest, Name: "gosession_passwordless_request_total", Help: "Passwordless login requests."},
	{ID: goSession.MetricPasswordlessConfirmed, Name: "gosession_passwordless_confirmed_total", Help: "Confirmed passwordless logins."},
	{ID: goSession.MetricPasswordlessCancelled, Name: "gosession_passwordless_cancelled_total", Help: "Cancelled passwordless polls."},
	{ID: goSession.MetricPasswordlessFailure, Name: "gosession_passwordless_failure_total", Help: "Failed passwordless logins."},
	{ID: goSession.MetricPasswordResetRequest, Name: "gosession_password_reset_request_total", Help: "Password reset requests."},
	{ID: goSession.MetricPasswordResetConfirm, Name: "gosession_password_reset_confirm_total", Help: "Confirmed password resets."},
	{ID: goSession.MetricEmailVerification, Name: "gosession_email_verification_total", Help: "Confirmed email verifications."},
	{ID: goSession.MetricTokenRetryExhausted, Name: "gosession_token_retry_exhausted_total", Help: "Bounded token retries that ended in session expiry."},
}

// HistogramDefs is an exported constant or variable used by the session engine.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Token refresh latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the session engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the session engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
