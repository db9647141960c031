package internaldefs

import (
	"github.com/MrEthical07/examauth"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   examauth.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   examauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "examauth_audit_dropped_total"

// CounterDefs lists every counter MetricID with its exported name.
var CounterDefs = []CounterDef{
	{ID: examauth.MetricLoginSuccess, Name: "examauth_login_success_total", Help: "Successful login attempts."},
	{ID: examauth.MetricLoginFailure, Name: "examauth_login_failure_total", Help: "Failed login attempts."},
	{ID: examauth.MetricLoginOTPRequired, Name: "examauth_login_otp_required_total", Help: "Login attempts answered with an OTP challenge."},
	{ID: examauth.MetricRefreshSuccess, Name: "examauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: examauth.MetricRefreshFailure, Name: "examauth_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: examauth.MetricRefreshReplayRejected, Name: "examauth_refresh_replay_rejected_total", Help: "Refresh tokens presented after they were consumed."},
	{ID: examauth.MetricLogout, Name: "examauth_logout_total", Help: "Single-session logouts."},
	{ID: examauth.MetricLogoutAll, Name: "examauth_logout_all_total", Help: "Logout-all operations."},
	{ID: examauth.MetricSessionCreated, Name: "examauth_session_created_total", Help: "Created sessions."},
	{ID: examauth.MetricSessionInvalidated, Name: "examauth_session_invalidated_total", Help: "Deleted or consumed sessions."},
	{ID: examauth.MetricOTPGenerated, Name: "examauth_otp_generated_total", Help: "Issued OTP challenges."},
	{ID: examauth.MetricOTPVerified, Name: "examauth_otp_verified_total", Help: "Successful OTP verifications."},
	{ID: examauth.MetricOTPInvalidCode, Name: "examauth_otp_invalid_code_total", Help: "Wrong OTP codes submitted."},
	{ID: examauth.MetricOTPExpired, Name: "examauth_otp_expired_total", Help: "OTP verifications against an expired or missing challenge."},
	{ID: examauth.MetricOTPExhausted, Name: "examauth_otp_exhausted_total", Help: "OTP challenges deleted after the attempt cap."},
	{ID: examauth.MetricOTPRevoked, Name: "examauth_otp_revoked_total", Help: "Explicitly revoked OTP challenges."},
	{ID: examauth.MetricRateLimitHit, Name: "examauth_rate_limit_hit_total", Help: "Requests denied by the rate limiter."},
	{ID: examauth.MetricBlacklistHit, Name: "examauth_blacklist_hit_total", Help: "Access tokens rejected as revoked."},
	{ID: examauth.MetricTokenRevoked, Name: "examauth_token_revoked_total", Help: "Access tokens added to the blacklist."},
	{ID: examauth.MetricAuthenticateSuccess, Name: "examauth_authenticate_success_total", Help: "Authenticated requests."},
	{ID: examauth.MetricAuthenticateFailure, Name: "examauth_authenticate_failure_total", Help: "Rejected requests."},
	{ID: examauth.MetricDownstreamFailure, Name: "examauth_downstream_failure_total", Help: "Operations failed closed on an unavailable store."},
	{ID: examauth.MetricBestEffortFailure, Name: "examauth_best_effort_failure_total", Help: "Side effects that failed or panicked."},
	{ID: examauth.MetricBestEffortDropped, Name: "examauth_best_effort_dropped_total", Help: "Side effects dropped while the runner was saturated."},
	{ID: examauth.MetricUserCacheHit, Name: "examauth_user_cache_hit_total", Help: "Account state served from cache."},
	{ID: examauth.MetricUserCacheMiss, Name: "examauth_user_cache_miss_total", Help: "Account state loaded from the credential store."},
}

// HistogramDefs lists every latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: examauth.MetricAuthenticateLatency, Name: "examauth_authenticate_latency_seconds", Help: "Authenticate latency."},
	{ID: examauth.MetricLoginLatency, Name: "examauth_login_latency_seconds", Help: "Login latency."},
	{ID: examauth.MetricRefreshLatency, Name: "examauth_refresh_latency_seconds", Help: "Refresh latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// snapshot bucket is the +Inf overflow.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, overflow included, for exporters
// that publish one instrument per bucket.
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

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
