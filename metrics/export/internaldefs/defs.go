package internaldefs

import (
	"github.com/MrEthical07/greenauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   greenauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   greenauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: greenauth.MetricLoginSuccess, Name: "greenauth_login_success_total", Help: "Successful login attempts."},
	{ID: greenauth.MetricLoginFailure, Name: "greenauth_login_failure_total", Help: "Failed login attempts."},
	{ID: greenauth.MetricLoginRateLimited, Name: "greenauth_login_rate_limited_total", Help: "Login attempts rejected by throttling."},
	{ID: greenauth.MetricLoginDisabledAccount, Name: "greenauth_login_disabled_account_total", Help: "Login attempts against deactivated accounts."},
	{ID: greenauth.MetricPasswordRehashed, Name: "greenauth_password_rehashed_total", Help: "Password digests upgraded after login."},
	{ID: greenauth.MetricRefreshSuccess, Name: "greenauth_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: greenauth.MetricRefreshFailure, Name: "greenauth_refresh_failure_total", Help: "Failed refresh token rotations."},
	{ID: greenauth.MetricRefreshReuseDetected, Name: "greenauth_refresh_reuse_detected_total", Help: "Revoked refresh tokens presented again."},
	{ID: greenauth.MetricRefreshExpired, Name: "greenauth_refresh_expired_total", Help: "Expired refresh tokens presented."},
	{ID: greenauth.MetricLogout, Name: "greenauth_logout_total", Help: "Refresh tokens revoked by logout."},
	{ID: greenauth.MetricAuthenticateSuccess, Name: "greenauth_authenticate_success_total", Help: "Access tokens accepted by the guard."},
	{ID: greenauth.MetricAuthenticateFailure, Name: "greenauth_authenticate_failure_total", Help: "Access tokens rejected by the guard."},
	{ID: greenauth.MetricAccountCreated, Name: "greenauth_account_created_total", Help: "Accounts created."},
	{ID: greenauth.MetricAccountCreationDuplicate, Name: "greenauth_account_creation_duplicate_total", Help: "Account creations rejected as duplicate."},
	{ID: greenauth.MetricAccountDeactivated, Name: "greenauth_account_deactivated_total", Help: "Accounts deactivated."},
	{ID: greenauth.MetricAccountReactivated, Name: "greenauth_account_reactivated_total", Help: "Accounts reactivated."},
	{ID: greenauth.MetricStoreUnavailable, Name: "greenauth_store_unavailable_total", Help: "Operations failed because a backing store was unreachable."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: greenauth.MetricAuthenticateLatency, Name: "greenauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// AuditDroppedName is the counter exported for dispatcher drops.
const AuditDroppedName = "greenauth_audit_dropped_total"

// HistogramBounds are the upper bounds of the engine's latency buckets, in seconds.
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

// HistogramBoundSuffix names each bucket in exporters that cannot carry labels.
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

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
