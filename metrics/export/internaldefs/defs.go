package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// Namespace prefixes every exported series.
const Namespace = "authcore"

type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// AuditDropped describes the counter fed by Engine.AuditDropped.
var AuditDropped = CounterDef{
	Name: Namespace + "_audit_dropped_total",
	Help: "Audit events dropped because the audit queue was full.",
}

var CounterDefs = []CounterDef{
	counter(authcore.MetricRegisterSuccess, "register_success", "Accounts created by registration."),
	counter(authcore.MetricRegisterDuplicate, "register_duplicate", "Registrations rejected because the email is taken."),
	counter(authcore.MetricLoginSuccess, "login_success", "Successful password logins."),
	counter(authcore.MetricLoginFailure, "login_failure", "Failed password logins."),
	counter(authcore.MetricFederatedLoginSuccess, "federated_login_success", "Successful federated logins."),
	counter(authcore.MetricFederatedLoginFailure, "federated_login_failure", "Failed federated logins."),
	counter(authcore.MetricRefreshSuccess, "refresh_success", "Refresh tokens rotated."),
	counter(authcore.MetricRefreshFailure, "refresh_failure", "Refresh attempts rejected."),
	counter(authcore.MetricReplayDetected, "refresh_replay_detected", "Redemptions of already rotated refresh tokens."),
	counter(authcore.MetricSessionCreated, "session_created", "Sessions started by any login."),
	counter(authcore.MetricLogoutAll, "logout_all", "Revocations of every session of a user."),
	counter(authcore.MetricRateLimitHit, "rate_limit_hit", "Requests denied by an attempt policy."),
	counter(authcore.MetricEmailVerificationRequest, "email_verification_request", "Verification codes mailed."),
	counter(authcore.MetricEmailVerificationSuccess, "email_verification_success", "Accounts verified."),
	counter(authcore.MetricEmailVerificationFailure, "email_verification_failure", "Rejected verification confirmations."),
	counter(authcore.MetricPasswordResetRequest, "password_reset_request", "Password reset codes mailed."),
	counter(authcore.MetricPasswordResetConfirmSuccess, "password_reset_confirm_success", "Passwords changed by reset."),
	counter(authcore.MetricPasswordResetConfirmFailure, "password_reset_confirm_failure", "Rejected password reset confirmations."),
	counter(authcore.MetricProfileUpdated, "profile_updated", "Profile edits."),
	counter(authcore.MetricMailFailure, "mail_failure", "Mails the mailer failed to send."),
	counter(authcore.MetricUpstreamFailure, "upstream_failure", "Errors masked as internal."),
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthorizeLatency, Name: Namespace + "_authorize_latency_seconds", Help: "Access token verification latency."},
}

// HistogramBounds are the upper bounds of the Engine's latency buckets in
// seconds, as Prometheus le labels.
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

// HistogramBoundSuffix names the same bounds for instrument names.
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

func counter(id authcore.MetricID, name, help string) CounterDef {
	return CounterDef{ID: id, Name: Namespace + "_" + name + "_total", Help: help}
}

// Cumulative converts raw per-bucket counts into cumulative counts. Missing
// trailing buckets count as zero.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
