package logger

import "strings"

// Values accepted for the status and outcome fields. Unknown statuses are
// lower-cased and kept; unknown outcomes are dropped.
var (
	knownStatus  = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled", "timeout", "denied", "expired")
	knownOutcome = set("ok", "fail", "cancelled", "rate_limited", "timeout")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// normalizeLevel maps slog level names and config spellings to DEBUG, INFO,
// WARN or ERROR. Offsets such as "INFO+2" pass through upper-cased.
func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "INFO"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	_, ok := knownStatus[status]
	return status, ok
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	_, ok := knownOutcome[outcome]
	return outcome, ok
}

// Key order for rendered lines, grouped by the layer that sets the keys.
var (
	envelopeKeys = []string{"ts", "level", "component", "event", "status", "rid", "rid_full", "ts_unix_nano"}

	updateKeys = []string{
		"update_id", "user_id", "chat_id", "chat_type", "handler", "operation", "op", "cb_key",
		"state", "next_state", "action", "outcome", "duration_ms",
		"messages", "kb", "count", "page", "pages", "payload", "lang", "username",
	}

	transportKeys = []string{"mode", "listen", "public_url", "http_code", "db"}

	sshKeys = []string{
		"session_id", "ssh_target", "host", "port", "ssh_user", "auth_method",
		"remote_path", "exit_code", "bytes",
	}

	failureKeys = []string{
		"err", "err_code", "cause", "retryable", "attempts", "backoff_ms", "rate_limited",
		"collapsed", "repeats", "pending_count", "restored",
	}

	defaultKeyOrder = concatKeys(envelopeKeys, updateKeys, transportKeys, sshKeys, failureKeys)
)

func concatKeys(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
