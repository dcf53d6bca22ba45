// Package errs collects the small set of typed errors that cross
// component boundaries in the hub. Most internal failures are plain
// wrapped errors; these types exist only where a caller needs to
// branch on what happened.
package errs

import "fmt"

// ConfigError is raised while normalizing or validating the config
// snapshot, before any service has started. The process should exit.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// Pebkac is a user-facing error carrying an HTTP-like status code.
// U2Idx raises 400 for query parse errors and invalid keys, 500 for
// catalog/driver failures.
type Pebkac struct {
	Code int
	Msg  string
}

func (e *Pebkac) Error() string { return fmt.Sprintf("%d %s", e.Code, e.Msg) }

// NewPebkac builds a Pebkac with a printf-style message.
func NewPebkac(code int, format string, args ...any) *Pebkac {
	return &Pebkac{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// TransientLogError marks a log-sink failure that was swallowed or
// degraded rather than propagated (EPIPE, encoding fallback). The
// logsink package does not construct it: its stdout failures are
// dropped without an error value.
type TransientLogError struct {
	Cause error
}

func (e *TransientLogError) Error() string { return "transient log error: " + e.Cause.Error() }
func (e *TransientLogError) Unwrap() error { return e.Cause }

// ZeroconfStartFail wraps a failure to start mDNS or SSDP. Always
// logged and never fatal to the hub.
type ZeroconfStartFail struct {
	Proto string
	Cause error
}

func (e *ZeroconfStartFail) Error() string {
	return fmt.Sprintf("%s startup failed: %v", e.Proto, e.Cause)
}
func (e *ZeroconfStartFail) Unwrap() error { return e.Cause }

// BrokerUnavailable marks a failed multi-process broker probe; the
// hub falls back to the thread backend.
type BrokerUnavailable struct {
	Reason string
}

func (e *BrokerUnavailable) Error() string { return "broker unavailable: " + e.Reason }

// ShutdownError wraps a failure encountered during the shutdown
// sequence. svchub's shutdown logs collaborator errors directly and
// does not construct this type.
type ShutdownError struct {
	Cause error
}

func (e *ShutdownError) Error() string { return "shutdown error: " + e.Cause.Error() }
func (e *ShutdownError) Unwrap() error { return e.Cause }
