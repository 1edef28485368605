package domain

import (
	"errors"
	"fmt"
)

type FailureKind int

const (
	// FailureConfiguration: missing or invalid inputs, detected before any
	// network call. Never retried automatically.
	FailureConfiguration FailureKind = iota
	// FailureCredential: token/URL service unreachable, rejecting, or
	// responding with garbage.
	FailureCredential
	// FailureConnection: transport connect or reconnect exhausted. Terminal
	// until a fresh connect.
	FailureConnection
	// FailureDevice: capture acquisition denied or device unavailable.
	FailureDevice
	// FailurePublish: one or more track publications failed post-connect.
	// Not fatal to the session.
	FailurePublish
)

func (k FailureKind) String() string {
	switch k {
	case FailureConfiguration:
		return "configuration"
	case FailureCredential:
		return "credential"
	case FailureConnection:
		return "connection"
	case FailureDevice:
		return "device"
	case FailurePublish:
		return "publish"
	default:
		return "unknown"
	}
}

// Failure carries the taxonomy kind plus a human-readable message. Every
// public operation returns its errors classified through this type.
type Failure struct {
	Kind FailureKind
	Op   string
	Msg  string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Op, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Op, f.Msg)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a classified failure. err may be nil.
func NewFailure(kind FailureKind, op, msg string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the failure kind from err, if any.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}
