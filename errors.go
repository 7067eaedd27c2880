// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/reabridge/rpc/handle"
)

// Sentinels for errors.Is. Each typed error below matches exactly one.
var (
	ErrHostUnavailable   = errors.New("host unavailable")
	ErrHostTimeout       = errors.New("host timeout")
	ErrUnroutable        = errors.New("unroutable request")
	ErrHostReported      = errors.New("host reported error")
	ErrMalformedResponse = errors.New("malformed response")
)

// StaleHandleError is returned when a handle argument names an entity
// the host no longer has.
type StaleHandleError = handle.StaleError

// ErrConnectionDropped is wrapped by a HostUnavailableError whose call was
// in flight when another call's timeout closed the shared connection. The
// host was up and may have run the call.
var ErrConnectionDropped = errors.New("connection dropped after another call timed out")

// HostUnavailableError means no connection to the host could be made or
// the connection failed mid-call. Host not running, in user terms, unless
// it wraps ErrConnectionDropped. Attempts is 0 for mid-call failures.
type HostUnavailableError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *HostUnavailableError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("host at %s unavailable after %d attempt(s): %v", e.Addr, e.Attempts, e.Err)
	}
	return fmt.Sprintf("host at %s unavailable: %v", e.Addr, e.Err)
}

func (e *HostUnavailableError) Unwrap() error { return e.Err }

func (e *HostUnavailableError) Is(target error) bool { return target == ErrHostUnavailable }

// HostTimeoutError means the host accepted the connection but did not
// answer within the deadline. The operation may still run on the host.
type HostTimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *HostTimeoutError) Error() string {
	return fmt.Sprintf("host did not answer %s within %s", e.Op, e.Timeout)
}

func (e *HostTimeoutError) Is(target error) bool { return target == ErrHostTimeout }

// UnroutableRequestError means the host (or the local surface) could not
// route the request: unknown operation, protocol version skew, or a
// request it could not decode.
type UnroutableRequestError struct {
	Op      string
	Reason  ErrorKind
	Message string
}

// ReasonLocal marks an operation classified Local that the local surface
// does not implement.
const ReasonLocal ErrorKind = "local"

func (e *UnroutableRequestError) Error() string {
	return fmt.Sprintf("unroutable request %s (%s): %s", e.Op, e.Reason, e.Message)
}

func (e *UnroutableRequestError) Is(target error) bool { return target == ErrUnroutable }

// HostReportedError carries a failure the host's own API produced,
// with the host's code and message verbatim.
type HostReportedError struct {
	Op      string
	Code    string
	Message string
}

func (e *HostReportedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("host error in %s [%s]: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("host error in %s: %s", e.Op, e.Message)
}

func (e *HostReportedError) Is(target error) bool { return target == ErrHostReported }

// MalformedResponseError is a protocol bug: the reply could not be decoded.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response to %s: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// errorFromWire translates a host-reported failure into the taxonomy.
// For stale failures the first handle argument of the request is
// attached.
func errorFromWire(req Request, werr *WireError) error {
	switch werr.Kind {
	case KindHost:
		return &HostReportedError{Op: req.Op, Code: werr.Code, Message: werr.Message}
	case KindStale:
		return &StaleHandleError{Handle: firstHandle(req.Args), Message: werr.Message}
	case KindUnknownOp, KindVersion, KindBadRequest:
		return &UnroutableRequestError{Op: req.Op, Reason: werr.Kind, Message: werr.Message}
	default:
		return &MalformedResponseError{Op: req.Op, Err: fmt.Errorf("unknown error kind %q: %s", werr.Kind, werr.Message)}
	}
}

func firstHandle(args []any) handle.Handle {
	for _, a := range args {
		if h, ok := a.(handle.Handle); ok {
			return h
		}
	}
	return handle.Handle{}
}
