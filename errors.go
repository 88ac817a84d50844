// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind identifies one failure class of the protocol layer
type ErrorKind int

const (
	// KindNotConnected: an operation was attempted without an open connection
	KindNotConnected ErrorKind = iota + 1

	// KindInvalidCommand: the command was rejected by the grammar, nothing was sent
	KindInvalidCommand

	// KindInvalidChannel: the output index is outside [1, outputs], nothing was sent
	KindInvalidChannel

	// KindConnection: the transport failed (dial, write, read)
	KindConnection

	// KindCommand: ESR bit 5, the instrument did not understand the command
	KindCommand

	// KindHardware: EER 1-9, internal hardware error
	KindHardware

	// KindRange: EER 100, value out of the instrument's legal range
	KindRange

	// KindDataCorruption: EER 101, corrupted data on recall
	KindDataCorruption

	// KindNoData: EER 102, recall from an empty store
	KindNoData

	// KindSecondOutputUnavailable: EER 103
	KindSecondOutputUnavailable

	// KindOutputEnabledConflict: EER 104, command not valid with the output on
	KindOutputEnabledConflict

	// KindReadOnlyViolation: EER 200, write to a read-only setting
	KindReadOnlyViolation

	// KindVerifyTimeout: ESR bit 3
	KindVerifyTimeout

	// KindQuery: ESR bit 2
	KindQuery

	// KindMalformedReply: a reply did not have the expected shape
	KindMalformedReply

	// KindExecution: ESR bit 4 with an execution error code that has no
	// dedicated kind
	KindExecution
)

// Sentinel errors, one per ErrorKind, for use with errors.Is.
var (
	ErrNotConnected            = errors.New("not connected")
	ErrInvalidCommand          = errors.New("invalid command")
	ErrInvalidChannel          = errors.New("invalid output channel")
	ErrConnection              = errors.New("connection error")
	ErrCommand                 = errors.New("command error")
	ErrHardware                = errors.New("internal hardware error")
	ErrRange                   = errors.New("range error")
	ErrDataCorruption          = errors.New("corrupted data")
	ErrNoData                  = errors.New("no data")
	ErrSecondOutputUnavailable = errors.New("second output not available")
	ErrOutputEnabledConflict   = errors.New("command not valid with output on")
	ErrReadOnlyViolation       = errors.New("cannot write (read only)")
	ErrVerifyTimeout           = errors.New("verify timeout")
	ErrQuery                   = errors.New("query error")
	ErrMalformedReply          = errors.New("malformed reply")
	ErrExecution               = errors.New("execution error")
)

var kindSentinels = map[ErrorKind]error{
	KindNotConnected:            ErrNotConnected,
	KindInvalidCommand:          ErrInvalidCommand,
	KindInvalidChannel:          ErrInvalidChannel,
	KindConnection:              ErrConnection,
	KindCommand:                 ErrCommand,
	KindHardware:                ErrHardware,
	KindRange:                   ErrRange,
	KindDataCorruption:          ErrDataCorruption,
	KindNoData:                  ErrNoData,
	KindSecondOutputUnavailable: ErrSecondOutputUnavailable,
	KindOutputEnabledConflict:   ErrOutputEnabledConflict,
	KindReadOnlyViolation:       ErrReadOnlyViolation,
	KindVerifyTimeout:           ErrVerifyTimeout,
	KindQuery:                   ErrQuery,
	KindMalformedReply:          ErrMalformedReply,
	KindExecution:               ErrExecution,
}

// String returns the human-readable description of the kind
func (k ErrorKind) String() string {
	if s, ok := kindSentinels[k]; ok {
		return s.Error()
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}

// Sentinel returns the package sentinel error for the kind
func (k ErrorKind) Sentinel() error {
	return kindSentinels[k]
}

// IsDeviceFault reports whether the kind was reported by the instrument
// through its status registers.
func (k ErrorKind) IsDeviceFault() bool {
	switch k {
	case KindCommand, KindHardware, KindRange, KindDataCorruption, KindNoData,
		KindSecondOutputUnavailable, KindOutputEnabledConflict, KindReadOnlyViolation,
		KindVerifyTimeout, KindQuery, KindExecution:
		return true
	}
	return false
}

// Code maps the kind to a gRPC status code
func (k ErrorKind) Code() codes.Code {
	switch k {
	case KindNotConnected, KindConnection:
		return codes.Unavailable
	case KindInvalidCommand, KindInvalidChannel, KindCommand, KindRange:
		return codes.InvalidArgument
	case KindHardware, KindMalformedReply:
		return codes.Internal
	case KindDataCorruption:
		return codes.DataLoss
	case KindNoData:
		return codes.NotFound
	case KindSecondOutputUnavailable, KindOutputEnabledConflict:
		return codes.FailedPrecondition
	case KindReadOnlyViolation:
		return codes.PermissionDenied
	case KindVerifyTimeout:
		return codes.DeadlineExceeded
	case KindQuery:
		return codes.Aborted
	default:
		return codes.Unknown
	}
}

// Error is the error type returned by every operation of the package
type Error struct {
	// Kind classifies the failure
	Kind ErrorKind

	// Op is the operation that failed (process, execute, connect, ...)
	Op string

	// Command is the wire command involved, if any
	Command string

	// ESR is the standard event status value read after the command,
	// NoRegisterValue if it was not read
	ESR int

	// EER is the execution error code, NoRegisterValue if it was not read
	EER int

	// Message overrides the kind description when set
	Message string

	// Err is the underlying cause (I/O or parse error), if any
	Err error
}

func newError(kind ErrorKind, op, cmd string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Command: cmd,
		ESR:     NoRegisterValue,
		EER:     NoRegisterValue,
		Err:     cause,
	}
}

func (e *Error) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.message()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Command != "" {
		return fmt.Sprintf("tti: %s %q failed: %s", e.Op, e.Command, msg)
	}
	return fmt.Sprintf("tti: %s failed: %s", e.Op, msg)
}

// DetailedError returns the error message including the status register
// values read during the transaction.
//
// Example:
//
//	var ttiErr *tti.Error
//	if errors.As(err, &ttiErr) {
//	    log.Println(ttiErr.DetailedError())
//	}
func (e *Error) DetailedError() string {
	base := e.Error()
	switch {
	case e.ESR != NoRegisterValue && e.EER != NoRegisterValue:
		return fmt.Sprintf("%s (ESR: %d, EER: %d)", base, e.ESR, e.EER)
	case e.ESR != NoRegisterValue:
		return fmt.Sprintf("%s (ESR: %d)", base, e.ESR)
	default:
		return base
	}
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the kind
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && target == s
}

// GRPCStatus lets status.FromError convert the error, so a service fronting
// an instrument can return it unchanged.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.Code(), e.Error())
}

// KindOf returns the kind of err, or 0 if err is not a *Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether re-issuing the same command may succeed.
//
// Only transport failures qualify: the transport has already reconnected
// (or tried to) and the command was not re-sent. Device-reported faults
// describe a problem with the request itself and would repeat verbatim.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConnection
}
