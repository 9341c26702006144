// Package model holds the error taxonomy and small cross-cutting types
// shared by every core subsystem (storage, bus, pipeline, runners).
package model

import "fmt"

// Code is the pipeline-wide status taxonomy from spec §7, independent of
// any transport. internal/transport/grpcstatus maps it onto codes.Code.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeFailedPrecondition
	CodeAborted
	CodeUnavailable
	CodeInternal
	CodeUnimplemented
	CodePayloadRetrievalFailed
	CodeNotFound
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeFailedPrecondition:
		return "FailedPrecondition"
	case CodeAborted:
		return "Aborted"
	case CodeUnavailable:
		return "Unavailable"
	case CodeInternal:
		return "Internal"
	case CodeUnimplemented:
		return "Unimplemented"
	case CodePayloadRetrievalFailed:
		return "PayloadRetrievalFailed"
	case CodeNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Status is a pipeline-level error carrying a Code plus a human message.
type Status struct {
	Code    Code
	Message string
	Cause   error
}

func (s *Status) Error() string {
	if s.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", s.Code, s.Message, s.Cause)
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

func (s *Status) Unwrap() error { return s.Cause }

// Is supports errors.Is against another *Status by Code.
func (s *Status) Is(target error) bool {
	t, ok := target.(*Status)
	if !ok {
		return false
	}
	return t.Code == s.Code
}

func newStatus(code Code, format string, args ...any) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) *Status {
	return newStatus(CodeInvalidArgument, format, args...)
}

func Internal(cause error, format string, args ...any) *Status {
	s := newStatus(CodeInternal, format, args...)
	s.Cause = cause
	return s
}

func Unavailable(cause error, format string, args ...any) *Status {
	s := newStatus(CodeUnavailable, format, args...)
	s.Cause = cause
	return s
}

func Unimplemented(format string, args ...any) *Status {
	return newStatus(CodeUnimplemented, format, args...)
}

func Aborted(format string, args ...any) *Status {
	return newStatus(CodeAborted, format, args...)
}

func NotFound(format string, args ...any) *Status {
	return newStatus(CodeNotFound, format, args...)
}

// PayloadRetrievalFailed builds a Status for a failed external blob fetch.
func PayloadRetrievalFailed(cause error, format string, args ...any) *Status {
	s := newStatus(CodePayloadRetrievalFailed, format, args...)
	s.Cause = cause
	return s
}

// FailedPreconditionError carries the expected/actual sequence pair so
// callers (and the retry loop) can log and decide without re-parsing a
// message string.
type FailedPreconditionError struct {
	Domain   string
	Expected uint64
	Actual   uint64
}

func (e *FailedPreconditionError) Error() string {
	return fmt.Sprintf("FailedPrecondition: domain %s expected sequence %d, actual %d", e.Domain, e.Expected, e.Actual)
}

// Is allows errors.Is(err, &FailedPreconditionError{}) to match any instance.
func (e *FailedPreconditionError) Is(target error) bool {
	_, ok := target.(*FailedPreconditionError)
	return ok
}

func (e *FailedPreconditionError) Status() *Status {
	return &Status{Code: CodeFailedPrecondition, Message: e.Error(), Cause: e}
}

// ConflictingSequenceError is returned by EventStore.Append when the
// caller-supplied sequence does not equal the current tail sequence.
type ConflictingSequenceError struct {
	Domain, Edition string
	Root            string
	Expected        uint64
	Actual          uint64
}

func (e *ConflictingSequenceError) Error() string {
	return fmt.Sprintf("ConflictingSequence: (%s,%s,%s) expected tail %d, actual %d", e.Domain, e.Edition, e.Root, e.Expected, e.Actual)
}

func (e *ConflictingSequenceError) Is(target error) bool {
	_, ok := target.(*ConflictingSequenceError)
	return ok
}
