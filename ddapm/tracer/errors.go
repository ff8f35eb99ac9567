// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of error produced by the tracer. The set is
// closed; every error returned by the core carries one of these codes.
type ErrorCode int

const (
	// ErrCodeInvalidInteger means that a header or configuration value that
	// was expected to be an integer could not be parsed as one.
	ErrCodeInvalidInteger ErrorCode = iota + 1
	// ErrCodeOutOfRangeInteger means that an integer value does not fit
	// within the expected range, e.g. a trace ID wider than 64 bits.
	ErrCodeOutOfRangeInteger
	// ErrCodeNoSpanToExtract means that the carrier contained no trace ID:
	// neither a trace ID nor a parent span ID, or a parent span ID alone.
	ErrCodeNoSpanToExtract
	// ErrCodeMissingParentSpanID means that a trace ID was extracted without
	// a parent span ID or an origin.
	ErrCodeMissingParentSpanID
	// ErrCodeInconsistentExtractionStyles means that two extraction styles
	// produced different span contexts from the same carrier.
	ErrCodeInconsistentExtractionStyles
	// ErrCodeMalformedTraceTags means that the propagated trace tags header
	// could not be decoded.
	ErrCodeMalformedTraceTags
	// ErrCodeTraceTagsExceedMaximumLength means that the propagated trace
	// tags header was larger than the maximum supported size.
	ErrCodeTraceTagsExceedMaximumLength
	// ErrCodeRateOutOfRange means that a sampling rate was outside of the
	// interval [0, 1].
	ErrCodeRateOutOfRange
	// ErrCodeRequestFailure means that an HTTP request to the agent failed
	// before a response was received.
	ErrCodeRequestFailure
	// ErrCodeHTTPClientSetupFailed means that the HTTP client could not
	// accept a request, e.g. because it has been stopped.
	ErrCodeHTTPClientSetupFailed
)

// String returns the name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidInteger:
		return "invalid integer"
	case ErrCodeOutOfRangeInteger:
		return "out of range integer"
	case ErrCodeNoSpanToExtract:
		return "no span to extract"
	case ErrCodeMissingParentSpanID:
		return "missing parent span ID"
	case ErrCodeInconsistentExtractionStyles:
		return "inconsistent extraction styles"
	case ErrCodeMalformedTraceTags:
		return "malformed trace tags"
	case ErrCodeTraceTagsExceedMaximumLength:
		return "trace tags exceed maximum length"
	case ErrCodeRateOutOfRange:
		return "rate out of range"
	case ErrCodeRequestFailure:
		return "request failure"
	case ErrCodeHTTPClientSetupFailed:
		return "HTTP client setup failed"
	default:
		return fmt.Sprintf("error code %d", int(c))
	}
}

// Error is the error type returned by the core. It pairs one of the closed
// set of codes with a human readable message. Callers match on the code
// using IsErrorCode; the message is for diagnostics only.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithPrefix returns a copy of the error whose message is prefixed with the
// given context, typically identifying the header or style that failed.
func (e *Error) WithPrefix(prefix string) *Error {
	return &Error{Code: e.Code, Message: prefix + e.Message}
}

// newError creates an Error with the given code and formatted message.
func newError(code ErrorCode, format string, a ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

// IsErrorCode reports whether err is or wraps an *Error carrying the given
// code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

var (
	// ErrInvalidCarrier is returned when the carrier given to Inject or
	// Extract is not usable as a text map.
	ErrInvalidCarrier = errors.New("invalid carrier")

	// ErrTracerStopped is returned when operations are attempted on a
	// stopped tracer.
	ErrTracerStopped = errors.New("tracer is stopped")
)
