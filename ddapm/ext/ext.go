// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package ext contains a set of Datadog-specific constants. Most of them are
// used for setting span metadata.
package ext

// Standard tag names used for setting span metadata.
const (
	// ServiceName sets the name of the process doing a particular job.
	ServiceName = "service.name"

	// ResourceName sets the resource being operated on, such as an URL
	// route or a SQL query.
	ResourceName = "resource.name"

	// SpanType defines the protocol associated with the span, such as
	// "web", "db" or "cache".
	SpanType = "span.type"

	// SpanName is a pseudo-tag used to overwrite the operation name.
	SpanName = "span.name"

	// Environment specifies the environment to use with a trace.
	Environment = "env"

	// Version is a tag that specifies the version of the application.
	Version = "version"

	// Error specifies an error on the span. Its value may be a bool, an
	// error or nil.
	Error = "error"

	// ErrorMsg specifies the error message.
	ErrorMsg = "error.msg"

	// ErrorType specifies the error type.
	ErrorType = "error.type"

	// ErrorStack specifies the stack dump.
	ErrorStack = "error.stack"

	// ManualKeep is a tag which specifies that the trace to which this span
	// belongs to should be kept when set to true.
	ManualKeep = "manual.keep"

	// ManualDrop is a tag which specifies that the trace to which this span
	// belongs to should be dropped when set to true.
	ManualDrop = "manual.drop"

	// SamplingPriority is the tag used to set a sampling priority on a span.
	SamplingPriority = "sampling.priority"
)

// Sampling priorities, as understood by the trace agent.
const (
	// PriorityUserReject informs the backend that a trace should be rejected
	// and not stored. This should be used by user code overriding the
	// sampler's decision.
	PriorityUserReject = -1

	// PriorityAutoReject informs the backend that a trace should be rejected
	// and not stored. This is the default value when the sampler decides to
	// not keep the trace.
	PriorityAutoReject = 0

	// PriorityAutoKeep informs the backend that a trace should be kept. This
	// is the default value when the sampler decides to keep the trace.
	PriorityAutoKeep = 1

	// PriorityUserKeep informs the backend that a trace should be kept. This
	// should be used by user code overriding the sampler's decision.
	PriorityUserKeep = 2
)
