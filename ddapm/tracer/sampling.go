// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"strconv"

	"github.com/ddapm/ddapm-go/internal/samplernames"
)

// DecisionOrigin describes where a trace's sampling decision came from.
type DecisionOrigin int8

const (
	// OriginExtracted means the decision arrived with the propagated
	// context of a remote parent.
	OriginExtracted DecisionOrigin = iota + 1
	// OriginLocal means the decision was made by this tracer's sampler.
	OriginLocal
	// OriginManual means the decision was set explicitly by user code.
	OriginManual
)

// String returns the name of the decision origin.
func (o DecisionOrigin) String() string {
	switch o {
	case OriginExtracted:
		return "extracted"
	case OriginLocal:
		return "local"
	case OriginManual:
		return "manual"
	default:
		return "unknown"
	}
}

// SamplingDecision is the trace-level sampling decision. Once a segment has
// one, only a manual override may replace it.
type SamplingDecision struct {
	// Priority determines retention: positive values keep the trace,
	// values of zero or less drop it.
	Priority int

	// Mechanism identifies the sampler that made the decision.
	Mechanism samplernames.SamplerName

	// Origin tells whether the decision was extracted, locally computed or
	// manually set.
	Origin DecisionOrigin
}

// keep reports whether the decision retains the trace.
func (d SamplingDecision) keep() bool { return d.Priority > 0 }

// decisionMaker formats the decision maker trace tag value for the decision's
// mechanism, e.g. "-3" for the rules sampler.
func decisionMaker(mechanism samplernames.SamplerName) string {
	return "-" + strconv.Itoa(int(mechanism))
}
