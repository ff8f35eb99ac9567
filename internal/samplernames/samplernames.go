// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package samplernames

// SamplerName specifies the mechanism by which a sampling decision was made.
// The values here mirror the ones understood by the trace agent and are
// propagated in the decision maker trace tag.
type SamplerName int8

const (
	// Unknown specifies that the span was sampled
	// but, the tracer was unable to identify the sampler.
	Unknown SamplerName = -1
	// Default specifies that the span was sampled without any sampler.
	Default SamplerName = 0
	// AgentRate specifies that the span was sampled
	// with a rate calculated by the trace agent.
	AgentRate SamplerName = 1
	// RemoteRate specifies that the span was sampled
	// with a dynamically calculated remote rate.
	RemoteRate SamplerName = 2
	// RuleRate specifies that the span was sampled by the RuleRate.
	RuleRate SamplerName = 3
	// Manual specifies that the span was sampled manually by the user.
	Manual SamplerName = 4
	// SingleSpan specifies that the span was sampled by a single span
	// sampling rule.
	SingleSpan SamplerName = 8
)
