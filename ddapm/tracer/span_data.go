// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

// Internal tag and metric keys understood by the agent and the backend.
const (
	// keySamplingPriority is the metric holding the trace sampling priority.
	// It is set on the root span of every chunk sent to the agent.
	keySamplingPriority = "_sampling_priority_v1"

	// keyOrigin marks the origin of the trace, e.g. "synthetics".
	keyOrigin = "_dd.origin"

	// keyHostname holds the hostname of the machine running the tracer,
	// reported on root spans when enabled.
	keyHostname = "_dd.hostname"

	// keyDecisionMaker is the trace tag carrying the sampling mechanism
	// that made a keep decision.
	keyDecisionMaker = "_dd.p.dm"

	// keyPropagationError is set when the propagated trace tags could not
	// be encoded or decoded.
	keyPropagationError = "_dd.propagation_error"

	// keyRulesSamplerAppliedRate and keyRulesSamplerLimiterRate hold the
	// rule rate and the effective limiter rate applied by the rules sampler.
	keyRulesSamplerAppliedRate = "_dd.rule_psr"
	keyRulesSamplerLimiterRate = "_dd.limit_psr"

	// keyAgentRate holds the agent-provided sampling rate that was applied.
	keyAgentRate = "_dd.agent_psr"

	// Single span sampling tags.
	keySingleSpanSamplingMechanism = "_dd.span_sampling.mechanism"
	keySingleSpanSamplingRuleRate  = "_dd.span_sampling.rule_rate"
	keySingleSpanSamplingMPS       = "_dd.span_sampling.max_per_second"
)

// spanData is the leaf record describing a single timed operation. It is
// mutated through a Span handle while the span is open, and owned by the
// span's trace segment once finished. All access while the span is open
// happens under the segment's lock.
type spanData struct {
	name     string             // operation name
	service  string             // name of the process doing this job
	resource string             // the thing being operated on, e.g. an URL route
	spanType string             // protocol associated with the span
	start    int64              // span start time expressed in nanoseconds since epoch
	duration int64              // duration of the span expressed in nanoseconds
	meta     map[string]string  // arbitrary map of metadata
	metrics  map[string]float64 // arbitrary map of numeric metrics
	spanID   uint64             // identifier of this span
	traceID  uint64             // lower 64 bits of the identifier of the root span
	parentID uint64             // identifier of the span's direct parent; 0 for root spans
	error    int32              // error status of the span; 0 means no errors
}

func newSpanData() *spanData {
	return &spanData{
		meta:    make(map[string]string, 4),
		metrics: make(map[string]float64, 2),
	}
}

func (d *spanData) setMeta(key, value string) {
	if d.meta == nil {
		d.meta = make(map[string]string, 1)
	}
	d.meta[key] = value
}

func (d *spanData) setMetric(key string, value float64) {
	if d.metrics == nil {
		d.metrics = make(map[string]float64, 1)
	}
	d.metrics[key] = value
}
