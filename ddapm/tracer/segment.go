// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"sync"

	"github.com/ddapm/ddapm-go/internal/log"
	"github.com/ddapm/ddapm-go/internal/samplernames"
)

// traceSegment holds the state shared by all spans of one local trace. Spans
// keep a reference to their segment for their entire lifetime; the segment
// collects the span records as they finish and hands the complete chunk to
// the collector when the last span finishes.
//
// A single mutex guards all mutable state. Finalization happens exactly
// once, inside the finish call of the last open span: the open-span count
// reaching zero under the lock is the linearization point. The chunk is
// assembled while still holding the lock; the collector is called after
// releasing it. After finalization the segment is immutable.
type traceSegment struct {
	collector   collector
	sampler     *traceSampler
	spanSampler *spanSampler

	injectionStyles []PropagationStyle
	hostname        string

	mu sync.Mutex // guards below fields

	spansFinished []*spanData // finished span records, in finish order
	numOpenSpans  int         // outstanding Span handles on this segment
	finalized     bool

	decision   *SamplingDecision
	origin     string            // carried from extraction, e.g. "synthetics"
	traceTags  map[string]string // propagated "_dd.p." tags
	tracestate string            // W3C tracestate preserved from extraction

	// propagationError, when non-empty, is recorded as the
	// "_dd.propagation_error" tag on the root span.
	propagationError string

	root *spanData // the first span of the segment
}

// segmentSeed carries the values extracted from an incoming context that the
// new segment starts out with.
type segmentSeed struct {
	origin           string
	traceTags        map[string]string
	tracestate       string
	propagationError string
	decision         *SamplingDecision
}

func newTraceSegment(t *Tracer, seed segmentSeed, root *spanData) *traceSegment {
	tags := seed.traceTags
	if tags == nil {
		tags = make(map[string]string)
	}
	return &traceSegment{
		collector:        t.collector,
		sampler:          t.traceSampler,
		spanSampler:      t.spanSampler,
		injectionStyles:  t.config.injectionStyles,
		hostname:         t.config.hostname,
		numOpenSpans:     1,
		decision:         seed.decision,
		origin:           seed.origin,
		traceTags:        tags,
		tracestate:       seed.tracestate,
		propagationError: seed.propagationError,
		root:             root,
	}
}

// registerSpan allocates an ID for a new child span and counts it as open.
func (ts *traceSegment) registerSpan() uint64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.numOpenSpans++
	return generateSpanID()
}

// finishSpan appends the finished span record and, if it was the last open
// span, finalizes the segment and delivers the chunk to the collector.
func (ts *traceSegment) finishSpan(d *spanData) {
	ts.mu.Lock()
	if ts.finalized {
		// Should be unreachable: every open span holds the segment open.
		ts.mu.Unlock()
		log.Error("span %d finished after its trace segment was finalized", d.spanID)
		return
	}
	ts.spansFinished = append(ts.spansFinished, d)
	ts.numOpenSpans--
	if ts.numOpenSpans > 0 {
		ts.mu.Unlock()
		return
	}
	chunk := ts.finalizeLocked()
	ts.mu.Unlock()
	if err := ts.collector.send(chunk); err != nil {
		log.Error("lost trace %d: %v", d.traceID, err)
	}
}

// finalizeLocked resolves the sampling decision, stamps the serialization
// tags onto the finished spans and assembles the trace chunk. It must be
// called exactly once, with ts.mu held.
func (ts *traceSegment) finalizeLocked() *traceChunk {
	ts.finalized = true
	decision := ts.resolveSamplingDecisionLocked()

	ts.root.setMetric(keySamplingPriority, float64(decision.Priority))
	if ts.hostname != "" {
		ts.root.setMeta(keyHostname, ts.hostname)
	}
	if ts.propagationError != "" {
		ts.root.setMeta(keyPropagationError, ts.propagationError)
	}
	for k, v := range ts.traceTags {
		ts.root.setMeta(k, v)
	}
	if ts.origin != "" {
		for _, d := range ts.spansFinished {
			d.setMeta(keyOrigin, ts.origin)
		}
	}
	if !decision.keep() && ts.spanSampler != nil {
		ts.spanSampler.apply(ts.spansFinished)
	}
	return &traceChunk{
		spans:   ts.spansFinished,
		sampler: ts.sampler,
	}
}

// overrideSamplingPriority sets or overwrites the segment's sampling
// decision with a manual one. Unlike extracted or locally computed
// decisions, manual ones always win.
func (ts *traceSegment) overrideSamplingPriority(priority int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.finalized {
		log.Debug("sampling priority override to %d ignored: trace segment already finalized", priority)
		return
	}
	ts.setDecisionLocked(SamplingDecision{
		Priority:  priority,
		Mechanism: samplernames.Manual,
		Origin:    OriginManual,
	})
}

// resolveSamplingDecision returns the segment's decision, computing it with
// the trace sampler if none has been made yet. The first resolution sticks.
func (ts *traceSegment) resolveSamplingDecision() SamplingDecision {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.resolveSamplingDecisionLocked()
}

func (ts *traceSegment) resolveSamplingDecisionLocked() SamplingDecision {
	if ts.decision == nil {
		decision := ts.sampler.decide(ts.root)
		ts.setDecisionLocked(decision)
	}
	return *ts.decision
}

// setDecisionLocked installs the decision and maintains the decision maker
// trace tag. An existing decision is only replaced by a manual one.
func (ts *traceSegment) setDecisionLocked(decision SamplingDecision) {
	if ts.decision != nil && decision.Origin != OriginManual {
		return
	}
	ts.decision = &decision
	if decision.keep() && decision.Mechanism != samplernames.Unknown {
		ts.traceTags[keyDecisionMaker] = decisionMaker(decision.Mechanism)
	} else if !decision.keep() {
		delete(ts.traceTags, keyDecisionMaker)
	}
}

// samplingPriority returns the current priority, if a decision exists.
func (ts *traceSegment) samplingPriority() (int, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.decision == nil {
		return 0, false
	}
	return ts.decision.Priority, true
}

// inject writes the propagation headers describing the given span of this
// segment. The sampling decision is resolved first, so that the receiving
// side observes the same decision this process will report.
func (ts *traceSegment) inject(writer TextMapWriter, d *spanData) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	decision := ts.resolveSamplingDecisionLocked()
	for _, style := range ts.injectionStyles {
		ts.injectStyleLocked(style, writer, d, decision)
	}
}
