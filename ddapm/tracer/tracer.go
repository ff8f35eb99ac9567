// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"sync"
	"time"

	"github.com/ddapm/ddapm-go/ddapm/ext"
	"github.com/ddapm/ddapm-go/internal/log"
	"github.com/ddapm/ddapm-go/internal/samplernames"
)

// Tracer creates spans, extracts them from propagated context, and owns the
// machinery that delivers finished traces to the agent. A Tracer is safe for
// concurrent use by multiple goroutines.
type Tracer struct {
	config       *config
	collector    collector
	traceSampler *traceSampler
	spanSampler  *spanSampler

	// stopOnce ensures the tracer is stopped exactly once.
	stopOnce sync.Once
}

// New creates and starts a Tracer with the given set of options. A service
// name is required, either through WithService or DD_SERVICE.
func New(opts ...StartOption) (*Tracer, error) {
	c, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	t := &Tracer{
		config:       c,
		traceSampler: newTraceSampler(c.samplingRules, c.globalSampleRate, c.rateLimit),
		spanSampler:  newSpanSampler(c.spanSamplingRules),
	}
	if c.collector != nil {
		t.collector = c.collector
	} else {
		t.collector = newAgentCollector(c)
	}
	t.config.statsd.Incr("datadog.tracer.started", nil, 1)
	if c.logStartup {
		logStartup(t)
	}
	return t, nil
}

// StartSpan creates and starts a new root span with the given operation
// name, opening a new trace segment. The span's trace ID equals its span ID.
func (t *Tracer) StartSpan(operationName string, opts ...StartSpanOption) *Span {
	var cfg StartSpanConfig
	for _, fn := range opts {
		fn(&cfg)
	}
	data, startTime := t.newSpanData(operationName, &cfg)
	data.spanID = generateSpanID()
	data.traceID = data.spanID
	data.parentID = 0
	segment := newTraceSegment(t, segmentSeed{}, data)
	if log.DebugEnabled() {
		log.Debug("Started span: trace %d, span %d, operation %q, resource %q", data.traceID, data.spanID, data.name, data.resource)
	}
	return newSpan(data, segment, startTime)
}

// Extract resumes a trace from the propagation headers found in the
// carrier, which must implement TextMapReader, and starts a span with the
// given operation name within it. Every enabled extraction style is run;
// styles that find data must agree with each other, field by field.
//
// When the carrier holds a trace ID but no parent span ID, an origin header
// marks the trace as a root continuation (e.g. started by synthetics) and
// the new span becomes its root; without an origin this is an error.
func (t *Tracer) Extract(operationName string, carrier interface{}, opts ...StartSpanOption) (*Span, error) {
	reader, ok := carrier.(TextMapReader)
	if !ok {
		return nil, ErrInvalidCarrier
	}
	var cfg StartSpanConfig
	for _, fn := range opts {
		fn(&cfg)
	}

	var extracted *extractedData
	var extractedStyle PropagationStyle
	for _, style := range extractionOrder {
		if !styleEnabled(t.config.extractionStyles, style) {
			continue
		}
		data, err := extractStyle(style, reader)
		if err != nil {
			return nil, err
		}
		if data.empty() {
			continue
		}
		if extracted == nil {
			extracted = data
			extractedStyle = style
			continue
		}
		if !data.equal(extracted) {
			return nil, newError(ErrCodeInconsistentExtractionStyles,
				"%s extracted different data than did %s", style, extractedStyle)
		}
		// Carry over the fields only one of the styles could provide.
		if extracted.tracestate == "" {
			extracted.tracestate = data.tracestate
		}
		if extracted.propagationError == "" {
			extracted.propagationError = data.propagationError
		}
		if extracted.traceTags == nil {
			extracted.traceTags = data.traceTags
		}
	}
	if extracted == nil || (extracted.traceID == nil && extracted.parentID == nil) {
		return nil, newError(ErrCodeNoSpanToExtract,
			"there's no trace ID and no parent span ID to extract")
	}
	if extracted.traceID == nil {
		// A parent span ID alone identifies nothing to resume.
		return nil, newError(ErrCodeNoSpanToExtract,
			"there's a parent span ID but no trace ID to extract")
	}
	if extracted.parentID == nil && extracted.origin == nil {
		return nil, newError(ErrCodeMissingParentSpanID,
			"there's no parent span ID to extract")
	}
	var parentID uint64
	if extracted.parentID != nil {
		parentID = *extracted.parentID
	}

	data, startTime := t.newSpanData(operationName, &cfg)
	data.spanID = generateSpanID()
	data.traceID = *extracted.traceID
	data.parentID = parentID

	seed := segmentSeed{
		traceTags:        extracted.traceTags,
		tracestate:       extracted.tracestate,
		propagationError: extracted.propagationError,
	}
	if extracted.origin != nil {
		seed.origin = *extracted.origin
	}
	if extracted.samplingPriority != nil {
		seed.decision = &SamplingDecision{
			Priority:  *extracted.samplingPriority,
			Mechanism: samplernames.Unknown,
			Origin:    OriginExtracted,
		}
	}
	segment := newTraceSegment(t, seed, data)
	if log.DebugEnabled() {
		log.Debug("Extracted span: trace %d, span %d, parent %d, origin %q", data.traceID, data.spanID, data.parentID, seed.origin)
	}
	return newSpan(data, segment, startTime), nil
}

// ExtractOrCreate behaves like Extract, except that a carrier with no span
// to extract falls back to starting a new root span. All other extraction
// errors are returned.
func (t *Tracer) ExtractOrCreate(operationName string, carrier interface{}, opts ...StartSpanOption) (*Span, error) {
	span, err := t.Extract(operationName, carrier, opts...)
	if err == nil {
		return span, nil
	}
	if IsErrorCode(err, ErrCodeNoSpanToExtract) {
		return t.StartSpan(operationName, opts...), nil
	}
	return nil, err
}

// Flush flushes any buffered traces synchronously. Users do not have to
// call Flush in order for traces to reach the agent; it is of use in
// short-lived environments such as function runtimes, where the process may
// be frozen before the next periodic flush.
func (t *Tracer) Flush() {
	t.config.statsd.Incr("datadog.tracer.flush_triggered", []string{"reason:invoked"}, 1)
	if a, ok := t.collector.(*agentCollector); ok {
		a.flush()
	}
}

// Stop stops the tracer: scheduled flushes are cancelled, buffered traces
// are flushed one final time, and in-flight requests are awaited up to a
// bounded deadline. Subsequent calls are valid but become no-op.
func (t *Tracer) Stop() {
	t.stopOnce.Do(func() {
		t.collector.stop()
		t.config.statsd.Incr("datadog.tracer.stopped", nil, 1)
		t.config.statsd.Close()
		log.Flush()
	})
}

// newSpanData allocates a span record initialized with the tracer's
// defaults and the per-call configuration. It returns the record along with
// the start time whose monotonic reading the span's duration is computed
// from.
func (t *Tracer) newSpanData(operationName string, cfg *StartSpanConfig) (*spanData, time.Time) {
	d := newSpanData()
	d.service = t.config.serviceName
	d.spanType = t.config.serviceType
	if t.config.env != "" {
		d.setMeta(ext.Environment, t.config.env)
	}
	if t.config.version != "" {
		d.setMeta(ext.Version, t.config.version)
	}
	for k, v := range t.config.globalTags {
		setTagData(d, k, v)
	}
	startTime := cfg.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}
	d.start = startTime.UnixNano()
	applySpanConfig(d, operationName, cfg)
	return d, startTime
}

func styleEnabled(styles []PropagationStyle, style PropagationStyle) bool {
	for _, s := range styles {
		if s == style {
			return true
		}
	}
	return false
}
