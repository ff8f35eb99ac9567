// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"fmt"
	"reflect"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/ddapm/ddapm-go/ddapm/ext"
	"github.com/ddapm/ddapm-go/internal/log"
	"github.com/ddapm/ddapm-go/internal/samplernames"
)

// Span is the handle to a single timed operation. Callers must call Finish
// when a span is complete to ensure it's submitted:
//
//	span := trc.StartSpan("web.request")
//	defer span.Finish()
//
// A Span handle is not safe for concurrent use by multiple goroutines, but
// different spans of the same trace may be used concurrently; the shared
// trace segment serializes them.
type Span struct {
	data    *spanData
	segment *traceSegment

	// startTime carries the monotonic reading used to compute the span's
	// duration.
	startTime time.Time

	finished bool // guarded by segment.mu
}

func newSpan(data *spanData, segment *traceSegment, startTime time.Time) *Span {
	s := &Span{data: data, segment: segment, startTime: startTime}
	// A dropped handle still terminates its span, so that a trace segment
	// always finalizes, even on error paths that skip Finish.
	runtime.SetFinalizer(s, (*Span).abandon)
	return s
}

// TraceID returns the trace ID shared by all spans of this span's trace.
func (s *Span) TraceID() uint64 { return s.data.traceID }

// SpanID returns the span's own ID.
func (s *Span) SpanID() uint64 { return s.data.spanID }

// SetTag adds a tag to the span, overwriting a pre-existing value for the
// given key. Numeric values are stored as metrics. Tags may only be set
// while the span is open.
func (s *Span) SetTag(key string, value interface{}) {
	s.segment.mu.Lock()
	defer s.segment.mu.Unlock()
	if s.finished {
		return
	}
	switch key {
	case ext.ManualKeep:
		if asBool(value) {
			s.segment.setDecisionLocked(manualDecision(ext.PriorityUserKeep))
		}
		return
	case ext.ManualDrop:
		if asBool(value) {
			s.segment.setDecisionLocked(manualDecision(ext.PriorityUserReject))
		}
		return
	case ext.SamplingPriority:
		if v, ok := toFloat64(value); ok {
			s.segment.setDecisionLocked(manualDecision(int(v)))
		}
		return
	}
	setTagData(s.data, key, value)
}

// SetMetric sets a numeric metric on the span.
func (s *Span) SetMetric(key string, value float64) {
	s.segment.mu.Lock()
	defer s.segment.mu.Unlock()
	if s.finished {
		return
	}
	s.data.setMetric(key, value)
}

// SetError marks the span as errored and records the error's message, type
// and a stack dump. A nil error clears the error state.
func (s *Span) SetError(err error) {
	s.segment.mu.Lock()
	defer s.segment.mu.Unlock()
	if s.finished {
		return
	}
	setTagData(s.data, ext.Error, err)
}

// SetOperationName sets or changes the operation name.
func (s *Span) SetOperationName(name string) {
	s.segment.mu.Lock()
	defer s.segment.mu.Unlock()
	if s.finished {
		return
	}
	s.data.name = name
}

// SetResourceName sets the resource being operated on.
func (s *Span) SetResourceName(resource string) {
	s.segment.mu.Lock()
	defer s.segment.mu.Unlock()
	if s.finished {
		return
	}
	s.data.resource = resource
}

// SetSamplingPriority sets the sampling priority of the whole trace this
// span belongs to. Unlike decisions made by samplers or extracted from a
// remote parent, this replaces any existing decision. It has no effect once
// the trace segment has been finalized, i.e. after its last span finished.
func (s *Span) SetSamplingPriority(priority int) {
	s.segment.overrideSamplingPriority(priority)
}

// StartChild starts a new span as a child of s. The child shares s's trace
// segment and trace ID, and keeps the segment open until it finishes.
func (s *Span) StartChild(operationName string, opts ...StartSpanOption) *Span {
	var cfg StartSpanConfig
	for _, fn := range opts {
		fn(&cfg)
	}
	id := s.segment.registerSpan()
	data := newSpanData()
	data.spanID = id
	data.traceID = s.data.traceID
	data.parentID = s.data.spanID

	s.segment.mu.Lock()
	data.name = s.data.name
	data.service = s.data.service
	data.spanType = s.data.spanType
	if env, ok := s.data.meta[ext.Environment]; ok {
		data.setMeta(ext.Environment, env)
	}
	if ver, ok := s.data.meta[ext.Version]; ok {
		data.setMeta(ext.Version, ver)
	}
	s.segment.mu.Unlock()

	startTime := cfg.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}
	data.start = startTime.UnixNano()
	applySpanConfig(data, operationName, &cfg)
	if log.DebugEnabled() {
		log.Debug("Started child span: trace %d, span %d, parent %d, operation %q", data.traceID, data.spanID, data.parentID, data.name)
	}
	return newSpan(data, s.segment, startTime)
}

// Inject writes the propagation headers for this span into the carrier,
// which must implement TextMapWriter. The segment's sampling decision is
// resolved before writing, so that the downstream service observes it.
func (s *Span) Inject(carrier interface{}) error {
	writer, ok := carrier.(TextMapWriter)
	if !ok {
		return ErrInvalidCarrier
	}
	s.segment.inject(writer, s.data)
	return nil
}

// Finish closes the span, recording its duration and handing its record to
// the trace segment. Finishing a span a second time is diagnosed and
// otherwise ignored; the span is reported exactly once.
func (s *Span) Finish(opts ...FinishOption) {
	var cfg FinishConfig
	for _, fn := range opts {
		fn(&cfg)
	}
	if cfg.Error != nil {
		s.SetError(cfg.Error)
	}
	var duration int64
	if cfg.FinishTime.IsZero() {
		duration = int64(time.Since(s.startTime))
	} else {
		duration = int64(cfg.FinishTime.Sub(s.startTime))
	}
	runtime.SetFinalizer(s, nil)
	s.finish(duration)
}

// abandon finishes a span whose handle was dropped without Finish.
func (s *Span) abandon() {
	if s.finish(int64(time.Since(s.startTime))) {
		log.Debug("span %d of trace %d was never finished; finishing it now", s.data.spanID, s.data.traceID)
	}
}

// finish reports the span to its segment. It returns false if the span was
// already finished.
func (s *Span) finish(duration int64) bool {
	s.segment.mu.Lock()
	if s.finished {
		s.segment.mu.Unlock()
		log.Error("span %d of trace %d finished more than once", s.data.spanID, s.data.traceID)
		return false
	}
	s.finished = true
	if duration < 0 {
		duration = 0
	}
	s.data.duration = duration
	s.segment.mu.Unlock()
	// finishSpan takes the segment lock itself; the span is already marked
	// finished, so no mutation can race with chunk assembly.
	s.segment.finishSpan(s.data)
	return true
}

func manualDecision(priority int) SamplingDecision {
	return SamplingDecision{
		Priority:  priority,
		Mechanism: samplernames.Manual,
		Origin:    OriginManual,
	}
}

// setTagData applies a tag to a span record. The caller must either hold the
// segment lock or be the sole owner of the record.
func setTagData(d *spanData, key string, value interface{}) {
	if v, ok := toFloat64(value); ok {
		d.setMetric(key, v)
		return
	}
	switch key {
	case ext.ServiceName:
		d.service = fmt.Sprint(value)
	case ext.ResourceName:
		d.resource = fmt.Sprint(value)
	case ext.SpanType:
		d.spanType = fmt.Sprint(value)
	case ext.SpanName:
		d.name = fmt.Sprint(value)
	case ext.Error:
		switch v := value.(type) {
		case bool:
			if v {
				d.error = 1
			} else {
				d.error = 0
			}
		case error:
			d.error = 1
			d.setMeta(ext.ErrorMsg, v.Error())
			d.setMeta(ext.ErrorType, reflect.TypeOf(v).String())
			d.setMeta(ext.ErrorStack, string(debug.Stack()))
		case nil:
			d.error = 0
		default:
			d.error = 1
		}
	default:
		d.setMeta(key, fmt.Sprint(value))
	}
}

// toFloat64 attempts to convert value into a float64. It returns the value
// and whether the conversion was possible.
func toFloat64(value interface{}) (f float64, ok bool) {
	switch i := value.(type) {
	case byte:
		return float64(i), true
	case float32:
		return float64(i), true
	case float64:
		return i, true
	case int:
		return float64(i), true
	case int16:
		return float64(i), true
	case int32:
		return float64(i), true
	case int64:
		return float64(i), true
	case uint:
		return float64(i), true
	case uint16:
		return float64(i), true
	case uint32:
		return float64(i), true
	case uint64:
		return float64(i), true
	default:
		return 0, false
	}
}

func asBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		if f, ok := toFloat64(value); ok {
			return f != 0
		}
		return false
	}
}
