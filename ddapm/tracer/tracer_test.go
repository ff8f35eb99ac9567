// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddapm/ddapm-go/ddapm/ext"
)

// mockCollector records every chunk it receives. Chunks arrive synchronously
// from the goroutine finishing the last span of a segment.
type mockCollector struct {
	mu     sync.Mutex
	chunks []*traceChunk
}

func (m *mockCollector) send(chunk *traceChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunk)
	return nil
}

func (m *mockCollector) stop() {}

func (m *mockCollector) Chunks() []*traceChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*traceChunk{}, m.chunks...)
}

func newTestTracer(t *testing.T, opts ...StartOption) (*Tracer, *mockCollector) {
	t.Setenv("DD_TRACE_STARTUP_LOGS", "false")
	col := &mockCollector{}
	opts = append([]StartOption{
		WithService("test.service"),
		withCollector(col),
	}, opts...)
	trc, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(trc.Stop)
	return trc, col
}

func TestNewRequiresService(t *testing.T) {
	t.Setenv("DD_SERVICE", "")
	_, err := New()
	assert.Error(t, err)
}

func TestRootSpanLifecycle(t *testing.T) {
	assert := assert.New(t)
	trc, col := newTestTracer(t, WithService("svc"))
	span := trc.StartSpan("web.request")
	span.SetTag("k", "v")
	span.Finish()

	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].spans, 1)
	d := chunks[0].spans[0]
	assert.Equal("svc", d.service)
	assert.Equal("web.request", d.name)
	assert.Equal("web.request", d.resource)
	assert.EqualValues(0, d.parentID)
	assert.Equal(d.spanID, d.traceID)
	assert.NotZero(d.spanID)
	assert.Equal("v", d.meta["k"])
	assert.GreaterOrEqual(d.duration, int64(0))
	assert.Contains(d.metrics, keySamplingPriority)
}

func TestSpanFinishTwice(t *testing.T) {
	trc, col := newTestTracer(t)
	span := trc.StartSpan("once")
	span.Finish()
	span.Finish()
	assert.Len(t, col.Chunks(), 1)
}

func TestChildSpansShareSegment(t *testing.T) {
	assert := assert.New(t)
	trc, col := newTestTracer(t)
	root := trc.StartSpan("root")
	child := root.StartChild("child")
	grandchild := child.StartChild("grandchild")

	assert.Equal(root.TraceID(), child.TraceID())
	assert.Equal(root.TraceID(), grandchild.TraceID())
	assert.NotEqual(root.SpanID(), child.SpanID())

	grandchild.Finish()
	child.Finish()
	assert.Empty(col.Chunks(), "segment must not finalize while spans are open")
	root.Finish()

	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].spans, 3)
	// spans appear in finish order
	assert.Equal("grandchild", chunks[0].spans[0].name)
	assert.Equal("child", chunks[0].spans[1].name)
	assert.Equal("root", chunks[0].spans[2].name)
	assert.Equal(root.SpanID(), chunks[0].spans[1].parentID)
	assert.Equal(child.SpanID(), chunks[0].spans[0].parentID)
}

func TestChildInheritsService(t *testing.T) {
	trc, col := newTestTracer(t, WithService("svc"), WithEnv("prod"))
	root := trc.StartSpan("root", ServiceName("other"))
	child := root.StartChild("child")
	child.Finish()
	root.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, "other", chunks[0].spans[0].service)
	assert.Equal(t, "prod", chunks[0].spans[0].meta[ext.Environment])
}

func TestInjectChildNativeStyle(t *testing.T) {
	assert := assert.New(t)
	trc, _ := newTestTracer(t, WithInjectionStyles(StyleDatadog))
	root := trc.StartSpan("root")
	child := root.StartChild("child")
	headers := TextMapCarrier(map[string]string{})
	require.NoError(t, child.Inject(headers))

	assert.Equal(strconv.FormatUint(root.TraceID(), 10), headers[traceIDHeader])
	assert.Equal(strconv.FormatUint(child.SpanID(), 10), headers[parentIDHeader])
	assert.Contains(headers, priorityHeader)
	child.Finish()
	root.Finish()
}

func TestInjectResolvesSamplingDecision(t *testing.T) {
	trc, col := newTestTracer(t, WithSampleRate(1))
	span := trc.StartSpan("root")
	headers := TextMapCarrier(map[string]string{})
	require.NoError(t, span.Inject(headers))
	injected := headers[priorityHeader]
	span.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	// the decision observed downstream matches the one reported
	reported := chunks[0].spans[0].metrics[keySamplingPriority]
	assert.Equal(t, injected, strconv.Itoa(int(reported)))
}

func TestExtractWithOriginAndNoParent(t *testing.T) {
	assert := assert.New(t)
	trc, col := newTestTracer(t)
	span, err := trc.Extract("continue", TextMapCarrier(map[string]string{
		traceIDHeader: "42",
		originHeader:  "synthetics",
	}))
	require.NoError(t, err)
	assert.EqualValues(42, span.TraceID())
	assert.EqualValues(0, span.data.parentID)
	span.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal("synthetics", chunks[0].spans[0].meta[keyOrigin])
}

func TestExtractChildOfRemoteParent(t *testing.T) {
	assert := assert.New(t)
	trc, _ := newTestTracer(t)
	span, err := trc.Extract("handle", TextMapCarrier(map[string]string{
		traceIDHeader:  "42",
		parentIDHeader: "7",
		priorityHeader: "2",
	}))
	require.NoError(t, err)
	assert.EqualValues(42, span.TraceID())
	assert.EqualValues(7, span.data.parentID)
	priority, ok := span.segment.samplingPriority()
	assert.True(ok)
	assert.Equal(2, priority)
	assert.Equal(OriginExtracted, span.segment.decision.Origin)
	span.Finish()
}

func TestExtractMalformedTraceID(t *testing.T) {
	trc, _ := newTestTracer(t)
	_, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader:  "not-a-number",
		parentIDHeader: "1",
	}))
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidInteger))
	assert.Contains(t, err.Error(), traceIDHeader)
}

func TestExtractOutOfRangeTraceID(t *testing.T) {
	trc, _ := newTestTracer(t)
	_, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader:  "18446744073709551616", // 2^64
		parentIDHeader: "1",
	}))
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeOutOfRangeInteger))
}

func TestExtractNoSpan(t *testing.T) {
	trc, _ := newTestTracer(t)
	_, err := trc.Extract("x", TextMapCarrier(map[string]string{}))
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeNoSpanToExtract))
}

func TestExtractMissingParent(t *testing.T) {
	trc, _ := newTestTracer(t)
	_, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader: "42",
	}))
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeMissingParentSpanID))
}

func TestExtractInconsistentStyles(t *testing.T) {
	trc, _ := newTestTracer(t)
	_, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader:     "1",
		parentIDHeader:    "2",
		traceparentHeader: "00-00000000000000000000000000000002-0000000000000002-01",
	}))
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeInconsistentExtractionStyles))
}

func TestExtractConsistentStylesAgree(t *testing.T) {
	trc, _ := newTestTracer(t)
	span, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader:     "2",
		parentIDHeader:    "3",
		priorityHeader:    "1",
		traceparentHeader: "00-00000000000000000000000000000002-0000000000000003-01",
	}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, span.TraceID())
	assert.EqualValues(t, 3, span.data.parentID)
	span.Finish()
}

func TestExtractOrCreateFallsBack(t *testing.T) {
	trc, _ := newTestTracer(t)
	span, err := trc.ExtractOrCreate("fresh", TextMapCarrier(map[string]string{}))
	require.NoError(t, err)
	assert.EqualValues(t, 0, span.data.parentID)
	assert.Equal(t, span.SpanID(), span.TraceID())
	span.Finish()
}

func TestExtractOrCreatePropagatesErrors(t *testing.T) {
	trc, _ := newTestTracer(t)
	_, err := trc.ExtractOrCreate("x", TextMapCarrier(map[string]string{
		traceIDHeader: "oops",
	}))
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidInteger))
}

func TestSamplingOverrideAfterExtraction(t *testing.T) {
	trc, col := newTestTracer(t)
	span, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader:  "42",
		parentIDHeader: "7",
		priorityHeader: "-1",
	}))
	require.NoError(t, err)
	span.SetSamplingPriority(2)
	span.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	assert.EqualValues(t, 2, chunks[0].spans[0].metrics[keySamplingPriority])
}

func TestExtractedDecisionSticks(t *testing.T) {
	trc, col := newTestTracer(t, WithSampleRate(1))
	span, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader:  "42",
		parentIDHeader: "7",
		priorityHeader: "-1",
	}))
	require.NoError(t, err)
	span.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	// the extracted drop decision must not be overridden by the sampler
	assert.EqualValues(t, -1, chunks[0].spans[0].metrics[keySamplingPriority])
}

func TestManualKeepTag(t *testing.T) {
	trc, col := newTestTracer(t)
	span := trc.StartSpan("root")
	span.SetTag(ext.ManualKeep, true)
	span.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	assert.EqualValues(t, ext.PriorityUserKeep, chunks[0].spans[0].metrics[keySamplingPriority])
}

func TestReportHostname(t *testing.T) {
	trc, col := newTestTracer(t, WithReportHostname())
	root := trc.StartSpan("root")
	child := root.StartChild("child")
	child.Finish()
	root.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	// hostname goes on the root span only
	root0 := chunks[0].spans[1]
	require.Equal(t, "root", root0.name)
	assert.NotEmpty(t, root0.meta[keyHostname])
	assert.NotContains(t, chunks[0].spans[0].meta, keyHostname)
}

func TestGlobalTags(t *testing.T) {
	trc, col := newTestTracer(t, WithGlobalTag("shard", "eu-1"))
	trc.StartSpan("root").Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, "eu-1", chunks[0].spans[0].meta["shard"])
}

func TestConcurrentSpans(t *testing.T) {
	trc, col := newTestTracer(t)
	root := trc.StartSpan("root")
	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			child := root.StartChild("child")
			child.SetTag("i", strconv.Itoa(i))
			child.Finish()
		}(i)
	}
	wg.Wait()
	root.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].spans, n+1)
}
