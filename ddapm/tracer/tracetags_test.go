// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTraceTags(t *testing.T) {
	assert := assert.New(t)
	tags, err := decodeTraceTags("_dd.p.dm=-4,_dd.p.usr.id=baz64")
	require.NoError(t, err)
	assert.Equal(map[string]string{
		"_dd.p.dm":     "-4",
		"_dd.p.usr.id": "baz64",
	}, tags)
}

func TestDecodeTraceTagsSkipsForeignKeys(t *testing.T) {
	tags, err := decodeTraceTags("_dd.p.dm=-4,foo=bar")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"_dd.p.dm": "-4"}, tags)
}

func TestDecodeTraceTagsEmpty(t *testing.T) {
	tags, err := decodeTraceTags("")
	require.NoError(t, err)
	assert.Nil(t, tags)
}

func TestDecodeTraceTagsMalformed(t *testing.T) {
	for _, in := range []string{
		"_dd.p.dm",
		"_dd.p.dm=-4,",
		"=value",
	} {
		_, err := decodeTraceTags(in)
		require.Error(t, err, in)
		assert.True(t, IsErrorCode(err, ErrCodeMalformedTraceTags), in)
	}
}

func TestDecodeTraceTagsMaxSize(t *testing.T) {
	in := "_dd.p.k=" + strings.Repeat("x", traceTagsMaxSize)
	_, err := decodeTraceTags(in)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeTraceTagsExceedMaximumLength))
}

func TestExtractOversizedTraceTags(t *testing.T) {
	trc, col := newTestTracer(t)
	span, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader:   "42",
		parentIDHeader:  "7",
		traceTagsHeader: "_dd.p.k=" + strings.Repeat("x", traceTagsMaxSize),
	}))
	// oversized tags are recoverable: extraction succeeds
	require.NoError(t, err)
	span.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, "extract_max_size", chunks[0].spans[0].meta[keyPropagationError])
}

func TestExtractMalformedTraceTags(t *testing.T) {
	trc, col := newTestTracer(t)
	span, err := trc.Extract("x", TextMapCarrier(map[string]string{
		traceIDHeader:   "42",
		parentIDHeader:  "7",
		traceTagsHeader: "no-equals-sign",
	}))
	require.NoError(t, err)
	span.Finish()
	chunks := col.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, "decoding_error", chunks[0].spans[0].meta[keyPropagationError])
}

func TestEncodeTraceTags(t *testing.T) {
	encoded, err := encodeTraceTags(map[string]string{
		"_dd.p.dm":  "-4",
		"not.prop":  "skipped",
	})
	require.NoError(t, err)
	assert.Equal(t, "_dd.p.dm=-4", encoded)
}

func TestEncodeTraceTagsRoundTrip(t *testing.T) {
	in := map[string]string{
		"_dd.p.dm":     "-4",
		"_dd.p.usr.id": "baz64",
	}
	encoded, err := encodeTraceTags(in)
	require.NoError(t, err)
	out, err := decodeTraceTags(encoded)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeTraceTagsInvalidValue(t *testing.T) {
	_, err := encodeTraceTags(map[string]string{
		"_dd.p.k": "has,comma",
	})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeMalformedTraceTags))
}

func TestEncodeTraceTagsMaxSize(t *testing.T) {
	_, err := encodeTraceTags(map[string]string{
		"_dd.p.k": strings.Repeat("x", traceTagsMaxSize),
	})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeTraceTagsExceedMaximumLength))
}
