// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"strings"
)

// traceTagPrefix marks the tags that propagate across service boundaries
// through the x-datadog-tags header.
const traceTagPrefix = "_dd.p."

// traceTagsMaxSize limits the size of the x-datadog-tags header, both when
// decoding an incoming value and when encoding an outgoing one.
const traceTagsMaxSize = 512

// decodeTraceTags parses the value of the x-datadog-tags header: a comma
// separated list of key=value pairs. Only tags carrying the propagation
// prefix are kept. Oversized input yields an error with code
// ErrCodeTraceTagsExceedMaximumLength, malformed input one with
// ErrCodeMalformedTraceTags; both are recoverable for the caller.
func decodeTraceTags(value string) (map[string]string, error) {
	if value == "" {
		return nil, nil
	}
	if len(value) > traceTagsMaxSize {
		return nil, newError(ErrCodeTraceTagsExceedMaximumLength,
			"trace tags are %d bytes; the maximum is %d", len(value), traceTagsMaxSize)
	}
	tags := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, newError(ErrCodeMalformedTraceTags, "invalid trace tag pair %q", pair)
		}
		if !strings.HasPrefix(kv[0], traceTagPrefix) {
			continue
		}
		tags[kv[0]] = kv[1]
	}
	return tags, nil
}

// encodeTraceTags serializes the propagated trace tags as a comma separated
// list of key=value pairs. Tags without the propagation prefix are skipped.
// A tag with characters that cannot be represented yields an error with code
// ErrCodeMalformedTraceTags, and an encoding that would exceed the maximum
// header size one with code ErrCodeTraceTagsExceedMaximumLength.
func encodeTraceTags(tags map[string]string) (string, error) {
	var b strings.Builder
	for k, v := range tags {
		if !strings.HasPrefix(k, traceTagPrefix) {
			continue
		}
		if !validTraceTag(k, v) {
			return "", newError(ErrCodeMalformedTraceTags, "trace tag %q cannot be encoded", k)
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		if b.Len() > traceTagsMaxSize {
			return "", newError(ErrCodeTraceTagsExceedMaximumLength,
				"trace tags exceed the maximum header size of %d bytes", traceTagsMaxSize)
		}
	}
	return b.String(), nil
}

// validTraceTag reports whether the key/value pair can be represented in the
// x-datadog-tags header. Keys may not contain commas, equals signs, spaces
// or non-printable characters; values may not contain commas or
// non-printable characters.
func validTraceTag(key, value string) bool {
	for _, r := range key {
		if r < '!' || r > '~' || r == ',' || r == '=' {
			return false
		}
	}
	for _, r := range value {
		if r < ' ' || r > '~' || r == ',' {
			return false
		}
	}
	return true
}
