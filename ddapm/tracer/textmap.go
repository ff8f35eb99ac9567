// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ddapm/ddapm-go/ddapm/ext"
	"github.com/ddapm/ddapm-go/internal/log"
)

// TextMapWriter allows setting key/value pairs on an opaque carrier, such as
// HTTP headers.
type TextMapWriter interface {
	// Set sets the given key/value pair.
	Set(key, val string)
}

// TextMapReader allows iterating over the key/value pairs of an opaque
// carrier.
type TextMapReader interface {
	// ForeachKey iterates over all keys that exist in the underlying
	// carrier. It takes a callback function which will be called using all
	// key/value pairs as arguments.
	ForeachKey(handler func(key, val string) error) error
}

// HTTPHeadersCarrier wraps an http.Header as both a TextMapWriter and a
// TextMapReader.
type HTTPHeadersCarrier http.Header

var _ TextMapWriter = (*HTTPHeadersCarrier)(nil)
var _ TextMapReader = (*HTTPHeadersCarrier)(nil)

// Set implements TextMapWriter.
func (c HTTPHeadersCarrier) Set(key, val string) {
	http.Header(c).Set(key, val)
}

// ForeachKey implements TextMapReader.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vals := range c {
		for _, v := range vals {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// TextMapCarrier allows the use of a regular map[string]string as both a
// TextMapWriter and a TextMapReader.
type TextMapCarrier map[string]string

var _ TextMapWriter = (*TextMapCarrier)(nil)
var _ TextMapReader = (*TextMapCarrier)(nil)

// Set implements TextMapWriter.
func (c TextMapCarrier) Set(key, val string) {
	c[key] = val
}

// ForeachKey conforms to the TextMapReader interface.
func (c TextMapCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// PropagationStyle identifies one of the supported header encodings of trace
// context.
type PropagationStyle int

const (
	// StyleDatadog is the native style using the x-datadog-* headers.
	StyleDatadog PropagationStyle = iota
	// StyleB3 is the Zipkin-compatible multi-header B3 style.
	StyleB3
	// StyleW3C is the W3C Trace Context style using traceparent and
	// tracestate.
	StyleW3C
)

// String returns the configuration name of the style.
func (s PropagationStyle) String() string {
	switch s {
	case StyleDatadog:
		return "datadog"
	case StyleB3:
		return "b3multi"
	case StyleW3C:
		return "tracecontext"
	default:
		return fmt.Sprintf("style %d", int(s))
	}
}

// extractionOrder is the fixed order in which enabled styles are consulted.
var extractionOrder = []PropagationStyle{StyleDatadog, StyleB3, StyleW3C}

// parsePropagationStyles parses a comma separated list of style names, as
// found in DD_TRACE_PROPAGATION_STYLE_INJECT and friends. Unknown names are
// logged and skipped. The name "none" yields an empty, non-nil slice.
func parsePropagationStyles(list string) []PropagationStyle {
	styles := []PropagationStyle{}
	seen := make(map[PropagationStyle]bool)
	add := func(s PropagationStyle) {
		if !seen[s] {
			seen[s] = true
			styles = append(styles, s)
		}
	}
	for _, v := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "datadog":
			add(StyleDatadog)
		case "b3", "b3multi":
			add(StyleB3)
		case "tracecontext", "w3c":
			add(StyleW3C)
		case "none", "":
			// no-op
		default:
			log.Warn("unrecognized propagation style: %q", v)
		}
	}
	return styles
}

// Datadog style header names.
const (
	traceIDHeader   = "x-datadog-trace-id"
	parentIDHeader  = "x-datadog-parent-id"
	priorityHeader  = "x-datadog-sampling-priority"
	originHeader    = "x-datadog-origin"
	traceTagsHeader = "x-datadog-tags"
)

// B3 style header names.
const (
	b3TraceIDHeader = "x-b3-traceid"
	b3SpanIDHeader  = "x-b3-spanid"
	b3SampledHeader = "x-b3-sampled"
)

// W3C style header names.
const (
	traceparentHeader = "traceparent"
	tracestateHeader  = "tracestate"
)

// extractedData is the context read from a carrier by one extraction style.
// Absent fields are nil; they are never errors. Equality is field-wise and
// is what cross-style reconciliation checks.
type extractedData struct {
	traceID          *uint64
	parentID         *uint64
	origin           *string
	traceTags        map[string]string
	samplingPriority *int

	// tracestate preserves the raw W3C tracestate for re-injection. It does
	// not participate in equality.
	tracestate string

	// propagationError records a recoverable trace tags decoding problem:
	// "decoding_error" or "extract_max_size". Not part of equality.
	propagationError string
}

func (e *extractedData) empty() bool {
	return e.traceID == nil && e.parentID == nil && e.origin == nil &&
		e.traceTags == nil && e.samplingPriority == nil
}

func (e *extractedData) equal(other *extractedData) bool {
	if !equalUint64Ptr(e.traceID, other.traceID) ||
		!equalUint64Ptr(e.parentID, other.parentID) ||
		!equalStringPtr(e.origin, other.origin) ||
		!equalIntPtr(e.samplingPriority, other.samplingPriority) {
		return false
	}
	// Trace tags are compared only when both styles carried them; B3 has no
	// header for them at all.
	if e.traceTags == nil || other.traceTags == nil {
		return true
	}
	if len(e.traceTags) != len(other.traceTags) {
		return false
	}
	for k, v := range e.traceTags {
		if w, ok := other.traceTags[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func equalUint64Ptr(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// lookupHeader scans the carrier for the given lower-case header name.
// Carrier keys are matched case-insensitively.
func lookupHeader(reader TextMapReader, name string) (string, bool) {
	var value string
	var found bool
	_ = reader.ForeachKey(func(k, v string) error {
		if strings.ToLower(k) == name {
			value = v
			found = true
		}
		return nil
	})
	return value, found
}

// parseUint64 parses an unsigned decimal or hexadecimal integer, reporting
// parse failures with the closed error codes.
func parseUint64(value string, base int) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(value), base, 64)
	if err == nil {
		return v, nil
	}
	if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
		return 0, newError(ErrCodeOutOfRangeInteger, "%q is not within the range of 64-bit unsigned integers", value)
	}
	return 0, newError(ErrCodeInvalidInteger, "%q is not a valid integer", value)
}

// parseInt parses a signed decimal integer, reporting parse failures with
// the closed error codes.
func parseInt(value string) (int, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err == nil {
		return int(v), nil
	}
	if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
		return 0, newError(ErrCodeOutOfRangeInteger, "%q is not within the range of integers", value)
	}
	return 0, newError(ErrCodeInvalidInteger, "%q is not a valid integer", value)
}

// extractStyle reads the context encoded by one style from the carrier.
func extractStyle(style PropagationStyle, reader TextMapReader) (*extractedData, error) {
	switch style {
	case StyleDatadog:
		return extractDatadog(reader)
	case StyleB3:
		return extractB3(reader)
	case StyleW3C:
		return extractW3C(reader)
	default:
		return &extractedData{}, nil
	}
}

func extractDatadog(reader TextMapReader) (*extractedData, error) {
	var data extractedData
	if v, ok := lookupHeader(reader, traceIDHeader); ok {
		id, err := parseUint64(v, 10)
		if err != nil {
			return nil, err.(*Error).WithPrefix(fmt.Sprintf("could not extract Datadog-style trace ID from %s: ", traceIDHeader))
		}
		data.traceID = &id
	}
	if v, ok := lookupHeader(reader, parentIDHeader); ok {
		id, err := parseUint64(v, 10)
		if err != nil {
			return nil, err.(*Error).WithPrefix(fmt.Sprintf("could not extract Datadog-style parent span ID from %s: ", parentIDHeader))
		}
		data.parentID = &id
	}
	if v, ok := lookupHeader(reader, priorityHeader); ok {
		p, err := parseInt(v)
		if err != nil {
			return nil, err.(*Error).WithPrefix(fmt.Sprintf("could not extract Datadog-style sampling priority from %s: ", priorityHeader))
		}
		data.samplingPriority = &p
	}
	if v, ok := lookupHeader(reader, originHeader); ok {
		origin := v
		data.origin = &origin
	}
	if v, ok := lookupHeader(reader, traceTagsHeader); ok {
		tags, err := decodeTraceTags(v)
		if err != nil {
			// Recoverable: record the diagnostic and keep extracting.
			log.Error("%s: %v", traceTagsHeader, err)
			if IsErrorCode(err, ErrCodeTraceTagsExceedMaximumLength) {
				data.propagationError = "extract_max_size"
			} else {
				data.propagationError = "decoding_error"
			}
		} else if len(tags) > 0 {
			data.traceTags = tags
		}
	}
	return &data, nil
}

func extractB3(reader TextMapReader) (*extractedData, error) {
	var data extractedData
	if v, ok := lookupHeader(reader, b3TraceIDHeader); ok {
		// 128-bit trace IDs are mapped to 64 bits by taking the low part.
		if len(v) > 16 {
			v = v[len(v)-16:]
		}
		id, err := parseUint64(v, 16)
		if err != nil {
			return nil, err.(*Error).WithPrefix(fmt.Sprintf("could not extract B3-style trace ID from %s: ", b3TraceIDHeader))
		}
		data.traceID = &id
	}
	if v, ok := lookupHeader(reader, b3SpanIDHeader); ok {
		id, err := parseUint64(v, 16)
		if err != nil {
			return nil, err.(*Error).WithPrefix(fmt.Sprintf("could not extract B3-style parent span ID from %s: ", b3SpanIDHeader))
		}
		data.parentID = &id
	}
	if v, ok := lookupHeader(reader, b3SampledHeader); ok {
		p, err := parseInt(v)
		if err != nil {
			return nil, err.(*Error).WithPrefix(fmt.Sprintf("could not extract B3-style sampled flag from %s: ", b3SampledHeader))
		}
		data.samplingPriority = &p
	}
	return &data, nil
}

var hexRgx = regexp.MustCompile("^[a-f0-9]+$")

func extractW3C(reader TextMapReader) (*extractedData, error) {
	var data extractedData
	header, ok := lookupHeader(reader, traceparentHeader)
	if !ok {
		return &data, nil
	}
	header = strings.ToLower(strings.TrimSpace(header))
	if err := parseTraceparent(&data, header); err != nil {
		return nil, err
	}
	if state, ok := lookupHeader(reader, tracestateHeader); ok {
		parseTracestate(&data, state)
	}
	return &data, nil
}

// parseTraceparent parses the fixed-length traceparent header:
// version-traceid-parentid-flags, all lower-case hex.
func parseTraceparent(data *extractedData, header string) error {
	if len(header) == 0 {
		return nil
	}
	parts := strings.Split(header, "-")
	if len(header) < 55 || len(parts) < 4 {
		return newError(ErrCodeInvalidInteger, "malformed %s header: %q", traceparentHeader, header)
	}
	version, fullTraceID, parentID, flags := parts[0], parts[1], parts[2], parts[3]
	if len(version) != 2 || !hexRgx.MatchString(version) {
		return newError(ErrCodeInvalidInteger, "malformed version in %s header: %q", traceparentHeader, header)
	}
	if version == "ff" {
		return newError(ErrCodeOutOfRangeInteger, "invalid version 255 in %s header", traceparentHeader)
	}
	if len(fullTraceID) != 32 || !hexRgx.MatchString(fullTraceID) {
		return newError(ErrCodeInvalidInteger, "could not extract W3C-style trace ID from %s: %q", traceparentHeader, fullTraceID)
	}
	// The low 64 bits become the trace ID.
	traceID, err := parseUint64(fullTraceID[16:], 16)
	if err != nil {
		return err.(*Error).WithPrefix(fmt.Sprintf("could not extract W3C-style trace ID from %s: ", traceparentHeader))
	}
	if len(parentID) != 16 || !hexRgx.MatchString(parentID) {
		return newError(ErrCodeInvalidInteger, "could not extract W3C-style parent span ID from %s: %q", traceparentHeader, parentID)
	}
	parent, err := parseUint64(parentID, 16)
	if err != nil {
		return err.(*Error).WithPrefix(fmt.Sprintf("could not extract W3C-style parent span ID from %s: ", traceparentHeader))
	}
	if len(flags) != 2 || !hexRgx.MatchString(flags) {
		return newError(ErrCodeInvalidInteger, "malformed flags in %s header: %q", traceparentHeader, header)
	}
	f, err := parseUint64(flags, 16)
	if err != nil {
		return err.(*Error).WithPrefix(fmt.Sprintf("malformed flags in %s header: ", traceparentHeader))
	}
	if traceID == 0 {
		// Trace ID zero is reserved; there is nothing to extract.
		return nil
	}
	data.traceID = &traceID
	data.parentID = &parent
	priority := int(f) & 0x1
	data.samplingPriority = &priority
	return nil
}

// parseTracestate parses the dd= list-member of a tracestate header. The
// sampling priority (s) refines the traceparent sampled flag when they
// agree in sign; origin (o) and t.-prefixed trace tags are restored.
func parseTracestate(data *extractedData, header string) {
	data.tracestate = header
	for _, member := range strings.Split(strings.Trim(header, "\t "), ",") {
		member = strings.Trim(member, "\t ")
		if !strings.HasPrefix(member, "dd=") {
			continue
		}
		for _, entry := range strings.Split(member[len("dd="):], ";") {
			kv := strings.SplitN(entry, ":", 2)
			if len(kv) != 2 {
				continue
			}
			key, value := kv[0], kv[1]
			switch {
			case key == "o":
				origin := value
				data.origin = &origin
			case key == "s":
				p, err := strconv.Atoi(value)
				if err != nil {
					// Rely on the traceparent sampled flag.
					continue
				}
				if data.samplingPriority == nil {
					continue
				}
				flag := *data.samplingPriority
				if (flag == 1 && p > 0) || (flag == 0 && p <= 0) {
					data.samplingPriority = &p
				}
			case strings.HasPrefix(key, "t."):
				if data.traceTags == nil {
					data.traceTags = make(map[string]string)
				}
				data.traceTags[traceTagPrefix+key[len("t."):]] = strings.ReplaceAll(value, "~", "=")
			}
		}
	}
}

// injectStyleLocked writes the propagation headers of one style. The segment
// lock must be held.
func (ts *traceSegment) injectStyleLocked(style PropagationStyle, writer TextMapWriter, d *spanData, decision SamplingDecision) {
	switch style {
	case StyleDatadog:
		ts.injectDatadogLocked(writer, d, decision)
	case StyleB3:
		injectB3(writer, d, decision)
	case StyleW3C:
		ts.injectW3CLocked(writer, d, decision)
	}
}

func (ts *traceSegment) injectDatadogLocked(writer TextMapWriter, d *spanData, decision SamplingDecision) {
	writer.Set(traceIDHeader, strconv.FormatUint(d.traceID, 10))
	writer.Set(parentIDHeader, strconv.FormatUint(d.spanID, 10))
	writer.Set(priorityHeader, strconv.Itoa(decision.Priority))
	if ts.origin != "" {
		writer.Set(originHeader, ts.origin)
	}
	if len(ts.traceTags) == 0 {
		return
	}
	encoded, err := encodeTraceTags(ts.traceTags)
	if err != nil {
		log.Warn("will not propagate %s: %v", traceTagsHeader, err)
		ts.propagationError = "inject_max_size"
		return
	}
	if encoded != "" {
		writer.Set(traceTagsHeader, encoded)
	}
}

func injectB3(writer TextMapWriter, d *spanData, decision SamplingDecision) {
	writer.Set(b3TraceIDHeader, fmt.Sprintf("%016x", d.traceID))
	writer.Set(b3SpanIDHeader, fmt.Sprintf("%016x", d.spanID))
	if decision.Priority >= ext.PriorityAutoKeep {
		writer.Set(b3SampledHeader, "1")
	} else {
		writer.Set(b3SampledHeader, "0")
	}
}

func (ts *traceSegment) injectW3CLocked(writer TextMapWriter, d *spanData, decision SamplingDecision) {
	flags := "00"
	if decision.Priority >= ext.PriorityAutoKeep {
		flags = "01"
	}
	writer.Set(traceparentHeader, fmt.Sprintf("00-%032x-%016x-%s", d.traceID, d.spanID, flags))
	writer.Set(tracestateHeader, composeTracestate(decision.Priority, ts.origin, ts.traceTags, ts.tracestate))
}

var (
	// tracestateKeyRgx sanitizes keys of the dd tracestate list-member.
	// Commas, equals signs, spaces and characters outside 0x20-0x7E are
	// replaced with underscores.
	tracestateKeyRgx = regexp.MustCompile(",|=| |[^\\x20-\\x7E]+")

	// tracestateValueRgx sanitizes values of the dd tracestate list-member.
	// The equals sign is encoded as a tilde by the caller.
	tracestateValueRgx = regexp.MustCompile(",|;|~|[^\\x20-\\x7E]+")

	// tracestateOriginRgx sanitizes the origin entry.
	tracestateOriginRgx = regexp.MustCompile(",|=|;|[^\\x21-\\x7E]+")
)

// composeTracestate builds the tracestate header: the dd list-member carries
// the sampling priority, origin and propagated trace tags; foreign vendor
// entries from oldState are appended, up to 32 list-members in total.
func composeTracestate(priority int, origin string, traceTags map[string]string, oldState string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "dd=s:%d", priority)
	if origin != "" {
		fmt.Fprintf(&b, ";o:%s", tracestateOriginRgx.ReplaceAllString(origin, "_"))
	}
	for k, v := range traceTags {
		if !strings.HasPrefix(k, traceTagPrefix) {
			continue
		}
		entry := fmt.Sprintf("t.%s:%s",
			tracestateKeyRgx.ReplaceAllString(k[len(traceTagPrefix):], "_"),
			strings.ReplaceAll(tracestateValueRgx.ReplaceAllString(v, "_"), "=", "~"))
		if b.Len()+len(entry)+1 > 256 {
			break
		}
		b.WriteString(";")
		b.WriteString(entry)
	}
	listLength := 1
	for _, member := range strings.Split(strings.Trim(oldState, " \t"), ",") {
		member = strings.Trim(member, " \t")
		if member == "" || strings.HasPrefix(member, "dd=") {
			continue
		}
		listLength++
		// A tracestate holds at most 32 list-members; drop the rightmost.
		if listLength > 32 {
			break
		}
		b.WriteString("," + member)
	}
	return b.String()
}
