// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import (
	"bytes"
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// maxPayloadItems indicates the maximum number of items supported in a
// msgpack-encoded array.
// See: https://github.com/msgpack/msgpack/blob/master/spec.md#array-format-family
const maxPayloadItems = 1<<32 - 1

// errOverflow is returned when maxPayloadItems is exceeded.
var errOverflow = fmt.Errorf("maximum msgpack array length (%d) exceeded", maxPayloadItems)

// encodeChunks serializes the given trace chunks in the agent's msgpack
// trace format: an array of chunks, where each chunk is an array of span
// maps.
func encodeChunks(chunks []*traceChunk) ([]byte, error) {
	if len(chunks) > maxPayloadItems {
		return nil, errOverflow
	}
	size := 8
	for _, chunk := range chunks {
		for _, d := range chunk.spans {
			size += d.Msgsize()
		}
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	w := msgp.NewWriter(buf)
	if err := w.WriteArrayHeader(uint32(len(chunks))); err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		if len(chunk.spans) > maxPayloadItems {
			return nil, errOverflow
		}
		if err := w.WriteArrayHeader(uint32(len(chunk.spans))); err != nil {
			return nil, err
		}
		for _, d := range chunk.spans {
			if err := d.EncodeMsg(w); err != nil {
				return nil, err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
