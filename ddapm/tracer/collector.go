// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

// traceChunk is the payload unit sent to the agent: the finished spans of
// one trace segment, in finish order, along with the sampler that should
// receive the agent's sampling-rate feedback for this submission.
type traceChunk struct {
	spans   []*spanData
	sampler *traceSampler
}

// collector is the sink for finalized trace chunks. send never blocks on
// network I/O.
type collector interface {
	send(chunk *traceChunk) error
	stop()
}

// noopCollector drops every chunk. It is used when no agent endpoint is
// available.
type noopCollector struct{}

func (noopCollector) send(_ *traceChunk) error { return nil }
func (noopCollector) stop()                    {}
