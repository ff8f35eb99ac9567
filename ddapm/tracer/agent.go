// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"encoding/json"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ddapm/ddapm-go/internal/log"
	"github.com/ddapm/ddapm-go/internal/version"
)

const (
	// tracesPath is the trace submission endpoint of the agent.
	tracesPath = "/v0.4/traces"

	// defaultFlushInterval is the interval at which buffered trace chunks
	// are flushed to the agent.
	defaultFlushInterval = 2 * time.Second

	// defaultShutdownTimeout bounds how long stop waits for in-flight
	// requests before abandoning them.
	defaultShutdownTimeout = 5 * time.Second
)

// agentCollector buffers finished trace chunks and ships them to the agent.
// send only appends under a short lock; serialization and the POST happen on
// the flush path, which runs on the event scheduler's goroutine or, for the
// final flush, on the caller of stop.
type agentCollector struct {
	client   HTTPClient
	endpoint string
	statsd   statsdClient

	cancelFlush func()

	mu sync.Mutex // guards below fields

	// incoming is what send appends to; outgoing is what flush consumes
	// from. A flush moves incoming to outgoing before releasing the lock,
	// so a submission failure never blocks producers.
	incoming []*traceChunk
	outgoing []*traceChunk
	stopped  bool
}

func newAgentCollector(c *config) *agentCollector {
	a := &agentCollector{
		client:   c.httpClient,
		endpoint: c.agentBaseURL + tracesPath,
		statsd:   c.statsd,
	}
	a.cancelFlush = c.scheduler.scheduleRecurring(c.flushInterval, func() {
		a.statsd.Incr("datadog.tracer.flush_triggered", []string{"reason:scheduled"}, 1)
		a.flush()
	})
	return a
}

// send implements collector. It never blocks on network I/O.
func (a *agentCollector) send(chunk *traceChunk) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return ErrTracerStopped
	}
	a.incoming = append(a.incoming, chunk)
	return nil
}

// flush moves the buffered chunks out from under the lock, serializes them
// and submits them in a single request. Failed batches are logged and
// dropped; there is no retry queue.
func (a *agentCollector) flush() {
	a.mu.Lock()
	a.outgoing = append(a.outgoing, a.incoming...)
	a.incoming = nil
	batch := a.outgoing
	a.outgoing = nil
	a.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	body, err := encodeChunks(batch)
	if err != nil {
		log.Error("lost %d trace chunks: msgpack encoding failed: %v", len(batch), err)
		a.statsd.Count("datadog.tracer.traces_dropped", int64(len(batch)), []string{"reason:encoding_error"}, 1)
		return
	}
	// Deduplicate the response handlers: chunks typically share one sampler.
	samplers := make([]*traceSampler, 0, 1)
	for _, chunk := range batch {
		if chunk.sampler == nil {
			continue
		}
		known := false
		for _, s := range samplers {
			if s == chunk.sampler {
				known = true
				break
			}
		}
		if !known {
			samplers = append(samplers, chunk.sampler)
		}
	}
	count := len(batch)
	err = a.client.Post(a.endpoint,
		func(h TextMapWriter) {
			h.Set("Datadog-Meta-Lang", "go")
			h.Set("Datadog-Meta-Lang-Version", strings.TrimPrefix(runtime.Version(), "go"))
			h.Set("Datadog-Meta-Tracer-Version", version.Tag)
			h.Set("X-Datadog-Trace-Count", strconv.Itoa(count))
			h.Set("Content-Type", "application/msgpack")
		},
		body,
		func(status int, _ TextMapReader, respBody []byte) {
			if status < 200 || status >= 300 {
				log.Error("agent returned status %d for %d trace chunks: %s", status, count, string(respBody))
				a.statsd.Count("datadog.tracer.traces_dropped", int64(count), []string{"reason:agent_error"}, 1)
				return
			}
			a.statsd.Count("datadog.tracer.flush_traces", int64(count), nil, 1)
			a.statsd.Count("datadog.tracer.flush_bytes", int64(len(body)), nil, 1)
			applyRatesPayload(respBody, samplers)
		},
		func(err error) {
			log.Error("lost %d trace chunks: %v", count, err)
			a.statsd.Count("datadog.tracer.traces_dropped", int64(count), []string{"reason:network_error"}, 1)
		})
	if err != nil {
		log.Error("lost %d trace chunks: %v", count, err)
		a.statsd.Count("datadog.tracer.traces_dropped", int64(count), []string{"reason:send_failed"}, 1)
	}
}

// stop implements collector: it cancels the scheduled flush, performs one
// final flush synchronously and waits for in-flight requests up to the
// shutdown deadline.
func (a *agentCollector) stop() {
	a.cancelFlush()
	a.flush()
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	a.client.Stop(time.Now().Add(defaultShutdownTimeout))
}

// ratesPayload is the body of a successful trace submission response. It
// carries the sampling rates the agent computed per service and env.
type ratesPayload struct {
	RateByService map[string]float64 `json:"rate_by_service"`
}

// applyRatesPayload publishes the agent's updated sampling rates to the
// samplers recorded on the submitted chunks. It runs on the HTTP client's
// goroutine; applyRates is safe for that.
func applyRatesPayload(body []byte, samplers []*traceSampler) {
	if len(body) == 0 {
		return
	}
	var payload ratesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("cannot decode agent rates response: %v", err)
		return
	}
	if payload.RateByService == nil {
		return
	}
	for _, s := range samplers {
		s.applyRates(payload.RateByService)
	}
}
