// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package tracer contains an APM client which produces trace data for a
// Datadog-compatible agent. Applications obtain spans from a Tracer,
// annotate them with tags and timing, nest child spans to form a tree, and
// finish them; when the last span of a local trace finishes, the trace is
// handed to a background collector which batches finished traces and ships
// them to the agent over HTTP.
//
// A typical use looks like:
//
//	trc, err := tracer.New(tracer.WithService("billing"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer trc.Stop()
//
//	span := trc.StartSpan("web.request", tracer.ResourceName("/posts"))
//	defer span.Finish()
//
//	child := span.StartChild("db.query")
//	child.SetTag("query", "SELECT ...")
//	child.Finish()
//
// Trace context crosses process boundaries through opaque key/value
// carriers. On the client side, Inject writes the propagation headers; on
// the server side, Extract resumes the trace:
//
//	span.Inject(tracer.HTTPHeadersCarrier(req.Header))
//	...
//	span, err := trc.Extract("web.request", tracer.HTTPHeadersCarrier(req.Header))
//
// The supported propagation styles are the native Datadog headers, B3
// multi-header and W3C Trace Context; see WithInjectionStyles and
// WithExtractionStyles.
package tracer
