// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"math"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/ddapm/ddapm-go/internal/log"
	"github.com/ddapm/ddapm-go/internal/samplernames"
)

// SpanSamplingRule retains individual spans of traces that the trace-level
// sampler decided to drop. Matching spans are tagged so that the agent
// ingests them on their own.
type SpanSamplingRule struct {
	// Service, when non-empty, restricts the rule to spans of the given
	// service. Glob wildcards are supported.
	Service string

	// Name, when non-empty, restricts the rule to spans with the given
	// operation name. Glob wildcards are supported.
	Name string

	// Rate is the probability with which matching spans are kept.
	Rate float64

	// MaxPerSecond bounds the number of spans kept by this rule each
	// second. Zero means no limit.
	MaxPerSecond float64

	service *regexp.Regexp
	name    *regexp.Regexp
	limiter *rate.Limiter
}

func (r *SpanSamplingRule) compile() error {
	if _, err := RateFrom(r.Rate); err != nil {
		return err
	}
	r.service = globMatch(r.Service)
	r.name = globMatch(r.Name)
	if r.MaxPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(r.MaxPerSecond), int(math.Ceil(r.MaxPerSecond)))
	}
	return nil
}

func (r *SpanSamplingRule) match(d *spanData) bool {
	if r.service != nil && !r.service.MatchString(d.service) {
		return false
	}
	if r.name != nil && !r.name.MatchString(d.name) {
		return false
	}
	return true
}

// spanSampler applies the single span sampling rules to the spans of a
// dropped trace.
type spanSampler struct {
	rules []SpanSamplingRule
}

func newSpanSampler(rules []SpanSamplingRule) *spanSampler {
	if len(rules) == 0 {
		return nil
	}
	compiled := make([]SpanSamplingRule, 0, len(rules))
	for _, rule := range rules {
		if err := rule.compile(); err != nil {
			log.Warn("ignoring span sampling rule %+v: %v", rule, err)
			continue
		}
		compiled = append(compiled, rule)
	}
	if len(compiled) == 0 {
		return nil
	}
	return &spanSampler{rules: compiled}
}

// apply tags every span kept by a rule. Each span is evaluated against the
// first rule that matches it; the keep check hashes the span's own ID, so
// it is deterministic per span.
func (s *spanSampler) apply(spans []*spanData) {
	now := time.Now()
	for _, d := range spans {
		for i := range s.rules {
			rule := &s.rules[i]
			if !rule.match(d) {
				continue
			}
			if !sampledByRate(d.spanID, rule.Rate) {
				break
			}
			if rule.limiter != nil && !rule.limiter.AllowN(now, 1) {
				break
			}
			d.setMetric(keySingleSpanSamplingMechanism, float64(samplernames.SingleSpan))
			d.setMetric(keySingleSpanSamplingRuleRate, rule.Rate)
			if rule.MaxPerSecond > 0 {
				d.setMetric(keySingleSpanSamplingMPS, rule.MaxPerSecond)
			}
			break
		}
	}
}
