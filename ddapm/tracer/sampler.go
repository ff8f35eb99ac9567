// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ddapm/ddapm-go/ddapm/ext"
	"github.com/ddapm/ddapm-go/internal/log"
	"github.com/ddapm/ddapm-go/internal/samplernames"
)

// knuthFactor is the constant used for the Knuth multiplicative hash, same
// as the agent.
const knuthFactor = uint64(1111111111111111111)

// sampledByRate verifies if the number n should be sampled at the specified
// rate. The check is deterministic: a given n and rate always produce the
// same answer, in every tracer implementation.
func sampledByRate(n uint64, rate float64) bool {
	if rate < 1 {
		return n*knuthFactor < uint64(rate*math.MaxUint64)
	}
	return true
}

// SamplingRule matches traces by service and operation name and applies a
// fixed sampling rate to them. Empty fields match everything; "*" and "?"
// glob wildcards are supported.
type SamplingRule struct {
	// Service, when non-empty, restricts the rule to root spans of the
	// given service.
	Service string

	// Name, when non-empty, restricts the rule to root spans with the given
	// operation name.
	Name string

	// Rate is the sampling rate applied to matching traces.
	Rate float64

	service *regexp.Regexp
	name    *regexp.Regexp
}

// compile validates the rule's rate and prepares its matchers.
func (r *SamplingRule) compile() error {
	if _, err := RateFrom(r.Rate); err != nil {
		return err
	}
	r.service = globMatch(r.Service)
	r.name = globMatch(r.Name)
	return nil
}

func (r *SamplingRule) match(d *spanData) bool {
	if r.service != nil && !r.service.MatchString(d.service) {
		return false
	}
	if r.name != nil && !r.name.MatchString(d.name) {
		return false
	}
	return true
}

// globMatch compiles a glob pattern with "*" and "?" wildcards into a
// regular expression. An empty pattern matches everything and compiles to
// nil.
func globMatch(pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	// escaping regex characters, then replacing glob wildcards
	pattern = regexp.QuoteMeta(pattern)
	pattern = strings.ReplaceAll(pattern, "\\*", ".*")
	pattern = strings.ReplaceAll(pattern, "\\?", ".")
	return regexp.MustCompile("^" + pattern + "$")
}

// traceSampler converts a trace into a sampling decision. Decisions come,
// in order of precedence, from user-defined rules, from the global sample
// rate, or from the rates the agent computes per service and environment.
// The agent's rates are read often and replaced rarely; replacement swaps
// the whole table under the write lock.
type traceSampler struct {
	rules      []SamplingRule
	globalRate float64 // NaN when unset
	limiter    *rateLimiter

	mu         sync.RWMutex       // guards agentRates
	agentRates map[string]Rate    // e.g. "service:billing,env:prod" -> rate
	defaultRate Rate              // applied before the agent reports rates
}

func newTraceSampler(rules []SamplingRule, globalRate float64, limit float64) *traceSampler {
	compiled := make([]SamplingRule, 0, len(rules))
	for _, rule := range rules {
		if err := rule.compile(); err != nil {
			log.Warn("ignoring sampling rule %+v: %v", rule, err)
			continue
		}
		compiled = append(compiled, rule)
	}
	return &traceSampler{
		rules:       compiled,
		globalRate:  globalRate,
		limiter:     newRateLimiter(limit),
		agentRates:  make(map[string]Rate),
		defaultRate: rateOne(),
	}
}

// decide computes the sampling decision for the trace whose first span is d.
// The telemetry metrics describing the applied rates are recorded on d. The
// result is deterministic in the trace ID.
func (s *traceSampler) decide(d *spanData) SamplingDecision {
	for i := range s.rules {
		if s.rules[i].match(d) {
			return s.applyRule(d, s.rules[i].Rate)
		}
	}
	if !math.IsNaN(s.globalRate) {
		return s.applyRule(d, s.globalRate)
	}
	rate, known := s.agentRate(d.service, d.meta[ext.Environment])
	d.setMetric(keyAgentRate, rate.Float64())
	priority := ext.PriorityAutoReject
	if sampledByRate(d.traceID, rate.Float64()) {
		priority = ext.PriorityAutoKeep
	}
	mechanism := samplernames.AgentRate
	if !known {
		mechanism = samplernames.Default
	}
	return SamplingDecision{Priority: priority, Mechanism: mechanism, Origin: OriginLocal}
}

// applyRule samples the trace at the given rule or global rate, bounded by
// the rate limiter.
func (s *traceSampler) applyRule(d *spanData, ruleRate float64) SamplingDecision {
	d.setMetric(keyRulesSamplerAppliedRate, ruleRate)
	if !sampledByRate(d.traceID, ruleRate) {
		return SamplingDecision{
			Priority:  ext.PriorityUserReject,
			Mechanism: samplernames.RuleRate,
			Origin:    OriginLocal,
		}
	}
	allowed, effectiveRate := s.limiter.allowOne(time.Now())
	d.setMetric(keyRulesSamplerLimiterRate, effectiveRate)
	priority := ext.PriorityUserKeep
	if !allowed {
		priority = ext.PriorityUserReject
	}
	return SamplingDecision{
		Priority:  priority,
		Mechanism: samplernames.RuleRate,
		Origin:    OriginLocal,
	}
}

// agentRate returns the agent-provided rate for the service and environment,
// and whether the agent has reported one.
func (s *traceSampler) agentRate(service, env string) (Rate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.agentRates[rateByServiceKey(service, env)]; ok {
		return rate, true
	}
	return s.defaultRate, false
}

// applyRates atomically replaces the agent rate table. It is invoked by the
// agent collector with the rates decoded from a trace submission response.
func (s *traceSampler) applyRates(rates map[string]float64) {
	table := make(map[string]Rate, len(rates))
	for key, value := range rates {
		r, err := RateFrom(value)
		if err != nil {
			log.Warn("ignoring agent rate for %q: %v", key, err)
			continue
		}
		table[key] = r
	}
	s.mu.Lock()
	s.agentRates = table
	s.mu.Unlock()
}

// rateByServiceKey formats the key of the agent's rates-by-service table.
func rateByServiceKey(service, env string) string {
	return "service:" + service + ",env:" + env
}

// defaultRateLimit specifies the default trace rate limit used when
// DD_TRACE_RATE_LIMIT is not set.
const defaultRateLimit = 100.0

// rateLimiter limits the volume of rule-sampled traces and keeps track of
// the effective rate over the current and previous second, which is
// reported on sampled root spans.
type rateLimiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex // guards below fields
	prevTime    time.Time  // time at which prevAllowed and prevSeen were set
	allowed     float64    // number of spans allowed in the current period
	seen        float64    // number of spans seen in the current period
	prevAllowed float64    // number of spans allowed in the previous period
	prevSeen    float64    // number of spans seen in the previous period
}

func newRateLimiter(limit float64) *rateLimiter {
	if math.IsNaN(limit) || limit < 0 {
		limit = defaultRateLimit
	}
	return &rateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(limit), int(math.Ceil(limit))),
		prevTime: time.Now(),
	}
}

// allowOne returns whether the trace is within the limit, along with the
// effective rate observed across the current and previous periods.
func (r *rateLimiter) allowOne(now time.Time) (bool, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := now.Sub(r.prevTime); d >= time.Second {
		// enter a new period
		r.prevTime = r.prevTime.Add(d.Truncate(time.Second))
		r.prevAllowed = r.allowed
		r.prevSeen = r.seen
		r.allowed = 0
		r.seen = 0
	}
	r.seen++
	var sampled bool
	if r.limiter.AllowN(now, 1) {
		r.allowed++
		sampled = true
	}
	effectiveRate := (r.prevAllowed + r.allowed) / (r.prevSeen + r.seen)
	return sampled, effectiveRate
}
