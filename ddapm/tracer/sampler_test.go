// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddapm/ddapm-go/ddapm/ext"
	"github.com/ddapm/ddapm-go/internal/samplernames"
)

func spanWith(service, name string, traceID uint64) *spanData {
	d := newSpanData()
	d.service = service
	d.name = name
	d.traceID = traceID
	d.spanID = traceID
	return d
}

func TestSampledByRate(t *testing.T) {
	assert := assert.New(t)
	assert.True(sampledByRate(123, 1))
	assert.False(sampledByRate(123, 0))
	// deterministic: same inputs, same answer
	for i := 0; i < 3; i++ {
		assert.Equal(sampledByRate(500, 0.5), sampledByRate(500, 0.5))
	}
}

func TestSampledByRateDistribution(t *testing.T) {
	// at rate 0.5 roughly half of uniformly random IDs are kept
	kept := 0
	const total = 10000
	for i := 0; i < total; i++ {
		if sampledByRate(generateSpanID(), 0.5) {
			kept++
		}
	}
	assert.InDelta(t, total/2, kept, total/10)
}

func TestTraceSamplerDefault(t *testing.T) {
	s := newTraceSampler(nil, math.NaN(), math.NaN())
	d := spanWith("svc", "op", 42)
	decision := s.decide(d)
	assert.Equal(t, ext.PriorityAutoKeep, decision.Priority)
	assert.Equal(t, samplernames.Default, decision.Mechanism)
	assert.Equal(t, OriginLocal, decision.Origin)
	assert.EqualValues(t, 1, d.metrics[keyAgentRate])
}

func TestTraceSamplerDeterminism(t *testing.T) {
	s := newTraceSampler(nil, 0.5, math.NaN())
	first := s.decide(spanWith("svc", "op", 1234567))
	for i := 0; i < 5; i++ {
		again := s.decide(spanWith("svc", "op", 1234567))
		assert.Equal(t, first.Priority, again.Priority)
	}
}

func TestTraceSamplerGlobalRate(t *testing.T) {
	assert := assert.New(t)
	s := newTraceSampler(nil, 0, math.NaN())
	d := spanWith("svc", "op", 42)
	decision := s.decide(d)
	assert.Equal(ext.PriorityUserReject, decision.Priority)
	assert.Equal(samplernames.RuleRate, decision.Mechanism)
	assert.EqualValues(0, d.metrics[keyRulesSamplerAppliedRate])

	s = newTraceSampler(nil, 1, math.NaN())
	d = spanWith("svc", "op", 42)
	decision = s.decide(d)
	assert.Equal(ext.PriorityUserKeep, decision.Priority)
	assert.Contains(d.metrics, keyRulesSamplerLimiterRate)
}

func TestTraceSamplerRules(t *testing.T) {
	assert := assert.New(t)
	s := newTraceSampler([]SamplingRule{
		{Service: "billing", Rate: 0},
		{Service: "web*", Name: "http.request", Rate: 1},
	}, math.NaN(), math.NaN())

	decision := s.decide(spanWith("billing", "op", 42))
	assert.Equal(ext.PriorityUserReject, decision.Priority)

	decision = s.decide(spanWith("webapp", "http.request", 42))
	assert.Equal(ext.PriorityUserKeep, decision.Priority)

	// no rule match, no global rate: fall back to agent/default path
	decision = s.decide(spanWith("other", "op", 42))
	assert.Equal(samplernames.Default, decision.Mechanism)
}

func TestTraceSamplerInvalidRuleIgnored(t *testing.T) {
	s := newTraceSampler([]SamplingRule{
		{Service: "svc", Rate: 42},
	}, math.NaN(), math.NaN())
	assert.Empty(t, s.rules)
}

func TestTraceSamplerAgentRates(t *testing.T) {
	assert := assert.New(t)
	s := newTraceSampler(nil, math.NaN(), math.NaN())
	s.applyRates(map[string]float64{
		"service:svc,env:prod": 0,
	})
	d := spanWith("svc", "op", 42)
	d.setMeta(ext.Environment, "prod")
	decision := s.decide(d)
	assert.Equal(ext.PriorityAutoReject, decision.Priority)
	assert.Equal(samplernames.AgentRate, decision.Mechanism)
	assert.EqualValues(0, d.metrics[keyAgentRate])

	// unknown service keeps using the default rate
	decision = s.decide(spanWith("unknown", "op", 42))
	assert.Equal(ext.PriorityAutoKeep, decision.Priority)
	assert.Equal(samplernames.Default, decision.Mechanism)
}

func TestTraceSamplerApplyRatesValidates(t *testing.T) {
	s := newTraceSampler(nil, math.NaN(), math.NaN())
	s.applyRates(map[string]float64{
		"service:a,env:": 2, // out of range, ignored
		"service:b,env:": 0.5,
	})
	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.agentRates, 1)
	assert.Contains(t, s.agentRates, "service:b,env:")
}

func TestRateLimiter(t *testing.T) {
	assert := assert.New(t)
	r := newRateLimiter(1)
	now := time.Now()
	allowed, _ := r.allowOne(now)
	assert.True(allowed)
	// the burst is exhausted within the same second
	allowed, effective := r.allowOne(now.Add(time.Millisecond))
	assert.False(allowed)
	assert.Equal(0.5, effective)
	// a new second refills the limiter
	allowed, _ = r.allowOne(now.Add(2 * time.Second))
	assert.True(allowed)
}

func TestGlobMatch(t *testing.T) {
	for _, tt := range []struct {
		pattern, input string
		want           bool
	}{
		{"web*", "webapp", true},
		{"web*", "api", false},
		{"http.?", "http.a", true},
		{"http.?", "http.ab", false},
		{"a.b", "aXb", false},
		{"*", "anything", true},
	} {
		rgx := globMatch(tt.pattern)
		require.NotNil(t, rgx)
		assert.Equal(t, tt.want, rgx.MatchString(tt.input), "%s ~ %s", tt.pattern, tt.input)
	}
	assert.Nil(t, globMatch(""))
}
