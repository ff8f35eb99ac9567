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
)

func TestConfigDefaults(t *testing.T) {
	assert := assert.New(t)
	c, err := newConfig(WithService("svc"))
	require.NoError(t, err)
	assert.Equal("svc", c.serviceName)
	assert.Equal("http://localhost:8126", c.agentURL)
	assert.Equal(defaultFlushInterval, c.flushInterval)
	assert.Equal([]PropagationStyle{StyleDatadog, StyleW3C}, c.injectionStyles)
	assert.Equal([]PropagationStyle{StyleDatadog, StyleB3, StyleW3C}, c.extractionStyles)
	assert.True(math.IsNaN(c.globalSampleRate))
	assert.NotNil(c.httpClient)
	assert.NotNil(c.statsd)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("DD_SERVICE", "env.service")
	t.Setenv("DD_ENV", "staging")
	t.Setenv("DD_VERSION", "1.2.3")
	t.Setenv("DD_TRACE_AGENT_URL", "http://trace-agent:8126")
	t.Setenv("DD_TRACE_SAMPLE_RATE", "0.3")
	t.Setenv("DD_PROPAGATION_STYLE_INJECT", "b3")
	t.Setenv("DD_PROPAGATION_STYLE_EXTRACT", "tracecontext")

	// environment wins over programmatic configuration
	c, err := newConfig(WithService("code.service"), WithEnv("prod"))
	require.NoError(t, err)
	assert := assert.New(t)
	assert.Equal("env.service", c.serviceName)
	assert.Equal("staging", c.env)
	assert.Equal("1.2.3", c.version)
	assert.Equal("http://trace-agent:8126", c.agentURL)
	assert.Equal(0.3, c.globalSampleRate)
	assert.Equal([]PropagationStyle{StyleB3}, c.injectionStyles)
	assert.Equal([]PropagationStyle{StyleW3C}, c.extractionStyles)
}

func TestConfigAgentHostEnv(t *testing.T) {
	t.Setenv("DD_AGENT_HOST", "10.0.0.5")
	c, err := newConfig(WithService("svc"))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8126", c.agentURL)
}

func TestConfigInvalidSampleRateEnv(t *testing.T) {
	t.Setenv("DD_TRACE_SAMPLE_RATE", "2.0")
	c, err := newConfig(WithService("svc"))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(c.globalSampleRate))
}

func TestConfigOptions(t *testing.T) {
	assert := assert.New(t)
	c, err := newConfig(
		WithService("svc"),
		WithServiceType("web"),
		WithEnv("prod"),
		WithServiceVersion("2.0"),
		WithAgentAddr("10.1.2.3:8126"),
		WithFlushInterval(time.Second),
		WithSampleRate(0.7),
		WithGlobalTag("team", "platform"),
	)
	require.NoError(t, err)
	assert.Equal("web", c.serviceType)
	assert.Equal("prod", c.env)
	assert.Equal("2.0", c.version)
	assert.Equal("http://10.1.2.3:8126", c.agentURL)
	assert.Equal(time.Second, c.flushInterval)
	assert.Equal(0.7, c.globalSampleRate)
	assert.Equal("platform", c.globalTags["team"])
}

func TestConfigInvalidAgentURL(t *testing.T) {
	_, err := newConfig(WithService("svc"), WithAgentURL("ftp://example.com"))
	assert.Error(t, err)
}
