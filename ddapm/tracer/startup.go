// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-2020 Datadog, Inc.

package tracer

import (
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/ddapm/ddapm-go/internal/log"
	"github.com/ddapm/ddapm-go/internal/version"
)

type startupInfo struct {
	Date              string             `json:"date"`         // ISO 8601 date and time of start
	Version           string             `json:"version"`      // Tracer version
	Lang              string             `json:"lang"`         // "Go"
	LangVersion       string             `json:"lang_version"` // Go version, e.g. go1.22
	Env               string             `json:"env"`
	Service           string             `json:"service"`
	AgentURL          string             `json:"agent_url"`
	Debug             bool               `json:"debug"`
	SampleRate        string             `json:"sample_rate"`
	SamplingRules     []SamplingRule     `json:"sampling_rules"`
	SpanSamplingRules []SpanSamplingRule `json:"span_sampling_rules"`
	InjectionStyles   []string           `json:"injection_styles"`
	ExtractionStyles  []string           `json:"extraction_styles"`
	ReportHostname    bool               `json:"report_hostname"`
	FlushInterval     string             `json:"flush_interval"`
	ApplicationVersion string            `json:"dd_version"`
	Architecture      string             `json:"architecture"`
}

func styleNames(styles []PropagationStyle) []string {
	names := make([]string, len(styles))
	for i, s := range styles {
		names[i] = s.String()
	}
	return names
}

// logStartup generates a startup report describing the tracer's effective
// configuration.
func logStartup(t *Tracer) {
	c := t.config
	sampleRate := "DEFAULT"
	if !math.IsNaN(c.globalSampleRate) {
		sampleRate = fmt.Sprintf("%f", c.globalSampleRate)
	}
	info := startupInfo{
		Date:               time.Now().Format(time.RFC3339),
		Version:            version.Tag,
		Lang:               "Go",
		LangVersion:        runtime.Version(),
		Env:                c.env,
		Service:            c.serviceName,
		AgentURL:           c.agentURL,
		Debug:              c.debug,
		SampleRate:         sampleRate,
		SamplingRules:      c.samplingRules,
		SpanSamplingRules:  c.spanSamplingRules,
		InjectionStyles:    styleNames(c.injectionStyles),
		ExtractionStyles:   styleNames(c.extractionStyles),
		ReportHostname:     c.reportHostname,
		FlushInterval:      c.flushInterval.String(),
		ApplicationVersion: c.version,
		Architecture:       runtime.GOARCH,
	}
	bs, err := json.Marshal(info)
	if err != nil {
		log.Warn("Failed to serialize json for startup log: (%v) %#v", err, info)
		return
	}
	log.Info("Startup: %s", string(bs))
}
