// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"errors"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/ddapm/ddapm-go/internal/log"
)

// statsdClient is the subset of the dogstatsd client the tracer reports its
// health metrics through.
type statsdClient interface {
	Incr(name string, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Close() error
}

// config holds the tracer configuration.
type config struct {
	// serviceName specifies the name of this application. It is required.
	serviceName string

	// serviceType specifies the default type of the service, e.g. "web".
	serviceType string

	// env specifies the environment reported with every trace.
	env string

	// version specifies the version of the application reported with every
	// trace.
	version string

	// agentURL specifies the agent endpoint as configured, including the
	// unix:// and http+unix:// forms.
	agentURL string

	// agentBaseURL and agentSocketPath are the resolved form of agentURL.
	agentBaseURL    string
	agentSocketPath string

	// globalTags holds tags applied to every started span.
	globalTags map[string]interface{}

	// injectionStyles and extractionStyles hold the enabled propagation
	// styles. An empty, non-nil slice disables the respective direction.
	injectionStyles  []PropagationStyle
	extractionStyles []PropagationStyle

	// reportHostname enables adding the hostname to root spans.
	reportHostname bool
	hostname       string

	// globalSampleRate is the deterministic default sample rate; NaN when
	// unset.
	globalSampleRate float64

	// rateLimit bounds rule-sampled traces per second; NaN when unset.
	rateLimit float64

	samplingRules     []SamplingRule
	spanSamplingRules []SpanSamplingRule

	// flushInterval is the period of the agent collector's flush.
	flushInterval time.Duration

	// httpTimeout applies to each individual request to the agent.
	httpTimeout time.Duration

	httpClient HTTPClient
	scheduler  eventScheduler
	collector  collector // replaced in tests
	statsd     statsdClient

	dogstatsdAddr string
	debug         bool
	logStartup    bool
}

// StartOption represents a function that can be provided as a parameter to New.
type StartOption func(*config)

// defaults sets the default values for a config.
func defaults(c *config) {
	c.agentURL = "http://localhost:8126"
	c.globalSampleRate = math.NaN()
	c.rateLimit = math.NaN()
	c.flushInterval = defaultFlushInterval
	c.injectionStyles = []PropagationStyle{StyleDatadog, StyleW3C}
	c.extractionStyles = []PropagationStyle{StyleDatadog, StyleB3, StyleW3C}
	c.scheduler = tickerScheduler{}
	c.logStartup = true
}

// applyEnv reads the configuration environment variables. Environment
// values override programmatic configuration on conflict.
func applyEnv(c *config) {
	if v := os.Getenv("DD_SERVICE"); v != "" {
		c.serviceName = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		c.env = v
	}
	if v := os.Getenv("DD_VERSION"); v != "" {
		c.version = v
	}
	if v := os.Getenv("DD_TRACE_AGENT_URL"); v != "" {
		c.agentURL = v
	} else if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		c.agentURL = "http://" + v + ":8126"
	}
	if v := os.Getenv("DD_TRACE_SAMPLE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Warn("ignoring DD_TRACE_SAMPLE_RATE: %v", err)
		} else if _, err := RateFrom(rate); err != nil {
			log.Warn("ignoring DD_TRACE_SAMPLE_RATE: %v", err)
		} else {
			c.globalSampleRate = rate
		}
	}
	if v := os.Getenv("DD_TRACE_RATE_LIMIT"); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil || limit < 0 {
			log.Warn("ignoring invalid DD_TRACE_RATE_LIMIT %q", v)
		} else {
			c.rateLimit = limit
		}
	}
	if v := envWithFallback("DD_TRACE_PROPAGATION_STYLE_INJECT", "DD_PROPAGATION_STYLE_INJECT"); v != "" {
		c.injectionStyles = parsePropagationStyles(v)
	}
	if v := envWithFallback("DD_TRACE_PROPAGATION_STYLE_EXTRACT", "DD_PROPAGATION_STYLE_EXTRACT"); v != "" {
		c.extractionStyles = parsePropagationStyles(v)
	}
	if v := os.Getenv("DD_TRACE_REPORT_HOSTNAME"); v == "true" || v == "1" {
		c.reportHostname = true
	}
	if v := os.Getenv("DD_TRACE_DEBUG"); v == "true" || v == "1" {
		c.debug = true
	}
	if v := os.Getenv("DD_TRACE_STARTUP_LOGS"); v == "false" || v == "0" {
		c.logStartup = false
	}
}

func envWithFallback(name, deprecated string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	if v := os.Getenv(deprecated); v != "" {
		log.Warn("%s is deprecated. Please use %s instead.", deprecated, name)
		return v
	}
	return ""
}

// newConfig builds the effective configuration: defaults, then the given
// options, then the environment, which wins on conflict.
func newConfig(opts ...StartOption) (*config, error) {
	c := new(config)
	defaults(c)
	for _, fn := range opts {
		fn(c)
	}
	applyEnv(c)
	if c.debug {
		log.SetLevel(log.LevelDebug)
	}
	if c.serviceName == "" {
		return nil, errors.New("a service name is required; set DD_SERVICE or use WithService")
	}
	base, socketPath, err := resolveAgentEndpoint(c.agentURL)
	if err != nil {
		return nil, err
	}
	c.agentBaseURL = base
	c.agentSocketPath = socketPath
	if c.reportHostname && c.hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			log.Warn("unable to look up hostname: %v", err)
		} else {
			c.hostname = hostname
		}
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient(c.agentSocketPath, c.httpTimeout)
	}
	if c.statsd == nil {
		if c.dogstatsdAddr != "" {
			client, err := statsd.New(c.dogstatsdAddr)
			if err != nil {
				log.Warn("dogstatsd client could not be created: %v; health metrics disabled", err)
				c.statsd = &statsd.NoOpClient{}
			} else {
				c.statsd = client
			}
		} else {
			c.statsd = &statsd.NoOpClient{}
		}
	}
	return c, nil
}

// WithService sets the default service name reported on spans.
func WithService(name string) StartOption {
	return func(c *config) {
		c.serviceName = name
	}
}

// WithServiceType sets the default type of the service, e.g. "web".
func WithServiceType(serviceType string) StartOption {
	return func(c *config) {
		c.serviceType = serviceType
	}
}

// WithEnv sets the environment reported with the traces, e.g. "prod".
func WithEnv(env string) StartOption {
	return func(c *config) {
		c.env = env
	}
}

// WithServiceVersion sets the version of the application.
func WithServiceVersion(version string) StartOption {
	return func(c *config) {
		c.version = version
	}
}

// WithAgentURL sets the trace submission endpoint. Besides http and https
// URLs, the unix://, http+unix:// and https+unix:// forms address an agent
// listening on a unix domain socket.
func WithAgentURL(agentURL string) StartOption {
	return func(c *config) {
		c.agentURL = agentURL
	}
}

// WithAgentAddr sets the host:port address where the agent is located. The
// default is localhost:8126.
func WithAgentAddr(addr string) StartOption {
	return func(c *config) {
		c.agentURL = "http://" + addr
	}
}

// WithGlobalTag sets a key/value pair which will be set as a tag on all
// spans created by the tracer.
func WithGlobalTag(k string, v interface{}) StartOption {
	return func(c *config) {
		if c.globalTags == nil {
			c.globalTags = make(map[string]interface{})
		}
		c.globalTags[k] = v
	}
}

// WithInjectionStyles sets the propagation styles used when injecting span
// context into carriers, in order. Passing no styles disables injection.
func WithInjectionStyles(styles ...PropagationStyle) StartOption {
	return func(c *config) {
		c.injectionStyles = append([]PropagationStyle{}, styles...)
	}
}

// WithExtractionStyles sets the propagation styles consulted when extracting
// span context from carriers. Passing no styles disables extraction.
func WithExtractionStyles(styles ...PropagationStyle) StartOption {
	return func(c *config) {
		c.extractionStyles = append([]PropagationStyle{}, styles...)
	}
}

// WithReportHostname enables adding the hostname to root spans.
func WithReportHostname() StartOption {
	return func(c *config) {
		c.reportHostname = true
	}
}

// WithSampleRate sets the default deterministic sample rate, between 0 and 1.
func WithSampleRate(rate float64) StartOption {
	return func(c *config) {
		if _, err := RateFrom(rate); err != nil {
			log.Warn("ignoring sample rate: %v", err)
			return
		}
		c.globalSampleRate = rate
	}
}

// WithSamplingRules sets the prioritized list of trace sampling rules.
func WithSamplingRules(rules []SamplingRule) StartOption {
	return func(c *config) {
		c.samplingRules = rules
	}
}

// WithSpanSamplingRules sets the single span sampling rules, which retain
// individual spans of traces dropped by the trace sampler.
func WithSpanSamplingRules(rules []SpanSamplingRule) StartOption {
	return func(c *config) {
		c.spanSamplingRules = rules
	}
}

// WithFlushInterval sets the period of the agent collector's automatic
// flush. The default is 2 seconds.
func WithFlushInterval(interval time.Duration) StartOption {
	return func(c *config) {
		if interval > 0 {
			c.flushInterval = interval
		}
	}
}

// WithHTTPTimeout sets the timeout applied to each request to the agent.
func WithHTTPTimeout(timeout time.Duration) StartOption {
	return func(c *config) {
		c.httpTimeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client used to reach the agent.
func WithHTTPClient(client HTTPClient) StartOption {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger for all tracer output.
func WithLogger(logger log.Logger) StartOption {
	return func(_ *config) {
		log.UseLogger(logger)
	}
}

// WithDebugMode enables debug mode on the tracer, making logging more
// verbose.
func WithDebugMode(enabled bool) StartOption {
	return func(c *config) {
		c.debug = enabled
	}
}

// WithDogstatsdAddress sets the address of the statsd agent receiving the
// tracer's health metrics, e.g. "localhost:8125".
func WithDogstatsdAddress(addr string) StartOption {
	return func(c *config) {
		c.dogstatsdAddr = addr
	}
}

// withCollector replaces the agent collector; used in tests.
func withCollector(col collector) StartOption {
	return func(c *config) {
		c.collector = col
	}
}

// withScheduler replaces the flush scheduler; used in tests.
func withScheduler(s eventScheduler) StartOption {
	return func(c *config) {
		c.scheduler = s
	}
}

// withStatsdClient replaces the health metrics client; used in tests.
func withStatsdClient(client statsdClient) StartOption {
	return func(c *config) {
		c.statsd = client
	}
}

// StartSpanConfig holds the per-call configuration of a started span.
type StartSpanConfig struct {
	// Service overrides the tracer's default service name.
	Service string

	// Resource sets the resource being operated on. It defaults to the
	// operation name.
	Resource string

	// SpanType sets the protocol associated with the span.
	SpanType string

	// StartTime sets a custom start time. By default the current time is
	// used.
	StartTime time.Time

	// Tags holds tags set on the span at start.
	Tags map[string]interface{}
}

// StartSpanOption is a configuration option for starting a span.
type StartSpanOption func(*StartSpanConfig)

// Tag sets the given key/value pair as a tag on the started span.
func Tag(k string, v interface{}) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = map[string]interface{}{}
		}
		cfg.Tags[k] = v
	}
}

// ServiceName sets the given service name on the started span.
func ServiceName(name string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.Service = name
	}
}

// ResourceName sets the given resource name on the started span.
func ResourceName(name string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.Resource = name
	}
}

// SpanType sets the given span type on the started span.
func SpanType(name string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.SpanType = name
	}
}

// StartTime sets a custom time as the start time for the created span.
func StartTime(t time.Time) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		cfg.StartTime = t
	}
}

// applySpanConfig applies the per-call configuration on top of the values a
// span record was initialized with.
func applySpanConfig(d *spanData, operationName string, cfg *StartSpanConfig) {
	if operationName != "" {
		d.name = operationName
	}
	if cfg.Service != "" {
		d.service = cfg.Service
	}
	if cfg.SpanType != "" {
		d.spanType = cfg.SpanType
	}
	if cfg.Resource != "" {
		d.resource = cfg.Resource
	} else if d.resource == "" {
		d.resource = d.name
	}
	for k, v := range cfg.Tags {
		setTagData(d, k, v)
	}
}

// FinishConfig holds the per-call configuration of Finish.
type FinishConfig struct {
	// FinishTime represents the time that should be set as finishing time
	// for the span. Implicitly, this also calculates the duration.
	FinishTime time.Time

	// Error holds an optional error that should be set on the span before
	// finishing.
	Error error
}

// FinishOption is a configuration option for finishing a span.
type FinishOption func(*FinishConfig)

// FinishTime sets the given time as the finishing time for the span.
func FinishTime(t time.Time) FinishOption {
	return func(cfg *FinishConfig) {
		cfg.FinishTime = t
	}
}

// WithError marks the span as errored with the given error before finishing
// it.
func WithError(err error) FinishOption {
	return func(cfg *FinishConfig) {
		cfg.Error = err
	}
}
