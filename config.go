package tracecore

import (
	"os"
	"strconv"
	"time"
)

// Config enumerates the options spec §6 names for a Collector/Dispatcher
// pairing. The zero value is not meant to be used directly — SetReporter
// routes it through withDefaults, and Root falls back to defaultConfig()
// while no Config has been installed. newCollector uses its Config as given.
type Config struct {
	// MaxSpansPerTrace truncates a trace after this many records; 0 means
	// unbounded (spec: "Option<usize>, None = unbounded").
	MaxSpansPerTrace int
	// ReportInterval is the Dispatcher's wake period. Zero means the
	// spec's documented default of 500ms.
	ReportInterval time.Duration
	// BatchReportMaxSpans caps how many SpanRecords are delivered to the
	// Reporter in one Report call; 0 means unbounded.
	BatchReportMaxSpans int
	// ReportBeforeRootFinish, if true, registers every root's Collector
	// with the Dispatcher's partialTicker so its current (possibly
	// incomplete) contents are reported once per ReportInterval even
	// before the root's Finish seals it (spec §6, §4.6 step 2). Default
	// false: a trace is reported exactly once, at seal time.
	ReportBeforeRootFinish bool
	// CollectorQueueCapacity caps how many records one Collector holds,
	// even when MaxSpansPerTrace is 0 (spec §4.5 backpressure cap). 0 picks
	// a reasonable default.
	CollectorQueueCapacity int
	// DispatcherQueueCapacity bounds the Dispatcher's completion channel
	// (spec §4.6). 0 picks a reasonable default.
	DispatcherQueueCapacity int
	// SamplePredicate, if set, is consulted by the Dispatcher at ingress
	// in addition to MaxSpansPerTrace tail sampling (spec §4.6). Returning
	// false discards the whole trace.
	SamplePredicate func(trace []SpanRecord) bool
}

func (c Config) isZero() bool {
	return c.MaxSpansPerTrace == 0 &&
		c.ReportInterval == 0 &&
		c.BatchReportMaxSpans == 0 &&
		!c.ReportBeforeRootFinish &&
		c.CollectorQueueCapacity == 0 &&
		c.DispatcherQueueCapacity == 0 &&
		c.SamplePredicate == nil
}

const (
	defaultReportInterval          = 500 * time.Millisecond
	defaultCollectorQueueCapacity  = 1024
	defaultDispatcherQueueCapacity = 256
)

func defaultConfig() Config {
	return Config{
		ReportInterval:          defaultReportInterval,
		CollectorQueueCapacity:  defaultCollectorQueueCapacity,
		DispatcherQueueCapacity: defaultDispatcherQueueCapacity,
	}
}

// withDefaults fills in zero-valued fields with spec-documented defaults.
// A Config built by hand with only MaxSpansPerTrace set, for instance,
// still gets a working ReportInterval.
func (c Config) withDefaults() Config {
	if c.ReportInterval <= 0 {
		c.ReportInterval = defaultReportInterval
	}
	if c.CollectorQueueCapacity <= 0 {
		c.CollectorQueueCapacity = defaultCollectorQueueCapacity
	}
	if c.DispatcherQueueCapacity <= 0 {
		c.DispatcherQueueCapacity = defaultDispatcherQueueCapacity
	}
	return c
}

// ConfigFromEnv builds a Config from environment variables, following the
// same getEnv/parseInt pattern the teacher's testing/reliability/config.go
// used for its own TRACEZ_RELIABILITY_* knobs. This is a convenience
// extra beyond spec §6, which only requires the struct itself.
func ConfigFromEnv() Config {
	return Config{
		MaxSpansPerTrace:        envInt("TRACECORE_MAX_SPANS_PER_TRACE", 0),
		ReportInterval:          envDuration("TRACECORE_REPORT_INTERVAL", defaultReportInterval),
		BatchReportMaxSpans:     envInt("TRACECORE_BATCH_REPORT_MAX_SPANS", 0),
		ReportBeforeRootFinish:  envBool("TRACECORE_REPORT_BEFORE_ROOT_FINISH", false),
		CollectorQueueCapacity:  envInt("TRACECORE_COLLECTOR_QUEUE_CAPACITY", defaultCollectorQueueCapacity),
		DispatcherQueueCapacity: envInt("TRACECORE_DISPATCHER_QUEUE_CAPACITY", defaultDispatcherQueueCapacity),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
