package tracecore

import (
	"os"
	"testing"
	"time"
)

func TestWithDefaultsFillsOnlyZeroFields(t *testing.T) {
	cfg := Config{MaxSpansPerTrace: 50}
	got := cfg.withDefaults()

	if got.MaxSpansPerTrace != 50 {
		t.Errorf("expected explicit field to survive untouched, got %d", got.MaxSpansPerTrace)
	}
	if got.ReportInterval != defaultReportInterval {
		t.Errorf("expected default ReportInterval, got %v", got.ReportInterval)
	}
	if got.CollectorQueueCapacity != defaultCollectorQueueCapacity {
		t.Errorf("expected default CollectorQueueCapacity, got %d", got.CollectorQueueCapacity)
	}
	if got.DispatcherQueueCapacity != defaultDispatcherQueueCapacity {
		t.Errorf("expected default DispatcherQueueCapacity, got %d", got.DispatcherQueueCapacity)
	}
}

func TestConfigIsZero(t *testing.T) {
	if !(Config{}).isZero() {
		t.Error("expected zero-value Config to report isZero")
	}
	if (Config{MaxSpansPerTrace: 1}).isZero() {
		t.Error("expected a Config with a field set to not report isZero")
	}
}

func TestConfigFromEnvUsesEnvironmentOverrides(t *testing.T) {
	vars := map[string]string{
		"TRACECORE_MAX_SPANS_PER_TRACE":       "250",
		"TRACECORE_REPORT_INTERVAL":           "2s",
		"TRACECORE_BATCH_REPORT_MAX_SPANS":    "100",
		"TRACECORE_REPORT_BEFORE_ROOT_FINISH": "true",
		"TRACECORE_COLLECTOR_QUEUE_CAPACITY":  "500",
		"TRACECORE_DISPATCHER_QUEUE_CAPACITY": "600",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}

	cfg := ConfigFromEnv()
	if cfg.MaxSpansPerTrace != 250 {
		t.Errorf("MaxSpansPerTrace = %d, want 250", cfg.MaxSpansPerTrace)
	}
	if cfg.ReportInterval != 2*time.Second {
		t.Errorf("ReportInterval = %v, want 2s", cfg.ReportInterval)
	}
	if cfg.BatchReportMaxSpans != 100 {
		t.Errorf("BatchReportMaxSpans = %d, want 100", cfg.BatchReportMaxSpans)
	}
	if !cfg.ReportBeforeRootFinish {
		t.Error("expected ReportBeforeRootFinish to be true")
	}
	if cfg.CollectorQueueCapacity != 500 {
		t.Errorf("CollectorQueueCapacity = %d, want 500", cfg.CollectorQueueCapacity)
	}
	if cfg.DispatcherQueueCapacity != 600 {
		t.Errorf("DispatcherQueueCapacity = %d, want 600", cfg.DispatcherQueueCapacity)
	}
}

func TestConfigFromEnvFallsBackWhenUnset(t *testing.T) {
	// Ensure none of the variables leak in from the test environment.
	for _, k := range []string{
		"TRACECORE_MAX_SPANS_PER_TRACE",
		"TRACECORE_REPORT_INTERVAL",
		"TRACECORE_BATCH_REPORT_MAX_SPANS",
		"TRACECORE_REPORT_BEFORE_ROOT_FINISH",
	} {
		os.Unsetenv(k)
	}

	cfg := ConfigFromEnv()
	if cfg.MaxSpansPerTrace != 0 {
		t.Errorf("expected fallback of 0, got %d", cfg.MaxSpansPerTrace)
	}
	if cfg.ReportInterval != defaultReportInterval {
		t.Errorf("expected fallback default report interval, got %v", cfg.ReportInterval)
	}
	if cfg.ReportBeforeRootFinish {
		t.Error("expected fallback of false")
	}
}

func TestEnvIntFallsBackOnGarbageValue(t *testing.T) {
	t.Setenv("TRACECORE_MAX_SPANS_PER_TRACE", "not-a-number")
	if got := envInt("TRACECORE_MAX_SPANS_PER_TRACE", 42); got != 42 {
		t.Errorf("expected fallback 42 on unparseable value, got %d", got)
	}
}
