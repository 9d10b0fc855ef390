// Package tracecoreprom registers tracecore's process-wide drop counters
// as Prometheus metrics. It is a separate module-level package rather than
// a file inside tracecore itself so that callers who never import
// tracecoreprom never pull prometheus/client_golang into their binary —
// see SPEC_FULL.md's DOMAIN STACK section for the reasoning.
package tracecoreprom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arcspan/tracecore"
)

// Register wires tracecore's dropped-span, dropped-trace, reporter-error,
// and dropped-attribute counters into reg as CounterFuncs — gauges backed
// by a read function rather than independently incremented counters, since
// tracecore already owns the atomic state of record (spec §4.8 Global
// state). Each metric is declared once with plain CounterOpts and no
// labels, since there is exactly one process-wide value per metric.
func Register(reg prometheus.Registerer) error {
	counters := []prometheus.Collector{
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "tracecore_dropped_spans_total",
				Help: "Total spans dropped process-wide due to backpressure or truncation.",
			},
			func() float64 { return float64(tracecore.DroppedSpans()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "tracecore_dropped_traces_total",
				Help: "Total traces dropped because the dispatcher's completion channel was full or no reporter was installed.",
			},
			func() float64 { return float64(tracecore.DroppedTraces()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "tracecore_reporter_errors_total",
				Help: "Total Reporter.Report panics recovered by the dispatcher.",
			},
			func() float64 { return float64(tracecore.ReporterErrors()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "tracecore_dropped_attributes_total",
				Help: "Total properties and events dropped because they were added to an already-finished span.",
			},
			func() float64 { return float64(tracecore.DroppedAttributes()) },
		),
	}
	for _, c := range counters {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
