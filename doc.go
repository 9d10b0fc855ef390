// Package tracecore implements the in-process span capture and aggregation
// engine for a distributed tracing runtime.
//
// tracecore records causal timelines of work ("spans") across synchronous
// code and across goroutine/thread boundaries, then streams completed
// traces to a background reporter for export to collectors such as Jaeger,
// Datadog, or OpenTelemetry. tracecore itself never speaks a wire protocol
// or touches the network — that is left to a Reporter implementation
// supplied by the caller.
//
// Two-tier span representation:
//
//   - Local spans are the cheap, same-goroutine-chain fast path. They are
//     pushed onto a LocalStore carried through context.Context and popped
//     on Close — one small guard allocation per span, no atomics.
//   - Spans (cross-context handles) are thread-safe, refcounted, and own a
//     Collector that aggregates everything under one trace root. Spans
//     are the right tool when work crosses a goroutine boundary.
//
// Basic usage:
//
//	tracecore.SetReporter(myReporter, tracecore.Config{})
//	defer tracecore.Flush()
//
//	root, handle := tracecore.Root("http.request", tracecore.RandomSpanContext())
//	defer root.Finish()
//
//	ctx, guard := tracecore.EnterLocal(ctx, "decode-body")
//	defer guard.Close()
//
// Thread safety:
//
// Span and Collector are safe for concurrent use by multiple goroutines.
// LocalStore and its guards are NOT thread-safe and must stay within one
// goroutine's call chain — that is the entire point of the fast path.
//
// Disabling tracing:
//
// Build with -tags tracecore_disabled to compile every public entry point
// down to a zero-cost no-op. At runtime, Disable() has the same effect
// without a rebuild, at the cost of one atomic load per root/local span
// creation.
package tracecore
