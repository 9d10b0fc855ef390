package tracecore

// SpanRecord is the public, post-conversion span shape external encoders
// consume (spec §3, §6). Durations are derived by applying the Clock's
// Anchor to a RawSpan's cycle delta.
type SpanRecord struct {
	TraceID        TraceID
	SpanID         SpanID
	ParentID       SpanID
	BeginUnixNanos uint64
	DurationNanos  uint64
	Name           string
	Properties     []Property
	Events         []Event
}

// Trace is one reported trace: the flattened records plus Dispatcher-side
// bookkeeping (spec §4.6 "truncated" flag).
type Trace struct {
	TraceID   TraceID
	Records   []SpanRecord
	Truncated bool
}

// Reporter is the pluggable sink for completed trace batches (spec §4.7).
// Report is called by the Dispatcher goroutine only, never concurrently
// with itself; implementations may block (the Dispatcher is the only
// thing that waits on them — application threads never do). Flush is
// called during shutdown and must not return until every batch handed to
// Report has been durably handled (or given up on).
type Reporter interface {
	Report(trace Trace)
	Flush()
}

// ReporterFunc adapts a plain function to the Reporter interface for
// Reporters that don't need a Flush step — mirrors the teacher's
// SpanHandler function-type pattern (tracer.go's SpanHandler) rather than
// forcing every caller to write a two-method struct.
type ReporterFunc func(Trace)

// Report implements Reporter.
func (f ReporterFunc) Report(trace Trace) { f(trace) }

// Flush implements Reporter as a no-op.
func (ReporterFunc) Flush() {}
