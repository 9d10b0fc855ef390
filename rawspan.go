package tracecore

// Property is an ordered (key, value) string pair attached to a span or
// event (spec §3, §9 "variable-arity attribute properties"). Both fields
// are plain strings; tracecore does not distinguish borrowed-static from
// owned values the way the Rust original does — Go's garbage collector
// makes that distinction unnecessary, and the corpus's own Go tracers
// (tracez's Span.Tags) use plain strings too.
type Property struct {
	Key   string
	Value string
}

// Event is a named, timestamped annotation within a span's lifetime.
type Event struct {
	Name            string
	TimestampCycles uint64
	Properties      []Property
}

// RawSpan is the internal, thread-local representation of a span before
// it has been converted to a SpanRecord (spec §3). EndCycles == 0 denotes
// a still-open span.
type RawSpan struct {
	SpanID      SpanID
	ParentID    SpanID
	BeginCycles uint64
	EndCycles   uint64
	Name        string
	Properties  []Property
	Events      []Event
}

// IsOpen reports whether the span has not yet been closed.
func (r *RawSpan) IsOpen() bool { return r.EndCycles == 0 }

// LocalSpans is a detachable batch of RawSpans produced by one goroutine
// chain between two checkpoints. Parent/child relations inside the batch
// are preserved as span ids; a RawSpan whose ParentID is the sentinel 0 is
// attributed directly to AttachID when the batch is pushed onto a Span
// (spec §3 "LocalSpans"). Any other ParentID is kept as it is, even when
// it names a span outside the batch.
type LocalSpans struct {
	Spans    []RawSpan
	AttachID SpanID
}

// Empty reports whether the batch carries no spans.
func (b LocalSpans) Empty() bool { return len(b.Spans) == 0 }
