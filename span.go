package tracecore

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// SpanContext is the cross-process handle embedded in RPC metadata (spec
// §3, §6): a (TraceID, SpanID) pair. tracecore only knows how to mint one
// at random and encode/decode it as bytes — it does not itself speak HTTP
// or gRPC.
type SpanContext struct {
	TraceID TraceID
	SpanID  SpanID
}

// RandomSpanContext mints a fresh root SpanContext (new trace, new span,
// implicit parent = 0).
func RandomSpanContext() SpanContext {
	return SpanContext{TraceID: NewTraceID(), SpanID: NewSpanID()}
}

// Encode serializes sc as 24 opaque bytes (16 for the trace id, 8 for the
// span id), the wire shape spec §6 names.
func (sc SpanContext) Encode() [24]byte {
	var b [24]byte
	binary.BigEndian.PutUint64(b[0:8], sc.TraceID[0])
	binary.BigEndian.PutUint64(b[8:16], sc.TraceID[1])
	binary.BigEndian.PutUint64(b[16:24], uint64(sc.SpanID))
	return b
}

// DecodeSpanContext is the inverse of Encode. SpanContext -> bytes ->
// SpanContext is the identity (spec §8).
func DecodeSpanContext(b [24]byte) SpanContext {
	return SpanContext{
		TraceID: TraceID{
			binary.BigEndian.Uint64(b[0:8]),
			binary.BigEndian.Uint64(b[8:16]),
		},
		SpanID: SpanID(binary.BigEndian.Uint64(b[16:24])),
	}
}

// Span is the thread-safe, cross-context span handle (spec §4.4). It owns
// a shared reference to its root's Collector; cloning (EnterWithParent,
// EnterWithParents) increments the Collector's refcount, and Finish
// (the Go stand-in for "drop") decrements it.
type Span struct {
	collector *Collector

	traceID     TraceID
	spanID      SpanID
	parentID    SpanID
	name        string
	beginCycles uint64
	clock       *Clock

	mu         sync.Mutex
	properties []Property
	events     []Event

	finished atomic.Bool
	noop     bool
}

// Root creates a root span and allocates its Collector (spec §4.4). The
// returned CollectorHandle is the application's window into drop counters
// for this trace; it does not keep the trace alive.
func Root(name string, sc SpanContext) (*Span, *CollectorHandle) {
	if !Enabled() {
		return noopSpan(), sharedNoopHandle
	}
	if sc.TraceID.IsZero() {
		sc.TraceID = NewTraceID()
	}
	if sc.SpanID == 0 {
		sc.SpanID = NewSpanID()
	}

	cfg := currentConfig()
	collector := newCollector(sc.TraceID, 0, cfg)
	collector.acquire()
	if cfg.ReportBeforeRootFinish {
		if d := currentDispatcher(); d != nil {
			d.registerOpen(collector)
		}
	}

	span := &Span{
		collector:   collector,
		traceID:     sc.TraceID,
		spanID:      sc.SpanID,
		parentID:    0,
		name:        name,
		beginCycles: defaultClock.NowCycles(),
		clock:       defaultClock,
	}
	return span, &CollectorHandle{collector: collector}
}

// EnterWithParent creates a child span sharing parent's Collector (spec
// §4.4). The child's own Finish decrements the same refcount parent's
// Finish does.
func EnterWithParent(name string, parent *Span) *Span {
	if parent == nil || parent.noop || !Enabled() {
		return noopSpan()
	}
	parent.collector.acquire()
	return &Span{
		collector:   parent.collector,
		traceID:     parent.traceID,
		spanID:      NewSpanID(),
		parentID:    parent.spanID,
		name:        name,
		beginCycles: parent.clock.NowCycles(),
		clock:       parent.clock,
	}
}

// EnterWithParents creates one Span per distinct parent Collector so the
// same unit of work appears in every enclosing trace (spec §4.4, §8 S4).
// The order of the returned slice matches the order of parents.
func EnterWithParents(name string, parents []*Span) []*Span {
	if !Enabled() || len(parents) == 0 {
		return nil
	}
	seen := make(map[*Collector]bool, len(parents))
	out := make([]*Span, 0, len(parents))
	for _, p := range parents {
		if p == nil || p.noop || seen[p.collector] {
			continue
		}
		seen[p.collector] = true
		out = append(out, EnterWithParent(name, p))
	}
	return out
}

// SetLocalParent installs this span as the implicit local parent for the
// guard's lifetime (spec §4.4, §6). Any EnterLocal/PushLocal call made
// against ls while the guard is alive attaches its children directly to
// this Span's id once the batch is later pushed via PushChildSpans.
func (s *Span) SetLocalParent(ls *LocalStore) *StackGuard {
	if s == nil || s.noop || ls == nil {
		return nil
	}
	return ls.AttachPoint(s.spanID)
}

// AddProperty attaches one string pair to the span. No-op on a no-op span;
// on a finished span the property is dropped and counted (spec §9 Open
// Question: "properties added after the last emit... are dropped and
// counted") since the RawSpan has already been handed to the Collector.
func (s *Span) AddProperty(key, value string) {
	if s == nil || s.noop {
		return
	}
	if s.finished.Load() {
		globalDroppedAttributes.Add(1)
		emitDiagnostic(DiagPropertyAfterFinish, "property added to a finished span, dropped", nil)
		return
	}
	s.mu.Lock()
	s.properties = append(s.properties, Property{Key: key, Value: value})
	s.mu.Unlock()
}

// AddProperties attaches a batch of string pairs. Dropped and counted, one
// count per property, if the span already finished.
func (s *Span) AddProperties(props []Property) {
	if s == nil || s.noop || len(props) == 0 {
		return
	}
	if s.finished.Load() {
		globalDroppedAttributes.Add(uint64(len(props)))
		emitDiagnostic(DiagPropertyAfterFinish, "properties added to a finished span, dropped", nil)
		return
	}
	s.mu.Lock()
	s.properties = append(s.properties, props...)
	s.mu.Unlock()
}

// AddEvent records a named, timestamped annotation. Dropped and counted if
// the span already finished.
func (s *Span) AddEvent(name string, props []Property) {
	if s == nil || s.noop {
		return
	}
	if s.finished.Load() {
		globalDroppedAttributes.Add(1)
		emitDiagnostic(DiagPropertyAfterFinish, "event added to a finished span, dropped", nil)
		return
	}
	ev := Event{Name: name, TimestampCycles: s.clock.NowCycles(), Properties: props}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// PushChildSpans attaches a previously detached LocalSpans batch (spec
// §4.4, §6). Spans in the batch whose ParentID is the sentinel (0) are
// attributed to this Span's id once the Collector flattens them.
func (s *Span) PushChildSpans(batch LocalSpans) {
	if s == nil || s.noop || batch.Empty() {
		return
	}
	batch.AttachID = s.spanID
	s.collector.submitBatch(batch)
}

// Elapsed returns how long the span has been open, using the span's own
// clock (spec §6).
func (s *Span) Elapsed() time.Duration {
	if s == nil || s.noop {
		return 0
	}
	now := s.clock.NowCycles()
	if now <= s.beginCycles {
		return 0
	}
	return time.Duration(now - s.beginCycles)
}

// TraceID returns this span's trace id.
func (s *Span) TraceID() TraceID {
	if s == nil {
		return TraceID{}
	}
	return s.traceID
}

// SpanID returns this span's own id.
func (s *Span) SpanID() SpanID {
	if s == nil {
		return 0
	}
	return s.spanID
}

// Finish ends the span: records end cycles, folds inline properties and
// events into a RawSpan, submits it to the Collector, and releases this
// handle's reference (spec §4.4 Drop). Any LocalSpans batches attached via
// PushChildSpans were already submitted to the Collector when they were
// pushed, ahead of this final submission — submitSpan and submitBatch both
// hold the Collector's mutex, so ordering between them is whatever order
// the calling goroutines actually made the calls in. Safe to call more
// than once — subsequent calls are no-ops, matching the teacher's
// ActiveSpan.Finish idempotence.
func (s *Span) Finish() {
	if s == nil || s.noop {
		return
	}
	if !s.finished.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	raw := RawSpan{
		SpanID:      s.spanID,
		ParentID:    s.parentID,
		BeginCycles: s.beginCycles,
		EndCycles:   s.clock.NowCycles(),
		Name:        s.name,
		Properties:  s.properties,
		Events:      s.events,
	}
	s.mu.Unlock()

	s.collector.submitSpan(raw)
	s.collector.release()
}

// sharedNoopSpan is returned, never copied, by every noopSpan() call. It is
// never mutated outside construction — AddProperty/AddProperties/AddEvent
// and Finish all short-circuit on s.noop before touching s.mu, s.properties,
// or s.events — so sharing one instance across every disabled-path caller,
// and across goroutines, is safe and keeps that path allocation-free (spec
// §8 Property 4/S5).
var sharedNoopSpan = &Span{noop: true}

func noopSpan() *Span {
	return sharedNoopSpan
}
