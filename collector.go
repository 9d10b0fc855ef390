package tracecore

import "sync"

// Collector is the per-root aggregation target (spec §4.5). It is
// producer-multi (any Span sharing the root's trace, from any goroutine)
// and consumer-none: unlike the teacher's process-lifetime Collector,
// which decouples writers from a single background consumer goroutine
// via a channel, tracecore allocates one short-lived Collector per root,
// so contention is already scoped to one trace. A mutex guarding the
// records slice (the teacher's own bufferSpanSafe/Export pattern) is
// enough — no goroutine, no channel, and no handoff delay between the
// last handle's release and the Collector reaching the Dispatcher. See
// DESIGN.md for why this is a deliberate departure from the spec's
// "lock-free MPSC" wording rather than an oversight.
type Collector struct {
	traceID      TraceID
	rootParentID SpanID
	config       Config

	mu        sync.Mutex
	records   []RawSpan
	truncated bool
	sealed    bool

	refcount int64

	droppedCount int64
}

func newCollector(traceID TraceID, rootParentID SpanID, cfg Config) *Collector {
	cap := cfg.CollectorQueueCapacity
	var prealloc int
	if cap > 0 && cap < 64 {
		prealloc = cap
	} else {
		prealloc = 8
	}
	return &Collector{
		traceID:      traceID,
		rootParentID: rootParentID,
		config:       cfg,
		records:      make([]RawSpan, 0, prealloc),
	}
}

// acquire increments the outstanding-handle refcount. Called once per
// Span sharing this Collector's trace (Root, EnterWithParent, and
// EnterWithParents through EnterWithParent).
func (c *Collector) acquire() {
	c.mu.Lock()
	c.refcount++
	c.mu.Unlock()
}

// release decrements the refcount. When it reaches zero, the Collector
// seals itself and hands itself to the process Dispatcher synchronously,
// in the releasing goroutine — so by the time a root's Finish() call
// returns, the trace is already visible to Flush() (spec §8 S6).
func (c *Collector) release() {
	c.mu.Lock()
	c.refcount--
	seal := c.refcount == 0
	if seal {
		c.sealed = true
	}
	c.mu.Unlock()

	if seal {
		if d := currentDispatcher(); d != nil {
			d.unregisterOpen(c)
			d.submitSealed(c)
		}
	}
}

// isSealed reports whether this Collector has already been sealed and
// handed to the Dispatcher. Used by deliverPartialSnapshots to skip a
// Collector that sealed between registration and the current tick.
func (c *Collector) isSealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

// submitSpan appends one finished RawSpan (spec §4.5). Backpressure: once
// either MaxSpansPerTrace (the spec's tail-sampling truncation cap) or
// CollectorQueueCapacity (tracecore's own backpressure ceiling, held even
// when MaxSpansPerTrace is unbounded) is reached, the record is dropped
// and droppedCount increments.
func (c *Collector) submitSpan(span RawSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendRecordLocked(span)
}

// submitBatch appends every RawSpan in a LocalSpans batch detached via
// PushChildSpans, attributing ParentID-less entries to the batch's
// AttachID (spec §3 LocalSpans).
func (c *Collector) submitBatch(batch LocalSpans) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range batch.Spans {
		if s.ParentID == 0 {
			s.ParentID = batch.AttachID
		}
		c.appendRecordLocked(s)
	}
}

func (c *Collector) appendRecordLocked(span RawSpan) {
	if c.sealed {
		emitDiagnostic(DiagBatchAttachedAfterSeal,
			"span submitted to a sealed collector", nil)
		c.droppedCount++
		globalDroppedSpans.Add(1)
		return
	}

	maxSpans := c.config.MaxSpansPerTrace
	hardCap := c.config.CollectorQueueCapacity
	over := (maxSpans > 0 && len(c.records) >= maxSpans) ||
		(hardCap > 0 && len(c.records) >= hardCap)
	if over {
		c.truncated = true
		c.droppedCount++
		globalDroppedSpans.Add(1)
		emitDiagnostic(DiagQueueFull, "collector capacity reached, span dropped", nil)
		return
	}
	c.records = append(c.records, span)
}

// snapshot returns a private copy of the Collector's records and
// truncated flag. Normally called by the Dispatcher exactly once, after
// release() has sealed and handed this Collector off; when
// ReportBeforeRootFinish is set it is also called once per partialTicker
// tick against a still-open (unsealed) Collector, so this method makes no
// assumption about sealed state.
func (c *Collector) snapshot() ([]RawSpan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]RawSpan, len(c.records))
	copy(records, c.records)
	return records, c.truncated
}

// DroppedCount returns the number of records dropped due to backpressure
// or truncation.
func (c *Collector) DroppedCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.droppedCount
}

// CollectorHandle is the application-facing observer/configurer returned
// alongside a root Span (spec §4.4 Root). It does not extend the root's
// lifetime — it has no reference-counted claim on the Collector — it only
// lets the caller inspect drop counters after Finish.
type CollectorHandle struct {
	collector *Collector
}

// sharedNoopHandle is returned by Root while tracing is disabled. Its
// collector field is always nil and never assigned, so every method on it
// takes the nil-collector branch — safe to share across every disabled-path
// caller and goroutine (spec §8 Property 4/S5, zero allocations).
var sharedNoopHandle = &CollectorHandle{}

// DroppedCount reports how many records this trace has dropped so far.
func (h *CollectorHandle) DroppedCount() int64 {
	if h == nil || h.collector == nil {
		return 0
	}
	return h.collector.DroppedCount()
}

// TraceID returns the id of the trace this handle observes.
func (h *CollectorHandle) TraceID() TraceID {
	if h == nil || h.collector == nil {
		return TraceID{}
	}
	return h.collector.traceID
}
