package tracecore

import (
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher is the single background worker that converts sealed
// Collectors into SpanRecord batches and hands them to the Reporter (spec
// §4.6). It owns exactly one goroutine per process, matching spec §5 ("the
// core itself has exactly one internal worker").
//
// Grounded on two corpus precedents named in SPEC_FULL.md: the teacher's
// workerPool (tracer.go) for the bounded-channel, drop-on-full,
// wg.Wait()-on-shutdown loop shape, and the flush-rendezvous pattern
// (a request channel carrying a reply channel) used by long-running
// background workers elsewhere in the corpus for a synchronous Flush.
type Dispatcher struct {
	clock *Clock

	mu       sync.RWMutex
	reporter Reporter
	config   Config

	sealed   chan *Collector
	flushReq chan chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// activeMu/active track Collectors that have registered themselves as
	// still-open (ReportBeforeRootFinish, spec §6) so partialTicker can
	// snapshot and report them before their root finishes. Collectors that
	// never register (the common case) never touch this map.
	activeMu      sync.Mutex
	active        map[*Collector]struct{}
	partialTicker *time.Ticker

	droppedTraces  atomic.Int64
	reporterErrors atomic.Int64
}

// DroppedTraces returns how many sealed traces the Dispatcher has dropped
// because its completion channel was full or no Reporter was installed.
func (d *Dispatcher) DroppedTraces() int64 { return d.droppedTraces.Load() }

// ReporterErrors returns how many times the installed Reporter's Report
// method panicked (spec §7 "Reporter error... logged... Dispatcher
// continues").
func (d *Dispatcher) ReporterErrors() int64 { return d.reporterErrors.Load() }

func newDispatcher(cfg Config) *Dispatcher {
	interval := cfg.ReportInterval
	if interval <= 0 {
		interval = defaultReportInterval
	}
	d := &Dispatcher{
		clock:         defaultClock,
		config:        cfg,
		sealed:        make(chan *Collector, cfg.DispatcherQueueCapacity),
		flushReq:      make(chan chan struct{}),
		stop:          make(chan struct{}),
		active:        make(map[*Collector]struct{}),
		partialTicker: time.NewTicker(interval),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// updateConfig replaces the reporter/config pair SetReporter installs.
// Safe to call while the run loop is live — reporter/config reads in run
// always go through the current* accessors, which take d.mu. Also re-arms
// partialTicker so a changed ReportInterval takes effect without a
// Dispatcher restart.
func (d *Dispatcher) updateConfig(cfg Config, reporter Reporter) {
	d.mu.Lock()
	d.config = cfg
	d.reporter = reporter
	d.mu.Unlock()

	if cfg.ReportInterval > 0 {
		d.partialTicker.Reset(cfg.ReportInterval)
	}
}

func (d *Dispatcher) currentReporter() Reporter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reporter
}

func (d *Dispatcher) currentSampler() func([]SpanRecord) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.SamplePredicate
}

func (d *Dispatcher) currentBatchMax() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.BatchReportMaxSpans
}

func (d *Dispatcher) currentReportBeforeRootFinish() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.ReportBeforeRootFinish
}

// registerOpen marks c as eligible for partial delivery on the next
// partialTicker tick (spec §6 ReportBeforeRootFinish). Root calls this
// right after acquiring its Collector when the active Config asks for it;
// release() unregisters unconditionally on seal, so a Collector that was
// never registered simply isn't in the map to delete.
func (d *Dispatcher) registerOpen(c *Collector) {
	d.activeMu.Lock()
	d.active[c] = struct{}{}
	d.activeMu.Unlock()
}

func (d *Dispatcher) unregisterOpen(c *Collector) {
	d.activeMu.Lock()
	delete(d.active, c)
	d.activeMu.Unlock()
}

// submitSealed enqueues a Collector whose refcount has reached zero (spec
// §4.5 "handed to the Dispatcher"). Never blocks the sealing Collector's
// goroutine: a full completion channel drops the trace and counts it,
// exactly as spec §4.6 requires ("the Dispatcher MUST never block
// application threads").
func (d *Dispatcher) submitSealed(c *Collector) {
	select {
	case d.sealed <- c:
	default:
		d.droppedTraces.Add(1)
		emitDiagnostic(DiagQueueFull, "dispatcher completion channel full, trace dropped", nil)
	}
}

// run is the Dispatcher's sole goroutine (spec §4.6, §5). It drains sealed
// Collectors as they arrive — each arrival is itself a wake signal — and
// answers synchronous flush requests in between. partialTicker, ticking
// every ReportInterval, is the only thing in this loop driven by wall
// clock rather than an arrival: it is where ReportBeforeRootFinish's
// periodic partial emission (spec §6) actually happens.
func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case c := <-d.sealed:
			d.deliver(c)
		case <-d.partialTicker.C:
			d.deliverPartialSnapshots()
		case reply := <-d.flushReq:
			d.drainAvailable()
			close(reply)
		case <-d.stop:
			d.drainAvailable()
			return
		}
	}
}

// drainAvailable delivers every Collector currently waiting in the
// completion channel without blocking — used by flushSync and shutdown so
// neither waits on a trace that hasn't sealed yet (spec §8: "flush()
// returns when it has attempted delivery of everything sealed at the time
// of call").
func (d *Dispatcher) drainAvailable() {
	for {
		select {
		case c := <-d.sealed:
			d.deliver(c)
		default:
			return
		}
	}
}

// deliver flattens one sealed Collector's records and hands them to
// deliverSnapshot (spec §4.6 steps 1-3). Also drops c from the partial-
// delivery registry, in case it was registered and this seal raced ahead
// of release()'s own unregisterOpen call.
func (d *Dispatcher) deliver(c *Collector) {
	d.unregisterOpen(c)
	raw, truncated := c.snapshot()
	d.deliverSnapshot(c.traceID, raw, truncated)
}

// deliverPartialSnapshots is partialTicker's tick handler. It snapshots
// every Collector currently registered as open (ReportBeforeRootFinish,
// spec §6) and reports whatever it holds so far, without sealing or
// otherwise disturbing it — the same trace's later seal-time delivery (or
// a subsequent tick) will report its full contents again, so a Reporter
// fed through this path must tolerate overlapping/duplicate records for a
// still-open trace.
func (d *Dispatcher) deliverPartialSnapshots() {
	if !d.currentReportBeforeRootFinish() {
		return
	}

	d.activeMu.Lock()
	open := make([]*Collector, 0, len(d.active))
	for c := range d.active {
		open = append(open, c)
	}
	d.activeMu.Unlock()

	for _, c := range open {
		if c.isSealed() {
			continue
		}
		raw, truncated := c.snapshot()
		if len(raw) == 0 {
			continue
		}
		d.deliverSnapshot(c.traceID, raw, truncated)
	}
}

// deliverSnapshot converts raw cycles to unix nanoseconds via the Clock's
// Anchor (spec §4.6 step 1), applies tail sampling (step 2), and calls the
// Reporter in BatchReportMaxSpans-sized slices (step 3). Shared by
// deliver (seal-time, full and final) and deliverPartialSnapshots
// (mid-trace, partial and repeatable).
func (d *Dispatcher) deliverSnapshot(traceID TraceID, raw []RawSpan, truncated bool) {
	anchor := d.clock.AnchorSnapshot()
	records := make([]SpanRecord, 0, len(raw))
	for _, r := range raw {
		records = append(records, toSpanRecord(traceID, r, anchor))
	}

	if sampler := d.currentSampler(); sampler != nil && !sampler(records) {
		return
	}

	reporter := d.currentReporter()
	if reporter == nil {
		d.droppedTraces.Add(1)
		emitDiagnostic(DiagQueueFull, "no reporter installed, trace dropped", errReporterUninitialized)
		return
	}

	maxBatch := d.currentBatchMax()
	if maxBatch <= 0 || len(records) <= maxBatch {
		d.report(reporter, traceID, records, truncated)
		return
	}
	for start := 0; start < len(records); start += maxBatch {
		end := start + maxBatch
		if end > len(records) {
			end = len(records)
		}
		d.report(reporter, traceID, records[start:end], truncated)
	}
}

func (d *Dispatcher) report(reporter Reporter, traceID TraceID, records []SpanRecord, truncated bool) {
	defer func() {
		if r := recover(); r != nil {
			emitDiagnostic(DiagReporterError, "reporter.Report panicked", nil)
			d.reporterErrors.Add(1)
		}
	}()
	reporter.Report(Trace{TraceID: traceID, Records: records, Truncated: truncated})
}

// toSpanRecord converts one RawSpan to its public SpanRecord shape,
// clamping a negative elapsed time (end observed before begin — clock
// skew across a recalibration race) to zero rather than wrapping to a
// huge unsigned duration (spec §4.6 step 1 "clamping... to 0 and
// flagging").
func toSpanRecord(traceID TraceID, raw RawSpan, anchor Anchor) SpanRecord {
	var duration uint64
	if raw.EndCycles > raw.BeginCycles {
		duration = anchor.ToUnixNanos(raw.EndCycles) - anchor.ToUnixNanos(raw.BeginCycles)
	}
	return SpanRecord{
		TraceID:        traceID,
		SpanID:         raw.SpanID,
		ParentID:       raw.ParentID,
		BeginUnixNanos: anchor.ToUnixNanos(raw.BeginCycles),
		DurationNanos:  duration,
		Name:           raw.Name,
		Properties:     raw.Properties,
		Events:         raw.Events,
	}
}

// flushSync blocks until every Collector sealed at the time of the call
// has been delivered to the Reporter (spec §6 Flush, §8 S6/idempotence).
// A second call with nothing sealed in between returns immediately, since
// drainAvailable has nothing left to read.
func (d *Dispatcher) flushSync() {
	reply := make(chan struct{})
	select {
	case d.flushReq <- reply:
		<-reply
	case <-d.stop:
	}
}

// shutdown stops the run loop after delivering everything already sealed.
// Not part of the public API (the spec names no process-shutdown
// operation beyond Flush), but used by tests that need a clean goroutine
// teardown between cases.
func (d *Dispatcher) shutdown() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
	d.partialTicker.Stop()
}
