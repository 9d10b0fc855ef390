package tracecore

import (
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, cfg Config, reporter Reporter) *Dispatcher {
	t.Helper()
	cfg = cfg.withDefaults()
	d := newDispatcher(cfg)
	d.updateConfig(cfg, reporter)
	t.Cleanup(d.shutdown)
	return d
}

func TestDispatcherDeliversSealedCollector(t *testing.T) {
	reporter := &collectingReporter{}
	d := newTestDispatcher(t, Config{}, reporter)

	// Built and sealed directly rather than through acquire/release —
	// release() would notify the process-wide Dispatcher via
	// currentDispatcher(), not the throwaway one built for this test.
	c := newCollector(TraceID{1, 1}, 0, defaultConfig())
	c.submitSpan(RawSpan{SpanID: 1, Name: "root", BeginCycles: 1, EndCycles: 2})

	d.submitSealed(c)
	d.flushSync()

	records := reporter.allRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 delivered record, got %d", len(records))
	}
	if records[0].Name != "root" {
		t.Errorf("expected record named root, got %s", records[0].Name)
	}
}

func TestDispatcherReportsPartialSnapshotBeforeSeal(t *testing.T) {
	reporter := &collectingReporter{}
	cfg := Config{ReportBeforeRootFinish: true, ReportInterval: 5 * time.Millisecond}
	d := newTestDispatcher(t, cfg, reporter)

	c := newCollector(TraceID{6, 6}, 0, cfg.withDefaults())
	c.submitSpan(RawSpan{SpanID: 1, Name: "still-open"})
	d.registerOpen(c)

	deadline := time.Now().Add(time.Second)
	for len(reporter.allRecords()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	records := reporter.allRecords()
	if len(records) == 0 {
		t.Fatal("expected at least one partial delivery before the collector sealed")
	}
	if records[0].Name != "still-open" {
		t.Errorf("expected the still-open collector's span to be reported, got %s", records[0].Name)
	}

	// The collector never sealed during the loop above — confirm sealing
	// it afterward still works normally.
	d.unregisterOpen(c)
	d.submitSealed(c)
	d.flushSync()
}

func TestDispatcherAppliesSamplePredicate(t *testing.T) {
	reporter := &collectingReporter{}
	cfg := Config{SamplePredicate: func(records []SpanRecord) bool { return false }}
	d := newTestDispatcher(t, cfg, reporter)

	c := newCollector(TraceID{2, 2}, 0, cfg.withDefaults())
	c.submitSpan(RawSpan{SpanID: 1, Name: "dropped-by-sampler"})
	d.submitSealed(c)
	d.flushSync()

	if len(reporter.all()) != 0 {
		t.Errorf("expected sampler to discard the whole trace, got %d traces", len(reporter.all()))
	}
}

func TestDispatcherBatchesReportCalls(t *testing.T) {
	reporter := &collectingReporter{}
	cfg := Config{BatchReportMaxSpans: 2}
	d := newTestDispatcher(t, cfg, reporter)

	c := newCollector(TraceID{3, 3}, 0, cfg.withDefaults())
	for i := 0; i < 5; i++ {
		c.submitSpan(RawSpan{SpanID: SpanID(i + 1), Name: "s"})
	}
	d.submitSealed(c)
	d.flushSync()

	traces := reporter.all()
	if len(traces) != 3 {
		t.Fatalf("expected 5 records batched into 3 Report calls of <=2, got %d calls", len(traces))
	}
	total := 0
	for _, tr := range traces {
		if len(tr.Records) > 2 {
			t.Errorf("batch exceeded BatchReportMaxSpans: %d", len(tr.Records))
		}
		total += len(tr.Records)
	}
	if total != 5 {
		t.Errorf("expected 5 total records across batches, got %d", total)
	}
}

func TestDispatcherFlushTwiceIsNoop(t *testing.T) {
	reporter := &collectingReporter{}
	d := newTestDispatcher(t, Config{}, reporter)

	d.flushSync()
	d.flushSync()

	if len(reporter.all()) != 0 {
		t.Errorf("expected no traces delivered with nothing sealed")
	}
}

func TestDispatcherDropsTraceWhenNoReporterInstalled(t *testing.T) {
	d := newTestDispatcher(t, Config{}, nil)

	c := newCollector(TraceID{4, 4}, 0, defaultConfig())
	c.submitSpan(RawSpan{SpanID: 1, Name: "orphan"})
	d.submitSealed(c)
	d.flushSync()

	if d.DroppedTraces() != 1 {
		t.Errorf("expected 1 dropped trace, got %d", d.DroppedTraces())
	}
}

func TestDispatcherReporterPanicIsRecovered(t *testing.T) {
	panicky := ReporterFunc(func(Trace) { panic("boom") })
	d := newTestDispatcher(t, Config{}, panicky)

	c := newCollector(TraceID{5, 5}, 0, defaultConfig())
	c.submitSpan(RawSpan{SpanID: 1, Name: "s"})
	d.submitSealed(c)
	d.flushSync()

	if d.ReporterErrors() != 1 {
		t.Errorf("expected 1 recorded reporter error, got %d", d.ReporterErrors())
	}
}

func TestDispatcherSubmitSealedNeverBlocksOnFullQueue(t *testing.T) {
	cfg := defaultConfig()
	cfg.DispatcherQueueCapacity = 1
	d := &Dispatcher{
		clock:    defaultClock,
		config:   cfg,
		sealed:   make(chan *Collector, cfg.DispatcherQueueCapacity),
		flushReq: make(chan chan struct{}),
		stop:     make(chan struct{}),
	}
	// Fill the channel directly (no run loop draining it) to force the
	// drop path.
	d.sealed <- newCollector(TraceID{}, 0, cfg)

	done := make(chan struct{})
	go func() {
		d.submitSealed(newCollector(TraceID{}, 0, cfg))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitSealed blocked on a full completion channel")
	}

	if d.DroppedTraces() != 1 {
		t.Errorf("expected 1 dropped trace from the full channel, got %d", d.DroppedTraces())
	}
}
