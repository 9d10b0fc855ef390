package tracecore

import (
	"context"
	"testing"
)

func TestLocalStorePushAndClose(t *testing.T) {
	ls := NewLocalStore()

	a := ls.PushLocal("A", defaultClock)
	a.Close()

	if len(ls.spans) != 1 {
		t.Fatalf("expected 1 span recorded, got %d", len(ls.spans))
	}
	if ls.spans[0].ParentID != 0 {
		t.Errorf("top-level local span should have sentinel parent, got %d", ls.spans[0].ParentID)
	}
	if ls.spans[0].IsOpen() {
		t.Error("span should be closed after guard.Close()")
	}
}

func TestLocalStoreNestedForest(t *testing.T) {
	ls := NewLocalStore()

	a := ls.PushLocal("A", defaultClock)
	a.Close()

	b := ls.PushLocal("B", defaultClock)
	c := ls.PushLocal("C", defaultClock)
	c.Close()
	b.Close()

	if len(ls.spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(ls.spans))
	}

	byID := make(map[SpanID]RawSpan, 3)
	for _, s := range ls.spans {
		byID[s.SpanID] = s
	}

	cSpan := byID[ls.spans[2].SpanID]
	bSpan := byID[ls.spans[1].SpanID]
	if cSpan.ParentID != bSpan.SpanID {
		t.Errorf("C's parent should be B (%d), got %d", bSpan.SpanID, cSpan.ParentID)
	}
	if bSpan.ParentID != 0 {
		t.Errorf("B should be top-level (sentinel parent), got %d", bSpan.ParentID)
	}
}

func TestLocalStoreAttachPoint(t *testing.T) {
	ls := NewLocalStore()
	attachID := SpanID(0xDEADBEEF)

	guard := ls.AttachPoint(attachID)
	child := ls.PushLocal("child", defaultClock)
	child.Close()
	guard.Close()

	if ls.spans[0].ParentID != attachID {
		t.Errorf("expected child's parent to be the attach id %d, got %d", attachID, ls.spans[0].ParentID)
	}
	if len(ls.stack) != 0 {
		t.Errorf("expected stack to be empty after both guards closed, got depth %d", len(ls.stack))
	}
}

func TestLocalStoreOutOfOrderGuardDropUnwinds(t *testing.T) {
	ls := NewLocalStore()

	outer := ls.PushLocal("outer", defaultClock)
	inner := ls.PushLocal("inner", defaultClock)

	// Close out of LIFO order: outer before inner. Spec §7 Misuse —
	// release build unwinds to outer's position rather than corrupting
	// the stack.
	outer.Close()
	inner.Close()

	if len(ls.stack) != 0 {
		t.Errorf("expected stack fully unwound, got depth %d", len(ls.stack))
	}
}

func TestTakeLocalSpansSnapshotsClosedPrefixOnly(t *testing.T) {
	ls := NewLocalStore()

	a := ls.PushLocal("A", defaultClock)
	a.Close()

	open := ls.PushLocal("open", defaultClock)

	batch := ls.TakeLocalSpans()
	if len(batch.Spans) != 1 {
		t.Fatalf("expected 1 closed span taken, got %d", len(batch.Spans))
	}
	if batch.Spans[0].Name != "A" {
		t.Errorf("expected taken span to be A, got %s", batch.Spans[0].Name)
	}
	if len(ls.spans) != 1 {
		t.Fatalf("expected the still-open span to remain in the buffer, got %d", len(ls.spans))
	}

	open.Close()
	if len(ls.spans) != 1 || ls.spans[0].Name != "open" {
		t.Errorf("expected Close after TakeLocalSpans to still resolve to the renumbered index")
	}
}

func TestTakeLocalSpansEmptyWhenNothingClosed(t *testing.T) {
	ls := NewLocalStore()
	g := ls.PushLocal("still-open", defaultClock)
	defer g.Close()

	batch := ls.TakeLocalSpans()
	if !batch.Empty() {
		t.Errorf("expected empty batch, got %d spans", len(batch.Spans))
	}
}

func TestLocalCollectorStartCollect(t *testing.T) {
	ls := NewLocalStore()

	before := ls.PushLocal("before-scope", defaultClock)
	before.Close()

	lc := StartLocalCollector(ls)
	x := ls.PushLocal("X", defaultClock)
	x.Close()
	y := ls.PushLocal("Y", defaultClock)
	y.Close()

	batch := lc.Collect()
	if len(batch.Spans) != 2 {
		t.Fatalf("expected 2 spans collected within scope, got %d", len(batch.Spans))
	}
	names := map[string]bool{}
	for _, s := range batch.Spans {
		names[s.Name] = true
	}
	if !names["X"] || !names["Y"] {
		t.Errorf("expected X and Y in the collected batch, got %v", batch.Spans)
	}

	// before-scope must remain in the store, untouched by Collect.
	if len(ls.spans) != 1 || ls.spans[0].Name != "before-scope" {
		t.Errorf("expected before-scope span to remain, got %v", ls.spans)
	}
}

func TestEnterLocalCreatesLocalStoreOnFirstUse(t *testing.T) {
	ctx, guard := EnterLocal(context.Background(), "op")
	defer guard.Close()

	if LocalStoreFromContext(ctx) == nil {
		t.Fatal("expected EnterLocal to attach a LocalStore to ctx")
	}
}
