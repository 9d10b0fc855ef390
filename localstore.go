package tracecore

import "context"

// LocalStore is the per-goroutine-chain append-only buffer of completed
// local spans plus an implicit parent stack (spec §4.3).
//
// Go has no first-class thread-local storage, so LocalStore is carried
// explicitly through context.Context as a pointer — the same trick the
// teacher (tracez) already uses to bundle tracer+span into one context
// value (see tracer.go's contextBundle). Because a context value is only
// ever visible to the goroutine chain it was derived in (sharing it with
// another goroutine is an explicit, visible act, never implicit), this
// gives LocalStore the "thread-owned, never shared" property spec §4.3
// requires without true TLS or atomics. See DESIGN.md for the full
// rationale.
type LocalStore struct {
	spans []RawSpan
	stack []localFrame

	spanSeedHigh uint32
	spanSeedLow  uint32
}

type localFrame struct {
	attach    bool
	spanIndex int    // valid when !attach
	attachID  SpanID // valid when attach
}

// NewLocalStore creates an empty, goroutine-owned LocalStore. Its span id
// counter is seeded from one pool-sourced random id (spec §4.2) so every
// subsequent local span mint is a plain increment.
func NewLocalStore() *LocalStore {
	seed := NewSpanID()
	return &LocalStore{spanSeedHigh: uint32(seed >> 32)}
}

func (ls *LocalStore) nextSpanID() SpanID {
	ls.spanSeedLow++
	return SpanID(uint64(ls.spanSeedHigh)<<32 | uint64(ls.spanSeedLow))
}

// currentParent returns the implicit parent id for a newly opened local
// span: the top of the stack, whether that's a real RawSpan or a
// synthetic attach point, or 0 (sentinel, "no parent") if the stack is
// empty.
func (ls *LocalStore) currentParent() SpanID {
	if len(ls.stack) == 0 {
		return 0
	}
	top := ls.stack[len(ls.stack)-1]
	if top.attach {
		return top.attachID
	}
	return ls.spans[top.spanIndex].SpanID
}

// LocalGuard is the RAII-style scoped acquisition returned by PushLocal.
// Close MUST be called on every exit path; guards are cheap to leak-detect
// but not cheap to actually leak (the RawSpan stays open forever).
//
// A guard does not cache a raw slice index: TakeLocalSpans/Collect
// renumber ls.spans as they detach a completed prefix, which would leave
// a cached index pointing at the wrong RawSpan. Instead the guard
// remembers which stack slot it owns (frameIdx, stable for its lifetime —
// nothing below a still-open frame is ever removed) and resolves the
// current array position through that slot at Close time, falling back
// to the index captured at push time only if its frame was already
// force-unwound by an out-of-order sibling Close (spec §7 Misuse).
type LocalGuard struct {
	store         *LocalStore
	spanID        SpanID
	originalIndex int
	frameIdx      int
	depth         int // stack length immediately after this frame was pushed
	clock         *Clock
	closed        bool
}

// PushLocal opens a local span as a child of the current implicit parent
// (spec §4.3 push_local). Costs one cycle read, one stack push, one
// appended record, and one heap allocation for the returned *LocalGuard;
// the backing slices themselves stop allocating once warmed up.
func (ls *LocalStore) PushLocal(name string, clock *Clock) *LocalGuard {
	if clock == nil {
		clock = defaultClock
	}
	parent := ls.currentParent()
	idx := len(ls.spans)
	spanID := ls.nextSpanID()
	ls.spans = append(ls.spans, RawSpan{
		SpanID:      spanID,
		ParentID:    parent,
		BeginCycles: clock.NowCycles(),
		Name:        name,
	})
	frameIdx := len(ls.stack)
	ls.stack = append(ls.stack, localFrame{spanIndex: idx})
	return &LocalGuard{
		store:         ls,
		spanID:        spanID,
		originalIndex: idx,
		frameIdx:      frameIdx,
		depth:         len(ls.stack),
		clock:         clock,
	}
}

// currentIndex resolves where this guard's RawSpan currently lives in
// ls.spans — via its still-live stack frame if one remains, or the index
// captured at push time as a best-effort fallback once that frame has
// been force-unwound.
func (g *LocalGuard) currentIndex() int {
	if g.frameIdx < len(g.store.stack) {
		return g.store.stack[g.frameIdx].spanIndex
	}
	return g.originalIndex
}

// Close ends the local span, recording end cycles and popping the stack
// (spec §4.3 pop_local). Calling Close more than once is a no-op.
func (g *LocalGuard) Close() {
	if g == nil || g.closed {
		return
	}
	g.closed = true

	ls := g.store
	if idx := g.currentIndex(); idx >= 0 && idx < len(ls.spans) {
		ls.spans[idx].EndCycles = g.clock.NowCycles()
	}
	ls.popToDepth(g.depth, false, 0)
}

// SpanID returns the id of the span this guard owns.
func (g *LocalGuard) SpanID() SpanID {
	return g.spanID
}

// AttachPoint installs a synthetic frame identifying attachID as the
// implicit local parent for the guard's lifetime (spec §4.3 attach_point).
// Used by Span.SetLocalParent to make a cross-context span the parent of
// whatever local spans are opened next on this goroutine chain. Nested
// attaches stack normally.
func (ls *LocalStore) AttachPoint(attachID SpanID) *StackGuard {
	ls.stack = append(ls.stack, localFrame{attach: true, attachID: attachID})
	return &StackGuard{store: ls, depth: len(ls.stack)}
}

// StackGuard releases an AttachPoint frame on Close.
type StackGuard struct {
	store  *LocalStore
	depth  int
	closed bool
}

// Close pops the attach frame, unwinding to it if something else was
// dropped out of order in between (spec §7 Misuse, out_of_order_guard_drop).
func (g *StackGuard) Close() {
	if g == nil || g.closed {
		return
	}
	g.closed = true
	g.store.popToDepth(g.depth, true, 0)
}

// popToDepth pops the stack down to (and including) the frame that was
// pushed as the `depth`-th entry. If the top of the stack isn't already
// that frame — a guard was dropped out of LIFO order — this is Misuse
// (spec §7): debug builds assert, release builds unwind to the target
// depth and emit a diagnostic. expectAttach and the trailing int are
// unused; the diagnostic message is the same for both guard kinds.
func (ls *LocalStore) popToDepth(depth int, expectAttach bool, _ int) {
	if len(ls.stack) == depth {
		ls.stack = ls.stack[:depth-1]
		return
	}
	assertOrRecover(func() {
		_ = expectAttach // kept for signature symmetry/readability at call sites
		panic("tracecore: guard closed out of LIFO order")
	})
	emitDiagnostic(DiagOutOfOrderGuardDrop,
		"local guard closed out of LIFO order, unwinding", nil)
	if depth-1 < len(ls.stack) {
		ls.stack = ls.stack[:depth-1]
	} else {
		// The guard's frame was already popped by something else; nothing
		// further to unwind.
	}
}

// TakeLocalSpans snapshots the completed prefix of the buffer — everything
// below the lowest still-open frame — and returns it by move (spec §4.3
// take_local_spans). The buffer retains any still-open RawSpans at the
// tail and renumbers indices so later Close calls remain valid.
func (ls *LocalStore) TakeLocalSpans() LocalSpans {
	cut := len(ls.spans)
	for _, f := range ls.stack {
		if !f.attach && f.spanIndex < cut {
			cut = f.spanIndex
		}
	}
	if cut == 0 {
		return LocalSpans{}
	}

	taken := make([]RawSpan, cut)
	copy(taken, ls.spans[:cut])

	remaining := make([]RawSpan, len(ls.spans)-cut)
	copy(remaining, ls.spans[cut:])
	ls.spans = remaining

	for i := range ls.stack {
		if !ls.stack[i].attach {
			ls.stack[i].spanIndex -= cut
		}
	}

	return LocalSpans{Spans: taken}
}

// LocalCollector is the explicit start()/collect() pairing from spec §6,
// distinct from the implicit EnterLocal fast path: it lets a goroutine
// open a scope, do local work, and detach exactly what happened in that
// scope (regardless of what else is on the stack above or below it) for
// shipping to another Span via PushChildSpans.
type LocalCollector struct {
	store    *LocalStore
	startLen int
}

// StartLocalCollector begins a collection scope on ls.
func StartLocalCollector(ls *LocalStore) *LocalCollector {
	return &LocalCollector{store: ls, startLen: len(ls.spans)}
}

// Collect detaches every completed RawSpan appended since Start, renumbers
// the store's remaining buffer, and returns the batch by move. Safe to
// call at most once per LocalCollector.
func (lc *LocalCollector) Collect() LocalSpans {
	ls := lc.store
	cut := len(ls.spans)
	for _, f := range ls.stack {
		// Frames opened before Start lie outside this scope and don't limit it.
		if !f.attach && f.spanIndex >= lc.startLen && f.spanIndex < cut {
			cut = f.spanIndex
		}
	}
	if cut <= lc.startLen {
		return LocalSpans{}
	}

	taken := make([]RawSpan, cut-lc.startLen)
	copy(taken, ls.spans[lc.startLen:cut])

	remaining := make([]RawSpan, 0, len(ls.spans)-(cut-lc.startLen))
	remaining = append(remaining, ls.spans[:lc.startLen]...)
	remaining = append(remaining, ls.spans[cut:]...)
	ls.spans = remaining

	for i := range ls.stack {
		if !ls.stack[i].attach && ls.stack[i].spanIndex >= cut {
			ls.stack[i].spanIndex -= cut - lc.startLen
		}
	}

	return LocalSpans{Spans: taken}
}

// --- context plumbing -------------------------------------------------

type localStoreKeyType struct{}

var localStoreKey = localStoreKeyType{}

// WithLocalStore attaches a fresh LocalStore to ctx and returns both.
func WithLocalStore(ctx context.Context) (context.Context, *LocalStore) {
	ls := NewLocalStore()
	return context.WithValue(ctx, localStoreKey, ls), ls
}

// LocalStoreFromContext returns the LocalStore carried by ctx, or nil.
func LocalStoreFromContext(ctx context.Context) *LocalStore {
	if ctx == nil {
		return nil
	}
	if ls, ok := ctx.Value(localStoreKey).(*LocalStore); ok {
		return ls
	}
	return nil
}

// sharedNoopLocalGuard is returned, never copied, by every noopLocalGuard()
// call. Its closed field is already true, so Close() takes the early-return
// branch and never writes through g — safe to share across every
// disabled-path caller and goroutine (spec §8 Property 4/S5).
var sharedNoopLocalGuard = &LocalGuard{closed: true}

// noopLocalGuard returns a LocalGuard whose Close is already satisfied —
// the disabled-path return value for EnterLocal (spec §6 compile-time
// gate): no LocalStore, no RawSpan, Close is a single closed-bool check.
func noopLocalGuard() *LocalGuard {
	return sharedNoopLocalGuard
}

// EnterLocal opens a local span as a child of whatever implicit parent ctx
// carries (spec §6 LocalSpan::enter_with_local_parent), creating a
// LocalStore on first use within this context chain.
func EnterLocal(ctx context.Context, name string) (context.Context, *LocalGuard) {
	if !Enabled() {
		return ctx, noopLocalGuard()
	}
	ls := LocalStoreFromContext(ctx)
	if ls == nil {
		ctx, ls = WithLocalStore(ctx)
	}
	return ctx, ls.PushLocal(name, defaultClock)
}
