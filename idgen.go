package tracecore

import (
	"crypto/rand"
	"encoding/binary"
	"runtime"
	"sync"
)

// TraceID is a 128-bit value unique per trace (spec §3).
type TraceID [2]uint64

// IsZero reports whether t is the unset sentinel.
func (t TraceID) IsZero() bool { return t[0] == 0 && t[1] == 0 }

// SpanID is a 64-bit value unique within a trace (spec §3). A root span
// has parent = 0.
type SpanID uint64

// IDPool generalizes the teacher's idpool.go (tracez's string-id pool) to
// any fixed-size id type, amortizing crypto/rand overhead with a
// background refill goroutine.
type IDPool[T any] struct {
	factory func() T
	ids     chan T
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity.
func NewIDPool[T any](capacity int, factory func() T) *IDPool[T] {
	pool := &IDPool[T]{
		ids:     make(chan T, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool or generates one directly if the pool
// is empty (fallback for burst load).
func (p *IDPool[T]) Get() T {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

// refill maintains the pool by generating IDs in the background.
func (p *IDPool[T]) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
			select {
			case p.ids <- p.factory():
			case <-p.stopCh:
				return
			}
		}
	}
}

// Close shuts down the ID pool gracefully.
func (p *IDPool[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

func randomTraceID() TraceID {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively unreachable on supported
		// platforms; fall back to clock-derived bits rather than a zero
		// (all-zero) trace id, which is the root sentinel.
		now := defaultClock.NowCycles()
		return TraceID{now, now ^ 0x9E3779B97F4A7C15}
	}
	return TraceID{
		binary.BigEndian.Uint64(b[0:8]),
		binary.BigEndian.Uint64(b[8:16]),
	}
}

func randomSpanID() SpanID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return SpanID(defaultClock.NowCycles())
	}
	return SpanID(binary.BigEndian.Uint64(b[:]))
}

// idPools lazily initializes the process-wide trace/span id pools on
// first use, mirroring the teacher's Tracer.ensureIDPools (one-time,
// sized off runtime.NumCPU() for contention balance).
var idPools = struct {
	once  sync.Once
	trace *IDPool[TraceID]
	span  *IDPool[SpanID]
}{}

func ensureIDPools() {
	idPools.once.Do(func() {
		poolSize := runtime.NumCPU() * 100
		idPools.trace = NewIDPool(poolSize, randomTraceID)
		idPools.span = NewIDPool(poolSize, randomSpanID)
	})
}

// NewTraceID mints a cryptographically uniform 128-bit trace id.
func NewTraceID() TraceID {
	ensureIDPools()
	return idPools.trace.Get()
}

// NewSpanID mints a 64-bit span id via the pool. Hot local-span creation
// should prefer LocalStore's per-chain counter (spec §4.2) instead of this
// function, which still pays pool/channel overhead.
func NewSpanID() SpanID {
	ensureIDPools()
	return idPools.span.Get()
}
