// Package locker wraps sync.RWMutex with optional hold-time diagnostics.
// The canonical chain state sits behind a single lock; when that lock is
// held too long everything stalls, so the wrapper measures wait and hold
// durations and reports slow holds after release. With diagnostics off it
// degrades to a plain mutex with no timing overhead.
package locker

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/triton-chain/triton/ulogger"
)

// Observer receives lock lifecycle events. Implementations must not block;
// they are called on the locking goroutine.
type Observer interface {
	Acquired(name string, write bool, wait time.Duration)
	Released(name string, write bool, held time.Duration)
}

// Stats are cumulative counters for one Locker.
type Stats struct {
	ReadAcquisitions  uint64
	WriteAcquisitions uint64
	SlowHolds         uint64
	MaxHold           time.Duration
}

type Locker struct {
	mu   sync.RWMutex
	name string

	diagnostics       bool
	slowHoldThreshold time.Duration
	logger            ulogger.Logger
	observer          Observer

	readAcquisitions  atomic.Uint64
	writeAcquisitions atomic.Uint64
	slowHolds         atomic.Uint64
	maxHoldNanos      atomic.Int64
}

type Option func(*Locker)

// WithDiagnostics turns on timing and slow-hold reporting.
func WithDiagnostics(slowHoldThreshold time.Duration) Option {
	return func(l *Locker) {
		l.diagnostics = true
		l.slowHoldThreshold = slowHoldThreshold
	}
}

func WithLogger(logger ulogger.Logger) Option {
	return func(l *Locker) {
		l.logger = logger
	}
}

func WithObserver(observer Observer) Option {
	return func(l *Locker) {
		l.observer = observer
	}
}

func New(name string, opts ...Option) *Locker {
	l := &Locker{
		name: name,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Guard represents one held acquisition. Unlock releases it; a Guard must
// be unlocked exactly once, from any goroutine.
type Guard struct {
	locker     *Locker
	write      bool
	acquiredAt time.Time
}

// Lock acquires the write lock.
func (l *Locker) Lock() *Guard {
	if !l.diagnostics {
		l.mu.Lock()
		l.writeAcquisitions.Inc()

		return &Guard{locker: l, write: true}
	}

	start := time.Now()
	l.mu.Lock()
	acquiredAt := time.Now()

	l.writeAcquisitions.Inc()

	if l.observer != nil {
		l.observer.Acquired(l.name, true, acquiredAt.Sub(start))
	}

	return &Guard{locker: l, write: true, acquiredAt: acquiredAt}
}

// RLock acquires the read lock.
func (l *Locker) RLock() *Guard {
	if !l.diagnostics {
		l.mu.RLock()
		l.readAcquisitions.Inc()

		return &Guard{locker: l}
	}

	start := time.Now()
	l.mu.RLock()
	acquiredAt := time.Now()

	l.readAcquisitions.Inc()

	if l.observer != nil {
		l.observer.Acquired(l.name, false, acquiredAt.Sub(start))
	}

	return &Guard{locker: l, acquiredAt: acquiredAt}
}

// Unlock releases the guard. Slow-hold reporting happens here, strictly
// after the underlying mutex is released, so the reporting itself can
// never extend the critical section.
func (g *Guard) Unlock() {
	l := g.locker

	if g.write {
		l.mu.Unlock()
	} else {
		l.mu.RUnlock()
	}

	if !l.diagnostics {
		return
	}

	held := time.Since(g.acquiredAt)

	for {
		current := l.maxHoldNanos.Load()
		if int64(held) <= current || l.maxHoldNanos.CompareAndSwap(current, int64(held)) {
			break
		}
	}

	if l.observer != nil {
		l.observer.Released(l.name, g.write, held)
	}

	if l.slowHoldThreshold > 0 && held >= l.slowHoldThreshold {
		l.slowHolds.Inc()

		if l.logger != nil {
			l.logger.Warnf("[locker:%s] slow hold: write=%v held=%s threshold=%s", l.name, g.write, held, l.slowHoldThreshold)
		}
	}
}

// Stats returns a snapshot of the counters.
func (l *Locker) Stats() Stats {
	return Stats{
		ReadAcquisitions:  l.readAcquisitions.Load(),
		WriteAcquisitions: l.writeAcquisitions.Load(),
		SlowHolds:         l.slowHolds.Load(),
		MaxHold:           time.Duration(l.maxHoldNanos.Load()),
	}
}
