package core

import "sync"

// HopLimiter bounds the number of agent hops (model invocations) a
// single turn may perform, the safety valve against infinite
// handoff/tool loops. Safe for concurrent use.
type HopLimiter struct {
	mu    sync.Mutex
	max   int
	count int
}

// NewHopLimiter creates a limiter allowing max hops. A non-positive max
// disables the bound.
func NewHopLimiter(max int) *HopLimiter {
	return &HopLimiter{max: max}
}

// Take consumes one hop, failing with KindIterationLimit once the bound
// is exceeded.
func (l *HopLimiter) Take() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	if l.max > 0 && l.count > l.max {
		return Errorf(KindIterationLimit, "turn exceeded %d hops", l.max)
	}
	return nil
}

// Count returns the number of hops consumed so far.
func (l *HopLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
