// Package budget enforces a hard cap on AI spend per time window.
package budget

import (
	"sync"
	"time"
)

// Decision is the outcome of a charge attempt. Denial is a normal outcome
// the caller must branch on, never an error.
type Decision int

const (
	// Allowed means the charge was applied
	Allowed Decision = iota
	// DeniedOverBudget means applying the charge would exceed the window cap
	DeniedOverBudget
)

// Ledger tracks spend within a rolling fixed-duration window. It is a pure
// in-memory counter shared across users, safe for concurrent use.
type Ledger struct {
	mu          sync.Mutex
	capUnits    int
	window      time.Duration
	windowStart time.Time
	spentUnits  int

	now func() time.Time
}

// NewLedger creates a ledger with the given cap and window duration.
func NewLedger(capUnits int, window time.Duration) *Ledger {
	l := &Ledger{
		capUnits: capUnits,
		window:   window,
		now:      time.Now,
	}
	l.windowStart = l.now()
	return l
}

// Charge attempts to spend cost units. It rolls the window over first if
// the current one has ended. On denial no state is mutated: there is no
// partial charge.
func (l *Ledger) Charge(cost int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()

	if l.spentUnits+cost > l.capUnits {
		return DeniedOverBudget
	}
	l.spentUnits += cost
	return Allowed
}

// Remaining returns the unspent units in the current window. Queried by
// the bot for the budget-remaining indicator.
func (l *Ledger) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()
	return l.capUnits - l.spentUnits
}

// Window returns the current window bounds and spend, for display.
func (l *Ledger) Window() (start, end time.Time, spent int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()
	return l.windowStart, l.windowStart.Add(l.window), l.spentUnits
}

// rollover starts a fresh window when the current one has ended.
// Caller must hold l.mu.
func (l *Ledger) rollover() {
	now := l.now()
	for !now.Before(l.windowStart.Add(l.window)) {
		l.windowStart = l.windowStart.Add(l.window)
		l.spentUnits = 0
	}
}
