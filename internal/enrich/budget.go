package enrich

import "sync/atomic"

// Budget is a job-wide cap on external search calls. Record processing may be
// concurrent, so acquisition is atomic.
type Budget struct {
	remaining atomic.Int64
}

// NewBudget returns a budget permitting max calls. A zero max permits none.
func NewBudget(max int) *Budget {
	b := &Budget{}
	b.remaining.Store(int64(max))
	return b
}

// TryAcquire consumes one unit, reporting false once the budget is spent.
func (b *Budget) TryAcquire() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Remaining reports how many calls are left.
func (b *Budget) Remaining() int {
	n := b.remaining.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
