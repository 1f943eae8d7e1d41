package enrich

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudgetSequential(t *testing.T) {
	b := NewBudget(2)
	require.Equal(t, 2, b.Remaining())
	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
	require.False(t, b.TryAcquire())
	require.Equal(t, 0, b.Remaining())
}

func TestBudgetZeroPermitsNone(t *testing.T) {
	b := NewBudget(0)
	require.False(t, b.TryAcquire())
}

func TestBudgetConcurrentNeverOverspends(t *testing.T) {
	const max = 50
	b := NewBudget(max)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if b.TryAcquire() {
					granted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(max), granted.Load())
	require.Equal(t, 0, b.Remaining())
}
