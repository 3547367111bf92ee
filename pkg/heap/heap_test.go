package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTripZeroesTakenBytes(t *testing.T) {
	a := New(1 << 16)

	var handles []Handle
	for i := 0; i < 16; i++ {
		h, ok := a.Alloc(64)
		require.True(t, ok)
		handles = append(handles, h)
	}
	require.NotZero(t, a.TakenBytes())

	for _, h := range handles {
		a.Free(h)
	}
	require.Zero(t, a.TakenBytes())
}

func TestAllocSplitsRemainderWhenLargeEnough(t *testing.T) {
	a := New(4096)

	h, ok := a.Alloc(64)
	require.True(t, ok)
	require.Equal(t, uint64(64), a.TakenBytes())

	a.Free(h)
	require.Zero(t, a.TakenBytes())
}

func TestAllocFailsWhenNoFit(t *testing.T) {
	a := New(128)

	_, ok := a.Alloc(64)
	require.True(t, ok)

	_, ok = a.Alloc(1024)
	require.False(t, ok, "alloc: should report no-fit rather than panicking")
}

func TestFreeCoalescesForwardWithFreeNeighbor(t *testing.T) {
	a := New(4096)

	h1, ok := a.Alloc(64)
	require.True(t, ok)
	h2, ok := a.Alloc(64)
	require.True(t, ok)
	h3, ok := a.Alloc(64)
	require.True(t, ok)

	a.Free(h2)
	a.Free(h3)

	// h2 was freed while h3 was still taken, so only h3's block coalesces
	// forward (with the free tail); the larger allocation fits there.
	h4, ok := a.Alloc(200)
	require.True(t, ok)

	a.Free(h1)
	a.Free(h4)
	require.Zero(t, a.TakenBytes())
}

func TestAlternatingAllocFreeBoundsTotalBytes(t *testing.T) {
	a := New(1 << 12)
	total := a.TotalBytes()

	for i := 0; i < 100; i++ {
		h, ok := a.Alloc(64)
		require.True(t, ok)
		a.Free(h)
	}

	require.Equal(t, total, a.TotalBytes(), "total pool size never changes across alloc/free cycles")
	require.Zero(t, a.TakenBytes())
}

func TestSplitCoalesceCyclesConserveBlockLengths(t *testing.T) {
	// Each alloc splits the head block and each free coalesces it back;
	// a header-accounting mismatch between the two would inflate (or
	// shrink) the free block a little per cycle. After churn, taking the
	// whole pool must reserve exactly capacity minus the one remaining
	// header, no more and no less.
	const poolSize = 1 << 12
	a := New(poolSize)

	for i := 0; i < 100; i++ {
		h, ok := a.Alloc(64)
		require.True(t, ok)
		a.Free(h)
	}

	_, ok := a.Alloc(poolSize)
	require.False(t, ok, "more than capacity-minus-header must never fit, even after churn")

	h, ok := a.Alloc(poolSize - headerOverhead)
	require.True(t, ok, "the full payload must still fit after churn")
	require.Equal(t, uint64(poolSize-headerOverhead), a.TakenBytes())

	a.Free(h)
	require.Zero(t, a.TakenBytes())
}

func TestMinSplitFloorsSmallAllocations(t *testing.T) {
	a := New(4096)

	h, ok := a.Alloc(1)
	require.True(t, ok)
	require.GreaterOrEqual(t, a.TakenBytes(), uint64(MinSplit))

	a.Free(h)
	require.Zero(t, a.TakenBytes())
}

func TestExhaustedReportsWhenPoolCannotFit(t *testing.T) {
	a := New(64)
	require.True(t, a.Exhausted(1024))
	require.False(t, a.Exhausted(32))
}
