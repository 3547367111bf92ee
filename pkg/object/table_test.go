package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableSetGetRoundTrip(t *testing.T) {
	tbl := NewTable()

	isNew := tbl.Set(Int32(1), Int32(100))
	require.True(t, isNew)

	v, ok := tbl.Get(Int32(1))
	require.True(t, ok)
	require.Equal(t, Int32(100), v)

	isNew = tbl.Set(Int32(1), Int32(200))
	require.False(t, isNew, "overwriting an existing key is not a new insertion")
	v, ok = tbl.Get(Int32(1))
	require.True(t, ok)
	require.Equal(t, Int32(200), v)
}

func TestTableGetMissReturnsFalse(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Get(Int32(42))
	require.False(t, ok)
}

func TestTableDeleteLeavesTombstoneThatDoesNotBreakProbeChain(t *testing.T) {
	tbl := NewTable()
	// Force several keys into the same small table so at least one
	// collides and needs its probe chain intact across a delete.
	for i := int32(0); i < 6; i++ {
		tbl.Set(Int32(i), Int32(i*10))
	}

	deleted := tbl.Delete(Int32(2))
	require.True(t, deleted)

	deletedAgain := tbl.Delete(Int32(2))
	require.False(t, deletedAgain, "deleting an already-deleted key reports false")

	for i := int32(0); i < 6; i++ {
		if i == 2 {
			_, ok := tbl.Get(Int32(i))
			require.False(t, ok)
			continue
		}
		v, ok := tbl.Get(Int32(i))
		require.True(t, ok, "key %d should survive an unrelated delete", i)
		require.Equal(t, Int32(i*10), v)
	}
}

func TestTableGrowthKeepsCapacityPowerOfTwoAndLoadFactorBounded(t *testing.T) {
	tbl := NewTable()
	for i := int32(0); i < 100; i++ {
		tbl.Set(Int32(i), Int32(i))
	}

	capacity := len(tbl.buckets)
	require.Equal(t, 0, capacity&(capacity-1), "capacity must be a power of two")
	require.LessOrEqual(t, float64(tbl.count), float64(capacity)*maxLoadFactor)

	for i := int32(0); i < 100; i++ {
		v, ok := tbl.Get(Int32(i))
		require.True(t, ok)
		require.Equal(t, Int32(i), v)
	}
}

func TestTableLastSetWinsAfterDeleteAndReinsert(t *testing.T) {
	tbl := NewTable()
	key := FromObject(NewStringObject("x"))

	tbl.Set(key, Int32(1))
	tbl.Delete(key)
	tbl.Set(key, Int32(2))

	v, ok := tbl.Get(key)
	require.True(t, ok)
	require.Equal(t, Int32(2), v)
}

func TestTableStringKeysCompareByContent(t *testing.T) {
	tbl := NewTable()
	tbl.Set(FromObject(NewStringObject("hello")), Int32(1))

	v, ok := tbl.Get(FromObject(NewStringObject("hello")))
	require.True(t, ok, "two distinct String objects with equal bytes must hash/compare equal as keys")
	require.Equal(t, Int32(1), v)
}

func TestTableEachVisitsEveryLiveEntry(t *testing.T) {
	tbl := NewTable()
	want := map[int32]int32{}
	for i := int32(0); i < 20; i++ {
		tbl.Set(Int32(i), Int32(i*2))
		want[i] = i * 2
	}
	tbl.Delete(Int32(5))
	delete(want, 5)

	got := map[int32]int32{}
	tbl.Each(func(k, v Value) {
		got[k.Int] = v.Int
	})
	require.Equal(t, want, got)
}
