package gc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gregofi/caby/pkg/bytecode"
	"github.com/Gregofi/caby/pkg/heap"
	"github.com/Gregofi/caby/pkg/object"
)

// track allocates backing space for obj from alloc and registers it with
// c, mirroring what vm.VM.track does for real objects.
func track(t *testing.T, c *Collector, alloc *heap.Allocator, obj *object.Object) {
	t.Helper()
	h, ok := alloc.Alloc(obj.Size())
	require.True(t, ok)
	obj.Handle = uint64(h)
	c.Track(obj)
}

func liveSet(c *Collector) map[*object.Object]bool {
	seen := map[*object.Object]bool{}
	for o := c.Head; o != nil; o = o.Next {
		seen[o] = true
	}
	return seen
}

func TestSweepFreesUnreachableAndKeepsReachable(t *testing.T) {
	alloc := heap.New(1 << 16)
	c := New(alloc)

	kept := object.NewStringObject("kept")
	track(t, c, alloc, kept)

	garbage := object.NewStringObject("garbage")
	track(t, c, alloc, garbage)

	c.Collect(Roots{Stack: []object.Value{object.FromObject(kept)}})

	seen := liveSet(c)
	require.True(t, seen[kept])
	require.False(t, seen[garbage])
	require.Equal(t, byte(object.GCWhite), kept.GCByte, "survivors must be cleared back to white")
}

func TestIntrusiveListHasNoDuplicatesAfterMultipleSweeps(t *testing.T) {
	alloc := heap.New(1 << 16)
	c := New(alloc)

	var kept []*object.Object
	for i := 0; i < 5; i++ {
		o := object.NewStringObject("s")
		track(t, c, alloc, o)
		kept = append(kept, o)
	}
	roots := func() Roots {
		vals := make([]object.Value, len(kept))
		for i, o := range kept {
			vals[i] = object.FromObject(o)
		}
		return Roots{Stack: vals}
	}

	c.Collect(roots())
	c.Collect(roots())

	seen := map[*object.Object]int{}
	n := 0
	for o := c.Head; o != nil; o = o.Next {
		seen[o]++
		n++
	}
	for o, count := range seen {
		require.Equal(t, 1, count, "object %v appears more than once in the live list", o)
	}
	require.Equal(t, len(kept), n)
}

func TestCyclicInstanceGraphSurvivesThroughOneStackRoot(t *testing.T) {
	alloc := heap.New(1 << 16)
	c := New(alloc)

	class := object.NewClassObject("Node", nil)
	track(t, c, alloc, class)

	a := object.NewInstanceObject(class)
	track(t, c, alloc, a)
	b := object.NewInstanceObject(class)
	track(t, c, alloc, b)

	// a.next = b; b.next = a -- a reference cycle with no refcount to break.
	nextKey := object.FromObject(object.NewStringObject("next"))
	a.Inst.Members.Set(nextKey, object.FromObject(b))
	b.Inst.Members.Set(nextKey, object.FromObject(a))

	c.Collect(Roots{Stack: []object.Value{object.FromObject(a)}})

	seen := liveSet(c)
	require.True(t, seen[a])
	require.True(t, seen[b])
	require.True(t, seen[class])
}

func TestUnreachableCycleIsCollected(t *testing.T) {
	alloc := heap.New(1 << 16)
	c := New(alloc)

	class := object.NewClassObject("Node", nil)
	track(t, c, alloc, class)
	takenWithJustClass := alloc.TakenBytes()

	a := object.NewInstanceObject(class)
	track(t, c, alloc, a)
	b := object.NewInstanceObject(class)
	track(t, c, alloc, b)

	nextKey := object.FromObject(object.NewStringObject("next"))
	a.Inst.Members.Set(nextKey, object.FromObject(b))
	b.Inst.Members.Set(nextKey, object.FromObject(a))

	// No roots at all reference a or b: the cycle is garbage even though
	// the two instances reference each other.
	c.Collect(Roots{Stack: []object.Value{object.FromObject(class)}})

	seen := liveSet(c)
	require.True(t, seen[class])
	require.False(t, seen[a])
	require.False(t, seen[b])
	require.Equal(t, takenWithJustClass, alloc.TakenBytes())
}

func TestClassMethodTableIsTraced(t *testing.T) {
	alloc := heap.New(1 << 16)
	c := New(alloc)

	class := object.NewClassObject("Greeter", nil)
	track(t, c, alloc, class)

	method := object.NewFunctionObject("hello", 0, 0, bytecode.NewChunk())
	track(t, c, alloc, method)
	class.Cls.Methods.Set(object.FromObject(object.NewStringObject("hello")), object.FromObject(method))

	c.Collect(Roots{Stack: []object.Value{object.FromObject(class)}})

	seen := liveSet(c)
	require.True(t, seen[class])
	require.True(t, seen[method], "a class's method table must be a GC root path")
}

func TestCollectGrowsNextGCByGrowFactor(t *testing.T) {
	alloc := heap.New(1 << 20)
	c := New(alloc)

	kept := object.NewStringObject("kept")
	track(t, c, alloc, kept)

	c.Collect(Roots{Stack: []object.Value{object.FromObject(kept)}})
	require.Equal(t, alloc.TakenBytes()*GrowFactor, c.NextGC)
}

func TestMaybeCollectSkipsWhenUnderThreshold(t *testing.T) {
	alloc := heap.New(1 << 20)
	c := New(alloc)

	obj := object.NewStringObject("s")
	track(t, c, alloc, obj)

	ran := c.MaybeCollect(Roots{Stack: []object.Value{object.FromObject(obj)}})
	require.False(t, ran, "collection should not run before NextGC is crossed")
}

func TestDisabledSkipsCollection(t *testing.T) {
	alloc := heap.New(1 << 10)
	c := New(alloc)
	c.Disabled = true
	c.Stress = true

	obj := object.NewStringObject("s")
	track(t, c, alloc, obj)

	ran := c.MaybeCollect(Roots{})
	require.False(t, ran)
}
