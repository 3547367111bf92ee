// Package gc implements Caby's tracing mark-and-sweep collector over the
// intrusive list of live heap objects. Collections are stop-the-world:
// the interpreter calls in before an allocation, the collector marks the
// transitive closure of the roots it is handed, unlinks and frees every
// unmarked node of the list, and control returns to the interpreter.
package gc

import (
	"github.com/rs/zerolog"

	"github.com/dustin/go-humanize"

	"github.com/Gregofi/caby/pkg/heap"
	"github.com/Gregofi/caby/pkg/object"
)

// GrowFactor is the multiplier applied to the live-byte count right after
// a sweep to compute the next collection threshold.
const GrowFactor = 2

// Roots is a snapshot of everything the collector must trace from. It is
// deliberately built only from pkg/object and plain slices — never from a
// pkg/vm type — so pkg/gc has no import-cycle risk back to the
// interpreter; pkg/vm assembles a Roots value fresh before every
// collection.
type Roots struct {
	// Constants is the program's constant pool.
	Constants []*object.Object
	// Stack is the live prefix of the operand stack.
	Stack []object.Value
	// Globals is the VM's global variable table.
	Globals *object.Table
	// Frames holds one slice per active call frame, each the frame's
	// full window of LocalsMax local variable slots, whether or not every
	// slot has been written yet.
	Frames [][]object.Value
}

// Collector runs mark-and-sweep collections over a heap.Allocator's
// budget and an intrusive singly-linked list of live objects.
type Collector struct {
	Head     *object.Object // head of the "all live objects" list
	NextGC   uint64
	Stress   bool // collect before every allocation, to shake out missed roots
	Disabled bool // set during bootstrap, when the object graph may be inconsistent
	// Log receives one debug event per collection cycle. Defaults to a
	// disabled logger; cmd/caby swaps in a real one under --gc-debug.
	Log   zerolog.Logger
	alloc *heap.Allocator
}

// New creates a collector watching the given allocator's byte budget,
// with an initial threshold equal to the allocator's full capacity (so
// the first real pressure point is reached naturally rather than forcing
// an empty-heap collection at startup).
func New(alloc *heap.Allocator) *Collector {
	return &Collector{NextGC: alloc.TotalBytes(), Log: zerolog.Nop(), alloc: alloc}
}

// Track links obj into the head of the live-objects list. Every object
// the VM allocates must be registered exactly once, before it becomes
// reachable from any root (so a collection running concurrently with
// construction — there is none, Caby is single-threaded — could never
// see a half-built node; even so this ordering is a documented
// invariant, not just an optimization).
func (c *Collector) Track(obj *object.Object) {
	obj.Next = c.Head
	c.Head = obj
}

// MaybeCollect runs a collection if the allocator's taken-byte count has
// crossed NextGC, or unconditionally if Stress is set. Disabled
// short-circuits both checks. Returns whether a collection actually ran.
func (c *Collector) MaybeCollect(roots Roots) bool {
	if c.Disabled {
		return false
	}
	if !c.Stress && c.alloc.TakenBytes() <= c.NextGC {
		return false
	}
	c.Collect(roots)
	return true
}

// Collect runs one full mark-and-sweep cycle unconditionally.
func (c *Collector) Collect(roots Roots) {
	before := c.alloc.TakenBytes()
	c.mark(roots)
	freed := c.sweep()
	after := c.alloc.TakenBytes()
	c.NextGC = after * GrowFactor
	if c.NextGC == 0 {
		c.NextGC = c.alloc.TotalBytes()
	}

	c.Log.Debug().
		Str("before", humanize.Bytes(before)).
		Str("after", humanize.Bytes(after)).
		Int("freed_objects", freed).
		Str("next_gc", humanize.Bytes(c.NextGC)).
		Msg("gc: collection complete")
}

func (c *Collector) mark(roots Roots) {
	var worklist []*object.Object

	pushObj := func(obj *object.Object) {
		if obj == nil || obj.GCByte == object.GCBlack {
			return
		}
		obj.GCByte = object.GCBlack
		worklist = append(worklist, obj)
	}
	pushVal := func(v object.Value) {
		if v.Kind == object.KindObject {
			pushObj(v.Obj)
		}
	}

	for _, c := range roots.Constants {
		pushObj(c)
	}
	for _, v := range roots.Stack {
		pushVal(v)
	}
	if roots.Globals != nil {
		roots.Globals.Each(func(k, v object.Value) {
			pushVal(k)
			pushVal(v)
		})
	}
	for _, locals := range roots.Frames {
		for _, v := range locals {
			pushVal(v)
		}
	}

	for len(worklist) > 0 {
		obj := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		c.markChildren(obj, pushObj, pushVal)
	}
}

func (c *Collector) markChildren(obj *object.Object, pushObj func(*object.Object), pushVal func(object.Value)) {
	switch obj.Kind {
	case object.KindString, object.KindNative:
		// no object-typed children
	case object.KindFunction:
		// FunctionData holds only a name and bytecode; neither is a
		// traced reference (the name is a plain Go string, the chunk is
		// not itself heap-tracked).
	case object.KindClass:
		obj.Cls.Methods.Each(func(k, v object.Value) {
			pushVal(k)
			pushVal(v)
		})
	case object.KindInstance:
		pushObj(obj.Inst.Class)
		obj.Inst.Members.Each(func(k, v object.Value) {
			pushVal(k)
			pushVal(v)
		})
	}
}

// sweep walks the intrusive live-objects list, unlinking and freeing
// every node left white (unmarked) by the mark phase, and resets the
// survivors back to white for the next cycle. Returns the number of
// objects freed.
func (c *Collector) sweep() int {
	freed := 0
	var prev *object.Object
	cur := c.Head
	for cur != nil {
		next := cur.Next
		if cur.GCByte != object.GCBlack {
			if prev == nil {
				c.Head = next
			} else {
				prev.Next = next
			}
			if cur.Handle != 0 {
				c.alloc.Free(heap.Handle(cur.Handle))
			}
			freed++
		} else {
			cur.GCByte = object.GCWhite
			prev = cur
		}
		cur = next
	}
	return freed
}

// Allocate reserves size bytes for a new object, running a collection
// first if the configured threshold (or stress mode) calls for one, and
// retrying once after a forced collection if the pool was simply full.
// The VM calls this before registering a new object via Track.
func (c *Collector) Allocate(size uint64, roots Roots) (heap.Handle, bool) {
	c.MaybeCollect(roots)
	h, ok := c.alloc.Alloc(size)
	if ok {
		return h, true
	}
	c.Collect(roots)
	return c.alloc.Alloc(size)
}
