// Package heap implements the fixed-capacity block allocator backing the
// Caby object heap.
//
// The pool is modeled as a singly-linked list of variable-sized blocks in
// address order, each described by a small header {offset, length, taken,
// next}. Go has no raw pointer arithmetic, so "address order" is an
// ascending-offset invariant over header descriptors rather than literal
// pointers into a byte buffer. Object payloads themselves live on Go's
// own garbage-collected heap; this allocator gives the tracing GC in
// pkg/gc a real, testable byte budget to watch.
package heap

import "fmt"

// MinSplit is the smallest remainder (besides header overhead) worth
// splitting off into its own free block.
const MinSplit = 32

// headerOverhead is the per-block bookkeeping cost charged against
// TotalBytes.
const headerOverhead = 24

// Handle identifies a live allocation. The zero Handle is never valid.
type Handle uint64

type block struct {
	offset uint64
	length uint64
	taken  bool
	next   *block
}

// Allocator is a first-fit, splitting, forward-coalescing block pool.
type Allocator struct {
	head       *block
	byHandle   map[Handle]*block
	nextHandle Handle
	takenBytes uint64
	totalBytes uint64
}

// New creates an allocator over a pool of the given total capacity. The
// initial free block's length is the capacity minus its own header, so
// the sum of block lengths plus per-header overhead always equals
// TotalBytes.
func New(size uint64) *Allocator {
	a := &Allocator{
		byHandle: make(map[Handle]*block),
	}
	length := uint64(0)
	if size > headerOverhead {
		length = size - headerOverhead
	}
	a.head = &block{offset: 0, length: length}
	a.totalBytes = size
	return a
}

// TakenBytes returns the number of bytes currently allocated.
func (a *Allocator) TakenBytes() uint64 { return a.takenBytes }

// TotalBytes returns the pool's total capacity.
func (a *Allocator) TotalBytes() uint64 { return a.totalBytes }

// Alloc reserves size bytes, splitting the chosen free block if the
// remainder would hold at least MinSplit payload bytes. Returns ok=false
// (never panics) if no block fits.
func (a *Allocator) Alloc(size uint64) (Handle, bool) {
	if size < MinSplit {
		size = MinSplit
	}

	for b := a.head; b != nil; b = b.next {
		if b.taken || b.length < size {
			continue
		}

		b.taken = true

		// The split-off remainder pays for its own header, mirroring the
		// coalesce in Free which reclaims that header back into length.
		if b.length-size >= MinSplit+headerOverhead {
			newBlock := &block{
				offset: b.offset + headerOverhead + size,
				length: b.length - headerOverhead - size,
				next:   b.next,
			}
			b.length = size
			b.next = newBlock
		}

		a.takenBytes += b.length
		a.nextHandle++
		h := a.nextHandle
		a.byHandle[h] = b
		return h, true
	}

	return 0, false
}

// Free releases a previously allocated handle and coalesces forward with
// any immediately-following free block(s). Coalescing is forward-only;
// a free block never merges into its predecessor.
func (a *Allocator) Free(h Handle) {
	b, ok := a.byHandle[h]
	if !ok {
		return
	}
	delete(a.byHandle, h)

	a.takenBytes -= b.length
	b.taken = false

	for b.next != nil && !b.next.taken {
		b.length += headerOverhead + b.next.length
		b.next = b.next.next
	}
}

// Exhausted reports whether no free block currently fits the given size
// (used to decide whether a forced GC cycle stands a chance of freeing
// enough to satisfy a request). Read-only; never mutates the pool.
func (a *Allocator) Exhausted(size uint64) bool {
	if size < MinSplit {
		size = MinSplit
	}
	for b := a.head; b != nil; b = b.next {
		if !b.taken && b.length >= size {
			return false
		}
	}
	return true
}

// String renders a short debug summary, e.g. for disassembler heap reports.
func (a *Allocator) String() string {
	return fmt.Sprintf("%d/%d bytes taken", a.takenBytes, a.totalBytes)
}
