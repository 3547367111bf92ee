package object

// Table is an open-addressed, linear-probing hash table keyed and valued
// by Value, with power-of-two capacity and a 0.75 max load factor.
//
// Empty buckets are marked by a key with Kind == KindNone. Deleted
// buckets (tombstones) keep Key == None but set Val to a non-None
// sentinel, distinguishing "never used" from "used then removed" so probe
// sequences don't stop early on a deleted slot.
type Table struct {
	buckets []entry
	count   int // live entries, excludes tombstones
	used    int // live entries + tombstones, drives the 0.75 growth check
}

type entry struct {
	Key Value
	Val Value
}

const initialCapacity = 8
const maxLoadFactor = 0.75

var tombstoneVal = Value{Kind: KindBool, Bool: true}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Count returns the number of live key/value pairs.
func (t *Table) Count() int { return t.count }

func isTombstone(e entry) bool {
	return e.Key.Kind == KindNone && e.Val.Kind != KindNone
}

func isEmpty(e entry) bool {
	return e.Key.Kind == KindNone && e.Val.Kind == KindNone
}

// findEntry locates the bucket for key: either the bucket already holding
// it, or the first tombstone/empty bucket a probe sequence for key would
// encounter (so callers can reuse it on insert).
func findEntry(buckets []entry, key Value) int {
	capacity := uint32(len(buckets))
	idx := Hash(key) & (capacity - 1)
	var tombstone = -1
	for {
		e := buckets[idx]
		if isEmpty(e) {
			if tombstone != -1 {
				return tombstone
			}
			return int(idx)
		}
		if isTombstone(e) {
			if tombstone == -1 {
				tombstone = int(idx)
			}
		} else if Equal(e.Key, key) {
			return int(idx)
		}
		idx = (idx + 1) & (capacity - 1)
	}
}

// newBuckets returns n buckets, each marked empty (None key, None value).
func newBuckets(n int) []entry {
	buckets := make([]entry, n)
	for i := range buckets {
		buckets[i] = entry{Key: None, Val: None}
	}
	return buckets
}

func (t *Table) grow(newCapacity int) {
	newBuckets := newBuckets(newCapacity)
	t.used = 0
	for _, e := range t.buckets {
		if e.Key.Kind == KindNone {
			continue // skip empty and tombstone slots, discarding tombstones
		}
		idx := findEntry(newBuckets, e.Key)
		newBuckets[idx] = entry{Key: e.Key, Val: e.Val}
		t.used++
	}
	t.buckets = newBuckets
}

func (t *Table) ensureCapacity() {
	if len(t.buckets) == 0 {
		t.buckets = newBuckets(initialCapacity)
		return
	}
	if float64(t.used+1) > float64(len(t.buckets))*maxLoadFactor {
		t.grow(len(t.buckets) * 2)
	}
}

// Set inserts or overwrites key's value, returning true if key was not
// already present.
func (t *Table) Set(key, val Value) bool {
	t.ensureCapacity()
	idx := findEntry(t.buckets, key)
	e := &t.buckets[idx]
	wasEmpty := isEmpty(*e)
	isNew := wasEmpty || isTombstone(*e)
	if wasEmpty {
		t.used++
	}
	e.Key = key
	e.Val = val
	if isNew {
		t.count++
	}
	return isNew
}

// Get looks up key, returning its value and whether it was found.
func (t *Table) Get(key Value) (Value, bool) {
	if len(t.buckets) == 0 {
		return None, false
	}
	idx := findEntry(t.buckets, key)
	e := t.buckets[idx]
	if isEmpty(e) || isTombstone(e) {
		return None, false
	}
	return e.Val, true
}

// Delete removes key if present, leaving a tombstone, and reports whether
// it was found.
func (t *Table) Delete(key Value) bool {
	if len(t.buckets) == 0 {
		return false
	}
	idx := findEntry(t.buckets, key)
	e := &t.buckets[idx]
	if isEmpty(*e) || isTombstone(*e) {
		return false
	}
	e.Key = None
	e.Val = tombstoneVal
	t.count--
	return true
}

// Each calls fn for every live key/value pair, in bucket order. Order is
// not stable across inserts/deletes/growth and must not be relied on by
// callers beyond a single unmutated snapshot.
func (t *Table) Each(fn func(key, val Value)) {
	for _, e := range t.buckets {
		if e.Key.Kind == KindNone {
			continue
		}
		fn(e.Key, e.Val)
	}
}
