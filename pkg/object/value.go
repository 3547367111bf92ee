// Package object defines Caby's tagged Value union and the heap Object
// variants (string, function, native, class, instance), along with value
// hashing, equality, and ordering.
//
// Value is a struct rather than an interface{}: a tag plus a fixed set
// of payload fields gives a sum type whose variant is inspected before
// field access, with no boxing for the Int/Bool/Double/None cases.
package object

import (
	"math"
	"unsafe"
)

// ValueKind discriminates the Value union.
type ValueKind byte

const (
	KindInt ValueKind = iota
	KindBool
	KindDouble
	KindNone
	KindObject
)

// Value is Caby's tagged, always-by-value runtime value.
type Value struct {
	Kind ValueKind
	Int  int32
	Bool bool
	Dbl  float64
	Obj  *Object
}

// None is the singleton "no value" value.
var None = Value{Kind: KindNone}

// Int32 constructs an Int value.
func Int32(v int32) Value { return Value{Kind: KindInt, Int: v} }

// Boolean constructs a Bool value.
func Boolean(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Double constructs a Double value.
func Double(v float64) Value { return Value{Kind: KindDouble, Dbl: v} }

// FromObject constructs a Value referencing obj. A KindDoubleConst
// constant-pool entry unboxes straight back into a primitive Double Value,
// since it exists only to let PUSH_LITERAL address a double by constant
// index; every other kind becomes an ordinary Object-variant value.
func FromObject(obj *Object) Value {
	if obj != nil && obj.Kind == KindDoubleConst {
		return Value{Kind: KindDouble, Dbl: obj.Dbl}
	}
	return Value{Kind: KindObject, Obj: obj}
}

// IsObjectOfKind reports whether v is an Object value of the given kind.
func IsObjectOfKind(v Value, k ObjKind) bool {
	return v.Kind == KindObject && v.Obj != nil && v.Obj.Kind == k
}

// fnvOffset and fnvPrime are the 32-bit FNV-1a constants used throughout
// Caby for both primitive-value hashing and string hashing.
const (
	fnvOffset uint32 = 2166136261
	fnvPrime  uint32 = 16777619
)

// FNV1a hashes a byte slice with the 32-bit FNV-1a algorithm.
func FNV1a(data []byte) uint32 {
	h := fnvOffset
	for _, b := range data {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h
}

// Hash returns a value's hash: FNV-1a over the raw bits for primitives,
// the string's precomputed hash for strings, and FNV-1a over the
// reference address for any other object.
func Hash(v Value) uint32 {
	switch v.Kind {
	case KindInt:
		var buf [4]byte
		buf[0] = byte(v.Int)
		buf[1] = byte(v.Int >> 8)
		buf[2] = byte(v.Int >> 16)
		buf[3] = byte(v.Int >> 24)
		return FNV1a(buf[:])
	case KindBool:
		if v.Bool {
			return FNV1a([]byte{1})
		}
		return FNV1a([]byte{0})
	case KindDouble:
		bits := math.Float64bits(v.Dbl)
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		return FNV1a(buf[:])
	case KindNone:
		return FNV1a(nil)
	case KindObject:
		if v.Obj != nil && v.Obj.Kind == KindString {
			return v.Obj.Str.Hash
		}
		addr := uintptr(unsafe.Pointer(v.Obj))
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(addr >> (8 * i))
		}
		return FNV1a(buf[:])
	default:
		return 0
	}
}

// Equal reports value equality. Equality is variant-discriminated;
// strings compare by length+hash+bytes, other objects by reference
// identity.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInt:
		return a.Int == b.Int
	case KindBool:
		return a.Bool == b.Bool
	case KindDouble:
		return a.Dbl == b.Dbl
	case KindNone:
		return true
	case KindObject:
		if a.Obj == b.Obj {
			return true
		}
		if a.Obj == nil || b.Obj == nil {
			return false
		}
		if a.Obj.Kind == KindString && b.Obj.Kind == KindString {
			s1, s2 := a.Obj.Str, b.Obj.Str
			if s1.Len() != s2.Len() || s1.Hash != s2.Hash {
				return false
			}
			return string(s1.Bytes) == string(s2.Bytes)
		}
		return false
	default:
		return false
	}
}

// Compare orders a and b for ILT/ILE/IGT/IGE. Int/Int and Double/Double
// use natural ordering; Bool/Bool orders false before true. None/None
// reports ok but carries no ordering at all: every comparison of two
// None values evaluates to false, so callers must short-circuit None
// (like cross-type pairs) rather than interpret cmp. Only Object/Object
// is unordered (ok=false), which the VM turns into a runtime type error.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.Kind != b.Kind {
		return 0, true // cross-type: caller treats as "false" for all four ops
	}
	switch a.Kind {
	case KindInt:
		switch {
		case a.Int < b.Int:
			return -1, true
		case a.Int > b.Int:
			return 1, true
		default:
			return 0, true
		}
	case KindDouble:
		switch {
		case a.Dbl < b.Dbl:
			return -1, true
		case a.Dbl > b.Dbl:
			return 1, true
		default:
			return 0, true
		}
	case KindBool:
		switch {
		case !a.Bool && b.Bool:
			return -1, true
		case a.Bool && !b.Bool:
			return 1, true
		default:
			return 0, true
		}
	case KindNone:
		return 0, true
	default:
		return 0, false
	}
}

// IsCrossType reports whether a and b have different ValueKinds, in which
// case ordering comparisons are defined to be false rather than an error.
func IsCrossType(a, b Value) bool {
	return a.Kind != b.Kind
}
