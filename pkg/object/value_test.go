package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFNV1aMatchesHandRolledReference(t *testing.T) {
	var h uint32 = 2166136261
	for _, b := range []byte("abc") {
		h ^= uint32(b)
		h *= 16777619
	}
	require.Equal(t, h, FNV1a([]byte("abc")))
}

func TestStringHashIsFNV1aOfBytes(t *testing.T) {
	s := NewStringObject("hello")
	require.Equal(t, FNV1a([]byte("hello")), s.Str.Hash)
}

func TestEqualStringsByContentNotIdentity(t *testing.T) {
	a := FromObject(NewStringObject("same"))
	b := FromObject(NewStringObject("same"))
	require.True(t, Equal(a, b))

	c := FromObject(NewStringObject("different"))
	require.False(t, Equal(a, c))
}

func TestEqualObjectsOfOtherKindsByIdentityOnly(t *testing.T) {
	class := NewClassObject("C", nil)
	a := FromObject(NewInstanceObject(class))
	b := FromObject(NewInstanceObject(class))
	require.False(t, Equal(a, b), "two distinct instances are never equal, even with the same class")

	require.True(t, Equal(a, a))
}

func TestEqualAcrossKindsIsFalse(t *testing.T) {
	require.False(t, Equal(Int32(1), Double(1.0)))
	require.False(t, Equal(Int32(0), Boolean(false)))
	require.False(t, Equal(None, Int32(0)))
}

func TestHashEqualValuesHashEqual(t *testing.T) {
	require.Equal(t, Hash(Int32(42)), Hash(Int32(42)))
	require.Equal(t, Hash(Double(3.5)), Hash(Double(3.5)))
	require.Equal(t, Hash(Boolean(true)), Hash(Boolean(true)))
	require.Equal(t, Hash(FromObject(NewStringObject("x"))), Hash(FromObject(NewStringObject("x"))))
}

func TestCompareOrdersIntsAndDoubles(t *testing.T) {
	cmp, ok := Compare(Int32(1), Int32(2))
	require.True(t, ok)
	require.Negative(t, cmp)

	cmp, ok = Compare(Int32(5), Int32(5))
	require.True(t, ok)
	require.Zero(t, cmp)

	cmp, ok = Compare(Double(2.5), Double(1.5))
	require.True(t, ok)
	require.Positive(t, cmp)
}

func TestCompareOrdersBoolsFalseBeforeTrue(t *testing.T) {
	cmp, ok := Compare(Boolean(false), Boolean(true))
	require.True(t, ok)
	require.Negative(t, cmp)

	cmp, ok = Compare(Boolean(true), Boolean(false))
	require.True(t, ok)
	require.Positive(t, cmp)

	cmp, ok = Compare(Boolean(true), Boolean(true))
	require.True(t, ok)
	require.Zero(t, cmp)
}

func TestCompareNoneIsOkButObjectsAreNot(t *testing.T) {
	_, ok := Compare(None, None)
	require.True(t, ok, "None/None is not an error; callers evaluate every comparison to false")

	class := NewClassObject("C", nil)
	_, ok = Compare(FromObject(NewInstanceObject(class)), FromObject(NewInstanceObject(class)))
	require.False(t, ok, "Object/Object ordering is a runtime type error")
}

func TestIsCrossType(t *testing.T) {
	require.True(t, IsCrossType(Int32(1), Double(1)))
	require.False(t, IsCrossType(Int32(1), Int32(2)))
}
