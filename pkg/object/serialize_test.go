package object

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gregofi/caby/pkg/bytecode"
)

func TestEncodeDecodeRoundTripsSimpleFunction(t *testing.T) {
	chunk := bytecode.NewChunk()
	chunk.Write(bytecode.OpPushInt, 41, bytecode.Loc{Begin: 0, End: 2})
	chunk.Write(bytecode.OpPushInt, 1, bytecode.Loc{Begin: 3, End: 4})
	chunk.Write(bytecode.OpIAdd, 0, bytecode.Loc{Begin: 5, End: 6})
	chunk.Write(bytecode.OpReturn, 0, bytecode.Loc{Begin: 7, End: 7})

	name := NewStringObject("main")
	fn := NewFunctionObject("main", 0, 0, chunk)

	p := &Program{
		Constants:  []*Object{name, fn},
		EntryPoint: 1,
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))

	got, err := Decode(&buf)
	require.NoError(t, err)

	require.Equal(t, p.EntryPoint, got.EntryPoint)
	require.Len(t, got.Constants, 2)

	require.Equal(t, KindString, got.Constants[0].Kind)
	require.Equal(t, "main", string(got.Constants[0].Str.Bytes))

	require.Equal(t, KindFunction, got.Constants[1].Kind)
	gotFn := got.Constants[1].Fn
	require.Equal(t, "main", gotFn.Name)
	require.Equal(t, byte(0), gotFn.Arity)
	require.Equal(t, uint16(0), gotFn.LocalsMax)
	require.Equal(t, chunk.Code, gotFn.Chunk.Code)
	require.Equal(t, chunk.Locs, gotFn.Chunk.Locs)
}

func TestEncodeDecodeRoundTripsClassWithMethod(t *testing.T) {
	methodChunk := bytecode.NewChunk()
	methodChunk.Write(bytecode.OpGetLocal, 0, bytecode.Loc{Begin: 0, End: 4})
	methodChunk.Write(bytecode.OpReturn, 0, bytecode.Loc{Begin: 5, End: 5})

	className := NewStringObject("Greeter")
	methodName := NewStringObject("greet")
	method := NewFunctionObject("greet", 1, 1, methodChunk)

	class := NewClassObject("Greeter", nil)
	class.Cls.Methods.Set(FromObject(methodName), FromObject(method))

	p := &Program{
		Constants:  []*Object{className, methodName, method, class},
		EntryPoint: 0,
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, got.Constants, 4)

	gotClass := got.Constants[3]
	require.Equal(t, KindClass, gotClass.Kind)
	require.Equal(t, "Greeter", gotClass.Cls.Name)
	require.Equal(t, 1, gotClass.Cls.Methods.Count())

	v, ok := gotClass.Cls.Methods.Get(FromObject(NewStringObject("greet")))
	require.True(t, ok)
	require.True(t, IsObjectOfKind(v, KindFunction))
	require.Equal(t, byte(1), v.Obj.Fn.Arity)
	require.Equal(t, methodChunk.Code, v.Obj.Fn.Chunk.Code)
}

func TestDecodeRejectsUnknownConstantTag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeU32(&buf, 1))
	buf.WriteByte(0xFF)

	_, err := Decode(&buf)
	require.Error(t, err)
}

func TestEncodeRejectsFunctionWithoutNameString(t *testing.T) {
	chunk := bytecode.NewChunk()
	chunk.Write(bytecode.OpReturn, 0, bytecode.Loc{Begin: 0, End: 0})
	fn := NewFunctionObject("orphan", 0, 0, chunk)

	// The pool holds only the function itself, so there is no String
	// constant its name_idx could point at.
	p := &Program{Constants: []*Object{fn}, EntryPoint: 0}

	var buf bytes.Buffer
	err := Encode(&buf, p)
	require.Error(t, err, "encoding must fail before writing: no String constant named \"orphan\" exists")
}
