package disasm

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/Gregofi/caby/pkg/bytecode"
	"github.com/Gregofi/caby/pkg/heap"
	"github.com/Gregofi/caby/pkg/object"
)

func init() {
	// fatih/color auto-detects TTYs; tests compare plain strings.
	color.NoColor = true
}

func TestDisassembleListsConstantsAndInstructions(t *testing.T) {
	chunk := bytecode.NewChunk()
	chunk.Write(bytecode.OpPushInt, 41, bytecode.Loc{})
	chunk.Write(bytecode.OpPushInt, 1, bytecode.Loc{})
	chunk.Write(bytecode.OpIAdd, 0, bytecode.Loc{})
	chunk.Write(bytecode.OpReturn, 0, bytecode.Loc{})

	program := &object.Program{
		Constants: []*object.Object{
			object.NewStringObject("main"),
			object.NewFunctionObject("main", 0, 0, chunk),
		},
		EntryPoint: 1,
	}

	var out strings.Builder
	Disassemble(&out, program)
	text := out.String()

	require.Contains(t, text, "Constants Pool:")
	require.Contains(t, text, `string: "main"`)
	require.Contains(t, text, "function: main")
	require.Contains(t, text, "Entry point: 1")
	require.Contains(t, text, "PUSH_INT")
	require.Contains(t, text, "IADD")
	require.Contains(t, text, "RETURN")
}

func TestDisassembleRendersClassMethods(t *testing.T) {
	methodChunk := bytecode.NewChunk()
	methodChunk.Write(bytecode.OpReturn, 0, bytecode.Loc{})

	class := object.NewClassObject("Greeter", nil)
	class.Cls.Methods.Set(
		object.FromObject(object.NewStringObject("greet")),
		object.FromObject(object.NewFunctionObject("greet", 1, 1, methodChunk)),
	)

	program := &object.Program{Constants: []*object.Object{class}, EntryPoint: 0}

	var out strings.Builder
	Disassemble(&out, program)
	require.Contains(t, out.String(), "class Greeter")
	require.Contains(t, out.String(), "method greet")
}

func TestFormatFatalWithSourcePointsAtOffendingSpan(t *testing.T) {
	source := "val x = 1\nval x = 2\n"
	// The second declaration spans bytes [10,19).
	loc := bytecode.Loc{Begin: 10, End: 18}

	var out strings.Builder
	FormatFatal(&out, "test.caby", source, loc, "Variable 'x' is already defined")
	text := out.String()

	require.Contains(t, text, "test.caby:2:1: Fatal: Variable 'x' is already defined")
	require.Contains(t, text, "val x = 2")
	require.Contains(t, text, "^^^^^^^^^")
}

func TestFormatFatalWithoutSourcePrintsByteRange(t *testing.T) {
	var out strings.Builder
	FormatFatal(&out, "", "", bytecode.Loc{Begin: 4, End: 9}, "Division by zero")
	text := out.String()

	require.Contains(t, text, "[4,9]: Fatal: Division by zero")
	require.NotContains(t, text, "^")
}

func TestHeapSummaryRendersHumanBytes(t *testing.T) {
	alloc := heap.New(1 << 20)
	summary := HeapSummary(alloc)
	require.Contains(t, summary, "/")
	require.Contains(t, summary, "MB")
}
