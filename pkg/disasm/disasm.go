// Package disasm implements the bytecode pretty-printer and the
// fatal-error source formatter used by cmd/caby. Disassembly prints the
// constant pool first, then walks every function's (and class method's)
// instructions in encoded order.
package disasm

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/Gregofi/caby/pkg/bytecode"
	"github.com/Gregofi/caby/pkg/heap"
	"github.com/Gregofi/caby/pkg/object"
)

// Disassemble writes a human-readable rendering of program's constant
// pool and every function's (or class method's) instructions to w.
func Disassemble(w io.Writer, program *object.Program) {
	fmt.Fprintln(w, "Constants Pool:")
	if len(program.Constants) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for i, c := range program.Constants {
		fmt.Fprintf(w, "  [%d] %s\n", i, formatConstant(c))
	}
	fmt.Fprintf(w, "\nEntry point: %d\n", program.EntryPoint)

	for i, c := range program.Constants {
		switch c.Kind {
		case object.KindFunction:
			fmt.Fprintf(w, "\n== function %s (constant %d) ==\n", c.Fn.Name, i)
			disassembleChunk(w, c.Fn.Chunk)
		case object.KindClass:
			fmt.Fprintf(w, "\n== class %s (constant %d) ==\n", c.Cls.Name, i)
			c.Cls.Methods.Each(func(_, v object.Value) {
				if !object.IsObjectOfKind(v, object.KindFunction) {
					return
				}
				fmt.Fprintf(w, "-- method %s --\n", v.Obj.Fn.Name)
				disassembleChunk(w, v.Obj.Fn.Chunk)
			})
		}
	}
}

func formatConstant(c *object.Object) string {
	switch c.Kind {
	case object.KindString:
		return fmt.Sprintf("string: %q", string(c.Str.Bytes))
	case object.KindFunction:
		return fmt.Sprintf("function: %s (arity=%d, locals=%d, %d bytes)",
			c.Fn.Name, c.Fn.Arity, c.Fn.LocalsMax, len(c.Fn.Chunk.Code))
	case object.KindClass:
		return fmt.Sprintf("class: %s (%d methods)", c.Cls.Name, c.Cls.Methods.Count())
	case object.KindDoubleConst:
		return fmt.Sprintf("double: %f", c.Dbl)
	default:
		return fmt.Sprintf("unknown: %s", c.Kind)
	}
}

func disassembleChunk(w io.Writer, chunk *bytecode.Chunk) {
	opName := color.New(color.FgCyan).SprintFunc()
	for ip := 0; ip < len(chunk.Code); {
		op := bytecode.Opcode(chunk.Code[ip])
		operand, size := chunk.ReadOperand(ip)
		fmt.Fprintf(w, "  %4d: %-20s", ip, opName(op.String()))
		switch op {
		case bytecode.OpDispatchMethod:
			fmt.Fprintf(w, " name_idx=%d argc=%d", operand>>8, operand&0xff)
		default:
			if op.Size() > 1 {
				fmt.Fprintf(w, " %d", operand)
			}
		}
		fmt.Fprintln(w)
		ip += size
	}
}

// HeapSummary renders a short "taken / total" byte summary of alloc's
// budget, e.g. for the disassemble command's footer.
func HeapSummary(alloc *heap.Allocator) string {
	return fmt.Sprintf("%s / %s", humanize.Bytes(alloc.TakenBytes()), humanize.Bytes(alloc.TotalBytes()))
}
