// Package bytecode defines the instruction set, chunk format, and wire
// encoding for Caby bytecode.
//
// A Chunk is a flat byte buffer of instructions paired with a parallel
// source-location table (one entry per instruction, not per byte). The
// virtual machine in pkg/vm walks a Chunk's bytes directly rather than
// decoding into a slice of structs first, matching the "stack machine over
// a byte buffer" design of the language this was distilled from.
//
// Instruction layout:
//
//	1-byte : RETURN, LABEL, DROP, DUP, PUSH_NONE, IADD, ISUB, IMUL, IDIV,
//	         IMOD, IAND, IOR, INEG, EQ, NEQ, ILT, ILE, IGT, IGE
//	2-byte : DROPN n, PUSH_BOOL b, PRINT n, CALL n
//	3-byte : PUSH_SHORT i16, JMP_SHORT, BRANCH_SHORT, BRANCH_FALSE_SHORT,
//	         GET_LOCAL u16, SET_LOCAL u16
//	5-byte : PUSH_INT i32, PUSH_LITERAL idx32, JMP off32, BRANCH off32,
//	         BRANCH_FALSE off32, GET_GLOBAL name32, SET_GLOBAL name32,
//	         VAL_GLOBAL name32, VAR_GLOBAL name32, NEW_OBJECT class_idx32,
//	         GET_MEMBER name32, SET_MEMBER name32
//	6-byte : DISPATCH_METHOD name32 argcount8
//
// Every multi-byte operand is little-endian. Branch/jump operands are
// absolute byte offsets within the current function's chunk, not relative
// deltas.
package bytecode

import "fmt"

// Opcode identifies a single bytecode operation.
type Opcode byte

const (
	// 1-byte opcodes.
	OpReturn Opcode = iota
	OpLabel
	OpDrop
	OpDup
	OpPushNone
	OpIAdd
	OpISub
	OpIMul
	OpIDiv
	OpIMod
	OpIAnd
	OpIOr
	OpINeg
	OpEq
	OpNeq
	OpILt
	OpILe
	OpIGt
	OpIGe

	// 2-byte opcodes.
	OpDropN
	OpPushBool
	OpPrint
	OpCall

	// 3-byte opcodes.
	OpPushShort
	OpJmpShort
	OpBranchShort
	OpBranchFalseShort
	OpGetLocal
	OpSetLocal

	// 5-byte opcodes.
	OpPushInt
	OpPushLiteral
	OpJmp
	OpBranch
	OpBranchFalse
	OpGetGlobal
	OpSetGlobal
	OpValGlobal
	OpVarGlobal
	OpNewObject
	OpGetMember
	OpSetMember

	// 6-byte opcodes.
	OpDispatchMethod

	// opBranchFalseLong is reserved in the numbering but never emitted;
	// decoding it is an unknown-opcode error.
	opBranchFalseLong
)

// Size returns the total encoded size of an instruction (opcode byte plus
// operand bytes), or 0 for an opcode with no fixed size (unknown/illegal).
func (op Opcode) Size() int {
	switch op {
	case OpReturn, OpLabel, OpDrop, OpDup, OpPushNone,
		OpIAdd, OpISub, OpIMul, OpIDiv, OpIMod, OpIAnd, OpIOr, OpINeg,
		OpEq, OpNeq, OpILt, OpILe, OpIGt, OpIGe:
		return 1
	case OpDropN, OpPushBool, OpPrint, OpCall:
		return 2
	case OpPushShort, OpJmpShort, OpBranchShort, OpBranchFalseShort,
		OpGetLocal, OpSetLocal:
		return 3
	case OpPushInt, OpPushLiteral, OpJmp, OpBranch, OpBranchFalse,
		OpGetGlobal, OpSetGlobal, OpValGlobal, OpVarGlobal,
		OpNewObject, OpGetMember, OpSetMember:
		return 5
	case OpDispatchMethod:
		return 6
	default:
		return 0
	}
}

// String renders the mnemonic used by the disassembler and error messages.
func (op Opcode) String() string {
	switch op {
	case OpReturn:
		return "RETURN"
	case OpLabel:
		return "LABEL"
	case OpDrop:
		return "DROP"
	case OpDup:
		return "DUP"
	case OpPushNone:
		return "PUSH_NONE"
	case OpIAdd:
		return "IADD"
	case OpISub:
		return "ISUB"
	case OpIMul:
		return "IMUL"
	case OpIDiv:
		return "IDIV"
	case OpIMod:
		return "IMOD"
	case OpIAnd:
		return "IAND"
	case OpIOr:
		return "IOR"
	case OpINeg:
		return "INEG"
	case OpEq:
		return "EQ"
	case OpNeq:
		return "NEQ"
	case OpILt:
		return "ILT"
	case OpILe:
		return "ILE"
	case OpIGt:
		return "IGT"
	case OpIGe:
		return "IGE"
	case OpDropN:
		return "DROPN"
	case OpPushBool:
		return "PUSH_BOOL"
	case OpPrint:
		return "PRINT"
	case OpCall:
		return "CALL"
	case OpPushShort:
		return "PUSH_SHORT"
	case OpJmpShort:
		return "JMP_SHORT"
	case OpBranchShort:
		return "BRANCH_SHORT"
	case OpBranchFalseShort:
		return "BRANCH_FALSE_SHORT"
	case OpGetLocal:
		return "GET_LOCAL"
	case OpSetLocal:
		return "SET_LOCAL"
	case OpPushInt:
		return "PUSH_INT"
	case OpPushLiteral:
		return "PUSH_LITERAL"
	case OpJmp:
		return "JMP"
	case OpBranch:
		return "BRANCH"
	case OpBranchFalse:
		return "BRANCH_FALSE"
	case OpGetGlobal:
		return "GET_GLOBAL"
	case OpSetGlobal:
		return "SET_GLOBAL"
	case OpValGlobal:
		return "VAL_GLOBAL"
	case OpVarGlobal:
		return "VAR_GLOBAL"
	case OpNewObject:
		return "NEW_OBJECT"
	case OpGetMember:
		return "GET_MEMBER"
	case OpSetMember:
		return "SET_MEMBER"
	case OpDispatchMethod:
		return "DISPATCH_METHOD"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(op))
	}
}
