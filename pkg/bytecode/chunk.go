package bytecode

import "encoding/binary"

// Loc is a source span attached to one instruction: byte offsets [Begin,End]
// into the original source text. Used only for fatal-error reporting; a
// Chunk with no attached source (e.g. loaded from a .cb file with no
// --source flag) still carries these, they're just not rendered against
// source text.
type Loc struct {
	Begin uint64
	End   uint64
}

// Chunk is a bytecode byte buffer paired with a parallel per-instruction
// source-location table. There is exactly one Loc entry per instruction,
// not per byte; mapping a byte offset to its Loc means counting whole
// instructions from offset 0 using Opcode.Size.
type Chunk struct {
	Code []byte
	Locs []Loc
}

// NewChunk returns an empty chunk ready for appending.
func NewChunk() *Chunk {
	return &Chunk{}
}

// Write appends one fully-encoded instruction (opcode + little-endian
// operand bytes, sized per op.Size()) along with its source location.
func (c *Chunk) Write(op Opcode, operand uint64, loc Loc) {
	c.Code = append(c.Code, byte(op))
	switch op.Size() {
	case 1:
		// no operand bytes
	case 2:
		c.Code = append(c.Code, byte(operand))
	case 3:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(operand))
		c.Code = append(c.Code, buf[:]...)
	case 5:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(operand))
		c.Code = append(c.Code, buf[:]...)
	case 6:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(operand>>8))
		c.Code = append(c.Code, buf[:]...)
		c.Code = append(c.Code, byte(operand))
	default:
		panic("bytecode: unsized opcode in Write")
	}
	c.Locs = append(c.Locs, loc)
}

// Len returns the number of instructions (not bytes) in the chunk.
func (c *Chunk) Len() int {
	return len(c.Locs)
}

// PatchOperand overwrites the operand bytes of the instruction starting at
// byte offset ip. Used by the compiler to backpatch forward jump targets
// once they become known.
func (c *Chunk) PatchOperand(ip int, operand uint64) {
	op := Opcode(c.Code[ip])
	switch op.Size() {
	case 5:
		binary.LittleEndian.PutUint32(c.Code[ip+1:ip+5], uint32(operand))
	case 3:
		binary.LittleEndian.PutUint16(c.Code[ip+1:ip+3], uint16(operand))
	default:
		panic("bytecode: PatchOperand on opcode with no 16/32-bit operand")
	}
}

// ReadOperand decodes the operand of the instruction whose opcode byte sits
// at ip, returning it widened to uint64 and the instruction's total size.
func (c *Chunk) ReadOperand(ip int) (operand uint64, size int) {
	op := Opcode(c.Code[ip])
	size = op.Size()
	switch size {
	case 1:
		return 0, 1
	case 2:
		return uint64(c.Code[ip+1]), 2
	case 3:
		return uint64(binary.LittleEndian.Uint16(c.Code[ip+1 : ip+3])), 3
	case 5:
		return uint64(binary.LittleEndian.Uint32(c.Code[ip+1 : ip+5])), 5
	case 6:
		sel := uint64(binary.LittleEndian.Uint32(c.Code[ip+1 : ip+5]))
		argc := uint64(c.Code[ip+5])
		return (sel << 8) | argc, 6
	default:
		return 0, 0
	}
}

// LocAtOffset returns the source location of the instruction starting at
// byte offset, computed by counting instructions from 0.
func (c *Chunk) LocAtOffset(offset int) Loc {
	idx := c.InstructionIndexAtOffset(offset)
	if idx < 0 || idx >= len(c.Locs) {
		return Loc{}
	}
	return c.Locs[idx]
}

// InstructionIndexAtOffset walks the chunk from byte 0, counting whole
// instructions, and returns the index of the instruction that begins at
// the given byte offset (or -1 if offset doesn't align with an
// instruction boundary).
func (c *Chunk) InstructionIndexAtOffset(offset int) int {
	idx := 0
	for ip := 0; ip < len(c.Code); {
		if ip == offset {
			return idx
		}
		op := Opcode(c.Code[ip])
		size := op.Size()
		if size == 0 {
			return -1
		}
		ip += size
		idx++
	}
	if offset == len(c.Code) {
		return idx
	}
	return -1
}
