package object

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Gregofi/caby/pkg/bytecode"
)

// Constant-pool wire format tags.
const (
	tagFunction byte = 0x00
	tagString   byte = 0x01
	tagClass    byte = 0x02
)

// Program is a deserialized (or about-to-be-serialized) constant pool
// plus its entry point, the unit exchanged by `caby compile`/`caby
// execute`/`caby disassemble`.
type Program struct {
	Constants  []*Object
	EntryPoint uint32
}

// Encode writes p to w in the portable little-endian layout. Name
// references (FUNCTION's and CLASS's name_idx) are resolved against the
// index of the matching String constant already present in p.Constants;
// callers must ensure a function or class's name string was placed in
// the pool before the object that names it, matching the order in which
// a single-pass compiler naturally emits its string constants.
func Encode(w io.Writer, p *Program) error {
	if err := writeU32(w, uint32(len(p.Constants))); err != nil {
		return err
	}
	for _, c := range p.Constants {
		if err := encodeConstant(w, p, c); err != nil {
			return err
		}
	}
	return writeU32(w, p.EntryPoint)
}

func encodeConstant(w io.Writer, p *Program, c *Object) error {
	switch c.Kind {
	case KindString:
		if _, err := w.Write([]byte{tagString}); err != nil {
			return err
		}
		return writeStringPayload(w, c.Str)
	case KindFunction:
		if _, err := w.Write([]byte{tagFunction}); err != nil {
			return err
		}
		return writeFunctionPayload(w, p, c.Fn)
	case KindClass:
		if _, err := w.Write([]byte{tagClass}); err != nil {
			return err
		}
		return writeClassPayload(w, p, c.Cls)
	default:
		return fmt.Errorf("object: %s is not a valid top-level constant-pool entry", c.Kind)
	}
}

func writeStringPayload(w io.Writer, s *StringData) error {
	if err := writeU32(w, uint32(len(s.Bytes))); err != nil {
		return err
	}
	_, err := w.Write(s.Bytes)
	return err
}

func writeFunctionPayload(w io.Writer, p *Program, fn *FunctionData) error {
	nameIdx, err := findStringIndex(p, fn.Name)
	if err != nil {
		return err
	}
	if err := writeU32(w, nameIdx); err != nil {
		return err
	}
	if _, err := w.Write([]byte{fn.Arity}); err != nil {
		return err
	}
	if err := writeU16(w, fn.LocalsMax); err != nil {
		return err
	}
	return writeChunkBody(w, fn.Chunk)
}

// writeChunkBody emits the instruction count, then each instruction's
// encoded bytes followed by its two u64 source-location fields.
func writeChunkBody(w io.Writer, chunk *bytecode.Chunk) error {
	if err := writeU32(w, uint32(chunk.Len())); err != nil {
		return err
	}
	for ip := 0; ip < len(chunk.Code); {
		op := bytecode.Opcode(chunk.Code[ip])
		size := op.Size()
		if _, err := w.Write(chunk.Code[ip : ip+size]); err != nil {
			return err
		}
		loc := chunk.LocAtOffset(ip)
		if err := writeU64(w, loc.Begin); err != nil {
			return err
		}
		if err := writeU64(w, loc.End); err != nil {
			return err
		}
		ip += size
	}
	return nil
}

func writeClassPayload(w io.Writer, p *Program, cls *ClassData) error {
	nameIdx, err := findStringIndex(p, cls.Name)
	if err != nil {
		return err
	}
	if err := writeU32(w, nameIdx); err != nil {
		return err
	}
	if err := writeU16(w, uint16(cls.Methods.Count())); err != nil {
		return err
	}
	var writeErr error
	cls.Methods.Each(func(_, v Value) {
		if writeErr != nil || !IsObjectOfKind(v, KindFunction) {
			return
		}
		writeErr = writeFunctionPayload(w, p, v.Obj.Fn)
	})
	return writeErr
}

func findStringIndex(p *Program, s string) (uint32, error) {
	for i, c := range p.Constants {
		if c.Kind == KindString && string(c.Str.Bytes) == s {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("object: no String constant found for name %q", s)
}

// Decode reads a Program from r, reversing Encode's layout exactly.
func Decode(r io.Reader) (*Program, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	p := &Program{Constants: make([]*Object, 0, count)}
	for i := uint32(0); i < count; i++ {
		c, err := decodeConstant(r, p)
		if err != nil {
			return nil, fmt.Errorf("object: decoding constant %d: %w", i, err)
		}
		p.Constants = append(p.Constants, c)
	}
	entryPoint, err := readU32(r)
	if err != nil {
		return nil, err
	}
	p.EntryPoint = entryPoint
	return p, nil
}

func decodeConstant(r io.Reader, p *Program) (*Object, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return nil, err
	}
	switch tagBuf[0] {
	case tagString:
		s, err := readStringPayload(r)
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindString, Str: s}, nil
	case tagFunction:
		fn, err := readFunctionPayload(r, p)
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindFunction, Fn: fn}, nil
	case tagClass:
		cls, err := readClassPayload(r, p)
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindClass, Cls: cls}, nil
	default:
		return nil, fmt.Errorf("object: unknown constant-pool tag 0x%02x", tagBuf[0])
	}
}

func readStringPayload(r io.Reader) (*StringData, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return &StringData{Bytes: buf, Hash: FNV1a(buf)}, nil
}

func readFunctionPayload(r io.Reader, p *Program) (*FunctionData, error) {
	nameIdx, err := readU32(r)
	if err != nil {
		return nil, err
	}
	name, err := resolveStringIndex(p, nameIdx)
	if err != nil {
		return nil, err
	}
	var arityBuf [1]byte
	if _, err := io.ReadFull(r, arityBuf[:]); err != nil {
		return nil, err
	}
	localsMax, err := readU16(r)
	if err != nil {
		return nil, err
	}
	chunk, err := readChunkBody(r)
	if err != nil {
		return nil, err
	}
	return &FunctionData{Name: name, Arity: arityBuf[0], LocalsMax: localsMax, Chunk: chunk}, nil
}

func readChunkBody(r io.Reader) (*bytecode.Chunk, error) {
	bodyLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	chunk := bytecode.NewChunk()
	for i := uint32(0); i < bodyLen; i++ {
		var opBuf [1]byte
		if _, err := io.ReadFull(r, opBuf[:]); err != nil {
			return nil, err
		}
		op := bytecode.Opcode(opBuf[0])
		size := op.Size()
		if size == 0 {
			return nil, fmt.Errorf("object: unknown opcode 0x%02x in bytecode body", opBuf[0])
		}
		operandBytes := make([]byte, size-1)
		if size > 1 {
			if _, err := io.ReadFull(r, operandBytes); err != nil {
				return nil, err
			}
		}
		operand, err := decodeOperandBytes(op, operandBytes)
		if err != nil {
			return nil, err
		}
		begin, err := readU64(r)
		if err != nil {
			return nil, err
		}
		end, err := readU64(r)
		if err != nil {
			return nil, err
		}
		chunk.Write(op, operand, bytecode.Loc{Begin: begin, End: end})
	}
	return chunk, nil
}

func decodeOperandBytes(op bytecode.Opcode, b []byte) (uint64, error) {
	switch op.Size() {
	case 1:
		return 0, nil
	case 2:
		return uint64(b[0]), nil
	case 3:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 5:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 6:
		sel := uint64(binary.LittleEndian.Uint32(b[:4]))
		argc := uint64(b[4])
		return (sel << 8) | argc, nil
	default:
		return 0, fmt.Errorf("object: opcode %s has no decodable operand width", op)
	}
}

func readClassPayload(r io.Reader, p *Program) (*ClassData, error) {
	nameIdx, err := readU32(r)
	if err != nil {
		return nil, err
	}
	name, err := resolveStringIndex(p, nameIdx)
	if err != nil {
		return nil, err
	}
	methodCount, err := readU16(r)
	if err != nil {
		return nil, err
	}
	cls := &ClassData{Name: name, Methods: NewTable()}
	for i := uint16(0); i < methodCount; i++ {
		fn, err := readFunctionPayload(r, p)
		if err != nil {
			return nil, err
		}
		cls.Methods.Set(FromObject(NewStringObject(fn.Name)), FromObject(&Object{Kind: KindFunction, Fn: fn}))
	}
	return cls, nil
}

func resolveStringIndex(p *Program, idx uint32) (string, error) {
	if int(idx) >= len(p.Constants) {
		return "", fmt.Errorf("object: name_idx %d out of range (%d constants decoded so far)", idx, len(p.Constants))
	}
	c := p.Constants[idx]
	if c.Kind != KindString {
		return "", fmt.Errorf("object: name_idx %d does not refer to a String constant", idx)
	}
	return string(c.Str.Bytes), nil
}

func writeU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
