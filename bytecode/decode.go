package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrInvalidOpcode     = errors.New("invalid opcode")
	ErrInvalidCode       = errors.New("invalid code")
	ErrTruncated         = errors.New("truncated instruction")
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
)

// DecodeError reports where in a code array decoding failed.
type DecodeError struct {
	Op     Opcode
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v at byte %d (opcode 0x%02x %s)", e.Err, e.Offset, byte(e.Op), e.Op.Name())
}

func (e *DecodeError) Unwrap() error { return e.Err }

// OffsetTable maps between byte offsets and instruction indices.
type OffsetTable struct {
	byteToIndex []int // -1 for offsets inside an instruction
	indexToByte []int
}

// Len returns the number of instructions.
func (t *OffsetTable) Len() int { return len(t.indexToByte) }

// Index returns the instruction index starting at byte offset off.
func (t *OffsetTable) Index(off int) (int, bool) {
	if off < 0 || off >= len(t.byteToIndex) {
		return 0, false
	}
	idx := t.byteToIndex[off]
	return idx, idx >= 0
}

// Offset returns the byte offset of instruction idx.
func (t *OffsetTable) Offset(idx int) (int, bool) {
	if idx < 0 || idx >= len(t.indexToByte) {
		return 0, false
	}
	return t.indexToByte[idx], true
}

// Boundaries walks code and records where every instruction begins.
func Boundaries(code []byte) (*OffsetTable, error) {
	t := &OffsetTable{byteToIndex: make([]int, len(code))}
	for i := range t.byteToIndex {
		t.byteToIndex[i] = -1
	}
	off := 0
	for off < len(code) {
		op := Opcode(code[off])
		size := RawSize(code[off:])
		if size == 0 {
			bad, at, err := classifySizeless(code[off:])
			return nil, &DecodeError{Op: bad, Offset: off + at, Err: err}
		}
		if off+size > len(code) {
			return nil, &DecodeError{Op: op, Offset: off, Err: ErrTruncated}
		}
		t.byteToIndex[off] = len(t.indexToByte)
		t.indexToByte = append(t.indexToByte, off)
		off += size
	}
	return t, nil
}

// classifySizeless explains why RawSize gave up on buf. It returns the
// offending opcode and its position in buf: for a wide prefix that is the
// byte being widened.
func classifySizeless(buf []byte) (Opcode, int, error) {
	op := Opcode(buf[0])
	switch op {
	case OpTableswitch, OpLookupswitch:
		return op, 0, ErrUnsupportedOpcode
	case OpWide:
		if len(buf) < 2 {
			return op, 0, ErrTruncated
		}
		return Opcode(buf[1]), 1, ErrInvalidOpcode
	}
	return op, 0, ErrInvalidOpcode
}

// Decode converts a raw code array into instructions. Branch displacements
// are resolved to absolute instruction indices; a displacement that does not
// land on an instruction boundary yields ErrInvalidCode.
func Decode(code []byte) ([]Instruction, error) {
	table, err := Boundaries(code)
	if err != nil {
		return nil, err
	}
	out := make([]Instruction, table.Len())
	for i, off := range table.indexToByte {
		in, err := decodeOne(code, off, table)
		if err != nil {
			return nil, err
		}
		out[i] = in
	}
	return out, nil
}

func decodeOne(code []byte, off int, table *OffsetTable) (Instruction, error) {
	op := Opcode(code[off])
	in := Instruction{Op: op, Offset: off}
	fail := func(err error) (Instruction, error) {
		return Instruction{}, &DecodeError{Op: op, Offset: off, Err: err}
	}
	u1 := func(at int) uint16 { return uint16(code[off+at]) }
	u2 := func(at int) uint16 { return binary.BigEndian.Uint16(code[off+at:]) }
	branch := func(disp int) (Instruction, error) {
		idx, ok := table.Index(off + disp)
		if !ok {
			return fail(fmt.Errorf("%w: branch to byte %d", ErrInvalidCode, off+disp))
		}
		in.Target = idx
		return in, nil
	}

	switch {
	case op.IsReserved():
		return fail(ErrInvalidOpcode)

	case op >= OpIconstM1 && op <= OpIconst5:
		in.Value = int32(op) - int32(OpIconst0)
	case op >= OpLconst0 && op <= OpLconst1:
		in.Value = int32(op - OpLconst0)
	case op >= OpFconst0 && op <= OpFconst2:
		in.Value = int32(op - OpFconst0)
	case op >= OpDconst0 && op <= OpDconst1:
		in.Value = int32(op - OpDconst0)

	case op == OpBipush:
		in.Value = int32(int8(code[off+1]))
	case op == OpSipush:
		in.Value = int32(int16(u2(1)))
	case op == OpLdc:
		in.Index = u1(1)
	case op == OpNewarray:
		in.Value = int32(code[off+1])

	case hasLocalOperand(op):
		in.Index = u1(1)
	case op >= OpIload0 && op <= OpAload3:
		in.Index = uint16(op-OpIload0) % 4
	case op >= OpIstore0 && op <= OpAstore3:
		in.Index = uint16(op-OpIstore0) % 4

	case op == OpIinc:
		in.Index = u1(1)
		in.Value = int32(int8(code[off+2]))

	case op == OpGotoW, op == OpJsrW:
		return branch(int(int32(binary.BigEndian.Uint32(code[off+1:]))))
	case op.IsBranch():
		return branch(int(int16(u2(1))))

	case op == OpInvokeinterface:
		in.Index = u2(1)
		in.Value = int32(code[off+3])
	case op == OpMultianewarray:
		in.Index = u2(1)
		in.Value = int32(code[off+3])
	case hasPoolOperand(op):
		in.Index = u2(1)

	case op == OpWide:
		in.Op = Opcode(code[off+1])
		in.Wide = true
		in.Index = u2(2)
		if in.Op == OpIinc {
			in.Value = int32(int16(u2(4)))
		}
	}
	return in, nil
}
