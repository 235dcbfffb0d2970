package bytecode

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode table
// ---------------------------------------------------------------------------

func TestOpcodeSizes(t *testing.T) {
	tests := []struct {
		op   Opcode
		size int
	}{
		{OpNop, 1},
		{OpIconstM1, 1},
		{OpBipush, 2},
		{OpSipush, 3},
		{OpLdc, 2},
		{OpLdcW, 3},
		{OpLdc2W, 3},
		{OpIload, 2},
		{OpAload3, 1},
		{OpIinc, 3},
		{OpGoto, 3},
		{OpIfnull, 3},
		{OpIfnonnull, 3},
		{OpGotoW, 5},
		{OpInvokeinterface, 5},
		{OpInvokedynamic, 5},
		{OpMultianewarray, 4},
		{OpReturn, 1},
	}
	for _, tt := range tests {
		if got := RawSize([]byte{byte(tt.op), 0, 0, 0, 0, 0}); got != tt.size {
			t.Errorf("RawSize(%s) = %d, want %d", tt.op, got, tt.size)
		}
	}
}

func TestRawSizeWide(t *testing.T) {
	if got := RawSize([]byte{byte(OpWide), byte(OpIload), 0, 1}); got != 4 {
		t.Errorf("wide iload size = %d, want 4", got)
	}
	if got := RawSize([]byte{byte(OpWide), byte(OpIinc), 0, 1, 0, 5}); got != 6 {
		t.Errorf("wide iinc size = %d, want 6", got)
	}
	if got := RawSize([]byte{byte(OpWide), byte(OpIadd)}); got != 0 {
		t.Errorf("wide iadd size = %d, want 0", got)
	}
	if got := RawSize(nil); got != 0 {
		t.Errorf("empty size = %d, want 0", got)
	}
}

func TestOpcodeNames(t *testing.T) {
	if OpIfIcmpge.Name() != "if_icmpge" {
		t.Errorf("name = %q, want if_icmpge", OpIfIcmpge.Name())
	}
	if Opcode(0xcb).Valid() {
		t.Error("0xcb should not be valid")
	}
	if !strings.HasPrefix(Opcode(0xcb).Name(), "UNKNOWN") {
		t.Errorf("unknown name = %q", Opcode(0xcb).Name())
	}
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

func TestDecodeNormalizesShortForms(t *testing.T) {
	code := []byte{
		byte(OpIconstM1),
		byte(OpIconst5),
		byte(OpBipush), 0xfe,
		byte(OpSipush), 0x01, 0x00,
		byte(OpIload2),
		byte(OpAstore3),
		byte(OpIinc), 4, 0xff,
		byte(OpReturn),
	}
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ins) != 8 {
		t.Fatalf("len = %d, want 8", len(ins))
	}
	want := []Instruction{
		{Op: OpIconstM1, Value: -1, Offset: 0},
		{Op: OpIconst5, Value: 5, Offset: 1},
		{Op: OpBipush, Value: -2, Offset: 2},
		{Op: OpSipush, Value: 256, Offset: 4},
		{Op: OpIload2, Index: 2, Offset: 7},
		{Op: OpAstore3, Index: 3, Offset: 8},
		{Op: OpIinc, Index: 4, Value: -1, Offset: 9},
		{Op: OpReturn, Offset: 12},
	}
	for i := range want {
		if ins[i] != want[i] {
			t.Errorf("ins[%d] = %+v, want %+v", i, ins[i], want[i])
		}
	}
}

func TestDecodeResolvesBranches(t *testing.T) {
	// 0: iconst_0      (idx 0)
	// 1: istore_1      (idx 1)
	// 2: iload_1       (idx 2)  <- loop head
	// 3: bipush 10     (idx 3)
	// 5: if_icmpge +9  (idx 4)  -> byte 14 (idx 7)
	// 8: iinc 1, 1     (idx 5)
	// 11: goto -9      (idx 6)  -> byte 2 (idx 2)
	// 14: return       (idx 7)
	code := []byte{
		byte(OpIconst0),
		byte(OpIstore1),
		byte(OpIload1),
		byte(OpBipush), 10,
		byte(OpIfIcmpge), 0x00, 0x09,
		byte(OpIinc), 1, 1,
		byte(OpGoto), 0xff, 0xf7,
		byte(OpReturn),
	}
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ins[4].Target != 7 {
		t.Errorf("if_icmpge target = %d, want 7", ins[4].Target)
	}
	if ins[6].Target != 2 {
		t.Errorf("goto target = %d, want 2", ins[6].Target)
	}
}

func TestDecodeGotoW(t *testing.T) {
	code := []byte{
		byte(OpGotoW), 0, 0, 0, 5,
		byte(OpReturn),
	}
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ins[0].Target != 1 {
		t.Errorf("target = %d, want 1", ins[0].Target)
	}
}

func TestDecodeWide(t *testing.T) {
	code := []byte{
		byte(OpWide), byte(OpIload), 0x01, 0x02,
		byte(OpWide), byte(OpIinc), 0x01, 0x02, 0xff, 0xfe,
		byte(OpReturn),
	}
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ins) != 3 {
		t.Fatalf("len = %d, want 3", len(ins))
	}
	if ins[0].Op != OpIload || !ins[0].Wide || ins[0].Index != 0x0102 {
		t.Errorf("wide iload = %+v", ins[0])
	}
	if ins[1].Op != OpIinc || ins[1].Index != 0x0102 || ins[1].Value != -2 {
		t.Errorf("wide iinc = %+v", ins[1])
	}
}

func TestDecodeInvokeinterface(t *testing.T) {
	code := []byte{byte(OpInvokeinterface), 0x00, 0x07, 2, 0, byte(OpReturn)}
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ins[0].Index != 7 || ins[0].Value != 2 {
		t.Errorf("invokeinterface = %+v", ins[0])
	}
}

// ---------------------------------------------------------------------------
// Decode errors
// ---------------------------------------------------------------------------

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		want   error
		offset int
	}{
		{"unknown opcode", []byte{byte(OpNop), 0xcb}, ErrInvalidOpcode, 1},
		{"reserved opcode", []byte{byte(OpBreakpoint)}, ErrInvalidOpcode, 0},
		{"tableswitch", []byte{byte(OpIconst0), byte(OpTableswitch), 0, 0}, ErrUnsupportedOpcode, 1},
		{"lookupswitch", []byte{byte(OpLookupswitch)}, ErrUnsupportedOpcode, 0},
		{"truncated sipush", []byte{byte(OpSipush), 0}, ErrTruncated, 0},
		{"bad wide", []byte{byte(OpWide), byte(OpIadd)}, ErrInvalidOpcode, 1},
		{"branch mid-instruction", []byte{byte(OpGoto), 0, 4, byte(OpSipush), 0, 1}, ErrInvalidCode, 0},
		{"branch past end", []byte{byte(OpGoto), 0, 9, byte(OpReturn)}, ErrInvalidCode, 0},
		{"branch before start", []byte{byte(OpNop), byte(OpGoto), 0xff, 0xf0}, ErrInvalidCode, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.code)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err %T is not a *DecodeError", err)
			}
			if de.Offset != tt.offset {
				t.Errorf("offset = %d, want %d", de.Offset, tt.offset)
			}
		})
	}
}

func TestDecodeErrorReportsOpcode(t *testing.T) {
	_, err := Decode([]byte{0xee})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v", err)
	}
	if de.Op != 0xee {
		t.Errorf("op = %#x, want 0xee", byte(de.Op))
	}
}

func TestDecodeErrorNamesWidenedOpcode(t *testing.T) {
	_, err := Decode([]byte{byte(OpNop), byte(OpWide), byte(OpIadd)})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, ErrInvalidOpcode) {
		t.Errorf("err = %v, want %v", err, ErrInvalidOpcode)
	}
	if de.Op != OpIadd || de.Offset != 2 {
		t.Errorf("op %s at %d, want %s at 2", de.Op, de.Offset, OpIadd)
	}
}

// ---------------------------------------------------------------------------
// Offset table
// ---------------------------------------------------------------------------

func TestBoundariesMatchDecode(t *testing.T) {
	code := []byte{
		byte(OpLdc2W), 0, 3,
		byte(OpLstore1),
		byte(OpGetstatic), 0, 9,
		byte(OpLload1),
		byte(OpInvokevirtual), 0, 12,
		byte(OpReturn),
	}
	table, err := Boundaries(code)
	if err != nil {
		t.Fatalf("Boundaries: %v", err)
	}
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if table.Len() != len(ins) {
		t.Fatalf("table.Len() = %d, decoded %d", table.Len(), len(ins))
	}
	for i, in := range ins {
		off, ok := table.Offset(i)
		if !ok || off != in.Offset {
			t.Errorf("Offset(%d) = %d, %v; want %d", i, off, ok, in.Offset)
		}
		idx, ok := table.Index(in.Offset)
		if !ok || idx != i {
			t.Errorf("Index(%d) = %d, %v; want %d", in.Offset, idx, ok, i)
		}
	}
	if _, ok := table.Index(1); ok {
		t.Error("Index(1) should not be a boundary")
	}
}

func TestEmptyCode(t *testing.T) {
	ins, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if len(ins) != 0 {
		t.Errorf("len = %d, want 0", len(ins))
	}
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

func TestDisassemble(t *testing.T) {
	code := []byte{
		byte(OpIconst0),
		byte(OpIfeq), 0, 4,
		byte(OpNop),
		byte(OpInvokestatic), 0, 2,
		byte(OpReturn),
	}
	ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := Disassemble(ins)
	for _, want := range []string{"0000  iconst_0", "-> 0003", "#2", "0004  return"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
