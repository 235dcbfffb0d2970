package bytecode

import "fmt"

// Opcode is a single JVM instruction byte.
type Opcode byte

// Constants
const (
	OpNop        Opcode = 0x00
	OpAconstNull Opcode = 0x01
	OpIconstM1   Opcode = 0x02
	OpIconst0    Opcode = 0x03
	OpIconst1    Opcode = 0x04
	OpIconst2    Opcode = 0x05
	OpIconst3    Opcode = 0x06
	OpIconst4    Opcode = 0x07
	OpIconst5    Opcode = 0x08
	OpLconst0    Opcode = 0x09
	OpLconst1    Opcode = 0x0a
	OpFconst0    Opcode = 0x0b
	OpFconst1    Opcode = 0x0c
	OpFconst2    Opcode = 0x0d
	OpDconst0    Opcode = 0x0e
	OpDconst1    Opcode = 0x0f
	OpBipush     Opcode = 0x10
	OpSipush     Opcode = 0x11
	OpLdc        Opcode = 0x12
	OpLdcW       Opcode = 0x13
	OpLdc2W      Opcode = 0x14
)

// Loads
const (
	OpIload  Opcode = 0x15
	OpLload  Opcode = 0x16
	OpFload  Opcode = 0x17
	OpDload  Opcode = 0x18
	OpAload  Opcode = 0x19
	OpIload0 Opcode = 0x1a
	OpIload1 Opcode = 0x1b
	OpIload2 Opcode = 0x1c
	OpIload3 Opcode = 0x1d
	OpLload0 Opcode = 0x1e
	OpLload1 Opcode = 0x1f
	OpLload2 Opcode = 0x20
	OpLload3 Opcode = 0x21
	OpFload0 Opcode = 0x22
	OpFload1 Opcode = 0x23
	OpFload2 Opcode = 0x24
	OpFload3 Opcode = 0x25
	OpDload0 Opcode = 0x26
	OpDload1 Opcode = 0x27
	OpDload2 Opcode = 0x28
	OpDload3 Opcode = 0x29
	OpAload0 Opcode = 0x2a
	OpAload1 Opcode = 0x2b
	OpAload2 Opcode = 0x2c
	OpAload3 Opcode = 0x2d
	OpIaload Opcode = 0x2e
	OpLaload Opcode = 0x2f
	OpFaload Opcode = 0x30
	OpDaload Opcode = 0x31
	OpAaload Opcode = 0x32
	OpBaload Opcode = 0x33
	OpCaload Opcode = 0x34
	OpSaload Opcode = 0x35
)

// Stores
const (
	OpIstore  Opcode = 0x36
	OpLstore  Opcode = 0x37
	OpFstore  Opcode = 0x38
	OpDstore  Opcode = 0x39
	OpAstore  Opcode = 0x3a
	OpIstore0 Opcode = 0x3b
	OpIstore1 Opcode = 0x3c
	OpIstore2 Opcode = 0x3d
	OpIstore3 Opcode = 0x3e
	OpLstore0 Opcode = 0x3f
	OpLstore1 Opcode = 0x40
	OpLstore2 Opcode = 0x41
	OpLstore3 Opcode = 0x42
	OpFstore0 Opcode = 0x43
	OpFstore1 Opcode = 0x44
	OpFstore2 Opcode = 0x45
	OpFstore3 Opcode = 0x46
	OpDstore0 Opcode = 0x47
	OpDstore1 Opcode = 0x48
	OpDstore2 Opcode = 0x49
	OpDstore3 Opcode = 0x4a
	OpAstore0 Opcode = 0x4b
	OpAstore1 Opcode = 0x4c
	OpAstore2 Opcode = 0x4d
	OpAstore3 Opcode = 0x4e
	OpIastore Opcode = 0x4f
	OpLastore Opcode = 0x50
	OpFastore Opcode = 0x51
	OpDastore Opcode = 0x52
	OpAastore Opcode = 0x53
	OpBastore Opcode = 0x54
	OpCastore Opcode = 0x55
	OpSastore Opcode = 0x56
)

// Stack
const (
	OpPop    Opcode = 0x57
	OpPop2   Opcode = 0x58
	OpDup    Opcode = 0x59
	OpDupX1  Opcode = 0x5a
	OpDupX2  Opcode = 0x5b
	OpDup2   Opcode = 0x5c
	OpDup2X1 Opcode = 0x5d
	OpDup2X2 Opcode = 0x5e
	OpSwap   Opcode = 0x5f
)

// Math
const (
	OpIadd  Opcode = 0x60
	OpLadd  Opcode = 0x61
	OpFadd  Opcode = 0x62
	OpDadd  Opcode = 0x63
	OpIsub  Opcode = 0x64
	OpLsub  Opcode = 0x65
	OpFsub  Opcode = 0x66
	OpDsub  Opcode = 0x67
	OpImul  Opcode = 0x68
	OpLmul  Opcode = 0x69
	OpFmul  Opcode = 0x6a
	OpDmul  Opcode = 0x6b
	OpIdiv  Opcode = 0x6c
	OpLdiv  Opcode = 0x6d
	OpFdiv  Opcode = 0x6e
	OpDdiv  Opcode = 0x6f
	OpIrem  Opcode = 0x70
	OpLrem  Opcode = 0x71
	OpFrem  Opcode = 0x72
	OpDrem  Opcode = 0x73
	OpIneg  Opcode = 0x74
	OpLneg  Opcode = 0x75
	OpFneg  Opcode = 0x76
	OpDneg  Opcode = 0x77
	OpIshl  Opcode = 0x78
	OpLshl  Opcode = 0x79
	OpIshr  Opcode = 0x7a
	OpLshr  Opcode = 0x7b
	OpIushr Opcode = 0x7c
	OpLushr Opcode = 0x7d
	OpIand  Opcode = 0x7e
	OpLand  Opcode = 0x7f
	OpIor   Opcode = 0x80
	OpLor   Opcode = 0x81
	OpIxor  Opcode = 0x82
	OpLxor  Opcode = 0x83
	OpIinc  Opcode = 0x84
)

// Conversions
const (
	OpI2l Opcode = 0x85
	OpI2f Opcode = 0x86
	OpI2d Opcode = 0x87
	OpL2i Opcode = 0x88
	OpL2f Opcode = 0x89
	OpL2d Opcode = 0x8a
	OpF2i Opcode = 0x8b
	OpF2l Opcode = 0x8c
	OpF2d Opcode = 0x8d
	OpD2i Opcode = 0x8e
	OpD2l Opcode = 0x8f
	OpD2f Opcode = 0x90
	OpI2b Opcode = 0x91
	OpI2c Opcode = 0x92
	OpI2s Opcode = 0x93
)

// Comparisons and control
const (
	OpLcmp         Opcode = 0x94
	OpFcmpl        Opcode = 0x95
	OpFcmpg        Opcode = 0x96
	OpDcmpl        Opcode = 0x97
	OpDcmpg        Opcode = 0x98
	OpIfeq         Opcode = 0x99
	OpIfne         Opcode = 0x9a
	OpIflt         Opcode = 0x9b
	OpIfge         Opcode = 0x9c
	OpIfgt         Opcode = 0x9d
	OpIfle         Opcode = 0x9e
	OpIfIcmpeq     Opcode = 0x9f
	OpIfIcmpne     Opcode = 0xa0
	OpIfIcmplt     Opcode = 0xa1
	OpIfIcmpge     Opcode = 0xa2
	OpIfIcmpgt     Opcode = 0xa3
	OpIfIcmple     Opcode = 0xa4
	OpIfAcmpeq     Opcode = 0xa5
	OpIfAcmpne     Opcode = 0xa6
	OpGoto         Opcode = 0xa7
	OpJsr          Opcode = 0xa8
	OpRet          Opcode = 0xa9
	OpTableswitch  Opcode = 0xaa
	OpLookupswitch Opcode = 0xab
	OpIreturn      Opcode = 0xac
	OpLreturn      Opcode = 0xad
	OpFreturn      Opcode = 0xae
	OpDreturn      Opcode = 0xaf
	OpAreturn      Opcode = 0xb0
	OpReturn       Opcode = 0xb1
)

// References
const (
	OpGetstatic       Opcode = 0xb2
	OpPutstatic       Opcode = 0xb3
	OpGetfield        Opcode = 0xb4
	OpPutfield        Opcode = 0xb5
	OpInvokevirtual   Opcode = 0xb6
	OpInvokespecial   Opcode = 0xb7
	OpInvokestatic    Opcode = 0xb8
	OpInvokeinterface Opcode = 0xb9
	OpInvokedynamic   Opcode = 0xba
	OpNew             Opcode = 0xbb
	OpNewarray        Opcode = 0xbc
	OpAnewarray       Opcode = 0xbd
	OpArraylength     Opcode = 0xbe
	OpAthrow          Opcode = 0xbf
	OpCheckcast       Opcode = 0xc0
	OpInstanceof      Opcode = 0xc1
	OpMonitorenter    Opcode = 0xc2
	OpMonitorexit     Opcode = 0xc3
)

// Extended and reserved
const (
	OpWide           Opcode = 0xc4
	OpMultianewarray Opcode = 0xc5
	OpIfnull         Opcode = 0xc6
	OpIfnonnull      Opcode = 0xc7
	OpGotoW          Opcode = 0xc8
	OpJsrW           Opcode = 0xc9
	OpBreakpoint     Opcode = 0xca
	OpImpdep1        Opcode = 0xfe
	OpImpdep2        Opcode = 0xff
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name string // mnemonic as written in the JVM specification
	Size int    // encoded length in bytes including the opcode; 0 = variable or invalid
}

// opcodeTable is indexed by opcode byte. Unassigned bytes have a zero entry.
var opcodeTable [256]OpcodeInfo

func def(size int, names map[Opcode]string) {
	for op, name := range names {
		opcodeTable[op] = OpcodeInfo{Name: name, Size: size}
	}
}

func init() {
	def(1, map[Opcode]string{
		OpNop: "nop", OpAconstNull: "aconst_null",
		OpIconstM1: "iconst_m1", OpIconst0: "iconst_0", OpIconst1: "iconst_1", OpIconst2: "iconst_2",
		OpIconst3: "iconst_3", OpIconst4: "iconst_4", OpIconst5: "iconst_5",
		OpLconst0: "lconst_0", OpLconst1: "lconst_1",
		OpFconst0: "fconst_0", OpFconst1: "fconst_1", OpFconst2: "fconst_2",
		OpDconst0: "dconst_0", OpDconst1: "dconst_1",

		OpIload0: "iload_0", OpIload1: "iload_1", OpIload2: "iload_2", OpIload3: "iload_3",
		OpLload0: "lload_0", OpLload1: "lload_1", OpLload2: "lload_2", OpLload3: "lload_3",
		OpFload0: "fload_0", OpFload1: "fload_1", OpFload2: "fload_2", OpFload3: "fload_3",
		OpDload0: "dload_0", OpDload1: "dload_1", OpDload2: "dload_2", OpDload3: "dload_3",
		OpAload0: "aload_0", OpAload1: "aload_1", OpAload2: "aload_2", OpAload3: "aload_3",
		OpIaload: "iaload", OpLaload: "laload", OpFaload: "faload", OpDaload: "daload",
		OpAaload: "aaload", OpBaload: "baload", OpCaload: "caload", OpSaload: "saload",

		OpIstore0: "istore_0", OpIstore1: "istore_1", OpIstore2: "istore_2", OpIstore3: "istore_3",
		OpLstore0: "lstore_0", OpLstore1: "lstore_1", OpLstore2: "lstore_2", OpLstore3: "lstore_3",
		OpFstore0: "fstore_0", OpFstore1: "fstore_1", OpFstore2: "fstore_2", OpFstore3: "fstore_3",
		OpDstore0: "dstore_0", OpDstore1: "dstore_1", OpDstore2: "dstore_2", OpDstore3: "dstore_3",
		OpAstore0: "astore_0", OpAstore1: "astore_1", OpAstore2: "astore_2", OpAstore3: "astore_3",
		OpIastore: "iastore", OpLastore: "lastore", OpFastore: "fastore", OpDastore: "dastore",
		OpAastore: "aastore", OpBastore: "bastore", OpCastore: "castore", OpSastore: "sastore",

		OpPop: "pop", OpPop2: "pop2", OpDup: "dup", OpDupX1: "dup_x1", OpDupX2: "dup_x2",
		OpDup2: "dup2", OpDup2X1: "dup2_x1", OpDup2X2: "dup2_x2", OpSwap: "swap",

		OpIadd: "iadd", OpLadd: "ladd", OpFadd: "fadd", OpDadd: "dadd",
		OpIsub: "isub", OpLsub: "lsub", OpFsub: "fsub", OpDsub: "dsub",
		OpImul: "imul", OpLmul: "lmul", OpFmul: "fmul", OpDmul: "dmul",
		OpIdiv: "idiv", OpLdiv: "ldiv", OpFdiv: "fdiv", OpDdiv: "ddiv",
		OpIrem: "irem", OpLrem: "lrem", OpFrem: "frem", OpDrem: "drem",
		OpIneg: "ineg", OpLneg: "lneg", OpFneg: "fneg", OpDneg: "dneg",
		OpIshl: "ishl", OpLshl: "lshl", OpIshr: "ishr", OpLshr: "lshr",
		OpIushr: "iushr", OpLushr: "lushr",
		OpIand: "iand", OpLand: "land", OpIor: "ior", OpLor: "lor", OpIxor: "ixor", OpLxor: "lxor",

		OpI2l: "i2l", OpI2f: "i2f", OpI2d: "i2d", OpL2i: "l2i", OpL2f: "l2f", OpL2d: "l2d",
		OpF2i: "f2i", OpF2l: "f2l", OpF2d: "f2d", OpD2i: "d2i", OpD2l: "d2l", OpD2f: "d2f",
		OpI2b: "i2b", OpI2c: "i2c", OpI2s: "i2s",

		OpLcmp: "lcmp", OpFcmpl: "fcmpl", OpFcmpg: "fcmpg", OpDcmpl: "dcmpl", OpDcmpg: "dcmpg",

		OpIreturn: "ireturn", OpLreturn: "lreturn", OpFreturn: "freturn",
		OpDreturn: "dreturn", OpAreturn: "areturn", OpReturn: "return",

		OpArraylength: "arraylength", OpAthrow: "athrow",
		OpMonitorenter: "monitorenter", OpMonitorexit: "monitorexit",

		OpBreakpoint: "breakpoint", OpImpdep1: "impdep1", OpImpdep2: "impdep2",
	})

	def(2, map[Opcode]string{
		OpBipush: "bipush", OpLdc: "ldc",
		OpIload: "iload", OpLload: "lload", OpFload: "fload", OpDload: "dload", OpAload: "aload",
		OpIstore: "istore", OpLstore: "lstore", OpFstore: "fstore", OpDstore: "dstore", OpAstore: "astore",
		OpRet: "ret", OpNewarray: "newarray",
	})

	def(3, map[Opcode]string{
		OpSipush: "sipush", OpLdcW: "ldc_w", OpLdc2W: "ldc2_w", OpIinc: "iinc",
		OpIfeq: "ifeq", OpIfne: "ifne", OpIflt: "iflt", OpIfge: "ifge", OpIfgt: "ifgt", OpIfle: "ifle",
		OpIfIcmpeq: "if_icmpeq", OpIfIcmpne: "if_icmpne", OpIfIcmplt: "if_icmplt",
		OpIfIcmpge: "if_icmpge", OpIfIcmpgt: "if_icmpgt", OpIfIcmple: "if_icmple",
		OpIfAcmpeq: "if_acmpeq", OpIfAcmpne: "if_acmpne",
		OpGoto: "goto", OpJsr: "jsr",
		OpGetstatic: "getstatic", OpPutstatic: "putstatic", OpGetfield: "getfield", OpPutfield: "putfield",
		OpInvokevirtual: "invokevirtual", OpInvokespecial: "invokespecial", OpInvokestatic: "invokestatic",
		OpNew: "new", OpAnewarray: "anewarray", OpCheckcast: "checkcast", OpInstanceof: "instanceof",
		OpIfnull: "ifnull", OpIfnonnull: "ifnonnull",
	})

	def(4, map[Opcode]string{OpMultianewarray: "multianewarray"})

	def(5, map[Opcode]string{
		OpInvokeinterface: "invokeinterface", OpInvokedynamic: "invokedynamic",
		OpGotoW: "goto_w", OpJsrW: "jsr_w",
	})

	// Variable-length forms keep a name but no fixed size.
	def(0, map[Opcode]string{
		OpTableswitch: "tableswitch", OpLookupswitch: "lookupswitch", OpWide: "wide",
	})
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	info := opcodeTable[op]
	if info.Name == "" {
		return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
	}
	return info
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// Valid reports whether op is an assigned opcode (including the reserved
// breakpoint and impdep opcodes, which never appear in class files).
func (op Opcode) Valid() bool {
	return opcodeTable[op].Name != ""
}

// IsBranch reports whether op carries a branch displacement.
func (op Opcode) IsBranch() bool {
	switch {
	case op >= OpIfeq && op <= OpJsr:
		return true
	case op == OpIfnull, op == OpIfnonnull, op == OpGotoW, op == OpJsrW:
		return true
	}
	return false
}

// IsReserved reports whether op is one of the reserved opcodes that must not
// appear in a class file.
func (op Opcode) IsReserved() bool {
	return op == OpBreakpoint || op == OpImpdep1 || op == OpImpdep2
}

// RawSize returns the encoded size in bytes of the instruction at the start of
// buf, or 0 when the opcode is invalid, variable-length but unsupported, or
// buf is empty.
func RawSize(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	op := Opcode(buf[0])
	if size := opcodeTable[op].Size; size != 0 {
		return size
	}
	if op != OpWide || len(buf) < 2 {
		return 0
	}
	switch Opcode(buf[1]) {
	case OpIinc:
		return 6
	case OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
		return 4
	}
	return 0
}
