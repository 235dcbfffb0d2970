package bytecode

import (
	"fmt"
	"strings"
)

// Instruction is one decoded opcode with its operands normalized.
//
// The short forms (iload_2, iconst_m1, ...) keep their own Op but have their
// implicit operand filled in, so the interpreter can handle iload and
// iload_2 with the same code path.
type Instruction struct {
	Op Opcode

	// Index is a local-variable slot or a constant-pool index.
	Index uint16

	// Value is an immediate operand: the pushed constant for bipush, sipush
	// and the *const_N forms, the increment for iinc, the array type for
	// newarray, the dimension count for multianewarray and the argument
	// count for invokeinterface.
	Value int32

	// Target is the absolute instruction index of a branch destination.
	Target int

	// Offset is the byte offset of this instruction in the raw code.
	Offset int

	// Wide is set when the instruction was decoded from a wide prefix.
	Wide bool
}

// String renders the instruction in disassembly form without its index.
func (in Instruction) String() string {
	name := in.Op.Name()
	if in.Wide {
		name = "wide " + name
	}
	switch {
	case in.Op.IsBranch():
		return fmt.Sprintf("%-16s -> %04d", name, in.Target)
	case in.Op == OpIinc:
		return fmt.Sprintf("%-16s %d, %d", name, in.Index, in.Value)
	case in.Op == OpBipush, in.Op == OpSipush, in.Op == OpNewarray:
		return fmt.Sprintf("%-16s %d", name, in.Value)
	case in.Op == OpInvokeinterface, in.Op == OpMultianewarray:
		return fmt.Sprintf("%-16s #%d, %d", name, in.Index, in.Value)
	case hasLocalOperand(in.Op):
		return fmt.Sprintf("%-16s %d", name, in.Index)
	case hasPoolOperand(in.Op):
		return fmt.Sprintf("%-16s #%d", name, in.Index)
	}
	return name
}

func hasLocalOperand(op Opcode) bool {
	return (op >= OpIload && op <= OpAload) || (op >= OpIstore && op <= OpAstore) || op == OpRet
}

func hasPoolOperand(op Opcode) bool {
	switch op {
	case OpLdc, OpLdcW, OpLdc2W,
		OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokedynamic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		return true
	}
	return false
}

// Disassemble returns a human-readable listing of a decoded method body.
func Disassemble(code []Instruction) string {
	var sb strings.Builder
	for i, in := range code {
		fmt.Fprintf(&sb, "%04d  %s\n", i, in)
	}
	return sb.String()
}
