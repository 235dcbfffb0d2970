package vm

import (
	"bytes"
	"testing"

	"github.com/chazu/javelin/bytecode"
	"github.com/chazu/javelin/classfile"
)

// u16 marks a two-byte big-endian operand in asm.
type u16 uint16

// s16 encodes a signed branch displacement.
func s16(v int) u16 { return u16(uint16(int16(v))) }

// asm assembles method bytes from opcodes, one-byte operands (int) and
// two-byte operands (u16).
func asm(parts ...any) []byte {
	var out []byte
	for _, p := range parts {
		switch v := p.(type) {
		case bytecode.Opcode:
			out = append(out, byte(v))
		case int:
			out = append(out, byte(v))
		case u16:
			out = append(out, byte(v>>8), byte(v))
		default:
			panic("asm: unexpected operand")
		}
	}
	return out
}

type testRuntime struct {
	*Runtime
	out *bytes.Buffer
	err *bytes.Buffer
}

func newTestRuntime(t *testing.T, opts Options) *testRuntime {
	t.Helper()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	opts.Stdout, opts.Stderr = out, errOut
	rt, err := NewRuntime(opts)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	return &testRuntime{Runtime: rt, out: out, err: errOut}
}

func (rt *testRuntime) define(t *testing.T, b *classfile.Builder) *Class {
	t.Helper()
	c, err := rt.DefineClass(b.Bytes())
	if err != nil {
		t.Fatalf("DefineClass: %v", err)
	}
	return c
}

func (rt *testRuntime) method(t *testing.T, c *Class, name, desc string) *Method {
	t.Helper()
	m, err := c.GetMethod(name, desc)
	if err != nil {
		t.Fatalf("GetMethod: %v", err)
	}
	return m
}

// mainClass builds a class Main with a single static method.
func mainClass(desc string, maxStack, maxLocals uint16, code func(b *classfile.Builder) []byte) *classfile.Builder {
	b := classfile.NewBuilder("Main", "java/lang/Object")
	b.AddMethod(classfile.AccPublic|classfile.AccStatic, "main", desc, maxStack, maxLocals, code(b))
	return b
}

// trapped runs fn and returns the error of any trap it raises.
func trapped(fn func()) (err error) {
	defer catch(&err)
	fn()
	return nil
}
