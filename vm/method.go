package vm

import (
	"github.com/chazu/javelin/classfile"
)

// NativeFunc implements a host-provided method. args holds one Value per
// declared argument (long and double included), preceded by the receiver for
// instance methods. References in args stay valid only until the function
// allocates, since allocation may compact the heap.
type NativeFunc func(rt *Runtime, args []Value) (Value, error)

// Method is either file-defined (Code is set), host-provided (Native is
// set) or abstract (neither).
type Method struct {
	Name        string
	Descriptor  string
	AccessFlags uint16
	Type        classfile.MethodDescriptor
	Class       *Class
	Code        *classfile.Code
	Native      NativeFunc
}

// Key returns the method's (name, descriptor) key.
func (m *Method) Key() MethodKey { return MethodKey{m.Name, m.Descriptor} }

func (m *Method) String() string {
	if m.Class == nil {
		return m.Name + m.Descriptor
	}
	return m.Class.Name + "." + m.Name + m.Descriptor
}

// IsStatic reports whether the method takes no receiver.
func (m *Method) IsStatic() bool { return m.AccessFlags&classfile.AccStatic != 0 }

// IsNative reports whether the method is host-provided.
func (m *Method) IsNative() bool { return m.Native != nil }

// IsAbstract reports whether the method has no implementation.
func (m *Method) IsAbstract() bool { return m.Native == nil && m.Code == nil }

// ArgSlots returns the operand slots consumed by a call, receiver included.
func (m *Method) ArgSlots() int {
	n := m.Type.ArgSlots()
	if !m.IsStatic() {
		n++
	}
	return n
}

// frameSlots returns max_locals + max_stack for an interpreted method.
func (m *Method) frameSlots() (locals, stack int) {
	if m.Code == nil {
		return 0, 0
	}
	return int(m.Code.MaxLocals), int(m.Code.MaxStack)
}
