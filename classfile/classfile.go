// Package classfile reads and writes the JVM class-file format.
package classfile

import "github.com/chazu/javelin/bytecode"

// Magic is the first four bytes of every class file.
const Magic = 0xCAFEBABE

// Access flags shared by classes, fields and methods.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccTransient    = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccSynthetic    = 0x1000
)

// ClassFile is a parsed class file with its symbolic names already resolved.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *Pool
	AccessFlags  uint16
	Name         string
	SuperName    string // empty only for java/lang/Object
	Interfaces   []string
	Fields       []Field
	Methods      []Method
	Attributes   []Attribute
}

// Field is one entry of the field table.
type Field struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []Attribute
}

// IsStatic reports whether the field is class-owned.
func (f Field) IsStatic() bool { return f.AccessFlags&AccStatic != 0 }

// Method is one entry of the method table. Code is nil for abstract and
// native methods.
type Method struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Code        *Code
	Attributes  []Attribute
}

// IsStatic reports whether the method has no receiver.
func (m Method) IsStatic() bool { return m.AccessFlags&AccStatic != 0 }

// Attribute is an attribute the reader does not interpret.
type Attribute struct {
	Name string
	Data []byte
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Raw            []byte
	Instructions   []bytecode.Instruction
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute
}

// ExceptionHandler is one exception_table entry. Handlers are retained but
// never executed.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}
