package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Builder assembles a class file in memory. Constant-pool entries are
// interned, so asking twice for the same constant returns the same index.
//
//	b := classfile.NewBuilder("Main", "java/lang/Object")
//	b.AddMethod(classfile.AccPublic|classfile.AccStatic, "main", "()I", 2, 0, code)
//	data := b.Bytes()
type Builder struct {
	Major       uint16
	Minor       uint16
	AccessFlags uint16

	entries []Entry
	index   map[string]uint16

	this       uint16
	super      uint16
	interfaces []uint16
	fields     []builtMember
	methods    []builtMember
}

type builtMember struct {
	flags uint16
	name  uint16
	desc  uint16
	attrs []builtAttr
}

type builtAttr struct {
	name uint16
	data []byte
}

// NewBuilder starts a class named name extending super. An empty super
// produces a root class.
func NewBuilder(name, super string) *Builder {
	b := &Builder{
		Major:       52,
		AccessFlags: AccPublic | AccSuper,
		index:       make(map[string]uint16),
	}
	b.this = b.Class(name)
	if super != "" {
		b.super = b.Class(super)
	}
	return b
}

func (b *Builder) intern(key string, e Entry) uint16 {
	if i, ok := b.index[key]; ok {
		return i
	}
	b.entries = append(b.entries, e)
	i := uint16(len(b.entries))
	if e.Tag().Wide() {
		b.entries = append(b.entries, nil)
	}
	b.index[key] = i
	return i
}

func (b *Builder) Utf8(s string) uint16 {
	return b.intern("U"+s, Utf8{Value: s})
}

func (b *Builder) Class(name string) uint16 {
	return b.intern("C"+name, Class{NameIndex: b.Utf8(name)})
}

func (b *Builder) StringConst(s string) uint16 {
	return b.intern("S"+s, String{StringIndex: b.Utf8(s)})
}

func (b *Builder) Integer(v int32) uint16 {
	return b.intern(fmt.Sprintf("I%d", v), Integer{Value: v})
}

func (b *Builder) Float(v float32) uint16 {
	return b.intern(fmt.Sprintf("F%x", math.Float32bits(v)), Float{Value: v})
}

func (b *Builder) Long(v int64) uint16 {
	return b.intern(fmt.Sprintf("J%d", v), Long{Value: v})
}

func (b *Builder) Double(v float64) uint16 {
	return b.intern(fmt.Sprintf("D%x", math.Float64bits(v)), Double{Value: v})
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	return b.intern("N"+name+":"+desc, NameAndType{NameIndex: b.Utf8(name), DescriptorIndex: b.Utf8(desc)})
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	return b.intern("f"+class+"."+name+":"+desc, Fieldref{ClassIndex: b.Class(class), NameAndTypeIndex: b.NameAndType(name, desc)})
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	return b.intern("m"+class+"."+name+":"+desc, Methodref{ClassIndex: b.Class(class), NameAndTypeIndex: b.NameAndType(name, desc)})
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	return b.intern("i"+class+"."+name+":"+desc, InterfaceMethodref{ClassIndex: b.Class(class), NameAndTypeIndex: b.NameAndType(name, desc)})
}

func (b *Builder) MethodType(desc string) uint16 {
	return b.intern("T"+desc, MethodType{DescriptorIndex: b.Utf8(desc)})
}

func (b *Builder) InvokeDynamic(bootstrap uint16, name, desc string) uint16 {
	return b.intern(fmt.Sprintf("Y%d.%s:%s", bootstrap, name, desc), InvokeDynamic{BootstrapMethodAttrIndex: bootstrap, NameAndTypeIndex: b.NameAndType(name, desc)})
}

// AddInterface declares an implemented interface.
func (b *Builder) AddInterface(name string) {
	b.interfaces = append(b.interfaces, b.Class(name))
}

// AddField declares a field.
func (b *Builder) AddField(flags uint16, name, desc string) {
	b.fields = append(b.fields, builtMember{flags: flags, name: b.Utf8(name), desc: b.Utf8(desc)})
}

// AddMethod declares a method with a Code attribute wrapping code.
func (b *Builder) AddMethod(flags uint16, name, desc string, maxStack, maxLocals uint16, code []byte) {
	body := make([]byte, 0, 12+len(code))
	body = binary.BigEndian.AppendUint16(body, maxStack)
	body = binary.BigEndian.AppendUint16(body, maxLocals)
	body = binary.BigEndian.AppendUint32(body, uint32(len(code)))
	body = append(body, code...)
	body = binary.BigEndian.AppendUint16(body, 0) // exception_table_length
	body = binary.BigEndian.AppendUint16(body, 0) // attributes_count
	b.methods = append(b.methods, builtMember{
		flags: flags,
		name:  b.Utf8(name),
		desc:  b.Utf8(desc),
		attrs: []builtAttr{{name: b.Utf8("Code"), data: body}},
	})
}

// AddAbstractMethod declares a method without a body.
func (b *Builder) AddAbstractMethod(flags uint16, name, desc string) {
	b.methods = append(b.methods, builtMember{flags: flags, name: b.Utf8(name), desc: b.Utf8(desc)})
}

// Bytes serializes the class.
func (b *Builder) Bytes() []byte {
	out := binary.BigEndian.AppendUint32(nil, Magic)
	out = binary.BigEndian.AppendUint16(out, b.Minor)
	out = binary.BigEndian.AppendUint16(out, b.Major)

	out = binary.BigEndian.AppendUint16(out, uint16(len(b.entries)+1))
	for _, e := range b.entries {
		out = appendEntry(out, e)
	}

	out = binary.BigEndian.AppendUint16(out, b.AccessFlags)
	out = binary.BigEndian.AppendUint16(out, b.this)
	out = binary.BigEndian.AppendUint16(out, b.super)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.interfaces)))
	for _, i := range b.interfaces {
		out = binary.BigEndian.AppendUint16(out, i)
	}
	out = appendMembers(out, b.fields)
	out = appendMembers(out, b.methods)
	out = binary.BigEndian.AppendUint16(out, 0) // class attributes
	return out
}

func appendMembers(out []byte, ms []builtMember) []byte {
	out = binary.BigEndian.AppendUint16(out, uint16(len(ms)))
	for _, m := range ms {
		out = binary.BigEndian.AppendUint16(out, m.flags)
		out = binary.BigEndian.AppendUint16(out, m.name)
		out = binary.BigEndian.AppendUint16(out, m.desc)
		out = binary.BigEndian.AppendUint16(out, uint16(len(m.attrs)))
		for _, a := range m.attrs {
			out = binary.BigEndian.AppendUint16(out, a.name)
			out = binary.BigEndian.AppendUint32(out, uint32(len(a.data)))
			out = append(out, a.data...)
		}
	}
	return out
}

func appendEntry(out []byte, e Entry) []byte {
	if e == nil {
		return out // second slot of a Long or Double
	}
	out = append(out, byte(e.Tag()))
	u2 := binary.BigEndian.AppendUint16
	switch v := e.(type) {
	case Utf8:
		enc := encodeModifiedUTF8(v.Value)
		out = u2(out, uint16(len(enc)))
		out = append(out, enc...)
	case Integer:
		out = binary.BigEndian.AppendUint32(out, uint32(v.Value))
	case Float:
		out = binary.BigEndian.AppendUint32(out, math.Float32bits(v.Value))
	case Long:
		out = binary.BigEndian.AppendUint64(out, uint64(v.Value))
	case Double:
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(v.Value))
	case Class:
		out = u2(out, v.NameIndex)
	case String:
		out = u2(out, v.StringIndex)
	case Fieldref:
		out = u2(u2(out, v.ClassIndex), v.NameAndTypeIndex)
	case Methodref:
		out = u2(u2(out, v.ClassIndex), v.NameAndTypeIndex)
	case InterfaceMethodref:
		out = u2(u2(out, v.ClassIndex), v.NameAndTypeIndex)
	case NameAndType:
		out = u2(u2(out, v.NameIndex), v.DescriptorIndex)
	case MethodHandle:
		out = u2(append(out, v.ReferenceKind), v.ReferenceIndex)
	case MethodType:
		out = u2(out, v.DescriptorIndex)
	case InvokeDynamic:
		out = u2(u2(out, v.BootstrapMethodAttrIndex), v.NameAndTypeIndex)
	}
	return out
}

func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xc0|byte(u>>6), 0x80|byte(u&0x3f))
		default:
			out = append(out, 0xe0|byte(u>>12), 0x80|byte(u>>6&0x3f), 0x80|byte(u&0x3f))
		}
	}
	return out
}
