package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/chazu/javelin/bytecode"
)

var (
	ErrInvalidMagic = errors.New("invalid magic number: expected 0xCAFEBABE")
	ErrTruncated    = errors.New("unexpected end of class data")
	ErrBadTag       = errors.New("unknown constant pool tag")
	ErrTrailingData = errors.New("trailing bytes after class data")
)

// FormatError locates a failure inside class-file bytes.
type FormatError struct {
	Offset int
	What   string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("class file: %s at offset %d: %v", e.What, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// reader is a big-endian cursor that never reads past its buffer. The first
// failure sticks; later reads return zero values.
type reader struct {
	data []byte
	off  int
	err  error
	what string
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = &FormatError{Offset: r.off, What: r.what, Err: err}
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail(ErrTruncated)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u2() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u4() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u8() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// Parse decodes a complete class file, including every method's bytecode.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data, what: "header"}
	cf := &ClassFile{}

	if magic := r.u4(); r.err == nil && magic != Magic {
		r.off -= 4
		r.fail(fmt.Errorf("%w: got 0x%08X", ErrInvalidMagic, magic))
	}
	cf.MinorVersion = r.u2()
	cf.MajorVersion = r.u2()
	if r.err != nil {
		return nil, r.err
	}

	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	cf.Pool = pool

	r.what = "class header"
	cf.AccessFlags = r.u2()
	thisIdx := r.u2()
	superIdx := r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if cf.Name, err = pool.ClassName(thisIdx); err != nil {
		return nil, &FormatError{Offset: r.off, What: "this_class", Err: err}
	}
	if superIdx != 0 {
		if cf.SuperName, err = pool.ClassName(superIdx); err != nil {
			return nil, &FormatError{Offset: r.off, What: "super_class", Err: err}
		}
	}

	r.what = "interfaces"
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		at := r.off
		name, err := pool.ClassName(r.u2())
		if r.err != nil {
			break
		}
		if err != nil {
			return nil, &FormatError{Offset: at, What: "interfaces", Err: err}
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}

	r.what = "fields"
	n = int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		flags, name, desc, attrs, err := readMember(r, pool)
		if err != nil {
			return nil, err
		}
		cf.Fields = append(cf.Fields, Field{AccessFlags: flags, Name: name, Descriptor: desc, Attributes: attrs})
	}

	r.what = "methods"
	n = int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		flags, name, desc, attrs, err := readMember(r, pool)
		if err != nil {
			return nil, err
		}
		m := Method{AccessFlags: flags, Name: name, Descriptor: desc}
		for _, a := range attrs {
			if a.Name != "Code" {
				m.Attributes = append(m.Attributes, a)
				continue
			}
			code, err := parseCode(a.Data, pool)
			if err != nil {
				return nil, fmt.Errorf("method %s%s: %w", name, desc, err)
			}
			m.Code = code
		}
		cf.Methods = append(cf.Methods, m)
	}

	r.what = "class attributes"
	cf.Attributes, err = readAttributes(r, pool)
	if err != nil {
		return nil, err
	}
	if r.off != len(r.data) {
		r.fail(fmt.Errorf("%w: %d bytes", ErrTrailingData, len(r.data)-r.off))
		return nil, r.err
	}
	return cf, nil
}

func readPool(r *reader) (*Pool, error) {
	r.what = "constant pool"
	count := int(r.u2())
	entries := make([]Entry, 1, max(count, 1))
	for len(entries) < count && r.err == nil {
		at := r.off
		tag := Tag(r.u1())
		var e Entry
		switch tag {
		case TagUtf8:
			n := int(r.u2())
			e = Utf8{Value: decodeModifiedUTF8(r.take(n))}
		case TagInteger:
			e = Integer{Value: int32(r.u4())}
		case TagFloat:
			e = Float{Value: math.Float32frombits(r.u4())}
		case TagLong:
			e = Long{Value: int64(r.u8())}
		case TagDouble:
			e = Double{Value: math.Float64frombits(r.u8())}
		case TagClass:
			e = Class{NameIndex: r.u2()}
		case TagString:
			e = String{StringIndex: r.u2()}
		case TagFieldref:
			e = Fieldref{ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagMethodref:
			e = Methodref{ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagInterfaceMethodref:
			e = InterfaceMethodref{ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagNameAndType:
			e = NameAndType{NameIndex: r.u2(), DescriptorIndex: r.u2()}
		case TagMethodHandle:
			e = MethodHandle{ReferenceKind: r.u1(), ReferenceIndex: r.u2()}
		case TagMethodType:
			e = MethodType{DescriptorIndex: r.u2()}
		case TagInvokeDynamic:
			e = InvokeDynamic{BootstrapMethodAttrIndex: r.u2(), NameAndTypeIndex: r.u2()}
		default:
			if r.err == nil {
				r.off = at
				r.fail(fmt.Errorf("%w: %d at slot %d", ErrBadTag, uint8(tag), len(entries)))
			}
		}
		entries = append(entries, e)
		if tag.Wide() {
			entries = append(entries, nil)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(entries) != max(count, 1) {
		r.fail(fmt.Errorf("%w: wide entry overruns constant_pool_count %d", ErrBadIndex, count))
		return nil, r.err
	}
	return &Pool{entries: entries}, nil
}

func readMember(r *reader, pool *Pool) (flags uint16, name, desc string, attrs []Attribute, err error) {
	at := r.off
	flags = r.u2()
	nameIdx := r.u2()
	descIdx := r.u2()
	if r.err != nil {
		return 0, "", "", nil, r.err
	}
	if name, err = pool.Utf8(nameIdx); err != nil {
		return 0, "", "", nil, &FormatError{Offset: at, What: r.what, Err: err}
	}
	if desc, err = pool.Utf8(descIdx); err != nil {
		return 0, "", "", nil, &FormatError{Offset: at, What: r.what, Err: err}
	}
	attrs, err = readAttributes(r, pool)
	return flags, name, desc, attrs, err
}

func readAttributes(r *reader, pool *Pool) ([]Attribute, error) {
	n := int(r.u2())
	var attrs []Attribute
	for i := 0; i < n && r.err == nil; i++ {
		at := r.off
		nameIdx := r.u2()
		data := r.take(int(r.u4()))
		if r.err != nil {
			break
		}
		name, err := pool.Utf8(nameIdx)
		if err != nil {
			return nil, &FormatError{Offset: at, What: "attribute name", Err: err}
		}
		attrs = append(attrs, Attribute{Name: name, Data: data})
	}
	if r.err != nil {
		return nil, r.err
	}
	return attrs, nil
}

// parseCode decodes the body of a Code attribute.
func parseCode(data []byte, pool *Pool) (*Code, error) {
	r := &reader{data: data, what: "Code attribute"}
	c := &Code{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	c.Raw = r.take(int(r.u4()))
	if r.err != nil {
		return nil, r.err
	}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		c.ExceptionTable = append(c.ExceptionTable, ExceptionHandler{
			StartPC:   r.u2(),
			EndPC:     r.u2(),
			HandlerPC: r.u2(),
			CatchType: r.u2(),
		})
	}
	attrs, err := readAttributes(r, pool)
	if err != nil {
		return nil, err
	}
	c.Attributes = attrs

	ins, err := bytecode.Decode(c.Raw)
	if err != nil {
		return nil, err
	}
	c.Instructions = ins
	return c, nil
}

// decodeModifiedUTF8 converts the JVM's modified UTF-8 (two-byte NUL,
// surrogate pairs encoded separately) to a Go string.
func decodeModifiedUTF8(b []byte) string {
	plain := true
	for _, c := range b {
		if c&0x80 != 0 {
			plain = false
			break
		}
	}
	if plain {
		return string(b)
	}
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0 && i+1 < len(b):
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0 && i+2 < len(b):
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			units = append(units, 0xfffd)
			i++
		}
	}
	return string(utf16.Decode(units))
}
