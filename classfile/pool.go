package classfile

import (
	"errors"
	"fmt"
)

// Tag identifies the kind of a constant-pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagInvokeDynamic      Tag = 18
)

var tagNames = map[Tag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagInvokeDynamic:      "InvokeDynamic",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Wide reports whether entries with this tag occupy two pool slots.
func (t Tag) Wide() bool {
	return t == TagLong || t == TagDouble
}

var (
	ErrBadIndex = errors.New("constant pool index out of range")
	ErrWrongTag = errors.New("unexpected constant pool entry")
)

// ---------------------------------------------------------------------------
// Entries
// ---------------------------------------------------------------------------

// Entry is one constant-pool entry. Entries refer to each other only by
// index.
type Entry interface {
	Tag() Tag
}

type Utf8 struct{ Value string }
type Integer struct{ Value int32 }
type Float struct{ Value float32 }
type Long struct{ Value int64 }
type Double struct{ Value float64 }
type Class struct{ NameIndex uint16 }
type String struct{ StringIndex uint16 }

// Fieldref, Methodref and InterfaceMethodref share a layout.
type Fieldref struct{ ClassIndex, NameAndTypeIndex uint16 }
type Methodref struct{ ClassIndex, NameAndTypeIndex uint16 }
type InterfaceMethodref struct{ ClassIndex, NameAndTypeIndex uint16 }

type NameAndType struct{ NameIndex, DescriptorIndex uint16 }

type MethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

type MethodType struct{ DescriptorIndex uint16 }

type InvokeDynamic struct{ BootstrapMethodAttrIndex, NameAndTypeIndex uint16 }

func (Utf8) Tag() Tag               { return TagUtf8 }
func (Integer) Tag() Tag            { return TagInteger }
func (Float) Tag() Tag              { return TagFloat }
func (Long) Tag() Tag               { return TagLong }
func (Double) Tag() Tag             { return TagDouble }
func (Class) Tag() Tag              { return TagClass }
func (String) Tag() Tag             { return TagString }
func (Fieldref) Tag() Tag           { return TagFieldref }
func (Methodref) Tag() Tag          { return TagMethodref }
func (InterfaceMethodref) Tag() Tag { return TagInterfaceMethodref }
func (NameAndType) Tag() Tag        { return TagNameAndType }
func (MethodHandle) Tag() Tag       { return TagMethodHandle }
func (MethodType) Tag() Tag         { return TagMethodType }
func (InvokeDynamic) Tag() Tag      { return TagInvokeDynamic }

// ---------------------------------------------------------------------------
// Pool
// ---------------------------------------------------------------------------

// Pool is an immutable, 1-indexed constant pool. Slot 0 and the slot after a
// Long or Double are unusable and hold nil.
type Pool struct {
	entries []Entry
}

// NewPool builds a pool from entries in slot order, entries[0] being slot 1.
// Wide entries must be followed by a nil placeholder.
func NewPool(entries []Entry) *Pool {
	return &Pool{entries: append([]Entry{nil}, entries...)}
}

// Count returns the constant_pool_count value: one more than the highest
// valid index.
func (p *Pool) Count() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entry returns the entry at index i.
func (p *Pool) Entry(i uint16) (Entry, error) {
	if p == nil || i == 0 || int(i) >= len(p.entries) || p.entries[i] == nil {
		return nil, fmt.Errorf("%w: #%d", ErrBadIndex, i)
	}
	return p.entries[i], nil
}

func (p *Pool) expect(i uint16, tag Tag) (Entry, error) {
	e, err := p.Entry(i)
	if err != nil {
		return nil, err
	}
	if e.Tag() != tag {
		return nil, fmt.Errorf("%w: #%d is %s, want %s", ErrWrongTag, i, e.Tag(), tag)
	}
	return e, nil
}

// Utf8 returns the string held by a Utf8 entry.
func (p *Pool) Utf8(i uint16) (string, error) {
	e, err := p.expect(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return e.(Utf8).Value, nil
}

// ClassName resolves a Class entry to its internal name ("java/lang/Object").
func (p *Pool) ClassName(i uint16) (string, error) {
	e, err := p.expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(e.(Class).NameIndex)
}

// StringValue resolves a String entry to its contents.
func (p *Pool) StringValue(i uint16) (string, error) {
	e, err := p.expect(i, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(e.(String).StringIndex)
}

// NameAndType resolves a NameAndType entry to its name and descriptor.
func (p *Pool) NameAndType(i uint16) (name, descriptor string, err error) {
	e, err := p.expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	nt := e.(NameAndType)
	if name, err = p.Utf8(nt.NameIndex); err != nil {
		return "", "", err
	}
	if descriptor, err = p.Utf8(nt.DescriptorIndex); err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// Member is a fully resolved symbolic field or method reference.
type Member struct {
	Class      string
	Name       string
	Descriptor string
}

func (m Member) String() string {
	return m.Class + "." + m.Name + m.Descriptor
}

// Member resolves a Fieldref, Methodref or InterfaceMethodref through its
// Class and NameAndType entries.
func (p *Pool) Member(i uint16) (Member, error) {
	e, err := p.Entry(i)
	if err != nil {
		return Member{}, err
	}
	var classIdx, ntIdx uint16
	switch ref := e.(type) {
	case Fieldref:
		classIdx, ntIdx = ref.ClassIndex, ref.NameAndTypeIndex
	case Methodref:
		classIdx, ntIdx = ref.ClassIndex, ref.NameAndTypeIndex
	case InterfaceMethodref:
		classIdx, ntIdx = ref.ClassIndex, ref.NameAndTypeIndex
	default:
		return Member{}, fmt.Errorf("%w: #%d is %s, want a member reference", ErrWrongTag, i, e.Tag())
	}
	var m Member
	if m.Class, err = p.ClassName(classIdx); err != nil {
		return Member{}, err
	}
	if m.Name, m.Descriptor, err = p.NameAndType(ntIdx); err != nil {
		return Member{}, err
	}
	return m, nil
}

// InvokeDynamic resolves the NameAndType of an InvokeDynamic entry. The
// bootstrap method index is returned unresolved.
func (p *Pool) InvokeDynamic(i uint16) (bootstrap uint16, name, descriptor string, err error) {
	e, err := p.expect(i, TagInvokeDynamic)
	if err != nil {
		return 0, "", "", err
	}
	indy := e.(InvokeDynamic)
	name, descriptor, err = p.NameAndType(indy.NameAndTypeIndex)
	return indy.BootstrapMethodAttrIndex, name, descriptor, err
}
