package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/javelin/classfile"
)

// ---------------------------------------------------------------------------
// Class: a loaded class of either origin
// ---------------------------------------------------------------------------

// Origin records where a class definition came from. A merged class has both
// bits set.
type Origin uint8

const (
	OriginJava   Origin = 1 << iota // parsed from a class file
	OriginNative                    // registered by the host
)

func (o Origin) String() string {
	switch o {
	case OriginJava:
		return "java"
	case OriginNative:
		return "native"
	case OriginJava | OriginNative:
		return "java+native"
	}
	return "none"
}

type classState uint8

const (
	stateLoading classState = iota
	stateLinked
)

// Field is a static or instance field.
//
// For instance fields Offset is the slot index inside an object (after the
// header); for static fields it indexes the owning class's static storage.
type Field struct {
	Name        string
	Descriptor  string
	Type        classfile.Type
	AccessFlags uint16
	Static      bool
	Offset      int
	Owner       *Class
}

// MethodKey identifies a method by name and full descriptor, so overloads
// are distinct.
type MethodKey struct {
	Name       string
	Descriptor string
}

func (k MethodKey) String() string { return k.Name + k.Descriptor }

// Class is a loaded class. Classes are owned by the ClassTable and live for
// the lifetime of the Runtime.
type Class struct {
	ID          uint32
	Name        string
	AccessFlags uint16
	Origin      Origin
	Super       *Class
	Interfaces  []*Class

	// Pool is the constant pool of the file-defined half, nil for purely
	// native classes.
	Pool *classfile.Pool

	fields  map[string]*Field
	methods map[MethodKey]*Method

	statics []Value

	// Instance layout including inherited slots. refSlots[i] is true when
	// slot i holds a reference.
	numSlots int
	refSlots []bool

	// frozen is set once the layout is observable (an instance exists or a
	// subclass copied it); merging may no longer add instance fields.
	frozen bool
	state  classState

	// Constant-pool resolution caches.
	fieldRefs  map[uint16]*Field
	methodRefs map[uint16]*Method
}

func newClass(name string) *Class {
	return &Class{
		Name:       name,
		fields:     make(map[string]*Field),
		methods:    make(map[MethodKey]*Method),
		fieldRefs:  make(map[uint16]*Field),
		methodRefs: make(map[uint16]*Method),
	}
}

func (c *Class) String() string { return c.Name }

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool {
	return c.AccessFlags&classfile.AccInterface != 0
}

// NumSlots returns the number of instance slots in objects of this class,
// inherited slots included.
func (c *Class) NumSlots() int { return c.numSlots }

// IsSubclassOf returns true if c is other, extends it, or implements it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
		for _, iface := range cur.Interfaces {
			if iface.IsSubclassOf(other) {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// DeclaredMethod returns a method declared directly on c, or nil.
func (c *Class) DeclaredMethod(name, descriptor string) *Method {
	return c.methods[MethodKey{name, descriptor}]
}

// Methods returns the methods declared on c, sorted by key.
func (c *Class) Methods() []*Method {
	out := make([]*Method, 0, len(c.methods))
	for _, m := range c.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// GetMethod finds a method by name and descriptor on c, its superclasses, or
// (for default and abstract methods) its superinterfaces. Concrete methods
// found on the class chain are preferred over interface declarations.
func (c *Class) GetMethod(name, descriptor string) (*Method, error) {
	key := MethodKey{name, descriptor}
	for cur := c; cur != nil; cur = cur.Super {
		if m, ok := cur.methods[key]; ok {
			return m, nil
		}
	}
	if m := c.findInterfaceMethod(key); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, c.Name, key)
}

func (c *Class) findInterfaceMethod(key MethodKey) *Method {
	var abstract *Method
	for cur := c; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			if m, ok := iface.methods[key]; ok {
				if !m.IsAbstract() {
					return m
				}
				if abstract == nil {
					abstract = m
				}
			}
			if m := iface.findInterfaceMethod(key); m != nil {
				if !m.IsAbstract() {
					return m
				}
				if abstract == nil {
					abstract = m
				}
			}
		}
	}
	return abstract
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// DeclaredFields returns the fields declared directly on c, sorted by name.
func (c *Class) DeclaredFields() []*Field {
	out := make([]*Field, 0, len(c.fields))
	for _, f := range c.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetField finds a field by name on c, then its superclasses, then its
// superinterfaces (interface constants).
func (c *Class) GetField(name string) (*Field, error) {
	for cur := c; cur != nil; cur = cur.Super {
		if f, ok := cur.fields[name]; ok {
			return f, nil
		}
	}
	if f := c.findInterfaceField(name); f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrFieldNotFound, c.Name, name)
}

func (c *Class) findInterfaceField(name string) *Field {
	for cur := c; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			if f, ok := iface.fields[name]; ok {
				return f
			}
			if f := iface.findInterfaceField(name); f != nil {
				return f
			}
		}
	}
	return nil
}

func (c *Class) staticField(name string) (*Field, error) {
	f, err := c.GetField(name)
	if err != nil {
		return nil, err
	}
	if !f.Static {
		return nil, fmt.Errorf("%w: %s.%s is not static", ErrIncompatible, c.Name, name)
	}
	return f, nil
}

// GetStatic reads a static field visible from c.
func (c *Class) GetStatic(name string) (Value, error) {
	f, err := c.staticField(name)
	if err != nil {
		return 0, err
	}
	return f.Owner.statics[f.Offset], nil
}

// SetStatic writes a static field visible from c.
func (c *Class) SetStatic(name string, v Value) error {
	f, err := c.staticField(name)
	if err != nil {
		return err
	}
	f.Owner.statics[f.Offset] = v
	return nil
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// addField registers a field declared on c. Instance fields get their offset
// from layout.
func (c *Class) addField(name, descriptor string, flags uint16) error {
	if _, dup := c.fields[name]; dup {
		return nil
	}
	f, err := c.newField(name, descriptor, flags)
	if err != nil {
		return err
	}
	c.attach(f)
	return nil
}

// newField builds a field owned by c without registering it.
func (c *Class) newField(name, descriptor string, flags uint16) (*Field, error) {
	t, err := classfile.ParseFieldDescriptor(descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: field %s.%s: %v", ErrIncompatible, c.Name, name, err)
	}
	return &Field{
		Name:        name,
		Descriptor:  descriptor,
		Type:        t,
		AccessFlags: flags,
		Static:      flags&classfile.AccStatic != 0,
		Owner:       c,
	}, nil
}

// attach registers f on c, giving static fields their storage.
func (c *Class) attach(f *Field) {
	if f.Static {
		f.Offset = len(c.statics)
		c.statics = append(c.statics, 0)
	}
	c.fields[f.Name] = f
}

// layout assigns instance offsets: the superclass layout first, then this
// class's own instance fields sorted by name, so any two loads of the same
// class agree.
func (c *Class) layout() {
	base := 0
	var refs []bool
	if c.Super != nil {
		c.Super.frozen = true
		base = c.Super.numSlots
		refs = append(refs, c.Super.refSlots...)
	}
	var own []*Field
	for _, f := range c.fields {
		if !f.Static {
			own = append(own, f)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].Name < own[j].Name })
	for i, f := range own {
		f.Offset = base + i
		refs = append(refs, f.Type.IsReference())
	}
	c.numSlots = base + len(own)
	c.refSlots = refs
}

// staticRefs calls fn with a pointer to every static slot that holds a
// reference.
func (c *Class) staticRefs(fn func(*Value)) {
	for _, f := range c.fields {
		if f.Static && f.Type.IsReference() {
			fn(&c.statics[f.Offset])
		}
	}
}
