package vm

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/classpath"
)

var loaderLog = commonlog.GetLogger("javelin.loader")

// ---------------------------------------------------------------------------
// ClassTable: sole owner of every loaded class
// ---------------------------------------------------------------------------

// ClassTable owns loaded classes by name. A class's ID indexes byID and is
// what object headers store.
type ClassTable struct {
	byName map[string]*Class
	byID   []*Class
}

// NewClassTable creates an empty class table. ID 0 is reserved.
func NewClassTable() *ClassTable {
	return &ClassTable{
		byName: make(map[string]*Class),
		byID:   []*Class{nil},
	}
}

// Lookup returns a linked class by name, or nil.
func (t *ClassTable) Lookup(name string) *Class {
	if c := t.byName[name]; c != nil && c.state == stateLinked {
		return c
	}
	return nil
}

// All returns every linked class sorted by name.
func (t *ClassTable) All() []*Class {
	out := make([]*Class, 0, len(t.byName))
	for _, c := range t.byName {
		if c.state == stateLinked {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of linked classes.
func (t *ClassTable) Len() int { return len(t.All()) }

func (t *ClassTable) add(c *Class) {
	c.ID = uint32(len(t.byID))
	t.byID = append(t.byID, c)
	t.byName[c.Name] = c
}

func (t *ClassTable) remove(c *Class) {
	if t.byName[c.Name] == c {
		delete(t.byName, c.Name)
	}
	t.byID[c.ID] = nil
}

// ---------------------------------------------------------------------------
// Native class registration
// ---------------------------------------------------------------------------

// NativeClass is a host-provided class definition.
type NativeClass struct {
	Name        string
	AccessFlags uint16
	Super       string // empty only for java/lang/Object
	Interfaces  []string
	Fields      []NativeField
	Methods     []NativeMethod
}

// NativeField declares a field on a native class.
type NativeField struct {
	Name        string
	Descriptor  string
	AccessFlags uint16
}

// NativeMethod binds a host function to (name, descriptor). A nil Fn
// declares an abstract method.
type NativeMethod struct {
	Name        string
	Descriptor  string
	AccessFlags uint16
	Fn          NativeFunc
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadClass returns the named class, loading it from the classpath along
// with its superclass and interfaces on first use.
func (rt *Runtime) LoadClass(name string) (*Class, error) {
	if c := rt.Classes.byName[name]; c != nil {
		if c.state == stateLoading {
			return nil, fmt.Errorf("%w: %s", ErrClassCircularity, name)
		}
		return c, nil
	}

	loaderLog.Debugf("searching for %s", name)
	if rt.classpath == nil {
		return nil, fmt.Errorf("%w: %s (no classpath)", ErrClassNotFound, name)
	}
	data, src, err := rt.classpath.Find(name)
	if err != nil {
		if errors.Is(err, classpath.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
		}
		return nil, err
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s from %s: %w", name, src, err)
	}
	if cf.Name != name {
		return nil, fmt.Errorf("%w: %s from %s declares %s", ErrClassNotFound, name, src, cf.Name)
	}
	loaderLog.Debugf("loading %s from %s", name, src)
	return rt.defineJava(cf)
}

// LoadClassFile defines the class stored in the file at path.
func (rt *Runtime) LoadClassFile(path string) (*Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return rt.DefineClass(data)
}

// DefineClass parses and defines a class from class-file bytes. If a native
// class of the same name exists the two are merged, host methods winning on
// (name, descriptor) collisions.
func (rt *Runtime) DefineClass(data []byte) (*Class, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, err
	}
	return rt.defineJava(cf)
}

func (rt *Runtime) defineJava(cf *classfile.ClassFile) (*Class, error) {
	if existing := rt.Classes.byName[cf.Name]; existing != nil {
		return rt.mergeJava(existing, cf)
	}

	c := newClass(cf.Name)
	c.AccessFlags = cf.AccessFlags
	c.Origin = OriginJava
	c.Pool = cf.Pool
	rt.Classes.add(c)

	if err := rt.linkJava(c, cf); err != nil {
		rt.Classes.remove(c)
		return nil, err
	}
	c.state = stateLinked
	loaderLog.Infof("defined %s (%d fields, %d methods)", c.Name, len(c.fields), len(c.methods))
	return c, nil
}

func (rt *Runtime) linkJava(c *Class, cf *classfile.ClassFile) error {
	if err := rt.linkSupers(c, cf.SuperName, cf.Interfaces); err != nil {
		return err
	}
	for _, f := range cf.Fields {
		if err := c.addField(f.Name, f.Descriptor, f.AccessFlags); err != nil {
			return err
		}
	}
	for _, m := range cf.Methods {
		method, err := newJavaMethod(c, m)
		if err != nil {
			return err
		}
		c.methods[method.Key()] = method
	}
	c.layout()
	return nil
}

func newJavaMethod(c *Class, m classfile.Method) (*Method, error) {
	desc, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: method %s.%s: %v", ErrIncompatible, c.Name, m.Name, err)
	}
	return &Method{
		Name:        m.Name,
		Descriptor:  m.Descriptor,
		AccessFlags: m.AccessFlags,
		Type:        desc,
		Class:       c,
		Code:        m.Code,
	}, nil
}

// linkSupers loads the superclass and interfaces of c. A missing superclass
// is fatal for c.
func (rt *Runtime) linkSupers(c *Class, super string, interfaces []string) error {
	if super != "" {
		s, err := rt.LoadClass(super)
		if err != nil {
			return fmt.Errorf("loading superclass %s of %s: %w", super, c.Name, err)
		}
		c.Super = s
	}
	for _, name := range interfaces {
		iface, err := rt.LoadClass(name)
		if err != nil {
			return fmt.Errorf("loading interface %s of %s: %w", name, c.Name, err)
		}
		c.Interfaces = append(c.Interfaces, iface)
	}
	return nil
}

// DefineNative registers a host-provided class. If a file-defined class of
// the same name exists the native methods are overlaid onto it.
func (rt *Runtime) DefineNative(nc *NativeClass) (*Class, error) {
	if existing := rt.Classes.byName[nc.Name]; existing != nil {
		return rt.mergeNative(existing, nc)
	}

	c := newClass(nc.Name)
	c.AccessFlags = nc.AccessFlags
	c.Origin = OriginNative
	rt.Classes.add(c)

	err := rt.linkSupers(c, nc.Super, nc.Interfaces)
	if err == nil {
		err = addNativeMembers(c, nc)
	}
	if err != nil {
		rt.Classes.remove(c)
		return nil, err
	}
	c.layout()
	c.state = stateLinked
	loaderLog.Infof("registered native %s (%d methods)", c.Name, len(c.methods))
	return c, nil
}

func addNativeMembers(c *Class, nc *NativeClass) error {
	for _, f := range nc.Fields {
		if err := c.addField(f.Name, f.Descriptor, f.AccessFlags); err != nil {
			return err
		}
	}
	methods, err := nativeMethods(c, nc.Methods)
	if err != nil {
		return err
	}
	for _, m := range methods {
		c.methods[m.Key()] = m
	}
	return nil
}

func nativeMethods(c *Class, defs []NativeMethod) ([]*Method, error) {
	out := make([]*Method, 0, len(defs))
	for _, nm := range defs {
		desc, err := classfile.ParseMethodDescriptor(nm.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("%w: native %s.%s: %v", ErrIncompatible, c.Name, nm.Name, err)
		}
		out = append(out, &Method{
			Name:        nm.Name,
			Descriptor:  nm.Descriptor,
			AccessFlags: nm.AccessFlags,
			Type:        desc,
			Class:       c,
			Native:      nm.Fn,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Merging
// ---------------------------------------------------------------------------

// mergeJava overlays a class file onto the native class c. Like mergeNative
// it resolves methods, fields and interfaces before touching c, so a failed
// merge leaves c exactly as it was.
func (rt *Runtime) mergeJava(c *Class, cf *classfile.ClassFile) (*Class, error) {
	if c.Origin&OriginJava != 0 || c.state != stateLinked {
		return nil, fmt.Errorf("%w: %s is already defined from a class file", ErrClassConflict, c.Name)
	}
	if err := checkSuper(c, cf.SuperName); err != nil {
		return nil, err
	}
	java := make([]*Method, 0, len(cf.Methods))
	for _, m := range cf.Methods {
		method, err := newJavaMethod(c, m)
		if err != nil {
			return nil, err
		}
		java = append(java, method)
	}
	fields, err := c.pendingFields(cf.Fields)
	if err != nil {
		return nil, err
	}
	ifaces, err := rt.pendingInterfaces(c, cf.Interfaces)
	if err != nil {
		return nil, err
	}

	methods := make(map[MethodKey]*Method, len(c.methods)+len(java))
	for _, m := range java {
		methods[m.Key()] = m
	}
	for k, m := range c.methods {
		methods[k] = m
	}
	c.commit(fields, ifaces)
	c.methods = methods
	c.Origin |= OriginJava
	c.Pool = cf.Pool
	c.AccessFlags |= cf.AccessFlags
	loaderLog.Infof("merged class file into native %s", c.Name)
	return c, nil
}

func (rt *Runtime) mergeNative(c *Class, nc *NativeClass) (*Class, error) {
	if c.Origin&OriginNative != 0 || c.state != stateLinked {
		return nil, fmt.Errorf("%w: %s is already registered natively", ErrClassConflict, c.Name)
	}
	if err := checkSuper(c, nc.Super); err != nil {
		return nil, err
	}
	natives, err := nativeMethods(c, nc.Methods)
	if err != nil {
		return nil, err
	}
	decls := make([]classfile.Field, len(nc.Fields))
	for i, f := range nc.Fields {
		decls[i] = classfile.Field{AccessFlags: f.AccessFlags, Name: f.Name, Descriptor: f.Descriptor}
	}
	fields, err := c.pendingFields(decls)
	if err != nil {
		return nil, err
	}
	ifaces, err := rt.pendingInterfaces(c, nc.Interfaces)
	if err != nil {
		return nil, err
	}

	c.commit(fields, ifaces)
	for _, m := range natives {
		c.methods[m.Key()] = m
	}
	c.Origin |= OriginNative
	loaderLog.Infof("merged native methods into %s", c.Name)
	return c, nil
}

func checkSuper(c *Class, super string) error {
	have := ""
	if c.Super != nil {
		have = c.Super.Name
	}
	if super != have {
		return fmt.Errorf("%w: %s extends %q in one definition and %q in the other",
			ErrClassConflict, c.Name, have, super)
	}
	return nil
}

// pendingFields builds the fields decls would add to c. New instance fields
// are only accepted while the layout is unobserved.
func (c *Class) pendingFields(decls []classfile.Field) ([]*Field, error) {
	var out []*Field
	seen := make(map[string]bool)
	for _, d := range decls {
		if _, ok := c.fields[d.Name]; ok || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		f, err := c.newField(d.Name, d.Descriptor, d.AccessFlags)
		if err != nil {
			return nil, err
		}
		if !f.Static && c.frozen {
			return nil, fmt.Errorf("%w: %s adds instance fields after its layout is in use", ErrClassConflict, c.Name)
		}
		out = append(out, f)
	}
	return out, nil
}

// pendingInterfaces loads the interfaces in names that c does not already
// implement.
func (rt *Runtime) pendingInterfaces(c *Class, names []string) ([]*Class, error) {
	var out []*Class
	for _, name := range names {
		if slices.ContainsFunc(c.Interfaces, func(i *Class) bool { return i.Name == name }) {
			continue
		}
		iface, err := rt.LoadClass(name)
		if err != nil {
			return nil, fmt.Errorf("loading interface %s of %s: %w", name, c.Name, err)
		}
		out = append(out, iface)
	}
	return out, nil
}

// commit applies resolved fields and interfaces to c. It cannot fail.
func (c *Class) commit(fields []*Field, ifaces []*Class) {
	relayout := false
	for _, f := range fields {
		c.attach(f)
		relayout = relayout || !f.Static
	}
	c.Interfaces = append(c.Interfaces, ifaces...)
	if relayout {
		c.layout()
	}
}
