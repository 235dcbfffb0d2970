package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/javelin/classpath"
)

var runtimeLog = commonlog.GetLogger("javelin.runtime")

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// ClassFinder locates class-file bytes by internal class name. A
// classpath.Path is a ClassFinder.
type ClassFinder interface {
	Find(name string) ([]byte, classpath.Source, error)
}

// Options configures a Runtime.
type Options struct {
	Classpath      ClassFinder // nil means only explicitly defined classes exist
	StackBytes     uint64
	HeapChunkBytes uint64 // minimum size of a heap chunk
	HeapMaxBytes   uint64 // ceiling on committed heap
	Stdout         io.Writer
	Stderr         io.Writer
}

// DefaultOptions returns options with a 4MiB stack, 1MiB heap chunks, a
// 16MiB heap ceiling and the process's standard streams.
func DefaultOptions() Options {
	return Options{
		StackBytes:     4 << 20,
		HeapChunkBytes: 1 << 20,
		HeapMaxBytes:   16 << 20,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	}
}

// ---------------------------------------------------------------------------
// Runtime
// ---------------------------------------------------------------------------

// Runtime owns everything one program execution needs: the class table, the
// heap, and a single thread's call stack.
type Runtime struct {
	ID      uuid.UUID
	Classes *ClassTable
	Heap    *Heap
	Stack   *Stack

	Stdout io.Writer
	Stderr io.Writer

	// Well-known classes
	ObjectClass      *Class
	StringClass      *Class
	PrintStreamClass *Class
	SystemClass      *Class

	classpath ClassFinder

	// String contents live outside the heap; a String object's hidden
	// value field indexes text. Collect drops entries no live String uses.
	text        []string
	textIndex   map[string]int
	stringValue *Field

	// Interned literals. internRefs are GC roots.
	interned   map[string]int
	internRefs []Value

	lastGC      GCStats
	collections int
}

// NewRuntime creates a runtime and registers the built-in classes. Zero
// fields in opts take their DefaultOptions values.
func NewRuntime(opts Options) (*Runtime, error) {
	def := DefaultOptions()
	if opts.StackBytes == 0 {
		opts.StackBytes = def.StackBytes
	}
	if opts.HeapChunkBytes == 0 {
		opts.HeapChunkBytes = def.HeapChunkBytes
	}
	if opts.HeapMaxBytes == 0 {
		opts.HeapMaxBytes = def.HeapMaxBytes
	}
	if opts.Stdout == nil {
		opts.Stdout = def.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = def.Stderr
	}

	classes := NewClassTable()
	rt := &Runtime{
		ID:        uuid.New(),
		Classes:   classes,
		Heap:      NewHeap(classes, opts.HeapChunkBytes, opts.HeapMaxBytes),
		Stack:     NewStack(int(opts.StackBytes / wordBytes)),
		Stdout:    opts.Stdout,
		Stderr:    opts.Stderr,
		classpath: opts.Classpath,
		textIndex: make(map[string]int),
		interned:  make(map[string]int),
	}
	if err := rt.bootstrap(); err != nil {
		return nil, fmt.Errorf("registering built-in classes: %w", err)
	}
	runtimeLog.Infof("runtime %s ready: %d built-in classes", rt.ID, rt.Classes.Len())
	return rt, nil
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// mainForms lists the accepted entry points in the order they are tried.
var mainForms = []string{
	"([Ljava/lang/String;)V",
	"()I",
	"()J",
}

// FindMain returns the entry point of c: the first static main method of the
// forms void main(String[]), int main(), long main().
func (rt *Runtime) FindMain(c *Class) (*Method, error) {
	for _, desc := range mainForms {
		if m := c.DeclaredMethod("main", desc); m != nil && m.IsStatic() {
			runtimeLog.Debugf("entry point %s", m)
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no static main of the forms main(String[]), int main(), long main()",
		ErrMethodNotFound, c.Name)
}

// Result is the outcome of running a program's entry point.
type Result struct {
	Method *Method
	Value  Value
}

// HasValue reports whether the entry point returns a value.
func (r Result) HasValue() bool { return !r.Method.Type.Return.IsVoid() }

// String renders the value as an int or long, or "" for void entry points.
func (r Result) String() string {
	switch r.Method.Type.Return.Kind {
	case 'I':
		return strconv.Itoa(int(r.Value.Int()))
	case 'J':
		return strconv.FormatInt(r.Value.Long(), 10)
	}
	return ""
}

// RunMain finds and runs c's entry point. The String[] argument of the void
// form is passed as null.
func (rt *Runtime) RunMain(c *Class) (Result, error) {
	m, err := rt.FindMain(c)
	if err != nil {
		return Result{}, err
	}
	var args []Value
	if len(m.Type.Args) == 1 {
		args = []Value{RefValue(Null)}
	}
	v, err := rt.Invoke(m, args...)
	return Result{Method: m, Value: v}, err
}

// ---------------------------------------------------------------------------
// Allocation and collection
// ---------------------------------------------------------------------------

// New allocates a zeroed instance of c. When the heap is at its ceiling it
// collects once and retries; if that still fails the error is
// ErrOutOfMemory. Any reference held outside the stack, statics and intern
// table is invalid after New returns.
func (rt *Runtime) New(c *Class) (Ref, error) {
	if c.IsInterface() {
		return Null, fmt.Errorf("%w: cannot instantiate interface %s", ErrIncompatible, c.Name)
	}
	r, err := rt.Heap.Allocate(c)
	if !errors.Is(err, ErrHeapExhausted) {
		return r, err
	}
	runtimeLog.Debugf("allocating %s: %v; collecting", c.Name, err)
	rt.Collect()
	r, err = rt.Heap.Allocate(c)
	if errors.Is(err, ErrHeapExhausted) {
		return Null, fmt.Errorf("%w: %s after collection (%v)", ErrOutOfMemory, c.Name, err)
	}
	return r, err
}

// Collect runs a full collection with every active frame, every static
// reference field and the intern table as roots.
func (rt *Runtime) Collect() GCStats {
	active := make([]*Class, 0, rt.Stack.Depth())
	for i := 0; i < rt.Stack.Depth(); i++ {
		active = append(active, rt.Stack.Frame(i).Class)
	}
	stats := rt.Heap.Collect(rt.visitRoots, active)
	rt.compactText()
	rt.lastGC = stats
	rt.collections++
	return stats
}

func (rt *Runtime) visitRoots(fn func(*Value)) {
	rt.Stack.refs(fn)
	for _, c := range rt.Classes.byID {
		if c != nil {
			c.staticRefs(fn)
		}
	}
	for i := range rt.internRefs {
		fn(&rt.internRefs[i])
	}
}

// compactText rebuilds the string table from the Strings that survived a
// collection and renumbers their value fields.
func (rt *Runtime) compactText() {
	before := len(rt.text)
	text := make([]string, 0, len(rt.interned))
	index := make(map[string]int, len(rt.interned))
	off := headerWords + rt.stringValue.Offset
	rt.Heap.walk(func(_ Ref, c *Class, words []Value) {
		if c != rt.StringClass {
			return
		}
		s := rt.text[words[off].Int()]
		i, ok := index[s]
		if !ok {
			i = len(text)
			text = append(text, s)
			index[s] = i
		}
		words[off] = IntValue(int32(i))
	})
	rt.text, rt.textIndex = text, index
	runtimeLog.Debugf("string table: %d of %d entries live", len(text), before)
}

// LastGC returns the statistics of the most recent collection and the number
// of collections run so far.
func (rt *Runtime) LastGC() (GCStats, int) { return rt.lastGC, rt.collections }

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// NewString allocates a java/lang/String holding s.
func (rt *Runtime) NewString(s string) (Ref, error) {
	r, err := rt.New(rt.StringClass)
	if err != nil {
		return Null, err
	}
	idx, ok := rt.textIndex[s]
	if !ok {
		idx = len(rt.text)
		rt.text = append(rt.text, s)
		rt.textIndex[s] = idx
	}
	return r, rt.Heap.SetSlot(r, rt.stringValue.Offset, IntValue(int32(idx)))
}

// Intern returns the canonical String object for s, allocating it on first
// use. Interned strings are never collected.
func (rt *Runtime) Intern(s string) (Ref, error) {
	if i, ok := rt.interned[s]; ok {
		return rt.internRefs[i].Ref(), nil
	}
	r, err := rt.NewString(s)
	if err != nil {
		return Null, err
	}
	rt.interned[s] = len(rt.internRefs)
	rt.internRefs = append(rt.internRefs, RefValue(r))
	return r, nil
}

// StringValue returns the contents of the String object at r.
func (rt *Runtime) StringValue(r Ref) (string, error) {
	c, err := rt.Heap.ClassOf(r)
	if err != nil {
		return "", err
	}
	if !c.IsSubclassOf(rt.StringClass) {
		return "", fmt.Errorf("%w: %s is not a string", ErrIncompatible, c.Name)
	}
	v, err := rt.Heap.Slot(r, rt.stringValue.Offset)
	if err != nil {
		return "", err
	}
	return rt.text[v.Int()], nil
}

// Stringify renders the object at r the way String.valueOf(Object) does:
// "null" for null, the contents of a String, otherwise the result of the
// object's toString method.
func (rt *Runtime) Stringify(r Ref) (string, error) {
	if r == Null {
		return "null", nil
	}
	c, err := rt.Heap.ClassOf(r)
	if err != nil {
		return "", err
	}
	if c.IsSubclassOf(rt.StringClass) {
		return rt.StringValue(r)
	}
	m, err := c.GetMethod("toString", "()Ljava/lang/String;")
	if err != nil {
		return "", err
	}
	v, err := rt.Invoke(m, RefValue(r))
	if err != nil {
		return "", err
	}
	return rt.StringValue(v.Ref())
}

// ---------------------------------------------------------------------------
// Host access to instance fields
// ---------------------------------------------------------------------------

func (rt *Runtime) instanceField(r Ref, name string) (*Field, error) {
	c, err := rt.Heap.ClassOf(r)
	if err != nil {
		return nil, err
	}
	f, err := c.GetField(name)
	if err != nil {
		return nil, err
	}
	if f.Static {
		return nil, fmt.Errorf("%w: %s.%s is static", ErrIncompatible, f.Owner.Name, name)
	}
	return f, nil
}

// GetField reads the named instance field of the object at r.
func (rt *Runtime) GetField(r Ref, name string) (Value, error) {
	f, err := rt.instanceField(r, name)
	if err != nil {
		return 0, err
	}
	return rt.Heap.Slot(r, f.Offset)
}

// SetField writes the named instance field of the object at r.
func (rt *Runtime) SetField(r Ref, name string, v Value) error {
	f, err := rt.instanceField(r, name)
	if err != nil {
		return err
	}
	return rt.Heap.SetSlot(r, f.Offset, v)
}
