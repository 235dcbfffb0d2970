package vm

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/chazu/javelin/classfile"
)

// ---------------------------------------------------------------------------
// Registration helpers
// ---------------------------------------------------------------------------

const (
	accInterface = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
)

func method(name, desc string, fn NativeFunc) NativeMethod {
	return NativeMethod{Name: name, Descriptor: desc, AccessFlags: classfile.AccPublic, Fn: fn}
}

func staticMethod(name, desc string, fn NativeFunc) NativeMethod {
	return NativeMethod{Name: name, Descriptor: desc, AccessFlags: classfile.AccPublic | classfile.AccStatic, Fn: fn}
}

func abstractMethod(name, desc string) NativeMethod {
	return NativeMethod{Name: name, Descriptor: desc, AccessFlags: classfile.AccPublic | classfile.AccAbstract}
}

func nop(*Runtime, []Value) (Value, error) { return 0, nil }

// bootstrap registers the built-in classes and creates System.out and
// System.err.
func (rt *Runtime) bootstrap() error {
	defs := []*NativeClass{
		objectClass(),
		stringClass(),
		{Name: "java/lang/Appendable", AccessFlags: accInterface, Super: "java/lang/Object",
			Methods: []NativeMethod{
				abstractMethod("append", "(Ljava/lang/CharSequence;)Ljava/lang/Appendable;"),
			}},
		{Name: "java/io/Closeable", AccessFlags: accInterface, Super: "java/lang/Object",
			Methods: []NativeMethod{abstractMethod("close", "()V")}},
		{Name: "java/io/OutputStream", AccessFlags: classfile.AccPublic | classfile.AccAbstract,
			Super: "java/lang/Object", Interfaces: []string{"java/io/Closeable"},
			Methods: []NativeMethod{
				method("<init>", "()V", nop),
				abstractMethod("write", "(I)V"),
				method("flush", "()V", nop),
				method("close", "()V", nop),
			}},
		{Name: "java/io/FilterOutputStream", AccessFlags: classfile.AccPublic, Super: "java/io/OutputStream"},
		printStreamClass(),
		systemClass(),
	}
	for _, nc := range defs {
		if _, err := rt.DefineNative(nc); err != nil {
			return err
		}
	}

	rt.ObjectClass = rt.Classes.Lookup("java/lang/Object")
	rt.StringClass = rt.Classes.Lookup("java/lang/String")
	rt.PrintStreamClass = rt.Classes.Lookup("java/io/PrintStream")
	rt.SystemClass = rt.Classes.Lookup("java/lang/System")
	var err error
	if rt.stringValue, err = rt.StringClass.GetField("value"); err != nil {
		return err
	}

	for fd, name := range []string{1: "out", 2: "err"} {
		if name == "" {
			continue
		}
		ps, err := rt.New(rt.PrintStreamClass)
		if err != nil {
			return err
		}
		if err := rt.SetField(ps, "fd", IntValue(int32(fd))); err != nil {
			return err
		}
		if err := rt.SystemClass.SetStatic(name, RefValue(ps)); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// java/lang/Object
// ---------------------------------------------------------------------------

func objectClass() *NativeClass {
	return &NativeClass{
		Name:        "java/lang/Object",
		AccessFlags: classfile.AccPublic,
		Methods: []NativeMethod{
			method("<init>", "()V", nop),
			method("hashCode", "()I", func(*Runtime, []Value) (Value, error) {
				return IntValue(0), nil
			}),
			method("equals", "(Ljava/lang/Object;)Z", func(_ *Runtime, args []Value) (Value, error) {
				return BoolValue(args[0] == args[1]), nil
			}),
			method("toString", "()Ljava/lang/String;", func(rt *Runtime, args []Value) (Value, error) {
				c, err := rt.Heap.ClassOf(args[0].Ref())
				if err != nil {
					return 0, err
				}
				r, err := rt.NewString(strings.ReplaceAll(c.Name, "/", ".") + "@0")
				return RefValue(r), err
			}),
			method("getClass", "()Ljava/lang/Class;", func(*Runtime, []Value) (Value, error) {
				return 0, fmt.Errorf("%w: Object.getClass", ErrNotSupported)
			}),
		},
	}
}

// ---------------------------------------------------------------------------
// java/lang/String
// ---------------------------------------------------------------------------

func stringClass() *NativeClass {
	return &NativeClass{
		Name:        "java/lang/String",
		AccessFlags: classfile.AccPublic | classfile.AccFinal,
		Super:       "java/lang/Object",
		Fields: []NativeField{
			{Name: "value", Descriptor: "I", AccessFlags: classfile.AccPrivate | classfile.AccFinal},
		},
		Methods: []NativeMethod{
			method("length", "()I", stringFunc(func(s string) Value {
				return IntValue(int32(len(utf16.Encode([]rune(s)))))
			})),
			method("isEmpty", "()Z", stringFunc(func(s string) Value {
				return BoolValue(s == "")
			})),
			method("hashCode", "()I", stringFunc(func(s string) Value {
				var h int32
				for _, u := range utf16.Encode([]rune(s)) {
					h = 31*h + int32(u)
				}
				return IntValue(h)
			})),
			method("toString", "()Ljava/lang/String;", func(_ *Runtime, args []Value) (Value, error) {
				return args[0], nil
			}),
			method("equals", "(Ljava/lang/Object;)Z", func(rt *Runtime, args []Value) (Value, error) {
				if args[1].Ref() == Null {
					return BoolValue(false), nil
				}
				c, err := rt.Heap.ClassOf(args[1].Ref())
				if err != nil || c != rt.StringClass {
					return BoolValue(false), err
				}
				a, err := rt.StringValue(args[0].Ref())
				if err != nil {
					return 0, err
				}
				b, err := rt.StringValue(args[1].Ref())
				return BoolValue(a == b), err
			}),
			method("charAt", "(I)C", func(rt *Runtime, args []Value) (Value, error) {
				s, err := rt.StringValue(args[0].Ref())
				if err != nil {
					return 0, err
				}
				units := utf16.Encode([]rune(s))
				i := args[1].Int()
				if i < 0 || int(i) >= len(units) {
					return 0, fmt.Errorf("%w: charAt(%d) of string of length %d", ErrOutOfBounds, i, len(units))
				}
				return IntValue(int32(units[i])), nil
			}),
			method("concat", "(Ljava/lang/String;)Ljava/lang/String;", func(rt *Runtime, args []Value) (Value, error) {
				a, err := rt.StringValue(args[0].Ref())
				if err != nil {
					return 0, err
				}
				b, err := rt.StringValue(args[1].Ref())
				if err != nil {
					return 0, err
				}
				r, err := rt.NewString(a + b)
				return RefValue(r), err
			}),
		},
	}
}

// stringFunc adapts a pure function of the receiver's contents.
func stringFunc(fn func(string) Value) NativeFunc {
	return func(rt *Runtime, args []Value) (Value, error) {
		s, err := rt.StringValue(args[0].Ref())
		if err != nil {
			return 0, err
		}
		return fn(s), nil
	}
}

// ---------------------------------------------------------------------------
// java/io/PrintStream
// ---------------------------------------------------------------------------

// printForms are the argument types print and println accept, with the
// conversion String.valueOf applies to each.
var printForms = []struct {
	arg    string
	format func(rt *Runtime, v Value) (string, error)
}{
	{"I", func(_ *Runtime, v Value) (string, error) { return strconv.Itoa(int(v.Int())), nil }},
	{"J", func(_ *Runtime, v Value) (string, error) { return strconv.FormatInt(v.Long(), 10), nil }},
	{"Z", func(_ *Runtime, v Value) (string, error) { return strconv.FormatBool(v.Int() != 0), nil }},
	{"C", func(_ *Runtime, v Value) (string, error) { return string(rune(uint16(v.Int()))), nil }},
	{"F", func(_ *Runtime, v Value) (string, error) { return formatFloat(float64(v.Float()), 32), nil }},
	{"D", func(_ *Runtime, v Value) (string, error) { return formatFloat(v.Double(), 64), nil }},
	{"Ljava/lang/String;", func(rt *Runtime, v Value) (string, error) { return rt.Stringify(v.Ref()) }},
	{"Ljava/lang/Object;", func(rt *Runtime, v Value) (string, error) { return rt.Stringify(v.Ref()) }},
}

func printStreamClass() *NativeClass {
	nc := &NativeClass{
		Name:        "java/io/PrintStream",
		AccessFlags: classfile.AccPublic,
		Super:       "java/io/FilterOutputStream",
		Interfaces:  []string{"java/lang/Appendable", "java/io/Closeable"},
		Fields: []NativeField{
			{Name: "fd", Descriptor: "I", AccessFlags: classfile.AccPrivate},
		},
		Methods: []NativeMethod{
			method("println", "()V", func(rt *Runtime, args []Value) (Value, error) {
				return 0, rt.printTo(args[0].Ref(), "\n")
			}),
			method("write", "(I)V", func(rt *Runtime, args []Value) (Value, error) {
				return 0, rt.printTo(args[0].Ref(), string([]byte{byte(args[1].Int())}))
			}),
			method("append", "(Ljava/lang/CharSequence;)Ljava/lang/Appendable;", func(rt *Runtime, args []Value) (Value, error) {
				s, err := rt.Stringify(args[1].Ref())
				if err != nil {
					return 0, err
				}
				return args[0], rt.printTo(args[0].Ref(), s)
			}),
			method("flush", "()V", nop),
			method("close", "()V", nop),
		},
	}
	for _, form := range printForms {
		format := form.format
		for _, name := range []string{"print", "println"} {
			suffix := ""
			if name == "println" {
				suffix = "\n"
			}
			nc.Methods = append(nc.Methods, method(name, "("+form.arg+")V",
				func(rt *Runtime, args []Value) (Value, error) {
					s, err := format(rt, args[1])
					if err != nil {
						return 0, err
					}
					return 0, rt.printTo(args[0].Ref(), s+suffix)
				}))
		}
	}
	return nc
}

// streamWriter maps a PrintStream's hidden descriptor to the runtime's
// output writers.
func (rt *Runtime) streamWriter(ps Ref) (io.Writer, error) {
	fd, err := rt.GetField(ps, "fd")
	if err != nil {
		return nil, err
	}
	switch fd.Int() {
	case 1:
		return rt.Stdout, nil
	case 2:
		return rt.Stderr, nil
	}
	return nil, fmt.Errorf("%w: print stream with descriptor %d", ErrNotSupported, fd.Int())
}

func (rt *Runtime) printTo(ps Ref, s string) error {
	w, err := rt.streamWriter(ps)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}

// formatFloat renders a float or double the way Java's toString does:
// plain notation in [1e-3, 1e7), computerized scientific notation otherwise,
// and always at least one fractional digit.
func formatFloat(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}
	if abs := math.Abs(v); abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(v, 'f', -1, bits)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(v, 'E', -1, bits)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	e, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(e)
}

// ---------------------------------------------------------------------------
// java/lang/System
// ---------------------------------------------------------------------------

func systemClass() *NativeClass {
	return &NativeClass{
		Name:        "java/lang/System",
		AccessFlags: classfile.AccPublic | classfile.AccFinal,
		Super:       "java/lang/Object",
		Fields: []NativeField{
			{Name: "out", Descriptor: "Ljava/io/PrintStream;", AccessFlags: classfile.AccPublic | classfile.AccStatic | classfile.AccFinal},
			{Name: "err", Descriptor: "Ljava/io/PrintStream;", AccessFlags: classfile.AccPublic | classfile.AccStatic | classfile.AccFinal},
		},
		Methods: []NativeMethod{
			staticMethod("currentTimeMillis", "()J", func(*Runtime, []Value) (Value, error) {
				return LongValue(time.Now().UnixMilli()), nil
			}),
			staticMethod("nanoTime", "()J", func(*Runtime, []Value) (Value, error) {
				return LongValue(time.Now().UnixNano()), nil
			}),
		},
	}
}
