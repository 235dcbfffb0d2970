package vm

import (
	"math"
	"testing"
)

func TestPrintForms(t *testing.T) {
	tests := []struct {
		desc string
		arg  Value
		want string
	}{
		{"(I)V", IntValue(-3), "-3\n"},
		{"(J)V", LongValue(1 << 40), "1099511627776\n"},
		{"(Z)V", BoolValue(true), "true\n"},
		{"(C)V", IntValue('é'), "é\n"},
		{"(F)V", FloatValue(0.1), "0.1\n"},
		{"(D)V", DoubleValue(2), "2.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			rt := newTestRuntime(t, Options{})
			out, _ := rt.SystemClass.GetStatic("out")
			m := rt.PrintStreamClass.DeclaredMethod("println", tt.desc)
			if m == nil {
				t.Fatalf("no println%s", tt.desc)
			}
			if _, err := rt.Invoke(m, out, tt.arg); err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if rt.out.String() != tt.want {
				t.Errorf("stdout = %q, want %q", rt.out.String(), tt.want)
			}
		})
	}
}

func TestPrintObjectAndErr(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	errStream, _ := rt.SystemClass.GetStatic("err")
	obj, err := rt.New(rt.ObjectClass)
	if err != nil {
		t.Fatal(err)
	}
	m := rt.PrintStreamClass.DeclaredMethod("print", "(Ljava/lang/Object;)V")
	if _, err := rt.Invoke(m, errStream, RefValue(obj)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if _, err := rt.Invoke(m, errStream, RefValue(Null)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := rt.err.String(); got != "java.lang.Object@0null" {
		t.Errorf("stderr = %q", got)
	}
	if rt.out.Len() != 0 {
		t.Errorf("stdout = %q, want empty", rt.out.String())
	}
}

func TestStringNatives(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	hello, _ := rt.Intern("hello")
	call := func(name, desc string, args ...Value) Value {
		t.Helper()
		v, err := rt.Invoke(rt.method(t, rt.StringClass, name, desc), append([]Value{RefValue(hello)}, args...)...)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return v
	}
	if v := call("hashCode", "()I"); v.Int() != 99162322 {
		t.Errorf("hashCode = %d, want 99162322", v.Int())
	}
	if v := call("charAt", "(I)C", IntValue(1)); v.Int() != 'e' {
		t.Errorf("charAt(1) = %c", rune(v.Int()))
	}
	other, _ := rt.NewString("hello")
	if v := call("equals", "(Ljava/lang/Object;)Z", RefValue(other)); v.Int() != 1 {
		t.Error("equals of equal contents is false")
	}
	if v := call("isEmpty", "()Z"); v.Int() != 0 {
		t.Error("isEmpty of hello")
	}
	_, err := rt.Invoke(rt.method(t, rt.StringClass, "charAt", "(I)C"), RefValue(hello), IntValue(5))
	if err == nil {
		t.Error("charAt(5) succeeded")
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		v    float64
		bits int
		want string
	}{
		{1, 64, "1.0"},
		{-0.5, 64, "-0.5"},
		{100, 32, "100.0"},
		{1e7, 64, "1.0E7"},
		{1.5e-5, 64, "1.5E-5"},
		{0.001, 64, "0.001"},
		{math.Copysign(0, -1), 64, "-0.0"},
		{math.Inf(-1), 64, "-Infinity"},
		{math.NaN(), 32, "NaN"},
		{float64(float32(0.1)), 32, "0.1"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.v, tt.bits); got != tt.want {
			t.Errorf("formatFloat(%v, %d) = %q, want %q", tt.v, tt.bits, got, tt.want)
		}
	}
}
