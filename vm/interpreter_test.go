package vm

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/javelin/bytecode"
	"github.com/chazu/javelin/classfile"
)

func runMain(t *testing.T, rt *testRuntime, b *classfile.Builder) (Result, error) {
	t.Helper()
	return rt.RunMain(rt.define(t, b))
}

// ---------------------------------------------------------------------------
// Entry points and arithmetic
// ---------------------------------------------------------------------------

func TestMainReturnsProduct(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	res, err := runMain(t, rt, mainClass("()I", 2, 0, func(*classfile.Builder) []byte {
		return asm(bytecode.OpIconst2, bytecode.OpIconst5, bytecode.OpImul, bytecode.OpIreturn)
	}))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if res.Value.Int() != 10 || res.String() != "10" {
		t.Errorf("result = %d (%q), want 10", res.Value.Int(), res.String())
	}
	if rt.Stack.Depth() != 0 {
		t.Errorf("Depth after return = %d", rt.Stack.Depth())
	}
}

func TestDivisionByZero(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	_, err := runMain(t, rt, mainClass("()I", 2, 0, func(*classfile.Builder) []byte {
		return asm(bytecode.OpIconst5, bytecode.OpIconst0, bytecode.OpIdiv, bytecode.OpIreturn)
	}))
	if !errors.Is(err, ErrDivisionByZero) || !errors.Is(err, ErrExecution) {
		t.Fatalf("err = %v, want division by zero", err)
	}
	var ee *ExecError
	if !errors.As(err, &ee) {
		t.Fatalf("err is %T, want *ExecError", err)
	}
	if ee.Class != "Main" || ee.Method != "main()I" || ee.PC != 2 || ee.Op != bytecode.OpIdiv {
		t.Errorf("ExecError = %+v", ee)
	}
	if rt.Stack.Depth() != 0 {
		t.Errorf("stack not unwound: depth %d", rt.Stack.Depth())
	}
}

func TestIntArithmetic(t *testing.T) {
	tests := []struct {
		name string
		code func(b *classfile.Builder) []byte
		want int32
	}{
		{"min div -1 wraps", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdcW, u16(b.Integer(math.MinInt32)), bytecode.OpIconstM1, bytecode.OpIdiv, bytecode.OpIreturn)
		}, math.MinInt32},
		{"min rem -1", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdcW, u16(b.Integer(math.MinInt32)), bytecode.OpIconstM1, bytecode.OpIrem, bytecode.OpIreturn)
		}, 0},
		{"add overflow", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc, int(b.Integer(math.MaxInt32)), bytecode.OpIconst1, bytecode.OpIadd, bytecode.OpIreturn)
		}, math.MinInt32},
		{"rem sign follows dividend", func(*classfile.Builder) []byte {
			return asm(bytecode.OpBipush, -7, bytecode.OpIconst3, bytecode.OpIrem, bytecode.OpIreturn)
		}, -1},
		{"shift count masked", func(*classfile.Builder) []byte {
			return asm(bytecode.OpIconst1, bytecode.OpBipush, 33, bytecode.OpIshl, bytecode.OpIreturn)
		}, 2},
		{"arithmetic shift", func(*classfile.Builder) []byte {
			return asm(bytecode.OpBipush, -16, bytecode.OpIconst2, bytecode.OpIshr, bytecode.OpIreturn)
		}, -4},
		{"logical shift", func(*classfile.Builder) []byte {
			return asm(bytecode.OpIconstM1, bytecode.OpBipush, 28, bytecode.OpIushr, bytecode.OpIreturn)
		}, 15},
		{"xor and or", func(*classfile.Builder) []byte {
			return asm(bytecode.OpBipush, 12, bytecode.OpBipush, 10, bytecode.OpIxor, bytecode.OpIconst1, bytecode.OpIor, bytecode.OpIconst4, bytecode.OpIneg, bytecode.OpIand, bytecode.OpIreturn)
		}, 4},
		{"i2b", func(*classfile.Builder) []byte {
			return asm(bytecode.OpSipush, u16(200), bytecode.OpI2b, bytecode.OpIreturn)
		}, -56},
		{"i2c", func(*classfile.Builder) []byte {
			return asm(bytecode.OpIconstM1, bytecode.OpI2c, bytecode.OpIreturn)
		}, 65535},
		{"i2s", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc, int(b.Integer(70000)), bytecode.OpI2s, bytecode.OpIreturn)
		}, 4464},
		{"f2i of NaN", func(*classfile.Builder) []byte {
			return asm(bytecode.OpFconst0, bytecode.OpFconst0, bytecode.OpFdiv, bytecode.OpF2i, bytecode.OpIreturn)
		}, 0},
		{"d2i saturates", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc2W, u16(b.Double(1e20)), bytecode.OpD2i, bytecode.OpIreturn)
		}, math.MaxInt32},
		{"f2i truncates", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc, int(b.Float(-2.75)), bytecode.OpF2i, bytecode.OpIreturn)
		}, -2},
		{"fcmpl NaN", func(*classfile.Builder) []byte {
			return asm(bytecode.OpFconst0, bytecode.OpFconst0, bytecode.OpFdiv, bytecode.OpFconst1, bytecode.OpFcmpl, bytecode.OpIreturn)
		}, -1},
		{"fcmpg NaN", func(*classfile.Builder) []byte {
			return asm(bytecode.OpFconst0, bytecode.OpFconst0, bytecode.OpFdiv, bytecode.OpFconst1, bytecode.OpFcmpg, bytecode.OpIreturn)
		}, 1},
		{"dcmpl ordered", func(*classfile.Builder) []byte {
			return asm(bytecode.OpDconst1, bytecode.OpDconst0, bytecode.OpDcmpl, bytecode.OpIreturn)
		}, 1},
		{"lcmp", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLconst1, bytecode.OpLdc2W, u16(b.Long(5)), bytecode.OpLcmp, bytecode.OpIreturn)
		}, -1},
		{"dup_x1 and swap", func(*classfile.Builder) []byte {
			// 2 3 -> 3 2 3 -> 3 3 2 ; 3 - 2 = 1 ; 3 * 1
			return asm(bytecode.OpIconst2, bytecode.OpIconst3, bytecode.OpDupX1, bytecode.OpSwap, bytecode.OpIsub, bytecode.OpImul, bytecode.OpIreturn)
		}, 3},
		{"dup2 of long", func(*classfile.Builder) []byte {
			return asm(bytecode.OpLconst1, bytecode.OpDup2, bytecode.OpLadd, bytecode.OpL2i, bytecode.OpIreturn)
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newTestRuntime(t, Options{})
			res, err := runMain(t, rt, mainClass("()I", 6, 2, tt.code))
			if err != nil {
				t.Fatalf("RunMain: %v", err)
			}
			if got := res.Value.Int(); got != tt.want {
				t.Errorf("result = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLongArithmetic(t *testing.T) {
	tests := []struct {
		name string
		code func(b *classfile.Builder) []byte
		want int64
	}{
		{"ladd", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc2W, u16(b.Long(1<<40)), bytecode.OpLconst1, bytecode.OpLadd, bytecode.OpLreturn)
		}, 1<<40 + 1},
		{"ldiv truncates toward zero", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc2W, u16(b.Long(-9)), bytecode.OpLdc2W, u16(b.Long(2)), bytecode.OpLdiv, bytecode.OpLreturn)
		}, -4},
		{"lshl masks to 63", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLconst1, bytecode.OpBipush, 65, bytecode.OpLshl, bytecode.OpLreturn)
		}, 2},
		{"lushr", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc2W, u16(b.Long(-1)), bytecode.OpBipush, 60, bytecode.OpLushr, bytecode.OpLreturn)
		}, 15},
		{"i2l sign extends", func(*classfile.Builder) []byte {
			return asm(bytecode.OpIconstM1, bytecode.OpI2l, bytecode.OpLreturn)
		}, -1},
		{"d2l saturates", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc2W, u16(b.Double(-1e30)), bytecode.OpD2l, bytecode.OpLreturn)
		}, math.MinInt64},
		{"lneg", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc2W, u16(b.Long(42)), bytecode.OpLneg, bytecode.OpLreturn)
		}, -42},
		{"long locals", func(b *classfile.Builder) []byte {
			return asm(bytecode.OpLdc2W, u16(b.Long(7)), bytecode.OpLstore0, bytecode.OpLload0, bytecode.OpLload0, bytecode.OpLmul, bytecode.OpLreturn)
		}, 49},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newTestRuntime(t, Options{})
			res, err := runMain(t, rt, mainClass("()J", 6, 2, tt.code))
			if err != nil {
				t.Fatalf("RunMain: %v", err)
			}
			if got := res.Value.Long(); got != tt.want {
				t.Errorf("result = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFloatArithmetic(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	c := rt.define(t, func() *classfile.Builder {
		b := classfile.NewBuilder("Main", "java/lang/Object")
		b.AddMethod(classfile.AccStatic, "frem", "()F", 4, 0,
			asm(bytecode.OpLdc, int(b.Float(5.5)), bytecode.OpFconst2, bytecode.OpFrem, bytecode.OpFreturn))
		b.AddMethod(classfile.AccStatic, "ddiv", "()D", 4, 0,
			asm(bytecode.OpDconst1, bytecode.OpLdc2W, u16(b.Double(4)), bytecode.OpDdiv, bytecode.OpDreturn))
		b.AddMethod(classfile.AccStatic, "half", "(D)D", 4, 2,
			asm(bytecode.OpDload0, bytecode.OpLdc2W, u16(b.Double(0.5)), bytecode.OpDmul, bytecode.OpDreturn))
		return b
	}())

	v, err := rt.Invoke(rt.method(t, c, "frem", "()F"))
	if err != nil || v.Float() != 1.5 {
		t.Errorf("frem = %v, %v; want 1.5", v.Float(), err)
	}
	v, err = rt.Invoke(rt.method(t, c, "ddiv", "()D"))
	if err != nil || v.Double() != 0.25 {
		t.Errorf("ddiv = %v, %v; want 0.25", v.Double(), err)
	}
	v, err = rt.Invoke(rt.method(t, c, "half", "(D)D"), DoubleValue(3))
	if err != nil || v.Double() != 1.5 {
		t.Errorf("half(3) = %v, %v; want 1.5", v.Double(), err)
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestLoopSum(t *testing.T) {
	// int s = 0; for (int i = 1; i <= 10; i++) s += i; return s;
	rt := newTestRuntime(t, Options{})
	res, err := runMain(t, rt, mainClass("()I", 2, 2, func(*classfile.Builder) []byte {
		return asm(
			bytecode.OpIconst0, bytecode.OpIstore0, // 0, 1
			bytecode.OpIconst1, bytecode.OpIstore1, // 2, 3
			bytecode.OpIload1, bytecode.OpBipush, 10, // 4, 5
			bytecode.OpIfIcmpgt, s16(13), // 7 -> 20
			bytecode.OpIload0, bytecode.OpIload1, bytecode.OpIadd, bytecode.OpIstore0, // 10..13
			bytecode.OpIinc, 1, 1, // 14
			bytecode.OpGoto, s16(-13), // 17 -> 4
			bytecode.OpIload0, bytecode.OpIreturn, // 20, 21
		)
	}))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if res.Value.Int() != 55 {
		t.Errorf("sum = %d, want 55", res.Value.Int())
	}
}

func TestConditionalBranches(t *testing.T) {
	tests := []struct {
		op   bytecode.Opcode
		a, b int
		want int32
	}{
		{bytecode.OpIfIcmpeq, 3, 3, 1},
		{bytecode.OpIfIcmpne, 3, 3, 0},
		{bytecode.OpIfIcmplt, 2, 3, 1},
		{bytecode.OpIfIcmpge, 2, 3, 0},
		{bytecode.OpIfIcmpgt, 4, 3, 1},
		{bytecode.OpIfIcmple, 4, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			rt := newTestRuntime(t, Options{})
			res, err := runMain(t, rt, mainClass("()I", 2, 0, func(*classfile.Builder) []byte {
				// 0 bipush a; 2 bipush b; 4 if 7 -> 9; 7 iconst_0; 8 ireturn; 9 iconst_1; 10 ireturn
				return asm(bytecode.OpBipush, tt.a, bytecode.OpBipush, tt.b, tt.op, s16(5),
					bytecode.OpIconst0, bytecode.OpIreturn, bytecode.OpIconst1, bytecode.OpIreturn)
			}))
			if err != nil {
				t.Fatalf("RunMain: %v", err)
			}
			if res.Value.Int() != tt.want {
				t.Errorf("result = %d, want %d", res.Value.Int(), tt.want)
			}
		})
	}
}

func TestCodeOverrun(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	_, err := runMain(t, rt, mainClass("()I", 1, 0, func(*classfile.Builder) []byte {
		return asm(bytecode.OpNop)
	}))
	if !errors.Is(err, ErrCodeOverrun) {
		t.Errorf("err = %v, want ErrCodeOverrun", err)
	}
}

func TestUnsupportedOpcodes(t *testing.T) {
	tests := []struct {
		name string
		code func(b *classfile.Builder) []byte
	}{
		{"new", func(b *classfile.Builder) []byte { return asm(bytecode.OpNew, u16(b.Class("Main")), bytecode.OpPop, bytecode.OpReturn) }},
		{"athrow", func(*classfile.Builder) []byte { return asm(bytecode.OpAconstNull, bytecode.OpAthrow) }},
		{"ifnull", func(*classfile.Builder) []byte { return asm(bytecode.OpAconstNull, bytecode.OpIfnull, s16(3), bytecode.OpReturn) }},
		{"newarray", func(*classfile.Builder) []byte { return asm(bytecode.OpIconst1, bytecode.OpNewarray, 10, bytecode.OpPop, bytecode.OpReturn) }},
		{"monitorenter", func(*classfile.Builder) []byte { return asm(bytecode.OpAconstNull, bytecode.OpMonitorenter, bytecode.OpReturn) }},
		{"ldc class", func(b *classfile.Builder) []byte { return asm(bytecode.OpLdcW, u16(b.Class("Main")), bytecode.OpPop, bytecode.OpReturn) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newTestRuntime(t, Options{})
			_, err := runMain(t, rt, mainClass("([Ljava/lang/String;)V", 2, 1, tt.code))
			if !errors.Is(err, ErrNotSupported) {
				t.Errorf("err = %v, want ErrNotSupported", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

func TestStaticFieldThroughSuperclass(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	b := classfile.NewBuilder("B", "java/lang/Object")
	b.AddField(classfile.AccStatic, "count", "I")
	classB := rt.define(t, b)

	a := classfile.NewBuilder("A", "B")
	a.AddMethod(classfile.AccStatic, "main", "()I", 2, 0, asm(
		bytecode.OpBipush, 42, bytecode.OpPutstatic, u16(a.Fieldref("B", "count", "I")),
		bytecode.OpGetstatic, u16(a.Fieldref("A", "count", "I")),
		bytecode.OpIreturn,
	))
	res, err := rt.RunMain(rt.define(t, a))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if res.Value.Int() != 42 {
		t.Errorf("getstatic A.count = %d, want 42", res.Value.Int())
	}
	if v, _ := classB.GetStatic("count"); v.Int() != 42 {
		t.Errorf("B.count = %d, want 42", v.Int())
	}
}

func TestInstanceFields(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	b := classfile.NewBuilder("Point", "java/lang/Object")
	b.AddField(0, "x", "I")
	b.AddField(0, "y", "J")
	b.AddMethod(classfile.AccStatic, "sum", "(LPoint;)J", 4, 1, asm(
		bytecode.OpAload0, bytecode.OpBipush, 5, bytecode.OpPutfield, u16(b.Fieldref("Point", "x", "I")),
		bytecode.OpAload0, bytecode.OpLdc2W, u16(b.Long(7)), bytecode.OpPutfield, u16(b.Fieldref("Point", "y", "J")),
		bytecode.OpAload0, bytecode.OpGetfield, u16(b.Fieldref("Point", "x", "I")), bytecode.OpI2l,
		bytecode.OpAload0, bytecode.OpGetfield, u16(b.Fieldref("Point", "y", "J")),
		bytecode.OpLadd, bytecode.OpLreturn,
	))
	c := rt.define(t, b)
	p, err := rt.New(c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := rt.Invoke(rt.method(t, c, "sum", "(LPoint;)J"), RefValue(p))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Long() != 12 {
		t.Errorf("sum = %d, want 12", v.Long())
	}
	if x, _ := rt.GetField(p, "x"); x.Int() != 5 {
		t.Errorf("x = %d, want 5", x.Int())
	}

	_, err = rt.Invoke(rt.method(t, c, "sum", "(LPoint;)J"), RefValue(Null))
	if !errors.Is(err, ErrNullReference) {
		t.Errorf("null receiver: err = %v, want ErrNullReference", err)
	}
}

func TestFieldResolutionErrors(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	_, err := runMain(t, rt, mainClass("()I", 1, 0, func(b *classfile.Builder) []byte {
		return asm(bytecode.OpGetstatic, u16(b.Fieldref("Main", "missing", "I")), bytecode.OpIreturn)
	}))
	if !errors.Is(err, ErrFieldNotFound) || !errors.Is(err, ErrResolution) {
		t.Errorf("missing field: err = %v", err)
	}

	rt = newTestRuntime(t, Options{})
	_, err = runMain(t, rt, mainClass("()I", 1, 0, func(b *classfile.Builder) []byte {
		return asm(bytecode.OpGetstatic, u16(b.Fieldref("nowhere/Gone", "x", "I")), bytecode.OpIreturn)
	}))
	if !errors.Is(err, ErrClassNotFound) {
		t.Errorf("missing class: err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

func TestFrameIsolation(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	b := classfile.NewBuilder("Main", "java/lang/Object")
	b.AddMethod(classfile.AccStatic, "g", "(I)I", 2, 1, asm(
		bytecode.OpBipush, 99, bytecode.OpIstore0, bytecode.OpIload0, bytecode.OpIreturn,
	))
	b.AddMethod(classfile.AccStatic, "main", "()I", 3, 1, asm(
		bytecode.OpIconst3, bytecode.OpIstore0,
		bytecode.OpIconst1, bytecode.OpIload0, bytecode.OpInvokestatic, u16(b.Methodref("Main", "g", "(I)I")),
		bytecode.OpIadd, bytecode.OpIload0, bytecode.OpIadd, bytecode.OpIreturn, // 1 + 99 + 3
	))
	res, err := runMain(t, rt, b)
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if res.Value.Int() != 103 {
		t.Errorf("result = %d, want 103", res.Value.Int())
	}
}

func TestArgumentOrder(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	b := classfile.NewBuilder("Main", "java/lang/Object")
	// (a, b, c) -> a*100 + c with a long in the middle.
	b.AddMethod(classfile.AccStatic, "f", "(IJI)I", 3, 4, asm(
		bytecode.OpIload0, bytecode.OpBipush, 100, bytecode.OpImul, bytecode.OpIload3, bytecode.OpIadd, bytecode.OpIreturn,
	))
	b.AddMethod(classfile.AccStatic, "main", "()I", 4, 0, asm(
		bytecode.OpIconst2, bytecode.OpLconst1, bytecode.OpIconst5,
		bytecode.OpInvokestatic, u16(b.Methodref("Main", "f", "(IJI)I")), bytecode.OpIreturn,
	))
	res, err := runMain(t, rt, b)
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if res.Value.Int() != 205 {
		t.Errorf("result = %d, want 205", res.Value.Int())
	}
}

func animals(t *testing.T, rt *testRuntime) (animal, dog *Class) {
	t.Helper()
	a := classfile.NewBuilder("Animal", "java/lang/Object")
	a.AddMethod(classfile.AccPublic, "sound", "()I", 1, 1, asm(bytecode.OpIconst1, bytecode.OpIreturn))
	a.AddMethod(classfile.AccStatic, "call", "(LAnimal;)I", 1, 1, asm(
		bytecode.OpAload0, bytecode.OpInvokevirtual, u16(a.Methodref("Animal", "sound", "()I")), bytecode.OpIreturn,
	))
	a.AddMethod(classfile.AccStatic, "base", "(LAnimal;)I", 1, 1, asm(
		bytecode.OpAload0, bytecode.OpInvokespecial, u16(a.Methodref("Animal", "sound", "()I")), bytecode.OpIreturn,
	))
	animal = rt.define(t, a)

	d := classfile.NewBuilder("Dog", "Animal")
	d.AddMethod(classfile.AccPublic, "sound", "()I", 1, 1, asm(bytecode.OpIconst2, bytecode.OpIreturn))
	dog = rt.define(t, d)
	return animal, dog
}

func TestVirtualDispatch(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	animal, dog := animals(t, rt)
	call := rt.method(t, animal, "call", "(LAnimal;)I")
	base := rt.method(t, animal, "base", "(LAnimal;)I")

	for _, tt := range []struct {
		class *Class
		m     *Method
		want  int32
	}{
		{animal, call, 1},
		{dog, call, 2},
		{dog, base, 1},
	} {
		r, err := rt.New(tt.class)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		v, err := rt.Invoke(tt.m, RefValue(r))
		if err != nil {
			t.Fatalf("Invoke %s on %s: %v", tt.m.Name, tt.class.Name, err)
		}
		if v.Int() != tt.want {
			t.Errorf("%s on %s = %d, want %d", tt.m.Name, tt.class.Name, v.Int(), tt.want)
		}
	}

	_, err := rt.Invoke(call, RefValue(Null))
	if !errors.Is(err, ErrNullReference) {
		t.Errorf("null receiver: err = %v, want ErrNullReference", err)
	}
}

func TestInterfaceDispatch(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	i := classfile.NewBuilder("Shape", "java/lang/Object")
	i.AccessFlags = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	i.AddAbstractMethod(classfile.AccPublic|classfile.AccAbstract, "sides", "()I")
	rt.define(t, i)

	sq := classfile.NewBuilder("Square", "java/lang/Object")
	sq.AddInterface("Shape")
	sq.AddMethod(classfile.AccPublic, "sides", "()I", 1, 1, asm(bytecode.OpIconst4, bytecode.OpIreturn))
	sq.AddMethod(classfile.AccStatic, "count", "(LShape;)I", 1, 1, asm(
		bytecode.OpAload0, bytecode.OpInvokeinterface, u16(sq.InterfaceMethodref("Shape", "sides", "()I")), 1, 0,
		bytecode.OpIreturn,
	))
	c := rt.define(t, sq)
	r, _ := rt.New(c)
	v, err := rt.Invoke(rt.method(t, c, "count", "(LShape;)I"), RefValue(r))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Int() != 4 {
		t.Errorf("sides = %d, want 4", v.Int())
	}
}

func TestInvokedynamicCallsNamedMethod(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	b := classfile.NewBuilder("Main", "java/lang/Object")
	b.AddMethod(classfile.AccStatic, "seven", "()I", 1, 0, asm(bytecode.OpBipush, 7, bytecode.OpIreturn))
	b.AddMethod(classfile.AccStatic, "main", "()I", 1, 0, asm(
		bytecode.OpInvokedynamic, u16(b.InvokeDynamic(0, "seven", "()I")), 0, 0, bytecode.OpIreturn,
	))
	res, err := runMain(t, rt, b)
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if res.Value.Int() != 7 {
		t.Errorf("result = %d, want 7", res.Value.Int())
	}
}

func TestAbstractMethodInvocation(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	closeable := rt.Classes.Lookup("java/io/Closeable")
	m := closeable.DeclaredMethod("close", "()V")
	_, err := rt.Invoke(m, RefValue(Null))
	if !errors.Is(err, ErrAbstractMethod) {
		t.Errorf("err = %v, want ErrAbstractMethod", err)
	}
	_, err = rt.Invoke(m)
	if !errors.Is(err, ErrIncompatible) {
		t.Errorf("missing receiver: err = %v, want ErrIncompatible", err)
	}
}

func TestStackOverflowUnwinds(t *testing.T) {
	rt := newTestRuntime(t, Options{StackBytes: 1024})
	b := classfile.NewBuilder("Main", "java/lang/Object")
	b.AddMethod(classfile.AccStatic, "main", "()I", 1, 0, asm(
		bytecode.OpInvokestatic, u16(b.Methodref("Main", "main", "()I")), bytecode.OpIreturn,
	))
	_, err := runMain(t, rt, b)
	if !errors.Is(err, ErrStackOverflow) || !errors.Is(err, ErrCapacity) {
		t.Fatalf("err = %v, want stack overflow", err)
	}
	if rt.Stack.Depth() != 0 {
		t.Errorf("depth after overflow = %d, want 0", rt.Stack.Depth())
	}
	// The runtime stays usable.
	res, err := runMain(t, rt, productClass())
	if err != nil || res.Value.Int() != 10 {
		t.Errorf("after overflow: %v, %v", res.Value.Int(), err)
	}
}

func productClass() *classfile.Builder {
	b := classfile.NewBuilder("Product", "java/lang/Object")
	b.AddMethod(classfile.AccStatic, "main", "()I", 2, 0,
		asm(bytecode.OpIconst2, bytecode.OpIconst5, bytecode.OpImul, bytecode.OpIreturn))
	return b
}

// ---------------------------------------------------------------------------
// Strings and output
// ---------------------------------------------------------------------------

func TestPrintlnInt(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	_, err := runMain(t, rt, mainClass("([Ljava/lang/String;)V", 2, 1, func(b *classfile.Builder) []byte {
		return asm(
			bytecode.OpGetstatic, u16(b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")),
			bytecode.OpBipush, 42,
			bytecode.OpInvokevirtual, u16(b.Methodref("java/io/PrintStream", "println", "(I)V")),
			bytecode.OpReturn,
		)
	}))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if got := rt.out.String(); got != "42\n" {
		t.Errorf("stdout = %q, want %q", got, "42\n")
	}
}

func TestStringConstants(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	res, err := runMain(t, rt, mainClass("()I", 3, 0, func(b *classfile.Builder) []byte {
		return asm(
			bytecode.OpGetstatic, u16(b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")),
			bytecode.OpLdc, int(b.StringConst("jav")), bytecode.OpLdc, int(b.StringConst("elin")),
			bytecode.OpInvokevirtual, u16(b.Methodref("java/lang/String", "concat", "(Ljava/lang/String;)Ljava/lang/String;")),
			bytecode.OpInvokevirtual, u16(b.Methodref("java/io/PrintStream", "print", "(Ljava/lang/String;)V")),
			bytecode.OpLdc, int(b.StringConst("hello")),
			bytecode.OpInvokevirtual, u16(b.Methodref("java/lang/String", "length", "()I")),
			bytecode.OpIreturn,
		)
	}))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if res.Value.Int() != 5 {
		t.Errorf("length = %d, want 5", res.Value.Int())
	}
	if rt.out.String() != "javelin" {
		t.Errorf("stdout = %q", rt.out.String())
	}
}

func TestLdcInternsStrings(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	res, err := runMain(t, rt, mainClass("()I", 2, 0, func(b *classfile.Builder) []byte {
		s := b.StringConst("same")
		// 0 ldc; 2 ldc; 4 if_acmpeq 7 -> 9; 7 iconst_0; 8 ireturn; 9 iconst_1; 10 ireturn
		return asm(bytecode.OpLdc, int(s), bytecode.OpLdc, int(s), bytecode.OpIfAcmpeq, s16(5), bytecode.OpIconst0, bytecode.OpIreturn, bytecode.OpIconst1, bytecode.OpIreturn)
	}))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if res.Value.Int() != 1 {
		t.Error("two ldc of one literal gave different references")
	}
}
