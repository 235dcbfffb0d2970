package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/javelin/bytecode"
	"github.com/chazu/javelin/classfile"
)

// ---------------------------------------------------------------------------
// Invocation boundary
// ---------------------------------------------------------------------------

// Invoke runs m with the given arguments: one Value per declared argument,
// preceded by the receiver for instance methods. Any fatal condition raised
// while running is returned as an *ExecError and the call stack is unwound
// to where it was.
func (rt *Runtime) Invoke(m *Method, args ...Value) (result Value, err error) {
	depth := rt.Stack.Depth()
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(trap)
			if !ok {
				panic(r)
			}
			err = rt.execError(t.err)
			rt.Stack.unwindTo(depth)
		}
	}()
	return rt.enter(m, args), nil
}

func (rt *Runtime) execError(err error) error {
	var ee *ExecError
	if errors.As(err, &ee) {
		return err
	}
	f := rt.Stack.Current()
	if f == nil || f.Method.Code == nil {
		return &ExecError{Err: err}
	}
	ee = &ExecError{
		Class:  f.Class.Name,
		Method: f.Method.Name + f.Method.Descriptor,
		PC:     f.PC,
		Err:    err,
	}
	if f.PC < len(f.Method.Code.Instructions) {
		ee.Op = f.Method.Code.Instructions[f.PC].Op
	}
	return ee
}

// enter calls m from the host with arguments held in Go values.
func (rt *Runtime) enter(m *Method, args []Value) Value {
	want := len(m.Type.Args)
	if !m.IsStatic() {
		want++
	}
	if len(args) != want {
		throwf(ErrIncompatible, "%s takes %d arguments, got %d", m, want, len(args))
	}
	switch {
	case m.Native != nil:
		v, err := m.Native(rt, args)
		if err != nil {
			throw(err)
		}
		return v
	case m.Code == nil:
		throwf(ErrAbstractMethod, "%s", m)
	}

	st := rt.Stack
	if _, err := st.Call(m); err != nil {
		throw(err)
	}
	slot := 0
	if !m.IsStatic() {
		st.Set(0, args[0], KindRef)
		args = args[1:]
		slot = 1
	}
	for i, t := range m.Type.Args {
		st.Set(slot, args[i], kindOf(t))
		slot += t.Slots()
	}
	return rt.execute()
}

// invoke calls m with its arguments on the current operand stack and pushes
// the result, if any.
func (rt *Runtime) invoke(m *Method) {
	st := rt.Stack
	switch {
	case m.Native != nil:
		args := rt.peekArgs(m)
		v, err := m.Native(rt, args)
		st.Drop(m.ArgSlots())
		if err != nil {
			throw(err)
		}
		rt.pushResult(m.Type.Return, v)
	case m.Code != nil:
		if _, err := st.Call(m); err != nil {
			throw(err)
		}
		st.passArgs(m.ArgSlots())
		rt.pushResult(m.Type.Return, rt.execute())
	default:
		throwf(ErrAbstractMethod, "%s", m)
	}
}

// peekArgs reads a native call's arguments without popping them, so they
// stay rooted while the native runs.
func (rt *Runtime) peekArgs(m *Method) []Value {
	st := rt.Stack
	n := m.ArgSlots()
	args := make([]Value, 0, len(m.Type.Args)+1)
	depth := n - 1
	if !m.IsStatic() {
		v, _ := st.Peek(depth)
		args = append(args, v)
		depth--
	}
	for _, t := range m.Type.Args {
		v, _ := st.Peek(depth)
		args = append(args, v)
		depth -= t.Slots()
	}
	return args
}

func (rt *Runtime) pushResult(t classfile.Type, v Value) {
	switch {
	case t.IsVoid():
	case t.Slots() == 2:
		rt.Stack.PushWide(v)
	case t.IsReference():
		rt.Stack.PushRef(v.Ref())
	default:
		rt.Stack.Push(v)
	}
}

func (rt *Runtime) popTyped(t classfile.Type) Value {
	if t.Slots() == 2 {
		return rt.Stack.PopWide()
	}
	return rt.Stack.Pop()
}

func kindOf(t classfile.Type) Kind {
	if t.IsReference() {
		return KindRef
	}
	return KindPrim
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// execute runs the current frame until it returns, then pops it and returns
// its result (zero for void methods).
func (rt *Runtime) execute() Value {
	st := rt.Stack
	for {
		f := st.Current()
		code := f.Method.Code.Instructions
		if f.PC >= len(code) {
			throw(ErrCodeOverrun)
		}
		in := &code[f.PC]
		jump := -1

		switch in.Op {
		case bytecode.OpNop:

		// --- Constants ---

		case bytecode.OpAconstNull:
			st.PushRef(Null)
		case bytecode.OpIconstM1, bytecode.OpIconst0, bytecode.OpIconst1, bytecode.OpIconst2,
			bytecode.OpIconst3, bytecode.OpIconst4, bytecode.OpIconst5,
			bytecode.OpBipush, bytecode.OpSipush:
			st.Push(IntValue(in.Value))
		case bytecode.OpLconst0, bytecode.OpLconst1:
			st.PushWide(LongValue(int64(in.Value)))
		case bytecode.OpFconst0, bytecode.OpFconst1, bytecode.OpFconst2:
			st.Push(FloatValue(float32(in.Value)))
		case bytecode.OpDconst0, bytecode.OpDconst1:
			st.PushWide(DoubleValue(float64(in.Value)))
		case bytecode.OpLdc, bytecode.OpLdcW, bytecode.OpLdc2W:
			rt.loadConstant(f.Class, in.Index)

		// --- Loads and stores ---

		case bytecode.OpIload, bytecode.OpFload, bytecode.OpAload,
			bytecode.OpIload0, bytecode.OpIload1, bytecode.OpIload2, bytecode.OpIload3,
			bytecode.OpFload0, bytecode.OpFload1, bytecode.OpFload2, bytecode.OpFload3,
			bytecode.OpAload0, bytecode.OpAload1, bytecode.OpAload2, bytecode.OpAload3:
			st.PushKind(st.Slot(int(in.Index)))
		case bytecode.OpLload, bytecode.OpDload,
			bytecode.OpLload0, bytecode.OpLload1, bytecode.OpLload2, bytecode.OpLload3,
			bytecode.OpDload0, bytecode.OpDload1, bytecode.OpDload2, bytecode.OpDload3:
			st.PushWide(st.Get(int(in.Index)))
		case bytecode.OpIstore, bytecode.OpFstore, bytecode.OpAstore,
			bytecode.OpIstore0, bytecode.OpIstore1, bytecode.OpIstore2, bytecode.OpIstore3,
			bytecode.OpFstore0, bytecode.OpFstore1, bytecode.OpFstore2, bytecode.OpFstore3,
			bytecode.OpAstore0, bytecode.OpAstore1, bytecode.OpAstore2, bytecode.OpAstore3:
			v, k := st.PopKind()
			st.Set(int(in.Index), v, k)
		case bytecode.OpLstore, bytecode.OpDstore,
			bytecode.OpLstore0, bytecode.OpLstore1, bytecode.OpLstore2, bytecode.OpLstore3,
			bytecode.OpDstore0, bytecode.OpDstore1, bytecode.OpDstore2, bytecode.OpDstore3:
			v := st.PopWide()
			st.Set(int(in.Index), v, KindPrim)
			st.Set(int(in.Index)+1, 0, KindPrim)
		case bytecode.OpIinc:
			st.Set(int(in.Index), IntValue(st.Get(int(in.Index)).Int()+in.Value), KindPrim)

		// --- Stack manipulation ---

		case bytecode.OpPop:
			st.PopKind()
		case bytecode.OpPop2:
			st.Drop(2)
		case bytecode.OpDup:
			st.PushKind(st.Peek(0))
		case bytecode.OpDupX1:
			v1, k1 := st.PopKind()
			v2, k2 := st.PopKind()
			st.PushKind(v1, k1)
			st.PushKind(v2, k2)
			st.PushKind(v1, k1)
		case bytecode.OpDupX2:
			v1, k1 := st.PopKind()
			v2, k2 := st.PopKind()
			v3, k3 := st.PopKind()
			st.PushKind(v1, k1)
			st.PushKind(v3, k3)
			st.PushKind(v2, k2)
			st.PushKind(v1, k1)
		case bytecode.OpDup2:
			v2, k2 := st.Peek(1)
			v1, k1 := st.Peek(0)
			st.PushKind(v2, k2)
			st.PushKind(v1, k1)
		case bytecode.OpDup2X1:
			v1, k1 := st.PopKind()
			v2, k2 := st.PopKind()
			v3, k3 := st.PopKind()
			st.PushKind(v2, k2)
			st.PushKind(v1, k1)
			st.PushKind(v3, k3)
			st.PushKind(v2, k2)
			st.PushKind(v1, k1)
		case bytecode.OpDup2X2:
			v1, k1 := st.PopKind()
			v2, k2 := st.PopKind()
			v3, k3 := st.PopKind()
			v4, k4 := st.PopKind()
			st.PushKind(v2, k2)
			st.PushKind(v1, k1)
			st.PushKind(v4, k4)
			st.PushKind(v3, k3)
			st.PushKind(v2, k2)
			st.PushKind(v1, k1)
		case bytecode.OpSwap:
			v1, k1 := st.PopKind()
			v2, k2 := st.PopKind()
			st.PushKind(v1, k1)
			st.PushKind(v2, k2)

		// --- Arithmetic ---

		case bytecode.OpIadd, bytecode.OpIsub, bytecode.OpImul, bytecode.OpIdiv, bytecode.OpIrem,
			bytecode.OpIshl, bytecode.OpIshr, bytecode.OpIushr,
			bytecode.OpIand, bytecode.OpIor, bytecode.OpIxor:
			b := st.Pop().Int()
			a := st.Pop().Int()
			st.Push(IntValue(intOp(in.Op, a, b)))
		case bytecode.OpLadd, bytecode.OpLsub, bytecode.OpLmul, bytecode.OpLdiv, bytecode.OpLrem,
			bytecode.OpLand, bytecode.OpLor, bytecode.OpLxor:
			b := st.PopWide().Long()
			a := st.PopWide().Long()
			st.PushWide(LongValue(longOp(in.Op, a, b)))
		case bytecode.OpLshl, bytecode.OpLshr, bytecode.OpLushr:
			s := uint(st.Pop().Int() & 63)
			a := st.PopWide().Long()
			switch in.Op {
			case bytecode.OpLshl:
				a <<= s
			case bytecode.OpLshr:
				a >>= s
			default:
				a = int64(uint64(a) >> s)
			}
			st.PushWide(LongValue(a))
		case bytecode.OpFadd, bytecode.OpFsub, bytecode.OpFmul, bytecode.OpFdiv, bytecode.OpFrem:
			b := st.Pop().Float()
			a := st.Pop().Float()
			st.Push(FloatValue(float32(floatOp(in.Op, float64(a), float64(b)))))
		case bytecode.OpDadd, bytecode.OpDsub, bytecode.OpDmul, bytecode.OpDdiv, bytecode.OpDrem:
			b := st.PopWide().Double()
			a := st.PopWide().Double()
			st.PushWide(DoubleValue(floatOp(in.Op, a, b)))
		case bytecode.OpIneg:
			st.Push(IntValue(-st.Pop().Int()))
		case bytecode.OpLneg:
			st.PushWide(LongValue(-st.PopWide().Long()))
		case bytecode.OpFneg:
			st.Push(FloatValue(-st.Pop().Float()))
		case bytecode.OpDneg:
			st.PushWide(DoubleValue(-st.PopWide().Double()))

		// --- Conversions ---

		case bytecode.OpI2l:
			st.PushWide(LongValue(int64(st.Pop().Int())))
		case bytecode.OpI2f:
			st.Push(FloatValue(float32(st.Pop().Int())))
		case bytecode.OpI2d:
			st.PushWide(DoubleValue(float64(st.Pop().Int())))
		case bytecode.OpL2i:
			st.Push(IntValue(int32(st.PopWide().Long())))
		case bytecode.OpL2f:
			st.Push(FloatValue(float32(st.PopWide().Long())))
		case bytecode.OpL2d:
			st.PushWide(DoubleValue(float64(st.PopWide().Long())))
		case bytecode.OpF2i:
			st.Push(IntValue(toInt(float64(st.Pop().Float()))))
		case bytecode.OpF2l:
			st.PushWide(LongValue(toLong(float64(st.Pop().Float()))))
		case bytecode.OpF2d:
			st.PushWide(DoubleValue(float64(st.Pop().Float())))
		case bytecode.OpD2i:
			st.Push(IntValue(toInt(st.PopWide().Double())))
		case bytecode.OpD2l:
			st.PushWide(LongValue(toLong(st.PopWide().Double())))
		case bytecode.OpD2f:
			st.Push(FloatValue(float32(st.PopWide().Double())))
		case bytecode.OpI2b:
			st.Push(IntValue(int32(int8(st.Pop().Int()))))
		case bytecode.OpI2c:
			st.Push(IntValue(int32(uint16(st.Pop().Int()))))
		case bytecode.OpI2s:
			st.Push(IntValue(int32(int16(st.Pop().Int()))))

		// --- Comparisons ---

		case bytecode.OpLcmp:
			b := st.PopWide().Long()
			a := st.PopWide().Long()
			st.Push(IntValue(compare(a, b)))
		case bytecode.OpFcmpl, bytecode.OpFcmpg:
			b := float64(st.Pop().Float())
			a := float64(st.Pop().Float())
			st.Push(IntValue(fcompare(a, b, in.Op == bytecode.OpFcmpg)))
		case bytecode.OpDcmpl, bytecode.OpDcmpg:
			b := st.PopWide().Double()
			a := st.PopWide().Double()
			st.Push(IntValue(fcompare(a, b, in.Op == bytecode.OpDcmpg)))

		// --- Control flow ---

		case bytecode.OpIfeq, bytecode.OpIfne, bytecode.OpIflt,
			bytecode.OpIfge, bytecode.OpIfgt, bytecode.OpIfle:
			if test(in.Op-bytecode.OpIfeq, compare(st.Pop().Int(), 0)) {
				jump = in.Target
			}
		case bytecode.OpIfIcmpeq, bytecode.OpIfIcmpne, bytecode.OpIfIcmplt,
			bytecode.OpIfIcmpge, bytecode.OpIfIcmpgt, bytecode.OpIfIcmple:
			b := st.Pop().Int()
			a := st.Pop().Int()
			if test(in.Op-bytecode.OpIfIcmpeq, compare(a, b)) {
				jump = in.Target
			}
		case bytecode.OpIfAcmpeq, bytecode.OpIfAcmpne:
			b := st.Pop()
			a := st.Pop()
			if (a == b) == (in.Op == bytecode.OpIfAcmpeq) {
				jump = in.Target
			}
		case bytecode.OpGoto, bytecode.OpGotoW:
			jump = in.Target

		// --- Returns ---

		case bytecode.OpIreturn, bytecode.OpFreturn, bytecode.OpAreturn:
			v := st.Pop()
			st.Ret()
			return v
		case bytecode.OpLreturn, bytecode.OpDreturn:
			v := st.PopWide()
			st.Ret()
			return v
		case bytecode.OpReturn:
			st.Ret()
			return 0

		// --- Fields ---

		case bytecode.OpGetstatic:
			fld := rt.resolveField(f.Class, in.Index, true)
			rt.pushResult(fld.Type, fld.Owner.statics[fld.Offset])
		case bytecode.OpPutstatic:
			fld := rt.resolveField(f.Class, in.Index, true)
			fld.Owner.statics[fld.Offset] = rt.popTyped(fld.Type)
		case bytecode.OpGetfield:
			fld := rt.resolveField(f.Class, in.Index, false)
			obj := rt.instance(st.Pop().Ref(), fld)
			rt.pushResult(fld.Type, obj[headerWords+fld.Offset])
		case bytecode.OpPutfield:
			fld := rt.resolveField(f.Class, in.Index, false)
			v := rt.popTyped(fld.Type)
			obj := rt.instance(st.Pop().Ref(), fld)
			obj[headerWords+fld.Offset] = v

		// --- Invocation ---

		case bytecode.OpInvokestatic:
			m := rt.resolveMethod(f.Class, in.Index)
			if !m.IsStatic() {
				throwf(ErrIncompatible, "invokestatic of instance method %s", m)
			}
			rt.invoke(m)
		case bytecode.OpInvokespecial:
			m := rt.resolveMethod(f.Class, in.Index)
			rt.receiver(m)
			rt.invoke(m)
		case bytecode.OpInvokevirtual, bytecode.OpInvokeinterface:
			sym := rt.resolveMethod(f.Class, in.Index)
			rt.invoke(rt.dispatch(sym, rt.receiver(sym)))
		case bytecode.OpInvokedynamic:
			rt.invoke(rt.resolveDynamic(f.Class, in.Index))

		// --- Not supported ---

		case bytecode.OpNew, bytecode.OpNewarray, bytecode.OpAnewarray, bytecode.OpMultianewarray,
			bytecode.OpArraylength, bytecode.OpAthrow, bytecode.OpCheckcast, bytecode.OpInstanceof,
			bytecode.OpMonitorenter, bytecode.OpMonitorexit,
			bytecode.OpIfnull, bytecode.OpIfnonnull,
			bytecode.OpTableswitch, bytecode.OpLookupswitch,
			bytecode.OpJsr, bytecode.OpJsrW, bytecode.OpRet,
			bytecode.OpIaload, bytecode.OpLaload, bytecode.OpFaload, bytecode.OpDaload,
			bytecode.OpAaload, bytecode.OpBaload, bytecode.OpCaload, bytecode.OpSaload,
			bytecode.OpIastore, bytecode.OpLastore, bytecode.OpFastore, bytecode.OpDastore,
			bytecode.OpAastore, bytecode.OpBastore, bytecode.OpCastore, bytecode.OpSastore:
			throwf(ErrNotSupported, "opcode %s", in.Op)
		default:
			throwf(ErrNotSupported, "opcode %s", in.Op)
		}

		// An invoke may have moved the frame records; refetch.
		f = st.Current()
		if jump >= 0 {
			f.PC = jump
		} else {
			f.PC++
		}
	}
}

// ---------------------------------------------------------------------------
// Symbol resolution
// ---------------------------------------------------------------------------

func (rt *Runtime) loadConstant(c *Class, idx uint16) {
	e, err := c.Pool.Entry(idx)
	if err != nil {
		throwf(ErrBadConstant, "%v", err)
	}
	switch v := e.(type) {
	case classfile.Integer:
		rt.Stack.Push(IntValue(v.Value))
	case classfile.Float:
		rt.Stack.Push(FloatValue(v.Value))
	case classfile.Long:
		rt.Stack.PushWide(LongValue(v.Value))
	case classfile.Double:
		rt.Stack.PushWide(DoubleValue(v.Value))
	case classfile.String:
		s, err := c.Pool.Utf8(v.StringIndex)
		if err != nil {
			throwf(ErrBadConstant, "%v", err)
		}
		r, err := rt.Intern(s)
		if err != nil {
			throw(err)
		}
		rt.Stack.PushRef(r)
	default:
		throwf(ErrNotSupported, "ldc of %s constant #%d", e.Tag(), idx)
	}
}

func (rt *Runtime) resolveField(c *Class, idx uint16, static bool) *Field {
	fld := c.fieldRefs[idx]
	if fld == nil {
		ref, err := c.Pool.Member(idx)
		if err != nil {
			throwf(ErrBadConstant, "%v", err)
		}
		owner, err := rt.LoadClass(ref.Class)
		if err != nil {
			throw(err)
		}
		if fld, err = owner.GetField(ref.Name); err != nil {
			throw(err)
		}
		if fld.Descriptor != ref.Descriptor {
			throwf(ErrIncompatible, "%s has type %s, not %s", ref, fld.Descriptor, ref.Descriptor)
		}
		c.fieldRefs[idx] = fld
	}
	if fld.Static != static {
		throwf(ErrIncompatible, "%s.%s static=%v", fld.Owner.Name, fld.Name, fld.Static)
	}
	return fld
}

func (rt *Runtime) resolveMethod(c *Class, idx uint16) *Method {
	if m := c.methodRefs[idx]; m != nil {
		return m
	}
	ref, err := c.Pool.Member(idx)
	if err != nil {
		throwf(ErrBadConstant, "%v", err)
	}
	owner, err := rt.LoadClass(ref.Class)
	if err != nil {
		throw(err)
	}
	m, err := owner.GetMethod(ref.Name, ref.Descriptor)
	if err != nil {
		throw(err)
	}
	c.methodRefs[idx] = m
	return m
}

// resolveDynamic treats invokedynamic as a plain call of the method named by
// its NameAndType on the current class. Bootstrap methods are not run.
func (rt *Runtime) resolveDynamic(c *Class, idx uint16) *Method {
	if m := c.methodRefs[idx]; m != nil {
		return m
	}
	_, name, desc, err := c.Pool.InvokeDynamic(idx)
	if err != nil {
		throwf(ErrBadConstant, "%v", err)
	}
	m, err := c.GetMethod(name, desc)
	if err != nil {
		throw(err)
	}
	c.methodRefs[idx] = m
	return m
}

// receiver checks the receiver of an instance call on the operand stack and
// returns its class.
func (rt *Runtime) receiver(m *Method) *Class {
	if m.IsStatic() {
		throwf(ErrIncompatible, "instance call of static method %s", m)
	}
	v, _ := rt.Stack.Peek(m.ArgSlots() - 1)
	if v.Ref() == Null {
		throwf(ErrNullReference, "invoking %s", m)
	}
	return rt.Classes.byID[rt.Heap.object(v.Ref())[0]]
}

// dispatch selects the implementation of sym for a receiver of class rc.
func (rt *Runtime) dispatch(sym *Method, rc *Class) *Method {
	if rc == sym.Class {
		return sym
	}
	m, err := rc.GetMethod(sym.Name, sym.Descriptor)
	if err != nil {
		throw(err)
	}
	return m
}

// instance returns the words of the object at r after checking it has fld.
func (rt *Runtime) instance(r Ref, fld *Field) []Value {
	obj := rt.Heap.object(r)
	if c := rt.Classes.byID[obj[0]]; !c.IsSubclassOf(fld.Owner) {
		throwf(ErrIncompatible, "%s has no field %s.%s", c.Name, fld.Owner.Name, fld.Name)
	}
	return obj
}

// ---------------------------------------------------------------------------
// Arithmetic helpers
// ---------------------------------------------------------------------------

func intOp(op bytecode.Opcode, a, b int32) int32 {
	switch op {
	case bytecode.OpIadd:
		return a + b
	case bytecode.OpIsub:
		return a - b
	case bytecode.OpImul:
		return a * b
	case bytecode.OpIdiv:
		if b == 0 {
			throw(ErrDivisionByZero)
		}
		return a / b
	case bytecode.OpIrem:
		if b == 0 {
			throw(ErrDivisionByZero)
		}
		return a % b
	case bytecode.OpIshl:
		return a << uint(b&31)
	case bytecode.OpIshr:
		return a >> uint(b&31)
	case bytecode.OpIushr:
		return int32(uint32(a) >> uint(b&31))
	case bytecode.OpIand:
		return a & b
	case bytecode.OpIor:
		return a | b
	case bytecode.OpIxor:
		return a ^ b
	}
	panic(fmt.Sprintf("intOp: unexpected %s", op))
}

func longOp(op bytecode.Opcode, a, b int64) int64 {
	switch op {
	case bytecode.OpLadd:
		return a + b
	case bytecode.OpLsub:
		return a - b
	case bytecode.OpLmul:
		return a * b
	case bytecode.OpLdiv:
		if b == 0 {
			throw(ErrDivisionByZero)
		}
		return a / b
	case bytecode.OpLrem:
		if b == 0 {
			throw(ErrDivisionByZero)
		}
		return a % b
	case bytecode.OpLand:
		return a & b
	case bytecode.OpLor:
		return a | b
	case bytecode.OpLxor:
		return a ^ b
	}
	panic(fmt.Sprintf("longOp: unexpected %s", op))
}

func floatOp(op bytecode.Opcode, a, b float64) float64 {
	switch op {
	case bytecode.OpFadd, bytecode.OpDadd:
		return a + b
	case bytecode.OpFsub, bytecode.OpDsub:
		return a - b
	case bytecode.OpFmul, bytecode.OpDmul:
		return a * b
	case bytecode.OpFdiv, bytecode.OpDdiv:
		return a / b
	case bytecode.OpFrem, bytecode.OpDrem:
		return math.Mod(a, b)
	}
	panic(fmt.Sprintf("floatOp: unexpected %s", op))
}

func compare[T int32 | int64](a, b T) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// fcompare implements [fd]cmp[lg]: unordered operands give +1 for the g form
// and -1 for the l form.
func fcompare(a, b float64, g bool) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		if g {
			return 1
		}
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// test evaluates a branch condition given its offset from the eq form
// (eq, ne, lt, ge, gt, le) and a three-way comparison result.
func test(cond bytecode.Opcode, cmp int32) bool {
	switch cond {
	case 0:
		return cmp == 0
	case 1:
		return cmp != 0
	case 2:
		return cmp < 0
	case 3:
		return cmp >= 0
	case 4:
		return cmp > 0
	default:
		return cmp <= 0
	}
}

// toInt and toLong follow the JVM's saturating float-to-integer rules.
func toInt(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func toLong(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}
