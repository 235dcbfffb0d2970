package vm

import "fmt"

// frameHeaderWords is charged against the region for every frame's linkage
// record, so deep recursion of tiny methods still exhausts the region.
const frameHeaderWords = 4

// ---------------------------------------------------------------------------
// Frame: execution record for one invocation
// ---------------------------------------------------------------------------

// Frame is an execution record. Frames refer to each other and to their slot
// region by index, never by pointer.
type Frame struct {
	Caller int // index of the calling frame, -1 for the bottom frame
	Base   int // region slot holding local 0
	Limit  int // one past this frame's slots; the next frame is placed here
	SP     int // next free operand slot
	Method *Method
	Class  *Class
	PC     int // instruction index

	opBase int // first operand slot: Base + max_locals
}

// ---------------------------------------------------------------------------
// Stack: fixed-size region shared by all frames
// ---------------------------------------------------------------------------

// Stack is one thread's call stack: a fixed region of value slots, a shadow
// kind per slot, and the frame records living in that region.
type Stack struct {
	slots  []Value
	kinds  []Kind
	frames []Frame
	top    int // number of active frames
}

// NewStack reserves a region of the given number of slots.
func NewStack(words int) *Stack {
	return &Stack{
		slots: make([]Value, words),
		kinds: make([]Kind, words),
	}
}

// Size returns the region size in slots.
func (s *Stack) Size() int { return len(s.slots) }

// Depth returns the number of active frames.
func (s *Stack) Depth() int { return s.top }

// Used returns the number of region slots occupied by active frames.
func (s *Stack) Used() int {
	if s.top == 0 {
		return 0
	}
	return s.frames[s.top-1].Limit
}

// Current returns the active frame, or nil when the stack is empty. The
// pointer is invalidated by the next Call.
func (s *Stack) Current() *Frame {
	if s.top == 0 {
		return nil
	}
	return &s.frames[s.top-1]
}

// Frame returns the active frame at depth i (0 is the bottom).
func (s *Stack) Frame(i int) *Frame {
	return &s.frames[i]
}

// Call places a frame for m directly above the current one. It fails with
// ErrStackOverflow instead of growing the region.
func (s *Stack) Call(m *Method) (*Frame, error) {
	locals, stack := m.frameSlots()
	start, caller := 0, -1
	if s.top > 0 {
		start = s.frames[s.top-1].Limit
		caller = s.top - 1
	}
	base := start + frameHeaderWords
	limit := base + locals + stack
	if limit > len(s.slots) {
		return nil, fmt.Errorf("%w: %s needs %d slots at depth %d, %d of %d free",
			ErrStackOverflow, m, limit-start, s.top, len(s.slots)-start, len(s.slots))
	}
	clear(s.slots[base:limit])
	clear(s.kinds[base:limit])

	f := Frame{
		Caller: caller,
		Base:   base,
		Limit:  limit,
		SP:     base + locals,
		Method: m,
		Class:  m.Class,
		opBase: base + locals,
	}
	if s.top < len(s.frames) {
		s.frames[s.top] = f
	} else {
		s.frames = append(s.frames, f)
	}
	s.top++
	return &s.frames[s.top-1], nil
}

// Ret discards the current frame. Its slots are left untouched until the
// next Call reuses them.
func (s *Stack) Ret() {
	if s.top > 0 {
		s.top--
	}
}

func (s *Stack) unwindTo(depth int) {
	if depth < s.top {
		s.top = depth
	}
}

// passArgs moves the top n operand slots of the caller into the first n
// locals of the current (callee) frame, preserving order and kinds.
func (s *Stack) passArgs(n int) {
	if n == 0 {
		return
	}
	callee := &s.frames[s.top-1]
	caller := &s.frames[callee.Caller]
	if caller.SP-n < caller.opBase {
		throw(ErrStackUnderflow)
	}
	if callee.opBase-callee.Base < n {
		throwf(ErrStackOverflow, "%s has max_locals %d for %d argument slots",
			callee.Method, callee.opBase-callee.Base, n)
	}
	copy(s.slots[callee.Base:], s.slots[caller.SP-n:caller.SP])
	copy(s.kinds[callee.Base:], s.kinds[caller.SP-n:caller.SP])
	caller.SP -= n
}

// ---------------------------------------------------------------------------
// Operand stack and locals of the current frame
// ---------------------------------------------------------------------------

func (s *Stack) PushKind(v Value, k Kind) {
	f := &s.frames[s.top-1]
	if f.SP >= f.Limit {
		throwf(ErrStackOverflow, "operand stack of %s exceeds max_stack", f.Method)
	}
	s.slots[f.SP] = v
	s.kinds[f.SP] = k
	f.SP++
}

func (s *Stack) Push(v Value)  { s.PushKind(v, KindPrim) }
func (s *Stack) PushRef(r Ref) { s.PushKind(Value(r), KindRef) }

// PushWide pushes a long or double as two slots.
func (s *Stack) PushWide(v Value) {
	s.PushKind(v, KindPrim)
	s.PushKind(0, KindPrim)
}

func (s *Stack) PopKind() (Value, Kind) {
	f := &s.frames[s.top-1]
	if f.SP <= f.opBase {
		throw(ErrStackUnderflow)
	}
	f.SP--
	return s.slots[f.SP], s.kinds[f.SP]
}

func (s *Stack) Pop() Value {
	v, _ := s.PopKind()
	return v
}

// PopWide pops a long or double occupying two slots.
func (s *Stack) PopWide() Value {
	s.PopKind()
	v, _ := s.PopKind()
	return v
}

// Peek returns the slot n below the top of the operand stack (0 is the top).
func (s *Stack) Peek(n int) (Value, Kind) {
	f := &s.frames[s.top-1]
	i := f.SP - 1 - n
	if i < f.opBase {
		throw(ErrStackUnderflow)
	}
	return s.slots[i], s.kinds[i]
}

// OperandDepth returns the number of slots on the current operand stack.
func (s *Stack) OperandDepth() int {
	f := &s.frames[s.top-1]
	return f.SP - f.opBase
}

// Get reads local i of the current frame.
func (s *Stack) Get(i int) Value {
	return s.slots[s.frames[s.top-1].Base+i]
}

// Slot reads local i of the current frame together with its kind.
func (s *Stack) Slot(i int) (Value, Kind) {
	at := s.frames[s.top-1].Base + i
	return s.slots[at], s.kinds[at]
}

// Set writes local i of the current frame.
func (s *Stack) Set(i int, v Value, k Kind) {
	at := s.frames[s.top-1].Base + i
	s.slots[at] = v
	s.kinds[at] = k
}

// refs calls fn for every reference slot in every active frame: the locals
// and the live part of each operand stack.
func (s *Stack) refs(fn func(*Value)) {
	for i := 0; i < s.top; i++ {
		f := &s.frames[i]
		for j := f.Base; j < f.SP; j++ {
			if s.kinds[j] == KindRef && s.slots[j] != 0 {
				fn(&s.slots[j])
			}
		}
	}
}

// Drop discards n operand slots.
func (s *Stack) Drop(n int) {
	f := &s.frames[s.top-1]
	if f.SP-n < f.opBase {
		throw(ErrStackUnderflow)
	}
	f.SP -= n
}
