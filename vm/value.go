package vm

import (
	"fmt"
	"math"
)

// Value is one untagged 64-bit slot. Which interpretation is valid (int,
// long, float, double or reference) is decided by the instruction or
// descriptor that reads it, never by the bits themselves.
//
// long and double values occupy two stack and local slots, as in the class
// file format: the value lives in the lower slot and the upper slot is
// padding.
type Value uint64

// Kind is the shadow tag the call stack keeps beside every slot so the
// collector can find references without tagging Value itself.
type Kind uint8

const (
	KindPrim Kind = iota
	KindRef
)

func (k Kind) String() string {
	if k == KindRef {
		return "ref"
	}
	return "prim"
}

// Ref is a heap reference: (chunk index + 1) in the high 32 bits and the
// word offset of the object header in the low 32 bits. Zero is null.
type Ref uint64

// Null is the null reference.
const Null Ref = 0

func makeRef(chunk, word int) Ref {
	return Ref(uint64(chunk+1)<<32 | uint64(uint32(word)))
}

func (r Ref) chunk() int { return int(r>>32) - 1 }
func (r Ref) word() int  { return int(uint32(r)) }

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool { return r == Null }

func (r Ref) String() string {
	if r == Null {
		return "null"
	}
	return fmt.Sprintf("@%d:%d", r.chunk(), r.word())
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func IntValue(v int32) Value      { return Value(uint32(v)) }
func LongValue(v int64) Value     { return Value(uint64(v)) }
func FloatValue(v float32) Value  { return Value(math.Float32bits(v)) }
func DoubleValue(v float64) Value { return Value(math.Float64bits(v)) }
func RefValue(r Ref) Value        { return Value(r) }

// BoolValue encodes a boolean as the int 0 or 1.
func BoolValue(b bool) Value {
	if b {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (v Value) Int() int32      { return int32(uint32(v)) }
func (v Value) Long() int64     { return int64(v) }
func (v Value) Float() float32  { return math.Float32frombits(uint32(v)) }
func (v Value) Double() float64 { return math.Float64frombits(uint64(v)) }
func (v Value) Ref() Ref        { return Ref(v) }
