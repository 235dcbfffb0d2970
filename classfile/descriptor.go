package classfile

import (
	"errors"
	"fmt"
	"strings"
)

var ErrBadDescriptor = errors.New("malformed descriptor")

// Type is a parsed field type. Kind is the descriptor character: one of
// B C D F I J S Z for primitives, L for class references, [ for arrays and
// V for void (method returns only).
type Type struct {
	Kind  byte
	Class string // for L
	Elem  *Type  // for [
}

// Slots returns the number of local-variable or operand-stack slots a value
// of this type occupies.
func (t Type) Slots() int {
	switch t.Kind {
	case 'V':
		return 0
	case 'J', 'D':
		return 2
	}
	return 1
}

// IsReference reports whether values of this type are heap references.
func (t Type) IsReference() bool {
	return t.Kind == 'L' || t.Kind == '['
}

// IsVoid reports whether t is the void return type.
func (t Type) IsVoid() bool { return t.Kind == 'V' }

func (t Type) String() string {
	switch t.Kind {
	case 'L':
		return "L" + t.Class + ";"
	case '[':
		if t.Elem == nil {
			return "["
		}
		return "[" + t.Elem.String()
	}
	return string(t.Kind)
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Args   []Type
	Return Type
}

// ArgSlots returns the slot count of the declared arguments, excluding any
// receiver.
func (d MethodDescriptor) ArgSlots() int {
	n := 0
	for _, a := range d.Args {
		n += a.Slots()
	}
	return n
}

func (d MethodDescriptor) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, a := range d.Args {
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	sb.WriteString(d.Return.String())
	return sb.String()
}

// ParseFieldDescriptor parses a field descriptor such as "I" or
// "Ljava/lang/String;".
func ParseFieldDescriptor(s string) (Type, error) {
	t, rest, err := parseType(s, false)
	if err != nil {
		return Type{}, fmt.Errorf("%w: %q: %v", ErrBadDescriptor, s, err)
	}
	if rest != "" {
		return Type{}, fmt.Errorf("%w: %q: trailing %q", ErrBadDescriptor, s, rest)
	}
	return t, nil
}

// ParseMethodDescriptor parses a method descriptor such as
// "([Ljava/lang/String;)V".
func ParseMethodDescriptor(s string) (MethodDescriptor, error) {
	var d MethodDescriptor
	if !strings.HasPrefix(s, "(") {
		return d, fmt.Errorf("%w: %q: missing '('", ErrBadDescriptor, s)
	}
	rest := s[1:]
	for {
		if rest == "" {
			return MethodDescriptor{}, fmt.Errorf("%w: %q: missing ')'", ErrBadDescriptor, s)
		}
		if rest[0] == ')' {
			rest = rest[1:]
			break
		}
		var t Type
		var err error
		t, rest, err = parseType(rest, false)
		if err != nil {
			return MethodDescriptor{}, fmt.Errorf("%w: %q: %v", ErrBadDescriptor, s, err)
		}
		d.Args = append(d.Args, t)
	}
	ret, rest, err := parseType(rest, true)
	if err != nil {
		return MethodDescriptor{}, fmt.Errorf("%w: %q: %v", ErrBadDescriptor, s, err)
	}
	if rest != "" {
		return MethodDescriptor{}, fmt.Errorf("%w: %q: trailing %q", ErrBadDescriptor, s, rest)
	}
	d.Return = ret
	return d, nil
}

func parseType(s string, allowVoid bool) (Type, string, error) {
	if s == "" {
		return Type{}, "", errors.New("unexpected end")
	}
	switch c := s[0]; c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return Type{Kind: c}, s[1:], nil
	case 'V':
		if !allowVoid {
			return Type{}, "", errors.New("void is only valid as a return type")
		}
		return Type{Kind: c}, s[1:], nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return Type{}, "", errors.New("unterminated class name")
		}
		return Type{Kind: c, Class: s[1:end]}, s[end+1:], nil
	case '[':
		elem, rest, err := parseType(s[1:], false)
		if err != nil {
			return Type{}, "", err
		}
		return Type{Kind: c, Elem: &elem}, rest, nil
	default:
		return Type{}, "", fmt.Errorf("unexpected %q", c)
	}
}
