// Package bytecode decodes JVM method bodies into a randomly addressable
// instruction sequence.
//
// Decoding happens once, at class-load time, in two passes over the raw
// code bytes:
//
//   - Pass 1 walks the bytes using the fixed-size opcode table (plus the
//     wide-prefixed forms) and builds a bidirectional byte-offset <->
//     instruction-index table.
//   - Pass 2 decodes every opcode into an Instruction, converting each
//     byte-relative branch displacement into an absolute instruction index.
//
// Because branch targets are already instruction indices, the interpreter can
// treat a method body as a plain slice and branch in O(1) without ever
// looking at byte offsets again.
//
// The two switch forms (tableswitch, lookupswitch) are not supported and fail
// decoding with ErrUnsupportedOpcode instead of being silently misdecoded.
package bytecode
