// Package vm implements the Javelin virtual machine.
//
// This package contains:
//   - Untagged 64-bit value slots with a shadow kind for GC roots
//   - Class model, loader and native/file class merging
//   - Fixed-region call stack with index-linked frames
//   - Chunked bump heap with a mark-compact collector
//   - Bytecode interpreter
//   - Built-in java/lang and java/io classes
package vm
