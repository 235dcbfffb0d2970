// Package snapshot records the observable state of a runtime (loaded
// classes, heap occupancy, collector statistics) in canonical CBOR, so two
// snapshots of equivalent runtimes encode to identical bytes.
package snapshot

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/javelin/vm"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Snapshot is the serialized state of one runtime.
type Snapshot struct {
	Runtime     string      `cbor:"1,keyasint"` // runtime ID
	Taken       int64       `cbor:"2,keyasint"` // unix nanoseconds
	Classes     []ClassInfo `cbor:"3,keyasint"`
	Digest      [32]byte    `cbor:"4,keyasint"` // SHA-256 of the encoded Classes
	Heap        HeapInfo    `cbor:"5,keyasint"`
	Collections int         `cbor:"6,keyasint"`
	LastGC      *GCInfo     `cbor:"7,keyasint,omitempty"`
}

// ClassInfo describes one loaded class.
type ClassInfo struct {
	Name          string      `cbor:"1,keyasint"`
	ID            uint32      `cbor:"2,keyasint"`
	Origin        string      `cbor:"3,keyasint"`
	Super         string      `cbor:"4,keyasint,omitempty"`
	Interfaces    []string    `cbor:"5,keyasint,omitempty"`
	Fields        []FieldInfo `cbor:"6,keyasint,omitempty"`
	Methods       []string    `cbor:"7,keyasint,omitempty"` // name + descriptor
	InstanceSlots int         `cbor:"8,keyasint"`
}

// FieldInfo describes one declared field.
type FieldInfo struct {
	Name       string `cbor:"1,keyasint"`
	Descriptor string `cbor:"2,keyasint"`
	Static     bool   `cbor:"3,keyasint,omitempty"`
	Offset     int    `cbor:"4,keyasint"`
}

// HeapInfo describes heap occupancy.
type HeapInfo struct {
	Chunks    int    `cbor:"1,keyasint"`
	Committed uint64 `cbor:"2,keyasint"`
	Used      uint64 `cbor:"3,keyasint"`
	Limit     uint64 `cbor:"4,keyasint"`
	Objects   int    `cbor:"5,keyasint"`
}

// GCInfo is the statistics of the most recent collection.
type GCInfo struct {
	Marked      int    `cbor:"1,keyasint"`
	Freed       int    `cbor:"2,keyasint"`
	FreedBytes  uint64 `cbor:"3,keyasint"`
	LiveBytes   uint64 `cbor:"4,keyasint"`
	LiveClasses int    `cbor:"5,keyasint"`
	Duration    int64  `cbor:"6,keyasint"` // nanoseconds
	Timestamp   int64  `cbor:"7,keyasint"` // unix nanoseconds
}

// Capture records the current state of rt. taken is the capture time in
// unix nanoseconds.
func Capture(rt *vm.Runtime, taken int64) (*Snapshot, error) {
	s := &Snapshot{
		Runtime: rt.ID.String(),
		Taken:   taken,
		Heap: HeapInfo{
			Chunks:    rt.Heap.Chunks(),
			Committed: rt.Heap.Committed(),
			Used:      rt.Heap.Used(),
			Limit:     rt.Heap.Limit(),
			Objects:   rt.Heap.Objects(),
		},
	}
	for _, c := range rt.Classes.All() {
		s.Classes = append(s.Classes, classInfo(c))
	}
	digest, err := Digest(s.Classes)
	if err != nil {
		return nil, err
	}
	s.Digest = digest

	stats, n := rt.LastGC()
	s.Collections = n
	if n > 0 {
		s.LastGC = &GCInfo{
			Marked:      stats.Marked,
			Freed:       stats.Freed,
			FreedBytes:  stats.FreedBytes,
			LiveBytes:   stats.LiveBytes,
			LiveClasses: stats.LiveClasses,
			Duration:    stats.Duration.Nanoseconds(),
			Timestamp:   stats.Timestamp.UnixNano(),
		}
	}
	return s, nil
}

func classInfo(c *vm.Class) ClassInfo {
	ci := ClassInfo{
		Name:          c.Name,
		ID:            c.ID,
		Origin:        c.Origin.String(),
		InstanceSlots: c.NumSlots(),
	}
	if c.Super != nil {
		ci.Super = c.Super.Name
	}
	for _, iface := range c.Interfaces {
		ci.Interfaces = append(ci.Interfaces, iface.Name)
	}
	for _, f := range c.DeclaredFields() {
		ci.Fields = append(ci.Fields, FieldInfo{
			Name:       f.Name,
			Descriptor: f.Descriptor,
			Static:     f.Static,
			Offset:     f.Offset,
		})
	}
	for _, m := range c.Methods() {
		ci.Methods = append(ci.Methods, m.Name+m.Descriptor)
	}
	return ci
}

// Digest hashes the canonical encoding of a class list.
func Digest(classes []ClassInfo) ([32]byte, error) {
	data, err := encMode.Marshal(classes)
	if err != nil {
		return [32]byte{}, fmt.Errorf("snapshot: encode classes: %w", err)
	}
	return sha256.Sum256(data), nil
}

// Class returns the entry for the named class, or nil.
func (s *Snapshot) Class(name string) *ClassInfo {
	for i := range s.Classes {
		if s.Classes[i].Name == name {
			return &s.Classes[i]
		}
	}
	return nil
}

// Summary renders a one-line description for logs.
func (s *Snapshot) Summary() string {
	return fmt.Sprintf("%d classes, heap %s of %s in %d chunks, %d collections",
		len(s.Classes), humanize.IBytes(s.Heap.Used), humanize.IBytes(s.Heap.Limit),
		s.Heap.Chunks, s.Collections)
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Marshal serializes a snapshot to canonical CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return encMode.Marshal(s)
}

// Unmarshal deserializes a snapshot.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return &s, nil
}

// WriteFile writes the encoded snapshot to path.
func WriteFile(path string, s *Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile reads a snapshot written by WriteFile.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
