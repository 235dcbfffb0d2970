package vm

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
)

var heapLog = commonlog.GetLogger("javelin.heap")

// wordBytes is the size of one heap or stack slot.
const wordBytes = 8

// headerWords is the per-object header: one word holding the class ID.
const headerWords = 1

// ---------------------------------------------------------------------------
// Chunk: one bump-allocated region
// ---------------------------------------------------------------------------

type chunk struct {
	words []Value
	top   int // bump cursor
}

func (c *chunk) free() int { return len(c.words) - c.top }

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// Heap owns every object. Objects are a header word followed by one Value
// per instance slot, laid out contiguously inside a chunk.
type Heap struct {
	chunks   []*chunk
	current  int
	minWords int // minimum size of a new chunk
	maxWords int // ceiling on total committed words

	classes *ClassTable
}

// NewHeap creates an empty heap that grows in chunks of at least chunkBytes
// up to maxBytes in total.
func NewHeap(classes *ClassTable, chunkBytes, maxBytes uint64) *Heap {
	return &Heap{
		minWords: int(chunkBytes / wordBytes),
		maxWords: int(maxBytes / wordBytes),
		classes:  classes,
	}
}

// Committed returns the bytes reserved by all chunks.
func (h *Heap) Committed() uint64 {
	n := 0
	for _, c := range h.chunks {
		n += len(c.words)
	}
	return uint64(n) * wordBytes
}

// Used returns the bytes below the bump cursors of all chunks.
func (h *Heap) Used() uint64 {
	n := 0
	for _, c := range h.chunks {
		n += c.top
	}
	return uint64(n) * wordBytes
}

// Limit returns the configured ceiling in bytes.
func (h *Heap) Limit() uint64 { return uint64(h.maxWords) * wordBytes }

// Chunks returns the number of chunks.
func (h *Heap) Chunks() int { return len(h.chunks) }

// Allocate returns a zeroed object of class c. It tries the current chunk,
// then any chunk with room, then a new chunk within the ceiling. When none
// of those fit it returns ErrHeapExhausted and the caller should collect and
// retry.
func (h *Heap) Allocate(c *Class) (Ref, error) {
	size := headerWords + c.numSlots
	idx := -1
	if len(h.chunks) > 0 && h.chunks[h.current].free() >= size {
		idx = h.current
	} else {
		for i, ch := range h.chunks {
			if ch.free() >= size {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		var err error
		if idx, err = h.grow(size); err != nil {
			return Null, err
		}
	}
	h.current = idx
	ch := h.chunks[idx]
	at := ch.top
	clear(ch.words[at : at+size])
	ch.words[at] = Value(c.ID)
	ch.top += size
	c.frozen = true
	return makeRef(idx, at), nil
}

func (h *Heap) grow(size int) (int, error) {
	words := max(h.minWords, size)
	committed := int(h.Committed() / wordBytes)
	if committed+words > h.maxWords {
		return -1, fmt.Errorf("%w: need %s, %s of %s committed", ErrHeapExhausted,
			humanize.IBytes(uint64(size)*wordBytes),
			humanize.IBytes(uint64(committed)*wordBytes),
			humanize.IBytes(uint64(h.maxWords)*wordBytes))
	}
	h.chunks = append(h.chunks, &chunk{words: make([]Value, words)})
	heapLog.Infof("heap chunk %d: %s (committed %s of %s)", len(h.chunks)-1,
		humanize.IBytes(uint64(words)*wordBytes),
		humanize.IBytes(uint64(committed+words)*wordBytes),
		humanize.IBytes(uint64(h.maxWords)*wordBytes))
	return len(h.chunks) - 1, nil
}

// ---------------------------------------------------------------------------
// Object access
// ---------------------------------------------------------------------------

// object returns the words of the object at r, header first.
func (h *Heap) object(r Ref) []Value {
	if r == Null {
		throw(ErrNullReference)
	}
	ch, at := r.chunk(), r.word()
	if ch < 0 || ch >= len(h.chunks) || at >= h.chunks[ch].top {
		throwf(ErrNullReference, "dangling reference %s", r)
	}
	words := h.chunks[ch].words
	c := h.classes.byID[words[at]]
	return words[at : at+headerWords+c.numSlots]
}

// ClassOf returns the class of the object at r.
func (h *Heap) ClassOf(r Ref) (c *Class, err error) {
	defer catch(&err)
	return h.classes.byID[h.object(r)[0]], nil
}

// Slot reads instance slot i of the object at r.
func (h *Heap) Slot(r Ref, i int) (v Value, err error) {
	defer catch(&err)
	return h.object(r)[headerWords+i], nil
}

// SetSlot writes instance slot i of the object at r.
func (h *Heap) SetSlot(r Ref, i int, v Value) (err error) {
	defer catch(&err)
	h.object(r)[headerWords+i] = v
	return nil
}

// walk calls fn for every object in every chunk, in address order.
func (h *Heap) walk(fn func(r Ref, c *Class, words []Value)) {
	for ci, ch := range h.chunks {
		for at := 0; at < ch.top; {
			c := h.classes.byID[ch.words[at]]
			size := headerWords + c.numSlots
			fn(makeRef(ci, at), c, ch.words[at:at+size])
			at += size
		}
	}
}

// Objects returns the number of objects currently below the bump cursors,
// reachable or not.
func (h *Heap) Objects() int {
	n := 0
	h.walk(func(Ref, *Class, []Value) { n++ })
	return n
}

// catch converts a trap raised by a helper into a returned error.
func catch(err *error) {
	if r := recover(); r != nil {
		t, ok := r.(trap)
		if !ok {
			panic(r)
		}
		*err = t.err
	}
}
