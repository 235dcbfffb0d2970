package vm

import (
	"time"

	"github.com/dustin/go-humanize"
)

// GCStats describes one collection.
type GCStats struct {
	Marked       int // objects found reachable
	Freed        int // objects reclaimed
	FreedBytes   uint64
	LiveBytes    uint64
	LiveClasses  int
	MarkDuration time.Duration
	Duration     time.Duration
	Timestamp    time.Time
}

// Collect runs a stop-the-world mark-compact collection. visitRoots must
// call its argument with a pointer to every root slot holding a non-null
// reference; each root is rewritten in place to the relocated address.
//
// Objects never move between chunks. Within a chunk, reachable objects slide
// down over unreachable ones in address order and the bump cursor is reset
// to the end of the last survivor.
func (h *Heap) Collect(visitRoots func(func(*Value)), extraClasses []*Class) GCStats {
	start := time.Now()
	stats := GCStats{Timestamp: start}
	before := h.Used()
	objectsBefore := h.Objects()

	// Mark
	marks := make([][]bool, len(h.chunks))
	for i, ch := range h.chunks {
		marks[i] = make([]bool, ch.top)
	}
	live := make(map[*Class]bool)
	var markClass func(c *Class)
	markClass = func(c *Class) {
		for ; c != nil && !live[c]; c = c.Super {
			live[c] = true
			for _, iface := range c.Interfaces {
				markClass(iface)
			}
		}
	}
	for _, c := range extraClasses {
		markClass(c)
	}

	var work []Ref
	mark := func(r Ref) {
		if r == Null {
			return
		}
		if m := marks[r.chunk()]; !m[r.word()] {
			m[r.word()] = true
			work = append(work, r)
		}
	}
	visitRoots(func(p *Value) { mark(Ref(*p)) })
	for len(work) > 0 {
		r := work[len(work)-1]
		work = work[:len(work)-1]
		obj := h.object(r)
		c := h.classes.byID[obj[0]]
		stats.Marked++
		markClass(c)
		for i, isRef := range c.refSlots {
			if isRef {
				mark(Ref(obj[headerWords+i]))
			}
		}
	}
	stats.MarkDuration = time.Since(start)
	stats.LiveClasses = len(live)

	// Compact
	remap := make(map[Ref]Ref, stats.Marked)
	for ci, ch := range h.chunks {
		cursor := 0
		for at := 0; at < ch.top; {
			c := h.classes.byID[ch.words[at]]
			size := headerWords + c.numSlots
			if marks[ci][at] {
				if cursor != at {
					copy(ch.words[cursor:cursor+size], ch.words[at:at+size])
				}
				remap[makeRef(ci, at)] = makeRef(ci, cursor)
				cursor += size
			}
			at += size
		}
		clear(ch.words[cursor:ch.top])
		ch.top = cursor
	}

	// Rewrite
	relocate := func(p *Value) {
		if *p == 0 {
			return
		}
		if to, ok := remap[Ref(*p)]; ok {
			*p = Value(to)
		}
	}
	visitRoots(relocate)
	h.walk(func(_ Ref, c *Class, words []Value) {
		for i, isRef := range c.refSlots {
			if isRef {
				relocate(&words[headerWords+i])
			}
		}
	})

	stats.LiveBytes = h.Used()
	stats.FreedBytes = before - stats.LiveBytes
	stats.Freed = objectsBefore - stats.Marked
	stats.Duration = time.Since(start)
	heapLog.Infof("gc: %d live (%s), %d freed (%s), %d live classes in %s",
		stats.Marked, humanize.IBytes(stats.LiveBytes),
		stats.Freed, humanize.IBytes(stats.FreedBytes),
		stats.LiveClasses, stats.Duration)
	return stats
}
