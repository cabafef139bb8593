// Package frameintern mirrors the kernel's content-addressed frame
// dictionary (stack_to_id / id_to_stack) in user space, so aggregation
// never has to cross back into the kernel maps for a frame it has already
// resolved once.
package frameintern

import (
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
)

// Dictionary is the user-space mirror of find_or_insert_frame's bidirectional
// index. Reads and writes both go through a single RWMutex the same way the
// teacher's address symbolizer cache does; lookups vastly outnumber misses
// once a process has warmed up.
type Dictionary struct {
	mu     sync.RWMutex
	byHash map[uint64]uint32
	byID   map[uint32]rbperfmaps.RubyFrame
}

// New returns an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{
		byHash: make(map[uint64]uint32),
		byID:   make(map[uint32]rbperfmaps.RubyFrame),
	}
}

// Intern records the mapping between a frame id reported by the kernel and
// its decoded frame, the first time this process sees that id. Later calls
// with the same id are no-ops; this never overwrites an existing entry,
// since frame ids are meant to be stable once assigned.
func (d *Dictionary) Intern(id uint32, frame rbperfmaps.RubyFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id]; ok {
		return
	}
	d.byID[id] = frame
	d.byHash[hashFrame(frame)] = id
}

// Resolve returns the frame interned for id, if this process has seen it.
func (d *Dictionary) Resolve(id uint32) (rbperfmaps.RubyFrame, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.byID[id]
	return f, ok
}

// Known reports whether id has already been interned locally, so a caller
// can skip the kernel id_to_stack lookup for ids it has already seen.
// cmd/rbperf gets the same effect by trying Resolve first.
func (d *Dictionary) Known(id uint32) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byID[id]
	return ok
}

// LookupByFrame returns the id previously interned for an identical frame,
// if any. Used by tests and by callers that decode a frame before learning
// its id.
func (d *Dictionary) LookupByFrame(frame rbperfmaps.RubyFrame) (uint32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byHash[hashFrame(frame)]
	return id, ok
}

// Len returns the number of distinct frames interned so far.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func hashFrame(f rbperfmaps.RubyFrame) uint64 {
	var buf [rbperfmaps.PathMaxLen + rbperfmaps.MethodMaxLen + 4]byte
	n := copy(buf[:], f.Path[:])
	n += copy(buf[n:], f.MethodName[:])
	buf[n] = byte(f.Lineno)
	buf[n+1] = byte(f.Lineno >> 8)
	buf[n+2] = byte(f.Lineno >> 16)
	buf[n+3] = byte(f.Lineno >> 24)
	return xxh3.Hash(buf[:])
}
