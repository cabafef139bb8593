// Package transport decodes the two wire formats the walker's events map
// can be opened as, and classifies every sample that doesn't make it to
// aggregation.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
)

// DropReason classifies why a sample never reached aggregation.
type DropReason int

const (
	// DropLostInRing means the kernel overwrote the sample before user
	// space could read it (ring buffer full, consumer too slow).
	DropLostInRing DropReason = iota
	// DropPIDUnknown means the kernel sampled a pid that has no entry in
	// pid_to_rb_thread.
	DropPIDUnknown
	// DropVersionUnknown means the registered process's version index had
	// no matching row in version_specific_offsets.
	DropVersionUnknown
	// DropPIDReuseMismatch means the start_time the kernel recorded for the
	// pid on its first sample no longer matches the current task's
	// start_time, i.e. the pid was recycled.
	DropPIDReuseMismatch
	// DropStackTruncation means the decoded RubyStack failed Validate.
	DropStackTruncation
)

func (r DropReason) String() string {
	switch r {
	case DropLostInRing:
		return "lost_in_ring"
	case DropPIDUnknown:
		return "pid_unknown"
	case DropVersionUnknown:
		return "version_unknown"
	case DropPIDReuseMismatch:
		return "pid_reuse_mismatch"
	case DropStackTruncation:
		return "stack_truncation"
	default:
		return "unknown"
	}
}

// Reader is satisfied by both transport modes: Read blocks until a sample
// is available, ctx is canceled, or the underlying map is closed.
type Reader interface {
	Read(ctx context.Context) (rbperfmaps.RubyStack, error)
	LostSamples() map[DropReason]uint64
	Close() error
}

// dropCounter is embedded by both reader implementations; it is the
// concrete type behind the taxonomy spec.md names but leaves as prose.
type dropCounter struct {
	mu     sync.Mutex
	counts map[DropReason]uint64
}

func newDropCounter() dropCounter {
	return dropCounter{counts: make(map[DropReason]uint64)}
}

func (d *dropCounter) record(reason DropReason) {
	d.add(reason, 1)
}

func (d *dropCounter) add(reason DropReason, n uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[reason] += n
}

func (d *dropCounter) snapshot() map[DropReason]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[DropReason]uint64, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}

// decodeAndValidate turns a raw ring/perf record into a RubyStack, recording
// and returning a transport error if it fails rbperfmaps.Validate.
func decodeAndValidate(raw []byte, drops *dropCounter) (rbperfmaps.RubyStack, error) {
	stack, err := rbperfmaps.DecodeRubyStack(raw)
	if err != nil {
		return rbperfmaps.RubyStack{}, fmt.Errorf("transport: %w", err)
	}
	if err := stack.Validate(); err != nil {
		drops.record(DropStackTruncation)
		return rbperfmaps.RubyStack{}, fmt.Errorf("transport: %w", err)
	}
	return stack, nil
}
