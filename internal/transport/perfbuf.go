//go:build linux
// +build linux

package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/perf"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
)

// PerfBufReader reads events off one perf ring per CPU. The library
// demultiplexes across rings for us and preserves the per-CPU ordering
// spec.md's transport section asks for; merging by timestamp across CPUs,
// if needed at presentation time, is the aggregator's job, not the
// reader's.
type PerfBufReader struct {
	reader *perf.Reader
	drops  dropCounter
}

// NewPerfBufReader opens m (expected to be the walker's events map) as a
// per-CPU perf event array.
func NewPerfBufReader(m *ebpf.Map) (*PerfBufReader, error) {
	rd, err := perf.NewReader(m, 4096*16)
	if err != nil {
		return nil, fmt.Errorf("transport: new perf reader: %w", err)
	}
	return &PerfBufReader{reader: rd, drops: newDropCounter()}, nil
}

// Read blocks until a sample is available or ctx is canceled.
func (r *PerfBufReader) Read(ctx context.Context) (rbperfmaps.RubyStack, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.reader.Close() // nolint:errcheck
		case <-done:
		}
	}()
	defer close(done)

	for {
		record, err := r.reader.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return rbperfmaps.RubyStack{}, ctxErr
				}
				return rbperfmaps.RubyStack{}, err
			}
			return rbperfmaps.RubyStack{}, fmt.Errorf("transport: perf read: %w", err)
		}
		if record.LostSamples > 0 {
			r.drops.add(DropLostInRing, record.LostSamples)
			continue
		}
		return decodeAndValidate(record.RawSample, &r.drops)
	}
}

// LostSamples returns a snapshot of the drop-reason counters.
func (r *PerfBufReader) LostSamples() map[DropReason]uint64 {
	return r.drops.snapshot()
}

// Close releases the perf reader and its per-CPU rings.
func (r *PerfBufReader) Close() error {
	return r.reader.Close()
}
