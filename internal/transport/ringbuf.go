//go:build linux
// +build linux

package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
)

// RingBufReader reads events off a single global MPSC BPF ring buffer with
// epoll wakeups, the lower-overhead of the two transport modes when sample
// rates are high enough that per-CPU fan-in would dominate.
type RingBufReader struct {
	reader *ringbuf.Reader
	drops  dropCounter
}

// NewRingBufReader opens m (expected to be the walker's events map) as a
// ring buffer.
func NewRingBufReader(m *ebpf.Map) (*RingBufReader, error) {
	rd, err := ringbuf.NewReader(m)
	if err != nil {
		return nil, fmt.Errorf("transport: new ringbuf reader: %w", err)
	}
	return &RingBufReader{reader: rd, drops: newDropCounter()}, nil
}

// Read blocks until a sample is available or ctx is canceled.
func (r *RingBufReader) Read(ctx context.Context) (rbperfmaps.RubyStack, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.reader.Close() // nolint:errcheck
		case <-done:
		}
	}()
	defer close(done)

	record, err := r.reader.Read()
	if err != nil {
		if errors.Is(err, ringbuf.ErrClosed) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rbperfmaps.RubyStack{}, ctxErr
			}
			return rbperfmaps.RubyStack{}, err
		}
		return rbperfmaps.RubyStack{}, fmt.Errorf("transport: ringbuf read: %w", err)
	}
	return decodeAndValidate(record.RawSample, &r.drops)
}

// LostSamples returns a snapshot of the drop-reason counters.
func (r *RingBufReader) LostSamples() map[DropReason]uint64 {
	return r.drops.snapshot()
}

// Close releases the ring buffer reader.
func (r *RingBufReader) Close() error {
	return r.reader.Close()
}
