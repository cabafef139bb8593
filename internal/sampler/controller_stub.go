//go:build !linux
// +build !linux

package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/cilium/ebpf"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
	"github.com/coral-mesh/rbperf/internal/transport"
)

// Controller is a stub on non-Linux systems; sampling only runs on Linux.
type Controller struct{}

func New(spec *ebpf.CollectionSpec, cfg RunConfig, logger zerolog.Logger) (*Controller, error) {
	return nil, fmt.Errorf("sampler: profiling is only supported on Linux")
}

func (c *Controller) Register(pid int) error {
	return fmt.Errorf("sampler: profiling is only supported on Linux")
}

func (c *Controller) Deregister(pid int) error {
	return fmt.Errorf("sampler: profiling is only supported on Linux")
}

func (c *Controller) AttachCPU(period time.Duration) error {
	return fmt.Errorf("sampler: profiling is only supported on Linux")
}

func (c *Controller) AttachSyscalls(names []string) error {
	return fmt.Errorf("sampler: profiling is only supported on Linux")
}

func (c *Controller) Run(ctx context.Context, out chan<- rbperfmaps.RubyStack) error {
	return fmt.Errorf("sampler: profiling is only supported on Linux")
}

func (c *Controller) LostSamples() map[transport.DropReason]uint64 {
	return nil
}

func (c *Controller) RunID() string {
	return ""
}

func (c *Controller) ResolveFrame(id uint32) (rbperfmaps.RubyFrame, bool) {
	return rbperfmaps.RubyFrame{}, false
}

func (c *Controller) Close() error {
	return nil
}
