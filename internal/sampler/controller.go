//go:build linux
// +build linux

// Package sampler owns the attach/run/teardown lifecycle: it loads the
// walker, patches its compile-time constants, opens one perf event per
// online CPU, registers target processes, and drains the chosen transport
// into a channel of decoded samples.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/cilium/ebpf"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	rbperferrors "github.com/coral-mesh/rbperf/internal/errors"
	"github.com/coral-mesh/rbperf/internal/procinspect"
	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
	"github.com/coral-mesh/rbperf/internal/rbversion"
	"github.com/coral-mesh/rbperf/internal/safe"
	"github.com/coral-mesh/rbperf/internal/sys/sysfs"
	"github.com/coral-mesh/rbperf/internal/transport"
	"github.com/coral-mesh/rbperf/internal/walker"
)

// kernelDropReasons maps a drop_reasons index the walker increments directly
// to the transport taxonomy LostSamples reports in, so callers see one
// unified counter set regardless of whether a drop was detected in the
// kernel (before a sample exists) or in the transport (after decoding one).
var kernelDropReasons = map[uint32]transport.DropReason{
	rbperfmaps.KernelDropPIDUnknown:       transport.DropPIDUnknown,
	rbperfmaps.KernelDropVersionUnknown:   transport.DropVersionUnknown,
	rbperfmaps.KernelDropPIDReuseMismatch: transport.DropPIDReuseMismatch,
}

// Sample pairs a decoded stack with its resolved frames. Run does not send
// Sample values: it sends bare RubyStack records, and frames are resolved
// separately through ResolveFrame.
type Sample struct {
	Stack  rbperfmaps.RubyStack
	Frames []rbperfmaps.RubyFrame
}

// Controller owns one loaded walker and its attached perf events for the
// lifetime of a run.
type Controller struct {
	cfg    RunConfig
	logger zerolog.Logger
	runID  string

	objs         *walker.Objects
	perfEventFDs []int
	reader       transport.Reader

	mu       sync.Mutex
	registry map[int]rbperfmaps.ProcessData // pid -> last-known ProcessData
}

// New loads the walker, rewriting its compile-time constants from cfg, and
// returns a Controller ready to Attach.
func New(spec *ebpf.CollectionSpec, cfg RunConfig, logger zerolog.Logger) (*Controller, error) {
	verbose := uint8(0)
	if cfg.Verbose {
		verbose = 1
	}
	useRingbuf := uint8(0)
	if cfg.Transport == TransportRingBuf {
		useRingbuf = 1
	}
	raceDetector := uint8(0)
	if cfg.EnablePIDRaceDetector {
		raceDetector = 1
	}

	if err := spec.RewriteConstants(map[string]interface{}{
		"verbose":                  verbose,
		"use_ringbuf":              useRingbuf,
		"enable_pid_race_detector": raceDetector,
		"event_type":               uint32(cfg.EventType),
	}); err != nil {
		return nil, fmt.Errorf("sampler: rewrite constants: %w", err)
	}

	objs, err := walker.Load(spec)
	if err != nil {
		return nil, fmt.Errorf("sampler: load walker: %w", err)
	}

	var reader transport.Reader
	switch cfg.Transport {
	case TransportPerfBuf:
		reader, err = transport.NewPerfBufReader(objs.Events)
	default:
		reader, err = transport.NewRingBufReader(objs.Events)
	}
	if err != nil {
		objs.Close() // nolint:errcheck
		return nil, fmt.Errorf("sampler: open transport: %w", err)
	}

	if err := seedOffsetsRegistry(objs.VersionSpecificOffsets); err != nil {
		objs.Close() // nolint:errcheck
		return nil, fmt.Errorf("sampler: seed offsets registry: %w", err)
	}

	runID := uuid.New().String()
	log := logger.With().Str("component", "sampler").Str("run_id", runID).Logger()
	log.Info().Msg("sampler controller initialized")

	return &Controller{
		cfg:      cfg,
		logger:   log,
		runID:    runID,
		objs:     objs,
		reader:   reader,
		registry: make(map[int]rbperfmaps.ProcessData),
	}, nil
}

// RunID returns the unique identifier generated for this controller's
// lifetime, useful for correlating its log lines and emitted samples across
// a run without depending on process start order.
func (c *Controller) RunID() string {
	return c.runID
}

// seedOffsetsRegistry copies the entire closed rbversion table into
// version_specific_offsets once at startup, matching "the registry is
// write-once at controller startup."
func seedOffsetsRegistry(m *ebpf.Map) error {
	for _, v := range rbversion.Versions() {
		idx, off, ok := rbversion.Lookup(v)
		if !ok {
			continue
		}
		key := uint32(idx)
		if err := m.Put(&key, &off); err != nil {
			return fmt.Errorf("put offsets for %s: %w", v, err)
		}
	}
	return nil
}

// Register runs the process inspector against pid and publishes its
// ProcessData into pid_to_rb_thread, adopting start_time as 0 so the kernel
// fills it on first observation.
func (c *Controller) Register(pid int) error {
	info, err := procinspect.Inspect(pid)
	if err != nil {
		return registerError(pid, err)
	}

	pd := rbperfmaps.ProcessData{
		RBFrameAddr: info.CurrentThreadAddress,
		RBVersion:   uint32(info.VersionIndex),
		StartTime:   0,
	}

	key := uint32(pid)
	if err := c.objs.PIDToRBThread.Put(&key, &pd); err != nil {
		return fmt.Errorf("sampler: register pid %d: %w", pid, err)
	}

	c.mu.Lock()
	c.registry[pid] = pd
	c.mu.Unlock()
	return nil
}

// registerError translates the procinspect sentinel for a pid that doesn't
// exist into this package's own ErrNoSuchProcess, wrapping pid into the
// message either way so a caller logging the error gets it for free. Kept
// as a standalone function (rather than inline in Register) so it's
// testable without a loaded Controller.
func registerError(pid int, err error) error {
	if errors.Is(err, procinspect.ErrNoSuchProcess) {
		return fmt.Errorf("sampler: pid %d: %w", pid, ErrNoSuchProcess)
	}
	return err
}

// Deregister removes pid from pid_to_rb_thread. User threads "do not mutate
// [the kernel maps] after startup except to deregister pids on exit."
func (c *Controller) Deregister(pid int) error {
	key := uint32(pid)
	if err := c.objs.PIDToRBThread.Delete(&key); err != nil {
		return fmt.Errorf("sampler: deregister pid %d: %w", pid, err)
	}
	c.mu.Lock()
	delete(c.registry, pid)
	c.mu.Unlock()
	return nil
}

// AttachCPU opens one SOFTWARE:CPU_CLOCK perf event per online CPU, sampled
// at period, and attaches on_event to each.
func (c *Controller) AttachCPU(period time.Duration) error {
	cpus, err := sysfs.OnlineCPUs()
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}

	sampleNs, clamp := safe.IntToUint64(int(period.Nanoseconds()))
	if clamp {
		return fmt.Errorf("sampler: sample period %s overflows perf_event_attr.Sample", period)
	}

	attr := &unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_SOFTWARE,
		Config: unix.PERF_COUNT_SW_CPU_CLOCK,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Sample: sampleNs,
	}
	return c.attachPerCPU(cpus, attr, c.objs.OnEvent)
}

// AttachSyscalls opens one raw syscall tracepoint perf event per online CPU
// and attaches on_event to each; names is carried for the caller's own
// filtering/UX and is not consulted by on_event, which reads the syscall id
// straight from the tracepoint context.
func (c *Controller) AttachSyscalls(names []string) error {
	cpus, err := sysfs.OnlineCPUs()
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}

	tpID, err := readTracepointID(tracefsRoots, "raw_syscalls", "sys_enter")
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}

	attr := &unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_TRACEPOINT,
		Config: tpID,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Sample: 1,
	}
	return c.attachPerCPU(cpus, attr, c.objs.OnEvent)
}

var tracefsRoots = []string{"/sys/kernel/tracing", "/sys/kernel/debug/tracing"}

// readTracepointID reads the kernel-assigned tracepoint id tracefs exposes
// for category/name, the value perf_event_open expects in Config for a
// PERF_TYPE_TRACEPOINT event. roots is parameterized so tests can point it
// at a fixture directory instead of the real tracefs mount.
func readTracepointID(roots []string, category, name string) (uint64, error) {
	for _, root := range roots {
		path := fmt.Sprintf("%s/events/%s/%s/id", root, category, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse tracepoint id at %s: %w", path, err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("tracepoint %s/%s not found under tracefs", category, name)
}

func (c *Controller) attachPerCPU(cpus []int, attr *unix.PerfEventAttr, prog *ebpf.Program) error {
	for _, cpu := range cpus {
		fd, err := unix.PerfEventOpen(attr, -1, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			c.logger.Warn().Err(err).Int("cpu", cpu).Msg("failed to open perf event, skipping cpu")
			continue
		}
		if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_SET_BPF, prog.FD()); err != nil {
			unix.Close(fd) // nolint:errcheck
			return fmt.Errorf("sampler: attach bpf to cpu %d: %w", cpu, err)
		}
		if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
			unix.Close(fd) // nolint:errcheck
			return fmt.Errorf("sampler: enable perf event on cpu %d: %w", cpu, err)
		}
		c.perfEventFDs = append(c.perfEventFDs, fd)
	}
	if len(c.perfEventFDs) == 0 {
		return fmt.Errorf("sampler: no perf events attached across %d cpus", len(cpus))
	}
	return nil
}

// Run drains the transport until ctx is canceled, sending each decoded
// RubyStack to out. Frame ids are not resolved here; the caller resolves
// them, e.g. through ResolveFrame.
func (c *Controller) Run(ctx context.Context, out chan<- rbperfmaps.RubyStack) error {
	for {
		stack, err := c.reader.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("sampler: read sample: %w", err)
		}
		select {
		case out <- stack:
		case <-ctx.Done():
			return nil
		}
	}
}

// LostSamples returns the transport's drop-reason counters merged with the
// kernel's own drop_reasons counters. The transport only ever sees reasons
// a decoded RubyStack can carry (lost_in_ring, stack_truncation); the other
// three reasons are detected and counted inside on_event/walk_ruby_stack
// before a sample exists at all, so they have to be read out of the
// per-CPU map directly rather than attributed from a record.
func (c *Controller) LostSamples() map[transport.DropReason]uint64 {
	counts := c.reader.LostSamples()
	if c.objs.DropReasons == nil {
		return counts
	}

	ncpu, err := ebpf.PossibleCPU()
	if err != nil {
		c.logger.Warn().Err(err).Msg("could not determine possible cpu count, skipping kernel drop counters")
		return counts
	}

	for idx, reason := range kernelDropReasons {
		perCPU := make([]uint64, ncpu)
		if err := c.objs.DropReasons.Lookup(&idx, &perCPU); err != nil {
			c.logger.Warn().Err(err).Uint32("index", idx).Msg("failed to read kernel drop counter")
			continue
		}
		var total uint64
		for _, v := range perCPU {
			total += v
		}
		counts[reason] += total
	}
	return counts
}

// ResolveFrame queries id_to_stack directly for a frame id the caller's
// local dictionary has not interned yet. Callers should try their own
// mirror first; this crosses back into the kernel map on every call.
func (c *Controller) ResolveFrame(id uint32) (rbperfmaps.RubyFrame, bool) {
	var frame rbperfmaps.RubyFrame
	key := id
	if err := c.objs.IDToStack.Lookup(&key, &frame); err != nil {
		return rbperfmaps.RubyFrame{}, false
	}
	return frame, true
}

// Close tears down perf events, the transport, and the walker's maps, in
// the reverse order they were set up, collecting every close failure
// instead of stopping at the first.
func (c *Controller) Close() error {
	for _, fd := range c.perfEventFDs {
		_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_DISABLE, 0)
		_ = unix.Close(fd)
	}
	return rbperferrors.CloseAll(c.reader, c.objs)
}
