// Package main provides the rbperf command-line entrypoint: a thin layer
// that resolves flags into a sampler.RunConfig and drives the controller's
// lifecycle. It intentionally has no subcommand tree — the profiling core
// is the deliverable here, not a CLI surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/coral-mesh/rbperf/internal/aggregate"
	rbperferrors "github.com/coral-mesh/rbperf/internal/errors"
	"github.com/coral-mesh/rbperf/internal/frameintern"
	"github.com/coral-mesh/rbperf/internal/logging"
	"github.com/coral-mesh/rbperf/internal/procinspect"
	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
	"github.com/coral-mesh/rbperf/internal/sampler"
	"github.com/coral-mesh/rbperf/pkg/version"
)

// runFlags holds every flag value for a profiling run. Binding them through
// an explicit AddFlags method (rather than scattering rootCmd.Flags() calls
// across run) mirrors how this CLI's own helpers bind a *pflag.FlagSet
// elsewhere in the stack.
type runFlags struct {
	pids         string
	syscalls     string
	periodMs     int
	durationSec  int
	verbose      bool
	ringbuf      bool
	raceDetector bool
	output       string
}

func (f *runFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.pids, "pid", "", "comma-separated target pids")
	flags.StringVar(&f.syscalls, "syscalls", "", "comma-separated syscall names to trace (enables syscall mode)")
	flags.IntVar(&f.periodMs, "period-ms", 10, "CPU sample period in milliseconds")
	flags.IntVar(&f.durationSec, "duration", 30, "profiling duration in seconds")
	flags.BoolVar(&f.verbose, "verbose", false, "enable verbose kernel-side logging")
	flags.BoolVar(&f.ringbuf, "ringbuf", true, "use the BPF ring buffer transport instead of per-CPU perf buffers")
	flags.BoolVar(&f.raceDetector, "pid-race-detector", true, "enable the PID-reuse guard")
	flags.StringVar(&f.output, "output", "", "write folded stacks here instead of stdout")
}

// Exit codes per the core's documented contract: success, setup/attach
// failure, no target processes resolved, or an I/O error writing output.
// Lost samples alone never change the exit code.
const (
	exitOK = iota
	exitSetupFailed
	exitNoTargets
	exitOutputFailed
)

func main() {
	os.Exit(run())
}

func run() int {
	var rf runFlags

	rootCmd := &cobra.Command{
		Use:           "rbperf",
		Short:         "Sampling profiler and syscall tracer for CRuby",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rf.AddFlags(rootCmd.Flags())
	rootCmd.AddCommand(newVersionCmd())

	exitCode := exitOK
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		logger := logging.New(logging.Config{
			Level:   levelFromVerbose(rf.verbose),
			Pretty:  true,
			Output:  os.Stderr,
			Verbose: rf.verbose,
		})

		pids, err := parsePIDs(rf.pids)
		if err != nil {
			exitCode = exitSetupFailed
			return err
		}
		if len(pids) == 0 {
			discovered, derr := procinspect.DiscoverRubyProcesses()
			if derr != nil {
				logger.Warn().Err(derr).Msg("automatic ruby process discovery failed")
			}
			pids = discovered
			if len(pids) > 0 {
				logger.Info().Ints("pids", pids).Msg("no --pid given, attaching to discovered ruby processes")
			}
		}
		if len(pids) == 0 {
			exitCode = exitNoTargets
			return fmt.Errorf("rbperf: no target pids given and no ruby processes discovered, pass --pid")
		}

		cfg := sampler.DefaultRunConfig()
		cfg.TargetPIDs = pids
		cfg.SamplePeriod = time.Duration(rf.periodMs) * time.Millisecond
		cfg.Duration = time.Duration(rf.durationSec) * time.Second
		cfg.Verbose = rf.verbose
		cfg.EnablePIDRaceDetector = rf.raceDetector
		if !rf.ringbuf {
			cfg.Transport = sampler.TransportPerfBuf
		}
		if rf.syscalls != "" {
			cfg.Syscalls = strings.Split(rf.syscalls, ",")
			cfg.EventType = rbperfmaps.EventSyscall
		}

		code, err := profile(cfg, logger, rf.output)
		exitCode = code
		return err
	}

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if exitCode == exitOK {
			exitCode = exitSetupFailed
		}
	}
	return exitCode
}

// profile registers every target pid, attaches the requested mode, drains
// samples until ctx is canceled by signal or the configured duration
// elapses, and writes the folded profile.
func profile(cfg sampler.RunConfig, logger zerolog.Logger, outPath string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, unix.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	// A real collection spec is produced by bpf2go's generated
	// loadWalkerObjects(); the controller takes it as a parameter purely so
	// this wiring compiles without one checked in.
	ctrl, err := sampler.New(nil, cfg, logger)
	if err != nil {
		return exitSetupFailed, fmt.Errorf("load sampler: %w", err)
	}
	defer rbperferrors.DeferClose(logger, closerFunc(ctrl.Close), "close sampler")

	registered := 0
	for _, pid := range cfg.TargetPIDs {
		if err := ctrl.Register(pid); err != nil {
			logger.Warn().Err(err).Int("pid", pid).Str("reason", registerFailureReason(err)).Msg("skipping unregisterable target")
			continue
		}
		registered++
	}
	if registered == 0 {
		return exitNoTargets, fmt.Errorf("rbperf: none of the requested pids could be registered")
	}

	if cfg.EventType == rbperfmaps.EventSyscall {
		err = ctrl.AttachSyscalls(cfg.Syscalls)
	} else {
		err = ctrl.AttachCPU(cfg.SamplePeriod)
	}
	if err != nil {
		return exitSetupFailed, fmt.Errorf("attach: %w", err)
	}

	dict := frameintern.New()
	agg := aggregate.New()
	samples := make(chan rbperfmaps.RubyStack, 1000)

	go func() {
		if err := ctrl.Run(ctx, samples); err != nil {
			logger.Error().Err(err).Msg("sampler run loop exited with error")
		}
		close(samples)
	}()

	resolve := func(id uint32) (rbperfmaps.RubyFrame, bool) {
		if f, ok := dict.Resolve(id); ok {
			return f, true
		}
		f, ok := ctrl.ResolveFrame(id)
		if ok {
			dict.Intern(id, f)
		}
		return f, ok
	}
	for stack := range samples {
		agg.Add(stack, resolve)
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return exitOutputFailed, fmt.Errorf("open output: %w", err)
		}
		defer f.Close() // nolint:errcheck
		out = f
	}
	if _, err := fmt.Fprint(out, agg.FoldedStacks()); err != nil {
		return exitOutputFailed, fmt.Errorf("write output: %w", err)
	}

	logger.Info().
		Str("run_id", ctrl.RunID()).
		Int("registered_pids", registered).
		Interface("lost_samples", ctrl.LostSamples()).
		Msg("profiling run complete")
	return exitOK, nil
}

// registerFailureReason maps a per-process-fatal procinspect error to a
// short label for logs, so an operator can tell "no Ruby here" apart from
// "unsupported Ruby version" without reading the wrapped error chain.
func registerFailureReason(err error) string {
	switch {
	case errors.Is(err, sampler.ErrNoSuchProcess):
		return "no_such_process"
	case errors.Is(err, procinspect.ErrNoRubyBinary):
		return "no_ruby_binary"
	case errors.Is(err, procinspect.ErrRubyVersionNotFound):
		return "version_not_found"
	case errors.Is(err, procinspect.ErrUnsupportedRubyVersion):
		return "unsupported_version"
	case errors.Is(err, procinspect.ErrNoCurrentThreadSymbol):
		return "no_current_thread_symbol"
	default:
		return "unknown"
	}
}

func parsePIDs(flag string) ([]int, error) {
	if flag == "" {
		return nil, nil
	}
	var pids []int
	for _, part := range strings.Split(flag, ",") {
		pid, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid --pid value %q: %w", part, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func levelFromVerbose(verbose bool) string {
	if verbose {
		return "trace"
	}
	return "info"
}

// closerFunc adapts a func() error to an io.Closer-shaped call for
// errors.DeferClose.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("rbperf version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}
