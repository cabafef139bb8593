package sampler

import (
	"time"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
)

// TransportKind selects which of the two event-transport modes a run uses.
type TransportKind int

const (
	TransportRingBuf TransportKind = iota
	TransportPerfBuf
)

// RunConfig is the external configuration surface: everything cmd/rbperf's
// flags resolve into before calling into the controller.
type RunConfig struct {
	EventType             rbperfmaps.EventType
	SamplePeriod          time.Duration
	Syscalls              []string
	TargetPIDs            []int
	Transport             TransportKind
	Verbose               bool
	EnablePIDRaceDetector bool
	Duration              time.Duration
}

// DefaultRunConfig mirrors the teacher's DefaultConfig helpers: sane values
// for every field a caller doesn't set explicitly.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		EventType:             rbperfmaps.EventCPUCycles,
		SamplePeriod:          10 * time.Millisecond,
		Transport:             TransportRingBuf,
		EnablePIDRaceDetector: true,
		Duration:              30 * time.Second,
	}
}
