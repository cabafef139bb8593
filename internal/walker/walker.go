//go:build linux
// +build linux

// Package walker loads the in-kernel stack walker and exposes its maps as
// typed Go handles. The generated bpf2go bindings (walkerObjects,
// loadWalkerObjects, walker_bpfel.o) are produced by the go:generate
// directive below and are not checked in here, mirroring how the rest of
// this ecosystem keeps compiled BPF output out of source control.
package walker

import (
	"fmt"
	"strings"

	"github.com/cilium/ebpf"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
)

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -tags linux walker ../../bpf/walker.c -- -I../../bpf/headers

// Objects holds the loaded programs and maps of the walker, keyed the same
// way a generated walkerObjects would be. Wrapping it here (rather than
// depending on the generated type directly) keeps the rest of the package
// testable without a real collection loaded.
type Objects struct {
	OnEvent       *ebpf.Program
	WalkRubyStack *ebpf.Program

	Events                 *ebpf.Map
	Programs               *ebpf.Map
	PIDToRBThread          *ebpf.Map
	IDToStack              *ebpf.Map
	StackToID              *ebpf.Map
	VersionSpecificOffsets *ebpf.Map
	GlobalState            *ebpf.Map
	DropReasons            *ebpf.Map
}

// Close releases every program and map handle. Safe to call on a partially
// populated Objects, e.g. when Load fails partway through.
func (o *Objects) Close() error {
	closers := []interface {
		Close() error
	}{
		o.OnEvent, o.WalkRubyStack,
		o.Events, o.Programs, o.PIDToRBThread,
		o.IDToStack, o.StackToID, o.VersionSpecificOffsets, o.GlobalState,
		o.DropReasons,
	}
	var first error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// missingMaps reports the name of every map Load expects that the loaded
// collection did not actually provide, so a malformed or stale object file
// fails loudly here instead of nil-pointer-panicking the first time the
// sampler touches an unresolved map.
func (o *Objects) missingMaps() []string {
	named := []struct {
		name string
		m    *ebpf.Map
	}{
		{rbperfmaps.MapEvents, o.Events},
		{rbperfmaps.MapPrograms, o.Programs},
		{rbperfmaps.MapPIDToRBThread, o.PIDToRBThread},
		{rbperfmaps.MapIDToStack, o.IDToStack},
		{rbperfmaps.MapStackToID, o.StackToID},
		{rbperfmaps.MapVersionSpecificOffsets, o.VersionSpecificOffsets},
		{rbperfmaps.MapGlobalState, o.GlobalState},
		{rbperfmaps.MapDropReasons, o.DropReasons},
	}
	var missing []string
	for _, n := range named {
		if n.m == nil {
			missing = append(missing, n.name)
		}
	}
	return missing
}

// Load opens the walker's compiled object and populates programs[0] with
// walk_ruby_stack so on_event's tail call resolves. spec is normally the
// result of loadWalkerObjects' embedded CollectionSpec; it is taken as a
// parameter here so callers (and tests) can substitute a fake collection.
func Load(spec *ebpf.CollectionSpec) (*Objects, error) {
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("walker: new collection: %w", err)
	}

	objs := &Objects{
		OnEvent:                coll.Programs["on_event"],
		WalkRubyStack:          coll.Programs["walk_ruby_stack"],
		Events:                 coll.Maps[rbperfmaps.MapEvents],
		Programs:               coll.Maps[rbperfmaps.MapPrograms],
		PIDToRBThread:          coll.Maps[rbperfmaps.MapPIDToRBThread],
		IDToStack:              coll.Maps[rbperfmaps.MapIDToStack],
		StackToID:              coll.Maps[rbperfmaps.MapStackToID],
		VersionSpecificOffsets: coll.Maps[rbperfmaps.MapVersionSpecificOffsets],
		GlobalState:            coll.Maps[rbperfmaps.MapGlobalState],
		DropReasons:            coll.Maps[rbperfmaps.MapDropReasons],
	}

	if objs.OnEvent == nil || objs.WalkRubyStack == nil {
		objs.Close() // nolint:errcheck
		return nil, fmt.Errorf("walker: collection missing on_event or walk_ruby_stack program")
	}
	if missing := objs.missingMaps(); len(missing) > 0 {
		objs.Close() // nolint:errcheck
		return nil, fmt.Errorf("walker: collection missing map(s): %s", strings.Join(missing, ", "))
	}

	key := uint32(rbperfmaps.StackReadingProgramIdx)
	if err := objs.Programs.Put(&key, objs.WalkRubyStack); err != nil {
		objs.Close() // nolint:errcheck
		return nil, fmt.Errorf("walker: populate tail-call table: %w", err)
	}

	return objs, nil
}
