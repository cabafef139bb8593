// Package procinspect locates the Ruby interpreter inside a running process
// and extracts what the sampler needs to register it: the interpreter
// binary, its version, and the absolute address of the VM's current-thread
// pointer.
package procinspect

import (
	"debug/elf"
	"fmt"
	"os"
	"regexp"

	"github.com/coral-mesh/rbperf/internal/rbversion"
	"github.com/coral-mesh/rbperf/internal/sys/proc"
)

// Info is everything the sampler needs to register a target process.
type Info struct {
	BinaryPath           string
	RubyVersion          string
	VersionIndex         int
	CurrentThreadAddress uint64
	StartTime            uint64
}

// currentThreadSymbols is tried in order: modern CRuby exposes
// ruby_current_ec, older releases only ruby_current_thread.
var currentThreadSymbols = []string{"ruby_current_ec", "ruby_current_thread"}

var versionStringRE = regexp.MustCompile(`ruby (\d+\.\d+\.\d+)`)

// Inspect returns the Info needed to register pid, or one of the sentinel
// errors in errors.go. A non-nil, non-sentinel error means something
// environmental went wrong (e.g. /proc unreadable); sentinel errors mean
// the pid itself is not a supported target and should be skipped.
func Inspect(pid int) (Info, error) {
	if _, err := os.Stat(proc.RootPath(pid)); err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("%w: pid %d", ErrNoSuchProcess, pid)
		}
		return Info{}, fmt.Errorf("procinspect: stat pid %d: %w", pid, err)
	}

	mappings, err := readMappings(proc.MapsPath(pid))
	if err != nil {
		return Info{}, fmt.Errorf("procinspect: %w", err)
	}

	rubyMapping, err := findRubyMapping(mappings)
	if err != nil {
		return Info{}, err
	}

	f, err := elf.Open(rubyMapping.path)
	if err != nil {
		return Info{}, fmt.Errorf("procinspect: open %s: %w", rubyMapping.path, err)
	}
	defer f.Close() // nolint:errcheck

	version, err := findVersionString(f)
	if err != nil {
		return Info{}, err
	}

	versionIndex, _, ok := rbversion.Lookup(version)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnsupportedRubyVersion, version)
	}

	symFileOffset, err := findCurrentThreadSymbol(f)
	if err != nil {
		return Info{}, err
	}

	// mapping_base + symbol_file_offset - mapping_file_offset: the standard
	// PIE translation from an ELF-file-relative vaddr to the address the
	// symbol actually lives at once the kernel has mapped the segment in.
	absAddr := rubyMapping.start + symFileOffset - rubyMapping.fileOffset

	startTime, err := proc.StartTime(pid)
	if err != nil {
		return Info{}, fmt.Errorf("procinspect: read start_time: %w", err)
	}

	return Info{
		BinaryPath:           rubyMapping.path,
		RubyVersion:          version,
		VersionIndex:         versionIndex,
		CurrentThreadAddress: absAddr,
		StartTime:            startTime,
	}, nil
}

// findVersionString scans the binary's string sections (SHF_STRINGS) and its
// .rodata section for the embedded "ruby X.Y.Z" string; symbol tables are
// not consulted. gopsutil's process metadata
// doesn't expose interpreter internals, so this reads the ELF directly.
func findVersionString(f *elf.File) (string, error) {
	for _, section := range f.Sections {
		if section.Flags&elf.SHF_STRINGS == 0 && section.Name != ".rodata" {
			continue
		}
		data, err := section.Data()
		if err != nil {
			continue
		}
		if m := versionStringRE.FindSubmatch(data); m != nil {
			return string(m[1]), nil
		}
	}
	return "", ErrRubyVersionNotFound
}

// findCurrentThreadSymbol looks up ruby_current_ec (preferred) or
// ruby_current_thread across both the static and dynamic symbol tables and
// returns its file-relative vaddr.
func findCurrentThreadSymbol(f *elf.File) (symFileOffset uint64, err error) {
	var tables [][]elf.Symbol
	if syms, symErr := f.Symbols(); symErr == nil {
		tables = append(tables, syms)
	}
	if dynSyms, dynErr := f.DynamicSymbols(); dynErr == nil {
		tables = append(tables, dynSyms)
	}

	for _, name := range currentThreadSymbols {
		for _, table := range tables {
			for _, sym := range table {
				if sym.Name == name {
					return sym.Value, nil
				}
			}
		}
	}
	return 0, ErrNoCurrentThreadSymbol
}
