package procinspect

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// DiscoverRubyProcesses enumerates every running process and returns the
// pids whose executable name looks like a Ruby interpreter. It narrows what
// a caller needs to run the heavier Inspect against when the operator
// hasn't named a target with --pid. Best-effort: a process that exits
// mid-enumeration, or whose name can't be read, is skipped rather than
// failing the whole scan.
func DiscoverRubyProcesses() ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("procinspect: enumerate processes: %w", err)
	}

	var pids []int
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if strings.Contains(name, "ruby") {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}
