// Package proc provides utilities for process discovery on Linux systems,
// reading the bits of /proc the profiler's process inspector needs: the
// target binary, its threads, and the kernel-reported start_time used to
// guard against PID reuse between samples.
package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// GetKernelVersion reads the kernel version from /proc/version.
func GetKernelVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return "unknown"
	}

	// Parse version from output like "Linux version 5.15.0-xxx...".
	version := string(data)
	if idx := strings.Index(version, "Linux version "); idx >= 0 {
		version = version[idx+14:] // Skip "Linux version ".
		if idx := strings.Index(version, " "); idx >= 0 {
			version = version[:idx]
		}
		return version
	}

	return "unknown"
}

// GetBinaryPath returns the path to the executable for the given PID,
// resolving the /proc/<pid>/exe symlink.
func GetBinaryPath(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
}

// ListPids returns a list of all running process IDs from /proc.
// Pids are sorted in ascending order.
func ListPids() ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc: %w", err)
	}

	var pids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		// Parse PID from directory name.
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue // Not a numeric directory.
		}

		if pid > 0 {
			pids = append(pids, pid)
		}
	}
	// Sort PIDs (lowest first).
	sort.Ints(pids)

	return pids, nil
}

// ListThreads returns the thread IDs belonging to pid, read from
// /proc/<pid>/task, sorted ascending. The sampler controller does not use
// it: it opens one system-wide perf event per online CPU.
func ListThreads(pid int) ([]int, error) {
	taskDir := fmt.Sprintf("/proc/%d/task", pid)
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, fmt.Errorf("read task dir for pid %d: %w", pid, err)
	}

	var tids []int
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	sort.Ints(tids)

	if len(tids) == 0 {
		return nil, fmt.Errorf("no threads found for pid %d", pid)
	}
	return tids, nil
}

// StartTime reads field 22 (starttime) of /proc/<pid>/stat: the process's
// start time in clock ticks since boot, as reported by the kernel. The
// process inspector returns it in Info.StartTime; the registrar still
// publishes start_time as 0 and the kernel adopts the task's own start_time
// on the first sample, dropping later samples whose start_time differs
// (PID reuse).
func StartTime(pid int) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, fmt.Errorf("read stat for pid %d: %w", pid, err)
	}

	// The comm field (2nd field) is parenthesized and may itself contain
	// spaces or parentheses, so field counting starts after the last ')'.
	line := string(data)
	close := strings.LastIndex(line, ")")
	if close < 0 {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(line[close+1:])
	// Fields after comm start at index 0 == field 3 (state); starttime is
	// field 22, i.e. index 22-3 = 19 in this slice.
	const startTimeIdx = 19
	if len(fields) <= startTimeIdx {
		return 0, fmt.Errorf("malformed /proc/%d/stat: too few fields", pid)
	}

	startTime, err := strconv.ParseUint(fields[startTimeIdx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse starttime for pid %d: %w", pid, err)
	}
	return startTime, nil
}

// Comm reads the process name from /proc/<pid>/comm, truncated by the
// kernel to 15 bytes plus a NUL, matching the BPF task_struct.comm field.
func Comm(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", fmt.Errorf("read comm for pid %d: %w", pid, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// MapsPath returns the /proc/<pid>/maps path for pid, factored out so the
// process inspector's tests can point it at a fixture file instead.
func MapsPath(pid int) string {
	return filepath.Join("/proc", strconv.Itoa(pid), "maps")
}

// RootPath returns the /proc/<pid> directory path for pid, used to check
// whether a pid exists at all before attempting to read anything under it.
func RootPath(pid int) string {
	return filepath.Join("/proc", strconv.Itoa(pid))
}
