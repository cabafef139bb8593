// Package sysfs provides utilities for interacting with the /sys filesystem.
package sysfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CheckBTFAvailable checks if BTF (BPF Type Format) is available.
// BTF is required for CO-RE (Compile Once, Run Everywhere) support.
func CheckBTFAvailable() bool {
	// Check for /sys/kernel/btf/vmlinux.
	_, err := os.Stat("/sys/kernel/btf/vmlinux")
	return err == nil
}

// OnlineCPUs parses /sys/devices/system/cpu/online (e.g. "0-3,6,8-9") into
// the list of online CPU ids. The sampler opens one perf event per entry.
func OnlineCPUs() ([]int, error) {
	data, err := os.ReadFile("/sys/devices/system/cpu/online")
	if err != nil {
		return nil, fmt.Errorf("read online cpu list: %w", err)
	}
	return parseCPUList(string(data))
}

func parseCPUList(raw string) ([]int, error) {
	var cpus []int
	for _, part := range strings.Split(strings.TrimSpace(raw), ",") {
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(lo)
			end, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("parse cpu range %q", part)
			}
			for c := start; c <= end; c++ {
				cpus = append(cpus, c)
			}
			continue
		}
		c, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse cpu id %q", part)
		}
		cpus = append(cpus, c)
	}
	return cpus, nil
}
