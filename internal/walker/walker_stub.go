//go:build !linux
// +build !linux

package walker

import (
	"fmt"

	"github.com/cilium/ebpf"
)

// Objects is a stub on non-Linux systems; the walker only loads on Linux.
type Objects struct{}

// Close is a no-op stub.
func (o *Objects) Close() error {
	return nil
}

// Load returns an error on non-Linux systems.
func Load(spec *ebpf.CollectionSpec) (*Objects, error) {
	return nil, fmt.Errorf("walker: loading the in-kernel stack walker is only supported on Linux")
}
