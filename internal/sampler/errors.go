package sampler

import "errors"

// Per-process errors returned by the controller. ErrNoSuchProcess is what
// Register returns, wrapped with the pid, when the target pid does not exist.
var (
	ErrNoSuchProcess = errors.New("sampler: no such process")
)
