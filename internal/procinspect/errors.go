package procinspect

import "errors"

// Per-process-fatal errors. Any of these means the target pid is skipped;
// profiling of other registered pids continues.
var (
	ErrNoSuchProcess          = errors.New("procinspect: no such process")
	ErrNoRubyBinary           = errors.New("procinspect: no ruby or libruby mapping found")
	ErrRubyVersionNotFound    = errors.New("procinspect: ruby version string not found in rodata")
	ErrUnsupportedRubyVersion = errors.New("procinspect: ruby version not in the supported registry")
	ErrNoCurrentThreadSymbol  = errors.New("procinspect: ruby_current_ec/ruby_current_thread symbol not found")
)
