// Package rbperfmaps declares the fixed-size record types shared between the
// in-kernel stack walker and user space, and the names of the BPF maps that
// carry them. These structs must stay byte-for-byte compatible with their C
// counterparts in bpf/walker.c: field order, width, and padding all matter
// because user space decodes them with encoding/binary, not by sharing a
// compiler.
package rbperfmaps

import "fmt"

// Size limits fixed at build time, mirrored on the kernel side.
const (
	PathMaxLen          = 128
	MethodMaxLen        = 64
	MaxStack            = 127
	MaxStacksPerProgram = 30
	BPFProgramsCount    = 5
	// NativeFrameSentinel is written into a frame's method name when the
	// walker finds a NULL iseq (a native/C frame it cannot symbolize).
	NativeFrameSentinel = "<native code>"
)

// StackStatus reports whether a RubyStack reached the base of the VM stack
// or ran out of tail-call budget first.
type StackStatus uint8

const (
	StackComplete StackStatus = iota
	StackIncomplete
)

func (s StackStatus) String() string {
	if s == StackComplete {
		return "COMPLETE"
	}
	return "INCOMPLETE"
}

// EventType selects what on_event was attached to, and therefore whether
// SyscallID is meaningful.
type EventType uint32

const (
	EventCPUCycles EventType = iota
	EventSyscall
)

// RubyFrame is the hash key of the content-addressed frame dictionary.
// Identity is exact bytewise equality, including zero-padding, so producers
// must always zero-initialize these buffers rather than leaving stale bytes
// from a reused allocation.
type RubyFrame struct {
	Path       [PathMaxLen]byte
	MethodName [MethodMaxLen]byte
	Lineno     uint32
}

// NewNativeFrame returns the sentinel frame recorded when iseq == NULL:
// no path, no line, and the fixed "<native code>" method name.
func NewNativeFrame() RubyFrame {
	var f RubyFrame
	copy(f.MethodName[:], NativeFrameSentinel)
	return f
}

// PathString returns the NUL-trimmed path as a Go string.
func (f RubyFrame) PathString() string {
	return trimNUL(f.Path[:])
}

// MethodString returns the NUL-trimmed method name as a Go string.
func (f RubyFrame) MethodString() string {
	return trimNUL(f.MethodName[:])
}

// IsNative reports whether this frame is the native-code sentinel.
func (f RubyFrame) IsNative() bool {
	return f.MethodString() == NativeFrameSentinel
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// SetPath copies s into the fixed Path buffer, truncating and always
// zero-padding the remainder so two frames with equal logical paths compare
// byte-equal regardless of what was in the buffer before.
func (f *RubyFrame) SetPath(s string) {
	setFixed(f.Path[:], s)
}

// SetMethodName copies s into the fixed MethodName buffer with the same
// truncate-and-zero-pad rule as SetPath.
func (f *RubyFrame) SetMethodName(s string) {
	setFixed(f.MethodName[:], s)
}

func setFixed(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
}

// RubyStack is a single sample record: one walked Ruby call stack plus the
// metadata needed to attribute and present it.
type RubyStack struct {
	TimestampNs  uint64
	PID          uint32
	CPU          uint32
	SyscallID    uint32 // 0 when not a syscall trace.
	Comm         [16]byte
	Size         uint32
	ExpectedSize uint32
	StackStatus  StackStatus
	_            [3]byte // matches the compiler-inserted padding before frames[], a __u32 array, in struct ruby_stack.
	Frames       [MaxStack]uint32 // frame_id values, valid up to Size.
}

// Validate checks that size <= expected_size <= MAX_STACK*BPF_PROGRAMS_COUNT,
// and that size == expected_size iff status == COMPLETE whenever
// expected_size fits in one walk (<= MaxStack).
func (s RubyStack) Validate() error {
	maxPossible := uint32(MaxStack * BPFProgramsCount)
	if s.Size > s.ExpectedSize {
		return fmt.Errorf("rbperfmaps: size %d exceeds expected_size %d", s.Size, s.ExpectedSize)
	}
	if s.ExpectedSize > maxPossible {
		return fmt.Errorf("rbperfmaps: expected_size %d exceeds max possible %d", s.ExpectedSize, maxPossible)
	}
	if s.ExpectedSize <= MaxStack {
		complete := s.Size == s.ExpectedSize
		if complete != (s.StackStatus == StackComplete) {
			return fmt.Errorf("rbperfmaps: size==expected_size (%v) disagrees with status %s", complete, s.StackStatus)
		}
	}
	return nil
}

// CommString returns the NUL-trimmed comm field.
func (s RubyStack) CommString() string {
	return trimNUL(s.Comm[:])
}

// FrameIDs returns the populated prefix of Frames, i.e. Frames[:Size].
func (s RubyStack) FrameIDs() []uint32 {
	return s.Frames[:s.Size]
}

// ProcessData is what the controller publishes into pid_to_rb_thread and the
// kernel reads (and partially updates: StartTime) on every sample.
type ProcessData struct {
	RBFrameAddr uint64
	RBVersion   uint32
	_           [4]byte // matches the compiler-inserted padding before start_time, a __u64, in struct process_data.
	StartTime   uint64  // 0 until the kernel fills it on first observation.
}

// Map names for the shared maps the walker and user space both open.
// Centralizing the names here means the loader, the sampler, and tests
// never disagree on what a given handle is called.
const (
	MapEvents                 = "events"
	MapPrograms               = "programs"
	MapPIDToRBThread          = "pid_to_rb_thread"
	MapIDToStack              = "id_to_stack"
	MapStackToID              = "stack_to_id"
	MapVersionSpecificOffsets = "version_specific_offsets"
	MapGlobalState            = "global_state"
	MapDropReasons            = "drop_reasons"
)

// StackReadingProgramIdx is the programs-map index the walker tail-calls
// into from on_event and from itself.
const StackReadingProgramIdx = 0

// Kernel-side drop_reasons indices. drop_reasons is a BPF_MAP_TYPE_PERCPU_ARRAY
// of counters the walker increments directly, since the three reasons below
// are detected in on_event/walk_ruby_stack before a sample ever reaches
// events — there is no RubyStack for user space to decode and classify
// after the fact, unlike DropStackTruncation and DropLostInRing.
const (
	KernelDropPIDUnknown uint32 = iota
	KernelDropVersionUnknown
	KernelDropPIDReuseMismatch
	KernelDropReasonsCount
)
