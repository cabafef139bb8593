// Package rbversion holds the closed, write-once table mapping a CRuby
// version string to the struct-layout offsets the in-kernel stack walker
// needs to chase thread -> EC -> VM stack -> control frame -> iseq -> body.
// CRuby's internal layouts shift across releases; isolating the variance
// here keeps the walker itself version-agnostic.
package rbversion

import "fmt"

// PathFlavour distinguishes how an iseq's location.pathobj is laid out.
// Stored as a full __u32 in struct offsets on the kernel side (the field
// sits between two other __u32s, so a narrower Go type here would desync
// the struct's size from what bpf/walker.c expects at that offset).
type PathFlavour uint32

const (
	// PathFlavourString means pathobj is a raw Ruby String.
	PathFlavourString PathFlavour = 0
	// PathFlavourArray means pathobj is a [realpath, path] Array and the
	// walker must index into the array's backing store for the element.
	PathFlavourArray PathFlavour = 1
)

// Offsets are the per-version fields the walker reads through, plus the
// constants that happen to be stable across every supported version but are
// kept alongside them so the whole algebra lives in one typed record.
type Offsets struct {
	// Version-variable fields.
	MainThreadOffset    uint32
	ECOffset            uint32
	VMOffset            uint32
	VMSizeOffset        uint32
	CFPOffset           uint32
	ControlFrameTSizeof uint32
	LabelOffset         uint32
	PathFlavour         PathFlavour
	LineInfoSizeOffset  uint32
	LineInfoTableOffset uint32
	LinenoOffset        uint32

	// Constants shared across every supported version. Every entry carries
	// its own copy, taken from commonConstants by withCommon, so the kernel
	// reads the whole algebra from one typed record per version.
	IseqOffset         uint32
	PCOffset           uint32
	BodyOffset         uint32
	IseqEncodedOffset  uint32
	RubyLocationOffset uint32
	PathOffset         uint32
	AsOffset           uint32
	RubyValueSizeof    uint32
	PathTypeOffset     uint32

	RubyTMask    uint64
	RubyTString  uint64
	RubyTArray   uint64
	StringOnHeap uint64
}

// entry pairs a Ruby version string with its offsets in the registry.
type entry struct {
	version string
	offsets Offsets
}

// commonConstants are identical across every version currently supported.
// withCommon starts every row from this and copies in only the row's
// version-variable fields; a shared constant set in a row is ignored.
var commonConstants = Offsets{
	IseqOffset:         0,
	PCOffset:           0x18,
	BodyOffset:         0x10,
	IseqEncodedOffset:  0x8,
	RubyLocationOffset: 0x10,
	PathOffset:         0,
	AsOffset:           0x10,
	RubyValueSizeof:    8,
	PathTypeOffset:     0x10,

	RubyTMask:    0x1f,
	RubyTString:  0x5,
	RubyTArray:   0x7,
	StringOnHeap: 1 << 13,
}

func withCommon(o Offsets) Offsets {
	base := commonConstants
	base.MainThreadOffset = o.MainThreadOffset
	base.ECOffset = o.ECOffset
	base.VMOffset = o.VMOffset
	base.VMSizeOffset = o.VMSizeOffset
	base.CFPOffset = o.CFPOffset
	base.ControlFrameTSizeof = o.ControlFrameTSizeof
	base.LabelOffset = o.LabelOffset
	base.PathFlavour = o.PathFlavour
	base.LineInfoSizeOffset = o.LineInfoSizeOffset
	base.LineInfoTableOffset = o.LineInfoTableOffset
	base.LinenoOffset = o.LinenoOffset
	return base
}

// registry is the closed, ordered table of supported versions. Index
// position is the rb_version stored in ProcessData and looked up by the
// kernel program in version_specific_offsets. Derived by hand against each
// CRuby release's vm_core.h/iseq.h, once at build time rather than
// introspected at runtime.
var registry = []entry{
	{"2.6.0", withCommon(Offsets{
		MainThreadOffset:    0x0,
		ECOffset:            0x20,
		VMOffset:            0x0,
		VMSizeOffset:        0x8,
		CFPOffset:           0x10,
		ControlFrameTSizeof: 0x38,
		LabelOffset:         0x20,
		PathFlavour:         PathFlavourArray,
		LineInfoSizeOffset:  0x78,
		LineInfoTableOffset: 0x80,
		LinenoOffset:        0x4,
	})},
	{"2.7.0", withCommon(Offsets{
		MainThreadOffset:    0x0,
		ECOffset:            0x20,
		VMOffset:            0x0,
		VMSizeOffset:        0x8,
		CFPOffset:           0x10,
		ControlFrameTSizeof: 0x38,
		LabelOffset:         0x20,
		PathFlavour:         PathFlavourArray,
		LineInfoSizeOffset:  0x78,
		LineInfoTableOffset: 0x80,
		LinenoOffset:        0x4,
	})},
	{"3.0.0", withCommon(Offsets{
		MainThreadOffset:    0x0,
		ECOffset:            0x0, // rb_frame_addr already points at the EC in 3.x.
		VMOffset:            0x0,
		VMSizeOffset:        0x8,
		CFPOffset:           0x10,
		ControlFrameTSizeof: 0x38,
		LabelOffset:         0x18,
		PathFlavour:         PathFlavourArray,
		LineInfoSizeOffset:  0x70,
		LineInfoTableOffset: 0x78,
		LinenoOffset:        0x4,
	})},
	{"3.1.0", withCommon(Offsets{
		MainThreadOffset:    0x0,
		ECOffset:            0x0,
		VMOffset:            0x0,
		VMSizeOffset:        0x8,
		CFPOffset:           0x10,
		ControlFrameTSizeof: 0x38,
		LabelOffset:         0x18,
		PathFlavour:         PathFlavourString,
		LineInfoSizeOffset:  0x70,
		LineInfoTableOffset: 0x78,
		LinenoOffset:        0x4,
	})},
	{"3.2.0", withCommon(Offsets{
		MainThreadOffset:    0x0,
		ECOffset:            0x0,
		VMOffset:            0x0,
		VMSizeOffset:        0x8,
		CFPOffset:           0x10,
		ControlFrameTSizeof: 0x38,
		LabelOffset:         0x18,
		PathFlavour:         PathFlavourString,
		LineInfoSizeOffset:  0x68,
		LineInfoTableOffset: 0x70,
		LinenoOffset:        0x4,
	})},
}

// Lookup resolves a Ruby version string to its registry index and offsets.
// The index is the stable rb_version stored in ProcessData; offsets are
// looked up by the kernel program via version_specific_offsets[index].
func Lookup(version string) (index int, offsets Offsets, ok bool) {
	for i, e := range registry {
		if e.version == version {
			return i, e.offsets, true
		}
	}
	return 0, Offsets{}, false
}

// ByIndex returns the offsets stored at a given registry index, mirroring
// how the kernel program resolves ProcessData.rb_version.
func ByIndex(index int) (Offsets, error) {
	if index < 0 || index >= len(registry) {
		return Offsets{}, fmt.Errorf("rbversion: index %d out of range (%d entries)", index, len(registry))
	}
	return registry[index].offsets, nil
}

// Versions returns the closed list of supported Ruby version strings, in
// registry order.
func Versions() []string {
	out := make([]string, len(registry))
	for i, e := range registry {
		out[i] = e.version
	}
	return out
}
