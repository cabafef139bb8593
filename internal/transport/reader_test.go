package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
)

func TestDropReason_String(t *testing.T) {
	cases := map[DropReason]string{
		DropLostInRing:       "lost_in_ring",
		DropPIDUnknown:       "pid_unknown",
		DropVersionUnknown:   "version_unknown",
		DropPIDReuseMismatch: "pid_reuse_mismatch",
		DropStackTruncation:  "stack_truncation",
		DropReason(99):       "unknown",
	}
	for reason, want := range cases {
		assert.Equal(t, want, reason.String())
	}
}

func TestDropCounter_RecordAndSnapshot(t *testing.T) {
	d := newDropCounter()
	d.record(DropPIDUnknown)
	d.record(DropPIDUnknown)
	d.add(DropLostInRing, 5)

	snap := d.snapshot()
	assert.Equal(t, uint64(2), snap[DropPIDUnknown])
	assert.Equal(t, uint64(5), snap[DropLostInRing])
}

func TestDropCounter_SnapshotIsACopy(t *testing.T) {
	d := newDropCounter()
	d.record(DropPIDUnknown)
	snap := d.snapshot()
	snap[DropPIDUnknown] = 1000

	fresh := d.snapshot()
	assert.Equal(t, uint64(1), fresh[DropPIDUnknown])
}

func TestDecodeAndValidate_ValidStack(t *testing.T) {
	var s rbperfmaps.RubyStack
	s.Size, s.ExpectedSize = 2, 2
	s.StackStatus = rbperfmaps.StackComplete
	s.Frames[0], s.Frames[1] = 1, 2

	raw, err := rbperfmaps.EncodeRubyStack(s)
	require.NoError(t, err)

	d := newDropCounter()
	decoded, err := decodeAndValidate(raw, &d)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestDecodeAndValidate_InvalidStackRecordsDrop(t *testing.T) {
	s := rbperfmaps.RubyStack{Size: 5, ExpectedSize: 3, StackStatus: rbperfmaps.StackIncomplete}
	raw, err := rbperfmaps.EncodeRubyStack(s)
	require.NoError(t, err)

	d := newDropCounter()
	_, err = decodeAndValidate(raw, &d)
	assert.Error(t, err)
	assert.Equal(t, uint64(1), d.snapshot()[DropStackTruncation])
}
