package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/rbperf/internal/procinspect"
)

func TestParsePIDs(t *testing.T) {
	pids, err := parsePIDs("1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pids)
}

func TestParsePIDs_Empty(t *testing.T) {
	pids, err := parsePIDs("")
	require.NoError(t, err)
	assert.Nil(t, pids)
}

func TestParsePIDs_Invalid(t *testing.T) {
	_, err := parsePIDs("1,not-a-pid")
	assert.Error(t, err)
}

func TestLevelFromVerbose(t *testing.T) {
	assert.Equal(t, "trace", levelFromVerbose(true))
	assert.Equal(t, "info", levelFromVerbose(false))
}

func TestRegisterFailureReason(t *testing.T) {
	assert.Equal(t, "no_ruby_binary", registerFailureReason(procinspect.ErrNoRubyBinary))
	assert.Equal(t, "unsupported_version", registerFailureReason(procinspect.ErrUnsupportedRubyVersion))
	assert.Equal(t, "unknown", registerFailureReason(assertErr{}))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
