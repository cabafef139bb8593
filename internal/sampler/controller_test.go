//go:build linux
// +build linux

package sampler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/rbperf/internal/procinspect"
)

func TestDefaultRunConfig(t *testing.T) {
	cfg := DefaultRunConfig()
	assert.True(t, cfg.EnablePIDRaceDetector)
	assert.Equal(t, TransportRingBuf, cfg.Transport)
	assert.Greater(t, cfg.SamplePeriod.Nanoseconds(), int64(0))
}

func TestReadTracepointID(t *testing.T) {
	dir := t.TempDir()
	idDir := filepath.Join(dir, "events", "raw_syscalls", "sys_enter")
	require.NoError(t, os.MkdirAll(idDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(idDir, "id"), []byte("314\n"), 0o644))

	id, err := readTracepointID([]string{dir}, "raw_syscalls", "sys_enter")
	require.NoError(t, err)
	assert.Equal(t, uint64(314), id)
}

func TestReadTracepointID_FallsBackToSecondRoot(t *testing.T) {
	missing := t.TempDir()
	dir := t.TempDir()
	idDir := filepath.Join(dir, "events", "raw_syscalls", "sys_enter")
	require.NoError(t, os.MkdirAll(idDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(idDir, "id"), []byte("99\n"), 0o644))

	id, err := readTracepointID([]string{missing, dir}, "raw_syscalls", "sys_enter")
	require.NoError(t, err)
	assert.Equal(t, uint64(99), id)
}

func TestReadTracepointID_NotFound(t *testing.T) {
	_, err := readTracepointID([]string{t.TempDir()}, "raw_syscalls", "sys_enter")
	assert.Error(t, err)
}

func TestRegisterError_TranslatesNoSuchProcess(t *testing.T) {
	err := registerError(1234, procinspect.ErrNoSuchProcess)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
	assert.NotErrorIs(t, err, procinspect.ErrNoSuchProcess)
}

func TestRegisterError_PassesOtherErrorsThrough(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", procinspect.ErrUnsupportedRubyVersion)
	err := registerError(1234, wrapped)
	assert.ErrorIs(t, err, procinspect.ErrUnsupportedRubyVersion)
	assert.False(t, errors.Is(err, ErrNoSuchProcess))
}
