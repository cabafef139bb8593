package procinspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStringRE_Extracts(t *testing.T) {
	data := []byte("some junk\x00ruby 3.2.1 (2023-12-25 revision) [x86_64-linux]\x00more junk")
	m := versionStringRE.FindSubmatch(data)
	if assert.NotNil(t, m) {
		assert.Equal(t, "3.2.1", string(m[1]))
	}
}

func TestVersionStringRE_NoMatch(t *testing.T) {
	m := versionStringRE.FindSubmatch([]byte("no version string here"))
	assert.Nil(t, m)
}

func TestInspect_NoSuchProcess(t *testing.T) {
	// A pid this large will not exist on any real system, so Inspect must
	// surface ErrNoSuchProcess specifically, not just "some error occurred".
	_, err := Inspect(1 << 30)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
}
