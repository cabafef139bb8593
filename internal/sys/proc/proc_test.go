package proc

import (
	"os"
	"testing"
)

func TestGetKernelVersion(t *testing.T) {
	version := GetKernelVersion()
	if version == "" {
		t.Error("GetKernelVersion returned empty string")
	}
}

func TestListPids(t *testing.T) {
	pids, err := ListPids()
	if err != nil {
		if os.Getenv("GOOS") == "linux" {
			t.Errorf("ListPids returned error on Linux: %v", err)
		}
		return
	}

	if len(pids) == 0 {
		t.Log("ListPids returned 0 pids")
	}
}

func TestListThreadsSelf(t *testing.T) {
	tids, err := ListThreads(os.Getpid())
	if err != nil {
		t.Skipf("ListThreads unavailable on this platform: %v", err)
	}
	if len(tids) == 0 {
		t.Error("expected at least one thread for the current process")
	}
}

func TestStartTimeSelf(t *testing.T) {
	st, err := StartTime(os.Getpid())
	if err != nil {
		t.Skipf("StartTime unavailable on this platform: %v", err)
	}
	if st == 0 {
		t.Error("expected a non-zero start time for the current process")
	}
}

func TestCommSelf(t *testing.T) {
	comm, err := Comm(os.Getpid())
	if err != nil {
		t.Skipf("Comm unavailable on this platform: %v", err)
	}
	if comm == "" {
		t.Error("expected a non-empty comm for the current process")
	}
}

func TestMapsPath(t *testing.T) {
	if got, want := MapsPath(42), "/proc/42/maps"; got != want {
		t.Errorf("MapsPath(42) = %q, want %q", got, want)
	}
}
