package home

import (
	"os"
	"testing"
)

func TestDir_Pid(t *testing.T) {
	dir, _ := New(t.TempDir())

	if pid := dir.RunningPid(); pid != 0 {
		t.Errorf("expected no running pid, got %d", pid)
	}

	if err := dir.WritePid(); err != nil {
		t.Fatalf("WritePid failed: %v", err)
	}
	if pid := dir.RunningPid(); pid != os.Getpid() {
		t.Errorf("RunningPid() = %d, want %d", pid, os.Getpid())
	}

	dir.RemovePid()
	if _, err := os.Stat(dir.PidPath()); !os.IsNotExist(err) {
		t.Error("pid file should be removed")
	}
	dir.RemovePid() // no-op when missing
}

func TestDir_RunningPid_Stale(t *testing.T) {
	dir, _ := New(t.TempDir())

	tests := []struct {
		name     string
		contents string
	}{
		{"garbage", "not-a-pid"},
		{"zero", "0"},
		{"negative", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(dir.PidPath(), []byte(tt.contents), 0o644); err != nil {
				t.Fatal(err)
			}
			if pid := dir.RunningPid(); pid != 0 {
				t.Errorf("expected 0 for %q, got %d", tt.contents, pid)
			}
		})
	}
}
