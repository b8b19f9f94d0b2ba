package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
)

func TestMergeOutput(t *testing.T) {
	tests := []struct {
		stdout, stderr, want string
	}{
		{"hi\n", "", "hi\n"},
		{"", "boom\n", "boom\n"},
		{"hi\n", "boom\n", "hi\nboom\n"},
		{"", "", ""},
	}
	for _, tc := range tests {
		got := mergeOutput(tc.stdout, tc.stderr)
		if got != tc.want {
			t.Errorf("mergeOutput(%q, %q) = %q, want %q", tc.stdout, tc.stderr, got, tc.want)
		}
	}
}

func TestLoadSeccompProfile_Missing(t *testing.T) {
	profile, err := loadSeccompProfile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("expected no error for missing profile, got %v", err)
	}
	if profile != nil {
		t.Error("expected nil profile when file is absent")
	}
}

func TestLoadSeccompProfile_Empty(t *testing.T) {
	profile, err := loadSeccompProfile("")
	if err != nil {
		t.Fatalf("expected no error for empty path, got %v", err)
	}
	if profile != nil {
		t.Error("expected nil profile for empty path")
	}
}

func TestLoadSeccompProfile_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seccomp.json")
	content := `{"defaultAction":"SCMP_ACT_ALLOW","syscalls":[]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	profile, err := loadSeccompProfile(path)
	if err != nil {
		t.Fatalf("load valid profile: %v", err)
	}
	if profile == nil {
		t.Fatal("expected non-nil profile")
	}
	if string(profile.DefaultAction) != "SCMP_ACT_ALLOW" {
		t.Errorf("unexpected default action: %s", profile.DefaultAction)
	}
}

func TestLoadSeccompProfile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := loadSeccompProfile(path); err == nil {
		t.Error("expected error for malformed seccomp profile")
	}
}

func TestSpecOpts_IncludesContainmentControls(t *testing.T) {
	s := &Sandbox{
		cfg: &common.SandboxConfig{
			CPUShares:        512,
			CPUQuotaUS:       50000,
			CPUPeriodUS:      100000,
			MemoryLimitBytes: 128 * 1024 * 1024,
			PidsLimit:        64,
		},
	}
	opts := s.specOpts()
	// No network namespace, read-only rootfs, no-new-privileges, dropped
	// capabilities, plus one opt per configured resource limit.
	if len(opts) < 8 {
		t.Errorf("expected at least 8 spec opts for full containment policy, got %d", len(opts))
	}
}

func TestInterpreterArgs_ReadsFromStdin(t *testing.T) {
	s := &Sandbox{}
	args := s.interpreterArgs()
	if len(args) != 2 || args[1] != "-" {
		t.Errorf("expected interpreter to read from stdin, got %v", args)
	}
}
