package main

import (
	"path/filepath"
	"testing"
)

func TestRun_FailuresReturnExitCode(t *testing.T) {
	dir := t.TempDir()
	noEnv := filepath.Join(dir, "none.env")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"-no-such-flag"}, 2},
		{"env file is a directory", []string{"-env", dir}, 1},
		{"missing person model", []string{"-env", noEnv, "-yolo", filepath.Join(dir, "missing.onnx")}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := run(tc.args); got != tc.want {
				t.Errorf("run(%q) = %d, want %d", tc.args, got, tc.want)
			}
		})
	}
}
