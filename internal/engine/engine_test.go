package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	valid := []string{"in_abc", "out_abc.mp3", "a..b"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) unexpected error: %v", name, err)
		}
	}
	invalid := []string{"", ".", "..", "../etc/passwd", "dir/file", `dir\file`, "nul\x00"}
	for _, name := range invalid {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestExecErrorReportsLastStderrLine(t *testing.T) {
	err := &ExecError{ExitCode: 1, Stderr: "Input #0\nin_x: Invalid data found when processing input\n"}
	want := "ffmpeg exited with status 1: in_x: Invalid data found when processing input"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
	var target *ExecError
	if !errors.As(error(err), &target) || target.ExitCode != 1 {
		t.Fatal("expected errors.As to find ExecError")
	}
}

func TestTailStderrBoundsOutput(t *testing.T) {
	long := strings.Repeat("x", StderrTailLimit) + "tail"
	got := TailStderr([]byte(long))
	if len(got) != StderrTailLimit {
		t.Fatalf("expected %d bytes, got %d", StderrTailLimit, len(got))
	}
	if !strings.HasSuffix(got, "tail") {
		t.Fatal("expected most recent output kept")
	}
}

func TestStateString(t *testing.T) {
	if StateInitializing.String() != "initializing" || StateReady.String() != "ready" || StateIdle.String() != "idle" {
		t.Fatal("unexpected state labels")
	}
}
