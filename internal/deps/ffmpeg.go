package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const defaultFFmpeg = "ffmpeg"

// ResolveFFmpegPath returns the absolute path of the ffmpeg binary the native
// engine will execute. An empty configured value falls back to "ffmpeg" on PATH.
// Values containing a path separator must point at an executable file; bare
// names are looked up on PATH.
func ResolveFFmpegPath(configured string) (string, error) {
	candidate := strings.TrimSpace(configured)
	if candidate == "" {
		candidate = defaultFFmpeg
	}

	if strings.ContainsRune(candidate, filepath.Separator) {
		info, err := os.Stat(candidate)
		if err != nil {
			return "", fmt.Errorf("ffmpeg binary %q: %w", candidate, err)
		}
		if !isExecutable(info) {
			return "", fmt.Errorf("ffmpeg binary %q is not executable", candidate)
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", fmt.Errorf("resolve ffmpeg path: %w", err)
		}
		return abs, nil
	}

	resolved, err := exec.LookPath(candidate)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", candidate)
	}
	return resolved, nil
}

// FFmpegRequirement describes the ffmpeg binary the native engine executes.
func FFmpegRequirement(configured string) Requirement {
	command := strings.TrimSpace(configured)
	if command == "" {
		command = defaultFFmpeg
	}
	return Requirement{
		Name:        "FFmpeg",
		Command:     command,
		Description: "Native transcode engine",
		Resolve:     ResolveFFmpegPath,
	}
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
