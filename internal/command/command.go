// Package command turns ffmpeg command templates into concrete argument lists.
//
// A template is a sequence of tokens. Three tokens are placeholders:
// FFMPEG stands for the engine's own path and is dropped, INPUT and OUTPUT are
// replaced with the artifact names chosen for one transcode. Everything else
// passes through untouched.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// Placeholder tokens, compared by exact string equality.
const (
	Engine = "FFMPEG"
	Input  = "INPUT"
	Output = "OUTPUT"
)

var (
	ErrEmpty      = errors.New("command template is empty")
	ErrNoOutput   = errors.New("command template has no " + Output + " placeholder")
	ErrEmptyToken = errors.New("command template contains an empty token")
)

// Substitute returns a new argument list with placeholders resolved. The result
// is shorter than template by exactly the number of FFMPEG tokens; template is
// never modified.
func Substitute(template []string, inputPath, outputPath string) []string {
	args := make([]string, 0, len(template))
	for _, token := range template {
		switch token {
		case Engine:
			continue
		case Input:
			args = append(args, inputPath)
		case Output:
			args = append(args, outputPath)
		default:
			args = append(args, token)
		}
	}
	return args
}

// OutputName appends ext to id. A leading dot on ext is tolerated.
func OutputName(id, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return id
	}
	return id + "." + ext
}

// Validate rejects templates that cannot produce an output artifact.
func Validate(template []string) error {
	if len(template) == 0 {
		return ErrEmpty
	}
	hasOutput := false
	for i, token := range template {
		switch token {
		case "":
			return fmt.Errorf("%w at position %d", ErrEmptyToken, i)
		case Output:
			hasOutput = true
		}
	}
	if !hasOutput {
		return ErrNoOutput
	}
	return nil
}
