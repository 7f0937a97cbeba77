//go:build !unix

// Package unix provides process signalling helpers for Unix platforms.
package unix

import (
	"errors"
	"os"
)

// Terminate kills pid; there is no SIGTERM on this platform.
func Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// Alive reports whether pid names an existing process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

// Gone reports whether err says the target process no longer exists.
func Gone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
