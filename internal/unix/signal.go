//go:build unix

// Package unix provides process signalling helpers for Unix platforms.
package unix

import (
	"errors"

	xunix "golang.org/x/sys/unix"
)

// Terminate sends SIGTERM to pid.
func Terminate(pid int) error {
	return xunix.Kill(pid, xunix.SIGTERM)
}

// Alive reports whether pid names an existing process. EPERM means the
// process exists but belongs to another user.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := xunix.Kill(pid, 0)
	return err == nil || errors.Is(err, xunix.EPERM)
}

// Gone reports whether err says the target process no longer exists.
func Gone(err error) bool {
	return errors.Is(err, xunix.ESRCH)
}
