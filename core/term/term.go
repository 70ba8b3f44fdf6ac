// Package term manages the controlling terminal's foreground process group.
package term

import (
	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// IsInteractive reports whether fd refers to a terminal. Job control and
// terminal ownership transfers are only meaningful on interactive sessions.
func IsInteractive(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// SetForeground hands the terminal's foreground slot to the process group.
// The shell must ignore SIGTTOU for this to be callable from a background
// group without stopping the shell itself.
func SetForeground(fd int, pgid int) error {
	return unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid)
}

// Foreground returns the terminal's current foreground process group.
func Foreground(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCGPGRP)
}
