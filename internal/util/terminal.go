package util

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// StdoutIsTerminal reports whether stdout is attached to a terminal.
// Progress bars and tables fall back to plain lines when it is not.
func StdoutIsTerminal() bool {
	return IsTerminal(os.Stdout.Fd())
}

// GetTerminalWidth returns the width of the terminal, or 100 if not a terminal
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 100
	}
	return width
}
