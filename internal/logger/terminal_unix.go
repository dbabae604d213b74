//go:build linux || darwin

package logger

import (
	"os"
)

// isTerminal checks if the file descriptor belongs to a character device.
// This is a portable approximation that avoids per-platform ioctl calls;
// it is only used to decide whether to emit ANSI colors.
func isTerminal(fd uintptr) bool {
	for _, f := range []*os.File{os.Stdout, os.Stderr} {
		if f.Fd() != fd {
			continue
		}
		info, err := f.Stat()
		if err != nil {
			return false
		}
		return info.Mode()&os.ModeCharDevice != 0
	}
	return false
}
