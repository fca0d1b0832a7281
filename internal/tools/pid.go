// Package tools contains small process helpers.
package tools

import (
	"os"
	"strconv"
)

// WritePidFile writes current process PID to pidFile. Empty path is a no-op.
func WritePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	pid := []byte(strconv.Itoa(os.Getpid()) + "\n")
	return os.WriteFile(pidFile, pid, 0644)
}

// RemovePidFile removes file written by WritePidFile.
func RemovePidFile(pidFile string) {
	if pidFile != "" {
		_ = os.Remove(pidFile)
	}
}
