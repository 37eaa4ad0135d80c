//go:build !windows

package benchmark

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SetMaxResources raises the open file limit to its hard maximum and, where
// the kernel exposes it, lifts the Go runtime thread cap.
func SetMaxResources(logger *slog.Logger) error {
	const threadLimit = 10000
	rLimit := unix.Rlimit{}

	// Get the current max file descriptor limit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return fmt.Errorf("unable to get rlimit: %w", err)
	}

	before := rLimit.Cur
	rLimit.Cur = rLimit.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return fmt.Errorf("unable to set open file limit: %w", err)
	}

	// not available outside Linux
	threads, err := readLinuxMaxThreads()
	if err != nil {
		logger.Debug("thread limit unchanged", "err", err)
	} else if maxThreads := (int(threads) * 90) / 100; maxThreads > threadLimit {
		debug.SetMaxThreads(maxThreads)
	}

	logger.Debug("system resources adjusted", "nofile_before", before, "nofile", rLimit.Cur)
	return nil
}

// readLinuxMaxThreads reads the max threads from /proc/sys/kernel/threads-max on Linux.
func readLinuxMaxThreads() (uint32, error) {
	data, err := os.ReadFile("/proc/sys/kernel/threads-max")
	if err != nil {
		return 0, fmt.Errorf("unable to read /proc/sys/kernel/threads-max: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	threads, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unable to parse max threads value: %w", err)
	}
	return uint32(threads), nil
}
