//go:build windows

package benchmark

import (
	"log/slog"
	"runtime/debug"
)

// SetMaxResources adjusts the Go runtime thread cap; Windows has no
// per-process open file limit to raise.
func SetMaxResources(logger *slog.Logger) error {
	const maxThreads = 8000
	debug.SetMaxThreads(maxThreads)

	logger.Debug("system resources adjusted", "max_threads", maxThreads)
	return nil
}
