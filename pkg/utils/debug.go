package utils

import (
	"fmt"
	"os"
	"time"
)

// AttachDebugger blocks the calling goroutine until a debugger signals
// readiness by deleting the PID file. It is a development aid wired to the
// -d flag; when condition is false it returns immediately.
func AttachDebugger(condition bool, logger Logger) {
	if !condition {
		return
	}

	pidFile := "/tmp/allreduce_debug.pid"
	pid := os.Getpid()
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		logger.Warn("could not write pid file %s: %v", pidFile, err)
	}

	logger.Info("Waiting for debugger to be attached, PID: %d (delete %s to continue)", pid, pidFile)
	for {
		if _, err := os.Stat(pidFile); os.IsNotExist(err) {
			return
		}
		time.Sleep(time.Second)
	}
}
