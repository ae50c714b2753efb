package transport

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

var (
	shuttingDown  atomic.Bool
	hookOnce      sync.Once
	hookInstalled atomic.Bool
)

// ShuttingDown reports whether the process has started exiting.
func ShuttingDown() bool {
	return shuttingDown.Load()
}

// MarkShuttingDown flips the process-wide shutdown flag. In-flight requests
// on clients with the network interceptor resolve to empty successes from now on.
func MarkShuttingDown() {
	if shuttingDown.CompareAndSwap(false, true) {
		logger.Info("transport: process shutting down, masking connection failures")
	}
}

// InstallExitHook registers a SIGINT/SIGTERM hook that flips the shutdown
// flag. Only binaries call it; creating a Client never does. After flipping
// the flag the hook stops listening and re-delivers the signal, so the
// process exits unless the binary has its own handler registered.
func InstallExitHook() {
	hookOnce.Do(func() {
		hookInstalled.Store(true)
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-ch
			MarkShuttingDown()
			signal.Stop(ch)
			if p, err := os.FindProcess(os.Getpid()); err == nil {
				_ = p.Signal(sig)
			}
		}()
	})
}
