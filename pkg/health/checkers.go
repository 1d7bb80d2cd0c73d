package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck reports failure once the process holds more goroutines
// than max. A steadily growing count is the usual signature of a leak in a
// background worker.
func GoroutineCountCheck(max int) ProbeFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return errors.Errorf("%d goroutines, max %d", n, max)
		}
		return nil
	}
}

// GCMaxPauseCheck reports failure when any recorded stop-the-world GC pause
// exceeded max. Long pauses usually mean the heap has outgrown the pod.
func GCMaxPauseCheck(max time.Duration) ProbeFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > max {
				return errors.Errorf("GC pause %s, max %s", pause, max)
			}
		}
		return nil
	}
}
