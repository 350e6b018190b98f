package server

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Stop must reap the sweeper goroutine.
func TestServer_StopLeavesNoGoroutines(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.srv.StartSweeper()
	h.srv.Stop()
}
