package session

import (
	"os"
	"os/signal"
	"sync"
)

// cleanup tears down everything one attempt acquired: console mode, signal
// subscription, the subprocess, and the session temp directory. Every step is
// guarded so a failure in one never prevents the others, and the whole
// sequence is idempotent - it runs on every exit path, sometimes twice
// (explicitly before the result is built, and again via defer).
type cleanup struct {
	c    *Controller
	cons *console
	proc process

	mu      sync.Mutex
	exited  bool
	stopped bool
	once    sync.Once
}

// newCleanup is constructed before the subprocess is spawned; cons and proc
// stay nil until each resource is actually acquired, and every teardown step
// skips what was never acquired.
func (c *Controller) newCleanup() *cleanup {
	return &cleanup{c: c}
}

// procExited records that the subprocess exited on its own; stopProcess
// becomes a no-op.
func (cl *cleanup) procExited() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.exited = true
}

// stopProcess runs the graceful-then-forceful termination sequence once.
func (cl *cleanup) stopProcess() {
	cl.mu.Lock()
	if cl.proc == nil || cl.exited || cl.stopped {
		cl.mu.Unlock()
		return
	}
	cl.stopped = true
	cl.mu.Unlock()

	cl.proc.Stop(cl.c.stopGrace)
}

// run performs teardown in order: console mode, signal handler, subprocess,
// temp directory. Never fails.
func (cl *cleanup) run() {
	cl.once.Do(func() {
		if cl.cons != nil {
			cl.cons.Restore()
		}

		signal.Stop(cl.c.signals)

		cl.stopProcess()

		cl.removeTempDir()
	})
}

// removeTempDir deletes the session working directory unless the caller asked
// to retain temp files, or the finished artifact lives inside it and is still
// needed by the caller (who removes the directory after storing the note).
func (cl *cleanup) removeTempDir() {
	dir := cl.c.cfg.TempDir
	if dir == "" || cl.c.cfg.KeepTempFiles {
		return
	}
	if cl.c.state.Phase() == PhaseFinishing {
		return
	}
	_ = os.RemoveAll(dir)
}
