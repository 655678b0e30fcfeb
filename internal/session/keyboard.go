package session

import (
	"os"
	"sync"

	"golang.org/x/term"
)

// Recognized raw keyboard bytes while recording. Raw mode delivers ETX
// (Ctrl+C) as a byte instead of a SIGINT, so it is handled here too.
const (
	keyCR  = '\r'
	keyLF  = '\n'
	keyETX = 0x03
)

// console owns the terminal's raw input mode for the duration of one attempt.
// The prior mode is captured at acquisition and must be restored exactly once
// in cleanup; leaving raw mode set corrupts the terminal for everything that
// runs after us.
type console struct {
	keys <-chan byte

	restoreOnce sync.Once
	restore     func()
}

// openConsole puts stdin into raw mode and starts a single-byte reader.
// When stdin is not a terminal (tests, pipes), it returns a console with a
// nil key channel, which never delivers events, and a no-op restore.
func openConsole() (*console, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return &console{restore: func() {}}, nil
	}

	prior, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	keys := make(chan byte)
	done := make(chan struct{})

	// The reader blocks in os.Stdin.Read and cannot be interrupted; after
	// Restore it parks until process exit. One goroutine per process is the
	// accepted cost of raw keyboard input without a platform event loop.
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			select {
			case keys <- buf[0]:
			case <-done:
				return
			}
		}
	}()

	c := &console{keys: keys}
	c.restore = func() {
		close(done)
		_ = term.Restore(fd, prior)
	}
	return c, nil
}

// Restore returns the terminal to its prior mode and detaches the reader.
// Idempotent; safe on every exit path.
func (c *console) Restore() {
	c.restoreOnce.Do(c.restore)
}
