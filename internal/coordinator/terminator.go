package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// TermOutcome is the result of a termination attempt.
type TermOutcome string

const (
	TermConfirmed TermOutcome = "confirmed" // exited within the grace window
	TermKilled    TermOutcome = "killed"    // exited only after the hard kill
	TermTimedOut  TermOutcome = "timed_out" // still alive after the force window
	TermFailed    TermOutcome = "failed"    // could not signal the process
)

// Default termination windows.
const (
	DefaultGrace = 10 * time.Second
	DefaultForce = 5 * time.Second
)

// Poll backoff while waiting for the process to disappear.
const (
	pollInitial = 100 * time.Millisecond
	pollMax     = time.Second
)

// Terminator shuts down a prior instance: graceful signal, poll with
// backoff, then a single hard kill.
type Terminator struct {
	Grace time.Duration // wait after the graceful signal (default 10s)
	Force time.Duration // wait after the hard kill (default 5s)

	// signal and liveness hooks, overridable in tests
	term  func(pid int) error
	kill  func(pid int) error
	alive func(pid int) bool
}

// NewTerminator returns a Terminator using real process signals.
func NewTerminator() *Terminator {
	return &Terminator{
		Grace: DefaultGrace,
		Force: DefaultForce,
		term:  terminateProcess,
		kill:  killProcessHard,
		alive: processAlive,
	}
}

func (t *Terminator) graceWindow() time.Duration {
	if t.Grace > 0 {
		return t.Grace
	}
	return DefaultGrace
}

func (t *Terminator) forceWindow() time.Duration {
	if t.Force > 0 {
		return t.Force
	}
	return DefaultForce
}

// Terminate asks pid to exit and escalates when it does not. It refuses to
// touch the calling process. The returned outcome is TermConfirmed or
// TermKilled only once the process is verified gone; every other outcome
// means the process may still be alive.
func (t *Terminator) Terminate(ctx context.Context, pid int) (TermOutcome, error) {
	if pid <= 0 {
		return TermFailed, fmt.Errorf("invalid pid %d", pid)
	}
	if pid == os.Getpid() {
		return TermFailed, errors.New("refusing to terminate own process")
	}
	if !t.alive(pid) {
		return TermConfirmed, nil
	}

	slog.Debug("signaling prior instance", "pid", pid)
	if err := t.term(pid); err != nil {
		if errProcessGone(err) {
			return TermConfirmed, nil
		}
		return TermFailed, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	if t.waitGone(ctx, pid, t.graceWindow()) {
		return TermConfirmed, nil
	}

	slog.Warn("prior instance still alive after grace window, escalating", "pid", pid, "grace", t.graceWindow())
	if err := t.kill(pid); err != nil && !errProcessGone(err) {
		return TermFailed, fmt.Errorf("kill pid %d: %w", pid, err)
	}
	if t.waitGone(ctx, pid, t.forceWindow()) {
		return TermKilled, nil
	}
	return TermTimedOut, nil
}

// waitGone polls until pid disappears or the window elapses. The poll delay
// starts at 100ms and doubles up to 1s. A process dying between the signal
// and a poll is success.
func (t *Terminator) waitGone(ctx context.Context, pid int, window time.Duration) bool {
	deadline := time.Now().Add(window)
	delay := pollInitial
	for {
		if !t.alive(pid) {
			return true
		}
		remain := time.Until(deadline)
		if remain <= 0 || ctx.Err() != nil {
			return false
		}
		sleep := delay
		if sleep > remain {
			sleep = remain
		}
		select {
		case <-ctx.Done():
			return !t.alive(pid)
		case <-time.After(sleep):
		}
		if delay < pollMax {
			delay *= 2
			if delay > pollMax {
				delay = pollMax
			}
		}
	}
}
