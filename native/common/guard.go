package common

import "errors"

var (
	ErrModulePaused = errors.New("module paused")
	ErrReentrancy   = errors.New("reentrant call blocked")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Latch is a single-owner reentrancy flag. Engines arm it on entry to every
// user-facing mutator; a nested call observes the armed latch and aborts
// before touching state.
type Latch struct {
	busy bool
}

// Enter arms the latch, failing if it is already armed.
func (l *Latch) Enter() error {
	if l == nil {
		return nil
	}
	if l.busy {
		return ErrReentrancy
	}
	l.busy = true
	return nil
}

// Exit releases the latch unconditionally. Callers defer it only after a
// successful Enter: after a failed Enter it would release the latch still
// held by the outer call.
func (l *Latch) Exit() {
	if l == nil {
		return
	}
	l.busy = false
}
