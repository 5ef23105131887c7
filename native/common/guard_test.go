package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view: %v", err)
	}
	pauses := pauseMap{"vault": true}
	if err := Guard(pauses, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("paused module error = %v", err)
	}
	if err := Guard(pauses, "stability"); err != nil {
		t.Fatalf("running module: %v", err)
	}
}

func TestLatch(t *testing.T) {
	var latch Latch
	if err := latch.Enter(); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if err := latch.Enter(); !errors.Is(err, ErrReentrancy) {
		t.Fatalf("nested enter error = %v", err)
	}
	latch.Exit()
	if err := latch.Enter(); err != nil {
		t.Fatalf("enter after exit: %v", err)
	}
}
