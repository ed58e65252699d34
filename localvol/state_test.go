package localvol

import (
	"context"
	"errors"
	"testing"

	"github.com/wyfcoding/localvol/fsm"
)

func TestRunStateEnforcesLevelOrder(t *testing.T) {
	ctx := context.Background()
	rs := newRunState(3, quietLogger())

	if err := rs.startLevel(ctx, 1); !errors.Is(err, fsm.ErrHandlerFailed) {
		t.Fatalf("skipping level 0 should fail, got %v", err)
	}
	if got := rs.current(); got.Phase != PhaseInitialized {
		t.Errorf("state changed after rejected transition: %v", got)
	}
	for level := range 2 {
		if err := rs.startLevel(ctx, level); err != nil {
			t.Fatalf("startLevel(%d) failed: %v", level, err)
		}
	}
	if got := rs.current().String(); got != "level_calibrating(1)" {
		t.Errorf("current state %q", got)
	}
	if err := rs.extracted(ctx); err == nil {
		t.Error("extraction before the last level should fail")
	}
	if err := rs.startLevel(ctx, 2); err != nil {
		t.Fatalf("startLevel(2) failed: %v", err)
	}
	if err := rs.startLevel(ctx, 3); err == nil {
		t.Error("level beyond the grid should fail")
	}
	if err := rs.assembled(ctx); !errors.Is(err, fsm.ErrInvalidTransition) {
		t.Errorf("assembling before extraction should be invalid, got %v", err)
	}
	if err := rs.extracted(ctx); err != nil {
		t.Fatalf("extracted failed: %v", err)
	}
	if err := rs.assembled(ctx); err != nil {
		t.Fatalf("assembled failed: %v", err)
	}
	rs.fail(ctx, errors.New("late failure"))
	if got := rs.current(); got.Phase != PhaseAssembled || got.Reason != nil {
		t.Errorf("terminal state changed to %v", got)
	}
}

func TestRunStateFail(t *testing.T) {
	ctx := context.Background()
	rs := newRunState(2, quietLogger())
	_ = rs.startLevel(ctx, 0)
	cause := errors.New("oracle failed")
	rs.fail(ctx, cause)
	got := rs.current()
	if got.Phase != PhaseFailed || !errors.Is(got.Reason, cause) {
		t.Errorf("expected failed state carrying its reason, got %v", got)
	}
	if got.String() != "failed(oracle failed)" {
		t.Errorf("unexpected state string %q", got.String())
	}
	if err := rs.startLevel(ctx, 1); !errors.Is(err, fsm.ErrTerminalState) {
		t.Errorf("expected terminal state error, got %v", err)
	}
}
