package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestOperationState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    OperationState
		terminal bool
	}{
		{OperationStateRunning, false},
		{OperationStateError, false}, // может быть продолжена или отменена
		{OperationStateFinished, true},
		{OperationStateAborted, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("%s: IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestOperation_ErrorKeepsLock(t *testing.T) {
	op := &Operation{
		ID:           uuid.New(),
		Type:         ProcessTypeDeploy,
		MTAID:        "com.example.shop",
		State:        OperationStateRunning,
		AcquiredLock: true,
	}

	op.MarkError("step createServices failed")
	if op.State != OperationStateError {
		t.Fatalf("unexpected state: %s", op.State)
	}
	if !op.AcquiredLock {
		t.Error("lock must be kept: the operation can be resumed")
	}
	if op.EndedAt != nil {
		t.Error("an operation in ERROR is not ended")
	}
	if op.IsFinished() {
		t.Error("ERROR is not a finished state")
	}

	op.MarkResumed()
	if op.State != OperationStateRunning || op.Error != "" {
		t.Errorf("resume must clear the error: %s %q", op.State, op.Error)
	}
}

func TestOperation_FinishReleasesLock(t *testing.T) {
	op := &Operation{State: OperationStateRunning, AcquiredLock: true}

	op.MarkFinished()
	if op.State != OperationStateFinished || op.AcquiredLock {
		t.Errorf("unexpected state after finish: %s lock=%v", op.State, op.AcquiredLock)
	}
	if op.EndedAt == nil {
		t.Error("finished operation must carry an end time")
	}
}

func TestOperation_AbortReleasesLock(t *testing.T) {
	op := &Operation{State: OperationStateError, AcquiredLock: true}

	op.MarkAborted()
	if op.State != OperationStateAborted || op.AcquiredLock {
		t.Errorf("unexpected state after abort: %s lock=%v", op.State, op.AcquiredLock)
	}
	if op.EndedAt == nil {
		t.Error("aborted operation must carry an end time")
	}
}

func TestApplicationColor_Opposite(t *testing.T) {
	if ColorBlue.Opposite() != ColorGreen || ColorGreen.Opposite() != ColorBlue {
		t.Error("blue and green must be opposites")
	}
}

func TestServiceOperation_Normalize(t *testing.T) {
	failed := ServiceOperation{Type: ServiceOperationCreate, State: ServiceOperationFailed}
	if got := failed.Normalize(); got.Description != DefaultFailureDescription {
		t.Errorf("FAILED without description must get the default, got %q", got.Description)
	}

	described := ServiceOperation{State: ServiceOperationFailed, Description: "quota exceeded"}
	if got := described.Normalize(); got.Description != "quota exceeded" {
		t.Errorf("platform description must be kept, got %q", got.Description)
	}

	running := ServiceOperation{State: ServiceOperationInProgress}
	if got := running.Normalize(); got.Description != "" {
		t.Errorf("non-failed operations are untouched, got %q", got.Description)
	}
}

func TestServiceOperationState_IsTerminal(t *testing.T) {
	if ServiceOperationInitial.IsTerminal() || ServiceOperationInProgress.IsTerminal() {
		t.Error("INITIAL and IN_PROGRESS are not terminal")
	}
	if !ServiceOperationSucceeded.IsTerminal() || !ServiceOperationFailed.IsTerminal() {
		t.Error("SUCCEEDED and FAILED are terminal")
	}
}

func TestHook_ForPhase(t *testing.T) {
	hook := Hook{
		Name:   "migrate-db",
		Phases: []HookPhase{HookBeforeStart, HookBeforeStop},
	}
	if !hook.ForPhase(HookBeforeStart) || !hook.ForPhase(HookBeforeStop) {
		t.Error("declared phases must match")
	}
	if hook.ForPhase(HookAfterStart) {
		t.Error("undeclared phase must not match")
	}
}
