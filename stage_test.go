package smartaccount

import "testing"

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageCreated, "created"},
		{StageValidating, "validating"},
		{StageValid, "valid"},
		{StageInvalid, "invalid"},
		{StageFeeSettled, "fee_settled"},
		{StageExecuting, "executing"},
		{StageCompleted, "completed"},
		{StageReverted, "reverted"},
		{Stage(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestStage_Terminal(t *testing.T) {
	terminal := map[Stage]bool{
		StageInvalid:   true,
		StageCompleted: true,
		StageReverted:  true,
	}
	for s := StageCreated; s <= StageReverted; s++ {
		if got := s.Terminal(); got != terminal[s] {
			t.Errorf("%s: expected terminal=%v, got %v", s, terminal[s], got)
		}
	}
}

func TestStage_CanTransition(t *testing.T) {
	legal := map[Stage][]Stage{
		StageCreated:    {StageValidating},
		StageValidating: {StageValid, StageInvalid},
		StageValid:      {StageFeeSettled, StageExecuting},
		StageFeeSettled: {StageExecuting},
		StageExecuting:  {StageCompleted, StageReverted},
	}

	for from := StageCreated; from <= StageReverted; from++ {
		allowed := make(map[Stage]bool)
		for _, to := range legal[from] {
			allowed[to] = true
		}
		for to := StageCreated; to <= StageReverted; to++ {
			if got := from.CanTransition(to); got != allowed[to] {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, allowed[to], got)
			}
		}
	}
}

func TestStage_TerminalHasNoExit(t *testing.T) {
	for s := StageCreated; s <= StageReverted; s++ {
		if !s.Terminal() {
			continue
		}
		for next := StageCreated; next <= StageReverted; next++ {
			if s.CanTransition(next) {
				t.Errorf("expected terminal %s to have no exit, found %s", s, next)
			}
		}
	}
}
