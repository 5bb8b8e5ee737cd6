package smartaccount

// Stage is the lifecycle position of one processed operation.
type Stage uint8

const (
	StageCreated Stage = iota
	StageValidating
	StageValid
	StageInvalid
	StageFeeSettled
	StageExecuting
	StageCompleted
	StageReverted
)

var stageNames = map[Stage]string{
	StageCreated:    "created",
	StageValidating: "validating",
	StageValid:      "valid",
	StageInvalid:    "invalid",
	StageFeeSettled: "fee_settled",
	StageExecuting:  "executing",
	StageCompleted:  "completed",
	StageReverted:   "reverted",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageInvalid || s == StageCompleted || s == StageReverted
}

// CanTransition reports whether s -> next is a legal lifecycle step.
//
// StageValid may go straight to StageExecuting: the native controller can
// settle fees in a separate call, and the external controller settles through
// the pull model during validation.
func (s Stage) CanTransition(next Stage) bool {
	switch s {
	case StageCreated:
		return next == StageValidating
	case StageValidating:
		return next == StageValid || next == StageInvalid
	case StageValid:
		return next == StageFeeSettled || next == StageExecuting
	case StageFeeSettled:
		return next == StageExecuting
	case StageExecuting:
		return next == StageCompleted || next == StageReverted
	default:
		return false
	}
}
