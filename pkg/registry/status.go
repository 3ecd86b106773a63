package registry

// JobStatus is one of the states a Job can occupy across its lifetime
// (spec.md §3's JobStatus entity).
type JobStatus string

const (
	StatusSubmitted JobStatus = "SUBMITTED"
	StatusRunning   JobStatus = "RUNNING"
	StatusSucceeded JobStatus = "SUCCEEDED"
	StatusFailed    JobStatus = "FAILED"
	StatusStopped   JobStatus = "STOPPED"
	StatusUnknown   JobStatus = "UNKNOWN"
)

// terminal reports whether a status is a sink: once reached, no further
// transition is recorded except back through UNKNOWN.
func (s JobStatus) terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// validTransitions encodes the monotonic transition graph from spec.md §3:
// SUBMITTED -> RUNNING -> {SUCCEEDED,FAILED,STOPPED}, with UNKNOWN acting
// as a wildcard that can be entered from, or recovered from, any state.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	StatusSubmitted: {StatusRunning: true, StatusSucceeded: true, StatusFailed: true, StatusStopped: true, StatusUnknown: true},
	StatusRunning:   {StatusSucceeded: true, StatusFailed: true, StatusStopped: true, StatusUnknown: true},
	StatusUnknown:   {StatusSubmitted: true, StatusRunning: true, StatusSucceeded: true, StatusFailed: true, StatusStopped: true},
}

// CanTransition reports whether moving a job from 'from' to 'to' is a
// legal step in the status state machine. A terminal status only accepts
// UNKNOWN (a backend that can no longer be reached) or a repeat of
// itself; every other attempted transition out of a terminal state is
// rejected.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}
	if from.terminal() {
		return to == StatusUnknown
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
