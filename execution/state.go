package execution

import "fmt"

// State is a step of the per-request lifecycle.
type State int

const (
	StateReceived State = iota
	StateValidating
	StateRejected
	StateExecuting
	StateCompleted
	StateFailed
	StateTimedOut
	StateResponseSent
)

var stateNames = map[State]string{
	StateReceived:     "received",
	StateValidating:   "validating",
	StateRejected:     "rejected",
	StateExecuting:    "executing",
	StateCompleted:    "completed",
	StateFailed:       "failed",
	StateTimedOut:     "timed_out",
	StateResponseSent: "response_sent",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[State][]State{
	StateReceived:   {StateValidating},
	StateValidating: {StateRejected, StateExecuting},
	StateRejected:   {StateResponseSent},
	StateExecuting:  {StateCompleted, StateFailed, StateTimedOut},
	StateCompleted:  {StateResponseSent},
	StateFailed:     {StateResponseSent},
	StateTimedOut:   {StateResponseSent},
}

// CanTransition reports whether to may follow s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateResponseSent
}
