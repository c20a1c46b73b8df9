package orders

import "fmt"

// Status is the order lifecycle state. The machine is one-shot:
// pending -> processing -> completed|failed. Leaving a terminal state back
// to pending happens only through the explicit regenerate operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusProcessing: true,
	StatusCompleted: true, StatusFailed: true,
}

var transitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true},
	// Terminal states re-enter the machine only via regenerate.
	StatusCompleted: {StatusPending: true},
	StatusFailed:    {StatusPending: true},
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool { return validStatuses[s] }

// Terminal reports whether no further automatic transition occurs from s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool { return transitions[from][to] }

// TransitionError reports an attempted illegal state change.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal order transition %s -> %s", e.From, e.To)
}

// CheckTransition returns a TransitionError when from -> to is illegal.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
