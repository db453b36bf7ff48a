package enums

import "fmt"

// ProcessState tracks where an order sits in the dispatch lifecycle.
type ProcessState string

const (
	ProcessStateNew       ProcessState = "NEW"
	ProcessStateClaimed   ProcessState = "CLAIMED"
	ProcessStateCompleted ProcessState = "COMPLETED"
	ProcessStateCancelled ProcessState = "CANCELLED"
)

var validProcessStates = []ProcessState{
	ProcessStateNew,
	ProcessStateClaimed,
	ProcessStateCompleted,
	ProcessStateCancelled,
}

// String implements fmt.Stringer.
func (p ProcessState) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProcessState.
func (p ProcessState) IsValid() bool {
	for _, candidate := range validProcessStates {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProcessState converts raw input into a ProcessState.
func ParseProcessState(value string) (ProcessState, error) {
	for _, candidate := range validProcessStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid process state %q", value)
}
