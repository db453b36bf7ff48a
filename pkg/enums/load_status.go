package enums

import "fmt"

// LoadStatus tracks the lifecycle of a delivery load.
type LoadStatus string

const (
	LoadStatusProcessing  LoadStatus = "processing"
	LoadStatusCompleted   LoadStatus = "completed"
	LoadStatusError       LoadStatus = "error"
	LoadStatusCancelled   LoadStatus = "cancelled"
	LoadStatusTransferred LoadStatus = "transferred"
)

var validLoadStatuses = []LoadStatus{
	LoadStatusProcessing,
	LoadStatusCompleted,
	LoadStatusError,
	LoadStatusCancelled,
	LoadStatusTransferred,
}

// String implements fmt.Stringer.
func (l LoadStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoadStatus.
func (l LoadStatus) IsValid() bool {
	for _, candidate := range validLoadStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions
// from the main flow. Transferred is reached from completed by a separate
// follow-on action.
func (l LoadStatus) IsTerminal() bool {
	return l == LoadStatusCompleted || l == LoadStatusError
}

// ParseLoadStatus converts raw input into a LoadStatus.
func ParseLoadStatus(value string) (LoadStatus, error) {
	for _, candidate := range validLoadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid load status %q", value)
}
