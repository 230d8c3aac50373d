package workflow

// State represents a lifecycle state of a travel request or its liquidation
type State string

const (
	// Request states
	StateDraft     State = "DRAFT"
	StateSubmitted State = "SUBMITTED"
	StateApproved  State = "APPROVED"
	StateRejected  State = "REJECTED"
	StateClosed    State = "CLOSED"

	// Liquidation states; a closed liquidation shares StateClosed
	StateOpen State = "OPEN"
)

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	switch s {
	case StateRejected, StateClosed:
		return true
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state.
// Lifecycles are configured from package init, so this must not read package vars.
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateSubmitted, StateApproved, StateRejected, StateClosed, StateOpen:
		return true
	}
	return false
}
