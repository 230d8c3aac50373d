package workflow

// Lifecycle tables are built once; every Build call copies the configuration,
// so aggregates get independent machines.
var (
	requestLifecycle     StateMachineBuilder
	liquidationLifecycle StateMachineBuilder
)

func init() {
	requestLifecycle = newRequestLifecycle()
	liquidationLifecycle = newLiquidationLifecycle()
}

// newRequestLifecycle declares the travel request transitions.
// EDIT is a self-transition that only Draft permits.
func newRequestLifecycle() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerEdit, StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	b.Configure(StateSubmitted).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	b.Configure(StateApproved).
		Permit(TriggerClose, StateClosed)

	return b
}

// newLiquidationLifecycle declares the liquidation transitions.
func newLiquidationLifecycle() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StateOpen).
		Permit(TriggerRecordComprobante, StateOpen).
		Permit(TriggerClose, StateClosed)

	return b
}

// RequestMachine returns a request state machine positioned at current
func RequestMachine(current State) StateMachine {
	return requestLifecycle.Build(current)
}

// LiquidationMachine returns a liquidation state machine positioned at current
func LiquidationMachine(current State) StateMachine {
	return liquidationLifecycle.Build(current)
}
