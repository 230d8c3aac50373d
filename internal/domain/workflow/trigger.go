package workflow

// Trigger represents a caller action that can cause a state transition
type Trigger string

const (
	TriggerEdit    Trigger = "EDIT"
	TriggerSubmit  Trigger = "SUBMIT"
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerClose   Trigger = "CLOSE"

	// TriggerOpenLiquidation is checked, never fired: it names the attempt in errors
	TriggerOpenLiquidation Trigger = "OPEN_LIQUIDATION"

	TriggerRecordComprobante Trigger = "RECORD_COMPROBANTE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
