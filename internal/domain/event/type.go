package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated      Type = "request.created"
	TypeRequestUpdated      Type = "request.updated"
	TypeRequestSubmitted    Type = "request.submitted"
	TypeRequestApproved     Type = "request.approved"
	TypeRequestRejected     Type = "request.rejected"
	TypeRequestClosed       Type = "request.closed"
	TypeLiquidationOpened   Type = "liquidation.opened"
	TypeLiquidationClosed   Type = "liquidation.closed"
	TypeComprobanteRecorded Type = "comprobante.recorded"
)

// AllTypes lists every event type, for subscribers that want everything
func AllTypes() []Type {
	return []Type{
		TypeRequestCreated,
		TypeRequestUpdated,
		TypeRequestSubmitted,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestClosed,
		TypeLiquidationOpened,
		TypeLiquidationClosed,
		TypeComprobanteRecorded,
	}
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}
