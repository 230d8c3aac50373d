package entity

import (
	"time"

	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/google/uuid"
)

// ActionCreate marks the history row written when a request is created
const ActionCreate = "CREATE"

// Transition is one row of a request's audit trail
type Transition struct {
	ID            int64          `json:"id"`
	RequestID     uuid.UUID      `json:"request_id"`
	Actor         string         `json:"actor"`
	Action        string         `json:"action"`
	PreviousState workflow.State `json:"previous_state,omitempty"`
	NewState      workflow.State `json:"new_state"`
	Version       int            `json:"version"`
	Note          string         `json:"note,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// NewTransition records the request's current state after an action
func NewTransition(req *Request, previous workflow.State, action, actor, note string) Transition {
	return Transition{
		RequestID:     req.ID,
		Actor:         actor,
		Action:        action,
		PreviousState: previous,
		NewState:      req.State,
		Version:       req.Version,
		Note:          note,
		OccurredAt:    time.Now().UTC(),
	}
}
