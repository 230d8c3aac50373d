package port

import (
	"context"
	"io"

	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/event"
	"github.com/garyjia/viaticos/internal/domain/perdiem"
)

// Employee is a directory entry for requesters and approvers
type Employee struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// City is a directory entry for trip origin and destination
type City struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EmployeeDirectory looks up employees; unknown ids return shared.ErrNotFound
type EmployeeDirectory interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
}

// CityDirectory looks up cities; unknown ids return shared.ErrNotFound
type CityDirectory interface {
	GetCity(ctx context.Context, id string) (*City, error)
}

// RuleSetProvider hands out the process-wide per-diem table
type RuleSetProvider interface {
	Rules() *perdiem.RuleSet
}

// EventPublisher forwards committed events to an external broker
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
	Close() error
}

// ReportWriter renders a liquidation reconciliation sheet
type ReportWriter interface {
	WriteLiquidation(w io.Writer, req *entity.Request, liq *entity.Liquidation) error
}
