package directory

import (
	"context"
	"fmt"

	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/shared"
)

// Static is an in-memory directory seeded from configuration
type Static struct {
	employees map[string]port.Employee
	cities    map[string]port.City
}

// NewStatic builds a directory from fixed employee and city lists
func NewStatic(employees []port.Employee, cities []port.City) *Static {
	s := &Static{
		employees: make(map[string]port.Employee, len(employees)),
		cities:    make(map[string]port.City, len(cities)),
	}
	for _, e := range employees {
		s.employees[e.ID] = e
	}
	for _, c := range cities {
		s.cities[c.ID] = c
	}
	return s
}

// GetEmployee implements port.EmployeeDirectory
func (s *Static) GetEmployee(_ context.Context, id string) (*port.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, shared.ErrNotFound)
	}
	return &e, nil
}

// GetCity implements port.CityDirectory
func (s *Static) GetCity(_ context.Context, id string) (*port.City, error) {
	c, ok := s.cities[id]
	if !ok {
		return nil, fmt.Errorf("city %s: %w", id, shared.ErrNotFound)
	}
	return &c, nil
}

var (
	_ port.EmployeeDirectory = (*Static)(nil)
	_ port.CityDirectory     = (*Static)(nil)
)
