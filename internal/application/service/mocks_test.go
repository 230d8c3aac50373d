package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/garyjia/viaticos/internal/application/dispatcher"
	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/event"
	"github.com/garyjia/viaticos/internal/domain/perdiem"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/google/uuid"
)

// mockLogger discards everything but counts errors
type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

// memStore backs both repositories so the tx fake can roll them back together
type memStore struct {
	mu           sync.Mutex
	requests     map[uuid.UUID]*entity.Request
	liquidations map[uuid.UUID]*entity.Liquidation
	history      []*entity.Transition
}

func newMemStore() *memStore {
	return &memStore{
		requests:     map[uuid.UUID]*entity.Request{},
		liquidations: map[uuid.UUID]*entity.Liquidation{},
	}
}

func copyRequest(r *entity.Request) *entity.Request {
	out := *r
	out.LineItems = append([]entity.LineItem(nil), r.LineItems...)
	return &out
}

func copyLiquidation(l *entity.Liquidation) *entity.Liquidation {
	out := *l
	out.Comprobantes = append([]entity.Comprobante{}, l.Comprobantes...)
	return &out
}

type snapshot struct {
	requests     map[uuid.UUID]*entity.Request
	liquidations map[uuid.UUID]*entity.Liquidation
	history      []*entity.Transition
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		requests:     map[uuid.UUID]*entity.Request{},
		liquidations: map[uuid.UUID]*entity.Liquidation{},
		history:      append([]*entity.Transition(nil), s.history...),
	}
	for k, v := range s.requests {
		snap.requests[k] = copyRequest(v)
	}
	for k, v := range s.liquidations {
		snap.liquidations[k] = copyLiquidation(v)
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = snap.requests
	s.liquidations = snap.liquidations
	s.history = snap.history
}

// mockTxManager rolls the store back when fn fails
type mockTxManager struct {
	store *memStore
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	snap := m.store.snapshot()
	if err := fn(ctx); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

type mockRequestRepo struct {
	store      *memStore
	updateFunc func(ctx context.Context, req *entity.Request, expectedVersion int) error
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.Request) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.requests[req.ID] = copyRequest(req)
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Request, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	req, ok := m.store.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, shared.ErrNotFound)
	}
	return copyRequest(req), nil
}

func (m *mockRequestRepo) Update(ctx context.Context, req *entity.Request, expectedVersion int) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, req, expectedVersion)
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	stored, ok := m.store.requests[req.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", req.ID, shared.ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return shared.NewConcurrentModificationError(entity.AggregateRequest, req.ID.String(), expectedVersion, stored.Version)
	}
	m.store.requests[req.ID] = copyRequest(req)
	return nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.Request, int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*entity.Request
	for _, r := range m.store.requests {
		if filter.State != "" && r.State != filter.State {
			continue
		}
		if filter.RequesterID != "" && r.RequesterID != filter.RequesterID {
			continue
		}
		out = append(out, copyRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *mockRequestRepo) AppendHistory(ctx context.Context, t *entity.Transition) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	t.ID = int64(len(m.store.history) + 1)
	m.store.history = append(m.store.history, t)
	return nil
}

func (m *mockRequestRepo) GetHistory(ctx context.Context, requestID uuid.UUID) ([]*entity.Transition, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*entity.Transition
	for _, t := range m.store.history {
		if t.RequestID == requestID {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockLiquidationRepo struct {
	store      *memStore
	createFunc func(ctx context.Context, liq *entity.Liquidation) error
}

func (m *mockLiquidationRepo) Create(ctx context.Context, liq *entity.Liquidation) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, liq)
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, existing := range m.store.liquidations {
		if existing.RequestID == liq.RequestID {
			return fmt.Errorf("liquidation for request %s: %w", liq.RequestID, shared.ErrAlreadyExists)
		}
	}
	m.store.liquidations[liq.ID] = copyLiquidation(liq)
	return nil
}

func (m *mockLiquidationRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Liquidation, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	liq, ok := m.store.liquidations[id]
	if !ok {
		return nil, fmt.Errorf("liquidation %s: %w", id, shared.ErrNotFound)
	}
	return copyLiquidation(liq), nil
}

func (m *mockLiquidationRepo) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Liquidation, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, liq := range m.store.liquidations {
		if liq.RequestID == requestID {
			return copyLiquidation(liq), nil
		}
	}
	return nil, fmt.Errorf("liquidation for request %s: %w", requestID, shared.ErrNotFound)
}

func (m *mockLiquidationRepo) Update(ctx context.Context, liq *entity.Liquidation, expectedVersion int) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	stored, ok := m.store.liquidations[liq.ID]
	if !ok {
		return fmt.Errorf("liquidation %s: %w", liq.ID, shared.ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return shared.NewConcurrentModificationError(entity.AggregateLiquidation, liq.ID.String(), expectedVersion, stored.Version)
	}
	m.store.liquidations[liq.ID] = copyLiquidation(liq)
	return nil
}

type mockDirectory struct {
	employees map[string]bool
	cities    map[string]bool
	err       error
}

func (m *mockDirectory) GetEmployee(ctx context.Context, id string) (*port.Employee, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !m.employees[id] {
		return nil, shared.ErrNotFound
	}
	return &port.Employee{ID: id, DisplayName: "Empleado " + id}, nil
}

func (m *mockDirectory) GetCity(ctx context.Context, id string) (*port.City, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !m.cities[id] {
		return nil, shared.ErrNotFound
	}
	return &port.City{ID: id, Name: id}, nil
}

type staticRules struct{ rules *perdiem.RuleSet }

func (s staticRules) Rules() *perdiem.RuleSet { return s.rules }

type mockReportWriter struct {
	writeFunc func(w io.Writer, req *entity.Request, liq *entity.Liquidation) error
}

func (m *mockReportWriter) WriteLiquidation(w io.Writer, req *entity.Request, liq *entity.Liquidation) error {
	if m.writeFunc != nil {
		return m.writeFunc(w, req, liq)
	}
	_, err := fmt.Fprintf(w, "%s %s", liq.ID, liq.Difference)
	return err
}

// recorder captures dispatched events
type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Type
	}
	return out
}

// fixture wires every service over one in-memory store
type fixture struct {
	store        *memStore
	tx           *mockTxManager
	requests     *mockRequestRepo
	liquidations *mockLiquidationRepo
	directory    *mockDirectory
	report       *mockReportWriter
	recorder     *recorder
	logger       *mockLogger

	requestSvc     RequestService
	approvalSvc    ApprovalService
	liquidationSvc LiquidationService
}

func testRuleSet() *perdiem.RuleSet {
	mxn := func(s string) valueobject.Money { return valueobject.MustMoney(s, "MXN") }
	return &perdiem.RuleSet{
		Currency: "MXN",
		Meals: map[perdiem.MealType]valueobject.Money{
			perdiem.MealBreakfast: mxn("50"),
			perdiem.MealLunch:     mxn("120"),
			perdiem.MealDinner:    mxn("100"),
		},
		Lodging: map[string]valueobject.Money{"normal": mxn("800")},
		Tolls: []perdiem.TollStation{
			{ID: "T01", Name: "Saltillo", Rate: mxn("152")},
		},
	}
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:        store,
		tx:           &mockTxManager{store: store},
		requests:     &mockRequestRepo{store: store},
		liquidations: &mockLiquidationRepo{store: store},
		directory: &mockDirectory{
			employees: map[string]bool{"emp-001": true, "emp-900": true},
			cities:    map[string]bool{"MTY": true, "CDMX": true, "GDL": true},
		},
		report:   &mockReportWriter{},
		recorder: &recorder{},
		logger:   &mockLogger{},
	}

	d := dispatcher.NewDispatcher()
	d.SubscribeAll("recorder", f.recorder.handle)

	rules := staticRules{rules: testRuleSet()}
	f.requestSvc = NewRequestService(f.requests, f.tx, rules, f.directory, f.directory, d, f.logger)
	f.approvalSvc = NewApprovalService(f.requests, f.liquidations, f.tx, d, f.logger)
	f.liquidationSvc = NewLiquidationService(f.requests, f.liquidations, f.tx, f.report, d, f.logger)
	return f
}
