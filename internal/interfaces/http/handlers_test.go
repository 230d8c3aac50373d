package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/viaticos/internal/application/dispatcher"
	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/application/service"
	"github.com/garyjia/viaticos/internal/domain/perdiem"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/garyjia/viaticos/internal/infrastructure/directory"
	"github.com/garyjia/viaticos/internal/infrastructure/persistence/repository"
	"github.com/garyjia/viaticos/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/viaticos/internal/infrastructure/report"
	"github.com/garyjia/viaticos/pkg/database"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "viaticos.db")
	zl := zap.NewNop()
	require.NoError(t, database.NewMigrator(path, zl).Up())
	conn, err := database.New(database.Config{Path: path, MaxOpenConns: 1}, zl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	db := sqlite.NewDB(conn.DB, zl)

	mxn := func(s string) valueobject.Money { return valueobject.MustMoney(s, "MXN") }
	rules, err := perdiem.NewProvider(&perdiem.RuleSet{
		Currency: "MXN",
		Meals:    map[perdiem.MealType]valueobject.Money{perdiem.MealBreakfast: mxn("50"), perdiem.MealLunch: mxn("120")},
		Lodging:  map[string]valueobject.Money{"normal": mxn("800")},
		Tolls:    []perdiem.TollStation{{ID: "T01", Name: "Saltillo", Rate: mxn("152")}},
	})
	require.NoError(t, err)

	dir := directory.NewStatic(
		[]port.Employee{{ID: "emp-001", DisplayName: "Ana"}, {ID: "emp-900", DisplayName: "Luis"}},
		[]port.City{{ID: "MTY", Name: "Monterrey"}, {ID: "CDMX", Name: "Ciudad de México"}},
	)
	requests := repository.NewRequestRepository(db, zl)
	liquidations := repository.NewLiquidationRepository(db, zl)
	events := dispatcher.NewDispatcher()
	logger := nopLogger{}

	server := NewServer(ServerConfig{AllowOrigins: []string{"https://portal.example.com"}}, Services{
		Requests:     service.NewRequestService(requests, db, rules, dir, dir, events, logger),
		Approvals:    service.NewApprovalService(requests, liquidations, db, events, logger),
		Liquidations: service.NewLiquidationService(requests, liquidations, db, report.NewExcelWriter("Acme", zl), events, logger),
		Rules:        rules,
	}, logger)
	return server.Router()
}

func call(t *testing.T, router http.Handler, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decode(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func amountOf(v interface{}) string {
	return v.(map[string]interface{})["amount"].(string)
}

func createBody() map[string]interface{} {
	return map[string]interface{}{
		"requester_id":        "emp-001",
		"approver_id":         "emp-900",
		"origin_city_id":      "MTY",
		"destination_city_id": "CDMX",
		"departure_at":        "2026-04-06T07:00:00Z",
		"return_at":           "2026-04-07T20:00:00Z",
		"purpose_note":        "Auditoría",
		"options": map[string]interface{}{
			"meals":     map[string]interface{}{"breakfast": map[string]interface{}{"applies": true, "dias": 2}},
			"hospedaje": map[string]interface{}{"aplica": true, "categoria": "Normal", "noches": 1},
		},
	}
}

func TestHandlers_FullLifecycle(t *testing.T) {
	router := newTestServer(t)

	w, env := call(t, router, http.MethodPost, "/api/v1/requests", createBody(), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, env.Data)
	id := created["id"].(string)
	assert.Equal(t, "DRAFT", created["state"])
	assert.Equal(t, float64(1), created["version"])
	assert.Equal(t, "900.00", amountOf(created["estimated_total"]))
	assert.Contains(t, created["allowed_actions"], "SUBMIT")
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))
	items := created["line_items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "MEAL_BREAKFAST", items[0].(map[string]interface{})["type"])
	assert.Equal(t, "100.00", amountOf(items[0].(map[string]interface{})["computed_amount"]))

	w, env = call(t, router, http.MethodPost, "/api/v1/requests/"+id+"/submit", map[string]interface{}{"expected_version": 1}, map[string]string{"X-User-ID": "emp-001"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "SUBMITTED", decode(t, env.Data)["state"])

	w, env = call(t, router, http.MethodPost, "/api/v1/requests/"+id+"/decision", map[string]interface{}{
		"decision":          "approve",
		"authorized_amount": "900",
		"decided_by":        "emp-900",
		"expected_version":  2,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decided := decode(t, env.Data)
	assert.Equal(t, "APPROVED", decided["request"].(map[string]interface{})["state"])
	liq := decided["liquidation"].(map[string]interface{})
	liqID := liq["id"].(string)
	assert.Equal(t, "900.00", amountOf(liq["assigned_total"]))

	w, env = call(t, router, http.MethodPost, "/api/v1/requests/"+id+"/liquidation", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, liqID, decode(t, env.Data)["id"])

	for i, receipt := range []map[string]interface{}{
		{"type": "MEAL_BREAKFAST", "date": "2026-04-06T00:00:00Z", "amount": "300", "vendor": "Cafetería"},
		{"type": "LODGING", "date": "2026-04-06T00:00:00Z", "amount": "700", "invoice_number": "F-1"},
	} {
		receipt["expected_version"] = i + 1
		w, _ = call(t, router, http.MethodPost, "/api/v1/liquidations/"+liqID+"/comprobantes", receipt, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w, env = call(t, router, http.MethodPost, "/api/v1/liquidations/"+liqID+"/close", map[string]interface{}{"expected_version": 3}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := decode(t, env.Data)
	closedLiq := closed["liquidation"].(map[string]interface{})
	assert.Equal(t, "CLOSED", closedLiq["state"])
	assert.Equal(t, "1000.00", amountOf(closedLiq["spent_total"]))
	assert.Equal(t, "-100.00", amountOf(closedLiq["difference"]))
	assert.Equal(t, true, closedLiq["overspent"])
	assert.Equal(t, "CLOSED", closed["request"].(map[string]interface{})["state"])

	w, _ = call(t, router, http.MethodGet, "/api/v1/liquidations/"+liqID+"/report.xlsx", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), liqID)
	assert.NotZero(t, w.Body.Len())

	w, env = call(t, router, http.MethodGet, "/api/v1/requests/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snapshot := decode(t, env.Data)
	assert.Empty(t, snapshot["allowed_actions"])
	assert.Len(t, snapshot["history"], 4)
}

func TestHandlers_DraftEditing(t *testing.T) {
	router := newTestServer(t)

	_, env := call(t, router, http.MethodPost, "/api/v1/requests", createBody(), nil)
	created := decode(t, env.Data)
	id := created["id"].(string)
	items := created["line_items"].([]interface{})
	breakfastID := items[0].(map[string]interface{})["id"].(string)
	lodgingID := items[1].(map[string]interface{})["id"].(string)

	w, env := call(t, router, http.MethodPatch, "/api/v1/requests/"+id+"/items/"+lodgingID,
		map[string]interface{}{"unit_amount": "750", "expected_version": 1}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "850.00", amountOf(decode(t, env.Data)["estimated_total"]))

	w, env = call(t, router, http.MethodPatch, "/api/v1/requests/"+id+"/items/"+lodgingID,
		map[string]interface{}{"quantity": "2", "expected_version": 1}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeVersionConflict, env.Error.Code)

	w, env = call(t, router, http.MethodDelete, "/api/v1/requests/"+id+"/items/"+breakfastID, nil, map[string]string{"If-Match": `"2"`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "750.00", amountOf(decode(t, env.Data)["estimated_total"]))
	assert.Equal(t, `"3"`, w.Header().Get("ETag"))

	w, env = call(t, router, http.MethodPatch, "/api/v1/requests/"+id,
		map[string]interface{}{"purpose_note": "Capacitación", "expected_version": 3}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Capacitación", decode(t, env.Data)["purpose_note"])

	w, env = call(t, router, http.MethodGet, "/api/v1/requests?requester_id=emp-001&state=DRAFT", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, env.Data)
	assert.Equal(t, float64(1), page["total"])
	assert.Equal(t, float64(20), page["limit"])
}

func TestHandlers_ErrorMapping(t *testing.T) {
	router := newTestServer(t)
	_, env := call(t, router, http.MethodPost, "/api/v1/requests", createBody(), nil)
	id := decode(t, env.Data)["id"].(string)

	missing := createBody()
	delete(missing, "requester_id")
	badReturn := createBody()
	badReturn["return_at"] = "2026-04-01T00:00:00Z"
	unknownTier := createBody()
	unknownTier["options"] = map[string]interface{}{"hospedaje": map[string]interface{}{"aplica": true, "categoria": "Lujo", "noches": 1}}
	unknownToll := createBody()
	unknownToll["options"] = map[string]interface{}{"casetas": []map[string]interface{}{{"caseta_id": "T99", "ida": true}}}

	tests := []struct {
		name    string
		method  string
		path    string
		body    interface{}
		headers map[string]string
		status  int
		code    string
		field   string
	}{
		{"missing requester", http.MethodPost, "/api/v1/requests", missing, nil, http.StatusBadRequest, CodeValidation, "requester_id"},
		{"return before departure", http.MethodPost, "/api/v1/requests", badReturn, nil, http.StatusBadRequest, CodeValidation, "return_at"},
		{"unknown lodging tier", http.MethodPost, "/api/v1/requests", unknownTier, nil, http.StatusInternalServerError, CodeInternal, ""},
		{"unknown toll station", http.MethodPost, "/api/v1/requests", unknownToll, nil, http.StatusBadRequest, CodeValidation, "tolls[0].station_id"},
		{"bad id", http.MethodGet, "/api/v1/requests/not-a-uuid", nil, nil, http.StatusBadRequest, CodeValidation, "id"},
		{"unknown request", http.MethodGet, "/api/v1/requests/8f7d3b5e-0c1a-4d4e-9a53-5e6f7a8b9c0d", nil, nil, http.StatusNotFound, CodeNotFound, ""},
		{"decision on draft", http.MethodPost, "/api/v1/requests/" + id + "/decision",
			map[string]interface{}{"decision": "approve", "authorized_amount": "900", "decided_by": "emp-900", "expected_version": 1},
			nil, http.StatusConflict, CodeInvalidState, ""},
		{"bad decision", http.MethodPost, "/api/v1/requests/" + id + "/decision",
			map[string]interface{}{"decision": "maybe", "decided_by": "emp-900", "expected_version": 1},
			nil, http.StatusBadRequest, CodeValidation, "decision"},
		{"reject without reason", http.MethodPost, "/api/v1/requests/" + id + "/decision",
			map[string]interface{}{"decision": "reject", "decided_by": "emp-900", "expected_version": 1},
			nil, http.StatusBadRequest, CodeValidation, "reason"},
		{"submit without version", http.MethodPost, "/api/v1/requests/" + id + "/submit",
			map[string]interface{}{}, nil, http.StatusBadRequest, CodeValidation, "expected_version"},
		{"delete without If-Match", http.MethodDelete, "/api/v1/requests/" + id + "/items/8f7d3b5e-0c1a-4d4e-9a53-5e6f7a8b9c0d",
			nil, nil, http.StatusBadRequest, CodeValidation, "If-Match"},
		{"open liquidation on draft", http.MethodPost, "/api/v1/requests/" + id + "/liquidation",
			nil, nil, http.StatusConflict, CodeInvalidState, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := call(t, router, tt.method, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, tt.field, env.Error.Field)
		})
	}
}

func TestHandlers_ApproveOutOfRangeAmount(t *testing.T) {
	router := newTestServer(t)
	_, env := call(t, router, http.MethodPost, "/api/v1/requests", createBody(), nil)
	id := decode(t, env.Data)["id"].(string)

	w, _ := call(t, router, http.MethodPost, "/api/v1/requests/"+id+"/submit", map[string]interface{}{"expected_version": 1}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = call(t, router, http.MethodPost, "/api/v1/requests/"+id+"/decision", map[string]interface{}{
		"decision":          "approve",
		"authorized_amount": "100000000000000000000",
		"decided_by":        "emp-900",
		"expected_version":  2,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeValidation, env.Error.Code)
	assert.Equal(t, "authorized_amount", env.Error.Field)

	w, env = call(t, router, http.MethodGet, "/api/v1/requests/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snapshot := decode(t, env.Data)
	assert.Equal(t, "SUBMITTED", snapshot["state"])
	assert.Equal(t, float64(2), snapshot["version"])
	assert.Nil(t, snapshot["authorized_total"])
}

func TestHandlers_HealthRulesAndCORS(t *testing.T) {
	router := newTestServer(t)

	w, env := call(t, router, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, env.Data)["status"])

	w, env = call(t, router, http.MethodGet, "/api/v1/perdiem/rules", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rules := decode(t, env.Data)
	assert.Equal(t, "MXN", rules["currency"])
	assert.Equal(t, "800.00", amountOf(rules["lodging"].(map[string]interface{})["normal"]))

	w, _ = call(t, router, http.MethodOptions, "/api/v1/requests", nil, map[string]string{"Origin": "https://portal.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "If-Match")

	w, _ = call(t, router, http.MethodGet, "/health", nil, map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIfMatchVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		header  string
		want    int
		wantErr bool
	}{
		{`"4"`, 4, false},
		{`W/"7"`, 7, false},
		{"2", 2, false},
		{"", 0, true},
		{`"0"`, 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodDelete, "/", nil)
		if tt.header != "" {
			c.Request.Header.Set("If-Match", tt.header)
		}
		got, err := ifMatchVersion(c)
		if tt.wantErr {
			assert.Error(t, err, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.want, got)
	}
}
