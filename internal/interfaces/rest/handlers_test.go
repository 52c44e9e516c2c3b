package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdorta1111/AirTable-sub000/internal/application/services"
	"github.com/dmdorta1111/AirTable-sub000/internal/infrastructure/memstore"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := memstore.New()
	mgr, err := services.NewServiceManager(mem, mem, services.Config{})
	require.NoError(t, err)

	tableHandler := NewTableHandler(mem, mgr.Fields)
	recordHandler := NewRecordHandler(mgr.Records)
	formulaHandler := NewFormulaHandler(mgr.Fields)

	router := gin.New()
	api := router.Group("/api")
	api.GET("/fieldtypes", tableHandler.ListFieldTypes)
	api.GET("/tables", tableHandler.ListTables)
	api.POST("/tables", tableHandler.CreateTable)
	api.GET("/tables/:tableId", tableHandler.GetTable)
	api.POST("/tables/:tableId/fields", tableHandler.CreateField)
	api.PUT("/tables/:tableId/fields/:fieldId", tableHandler.UpdateField)
	api.DELETE("/tables/:tableId/fields/:fieldId", tableHandler.DeleteField)
	api.GET("/tables/:tableId/records", recordHandler.ListRecords)
	api.POST("/tables/:tableId/records", recordHandler.CreateRecord)
	api.GET("/tables/:tableId/records/:recordId", recordHandler.GetRecord)
	api.PATCH("/tables/:tableId/records/:recordId", recordHandler.UpdateRecord)
	api.POST("/formula/validate", formulaHandler.ValidateFormula)
	api.GET("/formula/functions", formulaHandler.ListFunctions)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

// createOrdersTable posts the schema used by the handler tests and returns
// nothing; field ids are fixed in the request.
func createOrdersTable(t *testing.T, router *gin.Engine) {
	t.Helper()
	w, _ := doJSON(t, router, http.MethodPost, "/api/tables", map[string]any{
		"id":   "tbl_orders",
		"name": "Orders",
		"fields": []map[string]any{
			{"id": "ord_name", "name": "Name", "type": "text"},
			{"id": "ord_amount", "name": "Amount", "type": "number"},
			{"id": "ord_tax", "name": "Tax", "type": "formula",
				"formula": map[string]any{"expression": "{Amount} * 0.1"}},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateTableAndRecordFlow(t *testing.T) {
	router := newTestRouter(t)
	createOrdersTable(t, router)

	w, body := doJSON(t, router, http.MethodPost, "/api/tables/tbl_orders/records", map[string]any{
		"Name":   "Acme",
		"Amount": 100,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	record := body["record"].(map[string]any)
	assert.Equal(t, "Acme", record["Name"])
	assert.Equal(t, 10.0, record["Tax"])
	recordID := record["id"].(string)

	w, body = doJSON(t, router, http.MethodPatch, "/api/tables/tbl_orders/records/"+recordID, map[string]any{
		"Amount": 200,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	record = body["record"].(map[string]any)
	assert.Equal(t, 20.0, record["Tax"])

	w, body = doJSON(t, router, http.MethodGet, "/api/tables/tbl_orders/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["records"], 1)
}

func TestWriteComputedFieldRejected(t *testing.T) {
	router := newTestRouter(t)
	createOrdersTable(t, router)

	w, body := doJSON(t, router, http.MethodPost, "/api/tables/tbl_orders/records", map[string]any{
		"Tax": 5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestCreateFieldCycleRejectedOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	createOrdersTable(t, router)

	// A second formula over Tax is fine.
	w, _ := doJSON(t, router, http.MethodPost, "/api/tables/tbl_orders/fields", map[string]any{
		"id": "ord_total", "name": "Total", "type": "formula",
		"formula": map[string]any{"expression": "{Amount} + {Tax}"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Rewriting Tax to read Total closes a cycle.
	w, body := doJSON(t, router, http.MethodPut, "/api/tables/tbl_orders/fields/ord_tax", map[string]any{
		"name": "Tax", "type": "formula",
		"formula": map[string]any{"expression": "{Total} * 0.5"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "CIRCULAR_DEPENDENCY", body["code"])
}

func TestDeleteFieldConflictOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	createOrdersTable(t, router)

	w, body := doJSON(t, router, http.MethodDelete, "/api/tables/tbl_orders/fields/ord_amount", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", body["code"])

	w, _ = doJSON(t, router, http.MethodDelete, "/api/tables/tbl_orders/fields/ord_tax", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidateFormulaEndpoint(t *testing.T) {
	router := newTestRouter(t)
	createOrdersTable(t, router)

	w, body := doJSON(t, router, http.MethodPost, "/api/formula/validate", map[string]any{
		"table_id":   "tbl_orders",
		"expression": "{Amount} * 2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "number", body["result_type"])

	w, body = doJSON(t, router, http.MethodPost, "/api/formula/validate", map[string]any{
		"table_id":   "tbl_orders",
		"expression": "{Missing} * 2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "UNKNOWN_FIELD", body["error_code"])

	// Missing body fields are a bad request.
	w, _ = doJSON(t, router, http.MethodPost, "/api/formula/validate", map[string]any{
		"table_id": "tbl_orders",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFunctionsAndFieldTypes(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/api/formula/functions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["functions"])

	w, body = doJSON(t, router, http.MethodGet, "/api/fieldtypes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	types := body["fieldTypes"].(map[string]any)
	assert.Len(t, types, 8)
	rollup := types["rollup"].(map[string]any)
	assert.Equal(t, true, rollup["isComputed"])
	assert.NotEmpty(t, rollup["aggregations"])
}
