package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmdorta1111/AirTable-sub000/internal/application/services"
)

// RecordHandler exposes record CRUD. Request and response bodies key values
// by field name; computed fields appear in responses but are rejected in
// writes.
type RecordHandler struct {
	records *services.RecordService
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(records *services.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// ListRecords handles GET /api/tables/:tableId/records
func (h *RecordHandler) ListRecords(c *gin.Context) {
	HandleGetEnvelope(c, "records", func() (interface{}, error) {
		return h.records.ListRecords(c.Request.Context(), c.Param("tableId"))
	})
}

// GetRecord handles GET /api/tables/:tableId/records/:recordId
func (h *RecordHandler) GetRecord(c *gin.Context) {
	HandleGetEnvelope(c, "record", func() (interface{}, error) {
		return h.records.GetRecord(c.Request.Context(), c.Param("tableId"), c.Param("recordId"))
	})
}

// CreateRecord handles POST /api/tables/:tableId/records
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	var values map[string]any
	if !BindJSON(c, &values) {
		return
	}
	ctx := c.Request.Context()
	tableID := c.Param("tableId")
	recordID, err := h.records.CreateRecord(ctx, tableID, values)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	record, err := h.records.GetRecord(ctx, tableID, recordID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Record created", "record": record})
}

// UpdateRecord handles PATCH /api/tables/:tableId/records/:recordId
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	var values map[string]any
	if !BindJSON(c, &values) {
		return
	}
	ctx := c.Request.Context()
	tableID := c.Param("tableId")
	recordID := c.Param("recordId")
	if err := h.records.UpdateRecord(ctx, tableID, recordID, values); err != nil {
		RespondAppError(c, err)
		return
	}
	record, err := h.records.GetRecord(ctx, tableID, recordID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record updated", "record": record})
}
