package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmdorta1111/AirTable-sub000/internal/application/services"
	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
	"github.com/dmdorta1111/AirTable-sub000/pkg/fieldtypes"
)

// TableHandler exposes table and field schema management.
type TableHandler struct {
	catalog ports.FieldCatalog
	fields  *services.FieldService
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(catalog ports.FieldCatalog, fields *services.FieldService) *TableHandler {
	return &TableHandler{catalog: catalog, fields: fields}
}

// ListTables handles GET /api/tables
func (h *TableHandler) ListTables(c *gin.Context) {
	HandleGetEnvelope(c, "tables", func() (interface{}, error) {
		return h.catalog.ListTables(c.Request.Context())
	})
}

// GetTable handles GET /api/tables/:tableId
func (h *TableHandler) GetTable(c *gin.Context) {
	HandleGetEnvelope(c, "table", func() (interface{}, error) {
		return h.catalog.GetTable(c.Request.Context(), c.Param("tableId"))
	})
}

// ListFieldTypes handles GET /api/fieldtypes
func (h *TableHandler) ListFieldTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fieldTypes": fieldtypes.GetRegistry().All()})
}

// CreateTable handles POST /api/tables
func (h *TableHandler) CreateTable(c *gin.Context) {
	var table models.TableDefinition
	if !BindJSON(c, &table) {
		return
	}
	if err := h.fields.CreateTable(c.Request.Context(), &table); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Table created", "table": table})
}

// CreateField handles POST /api/tables/:tableId/fields
func (h *TableHandler) CreateField(c *gin.Context) {
	var field models.FieldDefinition
	if !BindJSON(c, &field) {
		return
	}
	field.TableID = c.Param("tableId")
	field.ID = ""
	if err := h.fields.SaveField(c.Request.Context(), &field); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Field created", "field": field})
}

// UpdateField handles PUT /api/tables/:tableId/fields/:fieldId
func (h *TableHandler) UpdateField(c *gin.Context) {
	var field models.FieldDefinition
	if !BindJSON(c, &field) {
		return
	}
	field.TableID = c.Param("tableId")
	field.ID = c.Param("fieldId")
	if err := h.fields.SaveField(c.Request.Context(), &field); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Field updated", "field": field})
}

// DeleteField handles DELETE /api/tables/:tableId/fields/:fieldId
func (h *TableHandler) DeleteField(c *gin.Context) {
	HandleDeleteEnvelope(c, "Field deleted", func() error {
		return h.fields.DeleteField(c.Request.Context(), c.Param("fieldId"))
	})
}
