package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmdorta1111/AirTable-sub000/internal/application/services"
	"github.com/dmdorta1111/AirTable-sub000/pkg/formula"
)

// FormulaHandler exposes formula validation and the function catalog.
type FormulaHandler struct {
	fields *services.FieldService
}

// NewFormulaHandler creates a new FormulaHandler.
func NewFormulaHandler(fields *services.FieldService) *FormulaHandler {
	return &FormulaHandler{fields: fields}
}

type validateRequest struct {
	TableID    string `json:"table_id" binding:"required"`
	Expression string `json:"expression" binding:"required"`
}

// ValidateFormula handles POST /api/formula/validate. Compile failures are a
// 200 with valid=false; only an unknown table is an error status.
func (h *FormulaHandler) ValidateFormula(c *gin.Context) {
	var req validateRequest
	if !BindJSON(c, &req) {
		return
	}
	result, err := h.fields.ValidateFormula(c.Request.Context(), req.TableID, req.Expression)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListFunctions handles GET /api/formula/functions
func (h *FormulaHandler) ListFunctions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"functions": formula.FunctionDefinitions()})
}
