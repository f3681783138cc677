package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nurpe/aquaroute/internal/http/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) dashboard(c *gin.Context) {
	dashboard, err := h.reports.Dashboard(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"dashboard": dashboard})
}

func (h *Handler) exportStatementXLSX(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing principal"})
		return
	}
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}

	result, err := h.reports.StatementXLSX(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	attachment(c, xlsxContentType, result.FileName, result.Content)
}

func (h *Handler) exportStatementPDF(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing principal"})
		return
	}
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}

	result, err := h.reports.StatementPDF(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	attachment(c, "application/pdf", result.FileName, result.Content)
}

func (h *Handler) exportDebtorsXLSX(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing principal"})
		return
	}

	result, err := h.reports.DebtorsXLSX(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	attachment(c, xlsxContentType, result.FileName, result.Content)
}
