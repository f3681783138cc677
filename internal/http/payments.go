package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/service"
)

type paymentRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
	Notes  string           `json:"notes"`
}

type editPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
	Notes  *string          `json:"notes"`
}

func (h *Handler) registerPayment(c *gin.Context) {
	customerID, ok := pathID(c, "customer")
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.ledger.RegisterPayment(c.Request.Context(), customerID, *req.Amount, req.Notes)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusCreated, "payment registered", gin.H{
		"payment":  result.Payment,
		"customer": result.Customer,
	})
}

func (h *Handler) editPayment(c *gin.Context) {
	id, ok := pathID(c, "payment")
	if !ok {
		return
	}
	var req editPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.ledger.EditPayment(c.Request.Context(), id, service.EditPaymentInput{
		Amount: *req.Amount,
		Notes:  req.Notes,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "payment updated", gin.H{
		"payment":  result.Payment,
		"customer": result.Customer,
	})
}

func (h *Handler) deletePayment(c *gin.Context) {
	id, ok := pathID(c, "payment")
	if !ok {
		return
	}
	customer, err := h.ledger.DeletePayment(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "payment deleted", gin.H{"customer": customer})
}

func (h *Handler) customerPayments(c *gin.Context) {
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}
	payments, err := h.reports.CustomerPayments(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"payments": payments})
}
