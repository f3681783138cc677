package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/service"
)

type createCustomerRequest struct {
	Name        string           `json:"name" binding:"required"`
	Surname     string           `json:"surname"`
	Address     string           `json:"address" binding:"required"`
	Phone       string           `json:"phone"`
	BottlePrice *decimal.Decimal `json:"bottle_price"`
}

type updateCustomerRequest struct {
	Name        *string          `json:"name"`
	Surname     *string          `json:"surname"`
	Address     *string          `json:"address"`
	Phone       *string          `json:"phone"`
	Active      *bool            `json:"active"`
	BottlePrice *decimal.Decimal `json:"bottle_price"`
}

type updatePriceRequest struct {
	BottlePrice *decimal.Decimal `json:"bottle_price" binding:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) listCustomers(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		badRequest(c, "invalid page")
		return
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		badRequest(c, "invalid page_size")
		return
	}

	result, err := h.customers.List(c.Request.Context(), service.ListCustomersInput{
		Search:   c.Query("search"),
		Filter:   c.Query("filter"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"customers":   result.Items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total":       result.Total,
		"total_pages": result.TotalPages,
	})
}

func (h *Handler) listActiveCustomers(c *gin.Context) {
	customers, err := h.customers.ListActive(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"customers": customers})
}

func (h *Handler) createCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	customer, err := h.customers.Create(c.Request.Context(), service.CreateCustomerInput{
		Name:        req.Name,
		Surname:     req.Surname,
		Address:     req.Address,
		Phone:       req.Phone,
		BottlePrice: req.BottlePrice,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusCreated, "customer created", gin.H{"customer": customer})
}

func (h *Handler) getCustomer(c *gin.Context) {
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}
	customer, err := h.customers.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"customer": customer})
}

func (h *Handler) updateCustomer(c *gin.Context) {
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}
	var req updateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.ledger.UpdateCustomer(c.Request.Context(), id, service.UpdateCustomerInput{
		Name:        req.Name,
		Surname:     req.Surname,
		Address:     req.Address,
		Phone:       req.Phone,
		Active:      req.Active,
		BottlePrice: req.BottlePrice,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	message := "customer updated"
	if !result.Changed {
		message = "no changes"
	}
	respond(c, http.StatusOK, message, gin.H{
		"customer":            result.Customer,
		"changed":             result.Changed,
		"repriced_deliveries": result.Repriced,
	})
}

func (h *Handler) updateCustomerPrice(c *gin.Context) {
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}
	var req updatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.ledger.UpdateCustomerPrice(c.Request.Context(), id, *req.BottlePrice)
	if err != nil {
		h.handleError(c, err)
		return
	}

	message := "price updated"
	if !result.Changed {
		message = "no changes"
	}
	respond(c, http.StatusOK, message, gin.H{
		"customer":            result.Customer,
		"price_from":          result.PriceFrom.StringFixed(2),
		"repriced_deliveries": result.Repriced,
	})
}

func (h *Handler) setCustomerActive(c *gin.Context) {
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}
	var req setActiveRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err.Error())
		return
	}

	customer, err := h.customers.SetActive(c.Request.Context(), id, req.Active)
	if err != nil {
		h.handleError(c, err)
		return
	}
	message := "customer deactivated"
	if customer.Active {
		message = "customer activated"
	}
	respond(c, http.StatusOK, message, gin.H{"customer": customer})
}

func (h *Handler) reconcileCustomer(c *gin.Context) {
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}
	result, err := h.ledger.ReconcileCustomer(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	message := "balance consistent"
	if result.Drifted() {
		message = "balance corrected"
	}
	respond(c, http.StatusOK, message, gin.H{"result": result})
}

func (h *Handler) reconcileAll(c *gin.Context) {
	summary, err := h.ledger.ReconcileAll(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "reconciliation finished", gin.H{"summary": summary})
}
