package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nurpe/aquaroute/internal/service"
)

type createDeliveryRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
	Notes      string `json:"notes"`
	Date       string `json:"date"`
}

type setDeliveredRequest struct {
	Delivered *bool `json:"delivered"`
}

type setCanceledRequest struct {
	Canceled *bool `json:"canceled"`
}

func (h *Handler) createDelivery(c *gin.Context) {
	var req createDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	customerID, err := uuid.Parse(strings.TrimSpace(req.CustomerID))
	if err != nil {
		badRequest(c, "invalid customer_id")
		return
	}

	input := service.CreateDeliveryInput{
		CustomerID: customerID,
		Quantity:   req.Quantity,
		Notes:      req.Notes,
	}
	if strings.TrimSpace(req.Date) != "" {
		date, err := h.parseDate(req.Date)
		if err != nil {
			badRequest(c, "invalid date")
			return
		}
		input.Date = &date
	}

	result, err := h.ledger.CreateDelivery(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusCreated, "delivery created", gin.H{
		"delivery": result.Delivery,
		"customer": result.Customer,
	})
}

func (h *Handler) setDelivered(c *gin.Context) {
	id, ok := pathID(c, "delivery")
	if !ok {
		return
	}
	var req setDeliveredRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.ledger.SetDelivered(c.Request.Context(), id, req.Delivered)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respondToggle(c, result)
}

func (h *Handler) setCanceled(c *gin.Context) {
	id, ok := pathID(c, "delivery")
	if !ok {
		return
	}
	var req setCanceledRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.ledger.SetCanceled(c.Request.Context(), id, req.Canceled)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respondToggle(c, result)
}

func respondToggle(c *gin.Context, result *service.ToggleResult) {
	respond(c, http.StatusOK, result.Message, gin.H{
		"changed":  result.Changed,
		"delivery": result.Delivery,
		"customer": result.Customer,
	})
}

func (h *Handler) deleteDelivery(c *gin.Context) {
	id, ok := pathID(c, "delivery")
	if !ok {
		return
	}
	customer, err := h.ledger.DeleteDelivery(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "delivery deleted", gin.H{"customer": customer})
}

func (h *Handler) todayDeliveries(c *gin.Context) {
	deliveries, err := h.reports.TodayDeliveries(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"deliveries": deliveries})
}

func (h *Handler) recentDeliveries(c *gin.Context) {
	days, err := queryInt(c, "days")
	if err != nil {
		badRequest(c, "invalid days")
		return
	}
	grouped, err := h.reports.RecentDeliveries(c.Request.Context(), days)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"days": grouped})
}

func (h *Handler) customerDeliveries(c *gin.Context) {
	id, ok := pathID(c, "customer")
	if !ok {
		return
	}
	deliveries, err := h.reports.CustomerDeliveries(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"deliveries": deliveries})
}
