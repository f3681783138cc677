package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/aquaroute/internal/http/middleware"
	"github.com/nurpe/aquaroute/internal/service"
)

type Handler struct {
	customers *service.CustomerService
	ledger    *service.LedgerService
	reports   *service.ReportService
	loc       *time.Location
	log       zerolog.Logger
}

func NewHandler(
	customers *service.CustomerService,
	ledger *service.LedgerService,
	reports *service.ReportService,
	loc *time.Location,
	log zerolog.Logger,
) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		customers: customers,
		ledger:    ledger,
		reports:   reports,
		loc:       loc,
		log:       log,
	}
}

// Register mounts the API. Routes outside the company group are open to drivers.
func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.GET("/customers/active", h.listActiveCustomers)
	protected.POST("/deliveries", h.createDelivery)
	protected.POST("/deliveries/:id/delivered", h.setDelivered)
	protected.GET("/deliveries/today", h.todayDeliveries)
	protected.GET("/deliveries/recent", h.recentDeliveries)

	company := protected.Group("/")
	company.Use(middleware.RequireCompany())

	company.GET("/customers", h.listCustomers)
	company.POST("/customers", h.createCustomer)
	company.GET("/customers/:id", h.getCustomer)
	company.PUT("/customers/:id", h.updateCustomer)
	company.PUT("/customers/:id/price", h.updateCustomerPrice)
	company.POST("/customers/:id/active", h.setCustomerActive)
	company.POST("/customers/:id/reconcile", h.reconcileCustomer)
	company.GET("/customers/:id/deliveries", h.customerDeliveries)
	company.GET("/customers/:id/payments", h.customerPayments)
	company.POST("/customers/:id/payments", h.registerPayment)
	company.GET("/customers/:id/statement.xlsx", h.exportStatementXLSX)
	company.GET("/customers/:id/statement.pdf", h.exportStatementPDF)
	company.GET("/debtors.xlsx", h.exportDebtorsXLSX)

	company.POST("/deliveries/:id/canceled", h.setCanceled)
	company.DELETE("/deliveries/:id", h.deleteDelivery)

	company.PUT("/payments/:id", h.editPayment)
	company.DELETE("/payments/:id", h.deletePayment)

	company.GET("/dashboard", h.dashboard)
	company.POST("/ledger/reconcile", h.reconcileAll)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	default:
		h.log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}

func respond(c *gin.Context, status int, message string, payload gin.H) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

func attachment(c *gin.Context, contentType, fileName string, content []byte) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	c.Data(http.StatusOK, contentType, content)
}

// bindOptionalJSON accepts an empty body so toggles can be sent without a payload.
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		badRequest(c, "invalid "+name+" id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// parseDate reads zone-less values in the ledger time zone.
func (h *Handler) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrInvalidInput
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	layouts := []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.ParseInLocation(layout, raw, h.loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}
