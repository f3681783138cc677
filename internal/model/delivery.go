package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Delivery struct {
	ID           uuid.UUID       `json:"id"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	DispatchedAt time.Time       `json:"dispatched_at"`
	Quantity     int             `json:"quantity"`
	Delivered    bool            `json:"delivered"`
	Canceled     bool            `json:"canceled"`
	Notes        string          `json:"notes"`
	UnitPrice    decimal.Decimal `json:"unit_price"` // snapshot of the customer price
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// DeliveredBeforeCancel remembers the delivered flag a cancellation cleared.
	DeliveredBeforeCancel bool `json:"-"`
}

// DeliveryFlags are written as one unit whenever a delivery changes status.
type DeliveryFlags struct {
	Delivered             bool
	Canceled              bool
	DeliveredBeforeCancel bool
}

func (d Delivery) Flags() DeliveryFlags {
	return DeliveryFlags{
		Delivered:             d.Delivered,
		Canceled:              d.Canceled,
		DeliveredBeforeCancel: d.DeliveredBeforeCancel,
	}
}

// DeliveryView is a delivery joined with the customer fields shown on route sheets.
type DeliveryView struct {
	Delivery
	CustomerName    string `json:"customer_name"`
	CustomerAddress string `json:"customer_address"`
}

type DeliveryDay struct {
	Date          time.Time      `json:"date"`
	TotalBottles  int64          `json:"total_bottles"`
	DeliveryCount int64          `json:"delivery_count"`
	Deliveries    []DeliveryView `json:"deliveries"`
}
