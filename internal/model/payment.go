package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Payment struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	PaidAt     time.Time       `json:"paid_at"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      string          `json:"notes"`
	// DeliveryID is set only on the offset generated when a delivery is canceled.
	DeliveryID *uuid.UUID `json:"delivery_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (p Payment) IsOffset() bool {
	return p.DeliveryID != nil
}
