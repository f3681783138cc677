package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Customer struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Surname     string          `json:"surname"`
	Address     string          `json:"address"`
	Phone       string          `json:"phone"`
	Active      bool            `json:"active"`
	BottlePrice decimal.Decimal `json:"bottle_price"`
	// Balance is a cache of deliveries minus payments, rebuilt on every ledger mutation.
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (c Customer) FullName() string {
	return strings.TrimSpace(c.Name + " " + c.Surname)
}

type CustomerStatusFilter string

const (
	CustomerFilterAll      CustomerStatusFilter = ""
	CustomerFilterActive   CustomerStatusFilter = "active"
	CustomerFilterInactive CustomerStatusFilter = "inactive"
	CustomerFilterDebt     CustomerStatusFilter = "debt"
	CustomerFilterCredit   CustomerStatusFilter = "credit"
)

type CustomerFilter struct {
	Search string
	Status CustomerStatusFilter
	Limit  int
	Offset int
}

type DeliveryStats struct {
	TotalDeliveries     int64 `json:"total_deliveries"`
	DeliveredDeliveries int64 `json:"delivered_deliveries"`
	PendingDeliveries   int64 `json:"pending_deliveries"`
	TotalBottles        int64 `json:"total_bottles"`
}

// CustomerSummary is a customer with the values derived from its balance at read time.
type CustomerSummary struct {
	Customer
	BottlesOwed    int64         `json:"bottles_owed"`
	BottlesInFavor int64         `json:"bottles_in_favor"`
	BalanceStatus  BalanceStatus `json:"balance_status"`
}

func Summarize(c Customer) CustomerSummary {
	return CustomerSummary{
		Customer:       c,
		BottlesOwed:    BottlesOwed(c.Balance, c.BottlePrice),
		BottlesInFavor: BottlesInFavor(c.Balance, c.BottlePrice),
		BalanceStatus:  StatusOf(c.Balance),
	}
}

type CustomerDetail struct {
	CustomerSummary
	Stats DeliveryStats `json:"stats"`
}
