package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Dashboard struct {
	ActiveCustomers   int64           `json:"active_customers"`
	TotalDebt         decimal.Decimal `json:"total_debt"`
	TotalBottlesOwed  int64           `json:"total_bottles_owed"`
	PendingDeliveries int64           `json:"pending_deliveries"`
	TodayDeliveries   int64           `json:"today_deliveries"`
	TodayDelivered    int64           `json:"today_delivered"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

type CustomerStatement struct {
	Customer    CustomerSummary
	Deliveries  []Delivery
	Payments    []Payment
	GeneratedAt time.Time
}

func (s CustomerStatement) DeliveriesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range s.Deliveries {
		total = total.Add(d.Total)
	}
	return total
}

func (s CustomerStatement) PaymentsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Payments {
		total = total.Add(p.Amount)
	}
	return total
}
