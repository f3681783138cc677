package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money fields go over the wire as fixed two-decimal strings ("7.50", not "7.5").
// Each wrapper embeds a method-less copy of the type and shadows its money fields.

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type customerFields Customer

type customerJSON struct {
	customerFields
	BottlePrice string `json:"bottle_price"`
	Balance     string `json:"balance"`
}

func (c Customer) wire() customerJSON {
	return customerJSON{
		customerFields: customerFields(c),
		BottlePrice:    money(c.BottlePrice),
		Balance:        money(c.Balance),
	}
}

func (c Customer) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire())
}

type summaryJSON struct {
	customerJSON
	BottlesOwed    int64         `json:"bottles_owed"`
	BottlesInFavor int64         `json:"bottles_in_favor"`
	BalanceStatus  BalanceStatus `json:"balance_status"`
}

func (s CustomerSummary) wire() summaryJSON {
	return summaryJSON{
		customerJSON:   s.Customer.wire(),
		BottlesOwed:    s.BottlesOwed,
		BottlesInFavor: s.BottlesInFavor,
		BalanceStatus:  s.BalanceStatus,
	}
}

func (s CustomerSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.wire())
}

func (d CustomerDetail) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		summaryJSON
		Stats DeliveryStats `json:"stats"`
	}{
		summaryJSON: d.CustomerSummary.wire(),
		Stats:       d.Stats,
	})
}

type deliveryFields Delivery

type deliveryJSON struct {
	deliveryFields
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
}

func (d Delivery) wire() deliveryJSON {
	return deliveryJSON{
		deliveryFields: deliveryFields(d),
		UnitPrice:      money(d.UnitPrice),
		Total:          money(d.Total),
	}
}

func (d Delivery) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.wire())
}

func (v DeliveryView) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		deliveryJSON
		CustomerName    string `json:"customer_name"`
		CustomerAddress string `json:"customer_address"`
	}{
		deliveryJSON:    v.Delivery.wire(),
		CustomerName:    v.CustomerName,
		CustomerAddress: v.CustomerAddress,
	})
}

type paymentFields Payment

func (p Payment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		paymentFields
		Amount string `json:"amount"`
	}{
		paymentFields: paymentFields(p),
		Amount:        money(p.Amount),
	})
}

type dashboardFields Dashboard

func (d Dashboard) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		dashboardFields
		TotalDebt string `json:"total_debt"`
	}{
		dashboardFields: dashboardFields(d),
		TotalDebt:       money(d.TotalDebt),
	})
}

type reconcileFields ReconcileResult

func (r ReconcileResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		reconcileFields
		Before string `json:"before"`
		After  string `json:"after"`
		Drift  string `json:"drift"`
	}{
		reconcileFields: reconcileFields(r),
		Before:          money(r.Before),
		After:           money(r.After),
		Drift:           money(r.Drift),
	})
}
