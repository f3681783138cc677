package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BalanceStatus string

const (
	BalanceDebt    BalanceStatus = "debt"
	BalanceCredit  BalanceStatus = "credit"
	BalanceSettled BalanceStatus = "settled"
)

// LedgerTotals are the source sums the stored balance is rebuilt from.
type LedgerTotals struct {
	DeliveriesTotal decimal.Decimal
	PaymentsTotal   decimal.Decimal
}

func (t LedgerTotals) Balance() decimal.Decimal {
	return RoundMoney(t.DeliveriesTotal.Sub(t.PaymentsTotal))
}

type ReconcileResult struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	Before     decimal.Decimal `json:"before"`
	After      decimal.Decimal `json:"after"`
	Drift      decimal.Decimal `json:"drift"`
}

func (r ReconcileResult) Drifted() bool {
	return !r.Drift.IsZero()
}

type ReconcileSummary struct {
	Checked int               `json:"checked"`
	Failed  int               `json:"failed"`
	Drifted []ReconcileResult `json:"drifted"`
}

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// BottlesOwed rounds half to even, like the paper ledger the office used.
func BottlesOwed(balance, price decimal.Decimal) int64 {
	if !balance.IsPositive() || !price.IsPositive() {
		return 0
	}
	return balance.Div(price).RoundBank(0).IntPart()
}

func BottlesInFavor(balance, price decimal.Decimal) int64 {
	if !balance.IsNegative() || !price.IsPositive() {
		return 0
	}
	return balance.Neg().Div(price).RoundBank(0).IntPart()
}

func StatusOf(balance decimal.Decimal) BalanceStatus {
	switch {
	case balance.IsPositive():
		return BalanceDebt
	case balance.IsNegative():
		return BalanceCredit
	default:
		return BalanceSettled
	}
}
