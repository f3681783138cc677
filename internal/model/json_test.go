package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func marshal(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %T: %v", v, err)
	}
	return string(raw)
}

func expectFields(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Fatalf("expected %s in %s", w, body)
		}
	}
}

func TestMoneyJSON_TwoDecimals(t *testing.T) {
	customer := Customer{
		ID:          uuid.New(),
		Name:        "Ana",
		BottlePrice: decimal.RequireFromString("2.5"),
		Balance:     decimal.RequireFromString("7.5"),
	}
	detail := CustomerDetail{
		CustomerSummary: Summarize(customer),
		Stats:           DeliveryStats{TotalDeliveries: 2},
	}
	expectFields(t, marshal(t, customer), `"bottle_price":"2.50"`, `"balance":"7.50"`, `"name":"Ana"`)
	expectFields(t, marshal(t, detail),
		`"balance":"7.50"`,
		`"bottles_owed":3`,
		`"balance_status":"debt"`,
		`"stats":{"total_deliveries":2`,
	)

	delivery := Delivery{
		Quantity:              3,
		UnitPrice:             decimal.RequireFromString("2.5"),
		Total:                 decimal.RequireFromString("7.5"),
		DeliveredBeforeCancel: true,
	}
	body := marshal(t, DeliveryDay{Deliveries: []DeliveryView{{Delivery: delivery, CustomerName: "Ana"}}})
	expectFields(t, body, `"unit_price":"2.50"`, `"total":"7.50"`, `"quantity":3`, `"customer_name":"Ana"`)
	if strings.Contains(body, "before_cancel") || strings.Contains(body, "DeliveredBeforeCancel") {
		t.Fatalf("internal flag must stay out of the payload: %s", body)
	}

	ref := uuid.New()
	expectFields(t, marshal(t, Payment{Amount: decimal.NewFromInt(5), DeliveryID: &ref}), `"amount":"5.00"`, `"delivery_id":"`+ref.String()+`"`)
	expectFields(t, marshal(t, ReconcileSummary{Drifted: []ReconcileResult{{
		Before: decimal.RequireFromString("40"),
		After:  decimal.RequireFromString("7.5"),
		Drift:  decimal.RequireFromString("-32.5"),
	}}}), `"before":"40.00"`, `"after":"7.50"`, `"drift":"-32.50"`)
}

func TestDashboardJSON_RoundTrip(t *testing.T) {
	in := Dashboard{
		ActiveCustomers: 4,
		TotalDebt:       decimal.RequireFromString("12.5"),
		GeneratedAt:     time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC),
	}
	body := marshal(t, in)
	expectFields(t, body, `"total_debt":"12.50"`, `"active_customers":4`)

	var out Dashboard
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.TotalDebt.Equal(in.TotalDebt) || out.ActiveCustomers != 4 || !out.GeneratedAt.Equal(in.GeneratedAt) {
		t.Fatalf("round trip changed the dashboard: %+v", out)
	}
}
