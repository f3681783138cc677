package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/model"
)

func TestGenerator_Statement(t *testing.T) {
	customerID := uuid.New()
	deliveryID := uuid.New()
	at := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	statement := model.CustomerStatement{
		Customer: model.Summarize(model.Customer{
			ID:          customerID,
			Name:        "José",
			Surname:     "Núñez",
			Address:     "Av. Bolívar, edificio Araguaney",
			BottlePrice: decimal.RequireFromString("2.50"),
			Balance:     decimal.RequireFromString("7.50"),
		}),
		Deliveries: []model.Delivery{
			{ID: deliveryID, CustomerID: customerID, DispatchedAt: at, Quantity: 3, UnitPrice: decimal.RequireFromString("2.50"), Total: decimal.RequireFromString("7.50"), Notes: "dejar en conserjería, segundo piso al fondo"},
		},
		Payments:    []model.Payment{},
		GeneratedAt: at,
	}

	content, err := NewGenerator().Statement(statement)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(content, []byte("%PDF")) {
		t.Fatalf("output is not a pdf document")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("corto", 10); got != "corto" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("conserjería", 6); got != "conse…" {
		t.Fatalf("unexpected %q", got)
	}
}
