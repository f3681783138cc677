package excel

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/aquaroute/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testStatement() model.CustomerStatement {
	customer := model.Customer{
		ID:          uuid.New(),
		Name:        "Ana",
		Surname:     "Pérez",
		Address:     "Calle 5, casa 12, Maracay",
		Phone:       "0414-1234567",
		Active:      true,
		BottlePrice: dec("2.50"),
		Balance:     dec("5.00"),
	}
	deliveryID := uuid.New()
	at := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	return model.CustomerStatement{
		Customer: model.Summarize(customer),
		Deliveries: []model.Delivery{
			{ID: uuid.New(), CustomerID: customer.ID, DispatchedAt: at, Quantity: 4, UnitPrice: dec("2.50"), Total: dec("10.00"), Delivered: true},
			{ID: deliveryID, CustomerID: customer.ID, DispatchedAt: at, Quantity: 2, UnitPrice: dec("2.50"), Total: dec("5.00"), Canceled: true},
		},
		Payments: []model.Payment{
			{ID: uuid.New(), CustomerID: customer.ID, PaidAt: at, Amount: dec("5.00"), Notes: "efectivo"},
			{ID: uuid.New(), CustomerID: customer.ID, PaidAt: at, Amount: dec("5.00"), DeliveryID: &deliveryID},
		},
		GeneratedAt: at,
	}
}

func TestGenerator_Statement(t *testing.T) {
	content, err := NewGenerator().Statement(testStatement())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	file, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) != 3 || sheets[0] != summarySheet || sheets[1] != deliveriesSheet || sheets[2] != paymentsSheet {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	checks := []struct {
		sheet, cell, want string
	}{
		{summarySheet, "B1", "Ana Pérez"},
		{summarySheet, "B5", "15.00"},
		{summarySheet, "B6", "10.00"},
		{summarySheet, "B7", "5.00"},
		{summarySheet, "B8", "Con deuda"},
		{summarySheet, "B9", "2"},
		{deliveriesSheet, "E2", "Entregado"},
		{deliveriesSheet, "E3", "Anulado"},
		{paymentsSheet, "C2", "Pago"},
		{paymentsSheet, "C3", "Anulación"},
	}
	for _, tc := range checks {
		got, err := file.GetCellValue(tc.sheet, tc.cell)
		if err != nil {
			t.Fatalf("%s!%s: %v", tc.sheet, tc.cell, err)
		}
		if got != tc.want {
			t.Fatalf("%s!%s expected %q, got %q", tc.sheet, tc.cell, tc.want, got)
		}
	}
}

func TestGenerator_Debtors(t *testing.T) {
	debtors := []model.CustomerSummary{
		model.Summarize(model.Customer{Name: "Ana", Balance: dec("12.50"), BottlePrice: dec("2.50")}),
		model.Summarize(model.Customer{Name: "Luis", Balance: dec("5.00"), BottlePrice: dec("2.50")}),
	}
	content, err := NewGenerator().Debtors(debtors, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	file, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer file.Close()

	rows, err := file.GetRows(debtorsSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(rows))
	}
	if total, _ := file.GetCellValue(debtorsSheet, "B3"); total != "17.50" {
		t.Fatalf("expected total debt 17.50, got %s", total)
	}
	if bottles, _ := file.GetCellValue(debtorsSheet, "B4"); bottles != "7" {
		t.Fatalf("expected 7 bottles owed, got %s", bottles)
	}
	if name, _ := file.GetCellValue(debtorsSheet, "A7"); name != "Ana" {
		t.Fatalf("expected first debtor Ana, got %s", name)
	}
}
