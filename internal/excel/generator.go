package excel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/aquaroute/internal/model"
)

const (
	summarySheet    = "Resumen"
	deliveriesSheet = "Despachos"
	paymentsSheet   = "Pagos"
	debtorsSheet    = "Deudores"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Statement renders a customer account statement with summary, deliveries and payments sheets.
func (g *Generator) Statement(statement model.CustomerStatement) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	g.writeSummary(file, statement)

	if _, err := file.NewSheet(deliveriesSheet); err != nil {
		return nil, err
	}
	g.writeDeliveries(file, statement)

	if _, err := file.NewSheet(paymentsSheet); err != nil {
		return nil, err
	}
	g.writePayments(file, statement)

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Debtors renders every customer with an outstanding balance, largest first.
func (g *Generator) Debtors(debtors []model.CustomerSummary, generatedAt time.Time) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", debtorsSheet); err != nil {
		return nil, err
	}
	set := cellSetter(file, debtorsSheet)

	set("A1", "Generado")
	set("B1", formatDateTime(generatedAt))
	set("A2", "Clientes con deuda")
	set("B2", len(debtors))

	total := decimal.Zero
	var bottles int64
	for _, d := range debtors {
		total = total.Add(d.Balance)
		bottles += d.BottlesOwed
	}
	set("A3", "Deuda total")
	set("B3", formatMoney(total))
	set("A4", "Botellones adeudados")
	set("B4", bottles)

	tableRow := 6
	writeHeaders(set, tableRow, []string{"Cliente", "Dirección", "Teléfono", "Precio", "Saldo", "Botellones"})
	for i, d := range debtors {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), d.FullName())
		set(fmt.Sprintf("B%d", row), d.Address)
		set(fmt.Sprintf("C%d", row), d.Phone)
		set(fmt.Sprintf("D%d", row), formatMoney(d.BottlePrice))
		set(fmt.Sprintf("E%d", row), formatMoney(d.Balance))
		set(fmt.Sprintf("F%d", row), d.BottlesOwed)
	}

	_ = file.SetColWidth(debtorsSheet, "A", "A", 32)
	_ = file.SetColWidth(debtorsSheet, "B", "B", 45)
	_ = file.SetColWidth(debtorsSheet, "C", "F", 14)

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, statement model.CustomerStatement) {
	set := cellSetter(file, summarySheet)
	c := statement.Customer

	set("A1", "Cliente")
	set("B1", c.FullName())
	set("A2", "Dirección")
	set("B2", c.Address)
	set("A3", "Teléfono")
	set("B3", c.Phone)
	set("A4", "Precio por botellón")
	set("B4", formatMoney(c.BottlePrice))
	set("A5", "Total despachado")
	set("B5", formatMoney(statement.DeliveriesTotal()))
	set("A6", "Total pagado")
	set("B6", formatMoney(statement.PaymentsTotal()))
	set("A7", "Saldo")
	set("B7", formatMoney(c.Balance))
	set("A8", "Estado")
	set("B8", statusLabel(c.BalanceStatus))
	set("A9", "Botellones adeudados")
	set("B9", c.BottlesOwed)
	set("A10", "Botellones a favor")
	set("B10", c.BottlesInFavor)
	set("A11", "Generado")
	set("B11", formatDateTime(statement.GeneratedAt))

	_ = file.SetColWidth(summarySheet, "A", "A", 24)
	_ = file.SetColWidth(summarySheet, "B", "B", 45)
}

func (g *Generator) writeDeliveries(file *excelize.File, statement model.CustomerStatement) {
	set := cellSetter(file, deliveriesSheet)
	loc := statement.GeneratedAt.Location()

	writeHeaders(set, 1, []string{"Fecha", "Cantidad", "Precio", "Total", "Estado", "Notas"})
	for i, d := range statement.Deliveries {
		row := 2 + i
		set(fmt.Sprintf("A%d", row), formatDateTime(d.DispatchedAt.In(loc)))
		set(fmt.Sprintf("B%d", row), d.Quantity)
		set(fmt.Sprintf("C%d", row), formatMoney(d.UnitPrice))
		set(fmt.Sprintf("D%d", row), formatMoney(d.Total))
		set(fmt.Sprintf("E%d", row), deliveryState(d))
		set(fmt.Sprintf("F%d", row), d.Notes)
	}

	_ = file.SetColWidth(deliveriesSheet, "A", "A", 20)
	_ = file.SetColWidth(deliveriesSheet, "B", "E", 14)
	_ = file.SetColWidth(deliveriesSheet, "F", "F", 40)
}

func (g *Generator) writePayments(file *excelize.File, statement model.CustomerStatement) {
	set := cellSetter(file, paymentsSheet)
	loc := statement.GeneratedAt.Location()

	writeHeaders(set, 1, []string{"Fecha", "Monto", "Tipo", "Notas"})
	for i, p := range statement.Payments {
		row := 2 + i
		kind := "Pago"
		if p.IsOffset() {
			kind = "Anulación"
		}
		set(fmt.Sprintf("A%d", row), formatDateTime(p.PaidAt.In(loc)))
		set(fmt.Sprintf("B%d", row), formatMoney(p.Amount))
		set(fmt.Sprintf("C%d", row), kind)
		set(fmt.Sprintf("D%d", row), p.Notes)
	}

	_ = file.SetColWidth(paymentsSheet, "A", "A", 20)
	_ = file.SetColWidth(paymentsSheet, "B", "C", 14)
	_ = file.SetColWidth(paymentsSheet, "D", "D", 50)
}

func cellSetter(file *excelize.File, sheet string) func(cell string, value interface{}) {
	return func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}
}

func writeHeaders(set func(string, interface{}), row int, headers []string) {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		set(cell, header)
	}
}

func deliveryState(d model.Delivery) string {
	switch {
	case d.Canceled:
		return "Anulado"
	case d.Delivered:
		return "Entregado"
	default:
		return "Pendiente"
	}
}

func statusLabel(status model.BalanceStatus) string {
	switch status {
	case model.BalanceDebt:
		return "Con deuda"
	case model.BalanceCredit:
		return "A favor"
	default:
		return "Al día"
	}
}

func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
