package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/model"
)

// Generator renders statements with the core Helvetica font. Text passes through
// a cp1252 translator so Spanish accents survive without embedding a font.
type Generator struct {
	fontName string
}

func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

func (g *Generator) Statement(statement model.CustomerStatement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	c := statement.Customer
	loc := statement.GeneratedAt.Location()

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, tr("Estado de cuenta"), "", 1, "C", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Generado el %s", formatDateTime(statement.GeneratedAt))), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(0, 6, tr("Cliente"), "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	lines := []string{
		c.FullName(),
		fmt.Sprintf("Dirección: %s", safeValue(c.Address)),
		fmt.Sprintf("Teléfono: %s", safeValue(c.Phone)),
		fmt.Sprintf("Precio por botellón: $%s", formatMoney(c.BottlePrice)),
	}
	for _, line := range lines {
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	pdf.Ln(3)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, tr("Despachos"), "", 1, "L", false, 0, "")
	deliveryWidths := []float64{38, 22, 25, 30, 30, 35}
	drawTableRow(pdf, g.fontName, tr, []string{"Fecha", "Cantidad", "Precio", "Total", "Estado", "Notas"}, deliveryWidths, true)
	for _, d := range statement.Deliveries {
		drawTableRow(pdf, g.fontName, tr, []string{
			formatDateTime(d.DispatchedAt.In(loc)),
			fmt.Sprintf("%d", d.Quantity),
			formatMoney(d.UnitPrice),
			formatMoney(d.Total),
			deliveryState(d),
			truncate(d.Notes, 18),
		}, deliveryWidths, false)
	}
	pdf.Ln(3)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, tr("Pagos"), "", 1, "L", false, 0, "")
	paymentWidths := []float64{38, 30, 30, 82}
	drawTableRow(pdf, g.fontName, tr, []string{"Fecha", "Monto", "Tipo", "Notas"}, paymentWidths, true)
	for _, p := range statement.Payments {
		kind := "Pago"
		if p.IsOffset() {
			kind = "Anulación"
		}
		drawTableRow(pdf, g.fontName, tr, []string{
			formatDateTime(p.PaidAt.In(loc)),
			formatMoney(p.Amount),
			kind,
			truncate(p.Notes, 45),
		}, paymentWidths, false)
	}
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Total despachado: $%s", formatMoney(statement.DeliveriesTotal()))), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Total pagado: $%s", formatMoney(statement.PaymentsTotal()))), "", 1, "R", false, 0, "")
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Saldo: $%s", formatMoney(c.Balance))), "", 1, "R", false, 0, "")

	pdf.SetFont(g.fontName, "", 10)
	switch {
	case c.BottlesOwed > 0:
		pdf.SetTextColor(200, 0, 0)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("Equivale a %d botellones pendientes de pago.", c.BottlesOwed)), "", "R", false)
		pdf.SetTextColor(0, 0, 0)
	case c.BottlesInFavor > 0:
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("Saldo a favor equivalente a %d botellones.", c.BottlesInFavor)), "", "R", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawTableRow(pdf *gofpdf.Fpdf, fontName string, tr func(string) string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 9)
	for i, col := range cols {
		align := "L"
		if i > 0 && i < 4 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 7, tr(col), "1", 0, align, header, 0, "")
	}
	pdf.Ln(-1)
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

func truncate(value string, max int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max-1]) + "…"
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}
