package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/config"
	"github.com/nurpe/aquaroute/internal/model"
)

const (
	defaultRecentDays = 10
	maxRecentDays     = 60
)

type ExcelGenerator interface {
	Statement(statement model.CustomerStatement) ([]byte, error)
	Debtors(debtors []model.CustomerSummary, generatedAt time.Time) ([]byte, error)
}

type PDFGenerator interface {
	Statement(statement model.CustomerStatement) ([]byte, error)
}

type ExportResult struct {
	FileName string
	Content  []byte
}

type ReportService struct {
	reports ReportStore
	ledger  LedgerStore
	cache   DashboardCache
	excel   ExcelGenerator
	pdf     PDFGenerator
	loc     *time.Location
	log     zerolog.Logger
	now     func() time.Time
}

func NewReportService(
	reports ReportStore,
	ledger LedgerStore,
	cache DashboardCache,
	excel ExcelGenerator,
	pdf PDFGenerator,
	cfg *config.Config,
	log zerolog.Logger,
) *ReportService {
	if cache == nil {
		cache = noopCache{}
	}
	return &ReportService{
		reports: reports,
		ledger:  ledger,
		cache:   cache,
		excel:   excel,
		pdf:     pdf,
		loc:     cfg.Ledger.Location(),
		log:     log,
		now:     time.Now,
	}
}

func (s *ReportService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}

	dayStart, dayEnd := s.dayBounds(s.now())
	counts, err := s.reports.DashboardCounts(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	debtors, err := s.reports.ListDebtors(ctx)
	if err != nil {
		return nil, err
	}

	dashboard := model.Dashboard{
		ActiveCustomers:   counts.ActiveCustomers,
		TotalDebt:         decimal.Zero,
		PendingDeliveries: counts.PendingDeliveries,
		TodayDeliveries:   counts.TodayDeliveries,
		TodayDelivered:    counts.TodayDelivered,
		GeneratedAt:       s.now().UTC(),
	}
	for _, c := range debtors {
		dashboard.TotalDebt = dashboard.TotalDebt.Add(c.Balance)
		dashboard.TotalBottlesOwed += model.BottlesOwed(c.Balance, c.BottlePrice)
	}

	s.cache.Set(ctx, dashboard)
	s.log.Debug().Int64("active_customers", dashboard.ActiveCustomers).Msg("dashboard recomputed")
	return &dashboard, nil
}

func (s *ReportService) TodayDeliveries(ctx context.Context) ([]model.DeliveryView, error) {
	dayStart, dayEnd := s.dayBounds(s.now())
	deliveries, err := s.reports.ListDeliveriesBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		deliveries = []model.DeliveryView{}
	}
	return deliveries, nil
}

// RecentDeliveries groups the last days of deliveries by local calendar day, newest day first.
func (s *ReportService) RecentDeliveries(ctx context.Context, days int) ([]model.DeliveryDay, error) {
	if days < 1 {
		days = defaultRecentDays
	}
	if days > maxRecentDays {
		days = maxRecentDays
	}

	todayStart, todayEnd := s.dayBounds(s.now())
	from := todayStart.AddDate(0, 0, -(days - 1))
	deliveries, err := s.reports.ListDeliveriesBetween(ctx, from, todayEnd)
	if err != nil {
		return nil, err
	}

	result := make([]model.DeliveryDay, 0)
	index := make(map[string]int)
	for _, d := range deliveries {
		local := d.DispatchedAt.In(s.loc)
		key := local.Format("2006-01-02")
		pos, ok := index[key]
		if !ok {
			y, m, day := local.Date()
			result = append(result, model.DeliveryDay{
				Date:       time.Date(y, m, day, 0, 0, 0, 0, s.loc),
				Deliveries: []model.DeliveryView{},
			})
			pos = len(result) - 1
			index[key] = pos
		}
		result[pos].DeliveryCount++
		if !d.Canceled {
			result[pos].TotalBottles += int64(d.Quantity)
		}
		result[pos].Deliveries = append(result[pos].Deliveries, d)
	}
	return result, nil
}

func (s *ReportService) CustomerDeliveries(ctx context.Context, customerID uuid.UUID) ([]model.Delivery, error) {
	if _, err := s.ledger.GetCustomer(ctx, customerID); err != nil {
		return nil, notFound(err, "customer not found")
	}
	deliveries, err := s.reports.ListCustomerDeliveries(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		deliveries = []model.Delivery{}
	}
	return deliveries, nil
}

func (s *ReportService) CustomerPayments(ctx context.Context, customerID uuid.UUID) ([]model.Payment, error) {
	if _, err := s.ledger.GetCustomer(ctx, customerID); err != nil {
		return nil, notFound(err, "customer not found")
	}
	payments, err := s.reports.ListCustomerPayments(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	return payments, nil
}

func (s *ReportService) StatementXLSX(ctx context.Context, principal model.Principal, customerID uuid.UUID) (*ExportResult, error) {
	statement, err := s.statement(ctx, principal, customerID)
	if err != nil {
		return nil, err
	}
	content, err := s.excel.Statement(*statement)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: statementFileName(statement, "xlsx"),
		Content:  content,
	}, nil
}

func (s *ReportService) StatementPDF(ctx context.Context, principal model.Principal, customerID uuid.UUID) (*ExportResult, error) {
	statement, err := s.statement(ctx, principal, customerID)
	if err != nil {
		return nil, err
	}
	content, err := s.pdf.Statement(*statement)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: statementFileName(statement, "pdf"),
		Content:  content,
	}, nil
}

func (s *ReportService) DebtorsXLSX(ctx context.Context, principal model.Principal) (*ExportResult, error) {
	if !principal.IsCompany() {
		return nil, ErrPermissionDenied
	}
	customers, err := s.reports.ListDebtors(ctx)
	if err != nil {
		return nil, err
	}
	debtors := make([]model.CustomerSummary, 0, len(customers))
	for _, c := range customers {
		debtors = append(debtors, model.Summarize(c))
	}

	generatedAt := s.now().In(s.loc)
	content, err := s.excel.Debtors(debtors, generatedAt)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: fmt.Sprintf("debtors-%s.xlsx", generatedAt.Format("20060102")),
		Content:  content,
	}, nil
}

func (s *ReportService) statement(ctx context.Context, principal model.Principal, customerID uuid.UUID) (*model.CustomerStatement, error) {
	if !principal.IsCompany() {
		return nil, ErrPermissionDenied
	}
	customer, err := s.ledger.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, notFound(err, "customer not found")
	}
	deliveries, err := s.reports.ListCustomerDeliveries(ctx, customerID)
	if err != nil {
		return nil, err
	}
	payments, err := s.reports.ListCustomerPayments(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &model.CustomerStatement{
		Customer:    model.Summarize(*customer),
		Deliveries:  deliveries,
		Payments:    payments,
		GeneratedAt: s.now().In(s.loc),
	}, nil
}

func (s *ReportService) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

func statementFileName(statement *model.CustomerStatement, ext string) string {
	name := sanitizeFileName(statement.Customer.FullName())
	if name == "" {
		name = statement.Customer.ID.String()
	}
	return fmt.Sprintf("statement-%s-%s.%s", strings.ToLower(name), statement.GeneratedAt.Format("20060102"), ext)
}

func sanitizeFileName(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z':
			result = append(result, r)
		case r >= 'A' && r <= 'Z':
			result = append(result, r)
		case r >= '0' && r <= '9':
			result = append(result, r)
		case r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '-')
		}
	}
	return strings.Trim(string(result), "-")
}
