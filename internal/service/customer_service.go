package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/config"
	"github.com/nurpe/aquaroute/internal/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CustomerService struct {
	ledger       LedgerStore
	reports      ReportStore
	cache        DashboardCache
	defaultPrice decimal.Decimal
}

func NewCustomerService(ledger LedgerStore, reports ReportStore, cache DashboardCache, cfg *config.Config) *CustomerService {
	if cache == nil {
		cache = noopCache{}
	}
	return &CustomerService{
		ledger:       ledger,
		reports:      reports,
		cache:        cache,
		defaultPrice: cfg.Ledger.DefaultPrice,
	}
}

type CreateCustomerInput struct {
	Name        string
	Surname     string
	Address     string
	Phone       string
	BottlePrice *decimal.Decimal
}

type ListCustomersInput struct {
	Search   string
	Filter   string
	Page     int
	PageSize int
}

type CustomerPage struct {
	Items      []model.CustomerSummary `json:"items"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"page_size"`
	Total      int64                   `json:"total"`
	TotalPages int                     `json:"total_pages"`
}

type ActiveCustomer struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Address  string    `json:"address"`
	Phone    string    `json:"phone"`
}

func (s *CustomerService) Create(ctx context.Context, input CreateCustomerInput) (*model.CustomerSummary, error) {
	if err := validatePersonName("name", input.Name, true); err != nil {
		return nil, err
	}
	if err := validatePersonName("surname", input.Surname, false); err != nil {
		return nil, err
	}
	if err := validateAddress(input.Address); err != nil {
		return nil, err
	}
	if err := validatePhone(input.Phone); err != nil {
		return nil, err
	}
	price := s.defaultPrice
	if input.BottlePrice != nil {
		price = *input.BottlePrice
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	customer, err := s.ledger.CreateCustomer(ctx, model.Customer{
		Name:        strings.TrimSpace(input.Name),
		Surname:     strings.TrimSpace(input.Surname),
		Address:     strings.TrimSpace(input.Address),
		Phone:       strings.TrimSpace(input.Phone),
		Active:      true,
		BottlePrice: price,
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx)
	summary := model.Summarize(*customer)
	return &summary, nil
}

func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*model.CustomerDetail, error) {
	customer, err := s.ledger.GetCustomer(ctx, id)
	if err != nil {
		return nil, notFound(err, "customer not found")
	}
	stats, err := s.reports.CustomerStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.CustomerDetail{
		CustomerSummary: model.Summarize(*customer),
		Stats:           stats,
	}, nil
}

func (s *CustomerService) List(ctx context.Context, input ListCustomersInput) (*CustomerPage, error) {
	status, err := parseCustomerFilter(input.Filter)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(input.Page, input.PageSize)

	customers, total, err := s.reports.ListCustomers(ctx, model.CustomerFilter{
		Search: input.Search,
		Status: status,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, err
	}

	items := make([]model.CustomerSummary, 0, len(customers))
	for _, c := range customers {
		items = append(items, model.Summarize(c))
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &CustomerPage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// SetActive sets the active flag. A nil target toggles it.
func (s *CustomerService) SetActive(ctx context.Context, id uuid.UUID, target *bool) (*model.CustomerSummary, error) {
	customer, err := s.ledger.GetCustomer(ctx, id)
	if err != nil {
		return nil, notFound(err, "customer not found")
	}
	want := !customer.Active
	if target != nil {
		want = *target
	}
	if want != customer.Active {
		if err := s.ledger.SetCustomerActive(ctx, id, want); err != nil {
			return nil, err
		}
		customer.Active = want
		s.cache.Invalidate(ctx)
	}
	summary := model.Summarize(*customer)
	return &summary, nil
}

func (s *CustomerService) ListActive(ctx context.Context) ([]ActiveCustomer, error) {
	customers, err := s.reports.ListActiveCustomers(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]ActiveCustomer, 0, len(customers))
	for _, c := range customers {
		result = append(result, ActiveCustomer{
			ID:       c.ID,
			FullName: c.FullName(),
			Address:  c.Address,
			Phone:    c.Phone,
		})
	}
	return result, nil
}

func parseCustomerFilter(raw string) (model.CustomerStatusFilter, error) {
	switch model.CustomerStatusFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case model.CustomerFilterAll:
		return model.CustomerFilterAll, nil
	case model.CustomerFilterActive:
		return model.CustomerFilterActive, nil
	case model.CustomerFilterInactive:
		return model.CustomerFilterInactive, nil
	case model.CustomerFilterDebt:
		return model.CustomerFilterDebt, nil
	case model.CustomerFilterCredit:
		return model.CustomerFilterCredit, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", ErrInvalidInput, raw)
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
