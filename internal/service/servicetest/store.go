// Package servicetest provides an in-memory ledger store with transaction rollback
// and failure injection for service and handler tests.
package servicetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/aquaroute/internal/model"
	"github.com/nurpe/aquaroute/internal/repository"
)

var ErrDuplicateOffset = errors.New("duplicate offset payment for delivery")

type snapshot struct {
	customers  map[uuid.UUID]model.Customer
	deliveries map[uuid.UUID]model.Delivery
	payments   map[uuid.UUID]model.Payment
}

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	customers  map[uuid.UUID]model.Customer
	deliveries map[uuid.UUID]model.Delivery
	payments   map[uuid.UUID]model.Payment
	failures   map[string]error
	last       time.Time
}

func NewStore() *Store {
	return &Store{
		customers:  make(map[uuid.UUID]model.Customer),
		deliveries: make(map[uuid.UUID]model.Delivery),
		payments:   make(map[uuid.UUID]model.Payment),
		failures:   make(map[string]error),
	}
}

var _ repository.Ledger = (*Store)(nil)

// Fail makes every later call of op return err. A nil err clears it.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Ledger) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	saved := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

// SeedCustomer stores c as is, filling the id and timestamps.
func (s *Store) SeedCustomer(c model.Customer) model.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := s.tick()
	c.CreatedAt, c.UpdatedAt = now, now
	s.customers[c.ID] = c
	return c
}

// SetStoredBalance overwrites the cached balance without touching the ledger rows.
func (s *Store) SetStoredBalance(id uuid.UUID, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.customers[id]
	c.Balance = balance
	s.customers[id] = c
}

func (s *Store) Customer(id uuid.UUID) (model.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	return c, ok
}

func (s *Store) Deliveries(customerID uuid.UUID) []model.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerDeliveries(customerID)
}

func (s *Store) Payments(customerID uuid.UUID) []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerPayments(customerID)
}

func (s *Store) GetCustomer(_ context.Context, id uuid.UUID) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetCustomer"); err != nil {
		return nil, err
	}
	c, ok := s.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (s *Store) LockCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	s.mu.Lock()
	err := s.failure("LockCustomer")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, id)
}

func (s *Store) CreateCustomer(_ context.Context, c model.Customer) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateCustomer"); err != nil {
		return nil, err
	}
	now := s.tick()
	c.ID = uuid.New()
	c.Balance = decimal.Zero
	c.CreatedAt, c.UpdatedAt = now, now
	s.customers[c.ID] = c
	return &c, nil
}

func (s *Store) UpdateCustomer(_ context.Context, c model.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateCustomer"); err != nil {
		return err
	}
	current, ok := s.customers[c.ID]
	if !ok {
		return nil
	}
	current.Name = c.Name
	current.Surname = c.Surname
	current.Address = c.Address
	current.Phone = c.Phone
	current.Active = c.Active
	current.BottlePrice = c.BottlePrice
	current.UpdatedAt = s.tick()
	s.customers[c.ID] = current
	return nil
}

func (s *Store) SetCustomerActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("SetCustomerActive"); err != nil {
		return err
	}
	if c, ok := s.customers[id]; ok {
		c.Active = active
		c.UpdatedAt = s.tick()
		s.customers[id] = c
	}
	return nil
}

func (s *Store) SetBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("SetBalance"); err != nil {
		return err
	}
	if c, ok := s.customers[id]; ok {
		c.Balance = balance
		c.UpdatedAt = s.tick()
		s.customers[id] = c
	}
	return nil
}

func (s *Store) SumLedger(_ context.Context, customerID uuid.UUID) (model.LedgerTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("SumLedger"); err != nil {
		return model.LedgerTotals{}, err
	}
	totals := model.LedgerTotals{DeliveriesTotal: decimal.Zero, PaymentsTotal: decimal.Zero}
	for _, d := range s.deliveries {
		if d.CustomerID == customerID {
			totals.DeliveriesTotal = totals.DeliveriesTotal.Add(d.Total)
		}
	}
	for _, p := range s.payments {
		if p.CustomerID == customerID {
			totals.PaymentsTotal = totals.PaymentsTotal.Add(p.Amount)
		}
	}
	return totals, nil
}

func (s *Store) ListCustomerIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListCustomerIDs"); err != nil {
		return nil, err
	}
	customers := s.sortedCustomers(func(a, b model.Customer) bool { return a.CreatedAt.Before(b.CreatedAt) })
	ids := make([]uuid.UUID, 0, len(customers))
	for _, c := range customers {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *Store) GetDelivery(_ context.Context, id uuid.UUID) (*model.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetDelivery"); err != nil {
		return nil, err
	}
	d, ok := s.deliveries[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &d, nil
}

func (s *Store) CreateDelivery(_ context.Context, d model.Delivery) (*model.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateDelivery"); err != nil {
		return nil, err
	}
	if _, ok := s.customers[d.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s does not exist", d.CustomerID)
	}
	now := s.tick()
	d.ID = uuid.New()
	if d.DispatchedAt.IsZero() {
		d.DispatchedAt = now
	}
	d.CreatedAt, d.UpdatedAt = now, now
	s.deliveries[d.ID] = d
	return &d, nil
}

func (s *Store) SetDeliveryFlags(_ context.Context, id uuid.UUID, flags model.DeliveryFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("SetDeliveryFlags"); err != nil {
		return err
	}
	if d, ok := s.deliveries[id]; ok {
		d.Delivered = flags.Delivered
		d.Canceled = flags.Canceled
		d.DeliveredBeforeCancel = flags.DeliveredBeforeCancel
		d.UpdatedAt = s.tick()
		s.deliveries[id] = d
	}
	return nil
}

// DeleteDelivery cascades to the delivery's offset payments like the foreign key does.
func (s *Store) DeleteDelivery(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteDelivery"); err != nil {
		return err
	}
	delete(s.deliveries, id)
	for pid, p := range s.payments {
		if p.DeliveryID != nil && *p.DeliveryID == id {
			delete(s.payments, pid)
		}
	}
	return nil
}

func (s *Store) RepriceDeliveries(_ context.Context, customerID uuid.UUID, price decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RepriceDeliveries"); err != nil {
		return 0, err
	}
	var count int64
	for id, d := range s.deliveries {
		if d.CustomerID != customerID {
			continue
		}
		d.UnitPrice = price
		d.Total = model.LineTotal(price, d.Quantity)
		d.UpdatedAt = s.tick()
		s.deliveries[id] = d
		count++
	}
	return count, nil
}

func (s *Store) RepriceOffsetPayments(_ context.Context, customerID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RepriceOffsetPayments"); err != nil {
		return 0, err
	}
	var count int64
	for id, p := range s.payments {
		if p.CustomerID != customerID || p.DeliveryID == nil {
			continue
		}
		d, ok := s.deliveries[*p.DeliveryID]
		if !ok || p.Amount.Equal(d.Total) {
			continue
		}
		p.Amount = d.Total
		s.payments[id] = p
		count++
	}
	return count, nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetPayment"); err != nil {
		return nil, err
	}
	p, ok := s.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (s *Store) CreatePayment(_ context.Context, p model.Payment) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreatePayment"); err != nil {
		return nil, err
	}
	if _, ok := s.customers[p.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s does not exist", p.CustomerID)
	}
	if p.DeliveryID != nil {
		for _, existing := range s.payments {
			if existing.DeliveryID != nil && *existing.DeliveryID == *p.DeliveryID {
				return nil, ErrDuplicateOffset
			}
		}
		ref := *p.DeliveryID
		p.DeliveryID = &ref
	}
	now := s.tick()
	p.ID = uuid.New()
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	p.CreatedAt = now
	s.payments[p.ID] = p
	return &p, nil
}

func (s *Store) UpdatePayment(_ context.Context, id uuid.UUID, amount decimal.Decimal, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdatePayment"); err != nil {
		return err
	}
	if p, ok := s.payments[id]; ok {
		p.Amount = amount
		p.Notes = notes
		s.payments[id] = p
	}
	return nil
}

func (s *Store) DeletePayment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeletePayment"); err != nil {
		return err
	}
	delete(s.payments, id)
	return nil
}

func (s *Store) DeleteOffsetPayments(_ context.Context, deliveryID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteOffsetPayments"); err != nil {
		return 0, err
	}
	var count int64
	for id, p := range s.payments {
		if p.DeliveryID != nil && *p.DeliveryID == deliveryID {
			delete(s.payments, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) ListCustomers(_ context.Context, filter model.CustomerFilter) ([]model.Customer, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListCustomers"); err != nil {
		return nil, 0, err
	}
	all := s.sortedCustomers(func(a, b model.Customer) bool {
		if a.Active != b.Active {
			return a.Active
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Surname < b.Surname
	})

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]model.Customer, 0, len(all))
	for _, c := range all {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Surname), search) &&
			!strings.Contains(c.Phone, search) {
			continue
		}
		switch filter.Status {
		case model.CustomerFilterActive:
			if !c.Active {
				continue
			}
		case model.CustomerFilterInactive:
			if c.Active {
				continue
			}
		case model.CustomerFilterDebt:
			if !c.Balance.IsPositive() {
				continue
			}
		case model.CustomerFilterCredit:
			if !c.Balance.IsNegative() {
				continue
			}
		}
		matched = append(matched, c)
	}

	total := int64(len(matched))
	if filter.Limit > 0 {
		start := filter.Offset
		if start > len(matched) {
			start = len(matched)
		}
		end := start + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (s *Store) ListActiveCustomers(_ context.Context) ([]model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListActiveCustomers"); err != nil {
		return nil, err
	}
	var result []model.Customer
	for _, c := range s.sortedCustomers(func(a, b model.Customer) bool { return a.Name < b.Name }) {
		if c.Active {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *Store) CustomerStats(_ context.Context, customerID uuid.UUID) (model.DeliveryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CustomerStats"); err != nil {
		return model.DeliveryStats{}, err
	}
	var stats model.DeliveryStats
	for _, d := range s.deliveries {
		if d.CustomerID != customerID {
			continue
		}
		stats.TotalDeliveries++
		if d.Delivered {
			stats.DeliveredDeliveries++
		}
		if !d.Delivered && !d.Canceled {
			stats.PendingDeliveries++
		}
		if !d.Canceled {
			stats.TotalBottles += int64(d.Quantity)
		}
	}
	return stats, nil
}

func (s *Store) ListCustomerDeliveries(_ context.Context, customerID uuid.UUID) ([]model.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListCustomerDeliveries"); err != nil {
		return nil, err
	}
	return s.customerDeliveries(customerID), nil
}

func (s *Store) ListCustomerPayments(_ context.Context, customerID uuid.UUID) ([]model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListCustomerPayments"); err != nil {
		return nil, err
	}
	return s.customerPayments(customerID), nil
}

func (s *Store) ListDeliveriesBetween(_ context.Context, from, to time.Time) ([]model.DeliveryView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListDeliveriesBetween"); err != nil {
		return nil, err
	}
	var result []model.DeliveryView
	for _, d := range s.deliveries {
		if d.DispatchedAt.Before(from) || !d.DispatchedAt.Before(to) {
			continue
		}
		c := s.customers[d.CustomerID]
		result = append(result, model.DeliveryView{
			Delivery:        d,
			CustomerName:    c.FullName(),
			CustomerAddress: c.Address,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return newerDelivery(result[i].Delivery, result[j].Delivery)
	})
	return result, nil
}

func (s *Store) DashboardCounts(_ context.Context, dayStart, dayEnd time.Time) (repository.DashboardCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DashboardCounts"); err != nil {
		return repository.DashboardCounts{}, err
	}
	var counts repository.DashboardCounts
	for _, c := range s.customers {
		if c.Active {
			counts.ActiveCustomers++
		}
	}
	for _, d := range s.deliveries {
		if !d.Delivered && !d.Canceled {
			counts.PendingDeliveries++
		}
		if d.DispatchedAt.Before(dayStart) || !d.DispatchedAt.Before(dayEnd) {
			continue
		}
		counts.TodayDeliveries++
		if d.Delivered {
			counts.TodayDelivered++
		}
	}
	return counts, nil
}

func (s *Store) ListDebtors(_ context.Context) ([]model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListDebtors"); err != nil {
		return nil, err
	}
	var result []model.Customer
	for _, c := range s.sortedCustomers(func(a, b model.Customer) bool { return a.Balance.GreaterThan(b.Balance) }) {
		if c.Balance.IsPositive() {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *Store) ListReminderTargets(_ context.Context, minBalance decimal.Decimal) ([]model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListReminderTargets"); err != nil {
		return nil, err
	}
	var result []model.Customer
	for _, c := range s.sortedCustomers(func(a, b model.Customer) bool { return a.Balance.GreaterThan(b.Balance) }) {
		if c.Active && c.Phone != "" && c.Balance.GreaterThanOrEqual(minBalance) {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

// tick returns a strictly increasing timestamp so newest-first ordering is stable.
func (s *Store) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := snapshot{
		customers:  make(map[uuid.UUID]model.Customer, len(s.customers)),
		deliveries: make(map[uuid.UUID]model.Delivery, len(s.deliveries)),
		payments:   make(map[uuid.UUID]model.Payment, len(s.payments)),
	}
	for k, v := range s.customers {
		saved.customers[k] = v
	}
	for k, v := range s.deliveries {
		saved.deliveries[k] = v
	}
	for k, v := range s.payments {
		saved.payments[k] = v
	}
	return saved
}

func (s *Store) restore(saved snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = saved.customers
	s.deliveries = saved.deliveries
	s.payments = saved.payments
}

func (s *Store) sortedCustomers(less func(a, b model.Customer) bool) []model.Customer {
	result := make([]model.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		result = append(result, c)
	}
	sort.SliceStable(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

func (s *Store) customerDeliveries(customerID uuid.UUID) []model.Delivery {
	result := []model.Delivery{}
	for _, d := range s.deliveries {
		if d.CustomerID == customerID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return newerDelivery(result[i], result[j]) })
	return result
}

func (s *Store) customerPayments(customerID uuid.UUID) []model.Payment {
	result := []model.Payment{}
	for _, p := range s.payments {
		if p.CustomerID == customerID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PaidAt.Equal(result[j].PaidAt) {
			return result[i].PaidAt.After(result[j].PaidAt)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func newerDelivery(a, b model.Delivery) bool {
	if !a.DispatchedAt.Equal(b.DispatchedAt) {
		return a.DispatchedAt.After(b.DispatchedAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}
