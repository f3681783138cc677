package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/model"
	"github.com/nurpe/aquaroute/internal/repository"
)

type LedgerStore interface {
	repository.Ledger
	WithinTx(ctx context.Context, fn func(tx repository.Ledger) error) error
	ListCustomerIDs(ctx context.Context) ([]uuid.UUID, error)
}

type ReportStore interface {
	ListCustomers(ctx context.Context, filter model.CustomerFilter) ([]model.Customer, int64, error)
	ListActiveCustomers(ctx context.Context) ([]model.Customer, error)
	CustomerStats(ctx context.Context, customerID uuid.UUID) (model.DeliveryStats, error)
	ListCustomerDeliveries(ctx context.Context, customerID uuid.UUID) ([]model.Delivery, error)
	ListCustomerPayments(ctx context.Context, customerID uuid.UUID) ([]model.Payment, error)
	ListDeliveriesBetween(ctx context.Context, from, to time.Time) ([]model.DeliveryView, error)
	DashboardCounts(ctx context.Context, dayStart, dayEnd time.Time) (repository.DashboardCounts, error)
	ListDebtors(ctx context.Context) ([]model.Customer, error)
	ListReminderTargets(ctx context.Context, minBalance decimal.Decimal) ([]model.Customer, error)
}

// Locker serializes ledger mutations for one key across replicas.
// Lock returns ErrConflict when the key is held elsewhere.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type DashboardCache interface {
	Get(ctx context.Context) (*model.Dashboard, bool)
	Set(ctx context.Context, dashboard model.Dashboard)
	Invalidate(ctx context.Context)
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

type noopCache struct{}

func (noopCache) Get(context.Context) (*model.Dashboard, bool) { return nil, false }
func (noopCache) Set(context.Context, model.Dashboard) {}
func (noopCache) Invalidate(context.Context) {}

func customerLockKey(id uuid.UUID) string {
	return "ledger:customer:" + id.String()
}
