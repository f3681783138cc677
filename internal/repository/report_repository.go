package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/aquaroute/internal/model"
)

type DashboardCounts struct {
	ActiveCustomers   int64
	PendingDeliveries int64
	TodayDeliveries   int64
	TodayDelivered    int64
}

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) ListCustomers(ctx context.Context, filter model.CustomerFilter) ([]model.Customer, int64, error) {
	where, args := appendCustomerFilter(" WHERE 1 = 1", nil, filter)

	var total int64
	if err := r.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM customers`+where, args...).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + customerColumns + ` FROM customers` + where + ` ORDER BY active DESC, name ASC, surname ASC`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	var customers []model.Customer
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&customers).Error; err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

func (r *ReportRepository) ListActiveCustomers(ctx context.Context) ([]model.Customer, error) {
	var customers []model.Customer
	if err := r.db.WithContext(ctx).Raw(`
		SELECT ` + customerColumns + `
		FROM customers
		WHERE active = TRUE
		ORDER BY name ASC, surname ASC
	`).Scan(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *ReportRepository) CustomerStats(ctx context.Context, customerID uuid.UUID) (model.DeliveryStats, error) {
	var stats model.DeliveryStats
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_deliveries,
			COUNT(*) FILTER (WHERE delivered) AS delivered_deliveries,
			COUNT(*) FILTER (WHERE NOT delivered AND NOT canceled) AS pending_deliveries,
			COALESCE(SUM(quantity) FILTER (WHERE NOT canceled), 0) AS total_bottles
		FROM deliveries
		WHERE customer_id = ?
	`, customerID).Scan(&stats).Error
	if err != nil {
		return model.DeliveryStats{}, err
	}
	return stats, nil
}

func (r *ReportRepository) ListCustomerDeliveries(ctx context.Context, customerID uuid.UUID) ([]model.Delivery, error) {
	var deliveries []model.Delivery
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE customer_id = ?
		ORDER BY dispatched_at DESC, created_at DESC
	`, customerID).Scan(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *ReportRepository) ListCustomerPayments(ctx context.Context, customerID uuid.UUID) ([]model.Payment, error) {
	var payments []model.Payment
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+paymentColumns+`
		FROM payments
		WHERE customer_id = ?
		ORDER BY paid_at DESC, created_at DESC
	`, customerID).Scan(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// ListDeliveriesBetween returns deliveries dispatched in [from, to), newest first.
func (r *ReportRepository) ListDeliveriesBetween(ctx context.Context, from, to time.Time) ([]model.DeliveryView, error) {
	var rows []model.DeliveryView
	if err := r.db.WithContext(ctx).Raw(`
		SELECT
			d.id,
			d.customer_id,
			d.dispatched_at,
			d.quantity,
			d.delivered,
			d.canceled,
			d.delivered_before_cancel,
			d.notes,
			d.unit_price,
			d.total,
			d.created_at,
			d.updated_at,
			TRIM(c.name || ' ' || c.surname) AS customer_name,
			c.address AS customer_address
		FROM deliveries d
		JOIN customers c ON c.id = d.customer_id
		WHERE d.dispatched_at >= ?
			AND d.dispatched_at < ?
		ORDER BY d.dispatched_at DESC, d.created_at DESC
	`, from, to).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ReportRepository) DashboardCounts(ctx context.Context, dayStart, dayEnd time.Time) (DashboardCounts, error) {
	var counts DashboardCounts
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			(SELECT COUNT(*) FROM customers WHERE active) AS active_customers,
			(SELECT COUNT(*) FROM deliveries WHERE NOT delivered AND NOT canceled) AS pending_deliveries,
			(SELECT COUNT(*) FROM deliveries WHERE dispatched_at >= ? AND dispatched_at < ?) AS today_deliveries,
			(SELECT COUNT(*) FROM deliveries WHERE delivered AND dispatched_at >= ? AND dispatched_at < ?) AS today_delivered
	`, dayStart, dayEnd, dayStart, dayEnd).Scan(&counts).Error
	if err != nil {
		return DashboardCounts{}, err
	}
	return counts, nil
}

// ListDebtors returns customers with a positive balance, largest debt first.
func (r *ReportRepository) ListDebtors(ctx context.Context) ([]model.Customer, error) {
	var customers []model.Customer
	if err := r.db.WithContext(ctx).Raw(`
		SELECT ` + customerColumns + `
		FROM customers
		WHERE balance > 0
		ORDER BY balance DESC, name ASC
	`).Scan(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *ReportRepository) ListReminderTargets(ctx context.Context, minBalance decimal.Decimal) ([]model.Customer, error) {
	var customers []model.Customer
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+customerColumns+`
		FROM customers
		WHERE active = TRUE
			AND phone <> ''
			AND balance >= ?
		ORDER BY balance DESC
	`, minBalance).Scan(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func appendCustomerFilter(baseQuery string, args []interface{}, filter model.CustomerFilter) (string, []interface{}) {
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := containsPattern(strings.ToLower(search))
		baseQuery += ` AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(surname) LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, containsPattern(search))
	}

	switch filter.Status {
	case model.CustomerFilterActive:
		baseQuery += " AND active = TRUE"
	case model.CustomerFilterInactive:
		baseQuery += " AND active = FALSE"
	case model.CustomerFilterDebt:
		baseQuery += " AND balance > 0"
	case model.CustomerFilterCredit:
		baseQuery += " AND balance < 0"
	}
	return baseQuery, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s literally anywhere in a LIKE ... ESCAPE '\' operand.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
