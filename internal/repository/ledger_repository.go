package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nurpe/aquaroute/internal/model"
)

// Ledger is the set of writes a single balance-affecting operation needs.
// Implementations returned by WithinTx share one database transaction.
type Ledger interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	LockCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	CreateCustomer(ctx context.Context, customer model.Customer) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, customer model.Customer) error
	SetCustomerActive(ctx context.Context, id uuid.UUID, active bool) error
	SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	SumLedger(ctx context.Context, customerID uuid.UUID) (model.LedgerTotals, error)

	GetDelivery(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	CreateDelivery(ctx context.Context, delivery model.Delivery) (*model.Delivery, error)
	SetDeliveryFlags(ctx context.Context, id uuid.UUID, flags model.DeliveryFlags) error
	DeleteDelivery(ctx context.Context, id uuid.UUID) error
	RepriceDeliveries(ctx context.Context, customerID uuid.UUID, price decimal.Decimal) (int64, error)
	RepriceOffsetPayments(ctx context.Context, customerID uuid.UUID) (int64, error)

	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	CreatePayment(ctx context.Context, payment model.Payment) (*model.Payment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, notes string) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	DeleteOffsetPayments(ctx context.Context, deliveryID uuid.UUID) (int64, error)
}

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithinTx runs fn against a repository bound to one transaction.
// Returning an error from fn rolls everything back.
func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(tx Ledger) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&LedgerRepository{db: tx})
	})
}

func (r *LedgerRepository) ListCustomerIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Raw(`SELECT id FROM customers ORDER BY created_at ASC`).Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

const customerColumns = `
	id,
	name,
	surname,
	address,
	phone,
	active,
	bottle_price,
	balance,
	created_at,
	updated_at
`

func (r *LedgerRepository) GetCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var customer model.Customer
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&customer).Error; err != nil {
		return nil, err
	}
	if customer.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &customer, nil
}

// LockCustomer reads the customer with SELECT ... FOR UPDATE. Only meaningful inside WithinTx.
func (r *LedgerRepository) LockCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var customer model.Customer
	err := r.db.WithContext(ctx).
		Table("customers").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *LedgerRepository) CreateCustomer(ctx context.Context, customer model.Customer) (*model.Customer, error) {
	var saved model.Customer
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO customers (
			name,
			surname,
			address,
			phone,
			active,
			bottle_price
		) VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+customerColumns,
		customer.Name,
		customer.Surname,
		customer.Address,
		customer.Phone,
		customer.Active,
		customer.BottlePrice,
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *LedgerRepository) UpdateCustomer(ctx context.Context, customer model.Customer) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE customers
		SET
			name = ?,
			surname = ?,
			address = ?,
			phone = ?,
			active = ?,
			bottle_price = ?,
			updated_at = NOW()
		WHERE id = ?
	`,
		customer.Name,
		customer.Surname,
		customer.Address,
		customer.Phone,
		customer.Active,
		customer.BottlePrice,
		customer.ID,
	).Error
}

func (r *LedgerRepository) SetCustomerActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE customers SET active = ?, updated_at = NOW() WHERE id = ?
	`, active, id).Error
}

func (r *LedgerRepository) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE customers SET balance = ?, updated_at = NOW() WHERE id = ?
	`, balance, id).Error
}

func (r *LedgerRepository) SumLedger(ctx context.Context, customerID uuid.UUID) (model.LedgerTotals, error) {
	var totals model.LedgerTotals
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			(SELECT COALESCE(SUM(total), 0) FROM deliveries WHERE customer_id = ?) AS deliveries_total,
			(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE customer_id = ?) AS payments_total
	`, customerID, customerID).Scan(&totals).Error
	if err != nil {
		return model.LedgerTotals{}, err
	}
	return totals, nil
}

const deliveryColumns = `
	id,
	customer_id,
	dispatched_at,
	quantity,
	delivered,
	canceled,
	delivered_before_cancel,
	notes,
	unit_price,
	total,
	created_at,
	updated_at
`

func (r *LedgerRepository) GetDelivery(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	var delivery model.Delivery
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&delivery).Error; err != nil {
		return nil, err
	}
	if delivery.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &delivery, nil
}

func (r *LedgerRepository) CreateDelivery(ctx context.Context, delivery model.Delivery) (*model.Delivery, error) {
	var saved model.Delivery
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO deliveries (
			customer_id,
			dispatched_at,
			quantity,
			delivered,
			canceled,
			notes,
			unit_price,
			total
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+deliveryColumns,
		delivery.CustomerID,
		delivery.DispatchedAt,
		delivery.Quantity,
		delivery.Delivered,
		delivery.Canceled,
		delivery.Notes,
		delivery.UnitPrice,
		delivery.Total,
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *LedgerRepository) SetDeliveryFlags(ctx context.Context, id uuid.UUID, flags model.DeliveryFlags) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE deliveries
		SET
			delivered = ?,
			canceled = ?,
			delivered_before_cancel = ?,
			updated_at = NOW()
		WHERE id = ?
	`, flags.Delivered, flags.Canceled, flags.DeliveredBeforeCancel, id).Error
}

func (r *LedgerRepository) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM deliveries WHERE id = ?`, id).Error
}

// RepriceDeliveries rewrites the price snapshot and total of every delivery of the customer.
func (r *LedgerRepository) RepriceDeliveries(ctx context.Context, customerID uuid.UUID, price decimal.Decimal) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE deliveries
		SET
			unit_price = CAST(? AS NUMERIC),
			total = ROUND(CAST(? AS NUMERIC) * quantity, 2),
			updated_at = NOW()
		WHERE customer_id = ?
	`, price, price, customerID)
	return result.RowsAffected, result.Error
}

// RepriceOffsetPayments aligns every cancellation offset with the current total of its delivery.
func (r *LedgerRepository) RepriceOffsetPayments(ctx context.Context, customerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE payments p
		SET amount = d.total
		FROM deliveries d
		WHERE p.delivery_id = d.id
			AND p.customer_id = ?
			AND p.amount <> d.total
	`, customerID)
	return result.RowsAffected, result.Error
}

const paymentColumns = `
	id,
	customer_id,
	paid_at,
	amount,
	notes,
	delivery_id,
	created_at
`

func (r *LedgerRepository) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&payment).Error; err != nil {
		return nil, err
	}
	if payment.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &payment, nil
}

func (r *LedgerRepository) CreatePayment(ctx context.Context, payment model.Payment) (*model.Payment, error) {
	var saved model.Payment
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO payments (
			customer_id,
			paid_at,
			amount,
			notes,
			delivery_id
		) VALUES (?, ?, ?, ?, ?)
		RETURNING `+paymentColumns,
		payment.CustomerID,
		payment.PaidAt,
		payment.Amount,
		payment.Notes,
		payment.DeliveryID,
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *LedgerRepository) UpdatePayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, notes string) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE payments SET amount = ?, notes = ? WHERE id = ?
	`, amount, notes, id).Error
}

func (r *LedgerRepository) DeletePayment(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM payments WHERE id = ?`, id).Error
}

func (r *LedgerRepository) DeleteOffsetPayments(ctx context.Context, deliveryID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`DELETE FROM payments WHERE delivery_id = ?`, deliveryID)
	return result.RowsAffected, result.Error
}
