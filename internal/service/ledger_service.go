package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/config"
	"github.com/nurpe/aquaroute/internal/model"
	"github.com/nurpe/aquaroute/internal/repository"
)

const messageNoChanges = "no changes"

// LedgerService owns every operation that changes what a customer owes.
// Each operation locks the customer, applies its writes, and rebuilds the
// stored balance from deliveries and payments in the same transaction.
type LedgerService struct {
	store          LedgerStore
	locker         Locker
	cache          DashboardCache
	repriceHistory bool
	log            zerolog.Logger
	now            func() time.Time
}

func NewLedgerService(store LedgerStore, locker Locker, cache DashboardCache, cfg *config.Config, log zerolog.Logger) *LedgerService {
	if locker == nil {
		locker = noopLocker{}
	}
	if cache == nil {
		cache = noopCache{}
	}
	return &LedgerService{
		store:          store,
		locker:         locker,
		cache:          cache,
		repriceHistory: cfg.Ledger.RepriceHistory,
		log:            log,
		now:            time.Now,
	}
}

type CreateDeliveryInput struct {
	CustomerID uuid.UUID
	Quantity   int
	Notes      string
	Date       *time.Time
}

type DeliveryResult struct {
	Delivery model.Delivery        `json:"delivery"`
	Customer model.CustomerSummary `json:"customer"`
}

type ToggleResult struct {
	Delivery model.Delivery        `json:"delivery"`
	Customer model.CustomerSummary `json:"customer"`
	Changed  bool                  `json:"changed"`
	Message  string                `json:"message"`
}

type PaymentResult struct {
	Payment  model.Payment         `json:"payment"`
	Customer model.CustomerSummary `json:"customer"`
}

type EditPaymentInput struct {
	Amount decimal.Decimal
	Notes  *string
}

type UpdateCustomerInput struct {
	Name        *string
	Surname     *string
	Address     *string
	Phone       *string
	Active      *bool
	BottlePrice *decimal.Decimal
}

type CustomerUpdateResult struct {
	Customer  model.CustomerSummary `json:"customer"`
	Repriced  int64                 `json:"repriced_deliveries"`
	Changed   bool                  `json:"changed"`
	PriceFrom decimal.Decimal       `json:"price_from"`
}

type mutation func(tx repository.Ledger, customer *model.Customer) error

// mutate runs fn under the customer lock and reconciles the balance before commit.
func (s *LedgerService) mutate(ctx context.Context, customerID uuid.UUID, fn mutation) (*model.Customer, model.ReconcileResult, error) {
	release, err := s.locker.Lock(ctx, customerLockKey(customerID))
	if err != nil {
		return nil, model.ReconcileResult{}, err
	}
	defer release()

	var (
		updated *model.Customer
		result  model.ReconcileResult
	)
	err = s.store.WithinTx(ctx, func(tx repository.Ledger) error {
		customer, err := tx.LockCustomer(ctx, customerID)
		if err != nil {
			return notFound(err, "customer not found")
		}
		before := customer.Balance

		if fn != nil {
			if err := fn(tx, customer); err != nil {
				return err
			}
		}

		totals, err := tx.SumLedger(ctx, customerID)
		if err != nil {
			return err
		}
		after := totals.Balance()
		if !after.Equal(before) {
			if err := tx.SetBalance(ctx, customerID, after); err != nil {
				return err
			}
		}
		result = model.ReconcileResult{
			CustomerID: customerID,
			Before:     before,
			After:      after,
			Drift:      after.Sub(before),
		}

		updated, err = tx.GetCustomer(ctx, customerID)
		return notFound(err, "customer not found")
	})
	if err != nil {
		return nil, model.ReconcileResult{}, err
	}

	s.cache.Invalidate(ctx)
	return updated, result, nil
}

func (s *LedgerService) CreateDelivery(ctx context.Context, input CreateDeliveryInput) (*DeliveryResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	}
	if err := validateQuantity(input.Quantity); err != nil {
		return nil, err
	}

	dispatchedAt := s.now()
	if input.Date != nil && !input.Date.IsZero() {
		dispatchedAt = *input.Date
	}

	var created *model.Delivery
	customer, _, err := s.mutate(ctx, input.CustomerID, func(tx repository.Ledger, customer *model.Customer) error {
		if !customer.Active {
			return fmt.Errorf("%w: customer is inactive", ErrInvalidInput)
		}
		delivery, err := tx.CreateDelivery(ctx, model.Delivery{
			CustomerID:   customer.ID,
			DispatchedAt: dispatchedAt,
			Quantity:     input.Quantity,
			Notes:        strings.TrimSpace(input.Notes),
			UnitPrice:    customer.BottlePrice,
			Total:        model.LineTotal(customer.BottlePrice, input.Quantity),
		})
		if err != nil {
			return err
		}
		created = delivery
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &DeliveryResult{
		Delivery: *created,
		Customer: model.Summarize(*customer),
	}, nil
}

// SetCanceled cancels or restores a delivery. A nil target toggles the current state.
func (s *LedgerService) SetCanceled(ctx context.Context, deliveryID uuid.UUID, target *bool) (*ToggleResult, error) {
	current, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, notFound(err, "delivery not found")
	}

	var (
		delivery *model.Delivery
		changed  bool
		message  = messageNoChanges
	)
	customer, _, err := s.mutate(ctx, current.CustomerID, func(tx repository.Ledger, _ *model.Customer) error {
		d, err := tx.GetDelivery(ctx, deliveryID)
		if err != nil {
			return notFound(err, "delivery not found")
		}

		want := !d.Canceled
		if target != nil {
			want = *target
		}
		if want == d.Canceled {
			delivery = d
			return nil
		}

		if want {
			if _, err := tx.DeleteOffsetPayments(ctx, d.ID); err != nil {
				return err
			}
			deliveryRef := d.ID
			if _, err := tx.CreatePayment(ctx, model.Payment{
				CustomerID: d.CustomerID,
				PaidAt:     s.now(),
				Amount:     d.Total,
				Notes:      offsetNote(d.ID),
				DeliveryID: &deliveryRef,
			}); err != nil {
				return err
			}
			if err := tx.SetDeliveryFlags(ctx, d.ID, model.DeliveryFlags{
				Canceled:              true,
				DeliveredBeforeCancel: d.Delivered,
			}); err != nil {
				return err
			}
			message = "delivery canceled"
		} else {
			if _, err := tx.DeleteOffsetPayments(ctx, d.ID); err != nil {
				return err
			}
			if err := tx.SetDeliveryFlags(ctx, d.ID, model.DeliveryFlags{
				Delivered: d.DeliveredBeforeCancel,
			}); err != nil {
				return err
			}
			message = "delivery restored"
		}
		changed = true

		delivery, err = tx.GetDelivery(ctx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.Info().
			Str("delivery_id", deliveryID.String()).
			Bool("canceled", delivery.Canceled).
			Str("balance", customer.Balance.StringFixed(2)).
			Msg(message)
	}
	return &ToggleResult{
		Delivery: *delivery,
		Customer: model.Summarize(*customer),
		Changed:  changed,
		Message:  message,
	}, nil
}

// SetDelivered marks a delivery delivered or pending. It never touches money.
func (s *LedgerService) SetDelivered(ctx context.Context, deliveryID uuid.UUID, target *bool) (*ToggleResult, error) {
	current, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, notFound(err, "delivery not found")
	}

	var (
		delivery *model.Delivery
		changed  bool
		message  = messageNoChanges
	)
	customer, _, err := s.mutate(ctx, current.CustomerID, func(tx repository.Ledger, _ *model.Customer) error {
		d, err := tx.GetDelivery(ctx, deliveryID)
		if err != nil {
			return notFound(err, "delivery not found")
		}

		want := !d.Delivered
		if target != nil {
			want = *target
		}
		if want && d.Canceled {
			return fmt.Errorf("%w: a canceled delivery cannot be marked as delivered", ErrInvalidInput)
		}
		if want == d.Delivered {
			delivery = d
			return nil
		}

		flags := d.Flags()
		flags.Delivered = want
		if err := tx.SetDeliveryFlags(ctx, d.ID, flags); err != nil {
			return err
		}
		changed = true
		message = "delivery marked as pending"
		if want {
			message = "delivery marked as delivered"
		}

		delivery, err = tx.GetDelivery(ctx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ToggleResult{
		Delivery: *delivery,
		Customer: model.Summarize(*customer),
		Changed:  changed,
		Message:  message,
	}, nil
}

// DeleteDelivery removes the delivery together with its cancellation offset, if any.
func (s *LedgerService) DeleteDelivery(ctx context.Context, deliveryID uuid.UUID) (*model.CustomerSummary, error) {
	current, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, notFound(err, "delivery not found")
	}

	customer, _, err := s.mutate(ctx, current.CustomerID, func(tx repository.Ledger, _ *model.Customer) error {
		if _, err := tx.GetDelivery(ctx, deliveryID); err != nil {
			return notFound(err, "delivery not found")
		}
		if _, err := tx.DeleteOffsetPayments(ctx, deliveryID); err != nil {
			return err
		}
		return tx.DeleteDelivery(ctx, deliveryID)
	})
	if err != nil {
		return nil, err
	}

	summary := model.Summarize(*customer)
	return &summary, nil
}

func (s *LedgerService) RegisterPayment(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, notes string) (*PaymentResult, error) {
	if customerID == uuid.Nil {
		return nil, fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	var created *model.Payment
	customer, _, err := s.mutate(ctx, customerID, func(tx repository.Ledger, customer *model.Customer) error {
		payment, err := tx.CreatePayment(ctx, model.Payment{
			CustomerID: customer.ID,
			PaidAt:     s.now(),
			Amount:     amount,
			Notes:      strings.TrimSpace(notes),
		})
		if err != nil {
			return err
		}
		created = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &PaymentResult{
		Payment:  *created,
		Customer: model.Summarize(*customer),
	}, nil
}

// EditPayment changes amount and notes. PaidAt never changes. Offsets follow their delivery and cannot be edited.
func (s *LedgerService) EditPayment(ctx context.Context, paymentID uuid.UUID, input EditPaymentInput) (*PaymentResult, error) {
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	current, err := s.editablePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var updated *model.Payment
	customer, _, err := s.mutate(ctx, current.CustomerID, func(tx repository.Ledger, _ *model.Customer) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return notFound(err, "payment not found")
		}
		notes := p.Notes
		if input.Notes != nil {
			notes = strings.TrimSpace(*input.Notes)
		}
		if err := tx.UpdatePayment(ctx, p.ID, input.Amount, notes); err != nil {
			return err
		}
		updated, err = tx.GetPayment(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &PaymentResult{
		Payment:  *updated,
		Customer: model.Summarize(*customer),
	}, nil
}

func (s *LedgerService) DeletePayment(ctx context.Context, paymentID uuid.UUID) (*model.CustomerSummary, error) {
	current, err := s.editablePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	customer, _, err := s.mutate(ctx, current.CustomerID, func(tx repository.Ledger, _ *model.Customer) error {
		if _, err := tx.GetPayment(ctx, paymentID); err != nil {
			return notFound(err, "payment not found")
		}
		return tx.DeletePayment(ctx, paymentID)
	})
	if err != nil {
		return nil, err
	}

	summary := model.Summarize(*customer)
	return &summary, nil
}

func (s *LedgerService) editablePayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, "payment not found")
	}
	if payment.IsOffset() {
		return nil, fmt.Errorf("%w: cancellation offsets follow their delivery; restore the delivery instead", ErrInvalidInput)
	}
	return payment, nil
}

func (s *LedgerService) UpdateCustomerPrice(ctx context.Context, customerID uuid.UUID, price decimal.Decimal) (*CustomerUpdateResult, error) {
	return s.UpdateCustomer(ctx, customerID, UpdateCustomerInput{BottlePrice: &price})
}

// UpdateCustomer edits customer fields. A price change reprices the customer's
// deliveries unless historical repricing is disabled.
func (s *LedgerService) UpdateCustomer(ctx context.Context, customerID uuid.UUID, input UpdateCustomerInput) (*CustomerUpdateResult, error) {
	if err := validateCustomerUpdate(input); err != nil {
		return nil, err
	}

	var (
		repriced  int64
		changed   bool
		priceFrom decimal.Decimal
	)
	customer, _, err := s.mutate(ctx, customerID, func(tx repository.Ledger, customer *model.Customer) error {
		next := *customer
		priceFrom = customer.BottlePrice
		applyCustomerUpdate(&next, input)

		priceChanged := !next.BottlePrice.Equal(customer.BottlePrice)
		if !priceChanged && sameCustomerFields(next, *customer) {
			return nil
		}
		changed = true

		if err := tx.UpdateCustomer(ctx, next); err != nil {
			return err
		}
		if !priceChanged || !s.repriceHistory {
			return nil
		}

		count, err := tx.RepriceDeliveries(ctx, customerID, next.BottlePrice)
		if err != nil {
			return err
		}
		if _, err := tx.RepriceOffsetPayments(ctx, customerID); err != nil {
			return err
		}
		repriced = count
		return nil
	})
	if err != nil {
		return nil, err
	}

	if repriced > 0 {
		s.log.Info().
			Str("customer_id", customerID.String()).
			Str("price_from", priceFrom.StringFixed(2)).
			Str("price_to", customer.BottlePrice.StringFixed(2)).
			Int64("deliveries", repriced).
			Msg("deliveries repriced")
	}
	return &CustomerUpdateResult{
		Customer:  model.Summarize(*customer),
		Repriced:  repriced,
		Changed:   changed,
		PriceFrom: priceFrom,
	}, nil
}

// ReconcileCustomer rebuilds the stored balance and reports any drift it corrected.
func (s *LedgerService) ReconcileCustomer(ctx context.Context, customerID uuid.UUID) (*model.ReconcileResult, error) {
	_, result, err := s.mutate(ctx, customerID, nil)
	if err != nil {
		return nil, err
	}
	if result.Drifted() {
		s.log.Warn().
			Str("customer_id", customerID.String()).
			Str("before", result.Before.StringFixed(2)).
			Str("after", result.After.StringFixed(2)).
			Msg("balance drift corrected")
	}
	return &result, nil
}

func (s *LedgerService) ReconcileAll(ctx context.Context) (*model.ReconcileSummary, error) {
	ids, err := s.store.ListCustomerIDs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &model.ReconcileSummary{Drifted: []model.ReconcileResult{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := s.ReconcileCustomer(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			summary.Failed++
			s.log.Error().Err(err).Str("customer_id", id.String()).Msg("reconcile customer failed")
			continue
		}
		summary.Checked++
		if result.Drifted() {
			summary.Drifted = append(summary.Drifted, *result)
		}
	}

	s.log.Info().
		Int("checked", summary.Checked).
		Int("drifted", len(summary.Drifted)).
		Int("failed", summary.Failed).
		Msg("ledger reconciliation finished")
	return summary, nil
}

func offsetNote(deliveryID uuid.UUID) string {
	return "Cancelación del despacho #" + deliveryID.String()
}

func validateCustomerUpdate(input UpdateCustomerInput) error {
	if input.Name != nil {
		if err := validatePersonName("name", *input.Name, true); err != nil {
			return err
		}
	}
	if input.Surname != nil {
		if err := validatePersonName("surname", *input.Surname, false); err != nil {
			return err
		}
	}
	if input.Address != nil {
		if err := validateAddress(*input.Address); err != nil {
			return err
		}
	}
	if input.Phone != nil {
		if err := validatePhone(*input.Phone); err != nil {
			return err
		}
	}
	if input.BottlePrice != nil {
		if err := validatePrice(*input.BottlePrice); err != nil {
			return err
		}
	}
	return nil
}

func applyCustomerUpdate(c *model.Customer, input UpdateCustomerInput) {
	if input.Name != nil {
		c.Name = strings.TrimSpace(*input.Name)
	}
	if input.Surname != nil {
		c.Surname = strings.TrimSpace(*input.Surname)
	}
	if input.Address != nil {
		c.Address = strings.TrimSpace(*input.Address)
	}
	if input.Phone != nil {
		c.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Active != nil {
		c.Active = *input.Active
	}
	if input.BottlePrice != nil {
		c.BottlePrice = *input.BottlePrice
	}
}

func sameCustomerFields(a, b model.Customer) bool {
	return a.Name == b.Name &&
		a.Surname == b.Surname &&
		a.Address == b.Address &&
		a.Phone == b.Phone &&
		a.Active == b.Active
}
