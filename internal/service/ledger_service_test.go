package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/config"
	"github.com/nurpe/aquaroute/internal/model"
	"github.com/nurpe/aquaroute/internal/service/servicetest"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func boolPtr(v bool) *bool {
	return &v
}

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{
			DefaultPrice:   dec("2.50"),
			RepriceHistory: true,
			Timezone:       "UTC",
		},
		Reminders: config.ReminderConfig{
			MinBalance: dec("10.00"),
		},
	}
}

type countingCache struct {
	mu          sync.Mutex
	invalidated int
	stored      *model.Dashboard
}

func (c *countingCache) Get(context.Context) (*model.Dashboard, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored, c.stored != nil
}

func (c *countingCache) Set(_ context.Context, d model.Dashboard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = &d
}

func (c *countingCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.stored = nil
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (func(), error) {
	return nil, ErrConflict
}

func newLedgerFixture(t *testing.T, cfg *config.Config) (*LedgerService, *servicetest.Store, *countingCache) {
	t.Helper()
	store := servicetest.NewStore()
	cache := &countingCache{}
	svc := NewLedgerService(store, nil, cache, cfg, zerolog.Nop())
	return svc, store, cache
}

func seedCustomer(store *servicetest.Store, price string) model.Customer {
	return store.SeedCustomer(model.Customer{
		Name:        "Ana",
		Surname:     "Pérez",
		Address:     "Calle 5, Casa 12, Maracay",
		Phone:       "0414-1234567",
		Active:      true,
		BottlePrice: dec(price),
		Balance:     decimal.Zero,
	})
}

// assertReconciled checks balance == sum(delivery totals) - sum(payments).
func assertReconciled(t *testing.T, store *servicetest.Store, customerID uuid.UUID) model.Customer {
	t.Helper()
	customer, ok := store.Customer(customerID)
	if !ok {
		t.Fatalf("customer %s missing", customerID)
	}
	expected := decimal.Zero
	for _, d := range store.Deliveries(customerID) {
		expected = expected.Add(d.Total)
	}
	for _, p := range store.Payments(customerID) {
		expected = expected.Sub(p.Amount)
	}
	if !customer.Balance.Equal(expected) {
		t.Fatalf("balance %s does not match ledger %s", customer.Balance, expected)
	}
	return customer
}

func TestCreateDelivery_SnapshotsPriceAndRaisesBalance(t *testing.T) {
	svc, store, cache := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")

	result, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CustomerID: customer.ID,
		Quantity:   3,
		Notes:      "  portón azul ",
	})
	if err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	if !result.Delivery.Total.Equal(dec("7.50")) || !result.Delivery.UnitPrice.Equal(dec("2.50")) {
		t.Fatalf("unexpected delivery pricing %+v", result.Delivery)
	}
	if result.Delivery.Notes != "portón azul" {
		t.Fatalf("expected trimmed notes, got %q", result.Delivery.Notes)
	}
	if !result.Customer.Balance.Equal(dec("7.50")) {
		t.Fatalf("expected balance 7.50, got %s", result.Customer.Balance)
	}
	if result.Customer.BottlesOwed != 3 {
		t.Fatalf("expected 3 bottles owed, got %d", result.Customer.BottlesOwed)
	}
	if cache.invalidated != 1 {
		t.Fatalf("expected dashboard cache invalidation, got %d", cache.invalidated)
	}
	assertReconciled(t, store, customer.ID)
}

func TestCreateDelivery_UsesDateOverride(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	date := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	result, err := svc.CreateDelivery(context.Background(), CreateDeliveryInput{
		CustomerID: customer.ID,
		Quantity:   1,
		Date:       &date,
	})
	if err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	if !result.Delivery.DispatchedAt.Equal(date) {
		t.Fatalf("expected dispatched_at %s, got %s", date, result.Delivery.DispatchedAt)
	}
}

func TestCreateDelivery_Rejections(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	active := seedCustomer(store, "2.50")
	inactive := store.SeedCustomer(model.Customer{Name: "Luis", Active: false, BottlePrice: dec("2.50")})

	cases := []struct {
		name  string
		input CreateDeliveryInput
		want  error
	}{
		{"missing customer", CreateDeliveryInput{CustomerID: uuid.New(), Quantity: 1}, ErrNotFound},
		{"inactive customer", CreateDeliveryInput{CustomerID: inactive.ID, Quantity: 1}, ErrInvalidInput},
		{"zero quantity", CreateDeliveryInput{CustomerID: active.ID, Quantity: 0}, ErrInvalidInput},
		{"no customer id", CreateDeliveryInput{Quantity: 2}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateDelivery(context.Background(), tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(store.Deliveries(active.ID)) != 0 || len(store.Deliveries(inactive.ID)) != 0 {
		t.Fatalf("rejected deliveries must not be stored")
	}
}

func TestRegisterPayment_LowersBalanceByAmount(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	if _, err := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 8}); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	result, err := svc.RegisterPayment(ctx, customer.ID, dec("10.00"), "efectivo")
	if err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}
	if !result.Customer.Balance.Equal(dec("10.00")) {
		t.Fatalf("expected balance 10.00, got %s", result.Customer.Balance)
	}
	if payments := store.Payments(customer.ID); len(payments) != 1 || payments[0].IsOffset() {
		t.Fatalf("expected exactly one manual payment, got %+v", payments)
	}
	assertReconciled(t, store, customer.ID)

	for _, amount := range []string{"0", "-1.00", "1.005"} {
		if _, err := svc.RegisterPayment(ctx, customer.ID, dec(amount), ""); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("amount %s: expected invalid input, got %v", amount, err)
		}
	}
	if _, err := svc.RegisterPayment(ctx, uuid.New(), dec("1.00"), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetCanceled_CancelThenRestore(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, err := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	before := assertReconciled(t, store, customer.ID)

	canceled, err := svc.SetCanceled(ctx, created.Delivery.ID, nil)
	if err != nil {
		t.Fatalf("SetCanceled: %v", err)
	}
	if !canceled.Changed || !canceled.Delivery.Canceled || canceled.Delivery.Delivered {
		t.Fatalf("unexpected cancel result %+v", canceled)
	}
	if !canceled.Customer.Balance.IsZero() {
		t.Fatalf("expected zero balance after cancel, got %s", canceled.Customer.Balance)
	}
	payments := store.Payments(customer.ID)
	if len(payments) != 1 {
		t.Fatalf("expected one offset payment, got %d", len(payments))
	}
	offset := payments[0]
	if offset.DeliveryID == nil || *offset.DeliveryID != created.Delivery.ID {
		t.Fatalf("offset must reference the delivery, got %+v", offset)
	}
	if !offset.Amount.Equal(dec("5.00")) || !strings.HasPrefix(offset.Notes, "Cancelación del despacho #") {
		t.Fatalf("unexpected offset %+v", offset)
	}
	assertReconciled(t, store, customer.ID)

	restored, err := svc.SetCanceled(ctx, created.Delivery.ID, nil)
	if err != nil {
		t.Fatalf("SetCanceled restore: %v", err)
	}
	if !restored.Changed || restored.Delivery.Canceled || restored.Delivery.Delivered {
		t.Fatalf("unexpected restore result %+v", restored)
	}
	if !restored.Customer.Balance.Equal(before.Balance) {
		t.Fatalf("expected balance %s after restore, got %s", before.Balance, restored.Customer.Balance)
	}
	if len(store.Payments(customer.ID)) != 0 {
		t.Fatalf("offset payment must be removed on restore")
	}
	assertReconciled(t, store, customer.ID)
}

func TestSetCanceled_RestoreBringsBackDeliveredFlag(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 3})
	if _, err := svc.SetDelivered(ctx, created.Delivery.ID, boolPtr(true)); err != nil {
		t.Fatalf("SetDelivered: %v", err)
	}

	canceled, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Delivery.Delivered || !canceled.Delivery.Canceled {
		t.Fatalf("cancel must clear delivered, got %+v", canceled.Delivery)
	}

	restored, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(false))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Delivery.Delivered || restored.Delivery.Canceled {
		t.Fatalf("restore must bring back the delivered flag, got %+v", restored.Delivery)
	}
	if !restored.Customer.Balance.Equal(dec("7.50")) {
		t.Fatalf("expected balance 7.50 after restore, got %s", restored.Customer.Balance)
	}

	// A second cycle starting from pending must not reuse the old delivered state.
	if _, err := svc.SetDelivered(ctx, created.Delivery.ID, boolPtr(false)); err != nil {
		t.Fatalf("SetDelivered pending: %v", err)
	}
	if _, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true)); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	again, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(false))
	if err != nil {
		t.Fatalf("second restore: %v", err)
	}
	if again.Delivery.Delivered {
		t.Fatalf("delivery canceled while pending must be restored as pending")
	}
	assertReconciled(t, store, customer.ID)
}

func TestSetCanceled_RestoreSurvivesEditedNotes(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 4})
	if _, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	offset := store.Payments(customer.ID)[0]
	if err := store.UpdatePayment(ctx, offset.ID, offset.Amount, "nota cambiada"); err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}

	result, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(false))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !result.Customer.Balance.Equal(dec("10.00")) {
		t.Fatalf("expected balance 10.00, got %s", result.Customer.Balance)
	}
	if len(store.Payments(customer.ID)) != 0 {
		t.Fatalf("offset must be found by delivery link, not by note")
	}
}

func TestSetCanceled_SameTargetIsNoop(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 2})
	if _, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true)); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	second, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true))
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if second.Changed || second.Message != "no changes" {
		t.Fatalf("expected no-op, got %+v", second)
	}
	if len(store.Payments(customer.ID)) != 1 {
		t.Fatalf("no duplicate offset payment expected")
	}

	pending, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(false))
	if err != nil || !pending.Changed {
		t.Fatalf("restore: %+v %v", pending, err)
	}
	again, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(false))
	if err != nil || again.Changed {
		t.Fatalf("expected second restore to be a no-op: %+v %v", again, err)
	}
	assertReconciled(t, store, customer.ID)
}

func TestSetDelivered_RejectsCanceledDelivery(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 1})
	if _, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.SetDelivered(ctx, created.Delivery.ID, boolPtr(true)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.SetDelivered(ctx, created.Delivery.ID, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected toggle on canceled delivery to be rejected, got %v", err)
	}
	d, _ := store.GetDelivery(ctx, created.Delivery.ID)
	if !d.Canceled || d.Delivered {
		t.Fatalf("flags must stay unchanged, got %+v", d)
	}
}

func TestSetDelivered_TogglesWithoutTouchingBalance(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 2})

	delivered, err := svc.SetDelivered(ctx, created.Delivery.ID, nil)
	if err != nil {
		t.Fatalf("SetDelivered: %v", err)
	}
	if !delivered.Changed || !delivered.Delivery.Delivered {
		t.Fatalf("expected delivered, got %+v", delivered)
	}
	if !delivered.Customer.Balance.Equal(dec("5.00")) {
		t.Fatalf("delivered toggle must not change balance, got %s", delivered.Customer.Balance)
	}

	same, err := svc.SetDelivered(ctx, created.Delivery.ID, boolPtr(true))
	if err != nil || same.Changed || same.Message != "no changes" {
		t.Fatalf("expected no-op, got %+v %v", same, err)
	}

	pending, err := svc.SetDelivered(ctx, created.Delivery.ID, boolPtr(false))
	if err != nil || pending.Delivery.Delivered {
		t.Fatalf("expected pending, got %+v %v", pending, err)
	}

	if _, err := svc.SetDelivered(ctx, uuid.New(), nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateCustomerPrice_RepricesHistory(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	for _, qty := range []int{2, 4} {
		if _, err := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: qty}); err != nil {
			t.Fatalf("CreateDelivery: %v", err)
		}
	}
	if _, err := svc.RegisterPayment(ctx, customer.ID, dec("5.00"), ""); err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}

	result, err := svc.UpdateCustomerPrice(ctx, customer.ID, dec("3.00"))
	if err != nil {
		t.Fatalf("UpdateCustomerPrice: %v", err)
	}
	if result.Repriced != 2 || !result.Changed {
		t.Fatalf("expected 2 repriced deliveries, got %+v", result)
	}

	totals := map[int]decimal.Decimal{}
	for _, d := range store.Deliveries(customer.ID) {
		totals[d.Quantity] = d.Total
		if !d.UnitPrice.Equal(dec("3.00")) {
			t.Fatalf("expected unit price 3.00, got %s", d.UnitPrice)
		}
	}
	if !totals[2].Equal(dec("6.00")) || !totals[4].Equal(dec("12.00")) {
		t.Fatalf("unexpected totals %v", totals)
	}
	if !result.Customer.Balance.Equal(dec("13.00")) {
		t.Fatalf("expected balance 18.00 - 5.00, got %s", result.Customer.Balance)
	}
	if result.Customer.BottlesOwed != 4 {
		t.Fatalf("expected 13.00/3.00 rounded to 4 bottles, got %d", result.Customer.BottlesOwed)
	}
	assertReconciled(t, store, customer.ID)
}

func TestUpdateCustomerPrice_KeepsCanceledDeliveriesNetZero(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 2})
	if _, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	result, err := svc.UpdateCustomerPrice(ctx, customer.ID, dec("3.00"))
	if err != nil {
		t.Fatalf("UpdateCustomerPrice: %v", err)
	}
	if !result.Customer.Balance.IsZero() {
		t.Fatalf("canceled delivery must stay net-zero, got balance %s", result.Customer.Balance)
	}
	if offset := store.Payments(customer.ID)[0]; !offset.Amount.Equal(dec("6.00")) {
		t.Fatalf("expected offset repriced to 6.00, got %s", offset.Amount)
	}
}

func TestUpdateCustomerPrice_FutureOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.RepriceHistory = false
	svc, store, _ := newLedgerFixture(t, cfg)
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	if _, err := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 2}); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	result, err := svc.UpdateCustomerPrice(ctx, customer.ID, dec("3.00"))
	if err != nil {
		t.Fatalf("UpdateCustomerPrice: %v", err)
	}
	if result.Repriced != 0 || !result.Customer.Balance.Equal(dec("5.00")) {
		t.Fatalf("history must stay untouched, got %+v", result)
	}

	next, err := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	if !next.Delivery.Total.Equal(dec("3.00")) || !next.Customer.Balance.Equal(dec("8.00")) {
		t.Fatalf("new price must apply to new deliveries, got %+v", next)
	}
}

func TestUpdateCustomerPrice_Validation(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")

	for _, price := range []string{"-0.01", "1000.00", "2.555"} {
		if _, err := svc.UpdateCustomerPrice(context.Background(), customer.ID, dec(price)); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("price %s: expected invalid input, got %v", price, err)
		}
	}
	unchanged, err := svc.UpdateCustomerPrice(context.Background(), customer.ID, dec("2.5"))
	if err != nil || unchanged.Changed {
		t.Fatalf("same price must be a no-op: %+v %v", unchanged, err)
	}
}

func TestUpdateCustomer_EditsFields(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	name := "María José"
	phone := "(0412) 555-12"

	result, err := svc.UpdateCustomer(context.Background(), customer.ID, UpdateCustomerInput{
		Name:   &name,
		Phone:  &phone,
		Active: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("UpdateCustomer: %v", err)
	}
	if !result.Changed || result.Customer.Name != name || result.Customer.Active {
		t.Fatalf("unexpected update result %+v", result)
	}

	bad := "x"
	if _, err := svc.UpdateCustomer(context.Background(), customer.ID, UpdateCustomerInput{Name: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEditAndDeletePayment_Reconcile(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	if _, err := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 10}); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	registered, err := svc.RegisterPayment(ctx, customer.ID, dec("10.00"), "transferencia")
	if err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}
	paidAt := registered.Payment.PaidAt

	edited, err := svc.EditPayment(ctx, registered.Payment.ID, EditPaymentInput{Amount: dec("20.00")})
	if err != nil {
		t.Fatalf("EditPayment: %v", err)
	}
	if !edited.Customer.Balance.Equal(dec("5.00")) {
		t.Fatalf("expected balance 5.00, got %s", edited.Customer.Balance)
	}
	if edited.Payment.Notes != "transferencia" || !edited.Payment.PaidAt.Equal(paidAt) {
		t.Fatalf("edit must keep notes and paid_at, got %+v", edited.Payment)
	}
	assertReconciled(t, store, customer.ID)

	summary, err := svc.DeletePayment(ctx, registered.Payment.ID)
	if err != nil {
		t.Fatalf("DeletePayment: %v", err)
	}
	if !summary.Balance.Equal(dec("25.00")) {
		t.Fatalf("expected balance 25.00, got %s", summary.Balance)
	}
	assertReconciled(t, store, customer.ID)

	if _, err := svc.DeletePayment(ctx, registered.Payment.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOffsetPayments_AreNotDirectlyEditable(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 2})
	if _, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	offset := store.Payments(customer.ID)[0]

	if _, err := svc.EditPayment(ctx, offset.ID, EditPaymentInput{Amount: dec("1.00")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input on offset edit, got %v", err)
	}
	if _, err := svc.DeletePayment(ctx, offset.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input on offset delete, got %v", err)
	}
}

func TestDeleteDelivery_RemovesOffsetAndReconciles(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	kept, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 1})
	removed, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 3})
	if _, err := svc.SetCanceled(ctx, removed.Delivery.ID, boolPtr(true)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	summary, err := svc.DeleteDelivery(ctx, removed.Delivery.ID)
	if err != nil {
		t.Fatalf("DeleteDelivery: %v", err)
	}
	if !summary.Balance.Equal(kept.Delivery.Total) {
		t.Fatalf("expected balance %s, got %s", kept.Delivery.Total, summary.Balance)
	}
	if len(store.Payments(customer.ID)) != 0 {
		t.Fatalf("offset payment must be removed with its delivery")
	}
	assertReconciled(t, store, customer.ID)

	if _, err := svc.DeleteDelivery(ctx, removed.Delivery.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMutation_RollsBackOnFailure(t *testing.T) {
	svc, store, cache := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	created, _ := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 2})
	invalidations := cache.invalidated

	boom := errors.New("connection reset")
	store.Fail("SetDeliveryFlags", boom)
	if _, err := svc.SetCanceled(ctx, created.Delivery.ID, boolPtr(true)); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	store.Fail("SetDeliveryFlags", nil)

	if len(store.Payments(customer.ID)) != 0 {
		t.Fatalf("offset payment must be rolled back")
	}
	d, _ := store.GetDelivery(ctx, created.Delivery.ID)
	if d.Canceled {
		t.Fatalf("delivery flags must be rolled back")
	}
	after := assertReconciled(t, store, customer.ID)
	if !after.Balance.Equal(dec("5.00")) {
		t.Fatalf("balance must be unchanged, got %s", after.Balance)
	}
	if cache.invalidated != invalidations {
		t.Fatalf("failed mutation must not invalidate the cache")
	}

	store.Fail("SumLedger", boom)
	if _, err := svc.RegisterPayment(ctx, customer.ID, dec("1.00"), ""); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	store.Fail("SumLedger", nil)
	if len(store.Payments(customer.ID)) != 0 {
		t.Fatalf("payment must be rolled back when reconciliation fails")
	}
}

func TestLockConflict(t *testing.T) {
	store := servicetest.NewStore()
	svc := NewLedgerService(store, busyLocker{}, nil, testConfig(), zerolog.Nop())
	customer := seedCustomer(store, "2.50")

	if _, err := svc.RegisterPayment(context.Background(), customer.ID, dec("1.00"), ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.Payments(customer.ID)) != 0 {
		t.Fatalf("no write expected without the lock")
	}
}

func TestReconcileCustomer_CorrectsDrift(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	if _, err := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 4}); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	store.SetStoredBalance(customer.ID, dec("99.00"))

	result, err := svc.ReconcileCustomer(ctx, customer.ID)
	if err != nil {
		t.Fatalf("ReconcileCustomer: %v", err)
	}
	if !result.Drifted() || !result.Before.Equal(dec("99.00")) || !result.After.Equal(dec("10.00")) {
		t.Fatalf("unexpected reconcile result %+v", result)
	}
	if !result.Drift.Equal(dec("-89.00")) {
		t.Fatalf("expected drift -89.00, got %s", result.Drift)
	}
	assertReconciled(t, store, customer.ID)

	clean, err := svc.ReconcileCustomer(ctx, customer.ID)
	if err != nil || clean.Drifted() {
		t.Fatalf("second reconcile must find no drift: %+v %v", clean, err)
	}
}

func TestReconcileAll(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	first := seedCustomer(store, "2.50")
	second := seedCustomer(store, "3.00")
	third := seedCustomer(store, "2.00")
	store.SetStoredBalance(second.ID, dec("4.00"))
	store.SetStoredBalance(third.ID, dec("-1.00"))

	summary, err := svc.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	if summary.Checked != 3 || len(summary.Drifted) != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, id := range []uuid.UUID{first.ID, second.ID, third.ID} {
		assertReconciled(t, store, id)
	}
}

func TestPayments_ConcurrentRegistrationKeepsBalance(t *testing.T) {
	svc, store, _ := newLedgerFixture(t, testConfig())
	customer := seedCustomer(store, "2.50")
	ctx := context.Background()

	if _, err := svc.CreateDelivery(ctx, CreateDeliveryInput{CustomerID: customer.ID, Quantity: 20}); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RegisterPayment(ctx, customer.ID, dec("1.50"), ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RegisterPayment: %v", err)
	}

	final := assertReconciled(t, store, customer.ID)
	if !final.Balance.Equal(dec("20.00")) {
		t.Fatalf("expected balance 50.00 - 30.00, got %s", final.Balance)
	}
}
