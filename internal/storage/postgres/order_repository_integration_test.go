package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "buyer-1", now.Add(-2*time.Minute))
	order1.Status = domain.OrderStatusConfirmed
	order2 := sampleOrder("order-2", "buyer-1", now.Add(-time.Minute))
	order2.Status = domain.OrderStatusConfirmed

	if err := repo.Create(order1); err != nil {
		t.Fatalf("create order1: %v", err)
	}
	if err := repo.Create(order2); err != nil {
		t.Fatalf("create order2: %v", err)
	}

	got, err := repo.Get(order1.ID)
	if err != nil {
		t.Fatalf("get order1: %v", err)
	}
	if got.ID != order1.ID || got.OwnerID != order1.OwnerID || got.Status != order1.Status {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if got.Method != domain.PaymentMethodCard {
		t.Fatalf("unexpected payment method: %s", got.Method)
	}
	if got.Address != order1.Address {
		t.Fatalf("address did not round-trip: %+v", got.Address)
	}
	if len(got.Items) != len(order1.Items) {
		t.Fatalf("unexpected items count: got=%d want=%d", len(got.Items), len(order1.Items))
	}
	if got.Items[0] != order1.Items[0] {
		t.Fatalf("item did not round-trip: %+v", got.Items[0])
	}

	listed, err := repo.ListByOwner("buyer-1", 1, true)
	if err != nil {
		t.Fatalf("list by owner with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != order2.ID {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	all, err := repo.ListByOwner("buyer-1", 0, true)
	if err != nil {
		t.Fatalf("list by owner without limit: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}

	got.Status = domain.OrderStatusShipped
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(got); err != nil {
		t.Fatalf("save order: %v", err)
	}

	updated, err := repo.Get(order1.ID)
	if err != nil {
		t.Fatalf("get updated order: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped {
		t.Fatalf("unexpected status after save: %s", updated.Status)
	}
	if updated.Version != got.Version+1 {
		t.Fatalf("unexpected version after save: got=%d want=%d", updated.Version, got.Version+1)
	}
}

func TestOrderRepository_PostgresListHidesPending(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	pending := sampleOrder("order-pending", "buyer-3", now.Add(-time.Minute))
	confirmed := sampleOrder("order-confirmed", "buyer-3", now.Add(-2*time.Minute))
	confirmed.Status = domain.OrderStatusConfirmed

	if err := repo.Create(pending); err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if err := repo.Create(confirmed); err != nil {
		t.Fatalf("create confirmed: %v", err)
	}

	visible, err := repo.ListByOwner("buyer-3", 0, false)
	if err != nil {
		t.Fatalf("list without pending: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != confirmed.ID {
		t.Fatalf("expected only confirmed order, got %+v", visible)
	}

	all, err := repo.ListByOwner("buyer-3", 0, true)
	if err != nil {
		t.Fatalf("list with pending: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders with pending, got %d", len(all))
	}
}

func TestOrderRepository_PostgresCancelAbandoned(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	stale := sampleOrder("order-stale", "buyer-4", now.Add(-2*time.Hour))
	fresh := sampleOrder("order-fresh", "buyer-4", now.Add(-time.Minute))
	confirmed := sampleOrder("order-done", "buyer-4", now.Add(-3*time.Hour))
	confirmed.Status = domain.OrderStatusConfirmed

	for _, order := range []domain.Order{stale, fresh, confirmed} {
		if err := repo.Create(order); err != nil {
			t.Fatalf("create %s: %v", order.ID, err)
		}
	}

	cancelled, err := repo.CancelAbandoned(now.Add(-30*time.Minute), 100)
	if err != nil {
		t.Fatalf("cancel abandoned: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled order, got %d", cancelled)
	}

	got, err := repo.Get(stale.ID)
	if err != nil {
		t.Fatalf("get stale order: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected stale order cancelled, got %s", got.Status)
	}
	if got.Payment.Status != domain.PaymentRecordAbandoned {
		t.Fatalf("expected abandoned payment record, got %s", got.Payment.Status)
	}
	if got.Payment.CancelledAt == nil {
		t.Fatal("expected payment cancelled_at to be set")
	}
	if got.Version != stale.Version+1 {
		t.Fatalf("expected version bump after sweep: got=%d", got.Version)
	}

	untouched, err := repo.Get(fresh.ID)
	if err != nil {
		t.Fatalf("get fresh order: %v", err)
	}
	if untouched.Status != domain.OrderStatusPaymentPending {
		t.Fatalf("fresh pending order must survive sweep, got %s", untouched.Status)
	}

	// Повторный проход не находит новых кандидатов.
	again, err := repo.CancelAbandoned(now.Add(-30*time.Minute), 100)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected idempotent sweep, got %d", again)
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	base := sampleOrder("order-errors", "buyer-2", now)

	if _, err := repo.Get("missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := repo.Save(base); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on save missing, got %v", err)
	}

	if err := repo.Create(base); err != nil {
		t.Fatalf("create base order: %v", err)
	}
	if err := repo.Create(base); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict on duplicate create, got %v", err)
	}

	stale := base
	stale.Status = domain.OrderStatusConfirmed
	stale.UpdatedAt = now.Add(time.Minute)
	stale.Version = 42
	if err := repo.Save(stale); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict on stale save, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
}

func sampleOrder(id, ownerID string, createdAt time.Time) domain.Order {
	items := []domain.OrderItem{
		{
			ProductID:  "p1",
			Name:       "Plain Tee",
			PriceMinor: 10000,
			Size:       "M",
			Qty:        2,
		},
	}

	return domain.Order{
		ID:      id,
		OwnerID: ownerID,
		Status:  domain.OrderStatusPaymentPending,
		Method:  domain.PaymentMethodCard,
		Items:   items,
		Address: domain.ShippingAddress{
			FirstName: "Amaya",
			LastName:  "Perera",
			Email:     "amaya@example.com",
			Street:    "12 Galle Road",
			City:      "Colombo",
			State:     "Western",
			Zipcode:   "00300",
			Country:   "Sri Lanka",
			Phone:     "+94111234567",
		},
		Currency:         "LKR",
		SubtotalMinor:    20000,
		ShippingFeeMinor: 1000,
		TotalMinor:       21000,
		Version:          0,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}
