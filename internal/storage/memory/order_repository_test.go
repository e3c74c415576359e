package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newOrder(id string, status domain.OrderStatus, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:      id,
		OwnerID: "user-1",
		Status:  status,
		Method:  domain.PaymentMethodCard,
		Items: []domain.OrderItem{
			{ProductID: "p1", Name: "Sneakers", PriceMinor: 10000, Qty: 2},
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

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", domain.OrderStatusPaymentPending, time.Now().UTC())

	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, stored.ID)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListByOwnerHidesPending(t *testing.T) {
	repo := memory.NewOrderRepository()
	now := time.Now().UTC()

	pending := newOrder("order-pending", domain.OrderStatusPaymentPending, now)
	confirmed := newOrder("order-confirmed", domain.OrderStatusConfirmed, now.Add(-time.Minute))
	if err := repo.Create(pending); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(confirmed); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	visible, err := repo.ListByOwner("user-1", 10, false)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != "order-confirmed" {
		t.Fatalf("expected only confirmed order, got %v", visible)
	}

	all, err := repo.ListByOwner("user-1", 10, true)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}
	if all[0].ID != "order-pending" {
		t.Fatalf("expected newest first, got %s", all[0].ID)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", domain.OrderStatusPaymentPending, time.Now().UTC())
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, _ := repo.Get(order.ID)
	second, _ := repo.Get(order.ID)

	first.Status = domain.OrderStatusConfirmed
	if err := repo.Save(first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	second.Status = domain.OrderStatusCancelled
	if err := repo.Save(second); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	stored, _ := repo.Get(order.ID)
	if stored.Status != domain.OrderStatusConfirmed {
		t.Fatalf("first writer must win, got %s", stored.Status)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version 1, got %d", stored.Version)
	}
}

func TestOrderRepository_CancelAbandoned(t *testing.T) {
	repo := memory.NewOrderRepository()
	now := time.Now().UTC()

	stale := newOrder("order-stale", domain.OrderStatusPaymentPending, now.Add(-time.Hour))
	fresh := newOrder("order-fresh", domain.OrderStatusPaymentPending, now)
	confirmed := newOrder("order-confirmed", domain.OrderStatusConfirmed, now.Add(-time.Hour))
	for _, o := range []domain.Order{stale, fresh, confirmed} {
		if err := repo.Create(o); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	cancelled, err := repo.CancelAbandoned(now.Add(-30*time.Minute), 100)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled order, got %d", cancelled)
	}

	swept, _ := repo.Get("order-stale")
	if swept.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", swept.Status)
	}
	if swept.Payment.Status != domain.PaymentRecordAbandoned {
		t.Fatalf("expected abandoned payment record, got %s", swept.Payment.Status)
	}
	if swept.Payment.CancelledAt == nil {
		t.Fatal("expected cancelledAt stamp")
	}
	if swept.Version != 1 {
		t.Fatalf("sweep must bump version, got %d", swept.Version)
	}

	untouched, _ := repo.Get("order-fresh")
	if untouched.Status != domain.OrderStatusPaymentPending {
		t.Fatalf("fresh pending order must survive the sweep, got %s", untouched.Status)
	}

	// Повторный запуск ничего не находит.
	cancelled, err = repo.CancelAbandoned(now.Add(-30*time.Minute), 100)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if cancelled != 0 {
		t.Fatalf("expected idempotent sweep, got %d", cancelled)
	}
}

func TestOrderRepository_SweepLosesToConfirm(t *testing.T) {
	repo := memory.NewOrderRepository()
	now := time.Now().UTC()

	order := newOrder("order-1", domain.OrderStatusPaymentPending, now.Add(-time.Hour))
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(order.ID)
	stored.Status = domain.OrderStatusConfirmed
	if err := repo.Save(stored); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	cancelled, err := repo.CancelAbandoned(now, 100)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 0 {
		t.Fatal("sweep must never cancel an already confirmed order")
	}
}
