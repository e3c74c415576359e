package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/sweeper"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func pendingOrder(id string, age time.Duration) domain.Order {
	created := time.Now().UTC().Add(-age)
	return domain.Order{
		ID:      id,
		OwnerID: "user-1",
		Status:  domain.OrderStatusPaymentPending,
		Method:  domain.PaymentMethodRedirect,
		Items: []domain.OrderItem{
			{ProductID: "p1", Name: "Sneakers", PriceMinor: 10000, Qty: 1},
		},
		Currency:         "LKR",
		SubtotalMinor:    10000,
		ShippingFeeMinor: 1000,
		TotalMinor:       11000,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func TestWorker_CancelAbandoned(t *testing.T) {
	repo := memory.NewOrderRepository()
	if err := repo.Create(pendingOrder("order-stale", time.Hour)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(pendingOrder("order-fresh", time.Minute)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	worker := sweeper.NewWorker(repo, sweeper.WithTimeout(30*time.Minute))

	cancelled, err := worker.CancelAbandoned(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled order, got %d", cancelled)
	}

	stale, _ := repo.Get("order-stale")
	if stale.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", stale.Status)
	}
	fresh, _ := repo.Get("order-fresh")
	if fresh.Status != domain.OrderStatusPaymentPending {
		t.Fatalf("fresh order must survive, got %s", fresh.Status)
	}

	// Отменённый sweep'ом заказ никогда не возвращается обратно.
	cancelled, err = worker.CancelAbandoned(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if cancelled != 0 {
		t.Fatalf("expected idempotent sweep, got %d", cancelled)
	}
}

// batchRepo считает вызовы CancelAbandoned, имитируя большой backlog.
type batchRepo struct {
	domain.OrderRepository
	calls     int
	remaining int
}

func (r *batchRepo) CancelAbandoned(before time.Time, limit int) (int, error) {
	r.calls++
	if r.remaining >= limit {
		r.remaining -= limit
		return limit, nil
	}
	n := r.remaining
	r.remaining = 0
	return n, nil
}

func TestWorker_CancelAbandonedBatches(t *testing.T) {
	repo := &batchRepo{remaining: 1201}
	worker := sweeper.NewWorker(repo, sweeper.WithBatchSize(500))

	cancelled, err := worker.CancelAbandoned(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 1201 {
		t.Fatalf("expected 1201 cancelled, got %d", cancelled)
	}
	if repo.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", repo.calls)
	}
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	repo := memory.NewOrderRepository()
	worker := sweeper.NewWorker(repo, sweeper.WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
