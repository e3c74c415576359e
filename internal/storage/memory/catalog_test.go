package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func testProduct(id string, qty int32) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          "Sneakers " + id,
		PriceMinor:    10000,
		StockQuantity: qty,
		InStock:       qty > 0,
	}
}

func TestCatalog_FindProduct(t *testing.T) {
	catalog := memory.NewCatalog(testProduct("p1", 5))

	p, err := catalog.FindProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if p.StockQuantity != 5 {
		t.Fatalf("expected 5 in stock, got %d", p.StockQuantity)
	}

	if _, err := catalog.FindProduct(context.Background(), "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCatalog_ReserveAllOrNothing(t *testing.T) {
	catalog := memory.NewCatalog(testProduct("p1", 5), testProduct("p2", 1))

	err := catalog.Reserve(context.Background(), []domain.OrderItem{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 3},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Первая позиция не должна быть затронута частичным резервом.
	p1, _ := catalog.FindProduct(context.Background(), "p1")
	if p1.StockQuantity != 5 {
		t.Fatalf("partial reservation leaked: %d", p1.StockQuantity)
	}
}

func TestCatalog_ReserveMarksOutOfStock(t *testing.T) {
	catalog := memory.NewCatalog(testProduct("p1", 2))

	if err := catalog.Reserve(context.Background(), []domain.OrderItem{{ProductID: "p1", Qty: 2}}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	p, _ := catalog.FindProduct(context.Background(), "p1")
	if p.StockQuantity != 0 || p.InStock {
		t.Fatalf("expected exhausted stock, got qty=%d inStock=%v", p.StockQuantity, p.InStock)
	}

	if err := catalog.Release(context.Background(), []domain.OrderItem{{ProductID: "p1", Qty: 2}}); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	p, _ = catalog.FindProduct(context.Background(), "p1")
	if p.StockQuantity != 2 || !p.InStock {
		t.Fatalf("expected restored stock, got qty=%d inStock=%v", p.StockQuantity, p.InStock)
	}
}

func TestCatalog_ConcurrentLastUnit(t *testing.T) {
	catalog := memory.NewCatalog(testProduct("p1", 1))
	items := []domain.OrderItem{{ProductID: "p1", Qty: 1}}

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- catalog.Reserve(context.Background(), items)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one reservation must win the last unit, got %d", succeeded)
	}

	p, _ := catalog.FindProduct(context.Background(), "p1")
	if p.StockQuantity < 0 {
		t.Fatalf("stock went negative: %d", p.StockQuantity)
	}
}
