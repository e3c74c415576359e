package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog — in-memory каталог с функциями складского леджера. Резерв
// выполняется как compare-and-decrement под общим мьютексом и all-or-nothing
// по всему набору позиций.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewCatalog создаёт каталог с начальным набором товаров.
func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// FindProduct возвращает товар или ErrProductNotFound.
func (c *Catalog) FindProduct(_ context.Context, id string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	product, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Put добавляет или заменяет товар (используется в тестах и сидинге).
func (c *Catalog) Put(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// Reserve атомарно уменьшает остаток по каждой позиции. Сначала проверяется
// весь набор, затем применяется: при нехватке стока ни одна позиция не
// меняется.
func (c *Catalog) Reserve(_ context.Context, items []domain.OrderItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range items {
		product, ok := c.products[item.ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
		if product.StockQuantity < item.Qty {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, product.Name)
		}
	}

	for _, item := range items {
		product := c.products[item.ProductID]
		product.StockQuantity -= item.Qty
		if product.StockQuantity <= 0 {
			product.InStock = false
		}
		c.products[item.ProductID] = product
	}
	return nil
}

// Release возвращает остаток и снимает флаг out-of-stock.
func (c *Catalog) Release(_ context.Context, items []domain.OrderItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range items {
		product, ok := c.products[item.ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
		product.StockQuantity += item.Qty
		product.InStock = true
		c.products[item.ProductID] = product
	}
	return nil
}

var (
	_ domain.Catalog         = (*Catalog)(nil)
	_ domain.InventoryLedger = (*Catalog)(nil)
)
