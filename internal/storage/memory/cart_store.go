package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CartStore — in-memory хранилище корзин. В проде корзины живут в Redis,
// эта реализация служит фоллбеком и тестам.
type CartStore struct {
	mu    sync.Mutex
	carts map[string][]domain.OrderItem
}

// NewCartStore создаёт пустое хранилище корзин.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string][]domain.OrderItem)}
}

// Put кладёт корзину покупателя (сидинг в тестах).
func (s *CartStore) Put(ownerID string, items []domain.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[ownerID] = items
}

// Get возвращает корзину покупателя.
func (s *CartStore) Get(ownerID string) []domain.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[ownerID]
}

// Clear удаляет корзину покупателя после settlement.
func (s *CartStore) Clear(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, ownerID)
	return nil
}

var _ domain.CartStore = (*CartStore)(nil)
