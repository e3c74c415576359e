package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const cartKeyPrefix = "cart:"

// CartStore хранит корзины покупателей в Redis. Движку от корзины нужна
// только очистка после settlement; наполняет её фронтовый сервис.
type CartStore struct {
	client *redis.Client
}

// NewCartStore подключается к Redis и проверяет соединение.
func NewCartStore(addr, password string, db int) (*CartStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &CartStore{client: client}, nil
}

// Clear удаляет корзину покупателя.
func (s *CartStore) Clear(ctx context.Context, ownerID string) error {
	if err := s.client.Del(ctx, cartKeyPrefix+ownerID).Err(); err != nil {
		return fmt.Errorf("clear cart %s: %w", ownerID, err)
	}
	return nil
}

// Ping проверяет соединение (используется health-чекером).
func (s *CartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis.
func (s *CartStore) Close() error {
	return s.client.Close()
}

var _ domain.CartStore = (*CartStore)(nil)
