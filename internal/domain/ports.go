package domain

import (
	"context"
	"time"
)

// Catalog описывает read-модель каталога товаров (внешний коллаборатор).
type Catalog interface {
	// FindProduct возвращает товар или ErrProductNotFound.
	FindProduct(ctx context.Context, id string) (Product, error)
}

// InventoryLedger мутирует складские остатки. Оба метода атомарны по каждому
// товару (compare-and-decrement, не read-modify-write) и all-or-nothing по
// всему набору позиций: при нехватке стока ни одна позиция не резервируется.
type InventoryLedger interface {
	// Reserve атомарно уменьшает остаток по каждой позиции; при исчерпании
	// остатка выставляет флаг out-of-stock.
	Reserve(ctx context.Context, items []OrderItem) error
	// Release возвращает остаток (компенсация при отмене) и снимает флаг out-of-stock.
	Release(ctx context.Context, items []OrderItem) error
}

// CartStore очищает корзину покупателя после settlement.
type CartStore interface {
	Clear(ctx context.Context, ownerID string) error
}

// Notifier отправляет письма покупателю. Вызовы fire-and-forget: ошибки
// логируются и никогда не откатывают переход статуса.
type Notifier interface {
	SendOrderConfirmation(email string, order Order) error
	SendStatusUpdate(email string, order Order) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа (audit trail).
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
