package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByOwner возвращает заказы покупателя, новые первыми, с опциональным
	// лимитом. Заказы в payment_pending скрываются, если includePending=false.
	ListByOwner(ownerID string, limit int, includePending bool) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking:
	// запись обновляется только если её версия совпадает с order.Version,
	// иначе возвращается ErrOrderVersionConflict. Этим условием
	// сериализуются конкурирующие переходы из payment_pending.
	Save(order Order) error
	// CancelAbandoned условно отменяет заказы, застрявшие в payment_pending
	// дольше порога: статус меняется только у записей, всё ещё находящихся в
	// payment_pending, поэтому гонка с параллельным подтверждением безопасна.
	// Возвращает число отменённых заказов.
	CancelAbandoned(before time.Time, limit int) (int, error)
}
