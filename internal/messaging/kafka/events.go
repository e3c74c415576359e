package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderConfirmed     EventType = "order.confirmed"
	EventTypeOrderCancelled     EventType = "order.cancelled"
	EventTypeOrderStatusChanged EventType = "order.status_changed"

	// Payment события
	EventTypePaymentVerified EventType = "payment.verified"
	EventTypePaymentRejected EventType = "payment.rejected"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа для admin live-view и аналитики.
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	OwnerID   string                 `json:"owner_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, ownerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		OwnerID:   ownerID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// eventTypeOf переводит внутреннее имя события из outbox в wire-формат topic'а.
// Неизвестные имена уходят как есть: новый тип события не должен ломать publish.
func eventTypeOf(name string) EventType {
	switch name {
	case "OrderCreated":
		return EventTypeOrderCreated
	case "OrderConfirmed":
		return EventTypeOrderConfirmed
	case "OrderCancelled":
		return EventTypeOrderCancelled
	case "OrderStatusChanged":
		return EventTypeOrderStatusChanged
	case "PaymentVerified":
		return EventTypePaymentVerified
	case "PaymentRejected":
		return EventTypePaymentRejected
	default:
		return EventType(name)
	}
}
