package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish превращает outbox-запись в OrderEvent и отправляет его в topic.
// Ключ — id заказа, чтобы события одного заказа попадали в одну партицию.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	var metadata map[string]interface{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &metadata); err != nil {
			return fmt.Errorf("decode outbox payload %s: %w", event.ID, err)
		}
	}
	ownerID, _ := metadata["owner_id"].(string)
	status, _ := metadata["status"].(string)

	orderEvent := NewOrderEvent(eventTypeOf(event.EventType), event.AggregateID, ownerID, status, metadata)
	return p.producer.PublishEvent(p.topic, key, orderEvent)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

// DLQPublisher отправляет неопубликованные сообщения в dead letter queue,
// помечая их retry-заголовками для последующей переобработки.
type DLQPublisher struct {
	producer *Producer
	topic    string
}

// NewDLQPublisher создаёт паблишер dead letter queue.
func NewDLQPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DLQPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *DLQPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	// Конверт воркера несёт число попыток и последнюю ошибку публикации;
	// в DLQ они дублируются заголовками, чтобы переобработка не парсила тело.
	var failure struct {
		Attempts     int    `json:"attempts"`
		PublishError string `json:"publish_error"`
	}
	_ = json.Unmarshal(event.Payload, &failure)

	headers := map[string]string{
		HeaderOriginalTopic: TopicOrderEvents,
		HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if failure.Attempts > 0 {
		headers[HeaderRetryCount] = strconv.Itoa(failure.Attempts)
	}
	if failure.PublishError != "" {
		headers[HeaderErrorMessage] = failure.PublishError
	}
	return p.producer.PublishRaw(p.topic, key, event.Payload, headers)
}

var _ domain.OutboxPublisher = (*DLQPublisher)(nil)
