package notify

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// LogNotifier пишет уведомления в лог вместо отправки писем. Используется,
// пока SMTP-доставка не сконфигурирована.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт лог-реализацию Notifier.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.WithField("component", "notifier")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOrderConfirmation(email string, order domain.Order) error {
	n.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"email":    email,
		"total":    order.TotalMinor,
	}).Info("order confirmation email")
	return nil
}

func (n *LogNotifier) SendStatusUpdate(email string, order domain.Order) error {
	n.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"email":    email,
		"status":   order.Status,
	}).Info("order status update email")
	return nil
}

var _ domain.Notifier = (*LogNotifier)(nil)

// Mock записывает вызовы для проверок в тестах.
type Mock struct {
	mu            sync.Mutex
	Confirmations []string
	StatusUpdates []string

	// FailWith имитирует отказ почтового провайдера.
	FailWith error
}

// NewMock создаёт пустой мок.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) SendOrderConfirmation(email string, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.Confirmations = append(m.Confirmations, order.ID)
	return nil
}

func (m *Mock) SendStatusUpdate(email string, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.StatusUpdates = append(m.StatusUpdates, order.ID)
	return nil
}

// ConfirmationCount возвращает число отправленных подтверждений.
func (m *Mock) ConfirmationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Confirmations)
}

// StatusUpdateCount возвращает число статусных писем.
func (m *Mock) StatusUpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.StatusUpdates)
}

var _ domain.Notifier = (*Mock)(nil)
