package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockCardProvider — in-memory карточный провайдер для тестов и локальной
// разработки. Статус intent'а переключается вручную через SucceedIntent.
type MockCardProvider struct {
	mu      sync.Mutex
	seq     int
	intents map[string]Intent

	// FailCreate и FailRetrieve имитируют недоступность провайдера.
	FailCreate   error
	FailRetrieve error
}

// NewMockCardProvider создаёт пустой мок провайдера.
func NewMockCardProvider() *MockCardProvider {
	return &MockCardProvider{intents: make(map[string]Intent)}
}

func (m *MockCardProvider) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return Intent{}, m.FailCreate
	}

	m.seq++
	md := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		md[k] = v
	}
	intent := Intent{
		ID:           fmt.Sprintf("pi_mock_%d", m.seq),
		ClientSecret: fmt.Sprintf("pi_mock_%d_secret", m.seq),
		Status:       "requires_payment_method",
		Currency:     req.Currency,
		AmountMinor:  req.AmountMinor,
		Metadata:     md,
	}
	m.intents[intent.ID] = intent
	return intent, nil
}

func (m *MockCardProvider) RetrieveIntent(_ context.Context, id string) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRetrieve != nil {
		return Intent{}, m.FailRetrieve
	}

	intent, ok := m.intents[id]
	if !ok {
		return Intent{}, fmt.Errorf("intent %s not found", id)
	}
	return intent, nil
}

// SucceedIntent переводит intent в терминально-успешный статус.
func (m *MockCardProvider) SucceedIntent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intent, ok := m.intents[id]; ok {
		intent.Status = IntentStatusSucceeded
		m.intents[id] = intent
	}
}

// SetStatus выставляет произвольный статус intent'а.
func (m *MockCardProvider) SetStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intent, ok := m.intents[id]; ok {
		intent.Status = status
		m.intents[id] = intent
	}
}

var _ CardProvider = (*MockCardProvider)(nil)

// StubGateway — управляемый шлюз для тестов движка.
type StubGateway struct {
	MethodTag    domain.PaymentMethod
	InitiateFn   func(ctx context.Context, order domain.Order, principal domain.Principal) (Initiation, error)
	VerifyFn     func(ctx context.Context, proof Proof) (Verification, error)
	InitiateSeen int
	VerifySeen   int
}

func (s *StubGateway) Method() domain.PaymentMethod { return s.MethodTag }

func (s *StubGateway) Initiate(ctx context.Context, order domain.Order, principal domain.Principal) (Initiation, error) {
	s.InitiateSeen++
	if s.InitiateFn == nil {
		return Initiation{Method: s.MethodTag}, nil
	}
	return s.InitiateFn(ctx, order, principal)
}

func (s *StubGateway) Verify(ctx context.Context, proof Proof) (Verification, error) {
	s.VerifySeen++
	if s.VerifyFn == nil {
		return Verification{}, nil
	}
	return s.VerifyFn(ctx, proof)
}

var _ Gateway = (*StubGateway)(nil)
