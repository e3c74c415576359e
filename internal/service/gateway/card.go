package gateway

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// IntentStatusSucceeded — терминально-успешный статус intent'а у провайдера.
const IntentStatusSucceeded = "succeeded"

// Ключи метаданных intent'а; по ним движок сверяет эхо шлюза с заказом.
const (
	MetadataOrderID   = "order_id"
	MetadataUserID    = "user_id"
	MetadataUserEmail = "user_email"
)

// Intent — платёжный intent карточного провайдера.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Currency     string
	AmountMinor  int64
	Metadata     map[string]string
}

// IntentRequest — параметры создания intent'а.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// CardProvider — клиент внешнего карточного провайдера (внешний коллаборатор).
type CardProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, id string) (Intent, error)
}

// DefaultCardMinAmountMinor — минимальная сумма card-платежа (200.00).
// Ниже порога вызывающему предлагается redirect или наложенный платёж.
const DefaultCardMinAmountMinor = 20000

// CardGateway — synchronous-capture адаптер: intent создаётся на сервере,
// итоговый статус всегда запрашивается у провайдера.
type CardGateway struct {
	provider       CardProvider
	minAmountMinor int64
	logger         *log.Entry
}

// NewCardGateway создаёт адаптер карточного канала.
func NewCardGateway(provider CardProvider, minAmountMinor int64, logger *log.Entry) *CardGateway {
	if logger == nil {
		logger = log.WithField("component", "card-gateway")
	}
	if minAmountMinor <= 0 {
		minAmountMinor = DefaultCardMinAmountMinor
	}
	return &CardGateway{
		provider:       provider,
		minAmountMinor: minAmountMinor,
		logger:         logger,
	}
}

func (g *CardGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodCard
}

// Initiate создаёт intent на полную сумму заказа с метаданными владельца.
func (g *CardGateway) Initiate(ctx context.Context, order domain.Order, principal domain.Principal) (Initiation, error) {
	if order.TotalMinor < g.minAmountMinor {
		return Initiation{}, &domain.AmountBelowMinimumError{
			MinAmountMinor:   g.minAmountMinor,
			SuggestedMethods: []domain.PaymentMethod{domain.PaymentMethodRedirect, domain.PaymentMethodCOD},
		}
	}

	intent, err := g.provider.CreateIntent(ctx, IntentRequest{
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		Metadata: map[string]string{
			MetadataOrderID:   order.ID,
			MetadataUserID:    order.OwnerID,
			MetadataUserEmail: principal.Email,
		},
	})
	if err != nil {
		g.logger.WithError(err).WithField("order_id", order.ID).Warn("create intent failed")
		return Initiation{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	return Initiation{
		Method:       domain.PaymentMethodCard,
		ExternalID:   intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// Verify запрашивает терминальный статус intent'а у провайдера.
// Клиентское "оплата прошла" само по себе ничего не значит.
func (g *CardGateway) Verify(ctx context.Context, proof Proof) (Verification, error) {
	intent, err := g.provider.RetrieveIntent(ctx, proof.IntentID)
	if err != nil {
		g.logger.WithError(err).WithField("intent_id", proof.IntentID).Warn("retrieve intent failed")
		return Verification{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	return Verification{
		Succeeded:   intent.Status == IntentStatusSucceeded,
		OrderID:     intent.Metadata[MetadataOrderID],
		OwnerID:     intent.Metadata[MetadataUserID],
		AmountMinor: intent.AmountMinor,
		Record: domain.PaymentRecord{
			ExternalID: intent.ID,
			Status:     intent.Status,
			VerifiedAt: time.Now().UTC(),
			PayerEmail: intent.Metadata[MetadataUserEmail],
		},
	}, nil
}

var _ Gateway = (*CardGateway)(nil)
