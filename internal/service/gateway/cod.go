package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CODGateway — канал наложенного платежа. Внешней верификации нет: заказ
// подтверждается сразу, деньги собирает курьер при вручении.
type CODGateway struct{}

// NewCODGateway создаёт адаптер наложенного платежа.
func NewCODGateway() *CODGateway {
	return &CODGateway{}
}

func (g *CODGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodCOD
}

// Initiate выдаёт синтетическую платёжную запись: внешнего провайдера нет,
// идентификатор генерируется локально.
func (g *CODGateway) Initiate(_ context.Context, order domain.Order, _ domain.Principal) (Initiation, error) {
	now := time.Now().UTC()
	record := domain.PaymentRecord{
		ExternalID: fmt.Sprintf("cod_%d", now.UnixMilli()),
		Status:     domain.PaymentRecordPendingCollection,
		VerifiedAt: now,
		PayerEmail: order.Address.Email,
	}
	return Initiation{
		Method:     domain.PaymentMethodCOD,
		ExternalID: record.ExternalID,
		Record:     record,
	}, nil
}

// Verify для наложенного платежа не используется: подтверждение происходит
// при создании заказа, отдельного доказательства оплаты не бывает.
func (g *CODGateway) Verify(_ context.Context, _ Proof) (Verification, error) {
	return Verification{}, domain.ErrPaymentMethodInvalid
}

var _ Gateway = (*CODGateway)(nil)
