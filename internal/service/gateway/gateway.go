package gateway

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Gateway — единый контракт платёжного канала. Движок выбирает адаптер по
// тегу метода и не дублирует логику переходов по каналам.
type Gateway interface {
	Method() domain.PaymentMethod
	// Initiate готовит платёж по заказу: intent у провайдера, подписанный
	// redirect-payload или синтетическую запись для наложенного платежа.
	Initiate(ctx context.Context, order domain.Order, principal domain.Principal) (Initiation, error)
	// Verify проверяет доказательство оплаты, не доверяя его источнику:
	// для card — server-side запрос статуса intent'а, для redirect —
	// пересчёт keyed-подписи нотификации.
	Verify(ctx context.Context, proof Proof) (Verification, error)
}

// Initiation — результат инициации платежа. Заполненные поля зависят от канала.
type Initiation struct {
	Method       domain.PaymentMethod
	ExternalID   string
	ClientSecret string
	CheckoutURL  string
	Fields       map[string]string
	Record       domain.PaymentRecord
}

// Proof — доказательство оплаты, предъявленное клиентом или шлюзом.
type Proof struct {
	IntentID     string
	Notification *RedirectNotification
}

// Verification — вердикт канала по предъявленному доказательству.
// OrderID/OwnerID — эхо метаданных, которое движок сверяет с заказом.
type Verification struct {
	Succeeded   bool
	OrderID     string
	OwnerID     string
	AmountMinor int64
	Record      domain.PaymentRecord
}

// RedirectNotification — входящая server-to-server нотификация redirect-шлюза.
// Поля передаются как получены: подпись считается над исходными строками.
type RedirectNotification struct {
	MerchantID     string
	OrderID        string
	Amount         string
	Currency       string
	StatusCode     string
	Signature      string
	Method         string
	StatusMessage  string
	CardHolderName string
	CardNo         string
}
