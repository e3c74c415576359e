package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в магазине.
type OrderStatus string

const (
	// OrderStatusPaymentPending — заказ создан, ждём подтверждения оплаты от внешнего канала.
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	// OrderStatusConfirmed — оплата подтверждена (или выбран наложенный платёж), сток зарезервирован.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ собирается на складе.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю. Терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён. Терминальный статус, заказы никогда не удаляются.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentMethod — закрытый набор платёжных каналов.
type PaymentMethod string

const (
	// PaymentMethodCard — синхронный card capture: intent создаётся на сервере,
	// итоговый статус запрашивается у провайдера, клиентскому "оплачено" не доверяем.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodRedirect — redirect-шлюз: подтверждение приходит
	// server-to-server нотификацией с keyed-подписью.
	PaymentMethodRedirect PaymentMethod = "redirect"
	// PaymentMethodCOD — наложенный платёж: внешней верификации нет,
	// заказ подтверждается сразу при создании.
	PaymentMethodCOD PaymentMethod = "cod"
)

// Valid проверяет, что метод входит в поддерживаемый набор.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodRedirect, PaymentMethodCOD:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным (переходов из него нет).
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// fulfillmentRank задаёт порядок fulfillment-статусов для forward-only переходов админа.
var fulfillmentRank = map[OrderStatus]int{
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// CanAdminTransition проверяет допустимость административного перехода:
// любой шаг вперёд по fulfillment-цепочке либо отмена из нетерминального статуса.
func (s OrderStatus) CanAdminTransition(to OrderStatus) bool {
	if to == OrderStatusCancelled {
		return !s.Terminal()
	}
	from, ok := fulfillmentRank[s]
	if !ok {
		return false
	}
	target, ok := fulfillmentRank[to]
	if !ok {
		return false
	}
	return target > from
}

// InventoryReserved сообщает, удерживает ли заказ в этом статусе складской резерв.
// Для payment_pending резерв откладывается до подтверждения оплаты.
func (s OrderStatus) InventoryReserved() bool {
	_, ok := fulfillmentRank[s]
	return ok
}

// OrderItem — позиция заказа со снапшотом имени и цены на момент создания.
// Последующие правки каталога не меняют уже размещённый заказ.
type OrderItem struct {
	ProductID  string
	Name       string
	PriceMinor int64
	Size       string
	Qty        int32
}

// ShippingAddress — денормализованная копия адреса, обязательна при создании
// и неизменяема после.
type ShippingAddress struct {
	FirstName string
	LastName  string
	Email     string
	Street    string
	City      string
	State     string
	Zipcode   string
	Country   string
	Phone     string
}

// Complete проверяет, что все обязательные поля адреса заполнены.
func (a ShippingAddress) Complete() bool {
	for _, field := range []string{
		a.FirstName, a.LastName, a.Email, a.Street,
		a.City, a.State, a.Zipcode, a.Country, a.Phone,
	} {
		if field == "" {
			return false
		}
	}
	return true
}

// PaymentRecord хранит результат взаимодействия с платёжным каналом.
// Мутируется только reconciliation-движком.
type PaymentRecord struct {
	ExternalID  string
	Status      string
	VerifiedAt  time.Time
	PayerEmail  string
	CancelledAt *time.Time
}

// Статусы PaymentRecord.Status.
const (
	PaymentRecordSucceeded         = "succeeded"
	PaymentRecordCompleted         = "completed"
	PaymentRecordPendingCollection = "pending-collection"
	PaymentRecordCancelled         = "cancelled"
	PaymentRecordAbandoned         = "abandoned"
)

// Order агрегирует состояние заказа, его позиции и платёжную запись.
type Order struct {
	ID      string
	OwnerID string
	Status  OrderStatus
	Method  PaymentMethod

	Items   []OrderItem
	Address ShippingAddress
	Payment PaymentRecord

	Currency         string
	SubtotalMinor    int64
	ShippingFeeMinor int64
	// TotalMinor фиксируется при создании и больше не пересчитывается: это
	// единственная сумма, с которой сверяются платёжные подтверждения.
	TotalMinor int64

	IsSettled   bool
	SettledAt   *time.Time
	DeliveredAt *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OwnerID == "" {
		errs = append(errs, ErrOwnerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if !o.Method.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Address.Complete() {
		errs = append(errs, ErrAddressIncomplete)
	}
	if o.ShippingFeeMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем зафиксированные суммы с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrAmountMismatchInvariant)
	}
	if o.TotalMinor != o.SubtotalMinor+o.ShippingFeeMinor {
		errs = append(errs, ErrAmountMismatchInvariant)
	}

	return errs
}
