package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Reason — машинно-проверяемый код отказа. Вызывающие стороны (включая
// webhook redirect-шлюза) реагируют на коды по-разному: retry, abandon, alert.
type Reason string

const (
	ReasonValidation   Reason = "validation"
	ReasonNotFound     Reason = "not_found"
	ReasonAccessDenied Reason = "access_denied"
	ReasonConflict     Reason = "conflict"
	ReasonIntegrity    Reason = "integrity"
	ReasonUnavailable  Reason = "unavailable"
	ReasonInternal     Reason = "internal"
)

var (
	// Ошибка отсутствующего идентификатора владельца заказа.
	ErrOwnerRequired = errors.New("owner_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка неполного адреса доставки.
	ErrAddressIncomplete = errors.New("shipping address is incomplete")
	// Ошибка неподдерживаемого платёжного метода.
	ErrPaymentMethodInvalid = errors.New("invalid payment method")
	// Ошибка отрицательной суммы.
	ErrAmountNegative = errors.New("amount must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия зафиксированных сумм заказа и сумм позиций.
	ErrAmountMismatchInvariant = errors.New("order totals do not match items sum")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается каталогом, если товар не существует.
	ErrProductNotFound = errors.New("product not found")

	// ErrAccessDenied — запрашивающий принципал не владеет заказом и не админ.
	ErrAccessDenied = errors.New("access denied")
	// ErrPaymentMetadataMismatch — метаданные intent'а (order id / user id)
	// не совпадают с заказом; трактуется как отказ в доступе.
	ErrPaymentMetadataMismatch = errors.New("payment metadata mismatch")
	// ErrSignatureMismatch — подпись нотификации redirect-шлюза не сошлась.
	ErrSignatureMismatch = errors.New("notification signature mismatch")

	// ErrOrderStateConflict — заказ не в том статусе, который требует переход
	// (например повторное подтверждение уже подтверждённого заказа).
	ErrOrderStateConflict = errors.New("order is not in the expected status")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")

	// ErrAmountMismatch — предъявленная сумма платежа не равна totalAmount
	// заказа с точностью до цента. Жёсткий отказ, заказ остаётся payment_pending.
	ErrAmountMismatch = errors.New("payment amount does not match order total")

	// ErrNotificationMalformed — нотификация шлюза подписана верно, но поле
	// не разбирается (например сумма не в формате "1234.50").
	ErrNotificationMalformed = errors.New("notification payload is malformed")

	// ErrAmountBelowMinimum — card-канал не принимает суммы ниже порога;
	// вызывающему предлагается redirect или наложенный платёж.
	ErrAmountBelowMinimum = errors.New("amount is below card payment minimum")
	// ErrProductOutOfStock — товар помечен как отсутствующий.
	ErrProductOutOfStock = errors.New("product is out of stock")
	// ErrInsufficientStock — доступного остатка меньше запрошенного количества.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPaymentNotSucceeded — провайдер сообщил нетерминально-успешный статус intent'а.
	ErrPaymentNotSucceeded = errors.New("payment is not successful")

	// ErrGatewayUnavailable — платёжный провайдер недоступен; вызывающий может повторить.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// AmountBelowMinimumError уточняет ErrAmountBelowMinimum: несёт порог канала
// и методы, которыми заказ на эту сумму всё-таки можно оплатить. Вызывающие
// стороны показывают список покупателю вместо голого отказа.
type AmountBelowMinimumError struct {
	MinAmountMinor   int64
	SuggestedMethods []PaymentMethod
}

func (e *AmountBelowMinimumError) Error() string {
	methods := make([]string, 0, len(e.SuggestedMethods))
	for _, m := range e.SuggestedMethods {
		methods = append(methods, string(m))
	}
	return fmt.Sprintf("%s: minimum is %d minor units, try: %s",
		ErrAmountBelowMinimum, e.MinAmountMinor, strings.Join(methods, ", "))
}

func (e *AmountBelowMinimumError) Unwrap() error { return ErrAmountBelowMinimum }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// ReasonOf классифицирует ошибку по таксономии отказов.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrProductNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrAccessDenied),
		errors.Is(err, ErrPaymentMetadataMismatch),
		errors.Is(err, ErrSignatureMismatch):
		return ReasonAccessDenied
	case errors.Is(err, ErrOrderStateConflict), errors.Is(err, ErrOrderVersionConflict):
		return ReasonConflict
	case errors.Is(err, ErrAmountMismatch):
		return ReasonIntegrity
	case errors.Is(err, ErrGatewayUnavailable):
		return ReasonUnavailable
	case errors.Is(err, ErrOwnerRequired),
		errors.Is(err, ErrCurrencyRequired),
		errors.Is(err, ErrItemsRequired),
		errors.Is(err, ErrAddressIncomplete),
		errors.Is(err, ErrPaymentMethodInvalid),
		errors.Is(err, ErrAmountNegative),
		errors.Is(err, ErrItemQtyInvalid),
		errors.Is(err, ErrItemPriceInvalid),
		errors.Is(err, ErrAmountMismatchInvariant),
		errors.Is(err, ErrAmountBelowMinimum),
		errors.Is(err, ErrNotificationMalformed),
		errors.Is(err, ErrProductOutOfStock),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrPaymentNotSucceeded):
		return ReasonValidation
	default:
		return ReasonInternal
	}
}
