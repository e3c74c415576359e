package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
)

// Типы событий жизненного цикла заказа.
const (
	EventOrderCreated       = "OrderCreated"
	EventOrderConfirmed     = "OrderConfirmed"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentVerified    = "PaymentVerified"
	EventPaymentRejected    = "PaymentRejected"
)

// Источники отмены заказа для метрик и timeline.
const (
	CancelSourceCustomer = "customer"
	CancelSourceAdmin    = "admin"
	CancelSourceGateway  = "gateway"
	CancelSourceSweeper  = "sweeper"
)

// DefaultShippingFeeMinor — фиксированная стоимость доставки (10.00).
const DefaultShippingFeeMinor = 1000

// ItemRequest — позиция корзины в запросе на создание заказа.
type ItemRequest struct {
	ProductID string
	Size      string
	Qty       int32
}

// CreateOrderRequest — входные данные создания заказа.
type CreateOrderRequest struct {
	Method  domain.PaymentMethod
	Items   []ItemRequest
	Address domain.ShippingAddress
}

// PaymentStatusView — проекция платёжного состояния заказа.
type PaymentStatusView struct {
	OrderID   string
	Status    domain.OrderStatus
	Method    domain.PaymentMethod
	IsSettled bool
	SettledAt *time.Time
	Payment   domain.PaymentRecord
}

// Deps — зависимости reconciliation-движка.
type Deps struct {
	Orders   domain.OrderRepository
	Catalog  domain.Catalog
	Ledger   domain.InventoryLedger
	Carts    domain.CartStore
	Notifier domain.Notifier
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
	Gateways []gateway.Gateway

	Logger  *log.Entry
	Metrics *metrics.CheckoutMetrics

	ShippingFeeMinor int64
	Currency         string
}

// Engine — reconciliation-движок заказов: единственный компонент, которому
// разрешено менять статус заказа. Все переходы из payment_pending выполняются
// условно (version CAS), поэтому дубликаты webhook'ов и гонки confirm/cancel/
// sweep разрешаются детерминированно.
type Engine struct {
	orders   domain.OrderRepository
	catalog  domain.Catalog
	ledger   domain.InventoryLedger
	carts    domain.CartStore
	notifier domain.Notifier
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	gateways map[domain.PaymentMethod]gateway.Gateway

	logger  *log.Entry
	metrics *metrics.CheckoutMetrics

	shippingFeeMinor int64
	currency         string
}

// NewEngine создаёт движок из набора зависимостей.
func NewEngine(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	fee := deps.ShippingFeeMinor
	if fee < 0 {
		fee = DefaultShippingFeeMinor
	}
	gateways := make(map[domain.PaymentMethod]gateway.Gateway, len(deps.Gateways))
	for _, gw := range deps.Gateways {
		gateways[gw.Method()] = gw
	}
	return &Engine{
		orders:           deps.Orders,
		catalog:          deps.Catalog,
		ledger:           deps.Ledger,
		carts:            deps.Carts,
		notifier:         deps.Notifier,
		outbox:           deps.Outbox,
		timeline:         deps.Timeline,
		gateways:         gateways,
		logger:           logger,
		metrics:          deps.Metrics,
		shippingFeeMinor: fee,
		currency:         deps.Currency,
	}
}

// CreateOrder валидирует корзину против живого каталога, снапшотит имена и
// цены позиций и создаёт заказ. Для card/redirect заказ остаётся в
// payment_pending без резерва стока; для наложенного платежа резерв и
// settlement происходят немедленно.
func (e *Engine) CreateOrder(ctx context.Context, principal domain.Principal, req CreateOrderRequest) (domain.Order, error) {
	if principal.ID == "" {
		return domain.Order{}, domain.ErrOwnerRequired
	}
	if !req.Method.Valid() {
		return domain.Order{}, domain.ErrPaymentMethodInvalid
	}
	if len(req.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}
	if !req.Address.Complete() {
		return domain.Order{}, domain.ErrAddressIncomplete
	}

	items, subtotal, err := e.snapshotItems(ctx, req.Items)
	if err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:               uuid.NewString(),
		OwnerID:          principal.ID,
		Status:           domain.OrderStatusPaymentPending,
		Method:           req.Method,
		Items:            items,
		Address:          req.Address,
		Currency:         e.currency,
		SubtotalMinor:    subtotal,
		ShippingFeeMinor: e.shippingFeeMinor,
		TotalMinor:       subtotal + e.shippingFeeMinor,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	if req.Method == domain.PaymentMethodCOD {
		return e.createCashOnDelivery(ctx, principal, order)
	}

	if err := e.orders.Create(order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordOrderCreated(string(order.Method))
		e.metrics.PendingOrderOpened()
	}
	e.emitEvent(&order, EventOrderCreated, map[string]interface{}{
		"method": string(order.Method),
		"total":  order.TotalMinor,
		"ts":     now.Format(time.RFC3339Nano),
	})
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"method":   order.Method,
		"total":    order.TotalMinor,
	}).Info("order created, awaiting payment")
	return order, nil
}

// createCashOnDelivery резервирует сток и сразу подтверждает заказ:
// внешней верификации у наложенного платежа нет.
func (e *Engine) createCashOnDelivery(ctx context.Context, principal domain.Principal, order domain.Order) (domain.Order, error) {
	gw, ok := e.gateways[domain.PaymentMethodCOD]
	if !ok {
		return domain.Order{}, domain.ErrPaymentMethodInvalid
	}
	init, err := gw.Initiate(ctx, order, principal)
	if err != nil {
		return domain.Order{}, err
	}

	// Резерв до записи заказа: при нехватке стока заказ не создаётся вовсе.
	if err := e.ledger.Reserve(ctx, order.Items); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order.Status = domain.OrderStatusConfirmed
	order.IsSettled = true
	order.SettledAt = &now
	order.Payment = init.Record
	order.UpdatedAt = now

	if err := e.orders.Create(order); err != nil {
		e.releaseInventory(ctx, &order)
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RecordOrderCreated(string(order.Method))
		e.metrics.RecordOrderConfirmed(string(order.Method))
	}
	e.settlementSideEffects(ctx, &order)
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"total":    order.TotalMinor,
	}).Info("cash on delivery order confirmed")
	return order, nil
}

// snapshotItems сверяет каждую позицию с каталогом и фиксирует имя и цену
// на момент создания. Любая невалидная позиция отклоняет весь заказ.
func (e *Engine) snapshotItems(ctx context.Context, reqs []ItemRequest) ([]domain.OrderItem, int64, error) {
	items := make([]domain.OrderItem, 0, len(reqs))
	var subtotal int64
	for _, r := range reqs {
		if r.Qty <= 0 {
			return nil, 0, domain.ErrItemQtyInvalid
		}
		product, err := e.catalog.FindProduct(ctx, r.ProductID)
		if err != nil {
			return nil, 0, err
		}
		if !product.InStock {
			return nil, 0, fmt.Errorf("%w: %s", domain.ErrProductOutOfStock, product.Name)
		}
		if product.StockQuantity < r.Qty {
			return nil, 0, fmt.Errorf("%w: %s", domain.ErrInsufficientStock, product.Name)
		}
		items = append(items, domain.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			PriceMinor: product.PriceMinor,
			Size:       r.Size,
			Qty:        r.Qty,
		})
		subtotal += int64(r.Qty) * product.PriceMinor
	}
	return items, subtotal, nil
}

// CreateCardIntent создаёт платёжный intent для заказа в payment_pending.
// Минимальный порог суммы проверяет сам card-адаптер.
func (e *Engine) CreateCardIntent(ctx context.Context, principal domain.Principal, orderID string) (gateway.Initiation, error) {
	order, err := e.ownedOrder(principal, orderID)
	if err != nil {
		return gateway.Initiation{}, err
	}
	if order.Method != domain.PaymentMethodCard {
		return gateway.Initiation{}, domain.ErrPaymentMethodInvalid
	}
	if order.Status != domain.OrderStatusPaymentPending {
		return gateway.Initiation{}, domain.ErrOrderStateConflict
	}

	gw := e.gateways[domain.PaymentMethodCard]
	if gw == nil {
		return gateway.Initiation{}, domain.ErrPaymentMethodInvalid
	}
	init, err := gw.Initiate(ctx, order, principal)
	if err != nil {
		return gateway.Initiation{}, err
	}

	// Intent id сохраняется best-effort: истина о платеже всё равно приходит
	// из server-side верификации, а не из этой записи.
	order.Payment.ExternalID = init.ExternalID
	order.UpdatedAt = time.Now().UTC()
	if err := e.orders.Save(order); err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Warn("persist intent id failed")
	}
	return init, nil
}

// InitiateRedirect собирает подписанный payload для hosted-страницы шлюза.
func (e *Engine) InitiateRedirect(ctx context.Context, principal domain.Principal, orderID string) (gateway.Initiation, error) {
	order, err := e.ownedOrder(principal, orderID)
	if err != nil {
		return gateway.Initiation{}, err
	}
	if order.Method != domain.PaymentMethodRedirect {
		return gateway.Initiation{}, domain.ErrPaymentMethodInvalid
	}
	if order.Status != domain.OrderStatusPaymentPending {
		return gateway.Initiation{}, domain.ErrOrderStateConflict
	}

	gw := e.gateways[domain.PaymentMethodRedirect]
	if gw == nil {
		return gateway.Initiation{}, domain.ErrPaymentMethodInvalid
	}
	return gw.Initiate(ctx, order, principal)
}

// ConfirmCardPayment — client-initiated подтверждение card-платежа. Клиентскому
// "оплачено" движок не верит: статус intent'а запрашивается у провайдера, эхо
// метаданных сверяется с заказом, сумма сверяется с total до цента.
func (e *Engine) ConfirmCardPayment(ctx context.Context, principal domain.Principal, orderID, intentID string) (domain.Order, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordConfirmDuration(time.Since(start))
		}
	}()

	order, err := e.ownedOrder(principal, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Method != domain.PaymentMethodCard {
		return domain.Order{}, domain.ErrPaymentMethodInvalid
	}

	// Повторное подтверждение того же intent'а — no-op, не ошибка.
	if order.Status == domain.OrderStatusConfirmed && order.Payment.ExternalID == intentID {
		return order, nil
	}
	if order.Status != domain.OrderStatusPaymentPending {
		return domain.Order{}, domain.ErrOrderStateConflict
	}

	gw := e.gateways[domain.PaymentMethodCard]
	if gw == nil {
		return domain.Order{}, domain.ErrPaymentMethodInvalid
	}
	verification, err := gw.Verify(ctx, gateway.Proof{IntentID: intentID})
	if err != nil {
		return domain.Order{}, err
	}
	if !verification.Succeeded {
		e.rejectConfirm("not_succeeded")
		e.emitEvent(&order, EventPaymentRejected, map[string]interface{}{
			"reason": "not_succeeded",
			"method": string(order.Method),
		})
		return domain.Order{}, domain.ErrPaymentNotSucceeded
	}
	if verification.OrderID != order.ID || verification.OwnerID != order.OwnerID {
		e.rejectConfirm("metadata_mismatch")
		e.logger.WithFields(log.Fields{
			"order_id":  order.ID,
			"echo":      verification.OrderID,
			"echo_user": verification.OwnerID,
		}).Warn("intent metadata does not match order")
		return domain.Order{}, domain.ErrPaymentMetadataMismatch
	}
	if verification.AmountMinor != order.TotalMinor {
		e.rejectConfirm("amount_mismatch")
		e.logger.WithFields(log.Fields{
			"order_id":  order.ID,
			"presented": verification.AmountMinor,
			"expected":  order.TotalMinor,
		}).Warn("payment amount does not match order total")
		e.emitEvent(&order, EventPaymentRejected, map[string]interface{}{
			"reason": "amount_mismatch",
			"method": string(order.Method),
		})
		return domain.Order{}, domain.ErrAmountMismatch
	}

	e.emitEvent(&order, EventPaymentVerified, map[string]interface{}{
		"method":      string(order.Method),
		"external_id": verification.Record.ExternalID,
		"amount":      verification.AmountMinor,
	})
	return e.confirm(ctx, order, verification.Record)
}

// HandleRedirectNotification обрабатывает server-to-server нотификацию
// redirect-шлюза. Подпись проверяется до любого чтения состояния; валидная
// нотификация с не-успешным кодом условно отменяет ожидающий заказ.
func (e *Engine) HandleRedirectNotification(ctx context.Context, n *gateway.RedirectNotification) error {
	gw := e.gateways[domain.PaymentMethodRedirect]
	if gw == nil {
		return domain.ErrPaymentMethodInvalid
	}
	verification, err := gw.Verify(ctx, gateway.Proof{Notification: n})
	if err != nil {
		return err
	}

	order, err := e.orders.Get(verification.OrderID)
	if err != nil {
		return err
	}
	if order.Method != domain.PaymentMethodRedirect {
		return domain.ErrPaymentMethodInvalid
	}

	if !verification.Succeeded {
		_, err := e.cancelPending(ctx, order, verification.Record, CancelSourceGateway)
		return err
	}

	// Повторная доставка успешной нотификации — no-op.
	if order.Status == domain.OrderStatusConfirmed {
		return nil
	}
	if order.Status != domain.OrderStatusPaymentPending {
		return domain.ErrOrderStateConflict
	}
	if verification.AmountMinor != order.TotalMinor {
		e.rejectConfirm("amount_mismatch")
		e.logger.WithFields(log.Fields{
			"order_id":  order.ID,
			"presented": verification.AmountMinor,
			"expected":  order.TotalMinor,
		}).Warn("notification amount does not match order total")
		e.emitEvent(&order, EventPaymentRejected, map[string]interface{}{
			"reason": "amount_mismatch",
			"method": string(order.Method),
		})
		// Заказ остаётся payment_pending: расхождение может быть ошибкой
		// вызывающего, sweep заберёт его позже.
		return domain.ErrAmountMismatch
	}

	record := verification.Record
	record.PayerEmail = order.Address.Email
	e.emitEvent(&order, EventPaymentVerified, map[string]interface{}{
		"method":      string(order.Method),
		"external_id": record.ExternalID,
		"amount":      verification.AmountMinor,
	})
	_, err = e.confirm(ctx, order, record)
	return err
}

// confirm выполняет settlement: резерв стока, затем условный переход
// payment_pending -> confirmed. Резерв идёт первым, чтобы заказ никогда не
// оказался confirmed без попытки резервирования; при проигрыше version CAS
// резерв компенсируется release.
func (e *Engine) confirm(ctx context.Context, order domain.Order, record domain.PaymentRecord) (domain.Order, error) {
	if err := e.ledger.Reserve(ctx, order.Items); err != nil {
		e.rejectConfirm("reserve_failed")
		e.logger.WithError(err).WithField("order_id", order.ID).Warn("inventory reservation failed, order stays pending")
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order.Status = domain.OrderStatusConfirmed
	order.IsSettled = true
	order.SettledAt = &now
	order.Payment = record
	order.UpdatedAt = now

	if err := e.orders.Save(order); err != nil {
		e.releaseInventory(ctx, &order)
		if !domain.IsVersionConflict(err) {
			return domain.Order{}, fmt.Errorf("persist confirmation: %w", err)
		}
		if e.metrics != nil {
			e.metrics.RecordVersionConflict()
		}
		// Кто-то успел раньше: дубликат того же платежа считается успехом,
		// любой другой исход — конфликтом.
		fresh, loadErr := e.orders.Get(order.ID)
		if loadErr != nil {
			return domain.Order{}, loadErr
		}
		if fresh.Status == domain.OrderStatusConfirmed && fresh.Payment.ExternalID == record.ExternalID {
			return fresh, nil
		}
		return domain.Order{}, domain.ErrOrderStateConflict
	}
	order.Version++

	if e.metrics != nil {
		e.metrics.RecordOrderConfirmed(string(order.Method))
		e.metrics.PendingOrderClosed()
	}
	e.settlementSideEffects(ctx, &order)
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"method":   order.Method,
		"external": record.ExternalID,
	}).Info("payment confirmed, order settled")
	return order, nil
}

// CancelPendingPayment отменяет заказ, ожидающий оплату. Терминальный заказ —
// no-op, заказ в fulfillment — конфликт (для него есть CustomerCancel).
func (e *Engine) CancelPendingPayment(ctx context.Context, principal domain.Principal, orderID string) (domain.Order, error) {
	order, err := e.ownedOrder(principal, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.Terminal() {
		return order, nil
	}
	if order.Status != domain.OrderStatusPaymentPending {
		return domain.Order{}, domain.ErrOrderStateConflict
	}

	record := order.Payment
	record.Status = domain.PaymentRecordCancelled
	return e.cancelPending(ctx, order, record, CancelSourceCustomer)
}

// cancelPending условно переводит payment_pending -> cancelled.
func (e *Engine) cancelPending(ctx context.Context, order domain.Order, record domain.PaymentRecord, source string) (domain.Order, error) {
	if order.Status.Terminal() {
		return order, nil
	}
	if order.Status != domain.OrderStatusPaymentPending {
		return domain.Order{}, domain.ErrOrderStateConflict
	}

	now := time.Now().UTC()
	record.CancelledAt = &now
	order.Status = domain.OrderStatusCancelled
	order.Payment = record
	order.UpdatedAt = now

	if err := e.orders.Save(order); err != nil {
		if !domain.IsVersionConflict(err) {
			return domain.Order{}, fmt.Errorf("persist cancellation: %w", err)
		}
		if e.metrics != nil {
			e.metrics.RecordVersionConflict()
		}
		fresh, loadErr := e.orders.Get(order.ID)
		if loadErr != nil {
			return domain.Order{}, loadErr
		}
		if fresh.Status.Terminal() {
			return fresh, nil
		}
		return domain.Order{}, domain.ErrOrderStateConflict
	}
	order.Version++

	if e.metrics != nil {
		e.metrics.RecordOrderCancelled(source)
		e.metrics.PendingOrderClosed()
	}
	e.emitEvent(&order, EventOrderCancelled, map[string]interface{}{
		"reason": source,
		"ts":     now.Format(time.RFC3339Nano),
	})
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"source":   source,
	}).Info("pending order cancelled")
	return order, nil
}

// CustomerCancel отменяет собственный заказ покупателя из любого
// нетерминального статуса. Уже зарезервированный сток возвращается.
func (e *Engine) CustomerCancel(ctx context.Context, principal domain.Principal, orderID string) (domain.Order, error) {
	order, err := e.ownedOrder(principal, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusCancelled {
		return order, nil
	}
	if order.Status == domain.OrderStatusDelivered {
		return domain.Order{}, domain.ErrOrderStateConflict
	}
	return e.cancelActive(ctx, order, CancelSourceCustomer)
}

// cancelActive отменяет заказ из любого нетерминального статуса; возвращает
// сток, если он был зарезервирован на момент отмены.
func (e *Engine) cancelActive(ctx context.Context, order domain.Order, source string) (domain.Order, error) {
	reserved := order.Status.InventoryReserved()

	now := time.Now().UTC()
	order.Status = domain.OrderStatusCancelled
	order.Payment.CancelledAt = &now
	order.UpdatedAt = now

	if err := e.orders.Save(order); err != nil {
		if !domain.IsVersionConflict(err) {
			return domain.Order{}, fmt.Errorf("persist cancellation: %w", err)
		}
		if e.metrics != nil {
			e.metrics.RecordVersionConflict()
		}
		fresh, loadErr := e.orders.Get(order.ID)
		if loadErr != nil {
			return domain.Order{}, loadErr
		}
		if fresh.Status == domain.OrderStatusCancelled {
			return fresh, nil
		}
		return domain.Order{}, domain.ErrOrderStateConflict
	}
	order.Version++

	if reserved {
		e.releaseInventory(ctx, &order)
	}
	if e.metrics != nil {
		e.metrics.RecordOrderCancelled(source)
	}
	e.emitEvent(&order, EventOrderCancelled, map[string]interface{}{
		"reason": source,
		"ts":     now.Format(time.RFC3339Nano),
	})
	e.notifyStatusUpdate(&order)
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"source":   source,
	}).Info("order cancelled")
	return order, nil
}

// AdminTransition выполняет административный переход статуса: любой шаг
// вперёд по fulfillment-цепочке или отмена из нетерминального статуса.
func (e *Engine) AdminTransition(ctx context.Context, principal domain.Principal, orderID string, to domain.OrderStatus) (domain.Order, error) {
	if !principal.IsAdmin() {
		return domain.Order{}, domain.ErrAccessDenied
	}
	order, err := e.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == to {
		return order, nil
	}
	if !order.Status.CanAdminTransition(to) {
		return domain.Order{}, domain.ErrOrderStateConflict
	}

	if to == domain.OrderStatusCancelled {
		return e.cancelActive(ctx, order, CancelSourceAdmin)
	}

	now := time.Now().UTC()
	order.Status = to
	if to == domain.OrderStatusDelivered {
		order.DeliveredAt = &now
	}
	order.UpdatedAt = now

	if err := e.orders.Save(order); err != nil {
		if !domain.IsVersionConflict(err) {
			return domain.Order{}, fmt.Errorf("persist transition: %w", err)
		}
		if e.metrics != nil {
			e.metrics.RecordVersionConflict()
		}
		return domain.Order{}, domain.ErrOrderVersionConflict
	}
	order.Version++

	e.emitEvent(&order, EventOrderStatusChanged, map[string]interface{}{
		"status": string(order.Status),
		"ts":     now.Format(time.RFC3339Nano),
	})
	e.notifyStatusUpdate(&order)
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
	}).Info("order status updated")
	return order, nil
}

// GetOrder возвращает заказ владельцу или администратору.
func (e *Engine) GetOrder(_ context.Context, principal domain.Principal, orderID string) (domain.Order, error) {
	return e.ownedOrder(principal, orderID)
}

// ListOrders возвращает заказы покупателя, новые первыми. Заказы в
// payment_pending скрыты от покупателей и видны администраторам.
func (e *Engine) ListOrders(_ context.Context, principal domain.Principal, limit int) ([]domain.Order, error) {
	return e.orders.ListByOwner(principal.ID, limit, principal.IsAdmin())
}

// GetPaymentStatus возвращает проекцию платёжного состояния заказа.
func (e *Engine) GetPaymentStatus(_ context.Context, principal domain.Principal, orderID string) (PaymentStatusView, error) {
	order, err := e.ownedOrder(principal, orderID)
	if err != nil {
		return PaymentStatusView{}, err
	}
	return PaymentStatusView{
		OrderID:   order.ID,
		Status:    order.Status,
		Method:    order.Method,
		IsSettled: order.IsSettled,
		SettledAt: order.SettledAt,
		Payment:   order.Payment,
	}, nil
}

// ownedOrder загружает заказ и проверяет право доступа принципала.
func (e *Engine) ownedOrder(principal domain.Principal, orderID string) (domain.Order, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.OwnerID != principal.ID && !principal.IsAdmin() {
		e.logger.WithFields(log.Fields{
			"order_id":  orderID,
			"principal": principal.ID,
		}).Warn("order access denied")
		return domain.Order{}, domain.ErrAccessDenied
	}
	return order, nil
}

// settlementSideEffects — побочные эффекты успешного settlement: очистка
// корзины, письмо-подтверждение, событие. Все best-effort, ни один не
// откатывает уже совершённый переход.
func (e *Engine) settlementSideEffects(ctx context.Context, order *domain.Order) {
	if e.carts != nil {
		if err := e.carts.Clear(ctx, order.OwnerID); err != nil {
			e.logger.WithError(err).WithField("order_id", order.ID).Warn("clear cart failed")
		}
	}
	if e.notifier != nil {
		if err := e.notifier.SendOrderConfirmation(order.Address.Email, *order); err != nil {
			e.logger.WithError(err).WithField("order_id", order.ID).Warn("confirmation email failed")
		}
	}
	e.emitEvent(order, EventOrderConfirmed, map[string]interface{}{
		"method": string(order.Method),
		"total":  order.TotalMinor,
		"ts":     order.UpdatedAt.Format(time.RFC3339Nano),
	})
}

func (e *Engine) notifyStatusUpdate(order *domain.Order) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendStatusUpdate(order.Address.Email, *order); err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Warn("status update email failed")
	}
}

func (e *Engine) releaseInventory(ctx context.Context, order *domain.Order) {
	if err := e.ledger.Release(ctx, order.Items); err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Error("inventory release failed")
	}
}

func (e *Engine) rejectConfirm(reason string) {
	if e.metrics != nil {
		e.metrics.RecordConfirmRejected(reason)
	}
}

// emitEvent кладёт событие в outbox и timeline. Отказ любого из них
// логируется и не влияет на исход операции.
func (e *Engine) emitEvent(order *domain.Order, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	payload["owner_id"] = order.OwnerID
	if _, ok := payload["status"]; !ok {
		payload["status"] = string(order.Status)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	if e.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := e.outbox.Enqueue(msg); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Error("enqueue event failed")
		} else if e.metrics != nil {
			e.metrics.RecordOutboxEvent()
		}
	}

	if e.timeline != nil {
		var reason string
		if r, ok := payload["reason"].(string); ok {
			reason = r
		}
		occurred := order.UpdatedAt
		if occurred.IsZero() {
			occurred = time.Now().UTC()
		}
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   reason,
			Occurred: occurred,
		}
		if err := e.timeline.Append(event); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if e.metrics != nil {
			e.metrics.RecordTimelineEvent()
		}
	}
}
