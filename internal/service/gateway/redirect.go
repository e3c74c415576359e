package gateway

import (
	"context"
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Коды статуса нотификации redirect-шлюза.
const (
	redirectStatusSuccess   = "2"
	redirectStatusPending   = "0"
	redirectStatusCancelled = "-1"
	redirectStatusFailed    = "-2"
)

// RedirectConfig — учётные данные мерчанта и URL-ы hosted-страницы оплаты.
type RedirectConfig struct {
	MerchantID     string
	MerchantSecret string
	ReturnURL      string
	CancelURL      string
	NotifyURL      string
	CheckoutURL    string
}

// RedirectGateway — адаптер hosted-redirect шлюза: покупатель платит на
// странице шлюза, итог приходит server-to-server нотификацией с keyed-подписью.
type RedirectGateway struct {
	cfg    RedirectConfig
	logger *log.Entry
}

// NewRedirectGateway создаёт адаптер redirect-канала.
func NewRedirectGateway(cfg RedirectConfig, logger *log.Entry) *RedirectGateway {
	if logger == nil {
		logger = log.WithField("component", "redirect-gateway")
	}
	return &RedirectGateway{cfg: cfg, logger: logger}
}

func (g *RedirectGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodRedirect
}

// Initiate собирает подписанный payload для формы hosted-страницы.
// Секрет мерчанта в payload не попадает, только его хеш внутри подписи.
func (g *RedirectGateway) Initiate(_ context.Context, order domain.Order, principal domain.Principal) (Initiation, error) {
	amount := formatMinor(order.TotalMinor)
	fields := map[string]string{
		"merchant_id": g.cfg.MerchantID,
		"return_url":  g.cfg.ReturnURL,
		"cancel_url":  g.cfg.CancelURL,
		"notify_url":  g.cfg.NotifyURL,
		"order_id":    order.ID,
		"items":       orderItemsLabel(order.Items),
		"currency":    order.Currency,
		"amount":      amount,
		"email":       principal.Email,
		"first_name":  order.Address.FirstName,
		"last_name":   order.Address.LastName,
		"phone":       order.Address.Phone,
		"address":     order.Address.Street,
		"city":        order.Address.City,
		"country":     order.Address.Country,
		"hash":        g.requestSignature(order.ID, amount, order.Currency),
	}
	return Initiation{
		Method:      domain.PaymentMethodRedirect,
		CheckoutURL: g.cfg.CheckoutURL,
		Fields:      fields,
	}, nil
}

// Verify пересчитывает подпись нотификации над исходными строками полей.
// Несовпадение подписи фатально; валидная нотификация с не-успешным кодом
// просто даёт Succeeded=false.
func (g *RedirectGateway) Verify(_ context.Context, proof Proof) (Verification, error) {
	n := proof.Notification
	if n == nil {
		return Verification{}, fmt.Errorf("%w: notification payload is empty", domain.ErrSignatureMismatch)
	}

	expected := g.notifySignature(n.OrderID, n.Amount, n.Currency, n.StatusCode)
	if !strings.EqualFold(expected, n.Signature) {
		g.logger.WithField("order_id", n.OrderID).Warn("notification signature mismatch")
		return Verification{}, domain.ErrSignatureMismatch
	}

	amountMinor, err := parseAmountToMinor(n.Amount)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: bad amount %q", domain.ErrNotificationMalformed, n.Amount)
	}

	status := domain.PaymentRecordCancelled
	if n.StatusCode == redirectStatusSuccess {
		status = domain.PaymentRecordCompleted
	}
	return Verification{
		Succeeded:   n.StatusCode == redirectStatusSuccess,
		OrderID:     n.OrderID,
		AmountMinor: amountMinor,
		Record: domain.PaymentRecord{
			ExternalID: n.OrderID,
			Status:     status,
			VerifiedAt: time.Now().UTC(),
		},
	}, nil
}

// requestSignature — подпись исходящего платежа:
// UPPER(MD5(merchant_id + order_id + amount + currency + UPPER(MD5(secret)))).
func (g *RedirectGateway) requestSignature(orderID, amount, currency string) string {
	return upperMD5(g.cfg.MerchantID + orderID + amount + currency + upperMD5(g.cfg.MerchantSecret))
}

// notifySignature — подпись входящей нотификации; к цепочке добавляется код статуса.
func (g *RedirectGateway) notifySignature(orderID, amount, currency, statusCode string) string {
	return upperMD5(g.cfg.MerchantID + orderID + amount + currency + statusCode + upperMD5(g.cfg.MerchantSecret))
}

func upperMD5(s string) string {
	return strings.ToUpper(fmt.Sprintf("%x", md5.Sum([]byte(s))))
}

// formatMinor печатает сумму в minor units как строку с двумя знаками.
// Единственное место, где деньги покидают целочисленное представление.
func formatMinor(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// parseAmountToMinor разбирает строку шлюза "1234.50" обратно в minor units.
func parseAmountToMinor(s string) (int64, error) {
	whole, frac, ok := strings.Cut(s, ".")
	if !ok {
		frac = "00"
	}
	if len(frac) != 2 {
		return 0, fmt.Errorf("amount %q: want two fractional digits", s)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	if w < 0 || f < 0 {
		return 0, fmt.Errorf("amount %q: negative", s)
	}
	return w*100 + f, nil
}

func orderItemsLabel(items []domain.OrderItem) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return strings.Join(names, ", ")
}

var _ Gateway = (*RedirectGateway)(nil)
